package route

import (
	"errors"
	"time"
)

const (
	defaultFailureThreshold  = 3
	defaultCallTimeout       = 120 * time.Second
	defaultKeepAliveInterval = 5 * time.Second
)

// Config is loaded with the ROUTE_ prefix.
type Config struct {
	FailureThreshold  int           `envconfig:"FAILURE_THRESHOLD" split_words:"true" default:"3"`
	CallTimeout       time.Duration `envconfig:"CALL_TIMEOUT" split_words:"true" default:"120s"`
	KeepAliveInterval time.Duration `envconfig:"KEEP_ALIVE_INTERVAL" split_words:"true" default:"5s"`
}

func (c Config) withDefaults() Config {
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = defaultFailureThreshold
	}
	if c.CallTimeout <= 0 {
		c.CallTimeout = defaultCallTimeout
	}
	if c.KeepAliveInterval < 0 {
		c.KeepAliveInterval = defaultKeepAliveInterval
	}
	return c
}

func (c *Config) Validate() error {
	switch {
	case c.FailureThreshold < 1:
		return errors.New("failure threshold must be at least 1")
	case c.CallTimeout <= 0:
		return errors.New("call timeout must be positive")
	case c.KeepAliveInterval < 0:
		return errors.New("keep-alive interval must not be negative")
	}
	return nil
}
