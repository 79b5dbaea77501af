package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/kelseyhightower/envconfig"
	"github.com/spf13/viper"
)

var ErrInvalidConfig = errors.New("invalid config")

// Validator is implemented by config structs that check their own values after
// envconfig has filled them in.
type Validator interface {
	Validate() error
}

var (
	envFilePath string
	parseOnce   sync.Once
)

func MustNew[T any](prefix string) *T {
	conf, err := New[T](prefix)
	if err != nil {
		panic(err)
	}
	return conf
}

// New loads T from prefixed environment variables. The -env flag (or ./.env when
// present) is exported first; variables already set in the process win.
func New[T any](prefix string) (*T, error) {
	filepath := resolveEnvPath()
	if filepath != "" {
		if err := exportEnvironment(filepath); err != nil {
			return nil, fmt.Errorf("failed to load env file: %w", err)
		}
	} else if err := exportEnvironmentIfExists(".env"); err != nil {
		return nil, fmt.Errorf("failed to load default env file: %w", err)
	}

	var conf T
	if err := envconfig.Process(prefix, &conf); err != nil {
		return nil, err
	}
	if v, ok := any(&conf).(Validator); ok {
		if err := v.Validate(); err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrInvalidConfig, prefix, err)
		}
	}

	return &conf, nil
}

func resolveEnvPath() string {
	parseOnce.Do(func() {
		if flag.Lookup("env") == nil {
			flag.StringVar(&envFilePath, "env", "", "path to .env file")
		}
		if !flag.Parsed() {
			flag.Parse()
		}
	})
	return strings.TrimSpace(envFilePath)
}

func exportEnvironmentIfExists(filepath string) error {
	info, err := os.Stat(filepath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	if info.IsDir() {
		return nil
	}
	return exportEnvironment(filepath)
}

func exportEnvironment(filepath string) error {
	v := viper.New()
	v.SetConfigFile(filepath)
	v.SetConfigType("env")
	if err := v.ReadInConfig(); err != nil {
		return err
	}

	for k, val := range v.AllSettings() {
		key := strings.ToUpper(k)
		if _, set := os.LookupEnv(key); set {
			continue
		}
		if err := os.Setenv(key, fmt.Sprint(val)); err != nil {
			return err
		}
	}

	return nil
}
