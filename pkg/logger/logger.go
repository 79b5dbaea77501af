package logx

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type Config struct {
	Debug        bool `split_words:"true" default:"false"`
	PrettyFormat bool `split_words:"true" default:"false"`
	// Level overrides Debug when set: trace, debug, info, warn, error.
	Level string `split_words:"true"`
}

var DefaultConfig = &Config{
	Debug:        false,
	PrettyFormat: false,
}

func safe(opts ...Config) *Config {
	if len(opts) == 0 {
		return DefaultConfig
	}
	return &opts[0]
}

func Init(opts ...Config) {
	conf := safe(opts...)

	var out io.Writer = os.Stdout
	if conf.PrettyFormat {
		out = zerolog.NewConsoleWriter()
	}
	log.Logger = New(out, *conf)
}

// New builds a logger with the same fields and level rules as Init, writing to w.
func New(w io.Writer, conf Config) zerolog.Logger {
	return zerolog.New(w).
		Level(level(conf)).
		With().Timestamp().Caller().Stack().
		Logger()
}

// Component returns the global logger tagged with a component name.
func Component(name string) zerolog.Logger {
	return log.Logger.With().Str("component", name).Logger()
}

func level(conf Config) zerolog.Level {
	if s := strings.TrimSpace(conf.Level); s != "" {
		if lvl, err := zerolog.ParseLevel(strings.ToLower(s)); err == nil {
			return lvl
		}
	}
	if conf.Debug {
		return zerolog.DebugLevel
	}
	return zerolog.InfoLevel
}
