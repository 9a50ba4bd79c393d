package util

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

type logConfig struct {
	out     io.Writer
	console bool
}

// LogOption customizes NewLogger.
type LogOption func(*logConfig)

// WithOutput redirects log output, mainly for tests.
func WithOutput(w io.Writer) LogOption {
	return func(c *logConfig) { c.out = w }
}

// WithConsole switches from JSON lines to zerolog's human readable console writer.
func WithConsole(enabled bool) LogOption {
	return func(c *logConfig) { c.console = enabled }
}

func NewLogger(level string, opts ...LogOption) zerolog.Logger {
	cfg := logConfig{out: os.Stdout}
	for _, opt := range opts {
		opt(&cfg)
	}
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	out := cfg.out
	if cfg.console {
		out = zerolog.ConsoleWriter{Out: cfg.out, TimeFormat: "15:04:05.000", NoColor: true}
	}
	return zerolog.New(out).With().Timestamp().Logger().Level(lvl)
}
