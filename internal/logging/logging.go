// Package logging builds the process logger from configuration.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/s33g/chatctx/internal/config"
)

// New creates a logger writing to stderr, and additionally to a rotating file when configured
func New(cfg config.LoggingConfig) (zerolog.Logger, error) {
	level := zerolog.InfoLevel
	if cfg.Level != "" {
		parsed, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
		if err != nil {
			return zerolog.Nop(), fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
		}
		level = parsed
	}

	var console io.Writer = os.Stderr
	switch strings.ToLower(cfg.Format) {
	case "", "console":
		console = zerolog.ConsoleWriter{Out: os.Stderr}
	case "json":
	default:
		return zerolog.Nop(), fmt.Errorf("invalid log format %q (expected json or console)", cfg.Format)
	}

	out := console
	if cfg.File != "" {
		out = zerolog.MultiLevelWriter(console, FileWriter(cfg))
	}

	return zerolog.New(out).Level(level).With().Timestamp().Logger(), nil
}

// FileWriter returns a size-rotated JSON log file writer
func FileWriter(cfg config.LoggingConfig) io.Writer {
	maxSize := cfg.MaxSizeMB
	if maxSize <= 0 {
		maxSize = 10
	}
	maxBackups := cfg.MaxBackups
	if maxBackups <= 0 {
		maxBackups = 3
	}

	return &lumberjack.Logger{
		Filename:   cfg.File,
		MaxSize:    maxSize,
		MaxBackups: maxBackups,
		Compress:   true,
	}
}

// Component returns a sub-logger tagged with a component name
func Component(logger zerolog.Logger, name string) zerolog.Logger {
	return logger.With().Str("component", name).Logger()
}
