// Package logger provides structured logging setup for the CLI.
package logger

import (
	"errors"
	"io"
	"log/slog"
	"os"
	"strings"
)

// Sentinel errors for logger construction.
var (
	ErrEmptyArgs     = errors.New("logLevel and logFormat must not be empty")
	ErrInvalidLevel  = errors.New("invalid log level")
	ErrInvalidFormat = errors.New("invalid log format")
)

// New sets up the slog logger with level and format from arguments.
// logLevel: "debug", "info", "warn", "error"
// logFormat: "json" or "text"
// Logs go to stderr so stdout stays clean for command output.
func New(logLevel, logFormat string) (*slog.Logger, error) {
	return NewWithWriter(logLevel, logFormat, os.Stderr)
}

// NewWithWriter is like New but writes to the given writer. Used by tests.
func NewWithWriter(logLevel, logFormat string, w io.Writer) (*slog.Logger, error) {
	if strings.TrimSpace(logLevel) == "" || strings.TrimSpace(logFormat) == "" {
		return nil, ErrEmptyArgs
	}

	var level slog.Level
	switch strings.ToLower(logLevel) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	case "info":
		level = slog.LevelInfo
	default:
		return nil, ErrInvalidLevel
	}

	var handler slog.Handler
	switch strings.ToLower(logFormat) {
	case "json":
		handler = slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
	case "text":
		handler = slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})
	default:
		return nil, ErrInvalidFormat
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger, nil
}
