package app

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/fatih/color"
)

// Logger is the app-wide logger type (slog).
type Logger = *slog.Logger

// NewLogger creates a structured logger with an explicit level.
// format "pretty" selects the key=value console handler; anything else is JSON.
func NewLogger(level, format string) *slog.Logger {
	log := newLoggerTo(os.Stdout, level, format, !color.NoColor)
	slog.SetDefault(log)
	return log
}

func newLoggerTo(w io.Writer, level, format string, colored bool) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level:     parseLogLevel(level),
		AddSource: true,
	}

	var h slog.Handler
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "pretty", "text":
		h = newPrettyHandler(w, opts, colored)
	default:
		h = slog.NewJSONHandler(w, opts)
	}
	return slog.New(h)
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewStderrLogger is NewLogger for commands that print their results on stdout.
func NewStderrLogger(level, format string) *slog.Logger {
	return newLoggerTo(os.Stderr, level, format, !color.NoColor)
}
