// Package logger provides structured logging for the parking server.
// Every lot mutation and guidance decision should be traceable through this.
package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Logger provides structured logging with context.
type Logger struct {
	*slog.Logger
}

// NewLogger creates a logger writing to stdout. LOG_LEVEL selects the level and
// LOG_FORMAT=json switches from the human readable text handler to JSON.
func NewLogger() *Logger {
	return New(os.Stdout, os.Getenv("LOG_LEVEL"), os.Getenv("LOG_FORMAT") == "json")
}

// New builds a logger on an arbitrary writer.
func New(w io.Writer, level string, jsonOutput bool) *Logger {
	lvl := parseLevel(level)
	opts := &slog.HandlerOptions{
		Level:     lvl,
		AddSource: lvl == slog.LevelDebug,
	}

	var handler slog.Handler
	if jsonOutput {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return &Logger{Logger: slog.New(handler)}
}

// Discard returns a logger that drops everything. Used by tests and tools.
func Discard() *Logger {
	return New(io.Discard, "error", false)
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
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

// With derives a component logger carrying extra attributes.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{Logger: l.Logger.With(args...)}
}

// Info logs informational messages.
func (l *Logger) Info(msg string, args ...any) {
	l.Logger.Info(msg, args...)
}

// Warn logs warning messages.
func (l *Logger) Warn(msg string, args ...any) {
	l.Logger.Warn(msg, args...)
}

// Error logs error messages.
func (l *Logger) Error(msg string, args ...any) {
	l.Logger.Error(msg, args...)
}

// Event logs a lot event with its actor, mirroring what lands in the activity log.
func (l *Logger) Event(eventType string, actorID string, details string) {
	l.Logger.Info("event",
		slog.String("type", eventType),
		slog.String("actor", actorID),
		slog.String("details", details),
	)
}
