// Package logging builds the process logger. Logs go to stderr; stdout is
// reserved for workflow outputs JSON.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// New builds the process logger from the configured level and format strings,
// writing to stderr. Unrecognized values fall back to info-level text.
func New(level, format string) *slog.Logger {
	return NewWithWriter(level, format, os.Stderr)
}

// NewWithWriter builds a logger for the given writer.
//
// level: log level name (debug, info, warn, error)
// format: "text" (human-readable) or "json" (structured)
func NewWithWriter(level, format string, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: ParseLevel(level)}
	if strings.EqualFold(format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// Component tags a logger with the subsystem it serves, so every record
// carries a "component" attribute. A nil base falls back to the default
// logger; library constructors accept a nil logger and still log.
func Component(base *slog.Logger, name string) *slog.Logger {
	if base == nil {
		base = slog.Default()
	}
	return base.With("component", name)
}

// ParseLevel converts a configured level name to slog.Level.
// Unrecognized values mean info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
