// Package log configures structured logging for the query engine. Every
// record carries a service attribute so engine logs stay filterable when
// shipped into the surrounding document platform's aggregation.
package log

import (
	"io"
	"log/slog"
	"os"
)

const serviceName = "queryengine"

// Setup installs the process-wide default logger. Format "json" targets
// log aggregation; anything else gets human-readable text.
func Setup(logLevel, format string) {
	handler := newHandler(os.Stderr, ParseLevel(logLevel), format)
	slog.SetDefault(slog.New(handler).With("service", serviceName))
}

// ParseLevel maps a level name to its slog.Level. Unknown names fall back
// to info.
func ParseLevel(logLevel string) slog.Level {
	switch logLevel {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func newHandler(w io.Writer, level slog.Level, format string) slog.Handler {
	opts := &slog.HandlerOptions{Level: level}

	if format == "json" {
		return slog.NewJSONHandler(w, opts)
	}

	return slog.NewTextHandler(w, opts)
}

// WithModule returns a logger scoped to one engine module.
func WithModule(module string) *slog.Logger {
	return slog.With("module", module)
}
