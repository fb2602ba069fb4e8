// Package logging configures the process-wide slog logger and derives
// request- and rebuild-scoped loggers from it. Handlers write to stdout;
// the level and format come from configuration.
package logging

import (
	"context"
	"log/slog"
	"os"
	"strings"

	"github.com/go-chi/chi/v5/middleware"
)

// Setup installs the default logger. Level is one of "debug", "info",
// "warn", "error"; format is "text" or "json". Unknown values fall back to
// info/text, so a typo in config degrades output instead of killing it.
func Setup(level, format string) {
	opts := &slog.HandlerOptions{
		Level: parseLevel(level),
	}

	var handler slog.Handler
	if strings.ToLower(format) == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	slog.SetDefault(slog.New(handler))
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

// FromContext returns the default logger enriched with the chi request ID
// when the context carries one. Every log entry emitted while serving one
// HTTP request then shares a request_id, so a refresh triggered by
// POST /api/refresh can be correlated with the per-table commit entries it
// produced.
func FromContext(ctx context.Context) *slog.Logger {
	logger := slog.Default()

	if reqID := middleware.GetReqID(ctx); reqID != "" {
		logger = logger.With("request_id", reqID)
	}

	return logger
}

// WithFields returns a context logger carrying extra fields, for multi-step
// operations that should tag every entry the same way:
//
//	log := logging.WithFields(ctx, "sheet", snap.SheetID)
//	log.Info("rebuild started")
//	// ... detect, materialize, swap ...
//	log.Info("rebuild committed", "tables", len(descs))
func WithFields(ctx context.Context, args ...any) *slog.Logger {
	return FromContext(ctx).With(args...)
}
