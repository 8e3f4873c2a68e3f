// Package logging wraps slog with embreduce-specific field helpers.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
)

// Logger wraps slog.Logger with consistent field names.
type Logger struct {
	*slog.Logger
}

// New creates a Logger writing to w. format is "text" or "json"; level is
// one of debug, info, warn, error.
func New(w io.Writer, level, format string) *Logger {
	if w == nil {
		w = os.Stderr
	}
	opts := &slog.HandlerOptions{Level: ParseLevel(level)}

	var handler slog.Handler
	if strings.EqualFold(format, "json") {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return &Logger{Logger: slog.New(handler)}
}

// Nop returns a Logger that discards all output.
func Nop() *Logger {
	return &Logger{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
}

// ParseLevel maps a level name to a slog.Level, defaulting to info.
func ParseLevel(level string) slog.Level {
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

// WithDataset adds a dataset field.
func (l *Logger) WithDataset(name string) *Logger {
	return &Logger{Logger: l.Logger.With("dataset", name)}
}

// WithAction adds an action field.
func (l *Logger) WithAction(action string) *Logger {
	return &Logger{Logger: l.Logger.With("action", action)}
}

// WithRun adds a run id field.
func (l *Logger) WithRun(id string) *Logger {
	return &Logger{Logger: l.Logger.With("run", id)}
}

// LogExcluded logs a record dropped from evaluation.
func (l *Logger) LogExcluded(ctx context.Context, record string, err error) {
	l.WarnContext(ctx, "record excluded",
		"record", record,
		"error", err,
	)
}

// LogPopulate logs the outcome of a cache population pass.
func (l *Logger) LogPopulate(ctx context.Context, total, hits, extracted, failed int) {
	if failed > 0 {
		l.WarnContext(ctx, "cache populated with failures",
			"total", total,
			"hits", hits,
			"extracted", extracted,
			"failed", failed,
		)
		return
	}
	l.InfoContext(ctx, "cache populated",
		"total", total,
		"hits", hits,
		"extracted", extracted,
	)
}
