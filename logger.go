package pdbcache

import (
	"context"
	"log/slog"
	"os"
)

// Logger wraps slog.Logger with pdbcache-specific context.
// This provides structured logging with consistent field names.
type Logger struct {
	*slog.Logger
}

// NewLogger creates a new Logger with the given handler.
// If handler is nil, uses default text handler to stderr.
func NewLogger(handler slog.Handler) *Logger {
	if handler == nil {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		})
	}
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewJSONLogger creates a Logger that outputs JSON-formatted logs.
// level sets the minimum log level (e.g., slog.LevelDebug, slog.LevelInfo).
func NewJSONLogger(level slog.Level) *Logger {
	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewTextLogger creates a Logger that outputs human-readable text logs.
func NewTextLogger(level slog.Level) *Logger {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NoopLogger creates a Logger that discards all log output.
func NoopLogger() *Logger {
	return &Logger{
		Logger: slog.New(slog.DiscardHandler),
	}
}

// WithID adds an id field to the logger.
func (l *Logger) WithID(id int64) *Logger {
	return &Logger{
		Logger: l.Logger.With("id", id),
	}
}

// WithBlock adds a block key field to the logger.
func (l *Logger) WithBlock(key int64) *Logger {
	return &Logger{
		Logger: l.Logger.With("block", key),
	}
}

// WithCacheGroup adds a cache group field to the logger.
func (l *Logger) WithCacheGroup(group string) *Logger {
	return &Logger{
		Logger: l.Logger.With("group", group),
	}
}

// LogGet logs a point read.
func (l *Logger) LogGet(ctx context.Context, id int64, found bool, err error) {
	if err != nil {
		l.ErrorContext(ctx, "get failed",
			"id", id,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "get completed",
			"id", id,
			"found", found,
		)
	}
}

// LogGetMany logs a batch read.
func (l *Logger) LogGetMany(ctx context.Context, requested, found int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "batch get failed",
			"requested", requested,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "batch get completed",
			"requested", requested,
			"found", found,
		)
	}
}

// LogInvalidate logs a block invalidation.
func (l *Logger) LogInvalidate(ctx context.Context, id int64, err error) {
	if err != nil {
		l.ErrorContext(ctx, "invalidate failed",
			"id", id,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "block invalidated",
			"id", id,
		)
	}
}

// LogWrite logs a table write (create, update or delete).
func (l *Logger) LogWrite(ctx context.Context, op string, id int64, err error) {
	if err != nil {
		l.ErrorContext(ctx, op+" failed",
			"id", id,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, op+" completed",
			"id", id,
		)
	}
}

// LogWarm logs a warmup.
func (l *Logger) LogWarm(ctx context.Context, lo, hi int64, blocks int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "warm failed",
			"lo", lo,
			"hi", hi,
			"blocks", blocks,
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "warm completed",
			"lo", lo,
			"hi", hi,
			"blocks", blocks,
		)
	}
}

// LogSnapshot logs a snapshot export or import.
func (l *Logger) LogSnapshot(ctx context.Context, op, id string, records int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "snapshot "+op+" failed",
			"snapshot", id,
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "snapshot "+op+" completed",
			"snapshot", id,
			"records", records,
		)
	}
}
