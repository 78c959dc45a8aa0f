// Package logger provides structured logging infrastructure for the application.
// This is part of the platform layer and contains no business logic.
package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
)

// Context key types for storing values in context
type contextKey string

const (
	// RunIDKey is the context key for the dispute run ID
	RunIDKey contextKey = "run_id"
	// ReferenceKey is the context key for the client reference being processed
	ReferenceKey contextKey = "client_reference"
)

// Logger wraps slog.Logger for structured logging
type Logger struct {
	*slog.Logger
}

// New creates a new logger based on environment
func New(env string) *Logger {
	return NewWithOptions(env, false, os.Stdout)
}

// NewWithOptions creates a logger writing to w. Verbose forces debug level.
func NewWithOptions(env string, verbose bool, w io.Writer) *Logger {
	var handler slog.Handler

	opts := &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}
	if verbose {
		opts.Level = slog.LevelDebug
	}

	if strings.EqualFold(env, "development") {
		opts.Level = slog.LevelDebug
		handler = slog.NewTextHandler(w, opts)
	} else {
		handler = slog.NewJSONHandler(w, opts)
	}

	return &Logger{
		Logger: slog.New(handler),
	}
}

// Discard returns a logger that drops everything. Used by tests.
func Discard() *Logger {
	return &Logger{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
}

// WithContext returns a logger with context values extracted.
// Supports run_id and client_reference from context.
func (l *Logger) WithContext(ctx context.Context) *Logger {
	if ctx == nil {
		return l
	}

	newLogger := l

	if runID, ok := ctx.Value(RunIDKey).(string); ok && runID != "" {
		newLogger = newLogger.WithRun(runID)
	}

	if ref, ok := ctx.Value(ReferenceKey).(string); ok && ref != "" {
		newLogger = newLogger.WithReference(ref)
	}

	return newLogger
}

// WithRun returns a logger with run ID
func (l *Logger) WithRun(runID string) *Logger {
	return &Logger{
		Logger: l.With(slog.String("run_id", runID)),
	}
}

// WithReference returns a logger with the client reference number
func (l *Logger) WithReference(ref string) *Logger {
	return &Logger{
		Logger: l.With(slog.String("client_reference", ref)),
	}
}

// ExternalCallFailed logs a failed attempt against an external system
func (l *Logger) ExternalCallFailed(boundary string, attempt int, err error) {
	l.Warn("external_call_failed",
		slog.String("boundary", boundary),
		slog.Int("attempt", attempt),
		slog.String("error", err.Error()),
	)
}

// Transition logs a dispute state transition
func (l *Logger) Transition(ref, from, to, outcome string) {
	l.Info("dispute_transition",
		slog.String("client_reference", ref),
		slog.String("from", from),
		slog.String("to", to),
		slog.String("outcome", outcome),
	)
}

// DatabaseError logs database errors
func (l *Logger) DatabaseError(operation string, err error) {
	l.Error("database_error",
		slog.String("operation", operation),
		slog.String("error", err.Error()),
	)
}
