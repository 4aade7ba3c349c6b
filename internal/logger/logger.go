// Package logger provides structured logging using log/slog.
// It sets up a JSON handler with service-level context and carries the
// operation, ticker and trace ID of a tick through context.Context.
package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/google/uuid"
)

type ctxKey string

const (
	traceIDKey   ctxKey = "trace_id"
	operationKey ctxKey = "operation"
	tickerKey    ctxKey = "ticker"
)

// Init creates the JSON logger for the given service and installs it as the slog default.
func Init(service string, level slog.Level) *slog.Logger {
	return InitWriter(os.Stdout, service, level)
}

// InitWriter is Init with an explicit destination.
func InitWriter(w io.Writer, service string, level slog.Level) *slog.Logger {
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: level,
	})

	logger := slog.New(handler).With(
		slog.String("service", service),
	)

	slog.SetDefault(logger)

	return logger
}

// ParseLevel maps LOG_LEVEL values to slog levels. Unknown values yield info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
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

// WithTraceID stores a trace ID in the context for downstream propagation.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceIDKey, traceID)
}

// NewTrace attaches a fresh random trace ID, one per scheduler tick.
func NewTrace(ctx context.Context) context.Context {
	return WithTraceID(ctx, uuid.NewString())
}

// TraceID extracts the trace ID from context. Returns "" if not set.
func TraceID(ctx context.Context) string {
	if v, ok := ctx.Value(traceIDKey).(string); ok {
		return v
	}
	return ""
}

// WithOperation tags the context with the operation name.
func WithOperation(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, operationKey, name)
}

// WithTicker tags the context with the ticker symbol.
func WithTicker(ctx context.Context, symbol string) context.Context {
	return context.WithValue(ctx, tickerKey, symbol)
}

// Attrs returns the slog attributes found in ctx.
// Usage: slog.Info("msg", logger.Attrs(ctx)...)
func Attrs(ctx context.Context) []any {
	var attrs []any
	for _, k := range []ctxKey{operationKey, tickerKey, traceIDKey} {
		if v, ok := ctx.Value(k).(string); ok && v != "" {
			attrs = append(attrs, slog.String(string(k), v))
		}
	}
	return attrs
}
