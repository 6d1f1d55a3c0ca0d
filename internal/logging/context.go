// Package logging carries correlation values through a context and adds them
// to slog records.
package logging

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

type ctxKey int

const (
	workflowIDKey ctxKey = iota
	blockLabelKey
	requestIDKey
)

// correlated lists the context values copied onto records, in output order.
var correlated = []struct {
	key  ctxKey
	attr string
}{
	{workflowIDKey, "workflow_id"},
	{blockLabelKey, "block_label"},
	{requestIDKey, "request_id"},
}

// WithWorkflowID returns a context with the workflow ID set.
func WithWorkflowID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, workflowIDKey, id)
}

// WithBlockLabel returns a context naming the block being worked on.
func WithBlockLabel(ctx context.Context, label string) context.Context {
	return context.WithValue(ctx, blockLabelKey, label)
}

// WithRequestID returns a context with the request ID set.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// WorkflowID extracts the workflow ID from the context, or "" if absent.
func WorkflowID(ctx context.Context) string { return value(ctx, workflowIDKey) }

// BlockLabel extracts the block label from the context, or "" if absent.
func BlockLabel(ctx context.Context) string { return value(ctx, blockLabelKey) }

// RequestID extracts the request ID from the context, or "" if absent.
func RequestID(ctx context.Context) string { return value(ctx, requestIDKey) }

func value(ctx context.Context, k ctxKey) string {
	v, _ := ctx.Value(k).(string)
	return v
}

func attrs(ctx context.Context) []slog.Attr {
	var out []slog.Attr
	for _, c := range correlated {
		if v := value(ctx, c.key); v != "" {
			out = append(out, slog.String(c.attr, v))
		}
	}
	return out
}

// LogWith returns a logger enriched with correlation values from the context.
// Only non-empty values are added as attributes.
func LogWith(ctx context.Context, logger *slog.Logger) *slog.Logger {
	for _, a := range attrs(ctx) {
		logger = logger.With(a)
	}
	return logger
}

// CorrelationHandler wraps an slog.Handler, injecting correlation values
// from the context into every record. Use with
// slog.New(NewCorrelationHandler(inner)) and log through the *Context methods.
type CorrelationHandler struct {
	inner slog.Handler
}

// NewCorrelationHandler wraps the given handler.
func NewCorrelationHandler(inner slog.Handler) *CorrelationHandler {
	return &CorrelationHandler{inner: inner}
}

func (h *CorrelationHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

func (h *CorrelationHandler) Handle(ctx context.Context, r slog.Record) error {
	r.AddAttrs(attrs(ctx)...)
	return h.inner.Handle(ctx, r)
}

func (h *CorrelationHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &CorrelationHandler{inner: h.inner.WithAttrs(attrs)}
}

func (h *CorrelationHandler) WithGroup(name string) slog.Handler {
	return &CorrelationHandler{inner: h.inner.WithGroup(name)}
}

// ParseLevel maps debug, info, warn and error (any case) to a slog level.
// An empty string is info.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
}
