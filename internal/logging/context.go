package logging

import (
	"context"
	"log/slog"
	"strings"
)

type ctxKey int

const (
	workflowIDKey ctxKey = iota
	instanceIDKey
	activityIDKey
)

// WithWorkflowID returns a context carrying the workflow definition ID.
func WithWorkflowID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, workflowIDKey, id)
}

// WithInstanceID returns a context carrying the workflow instance ID.
func WithInstanceID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, instanceIDKey, id)
}

// WithActivityID returns a context carrying the activity execution context ID.
func WithActivityID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, activityIDKey, id)
}

// WorkflowID extracts the workflow ID from the context, or "" if absent.
func WorkflowID(ctx context.Context) string {
	v, _ := ctx.Value(workflowIDKey).(string)
	return v
}

// InstanceID extracts the instance ID from the context, or "" if absent.
func InstanceID(ctx context.Context) string {
	v, _ := ctx.Value(instanceIDKey).(string)
	return v
}

// ActivityID extracts the activity execution context ID, or "" if absent.
func ActivityID(ctx context.Context) string {
	v, _ := ctx.Value(activityIDKey).(string)
	return v
}

func correlationAttrs(ctx context.Context) []slog.Attr {
	var attrs []slog.Attr
	if v := WorkflowID(ctx); v != "" {
		attrs = append(attrs, slog.String("workflow_id", v))
	}
	if v := InstanceID(ctx); v != "" {
		attrs = append(attrs, slog.String("instance_id", v))
	}
	if v := ActivityID(ctx); v != "" {
		attrs = append(attrs, slog.String("activity_id", v))
	}
	return attrs
}

// LogWith returns a logger enriched with the correlation IDs found in ctx.
func LogWith(ctx context.Context, logger *slog.Logger) *slog.Logger {
	for _, a := range correlationAttrs(ctx) {
		logger = logger.With(a)
	}
	return logger
}

// CorrelationHandler wraps an slog.Handler and injects correlation IDs from the
// record's context, so logger.InfoContext(ctx, ...) carries them automatically.
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
	r.AddAttrs(correlationAttrs(ctx)...)
	return h.inner.Handle(ctx, r)
}

func (h *CorrelationHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &CorrelationHandler{inner: h.inner.WithAttrs(attrs)}
}

func (h *CorrelationHandler) WithGroup(name string) slog.Handler {
	return &CorrelationHandler{inner: h.inner.WithGroup(name)}
}

// ParseLevel maps a config string to a slog level; unknown values mean info.
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

// OrDefault returns logger, or slog.Default() when nil.
func OrDefault(logger *slog.Logger) *slog.Logger {
	if logger == nil {
		return slog.Default()
	}
	return logger
}
