package logging

import (
	"context"
	"log/slog"
)

type ctxKey int

const (
	caseIDKey ctxKey = iota
	phaseKey
	actorIDKey
)

// WithCaseID returns a context with the case ID set.
func WithCaseID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, caseIDKey, id)
}

// WithPhase returns a context with the orchestration phase set.
func WithPhase(ctx context.Context, phase string) context.Context {
	return context.WithValue(ctx, phaseKey, phase)
}

// WithActorID returns a context with the actor role set.
func WithActorID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, actorIDKey, id)
}

// CaseID extracts the case ID from the context, or "" if absent.
func CaseID(ctx context.Context) string {
	v, _ := ctx.Value(caseIDKey).(string)
	return v
}

// Phase extracts the orchestration phase from the context, or "" if absent.
func Phase(ctx context.Context) string {
	v, _ := ctx.Value(phaseKey).(string)
	return v
}

// ActorID extracts the actor role from the context, or "" if absent.
func ActorID(ctx context.Context) string {
	v, _ := ctx.Value(actorIDKey).(string)
	return v
}

// LogWith returns a logger enriched with correlation IDs from the context.
// Only non-empty values are added as attributes.
func LogWith(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if id := CaseID(ctx); id != "" {
		logger = logger.With(slog.String("case_id", id))
	}
	if p := Phase(ctx); p != "" {
		logger = logger.With(slog.String("phase", p))
	}
	if id := ActorID(ctx); id != "" {
		logger = logger.With(slog.String("actor_id", id))
	}
	return logger
}

// CorrelationHandler wraps an slog.Handler, automatically injecting
// correlation IDs from the context into every log record.
// Use with slog.New(NewCorrelationHandler(inner)) so callers can use
// logger.InfoContext(ctx, ...) and IDs appear automatically.
type CorrelationHandler struct {
	inner slog.Handler
}

// NewCorrelationHandler wraps the given handler with automatic correlation ID injection.
func NewCorrelationHandler(inner slog.Handler) *CorrelationHandler {
	return &CorrelationHandler{inner: inner}
}

func (h *CorrelationHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

func (h *CorrelationHandler) Handle(ctx context.Context, r slog.Record) error {
	if v := CaseID(ctx); v != "" {
		r.AddAttrs(slog.String("case_id", v))
	}
	if v := Phase(ctx); v != "" {
		r.AddAttrs(slog.String("phase", v))
	}
	if v := ActorID(ctx); v != "" {
		r.AddAttrs(slog.String("actor_id", v))
	}
	return h.inner.Handle(ctx, r)
}

func (h *CorrelationHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &CorrelationHandler{inner: h.inner.WithAttrs(attrs)}
}

func (h *CorrelationHandler) WithGroup(name string) slog.Handler {
	return &CorrelationHandler{inner: h.inner.WithGroup(name)}
}
