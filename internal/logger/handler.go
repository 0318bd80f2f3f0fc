package logger

import (
	"context"
	"log/slog"
)

type key int

const cycleKey key = 0

// WithCycleID attaches a sync-cycle correlation ID to the context. Every log
// record emitted with that context carries the ID.
func WithCycleID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, cycleKey, id)
}

func CycleID(ctx context.Context) string {
	if id, ok := ctx.Value(cycleKey).(string); ok {
		return id
	}
	return ""
}

type ContextHandler struct {
	slog.Handler
}

func NewContextHandler(h slog.Handler) *ContextHandler {
	return &ContextHandler{Handler: h}
}

func (h *ContextHandler) Handle(ctx context.Context, r slog.Record) error {
	if id, ok := ctx.Value(cycleKey).(string); ok && id != "" {
		r.AddAttrs(slog.String("cycle_id", id))
	}
	return h.Handler.Handle(ctx, r)
}
