package consumer

import (
	"context"
	"log/slog"

	"rosterlink/internal/platform/kafka/consumer"
)

// CategoryHandler handles audit messages of one event category.
type CategoryHandler interface {
	Handle(ctx context.Context, msg *consumer.Message) error
}

// Router dispatches audit messages by their category header.
type Router struct {
	header   string
	handlers map[string]CategoryHandler
	fallback CategoryHandler
	logger   *slog.Logger
}

// NewRouter creates a router keyed on header with an optional fallback handler.
func NewRouter(header string, logger *slog.Logger, fallback CategoryHandler) *Router {
	return &Router{
		header:   header,
		handlers: make(map[string]CategoryHandler),
		fallback: fallback,
		logger:   logger,
	}
}

// Register adds a handler for one category.
func (r *Router) Register(category string, handler CategoryHandler) {
	r.handlers[category] = handler
}

// Handle routes the message to the handler registered for its category.
func (r *Router) Handle(ctx context.Context, msg *consumer.Message) error {
	category := msg.Headers[r.header]
	handler, ok := r.handlers[category]
	if !ok {
		if r.fallback != nil {
			return r.fallback.Handle(ctx, msg)
		}
		r.logger.WarnContext(ctx, "no handler for audit category, skipping message",
			"category", category,
			"key", string(msg.Key),
		)
		return nil // Commit to avoid redelivery
	}
	return handler.Handle(ctx, msg)
}
