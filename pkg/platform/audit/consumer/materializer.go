package consumer

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/google/uuid"

	"rosterlink/internal/platform/kafka/consumer"
	audit "rosterlink/pkg/platform/audit"
	kafkastore "rosterlink/pkg/platform/audit/store/kafka"
)

// Materializer writes consumed audit events into a queryable store.
// Malformed payloads are logged and committed; store failures are returned
// so the record is not committed.
type Materializer struct {
	store  audit.Store
	logger *slog.Logger
}

func NewMaterializer(store audit.Store, logger *slog.Logger) *Materializer {
	return &Materializer{store: store, logger: logger}
}

func (m *Materializer) Handle(ctx context.Context, msg *consumer.Message) error {
	var event audit.Event
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		m.logger.WarnContext(ctx, "failed to unmarshal audit payload",
			"topic", msg.Topic,
			"offset", msg.Offset,
			"error", err,
		)
		return nil
	}
	if event.ID == uuid.Nil || event.RunID == "" {
		m.logger.WarnContext(ctx, "audit payload without id or run id, skipping",
			"topic", msg.Topic,
			"offset", msg.Offset,
		)
		return nil
	}
	if event.Category == "" {
		event.Category = audit.EventCategory(msg.Headers[kafkastore.CategoryHeader])
	}
	return m.store.Append(ctx, event)
}
