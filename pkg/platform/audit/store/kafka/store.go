// Package kafka publishes audit events to a Kafka topic. Events are keyed by
// run ID so one run's events stay ordered within a partition.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"

	audit "rosterlink/pkg/platform/audit"
)

// CategoryHeader carries the event category so consumers can route
// without decoding the payload.
const CategoryHeader = "category"

// Publisher is satisfied by internal/platform/kafka/producer.Producer.
type Publisher interface {
	Publish(ctx context.Context, topic string, key, value []byte, headers map[string]string) error
}

type Store struct {
	publisher Publisher
	topic     string
}

func New(publisher Publisher, topic string) *Store {
	return &Store{publisher: publisher, topic: topic}
}

func (s *Store) Append(ctx context.Context, event audit.Event) error {
	if event.Category == "" {
		event.Category = audit.AuditEvent(event.Action).Category()
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal audit event: %w", err)
	}
	headers := map[string]string{CategoryHeader: string(event.Category)}
	if err := s.publisher.Publish(ctx, s.topic, []byte(event.RunID), payload, headers); err != nil {
		return fmt.Errorf("publish audit event: %w", err)
	}
	return nil
}
