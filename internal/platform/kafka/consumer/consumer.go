package consumer

import (
	"context"
	"errors"
	"io"
	"log/slog"

	"github.com/twmb/franz-go/pkg/kgo"
)

// Message is the transport-neutral view of a consumed record.
type Message struct {
	Topic     string
	Partition int32
	Offset    int64
	Key       []byte
	Value     []byte
	Headers   map[string]string
}

// Handler processes one message. A failed record is logged and skipped;
// offsets are committed up to the last handled record of each partition.
type Handler interface {
	Handle(ctx context.Context, msg *Message) error
}

type HandlerFunc func(ctx context.Context, msg *Message) error

func (f HandlerFunc) Handle(ctx context.Context, msg *Message) error { return f(ctx, msg) }

// Consumer polls a group-consuming client and commits handled records.
// The client must be built with kgo.ConsumerGroup and kgo.DisableAutoCommit.
type Consumer struct {
	client  *kgo.Client
	handler Handler
	logger  *slog.Logger
}

func New(client *kgo.Client, handler Handler, logger *slog.Logger) *Consumer {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Consumer{client: client, handler: handler, logger: logger}
}

// Run consumes until ctx is cancelled or the client is closed.
func (c *Consumer) Run(ctx context.Context) error {
	for {
		fetches := c.client.PollFetches(ctx)
		if fetches.IsClientClosed() {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		fetches.EachError(func(topic string, partition int32, err error) {
			if errors.Is(err, context.Canceled) {
				return
			}
			c.logger.ErrorContext(ctx, "kafka fetch failed",
				"topic", topic,
				"partition", partition,
				"error", err,
			)
		})

		var handled []*kgo.Record
		fetches.EachRecord(func(record *kgo.Record) {
			if err := c.handler.Handle(ctx, toMessage(record)); err != nil {
				c.logger.ErrorContext(ctx, "failed to handle kafka message",
					"topic", record.Topic,
					"partition", record.Partition,
					"offset", record.Offset,
					"error", err,
				)
				return
			}
			handled = append(handled, record)
		})
		if len(handled) == 0 {
			continue
		}
		if err := c.client.CommitRecords(ctx, handled...); err != nil && ctx.Err() == nil {
			c.logger.ErrorContext(ctx, "failed to commit kafka offsets", "error", err)
		}
	}
}

func toMessage(record *kgo.Record) *Message {
	msg := &Message{
		Topic:     record.Topic,
		Partition: record.Partition,
		Offset:    record.Offset,
		Key:       record.Key,
		Value:     record.Value,
		Headers:   make(map[string]string, len(record.Headers)),
	}
	for _, h := range record.Headers {
		msg.Headers[h.Key] = string(h.Value)
	}
	return msg
}
