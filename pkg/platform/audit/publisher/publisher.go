// Package publisher fronts an audit store. In sync mode Emit writes through;
// with WithAsyncBuffer events are queued and persisted by one background
// goroutine, and Close drains the queue.
package publisher

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	audit "rosterlink/pkg/platform/audit"
	"rosterlink/pkg/requestcontext"
)

var (
	ErrBufferFull      = errors.New("audit buffer full")
	ErrClosed          = errors.New("audit publisher closed")
	ErrListUnsupported = errors.New("audit store cannot list events")
)

type Publisher struct {
	store  audit.Store
	logger *slog.Logger

	buffer int
	queue  chan audit.Event
	wg     sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

type Option func(*Publisher)

// WithAsyncBuffer queues up to size events; Emit fails with ErrBufferFull
// instead of blocking when the queue is full.
func WithAsyncBuffer(size int) Option {
	return func(p *Publisher) {
		p.buffer = size
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) {
		p.logger = logger
	}
}

func NewPublisher(store audit.Store, opts ...Option) *Publisher {
	p := &Publisher{
		store:  store,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.buffer > 0 {
		p.queue = make(chan audit.Event, p.buffer)
		p.wg.Add(1)
		go p.run()
	}
	return p
}

// Emit fills ID, Timestamp and Category when unset and hands the event to the store.
func (p *Publisher) Emit(ctx context.Context, event audit.Event) error {
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = requestcontext.Now(ctx)
	}
	if event.Category == "" {
		event.Category = audit.AuditEvent(event.Action).Category()
	}
	if event.RequestID == "" {
		event.RequestID = requestcontext.RequestID(ctx)
	}

	if p.queue == nil {
		return p.store.Append(ctx, event)
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrClosed
	}
	select {
	case p.queue <- event:
		return nil
	default:
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return ErrBufferFull
}

// List returns the events of one run when the store supports reading.
func (p *Publisher) List(ctx context.Context, runID string) ([]audit.Event, error) {
	lister, ok := p.store.(audit.Lister)
	if !ok {
		return nil, ErrListUnsupported
	}
	return lister.ListByRun(ctx, runID)
}

// Close stops accepting events and waits for queued ones to be persisted.
func (p *Publisher) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	if p.queue != nil {
		close(p.queue)
	}
	p.mu.Unlock()
	p.wg.Wait()
}

func (p *Publisher) run() {
	defer p.wg.Done()
	for event := range p.queue {
		if err := p.store.Append(context.Background(), event); err != nil {
			p.logger.Error("failed to persist audit event",
				"action", event.Action,
				"run_id", event.RunID,
				"error", err,
			)
		}
	}
}
