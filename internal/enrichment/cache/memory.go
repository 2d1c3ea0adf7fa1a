package cache

import (
	"context"
	"sync"
	"time"

	"rosterlink/pkg/platform/sentinel"
)

type entry struct {
	value   []byte
	expires time.Time
}

// InMemory is a process-local Store. Expired entries are dropped lazily on read.
type InMemory struct {
	mu      sync.Mutex
	entries map[string]entry
	now     func() time.Time
}

type MemoryOption func(*InMemory)

// WithClock overrides time.Now for tests.
func WithClock(now func() time.Time) MemoryOption {
	return func(m *InMemory) {
		m.now = now
	}
}

func NewInMemory(opts ...MemoryOption) *InMemory {
	m := &InMemory{entries: make(map[string]entry), now: time.Now}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *InMemory) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	if !m.now().Before(e.expires) {
		delete(m.entries, key)
		return nil, sentinel.ErrNotFound
	}
	return append([]byte(nil), e.value...), nil
}

func (m *InMemory) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = entry{value: append([]byte(nil), value...), expires: m.now().Add(ttl)}
	return nil
}

func (m *InMemory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
	return nil
}
