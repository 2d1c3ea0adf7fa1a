// Package memory serves seeded snapshots from process memory.
package memory

import (
	"context"
	"sync"

	"rosterlink/internal/identity"
	"rosterlink/internal/provider"
)

const DefaultID = "memory"

type Provider struct {
	id       string
	mu       sync.RWMutex
	datasets map[string]*identity.Table
}

// New creates an empty provider. An empty id uses DefaultID.
func New(id string) *Provider {
	if id == "" {
		id = DefaultID
	}
	return &Provider{id: id, datasets: make(map[string]*identity.Table)}
}

func (p *Provider) ID() string { return p.id }

// Seed stores table under dataset, replacing any previous snapshot.
func (p *Provider) Seed(dataset string, table *identity.Table) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.datasets[dataset] = table
}

func (p *Provider) Fetch(ctx context.Context, q provider.Query) (*identity.Table, error) {
	if err := ctx.Err(); err != nil {
		return nil, provider.ContextError(p.id, q.Dataset, "context done", err)
	}
	p.mu.RLock()
	table, ok := p.datasets[q.Dataset]
	p.mu.RUnlock()
	if !ok {
		return nil, provider.NewError(provider.ErrorNotFound, p.id, q.Dataset, "dataset not seeded", nil)
	}
	return provider.Select(p.id, table, q)
}

func (p *Provider) Health(context.Context) error { return nil }
