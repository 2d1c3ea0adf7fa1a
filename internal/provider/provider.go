package provider

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"rosterlink/internal/identity"
	pkgstrings "rosterlink/pkg/platform/strings"
)

// Operator is a column-level predicate that carries no value.
type Operator string

const (
	// OpNotNull keeps rows whose column is non-null.
	OpNotNull Operator = "notnull"
)

// Query is the descriptor a provider answers.
type Query struct {
	// Dataset identifies the data type: a table, a file stem, a seeded name.
	Dataset string
	// Filters are column equality predicates.
	Filters map[string]string
	// Operators are value-less predicates per column.
	Operators map[string]Operator
	// Columns is the projection. Empty means every column.
	Columns []string
}

// Normalized trims and deduplicates the projection.
func (q Query) Normalized() Query {
	q.Columns = pkgstrings.DedupeAndTrim(q.Columns)
	return q
}

// Validate rejects queries no provider can answer.
func (q Query) Validate() error {
	if q.Dataset == "" {
		return fmt.Errorf("%w: dataset is required", ErrInvalidQuery)
	}
	for col, op := range q.Operators {
		if op != OpNotNull {
			return fmt.Errorf("%w: %q on column %q", ErrUnsupportedOperator, op, col)
		}
	}
	return nil
}

// Provider answers queries with a table snapshot. Implementations return only
// requested columns that exist; a missing optional column is not an error.
type Provider interface {
	// ID returns a unique identifier for this provider instance
	ID() string

	// Fetch runs the query and returns the resulting snapshot.
	Fetch(ctx context.Context, q Query) (*identity.Table, error)

	// Health checks if the underlying source is reachable
	Health(ctx context.Context) error
}

// Registry maintains all registered providers.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider
}

// NewRegistry creates a new empty registry.
func NewRegistry() *Registry {
	return &Registry{
		providers: make(map[string]Provider),
	}
}

// Register adds a provider to the registry.
func (r *Registry) Register(p Provider) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := p.ID()
	if _, exists := r.providers[id]; exists {
		return fmt.Errorf("%w: %s", ErrProviderRegistered, id)
	}
	r.providers[id] = p
	return nil
}

// Get retrieves a provider by ID.
func (r *Registry) Get(id string) (Provider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[id]
	return p, ok
}

// IDs returns the registered provider IDs, sorted.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.providers))
	for id := range r.providers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Fetch routes the query to the named provider.
func (r *Registry) Fetch(ctx context.Context, providerID string, q Query) (*identity.Table, error) {
	p, ok := r.Get(providerID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrProviderNotFound, providerID)
	}
	return p.Fetch(ctx, q)
}

// Health checks every registered provider and returns the failures by ID.
func (r *Registry) Health(ctx context.Context) map[string]error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	failures := make(map[string]error)
	for id, p := range r.providers {
		if err := p.Health(ctx); err != nil {
			failures[id] = err
		}
	}
	return failures
}
