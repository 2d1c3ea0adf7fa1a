package provider

import (
	"context"
	"errors"
	"io"
	"log/slog"

	"rosterlink/internal/identity"
	"rosterlink/pkg/platform/circuit"
)

// ErrCircuitOpen is the underlying error of fetches rejected by an open breaker.
var ErrCircuitOpen = errors.New("circuit open")

// Guarded fails fast while its source keeps being unavailable. Only
// outages and timeouts count as failures; bad data, a contract mismatch or a
// caller whose context is done says nothing about reachability.
type Guarded struct {
	next     Provider
	breaker  *circuit.Breaker
	logger   *slog.Logger
	observer func(providerID string, open bool)
}

// Guard wraps p with b. A nil logger discards.
func Guard(p Provider, b *circuit.Breaker, logger *slog.Logger) *Guarded {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Guarded{next: p, breaker: b, logger: logger}
}

// Observe registers fn to be told about every breaker transition.
func (g *Guarded) Observe(fn func(providerID string, open bool)) *Guarded {
	g.observer = fn
	return g
}

func (g *Guarded) notify(open bool) {
	if g.observer != nil {
		g.observer(g.next.ID(), open)
	}
}

func (g *Guarded) ID() string { return g.next.ID() }

func (g *Guarded) Fetch(ctx context.Context, q Query) (*identity.Table, error) {
	if !g.breaker.Allow() {
		return nil, NewError(ErrorOutage, g.next.ID(), q.Dataset, "source marked unavailable", ErrCircuitOpen)
	}
	table, err := g.next.Fetch(ctx, q)
	switch {
	case err == nil:
		if _, change := g.breaker.RecordSuccess(); change.Closed {
			g.logger.InfoContext(ctx, "provider circuit closed", "provider", g.next.ID())
			g.notify(false)
		}
	case ctx.Err() != nil:
		g.logger.DebugContext(ctx, "provider fetch abandoned by caller",
			"provider", g.next.ID(),
			"dataset", q.Dataset,
			"error", ctx.Err(),
		)
	case errors.Is(err, ErrProviderUnavailable):
		if _, change := g.breaker.RecordFailure(); change.Opened {
			g.logger.WarnContext(ctx, "provider circuit opened",
				"provider", g.next.ID(),
				"dataset", q.Dataset,
				"error", err,
			)
			g.notify(true)
		}
	}
	return table, err
}

func (g *Guarded) Health(ctx context.Context) error {
	return g.next.Health(ctx)
}

// State exposes the breaker state for metrics.
func (g *Guarded) State() circuit.State {
	return g.breaker.State()
}
