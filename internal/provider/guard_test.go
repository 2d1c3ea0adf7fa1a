package provider

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rosterlink/internal/identity"
	"rosterlink/pkg/platform/circuit"
)

type flakyProvider struct {
	calls int
	err   error
}

func (p *flakyProvider) ID() string { return "flaky" }

func (p *flakyProvider) Fetch(ctx context.Context, q Query) (*identity.Table, error) {
	p.calls++
	if err := ctx.Err(); err != nil {
		return nil, ContextError("flaky", q.Dataset, "context done", err)
	}
	if p.err != nil {
		return nil, p.err
	}
	return Select("flaky", employees(), q)
}

func (p *flakyProvider) Health(context.Context) error { return nil }

func TestGuard(t *testing.T) {
	ctx := context.Background()
	q := Query{Dataset: "employees"}

	t.Run("opens after consecutive outages and fails fast", func(t *testing.T) {
		src := &flakyProvider{err: NewError(ErrorOutage, "flaky", "employees", "connection refused", nil)}
		var transitions []bool
		g := Guard(src, circuit.New("flaky", circuit.WithFailureThreshold(2), circuit.WithCooldown(time.Hour)), nil).
			Observe(func(id string, open bool) {
				assert.Equal(t, "flaky", id)
				transitions = append(transitions, open)
			})

		for range 2 {
			_, err := g.Fetch(ctx, q)
			require.ErrorIs(t, err, ErrProviderUnavailable)
		}
		assert.Equal(t, circuit.StateOpen, g.State())
		assert.Equal(t, []bool{true}, transitions)

		_, err := g.Fetch(ctx, q)
		require.ErrorIs(t, err, ErrProviderUnavailable)
		assert.ErrorIs(t, err, ErrCircuitOpen)
		assert.Equal(t, 2, src.calls, "open circuit must not reach the source")
	})

	t.Run("bad data does not trip the breaker", func(t *testing.T) {
		src := &flakyProvider{err: NewError(ErrorBadData, "flaky", "employees", "bad row", nil)}
		g := Guard(src, circuit.New("flaky", circuit.WithFailureThreshold(1)), nil)

		_, err := g.Fetch(ctx, q)
		require.Error(t, err)
		assert.Equal(t, circuit.StateClosed, g.State())
	})

	t.Run("cancelled callers do not trip the breaker", func(t *testing.T) {
		src := &flakyProvider{}
		g := Guard(src, circuit.New("flaky", circuit.WithFailureThreshold(2), circuit.WithCooldown(time.Hour)), nil)

		cancelled, cancel := context.WithCancel(context.Background())
		cancel()
		for range 5 {
			_, err := g.Fetch(cancelled, q)
			require.ErrorIs(t, err, context.Canceled)
			assert.NotErrorIs(t, err, ErrProviderUnavailable)
		}
		assert.Equal(t, circuit.StateClosed, g.State())

		out, err := g.Fetch(ctx, q)
		require.NoError(t, err)
		assert.Len(t, out.Rows, 3)
		assert.Equal(t, 6, src.calls)
	})

	t.Run("an expired caller deadline is not held against the source", func(t *testing.T) {
		src := &flakyProvider{err: NewError(ErrorTimeout, "flaky", "employees", "query", context.DeadlineExceeded)}
		g := Guard(src, circuit.New("flaky", circuit.WithFailureThreshold(1), circuit.WithCooldown(time.Hour)), nil)

		expired, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
		defer cancel()
		for range 3 {
			_, err := g.Fetch(expired, q)
			require.ErrorIs(t, err, ErrProviderUnavailable)
		}
		assert.Equal(t, circuit.StateClosed, g.State())

		_, err := g.Fetch(ctx, q)
		require.ErrorIs(t, err, ErrProviderUnavailable)
		assert.Equal(t, circuit.StateOpen, g.State(), "a timeout on a live context still counts")
	})

	t.Run("passes results through", func(t *testing.T) {
		g := Guard(&flakyProvider{}, circuit.New("flaky"), nil)
		out, err := g.Fetch(ctx, q)
		require.NoError(t, err)
		assert.Len(t, out.Rows, 3)
		assert.Equal(t, "flaky", g.ID())
		assert.NoError(t, g.Health(ctx))
	})
}
