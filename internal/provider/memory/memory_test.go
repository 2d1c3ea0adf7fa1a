package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rosterlink/internal/identity"
	"rosterlink/internal/provider"
)

func TestProvider_Fetch(t *testing.T) {
	p := New("")
	assert.Equal(t, DefaultID, p.ID())

	p.Seed("hr", &identity.Table{
		Name:    "hr",
		Columns: []string{"smtp", "full_name"},
		Rows:    []identity.Row{{"smtp": "a@x.com", "full_name": "Alice"}},
	})

	out, err := p.Fetch(context.Background(), provider.Query{Dataset: "hr", Columns: []string{"smtp"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"smtp"}, out.Columns)
	assert.Equal(t, identity.Row{"smtp": "a@x.com"}, out.Rows[0])
}

func TestProvider_UnknownDataset(t *testing.T) {
	_, err := New("seed").Fetch(context.Background(), provider.Query{Dataset: "hr"})
	require.Error(t, err)
	assert.Equal(t, provider.ErrorNotFound, provider.GetCategory(err))
}

func TestProvider_CancelledContext(t *testing.T) {
	p := New("")
	p.Seed("hr", &identity.Table{Name: "hr"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.Fetch(ctx, provider.Query{Dataset: "hr"})
	assert.False(t, errors.Is(err, provider.ErrProviderUnavailable), "cancellation is not an outage")
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Equal(t, provider.ErrorCanceled, provider.GetCategory(err))

	ctx, cancel = context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel()
	_, err = p.Fetch(ctx, provider.Query{Dataset: "hr"})
	assert.True(t, errors.Is(err, provider.ErrProviderUnavailable))
	assert.Equal(t, provider.ErrorTimeout, provider.GetCategory(err))
}
