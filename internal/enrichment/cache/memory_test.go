package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rosterlink/pkg/platform/sentinel"
)

func TestInMemory(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	store := NewInMemory(WithClock(func() time.Time { return now }))

	_, err := store.Get(ctx, "missing")
	assert.ErrorIs(t, err, sentinel.ErrNotFound)

	value := []byte(`{"a":1}`)
	require.NoError(t, store.Set(ctx, "k", value, time.Minute))
	value[0] = 'x'

	got, err := store.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, string(got), "stored bytes are copied")

	now = now.Add(time.Minute)
	_, err = store.Get(ctx, "k")
	assert.ErrorIs(t, err, sentinel.ErrNotFound)

	require.NoError(t, store.Set(ctx, "k", value, time.Minute))
	require.NoError(t, store.Delete(ctx, "k"))
	_, err = store.Get(ctx, "k")
	assert.ErrorIs(t, err, sentinel.ErrNotFound)
}
