// Package cache memoizes expensive computations behind a TTL store. One
// computation per key is in flight at a time; concurrent callers share it.
package cache

import (
	"context"
	"time"
)

// Store holds encoded values with a time to live. Get returns
// sentinel.ErrNotFound for a missing or expired key.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}
