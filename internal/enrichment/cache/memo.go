package cache

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"rosterlink/pkg/platform/sentinel"
)

// DefaultComputeTimeout bounds a shared computation once no caller's
// context governs it.
const DefaultComputeTimeout = 2 * time.Minute

// Memo caches the JSON encoding of T. Every caller decodes its own copy,
// so cached values are never shared or mutated.
//
// Values round-trip through JSON even on a miss, so every caller sees the
// same shapes: numbers inside interface values decode as json.Number (exact,
// but not int64 or float64) and time.Time inside interface values becomes an
// RFC 3339 string. Typed struct fields keep their types.
type Memo[T any] struct {
	store   Store
	ttl     time.Duration
	timeout time.Duration
	group   singleflight.Group
	logger  *slog.Logger
}

type MemoOption func(*memoOptions)

type memoOptions struct {
	logger  *slog.Logger
	timeout time.Duration
}

func WithLogger(logger *slog.Logger) MemoOption {
	return func(o *memoOptions) {
		o.logger = logger
	}
}

// WithComputeTimeout overrides DefaultComputeTimeout.
func WithComputeTimeout(d time.Duration) MemoOption {
	return func(o *memoOptions) {
		o.timeout = d
	}
}

func NewMemo[T any](store Store, ttl time.Duration, opts ...MemoOption) *Memo[T] {
	o := memoOptions{
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		timeout: DefaultComputeTimeout,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return &Memo[T]{store: store, ttl: ttl, timeout: o.timeout, logger: o.logger}
}

// Do returns the cached value for key or computes it with fn. hit reports
// whether the value came from the store. Computation errors are not cached.
// A failing store degrades to computing on every call.
//
// Concurrent callers share one computation. It runs detached from any one
// caller's cancellation, bounded by the compute timeout, and each caller
// stops waiting when its own ctx is done.
func (m *Memo[T]) Do(ctx context.Context, key string, fn func(ctx context.Context) (T, error)) (value T, hit bool, err error) {
	if data, err := m.store.Get(ctx, key); err == nil {
		if err := decode(data, &value); err == nil {
			return value, true, nil
		}
		m.logger.WarnContext(ctx, "discarding undecodable cache entry", "key", key)
	} else if !errors.Is(err, sentinel.ErrNotFound) {
		m.logger.WarnContext(ctx, "cache read failed", "key", key, "error", err)
	}

	ch := m.group.DoChan(key, func() (any, error) {
		cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.timeout)
		defer cancel()

		v, err := fn(cctx)
		if err != nil {
			return nil, err
		}
		data, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("encode cache value: %w", err)
		}
		if err := m.store.Set(cctx, key, data, m.ttl); err != nil {
			m.logger.WarnContext(cctx, "cache write failed", "key", key, "error", err)
		}
		return data, nil
	})

	var zero T
	select {
	case <-ctx.Done():
		return zero, false, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return zero, false, res.Err
		}
		var out T
		if err := decode(res.Val.([]byte), &out); err != nil {
			return zero, false, fmt.Errorf("decode cache value: %w", err)
		}
		return out, false, nil
	}
}

func decode(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	return dec.Decode(v)
}

// Invalidate drops key so the next Do recomputes.
func (m *Memo[T]) Invalidate(ctx context.Context, key string) error {
	return m.store.Delete(ctx, key)
}
