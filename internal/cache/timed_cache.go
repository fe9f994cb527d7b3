package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// ErrMiss is returned by a Backend when the key is absent.
var ErrMiss = errors.New("cache: miss")

// Backend is the byte store under a TimedCache.
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

// entry is the stored form: the payload and its write time in unix ms.
type entry[T any] struct {
	Data T     `json:"data"`
	TS   int64 `json:"ts"`
}

// Result is a cache hit. Stale entries are still returned so callers can
// serve them while refreshing.
type Result[T any] struct {
	Value   T
	IsStale bool
	Age     time.Duration
}

// TimedCache stores JSON values with a write timestamp and reports staleness
// on read instead of evicting.
type TimedCache[T any] struct {
	backend Backend
	ttl     time.Duration
	now     func() time.Time
	log     zerolog.Logger
}

// New creates a TimedCache whose entries go stale after ttl.
func New[T any](backend Backend, ttl time.Duration, log zerolog.Logger) *TimedCache[T] {
	return &TimedCache[T]{
		backend: backend,
		ttl:     ttl,
		now:     time.Now,
		log:     log,
	}
}

// WithClock replaces the time source.
func (c *TimedCache[T]) WithClock(now func() time.Time) *TimedCache[T] {
	c.now = now
	return c
}


// Get returns the cached value or nil on a miss. An entry that cannot be
// decoded is treated as a miss.
func (c *TimedCache[T]) Get(ctx context.Context, key string) (*Result[T], error) {
	raw, err := c.backend.Get(ctx, key)
	if errors.Is(err, ErrMiss) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("cache get %s: %w", key, err)
	}

	var e entry[T]
	if err := json.Unmarshal(raw, &e); err != nil {
		c.log.Warn().Err(err).Str("key", key).Msg("Discarding unreadable cache entry")
		return nil, nil
	}

	age := max(c.now().Sub(time.UnixMilli(e.TS)), 0)
	return &Result[T]{
		Value:   e.Data,
		IsStale: age > c.ttl,
		Age:     age,
	}, nil
}

// Put stores value stamped with the current time.
func (c *TimedCache[T]) Put(ctx context.Context, key string, value T) error {
	raw, err := json.Marshal(entry[T]{Data: value, TS: c.now().UnixMilli()})
	if err != nil {
		return fmt.Errorf("cache encode %s: %w", key, err)
	}
	if err := c.backend.Set(ctx, key, raw); err != nil {
		return fmt.Errorf("cache put %s: %w", key, err)
	}
	return nil
}

// Invalidate removes key.
func (c *TimedCache[T]) Invalidate(ctx context.Context, key string) error {
	if err := c.backend.Delete(ctx, key); err != nil {
		return fmt.Errorf("cache delete %s: %w", key, err)
	}
	return nil
}
