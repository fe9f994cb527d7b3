package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisBackend keeps cache entries in Redis. Retention is the hard expiry of
// a key and should be well above the cache TTL so stale data stays available.
// Zero retention keeps keys forever.
type RedisBackend struct {
	rdb       *redis.Client
	retention time.Duration
}

// NewRedisBackend creates a RedisBackend.
func NewRedisBackend(rdb *redis.Client, retention time.Duration) *RedisBackend {
	return &RedisBackend{rdb: rdb, retention: retention}
}

func (b *RedisBackend) Get(ctx context.Context, key string) ([]byte, error) {
	raw, err := b.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrMiss
	}
	return raw, err
}

func (b *RedisBackend) Set(ctx context.Context, key string, value []byte) error {
	return b.rdb.Set(ctx, key, value, b.retention).Err()
}

func (b *RedisBackend) Delete(ctx context.Context, key string) error {
	return b.rdb.Del(ctx, key).Err()
}
