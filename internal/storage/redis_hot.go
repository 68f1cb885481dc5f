package storage

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisHotStore implements HotStore against a real Redis server — the
// external cache server the spec allows for the hot tier (§4.D). TTL=0
// means no expiry, matching go-redis's own convention for `series:meta:*`
// keys which never expire.
type RedisHotStore struct {
	client *redis.Client
}

func NewRedisHotStore(addr string) *RedisHotStore {
	return &RedisHotStore{client: redis.NewClient(&redis.Options{Addr: addr})}
}

func (r *RedisHotStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := r.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return val, true, nil
}

func (r *RedisHotStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return r.client.Set(ctx, key, value, ttl).Err()
}

// Close releases the underlying connection pool, called once at shutdown
// by the top-level runtime (§9's explicit init/teardown note).
func (r *RedisHotStore) Close() error { return r.client.Close() }
