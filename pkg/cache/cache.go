// Package cache provides a Redis-backed JSON cache for read-heavy query
// results. A nil client disables caching entirely; every lookup then
// falls through to the caller's query path.
package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache wraps a Redis client. The zero-value-like disabled form is
// obtained by passing a nil client to New.
type Cache struct {
	rdb     *redis.Client
	enabled bool
}

// New creates a cache over rdb. rdb may be nil to disable caching.
func New(rdb *redis.Client) *Cache {
	return &Cache{rdb: rdb, enabled: rdb != nil}
}

// Connect dials Redis at addr and returns an enabled cache, or a
// disabled cache when addr is empty.
func Connect(ctx context.Context, addr string) (*Cache, error) {
	if addr == "" {
		return New(nil), nil
	}
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, err
	}
	return New(rdb), nil
}

// Enabled reports whether a Redis backend is configured.
func (c *Cache) Enabled() bool {
	return c.enabled
}

// GetJSON unmarshals the cached value at key into dest. The second
// return value is false on miss, on a disabled cache, and on any Redis
// or decode error; cache failures never propagate to the caller.
func (c *Cache) GetJSON(ctx context.Context, key string, dest interface{}) (bool, error) {
	if !c.enabled {
		return false, nil
	}
	raw, err := c.rdb.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		// Stale encoding; drop it and treat as a miss.
		_ = c.rdb.Del(ctx, key).Err()
		return false, nil
	}
	return true, nil
}

// SetJSON stores value at key with a TTL.
func (c *Cache) SetJSON(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if !c.enabled {
		return nil
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, key, raw, ttl).Err()
}

// Invalidate removes keys from the cache.
func (c *Cache) Invalidate(ctx context.Context, keys ...string) {
	if !c.enabled || len(keys) == 0 {
		return
	}
	_ = c.rdb.Del(ctx, keys...).Err()
}

// Close releases the Redis client.
func (c *Cache) Close() error {
	if c.rdb == nil {
		return nil
	}
	return c.rdb.Close()
}
