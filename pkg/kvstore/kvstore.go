// Package kvstore provides atomic key counters and a small byte cache, backed by
// Redis in production and by process memory in development and tests.
package kvstore

import (
	"context"
	"encoding/json"
	"time"
)

type Counter interface {
	// Incr atomically increments key and returns the new value. The key expires
	// window after its first increment, so the count is per fixed window.
	Incr(ctx context.Context, key string, window time.Duration) (int64, error)
}

type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

type Store interface {
	Counter
	Cache
}

// GetJSON decodes a cached value into dst. found is false on a miss.
func GetJSON(ctx context.Context, c Cache, key string, dst interface{}) (bool, error) {
	b, ok, err := c.Get(ctx, key)
	if err != nil || !ok {
		return false, err
	}
	if err := json.Unmarshal(b, dst); err != nil {
		return false, err
	}
	return true, nil
}

func SetJSON(ctx context.Context, c Cache, key string, v interface{}, ttl time.Duration) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.Set(ctx, key, b, ttl)
}
