// Package cache is the best-effort read accelerator in front of the store.
//
// A Cache never returns errors. Backend failures degrade to a miss or a
// no-op and are logged, so callers always fall through to the store.
package cache

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"
)

// Cache is the capability every backend provides.
type Cache interface {
	// Get returns the stored bytes, or false on miss or failure.
	Get(ctx context.Context, key string) ([]byte, bool)
	// Set stores value with a time-to-live. Failures are swallowed.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration)
	Delete(ctx context.Context, key string)
	// DeletePrefix removes every key starting with prefix and returns how many went.
	DeletePrefix(ctx context.Context, prefix string) int
	// Available reports whether the backend is serving requests.
	Available(ctx context.Context) bool
}

// Null is the cache used when no backend is configured or reachable:
// every read misses and every write is discarded.
type Null struct{}

var _ Cache = Null{}

func (Null) Get(context.Context, string) ([]byte, bool) { return nil, false }
func (Null) Set(context.Context, string, []byte, time.Duration) {}
func (Null) Delete(context.Context, string) {}
func (Null) DeletePrefix(context.Context, string) int { return 0 }
func (Null) Available(context.Context) bool { return false }

// GetJSON decodes a cached JSON value into dst. A value that no longer
// decodes is treated as a miss.
func GetJSON(ctx context.Context, c Cache, key string, dst any) bool {
	raw, ok := c.Get(ctx, key)
	if !ok {
		return false
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		slog.Default().Warn("discarding undecodable cache entry", "key", key, "error", err)
		return false
	}
	return true
}

// SetJSON encodes value as JSON and stores it.
func SetJSON(ctx context.Context, c Cache, key string, value any, ttl time.Duration) {
	raw, err := json.Marshal(value)
	if err != nil {
		slog.Default().Warn("cache value not encodable", "key", key, "error", err)
		return
	}
	c.Set(ctx, key, raw, ttl)
}
