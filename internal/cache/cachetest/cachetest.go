// Package cachetest starts throwaway Redis caches for tests.
package cachetest

import (
	"strconv"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"github.com/bull/docintel/internal/cache"
)

// NewRedis returns a cache backed by an in-process Redis server that is
// stopped when the test ends.
func NewRedis(t testing.TB) (*cache.Redis, *miniredis.Miniredis) {
	t.Helper()
	srv := miniredis.RunT(t)
	port, err := strconv.Atoi(srv.Port())
	if err != nil {
		t.Fatalf("miniredis port: %v", err)
	}
	c := cache.NewRedis(cache.RedisConfig{Host: srv.Host(), Port: port, Timeout: time.Second}, nil)
	t.Cleanup(func() { c.Close() })
	return c, srv
}
