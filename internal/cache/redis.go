package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisConfig holds connection settings for the Redis backend.
type RedisConfig struct {
	Host     string
	Port     int
	DB       int
	Password string
	Timeout  time.Duration // dial, read and write timeout
}

// Redis is the Redis-backed Cache.
type Redis struct {
	client *redis.Client
	logger *slog.Logger
}

var _ Cache = (*Redis)(nil)

// NewRedis creates the client without touching the network. Reachability is
// established by Available (see Lazy).
func NewRedis(cfg RedisConfig, logger *slog.Logger) *Redis {
	if logger == nil {
		logger = slog.Default()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	client := redis.NewClient(&redis.Options{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  timeout,
		ReadTimeout:  timeout,
		WriteTimeout: timeout,
	})
	return &Redis{client: client, logger: logger}
}

func (r *Redis) Get(ctx context.Context, key string) ([]byte, bool) {
	val, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false
	}
	if err != nil {
		r.logger.Warn("cache get failed", "key", key, "error", err)
		return nil, false
	}
	return val, true
}

func (r *Redis) Set(ctx context.Context, key string, value []byte, ttl time.Duration) {
	if err := r.client.Set(ctx, key, value, ttl).Err(); err != nil {
		r.logger.Warn("cache set failed", "key", key, "error", err)
	}
}

func (r *Redis) Delete(ctx context.Context, key string) {
	if err := r.client.Del(ctx, key).Err(); err != nil {
		r.logger.Warn("cache delete failed", "key", key, "error", err)
	}
}

// DeletePrefix walks the keyspace with SCAN so a large cache never blocks
// the server the way KEYS would.
func (r *Redis) DeletePrefix(ctx context.Context, prefix string) int {
	iter := r.client.Scan(ctx, 0, escapeGlob(prefix)+"*", 100).Iterator()

	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		r.logger.Warn("cache scan failed", "prefix", prefix, "error", err)
		return 0
	}
	if len(keys) == 0 {
		return 0
	}

	deleted, err := r.client.Del(ctx, keys...).Result()
	if err != nil {
		r.logger.Warn("cache prefix delete failed", "prefix", prefix, "error", err)
		return 0
	}
	return int(deleted)
}

// Available pings the server.
func (r *Redis) Available(ctx context.Context) bool {
	return r.client.Ping(ctx).Err() == nil
}

// Close releases the connection pool.
func (r *Redis) Close() error {
	return r.client.Close()
}

var globEscaper = strings.NewReplacer(`\`, `\\`, `*`, `\*`, `?`, `\?`, `[`, `\[`, `]`, `\]`)

func escapeGlob(s string) string {
	return globEscaper.Replace(s)
}
