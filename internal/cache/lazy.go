package cache

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Lazy defers the availability probe of a backend to its first use and then
// fixes the outcome for the process lifetime. An unreachable backend is
// replaced by Null, so a cache outage costs one probe rather than one
// timeout per request.
type Lazy struct {
	backend Cache
	timeout time.Duration
	logger  *slog.Logger

	mu     sync.Mutex
	probed bool
	active Cache
}

var _ Cache = (*Lazy)(nil)

// DefaultCheckTimeout bounds the availability check when NewLazy is given
// no timeout.
const DefaultCheckTimeout = 5 * time.Second

// NewLazy wraps backend. timeout bounds the availability check; zero means
// DefaultCheckTimeout.
func NewLazy(backend Cache, timeout time.Duration, logger *slog.Logger) *Lazy {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = DefaultCheckTimeout
	}
	return &Lazy{backend: backend, timeout: timeout, logger: logger}
}

func (l *Lazy) current(ctx context.Context) Cache {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.probed {
		l.probeLocked(ctx)
	}
	return l.active
}

func (l *Lazy) probeLocked(ctx context.Context) {
	start := time.Now()
	// The outcome outlives the caller, so the check ignores its cancellation.
	checkCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), l.timeout)
	defer cancel()
	if l.backend != nil && l.backend.Available(checkCtx) {
		l.active = l.backend
		l.logger.Info("cache backend available", "probe_duration", time.Since(start))
	} else {
		l.active = Null{}
		l.logger.Warn("cache backend unavailable, caching disabled", "probe_duration", time.Since(start))
	}
	l.probed = true
}

// Reprobe re-runs the availability probe and reports the new outcome.
func (l *Lazy) Reprobe(ctx context.Context) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.probeLocked(ctx)
	_, isNull := l.active.(Null)
	return !isNull
}

func (l *Lazy) Get(ctx context.Context, key string) ([]byte, bool) {
	return l.current(ctx).Get(ctx, key)
}

func (l *Lazy) Set(ctx context.Context, key string, value []byte, ttl time.Duration) {
	l.current(ctx).Set(ctx, key, value, ttl)
}

func (l *Lazy) Delete(ctx context.Context, key string) {
	l.current(ctx).Delete(ctx, key)
}

func (l *Lazy) DeletePrefix(ctx context.Context, prefix string) int {
	return l.current(ctx).DeletePrefix(ctx, prefix)
}

// Available reports the probed outcome without contacting the backend again.
func (l *Lazy) Available(ctx context.Context) bool {
	_, isNull := l.current(ctx).(Null)
	return !isNull
}

// Close closes the backend when it holds resources.
func (l *Lazy) Close() error {
	if c, ok := l.backend.(interface{ Close() error }); ok {
		return c.Close()
	}
	return nil
}
