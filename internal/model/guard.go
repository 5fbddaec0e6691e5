package model

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/bull/docintel/internal/errs"
)

// GuardOptions bounds every model call.
type GuardOptions struct {
	Timeout time.Duration // per call; 0 disables
	Limiter *rate.Limiter // nil disables
	Logger  *slog.Logger
}

// Guarded wraps a Service with a per-call timeout, an optional rate limit and
// error classification. Errors from the backend come back wrapping
// errs.ErrModelFailure, except unavailability (ErrModelUnavailable) and
// cancellation of the caller's context, which are passed through unchanged.
type Guarded struct {
	next Service
	opts GuardOptions
}

// Guard decorates next.
func Guard(next Service, opts GuardOptions) *Guarded {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Guarded{next: next, opts: opts}
}

func (g *Guarded) Summarize(ctx context.Context, text string, maxWords int) (string, error) {
	var out string
	err := g.call(ctx, "summarize", func(ctx context.Context) error {
		var err error
		out, err = g.next.Summarize(ctx, text, maxWords)
		return err
	})
	return out, err
}

func (g *Guarded) Embed(ctx context.Context, text string) ([]float32, error) {
	var out []float32
	err := g.call(ctx, "embed", func(ctx context.Context) error {
		var err error
		out, err = g.next.Embed(ctx, text)
		return err
	})
	return out, err
}

func (g *Guarded) ModelName() string { return g.next.ModelName() }

func (g *Guarded) call(ctx context.Context, op string, fn func(context.Context) error) error {
	if g.opts.Limiter != nil {
		if err := g.opts.Limiter.Wait(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("%w: %s: rate limit: %v", errs.ErrModelFailure, op, err)
		}
	}

	callCtx := ctx
	if g.opts.Timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, g.opts.Timeout)
		defer cancel()
	}

	start := time.Now()
	err := fn(callCtx)
	if err == nil {
		g.opts.Logger.Debug("model call finished", "op", op, "duration", time.Since(start))
		return nil
	}

	switch {
	case ctx.Err() != nil:
		return ctx.Err()
	case errors.Is(err, errs.ErrDependencyUnavailable):
		return err
	case errors.Is(err, errs.ErrModelFailure):
		return err
	}
	g.opts.Logger.Warn("model call failed", "op", op, "duration", time.Since(start), "error", err)
	// %v drops the chain so a per-call deadline is not mistaken for the
	// caller's own cancellation.
	return fmt.Errorf("%w: %s: %v", errs.ErrModelFailure, op, err)
}

// NewLimiter builds a limiter for perSecond requests; perSecond <= 0 disables limiting.
func NewLimiter(perSecond float64, burst int) *rate.Limiter {
	if perSecond <= 0 {
		return nil
	}
	if burst <= 0 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(perSecond), burst)
}
