// Package app assembles the docintel object graph from configuration. Both
// binaries build an App and use its services.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/bull/docintel/internal/cache"
	"github.com/bull/docintel/internal/config"
	"github.com/bull/docintel/internal/documents"
	"github.com/bull/docintel/internal/enrich"
	"github.com/bull/docintel/internal/model"
	"github.com/bull/docintel/internal/search"
	"github.com/bull/docintel/internal/storage"
	"github.com/bull/docintel/internal/summarize"
)

// App holds the long-lived services.
type App struct {
	Config    *config.Config
	Logger    *slog.Logger
	Store     storage.Store
	Cache     cache.Cache
	Policy    cache.Policy
	Model     model.Service
	Enricher  *enrich.Orchestrator
	Pool      *enrich.Pool
	Search    *search.Engine
	Documents *documents.Service
}

// New opens the configured store, cache and model backends and wires the
// services on top of them. Model backends are constructed on first use, so a
// missing API key surfaces as a failed enrichment rather than a startup error.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}

	store, err := OpenStore(ctx, cfg.Store, logger)
	if err != nil {
		return nil, err
	}

	svc, err := NewModel(cfg.Model, logger)
	if err != nil {
		store.Close()
		return nil, err
	}

	return Build(cfg, logger, store, OpenCache(cfg.Cache, logger), svc), nil
}

// Build wires the services around already constructed dependencies.
func Build(cfg *config.Config, logger *slog.Logger, store storage.Store, c cache.Cache, svc model.Service) *App {
	if logger == nil {
		logger = slog.Default()
	}
	if c == nil {
		c = cache.Null{}
	}

	policy := cache.DefaultPolicy()
	if cfg.Cache.TTL > 0 {
		policy.Search = cfg.Cache.TTL
	}

	summarizer := summarize.New(svc, c, policy.Summary, logger)
	orch := enrich.NewOrchestrator(store, summarizer, svc, c, logger)
	pool := enrich.NewPool(orch, enrich.PoolConfig{
		Workers:   cfg.Enrich.Workers,
		QueueSize: cfg.Enrich.QueueSize,
	}, logger)

	return &App{
		Config:    cfg,
		Logger:    logger,
		Store:     store,
		Cache:     c,
		Policy:    policy,
		Model:     svc,
		Enricher:  orch,
		Pool:      pool,
		Search:    search.NewEngine(store, svc, c, policy, logger),
		Documents: documents.NewService(store, pool, c, policy, logger),
	}
}

// Close drains the enrichment pool within the configured shutdown timeout,
// then releases the store and cache connections.
func (a *App) Close(ctx context.Context) error {
	if a.Config.Enrich.ShutdownTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.Config.Enrich.ShutdownTimeout)
		defer cancel()
	}

	var errs []error
	if err := a.Pool.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("drain enrichment: %w", err))
	}
	if closer, ok := a.Cache.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close cache: %w", err))
		}
	}
	if err := a.Store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close store: %w", err))
	}
	return errors.Join(errs...)
}
