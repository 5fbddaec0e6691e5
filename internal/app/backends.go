package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/bull/docintel/internal/cache"
	"github.com/bull/docintel/internal/config"
	"github.com/bull/docintel/internal/model"
	"github.com/bull/docintel/internal/storage"
)

// OpenStore connects to the configured store. Qdrant collections are
// created when missing; Postgres migrates its schema on connect.
func OpenStore(ctx context.Context, cfg config.StoreConfig, logger *slog.Logger) (storage.Store, error) {
	switch cfg.Backend {
	case config.StoreMemory:
		logger.Warn("Using in-memory store, data is lost on exit")
		return storage.NewMemoryStore(), nil

	case config.StoreQdrant:
		qs, err := storage.NewQdrantStorage(cfg.QdrantHost, cfg.QdrantPort)
		if err != nil {
			return nil, fmt.Errorf("connect to qdrant at %s:%d: %w", cfg.QdrantHost, cfg.QdrantPort, err)
		}
		if err := qs.EnsureCollections(ctx); err != nil {
			qs.Close()
			return nil, fmt.Errorf("ensure qdrant collections: %w", err)
		}
		logger.Info("Connected to Qdrant", "host", cfg.QdrantHost, "port", cfg.QdrantPort)
		return qs, nil

	case config.StorePostgres:
		ps, err := storage.NewPostgresStorage(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("connect to postgres: %w", err)
		}
		logger.Info("Connected to Postgres")
		return ps, nil

	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
}

// OpenCache returns the Redis cache behind a lazy availability probe, or
// the null cache when caching is disabled. The connection is not attempted
// here.
func OpenCache(cfg config.CacheConfig, logger *slog.Logger) cache.Cache {
	if !cfg.Enabled {
		logger.Info("Cache disabled")
		return cache.Null{}
	}
	redis := cache.NewRedis(cache.RedisConfig{
		Host:     cfg.Host,
		Port:     cfg.Port,
		DB:       cfg.DB,
		Password: cfg.Password,
		Timeout:  cfg.Timeout,
	}, logger)
	return cache.NewLazy(redis, cfg.Timeout, logger)
}

// NewModel builds the guarded model service. Backends are constructed
// lazily, once, on the first call that needs them.
func NewModel(cfg config.ModelConfig, logger *slog.Logger) (model.Service, error) {
	summarizer, err := newSummarizer(cfg)
	if err != nil {
		return nil, err
	}
	embedder, err := newEmbedder(cfg)
	if err != nil {
		return nil, err
	}

	return model.Guard(model.Combine(summarizer, embedder), model.GuardOptions{
		Timeout: cfg.Timeout,
		Limiter: model.NewLimiter(cfg.RateLimit, cfg.RateBurst),
		Logger:  logger,
	}), nil
}

func openAIConfig(cfg config.ModelConfig) model.OpenAIConfig {
	return model.OpenAIConfig{
		APIKey:         cfg.OpenAI.APIKey,
		BaseURL:        cfg.OpenAI.BaseURL,
		ChatModel:      cfg.OpenAI.ChatModel,
		EmbeddingModel: cfg.OpenAI.EmbeddingModel,
	}
}

func ollamaConfig(cfg config.ModelConfig) model.OllamaConfig {
	return model.OllamaConfig{
		Host:           cfg.Ollama.Host,
		SummaryModel:   cfg.Ollama.SummaryModel,
		EmbeddingModel: cfg.Ollama.EmbeddingModel,
	}
}

func newSummarizer(cfg config.ModelConfig) (model.Summarizer, error) {
	switch cfg.Summarizer {
	case config.ModelOpenAI:
		return model.NewLazySummarizer(func() (model.Summarizer, error) {
			return model.NewOpenAI(openAIConfig(cfg))
		}), nil
	case config.ModelOllama:
		return model.NewLazySummarizer(func() (model.Summarizer, error) {
			return model.NewOllama(ollamaConfig(cfg))
		}), nil
	case config.ModelExtractive:
		return model.NewExtractive(), nil
	default:
		return nil, fmt.Errorf("unknown summarizer backend %q", cfg.Summarizer)
	}
}

func newEmbedder(cfg config.ModelConfig) (model.Embedder, error) {
	switch cfg.Embedder {
	case config.ModelOpenAI:
		name := cfg.OpenAI.EmbeddingModel
		if name == "" {
			name = model.DefaultOpenAIEmbeddingModel
		}
		return model.NewLazyEmbedder(name, func() (model.Embedder, error) {
			return model.NewOpenAI(openAIConfig(cfg))
		}), nil
	case config.ModelOllama:
		name := cfg.Ollama.EmbeddingModel
		if name == "" {
			name = model.DefaultOllamaEmbeddingModel
		}
		return model.NewLazyEmbedder(name, func() (model.Embedder, error) {
			return model.NewOllama(ollamaConfig(cfg))
		}), nil
	default:
		return nil, fmt.Errorf("unknown embedder backend %q", cfg.Embedder)
	}
}
