// Package config loads docintel settings: built-in defaults, then an
// optional YAML file, then environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Store backends.
const (
	StoreMemory   = "memory"
	StoreQdrant   = "qdrant"
	StorePostgres = "postgres"
)

// Model backends.
const (
	ModelOpenAI     = "openai"
	ModelOllama     = "ollama"
	ModelExtractive = "extractive" // summaries only
)

// LogConfig controls the slog handler.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text or json
}

// StoreConfig selects and configures the durable store.
type StoreConfig struct {
	Backend     string `yaml:"backend"`
	DatabaseURL string `yaml:"database_url"`
	QdrantHost  string `yaml:"qdrant_host"`
	QdrantPort  int    `yaml:"qdrant_port"`
}

// CacheConfig configures the Redis cache.
type CacheConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Host     string        `yaml:"host"`
	Port     int           `yaml:"port"`
	DB       int           `yaml:"db"`
	Password string        `yaml:"password"`
	TTL      time.Duration `yaml:"ttl"` // default search TTL
	Timeout  time.Duration `yaml:"timeout"`
}

// OpenAIConfig holds OpenAI credentials and model names.
type OpenAIConfig struct {
	APIKey         string `yaml:"api_key"`
	BaseURL        string `yaml:"base_url"`
	ChatModel      string `yaml:"chat_model"`
	EmbeddingModel string `yaml:"embedding_model"`
}

// OllamaConfig holds the Ollama server and model names.
type OllamaConfig struct {
	Host           string `yaml:"host"`
	SummaryModel   string `yaml:"summary_model"`
	EmbeddingModel string `yaml:"embedding_model"`
}

// ModelConfig selects the summarizer and embedder backends and bounds their calls.
type ModelConfig struct {
	Summarizer string        `yaml:"summarizer"`
	Embedder   string        `yaml:"embedder"`
	Timeout    time.Duration `yaml:"timeout"`
	RateLimit  float64       `yaml:"rate_limit"` // requests per second, 0 = unlimited
	RateBurst  int           `yaml:"rate_burst"`
	OpenAI     OpenAIConfig  `yaml:"openai"`
	Ollama     OllamaConfig  `yaml:"ollama"`
}

// EnrichConfig sizes the enrichment worker pool.
type EnrichConfig struct {
	Workers         int           `yaml:"workers"`
	QueueSize       int           `yaml:"queue_size"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// ServerConfig configures the MCP server binary.
type ServerConfig struct {
	Port       string `yaml:"port"`
	ServerMode bool   `yaml:"server_mode"` // HTTP transport instead of stdio
}

// GitHubConfig locates the repository directory imported by ingest-github.
type GitHubConfig struct {
	Token    string `yaml:"token"`
	Owner    string `yaml:"owner"`
	Repo     string `yaml:"repo"`
	BasePath string `yaml:"base_path"`
	Ref      string `yaml:"ref"` // branch, tag or SHA; empty = default branch
}

// Config is the root configuration.
type Config struct {
	Log    LogConfig    `yaml:"log"`
	Store  StoreConfig  `yaml:"store"`
	Cache  CacheConfig  `yaml:"cache"`
	Model  ModelConfig  `yaml:"model"`
	Enrich EnrichConfig `yaml:"enrich"`
	Server ServerConfig `yaml:"server"`
	GitHub GitHubConfig `yaml:"github"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Log: LogConfig{Level: "info", Format: "text"},
		Store: StoreConfig{
			Backend:    StoreQdrant,
			QdrantHost: "localhost",
			QdrantPort: 6334,
		},
		Cache: CacheConfig{
			Enabled: true,
			Host:    "localhost",
			Port:    6379,
			TTL:     time.Hour,
			Timeout: 5 * time.Second,
		},
		Model: ModelConfig{
			Summarizer: ModelOpenAI,
			Embedder:   ModelOpenAI,
			Timeout:    2 * time.Minute,
			RateBurst:  1,
		},
		Enrich: EnrichConfig{
			Workers:         4,
			QueueSize:       64,
			ShutdownTimeout: 30 * time.Second,
		},
		Server: ServerConfig{Port: "8080"},
	}
}

// Load builds the configuration. path may be empty; a missing file is not
// an error. Environment variables override the file.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("read config: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}
	if err := applyEnv(cfg, os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

type lookupFunc func(string) (string, bool)

// applyEnv overrides cfg from the environment. Empty values are ignored.
func applyEnv(cfg *Config, lookup lookupFunc) error {
	e := envReader{lookup: lookup}

	e.stringVar("LOG_LEVEL", &cfg.Log.Level)
	e.stringVar("LOG_FORMAT", &cfg.Log.Format)

	e.stringVar("STORE_BACKEND", &cfg.Store.Backend)
	e.stringVar("DATABASE_URL", &cfg.Store.DatabaseURL)
	e.stringVar("QDRANT_HOST", &cfg.Store.QdrantHost)
	e.intVar("QDRANT_PORT", &cfg.Store.QdrantPort)

	e.boolVar("CACHE_ENABLED", &cfg.Cache.Enabled)
	e.stringVar("REDIS_HOST", &cfg.Cache.Host)
	e.intVar("REDIS_PORT", &cfg.Cache.Port)
	e.intVar("REDIS_DB", &cfg.Cache.DB)
	e.stringVar("REDIS_PASSWORD", &cfg.Cache.Password)
	e.secondsVar("REDIS_CACHE_TTL", &cfg.Cache.TTL)
	e.secondsVar("REDIS_TIMEOUT", &cfg.Cache.Timeout)

	e.stringVar("MODEL_SUMMARIZER", &cfg.Model.Summarizer)
	e.stringVar("MODEL_EMBEDDER", &cfg.Model.Embedder)
	e.durationVar("MODEL_TIMEOUT", &cfg.Model.Timeout)
	e.floatVar("MODEL_RATE_LIMIT", &cfg.Model.RateLimit)
	e.intVar("MODEL_RATE_BURST", &cfg.Model.RateBurst)
	e.stringVar("OPENAI_API_KEY", &cfg.Model.OpenAI.APIKey)
	e.stringVar("OPENAI_BASE_URL", &cfg.Model.OpenAI.BaseURL)
	e.stringVar("OPENAI_CHAT_MODEL", &cfg.Model.OpenAI.ChatModel)
	e.stringVar("OPENAI_EMBEDDING_MODEL", &cfg.Model.OpenAI.EmbeddingModel)
	e.stringVar("OLLAMA_HOST", &cfg.Model.Ollama.Host)
	e.stringVar("OLLAMA_SUMMARY_MODEL", &cfg.Model.Ollama.SummaryModel)
	e.stringVar("OLLAMA_EMBEDDING_MODEL", &cfg.Model.Ollama.EmbeddingModel)

	e.intVar("ENRICH_WORKERS", &cfg.Enrich.Workers)
	e.intVar("ENRICH_QUEUE_SIZE", &cfg.Enrich.QueueSize)
	e.durationVar("SHUTDOWN_TIMEOUT", &cfg.Enrich.ShutdownTimeout)

	e.stringVar("PORT", &cfg.Server.Port)
	e.boolVar("SERVER_MODE", &cfg.Server.ServerMode)

	e.stringVar("GITHUB_TOKEN", &cfg.GitHub.Token)
	e.stringVar("GITHUB_OWNER", &cfg.GitHub.Owner)
	e.stringVar("GITHUB_REPO", &cfg.GitHub.Repo)
	e.stringVar("GITHUB_BASE_PATH", &cfg.GitHub.BasePath)
	e.stringVar("GITHUB_REF", &cfg.GitHub.Ref)

	return errors.Join(e.errs...)
}

type envReader struct {
	lookup lookupFunc
	errs   []error
}

func (e *envReader) get(key string) (string, bool) {
	v, ok := e.lookup(key)
	return v, ok && v != ""
}

func (e *envReader) fail(key, value string, err error) {
	e.errs = append(e.errs, fmt.Errorf("invalid %s=%q: %w", key, value, err))
}

func (e *envReader) stringVar(key string, dst *string) {
	if v, ok := e.get(key); ok {
		*dst = v
	}
}

func (e *envReader) intVar(key string, dst *int) {
	if v, ok := e.get(key); ok {
		i, err := strconv.Atoi(v)
		if err != nil {
			e.fail(key, v, err)
			return
		}
		*dst = i
	}
}

func (e *envReader) floatVar(key string, dst *float64) {
	if v, ok := e.get(key); ok {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			e.fail(key, v, err)
			return
		}
		*dst = f
	}
}

func (e *envReader) boolVar(key string, dst *bool) {
	if v, ok := e.get(key); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			e.fail(key, v, err)
			return
		}
		*dst = b
	}
}

// durationVar accepts Go duration strings ("90s", "2m").
func (e *envReader) durationVar(key string, dst *time.Duration) {
	if v, ok := e.get(key); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			e.fail(key, v, err)
			return
		}
		*dst = d
	}
}

// secondsVar accepts a bare number of seconds, as REDIS_* settings are
// usually written, or a Go duration string.
func (e *envReader) secondsVar(key string, dst *time.Duration) {
	if v, ok := e.get(key); ok {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = time.Duration(n) * time.Second
			return
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			e.fail(key, v, err)
			return
		}
		*dst = d
	}
}

// Validate reports every inconsistent setting at once.
func (c *Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	check(slices.Contains([]string{"text", "json"}, c.Log.Format), "log format must be text or json, got %q", c.Log.Format)
	check(slices.Contains([]string{StoreMemory, StoreQdrant, StorePostgres}, c.Store.Backend),
		"store backend must be memory, qdrant or postgres, got %q", c.Store.Backend)
	check(c.Store.Backend != StorePostgres || c.Store.DatabaseURL != "", "DATABASE_URL is required for the postgres store")
	check(slices.Contains([]string{ModelOpenAI, ModelOllama, ModelExtractive}, c.Model.Summarizer),
		"summarizer must be openai, ollama or extractive, got %q", c.Model.Summarizer)
	check(slices.Contains([]string{ModelOpenAI, ModelOllama}, c.Model.Embedder),
		"embedder must be openai or ollama, got %q", c.Model.Embedder)
	check(c.Model.Timeout >= 0, "model timeout must not be negative")
	check(c.Model.RateLimit >= 0, "model rate limit must not be negative")
	check(c.Enrich.Workers > 0, "enrich workers must be positive, got %d", c.Enrich.Workers)
	check(c.Enrich.QueueSize > 0, "enrich queue size must be positive, got %d", c.Enrich.QueueSize)
	check(c.Cache.TTL > 0, "cache TTL must be positive")

	return errors.Join(errs...)
}
