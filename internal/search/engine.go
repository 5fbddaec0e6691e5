// Package search ranks enriched documents by semantic similarity to a query.
package search

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/bull/docintel/internal/cache"
	"github.com/bull/docintel/internal/errs"
	"github.com/bull/docintel/internal/model"
	"github.com/bull/docintel/internal/storage"
)

const (
	// TopK is the number of candidates considered before the relevance floor.
	TopK = 10
	// RelevanceFloor excludes results whose rounded similarity is not above it.
	RelevanceFloor = 0.2

	MessageNoResults  = "No results found"
	MessageNoRelevant = "No relevant results found"
)

// ErrEmptyQuery is returned for blank queries.
var ErrEmptyQuery = fmt.Errorf("%w: query cannot be empty", errs.ErrValidation)

// Result is one ranked document.
type Result struct {
	ID         string  `json:"id"`
	Filename   string  `json:"filename"`
	Summary    string  `json:"summary"`
	Username   string  `json:"username"`
	Similarity float64 `json:"similarity"` // rounded to 4 decimals
}

// Response is what a search returns and what the cache stores.
type Response struct {
	Message string   `json:"message,omitempty"`
	Results []Result `json:"results"`
}

// Engine answers similarity queries, caching responses per normalised query.
type Engine struct {
	store    storage.Store
	embedder model.Embedder
	cache    cache.Cache
	policy   cache.Policy
	logger   *slog.Logger
	group    singleflight.Group
}

// NewEngine creates a search Engine. A nil cache disables caching.
func NewEngine(store storage.Store, embedder model.Embedder, c cache.Cache, policy cache.Policy, logger *slog.Logger) *Engine {
	if c == nil {
		c = cache.Null{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{store: store, embedder: embedder, cache: c, policy: policy, logger: logger}
}

// NormalizeQuery trims, lower-cases and collapses whitespace.
func NormalizeQuery(q string) string {
	return strings.Join(strings.Fields(strings.ToLower(q)), " ")
}

// Search returns up to TopK documents whose similarity exceeds
// RelevanceFloor. Identical queries, after normalisation, share one cache
// entry and concurrent misses share one computation.
func (e *Engine) Search(ctx context.Context, query string) (*Response, error) {
	normalized := NormalizeQuery(query)
	if normalized == "" {
		return nil, ErrEmptyQuery
	}
	key := cache.SearchKey(normalized)

	var cached Response
	if cache.GetJSON(ctx, e.cache, key, &cached) {
		e.logger.Debug("search cache hit", "query", normalized)
		return &cached, nil
	}

	v, err, shared := e.group.Do(key, func() (any, error) {
		return e.compute(ctx, key, normalized)
	})
	if err != nil {
		return nil, err
	}
	if shared {
		e.logger.Debug("search shared with concurrent caller", "query", normalized)
	}
	// Copy so callers sharing a flight never alias one slice.
	resp := *v.(*Response)
	resp.Results = append([]Result{}, resp.Results...)
	return &resp, nil
}

func (e *Engine) compute(ctx context.Context, key, normalized string) (*Response, error) {
	start := time.Now()
	generation := cache.SearchGeneration(ctx, e.cache)

	vector, err := e.embedder.Embed(ctx, normalized)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(vector) == 0 {
		return nil, fmt.Errorf("%w: empty query embedding", errs.ErrModelFailure)
	}

	scored, err := e.rank(ctx, vector)
	if err != nil {
		return nil, err
	}

	resp := &Response{Results: []Result{}}
	ttl := e.policy.Search
	switch {
	case len(scored) == 0:
		resp.Message = MessageNoResults
		ttl = e.policy.EmptySearch
	default:
		for _, s := range scored {
			sim := Round4(s.Similarity)
			if math.IsNaN(sim) || sim <= RelevanceFloor {
				continue
			}
			resp.Results = append(resp.Results, Result{
				ID:         s.DocumentID,
				Filename:   s.Filename,
				Summary:    s.Summary,
				Username:   s.Username,
				Similarity: sim,
			})
		}
		if len(resp.Results) == 0 {
			resp.Message = MessageNoRelevant
			ttl = e.policy.EmptySearch
		}
	}

	e.cacheResult(ctx, key, generation, resp, ttl)
	e.logger.Info("Search complete",
		"query", normalized,
		"candidates", len(scored),
		"results", len(resp.Results),
		"duration", time.Since(start),
	)
	return resp, nil
}

// cacheResult caches resp unless an embedding write invalidated the search
// scope after generation was read. The second check covers an invalidation that
// lands between the first check and the write.
func (e *Engine) cacheResult(ctx context.Context, key, generation string, resp *Response, ttl time.Duration) {
	if cache.SearchGeneration(ctx, e.cache) != generation {
		e.logger.Debug("search result stale, not cached", "key", key)
		return
	}
	cache.SetJSON(ctx, e.cache, key, resp, ttl)
	if cache.SearchGeneration(ctx, e.cache) != generation {
		e.cache.Delete(ctx, key)
		e.logger.Debug("search result stale, evicted", "key", key)
	}
}

// rank prefers server-side ranking when the store supports it.
func (e *Engine) rank(ctx context.Context, vector []float32) ([]storage.ScoredDocument, error) {
	if ranker, ok := e.store.(storage.Ranker); ok {
		scored, err := ranker.RankBySimilarity(ctx, vector, TopK)
		if err != nil {
			return nil, fmt.Errorf("rank documents: %w", err)
		}
		return scored, nil
	}

	candidates, err := e.store.ListEmbeddingsWithOwner(ctx)
	if err != nil {
		return nil, fmt.Errorf("list embeddings: %w", err)
	}
	return Rank(vector, candidates, TopK), nil
}
