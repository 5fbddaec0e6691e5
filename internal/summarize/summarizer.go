// Package summarize turns a document of any length into a bounded summary.
//
// Long inputs are capped, split into sentence-aligned chunks, summarized
// chunk by chunk and, if still long, compressed once more. Results are cached
// by the hash of the normalised input, so summarizing the same text twice
// costs one model pass.
package summarize

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/bull/docintel/internal/cache"
	"github.com/bull/docintel/internal/errs"
	"github.com/bull/docintel/internal/model"
)

const (
	MaxInputWords     = 3000 // words beyond this are dropped
	MaxChunkWords     = 300
	MinChunkWords     = 30  // shorter chunks pass through verbatim
	FallbackRunes     = 200 // kept from a chunk whose summary failed
	CompressThreshold = 250 // joined summaries above this are compressed
	CompressWords     = 200
)

// Summarizer runs the chunked summarization pipeline.
type Summarizer struct {
	model  model.Summarizer
	cache  cache.Cache
	ttl    time.Duration
	logger *slog.Logger
}

// New creates a Summarizer. A nil cache disables caching.
func New(m model.Summarizer, c cache.Cache, ttl time.Duration, logger *slog.Logger) *Summarizer {
	if c == nil {
		c = cache.Null{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Summarizer{model: m, cache: c, ttl: ttl, logger: logger}
}

// ChunkHint is the word budget requested for a chunk of the given size.
func ChunkHint(words int) int {
	return min(150, max(60, words/3))
}

// Summarize returns the summary of text. Per-chunk model failures degrade to
// a prefix of the chunk. Only an unavailable model or a cancelled context
// fail the call.
func (s *Summarizer) Summarize(ctx context.Context, text string) (string, error) {
	normalized := Normalize(text)
	if normalized == "" {
		return "", nil
	}

	key := cache.SummaryKey(cache.Digest(normalized))
	var cached string
	if cache.GetJSON(ctx, s.cache, key, &cached) {
		s.logger.Debug("summary cache hit", "key", key)
		return cached, nil
	}

	words := strings.Fields(normalized)
	if len(words) > MaxInputWords {
		s.logger.Info("truncating input for summarization", "words", len(words), "max_words", MaxInputWords)
		words = words[:MaxInputWords]
	}

	chunks := Chunk(words, MaxChunkWords)
	parts := make([]string, 0, len(chunks))
	for i, chunk := range chunks {
		part, err := s.summarizeChunk(ctx, chunk)
		if err != nil {
			return "", fmt.Errorf("chunk %d/%d: %w", i+1, len(chunks), err)
		}
		parts = append(parts, part)
	}

	summary := strings.Join(parts, " ")
	if n := len(strings.Fields(summary)); n > CompressThreshold {
		compressed, err := s.model.Summarize(ctx, summary, CompressWords)
		switch {
		case err == nil:
			summary = strings.TrimSpace(compressed)
		case isFatal(ctx, err):
			return "", err
		default:
			s.logger.Warn("final compression failed, truncating", "words", n, "error", err)
			summary = firstWords(summary, CompressWords)
		}
	}

	cache.SetJSON(ctx, s.cache, key, summary, s.ttl)
	return summary, nil
}

func (s *Summarizer) summarizeChunk(ctx context.Context, chunk string) (string, error) {
	n := len(strings.Fields(chunk))
	if n < MinChunkWords {
		return chunk, nil
	}
	out, err := s.model.Summarize(ctx, chunk, ChunkHint(n))
	if err == nil {
		return strings.TrimSpace(out), nil
	}
	if isFatal(ctx, err) {
		return "", err
	}
	s.logger.Warn("chunk summarization failed, using prefix", "words", n, "error", err)
	return firstRunes(chunk, FallbackRunes), nil
}

// isFatal reports errors that no fallback can absorb.
func isFatal(ctx context.Context, err error) bool {
	return ctx.Err() != nil || errors.Is(err, errs.ErrDependencyUnavailable)
}
