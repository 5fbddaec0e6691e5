package model

import (
	"context"
	"fmt"
	"sync"
)

// LazySummarizer constructs its backend on first use, exactly once.
// A construction error is remembered and returned as ErrModelUnavailable
// on every call.
type LazySummarizer struct {
	get func() (Summarizer, error)
}

// NewLazySummarizer defers build until the first Summarize call.
func NewLazySummarizer(build func() (Summarizer, error)) *LazySummarizer {
	return &LazySummarizer{get: sync.OnceValues(build)}
}

func (l *LazySummarizer) Summarize(ctx context.Context, text string, maxWords int) (string, error) {
	s, err := l.get()
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrModelUnavailable, err)
	}
	return s.Summarize(ctx, text, maxWords)
}

// LazyEmbedder constructs its backend on first use, exactly once.
type LazyEmbedder struct {
	name string
	get  func() (Embedder, error)
}

// NewLazyEmbedder defers build until the first Embed call. name is reported
// by ModelName without constructing the backend.
func NewLazyEmbedder(name string, build func() (Embedder, error)) *LazyEmbedder {
	return &LazyEmbedder{name: name, get: sync.OnceValues(build)}
}

func (l *LazyEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	e, err := l.get()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrModelUnavailable, err)
	}
	return e.Embed(ctx, text)
}

func (l *LazyEmbedder) ModelName() string { return l.name }
