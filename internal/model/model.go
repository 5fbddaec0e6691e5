// Package model provides the Summarize and Embed capabilities behind a
// narrow interface, with OpenAI, Ollama and extractive backends.
package model

import (
	"context"
	"fmt"

	"github.com/bull/docintel/internal/errs"
)

// ErrModelUnavailable means a backend could not be constructed. Callers treat
// it as fatal for the current operation.
var ErrModelUnavailable = fmt.Errorf("model backend %w", errs.ErrDependencyUnavailable)

// Summarizer condenses text to roughly maxWords words.
type Summarizer interface {
	Summarize(ctx context.Context, text string, maxWords int) (string, error)
}

// Embedder maps text to a fixed-size vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	// ModelName is recorded alongside every stored embedding.
	ModelName() string
}

// Service is the full model capability used by enrichment and search.
type Service interface {
	Summarizer
	Embedder
}

type combined struct {
	Summarizer
	Embedder
}

// Combine pairs independently configured summarizer and embedder backends.
func Combine(s Summarizer, e Embedder) Service {
	return combined{Summarizer: s, Embedder: e}
}
