// Package modeltest provides deterministic model backends for tests.
package modeltest

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"sync"

	"github.com/bull/docintel/internal/storage"
)

// Summarizer returns the first maxWords words of its input, or the result of
// Fn when set. It counts calls.
type Summarizer struct {
	Fn func(text string, maxWords int) (string, error)

	mu    sync.Mutex
	calls int
	hints []int
}

func (s *Summarizer) Summarize(ctx context.Context, text string, maxWords int) (string, error) {
	s.mu.Lock()
	s.calls++
	s.hints = append(s.hints, maxWords)
	s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return "", err
	}
	if s.Fn != nil {
		return s.Fn(text, maxWords)
	}
	words := strings.Fields(text)
	if len(words) > maxWords {
		words = words[:maxWords]
	}
	return strings.Join(words, " "), nil
}

// Calls returns how many times Summarize ran.
func (s *Summarizer) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// Hints returns the maxWords argument of every call, in order.
func (s *Summarizer) Hints() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int(nil), s.hints...)
}

// HashEmbedder embeds text as a normalised bag of words hashed into
// storage.VectorDimension buckets. Texts sharing words are similar; texts
// sharing none are orthogonal. Err, when set, fails every call.
type HashEmbedder struct {
	Err       error
	Dimension int // defaults to storage.VectorDimension

	mu    sync.Mutex
	calls int
}

func (e *HashEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	e.mu.Lock()
	e.calls++
	e.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if e.Err != nil {
		return nil, e.Err
	}
	dim := e.Dimension
	if dim == 0 {
		dim = storage.VectorDimension
	}
	return HashVector(text, dim), nil
}

func (e *HashEmbedder) ModelName() string { return "hash-bow" }

// Calls returns how many times Embed ran.
func (e *HashEmbedder) Calls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

// HashVector is the embedding HashEmbedder produces.
func HashVector(text string, dim int) []float32 {
	v := make([]float32, dim)
	for _, word := range strings.Fields(strings.ToLower(text)) {
		word = strings.Trim(word, ".,;:!?\"'()[]")
		if word == "" {
			continue
		}
		h := fnv.New32a()
		h.Write([]byte(word))
		v[h.Sum32()%uint32(dim)]++
	}
	var norm float64
	for _, x := range v {
		norm += float64(x) * float64(x)
	}
	if norm == 0 {
		return v
	}
	norm = math.Sqrt(norm)
	for i := range v {
		v[i] = float32(float64(v[i]) / norm)
	}
	return v
}

// Service pairs a Summarizer and a HashEmbedder.
type Service struct {
	*Summarizer
	*HashEmbedder
}

// NewService returns a Service with default fakes.
func NewService() *Service {
	return &Service{Summarizer: &Summarizer{}, HashEmbedder: &HashEmbedder{}}
}
