package model

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ollama/ollama/api"
)

const (
	DefaultOllamaHost           = "http://localhost:11434"
	DefaultOllamaEmbeddingModel = "all-minilm"
	DefaultOllamaSummaryModel   = "llama3.2"
)

// OllamaConfig selects the server and models for the Ollama backend.
type OllamaConfig struct {
	Host           string
	SummaryModel   string
	EmbeddingModel string
	HTTPTimeout    time.Duration
}

// Ollama talks to a local Ollama server. all-minilm produces 384-dimension
// embeddings natively.
type Ollama struct {
	client         *api.Client
	summaryModel   string
	embeddingModel string
}

// NewOllama parses the host and builds the client without contacting the server.
func NewOllama(cfg OllamaConfig) (*Ollama, error) {
	host := cfg.Host
	if host == "" {
		host = DefaultOllamaHost
	}
	base, err := url.Parse(host)
	if err != nil {
		return nil, fmt.Errorf("invalid ollama host %q: %w", host, err)
	}
	if cfg.SummaryModel == "" {
		cfg.SummaryModel = DefaultOllamaSummaryModel
	}
	if cfg.EmbeddingModel == "" {
		cfg.EmbeddingModel = DefaultOllamaEmbeddingModel
	}
	timeout := cfg.HTTPTimeout
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}

	return &Ollama{
		client:         api.NewClient(base, &http.Client{Timeout: timeout}),
		summaryModel:   cfg.SummaryModel,
		embeddingModel: cfg.EmbeddingModel,
	}, nil
}

func (o *Ollama) ModelName() string { return o.embeddingModel }

func (o *Ollama) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := o.client.Embed(ctx, &api.EmbedRequest{
		Model: o.embeddingModel,
		Input: text,
	})
	if err != nil {
		return nil, fmt.Errorf("ollama embed failed: %w", err)
	}
	if len(resp.Embeddings) == 0 {
		return nil, fmt.Errorf("ollama embed returned no vectors")
	}
	return resp.Embeddings[0], nil
}

func (o *Ollama) Summarize(ctx context.Context, text string, maxWords int) (string, error) {
	stream := false
	req := &api.GenerateRequest{
		Model:  o.summaryModel,
		Prompt: fmt.Sprintf("Summarize the following text in at most %d words. Respond with the summary only.\n\n%s", maxWords, text),
		Stream: &stream,
	}

	var sb strings.Builder
	err := o.client.Generate(ctx, req, func(resp api.GenerateResponse) error {
		sb.WriteString(resp.Response)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("ollama generate failed: %w", err)
	}
	return strings.TrimSpace(sb.String()), nil
}
