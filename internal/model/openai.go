package model

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/bull/docintel/internal/storage"
)

const (
	// DefaultOpenAIEmbeddingModel supports shortened output, so it can be
	// asked for storage.VectorDimension components directly.
	DefaultOpenAIEmbeddingModel = "text-embedding-3-small"

	// DefaultOpenAIChatModel writes summaries.
	DefaultOpenAIChatModel = "gpt-4o-mini"
)

// OpenAIConfig selects credentials and models for the OpenAI backend.
type OpenAIConfig struct {
	APIKey         string
	BaseURL        string // optional, for compatible gateways
	ChatModel      string
	EmbeddingModel string
}

// OpenAI summarizes with chat completions and embeds with the embeddings API.
// It retries with exponential backoff on rate limit errors.
type OpenAI struct {
	client         openai.Client
	chatModel      string
	embeddingModel string
}

// NewOpenAI creates the client. It returns an error if no API key is configured.
func NewOpenAI(cfg OpenAIConfig) (*OpenAI, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY not set")
	}
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.ChatModel == "" {
		cfg.ChatModel = DefaultOpenAIChatModel
	}
	if cfg.EmbeddingModel == "" {
		cfg.EmbeddingModel = DefaultOpenAIEmbeddingModel
	}
	return &OpenAI{
		client:         openai.NewClient(opts...),
		chatModel:      cfg.ChatModel,
		embeddingModel: cfg.EmbeddingModel,
	}, nil
}

func (o *OpenAI) ModelName() string { return o.embeddingModel }

// Summarize asks the chat model for a summary of at most maxWords words.
func (o *OpenAI) Summarize(ctx context.Context, text string, maxWords int) (string, error) {
	prompt := fmt.Sprintf(`Summarize the following text in at most %d words.
Keep names, dates, amounts and obligations. Respond with the summary only.

Text:
%s`, maxWords, text)

	var summary string
	operation := func() error {
		resp, err := o.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
			Messages: []openai.ChatCompletionMessageParamUnion{
				openai.SystemMessage("You write faithful, concise summaries of documents."),
				openai.UserMessage(prompt),
			},
			Model: openai.ChatModel(o.chatModel),
		})
		if err != nil {
			return classifyOpenAIError(err)
		}
		if len(resp.Choices) == 0 {
			return backoff.Permanent(errors.New("chat completion returned no choices"))
		}
		summary = strings.TrimSpace(resp.Choices[0].Message.Content)
		return nil
	}

	if err := backoff.Retry(operation, newModelBackOff(ctx)); err != nil {
		return "", fmt.Errorf("chat completion failed: %w", err)
	}
	return summary, nil
}

// Embed returns a storage.VectorDimension vector for text in a single call.
func (o *OpenAI) Embed(ctx context.Context, text string) ([]float32, error) {
	var vector []float32
	operation := func() error {
		resp, err := o.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
			Input: openai.EmbeddingNewParamsInputUnion{
				OfString: openai.String(text),
			},
			Model:      openai.EmbeddingModel(o.embeddingModel),
			Dimensions: openai.Int(storage.VectorDimension),
		})
		if err != nil {
			return classifyOpenAIError(err)
		}
		if len(resp.Data) == 0 {
			return backoff.Permanent(errors.New("embedding response contained no data"))
		}
		vector = toFloat32(resp.Data[0].Embedding)
		return nil
	}

	if err := backoff.Retry(operation, newModelBackOff(ctx)); err != nil {
		return nil, fmt.Errorf("embedding request failed: %w", err)
	}
	return vector, nil
}

func newModelBackOff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 10 * time.Second
	b.MaxElapsedTime = 30 * time.Second
	return backoff.WithContext(b, ctx)
}

// classifyOpenAIError keeps rate limit errors (HTTP 429) retryable and makes
// everything else permanent.
func classifyOpenAIError(err error) error {
	if isRateLimitError(err) {
		return err
	}
	return backoff.Permanent(err)
}

func isRateLimitError(err error) bool {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 429
	}
	return false
}

// toFloat32 converts []float64 to []float32.
// The API returns float64, but storage uses float32.
func toFloat32(f64 []float64) []float32 {
	f32 := make([]float32, len(f64))
	for i, v := range f64 {
		f32[i] = float32(v)
	}
	return f32
}
