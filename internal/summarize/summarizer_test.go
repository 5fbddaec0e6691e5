package summarize

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bull/docintel/internal/cache"
	"github.com/bull/docintel/internal/cache/cachetest"
	"github.com/bull/docintel/internal/model"
	"github.com/bull/docintel/internal/model/modeltest"
)

func longText(sentences, wordsPer int) string {
	var parts []string
	for i := range sentences {
		parts = append(parts, sentence(fmt.Sprintf("w%d_", i), wordsPer))
	}
	return strings.Join(parts, " ")
}

func TestShortNotePassesThrough(t *testing.T) {
	c, _ := cachetest.NewRedis(t)
	fake := &modeltest.Summarizer{}
	s := New(fake, c, time.Hour, nil)

	out, err := s.Summarize(context.Background(), "Short note.")
	require.NoError(t, err)
	assert.Equal(t, "Short note.", out)
	assert.Equal(t, 0, fake.Calls(), "chunks under the minimum are not sent to the model")

	var cached string
	require.True(t, cache.GetJSON(context.Background(), c, cache.SummaryKey(cache.Digest("Short note.")), &cached))
	assert.Equal(t, "Short note.", cached)
}

func TestEmptyInput(t *testing.T) {
	c, srv := cachetest.NewRedis(t)
	fake := &modeltest.Summarizer{}

	out, err := New(fake, c, time.Hour, nil).Summarize(context.Background(), " \n\t ")
	require.NoError(t, err)
	assert.Empty(t, out)
	assert.Equal(t, 0, fake.Calls())
	assert.Empty(t, srv.Keys(), "nothing is cached for empty input")
}

func TestSummarizeIsIdempotentThroughCache(t *testing.T) {
	c, _ := cachetest.NewRedis(t)
	fake := &modeltest.Summarizer{}
	s := New(fake, c, time.Hour, nil)
	text := longText(4, 50)

	first, err := s.Summarize(context.Background(), text)
	require.NoError(t, err)
	calls := fake.Calls()
	require.Positive(t, calls)

	// Whitespace differences normalise to the same key.
	second, err := s.Summarize(context.Background(), "  "+strings.ReplaceAll(text, " ", "\n")+"  ")
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, calls, fake.Calls(), "a cached summary costs no model call")
}

func TestChunkHintsAndOrder(t *testing.T) {
	fake := &modeltest.Summarizer{Fn: func(text string, maxWords int) (string, error) {
		return "[" + strings.Fields(text)[0] + "]", nil
	}}
	s := New(fake, nil, time.Hour, nil)

	// Two chunks of 300 words and one short tail chunk.
	text := longText(6, 100) + " Tail end."
	out, err := s.Summarize(context.Background(), text)
	require.NoError(t, err)

	assert.Equal(t, "[w0_0] [w3_0] Tail end.", out)
	assert.Equal(t, []int{100, 100}, fake.Hints())
}

func TestChunkFailureFallsBackToPrefix(t *testing.T) {
	fake := &modeltest.Summarizer{Fn: func(string, int) (string, error) {
		return "", errors.New("model exploded")
	}}
	s := New(fake, nil, time.Hour, nil)
	text := longText(1, 80)

	out, err := s.Summarize(context.Background(), text)
	require.NoError(t, err)
	assert.Equal(t, firstRunes(Normalize(text), FallbackRunes), out)
}

func TestCompressionPass(t *testing.T) {
	// Each chunk "summary" echoes the chunk so the joined text stays long.
	var compressHint int
	fake := &modeltest.Summarizer{Fn: func(text string, maxWords int) (string, error) {
		if maxWords == CompressWords {
			compressHint = maxWords
			return "compressed", nil
		}
		return text, nil
	}}
	out, err := New(fake, nil, time.Hour, nil).Summarize(context.Background(), longText(6, 100))
	require.NoError(t, err)
	assert.Equal(t, "compressed", out)
	assert.Equal(t, CompressWords, compressHint)
}

func TestCompressionFailureTruncates(t *testing.T) {
	fake := &modeltest.Summarizer{Fn: func(text string, maxWords int) (string, error) {
		if maxWords == CompressWords {
			return "", errors.New("too busy")
		}
		return text, nil
	}}
	out, err := New(fake, nil, time.Hour, nil).Summarize(context.Background(), longText(6, 100))
	require.NoError(t, err)
	assert.Len(t, strings.Fields(out), CompressWords)
	assert.True(t, strings.HasPrefix(out, "w0_0 w0_1"))
}

func TestInputIsCapped(t *testing.T) {
	var seen int
	fake := &modeltest.Summarizer{Fn: func(text string, maxWords int) (string, error) {
		seen += len(strings.Fields(text))
		return "s.", nil
	}}
	_, err := New(fake, nil, time.Hour, nil).Summarize(context.Background(), longText(40, 100))
	require.NoError(t, err)
	assert.Equal(t, MaxInputWords, seen)
}

func TestUnavailableModelIsFatal(t *testing.T) {
	lazy := model.NewLazySummarizer(func() (model.Summarizer, error) {
		return nil, errors.New("no backend configured")
	})
	c, srv := cachetest.NewRedis(t)

	_, err := New(lazy, c, time.Hour, nil).Summarize(context.Background(), longText(1, 80))
	assert.ErrorIs(t, err, model.ErrModelUnavailable)
	assert.Empty(t, srv.Keys(), "failures are not cached")
}

func TestCancelledContextIsFatal(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New(&modeltest.Summarizer{}, nil, time.Hour, nil).Summarize(ctx, longText(1, 80))
	assert.ErrorIs(t, err, context.Canceled)
}
