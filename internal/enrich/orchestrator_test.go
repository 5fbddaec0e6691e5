package enrich

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bull/docintel/internal/cache"
	"github.com/bull/docintel/internal/cache/cachetest"
	"github.com/bull/docintel/internal/errs"
	"github.com/bull/docintel/internal/model"
	"github.com/bull/docintel/internal/model/modeltest"
	"github.com/bull/docintel/internal/search"
	"github.com/bull/docintel/internal/storage"
	"github.com/bull/docintel/internal/summarize"
)

const contractText = "This agreement renews annually unless either party gives notice."

type fixture struct {
	store    *storage.MemoryStore
	cache    *cache.Redis
	redis    *miniredis.Miniredis
	summary  *modeltest.Summarizer
	embedder *modeltest.HashEmbedder
	orch     *Orchestrator
	owner    *storage.User
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:    storage.NewMemoryStore(),
		summary:  &modeltest.Summarizer{},
		embedder: &modeltest.HashEmbedder{},
		owner:    &storage.User{Username: "alice"},
	}
	f.cache, f.redis = cachetest.NewRedis(t)
	require.NoError(t, f.store.CreateUser(context.Background(), f.owner))
	f.orch = f.build(f.store, summarize.New(f.summary, f.cache, time.Hour, nil))
	return f
}

func (f *fixture) build(store storage.Store, s TextSummarizer) *Orchestrator {
	return NewOrchestrator(store, s, f.embedder, f.cache, nil)
}

func (f *fixture) newDocument(t *testing.T, content string) string {
	t.Helper()
	id, err := f.store.CreateDocument(context.Background(), &storage.Document{
		UserID:   f.owner.ID,
		Filename: "contract.txt",
		FileType: "txt",
		Content:  content,
	})
	require.NoError(t, err)
	return id
}

func (f *fixture) document(t *testing.T, id string) *storage.Document {
	t.Helper()
	doc, err := f.store.GetDocument(context.Background(), id)
	require.NoError(t, err)
	return doc
}

// seedCache stores a cached search and a cached view of docID.
func (f *fixture) seedCache(t *testing.T, docID string) (searchKey, viewKey string) {
	t.Helper()
	ctx := context.Background()
	searchKey = cache.SearchKey("contract renewal")
	viewKey = cache.DocumentViewKey(docID, f.owner.ID)
	f.cache.Set(ctx, searchKey, []byte(`{}`), time.Hour)
	f.cache.Set(ctx, viewKey, []byte(`{}`), time.Hour)
	return searchKey, viewKey
}

func TestEnrichCompletes(t *testing.T) {
	f := newFixture(t)
	id := f.newDocument(t, contractText)
	searchKey, viewKey := f.seedCache(t, id)

	status, err := f.orch.Enrich(context.Background(), id, contractText)
	require.NoError(t, err)
	assert.Equal(t, storage.Completed(), status)

	doc := f.document(t, id)
	assert.Equal(t, storage.StateCompleted, doc.Status.State)
	assert.False(t, doc.Status.Degraded())
	assert.Equal(t, contractText, doc.Summary, "short documents pass through summarization")

	emb, err := f.store.GetEmbedding(context.Background(), id)
	require.NoError(t, err)
	assert.Len(t, emb.Vector, storage.VectorDimension)
	assert.Equal(t, "hash-bow", emb.ModelName)

	assert.False(t, f.redis.Exists(searchKey), "a new embedding invalidates cached searches")
	assert.False(t, f.redis.Exists(viewKey), "a status change invalidates cached views")
	assert.False(t, f.orch.InFlight(id))
}

func TestEnrichDegradesWhenEmbeddingFails(t *testing.T) {
	f := newFixture(t)
	f.embedder.Err = errors.New("embedding service unavailable")
	id := f.newDocument(t, contractText)
	searchKey, viewKey := f.seedCache(t, id)

	status, err := f.orch.Enrich(context.Background(), id, contractText)
	require.NoError(t, err)
	assert.True(t, status.Degraded())

	doc := f.document(t, id)
	assert.Equal(t, storage.StateCompleted, doc.Status.State)
	assert.Contains(t, doc.Status.Diagnostic, "embedding failed")
	assert.Contains(t, doc.Status.Diagnostic, "embedding service unavailable")
	assert.Equal(t, contractText, doc.Summary, "the summary survives a failed embedding")

	_, err = f.store.GetEmbedding(context.Background(), id)
	assert.ErrorIs(t, err, storage.ErrEmbeddingNotFound)
	assert.True(t, f.redis.Exists(searchKey), "no embedding was written, so searches stay cached")
	assert.False(t, f.redis.Exists(viewKey))
}

func TestEnrichDegradesOnWrongDimension(t *testing.T) {
	f := newFixture(t)
	f.embedder.Dimension = 12
	id := f.newDocument(t, contractText)

	status, err := f.orch.Enrich(context.Background(), id, contractText)
	require.NoError(t, err)
	assert.True(t, status.Degraded())
	assert.Contains(t, status.Diagnostic, "dimension")
}

func TestEnrichFailsWhenSummarizerUnavailable(t *testing.T) {
	f := newFixture(t)
	unavailable := model.NewLazySummarizer(func() (model.Summarizer, error) {
		return nil, errors.New("no backend")
	})
	orch := f.build(f.store, summarize.New(unavailable, f.cache, time.Hour, nil))

	text := strings.Repeat("The parties agree to renew the contract every year. ", 10)
	id := f.newDocument(t, text)
	searchKey, _ := f.seedCache(t, id)

	status, err := orch.Enrich(context.Background(), id, text)
	require.NoError(t, err)
	assert.Equal(t, storage.StateFailed, status.State)

	doc := f.document(t, id)
	assert.Equal(t, storage.StateFailed, doc.Status.State)
	assert.Contains(t, doc.Status.Diagnostic, "summarization failed")
	assert.Empty(t, doc.Summary)
	assert.Equal(t, 0, f.embedder.Calls(), "embedding is skipped after a failed summary")
	assert.True(t, f.redis.Exists(searchKey))
}

type failingEmbeddingStore struct {
	*storage.MemoryStore
}

func (failingEmbeddingStore) CreateEmbedding(context.Context, *storage.Embedding) error {
	return errors.New("disk full")
}

func TestEnrichDegradesWhenEmbeddingSaveFails(t *testing.T) {
	f := newFixture(t)
	orch := f.build(failingEmbeddingStore{f.store}, summarize.New(f.summary, nil, time.Hour, nil))
	id := f.newDocument(t, contractText)
	searchKey, viewKey := f.seedCache(t, id)

	status, err := orch.Enrich(context.Background(), id, contractText)
	require.NoError(t, err)
	assert.True(t, status.Degraded())
	assert.Contains(t, status.Diagnostic, "embedding save failed")

	doc := f.document(t, id)
	assert.Equal(t, status, doc.Status)
	assert.Equal(t, contractText, doc.Summary)
	assert.True(t, f.redis.Exists(searchKey))
	assert.False(t, f.redis.Exists(viewKey))
}

func TestEnrichUnknownDocument(t *testing.T) {
	f := newFixture(t)
	_, err := f.orch.Enrich(context.Background(), "missing", "text")
	assert.ErrorIs(t, err, errs.ErrNotFound)
	assert.False(t, f.orch.InFlight("missing"))
}

func TestEnrichDiagnosticIsBounded(t *testing.T) {
	f := newFixture(t)
	f.embedder.Err = errors.New(strings.Repeat("x", 2000))
	id := f.newDocument(t, contractText)

	status, err := f.orch.Enrich(context.Background(), id, contractText)
	require.NoError(t, err)
	assert.Len(t, []rune(status.Diagnostic), storage.MaxDiagnosticLength)
}

// gatedSummarizer blocks every call until release is closed.
type gatedSummarizer struct {
	started chan string
	release chan struct{}
}

func newGatedSummarizer() *gatedSummarizer {
	return &gatedSummarizer{started: make(chan string, 16), release: make(chan struct{})}
}

func (g *gatedSummarizer) Summarize(ctx context.Context, text string) (string, error) {
	g.started <- text
	select {
	case <-g.release:
		return "summary: " + text, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (g *gatedSummarizer) waitStarted(t *testing.T) string {
	t.Helper()
	select {
	case text := <-g.started:
		return text
	case <-time.After(5 * time.Second):
		t.Fatal("summarizer was never called")
		return ""
	}
}

func TestEnrichRejectsConcurrentAttempt(t *testing.T) {
	f := newFixture(t)
	gate := newGatedSummarizer()
	orch := f.build(f.store, gate)
	id := f.newDocument(t, contractText)

	done := make(chan storage.Status, 1)
	go func() {
		status, _ := orch.Enrich(context.Background(), id, contractText)
		done <- status
	}()
	gate.waitStarted(t)

	assert.Equal(t, storage.StateProcessing, f.document(t, id).Status.State)
	_, err := orch.Enrich(context.Background(), id, contractText)
	assert.ErrorIs(t, err, ErrInFlight)

	close(gate.release)
	assert.Equal(t, storage.StateCompleted, (<-done).State)
	assert.False(t, orch.InFlight(id))
}

func TestReenrichmentKeepsTerminalStatusVisible(t *testing.T) {
	f := newFixture(t)
	id := f.newDocument(t, contractText)
	_, err := f.orch.Enrich(context.Background(), id, contractText)
	require.NoError(t, err)

	gate := newGatedSummarizer()
	orch := f.build(f.store, gate)
	done := make(chan struct{})
	go func() {
		defer close(done)
		orch.Enrich(context.Background(), id, "Renewed text.")
	}()
	gate.waitStarted(t)

	doc := f.document(t, id)
	assert.Equal(t, storage.StateCompleted, doc.Status.State, "no processing write for a terminal document")
	assert.Equal(t, contractText, doc.Summary)

	close(gate.release)
	<-done
	assert.Equal(t, "summary: Renewed text.", f.document(t, id).Summary)
}

func TestDegradedReenrichmentDropsEarlierEmbedding(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	engine := search.NewEngine(f.store, &modeltest.HashEmbedder{}, f.cache, cache.DefaultPolicy(), nil)
	id := f.newDocument(t, contractText)

	_, err := f.orch.Enrich(ctx, id, contractText)
	require.NoError(t, err)
	before, err := engine.Search(ctx, "renews annually")
	require.NoError(t, err)
	require.Len(t, before.Results, 1)

	f.embedder.Err = errors.New("embedding service unavailable")
	status, err := f.orch.Enrich(ctx, id, "Replacement text about lunch menus.")
	require.NoError(t, err)
	assert.True(t, status.Degraded())

	_, err = f.store.GetEmbedding(ctx, id)
	assert.ErrorIs(t, err, storage.ErrEmbeddingNotFound)
	after, err := engine.Search(ctx, "renews annually")
	require.NoError(t, err)
	assert.Empty(t, after.Results, "the cached search was invalidated with the embedding")
}

type failingSummarizer struct{}

func (failingSummarizer) Summarize(context.Context, string) (string, error) {
	return "", errors.New("model crashed")
}

func TestFailedReenrichmentDropsEarlierEmbedding(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.newDocument(t, contractText)
	_, err := f.orch.Enrich(ctx, id, contractText)
	require.NoError(t, err)
	searchKey, _ := f.seedCache(t, id)

	status, err := f.build(f.store, failingSummarizer{}).Enrich(ctx, id, contractText)
	require.NoError(t, err)
	assert.Equal(t, storage.StateFailed, status.State)

	_, err = f.store.GetEmbedding(ctx, id)
	assert.ErrorIs(t, err, storage.ErrEmbeddingNotFound)
	assert.False(t, f.redis.Exists(searchKey))
}

func TestCancelledCallerStillRecordsTerminalStatus(t *testing.T) {
	f := newFixture(t)
	gate := newGatedSummarizer()
	orch := f.build(f.store, gate)
	id := f.newDocument(t, contractText)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan storage.Status, 1)
	go func() {
		status, _ := orch.Enrich(ctx, id, contractText)
		done <- status
	}()
	gate.waitStarted(t)
	cancel()

	status := <-done
	assert.Equal(t, storage.StateFailed, status.State)
	assert.Equal(t, storage.StateFailed, f.document(t, id).Status.State)
}
