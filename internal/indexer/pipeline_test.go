package indexer

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bull/docintel/internal/github"
	"github.com/bull/docintel/internal/storage"
)

type fakeSource struct {
	commitErr error
	listErr   error
	docs      map[string]string
	order     []string
}

func (s *fakeSource) GetLatestCommitSHA(context.Context) (string, error) {
	return "c0ffee", s.commitErr
}

func (s *fakeSource) ListDocs(context.Context) ([]string, error) {
	return s.order, s.listErr
}

func (s *fakeSource) FetchDoc(_ context.Context, p string) (*github.FetchedDoc, error) {
	content, ok := s.docs[p]
	if !ok {
		return nil, fmt.Errorf("no such file %s", p)
	}
	return &github.FetchedDoc{Path: p, Content: content, SHA: "sha-" + p}, nil
}

type ingestCall struct {
	filename string
	text     string
}

type fakeIngester struct {
	calls  []ingestCall
	reject map[string]bool
}

func (f *fakeIngester) Ingest(_ context.Context, owner *storage.User, filename, text string) (*storage.Document, error) {
	f.calls = append(f.calls, ingestCall{filename: filename, text: text})
	doc := &storage.Document{ID: "doc-" + filename, UserID: owner.ID, Filename: filename}
	if f.reject[filename] {
		return doc, errors.New("enrichment queue full")
	}
	return doc, nil
}

var owner = &storage.User{ID: "u1", Username: "importer"}

func TestIndexAll(t *testing.T) {
	src := &fakeSource{
		order: []string{"intro.md", "notes.txt", "gone.md"},
		docs: map[string]string{
			"intro.md":  "# Intro\n\nWelcome to **the** handbook.\n",
			"notes.txt": "plain *text* stays as is",
		},
	}
	ing := &fakeIngester{}

	result, err := NewPipeline(src, ing, nil, nil).IndexAll(context.Background(), owner)
	require.NoError(t, err)

	assert.Equal(t, "c0ffee", result.CommitSHA)
	assert.Equal(t, 3, result.TotalDocs)
	assert.Equal(t, 2, result.SuccessfulDocs)
	assert.Equal(t, []string{"doc-intro.md", "doc-notes.txt"}, result.DocumentIDs)
	require.Len(t, result.FailedDocs, 1)
	assert.Equal(t, "gone.md", result.FailedDocs[0].Path)
	assert.Contains(t, result.FailedDocs[0].Reason, "fetch")

	require.Len(t, ing.calls, 2)
	assert.Equal(t, "Intro\n\nWelcome to the handbook.", ing.calls[0].text, "markdown is reduced to plain text")
	assert.Equal(t, "plain *text* stays as is", ing.calls[1].text)
}

func TestIndexAllRecordsRejectedDocuments(t *testing.T) {
	src := &fakeSource{order: []string{"a.txt"}, docs: map[string]string{"a.txt": "hello"}}
	ing := &fakeIngester{reject: map[string]bool{"a.txt": true}}

	result, err := NewPipeline(src, ing, nil, nil).IndexAll(context.Background(), owner)
	require.NoError(t, err)
	assert.Equal(t, 0, result.SuccessfulDocs)
	assert.Equal(t, []string{"doc-a.txt"}, result.DocumentIDs, "the stored document is still reported")
	require.Len(t, result.FailedDocs, 1)
}

func TestIndexAllListingFailure(t *testing.T) {
	src := &fakeSource{listErr: errors.New("boom")}

	_, err := NewPipeline(src, &fakeIngester{}, nil, nil).IndexAll(context.Background(), owner)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "list docs")
}

type countdownQueue struct {
	busy atomic.Int32
}

func (q *countdownQueue) Free() int {
	if q.busy.Add(-1) >= 0 {
		return 0
	}
	return 1
}

func TestIndexAllWaitsForQueueSpace(t *testing.T) {
	src := &fakeSource{order: []string{"a.txt"}, docs: map[string]string{"a.txt": "hello"}}
	q := &countdownQueue{}
	q.busy.Store(2)
	ing := &fakeIngester{}

	result, err := NewPipeline(src, ing, q, nil).IndexAll(context.Background(), owner)
	require.NoError(t, err)
	assert.Equal(t, 1, result.SuccessfulDocs)
	assert.Len(t, ing.calls, 1)
}

type fullQueue struct{}

func (fullQueue) Free() int { return 0 }

func TestIndexAllGivesUpWhenContextEnds(t *testing.T) {
	src := &fakeSource{order: []string{"a.txt"}, docs: map[string]string{"a.txt": "hello"}}
	ing := &fakeIngester{}
	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	result, err := NewPipeline(src, ing, fullQueue{}, nil).IndexAll(ctx, owner)
	require.NoError(t, err)
	require.Len(t, result.FailedDocs, 1)
	assert.Contains(t, result.FailedDocs[0].Reason, "wait for enrichment queue")
	assert.Empty(t, ing.calls)
}
