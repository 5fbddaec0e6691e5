package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bull/docintel/internal/app"
	"github.com/bull/docintel/internal/config"
	"github.com/bull/docintel/internal/model/modeltest"
	"github.com/bull/docintel/internal/search"
	"github.com/bull/docintel/internal/storage"
)

type fixture struct {
	app     *app.App
	alice   *storage.User
	bob     *storage.User
	session *mcp.ClientSession
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	cfg := config.Default()
	cfg.Store.Backend = config.StoreMemory
	cfg.Cache.Enabled = false
	a := app.Build(cfg, nil, storage.NewMemoryStore(), nil, modeltest.NewService())
	t.Cleanup(func() { a.Close(context.Background()) })

	f := &fixture{
		app:   a,
		alice: &storage.User{Username: "alice"},
		bob:   &storage.User{Username: "bob"},
	}
	require.NoError(t, a.Store.CreateUser(ctx, f.alice))
	require.NoError(t, a.Store.CreateUser(ctx, f.bob))

	f.session = connect(t, &Config{
		Store:     a.Store,
		Documents: a.Documents,
		Search:    a.Search,
		Cache:     a.Cache,
		Queue:     a.Pool,
		ModelName: a.Model.ModelName(),
	})
	return f
}

func connect(t *testing.T, cfg *Config) *mcp.ClientSession {
	t.Helper()
	ctx := context.Background()

	serverTransport, clientTransport := mcp.NewInMemoryTransports()
	serverSession, err := NewServer(cfg).MCPServer().Connect(ctx, serverTransport, nil)
	require.NoError(t, err)
	t.Cleanup(func() { serverSession.Close() })

	client := mcp.NewClient(&mcp.Implementation{Name: "test-client", Version: "v0.0.1"}, nil)
	session, err := client.Connect(ctx, clientTransport, nil)
	require.NoError(t, err)
	t.Cleanup(func() { session.Close() })
	return session
}

// call invokes a tool and decodes its structured output into out.
func call(t *testing.T, session *mcp.ClientSession, name string, args map[string]any, out any) *mcp.CallToolResult {
	t.Helper()
	res, err := session.CallTool(context.Background(), &mcp.CallToolParams{Name: name, Arguments: args})
	require.NoError(t, err)
	if res.IsError || out == nil {
		return res
	}
	data, err := json.Marshal(res.StructuredContent)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, out))
	return res
}

func TestListTools(t *testing.T) {
	f := newFixture(t)

	res, err := f.session.ListTools(context.Background(), nil)
	require.NoError(t, err)

	var names []string
	for _, tool := range res.Tools {
		names = append(names, tool.Name)
	}
	assert.ElementsMatch(t, []string{"ingest_document", "get_document", "search_documents", "get_service_status"}, names)
}

func TestIngestGetAndSearch(t *testing.T) {
	f := newFixture(t)

	var ingested IngestDocumentOutput
	call(t, f.session, "ingest_document", map[string]any{
		"user_id":  f.alice.ID,
		"filename": "renewal.txt",
		"content":  "Contract renewal terms for the supplier.",
	}, &ingested)
	require.Empty(t, ingested.Error)
	require.NotEmpty(t, ingested.DocumentID)

	var got GetDocumentOutput
	require.Eventually(t, func() bool {
		got = GetDocumentOutput{}
		call(t, f.session, "get_document", map[string]any{
			"user_id":     f.alice.ID,
			"document_id": ingested.DocumentID,
		}, &got)
		return got.Found && got.Document.State == string(storage.StateCompleted)
	}, 5*time.Second, 20*time.Millisecond)
	assert.Equal(t, "completed", got.Document.Status)
	assert.Equal(t, "alice", got.Document.UploadedBy)
	assert.Equal(t, "Contract renewal terms for the supplier.", got.Document.Summary)

	var found SearchDocumentsOutput
	call(t, f.session, "search_documents", map[string]any{"query": "contract renewal"}, &found)
	require.Len(t, found.Results, 1)
	assert.Equal(t, ingested.DocumentID, found.Results[0].ID)
	assert.Equal(t, "alice", found.Results[0].Username)
}

func TestIngestRefusalsAreStructured(t *testing.T) {
	f := newFixture(t)

	var out IngestDocumentOutput
	res := call(t, f.session, "ingest_document", map[string]any{
		"user_id":  f.alice.ID,
		"filename": "malware.exe",
		"content":  "text",
	}, &out)
	assert.False(t, res.IsError)
	assert.Contains(t, out.Error, "unsupported file format")
	assert.Empty(t, out.DocumentID)

	out = IngestDocumentOutput{}
	call(t, f.session, "ingest_document", map[string]any{
		"user_id":  "nobody",
		"filename": "a.txt",
		"content":  "text",
	}, &out)
	assert.Contains(t, out.Error, "not found")
}

func TestGetDocumentAccessControl(t *testing.T) {
	f := newFixture(t)

	doc, err := f.app.Documents.Ingest(context.Background(), f.alice, "private.md", "Alice's private notes.")
	require.NoError(t, err)

	var out GetDocumentOutput
	res := call(t, f.session, "get_document", map[string]any{
		"user_id":     f.bob.ID,
		"document_id": doc.ID,
	}, &out)
	assert.False(t, res.IsError)
	assert.False(t, out.Found)
	assert.Nil(t, out.Document)
	assert.Contains(t, out.Error, "not authorized")

	out = GetDocumentOutput{}
	call(t, f.session, "get_document", map[string]any{
		"user_id":     f.alice.ID,
		"document_id": "missing",
	}, &out)
	assert.False(t, out.Found)
	assert.Contains(t, out.Error, "not found")
}

func TestSearchEmptyQuery(t *testing.T) {
	f := newFixture(t)

	var out SearchDocumentsOutput
	res := call(t, f.session, "search_documents", map[string]any{"query": "   "}, &out)
	assert.False(t, res.IsError)
	assert.Contains(t, out.Error, "query cannot be empty")
	assert.Empty(t, out.Results)
}

type failingSearcher struct{ err error }

func (s failingSearcher) Search(context.Context, string) (*search.Response, error) {
	return nil, s.err
}

func TestSearchStoreFailureIsToolError(t *testing.T) {
	f := newFixture(t)
	session := connect(t, &Config{
		Store:     f.app.Store,
		Documents: f.app.Documents,
		Search:    failingSearcher{err: fmt.Errorf("list embeddings: %w", storage.ErrStoreUnreachable)},
	})

	res := call(t, session, "search_documents", map[string]any{"query": "anything"}, nil)
	assert.True(t, res.IsError)
}

func TestServiceStatus(t *testing.T) {
	f := newFixture(t)

	var out StatusOutput
	call(t, f.session, "get_service_status", map[string]any{}, &out)
	assert.Equal(t, "connected", out.Store)
	assert.Equal(t, "unavailable", out.Cache)
	assert.Equal(t, "hash-bow", out.EmbeddingModel)
	assert.Equal(t, config.Default().Enrich.QueueSize, out.QueueFree)
	assert.NotEmpty(t, out.CheckedAt)
}

type healthStub struct{ err error }

func (h healthStub) Health(context.Context) error { return h.err }

type cacheStub bool

func (c cacheStub) Available(context.Context) bool { return bool(c) }

func TestHealthHandler(t *testing.T) {
	tests := []struct {
		name   string
		store  HealthChecker
		cache  CacheProbe
		code   int
		status string
	}{
		{"healthy", healthStub{}, cacheStub(true), http.StatusOK, "healthy"},
		{"cache down", healthStub{}, cacheStub(false), http.StatusOK, "degraded"},
		{"no cache", healthStub{}, nil, http.StatusOK, "degraded"},
		{"store down", healthStub{err: errors.New("down")}, cacheStub(true), http.StatusServiceUnavailable, "unhealthy"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			NewHealthHandler(tt.store, tt.cache)(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

			assert.Equal(t, tt.code, rec.Code)
			var body HealthResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.status, body.Status)
		})
	}
}

func TestLandingHandler(t *testing.T) {
	rec := httptest.NewRecorder()
	NewLandingHandler()(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "search_documents")

	rec = httptest.NewRecorder()
	NewLandingHandler()(rec, httptest.NewRequest(http.MethodGet, "/other", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHTTPHandlerServesTools(t *testing.T) {
	f := newFixture(t)
	server := NewServer(&Config{
		Store:     f.app.Store,
		Documents: f.app.Documents,
		Search:    f.app.Search,
	})
	srv := httptest.NewServer(NewHTTPHandler(server, &HTTPHandlerOptions{Stateless: true, JSONResponse: true}))
	defer srv.Close()

	client := mcp.NewClient(&mcp.Implementation{Name: "http-client", Version: "v0.0.1"}, nil)
	session, err := client.Connect(context.Background(), &mcp.StreamableClientTransport{Endpoint: srv.URL}, nil)
	require.NoError(t, err)
	defer session.Close()

	var out SearchDocumentsOutput
	call(t, session, "search_documents", map[string]any{"query": "nothing indexed"}, &out)
	assert.Equal(t, search.MessageNoResults, out.Message)
	assert.Empty(t, out.Results)
}
