package github

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type entry struct {
	Type string `json:"type"`
	Name string `json:"name"`
	Path string `json:"path"`
}

func newTestFetcher(t *testing.T, ref string) *Fetcher {
	t.Helper()

	mux := http.NewServeMux()
	writeJSON := func(w http.ResponseWriter, v any) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(v)
	}
	mux.HandleFunc("/repos/acme/handbook/contents/docs", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, ref, r.URL.Query().Get("ref"))
		writeJSON(w, []entry{
			{Type: "file", Name: "intro.md", Path: "docs/intro.md"},
			{Type: "file", Name: "logo.png", Path: "docs/logo.png"},
			{Type: "dir", Name: "guides", Path: "docs/guides"},
		})
	})
	mux.HandleFunc("/repos/acme/handbook/contents/docs/guides", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, []entry{
			{Type: "file", Name: "NOTES.TXT", Path: "docs/guides/NOTES.TXT"},
		})
	})
	mux.HandleFunc("/repos/acme/handbook/contents/docs/intro.md", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]string{
			"type":     "file",
			"name":     "intro.md",
			"path":     "docs/intro.md",
			"sha":      "abc123",
			"encoding": "base64",
			"content":  base64.StdEncoding.EncodeToString([]byte("# Intro\n\nHello.\n")),
		})
	})
	mux.HandleFunc("/repos/acme/handbook/commits", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "docs", r.URL.Query().Get("path"))
		writeJSON(w, []map[string]string{{"sha": "deadbeef"}})
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	client, err := NewClient("")
	require.NoError(t, err)
	client.BaseURL, err = url.Parse(srv.URL + "/")
	require.NoError(t, err)

	return NewFetcher(client, "acme", "handbook", "/docs/", ref)
}

func TestListDocsFiltersExtensionsRecursively(t *testing.T) {
	f := newTestFetcher(t, "")

	docs, err := f.ListDocs(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"intro.md", "guides/NOTES.TXT"}, docs)
}

func TestListDocsPassesRef(t *testing.T) {
	f := newTestFetcher(t, "v2")

	_, err := f.ListDocs(context.Background())
	require.NoError(t, err)
}

func TestFetchDoc(t *testing.T) {
	f := newTestFetcher(t, "")

	doc, err := f.FetchDoc(context.Background(), "intro.md")
	require.NoError(t, err)
	assert.Equal(t, "intro.md", doc.Path)
	assert.Equal(t, "# Intro\n\nHello.\n", doc.Content)
	assert.Equal(t, "abc123", doc.SHA)
	assert.Equal(t, "https://raw.githubusercontent.com/acme/handbook/HEAD/docs/intro.md", doc.URL)
}

func TestFetchDocMissing(t *testing.T) {
	f := newTestFetcher(t, "")

	_, err := f.FetchDoc(context.Background(), "missing.md")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "docs/missing.md")
}

func TestGetLatestCommitSHA(t *testing.T) {
	f := newTestFetcher(t, "")

	sha, err := f.GetLatestCommitSHA(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "deadbeef", sha)
	assert.Equal(t, "acme/handbook", f.Repository())
}
