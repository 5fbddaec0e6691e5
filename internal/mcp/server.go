package mcp

import (
	"context"
	"log/slog"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/bull/docintel/internal/storage"
)

// Store is the part of the store the server needs.
type Store interface {
	UserLookup
	HealthChecker
}

// CacheProbe reports whether the cache backend is in use.
type CacheProbe interface {
	Available(ctx context.Context) bool
}

// Queue reports free enrichment capacity.
type Queue interface {
	Free() int
}

// Config holds server dependencies.
type Config struct {
	Store     Store
	Documents DocumentService
	Search    Searcher
	Cache     CacheProbe // optional
	Queue     Queue      // optional
	ModelName string
	Logger    *slog.Logger
}

// Server wraps the MCP server with dependencies.
type Server struct {
	server *mcp.Server
	logger *slog.Logger
}

var _ Store = storage.Store(nil)

// NewServer creates a configured MCP server with tools registered.
func NewServer(cfg *Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	impl := &mcp.Implementation{
		Name:    "docintel",
		Version: "v0.1.0",
	}

	server := mcp.NewServer(impl, nil)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "ingest_document",
		Description: "Store a text document for a user and queue it for summarization and embedding. Returns the document ID; poll get_document for the result.",
	}, makeIngestHandler(cfg.Store, cfg.Documents))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_document",
		Description: "Get a document's summary and enrichment status. Only the owner or an admin may read it.",
	}, makeGetHandler(cfg.Store, cfg.Documents))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "search_documents",
		Description: "Semantic search over enriched documents. Returns up to 10 documents above a 0.2 similarity floor, with their summaries and similarity scores.",
	}, makeSearchHandler(cfg.Search))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_service_status",
		Description: "Report store and cache connectivity, the embedding model and free enrichment queue capacity.",
	}, makeStatusHandler(cfg))

	return &Server{server: server, logger: logger}
}

// Run starts the server with stdio transport (blocks until client disconnects).
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info("Serving MCP over stdio")
	return s.server.Run(ctx, &mcp.StdioTransport{})
}

// MCPServer returns the underlying MCP server instance.
// Used by transport handlers that need to wrap the server.
func (s *Server) MCPServer() *mcp.Server {
	return s.server
}
