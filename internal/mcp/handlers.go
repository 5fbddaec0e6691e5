package mcp

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/bull/docintel/internal/documents"
	"github.com/bull/docintel/internal/errs"
	"github.com/bull/docintel/internal/search"
	"github.com/bull/docintel/internal/storage"
)

// DocumentService ingests and reads documents. *documents.Service implements it.
type DocumentService interface {
	Ingest(ctx context.Context, owner *storage.User, filename, text string) (*storage.Document, error)
	Get(ctx context.Context, caller *storage.User, id string) (*documents.View, error)
}

// Searcher answers similarity queries. *search.Engine implements it.
type Searcher interface {
	Search(ctx context.Context, query string) (*search.Response, error)
}

// UserLookup resolves the calling user.
type UserLookup interface {
	GetUser(ctx context.Context, id string) (*storage.User, error)
}

// refusal reports whether err is the caller's fault. Those errors are
// returned as structured output; anything else becomes a tool error.
func refusal(err error) (string, bool) {
	if errors.Is(err, errs.ErrValidation) || errors.Is(err, errs.ErrNotFound) || errors.Is(err, errs.ErrForbidden) {
		return err.Error(), true
	}
	return "", false
}

func lookupCaller(ctx context.Context, users UserLookup, id string) (*storage.User, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: user_id is required", errs.ErrValidation)
	}
	return users.GetUser(ctx, id)
}

// makeIngestHandler creates the ingest_document tool handler.
// A document stored but refused by the enrichment queue is reported with
// its ID and the failed status, plus the refusal in Error.
func makeIngestHandler(users UserLookup, docs DocumentService) func(
	context.Context, *mcp.CallToolRequest, IngestDocumentInput,
) (*mcp.CallToolResult, IngestDocumentOutput, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input IngestDocumentInput) (
		*mcp.CallToolResult, IngestDocumentOutput, error,
	) {
		owner, err := lookupCaller(ctx, users, input.UserID)
		if err != nil {
			if msg, ok := refusal(err); ok {
				return nil, IngestDocumentOutput{Error: msg}, nil
			}
			return nil, IngestDocumentOutput{}, err
		}

		doc, err := docs.Ingest(ctx, owner, input.Filename, input.Content)
		if doc != nil {
			out := IngestDocumentOutput{
				DocumentID: doc.ID,
				Filename:   doc.Filename,
				Status:     doc.Status.String(),
			}
			if err != nil {
				out.Error = err.Error()
			}
			return nil, out, nil
		}
		if msg, ok := refusal(err); ok {
			return nil, IngestDocumentOutput{Error: msg}, nil
		}
		return nil, IngestDocumentOutput{}, err
	}
}

// makeGetHandler creates the get_document tool handler.
func makeGetHandler(users UserLookup, docs DocumentService) func(
	context.Context, *mcp.CallToolRequest, GetDocumentInput,
) (*mcp.CallToolResult, GetDocumentOutput, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input GetDocumentInput) (
		*mcp.CallToolResult, GetDocumentOutput, error,
	) {
		caller, err := lookupCaller(ctx, users, input.UserID)
		if err == nil {
			var view *documents.View
			view, err = docs.Get(ctx, caller, input.DocumentID)
			if err == nil {
				return nil, GetDocumentOutput{Document: toDocument(view), Found: true}, nil
			}
		}
		if msg, ok := refusal(err); ok {
			return nil, GetDocumentOutput{Found: false, Error: msg}, nil
		}
		return nil, GetDocumentOutput{}, err
	}
}

// makeSearchHandler creates the search_documents tool handler.
func makeSearchHandler(engine Searcher) func(
	context.Context, *mcp.CallToolRequest, SearchDocumentsInput,
) (*mcp.CallToolResult, SearchDocumentsOutput, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input SearchDocumentsInput) (
		*mcp.CallToolResult, SearchDocumentsOutput, error,
	) {
		resp, err := engine.Search(ctx, input.Query)
		if err != nil {
			if msg, ok := refusal(err); ok {
				return nil, SearchDocumentsOutput{Results: []search.Result{}, Error: msg}, nil
			}
			return nil, SearchDocumentsOutput{}, err
		}

		results := resp.Results
		if results == nil {
			results = []search.Result{} // Ensure non-nil for JSON marshaling
		}
		return nil, SearchDocumentsOutput{Results: results, Message: resp.Message}, nil
	}
}

// makeStatusHandler creates the get_service_status tool handler. Dependency
// failures are reported in the output, never as tool errors.
func makeStatusHandler(cfg *Config) func(context.Context, *mcp.CallToolRequest, StatusInput) (*mcp.CallToolResult, StatusOutput, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input StatusInput) (
		*mcp.CallToolResult, StatusOutput, error,
	) {
		checkCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		defer cancel()

		out := StatusOutput{
			Store:          "connected",
			Cache:          "unavailable",
			EmbeddingModel: cfg.ModelName,
			CheckedAt:      time.Now().UTC().Format(time.RFC3339),
		}
		if err := cfg.Store.Health(checkCtx); err != nil {
			out.Store = "disconnected"
		}
		if cfg.Cache != nil && cfg.Cache.Available(checkCtx) {
			out.Cache = "available"
		}
		if cfg.Queue != nil {
			out.QueueFree = cfg.Queue.Free()
		}
		return nil, out, nil
	}
}
