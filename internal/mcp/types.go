// Package mcp exposes docintel ingestion, document reads and semantic search
// as Model Context Protocol tools.
package mcp

import (
	"time"

	"github.com/bull/docintel/internal/documents"
	"github.com/bull/docintel/internal/search"
)

// Document is the caller's view of a document as returned by get_document.
type Document struct {
	ID       string `json:"id"`
	Filename string `json:"filename"`
	// Summary is a placeholder until enrichment produced one.
	Summary string `json:"summary"`
	// Status is "completed", "failed: <reason>" and so on.
	Status     string `json:"status"`
	State      string `json:"state"`
	Degraded   bool   `json:"degraded"`
	UploadedBy string `json:"uploaded_by"`
	UploadedAt string `json:"uploaded_at"` // RFC 3339
}

func toDocument(v *documents.View) *Document {
	return &Document{
		ID:         v.ID,
		Filename:   v.Filename,
		Summary:    v.Summary,
		Status:     v.Status,
		State:      string(v.State),
		Degraded:   v.Degraded,
		UploadedBy: v.UploadedBy,
		UploadedAt: v.UploadedAt.UTC().Format(time.RFC3339),
	}
}

// IngestDocumentInput defines the input parameters for the ingest_document tool.
type IngestDocumentInput struct {
	// UserID identifies the caller, who becomes the owner.
	UserID string `json:"user_id" jsonschema:"ID of the user uploading the document"`
	// Filename must end in .pdf, .docx, .txt or .md.
	Filename string `json:"filename" jsonschema:"Original file name; its extension selects the file type"`
	// Content is the already extracted text.
	Content string `json:"content" jsonschema:"Plain text content of the document"`
}

// IngestDocumentOutput reports the stored document.
type IngestDocumentOutput struct {
	DocumentID string `json:"document_id,omitempty"`
	Filename   string `json:"filename,omitempty"`
	// Status is the rendered enrichment status right after submission.
	Status string `json:"status,omitempty"`
	// Error explains why the request was refused (validation, unknown user,
	// or enrichment not admitted).
	Error string `json:"error,omitempty"`
}

// GetDocumentInput defines the input parameters for the get_document tool.
type GetDocumentInput struct {
	UserID     string `json:"user_id" jsonschema:"ID of the calling user; only the owner or an admin may read a document"`
	DocumentID string `json:"document_id" jsonschema:"Document ID returned by ingest_document"`
}

// GetDocumentOutput contains the caller's view of a document.
type GetDocumentOutput struct {
	Document *Document `json:"document,omitempty"`
	// Found is false when the document does not exist or may not be read.
	Found bool   `json:"found"`
	Error string `json:"error,omitempty"`
}

// SearchDocumentsInput defines the input parameters for the search_documents tool.
type SearchDocumentsInput struct {
	Query string `json:"query" jsonschema:"Free text query matched semantically against enriched documents"`
}

// SearchDocumentsOutput contains the ranked results.
type SearchDocumentsOutput struct {
	Results []search.Result `json:"results"`
	// Message provides informational context (e.g., "No matching documents found").
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// StatusInput takes no parameters.
type StatusInput struct{}

// StatusOutput describes the health of the service and its dependencies.
type StatusOutput struct {
	Store          string `json:"store"` // connected or disconnected
	Cache          string `json:"cache"` // available or unavailable
	EmbeddingModel string `json:"embedding_model"`
	QueueFree      int    `json:"queue_free"`
	CheckedAt      string `json:"checked_at"`
}
