package storage

import (
	"context"
	"fmt"
)

// Store is the durable record of users, documents and embeddings.
// It is the source of truth; every cached value is derived from it.
type Store interface {
	// CreateUser assigns u.ID when empty and persists the user.
	CreateUser(ctx context.Context, u *User) error
	GetUser(ctx context.Context, id string) (*User, error)

	// CreateDocument assigns an ID and UploadedAt when empty and returns the ID.
	CreateDocument(ctx context.Context, doc *Document) (string, error)
	GetDocument(ctx context.Context, id string) (*Document, error)
	// UpdateStatusAndSummary sets the status and, when summary is non-nil, the summary.
	UpdateStatusAndSummary(ctx context.Context, id string, status Status, summary *string) error

	// CreateEmbedding replaces any embedding already recorded for the document.
	CreateEmbedding(ctx context.Context, e *Embedding) error
	GetEmbedding(ctx context.Context, documentID string) (*Embedding, error)
	// DeleteEmbedding removes the document's embedding and reports whether
	// one was recorded. A missing embedding is not an error.
	DeleteEmbedding(ctx context.Context, documentID string) (bool, error)
	// ListEmbeddingsWithOwner returns every search-eligible document.
	ListEmbeddingsWithOwner(ctx context.Context) ([]EmbeddedDocument, error)

	Health(ctx context.Context) error
	Close() error
}

// Ranker is implemented by stores that rank by cosine similarity server-side.
// Results must be ordered by descending similarity, ties by ascending
// document ID, and hold at most limit entries. Documents tied with the
// last returned entry are resolved by ID across the whole collection, not
// just among the first limit points the backend happens to return.
type Ranker interface {
	RankBySimilarity(ctx context.Context, query []float32, limit int) ([]ScoredDocument, error)
}

// checkDimension validates a vector against VectorDimension.
func checkDimension(vector []float32) error {
	if len(vector) != VectorDimension {
		return fmt.Errorf("%w: got %d dimensions, expected %d",
			ErrDimensionMismatch, len(vector), VectorDimension)
	}
	return nil
}
