package cache

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
)

// Mutation names a store write that makes cached values stale.
type Mutation int

const (
	// DocumentChanged follows any write to a document's status or summary.
	DocumentChanged Mutation = iota
	// EmbeddingWritten follows any embedding insert or replacement.
	EmbeddingWritten
)

func (m Mutation) String() string {
	switch m {
	case DocumentChanged:
		return "document_changed"
	case EmbeddingWritten:
		return "embedding_written"
	default:
		return "unknown"
	}
}

// invalidation is what one mutation clears. When generation is set, its
// token is replaced before the prefix is cleared so a computation that
// started earlier can tell its result is stale.
type invalidation struct {
	prefix     func(documentID string) string
	generation string
}

// searchGenerationKey sits outside the search namespace so clearing that
// namespace leaves it in place.
const searchGenerationKey = "generation:" + NamespaceSearch

// invalidations is the single table mapping each mutation to the keys it
// clears.
var invalidations = map[Mutation]invalidation{
	DocumentChanged: {prefix: func(id string) string { return documentScope(id) + ":" }},
	EmbeddingWritten: {
		prefix:     func(string) string { return NamespaceSearch + ":" },
		generation: searchGenerationKey,
	},
}

// Invalidate clears every cached value made stale by m and returns the
// number of keys removed.
func Invalidate(ctx context.Context, c Cache, m Mutation, documentID string) int {
	inv, ok := invalidations[m]
	if !ok {
		return 0
	}
	if inv.generation != "" {
		c.Set(ctx, inv.generation, []byte(uuid.NewString()), 0)
	}
	prefix := inv.prefix(documentID)
	n := c.DeletePrefix(ctx, prefix)
	slog.Default().Debug("cache invalidated", "mutation", m, "prefix", prefix, "keys", n)
	return n
}

// SearchGeneration returns the token of the current search scope. It
// changes on every EmbeddingWritten invalidation; a search result must only
// be cached while the token read before ranking is still current.
func SearchGeneration(ctx context.Context, c Cache) string {
	token, _ := c.Get(ctx, searchGenerationKey)
	return string(token)
}
