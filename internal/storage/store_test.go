package storage

import (
	"context"
	"errors"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bull/docintel/internal/errs"
)

// unitVector returns a VectorDimension vector with a single hot component.
func unitVector(hot int) []float32 {
	v := make([]float32, VectorDimension)
	v[hot] = 1
	return v
}

// testStoreContract exercises the behaviour every Store backend shares.
// Usernames are randomised so persistent backends can be reused across runs.
func testStoreContract(t *testing.T, store Store) {
	ctx := context.Background()
	suffix := uuid.New().String()[:8]

	owner := &User{Username: "alice-" + suffix, Email: "alice@example.com"}
	require.NoError(t, store.CreateUser(ctx, owner))
	require.NotEmpty(t, owner.ID)
	assert.Equal(t, RoleUser, owner.Role)

	t.Run("username is unique ignoring case", func(t *testing.T) {
		err := store.CreateUser(ctx, &User{Username: strings.ToUpper(owner.Username)})
		assert.ErrorIs(t, err, ErrUsernameTaken)
	})

	t.Run("user round trip", func(t *testing.T) {
		got, err := store.GetUser(ctx, owner.ID)
		require.NoError(t, err)
		assert.Equal(t, owner.Username, got.Username)
		assert.Equal(t, owner.Email, got.Email)
	})

	t.Run("unknown ids are not found", func(t *testing.T) {
		_, err := store.GetUser(ctx, uuid.New().String())
		assert.True(t, errors.Is(err, errs.ErrNotFound))
		_, err = store.GetDocument(ctx, uuid.New().String())
		assert.ErrorIs(t, err, ErrDocumentNotFound)
		assert.True(t, errors.Is(err, errs.ErrNotFound))
	})

	doc := &Document{
		UserID:   owner.ID,
		Filename: "contract.pdf",
		FileType: "pdf",
		Content:  "This agreement renews annually.",
	}
	id, err := store.CreateDocument(ctx, doc)
	require.NoError(t, err)
	require.NotEmpty(t, id)

	t.Run("new documents are pending", func(t *testing.T) {
		got, err := store.GetDocument(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, StatePending, got.Status.State)
		assert.Equal(t, "contract.pdf", got.Filename)
		assert.Equal(t, owner.ID, got.UserID)
		assert.Empty(t, got.Summary)
		assert.WithinDuration(t, doc.UploadedAt, got.UploadedAt, time.Second)
	})

	t.Run("status update keeps summary when nil", func(t *testing.T) {
		summary := "Annual renewal terms."
		require.NoError(t, store.UpdateStatusAndSummary(ctx, id, Completed(), &summary))
		require.NoError(t, store.UpdateStatusAndSummary(ctx, id, CompletedDegraded("embedding failed"), nil))

		got, err := store.GetDocument(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, summary, got.Summary)
		assert.True(t, got.Status.Degraded())
		assert.Equal(t, "embedding failed", got.Status.Diagnostic)
	})

	t.Run("status update on unknown document", func(t *testing.T) {
		err := store.UpdateStatusAndSummary(ctx, uuid.New().String(), Completed(), nil)
		assert.ErrorIs(t, err, ErrDocumentNotFound)
	})

	t.Run("embedding requires the configured dimension", func(t *testing.T) {
		err := store.CreateEmbedding(ctx, &Embedding{DocumentID: id, Vector: []float32{1, 2, 3}})
		assert.ErrorIs(t, err, ErrDimensionMismatch)
	})

	t.Run("embedding replaces the previous one", func(t *testing.T) {
		require.NoError(t, store.CreateEmbedding(ctx, &Embedding{DocumentID: id, Vector: unitVector(0), ModelName: "m1"}))
		require.NoError(t, store.CreateEmbedding(ctx, &Embedding{DocumentID: id, Vector: unitVector(1), ModelName: "m2"}))

		got, err := store.GetEmbedding(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, "m2", got.ModelName)
		assert.InDelta(t, 1.0, got.Vector[1], 1e-6)
		assert.InDelta(t, 0.0, got.Vector[0], 1e-6)
	})

	t.Run("listing joins the owner", func(t *testing.T) {
		rows, err := store.ListEmbeddingsWithOwner(ctx)
		require.NoError(t, err)

		var found *EmbeddedDocument
		for i := range rows {
			if rows[i].DocumentID == id {
				found = &rows[i]
			}
		}
		require.NotNil(t, found)
		assert.Equal(t, owner.Username, found.Username)
		assert.Equal(t, "contract.pdf", found.Filename)
		assert.Equal(t, "Annual renewal terms.", found.Summary)
		assert.Len(t, found.Vector, VectorDimension)

		for i := 1; i < len(rows); i++ {
			assert.Less(t, rows[i-1].DocumentID, rows[i].DocumentID)
		}
	})

	t.Run("documents without embeddings are not listed", func(t *testing.T) {
		other, err := store.CreateDocument(ctx, &Document{UserID: owner.ID, Filename: "notes.txt", FileType: "txt", Content: "x"})
		require.NoError(t, err)

		_, err = store.GetEmbedding(ctx, other)
		assert.ErrorIs(t, err, ErrEmbeddingNotFound)

		rows, err := store.ListEmbeddingsWithOwner(ctx)
		require.NoError(t, err)
		for _, row := range rows {
			assert.NotEqual(t, other, row.DocumentID)
		}
	})

	t.Run("deleted embeddings are gone", func(t *testing.T) {
		removed, err := store.DeleteEmbedding(ctx, id)
		require.NoError(t, err)
		assert.True(t, removed)

		_, err = store.GetEmbedding(ctx, id)
		assert.ErrorIs(t, err, ErrEmbeddingNotFound)
		rows, err := store.ListEmbeddingsWithOwner(ctx)
		require.NoError(t, err)
		for _, row := range rows {
			assert.NotEqual(t, id, row.DocumentID)
		}

		removed, err = store.DeleteEmbedding(ctx, id)
		require.NoError(t, err)
		assert.False(t, removed, "a second delete finds nothing")
		removed, err = store.DeleteEmbedding(ctx, uuid.New().String())
		require.NoError(t, err)
		assert.False(t, removed)

		require.NoError(t, store.CreateEmbedding(ctx, &Embedding{DocumentID: id, Vector: unitVector(2)}))
		_, err = store.GetEmbedding(ctx, id)
		assert.NoError(t, err, "a document can be embedded again")
	})

	assert.NoError(t, store.Health(ctx))
}

// testRankerContract checks server-side ranking against two known vectors.
func testRankerContract(t *testing.T, store Store, ranker Ranker) {
	ctx := context.Background()
	owner := &User{Username: "ranker-" + uuid.New().String()[:8]}
	require.NoError(t, store.CreateUser(ctx, owner))

	near, err := store.CreateDocument(ctx, &Document{UserID: owner.ID, Filename: "near.txt", FileType: "txt", Content: "near"})
	require.NoError(t, err)
	far, err := store.CreateDocument(ctx, &Document{UserID: owner.ID, Filename: "far.txt", FileType: "txt", Content: "far"})
	require.NoError(t, err)

	mixed := make([]float32, VectorDimension)
	mixed[300] = 1
	mixed[301] = 1
	require.NoError(t, store.CreateEmbedding(ctx, &Embedding{DocumentID: near, Vector: unitVector(300)}))
	require.NoError(t, store.CreateEmbedding(ctx, &Embedding{DocumentID: far, Vector: mixed}))

	scored, err := ranker.RankBySimilarity(ctx, unitVector(300), 100)
	require.NoError(t, err)

	positions := map[string]int{}
	for i, s := range scored {
		positions[s.DocumentID] = i
		if s.DocumentID == near {
			assert.InDelta(t, 1.0, s.Similarity, 1e-4)
			assert.Equal(t, owner.Username, s.Username)
		}
		if s.DocumentID == far {
			assert.InDelta(t, 0.7071, s.Similarity, 1e-3)
		}
	}
	require.Contains(t, positions, near)
	require.Contains(t, positions, far)
	assert.Less(t, positions[near], positions[far])

	_, err = ranker.RankBySimilarity(ctx, []float32{1}, 10)
	assert.ErrorIs(t, err, ErrDimensionMismatch)

	t.Run("ties at the cut resolve by id", func(t *testing.T) {
		var tied []string
		for range 3 {
			id, err := store.CreateDocument(ctx, &Document{UserID: owner.ID, Filename: "tie.txt", FileType: "txt", Content: "tie"})
			require.NoError(t, err)
			require.NoError(t, store.CreateEmbedding(ctx, &Embedding{DocumentID: id, Vector: unitVector(400)}))
			tied = append(tied, id)
		}
		slices.Sort(tied)

		scored, err := ranker.RankBySimilarity(ctx, unitVector(400), 2)
		require.NoError(t, err)
		require.Len(t, scored, 2)
		assert.Equal(t, tied[0], scored[0].DocumentID)
		assert.Equal(t, tied[1], scored[1].DocumentID)

		_, err = store.DeleteEmbedding(ctx, tied[0])
		require.NoError(t, err)
		scored, err = ranker.RankBySimilarity(ctx, unitVector(400), 2)
		require.NoError(t, err)
		require.Len(t, scored, 2)
		assert.Equal(t, tied[1], scored[0].DocumentID, "a deleted embedding is not ranked")
		assert.Equal(t, tied[2], scored[1].DocumentID)
	})
}
