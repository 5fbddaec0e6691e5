//go:build integration

package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

// setupTestStorage creates a test storage instance and ensures collections exist.
// Skips test if Qdrant is not running.
func setupTestStorage(t *testing.T) *QdrantStorage {
	storage, err := NewQdrantStorage("localhost", 6334)
	if err != nil {
		t.Skipf("Qdrant not available: %v", err)
	}
	t.Cleanup(func() { storage.Close() })

	err = storage.EnsureCollections(context.Background())
	require.NoError(t, err, "Failed to ensure collections")

	return storage
}

func TestQdrantStoreContract(t *testing.T) {
	testStoreContract(t, setupTestStorage(t))
}

func TestQdrantRanking(t *testing.T) {
	storage := setupTestStorage(t)
	testRankerContract(t, storage, storage)
}

func TestEnsureCollectionsIdempotent(t *testing.T) {
	storage := setupTestStorage(t)
	require.NoError(t, storage.EnsureCollections(context.Background()))
}
