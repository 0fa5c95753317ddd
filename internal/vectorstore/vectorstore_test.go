package vectorstore

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/standardbeagle/semindex/internal/types"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test-vec.db")
	s, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func vector(fill float32) [types.EmbeddingDim]float32 {
	var v [types.EmbeddingDim]float32
	for i := range v {
		v[i] = fill
	}
	return v
}

func TestInsertBatch_EmptyIsNoop(t *testing.T) {
	s := openTestStore(t)
	assert.NoError(t, s.InsertBatch(context.Background(), nil))
}

func TestSearch_ReturnsClosestVectorFirst(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	rows := []types.Embedding{
		{OwnerKey: "file_1", ProjectID: 1, ChunkIndex: 0, ChunkStartLine: 1, ChunkEndLine: 20, Vector: vector(1.0)},
		{OwnerKey: "file_2", ProjectID: 1, ChunkIndex: 0, ChunkStartLine: 1, ChunkEndLine: 20, Vector: vector(0.0)},
	}
	require.NoError(t, s.InsertBatch(ctx, rows))

	results, err := s.Search(ctx, vector(1.0), 2, 0, nil)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "file_1", results[0].OwnerKey)
}

func TestSearch_ScopesByProjectID(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	p1 := types.ProjectID(1)
	p2 := types.ProjectID(2)
	rows := []types.Embedding{
		{OwnerKey: "p1_file", ProjectID: p1, ChunkIndex: 0, Vector: vector(1.0)},
		{OwnerKey: "p2_file", ProjectID: p2, ChunkIndex: 0, Vector: vector(1.0)},
	}
	require.NoError(t, s.InsertBatch(ctx, rows))

	results, err := s.Search(ctx, vector(1.0), 10, 0, &p1)
	require.NoError(t, err)
	for _, r := range results {
		assert.Equal(t, "p1_file", r.OwnerKey)
	}
}

func TestSearch_DropsBelowThreshold(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	rows := []types.Embedding{
		{OwnerKey: "near", ProjectID: 1, ChunkIndex: 0, Vector: vector(1.0)},
		{OwnerKey: "far", ProjectID: 1, ChunkIndex: 0, Vector: vector(-1.0)},
	}
	require.NoError(t, s.InsertBatch(ctx, rows))

	results, err := s.Search(ctx, vector(1.0), 10, 0.99, nil)
	require.NoError(t, err)
	for _, r := range results {
		assert.GreaterOrEqual(t, r.Similarity, 0.99)
	}
}

func TestDeleteByOwner_RemovesOnlyThatOwner(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	rows := []types.Embedding{
		{OwnerKey: "keep", ProjectID: 1, ChunkIndex: 0, Vector: vector(1.0)},
		{OwnerKey: "drop", ProjectID: 1, ChunkIndex: 0, Vector: vector(1.0)},
	}
	require.NoError(t, s.InsertBatch(ctx, rows))
	require.NoError(t, s.DeleteByOwner(ctx, "drop"))

	results, err := s.Search(ctx, vector(1.0), 10, 0, nil)
	require.NoError(t, err)
	for _, r := range results {
		assert.NotEqual(t, "drop", r.OwnerKey)
	}
}
