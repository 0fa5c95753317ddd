package store

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
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestUpsertProject_IsIdempotentByPath(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	id1, err := s.UpsertProject(ctx, "proj", "/abs/proj", "")
	require.NoError(t, err)

	id2, err := s.UpsertProject(ctx, "proj renamed", "/abs/proj", "new desc")
	require.NoError(t, err)

	assert.Equal(t, id1, id2)
}

func TestIngestFile_StoresBlocksAndRelationships(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	projectID, err := s.UpsertProject(ctx, "proj", "/abs/proj", "")
	require.NoError(t, err)

	file := types.File{
		ProjectID:   projectID,
		FilePath:    "main.go",
		Language:    types.LangGo,
		Content:     "package main\n",
		ContentHash: "hash1",
	}
	blocks := []types.CodeBlock{
		{ID: 100, Type: types.BlockFunction, Name: "main", StartLine: 1, EndLine: 3},
	}

	fileID, err := s.IngestFile(ctx, projectID, file, blocks, nil)
	require.NoError(t, err)
	assert.NotZero(t, fileID)

	var count int
	row := s.DB().QueryRowContext(ctx, `SELECT COUNT(*) FROM code_blocks WHERE file_id = ?`, fileID)
	require.NoError(t, row.Scan(&count))
	assert.Equal(t, 1, count)
}

func TestIngestFile_ReplacesPreviousBlocksOnReingest(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	projectID, err := s.UpsertProject(ctx, "proj", "/abs/proj", "")
	require.NoError(t, err)

	file := types.File{ProjectID: projectID, FilePath: "main.go", Language: types.LangGo, Content: "v1", ContentHash: "h1"}
	first := []types.CodeBlock{
		{ID: 100, Type: types.BlockFunction, Name: "old", StartLine: 1, EndLine: 2},
	}
	fileID, err := s.IngestFile(ctx, projectID, file, first, nil)
	require.NoError(t, err)

	file.Content = "v2"
	file.ContentHash = "h2"
	second := []types.CodeBlock{
		{ID: 200, Type: types.BlockFunction, Name: "new", StartLine: 1, EndLine: 2},
	}
	_, err = s.IngestFile(ctx, projectID, file, second, nil)
	require.NoError(t, err)

	var name string
	row := s.DB().QueryRowContext(ctx, `SELECT name FROM code_blocks WHERE file_id = ?`, fileID)
	require.NoError(t, row.Scan(&name))
	assert.Equal(t, "new", name)

	var count int
	countRow := s.DB().QueryRowContext(ctx, `SELECT COUNT(*) FROM code_blocks WHERE file_id = ?`, fileID)
	require.NoError(t, countRow.Scan(&count))
	assert.Equal(t, 1, count)
}

func TestRemoveFile_CascadesBlocksAndHash(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	projectID, err := s.UpsertProject(ctx, "proj", "/abs/proj", "")
	require.NoError(t, err)

	file := types.File{ProjectID: projectID, FilePath: "gone.go", Language: types.LangGo, Content: "x", ContentHash: "h"}
	blocks := []types.CodeBlock{{ID: 300, Type: types.BlockFunction, Name: "f", StartLine: 1, EndLine: 1}}
	fileID, err := s.IngestFile(ctx, projectID, file, blocks, nil)
	require.NoError(t, err)

	require.NoError(t, s.RemoveFile(ctx, projectID, "gone.go"))

	var count int
	row := s.DB().QueryRowContext(ctx, `SELECT COUNT(*) FROM code_blocks WHERE file_id = ?`, fileID)
	require.NoError(t, row.Scan(&count))
	assert.Equal(t, 0, count)

	hashes, err := s.StoredHashes(ctx, projectID)
	require.NoError(t, err)
	_, ok := hashes["gone.go"]
	assert.False(t, ok)
}

func TestStoredHashes_ReturnsPerProjectMap(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	projectID, err := s.UpsertProject(ctx, "proj", "/abs/proj", "")
	require.NoError(t, err)

	file := types.File{ProjectID: projectID, FilePath: "a.go", Language: types.LangGo, Content: "x", ContentHash: "abc123"}
	_, err = s.IngestFile(ctx, projectID, file, nil, nil)
	require.NoError(t, err)

	hashes, err := s.StoredHashes(ctx, projectID)
	require.NoError(t, err)
	assert.Equal(t, "abc123", hashes["a.go"])
}

func TestFileIDsByPath_ReturnsAllProjectFiles(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	projectID, err := s.UpsertProject(ctx, "proj", "/abs/proj", "")
	require.NoError(t, err)

	for _, path := range []string{"a.go", "b.go"} {
		file := types.File{ProjectID: projectID, FilePath: path, Language: types.LangGo, Content: "x", ContentHash: "h"}
		_, err := s.IngestFile(ctx, projectID, file, nil, nil)
		require.NoError(t, err)
	}

	ids, err := s.FileIDsByPath(ctx, projectID)
	require.NoError(t, err)
	assert.Len(t, ids, 2)
	assert.Contains(t, ids, "a.go")
	assert.Contains(t, ids, "b.go")
}

func TestIngestFile_RelationshipTargetResolution(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	projectID, err := s.UpsertProject(ctx, "proj", "/abs/proj", "")
	require.NoError(t, err)

	target := types.File{ProjectID: projectID, FilePath: "lib.go", Language: types.LangGo, Content: "x", ContentHash: "h1"}
	targetID, err := s.IngestFile(ctx, projectID, target, nil, nil)
	require.NoError(t, err)

	source := types.File{ProjectID: projectID, FilePath: "main.go", Language: types.LangGo, Content: "y", ContentHash: "h2"}
	rels := []types.Relationship{
		{TargetID: &targetID, Type: types.RelationshipImport, Metadata: types.RelationshipMetadata{ImportText: "./lib"}},
	}
	sourceID, err := s.IngestFile(ctx, projectID, source, nil, rels)
	require.NoError(t, err)

	var gotTarget int64
	row := s.DB().QueryRowContext(ctx, `SELECT target_id FROM relationships WHERE source_id = ?`, sourceID)
	require.NoError(t, row.Scan(&gotTarget))
	assert.Equal(t, int64(targetID), gotTarget)
}
