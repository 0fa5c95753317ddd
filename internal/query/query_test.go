package query

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/standardbeagle/semindex/internal/store"
	"github.com/standardbeagle/semindex/internal/types"
	"github.com/standardbeagle/semindex/internal/vectorstore"
)

func newTestSurface(t *testing.T) (*Surface, types.ProjectID) {
	t.Helper()
	dir := t.TempDir()

	s, err := store.Open(filepath.Join(dir, "rel.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	vs, err := vectorstore.Open(filepath.Join(dir, "vec.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = vs.Close() })

	ctx := context.Background()
	projectID, err := s.UpsertProject(ctx, "proj", "/abs/proj", "")
	require.NoError(t, err)

	return &Surface{Store: s, VecStore: vs, DefaultLimit: 100}, projectID
}

func seedFile(t *testing.T, q *Surface, projectID types.ProjectID, path string, blocks []types.CodeBlock) types.FileID {
	t.Helper()
	file := types.File{
		ProjectID:   projectID,
		FilePath:    path,
		Language:    types.LangGo,
		Content:     "package main\n",
		ContentHash: "h-" + path,
	}
	id, err := q.Store.IngestFile(context.Background(), projectID, file, blocks, nil)
	require.NoError(t, err)
	return id
}

func TestGetFileByPath_ReturnsNilWhenMissing(t *testing.T) {
	q, projectID := newTestSurface(t)
	f, err := q.GetFileByPath(context.Background(), projectID, "missing.go")
	require.NoError(t, err)
	assert.Nil(t, f)
}

func TestGetFileByPath_ReturnsStoredFile(t *testing.T) {
	q, projectID := newTestSurface(t)
	seedFile(t, q, projectID, "main.go", nil)

	f, err := q.GetFileByPath(context.Background(), projectID, "main.go")
	require.NoError(t, err)
	require.NotNil(t, f)
	assert.Equal(t, "main.go", f.FilePath)
}

func TestGetFileBlockSummary_OrderedByStartLine(t *testing.T) {
	q, projectID := newTestSurface(t)
	seedFile(t, q, projectID, "main.go", []types.CodeBlock{
		{ID: 2, Type: types.BlockFunction, Name: "second", StartLine: 10, EndLine: 15},
		{ID: 1, Type: types.BlockFunction, Name: "first", StartLine: 1, EndLine: 5},
	})

	summary, err := q.GetFileBlockSummary(context.Background(), projectID, "main.go")
	require.NoError(t, err)
	require.Len(t, summary, 2)
	assert.Equal(t, "first", summary[0].Name)
	assert.Equal(t, "second", summary[1].Name)
}

func TestGetBlocksByName_ExactMatchPreferredOverPrefix(t *testing.T) {
	q, projectID := newTestSurface(t)
	seedFile(t, q, projectID, "a.go", []types.CodeBlock{
		{ID: 1, Type: types.BlockFunction, Name: "handle", StartLine: 1, EndLine: 2},
		{ID: 2, Type: types.BlockFunction, Name: "handleRequest", StartLine: 3, EndLine: 4},
	})

	blocks, err := q.GetBlocksByName(context.Background(), &projectID, "handle", 0)
	require.NoError(t, err)
	require.Len(t, blocks, 1)
	assert.Equal(t, "handle", blocks[0].Name)
}

func TestGetBlocksByName_FallsBackToPrefixWhenNoExactMatch(t *testing.T) {
	q, projectID := newTestSurface(t)
	seedFile(t, q, projectID, "a.go", []types.CodeBlock{
		{ID: 1, Type: types.BlockFunction, Name: "handleRequest", StartLine: 1, EndLine: 2},
	})

	blocks, err := q.GetBlocksByName(context.Background(), &projectID, "handle", 0)
	require.NoError(t, err)
	require.Len(t, blocks, 1)
	assert.Equal(t, "handleRequest", blocks[0].Name)
}

func TestGetBlocksByKeyword_RanksNameMatchAboveContentMatch(t *testing.T) {
	q, projectID := newTestSurface(t)
	seedFile(t, q, projectID, "a.go", []types.CodeBlock{
		{ID: 1, Type: types.BlockFunction, Name: "parseConfig", Content: "returns nothing special", StartLine: 1, EndLine: 2},
		{ID: 2, Type: types.BlockFunction, Name: "other", Content: "calls parseConfig internally", StartLine: 3, EndLine: 4},
	})

	blocks, err := q.GetBlocksByKeyword(context.Background(), &projectID, "parseConfig", 0)
	require.NoError(t, err)
	require.Len(t, blocks, 2)
	assert.Equal(t, "parseConfig", blocks[0].Name)
}

func TestGetBlocksByKeyword_FuzzyFallbackOnTypo(t *testing.T) {
	q, projectID := newTestSurface(t)
	seedFile(t, q, projectID, "a.go", []types.CodeBlock{
		{ID: 1, Type: types.BlockFunction, Name: "parseConfig", Content: "x", StartLine: 1, EndLine: 2},
	})

	blocks, err := q.GetBlocksByKeyword(context.Background(), &projectID, "parseConfigg", 0)
	require.NoError(t, err)
	require.NotEmpty(t, blocks)
	assert.Equal(t, "parseConfig", blocks[0].Name)
}

func TestGetBlockDetails_JoinsFileAndProject(t *testing.T) {
	q, projectID := newTestSurface(t)
	seedFile(t, q, projectID, "a.go", []types.CodeBlock{
		{ID: 7, Type: types.BlockFunction, Name: "f", StartLine: 1, EndLine: 2},
	})

	block, file, project, err := q.GetBlockDetails(context.Background(), types.BlockID(7))
	require.NoError(t, err)
	require.NotNil(t, block)
	assert.Equal(t, "f", block.Name)
	assert.Equal(t, "a.go", file.FilePath)
	assert.Equal(t, projectID, project.ID)
}

func TestGetBlockDetails_ReturnsNilWhenMissing(t *testing.T) {
	q, _ := newTestSurface(t)
	block, file, project, err := q.GetBlockDetails(context.Background(), types.BlockID(999))
	require.NoError(t, err)
	assert.Nil(t, block)
	assert.Nil(t, file)
	assert.Nil(t, project)
}

func TestGetFileImports_IncludesUnresolvedExternal(t *testing.T) {
	q, projectID := newTestSurface(t)
	sourceID := seedFile(t, q, projectID, "main.go", nil)

	rels := []types.Relationship{
		{SourceID: sourceID, Type: types.RelationshipImport, Metadata: types.RelationshipMetadata{ImportText: "fmt", ExternalPackage: "fmt"}},
	}
	file := types.File{ProjectID: projectID, FilePath: "main.go", Language: types.LangGo, Content: "x", ContentHash: "h2"}
	_, err := q.Store.IngestFile(context.Background(), projectID, file, nil, rels)
	require.NoError(t, err)

	imports, err := q.GetFileImports(context.Background(), projectID, "main.go")
	require.NoError(t, err)
	require.Len(t, imports, 1)
	assert.Nil(t, imports[0].ImportedFile)
	assert.Equal(t, "fmt", imports[0].Metadata.ExternalPackage)
}

func TestGetDependencyChain_BreaksCycles(t *testing.T) {
	q, projectID := newTestSurface(t)

	aID := seedFile(t, q, projectID, "a.go", nil)
	bID := seedFile(t, q, projectID, "b.go", nil)

	// a imports b, b imports a: a cycle.
	relsA := []types.Relationship{{SourceID: aID, TargetID: &bID, Type: types.RelationshipImport}}
	relsB := []types.Relationship{{SourceID: bID, TargetID: &aID, Type: types.RelationshipImport}}

	fileA := types.File{ProjectID: projectID, FilePath: "a.go", Language: types.LangGo, Content: "x", ContentHash: "ha"}
	fileB := types.File{ProjectID: projectID, FilePath: "b.go", Language: types.LangGo, Content: "y", ContentHash: "hb"}
	_, err := q.Store.IngestFile(context.Background(), projectID, fileA, nil, relsA)
	require.NoError(t, err)
	_, err = q.Store.IngestFile(context.Background(), projectID, fileB, nil, relsB)
	require.NoError(t, err)

	chain, err := q.GetDependencyChain(context.Background(), projectID, "a.go", 5)
	require.NoError(t, err)
	// Must terminate (cycle broken) and visit each file at most once.
	seen := map[string]int{}
	for _, node := range chain {
		seen[node.FilePath]++
	}
	for path, count := range seen {
		assert.Equal(t, 1, count, "file %s visited more than once", path)
	}
}

func TestSemanticSearch_EnrichesFileOwnerKey(t *testing.T) {
	q, projectID := newTestSurface(t)
	seedFile(t, q, projectID, "main.go", nil)

	f, err := q.GetFileByPath(context.Background(), projectID, "main.go")
	require.NoError(t, err)
	require.NotNil(t, f)

	var vec [types.EmbeddingDim]float32
	for i := range vec {
		vec[i] = 1.0
	}
	err = q.VecStore.InsertBatch(context.Background(), []types.Embedding{
		{OwnerKey: types.FileOwnerKey(f.ID), ProjectID: projectID, ChunkIndex: 0, ChunkStartLine: 1, ChunkEndLine: 1, Vector: vec},
	})
	require.NoError(t, err)

	hits, err := q.SemanticSearch(context.Background(), vec, &projectID, 0, 0)
	require.NoError(t, err)
	require.NotEmpty(t, hits)
	assert.Equal(t, "main.go", hits[0].FilePath)
}
