package main

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/standardbeagle/semindex/internal/config"
	"github.com/standardbeagle/semindex/internal/query"
	"github.com/standardbeagle/semindex/internal/store"
	"github.com/standardbeagle/semindex/internal/types"
	"github.com/standardbeagle/semindex/internal/vectorstore"
)

func TestArg_ReturnsEmptyStringWhenOutOfRange(t *testing.T) {
	args := []string{"one", "two"}
	assert.Equal(t, "one", arg(args, 0))
	assert.Equal(t, "two", arg(args, 1))
	assert.Equal(t, "", arg(args, 2))
	assert.Equal(t, "", arg(args, -1))
}

func newTestSurfaceAndConfig(t *testing.T) (*query.Surface, *config.Config) {
	t.Helper()
	dir := t.TempDir()

	s, err := store.Open(filepath.Join(dir, "rel.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	vs, err := vectorstore.Open(filepath.Join(dir, "vec.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = vs.Close() })

	cfg := config.Defaults(dir)
	cfg.Project.Name = "proj"
	return &query.Surface{Store: s, VecStore: vs, DefaultLimit: 100}, cfg
}

func TestDispatchQuery_UnknownOperationErrors(t *testing.T) {
	s, cfg := newTestSurfaceAndConfig(t)
	_, err := dispatchQuery(context.Background(), cfg, s, "not_a_real_operation", nil)
	assert.Error(t, err)
}

func TestDispatchQuery_GetBlockDetailsRejectsNonIntegerID(t *testing.T) {
	s, cfg := newTestSurfaceAndConfig(t)
	_, err := dispatchQuery(context.Background(), cfg, s, "get_block_details", []string{"not-a-number"})
	assert.Error(t, err)
}

func TestDispatchQuery_GetFileByPathReturnsStoredFile(t *testing.T) {
	s, cfg := newTestSurfaceAndConfig(t)

	projectID, err := s.Store.UpsertProject(context.Background(), cfg.Project.Name, cfg.Project.Root, "")
	require.NoError(t, err)
	_, err = s.Store.IngestFile(context.Background(), projectID, types.File{
		ProjectID: projectID, FilePath: "main.go", Language: types.LangGo, Content: "x", ContentHash: "h",
	}, nil, nil)
	require.NoError(t, err)

	result, err := dispatchQuery(context.Background(), cfg, s, "get_file_by_path", []string{"main.go"})
	require.NoError(t, err)

	file, ok := result.(*types.File)
	require.True(t, ok)
	require.NotNil(t, file)
	assert.Equal(t, "main.go", file.FilePath)
}

func TestDispatchQuery_GetDependencyChainDefaultsDepth(t *testing.T) {
	s, cfg := newTestSurfaceAndConfig(t)

	projectID, err := s.Store.UpsertProject(context.Background(), cfg.Project.Name, cfg.Project.Root, "")
	require.NoError(t, err)
	_, err = s.Store.IngestFile(context.Background(), projectID, types.File{
		ProjectID: projectID, FilePath: "a.go", Language: types.LangGo, Content: "x", ContentHash: "h",
	}, nil, nil)
	require.NoError(t, err)

	result, err := dispatchQuery(context.Background(), cfg, s, "get_dependency_chain", []string{"a.go"})
	require.NoError(t, err)
	assert.NotNil(t, result)
}
