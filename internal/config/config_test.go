package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults_SetsDocumentedValues(t *testing.T) {
	cfg := Defaults("/abs/proj")
	assert.Equal(t, "/abs/proj", cfg.Project.Root)
	assert.Equal(t, int64(10*1024*1024), cfg.Index.MaxFileSize)
	assert.True(t, cfg.Index.RespectGitignore)
	assert.Equal(t, 300, cfg.Index.NestedHoistLineThreshold)
	assert.Equal(t, 20, cfg.Embedding.ChunkLines)
	assert.Equal(t, 384, cfg.Embedding.EmbeddingDim)
	assert.Equal(t, 100, cfg.Query.DefaultLimit)
	assert.InDelta(t, 0.20, cfg.Query.SimilarityThreshold, 0.0001)
	assert.Equal(t, DefaultExcludes, cfg.Exclude)
	assert.Empty(t, cfg.Include)
}

func TestLoad_MissingKDLFileReturnsDefaults(t *testing.T) {
	root := t.TempDir()
	cfg, err := Load(root)
	require.NoError(t, err)
	assert.Equal(t, Defaults(cfg.Project.Root).Index, cfg.Index)
}

func TestLoad_ReadsAndAppliesKDLFile(t *testing.T) {
	root := t.TempDir()
	kdl := `project {
    name "loaded-project"
}
index {
    max_file_size 4096
}
`
	require.NoError(t, os.WriteFile(filepath.Join(root, ".semindex.kdl"), []byte(kdl), 0o644))

	cfg, err := Load(root)
	require.NoError(t, err)
	assert.Equal(t, "loaded-project", cfg.Project.Name)
	assert.Equal(t, int64(4096), cfg.Index.MaxFileSize)
}

func TestLoad_ResolvesRelativeRootToAbsolute(t *testing.T) {
	cfg, err := Load(".")
	require.NoError(t, err)
	assert.True(t, filepath.IsAbs(cfg.Project.Root))
}

func TestLoad_InvalidKDLReturnsError(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, ".semindex.kdl"), []byte(`project { root "unterminated`), 0o644))

	_, err := Load(root)
	assert.Error(t, err)
}
