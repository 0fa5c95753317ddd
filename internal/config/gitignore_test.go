package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGitignoreParser_LoadGitignore_MissingFileIsNotError(t *testing.T) {
	gp := NewGitignoreParser()
	assert.NoError(t, gp.LoadGitignore(t.TempDir()))
}

func TestGitignoreParser_MatchesSimplePattern(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, ".gitignore"), []byte("*.log\nnode_modules/\n"), 0o644))

	gp := NewGitignoreParser()
	require.NoError(t, gp.LoadGitignore(root))

	assert.True(t, gp.Match("debug.log", false))
	assert.True(t, gp.Match("nested/debug.log", false))
	assert.True(t, gp.Match("node_modules", true))
	assert.True(t, gp.Match("node_modules/pkg/index.js", false))
	assert.False(t, gp.Match("main.go", false))
}

func TestGitignoreParser_NegationOverridesEarlierMatch(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, ".gitignore"), []byte("*.log\n!important.log\n"), 0o644))

	gp := NewGitignoreParser()
	require.NoError(t, gp.LoadGitignore(root))

	assert.True(t, gp.Match("debug.log", false))
	assert.False(t, gp.Match("important.log", false))
}

func TestGitignoreParser_DirectoryOnlyPatternDoesNotMatchFiles(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, ".gitignore"), []byte("build/\n"), 0o644))

	gp := NewGitignoreParser()
	require.NoError(t, gp.LoadGitignore(root))

	assert.True(t, gp.Match("build", true))
	assert.False(t, gp.Match("build", false))
}

func TestGitignoreParser_AbsoluteAnchorsAtRoot(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, ".gitignore"), []byte("/only_at_root.txt\n"), 0o644))

	gp := NewGitignoreParser()
	require.NoError(t, gp.LoadGitignore(root))

	assert.True(t, gp.Match("only_at_root.txt", false))
	assert.False(t, gp.Match("nested/only_at_root.txt", false))
}
