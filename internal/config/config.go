// Package config defines semindex's configuration surface and loads it from
// a project's .semindex.kdl file, following the teacher tool's KDL-based
// config convention and falling back to documented defaults when no file is
// present. Config loading is an ambient concern carried over even though
// the distilled spec treats CLI/config loading as out of scope for the core
// pipeline's contract.
package config

import (
	"os"
	"path/filepath"
	"runtime"
)

// Config is the full set of recognized options (spec.md §6).
type Config struct {
	Project     Project
	Index       Index
	Embedding   Embedding
	Query       Query
	Performance Performance
	Include     []string
	Exclude     []string
}

// Project identifies the root being indexed.
type Project struct {
	Root string
	Name string
}

// Index controls file discovery and hashing (C1) and the hoisting
// threshold applied to extracted blocks (C4).
type Index struct {
	MaxFileSize              int64
	FollowSymlinks           bool
	RespectGitignore         bool
	WatchMode                bool
	WatchDebounceMs          int
	NestedHoistLineThreshold int // default 300, spec.md §4.4
}

// Embedding locates the model and the databases used by C6-C8. ChunkLines,
// EmbeddingDim and InferenceMaxTokens are parsed but not read: chunking and
// token truncation always use the fixed embedding.ChunkLines (20) and
// embedding.MaxTokens (256).
type Embedding struct {
	ModelDir          string
	ChunkLines        int // default 20
	EmbeddingDim      int // fixed 384
	InferenceMaxTokens int // default 256
	GraphDBPath       string
	VectorDBPath      string
}

// Query controls the agent-facing retrieval surface (C10).
type Query struct {
	DefaultLimit       int     // default 100
	SimilarityThreshold float64 // default 0.20
}

// Performance bounds the worker pool used by the orchestrator (C9).
type Performance struct {
	MaxGoroutines int // 0 = auto-detect (NumCPU)
}

// Defaults returns the configuration used when no .semindex.kdl file is
// found, rooted at root (an absolute path).
func Defaults(root string) *Config {
	return &Config{
		Project: Project{Root: root},
		Index: Index{
			MaxFileSize:              10 * 1024 * 1024,
			FollowSymlinks:           false,
			RespectGitignore:         true,
			WatchMode:                false,
			WatchDebounceMs:          300,
			NestedHoistLineThreshold: 300,
		},
		Embedding: Embedding{
			ModelDir:           "models/minilm",
			ChunkLines:         20,
			EmbeddingDim:       384,
			InferenceMaxTokens: 256,
			GraphDBPath:        "graph.db",
			VectorDBPath:       "vectors.db",
		},
		Query: Query{
			DefaultLimit:        100,
			SimilarityThreshold: 0.20,
		},
		Performance: Performance{
			MaxGoroutines: runtime.NumCPU(),
		},
		Include: []string{},
		Exclude: DefaultExcludes,
	}
}

// Load reads .semindex.kdl from root (if present) and layers it over
// Defaults(root); a missing file is not an error.
func Load(root string) (*Config, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		absRoot = root
	}
	cfg := Defaults(absRoot)

	kdlPath := filepath.Join(absRoot, ".semindex.kdl")
	if _, statErr := os.Stat(kdlPath); statErr != nil {
		return cfg, nil
	}

	content, err := os.ReadFile(kdlPath)
	if err != nil {
		return nil, err
	}

	if err := applyKDL(cfg, string(content)); err != nil {
		return nil, err
	}
	return cfg, nil
}

// DefaultExcludes are the glob patterns pruned before descent in C1's file
// scan: version-control metadata, dependency directories, build outputs,
// editor caches, and compiled artifacts (spec.md §6 "Ignore lists").
var DefaultExcludes = []string{
	"**/.git/**",
	"**/.*/**",
	"**/node_modules/**",
	"**/vendor/**",
	"**/bower_components/**",
	"**/dist/**",
	"**/build/**",
	"**/out/**",
	"**/target/**",
	"**/bin/**",
	"**/obj/**",
	"**/__pycache__/**",
	"**/*.pyc",
	"**/*.min.js",
	"**/*.min.css",
	"**/*.woff", "**/*.woff2", "**/*.ttf", "**/*.otf", "**/*.eot",
	"**/*.png", "**/*.jpg", "**/*.jpeg", "**/*.gif", "**/*.webp", "**/*.ico",
	"**/*.zip", "**/*.tar", "**/*.gz", "**/*.jar",
	"**/*.exe", "**/*.dll", "**/*.so", "**/*.dylib",
	"**/Thumbs.db", "**/desktop.ini",
}
