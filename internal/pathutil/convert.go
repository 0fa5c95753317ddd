// Package pathutil converts between absolute and relative paths at the
// boundary between semindex's internal representation (always absolute,
// for unambiguous cross-platform identity) and the paths stored and
// surfaced to callers (always relative and POSIX-separated, for portable,
// readable output).
package pathutil

import (
	"path/filepath"
	"strings"
)

// ToRelative converts absPath to a path relative to rootDir, using forward
// slashes regardless of host OS. Falls back to the cleaned absolute path if
// conversion fails or absPath lies outside rootDir.
//
// Examples:
//   - ToRelative("/proj/src/main.go", "/proj") -> "src/main.go"
//   - ToRelative("/other/file.go", "/proj")    -> "/other/file.go" (outside root)
//   - ToRelative("src/main.go", "/proj")        -> "src/main.go" (already relative)
func ToRelative(absPath, rootDir string) string {
	if absPath == "" || rootDir == "" {
		return filepath.ToSlash(absPath)
	}
	if !filepath.IsAbs(absPath) {
		return filepath.ToSlash(absPath)
	}

	absPath = filepath.Clean(absPath)
	rootDir = filepath.Clean(rootDir)

	relPath, err := filepath.Rel(rootDir, absPath)
	if err != nil {
		return filepath.ToSlash(absPath)
	}
	if strings.HasPrefix(relPath, "..") {
		return filepath.ToSlash(absPath)
	}
	return filepath.ToSlash(relPath)
}

// ToAbsolute resolves relPath against rootDir. If relPath is already
// absolute it is returned cleaned and unchanged.
func ToAbsolute(relPath, rootDir string) string {
	if filepath.IsAbs(relPath) {
		return filepath.Clean(relPath)
	}
	return filepath.Clean(filepath.Join(rootDir, filepath.FromSlash(relPath)))
}
