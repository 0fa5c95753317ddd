// Package scanner implements C1: directory walking, ignore-rule
// application, the text/binary heuristic, and content hashing. It never
// aborts a run over a single bad file; failures are collected and returned
// alongside whatever files were successfully discovered.
package scanner

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/cespare/xxhash/v2"

	"github.com/standardbeagle/semindex/internal/config"
	serrors "github.com/standardbeagle/semindex/internal/errors"
)

// File is a discovered, hashed candidate file.
type File struct {
	// AbsPath is the file's absolute path on disk.
	AbsPath string
	// RelPath is AbsPath relative to the scan root, using POSIX separators.
	RelPath string
	// ContentHash is hex(SHA-256(bytes)).
	ContentHash string
	// FastHash is an xxhash64 of the first 64KiB; an internal pre-filter
	// only, never part of the persisted data model.
	FastHash uint64
	Size     int64
}

// Result is the outcome of one scan: discovered files plus any per-file
// errors that did not abort the walk.
type Result struct {
	Files  []File
	Errors []*serrors.IndexError
}

const headerProbeSize = 512
const fastHashProbeSize = 64 * 1024

// Scan walks root, applying cfg's include/exclude patterns (and .gitignore
// if RespectGitignore is set), and returns every candidate text file with
// its content hash. Files are returned sorted by RelPath so callers get a
// deterministic order (spec.md §4.9's "lexicographic path order").
func Scan(root string, cfg *config.Config) (*Result, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}

	gi := config.NewGitignoreParser()
	if cfg.Index.RespectGitignore {
		if err := gi.LoadGitignore(absRoot); err != nil {
			return nil, err
		}
	}

	res := &Result{}

	walkErr := filepath.WalkDir(absRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			res.Errors = append(res.Errors, serrors.New(serrors.KindIOUnavailable, "walk", err).WithFile(path))
			return nil
		}
		if path == absRoot {
			return nil
		}

		relPath := toRelPOSIX(absRoot, path)

		if d.IsDir() {
			if isExcluded(relPath, true, cfg, gi) {
				return filepath.SkipDir
			}
			if !cfg.Index.FollowSymlinks && isSymlinkEscapingRoot(absRoot, path) {
				return filepath.SkipDir
			}
			return nil
		}

		if isExcluded(relPath, false, cfg, gi) {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			res.Errors = append(res.Errors, serrors.New(serrors.KindIOUnavailable, "stat", err).WithFile(relPath))
			return nil
		}
		if info.Mode()&os.ModeSymlink != 0 && !cfg.Index.FollowSymlinks {
			return nil
		}
		if cfg.Index.MaxFileSize > 0 && info.Size() > cfg.Index.MaxFileSize {
			return nil
		}

		f, err := probeAndHash(path, relPath, info.Size())
		if err != nil {
			res.Errors = append(res.Errors, serrors.New(serrors.KindIOUnavailable, "read", err).WithFile(relPath))
			return nil
		}
		if f != nil {
			res.Files = append(res.Files, *f)
		}
		return nil
	})
	if walkErr != nil {
		return nil, walkErr
	}

	sort.Slice(res.Files, func(i, j int) bool { return res.Files[i].RelPath < res.Files[j].RelPath })
	return res, nil
}

// probeAndHash applies the text-file heuristic to the file's first 512
// bytes and, if it passes, reads the whole file and returns its hashes.
// A nil *File with a nil error means the file was skipped as binary.
func probeAndHash(path, relPath string, size int64) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	header := make([]byte, headerProbeSize)
	n, err := io.ReadFull(f, header)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return nil, err
	}
	header = header[:n]

	if !looksLikeText(header) {
		return nil, nil
	}

	content, err := readRest(f, header)
	if err != nil {
		return nil, err
	}

	sum := sha256.Sum256(content)
	fast := xxhash.Sum64(content[:min(len(content), fastHashProbeSize)])

	return &File{
		AbsPath:     path,
		RelPath:     relPath,
		ContentHash: hex.EncodeToString(sum[:]),
		FastHash:    fast,
		Size:        size,
	}, nil
}

// readRest reassembles the full file content given the header already
// consumed from f, without re-opening or re-seeking.
func readRest(f *os.File, header []byte) ([]byte, error) {
	rest, err := io.ReadAll(f)
	if err != nil {
		return nil, err
	}
	return append(header, rest...), nil
}

// looksLikeText applies spec.md §4.1's heuristic: the first 512 bytes must
// decode as UTF-8 or Latin-1 and contain no NUL byte.
func looksLikeText(header []byte) bool {
	if bytes.IndexByte(header, 0) != -1 {
		return false
	}
	if len(header) == 0 {
		return true
	}
	if utf8.Valid(header) {
		return true
	}
	// Latin-1 (ISO-8859-1) is valid for any byte sequence once NUL is
	// excluded, so this branch only rejects control-byte-heavy content.
	nonPrintable := 0
	for _, b := range header {
		if b < 9 || (b > 13 && b < 32) || b == 127 {
			nonPrintable++
		}
	}
	return float64(nonPrintable)/float64(len(header)) <= 0.3
}

func isExcluded(relPath string, isDir bool, cfg *config.Config, gi *config.GitignoreParser) bool {
	base := filepath.Base(relPath)
	if isDir && strings.HasPrefix(base, ".") && base != "." {
		for _, pat := range cfg.Exclude {
			if ok, _ := doublestar.Match(pat, relPath+"/"); ok {
				return true
			}
		}
	}

	for _, pat := range cfg.Exclude {
		if ok, _ := doublestar.Match(pat, relPath); ok {
			return true
		}
	}

	if len(cfg.Include) > 0 && !isDir {
		included := false
		for _, pat := range cfg.Include {
			if ok, _ := doublestar.Match(pat, relPath); ok {
				included = true
				break
			}
		}
		if !included {
			return true
		}
	}

	if cfg.Index.RespectGitignore && gi.Match(relPath, isDir) {
		return true
	}

	return false
}

// isSymlinkEscapingRoot breaks symlink cycles by refusing to descend into a
// directory symlink that resolves outside root.
func isSymlinkEscapingRoot(root, path string) bool {
	info, err := os.Lstat(path)
	if err != nil || info.Mode()&os.ModeSymlink == 0 {
		return false
	}
	resolved, err := filepath.EvalSymlinks(path)
	if err != nil {
		return true
	}
	rel, err := filepath.Rel(root, resolved)
	if err != nil {
		return true
	}
	return strings.HasPrefix(rel, "..")
}

func toRelPOSIX(root, path string) string {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		rel = path
	}
	return filepath.ToSlash(rel)
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
