// Package store implements C7: the relational store backing projects,
// files, code blocks, relationships and change-detection hashes.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	serrors "github.com/standardbeagle/semindex/internal/errors"
	"github.com/standardbeagle/semindex/internal/types"
)

// Store wraps a single-writer SQLite database holding the five relational
// tables spec.md §4.7 names. A *Store is safe for concurrent reads;
// writes must be serialized by the caller, matching
// spec.md's "single writer at a time per database" concurrency model.
type Store struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS projects (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    name TEXT NOT NULL,
    path TEXT NOT NULL UNIQUE,
    description TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS files (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    project_id INTEGER NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
    file_path TEXT NOT NULL,
    language TEXT NOT NULL,
    content TEXT NOT NULL,
    content_hash TEXT NOT NULL,
    UNIQUE(project_id, file_path)
);
CREATE INDEX IF NOT EXISTS idx_files_project_path ON files(project_id, file_path);

CREATE TABLE IF NOT EXISTS code_blocks (
    id INTEGER PRIMARY KEY,
    file_id INTEGER NOT NULL REFERENCES files(id) ON DELETE CASCADE,
    parent_block_id INTEGER,
    type TEXT NOT NULL,
    name TEXT NOT NULL,
    content TEXT NOT NULL,
    start_line INTEGER NOT NULL,
    end_line INTEGER NOT NULL,
    start_col INTEGER NOT NULL,
    end_col INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_blocks_file ON code_blocks(file_id);
CREATE INDEX IF NOT EXISTS idx_blocks_name ON code_blocks(name COLLATE NOCASE);

CREATE TABLE IF NOT EXISTS relationships (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    source_id INTEGER NOT NULL REFERENCES files(id) ON DELETE CASCADE,
    target_id INTEGER REFERENCES files(id) ON DELETE SET NULL,
    type TEXT NOT NULL,
    metadata TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_rel_source ON relationships(source_id);
CREATE INDEX IF NOT EXISTS idx_rel_target ON relationships(target_id);

CREATE TABLE IF NOT EXISTS file_hashes (
    project_id INTEGER NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
    file_path TEXT NOT NULL,
    content_hash TEXT NOT NULL,
    PRIMARY KEY (project_id, file_path)
);
CREATE INDEX IF NOT EXISTS idx_filehash_project_path ON file_hashes(project_id, file_path);
`

// Open opens (creating if necessary) the SQLite database at path, applies
// WAL/foreign-key pragmas, and ensures the schema exists.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create store dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA synchronous=NORMAL;",
	} {
		if _, err := db.ExecContext(context.Background(), pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, err)
		}
	}

	if _, err := db.ExecContext(context.Background(), schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// UpsertProject inserts or returns the existing project row for path.
func (s *Store) UpsertProject(ctx context.Context, name, path, description string) (types.ProjectID, error) {
	_, err := s.db.ExecContext(ctx, `
        INSERT INTO projects (name, path, description) VALUES (?, ?, ?)
        ON CONFLICT(path) DO UPDATE SET name = excluded.name, description = excluded.description
    `, name, path, description)
	if err != nil {
		return 0, serrors.New(serrors.KindIntegrityViolation, "upsert_project", err)
	}
	// When the conflict path updates an existing row, LastInsertId still
	// reports the connection's previous insert, so the id is read back by path.
	row := s.db.QueryRowContext(ctx, `SELECT id FROM projects WHERE path = ?`, path)
	var pid int64
	if scanErr := row.Scan(&pid); scanErr != nil {
		return 0, serrors.New(serrors.KindIntegrityViolation, "upsert_project", scanErr)
	}
	return types.ProjectID(pid), nil
}

// IngestFile atomically replaces one file's blocks, relationships and hash
// row, per spec.md §4.7's transactional full-file ingest contract. On any
// error the file's previous stored state is left untouched.
func (s *Store) IngestFile(ctx context.Context, projectID types.ProjectID, file types.File, blocks []types.CodeBlock, rels []types.Relationship) (types.FileID, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, serrors.New(serrors.KindIOUnavailable, "ingest_file", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
        INSERT INTO files (project_id, file_path, language, content, content_hash)
        VALUES (?, ?, ?, ?, ?)
        ON CONFLICT(project_id, file_path) DO UPDATE SET
            language = excluded.language, content = excluded.content, content_hash = excluded.content_hash
    `, projectID, file.FilePath, string(file.Language), file.Content, file.ContentHash)
	if err != nil {
		return 0, serrors.New(serrors.KindIntegrityViolation, "ingest_file", err).WithFile(file.FilePath)
	}

	fileID, err := resolveFileID(ctx, tx, projectID, file.FilePath, res)
	if err != nil {
		return 0, err
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM code_blocks WHERE file_id = ?`, fileID); err != nil {
		return 0, serrors.New(serrors.KindIntegrityViolation, "ingest_file", err).WithFile(file.FilePath)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM relationships WHERE source_id = ?`, fileID); err != nil {
		return 0, serrors.New(serrors.KindIntegrityViolation, "ingest_file", err).WithFile(file.FilePath)
	}

	for _, b := range blocks {
		var parent any
		if b.ParentBlockID != nil {
			parent = int64(*b.ParentBlockID)
		}
		if _, err := tx.ExecContext(ctx, `
            INSERT INTO code_blocks (id, file_id, parent_block_id, type, name, content, start_line, end_line, start_col, end_col)
            VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
        `, int64(b.ID), fileID, parent, string(b.Type), b.Name, b.Content, b.StartLine, b.EndLine, b.StartCol, b.EndCol); err != nil {
			return 0, serrors.New(serrors.KindIntegrityViolation, "ingest_file", err).WithFile(file.FilePath)
		}
	}

	for _, r := range rels {
		meta, err := json.Marshal(r.Metadata)
		if err != nil {
			return 0, serrors.New(serrors.KindIntegrityViolation, "ingest_file", err).WithFile(file.FilePath)
		}
		var target any
		if r.TargetID != nil {
			target = int64(*r.TargetID)
		}
		if _, err := tx.ExecContext(ctx, `
            INSERT INTO relationships (source_id, target_id, type, metadata) VALUES (?, ?, ?, ?)
        `, fileID, target, string(r.Type), string(meta)); err != nil {
			return 0, serrors.New(serrors.KindIntegrityViolation, "ingest_file", err).WithFile(file.FilePath)
		}
	}

	if _, err := tx.ExecContext(ctx, `
        INSERT INTO file_hashes (project_id, file_path, content_hash) VALUES (?, ?, ?)
        ON CONFLICT(project_id, file_path) DO UPDATE SET content_hash = excluded.content_hash
    `, projectID, file.FilePath, file.ContentHash); err != nil {
		return 0, serrors.New(serrors.KindIntegrityViolation, "ingest_file", err).WithFile(file.FilePath)
	}

	if err := tx.Commit(); err != nil {
		return 0, serrors.New(serrors.KindIntegrityViolation, "ingest_file", err).WithFile(file.FilePath)
	}
	return fileID, nil
}

func resolveFileID(ctx context.Context, tx *sql.Tx, projectID types.ProjectID, filePath string, res sql.Result) (types.FileID, error) {
	// res.LastInsertId is not used: when the upsert updates an existing row
	// it still reports the connection's previous insert, possibly another file.
	row := tx.QueryRowContext(ctx, `SELECT id FROM files WHERE project_id = ? AND file_path = ?`, projectID, filePath)
	var id int64
	if err := row.Scan(&id); err != nil {
		return 0, serrors.New(serrors.KindIntegrityViolation, "resolve_file_id", err).WithFile(filePath)
	}
	return types.FileID(id), nil
}

// RemoveFile deletes a file and (via ON DELETE CASCADE) its blocks, its
// relationships as source, and its file_hash row. Relationships where the
// file is only a target are retained with target_id nulled by the
// ON DELETE SET NULL clause.
func (s *Store) RemoveFile(ctx context.Context, projectID types.ProjectID, filePath string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM files WHERE project_id = ? AND file_path = ?`, projectID, filePath)
	if err != nil {
		return serrors.New(serrors.KindIntegrityViolation, "remove_file", err).WithFile(filePath)
	}
	_, err = s.db.ExecContext(ctx, `DELETE FROM file_hashes WHERE project_id = ? AND file_path = ?`, projectID, filePath)
	if err != nil {
		return serrors.New(serrors.KindIntegrityViolation, "remove_file", err).WithFile(filePath)
	}
	return nil
}

// StoredHashes returns every known (file_path -> content_hash) pair for a
// project, for the incremental indexer's change-detection diff.
func (s *Store) StoredHashes(ctx context.Context, projectID types.ProjectID) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT file_path, content_hash FROM file_hashes WHERE project_id = ?`, projectID)
	if err != nil {
		return nil, serrors.New(serrors.KindIOUnavailable, "stored_hashes", err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var path, hash string
		if err := rows.Scan(&path, &hash); err != nil {
			return nil, serrors.New(serrors.KindIOUnavailable, "stored_hashes", err)
		}
		out[path] = hash
	}
	return out, rows.Err()
}

// DB returns the underlying *sql.DB for packages (query, jsonexchange)
// that need direct read access beyond this package's API surface.
func (s *Store) DB() *sql.DB {
	return s.db
}

// FileIDsByPath returns every (file_path -> FileID) pair known for a
// project, for relationship target resolution outside a live scan.
func (s *Store) FileIDsByPath(ctx context.Context, projectID types.ProjectID) (map[string]types.FileID, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT file_path, id FROM files WHERE project_id = ?`, projectID)
	if err != nil {
		return nil, serrors.New(serrors.KindIOUnavailable, "file_ids_by_path", err)
	}
	defer rows.Close()

	out := make(map[string]types.FileID)
	for rows.Next() {
		var path string
		var id int64
		if err := rows.Scan(&path, &id); err != nil {
			return nil, serrors.New(serrors.KindIOUnavailable, "file_ids_by_path", err)
		}
		out[path] = types.FileID(id)
	}
	return out, rows.Err()
}
