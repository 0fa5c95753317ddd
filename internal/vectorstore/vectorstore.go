// Package vectorstore implements C8: the vec0-backed similarity index over
// chunk embeddings. It uses its own SQLite driver (ncruces/go-sqlite3,
// a WASM-embedded build) rather than the relational store's
// modernc.org/sqlite, because the sqlite-vec extension ships as a loadable
// module that only the ncruces driver's auto-extension hook can register
// for a pure-Go (non-cgo) build.
package vectorstore

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/ncruces"
	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	serrors "github.com/standardbeagle/semindex/internal/errors"
	"github.com/standardbeagle/semindex/internal/types"
)

// Store wraps the vec0 virtual table holding one row per chunk embedding.
type Store struct {
	db *sql.DB
}

func init() {
	sqlite_vec.Auto()
}

// Open opens (creating if necessary) the vector database at path and
// ensures the vec0 virtual table exists.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create vector store dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open vector store: %w", err)
	}
	db.SetMaxOpenConns(1)

	schema := fmt.Sprintf(`
        CREATE VIRTUAL TABLE IF NOT EXISTS chunk_embeddings USING vec0(
            owner_key TEXT,
            project_id INTEGER,
            chunk_index INTEGER,
            chunk_start_line INTEGER,
            chunk_end_line INTEGER,
            embedding FLOAT[%d]
        );
    `, types.EmbeddingDim)
	if _, err := db.ExecContext(context.Background(), schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create vec0 table: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// InsertBatch writes all of rows' embeddings in one transaction.
func (s *Store) InsertBatch(ctx context.Context, rows []types.Embedding) error {
	if len(rows) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return serrors.New(serrors.KindIOUnavailable, "insert_batch", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
        INSERT INTO chunk_embeddings (owner_key, project_id, chunk_index, chunk_start_line, chunk_end_line, embedding)
        VALUES (?, ?, ?, ?, ?, ?)
    `)
	if err != nil {
		return serrors.New(serrors.KindIOUnavailable, "insert_batch", err)
	}
	defer stmt.Close()

	for _, r := range rows {
		vec, err := sqlite_vec.SerializeFloat32(r.Vector[:])
		if err != nil {
			return serrors.New(serrors.KindEmbeddingFailure, "serialize_vector", err).WithFile(r.OwnerKey)
		}
		if _, err := stmt.ExecContext(ctx, r.OwnerKey, int64(r.ProjectID), r.ChunkIndex, r.ChunkStartLine, r.ChunkEndLine, vec); err != nil {
			return serrors.New(serrors.KindIntegrityViolation, "insert_batch", err).WithFile(r.OwnerKey)
		}
	}

	if err := tx.Commit(); err != nil {
		return serrors.New(serrors.KindIntegrityViolation, "insert_batch", err)
	}
	return nil
}

// DeleteByOwner removes every chunk row belonging to ownerKey, used when a
// file or block is re-ingested or removed.
func (s *Store) DeleteByOwner(ctx context.Context, ownerKey string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM chunk_embeddings WHERE owner_key = ?`, ownerKey)
	if err != nil {
		return serrors.New(serrors.KindIntegrityViolation, "delete_by_owner", err).WithFile(ownerKey)
	}
	return nil
}

// Result is one similarity hit.
type Result struct {
	OwnerKey       string
	ChunkIndex     int
	ChunkStartLine int
	ChunkEndLine   int
	Similarity     float64
}

// Search returns the k nearest chunks to queryVec (optionally scoped to
// projectID), ordered by distance ascending, with similarity = 1/(1+distance)
// and any result below threshold dropped, per spec.md §4.8.
func (s *Store) Search(ctx context.Context, queryVec [types.EmbeddingDim]float32, k int, threshold float64, projectID *types.ProjectID) ([]Result, error) {
	vec, err := sqlite_vec.SerializeFloat32(queryVec[:])
	if err != nil {
		return nil, serrors.New(serrors.KindEmbeddingFailure, "serialize_query_vector", err)
	}

	query := `
        SELECT owner_key, chunk_index, chunk_start_line, chunk_end_line, distance
        FROM chunk_embeddings
        WHERE embedding MATCH ? AND k = ?
    `
	args := []any{vec, k}
	if projectID != nil {
		query += ` AND project_id = ?`
		args = append(args, int64(*projectID))
	}
	query += ` ORDER BY distance ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, serrors.New(serrors.KindIOUnavailable, "search", err)
	}
	defer rows.Close()

	var out []Result
	for rows.Next() {
		var r Result
		var distance float64
		if err := rows.Scan(&r.OwnerKey, &r.ChunkIndex, &r.ChunkStartLine, &r.ChunkEndLine, &distance); err != nil {
			return nil, serrors.New(serrors.KindIOUnavailable, "search", err)
		}
		r.Similarity = 1 / (1 + distance)
		if r.Similarity < threshold {
			continue
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, serrors.New(serrors.KindIOUnavailable, "search", err)
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Similarity > out[j].Similarity })
	return out, nil
}
