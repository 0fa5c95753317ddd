// Package query implements C10: the agent-facing retrieval surface over
// the relational store (C7) and vector store (C8). Every operation
// returns structured records, never prose. The block searches
// (GetBlocksByName, GetBlocksByKeyword) cap result sets at a configurable
// default (100) ordered by (file_path, start_line), and SemanticSearch caps
// at the same limit; GetFileBlockSummary (ordered by start_line),
// GetFileImports and GetDependencyChain return every row without a cap.
package query

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/hbollon/go-edlib"
	"github.com/surgebase/porter2"

	serrors "github.com/standardbeagle/semindex/internal/errors"
	"github.com/standardbeagle/semindex/internal/store"
	"github.com/standardbeagle/semindex/internal/types"
	"github.com/standardbeagle/semindex/internal/vectorstore"
)

// Surface answers C10's operations.
type Surface struct {
	Store        *store.Store
	VecStore     *vectorstore.Store
	DefaultLimit int
}

// BlockSummary is the compact shape get_file_block_summary returns.
type BlockSummary struct {
	BlockID       types.BlockID  `json:"block_id"`
	Type          types.BlockType `json:"type"`
	Name          string         `json:"name"`
	StartLine     int            `json:"start_line"`
	EndLine       int            `json:"end_line"`
	ParentBlockID *types.BlockID `json:"parent_block_id,omitempty"`
}

func (q *Surface) limit(requested int) int {
	if requested > 0 {
		return requested
	}
	if q.DefaultLimit > 0 {
		return q.DefaultLimit
	}
	return 100
}

// GetFileByPath returns the file row at path within project.
func (q *Surface) GetFileByPath(ctx context.Context, projectID types.ProjectID, path string) (*types.File, error) {
	row := q.Store.DB().QueryRowContext(ctx, `
        SELECT id, project_id, file_path, language, content, content_hash
        FROM files WHERE project_id = ? AND file_path = ?
    `, projectID, path)

	var f types.File
	var lang string
	if err := row.Scan(&f.ID, &f.ProjectID, &f.FilePath, &lang, &f.Content, &f.ContentHash); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, serrors.New(serrors.KindIOUnavailable, "get_file_by_path", err).WithFile(path)
	}
	f.Language = types.Language(lang)
	return &f, nil
}

// GetFileBlockSummary returns every block in path, ordered by start_line.
func (q *Surface) GetFileBlockSummary(ctx context.Context, projectID types.ProjectID, path string) ([]BlockSummary, error) {
	rows, err := q.Store.DB().QueryContext(ctx, `
        SELECT cb.id, cb.type, cb.name, cb.start_line, cb.end_line, cb.parent_block_id
        FROM code_blocks cb
        JOIN files f ON f.id = cb.file_id
        WHERE f.project_id = ? AND f.file_path = ?
        ORDER BY cb.start_line
    `, projectID, path)
	if err != nil {
		return nil, serrors.New(serrors.KindIOUnavailable, "get_file_block_summary", err).WithFile(path)
	}
	defer rows.Close()

	var out []BlockSummary
	for rows.Next() {
		var s BlockSummary
		var blockType string
		var parent sql.NullInt64
		if err := rows.Scan(&s.BlockID, &blockType, &s.Name, &s.StartLine, &s.EndLine, &parent); err != nil {
			return nil, serrors.New(serrors.KindIOUnavailable, "get_file_block_summary", err).WithFile(path)
		}
		s.Type = types.BlockType(blockType)
		if parent.Valid {
			p := types.BlockID(parent.Int64)
			s.ParentBlockID = &p
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// GetBlocksByName returns blocks named exactly name first, falling back to
// a name-prefix match when there is no exact hit, optionally scoped to
// projectID.
func (q *Surface) GetBlocksByName(ctx context.Context, projectID *types.ProjectID, name string, limit int) ([]types.CodeBlock, error) {
	exact, err := q.queryBlocks(ctx, `cb.name = ?`, []any{name}, projectID, limit)
	if err != nil {
		return nil, err
	}
	if len(exact) > 0 {
		return exact, nil
	}
	return q.queryBlocks(ctx, `cb.name LIKE ? ESCAPE '\'`, []any{likePrefix(name) + "%"}, projectID, limit)
}

// GetBlocksByKeyword searches name and content case-insensitively, ranking
// name matches above content matches. When nothing matches directly, falls
// back to fuzzy name matching (edit-distance) so small typos still surface
// results.
func (q *Surface) GetBlocksByKeyword(ctx context.Context, projectID *types.ProjectID, keyword string, limit int) ([]types.CodeBlock, error) {
	like := "%" + likePrefix(keyword) + "%"
	args := []any{like, like}
	where := `cb.name LIKE ? ESCAPE '\' OR cb.content LIKE ? ESCAPE '\'`

	rows, err := q.queryBlocksRanked(ctx, where, args, projectID, limit, keyword)
	if err != nil {
		return nil, err
	}
	if len(rows) > 0 {
		return rows, nil
	}

	return q.fuzzyByName(ctx, projectID, keyword, limit)
}

// fuzzyByName scans block names (bounded by limit*10 candidates) and
// returns those within a small Levenshtein distance of keyword, ordered by
// increasing distance.
func (q *Surface) fuzzyByName(ctx context.Context, projectID *types.ProjectID, keyword string, limit int) ([]types.CodeBlock, error) {
	candidates, err := q.queryBlocks(ctx, `1 = 1`, nil, projectID, q.limit(limit)*10)
	if err != nil {
		return nil, err
	}
	stemmed := porter2.Stem(strings.ToLower(keyword))

	type scored struct {
		block types.CodeBlock
		dist  int
	}
	var matches []scored
	for _, b := range candidates {
		dist, err := edlib.StringsSimilarity(strings.ToLower(b.Name), stemmed, edlib.Levenshtein)
		if err != nil {
			continue
		}
		if dist < 0.5 {
			continue
		}
		matches = append(matches, scored{block: b, dist: int((1 - dist) * 100)})
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i].dist < matches[j].dist })

	out := make([]types.CodeBlock, 0, min(len(matches), q.limit(limit)))
	for _, m := range matches {
		if len(out) >= q.limit(limit) {
			break
		}
		out = append(out, m.block)
	}
	return out, nil
}

// GetBlockDetails returns one block plus its owning file and project.
func (q *Surface) GetBlockDetails(ctx context.Context, blockID types.BlockID) (*types.CodeBlock, *types.File, *types.Project, error) {
	row := q.Store.DB().QueryRowContext(ctx, `
        SELECT cb.id, cb.file_id, cb.parent_block_id, cb.type, cb.name, cb.content, cb.start_line, cb.end_line, cb.start_col, cb.end_col,
               f.id, f.project_id, f.file_path, f.language, f.content, f.content_hash,
               p.id, p.name, p.path, p.description
        FROM code_blocks cb
        JOIN files f ON f.id = cb.file_id
        JOIN projects p ON p.id = f.project_id
        WHERE cb.id = ?
    `, int64(blockID))

	var b types.CodeBlock
	var f types.File
	var p types.Project
	var blockType, lang string
	var parent sql.NullInt64

	err := row.Scan(
		&b.ID, &b.FileID, &parent, &blockType, &b.Name, &b.Content, &b.StartLine, &b.EndLine, &b.StartCol, &b.EndCol,
		&f.ID, &f.ProjectID, &f.FilePath, &lang, &f.Content, &f.ContentHash,
		&p.ID, &p.Name, &p.Path, &p.Description,
	)
	if err == sql.ErrNoRows {
		return nil, nil, nil, nil
	}
	if err != nil {
		return nil, nil, nil, serrors.New(serrors.KindIOUnavailable, "get_block_details", err)
	}
	b.Type = types.BlockType(blockType)
	if parent.Valid {
		v := types.BlockID(parent.Int64)
		b.ParentBlockID = &v
	}
	f.Language = types.Language(lang)
	return &b, &f, &p, nil
}

// ImportEdge is one resolved or unresolved import from get_file_imports.
type ImportEdge struct {
	ImportedFile *string                      `json:"imported_file"`
	Metadata     types.RelationshipMetadata `json:"metadata"`
}

// GetFileImports returns every import relationship sourced from path.
func (q *Surface) GetFileImports(ctx context.Context, projectID types.ProjectID, path string) ([]ImportEdge, error) {
	rows, err := q.Store.DB().QueryContext(ctx, `
        SELECT tf.file_path, r.metadata
        FROM relationships r
        JOIN files sf ON sf.id = r.source_id
        LEFT JOIN files tf ON tf.id = r.target_id
        WHERE sf.project_id = ? AND sf.file_path = ? AND r.type = 'import'
        ORDER BY sf.file_path
    `, projectID, path)
	if err != nil {
		return nil, serrors.New(serrors.KindIOUnavailable, "get_file_imports", err).WithFile(path)
	}
	defer rows.Close()

	var out []ImportEdge
	for rows.Next() {
		var target sql.NullString
		var metaJSON string
		if err := rows.Scan(&target, &metaJSON); err != nil {
			return nil, serrors.New(serrors.KindIOUnavailable, "get_file_imports", err).WithFile(path)
		}
		var meta types.RelationshipMetadata
		_ = json.Unmarshal([]byte(metaJSON), &meta)
		edge := ImportEdge{Metadata: meta}
		if target.Valid {
			edge.ImportedFile = &target.String
		}
		out = append(out, edge)
	}
	return out, rows.Err()
}

// DependencyNode is one file in a dependency chain's breadth-first
// expansion.
type DependencyNode struct {
	FilePath string   `json:"file_path"`
	Depth    int      `json:"depth"`
	Imports  []string `json:"imports"`
}

// GetDependencyChain walks import edges from path outward up to depth
// hops, breaking cycles by never revisiting a file.
func (q *Surface) GetDependencyChain(ctx context.Context, projectID types.ProjectID, path string, depth int) ([]DependencyNode, error) {
	visited := map[string]bool{path: true}
	frontier := []string{path}
	var out []DependencyNode

	for d := 0; d < depth && len(frontier) > 0; d++ {
		var next []string
		for _, p := range frontier {
			edges, err := q.GetFileImports(ctx, projectID, p)
			if err != nil {
				return nil, err
			}
			var imported []string
			for _, e := range edges {
				if e.ImportedFile == nil {
					continue
				}
				imported = append(imported, *e.ImportedFile)
				if !visited[*e.ImportedFile] {
					visited[*e.ImportedFile] = true
					next = append(next, *e.ImportedFile)
				}
			}
			out = append(out, DependencyNode{FilePath: p, Depth: d, Imports: imported})
		}
		frontier = next
	}
	return out, nil
}

// SemanticHit is one enriched semantic_search result.
type SemanticHit struct {
	OwnerKey       string  `json:"owner_key"`
	ChunkStartLine int     `json:"chunk_start_line"`
	ChunkEndLine   int     `json:"chunk_end_line"`
	Similarity     float64 `json:"similarity"`
	FilePath       string  `json:"file_path,omitempty"`
	BlockName      string  `json:"block_name,omitempty"`
}

// SemanticSearch runs a vector search and enriches each hit with its
// owning file/block context from C7.
func (q *Surface) SemanticSearch(ctx context.Context, queryVec [types.EmbeddingDim]float32, projectID *types.ProjectID, limit int, threshold float64) ([]SemanticHit, error) {
	results, err := q.VecStore.Search(ctx, queryVec, q.limit(limit), threshold, projectID)
	if err != nil {
		return nil, err
	}

	out := make([]SemanticHit, 0, len(results))
	for _, r := range results {
		hit := SemanticHit{
			OwnerKey:       r.OwnerKey,
			ChunkStartLine: r.ChunkStartLine,
			ChunkEndLine:   r.ChunkEndLine,
			Similarity:     r.Similarity,
		}
		q.enrichOwner(ctx, &hit)
		out = append(out, hit)
	}
	return out, nil
}

func (q *Surface) enrichOwner(ctx context.Context, hit *SemanticHit) {
	kind, idStr, ok := strings.Cut(hit.OwnerKey, "_")
	if !ok {
		return
	}
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		return
	}

	switch kind {
	case "file":
		row := q.Store.DB().QueryRowContext(ctx, `SELECT file_path FROM files WHERE id = ?`, id)
		_ = row.Scan(&hit.FilePath)
	case "block":
		row := q.Store.DB().QueryRowContext(ctx, `
            SELECT f.file_path, cb.name FROM code_blocks cb JOIN files f ON f.id = cb.file_id WHERE cb.id = ?
        `, id)
		_ = row.Scan(&hit.FilePath, &hit.BlockName)
	}
}

func (q *Surface) queryBlocks(ctx context.Context, where string, args []any, projectID *types.ProjectID, limit int) ([]types.CodeBlock, error) {
	return q.queryBlocksRanked(ctx, where, args, projectID, limit, "")
}

// queryBlocksRanked runs the shared block-selection query. When keyword is
// non-empty, rows whose name matches it (case-insensitive) are ranked
// ahead of content-only matches.
func (q *Surface) queryBlocksRanked(ctx context.Context, where string, args []any, projectID *types.ProjectID, limit int, keyword string) ([]types.CodeBlock, error) {
	rankExpr := "0"
	if keyword != "" {
		rankExpr = "CASE WHEN cb.name LIKE ? ESCAPE '\\' THEN 0 ELSE 1 END"
		args = append([]any{"%" + likePrefix(keyword) + "%"}, args...)
	}

	sqlText := fmt.Sprintf(`
        SELECT cb.id, cb.file_id, cb.parent_block_id, cb.type, cb.name, cb.content, cb.start_line, cb.end_line, cb.start_col, cb.end_col, f.file_path
        FROM code_blocks cb
        JOIN files f ON f.id = cb.file_id
        WHERE (%s)
    `, where)
	if projectID != nil {
		sqlText += " AND f.project_id = ?"
		args = append(args, int64(*projectID))
	}
	sqlText += fmt.Sprintf(" ORDER BY %s, f.file_path, cb.start_line LIMIT ?", rankExpr)
	args = append(args, q.limit(limit))

	rows, err := q.Store.DB().QueryContext(ctx, sqlText, args...)
	if err != nil {
		return nil, serrors.New(serrors.KindIOUnavailable, "query_blocks", err)
	}
	defer rows.Close()

	var out []types.CodeBlock
	for rows.Next() {
		var b types.CodeBlock
		var blockType string
		var parent sql.NullInt64
		var filePath string
		if err := rows.Scan(&b.ID, &b.FileID, &parent, &blockType, &b.Name, &b.Content, &b.StartLine, &b.EndLine, &b.StartCol, &b.EndCol, &filePath); err != nil {
			return nil, serrors.New(serrors.KindIOUnavailable, "query_blocks", err)
		}
		b.Type = types.BlockType(blockType)
		if parent.Valid {
			p := types.BlockID(parent.Int64)
			b.ParentBlockID = &p
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// likePrefix escapes SQLite LIKE metacharacters in a user-supplied term.
func likePrefix(s string) string {
	r := strings.NewReplacer("\\", "\\\\", "%", "\\%", "_", "\\_")
	return r.Replace(s)
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
