// Package jsonexchange implements the file-ingest JSON unit of exchange: a
// serializable form of one file's full extraction result (blocks and
// relationships included) that can be imported through the same C7
// transaction path C9 uses, so a JSON-driven import produces identical
// store state to a live scan of the same file.
package jsonexchange

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	serrors "github.com/standardbeagle/semindex/internal/errors"
	"github.com/standardbeagle/semindex/internal/idcodec"
	"github.com/standardbeagle/semindex/internal/store"
	"github.com/standardbeagle/semindex/internal/types"
)

// BlockRecord is one code block in the exchange format. Field names follow
// the relational schema's columns rather than the Go struct tags so the
// wire format stays stable if internal field names change.
type BlockRecord struct {
	Type          types.BlockType `json:"type"`
	Name          string          `json:"name"`
	Content       string          `json:"content"`
	StartLine     int             `json:"start_line"`
	EndLine       int             `json:"end_line"`
	StartCol      int             `json:"start_col"`
	EndCol        int             `json:"end_col"`
	ParentIndex   *int            `json:"parent_index,omitempty"`
}

// RelationshipRecord is one import relationship in the exchange format.
// TargetPath is resolved to a FileID at import time by looking up the
// target project's files table; a record with no TargetPath is an
// unresolved (external-package) import.
type RelationshipRecord struct {
	TargetPath string                     `json:"target_path,omitempty"`
	Type       types.RelationshipType     `json:"type"`
	Metadata   types.RelationshipMetadata `json:"metadata"`
}

// FileIngestRecord is one file's complete extraction result: enough to
// reproduce the exact C7 state a live scan-and-extract pass would have
// written for it.
type FileIngestRecord struct {
	ProjectName   string                `json:"project_name"`
	ProjectPath   string                `json:"project_path"`
	FilePath      string                `json:"file_path"`
	Language      types.Language        `json:"language"`
	Content       string                `json:"content"`
	ContentHash   string                `json:"content_hash"`
	Blocks        []BlockRecord         `json:"blocks"`
	Relationships []RelationshipRecord  `json:"relationships"`
}

// Import applies record through the same transactional path C9 uses for a
// live scan, assigning deterministic BlockIDs to record.Blocks in the
// order given (parent indices resolved against that same order) and
// resolving each relationship's TargetPath against the destination
// project's existing files.
func Import(ctx context.Context, s *store.Store, record FileIngestRecord) (types.FileID, error) {
	projectID, err := s.UpsertProject(ctx, record.ProjectName, record.ProjectPath, "")
	if err != nil {
		return 0, err
	}

	file := types.File{
		ProjectID:   projectID,
		FilePath:    record.FilePath,
		Language:    record.Language,
		Content:     record.Content,
		ContentHash: record.ContentHash,
	}

	// A file row must exist before its blocks can carry a FileID, and
	// relationship target lookups need the project's current file table,
	// so upsert content-only first exactly as C9's phase 1 does.
	fileID, err := s.IngestFile(ctx, projectID, file, nil, nil)
	if err != nil {
		return 0, err
	}

	blocks, err := buildBlocks(fileID, record.Blocks)
	if err != nil {
		return 0, err
	}

	targets, err := s.FileIDsByPath(ctx, projectID)
	if err != nil {
		return 0, err
	}

	rels := make([]types.Relationship, 0, len(record.Relationships))
	for _, r := range record.Relationships {
		rel := types.Relationship{
			SourceID: fileID,
			Type:     r.Type,
			Metadata: r.Metadata,
		}
		if r.TargetPath != "" {
			if id, ok := targets[r.TargetPath]; ok {
				rel.TargetID = &id
			}
		}
		rels = append(rels, rel)
	}

	if _, err := s.IngestFile(ctx, projectID, file, blocks, rels); err != nil {
		return 0, err
	}
	return fileID, nil
}

// buildBlocks assigns composite BlockIDs in record order (matching
// internal/idcodec's FileID-plus-counter scheme) and links parents by
// ParentIndex.
func buildBlocks(fileID types.FileID, records []BlockRecord) ([]types.CodeBlock, error) {
	blocks := make([]types.CodeBlock, len(records))
	counter := idcodec.NewCounter(fileID)
	for i, r := range records {
		blocks[i] = types.CodeBlock{
			ID:        counter.Next(),
			FileID:    fileID,
			Type:      r.Type,
			Name:      r.Name,
			Content:   r.Content,
			StartLine: r.StartLine,
			EndLine:   r.EndLine,
			StartCol:  r.StartCol,
			EndCol:    r.EndCol,
		}
	}
	for i, r := range records {
		if r.ParentIndex == nil {
			continue
		}
		if *r.ParentIndex < 0 || *r.ParentIndex >= len(blocks) {
			return nil, serrors.New(serrors.KindExtractionAnomaly, "import_blocks",
				fmt.Errorf("parent_index %d out of range for block %q", *r.ParentIndex, r.Name)).WithFile(r.Name)
		}
		parent := blocks[*r.ParentIndex].ID
		blocks[i].ParentBlockID = &parent
	}
	return blocks, nil
}

// DecodeAll reads a stream of newline-delimited FileIngestRecord JSON
// objects, the shape `cmd/semindex`'s import subcommand accepts on stdin.
func DecodeAll(r io.Reader) ([]FileIngestRecord, error) {
	dec := json.NewDecoder(r)
	var out []FileIngestRecord
	for {
		var rec FileIngestRecord
		if err := dec.Decode(&rec); err != nil {
			if err == io.EOF {
				break
			}
			return nil, serrors.New(serrors.KindIOUnavailable, "decode_ingest_record", err)
		}
		out = append(out, rec)
	}
	return out, nil
}
