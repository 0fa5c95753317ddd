// Package embedding implements C6: splitting owner text into fixed-size
// line chunks and turning each chunk into a 384-dim mean-pooled ONNX
// MiniLM embedding.
package embedding

import (
	"fmt"
	"strings"
)

// ChunkLines is the fixed chunk size (spec.md §4.6).
const ChunkLines = 20

// Header identifies the owner a chunk set belongs to, for the optional
// metadata line prepended to the first chunk.
type Header struct {
	FilePath  string
	Language  string
	BlockName string // empty for whole-file owners
}

func (h Header) String() string {
	if h.BlockName != "" {
		return fmt.Sprintf("// file: %s | language: %s | block: %s", h.FilePath, h.Language, h.BlockName)
	}
	return fmt.Sprintf("// file: %s | language: %s", h.FilePath, h.Language)
}

// Chunk is one fixed-size, 1-indexed, non-overlapping slice of an owner's
// text, ready for tokenization.
type Chunk struct {
	Index     int
	StartLine int // 1-indexed, inclusive, relative to the owner's own text
	EndLine   int
	Text      string
}

// Split breaks text into ChunkLines-line chunks. The first chunk is
// prepended with header's formatted line plus a blank line when header is
// non-nil; the header does not shift StartLine/EndLine, which always
// describe the owner's original line numbers. Empty trailing chunks (an
// owner whose line count is an exact multiple of ChunkLines) are not
// emitted.
func Split(text string, header *Header) []Chunk {
	lines := strings.Split(text, "\n")
	// A trailing empty element from a final newline is not a real line.
	if len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	if len(lines) == 0 {
		return nil
	}

	var chunks []Chunk
	for start := 0; start < len(lines); start += ChunkLines {
		end := start + ChunkLines
		if end > len(lines) {
			end = len(lines)
		}
		body := strings.Join(lines[start:end], "\n")
		if header != nil && len(chunks) == 0 {
			body = header.String() + "\n\n" + body
		}
		chunks = append(chunks, Chunk{
			Index:     len(chunks),
			StartLine: start + 1,
			EndLine:   end,
			Text:      body,
		})
	}
	return chunks
}
