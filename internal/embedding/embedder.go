package embedding

import (
	"strings"

	"github.com/standardbeagle/semindex/internal/debug"
	serrors "github.com/standardbeagle/semindex/internal/errors"
	"github.com/standardbeagle/semindex/internal/types"
)

// Embedder ties a Tokenizer and Model together to turn one owner's text
// into its chunk embeddings.
type Embedder struct {
	tokenizer *Tokenizer
	model     *Model
	modelDir  string
}

// New returns an Embedder backed by the tokenizer and model already loaded
// from modelDir.
func New(modelDir string, tk *Tokenizer, model *Model) *Embedder {
	return &Embedder{tokenizer: tk, model: model, modelDir: modelDir}
}

// EmbedOwner chunks text, tokenizes every chunk, and embeds the whole
// owner in one batched ONNX call. A chunk that is empty after trimming
// gets a zero vector without being sent to the model; any other failure
// in the batched call falls back to per-chunk inference with identical
// preprocessing, per spec.md §4.6.
func (e *Embedder) EmbedOwner(ownerKey string, projectID types.ProjectID, text string, header *Header) ([]types.Embedding, error) {
	chunks := Split(text, header)
	if len(chunks) == 0 {
		return nil, nil
	}

	encoded := make([]Encoded, len(chunks))
	empty := make([]bool, len(chunks))
	for i, c := range chunks {
		if strings.TrimSpace(c.Text) == "" {
			empty[i] = true
			continue
		}
		enc, err := e.tokenizer.Encode(c.Text)
		if err != nil {
			return nil, err
		}
		encoded[i] = enc
	}

	vectors := make([][types.EmbeddingDim]float32, len(chunks))

	nonEmptyIdx := make([]int, 0, len(chunks))
	nonEmptyEnc := make([]Encoded, 0, len(chunks))
	for i, isEmpty := range empty {
		if !isEmpty {
			nonEmptyIdx = append(nonEmptyIdx, i)
			nonEmptyEnc = append(nonEmptyEnc, encoded[i])
		}
	}

	if len(nonEmptyEnc) > 0 {
		batched, err := e.model.runBatch(e.modelDir, nonEmptyEnc)
		if err != nil {
			debug.Logf("embedding: batched inference failed for %s, falling back per-chunk: %v", ownerKey, err)
			for k, idx := range nonEmptyIdx {
				single, serr := e.model.runBatch(e.modelDir, nonEmptyEnc[k:k+1])
				if serr != nil {
					return nil, serrors.New(serrors.KindEmbeddingFailure, "embed_chunk", serr).WithFile(ownerKey)
				}
				vectors[idx] = single[0]
			}
		} else {
			for k, idx := range nonEmptyIdx {
				vectors[idx] = batched[k]
			}
		}
	}

	out := make([]types.Embedding, len(chunks))
	for i, c := range chunks {
		out[i] = types.Embedding{
			OwnerKey:       ownerKey,
			ProjectID:      projectID,
			ChunkIndex:     c.Index,
			ChunkStartLine: c.StartLine,
			ChunkEndLine:   c.EndLine,
			Vector:         vectors[i],
		}
	}
	return out, nil
}

// EmbedQuery embeds a short query string as a single vector, for
// semantic_search's query side. Unlike EmbedOwner it never chunks: a
// query is expected to fit in one inference call, and only its first
// (and only) chunk's vector is returned.
func (e *Embedder) EmbedQuery(text string) ([types.EmbeddingDim]float32, error) {
	var zero [types.EmbeddingDim]float32
	if strings.TrimSpace(text) == "" {
		return zero, nil
	}
	enc, err := e.tokenizer.Encode(text)
	if err != nil {
		return zero, err
	}
	vectors, err := e.model.runBatch(e.modelDir, []Encoded{enc})
	if err != nil {
		return zero, serrors.New(serrors.KindEmbeddingFailure, "embed_query", err)
	}
	return vectors[0], nil
}
