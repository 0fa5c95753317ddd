package embedding

import (
	"path/filepath"

	"github.com/sugarme/tokenizer"
	"github.com/sugarme/tokenizer/pretrained"

	serrors "github.com/standardbeagle/semindex/internal/errors"
)

// MaxTokens is the inference-time truncation length (spec.md §4.6).
const MaxTokens = 256

// Tokenizer wraps a HuggingFace-format tokenizer loaded from a model
// directory's tokenizer.json.
type Tokenizer struct {
	tk *tokenizer.Tokenizer
}

// LoadTokenizer loads tokenizer.json from modelDir. Its absence is a fatal
// initialization error: spec.md §4.6 explicitly forbids a hashing-based
// tokenization fallback for production use.
func LoadTokenizer(modelDir string) (*Tokenizer, error) {
	tk, err := pretrained.FromFile(filepath.Join(modelDir, "tokenizer.json"))
	if err != nil {
		return nil, serrors.New(serrors.KindIOUnavailable, "load_tokenizer", err)
	}
	return &Tokenizer{tk: tk}, nil
}

// Encoded holds the token inputs one chunk of text resolves to, already
// truncated/padded to a common sequence length by the caller's batch.
type Encoded struct {
	IDs            []int64
	AttentionMask  []int64
	TokenTypeIDs   []int64
}

// Encode tokenizes text and truncates to MaxTokens.
func (t *Tokenizer) Encode(text string) (Encoded, error) {
	en, err := t.tk.EncodeSingle(text, false)
	if err != nil {
		return Encoded{}, serrors.New(serrors.KindEmbeddingFailure, "tokenize", err)
	}

	ids := en.Ids
	mask := en.AttentionMask
	typeIDs := en.TypeIds
	if len(ids) > MaxTokens {
		ids = ids[:MaxTokens]
		mask = mask[:MaxTokens]
		typeIDs = typeIDs[:MaxTokens]
	}

	out := Encoded{
		IDs:           make([]int64, len(ids)),
		AttentionMask: make([]int64, len(mask)),
		TokenTypeIDs:  make([]int64, len(typeIDs)),
	}
	for i, v := range ids {
		out.IDs[i] = int64(v)
	}
	for i, v := range mask {
		out.AttentionMask[i] = int64(v)
	}
	for i, v := range typeIDs {
		out.TokenTypeIDs[i] = int64(v)
	}
	return out, nil
}

// padBatch right-pads every Encoded in batch to the longest sequence,
// filling attention mask positions with 0 so they don't affect mean
// pooling, and returns the common sequence length.
func padBatch(batch []Encoded) (ids, mask, typeIDs []int64, seqLen int) {
	for _, e := range batch {
		if len(e.IDs) > seqLen {
			seqLen = len(e.IDs)
		}
	}
	ids = make([]int64, len(batch)*seqLen)
	mask = make([]int64, len(batch)*seqLen)
	typeIDs = make([]int64, len(batch)*seqLen)
	for i, e := range batch {
		copy(ids[i*seqLen:], e.IDs)
		copy(mask[i*seqLen:], e.AttentionMask)
		copy(typeIDs[i*seqLen:], e.TokenTypeIDs)
	}
	return ids, mask, typeIDs, seqLen
}
