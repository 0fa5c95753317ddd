package embedding

import (
	"fmt"
	"os"
	"path/filepath"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/standardbeagle/semindex/internal/types"
)

// Model wraps a loaded ONNX MiniLM-class sentence embedding model. A Model
// is not safe for concurrent Run calls; callers serialize access (the
// incremental indexer owns exactly one Model per run).
type Model struct {
	session *ort.AdvancedSession
	input   *ort.Tensor[int64]
	mask    *ort.Tensor[int64]
	typeIDs *ort.Tensor[int64]
	output  *ort.Tensor[float32]
}

// LoadModel initializes the ONNX runtime (idempotent process-wide) and
// checks that modelDir/model.onnx exists; runBatch creates the inference
// session against that file for each batch.
func LoadModel(modelDir string) (*Model, error) {
	if !ort.IsInitialized() {
		if err := ort.InitializeEnvironment(); err != nil {
			return nil, fmt.Errorf("initialize onnxruntime: %w", err)
		}
	}
	if _, err := os.Stat(filepath.Join(modelDir, "model.onnx")); err != nil {
		return nil, fmt.Errorf("load model: %w", err)
	}
	return &Model{}, nil
}

// Close releases the session and its tensors.
func (m *Model) Close() {
	if m.session != nil {
		m.session.Destroy()
	}
	if m.input != nil {
		m.input.Destroy()
	}
	if m.mask != nil {
		m.mask.Destroy()
	}
	if m.typeIDs != nil {
		m.typeIDs.Destroy()
	}
	if m.output != nil {
		m.output.Destroy()
	}
}

// runBatch builds fresh input/output tensors sized for this batch, runs
// the model once, and mean-pools each sequence's token embeddings using
// its attention mask.
func (m *Model) runBatch(modelDir string, batch []Encoded) ([][types.EmbeddingDim]float32, error) {
	ids, mask, typeIDs, seqLen := padBatch(batch)
	batchSize := len(batch)

	inputShape := ort.NewShape(int64(batchSize), int64(seqLen))
	inputTensor, err := ort.NewTensor(inputShape, ids)
	if err != nil {
		return nil, fmt.Errorf("build input tensor: %w", err)
	}
	defer inputTensor.Destroy()

	maskTensor, err := ort.NewTensor(inputShape, mask)
	if err != nil {
		return nil, fmt.Errorf("build attention mask tensor: %w", err)
	}
	defer maskTensor.Destroy()

	typeTensor, err := ort.NewTensor(inputShape, typeIDs)
	if err != nil {
		return nil, fmt.Errorf("build token type tensor: %w", err)
	}
	defer typeTensor.Destroy()

	hiddenSize := types.EmbeddingDim
	outputShape := ort.NewShape(int64(batchSize), int64(seqLen), int64(hiddenSize))
	outputTensor, err := ort.NewEmptyTensor[float32](outputShape)
	if err != nil {
		return nil, fmt.Errorf("build output tensor: %w", err)
	}
	defer outputTensor.Destroy()

	session, err := ort.NewAdvancedSession(
		filepath.Join(modelDir, "model.onnx"),
		[]string{"input_ids", "attention_mask", "token_type_ids"},
		[]string{"last_hidden_state"},
		[]ort.ArbitraryTensor{inputTensor, maskTensor, typeTensor},
		[]ort.ArbitraryTensor{outputTensor},
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("create onnx session: %w", err)
	}
	defer session.Destroy()

	if err := session.Run(); err != nil {
		return nil, fmt.Errorf("run onnx inference: %w", err)
	}

	hidden := outputTensor.GetData()
	out := make([][types.EmbeddingDim]float32, batchSize)
	for b := 0; b < batchSize; b++ {
		out[b] = meanPool(hidden, mask, b, seqLen, hiddenSize)
	}
	return out, nil
}

// meanPool averages token embeddings for batch row b over positions where
// the attention mask is 1, matching a standard sentence-transformers
// mean-pooling head.
func meanPool(hidden []float32, mask []int64, b, seqLen, hiddenSize int) [types.EmbeddingDim]float32 {
	var sum [types.EmbeddingDim]float32
	var count float32

	base := b * seqLen * hiddenSize
	maskBase := b * seqLen
	for t := 0; t < seqLen; t++ {
		if mask[maskBase+t] == 0 {
			continue
		}
		count++
		tokBase := base + t*hiddenSize
		for d := 0; d < hiddenSize; d++ {
			sum[d] += hidden[tokBase+d]
		}
	}
	if count == 0 {
		return sum
	}
	for d := range sum {
		sum[d] /= count
	}
	return sum
}
