// Package idcodec packs and unpacks composite identifiers. It mirrors the
// teacher tool's CompositeSymbolID scheme (lower 32 bits: FileID, upper 32
// bits: a per-file local counter) so that a CodeBlock's identity is
// deterministic from (FileID, insertion order) and survives a restart
// without a separate id-mapping table.
package idcodec

import "github.com/standardbeagle/semindex/internal/types"

// EncodeBlockID packs a FileID and a 1-based per-file local counter into a
// single BlockID.
func EncodeBlockID(fileID types.FileID, localCounter uint32) types.BlockID {
	return types.BlockID(uint64(uint32(fileID)) | (uint64(localCounter) << 32))
}

// DecodeBlockID unpacks a BlockID into its owning FileID and local counter.
func DecodeBlockID(id types.BlockID) (fileID types.FileID, localCounter uint32) {
	packed := uint64(id)
	fileID = types.FileID(uint32(packed))
	localCounter = uint32(packed >> 32)
	return
}

// Counter hands out sequential local counters for a single file's blocks,
// assigning BlockIDs as each block is emitted (parents before children).
type Counter struct {
	fileID types.FileID
	next   uint32
}

// NewCounter starts a block-id counter for the given file, numbering from 1.
func NewCounter(fileID types.FileID) *Counter {
	return &Counter{fileID: fileID, next: 1}
}

// Next returns the next BlockID for this file and advances the counter.
func (c *Counter) Next() types.BlockID {
	id := EncodeBlockID(c.fileID, c.next)
	c.next++
	return id
}
