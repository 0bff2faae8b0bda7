package lsm

import "encoding/binary"

// BlockBuilder accumulates sorted key/value entries into a single Block,
// prefix-compressing every key after the first against the block's first
// key, and refusing entries once the block would exceed its target size.
type BlockBuilder struct {
	blockSize int
	data      []byte
	offsets   []uint16
	firstKey  []byte
}

// NewBlockBuilder creates a builder targeting the given block size in bytes.
func NewBlockBuilder(blockSize int) *BlockBuilder {
	return &BlockBuilder{blockSize: blockSize}
}

// IsEmpty reports whether any entry has been accepted yet.
func (b *BlockBuilder) IsEmpty() bool {
	return len(b.offsets) == 0
}

func (b *BlockBuilder) estimatedSize() int {
	return len(b.data) + 2*len(b.offsets) + 2
}

// Add attempts to append key/value to the block. It returns false without
// mutating the builder if the block already has at least one entry and
// accepting this one would exceed the target block size; the first entry in
// a block is always accepted regardless of size.
func (b *BlockBuilder) Add(key, value []byte) bool {
	var entry []byte
	if b.IsEmpty() {
		entry = make([]byte, 0, 2+len(key)+2+len(value))
		entry = binary.BigEndian.AppendUint16(entry, uint16(len(key)))
		entry = append(entry, key...)
		entry = binary.BigEndian.AppendUint16(entry, uint16(len(value)))
		entry = append(entry, value...)
	} else {
		prefixLen := commonPrefixLen(b.firstKey, key)
		rest := key[prefixLen:]
		entry = make([]byte, 0, 4+len(rest)+2+len(value))
		entry = binary.BigEndian.AppendUint16(entry, uint16(prefixLen))
		entry = binary.BigEndian.AppendUint16(entry, uint16(len(rest)))
		entry = append(entry, rest...)
		entry = binary.BigEndian.AppendUint16(entry, uint16(len(value)))
		entry = append(entry, value...)
	}

	if !b.IsEmpty() {
		projected := len(b.data) + len(entry) + 2*(len(b.offsets)+1) + 2
		if projected > b.blockSize {
			return false
		}
	}

	off := uint16(len(b.data))
	if b.IsEmpty() {
		b.firstKey = append([]byte(nil), key...)
	}
	b.data = append(b.data, entry...)
	b.offsets = append(b.offsets, off)
	return true
}

// Build finalizes the accumulated entries into an immutable Block.
func (b *BlockBuilder) Build() *Block {
	return &Block{data: b.data, offsets: b.offsets, firstKey: b.firstKey}
}
