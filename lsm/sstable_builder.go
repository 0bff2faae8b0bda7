package lsm

import (
	"encoding/binary"
	"fmt"
	"os"

	"github.com/intellect4all/storage-engines/common"
)

// SSTBuilder accumulates sorted key/value entries into blocks and, on
// Build, serializes them together with a block-meta index and a bloom
// filter into a single SST file. Entries MUST be added in ascending key
// order.
type SSTBuilder struct {
	blockSize int
	builder   *BlockBuilder
	data      []byte
	meta      []BlockMeta
	firstKey  []byte
	lastKey   []byte
	keyHashes []uint32
}

// NewSSTBuilder creates a builder targeting the given block size.
func NewSSTBuilder(blockSize int) *SSTBuilder {
	return &SSTBuilder{
		blockSize: blockSize,
		builder:   NewBlockBuilder(blockSize),
	}
}

// Add appends key/value, flushing the in-progress block first if it is
// full.
func (b *SSTBuilder) Add(key, value []byte) {
	if b.firstKey == nil {
		b.firstKey = append([]byte(nil), key...)
	}
	b.keyHashes = append(b.keyHashes, hashKey(key))

	if !b.builder.Add(key, value) {
		b.finishBlock()
		b.builder.Add(key, value)
	}
	b.lastKey = append([]byte(nil), key...)
}

// EstimatedSize approximates the bytes the built SST will occupy so far.
func (b *SSTBuilder) EstimatedSize() int {
	return len(b.data)
}

func (b *SSTBuilder) finishBlock() {
	if b.builder.IsEmpty() {
		return
	}
	blk := b.builder.Build()
	offset := uint32(len(b.data))
	b.data = append(b.data, blk.Encode()...)
	b.meta = append(b.meta, BlockMeta{
		Offset:   offset,
		FirstKey: blk.firstKey,
		LastKey:  lastKeyOf(blk),
	})
	b.builder = NewBlockBuilder(b.blockSize)
}

func lastKeyOf(blk *Block) []byte {
	if len(blk.offsets) == 0 {
		return nil
	}
	key, _, err := blk.entryAt(len(blk.offsets) - 1)
	if err != nil {
		return nil
	}
	return key
}

// Build finalizes the SST, writing it to path under the given id, and
// returns a reader opened over the freshly written file.
func (b *SSTBuilder) Build(id uint64, path string, bitsPerKey float64, cache *BlockCache) (*SST, error) {
	b.finishBlock()

	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("%w: create sst %s: %v", common.ErrIO, path, err)
	}

	if _, err := f.Write(b.data); err != nil {
		f.Close()
		return nil, fmt.Errorf("%w: write sst blocks: %v", common.ErrIO, err)
	}

	metaOffset := uint32(len(b.data))
	metaBytes := encodeBlockMeta(b.meta)
	if _, err := f.Write(metaBytes); err != nil {
		f.Close()
		return nil, fmt.Errorf("%w: write sst block meta: %v", common.ErrIO, err)
	}

	bloomOffset := metaOffset + uint32(len(metaBytes)) + 4
	var offsetBuf [4]byte
	binary.BigEndian.PutUint32(offsetBuf[:], metaOffset)
	if _, err := f.Write(offsetBuf[:]); err != nil {
		f.Close()
		return nil, fmt.Errorf("%w: write sst meta offset: %v", common.ErrIO, err)
	}

	bloom := BuildBloomFromKeyHashes(b.keyHashes, bitsPerKey)
	bloomBytes, err := bloom.Encode()
	if err != nil {
		f.Close()
		return nil, err
	}
	if _, err := f.Write(bloomBytes); err != nil {
		f.Close()
		return nil, fmt.Errorf("%w: write sst bloom: %v", common.ErrIO, err)
	}

	binary.BigEndian.PutUint32(offsetBuf[:], bloomOffset)
	if _, err := f.Write(offsetBuf[:]); err != nil {
		f.Close()
		return nil, fmt.Errorf("%w: write sst bloom offset: %v", common.ErrIO, err)
	}

	if err := f.Sync(); err != nil {
		f.Close()
		return nil, fmt.Errorf("%w: sync sst %s: %v", common.ErrIO, path, err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("%w: close sst %s: %v", common.ErrIO, path, err)
	}

	return OpenSST(path, id, cache)
}

// IsEmpty reports whether any entry has been added.
func (b *SSTBuilder) IsEmpty() bool {
	return b.firstKey == nil
}
