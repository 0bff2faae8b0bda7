package lsm

import "bytes"

// BlockIterator walks the entries of a single Block in key order. Unlike the
// uniform Iterator interface used by the merge algebra, BlockIterator
// exposes explicit seek operations since blocks are the leaf structure that
// every higher-level seek is built from.
type BlockIterator struct {
	block *Block
	idx   int
	key   []byte
	value []byte
	err   error
}

// NewBlockIterator creates an iterator over block, initially invalid; call
// SeekToFirst or SeekToKey to position it.
func NewBlockIterator(block *Block) *BlockIterator {
	return &BlockIterator{block: block, idx: len(block.offsets)}
}

// SeekToFirst positions the iterator at the block's first entry.
func (it *BlockIterator) SeekToFirst() {
	it.seekToIdx(0)
}

func (it *BlockIterator) seekToIdx(idx int) {
	if idx < 0 || idx >= len(it.block.offsets) {
		it.idx = len(it.block.offsets)
		it.key, it.value = nil, nil
		return
	}
	key, value, err := it.block.entryAt(idx)
	if err != nil {
		it.err = err
		it.idx = len(it.block.offsets)
		it.key, it.value = nil, nil
		return
	}
	it.idx = idx
	it.key, it.value = key, value
}

// SeekToKey positions the iterator at the first entry whose key is >= key.
func (it *BlockIterator) SeekToKey(key []byte) {
	lo, hi := 0, len(it.block.offsets)
	for lo < hi {
		mid := (lo + hi) / 2
		k, _, err := it.block.entryAt(mid)
		if err != nil {
			it.err = err
			it.idx = len(it.block.offsets)
			it.key, it.value = nil, nil
			return
		}
		if bytes.Compare(k, key) < 0 {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	it.seekToIdx(lo)
}

// IsValid reports whether the iterator is positioned at an entry.
func (it *BlockIterator) IsValid() bool {
	return it.err == nil && it.idx < len(it.block.offsets)
}

// Key returns the current entry's key. Only valid when IsValid is true.
func (it *BlockIterator) Key() []byte { return it.key }

// Value returns the current entry's value. Only valid when IsValid is true.
func (it *BlockIterator) Value() []byte { return it.value }

// Err returns any decode error encountered while seeking.
func (it *BlockIterator) Err() error { return it.err }

// Next advances to the following entry.
func (it *BlockIterator) Next() {
	if !it.IsValid() {
		return
	}
	it.seekToIdx(it.idx + 1)
}
