package lsm

// SSTIterator walks a single SST's entries in key order, lazily decoding
// one block at a time.
type SSTIterator struct {
	sst      *SST
	blockIdx int
	blockIt  *BlockIterator
	err      error
}

// NewSSTIteratorAndSeekToFirst creates an iterator over sst positioned at
// its first entry.
func NewSSTIteratorAndSeekToFirst(sst *SST) (*SSTIterator, error) {
	it := &SSTIterator{sst: sst}
	if sst.NumBlocks() == 0 {
		it.blockIdx = -1
		return it, nil
	}
	if err := it.loadBlock(0); err != nil {
		return nil, err
	}
	it.blockIt.SeekToFirst()
	it.skipEmptyBlocks()
	return it, nil
}

// NewSSTIteratorAndSeekToKey creates an iterator positioned at the first
// entry with key >= key.
func NewSSTIteratorAndSeekToKey(sst *SST, key []byte) (*SSTIterator, error) {
	it := &SSTIterator{sst: sst}
	idx := sst.FindBlockIdx(key)
	if idx >= sst.NumBlocks() {
		it.blockIdx = -1
		return it, nil
	}
	if err := it.loadBlock(idx); err != nil {
		return nil, err
	}
	it.blockIt.SeekToKey(key)
	it.skipEmptyBlocks()
	return it, nil
}

func (it *SSTIterator) loadBlock(idx int) error {
	blk, err := it.sst.ReadBlock(idx)
	if err != nil {
		return err
	}
	it.blockIdx = idx
	it.blockIt = NewBlockIterator(blk)
	return nil
}

// skipEmptyBlocks advances past exhausted blocks to the next one with
// entries, or marks the iterator exhausted.
func (it *SSTIterator) skipEmptyBlocks() {
	for it.blockIt != nil && !it.blockIt.IsValid() {
		if it.blockIt.Err() != nil {
			it.err = it.blockIt.Err()
			return
		}
		next := it.blockIdx + 1
		if next >= it.sst.NumBlocks() {
			it.blockIdx = -1
			it.blockIt = nil
			return
		}
		if err := it.loadBlock(next); err != nil {
			it.err = err
			return
		}
		it.blockIt.SeekToFirst()
	}
}

func (it *SSTIterator) IsValid() bool {
	return it.err == nil && it.blockIt != nil && it.blockIt.IsValid()
}

func (it *SSTIterator) Key() []byte   { return it.blockIt.Key() }
func (it *SSTIterator) Value() []byte { return it.blockIt.Value() }

func (it *SSTIterator) Next() error {
	if it.err != nil {
		return it.err
	}
	if it.blockIt == nil {
		return nil
	}
	it.blockIt.Next()
	it.skipEmptyBlocks()
	return it.err
}

func (it *SSTIterator) NumActiveIterators() int { return 1 }
