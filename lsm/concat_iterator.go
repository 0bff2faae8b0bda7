package lsm

// SSTConcatIterator iterates a sequence of non-overlapping, sorted SSTs (an
// entire leveled level, or one tiered tier) as a single logical stream,
// lazily opening one SST's iterator at a time.
type SSTConcatIterator struct {
	ssts    []*SST
	idx     int
	current *SSTIterator
	err     error
}

// NewSSTConcatIteratorAndSeekToFirst builds the iterator positioned at the
// first entry of ssts[0].
func NewSSTConcatIteratorAndSeekToFirst(ssts []*SST) (*SSTConcatIterator, error) {
	c := &SSTConcatIterator{ssts: ssts}
	if len(ssts) == 0 {
		c.idx = -1
		return c, nil
	}
	it, err := NewSSTIteratorAndSeekToFirst(ssts[0])
	if err != nil {
		return nil, err
	}
	c.current = it
	c.idx = 0
	c.skipExhausted()
	return c, nil
}

// NewSSTConcatIteratorAndSeekToKey builds the iterator positioned at the
// first entry with key >= key, across ssts (assumed sorted and
// non-overlapping).
func NewSSTConcatIteratorAndSeekToKey(ssts []*SST, key []byte) (*SSTConcatIterator, error) {
	c := &SSTConcatIterator{ssts: ssts}
	idx := 0
	for idx < len(ssts) && compareBytes(ssts[idx].LastKey(), key) < 0 {
		idx++
	}
	if idx >= len(ssts) {
		c.idx = -1
		return c, nil
	}
	it, err := NewSSTIteratorAndSeekToKey(ssts[idx], key)
	if err != nil {
		return nil, err
	}
	c.current = it
	c.idx = idx
	c.skipExhausted()
	return c, nil
}

func (c *SSTConcatIterator) skipExhausted() {
	for c.current != nil && !c.current.IsValid() {
		if c.current.err != nil {
			c.err = c.current.err
			return
		}
		next := c.idx + 1
		if next >= len(c.ssts) {
			c.idx = -1
			c.current = nil
			return
		}
		it, err := NewSSTIteratorAndSeekToFirst(c.ssts[next])
		if err != nil {
			c.err = err
			return
		}
		c.idx = next
		c.current = it
	}
}

func (c *SSTConcatIterator) IsValid() bool {
	return c.err == nil && c.current != nil && c.current.IsValid()
}

func (c *SSTConcatIterator) Key() []byte   { return c.current.Key() }
func (c *SSTConcatIterator) Value() []byte { return c.current.Value() }

func (c *SSTConcatIterator) Next() error {
	if c.err != nil {
		return c.err
	}
	if c.current == nil {
		return nil
	}
	if err := c.current.Next(); err != nil {
		c.err = err
		return err
	}
	c.skipExhausted()
	return c.err
}

func (c *SSTConcatIterator) NumActiveIterators() int { return 1 }
