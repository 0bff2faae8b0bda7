package lsm

// LsmIterator is the top-level read-path iterator: it wraps the merged
// memtable/SST stream, skips tombstones transparently, and stops once the
// upper bound is exceeded.
type LsmIterator struct {
	inner Iterator
	upper Bound
	err   error
}

// NewLsmIterator wraps inner (already positioned at its first candidate
// entry) and advances past any leading tombstones or keys past upper.
func NewLsmIterator(inner Iterator, upper Bound) (*LsmIterator, error) {
	it := &LsmIterator{inner: inner, upper: upper}
	if err := it.skipInvalid(); err != nil {
		return nil, err
	}
	return it, nil
}

func (it *LsmIterator) skipInvalid() error {
	for it.inner.IsValid() {
		if !upperAllows(it.upper, it.inner.Key()) {
			it.err = nil
			it.inner = exhaustedIterator{}
			return nil
		}
		if len(it.inner.Value()) != 0 {
			return nil
		}
		if err := it.inner.Next(); err != nil {
			it.err = err
			return err
		}
	}
	return nil
}

func (it *LsmIterator) IsValid() bool { return it.err == nil && it.inner.IsValid() }
func (it *LsmIterator) Key() []byte   { return it.inner.Key() }
func (it *LsmIterator) Value() []byte { return it.inner.Value() }

func (it *LsmIterator) Next() error {
	if it.err != nil {
		return it.err
	}
	if !it.inner.IsValid() {
		return nil
	}
	if err := it.inner.Next(); err != nil {
		it.err = err
		return err
	}
	return it.skipInvalid()
}

func (it *LsmIterator) NumActiveIterators() int { return it.inner.NumActiveIterators() }

type exhaustedIterator struct{}

func (exhaustedIterator) IsValid() bool          { return false }
func (exhaustedIterator) Key() []byte            { return nil }
func (exhaustedIterator) Value() []byte          { return nil }
func (exhaustedIterator) Next() error            { return nil }
func (exhaustedIterator) NumActiveIterators() int { return 0 }
