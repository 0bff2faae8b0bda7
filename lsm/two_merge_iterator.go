package lsm

// TwoMergeIterator merges two iterators where A dominates B: whenever both
// are positioned at the same key, A's entry is returned and B is advanced
// past it.
type TwoMergeIterator struct {
	a, b     Iterator
	aChosen  bool
	err      error
}

// NewTwoMergeIterator builds the merge and positions it at the first entry.
func NewTwoMergeIterator(a, b Iterator) (*TwoMergeIterator, error) {
	t := &TwoMergeIterator{a: a, b: b}
	if err := t.skipB(); err != nil {
		return nil, err
	}
	t.chooseSide()
	return t, nil
}

// skipB advances b past any key also present in a, since a dominates.
func (t *TwoMergeIterator) skipB() error {
	for t.a.IsValid() && t.b.IsValid() && compareBytes(t.a.Key(), t.b.Key()) == 0 {
		if err := t.b.Next(); err != nil {
			return err
		}
	}
	return nil
}

func (t *TwoMergeIterator) chooseSide() {
	switch {
	case !t.a.IsValid():
		t.aChosen = false
	case !t.b.IsValid():
		t.aChosen = true
	default:
		t.aChosen = compareBytes(t.a.Key(), t.b.Key()) <= 0
	}
}

func (t *TwoMergeIterator) IsValid() bool {
	return t.err == nil && (t.a.IsValid() || t.b.IsValid())
}

func (t *TwoMergeIterator) Key() []byte {
	if t.aChosen {
		return t.a.Key()
	}
	return t.b.Key()
}

func (t *TwoMergeIterator) Value() []byte {
	if t.aChosen {
		return t.a.Value()
	}
	return t.b.Value()
}

func (t *TwoMergeIterator) Next() error {
	if t.err != nil {
		return t.err
	}
	if t.aChosen {
		if err := t.a.Next(); err != nil {
			t.err = err
			return err
		}
	} else {
		if err := t.b.Next(); err != nil {
			t.err = err
			return err
		}
	}
	if err := t.skipB(); err != nil {
		t.err = err
		return err
	}
	t.chooseSide()
	return nil
}

func (t *TwoMergeIterator) NumActiveIterators() int {
	return t.a.NumActiveIterators() + t.b.NumActiveIterators()
}
