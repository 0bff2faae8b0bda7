package lsm

import (
	"fmt"

	"github.com/intellect4all/storage-engines/common"
)

// FusedIterator wraps another Iterator and latches the first error it
// observes: once Next returns an error, the iterator reports itself
// permanently invalid rather than allowing further calls to reach the
// wrapped iterator in an unspecified state.
type FusedIterator struct {
	inner Iterator
	err   error
}

// NewFusedIterator wraps inner.
func NewFusedIterator(inner Iterator) *FusedIterator {
	return &FusedIterator{inner: inner}
}

func (f *FusedIterator) IsValid() bool {
	return f.err == nil && f.inner.IsValid()
}

// Key returns the current key. It panics if the iterator is not valid,
// since callers are expected to check IsValid first.
func (f *FusedIterator) Key() []byte {
	if !f.IsValid() {
		panic(fmt.Sprintf("%v: Key called on invalid iterator", common.ErrIteratorInvalid))
	}
	return f.inner.Key()
}

// Value returns the current value. It panics if the iterator is not valid.
func (f *FusedIterator) Value() []byte {
	if !f.IsValid() {
		panic(fmt.Sprintf("%v: Value called on invalid iterator", common.ErrIteratorInvalid))
	}
	return f.inner.Value()
}

func (f *FusedIterator) Next() error {
	if f.err != nil {
		return f.err
	}
	if !f.inner.IsValid() {
		return nil
	}
	if err := f.inner.Next(); err != nil {
		f.err = err
		return err
	}
	return nil
}

func (f *FusedIterator) NumActiveIterators() int { return f.inner.NumActiveIterators() }
