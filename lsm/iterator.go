package lsm

// Iterator is the common interface every layer of the read path composes
// against: memtables, SSTs, and the merge algebra built on top of them all
// satisfy it. A zero-length Value denotes a tombstone; callers that must
// skip tombstones do so themselves (see LsmIterator).
type Iterator interface {
	// IsValid reports whether the iterator is positioned at an entry.
	IsValid() bool
	// Key returns the current entry's key. Only valid when IsValid is true.
	Key() []byte
	// Value returns the current entry's value. Only valid when IsValid is true.
	Value() []byte
	// Next advances to the following entry in key order.
	Next() error
	// NumActiveIterators reports how many leaf iterators back this one, for
	// diagnostics and tests.
	NumActiveIterators() int
}
