package lsm

import "github.com/intellect4all/storage-engines/common"

// ScanIterator adapts an *LsmIterator (IsValid/Key/Value/Next() error) to
// common.Iterator's bool-returning Next, for callers (the comparison
// benchmark harness) written against the shared engine-agnostic interface.
type ScanIterator struct {
	inner   *LsmIterator
	started bool
	err     error
}

// NewScanIterator wraps inner.
func NewScanIterator(inner *LsmIterator) *ScanIterator {
	return &ScanIterator{inner: inner}
}

// Next advances to the next entry, reporting whether one is available.
func (s *ScanIterator) Next() bool {
	if s.err != nil {
		return false
	}
	if !s.started {
		s.started = true
		return s.inner.IsValid()
	}
	if err := s.inner.Next(); err != nil {
		s.err = err
		return false
	}
	return s.inner.IsValid()
}

func (s *ScanIterator) Key() []byte   { return s.inner.Key() }
func (s *ScanIterator) Value() []byte { return s.inner.Value() }
func (s *ScanIterator) Error() error  { return s.err }
func (s *ScanIterator) Close() error  { return nil }

// ScanRange is a common.Iterator-shaped convenience wrapper around (*LSM).Scan,
// for benchmark-harness code written against that interface rather than the
// richer Bound-based signature.
func (l *LSM) ScanRange(start, end []byte) (common.Iterator, error) {
	lower := UnboundedBound()
	if len(start) > 0 {
		lower = IncludedBound(start)
	}
	upper := UnboundedBound()
	if len(end) > 0 {
		upper = ExcludedBound(end)
	}
	it, err := l.Scan(lower, upper)
	if err != nil {
		return nil, err
	}
	return NewScanIterator(it), nil
}
