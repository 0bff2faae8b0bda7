package lsm

import "container/heap"

type mergeHeapEntry struct {
	idx int
	it  Iterator
}

type mergeHeap []*mergeHeapEntry

func (h mergeHeap) Len() int { return len(h) }
func (h mergeHeap) Less(i, j int) bool {
	c := compareBytes(h[i].it.Key(), h[j].it.Key())
	if c != 0 {
		return c < 0
	}
	// Lower index wins ties: it is the more recent source in our ordering
	// convention (memtable before immutable memtables before L0 before
	// lower levels).
	return h[i].idx < h[j].idx
}
func (h mergeHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *mergeHeap) Push(x interface{}) { *h = append(*h, x.(*mergeHeapEntry)) }
func (h *mergeHeap) Pop() interface{} {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

// MergeIterator performs a k-way merge over iterators ordered from most to
// least recent. When multiple iterators agree on a key, the entry from the
// lowest-indexed (most recent) iterator wins and the others are advanced
// past it.
type MergeIterator struct {
	iters []Iterator
	h     mergeHeap
	err   error
}

// NewMergeIterator builds a merge over iters, ordered most-recent-first.
func NewMergeIterator(iters []Iterator) (*MergeIterator, error) {
	m := &MergeIterator{iters: iters}
	for i, it := range iters {
		if it.IsValid() {
			heap.Push(&m.h, &mergeHeapEntry{idx: i, it: it})
		}
	}
	if err := m.skipDuplicates(); err != nil {
		return nil, err
	}
	return m, nil
}

// skipDuplicates advances every heap entry whose key matches the current
// top, since the top (lowest index) already represents that key. The heap
// only guarantees h[0] is the minimum, not that h[1] is the second-smallest,
// so duplicates are found by repeatedly popping the true minimum of the
// remainder rather than peeking a fixed index.
func (m *MergeIterator) skipDuplicates() error {
	if len(m.h) == 0 {
		return nil
	}
	top := heap.Pop(&m.h).(*mergeHeapEntry)
	var toRestore []*mergeHeapEntry
	for len(m.h) > 0 && compareBytes(m.h[0].it.Key(), top.it.Key()) == 0 {
		dup := heap.Pop(&m.h).(*mergeHeapEntry)
		if err := dup.it.Next(); err != nil {
			m.err = err
			return err
		}
		if dup.it.IsValid() {
			toRestore = append(toRestore, dup)
		}
	}
	for _, r := range toRestore {
		heap.Push(&m.h, r)
	}
	heap.Push(&m.h, top)
	return nil
}

func (m *MergeIterator) IsValid() bool { return m.err == nil && len(m.h) > 0 }
func (m *MergeIterator) Key() []byte   { return m.h[0].it.Key() }
func (m *MergeIterator) Value() []byte { return m.h[0].it.Value() }

func (m *MergeIterator) Next() error {
	if m.err != nil {
		return m.err
	}
	if len(m.h) == 0 {
		return nil
	}
	top := heap.Pop(&m.h).(*mergeHeapEntry)
	if err := top.it.Next(); err != nil {
		m.err = err
		return err
	}
	if top.it.IsValid() {
		heap.Push(&m.h, top)
	}
	return m.skipDuplicates()
}

func (m *MergeIterator) NumActiveIterators() int {
	n := 0
	for _, it := range m.iters {
		n += it.NumActiveIterators()
	}
	return n
}
