package lsm

import (
	"bytes"
	"sync"

	"github.com/huandu/skiplist"
)

// bytesComparable orders []byte keys the way skiplist.SkipList needs: a
// cheap float64 score to narrow the search, broken by an exact comparison.
type bytesComparable struct{}

func (bytesComparable) Compare(lhs, rhs interface{}) int {
	return bytes.Compare(lhs.([]byte), rhs.([]byte))
}

func (bytesComparable) CalcScore(key interface{}) float64 {
	b := key.([]byte)
	var score float64
	for i := 0; i < 8; i++ {
		score *= 256
		if i < len(b) {
			score += float64(b[i])
		}
	}
	return score
}

// MemTable is a mutable, concurrent, sorted in-memory table backed by a skip
// list. A zero-length value denotes a tombstone. An attached WAL (optional)
// receives every write before it lands in the skip list.
type MemTable struct {
	mu   sync.RWMutex
	id   uint64
	skl  *skiplist.SkipList
	size int64
	wal  *WAL
}

// NewMemTable creates an empty memtable with the given id.
func NewMemTable(id uint64) *MemTable {
	return &MemTable{id: id, skl: skiplist.New(bytesComparable{})}
}

// ID returns the memtable's identifier, shared with the SST it eventually
// flushes to.
func (m *MemTable) ID() uint64 { return m.id }

// Put inserts or overwrites key with value, appending to the attached WAL
// first if one is present.
func (m *MemTable) Put(key, value []byte) error {
	if m.wal != nil {
		if err := m.wal.Append(key, value); err != nil {
			return err
		}
	}
	m.setRaw(key, value)
	return nil
}

// Delete inserts a tombstone for key.
func (m *MemTable) Delete(key []byte) error {
	return m.Put(key, []byte{})
}

// setRaw installs key/value directly into the skip list without touching
// the WAL; used both by Put and by WAL replay during recovery.
func (m *MemTable) setRaw(key, value []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := append([]byte(nil), key...)
	v := append([]byte(nil), value...)
	if el := m.skl.Get(k); el != nil {
		old, _ := el.Value.([]byte)
		m.size += int64(len(v)) - int64(len(old))
	} else {
		m.size += int64(len(k) + len(v))
	}
	m.skl.Set(k, v)
}

// Get returns the raw stored value (which may be a zero-length tombstone)
// and whether the key is present at all.
func (m *MemTable) Get(key []byte) (value []byte, found bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	el := m.skl.Get(key)
	if el == nil {
		return nil, false
	}
	v, _ := el.Value.([]byte)
	return v, true
}

// ApproximateSize returns the running estimate of key+value bytes held.
func (m *MemTable) ApproximateSize() int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.size
}

// Flush streams every entry, in key order, into builder.
func (m *MemTable) Flush(builder *SSTBuilder) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for el := m.skl.Front(); el != nil; el = el.Next() {
		k, _ := el.Key().([]byte)
		v, _ := el.Value.([]byte)
		builder.Add(k, v)
	}
	return nil
}

type memKV struct {
	key, value []byte
}

// MemTableIterator is a point-in-time snapshot of a memtable's entries
// within a lower bound, copied out under the read lock so the iterator
// never blocks concurrent writers.
type MemTableIterator struct {
	entries []memKV
	idx     int
}

// NewIterator snapshots entries with key >= (or >) lower.Key, per lower's
// kind, in ascending key order.
func (m *MemTable) NewIterator(lower Bound) *MemTableIterator {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var entries []memKV
	for el := m.skl.Front(); el != nil; el = el.Next() {
		k, _ := el.Key().([]byte)
		if !lowerAllows(lower, k) {
			continue
		}
		v, _ := el.Value.([]byte)
		entries = append(entries, memKV{key: k, value: v})
	}
	return &MemTableIterator{entries: entries}
}

func (it *MemTableIterator) IsValid() bool { return it.idx < len(it.entries) }
func (it *MemTableIterator) Key() []byte   { return it.entries[it.idx].key }
func (it *MemTableIterator) Value() []byte { return it.entries[it.idx].value }
func (it *MemTableIterator) Next() error {
	if it.IsValid() {
		it.idx++
	}
	return nil
}
func (it *MemTableIterator) NumActiveIterators() int { return 1 }
