package lsm

// levelEntry is one row of the level hierarchy: for leveled compaction one
// entry per level, for tiered compaction one entry per tier. id is the
// level/tier number used in manifest records and file names; ssts lists
// member SST ids, oldest (or, for leveled, no particular order since the
// level is non-overlapping) first.
type levelEntry struct {
	id   uint64
	ssts []uint64
}

// State is an immutable snapshot of engine state, replaced wholesale by
// copy-on-write on every mutation (freeze, flush, compaction apply). Readers
// take a pointer under a read lock and then operate on it lock-free; only
// swapping the pointer itself requires synchronization.
type State struct {
	memtable     *MemTable
	immMemtables []*MemTable // newest first
	l0           []uint64    // newest first
	levels       []levelEntry
	sstables     map[uint64]*SST
}

// clone returns a shallow copy suitable for an in-progress mutation: slices
// and the map are copied so the original snapshot remains untouched, while
// the *MemTable and *SST values themselves are shared (they are themselves
// either immutable or independently synchronized).
func (s *State) clone() *State {
	imm := make([]*MemTable, len(s.immMemtables))
	copy(imm, s.immMemtables)

	l0 := make([]uint64, len(s.l0))
	copy(l0, s.l0)

	levels := make([]levelEntry, len(s.levels))
	for i, l := range s.levels {
		ssts := make([]uint64, len(l.ssts))
		copy(ssts, l.ssts)
		levels[i] = levelEntry{id: l.id, ssts: ssts}
	}

	sstables := make(map[uint64]*SST, len(s.sstables))
	for id, sst := range s.sstables {
		sstables[id] = sst
	}

	return &State{
		memtable:     s.memtable,
		immMemtables: imm,
		l0:           l0,
		levels:       levels,
		sstables:     sstables,
	}
}
