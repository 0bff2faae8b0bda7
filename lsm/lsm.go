package lsm

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/intellect4all/storage-engines/common"
)

// CompactionStrategy selects which CompactionController an engine runs.
type CompactionStrategy int

const (
	CompactionSimpleLeveled CompactionStrategy = iota
	CompactionTiered
	CompactionLeveled
)

// CompactionFilter lets callers drop keys during compaction (e.g. expired
// records); it returns true to drop the key.
type CompactionFilter func(key []byte) bool

// Config configures an LSM engine.
type Config struct {
	DataDir      string
	MemTableSize int // bytes; triggers a freeze once exceeded
	BlockSize    int
	BitsPerKey   float64
	CacheBlocks  int

	Strategy             CompactionStrategy
	SimpleLeveledOptions SimpleLeveledOptions
	TieredOptions        TieredOptions
	LeveledOptions       LeveledOptions

	FlushInterval      time.Duration
	CompactionInterval time.Duration
}

// DefaultConfig returns a Config with reasonable defaults for dataDir.
func DefaultConfig(dataDir string) Config {
	return Config{
		DataDir:              dataDir,
		MemTableSize:         4 * 1024 * 1024,
		BlockSize:            defaultBlockSize,
		BitsPerKey:           defaultBitsPerKey,
		CacheBlocks:          1024,
		Strategy:             CompactionSimpleLeveled,
		SimpleLeveledOptions: DefaultSimpleLeveledOptions(),
		TieredOptions:        DefaultTieredOptions(),
		LeveledOptions:       DefaultLeveledOptions(),
		FlushInterval:        50 * time.Millisecond,
		CompactionInterval:   200 * time.Millisecond,
	}
}

// LSM is the top-level LSM-tree storage engine: a copy-on-write State
// protected by a read-mostly lock, a manifest recording every state
// transition, and background goroutines that freeze, flush and compact.
type LSM struct {
	config     Config
	dataDir    string
	logger     *slog.Logger
	stateLock  sync.RWMutex
	state      *State
	txLock     sync.Mutex
	nextID     atomic.Uint64
	manifest   *Manifest
	cache      *BlockCache
	controller CompactionController

	filtersMu sync.Mutex
	filters   []CompactionFilter

	flushCh   chan struct{}
	compactCh chan struct{}
	closeCh   chan struct{}
	wg        sync.WaitGroup

	stats struct {
		writeCount   atomic.Int64
		readCount    atomic.Int64
		flushCount   atomic.Int64
		compactCount atomic.Int64
	}
}

func sstPath(dataDir string, id uint64) string {
	return filepath.Join(dataDir, fmt.Sprintf("%06d.sst", id))
}

func walPath(dataDir string, id uint64) string {
	return filepath.Join(dataDir, fmt.Sprintf("%06d.wal", id))
}

func controllerFor(config Config) CompactionController {
	switch config.Strategy {
	case CompactionTiered:
		return NewTieredController(config.TieredOptions)
	case CompactionLeveled:
		return NewLeveledController(config.LeveledOptions)
	default:
		return NewSimpleLeveledController(config.SimpleLeveledOptions)
	}
}

// New opens (creating if necessary) an LSM engine rooted at config.DataDir,
// replaying its manifest and WALs to reconstruct state.
func New(config Config) (*LSM, error) {
	if err := os.MkdirAll(config.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: create data dir %s: %v", common.ErrIO, config.DataDir, err)
	}

	logger := slog.Default().With("component", "lsm", "dir", config.DataDir)

	manifestPath := filepath.Join(config.DataDir, "MANIFEST")
	records, manifest, err := RecoverManifest(manifestPath)
	if err != nil {
		return nil, err
	}

	l := &LSM{
		config:     config,
		dataDir:    config.DataDir,
		logger:     logger,
		manifest:   manifest,
		cache:      NewBlockCache(config.CacheBlocks),
		controller: controllerFor(config),
		flushCh:    make(chan struct{}, 1),
		compactCh:  make(chan struct{}, 1),
		closeCh:    make(chan struct{}),
	}

	state, memtableIDs, maxID, err := l.replayManifest(records)
	if err != nil {
		return nil, err
	}

	for _, id := range memtableIDs[:max(0, len(memtableIDs)-1)] {
		mt, err := RecoverMemTableFromWAL(walPath(config.DataDir, id), id)
		if err != nil {
			return nil, err
		}
		state.immMemtables = append([]*MemTable{mt}, state.immMemtables...)
	}
	if len(memtableIDs) > 0 {
		lastID := memtableIDs[len(memtableIDs)-1]
		mt, err := RecoverMemTableFromWAL(walPath(config.DataDir, lastID), lastID)
		if err != nil {
			return nil, err
		}
		state.memtable = mt
		if lastID > maxID {
			maxID = lastID
		}
	} else {
		id := uint64(0)
		mt, err := RecoverMemTableFromWAL(walPath(config.DataDir, id), id)
		if err != nil {
			return nil, err
		}
		state.memtable = mt
		if err := manifest.AddRecord(ManifestRecord{NewMemtable: &id}); err != nil {
			return nil, err
		}
	}

	if err := l.cleanupOrphanSSTs(state, maxID); err != nil {
		return nil, err
	}

	if config.Strategy == CompactionSimpleLeveled {
		ensureFixedLevels(state, config.SimpleLeveledOptions.MaxLevels)
	}

	l.nextID.Store(maxID + 1)
	l.state = state

	l.wg.Add(3)
	go l.flushLoop()
	go l.compactionLoop()
	go l.scheduleLoop()

	logger.Info("lsm engine opened", "sstables", totalSSTCount(state))
	return l, nil
}

// replayManifest reconstructs State's SST bookkeeping (L0/levels/sstables)
// from the manifest record log and returns the ids of memtables that were
// never flushed, in creation order.
func (l *LSM) replayManifest(records []ManifestRecord) (*State, []uint64, uint64, error) {
	state := &State{sstables: make(map[uint64]*SST)}
	var memtableIDs []uint64
	var maxID uint64

	bump := func(id uint64) {
		if id > maxID {
			maxID = id
		}
	}

	for _, rec := range records {
		switch {
		case rec.NewMemtable != nil:
			memtableIDs = append(memtableIDs, *rec.NewMemtable)
			bump(*rec.NewMemtable)
		case rec.Flush != nil:
			id := *rec.Flush
			for i, mid := range memtableIDs {
				if mid == id {
					memtableIDs = append(memtableIDs[:i], memtableIDs[i+1:]...)
					break
				}
			}
			state.l0 = append([]uint64{id}, state.l0...)
			bump(id)
		case rec.Compaction != nil:
			ns, _, err := l.controller.Apply(state, rec.Compaction.Task, rec.Compaction.Output, true)
			if err != nil {
				return nil, nil, 0, err
			}
			state = ns
			for _, id := range rec.Compaction.Output {
				bump(id)
			}
		}
	}

	for _, id := range state.l0 {
		sst, err := OpenSST(sstPath(l.dataDir, id), id, l.cache)
		if err != nil {
			return nil, nil, 0, err
		}
		state.sstables[id] = sst
	}
	for _, lvl := range state.levels {
		for _, id := range lvl.ssts {
			sst, err := OpenSST(sstPath(l.dataDir, id), id, l.cache)
			if err != nil {
				return nil, nil, 0, err
			}
			state.sstables[id] = sst
		}
	}

	return state, memtableIDs, maxID, nil
}

// cleanupOrphanSSTs removes .sst files on disk left behind by a compaction
// that completed its writes but crashed before its manifest record was
// durable, and folds any stray higher id into the recovery bound.
func (l *LSM) cleanupOrphanSSTs(state *State, maxID uint64) error {
	entries, err := os.ReadDir(l.dataDir)
	if err != nil {
		return fmt.Errorf("%w: read data dir %s: %v", common.ErrIO, l.dataDir, err)
	}
	for _, e := range entries {
		name := e.Name()
		if !strings.HasSuffix(name, ".sst") {
			continue
		}
		idStr := strings.TrimSuffix(name, ".sst")
		id, err := strconv.ParseUint(idStr, 10, 64)
		if err != nil {
			continue
		}
		if id > maxID {
			maxID = id
		}
		if _, ok := state.sstables[id]; !ok {
			if err := os.Remove(filepath.Join(l.dataDir, name)); err != nil {
				l.logger.Warn("failed to remove orphan sst", "file", name, "err", err)
			}
		}
	}
	return nil
}

// snapshot returns the current state pointer under the read lock.
func (l *LSM) snapshot() *State {
	l.stateLock.RLock()
	defer l.stateLock.RUnlock()
	return l.state
}

// Put inserts or overwrites key with value.
func (l *LSM) Put(key, value []byte) error {
	if len(key) == 0 {
		return common.ErrKeyEmpty
	}
	s := l.snapshot()
	if err := s.memtable.Put(key, value); err != nil {
		return err
	}
	l.stats.writeCount.Add(1)
	l.maybeFreeze(s)
	return nil
}

// Delete inserts a tombstone for key.
func (l *LSM) Delete(key []byte) error {
	if len(key) == 0 {
		return common.ErrKeyEmpty
	}
	s := l.snapshot()
	if err := s.memtable.Delete(key); err != nil {
		return err
	}
	l.stats.writeCount.Add(1)
	l.maybeFreeze(s)
	return nil
}

// WriteBatch applies puts and deletes atomically with respect to a single
// memtable snapshot (but, like Put/Delete, without cross-key isolation from
// concurrent writers).
func (l *LSM) WriteBatch(puts map[string][]byte, deletes [][]byte) error {
	s := l.snapshot()
	for k, v := range puts {
		if err := s.memtable.Put([]byte(k), v); err != nil {
			return err
		}
		l.stats.writeCount.Add(1)
	}
	for _, k := range deletes {
		if err := s.memtable.Delete(k); err != nil {
			return err
		}
		l.stats.writeCount.Add(1)
	}
	l.maybeFreeze(s)
	return nil
}

// maybeFreeze freezes the active memtable inline, synchronously with the
// write that tripped the threshold, then signals the background loop to
// flush the now-immutable memtable to disk. The size check is repeated
// under txLock because s may be stale by the time the lock is acquired:
// another writer may have already frozen this exact memtable.
func (l *LSM) maybeFreeze(s *State) {
	if s.memtable.ApproximateSize() < int64(l.config.MemTableSize) {
		return
	}

	l.txLock.Lock()
	cur := l.snapshot()
	if cur.memtable.ApproximateSize() < int64(l.config.MemTableSize) {
		l.txLock.Unlock()
		return
	}
	err := l.freezeMemtableLocked()
	l.txLock.Unlock()
	if err != nil {
		l.logger.Error("freeze failed", "err", err)
		return
	}

	select {
	case l.flushCh <- struct{}{}:
	default:
	}
}

// Get looks up key, searching the active memtable, then immutable
// memtables newest-first, then L0 newest-first, then each lower level.
func (l *LSM) Get(key []byte) ([]byte, error) {
	l.stats.readCount.Add(1)
	s := l.snapshot()

	if v, ok := s.memtable.Get(key); ok {
		return tombstoneOrValue(v)
	}
	for _, mt := range s.immMemtables {
		if v, ok := mt.Get(key); ok {
			return tombstoneOrValue(v)
		}
	}
	for _, id := range s.l0 {
		sst := s.sstables[id]
		v, found, err := sst.Get(key)
		if err != nil {
			return nil, err
		}
		if found {
			return tombstoneOrValue(v)
		}
	}
	for _, lvl := range s.levels {
		ssts := l.orderedLevelSSTs(s, lvl)
		idx := sort.Search(len(ssts), func(i int) bool {
			return compareBytes(ssts[i].LastKey(), key) >= 0
		})
		if idx >= len(ssts) {
			continue
		}
		if compareBytes(ssts[idx].FirstKey(), key) > 0 {
			continue
		}
		v, found, err := ssts[idx].Get(key)
		if err != nil {
			return nil, err
		}
		if found {
			return tombstoneOrValue(v)
		}
	}
	return nil, common.ErrKeyNotFound
}

func tombstoneOrValue(v []byte) ([]byte, error) {
	if len(v) == 0 {
		return nil, common.ErrKeyNotFound
	}
	return v, nil
}

func (l *LSM) orderedLevelSSTs(s *State, lvl levelEntry) []*SST {
	ssts := make([]*SST, 0, len(lvl.ssts))
	for _, id := range lvl.ssts {
		ssts = append(ssts, s.sstables[id])
	}
	sort.Slice(ssts, func(i, j int) bool {
		return compareBytes(ssts[i].FirstKey(), ssts[j].FirstKey()) < 0
	})
	return ssts
}

// Scan returns an iterator over [lower, upper), applying lower/upper
// semantics per their Bound kind.
func (l *LSM) Scan(lower, upper Bound) (*LsmIterator, error) {
	s := l.snapshot()

	iters := []Iterator{s.memtable.NewIterator(lower)}
	for _, mt := range s.immMemtables {
		iters = append(iters, mt.NewIterator(lower))
	}

	merged, err := NewMergeIterator(iters)
	if err != nil {
		return nil, err
	}

	var l0Iters []Iterator
	for _, id := range s.l0 {
		sst := s.sstables[id]
		var it *SSTIterator
		var err error
		if lower.Kind == Unbounded {
			it, err = NewSSTIteratorAndSeekToFirst(sst)
		} else {
			it, err = NewSSTIteratorAndSeekToKey(sst, lower.Key)
			if err == nil && lower.Kind == Excluded && it.IsValid() && compareBytes(it.Key(), lower.Key) == 0 {
				err = it.Next()
			}
		}
		if err != nil {
			return nil, err
		}
		l0Iters = append(l0Iters, it)
	}
	l0Merged, err := NewMergeIterator(l0Iters)
	if err != nil {
		return nil, err
	}

	memAndL0, err := NewTwoMergeIterator(merged, l0Merged)
	if err != nil {
		return nil, err
	}

	var levelIters []Iterator
	for _, lvl := range s.levels {
		ssts := l.orderedLevelSSTs(s, lvl)
		var ci *SSTConcatIterator
		var err error
		if lower.Kind == Unbounded {
			ci, err = NewSSTConcatIteratorAndSeekToFirst(ssts)
		} else {
			ci, err = NewSSTConcatIteratorAndSeekToKey(ssts, lower.Key)
			if err == nil && lower.Kind == Excluded && ci.IsValid() && compareBytes(ci.Key(), lower.Key) == 0 {
				err = ci.Next()
			}
		}
		if err != nil {
			return nil, err
		}
		levelIters = append(levelIters, ci)
	}
	levelsMerged, err := NewMergeIterator(levelIters)
	if err != nil {
		return nil, err
	}

	full, err := NewTwoMergeIterator(memAndL0, levelsMerged)
	if err != nil {
		return nil, err
	}

	return NewLsmIterator(NewFusedIterator(full), upper)
}

// Sync fsyncs the active memtable's WAL.
func (l *LSM) Sync() error {
	s := l.snapshot()
	if s.memtable.wal != nil {
		return s.memtable.wal.Sync()
	}
	return nil
}

// ForceFlush freezes the active memtable (if non-empty) and flushes every
// immutable memtable to L0, blocking until done.
func (l *LSM) ForceFlush() error {
	s := l.snapshot()
	if s.memtable.ApproximateSize() > 0 {
		if err := l.freezeMemtable(); err != nil {
			return err
		}
	}
	for {
		s = l.snapshot()
		if len(s.immMemtables) == 0 {
			return nil
		}
		if err := l.flushOldestImmutable(); err != nil {
			return err
		}
	}
}

func (l *LSM) freezeMemtable() error {
	l.txLock.Lock()
	defer l.txLock.Unlock()
	return l.freezeMemtableLocked()
}

// freezeMemtableLocked performs the active-memtable-to-immutable swap. The
// caller must hold txLock.
func (l *LSM) freezeMemtableLocked() error {
	id := l.nextID.Add(1)
	newMt, err := RecoverMemTableFromWAL(walPath(l.dataDir, id), id)
	if err != nil {
		return err
	}

	l.stateLock.Lock()
	ns := l.state.clone()
	ns.immMemtables = append([]*MemTable{ns.memtable}, ns.immMemtables...)
	ns.memtable = newMt
	l.state = ns
	l.stateLock.Unlock()

	return l.manifest.AddRecord(ManifestRecord{NewMemtable: &id})
}

func (l *LSM) flushOldestImmutable() error {
	l.txLock.Lock()
	defer l.txLock.Unlock()

	l.stateLock.RLock()
	if len(l.state.immMemtables) == 0 {
		l.stateLock.RUnlock()
		return nil
	}
	oldest := l.state.immMemtables[len(l.state.immMemtables)-1]
	l.stateLock.RUnlock()

	builder := NewSSTBuilder(l.config.BlockSize)
	if err := oldest.Flush(builder); err != nil {
		return err
	}
	sst, err := builder.Build(oldest.ID(), sstPath(l.dataDir, oldest.ID()), l.config.BitsPerKey, l.cache)
	if err != nil {
		return err
	}
	if err := syncDir(l.dataDir); err != nil {
		return err
	}

	l.stateLock.Lock()
	ns := l.state.clone()
	ns.immMemtables = ns.immMemtables[:len(ns.immMemtables)-1]
	if l.config.Strategy == CompactionTiered {
		ns.levels = append([]levelEntry{{id: sst.ID(), ssts: []uint64{sst.ID()}}}, ns.levels...)
	} else {
		ns.l0 = append([]uint64{sst.ID()}, ns.l0...)
	}
	ns.sstables[sst.ID()] = sst
	l.state = ns
	l.stateLock.Unlock()

	l.stats.flushCount.Add(1)
	id := sst.ID()
	if err := l.manifest.AddRecord(ManifestRecord{Flush: &id}); err != nil {
		return err
	}
	if oldest.wal != nil {
		return oldest.wal.Remove()
	}
	return nil
}

// AddCompactionFilter registers filter; every subsequent compaction drops
// keys for which filter returns true.
func (l *LSM) AddCompactionFilter(filter CompactionFilter) {
	l.filtersMu.Lock()
	defer l.filtersMu.Unlock()
	l.filters = append(l.filters, filter)
}

func (l *LSM) filtered(key []byte) bool {
	l.filtersMu.Lock()
	defer l.filtersMu.Unlock()
	for _, f := range l.filters {
		if f(key) {
			return true
		}
	}
	return false
}

// ForceFullCompaction merges every SST (L0 and all levels/tiers) into the
// bottom level, dropping tombstones and filtered keys.
func (l *LSM) ForceFullCompaction() error {
	s := l.snapshot()
	var levelSSTs [][]uint64
	for _, lvl := range s.levels {
		levelSSTs = append(levelSSTs, append([]uint64(nil), lvl.ssts...))
	}
	task := ForceFullCompactionTask{
		L0SSTables:    append([]uint64(nil), s.l0...),
		LevelSSTables: levelSSTs,
	}
	return l.runCompactionTask(task)
}

func (l *LSM) triggerCompaction() error {
	s := l.snapshot()
	task, ok := l.controller.GenerateTask(s)
	if !ok {
		return nil
	}
	return l.runCompactionTask(task)
}

// runCompactionTask executes task's iterator merge, builds output SSTs,
// folds the result into state via Apply, appends a manifest record and
// removes obsolete files. Whether output lands at the true bottom of the
// hierarchy (and may therefore drop tombstones) comes from
// buildCompactionIterator, not from the caller.
func (l *LSM) runCompactionTask(task CompactionTask) error {
	s := l.snapshot()

	iter, bottomLevel, err := l.buildCompactionIterator(s, task)
	if err != nil {
		return err
	}

	var output []uint64
	var builder *SSTBuilder
	flushCurrent := func() error {
		if builder == nil || builder.IsEmpty() {
			return nil
		}
		id := l.nextID.Add(1)
		sst, err := builder.Build(id, sstPath(l.dataDir, id), l.config.BitsPerKey, l.cache)
		if err != nil {
			return err
		}
		l.stateLock.Lock()
		l.state.sstables[sst.ID()] = sst
		l.stateLock.Unlock()
		output = append(output, sst.ID())
		builder = nil
		return nil
	}

	for iter.IsValid() {
		key := iter.Key()
		value := iter.Value()
		drop := (bottomLevel && len(value) == 0) || l.filtered(key)
		if !drop {
			if builder == nil {
				builder = NewSSTBuilder(l.config.BlockSize)
			}
			builder.Add(key, value)
			if builder.EstimatedSize() >= l.config.MemTableSize {
				if err := flushCurrent(); err != nil {
					return err
				}
			}
		}
		if err := iter.Next(); err != nil {
			return err
		}
	}
	if err := flushCurrent(); err != nil {
		return err
	}
	if err := syncDir(l.dataDir); err != nil {
		return err
	}

	l.txLock.Lock()
	defer l.txLock.Unlock()

	l.stateLock.Lock()
	ns, obsolete, err := l.controller.Apply(l.state, task, output, false)
	if err != nil {
		l.stateLock.Unlock()
		return err
	}
	l.state = ns
	l.stateLock.Unlock()

	l.stats.compactCount.Add(1)
	if err := l.manifest.AddRecord(ManifestRecord{Compaction: &CompactionRecord{Task: task, Output: output}}); err != nil {
		return err
	}

	for _, id := range obsolete {
		l.stateLock.Lock()
		sst := l.state.sstables[id]
		delete(l.state.sstables, id)
		l.stateLock.Unlock()
		if sst != nil {
			if err := sst.Remove(); err != nil {
				l.logger.Warn("failed to remove compacted sst", "id", id, "err", err)
			}
		}
	}
	return nil
}

// buildCompactionIterator returns a merged iterator over every SST named by
// task, and whether the task's output lands at the true bottom of the
// hierarchy (in which case tombstones may be dropped).
func (l *LSM) buildCompactionIterator(s *State, task CompactionTask) (Iterator, bool, error) {
	switch t := task.(type) {
	case SimpleLeveledTask:
		upper, err := l.sstIterSlice(s, t.UpperLevelSSTIDs, t.UpperLevel == nil)
		if err != nil {
			return nil, false, err
		}
		lower, err := l.sstIterSlice(s, t.LowerLevelSSTIDs, false)
		if err != nil {
			return nil, false, err
		}
		merged, err := NewMergeIterator(append(upper, lower...))
		return merged, t.IsLowerLevelBottomLevel, err
	case TieredTask:
		var all []Iterator
		for _, tier := range t.Tiers {
			ssts := l.orderedSSTsByID(s, tier.ssts)
			ci, err := NewSSTConcatIteratorAndSeekToFirst(ssts)
			if err != nil {
				return nil, false, err
			}
			all = append(all, ci)
		}
		merged, err := NewMergeIterator(all)
		return merged, t.BottomTierIncluded, err
	case ForceFullCompactionTask:
		l0, err := l.sstIterSlice(s, t.L0SSTables, true)
		if err != nil {
			return nil, false, err
		}
		for _, ids := range t.LevelSSTables {
			ssts := l.orderedSSTsByID(s, ids)
			ci, err := NewSSTConcatIteratorAndSeekToFirst(ssts)
			if err != nil {
				return nil, false, err
			}
			l0 = append(l0, ci)
		}
		merged, err := NewMergeIterator(l0)
		return merged, true, err
	default:
		return nil, false, fmt.Errorf("%w: unsupported compaction task %T", common.ErrNotImplemented, task)
	}
}

func (l *LSM) sstIterSlice(s *State, ids []uint64, eachIsSingleRun bool) ([]Iterator, error) {
	var iters []Iterator
	for _, id := range ids {
		sst := s.sstables[id]
		it, err := NewSSTIteratorAndSeekToFirst(sst)
		if err != nil {
			return nil, err
		}
		iters = append(iters, it)
	}
	return iters, nil
}

func (l *LSM) orderedSSTsByID(s *State, ids []uint64) []*SST {
	ssts := make([]*SST, 0, len(ids))
	for _, id := range ids {
		ssts = append(ssts, s.sstables[id])
	}
	sort.Slice(ssts, func(i, j int) bool {
		return compareBytes(ssts[i].FirstKey(), ssts[j].FirstKey()) < 0
	})
	return ssts
}

func (l *LSM) flushLoop() {
	defer l.wg.Done()
	for {
		select {
		case <-l.closeCh:
			return
		case <-l.flushCh:
			if err := l.flushOldestImmutable(); err != nil {
				l.logger.Error("flush failed", "err", err)
				continue
			}
			select {
			case l.compactCh <- struct{}{}:
			default:
			}
		}
	}
}

func (l *LSM) compactionLoop() {
	defer l.wg.Done()
	for {
		select {
		case <-l.closeCh:
			return
		case <-l.compactCh:
			if err := l.triggerCompaction(); err != nil {
				l.logger.Error("compaction failed", "err", err)
			}
		}
	}
}

func (l *LSM) scheduleLoop() {
	defer l.wg.Done()
	flushTicker := time.NewTicker(l.config.FlushInterval)
	compactTicker := time.NewTicker(l.config.CompactionInterval)
	defer flushTicker.Stop()
	defer compactTicker.Stop()
	for {
		select {
		case <-l.closeCh:
			return
		case <-flushTicker.C:
			s := l.snapshot()
			if s.memtable.ApproximateSize() >= int64(l.config.MemTableSize) {
				l.maybeFreeze(s)
			}
			if len(l.snapshot().immMemtables) > 0 {
				select {
				case l.flushCh <- struct{}{}:
				default:
				}
			}
		case <-compactTicker.C:
			select {
			case l.compactCh <- struct{}{}:
			default:
			}
		}
	}
}

// Close stops background workers, flushes pending data and closes the
// manifest and every open SST.
func (l *LSM) Close() error {
	close(l.closeCh)
	l.wg.Wait()

	if err := l.ForceFlush(); err != nil {
		return err
	}

	if err := l.manifest.Close(); err != nil {
		return err
	}

	s := l.snapshot()
	for _, sst := range s.sstables {
		if err := sst.Close(); err != nil {
			return err
		}
	}
	return nil
}

// Stats reports the engine's current size and activity counters.
func (l *LSM) Stats() common.Stats {
	s := l.snapshot()
	numKeys := int64(0)
	for it := s.memtable.skl.Front(); it != nil; it = it.Next() {
		numKeys++
	}

	writeCount := l.stats.writeCount.Load()
	readCount := l.stats.readCount.Load()
	flushCount := l.stats.flushCount.Load()
	compactCount := l.stats.compactCount.Load()

	writeAmp := 1.0
	if flushCount > 0 {
		writeAmp = 1.5
		if compactCount > 0 {
			writeAmp += (float64(compactCount) / float64(flushCount)) * 0.5
		}
		if writeAmp > 5.0 {
			writeAmp = 5.0
		}
	}

	spaceAmp := 1.2
	if l0 := len(s.l0); l0 > 2 {
		spaceAmp = 1.5 + float64(l0)*0.1
		if spaceAmp > 3.0 {
			spaceAmp = 3.0
		}
	}

	return common.Stats{
		NumKeys:       numKeys,
		NumSegments:   totalSSTCount(s) + 1,
		ActiveSegSize: s.memtable.ApproximateSize(),
		TotalDiskSize: totalDiskSize(s),
		WriteCount:    writeCount,
		ReadCount:     readCount,
		CompactCount:  compactCount,
		WriteAmp:      writeAmp,
		SpaceAmp:      spaceAmp,
	}
}

// Compact triggers a single round of background compaction synchronously.
func (l *LSM) Compact() error {
	return l.triggerCompaction()
}
