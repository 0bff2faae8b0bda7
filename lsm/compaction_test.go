package lsm

import (
	"errors"
	"testing"

	"github.com/intellect4all/storage-engines/common"
)

func TestSimpleLeveledGenerateTaskL0Trigger(t *testing.T) {
	c := NewSimpleLeveledController(SimpleLeveledOptions{
		SizeRatioPercent:               200,
		Level0FileNumCompactionTrigger: 4,
	})

	s := &State{l0: []uint64{4, 3, 2, 1}}
	task, ok := c.GenerateTask(s)
	if !ok {
		t.Fatal("expected a task once L0 reaches its trigger count")
	}
	slt, ok := task.(SimpleLeveledTask)
	if !ok {
		t.Fatalf("expected SimpleLeveledTask, got %T", task)
	}
	if slt.UpperLevel != nil {
		t.Fatal("expected L0 compaction to report UpperLevel as nil")
	}
	if !slt.IsLowerLevelBottomLevel {
		t.Fatal("expected a lone target level to be treated as the bottom level")
	}
}

func TestSimpleLeveledApplyFoldsL0IntoLevel(t *testing.T) {
	c := NewSimpleLeveledController(DefaultSimpleLeveledOptions())
	s := &State{l0: []uint64{1, 2, 3, 4}, sstables: map[uint64]*SST{}}

	task := SimpleLeveledTask{
		UpperLevel:              nil,
		UpperLevelSSTIDs:        []uint64{1, 2, 3, 4},
		LowerLevel:              1,
		LowerLevelSSTIDs:        nil,
		IsLowerLevelBottomLevel: true,
	}

	ns, obsolete, err := c.Apply(s, task, []uint64{100}, false)
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if len(ns.l0) != 0 {
		t.Fatalf("expected L0 emptied, got %v", ns.l0)
	}
	if len(ns.levels) != 1 || ns.levels[0].id != 1 || len(ns.levels[0].ssts) != 1 || ns.levels[0].ssts[0] != 100 {
		t.Fatalf("expected level 1 to hold only the new output sst, got %+v", ns.levels)
	}
	if len(obsolete) != 4 {
		t.Fatalf("expected 4 obsolete ids, got %v", obsolete)
	}
}

func TestSimpleLeveledApplyRejectsWrongTaskType(t *testing.T) {
	c := NewSimpleLeveledController(DefaultSimpleLeveledOptions())
	_, _, err := c.Apply(&State{}, TieredTask{}, nil, false)
	if err == nil {
		t.Fatal("expected an error applying a TieredTask through SimpleLeveledController")
	}
}

func TestEnsureFixedLevelsPrePopulatesAndPreservesExisting(t *testing.T) {
	s := &State{levels: []levelEntry{{id: 2, ssts: []uint64{9}}}}
	ensureFixedLevels(s, 4)

	if len(s.levels) != 4 {
		t.Fatalf("expected 4 pre-populated levels, got %d", len(s.levels))
	}
	for i, lvl := range s.levels {
		if lvl.id != uint64(i+1) {
			t.Fatalf("expected level %d to have id %d, got %d", i, i+1, lvl.id)
		}
	}
	if len(s.levels[1].ssts) != 1 || s.levels[1].ssts[0] != 9 {
		t.Fatalf("expected level 2's existing ssts to survive, got %+v", s.levels[1])
	}
	if len(s.levels[0].ssts) != 0 || len(s.levels[2].ssts) != 0 || len(s.levels[3].ssts) != 0 {
		t.Fatal("expected untouched levels to start empty")
	}
}

func TestSimpleLeveledCascadesPastTwoLevels(t *testing.T) {
	c := NewSimpleLeveledController(SimpleLeveledOptions{
		SizeRatioPercent:               200,
		Level0FileNumCompactionTrigger: 100, // keep L0 out of the way
		MaxLevels:                      3,
	})

	s := &State{sstables: map[uint64]*SST{}}
	ensureFixedLevels(s, 3)
	s.levels[0].ssts = []uint64{1} // L1 has 1 file, L2 empty: ratio triggers

	task, ok := c.GenerateTask(s)
	if !ok {
		t.Fatal("expected a task cascading L1 into L2")
	}
	slt, ok := task.(SimpleLeveledTask)
	if !ok {
		t.Fatalf("expected SimpleLeveledTask, got %T", task)
	}
	if slt.LowerLevel != 2 {
		t.Fatalf("expected the task to target level 2, got %d", slt.LowerLevel)
	}
	if slt.IsLowerLevelBottomLevel {
		t.Fatal("level 2 of 3 is not yet the bottom level")
	}

	ns, _, err := c.Apply(s, slt, []uint64{200}, false)
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if len(ns.levels) != 3 {
		t.Fatalf("expected the fixed 3-level array to survive Apply, got %d levels", len(ns.levels))
	}
	if ns.levels[1].id != 2 || len(ns.levels[1].ssts) != 1 || ns.levels[1].ssts[0] != 200 {
		t.Fatalf("expected level 2 to now hold the compaction output, got %+v", ns.levels[1])
	}

	// Now drive L2 -> L3, which should be reported as the bottom level.
	s2 := &State{sstables: map[uint64]*SST{}, levels: ns.levels}
	task2, ok := c.GenerateTask(s2)
	if !ok {
		t.Fatal("expected a task cascading L2 into L3")
	}
	slt2, ok := task2.(SimpleLeveledTask)
	if !ok {
		t.Fatalf("expected SimpleLeveledTask, got %T", task2)
	}
	if slt2.LowerLevel != 3 {
		t.Fatalf("expected the task to target level 3, got %d", slt2.LowerLevel)
	}
	if !slt2.IsLowerLevelBottomLevel {
		t.Fatal("expected level 3 of 3 to be reported as the bottom level")
	}
}

func TestTieredGenerateTaskAndApply(t *testing.T) {
	c := NewTieredController(TieredOptions{NumTiers: 2})
	s := &State{levels: []levelEntry{
		{id: 10, ssts: []uint64{1, 2}},
		{id: 20, ssts: []uint64{3, 4}},
	}}

	task, ok := c.GenerateTask(s)
	if !ok {
		t.Fatal("expected a merge task once tier count reaches NumTiers")
	}
	tt, ok := task.(TieredTask)
	if !ok {
		t.Fatalf("expected TieredTask, got %T", task)
	}
	if len(tt.Tiers) != 2 {
		t.Fatalf("expected both tiers snapshotted, got %d", len(tt.Tiers))
	}

	ns, obsolete, err := c.Apply(s, tt, []uint64{99}, false)
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if len(ns.levels) != 1 {
		t.Fatalf("expected a single merged tier, got %d", len(ns.levels))
	}
	if len(obsolete) != 4 {
		t.Fatalf("expected 4 obsolete ids, got %v", obsolete)
	}
}

func TestTieredGenerateTaskSizeRatioPartialMerge(t *testing.T) {
	c := NewTieredController(TieredOptions{
		NumTiers:                    4,
		MaxSizeAmplificationPercent: 1000, // keep amplification out of the way
		SizeRatio:                   50,
		MinMergeWidth:               2,
	})
	// Tiers 0 and 1 (newest) are small. Tier 2 is disproportionately larger
	// than the tiers before it, which should trigger a partial merge of the
	// prefix [tier40, tier30] — tier 2 itself and the bottom tier are left
	// untouched, matching the reference algorithm's "merge what's ahead of
	// the oversized tier" behavior.
	s := &State{levels: []levelEntry{
		{id: 40, ssts: []uint64{1}},
		{id: 30, ssts: []uint64{2}},
		{id: 20, ssts: []uint64{3, 4, 5, 6, 7, 8, 9, 10, 11, 12}},
		{id: 10, ssts: []uint64{13, 14, 15, 16, 17, 18, 19, 20, 21, 22, 23, 24}},
	}}

	task, ok := c.GenerateTask(s)
	if !ok {
		t.Fatal("expected a size-ratio partial merge task")
	}
	tt, ok := task.(TieredTask)
	if !ok {
		t.Fatalf("expected TieredTask, got %T", task)
	}
	if tt.BottomTierIncluded {
		t.Fatal("expected a partial merge to exclude the bottom tier")
	}
	if len(tt.Tiers) != 2 || tt.Tiers[0].id != 40 || tt.Tiers[1].id != 30 {
		t.Fatalf("expected the prefix [tier40, tier30], got %+v", tt.Tiers)
	}
}

func TestTieredGenerateTaskMaxSizeAmplificationFullMerge(t *testing.T) {
	c := NewTieredController(TieredOptions{
		NumTiers:                    3,
		MaxSizeAmplificationPercent: 50,
		SizeRatio:                   1000, // keep the size-ratio branch out of the way
		MinMergeWidth:               10,
	})
	// engine size 3, last tier size 1: 100*(3-1)/1 = 200% >= 50% triggers.
	s := &State{levels: []levelEntry{
		{id: 30, ssts: []uint64{1}},
		{id: 20, ssts: []uint64{2}},
		{id: 10, ssts: []uint64{3}},
	}}

	task, ok := c.GenerateTask(s)
	if !ok {
		t.Fatal("expected a size-amplification full merge task")
	}
	tt, ok := task.(TieredTask)
	if !ok {
		t.Fatalf("expected TieredTask, got %T", task)
	}
	if !tt.BottomTierIncluded {
		t.Fatal("expected size amplification to merge every tier, bottom included")
	}
	if len(tt.Tiers) != 3 {
		t.Fatalf("expected all 3 tiers merged, got %d", len(tt.Tiers))
	}
}

func TestTieredGenerateTaskMaxMergeWidthCapsPartialMerge(t *testing.T) {
	c := NewTieredController(TieredOptions{
		NumTiers:                    4,
		MaxSizeAmplificationPercent: 1000,
		SizeRatio:                   50,
		MinMergeWidth:               2,
		MaxMergeWidth:               1,
	})
	// Same shape as TestTieredGenerateTaskSizeRatioPartialMerge, where the
	// uncapped merge would span [tier40, tier30] (width 2); MaxMergeWidth=1
	// should cap it down to just [tier40].
	s := &State{levels: []levelEntry{
		{id: 40, ssts: []uint64{1}},
		{id: 30, ssts: []uint64{2}},
		{id: 20, ssts: []uint64{3, 4, 5, 6, 7, 8, 9, 10, 11, 12}},
		{id: 10, ssts: []uint64{13, 14, 15, 16, 17, 18, 19, 20, 21, 22, 23, 24}},
	}}

	task, ok := c.GenerateTask(s)
	if !ok {
		t.Fatal("expected a capped partial merge task")
	}
	tt := task.(TieredTask)
	if len(tt.Tiers) != 1 || tt.Tiers[0].id != 40 {
		t.Fatalf("expected MaxMergeWidth to cap the merge to [tier40], got %+v", tt.Tiers)
	}
}

func TestTieredGenerateTaskNoTriggerBelowThreshold(t *testing.T) {
	c := NewTieredController(TieredOptions{NumTiers: 4})
	s := &State{levels: []levelEntry{{id: 1, ssts: []uint64{1}}}}
	if _, ok := c.GenerateTask(s); ok {
		t.Fatal("expected no task before NumTiers is reached")
	}
}

func TestLeveledControllerIsReserved(t *testing.T) {
	c := NewLeveledController(DefaultLeveledOptions())
	if _, ok := c.GenerateTask(&State{}); ok {
		t.Fatal("expected LeveledController.GenerateTask to never fire yet")
	}
	_, _, err := c.Apply(&State{}, LeveledTask{}, nil, false)
	if !errors.Is(err, common.ErrNotImplemented) {
		t.Fatalf("expected ErrNotImplemented, got %v", err)
	}
}

func TestCompactionTaskJSONRoundTrip(t *testing.T) {
	upper := 2
	original := SimpleLeveledTask{
		UpperLevel:              &upper,
		UpperLevelSSTIDs:        []uint64{5, 6},
		LowerLevel:              3,
		LowerLevelSSTIDs:        []uint64{7},
		IsLowerLevelBottomLevel: true,
	}

	raw, err := marshalCompactionTask(original)
	if err != nil {
		t.Fatalf("marshalCompactionTask failed: %v", err)
	}

	decoded, err := unmarshalCompactionTask(raw)
	if err != nil {
		t.Fatalf("unmarshalCompactionTask failed: %v", err)
	}
	slt, ok := decoded.(SimpleLeveledTask)
	if !ok {
		t.Fatalf("expected SimpleLeveledTask, got %T", decoded)
	}
	if slt.LowerLevel != 3 || len(slt.UpperLevelSSTIDs) != 2 || *slt.UpperLevel != 2 {
		t.Fatalf("round-trip mismatch: %+v", slt)
	}
}

func TestCompactionTaskJSONRoundTripForceFull(t *testing.T) {
	original := ForceFullCompactionTask{
		L0SSTables:    []uint64{1, 2},
		LevelSSTables: [][]uint64{{3, 4}, {5}},
	}
	raw, err := marshalCompactionTask(original)
	if err != nil {
		t.Fatalf("marshalCompactionTask failed: %v", err)
	}
	decoded, err := unmarshalCompactionTask(raw)
	if err != nil {
		t.Fatalf("unmarshalCompactionTask failed: %v", err)
	}
	fft, ok := decoded.(ForceFullCompactionTask)
	if !ok {
		t.Fatalf("expected ForceFullCompactionTask, got %T", decoded)
	}
	if len(fft.LevelSSTables) != 2 {
		t.Fatalf("expected 2 levels, got %d", len(fft.LevelSSTables))
	}
}
