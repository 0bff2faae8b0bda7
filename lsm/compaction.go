package lsm

import (
	"encoding/json"
	"fmt"

	"github.com/intellect4all/storage-engines/common"
)

// CompactionTask describes one compaction job: which SSTs participate and
// where the output lands. Concrete types are produced by a
// CompactionController's GenerateTask and consumed by its Apply, and are
// persisted verbatim in manifest Compaction records.
type CompactionTask interface {
	isCompactionTask()
	kind() string
}

// SimpleLeveledTask compacts every SST in UpperLevel (nil means L0) into
// LowerLevel.
type SimpleLeveledTask struct {
	UpperLevel              *int     `json:"upper_level"`
	UpperLevelSSTIDs        []uint64 `json:"upper_level_sst_ids"`
	LowerLevel              int      `json:"lower_level"`
	LowerLevelSSTIDs        []uint64 `json:"lower_level_sst_ids"`
	IsLowerLevelBottomLevel bool     `json:"is_lower_level_bottom_level"`
}

func (SimpleLeveledTask) isCompactionTask() {}
func (SimpleLeveledTask) kind() string      { return "SimpleLeveled" }

// TieredTask merges a prefix of tiers into one new tier.
type TieredTask struct {
	Tiers               []levelEntry `json:"tiers"`
	BottomTierIncluded  bool         `json:"bottom_tier_included"`
}

func (TieredTask) isCompactionTask() {}
func (TieredTask) kind() string      { return "Tiered" }

// LeveledTask compacts a set of SSTs from UpperLevel into overlapping SSTs
// in LowerLevel. Reserved: the leveled controller does not yet generate
// these.
type LeveledTask struct {
	UpperLevel              int      `json:"upper_level"`
	UpperLevelSSTIDs        []uint64 `json:"upper_level_sst_ids"`
	LowerLevel              int      `json:"lower_level"`
	LowerLevelSSTIDs        []uint64 `json:"lower_level_sst_ids"`
	IsLowerLevelBottomLevel bool     `json:"is_lower_level_bottom_level"`
}

func (LeveledTask) isCompactionTask() {}
func (LeveledTask) kind() string      { return "Leveled" }

// ForceFullCompactionTask merges every SST in the engine (L0 and every
// level/tier) into one run at the bottom level.
type ForceFullCompactionTask struct {
	L0SSTables     []uint64   `json:"l0_sstables"`
	LevelSSTables  [][]uint64 `json:"level_sstables"`
}

func (ForceFullCompactionTask) isCompactionTask() {}
func (ForceFullCompactionTask) kind() string      { return "ForceFull" }

type taggedTask struct {
	Kind string          `json:"kind"`
	Data json.RawMessage `json:"data"`
}

func marshalCompactionTask(task CompactionTask) ([]byte, error) {
	data, err := json.Marshal(task)
	if err != nil {
		return nil, fmt.Errorf("%w: encode compaction task: %v", common.ErrCorruptData, err)
	}
	return json.Marshal(taggedTask{Kind: task.kind(), Data: data})
}

func unmarshalCompactionTask(raw json.RawMessage) (CompactionTask, error) {
	var tt taggedTask
	if err := json.Unmarshal(raw, &tt); err != nil {
		return nil, fmt.Errorf("%w: decode compaction task envelope: %v", common.ErrCorruptData, err)
	}
	var task CompactionTask
	switch tt.Kind {
	case "SimpleLeveled":
		var t SimpleLeveledTask
		if err := json.Unmarshal(tt.Data, &t); err != nil {
			return nil, fmt.Errorf("%w: decode SimpleLeveledTask: %v", common.ErrCorruptData, err)
		}
		task = t
	case "Tiered":
		var t TieredTask
		if err := json.Unmarshal(tt.Data, &t); err != nil {
			return nil, fmt.Errorf("%w: decode TieredTask: %v", common.ErrCorruptData, err)
		}
		task = t
	case "Leveled":
		var t LeveledTask
		if err := json.Unmarshal(tt.Data, &t); err != nil {
			return nil, fmt.Errorf("%w: decode LeveledTask: %v", common.ErrCorruptData, err)
		}
		task = t
	case "ForceFull":
		var t ForceFullCompactionTask
		if err := json.Unmarshal(tt.Data, &t); err != nil {
			return nil, fmt.Errorf("%w: decode ForceFullCompactionTask: %v", common.ErrCorruptData, err)
		}
		task = t
	default:
		return nil, fmt.Errorf("%w: unknown compaction task kind %q", common.ErrCorruptData, tt.Kind)
	}
	return task, nil
}

// CompactionController picks compaction work and folds its results back
// into engine state. Implementations never touch the filesystem directly;
// runCompaction executes the task's iterator merge and Apply only updates
// bookkeeping (which SSTs belong where).
type CompactionController interface {
	// GenerateTask inspects s and returns the next compaction job to run,
	// or (nil, false) if nothing is due.
	GenerateTask(s *State) (CompactionTask, bool)
	// Apply folds a completed task's output SST ids into a clone of s,
	// returning the new state and the ids of SSTs that are now obsolete
	// and may be deleted from disk. inRecovery suppresses input-SST
	// existence checks that don't hold mid-replay.
	Apply(s *State, task CompactionTask, output []uint64, inRecovery bool) (*State, []uint64, error)
}
