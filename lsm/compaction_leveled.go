package lsm

import "github.com/intellect4all/storage-engines/common"

// LeveledOptions configures LeveledController.
type LeveledOptions struct {
	LevelSizeMultiplier int
	BaseLevelSizeMB     int
}

// DefaultLeveledOptions returns sane defaults.
func DefaultLeveledOptions() LeveledOptions {
	return LeveledOptions{LevelSizeMultiplier: 10, BaseLevelSizeMB: 64}
}

// LeveledController is reserved for classic per-level-size-ratio leveled
// compaction (RocksDB/LevelDB style, choosing one overlapping SST from Ln
// and merging it with its overlap range in Ln+1). GenerateTask never fires
// yet; wiring it up needs per-level byte-size tracking in State that
// SimpleLeveledController and TieredController don't require, and is left
// for a follow-up change.
type LeveledController struct {
	opts LeveledOptions
}

// NewLeveledController creates a controller with the given options.
func NewLeveledController(opts LeveledOptions) *LeveledController {
	return &LeveledController{opts: opts}
}

func (c *LeveledController) GenerateTask(s *State) (CompactionTask, bool) {
	return nil, false
}

func (c *LeveledController) Apply(s *State, task CompactionTask, output []uint64, inRecovery bool) (*State, []uint64, error) {
	return nil, nil, common.ErrNotImplemented
}
