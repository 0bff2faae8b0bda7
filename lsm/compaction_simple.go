package lsm

import "fmt"

// SimpleLeveledOptions configures SimpleLeveledController.
type SimpleLeveledOptions struct {
	// SizeRatioPercent triggers Ln -> Ln+1 compaction when
	// 100*len(Ln+1)/len(Ln) is below this percentage.
	SizeRatioPercent int
	// Level0FileNumCompactionTrigger triggers L0 -> L1 compaction once L0
	// holds at least this many SSTs.
	Level0FileNumCompactionTrigger int
	// MaxLevels is the fixed number of levels below L0. The level array is
	// pre-populated with ids 1..MaxLevels at state construction time so
	// task generation can always look at an adjacent pair without first
	// needing that lower level to already hold data.
	MaxLevels int
}

// DefaultSimpleLeveledOptions returns sane defaults.
func DefaultSimpleLeveledOptions() SimpleLeveledOptions {
	return SimpleLeveledOptions{SizeRatioPercent: 200, Level0FileNumCompactionTrigger: 4, MaxLevels: 6}
}

// ensureFixedLevels grows s.levels in place to hold exactly maxLevels
// entries with ids 1..maxLevels, preserving ssts already recorded against
// an id and leaving the rest empty. Without this, a level can never be
// created past whatever setLevelSSTs has appended so far, and the
// ratio-cascade loop in GenerateTask - which only ever looks at adjacent
// pairs that already exist - can never reach past L1.
func ensureFixedLevels(s *State, maxLevels int) {
	if maxLevels <= 0 {
		return
	}
	existing := make(map[uint64][]uint64, len(s.levels))
	for _, l := range s.levels {
		existing[l.id] = l.ssts
	}
	levels := make([]levelEntry, maxLevels)
	for i := 0; i < maxLevels; i++ {
		id := uint64(i + 1)
		levels[i] = levelEntry{id: id, ssts: existing[id]}
	}
	s.levels = levels
}

// SimpleLeveledController triggers compaction purely from SST counts: L0 is
// drained once it accumulates enough files, and each level below is merged
// down whenever it grows disproportionately larger than the level beneath
// it.
type SimpleLeveledController struct {
	opts SimpleLeveledOptions
}

// NewSimpleLeveledController creates a controller with the given options.
func NewSimpleLeveledController(opts SimpleLeveledOptions) *SimpleLeveledController {
	return &SimpleLeveledController{opts: opts}
}

func (c *SimpleLeveledController) GenerateTask(s *State) (CompactionTask, bool) {
	if len(s.l0) >= c.opts.Level0FileNumCompactionTrigger {
		lowerLevel := 1
		var lowerSSTs []uint64
		if len(s.levels) > 0 {
			lowerSSTs = s.levels[0].ssts
			lowerLevel = int(s.levels[0].id)
		}
		return SimpleLeveledTask{
			UpperLevel:              nil,
			UpperLevelSSTIDs:        append([]uint64(nil), s.l0...),
			LowerLevel:              lowerLevel,
			LowerLevelSSTIDs:        append([]uint64(nil), lowerSSTs...),
			IsLowerLevelBottomLevel: c.opts.MaxLevels <= 1,
		}, true
	}

	for i := 0; i+1 < len(s.levels); i++ {
		upper := s.levels[i]
		lower := s.levels[i+1]
		if len(upper.ssts) == 0 {
			continue
		}
		ratio := 100 * len(lower.ssts) / len(upper.ssts)
		if ratio < c.opts.SizeRatioPercent {
			upperID := int(upper.id)
			return SimpleLeveledTask{
				UpperLevel:              &upperID,
				UpperLevelSSTIDs:        append([]uint64(nil), upper.ssts...),
				LowerLevel:              int(lower.id),
				LowerLevelSSTIDs:        append([]uint64(nil), lower.ssts...),
				IsLowerLevelBottomLevel: lower.id == uint64(c.opts.MaxLevels),
			}, true
		}
	}
	return nil, false
}

func (c *SimpleLeveledController) Apply(s *State, task CompactionTask, output []uint64, inRecovery bool) (*State, []uint64, error) {
	t, ok := task.(SimpleLeveledTask)
	if !ok {
		return nil, nil, fmt.Errorf("SimpleLeveledController.Apply: unexpected task type %T", task)
	}

	ns := s.clone()
	var obsolete []uint64

	if t.UpperLevel == nil {
		obsolete = append(obsolete, t.UpperLevelSSTIDs...)
		ns.l0 = removeIDs(ns.l0, t.UpperLevelSSTIDs)
	} else {
		obsolete = append(obsolete, t.UpperLevelSSTIDs...)
		setLevelSSTs(ns, *t.UpperLevel, nil)
	}

	obsolete = append(obsolete, t.LowerLevelSSTIDs...)
	setLevelSSTs(ns, t.LowerLevel, output)

	return ns, obsolete, nil
}

func removeIDs(ids []uint64, remove []uint64) []uint64 {
	rm := make(map[uint64]bool, len(remove))
	for _, id := range remove {
		rm[id] = true
	}
	out := ids[:0:0]
	for _, id := range ids {
		if !rm[id] {
			out = append(out, id)
		}
	}
	return out
}

func setLevelSSTs(s *State, levelID int, ssts []uint64) {
	for i := range s.levels {
		if int(s.levels[i].id) == levelID {
			s.levels[i].ssts = ssts
			return
		}
	}
	s.levels = append(s.levels, levelEntry{id: uint64(levelID), ssts: ssts})
}
