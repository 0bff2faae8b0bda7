package lsm

import "fmt"

// TieredOptions configures TieredController.
type TieredOptions struct {
	// NumTiers is the minimum tier count before any task is generated.
	NumTiers int
	// MaxSizeAmplificationPercent triggers a full merge, bottom tier
	// included, once 100*(engine_size-last_tier_size)/last_tier_size
	// reaches this percentage.
	MaxSizeAmplificationPercent int
	// SizeRatio triggers a partial merge of the smallest prefix of
	// tiers (bottom tier excluded) once a tier's size exceeds
	// 100+SizeRatio percent of the accumulated size of every tier
	// before it.
	SizeRatio int
	// MinMergeWidth is the minimum tier index a size-ratio partial
	// merge may target (tier 0 itself never triggers the comparison).
	MinMergeWidth int
	// MaxMergeWidth caps how many tiers a size-ratio partial merge may
	// span. 0 means unbounded.
	MaxMergeWidth int
}

// DefaultTieredOptions returns sane defaults.
func DefaultTieredOptions() TieredOptions {
	return TieredOptions{
		NumTiers:                    4,
		MaxSizeAmplificationPercent: 200,
		SizeRatio:                   1,
		MinMergeWidth:               2,
		MaxMergeWidth:               0,
	}
}

// TieredController merges L0 flushes directly into new tiers and triggers a
// full-tier merge once the tier count grows past a threshold, the RocksDB
// "universal compaction" style.
type TieredController struct {
	opts TieredOptions
}

// NewTieredController creates a controller with the given options.
func NewTieredController(opts TieredOptions) *TieredController {
	return &TieredController{opts: opts}
}

func cloneTiers(levels []levelEntry) []levelEntry {
	tiers := make([]levelEntry, len(levels))
	for i, l := range levels {
		ssts := make([]uint64, len(l.ssts))
		copy(ssts, l.ssts)
		tiers[i] = levelEntry{id: l.id, ssts: ssts}
	}
	return tiers
}

func (c *TieredController) GenerateTask(s *State) (CompactionTask, bool) {
	if len(s.levels) < c.opts.NumTiers {
		return nil, false
	}

	engineSize := 0
	for _, tier := range s.levels {
		engineSize += len(tier.ssts)
	}
	lastTierSize := len(s.levels[len(s.levels)-1].ssts)
	if lastTierSize > 0 && 100*(engineSize-lastTierSize)/lastTierSize >= c.opts.MaxSizeAmplificationPercent {
		return TieredTask{Tiers: cloneTiers(s.levels), BottomTierIncluded: true}, true
	}

	prevTiersSize := 0
	for i, tier := range s.levels {
		if i == 0 {
			prevTiersSize += len(tier.ssts)
			continue
		}
		if prevTiersSize > 0 && 100*len(tier.ssts)/prevTiersSize > 100+c.opts.SizeRatio && i >= c.opts.MinMergeWidth {
			width := i
			if c.opts.MaxMergeWidth > 0 && width > c.opts.MaxMergeWidth {
				width = c.opts.MaxMergeWidth
			}
			return TieredTask{Tiers: cloneTiers(s.levels[:width]), BottomTierIncluded: false}, true
		}
		prevTiersSize += len(tier.ssts)
	}

	return TieredTask{Tiers: cloneTiers(s.levels), BottomTierIncluded: true}, true
}

func (c *TieredController) Apply(s *State, task CompactionTask, output []uint64, inRecovery bool) (*State, []uint64, error) {
	t, ok := task.(TieredTask)
	if !ok {
		return nil, nil, fmt.Errorf("TieredController.Apply: unexpected task type %T", task)
	}

	ns := s.clone()
	var obsolete []uint64
	merged := make(map[uint64]bool, len(t.Tiers))
	for _, tier := range t.Tiers {
		merged[tier.id] = true
		obsolete = append(obsolete, tier.ssts...)
	}

	remaining := ns.levels[:0:0]
	for _, l := range ns.levels {
		if !merged[l.id] {
			remaining = append(remaining, l)
		}
	}

	newTierID := uint64(0)
	if len(t.Tiers) > 0 {
		newTierID = t.Tiers[0].id
	}
	ns.levels = append([]levelEntry{{id: newTierID, ssts: output}}, remaining...)

	return ns, obsolete, nil
}
