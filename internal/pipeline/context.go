package pipeline

import "atelier/internal/store"

// Caption is the generated caption text and tag list for one item.
type Caption struct {
	Text string
	Tags []string
}

// Context is the read-only view a step handler receives. The engine builds a
// fresh Context for each step by folding completed step deltas into the
// previous view, so handlers never mutate shared state.
type Context struct {
	AccountID int64
	RunID     int64
	Settings  store.Settings

	ScrapedItemIDs   []int64
	ApprovedItemIDs  []int64
	DescribedItemIDs []int64
	GeneratedItemIDs []int64
	ScheduledPostIDs []int64
	Captions         map[int64]Caption
}

// Delta is what a step contributes to the run context. Only the fields a
// step actually produced should be set.
type Delta struct {
	ScrapedItemIDs   []int64
	ApprovedItemIDs  []int64
	DescribedItemIDs []int64
	GeneratedItemIDs []int64
	ScheduledPostIDs []int64
	Captions         map[int64]Caption
}

// apply folds a completed step's delta into a copy of the context. The
// receiver is left untouched.
func (c Context) apply(d Delta) Context {
	next := c
	next.ScrapedItemIDs = appendIDs(c.ScrapedItemIDs, d.ScrapedItemIDs)
	next.ApprovedItemIDs = appendIDs(c.ApprovedItemIDs, d.ApprovedItemIDs)
	next.DescribedItemIDs = appendIDs(c.DescribedItemIDs, d.DescribedItemIDs)
	next.GeneratedItemIDs = appendIDs(c.GeneratedItemIDs, d.GeneratedItemIDs)
	next.ScheduledPostIDs = appendIDs(c.ScheduledPostIDs, d.ScheduledPostIDs)
	if len(d.Captions) > 0 {
		merged := make(map[int64]Caption, len(c.Captions)+len(d.Captions))
		for id, caption := range c.Captions {
			merged[id] = caption
		}
		for id, caption := range d.Captions {
			merged[id] = caption
		}
		next.Captions = merged
	}
	return next
}

func appendIDs(base, extra []int64) []int64 {
	if len(extra) == 0 {
		return base
	}
	merged := make([]int64, 0, len(base)+len(extra))
	merged = append(merged, base...)
	return append(merged, extra...)
}
