package window

import (
	"math"
	"sort"
)

// MaxMessageID is the open-ended sentinel for a gap with no known upper
// bound: "everything from Start onward may be missing".
const MaxMessageID = int64(math.MaxInt64)

// GapRange is a closed interval of per-conversation message ids believed to
// be incompletely loaded relative to the remote source. Advisory only: a
// false positive costs a redundant backfill, a false negative a stale view.
type GapRange struct {
	Start int64 `json:"start"`
	End   int64 `json:"end"`
}

// NewGapRange returns a normalized range with Start <= End.
func NewGapRange(start, end int64) GapRange {
	if start > end {
		start, end = end, start
	}
	return GapRange{Start: start, End: end}
}

// Contains reports whether id falls inside the range.
func (g GapRange) Contains(id int64) bool {
	return id >= g.Start && id <= g.End
}

// OpenEnded reports whether the range extends to the newest known id.
func (g GapRange) OpenEnded() bool {
	return g.End == MaxMessageID
}

// MergedGapRanges folds a set of ranges into the minimal sorted
// non-overlapping partition. Ranges that touch (next.Start <= prev.End+1)
// merge; an open-ended range swallows everything after its start.
func MergedGapRanges(ranges []GapRange) []GapRange {
	if len(ranges) == 0 {
		return nil
	}

	sorted := make([]GapRange, len(ranges))
	copy(sorted, ranges)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Start != sorted[j].Start {
			return sorted[i].Start < sorted[j].Start
		}
		return sorted[i].End < sorted[j].End
	})

	merged := []GapRange{sorted[0]}
	for _, next := range sorted[1:] {
		prev := &merged[len(merged)-1]
		if prev.OpenEnded() || next.Start <= prev.End+1 {
			if next.End > prev.End {
				prev.End = next.End
			}
			continue
		}
		merged = append(merged, next)
	}
	return merged
}
