// Package intervals provides merging and containment queries over closed
// integer time ranges. It is the piece that keeps overlapping offer windows
// from double counting spend and elapsed time.
package intervals

import "sort"

// Interval is a closed [Start, End] time range.
type Interval struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Length returns End - Start.
func (iv Interval) Length() int {
	return iv.End - iv.Start
}

// Contains reports whether t lies inside the interval, bounds included.
func (iv Interval) Contains(t int) bool {
	return t >= iv.Start && t <= iv.End
}

// Merge canonicalizes a set of windows: sorted ascending by start, with
// overlapping or touching windows collapsed into one interval.
//
// An empty input yields the degenerate set [{0, 0}] so that Covered returns
// 0 without any special casing downstream. Merge never modifies its input
// and is idempotent: Merge(Merge(w)) == Merge(w).
func Merge(windows []Interval) []Interval {
	if len(windows) == 0 {
		return []Interval{{Start: 0, End: 0}}
	}

	sorted := make([]Interval, len(windows))
	copy(sorted, windows)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Start < sorted[j].Start
	})

	merged := []Interval{sorted[0]}
	for _, w := range sorted[1:] {
		last := &merged[len(merged)-1]
		if w.Start <= last.End {
			if w.End > last.End {
				last.End = w.End
			}
			continue
		}
		merged = append(merged, w)
	}

	return merged
}

// Covered returns the total time covered by a canonical interval set,
// i.e. the sum of (End - Start) over all intervals.
func Covered(set []Interval) int {
	total := 0
	for _, iv := range set {
		total += iv.Length()
	}
	return total
}

// Set is a canonical interval set supporting containment queries. Queries
// run a binary search over the sorted intervals, so testing every
// transaction of a user against all of their windows stays O(n log m).
type Set struct {
	intervals []Interval
}

// NewSet merges the given windows into a queryable set.
func NewSet(windows []Interval) Set {
	return Set{intervals: Merge(windows)}
}

// Contains reports whether t lies inside any interval of the set.
func (s Set) Contains(t int) bool {
	// First interval whose end is >= t; by canonicality it is the only
	// candidate that could contain t.
	i := sort.Search(len(s.intervals), func(i int) bool {
		return s.intervals[i].End >= t
	})
	return i < len(s.intervals) && s.intervals[i].Contains(t)
}

// Covered returns the total time covered by the set.
func (s Set) Covered() int {
	return Covered(s.intervals)
}

// Intervals returns the canonical intervals of the set.
func (s Set) Intervals() []Interval {
	return s.intervals
}
