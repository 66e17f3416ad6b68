package ref

import (
	"iter"

	"github.com/arloliu/apkblock/section"
)

// Counter is a section whose usage counters can be reset.
type Counter interface {
	ResetUsage()
}

// CountUsage resets the counters of every given section and counts each edge
// once against its target.
func CountUsage(edges iter.Seq[Edge], sections ...Counter) {
	for _, s := range sections {
		s.ResetUsage()
	}
	for e := range edges {
		e.AddUsage()
	}
}

// Sweep removes the unused items of target and renumbers every edge.
//
// edges must enumerate every live reference of the container exactly once per
// call; it is walked twice, once to count usage and once to push the new raw
// values. Only target's counters are reset, so counters of other sections keep
// accumulating and must not be trusted after a sweep of another section.
//
// Returns:
//   - int: number of removed items
func Sweep[T section.Node](target *section.Section[T], edges iter.Seq[Edge]) int {
	CountUsage(edges, target)

	removed := target.RemoveUnused()
	if removed == 0 {
		return 0
	}
	for e := range edges {
		e.Refresh()
	}

	return removed
}

// Collect returns an iterator over a fixed list of edges.
func Collect(edges ...Edge) iter.Seq[Edge] {
	return func(yield func(Edge) bool) {
		for _, e := range edges {
			if !yield(e) {
				return
			}
		}
	}
}
