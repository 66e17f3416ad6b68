package block

// Generation is the dirty marker of a container: structural edits Touch it, and
// a completed refresh Commits it.
type Generation struct {
	edits     uint64
	refreshed uint64
}

// Touch records a structural edit.
func (g *Generation) Touch() {
	if g != nil {
		g.edits++
	}
}

// Commit marks the current state as refreshed.
func (g *Generation) Commit() {
	if g != nil {
		g.refreshed = g.edits
	}
}

// Stale reports whether edits happened since the last Commit.
func (g *Generation) Stale() bool {
	return g != nil && g.edits != g.refreshed
}

// Edits returns the total number of recorded edits.
func (g *Generation) Edits() uint64 {
	if g == nil {
		return 0
	}

	return g.edits
}
