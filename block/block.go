package block

// NotFound is returned by OffsetOf when the target is not reachable from the root.
const NotFound = -1

// Block is a node of the serialized tree.
type Block interface {
	// CountBytes returns the serialized size of the node, excluding any padding
	// inserted before it by its parent.
	CountBytes() int
	// CountUpTo adds the node's bytes to c unless c has found its target.
	CountUpTo(c *Counter)
	// WriteBytes appends the node's bytes to w.
	WriteBytes(w *Writer) error
}

// Counter accumulates sizes during a CountUpTo walk.
type Counter struct {
	end   Block
	found bool
	count int
}

// NewCounter creates a counter that stops when it reaches end.
func NewCounter(end Block) *Counter {
	return &Counter{end: end}
}

// Enter is called by a node before it counts itself. It returns true when the
// walk must not descend into b, either because the target was already found or
// because b is the target.
func (c *Counter) Enter(b Block) bool {
	if c.found {
		return true
	}
	if c.end != nil && c.end == b {
		c.found = true
		return true
	}

	return false
}

// Add adds n bytes unless the target was found.
func (c *Counter) Add(n int) {
	if !c.found {
		c.count += n
	}
}

// Align pads the running count to a multiple of n unless the target was found.
func (c *Counter) Align(n int) {
	if !c.found {
		c.count = AlignUp(c.count, n)
	}
}

// Found reports whether the target has been reached.
func (c *Counter) Found() bool {
	return c.found
}

// Count returns the accumulated byte count.
func (c *Counter) Count() int {
	return c.count
}

// OffsetOf measures the offset of target from the start of root.
//
// Returns:
//   - int: byte offset of target, or NotFound if the walk never reached it
func OffsetOf(root, target Block) int {
	c := NewCounter(target)
	root.CountUpTo(c)
	if !c.found {
		return NotFound
	}

	return c.count
}

// AlignUp rounds v up to a multiple of n. Values of n below 2 leave v unchanged.
func AlignUp(v, n int) int {
	if n < 2 {
		return v
	}
	if r := v % n; r != 0 {
		return v + n - r
	}

	return v
}

// Aligned is implemented by blocks that must start on an n-byte boundary.
type Aligned interface {
	Alignment() int
}

// AlignmentOf returns b's alignment, 1 if it has none.
func AlignmentOf(b Block) int {
	if a, ok := b.(Aligned); ok && a.Alignment() > 1 {
		return a.Alignment()
	}

	return 1
}
