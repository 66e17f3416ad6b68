package section

import (
	"iter"

	"github.com/arloliu/apkblock/block"
	"github.com/arloliu/apkblock/key"
)

// Item is a member of a Section.
type Item interface {
	block.Block
	// Key returns the item identity, or nil when the item has none yet.
	Key() key.Key
	// SetKey rebuilds the item content from k. It must validate k before any
	// side effect and fail with errs.ErrInvalidKey for keys of another category.
	SetKey(k key.Key) error
	Index() int
	SetIndex(i int)
	Offset() int
	SetOffset(off int)
	Usage() int
	AddUsage()
	ResetUsage()
}

// Node is an Item usable as a generic handle. Pointer item types satisfy it.
type Node interface {
	comparable
	Item
}

// Entry carries the bookkeeping every item needs. Embed it by value.
type Entry struct {
	index  int
	offset int
	usage  int
}

// Index returns the position in the owning section, -1 once removed.
func (e *Entry) Index() int { return e.index }

// SetIndex is called by the owning section.
func (e *Entry) SetIndex(i int) { e.index = i }

// Offset returns the byte offset assigned by the last layout, 0 when unplaced.
func (e *Entry) Offset() int { return e.offset }

// SetOffset is called by the owning section and by loaders.
func (e *Entry) SetOffset(off int) { e.offset = off }

// Usage returns the number of referrers counted by the last sweep.
func (e *Entry) Usage() int { return e.usage }

// AddUsage counts one referrer.
func (e *Entry) AddUsage() { e.usage++ }

// ResetUsage clears the referrer count.
func (e *Entry) ResetUsage() { e.usage = 0 }

// Reacher is implemented by items that refer to other items.
type Reacher interface {
	// UsedItems yields the item itself followed by every item it reaches
	// directly or transitively. Shared items may be yielded more than once.
	UsedItems() iter.Seq[Item]
}

// Reachable returns it and everything reachable from it.
func Reachable(it Item) iter.Seq[Item] {
	if r, ok := it.(Reacher); ok {
		return r.UsedItems()
	}

	return func(yield func(Item) bool) {
		yield(it)
	}
}
