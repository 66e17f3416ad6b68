// Package offsets implements counted arrays of item offsets: a u32 count
// followed by u32 offsets, kept in step with a parallel array of resolved items.
//
// The flat offsets and the item array always have the same length and agree on
// which slots are absent (offset 0, zero item). Removal marks slots first and
// compacts both arrays in a single pass, so callers never observe them out of
// step.
package offsets

import (
	"fmt"
	"iter"
	"slices"

	"github.com/arloliu/apkblock/block"
	"github.com/arloliu/apkblock/errs"
	"github.com/arloliu/apkblock/internal/options"
	"github.com/arloliu/apkblock/internal/pool"
	"github.com/arloliu/apkblock/section"
)

// DefaultGrowth is the number of slots added each time the storage is full.
const DefaultGrowth = 3

// Pool is the target section of an Array. *section.Section satisfies it.
type Pool[T section.Node] interface {
	AtOffset(off int) (T, bool)
	CreateItem() T
}

type config struct {
	growBy int
}

// Option configures an Array.
type Option = options.Option[*config]

// WithGrowth sets the storage growth increment in slots.
func WithGrowth(n int) Option {
	return options.New(func(c *config) error {
		if n < 1 {
			return fmt.Errorf("growth increment must be positive, got %d", n)
		}
		c.growBy = n

		return nil
	})
}

// Array is a counted array of offsets to items of type T.
type Array[T section.Node] struct {
	flat     []int
	items    []T
	pool     Pool[T]
	growBy   int
	reallocs int
	pulled   bool
	frozen   bool
}

// New creates an empty array resolving against p.
func New[T section.Node](p Pool[T], opts ...Option) (*Array[T], error) {
	cfg := &config{growBy: DefaultGrowth}
	if err := options.Apply(cfg, opts...); err != nil {
		return nil, err
	}

	return &Array[T]{pool: p, growBy: cfg.growBy, pulled: true}, nil
}

// Empty returns an immutable empty array. Every mutator panics with
// errs.ErrImmutable.
func Empty[T section.Node]() *Array[T] {
	return &Array[T]{pulled: true, frozen: true}
}

// IsFrozen reports whether the array is an immutable sentinel.
func (a *Array[T]) IsFrozen() bool {
	return a.frozen
}

func (a *Array[T]) mutate() {
	if a.frozen {
		panic(fmt.Errorf("%w: empty offsets array", errs.ErrImmutable))
	}
	a.ensure()
}

// ensure resolves slots read from disk on first use.
func (a *Array[T]) ensure() {
	if !a.pulled {
		a.Pull()
	}
}

// Len returns the number of slots.
func (a *Array[T]) Len() int {
	return len(a.flat)
}

// IsEmpty reports whether the array has no slots.
func (a *Array[T]) IsEmpty() bool {
	return len(a.flat) == 0
}

// Item returns the item in slot i. Absent and out-of-range slots report false.
func (a *Array[T]) Item(i int) (T, bool) {
	a.ensure()
	var zero T
	if i < 0 || i >= len(a.items) {
		return zero, false
	}

	return a.items[i], a.items[i] != zero
}

// Items returns the item array. The slice must not be modified.
func (a *Array[T]) Items() []T {
	a.ensure()
	return a.items
}

// All iterates over the present items in slot order.
func (a *Array[T]) All() iter.Seq[T] {
	return func(yield func(T) bool) {
		a.ensure()
		var zero T
		for _, it := range a.items {
			if it != zero && !yield(it) {
				return
			}
		}
	}
}

// Offsets returns a copy of the flat offsets.
func (a *Array[T]) Offsets() []int {
	return slices.Clone(a.flat)
}

// Reallocations returns how many times the slot storage was reallocated.
func (a *Array[T]) Reallocations() int {
	return a.reallocs
}

// Pull resolves every slot against the pool. Unresolvable offsets leave a zero
// item beside the raw offset until the next RefreshItems removes the slot.
func (a *Array[T]) Pull() {
	a.pulled = true
	if a.pool == nil {
		return
	}
	if cap(a.items) < len(a.flat) {
		a.items = make([]T, len(a.flat), cap(a.flat))
	}
	a.items = a.items[:len(a.flat)]
	var zero T
	for i, off := range a.flat {
		a.items[i] = zero
		if off != 0 {
			a.items[i], _ = a.pool.AtOffset(off)
		}
	}
}

// SetItems adopts items and derives the flat offsets from them, 0 for zero items.
func (a *Array[T]) SetItems(items []T) {
	a.mutate()
	a.flat = a.flat[:0]
	a.items = a.items[:0]
	a.grow(len(items))
	for _, it := range items {
		a.flat = append(a.flat, offsetOf(it))
		a.items = append(a.items, it)
	}
}

// Add appends it.
func (a *Array[T]) Add(it T) {
	a.mutate()
	a.grow(1)
	a.flat = append(a.flat, offsetOf(it))
	a.items = append(a.items, it)
}

// AddNew creates a keyless item in the pool and appends it.
func (a *Array[T]) AddNew() T {
	a.mutate()
	it := a.pool.CreateItem()
	a.Add(it)

	return it
}

// Contains reports whether it occupies a slot.
func (a *Array[T]) Contains(it T) bool {
	a.ensure()
	return slices.Contains(a.items, it)
}

// Remove deletes every slot holding it.
func (a *Array[T]) Remove(it T) bool {
	return a.RemoveFunc(func(x T) bool { return x == it }) > 0
}

// RemoveFunc deletes every present item matching pred, preserving the relative
// order of the survivors. Absent slots are compacted away as well but are not
// counted.
//
// Returns:
//   - int: number of removed items
func (a *Array[T]) RemoveFunc(pred func(T) bool) int {
	a.mutate()
	var zero T
	matched := 0
	for i, it := range a.items {
		if it != zero && pred(it) {
			a.items[i] = zero
			a.flat[i] = 0
			matched++
		}
	}
	a.removeNulls()

	return matched
}

// removeNulls compacts both arrays over the absent slots.
func (a *Array[T]) removeNulls() int {
	var zero T
	j := 0
	for i, it := range a.items {
		if it == zero {
			continue
		}
		a.items[j] = it
		a.flat[j] = a.flat[i]
		j++
	}
	removed := len(a.items) - j
	clear(a.items[j:])
	a.items = a.items[:j]
	a.flat = a.flat[:j]

	return removed
}

// RefreshItems rewrites every slot from its item's current offset. Items whose
// offset is 0 are structurally absent and their slots are removed.
//
// Returns:
//   - int: number of removed slots
func (a *Array[T]) RefreshItems() int {
	if a.frozen {
		return 0
	}
	a.ensure()
	var zero T
	for i, it := range a.items {
		if it == zero || it.Offset() == 0 {
			a.items[i] = zero
			a.flat[i] = 0

			continue
		}
		a.flat[i] = it.Offset()
	}

	return a.removeNulls()
}

// Sort orders the slots stably by cmp over the items. Absent slots sort last.
func (a *Array[T]) Sort(cmp func(x, y T) int) bool {
	a.ensure()
	if a.frozen || len(a.items) < 2 {
		return false
	}
	var zero T
	perm := make([]int, len(a.items))
	for i := range perm {
		perm[i] = i
	}
	order := func(i, j int) int {
		x, y := a.items[i], a.items[j]
		switch {
		case x == zero && y == zero:
			return 0
		case x == zero:
			return 1
		case y == zero:
			return -1
		}

		return cmp(x, y)
	}
	if slices.IsSortedFunc(perm, order) {
		return false
	}
	slices.SortStableFunc(perm, order)

	items := make([]T, len(a.items), cap(a.items))
	flat := make([]int, len(a.flat), cap(a.flat))
	for dst, src := range perm {
		items[dst] = a.items[src]
		flat[dst] = a.flat[src]
	}
	a.items, a.flat = items, flat

	return true
}

func (a *Array[T]) grow(extra int) {
	var grew bool
	if a.flat, grew = pool.GrowSlice(a.flat, extra, a.growBy); grew {
		a.reallocs++
	}
	a.items, _ = pool.GrowSlice(a.items, extra, a.growBy)
}

// AddUsage counts one use of every present item.
func (a *Array[T]) AddUsage() {
	for it := range a.All() {
		it.AddUsage()
	}
}

// Refresh implements ref.Edge by calling RefreshItems.
func (a *Array[T]) Refresh() {
	a.RefreshItems()
}

// UsedItems yields every present item and everything reachable from it.
func (a *Array[T]) UsedItems() iter.Seq[section.Item] {
	return func(yield func(section.Item) bool) {
		for it := range a.All() {
			for used := range section.Reachable(it) {
				if !yield(used) {
					return
				}
			}
		}
	}
}

// ReadBytes reads a u32 count and that many u32 offsets. Items resolve on first
// access.
func (a *Array[T]) ReadBytes(r *block.Reader) error {
	a.mutate()
	n, err := r.Uint32()
	if err != nil {
		return fmt.Errorf("offsets count: %w", err)
	}
	if int(n) > r.Available()/4 {
		return fmt.Errorf("%w: %d offsets with %d bytes left", errs.ErrTruncated, n, r.Available())
	}
	a.flat = a.flat[:0]
	a.items = a.items[:0]
	a.grow(int(n))
	for range n {
		off, err := r.Uint32()
		if err != nil {
			return err
		}
		a.flat = append(a.flat, int(off))
	}
	a.pulled = false

	return nil
}

// Alignment implements block.Aligned.
func (a *Array[T]) Alignment() int {
	return 4
}

// CountBytes implements block.Block.
func (a *Array[T]) CountBytes() int {
	return 4 + 4*len(a.flat)
}

// CountUpTo implements block.Block.
func (a *Array[T]) CountUpTo(c *block.Counter) {
	if c.Enter(a) {
		return
	}
	c.Add(a.CountBytes())
}

// WriteBytes implements block.Block.
func (a *Array[T]) WriteBytes(w *block.Writer) error {
	w.Uint32(uint32(len(a.flat)))
	for _, off := range a.flat {
		w.Uint32(uint32(off))
	}

	return nil
}

func offsetOf[T section.Node](it T) int {
	var zero T
	if it == zero {
		return 0
	}

	return it.Offset()
}
