// Package ref implements indirect references: integer fields stored inside an
// item's bytes that lazily resolve to items of a target section.
//
// A Reference never owns its target. It keeps the raw index or offset in a
// block.Field and caches the resolved item after the first Item call. Once
// resolved it tracks the item, not the key: renumbering or moving the item is
// picked up by the next Refresh, which pushes the item's current index or offset
// back into the raw field.
package ref

import (
	"iter"

	"github.com/arloliu/apkblock/block"
	"github.com/arloliu/apkblock/key"
	"github.com/arloliu/apkblock/section"
)

// Mode selects how the raw value addresses the target.
type Mode uint8

const (
	// ByIndex stores the target's position in its section.
	ByIndex Mode = iota
	// ByOffset stores the target's byte offset; 0 means absent.
	ByOffset
)

// NoNull marks index references that cannot be absent.
const NoNull = -1

// Pool is the target side of a reference. *section.Section satisfies it.
type Pool[T section.Node] interface {
	Get(i int) (T, bool)
	AtOffset(off int) (T, bool)
	GetOrCreate(k key.Key) (T, error)
	CreateItem() T
}

// Edge is the type-erased view of a reference used by sweeps.
type Edge interface {
	// AddUsage counts the reference against its resolved target.
	AddUsage()
	// Refresh pushes the target's current index or offset into the raw field.
	Refresh()
	// Pull re-resolves the raw field against the target pool.
	Pull()
}

// Reference is a lazily resolved link to an item of type T.
type Reference[T section.Node] struct {
	field  block.Field
	pool   Pool[T]
	mode   Mode
	null   int
	item   T
	pulled bool
}

// NewIndex creates a reference storing the target index. The raw value null
// (for instance 0xFFFFFFFF) means absent; pass NoNull when every value is valid.
func NewIndex[T section.Node](field block.Field, pool Pool[T], null int) *Reference[T] {
	return &Reference[T]{field: field, pool: pool, mode: ByIndex, null: null}
}

// NewOffset creates a reference storing the target offset, 0 meaning absent.
func NewOffset[T section.Node](field block.Field, pool Pool[T]) *Reference[T] {
	return &Reference[T]{field: field, pool: pool, mode: ByOffset, null: 0}
}

// Mode returns the addressing mode.
func (r *Reference[T]) Mode() Mode {
	return r.mode
}

// Raw returns the stored index or offset.
func (r *Reference[T]) Raw() int {
	return r.field.Get()
}

// IsNull reports whether the raw value is the absent marker.
func (r *Reference[T]) IsNull() bool {
	return r.null != NoNull && r.field.Get() == r.null
}

// Item returns the resolved target, resolving on first use.
//
// Returns:
//   - T: the target item
//   - bool: false when the reference is null, dangling or its target was
//     removed from its section
func (r *Reference[T]) Item() (T, bool) {
	if !r.pulled {
		r.Pull()
	}
	var zero T
	if r.item == zero || r.item.Index() < 0 {
		return zero, false
	}

	return r.item, true
}

// Pull resolves the raw value now, replacing any cached item.
func (r *Reference[T]) Pull() {
	var zero T
	r.item = zero
	r.pulled = true
	if r.IsNull() {
		return
	}

	raw := r.field.Get()
	if r.mode == ByIndex {
		r.item, _ = r.pool.Get(raw)
	} else {
		r.item, _ = r.pool.AtOffset(raw)
	}
}

// Invalidate drops the cached item; the next Item call resolves again.
func (r *Reference[T]) Invalidate() {
	r.pulled = false
}

// Dangling reports whether the raw value is non-null but resolves to nothing.
func (r *Reference[T]) Dangling() bool {
	_, ok := r.Item()
	return !ok && !r.IsNull()
}

// SetItem points the reference at it and stores its current index or offset.
// Passing the zero item clears the reference.
func (r *Reference[T]) SetItem(it T) {
	r.item = it
	r.pulled = true
	r.field.Set(r.rawOf(it))
}

// Clear makes the reference absent. Non-nullable index references store 0.
func (r *Reference[T]) Clear() {
	var zero T
	r.SetItem(zero)
}

// SetKey points the reference at the canonical item for k, creating it in the
// target pool when needed. A nil key clears the reference.
func (r *Reference[T]) SetKey(k key.Key) error {
	if k == nil {
		r.Clear()
		return nil
	}
	it, err := r.pool.GetOrCreate(k)
	if err != nil {
		return err
	}
	r.SetItem(it)

	return nil
}

// Key returns the key of the resolved target, nil when absent.
func (r *Reference[T]) Key() key.Key {
	it, ok := r.Item()
	if !ok {
		return nil
	}

	return it.Key()
}

// Refresh implements Edge. Dangling raw values are left untouched.
func (r *Reference[T]) Refresh() {
	it, ok := r.Item()
	if !ok {
		return
	}
	r.field.Set(r.rawOf(it))
}

// AddUsage implements Edge.
func (r *Reference[T]) AddUsage() {
	if it, ok := r.Item(); ok {
		it.AddUsage()
	}
}

// Compare orders two references by their resolved keys.
func (r *Reference[T]) Compare(other *Reference[T]) int {
	return key.Compare(r.Key(), other.Key())
}

// UsedItems yields the target and every item reachable from it.
func (r *Reference[T]) UsedItems() iter.Seq[section.Item] {
	return func(yield func(section.Item) bool) {
		it, ok := r.Item()
		if !ok {
			return
		}
		for used := range section.Reachable(it) {
			if !yield(used) {
				return
			}
		}
	}
}

func (r *Reference[T]) rawOf(it T) int {
	var zero T
	if it == zero {
		if r.null == NoNull {
			return 0
		}

		return r.null
	}
	if r.mode == ByIndex {
		return it.Index()
	}

	return it.Offset()
}
