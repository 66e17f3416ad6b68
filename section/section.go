package section

import (
	"fmt"
	"iter"
	"slices"

	"github.com/arloliu/apkblock/block"
	"github.com/arloliu/apkblock/errs"
	"github.com/arloliu/apkblock/internal/collision"
	"github.com/arloliu/apkblock/internal/hash"
	"github.com/arloliu/apkblock/internal/options"
	"github.com/arloliu/apkblock/internal/pool"
	"github.com/arloliu/apkblock/key"
)

type config struct {
	align  int
	growBy int
	gen    *block.Generation
}

// Option configures a Section.
type Option = options.Option[*config]

// WithAlignment makes every item start on an n-byte boundary.
func WithAlignment(n int) Option {
	return options.NoError(func(c *config) { c.align = n })
}

// WithGrowth grows the item storage in fixed increments of n items.
// Without it the storage grows like append.
func WithGrowth(n int) Option {
	return options.NoError(func(c *config) { c.growBy = n })
}

// WithGeneration records structural edits in g.
func WithGeneration(g *block.Generation) Option {
	return options.NoError(func(c *config) { c.gen = g })
}

// Section is an ordered, deduplicating pool of one item category.
type Section[T Node] struct {
	name     string
	items    []T
	keys     *collision.Tracker[T]
	hashes   map[T]uint64
	offsets  map[int]T
	create   func() T
	align    int
	growBy   int
	reallocs int
	laidOut  bool
	gen      *block.Generation
}

// New creates an empty section whose items are constructed by create.
func New[T Node](name string, create func() T, opts ...Option) *Section[T] {
	cfg := &config{align: 1}
	_ = options.Apply(cfg, opts...)

	return &Section[T]{
		name:   name,
		keys:   collision.NewTracker[T](),
		hashes: make(map[T]uint64),
		create: create,
		align:  cfg.align,
		growBy: cfg.growBy,
		gen:    cfg.gen,
	}
}

// Name returns the section name used in error messages.
func (s *Section[T]) Name() string {
	return s.name
}

// Len returns the number of items.
func (s *Section[T]) Len() int {
	return len(s.items)
}

// Get returns the item at index i.
func (s *Section[T]) Get(i int) (T, bool) {
	if i < 0 || i >= len(s.items) {
		var zero T
		return zero, false
	}

	return s.items[i], true
}

// Items returns the items in order. The slice must not be modified.
func (s *Section[T]) Items() []T {
	return s.items
}

// All iterates over index/item pairs.
func (s *Section[T]) All() iter.Seq2[int, T] {
	return func(yield func(int, T) bool) {
		for i, it := range s.items {
			if !yield(i, it) {
				return
			}
		}
	}
}

// Lookup returns the first item whose key equals k.
func (s *Section[T]) Lookup(k key.Key) (T, bool) {
	var zero T
	if k == nil {
		return zero, false
	}
	for _, it := range s.keys.Bucket(hash.Key(k)) {
		if key.Equal(it.Key(), k) {
			return it, true
		}
	}

	return zero, false
}

// GetOrCreate returns the item with key k, appending a new one if none exists.
//
// Returns:
//   - T: the canonical item for k
//   - error: errs.ErrInvalidKey when k is nil or not accepted by the item type
func (s *Section[T]) GetOrCreate(k key.Key) (T, error) {
	var zero T
	if k == nil {
		return zero, fmt.Errorf("%w: %s: nil key", errs.ErrInvalidKey, s.name)
	}
	if it, ok := s.Lookup(k); ok {
		return it, nil
	}

	it := s.create()
	if err := it.SetKey(k); err != nil {
		return zero, fmt.Errorf("%s: %w", s.name, err)
	}
	s.push(it)
	s.track(it)

	return it, nil
}

// CreateItem appends a new item without a key.
func (s *Section[T]) CreateItem() T {
	it := s.create()
	s.push(it)

	return it
}

// Append adds a loaded item without deduplication. Call Rehash after loading.
func (s *Section[T]) Append(it T) {
	s.push(it)
}

// Reserve preallocates room for n more items.
func (s *Section[T]) Reserve(n int) {
	s.items = slices.Grow(s.items, n)
}

func (s *Section[T]) push(it T) {
	if s.growBy > 0 {
		var grew bool
		if s.items, grew = pool.GrowSlice(s.items, 1, s.growBy); grew {
			s.reallocs++
		}
	} else if len(s.items) == cap(s.items) {
		s.reallocs++
	}

	it.SetIndex(len(s.items))
	s.items = append(s.items, it)
	s.laidOut = false
	s.gen.Touch()
}

func (s *Section[T]) track(it T) {
	k := it.Key()
	if k == nil {
		return
	}
	h := hash.Key(k)
	s.keys.Track(h, it)
	s.hashes[it] = h
}

func (s *Section[T]) untrack(it T) {
	if h, ok := s.hashes[it]; ok {
		s.keys.Untrack(h, it)
		delete(s.hashes, it)
	}
}

// Rehash rebuilds the key index from the current item keys.
func (s *Section[T]) Rehash() {
	s.keys.Reset()
	clear(s.hashes)
	for _, it := range s.items {
		s.track(it)
	}
}

// Rekey changes the key of it and keeps the index consistent.
//
// Returns:
//   - error: errs.ErrDuplicateKey if another item already has k, or the item's
//     own SetKey error; the item is unchanged on error
func (s *Section[T]) Rekey(it T, k key.Key) error {
	if other, ok := s.Lookup(k); ok && other != it {
		return fmt.Errorf("%w: %s: %s", errs.ErrDuplicateKey, s.name, k)
	}

	old := it.Key()
	s.untrack(it)
	if err := it.SetKey(k); err != nil {
		if old != nil {
			s.track(it)
		}

		return fmt.Errorf("%s: %w", s.name, err)
	}
	s.track(it)
	s.laidOut = false
	s.gen.Touch()

	return nil
}

// Remove deletes it from the section.
func (s *Section[T]) Remove(it T) bool {
	return s.RemoveFunc(func(x T) bool { return x == it }) > 0
}

// RemoveFunc deletes every item matching pred, compacts the section and
// renumbers the survivors. Removed items get index -1 and offset 0.
//
// Returns:
//   - int: number of removed items
func (s *Section[T]) RemoveFunc(pred func(T) bool) int {
	removed := 0
	j := 0
	for _, it := range s.items {
		if pred(it) {
			s.untrack(it)
			it.SetIndex(-1)
			it.SetOffset(0)
			removed++

			continue
		}
		it.SetIndex(j)
		s.items[j] = it
		j++
	}
	if removed == 0 {
		return 0
	}

	clear(s.items[j:])
	s.items = s.items[:j]
	s.offsets = nil
	s.laidOut = false
	s.gen.Touch()

	return removed
}

// ResetUsage clears the usage counter of every item.
func (s *Section[T]) ResetUsage() {
	for _, it := range s.items {
		it.ResetUsage()
	}
}

// RemoveUnused deletes every item whose usage counter is zero. Counters must
// have been filled by a full reference walk; see ref.Sweep.
func (s *Section[T]) RemoveUnused() int {
	return s.RemoveFunc(func(it T) bool { return it.Usage() == 0 })
}

// Sort orders the items stably by cmp and renumbers them.
//
// Returns:
//   - bool: true when the order changed
func (s *Section[T]) Sort(cmp func(a, b T) int) bool {
	if slices.IsSortedFunc(s.items, cmp) {
		return false
	}
	slices.SortStableFunc(s.items, cmp)
	for i, it := range s.items {
		it.SetIndex(i)
	}
	s.laidOut = false
	s.gen.Touch()

	return true
}

// Layout assigns consecutive aligned offsets starting at pos.
//
// Returns:
//   - int: the position after the last item
func (s *Section[T]) Layout(pos int) int {
	s.offsets = make(map[int]T, len(s.items))
	for _, it := range s.items {
		pos = block.AlignUp(pos, s.align)
		it.SetOffset(pos)
		s.offsets[pos] = it
		pos += it.CountBytes()
	}
	s.laidOut = true

	return pos
}

// IndexOffsets rebuilds the offset lookup from offsets assigned by a loader.
func (s *Section[T]) IndexOffsets() {
	s.offsets = make(map[int]T, len(s.items))
	for _, it := range s.items {
		s.offsets[it.Offset()] = it
	}
}

// AtOffset returns the item placed at off by the last Layout or IndexOffsets.
func (s *Section[T]) AtOffset(off int) (T, bool) {
	it, ok := s.offsets[off]
	return it, ok
}

// Offset returns the offset of the first item, 0 for an empty section.
func (s *Section[T]) Offset() int {
	if len(s.items) == 0 {
		return 0
	}

	return s.items[0].Offset()
}

// Alignment implements block.Aligned.
func (s *Section[T]) Alignment() int {
	return s.align
}

// Reallocations returns how many times the item storage was reallocated.
func (s *Section[T]) Reallocations() int {
	return s.reallocs
}

// Collisions returns the number of key-hash collisions seen by the index.
func (s *Section[T]) Collisions() int {
	return s.keys.Collisions()
}

// CountBytes implements block.Block.
func (s *Section[T]) CountBytes() int {
	pos := 0
	for _, it := range s.items {
		pos = block.AlignUp(pos, s.align)
		pos += it.CountBytes()
	}

	return pos
}

// CountUpTo implements block.Block.
func (s *Section[T]) CountUpTo(c *block.Counter) {
	if c.Enter(s) {
		return
	}
	for _, it := range s.items {
		c.Align(s.align)
		it.CountUpTo(c)
		if c.Found() {
			return
		}
	}
}

// WriteBytes implements block.Block. After Layout, every item must land on its
// assigned offset.
func (s *Section[T]) WriteBytes(w *block.Writer) error {
	for _, it := range s.items {
		w.Align(s.align)
		if s.laidOut && w.Position() != it.Offset() {
			return fmt.Errorf("%w: %s item %d at %d, laid out at %d",
				errs.ErrLayoutMismatch, s.name, it.Index(), w.Position(), it.Offset())
		}
		if err := it.WriteBytes(w); err != nil {
			return fmt.Errorf("%s item %d: %w", s.name, it.Index(), err)
		}
	}

	return nil
}
