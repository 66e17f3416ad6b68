package directory

import (
	"iter"
	"slices"
	"sort"

	"github.com/arloliu/apkblock/block"
	"github.com/arloliu/apkblock/key"
	"github.com/arloliu/apkblock/ref"
	"github.com/arloliu/apkblock/section"
)

// Map is a list of entries kept sorted by definition index. A definition may
// own several entries.
type Map[D Definition, V section.Node] struct {
	entries []*Entry[D, V]
	pool    ref.Pool[V]
}

// NewMap creates an empty map whose values resolve against pool.
func NewMap[D Definition, V section.Node](pool ref.Pool[V]) *Map[D, V] {
	return &Map[D, V]{pool: pool}
}

// Len returns the number of entries.
func (m *Map[D, V]) Len() int {
	return len(m.entries)
}

// IsEmpty reports whether the map has no entries.
func (m *Map[D, V]) IsEmpty() bool {
	return len(m.entries) == 0
}

// All iterates over every entry in order.
func (m *Map[D, V]) All() iter.Seq[*Entry[D, V]] {
	return func(yield func(*Entry[D, V]) bool) {
		for _, e := range m.entries {
			if !yield(e) {
				return
			}
		}
	}
}

// Add inserts (def, v) at its sorted position unless the pair is present.
//
// Returns:
//   - bool: true when a new entry was added
func (m *Map[D, V]) Add(def D, v V) bool {
	if m.ContainsValue(def, v) {
		return false
	}
	e := NewEntry[D, V](m.pool)
	e.Set(def, v)
	m.insert(e)

	return true
}

// AddKey inserts an entry for def pointing at the canonical value for k.
func (m *Map[D, V]) AddKey(def D, k key.Key) (*Entry[D, V], error) {
	e := NewEntry[D, V](m.pool)
	if err := e.SetValueKey(k); err != nil {
		return nil, err
	}
	e.SetDefinition(def)
	if v, ok := e.Value(); ok && m.ContainsValue(def, v) {
		for existing := range m.Entries(def) {
			if existing.EqualsValue(v) {
				return existing, nil
			}
		}
	}
	m.insert(e)

	return e, nil
}

func (m *Map[D, V]) insert(e *Entry[D, V]) {
	idx := e.effectiveIndex()
	pos := sort.Search(len(m.entries), func(i int) bool {
		return m.entries[i].effectiveIndex() > idx
	})
	m.entries = slices.Insert(m.entries, pos, e)
}

// Contains reports whether def owns any entry.
func (m *Map[D, V]) Contains(def D) bool {
	for range m.Entries(def) {
		return true
	}

	return false
}

// ContainsValue reports whether def owns an entry resolving to v.
func (m *Map[D, V]) ContainsValue(def D, v V) bool {
	for e := range m.Entries(def) {
		if e.EqualsValue(v) {
			return true
		}
	}

	return false
}

// ContainsKey reports whether def owns an entry whose value has key k.
func (m *Map[D, V]) ContainsKey(def D, k key.Key) bool {
	for e := range m.Entries(def) {
		if key.Equal(e.ValueKey(), k) {
			return true
		}
	}

	return false
}

// ContainsKeys reports whether an entry with definition key defKey has a value
// with key valueKey.
func (m *Map[D, V]) ContainsKeys(defKey, valueKey key.Key) bool {
	for e := range m.EntriesByKey(defKey) {
		if key.Equal(e.ValueKey(), valueKey) {
			return true
		}
	}

	return false
}

// Remove deletes every entry of def.
func (m *Map[D, V]) Remove(def D) int {
	return m.RemoveFunc(def, nil)
}

// RemoveFunc deletes the entries of def whose value matches pred; a nil pred
// matches every entry of def.
//
// Returns:
//   - int: number of removed entries
func (m *Map[D, V]) RemoveFunc(def D, pred func(V) bool) int {
	idx := def.DefinitionIndex()
	before := len(m.entries)
	m.entries = slices.DeleteFunc(m.entries, func(e *Entry[D, V]) bool {
		if !e.EqualsDefIndex(idx) {
			return false
		}
		if pred == nil {
			return true
		}
		v, ok := e.Value()

		return ok && pred(v)
	})

	return before - len(m.entries)
}

// Entries iterates over the entries whose stored index equals def's index.
func (m *Map[D, V]) Entries(def D) iter.Seq[*Entry[D, V]] {
	return m.EntriesAt(def.DefinitionIndex())
}

// EntriesAt iterates over the entries with raw definition index i.
func (m *Map[D, V]) EntriesAt(i int) iter.Seq[*Entry[D, V]] {
	return func(yield func(*Entry[D, V]) bool) {
		for _, e := range m.entries {
			if e.EqualsDefIndex(i) && !yield(e) {
				return
			}
		}
	}
}

// EntriesByKey iterates over the entries linked to a definition with key k.
func (m *Map[D, V]) EntriesByKey(k key.Key) iter.Seq[*Entry[D, V]] {
	return func(yield func(*Entry[D, V]) bool) {
		for _, e := range m.entries {
			if key.Equal(e.DefinitionKey(), k) && !yield(e) {
				return
			}
		}
	}
}

// Values iterates over the resolved values of def in entry order.
func (m *Map[D, V]) Values(def D) iter.Seq[V] {
	return m.ValuesAt(def.DefinitionIndex())
}

// ValuesAt iterates over the resolved values with raw definition index i.
// Absent values are skipped.
func (m *Map[D, V]) ValuesAt(i int) iter.Seq[V] {
	return func(yield func(V) bool) {
		for e := range m.EntriesAt(i) {
			v, ok := e.Value()
			if ok && !yield(v) {
				return
			}
		}
	}
}

// Link binds def to every matching unlinked entry.
func (m *Map[D, V]) Link(def D) {
	for _, e := range m.entries {
		e.Link(def)
	}
}

// LinkAll binds each entry to the definition resolve returns for its raw index
// and resolves every value while raw offsets still match the loaded layout.
func (m *Map[D, V]) LinkAll(resolve func(i int) (D, bool)) {
	for _, e := range m.entries {
		if def, ok := resolve(e.DefinitionIndexValue()); ok {
			e.Link(def)
		}
		e.value.Pull()
	}
}

// Pull re-resolves every value reference.
func (m *Map[D, V]) Pull() {
	for _, e := range m.entries {
		e.value.Pull()
	}
}

// Sort restores definition-index order.
func (m *Map[D, V]) Sort() {
	slices.SortStableFunc(m.entries, (*Entry[D, V]).Compare)
}

// Refresh pushes definition indexes and value offsets, drops entries whose value
// became absent and restores the sort order.
func (m *Map[D, V]) Refresh() {
	m.entries = slices.DeleteFunc(m.entries, func(e *Entry[D, V]) bool {
		v, ok := e.Value()
		return !ok || v.Index() < 0
	})
	for _, e := range m.entries {
		e.Refresh()
	}
	m.Sort()
}

// References yields the value reference of every entry.
func (m *Map[D, V]) References() iter.Seq[ref.Edge] {
	return func(yield func(ref.Edge) bool) {
		for _, e := range m.entries {
			if !yield(e.value) {
				return
			}
		}
	}
}

// Definitions yields one edge per entry that counts usage against the linked
// definition and pushes its current index on Refresh.
func (m *Map[D, V]) Definitions() iter.Seq[ref.Edge] {
	return func(yield func(ref.Edge) bool) {
		for _, e := range m.entries {
			if !yield(definitionEdge[D, V]{e}) {
				return
			}
		}
	}
}

type definitionEdge[D Definition, V section.Node] struct {
	e *Entry[D, V]
}

func (d definitionEdge[D, V]) AddUsage() {
	def, ok := d.e.Definition()
	if !ok {
		return
	}
	if u, ok := any(def).(interface{ AddUsage() }); ok {
		u.AddUsage()
	}
}

func (d definitionEdge[D, V]) Refresh() {
	if def, ok := d.e.Definition(); ok && def.DefinitionIndex() >= 0 {
		d.e.SetDefinitionIndexValue(def.DefinitionIndex())
	}
}

func (d definitionEdge[D, V]) Pull() {}

// ReadEntries appends count entries read from r.
func (m *Map[D, V]) ReadEntries(r *block.Reader, count int) error {
	m.entries = slices.Grow(m.entries, count)
	for range count {
		e := NewEntry[D, V](m.pool)
		if err := e.ReadBytes(r); err != nil {
			return err
		}
		m.entries = append(m.entries, e)
	}

	return nil
}

// CountBytes implements block.Block.
func (m *Map[D, V]) CountBytes() int {
	return len(m.entries) * EntrySize
}

// CountUpTo implements block.Block.
func (m *Map[D, V]) CountUpTo(c *block.Counter) {
	if c.Enter(m) {
		return
	}
	for _, e := range m.entries {
		e.CountUpTo(c)
		if c.Found() {
			return
		}
	}
}

// WriteBytes implements block.Block.
func (m *Map[D, V]) WriteBytes(w *block.Writer) error {
	for _, e := range m.entries {
		if err := e.WriteBytes(w); err != nil {
			return err
		}
	}

	return nil
}
