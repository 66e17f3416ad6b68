// Package directory associates definitions (fields, methods, parameters) with
// values (annotation data) stored as 8-byte (definition index, value offset)
// pairs.
//
// On disk a directory names definitions only by index and may be read before the
// definitions themselves. Entries therefore keep the raw index until a Link pass
// binds them to live definition objects; values resolve lazily through an offset
// reference.
package directory

import (
	"github.com/arloliu/apkblock/block"
	"github.com/arloliu/apkblock/key"
	"github.com/arloliu/apkblock/ref"
	"github.com/arloliu/apkblock/section"
)

// EntrySize is the serialized size of an Entry.
const EntrySize = 8

// Definition is the owner side of an entry.
type Definition interface {
	comparable
	// DefinitionIndex returns the index stored on disk for this definition.
	DefinitionIndex() int
	Key() key.Key
}

// Entry is one (definition, value) pair.
type Entry[D Definition, V section.Node] struct {
	data  *block.Bytes
	def   D
	value *ref.Reference[V]
}

// NewEntry creates an unlinked entry whose value resolves against pool.
func NewEntry[D Definition, V section.Node](pool ref.Pool[V]) *Entry[D, V] {
	e := &Entry[D, V]{data: block.NewBytes(EntrySize)}
	e.value = ref.NewOffset(block.Field(e.data.Field(4, 4)), pool)

	return e
}

// DefinitionIndexValue returns the raw definition index.
func (e *Entry[D, V]) DefinitionIndexValue() int {
	return int(e.data.Uint32(0))
}

// SetDefinitionIndexValue overwrites the raw definition index.
func (e *Entry[D, V]) SetDefinitionIndexValue(i int) {
	e.data.PutUint32(0, uint32(i))
}

// ValueOffset returns the raw value offset.
func (e *Entry[D, V]) ValueOffset() int {
	return e.value.Raw()
}

// Definition returns the linked definition.
func (e *Entry[D, V]) Definition() (D, bool) {
	var zero D
	return e.def, e.def != zero
}

// DefinitionKey returns the key of the linked definition, nil when unlinked.
func (e *Entry[D, V]) DefinitionKey() key.Key {
	def, ok := e.Definition()
	if !ok {
		return nil
	}

	return def.Key()
}

// Link binds def when the entry is unlinked and def's index equals the raw
// index. Any other call leaves the entry unchanged.
//
// Returns:
//   - bool: true when def was bound by this call
func (e *Entry[D, V]) Link(def D) bool {
	var zero D
	if e.def != zero || def == zero {
		return false
	}
	if def.DefinitionIndex() != e.DefinitionIndexValue() {
		return false
	}
	e.def = def

	return true
}

// SetDefinition binds def unconditionally and stores its index.
func (e *Entry[D, V]) SetDefinition(def D) {
	e.def = def
	var zero D
	if def != zero {
		e.SetDefinitionIndexValue(def.DefinitionIndex())
	}
}

// Value returns the resolved value.
func (e *Entry[D, V]) Value() (V, bool) {
	return e.value.Item()
}

// ValueKey returns the key of the resolved value, nil when absent.
func (e *Entry[D, V]) ValueKey() key.Key {
	return e.value.Key()
}

// SetValue points the entry at v.
func (e *Entry[D, V]) SetValue(v V) {
	e.value.SetItem(v)
}

// SetValueKey points the entry at the canonical value for k.
func (e *Entry[D, V]) SetValueKey(k key.Key) error {
	return e.value.SetKey(k)
}

// Set binds both sides.
func (e *Entry[D, V]) Set(def D, v V) {
	e.SetDefinition(def)
	e.SetValue(v)
}

// Reference exposes the value reference for sweeps.
func (e *Entry[D, V]) Reference() *ref.Reference[V] {
	return e.value
}

// EqualsDefIndex reports whether the raw index equals i.
func (e *Entry[D, V]) EqualsDefIndex(i int) bool {
	return e.DefinitionIndexValue() == i
}

// EqualsValue reports whether the entry resolves to v.
func (e *Entry[D, V]) EqualsValue(v V) bool {
	got, ok := e.Value()
	return ok && got == v
}

// effectiveIndex prefers the linked definition's current index.
func (e *Entry[D, V]) effectiveIndex() int {
	if def, ok := e.Definition(); ok {
		return def.DefinitionIndex()
	}

	return e.DefinitionIndexValue()
}

// Compare orders entries by definition index.
func (e *Entry[D, V]) Compare(other *Entry[D, V]) int {
	return e.effectiveIndex() - other.effectiveIndex()
}

// Refresh pushes the linked definition index and the value offset.
func (e *Entry[D, V]) Refresh() {
	if def, ok := e.Definition(); ok {
		e.SetDefinitionIndexValue(def.DefinitionIndex())
	}
	e.value.Refresh()
}

// CountBytes implements block.Block.
func (e *Entry[D, V]) CountBytes() int {
	return EntrySize
}

// CountUpTo implements block.Block.
func (e *Entry[D, V]) CountUpTo(c *block.Counter) {
	if c.Enter(e) {
		return
	}
	c.Add(EntrySize)
}

// WriteBytes implements block.Block.
func (e *Entry[D, V]) WriteBytes(w *block.Writer) error {
	return e.data.WriteBytes(w)
}

// ReadBytes reads the raw pair. Definitions and values resolve later.
func (e *Entry[D, V]) ReadBytes(r *block.Reader) error {
	if err := e.data.ReadBytes(r); err != nil {
		return err
	}
	e.value.Invalidate()

	return nil
}
