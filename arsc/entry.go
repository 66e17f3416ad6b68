package arsc

import (
	"fmt"

	"github.com/arloliu/apkblock/block"
	"github.com/arloliu/apkblock/errs"
	"github.com/arloliu/apkblock/key"
	"github.com/arloliu/apkblock/ref"
	"github.com/arloliu/apkblock/section"
)

const (
	simpleEntryHeader  = 8
	complexEntryHeader = 16
	mapEntrySize       = 4 + valueSize
)

// MapEntry is one name/value pair of a complex (bag) entry.
type MapEntry struct {
	name  *block.Bytes
	value *Value
}

// Name returns the attribute resource id the pair sets.
func (m *MapEntry) Name() uint32 {
	return m.name.Uint32(0)
}

// SetName changes the attribute resource id.
func (m *MapEntry) SetName(id uint32) {
	m.name.PutUint32(0, id)
}

// Value returns the pair value.
func (m *MapEntry) Value() *Value {
	return m.value
}

// Entry is a ResTable_entry: a key name plus a single value, or for complex
// entries a parent and a list of map pairs.
type Entry struct {
	header  *block.Bytes
	key     *ref.Reference[*PoolString]
	value   *Value
	maps    []*MapEntry
	strings *section.Section[*PoolString]
}

func newEntry(keys, strings *section.Section[*PoolString], bag bool) *Entry {
	size := simpleEntryHeader
	if bag {
		size = complexEntryHeader
	}
	h := block.NewBytes(size)
	h.PutUint16(0, uint16(size))
	e := &Entry{
		header:  h,
		key:     ref.NewIndex[*PoolString](h.Field(4, 4), keys, ref.NoNull),
		strings: strings,
	}
	if bag {
		h.PutUint16(2, EntryComplex)
	} else {
		e.value = newValue(strings)
	}

	return e
}

// NewEntry creates a simple entry named name holding a null value.
func (p *Package) NewEntry(name string) (*Entry, error) {
	e := newEntry(p.keyStrings.Section(), p.table.strings.Section(), false)
	if err := e.SetName(name); err != nil {
		return nil, err
	}

	return e, nil
}

// NewComplexEntry creates an empty bag entry named name.
func (p *Package) NewComplexEntry(name string) (*Entry, error) {
	e := newEntry(p.keyStrings.Section(), p.table.strings.Section(), true)
	if err := e.SetName(name); err != nil {
		return nil, err
	}

	return e, nil
}

func readEntry(r *block.Reader, keys, strings *section.Section[*PoolString]) (*Entry, error) {
	b, err := r.Peek(4)
	if err != nil {
		return nil, err
	}
	size := int(engine.Uint16(b))
	flags := engine.Uint16(b[2:])
	if flags&EntryCompact != 0 {
		return nil, fmt.Errorf("%w: compact entry", errs.ErrUnsupported)
	}
	bag := flags&EntryComplex != 0
	if size < simpleEntryHeader || (bag && size < complexEntryHeader) {
		return nil, fmt.Errorf("%w: entry header size %d", errs.ErrInvalidChunk, size)
	}

	e := newEntry(keys, strings, bag)
	e.header.SetSize(size)
	if err := e.header.ReadBytes(r); err != nil {
		return nil, err
	}
	e.key.Invalidate()
	if !bag {
		return e, e.value.read(r)
	}

	count := int(e.header.Uint32(12))
	if count*mapEntrySize > r.Available() {
		return nil, fmt.Errorf("%w: %d map entries", errs.ErrTruncated, count)
	}
	e.maps = make([]*MapEntry, count)
	for i := range e.maps {
		m := &MapEntry{name: block.NewBytes(4), value: newValue(strings)}
		if err := m.name.ReadBytes(r); err != nil {
			return nil, err
		}
		if err := m.value.read(r); err != nil {
			return nil, fmt.Errorf("map entry %d: %w", i, err)
		}
		e.maps[i] = m
	}

	return e, nil
}

// Name returns the entry key string.
func (e *Entry) Name() string {
	if s, ok := e.key.Item(); ok {
		return s.Text()
	}

	return ""
}

// SetName points the entry at the key string name.
func (e *Entry) SetName(name string) error {
	return e.key.SetKey(key.StringKey(name))
}

// Flags returns the entry flags.
func (e *Entry) Flags() uint16 {
	return e.header.Uint16(2)
}

// IsComplex reports whether the entry is a bag.
func (e *Entry) IsComplex() bool {
	return e.Flags()&EntryComplex != 0
}

// IsPublic reports the public flag.
func (e *Entry) IsPublic() bool {
	return e.Flags()&EntryPublic != 0
}

// SetPublic sets or clears the public flag.
func (e *Entry) SetPublic(public bool) {
	flags := e.Flags() &^ EntryPublic
	if public {
		flags |= EntryPublic
	}
	e.header.PutUint16(2, flags)
}

// Value returns the value of a simple entry, nil for bags.
func (e *Entry) Value() *Value {
	return e.value
}

// IsAlias reports whether a simple entry points at another resource.
func (e *Entry) IsAlias() bool {
	return e.value != nil && e.value.Type().IsReference()
}

// Parent returns the parent bag id of a complex entry.
func (e *Entry) Parent() uint32 {
	if !e.IsComplex() {
		return 0
	}

	return e.header.Uint32(8)
}

// SetParent sets the parent bag id of a complex entry.
func (e *Entry) SetParent(id uint32) {
	if e.IsComplex() {
		e.header.PutUint32(8, id)
	}
}

// Maps returns the pairs of a complex entry.
func (e *Entry) Maps() []*MapEntry {
	return e.maps
}

// AddMap appends a null pair for attribute name to a complex entry.
func (e *Entry) AddMap(name uint32) (*MapEntry, error) {
	if !e.IsComplex() {
		return nil, fmt.Errorf("%w: map pair on simple entry %q", errs.ErrImmutable, e.Name())
	}
	m := &MapEntry{name: block.NewBytes(4), value: newValue(e.strings)}
	m.SetName(name)
	e.maps = append(e.maps, m)
	e.header.PutUint32(12, uint32(len(e.maps)))

	return m, nil
}

func (e *Entry) edges(yield func(ref.Edge) bool) bool {
	if !yield(e.key) {
		return false
	}

	return e.valueEdges(yield)
}

func (e *Entry) valueEdges(yield func(ref.Edge) bool) bool {
	if e.value != nil {
		return e.value.edges(yield)
	}
	for _, m := range e.maps {
		if !m.value.edges(yield) {
			return false
		}
	}

	return true
}

// CountBytes implements block.Block.
func (e *Entry) CountBytes() int {
	if e.value != nil {
		return e.header.CountBytes() + valueSize
	}

	return e.header.CountBytes() + mapEntrySize*len(e.maps)
}

// CountUpTo implements block.Block.
func (e *Entry) CountUpTo(c *block.Counter) { countLeaf(c, e) }

// WriteBytes implements block.Block.
func (e *Entry) WriteBytes(w *block.Writer) error {
	if err := e.header.WriteBytes(w); err != nil {
		return err
	}
	if e.value != nil {
		return e.value.WriteBytes(w)
	}
	for _, m := range e.maps {
		if err := m.name.WriteBytes(w); err != nil {
			return err
		}
		if err := m.value.WriteBytes(w); err != nil {
			return err
		}
	}

	return nil
}
