package arsc

import (
	"bytes"
	"fmt"

	"github.com/arloliu/apkblock/block"
	"github.com/arloliu/apkblock/errs"
)

const (
	typeSpecHeaderSize = 16
	typeHeaderBase     = 20
	defaultConfigSize  = 64
	noEntry32          = 0xffffffff
	noEntry16          = 0xffff
)

// TypeSpec is a ResTable_typeSpec chunk: the per-entry configuration change
// flags of one resource type.
type TypeSpec struct {
	header *block.Bytes
	flags  []uint32
}

func newTypeSpec(id uint8, entryCount int) *TypeSpec {
	s := &TypeSpec{header: block.NewBytes(typeSpecHeaderSize), flags: make([]uint32, entryCount)}
	s.header.PutUint8(8, id)

	return s
}

func readTypeSpec(h chunkHeader, r *block.Reader) (*TypeSpec, error) {
	if h.headerSize < typeSpecHeaderSize {
		return nil, fmt.Errorf("%w: type spec header %d", errs.ErrInvalidChunk, h.headerSize)
	}
	s := &TypeSpec{header: block.NewBytes(h.headerSize)}
	if err := s.header.ReadBytes(r); err != nil {
		return nil, err
	}
	n := int(s.header.Uint32(12))
	if n*4 > r.Available() {
		return nil, fmt.Errorf("%w: type spec with %d entries", errs.ErrTruncated, n)
	}
	s.flags = make([]uint32, n)
	for i := range s.flags {
		s.flags[i], _ = r.Uint32()
	}

	return s, nil
}

// ID returns the type id, the 1-based index into the package type strings.
func (s *TypeSpec) ID() uint8 {
	return s.header.Uint8(8)
}

// EntryCount returns the number of entries of the type.
func (s *TypeSpec) EntryCount() int {
	return len(s.flags)
}

// Flags returns the configuration change flags of entry i.
func (s *TypeSpec) Flags(i int) uint32 {
	if i < 0 || i >= len(s.flags) {
		return 0
	}

	return s.flags[i]
}

func (s *TypeSpec) refresh() {
	putChunkHeader(s.header, ChunkTableTypeSpec, s.header.CountBytes(), s.CountBytes())
	s.header.PutUint32(12, uint32(len(s.flags)))
}

// CountBytes implements block.Block.
func (s *TypeSpec) CountBytes() int {
	return s.header.CountBytes() + 4*len(s.flags)
}

// CountUpTo implements block.Block.
func (s *TypeSpec) CountUpTo(c *block.Counter) { countLeaf(c, s) }

// WriteBytes implements block.Block.
func (s *TypeSpec) WriteBytes(w *block.Writer) error {
	if err := s.header.WriteBytes(w); err != nil {
		return err
	}
	for _, f := range s.flags {
		w.Uint32(f)
	}

	return nil
}

// Type is a dense ResTable_type chunk: the entries of one resource type for
// one configuration. Missing entries are nil.
type Type struct {
	header  *block.Bytes
	entries []*Entry
}

func newType(id uint8, entryCount int) *Type {
	t := &Type{header: block.NewBytes(typeHeaderBase + defaultConfigSize), entries: make([]*Entry, entryCount)}
	t.header.PutUint8(8, id)
	t.header.PutUint32(typeHeaderBase, defaultConfigSize)

	return t
}

func (p *Package) readType(h chunkHeader, r *block.Reader) (*Type, error) {
	if h.headerSize < typeHeaderBase+4 {
		return nil, fmt.Errorf("%w: type header %d", errs.ErrInvalidChunk, h.headerSize)
	}
	t := &Type{header: block.NewBytes(h.headerSize)}
	if err := t.header.ReadBytes(r); err != nil {
		return nil, err
	}
	if t.header.Uint8(9)&TypeSparse != 0 {
		return nil, fmt.Errorf("%w: sparse type %d", errs.ErrUnsupported, t.ID())
	}

	n := int(t.header.Uint32(12))
	start := int(t.header.Uint32(16))
	width := 4
	if t.offset16() {
		width = 2
	}
	if n*width > r.Available() {
		return nil, fmt.Errorf("%w: type %d with %d entries", errs.ErrTruncated, t.ID(), n)
	}
	offsets := make([]int, n)
	for i := range offsets {
		if width == 2 {
			v, _ := r.Uint16()
			offsets[i] = int(v) * 4
			if v == noEntry16 {
				offsets[i] = -1
			}
		} else {
			v, _ := r.Uint32()
			offsets[i] = int(v)
			if v == noEntry32 {
				offsets[i] = -1
			}
		}
	}

	keys, strings := p.keyStrings.Section(), p.table.strings.Section()
	t.entries = make([]*Entry, n)
	for i, off := range offsets {
		if off < 0 {
			continue
		}
		if err := r.Seek(start + off); err != nil {
			return nil, fmt.Errorf("type %d entry %d: %w", t.ID(), i, err)
		}
		e, err := readEntry(r, keys, strings)
		if err != nil {
			return nil, fmt.Errorf("type %d entry %d: %w", t.ID(), i, err)
		}
		t.entries[i] = e
	}

	return t, nil
}

// ID returns the type id.
func (t *Type) ID() uint8 {
	return t.header.Uint8(8)
}

func (t *Type) offset16() bool {
	return t.header.Uint8(9)&TypeOffset16 != 0
}

// Config returns the raw ResTable_config bytes.
func (t *Type) Config() []byte {
	return t.header.Data()[typeHeaderBase:]
}

// IsDefault reports whether the configuration matches every device.
func (t *Type) IsDefault() bool {
	cfg := t.Config()
	if len(cfg) < 4 {
		return true
	}

	return len(bytes.Trim(cfg[4:], "\x00")) == 0
}

// EntryCount returns the number of entry slots.
func (t *Type) EntryCount() int {
	return len(t.entries)
}

// Entry returns the entry at index i.
func (t *Type) Entry(i int) (*Entry, bool) {
	if i < 0 || i >= len(t.entries) || t.entries[i] == nil {
		return nil, false
	}

	return t.entries[i], true
}

// Entries returns the entry slots; missing entries are nil.
func (t *Type) Entries() []*Entry {
	return t.entries
}

// SetEntry stores e at index i, growing the type as needed. A nil e removes
// the entry.
func (t *Type) SetEntry(i int, e *Entry) {
	if i >= len(t.entries) {
		t.entries = append(t.entries, make([]*Entry, i+1-len(t.entries))...)
	}
	t.entries[i] = e
}

func (t *Type) entriesSize() int {
	n := 0
	for _, e := range t.entries {
		if e != nil {
			n += e.CountBytes()
		}
	}

	return n
}

func (t *Type) offsetsSize() int {
	if t.offset16() {
		return block.AlignUp(2*len(t.entries), 4)
	}

	return 4 * len(t.entries)
}

func (t *Type) refresh() {
	if t.offset16() && t.entriesSize()/4 >= noEntry16 {
		t.header.PutUint8(9, t.header.Uint8(9)&^TypeOffset16)
	}
	putChunkHeader(t.header, ChunkTableType, t.header.CountBytes(), t.CountBytes())
	t.header.PutUint32(12, uint32(len(t.entries)))
	t.header.PutUint32(16, uint32(t.header.CountBytes()+t.offsetsSize()))
}

// CountBytes implements block.Block.
func (t *Type) CountBytes() int {
	return t.header.CountBytes() + t.offsetsSize() + t.entriesSize()
}

// CountUpTo implements block.Block. It descends into entries so entry offsets
// can be measured with block.OffsetOf.
func (t *Type) CountUpTo(c *block.Counter) {
	if c.Enter(t) {
		return
	}
	c.Add(t.header.CountBytes() + t.offsetsSize())
	for _, e := range t.entries {
		if e == nil {
			continue
		}
		e.CountUpTo(c)
		if c.Found() {
			return
		}
	}
}

// WriteBytes implements block.Block.
func (t *Type) WriteBytes(w *block.Writer) error {
	if err := t.header.WriteBytes(w); err != nil {
		return err
	}
	pos := 0
	for _, e := range t.entries {
		switch {
		case e == nil && t.offset16():
			w.Uint16(noEntry16)
		case e == nil:
			w.Uint32(noEntry32)
		case t.offset16():
			w.Uint16(uint16(pos / 4))
		default:
			w.Uint32(uint32(pos))
		}
		if e != nil {
			pos += e.CountBytes()
		}
	}
	if t.offset16() {
		w.Zero(t.offsetsSize() - 2*len(t.entries))
	}
	for i, e := range t.entries {
		if e == nil {
			continue
		}
		if err := e.WriteBytes(w); err != nil {
			return fmt.Errorf("type %d entry %d: %w", t.ID(), i, err)
		}
	}

	return nil
}
