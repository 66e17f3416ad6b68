package arsc

import (
	"fmt"
	"slices"
	"unicode/utf16"

	"github.com/arloliu/apkblock/block"
	"github.com/arloliu/apkblock/errs"
	"github.com/arloliu/apkblock/ref"
)

const (
	packageHeaderSize    = 288
	packageHeaderMinSize = 284
	packageNameSize      = 128
)

// Package is a ResTable_package chunk.
type Package struct {
	header      *block.Bytes
	typeStrings *StringPool
	keyStrings  *StringPool
	chunks      []block.Block
	table       *Table
}

func newPackage(t *Table, id uint8, name string) *Package {
	p := &Package{
		header:      block.NewBytes(packageHeaderSize),
		typeStrings: NewStringPool("type_strings", false),
		keyStrings:  NewStringPool("key_strings", false),
		table:       t,
	}
	p.header.PutUint32(8, uint32(id))
	p.SetName(name)

	return p
}

// readPackage loads a package chunk. Type chunks that fail to load are kept
// opaque and reported through loadErrs.
func (t *Table) readPackage(h chunkHeader, r *block.Reader) (*Package, []error, error) {
	if h.headerSize < packageHeaderMinSize {
		return nil, nil, fmt.Errorf("%w: package header %d", errs.ErrInvalidChunk, h.headerSize)
	}
	p := &Package{header: block.NewBytes(h.headerSize), table: t}
	if err := p.header.ReadBytes(r); err != nil {
		return nil, nil, err
	}
	typeOff := int(p.header.Uint32(268))
	keyOff := int(p.header.Uint32(276))

	var loadErrs []error
	for r.Available() > 0 {
		pos := r.Position()
		switch pos {
		case typeOff:
			pool, err := readStringPool("type_strings", r)
			if err != nil {
				return nil, nil, err
			}
			p.typeStrings = pool

			continue
		case keyOff:
			pool, err := readStringPool("key_strings", r)
			if err != nil {
				return nil, nil, err
			}
			p.keyStrings = pool

			continue
		}

		ch, sub, err := nextChunk(r)
		if err != nil {
			return nil, nil, err
		}
		var c block.Block
		switch ch.typ {
		case ChunkTableTypeSpec:
			c, err = readTypeSpec(ch, sub)
		case ChunkTableType:
			if p.keyStrings == nil {
				err = fmt.Errorf("%w: type chunk before key strings", errs.ErrInvalidChunk)
				break
			}
			c, err = p.readType(ch, sub)
		}
		if c == nil || err != nil {
			_ = sub.Seek(0)
			raw, rerr := readRawChunk(sub)
			if rerr != nil {
				return nil, nil, rerr
			}
			if err != nil {
				raw.err = fmt.Errorf("package 0x%02x %s at 0x%x: %w", p.ID(), ch.typ, pos, err)
				loadErrs = append(loadErrs, raw.err)
			}
			c = raw
		}
		p.chunks = append(p.chunks, c)
	}
	if p.typeStrings == nil || p.keyStrings == nil {
		return nil, nil, fmt.Errorf("%w: package 0x%02x without string pools", errs.ErrInvalidChunk, p.ID())
	}

	return p, loadErrs, nil
}

// ID returns the package id, 0x7f for applications and 0x01 for the framework.
func (p *Package) ID() uint8 {
	return uint8(p.header.Uint32(8))
}

// Name returns the package name.
func (p *Package) Name() string {
	units := make([]uint16, 0, packageNameSize)
	for i := range packageNameSize {
		u := p.header.Uint16(12 + 2*i)
		if u == 0 {
			break
		}
		units = append(units, u)
	}

	return string(utf16.Decode(units))
}

// SetName stores name, truncated to 127 UTF-16 units.
func (p *Package) SetName(name string) {
	units := utf16.Encode([]rune(name))
	if len(units) > packageNameSize-1 {
		units = units[:packageNameSize-1]
	}
	for i := range packageNameSize {
		var u uint16
		if i < len(units) {
			u = units[i]
		}
		p.header.PutUint16(12+2*i, u)
	}
}

// TypeStrings returns the pool of type names; type id n names string n-1.
func (p *Package) TypeStrings() *StringPool {
	return p.typeStrings
}

// KeyStrings returns the pool of entry names.
func (p *Package) KeyStrings() *StringPool {
	return p.keyStrings
}

// TypeName returns the name of type id.
func (p *Package) TypeName(id uint8) string {
	if s, ok := p.typeStrings.Get(int(id) - 1); ok {
		return s.Text()
	}

	return fmt.Sprintf("type%02x", id)
}

// Specs returns the type specs in file order.
func (p *Package) Specs() []*TypeSpec {
	var out []*TypeSpec
	for _, c := range p.chunks {
		if s, ok := c.(*TypeSpec); ok {
			out = append(out, s)
		}
	}

	return out
}

// Spec returns the spec of type id.
func (p *Package) Spec(id uint8) (*TypeSpec, bool) {
	for _, c := range p.chunks {
		if s, ok := c.(*TypeSpec); ok && s.ID() == id {
			return s, true
		}
	}

	return nil, false
}

// Types returns the loaded type chunks of type id, default configuration
// first and file order otherwise.
func (p *Package) Types(id uint8) []*Type {
	var out []*Type
	for _, c := range p.chunks {
		if t, ok := c.(*Type); ok && t.ID() == id {
			out = append(out, t)
		}
	}
	slices.SortStableFunc(out, func(a, b *Type) int {
		switch {
		case a.IsDefault() == b.IsDefault():
			return 0
		case a.IsDefault():
			return -1
		default:
			return 1
		}
	})

	return out
}

// RawChunks returns the chunks kept opaque.
func (p *Package) RawChunks() []*RawChunk {
	var out []*RawChunk
	for _, c := range p.chunks {
		if raw, ok := c.(*RawChunk); ok {
			out = append(out, raw)
		}
	}

	return out
}

// Entries returns every entry for (typeID, index) across configurations,
// default configuration first.
func (p *Package) Entries(typeID uint8, index int) []*Entry {
	var out []*Entry
	for _, t := range p.Types(typeID) {
		if e, ok := t.Entry(index); ok {
			out = append(out, e)
		}
	}

	return out
}

// AddType appends a spec and a default-configuration type for a new type
// named name and returns the type.
func (p *Package) AddType(name string, entryCount int) (*Type, error) {
	if _, ok := p.typeStrings.Lookup(name); ok {
		return nil, fmt.Errorf("%w: type %q", errs.ErrDuplicateKey, name)
	}
	s, err := p.typeStrings.GetOrCreate(name)
	if err != nil {
		return nil, err
	}
	id := uint8(s.Index() + 1)
	t := newType(id, entryCount)
	p.chunks = append(p.chunks, newTypeSpec(id, entryCount), t)

	return t, nil
}

// AddConfig adds a type chunk of type id for the configuration cfg, given as
// raw ResTable_config bytes starting with their size. The chunk is placed
// after the existing chunks of the type.
func (p *Package) AddConfig(id uint8, cfg []byte) (*Type, error) {
	spec, ok := p.Spec(id)
	if !ok {
		return nil, fmt.Errorf("%w: type id %d", errs.ErrDanglingReference, id)
	}
	if len(cfg) < 4 || int(engine.Uint32(cfg)) != len(cfg) {
		return nil, fmt.Errorf("%w: config of %d bytes", errs.ErrInvalidChunk, len(cfg))
	}

	t := &Type{header: block.NewBytes(typeHeaderBase + len(cfg)), entries: make([]*Entry, spec.EntryCount())}
	t.header.PutUint8(8, id)
	copy(t.header.Data()[typeHeaderBase:], cfg)

	at := len(p.chunks)
	for i, c := range p.chunks {
		switch c := c.(type) {
		case *TypeSpec:
			if c.ID() == id {
				at = i + 1
			}
		case *Type:
			if c.ID() == id {
				at = i + 1
			}
		}
	}
	p.chunks = slices.Insert(p.chunks, at, block.Block(t))

	return t, nil
}

func (p *Package) entries(yield func(*Entry) bool) bool {
	for _, c := range p.chunks {
		t, ok := c.(*Type)
		if !ok {
			continue
		}
		for _, e := range t.entries {
			if e != nil && !yield(e) {
				return false
			}
		}
	}

	return true
}

func (p *Package) keyEdges(yield func(ref.Edge) bool) {
	p.entries(func(e *Entry) bool { return yield(e.key) })
}

func (p *Package) valueEdges(yield func(ref.Edge) bool) bool {
	return p.entries(func(e *Entry) bool { return e.valueEdges(yield) })
}

// unsafeChunks reports opaque chunks that may hold string indexes.
func (p *Package) unsafeChunks() []*RawChunk {
	var out []*RawChunk
	for _, raw := range p.RawChunks() {
		if raw.unsafe() {
			out = append(out, raw)
		}
	}

	return out
}

func (p *Package) refresh() {
	p.keyStrings.order()
	p.keyEdges(func(e ref.Edge) bool {
		e.Refresh()
		return true
	})
	p.typeStrings.refresh()
	p.keyStrings.refresh()
	for _, c := range p.chunks {
		switch c := c.(type) {
		case *TypeSpec:
			c.refresh()
		case *Type:
			c.refresh()
		}
	}

	hs := p.header.CountBytes()
	putChunkHeader(p.header, ChunkTablePackage, hs, p.CountBytes())
	p.header.PutUint32(268, uint32(hs))
	p.header.PutUint32(276, uint32(hs+p.typeStrings.CountBytes()))
}

// CountBytes implements block.Block.
func (p *Package) CountBytes() int {
	n := p.header.CountBytes() + p.typeStrings.CountBytes() + p.keyStrings.CountBytes()
	for _, c := range p.chunks {
		n += c.CountBytes()
	}

	return n
}

// CountUpTo implements block.Block.
func (p *Package) CountUpTo(c *block.Counter) {
	if c.Enter(p) {
		return
	}
	c.Add(p.header.CountBytes())
	for _, b := range p.blocks() {
		b.CountUpTo(c)
		if c.Found() {
			return
		}
	}
}

func (p *Package) blocks() []block.Block {
	return append([]block.Block{p.typeStrings, p.keyStrings}, p.chunks...)
}

// WriteBytes implements block.Block.
func (p *Package) WriteBytes(w *block.Writer) error {
	if err := p.header.WriteBytes(w); err != nil {
		return err
	}
	for _, b := range p.blocks() {
		if err := b.WriteBytes(w); err != nil {
			return fmt.Errorf("package 0x%02x: %w", p.ID(), err)
		}
	}

	return nil
}
