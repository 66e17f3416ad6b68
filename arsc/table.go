package arsc

import (
	"errors"
	"fmt"
	"iter"
	"strconv"
	"strings"

	"github.com/arloliu/apkblock/block"
	"github.com/arloliu/apkblock/errs"
	"github.com/arloliu/apkblock/key"
	"github.com/arloliu/apkblock/ref"
	"github.com/arloliu/apkblock/textfmt"
)

const (
	tableHeaderSize = 12

	// FrameworkMarkerPrefix starts the global string Optimize adds to record
	// the framework name and version.
	FrameworkMarkerPrefix = "apkblock.framework:"

	specPublic uint32 = 0x40000000
)

// Table is a resources.arsc resource table.
type Table struct {
	header   *block.Bytes
	strings  *StringPool
	chunks   []block.Block
	loadErrs []error
	marker   *ref.Reference[*PoolString]
}

var _ block.Block = (*Table)(nil)

// NewTable creates an empty table with a UTF-8 global pool.
func NewTable() *Table {
	t := &Table{header: block.NewBytes(tableHeaderSize), strings: NewStringPool("global_strings", true)}
	t.Refresh()

	return t
}

// ParseTable loads a resource table.
//
// A malformed global string pool fails the whole load. A malformed package or
// type chunk is kept as an opaque RawChunk and reported by LoadErrors.
//
// Returns:
//   - *Table: the loaded table
//   - error: errs.ErrInvalidChunk, errs.ErrTruncated or errs.ErrInvalidString
//     wrapped with context
func ParseTable(data []byte) (*Table, error) {
	r := block.NewReader(data)
	h, sub, err := expectChunk(r, ChunkTable)
	if err != nil {
		return nil, fmt.Errorf("table: %w", err)
	}
	if h.headerSize < tableHeaderSize {
		return nil, fmt.Errorf("%w: table header %d", errs.ErrInvalidChunk, h.headerSize)
	}

	t := &Table{header: block.NewBytes(h.headerSize)}
	if err := t.header.ReadBytes(sub); err != nil {
		return nil, err
	}
	if t.strings, err = readStringPool("global_strings", sub); err != nil {
		return nil, err
	}

	for sub.Available() > 0 {
		pos := sub.Position()
		ch, csub, err := nextChunk(sub)
		if err != nil {
			return nil, fmt.Errorf("table chunk at 0x%x: %w", pos, err)
		}
		if ch.typ == ChunkTablePackage {
			p, loadErrs, perr := t.readPackage(ch, csub)
			if perr == nil {
				t.chunks = append(t.chunks, p)
				t.loadErrs = append(t.loadErrs, loadErrs...)

				continue
			}
			err = fmt.Errorf("package at 0x%x: %w", pos, perr)
		}

		_ = csub.Seek(0)
		raw, rerr := readRawChunk(csub)
		if rerr != nil {
			return nil, rerr
		}
		if err != nil {
			raw.err = err
			t.loadErrs = append(t.loadErrs, err)
		}
		t.chunks = append(t.chunks, raw)
	}

	for e := range t.valueEdges() {
		e.Pull()
	}
	for _, p := range t.Packages() {
		p.keyEdges(func(e ref.Edge) bool {
			e.Pull()
			return true
		})
	}
	for _, s := range t.strings.Strings() {
		if strings.HasPrefix(s.Text(), FrameworkMarkerPrefix) {
			t.marker = t.newMarker()
			t.marker.SetItem(s)

			break
		}
	}

	return t, nil
}

func (t *Table) newMarker() *ref.Reference[*PoolString] {
	return ref.NewIndex[*PoolString](block.NewInt(0), t.strings.Section(), ref.NoNull)
}

// LoadErrors returns the errors of chunks kept opaque during load, joined.
func (t *Table) LoadErrors() error {
	return errors.Join(t.loadErrs...)
}

// Strings returns the global string pool.
func (t *Table) Strings() *StringPool {
	return t.strings
}

// Packages returns the loaded packages.
func (t *Table) Packages() []*Package {
	var out []*Package
	for _, c := range t.chunks {
		if p, ok := c.(*Package); ok {
			out = append(out, p)
		}
	}

	return out
}

// Package returns the package with the given id.
func (t *Table) Package(id uint8) (*Package, bool) {
	for _, p := range t.Packages() {
		if p.ID() == id {
			return p, true
		}
	}

	return nil, false
}

// AddPackage appends a new empty package.
func (t *Table) AddPackage(id uint8, name string) (*Package, error) {
	if _, ok := t.Package(id); ok {
		return nil, fmt.Errorf("%w: package 0x%02x", errs.ErrDuplicateKey, id)
	}
	p := newPackage(t, id, name)
	t.chunks = append(t.chunks, p)

	return p, nil
}

// RawChunks returns the table-level chunks kept opaque.
func (t *Table) RawChunks() []*RawChunk {
	var out []*RawChunk
	for _, c := range t.chunks {
		if raw, ok := c.(*RawChunk); ok {
			out = append(out, raw)
		}
	}

	return out
}

func splitID(id uint32) (pkg, typ uint8, index int) {
	return uint8(id >> 24), uint8(id >> 16), int(id & 0xffff)
}

// Entries returns every entry of resource id across configurations, default
// configuration first.
func (t *Table) Entries(id uint32) []*Entry {
	pid, tid, index := splitID(id)
	p, ok := t.Package(pid)
	if !ok || tid == 0 {
		return nil
	}

	return p.Entries(tid, index)
}

// Resource returns the preferred entry of resource id without following
// aliases.
func (t *Table) Resource(id uint32) (*Entry, bool) {
	entries := t.Entries(id)
	if len(entries) == 0 {
		return nil, false
	}

	return entries[0], true
}

// ResolveEntry follows reference and attribute aliases from id to the entry
// holding the value. The default configuration is tried first; when it has no
// entry, the first non-alias entry of another configuration is used.
// Circular chains resolve to nothing.
func (t *Table) ResolveEntry(id uint32) (*Entry, bool) {
	e, err := t.resolve(id, make(map[uint32]struct{}), nil)
	return e, err == nil
}

// ResolveValue returns the value id resolves to. Bags have no single value.
func (t *Table) ResolveValue(id uint32) (*Value, bool) {
	e, ok := t.ResolveEntry(id)
	if !ok || e.IsComplex() {
		return nil, false
	}

	return e.value, true
}

// Chase reports the alias chain starting at id and why it stops.
//
// Returns:
//   - []uint32: the ids visited, id first
//   - error: errs.ErrCircularReference for cycles, errs.ErrDanglingReference for
//     ids without an entry, nil when a value was found
func (t *Table) Chase(id uint32) ([]uint32, error) {
	var chain []uint32
	_, err := t.resolve(id, make(map[uint32]struct{}), &chain)

	return chain, err
}

func (t *Table) resolve(id uint32, visited map[uint32]struct{}, chain *[]uint32) (*Entry, error) {
	if _, seen := visited[id]; seen {
		return nil, fmt.Errorf("%w: 0x%08x", errs.ErrCircularReference, id)
	}
	visited[id] = struct{}{}
	if chain != nil {
		*chain = append(*chain, id)
	}

	pid, tid, index := splitID(id)
	p, ok := t.Package(pid)
	if !ok || tid == 0 {
		return nil, fmt.Errorf("%w: 0x%08x", errs.ErrDanglingReference, id)
	}
	types := p.Types(tid)
	if len(types) > 0 && types[0].IsDefault() {
		if e, ok := types[0].Entry(index); ok {
			if e.IsAlias() {
				return t.resolve(e.value.Data(), visited, chain)
			}

			return e, nil
		}
	}
	for _, ty := range types {
		if e, ok := ty.Entry(index); ok && !e.IsAlias() {
			return e, nil
		}
	}

	return nil, fmt.Errorf("%w: 0x%08x", errs.ErrDanglingReference, id)
}

// valueEdges yields every reference into the global pool.
func (t *Table) valueEdges() iter.Seq[ref.Edge] {
	return func(yield func(ref.Edge) bool) {
		if t.marker != nil && !yield(t.marker) {
			return
		}
		for _, p := range t.Packages() {
			if !p.valueEdges(yield) {
				return
			}
		}
	}
}

func (t *Table) unsafeChunks() []*RawChunk {
	var out []*RawChunk
	for _, raw := range t.RawChunks() {
		if raw.unsafe() {
			out = append(out, raw)
		}
	}
	for _, p := range t.Packages() {
		out = append(out, p.unsafeChunks()...)
	}

	return out
}

// RemoveUnusedStrings drops global strings no value refers to and entry names
// no entry uses.
//
// Returns:
//   - int: number of removed strings
//   - error: errs.ErrUnsafeSweep when opaque chunks may hold string indexes
func (t *Table) RemoveUnusedStrings() (int, error) {
	if unsafe := t.unsafeChunks(); len(unsafe) > 0 {
		names := make([]string, len(unsafe))
		for i, raw := range unsafe {
			names[i] = raw.Type().String()
		}

		return 0, fmt.Errorf("%w: opaque chunks %s", errs.ErrUnsafeSweep, strings.Join(names, ", "))
	}

	n := t.strings.sweep(t.valueEdges())
	for _, p := range t.Packages() {
		n += p.keyStrings.sweep(p.keyEdges)
	}

	return n, nil
}

// Optimize reduces the table to what framework resource resolution needs:
// every type keeps a single default-configuration chunk holding the preferred
// entry of each resource, packages are renamed to name, and a marker string
// records name and version. Unused strings are removed when no opaque chunk
// prevents it. Optimizing an optimized table does nothing.
func (t *Table) Optimize(name string, version int) error {
	if t.IsOptimized() {
		return nil
	}
	for _, p := range t.Packages() {
		p.SetName(name)
		p.collapse()
	}

	t.marker = t.newMarker()
	if err := t.marker.SetKey(key.StringKey(FrameworkMarkerPrefix + name + "@" + strconv.Itoa(version))); err != nil {
		return err
	}
	if _, err := t.RemoveUnusedStrings(); err != nil && !errors.Is(err, errs.ErrUnsafeSweep) {
		return err
	}
	t.Refresh()

	return nil
}

// IsOptimized reports whether the table carries an Optimize marker.
func (t *Table) IsOptimized() bool {
	_, _, ok := t.FrameworkInfo()
	return ok
}

// FrameworkInfo returns the name and version recorded by Optimize.
func (t *Table) FrameworkInfo() (name string, version int, ok bool) {
	if t.marker == nil {
		return "", 0, false
	}
	s, found := t.marker.Item()
	if !found {
		return "", 0, false
	}
	rest := strings.TrimPrefix(s.Text(), FrameworkMarkerPrefix)
	i := strings.LastIndexByte(rest, '@')
	if i < 0 {
		return "", 0, false
	}
	version, err := strconv.Atoi(rest[i+1:])
	if err != nil {
		return "", 0, false
	}

	return rest[:i], version, true
}

func (p *Package) collapse() {
	chunks := make([]block.Block, 0, len(p.chunks))
	for _, c := range p.chunks {
		switch c := c.(type) {
		case *TypeSpec:
			chunks = append(chunks, c, p.collapsed(c))
		case *Type:
		default:
			chunks = append(chunks, c)
		}
	}
	p.chunks = chunks
}

func (p *Package) collapsed(s *TypeSpec) *Type {
	types := p.Types(s.ID())
	out := newType(s.ID(), s.EntryCount())
	for i := range out.entries {
		for _, ty := range types {
			if e, ok := ty.Entry(i); ok {
				out.entries[i] = e
				break
			}
		}
		s.flags[i] &= specPublic
	}

	return out
}

// Refresh reorders pools, pushes every string index and recomputes chunk
// headers. Bytes calls it.
func (t *Table) Refresh() {
	t.strings.order()
	for e := range t.valueEdges() {
		e.Refresh()
	}
	packages := 0
	for _, c := range t.chunks {
		switch c := c.(type) {
		case *Package:
			c.refresh()
			packages++
		case *RawChunk:
			if c.Type() == ChunkTablePackage {
				packages++
			}
		}
	}
	t.strings.refresh()

	putChunkHeader(t.header, ChunkTable, t.header.CountBytes(), t.CountBytes())
	t.header.PutUint32(8, uint32(packages))
}

// Bytes refreshes and serializes the table.
func (t *Table) Bytes() ([]byte, error) {
	t.Refresh()
	return block.Serialize(t)
}

// CountBytes implements block.Block.
func (t *Table) CountBytes() int {
	n := t.header.CountBytes() + t.strings.CountBytes()
	for _, c := range t.chunks {
		n += c.CountBytes()
	}

	return n
}

// CountUpTo implements block.Block.
func (t *Table) CountUpTo(c *block.Counter) {
	if c.Enter(t) {
		return
	}
	c.Add(t.header.CountBytes())
	t.strings.CountUpTo(c)
	for _, ch := range t.chunks {
		if c.Found() {
			return
		}
		ch.CountUpTo(c)
	}
}

// WriteBytes implements block.Block.
func (t *Table) WriteBytes(w *block.Writer) error {
	if err := t.header.WriteBytes(w); err != nil {
		return err
	}
	if err := t.strings.WriteBytes(w); err != nil {
		return err
	}
	for _, c := range t.chunks {
		if err := c.WriteBytes(w); err != nil {
			return err
		}
	}

	return nil
}

// AppendText implements textfmt.Appender.
func (t *Table) AppendText(w *textfmt.Writer) error {
	w.Comment("resource table: %d global strings", t.strings.Len())
	if name, version, ok := t.FrameworkInfo(); ok {
		w.Comment("framework %s version %d", name, version)
	}
	for _, p := range t.Packages() {
		p.appendText(w)
	}
	for _, raw := range t.RawChunks() {
		w.Line(".chunk %s %d bytes", raw.Type(), raw.CountBytes())
	}

	return nil
}

func (p *Package) appendText(w *textfmt.Writer) {
	w.Line(".package 0x%02x %s", p.ID(), textfmt.Quote(p.Name()))
	w.Indent()
	defer w.Dedent()

	for _, s := range p.Specs() {
		w.Line(".type %s entries=%d", p.TypeName(s.ID()), s.EntryCount())
		w.Indent()
		for _, ty := range p.Types(s.ID()) {
			if ty.IsDefault() {
				w.Line(".config default")
			} else {
				w.Line(".config %x", ty.Config())
			}
			w.Indent()
			for i, e := range ty.entries {
				if e == nil {
					continue
				}
				id := uint32(p.ID())<<24 | uint32(s.ID())<<16 | uint32(i)
				if !e.IsComplex() {
					w.Line("0x%08x %s = %s", id, e.Name(), e.value.Display())
					continue
				}
				w.Line("0x%08x %s parent=@0x%08x", id, e.Name(), e.Parent())
				w.Indent()
				for _, m := range e.maps {
					w.Line("0x%08x = %s", m.Name(), m.value.Display())
				}
				w.Dedent()
			}
			w.Dedent()
		}
		w.Dedent()
	}
	for _, raw := range p.RawChunks() {
		if raw.Err() != nil {
			w.Comment("opaque %s: %v", raw.Type(), raw.Err())
		} else {
			w.Line(".chunk %s %d bytes", raw.Type(), raw.CountBytes())
		}
	}
}
