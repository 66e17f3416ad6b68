package arsc

import (
	"fmt"
	"iter"
	"slices"
	"unicode/utf16"
	"unicode/utf8"

	"github.com/arloliu/apkblock/block"
	"github.com/arloliu/apkblock/errs"
	"github.com/arloliu/apkblock/key"
	"github.com/arloliu/apkblock/ref"
	"github.com/arloliu/apkblock/section"
)

const (
	poolHeaderSize = 28
	spanEnd        = 0xffffffff
)

// Span is one style span of a pool string.
type Span struct {
	name  *ref.Reference[*PoolString]
	First uint32
	Last  uint32
}

// Name returns the tag name of the span.
func (s *Span) Name() string {
	if it, ok := s.name.Item(); ok {
		return it.Text()
	}

	return ""
}

func (s *Span) key() SpanKey {
	return SpanKey{Name: s.Name(), First: int(s.First), Last: int(s.Last)}
}

// PoolString is one string of a StringPool.
type PoolString struct {
	section.Entry
	pool  *StringPool
	text  string
	raw   []byte
	spans []*Span
	resID uint32
}

var _ section.Item = (*PoolString)(nil)

// Text returns the string value.
func (s *PoolString) Text() string {
	return s.text
}

// Spans returns the style spans, nil for an unstyled string.
func (s *PoolString) Spans() []*Span {
	return s.spans
}

// ResourceID returns the attribute resource id bound to the string through an
// XML resource map.
func (s *PoolString) ResourceID() (uint32, bool) {
	return s.resID, s.resID != 0
}

// Key implements section.Item.
func (s *PoolString) Key() key.Key {
	switch {
	case s.resID != 0:
		return AttrNameKey{Name: s.text, ID: s.resID}
	case len(s.spans) > 0:
		k := StyledKey{Text: s.text, Spans: make([]SpanKey, len(s.spans))}
		for i, sp := range s.spans {
			k.Spans[i] = sp.key()
		}

		return k
	default:
		return key.StringKey(s.text)
	}
}

// SetKey implements section.Item. It accepts key.StringKey, StyledKey and
// AttrNameKey.
func (s *PoolString) SetKey(k key.Key) error {
	switch k := k.(type) {
	case key.StringKey:
		s.text, s.spans, s.resID = string(k), nil, 0
	case StyledKey:
		spans := make([]*Span, 0, len(k.Spans))
		for _, sk := range k.Spans {
			sp := s.pool.newSpan(0)
			if err := sp.name.SetKey(key.StringKey(sk.Name)); err != nil {
				return err
			}
			sp.First, sp.Last = uint32(sk.First), uint32(sk.Last)
			spans = append(spans, sp)
		}
		s.text, s.spans, s.resID = k.Text, spans, 0
	case AttrNameKey:
		if k.ID == 0 {
			return fmt.Errorf("%w: attribute name %q without resource id", errs.ErrInvalidKey, k.Name)
		}
		s.text, s.spans, s.resID = k.Name, nil, k.ID
	default:
		return fmt.Errorf("%w: pool string cannot take key %v", errs.ErrInvalidKey, k)
	}
	s.raw = nil

	return nil
}

func (s *PoolString) encoded() []byte {
	if s.raw == nil {
		if s.pool.IsUTF8() {
			s.raw = encodeUTF8(s.text)
		} else {
			s.raw = encodeUTF16(s.text)
		}
	}

	return s.raw
}

func (s *PoolString) styleSize() int {
	if len(s.spans) == 0 {
		return 4
	}

	return 12*len(s.spans) + 4
}

// CountBytes implements block.Block.
func (s *PoolString) CountBytes() int { return len(s.encoded()) }

// CountUpTo implements block.Block.
func (s *PoolString) CountUpTo(c *block.Counter) { countLeaf(c, s) }

// WriteBytes implements block.Block.
func (s *PoolString) WriteBytes(w *block.Writer) error {
	w.Write(s.encoded())
	return nil
}

func (s *PoolString) edges(yield func(ref.Edge) bool) bool {
	for _, sp := range s.spans {
		if !yield(sp.name) {
			return false
		}
	}

	return true
}

// StringPool is a ResStringPool chunk.
type StringPool struct {
	header  *block.Bytes
	strings *section.Section[*PoolString]
	styles  int
	gen     block.Generation
}

// NewStringPool creates an empty pool using the UTF-8 or UTF-16 encoding.
func NewStringPool(name string, utf8 bool) *StringPool {
	p := &StringPool{header: block.NewBytes(poolHeaderSize)}
	p.strings = section.New(name, func() *PoolString { return &PoolString{pool: p} },
		section.WithGeneration(&p.gen))
	flags := uint32(0)
	if utf8 {
		flags = PoolUTF8
	}
	p.header.PutUint32(16, flags)

	return p
}

func (p *StringPool) newSpan(raw int) *Span {
	return &Span{name: ref.NewIndex[*PoolString](block.NewInt(raw), p.strings, ref.NoNull)}
}

// readStringPool consumes a pool chunk from r.
func readStringPool(name string, in *block.Reader) (*StringPool, error) {
	h, r, err := expectChunk(in, ChunkStringPool)
	if err != nil {
		return nil, fmt.Errorf("%s pool: %w", name, err)
	}
	if h.headerSize < poolHeaderSize {
		return nil, fmt.Errorf("%w: %s pool header %d", errs.ErrInvalidChunk, name, h.headerSize)
	}
	if err := r.Seek(0); err != nil {
		return nil, err
	}
	head, err := r.Read(h.headerSize)
	if err != nil {
		return nil, err
	}

	p := NewStringPool(name, false)
	copy(p.header.Data(), head[:poolHeaderSize])
	p.header.PutUint16(2, poolHeaderSize)

	count := int(p.header.Uint32(8))
	styleCount := int(p.header.Uint32(12))
	stringsStart := int(p.header.Uint32(20))
	stylesStart := int(p.header.Uint32(24))
	if err := r.Seek(h.headerSize); err != nil {
		return nil, err
	}
	if (count+styleCount)*4 > r.Available() {
		return nil, fmt.Errorf("%w: %s pool offsets for %d strings", errs.ErrTruncated, name, count)
	}

	offsets := make([]int, count)
	for i := range offsets {
		v, _ := r.Uint32()
		offsets[i] = int(v)
	}
	styleOffsets := make([]int, styleCount)
	for i := range styleOffsets {
		v, _ := r.Uint32()
		styleOffsets[i] = int(v)
	}

	p.strings.Reserve(count)
	for i, off := range offsets {
		if err := r.Seek(stringsStart + off); err != nil {
			return nil, fmt.Errorf("%s string %d: %w", name, i, err)
		}
		s := &PoolString{pool: p}
		if err := s.read(r); err != nil {
			return nil, fmt.Errorf("%s string %d: %w", name, i, err)
		}
		s.SetOffset(off)
		p.strings.Append(s)
	}
	for i, off := range styleOffsets {
		if i >= count {
			break
		}
		if err := r.Seek(stylesStart + off); err != nil {
			return nil, fmt.Errorf("%s style %d: %w", name, i, err)
		}
		s, _ := p.strings.Get(i)
		if err := p.readSpans(r, s); err != nil {
			return nil, fmt.Errorf("%s style %d: %w", name, i, err)
		}
	}
	p.styles = min(styleCount, count)
	p.strings.Rehash()
	p.gen.Commit()

	return p, nil
}

func (p *StringPool) readSpans(r *block.Reader, s *PoolString) error {
	for {
		nameIdx, err := r.Uint32()
		if err != nil {
			return err
		}
		if nameIdx == spanEnd {
			return nil
		}
		first, err := r.Uint32()
		if err != nil {
			return err
		}
		last, err := r.Uint32()
		if err != nil {
			return err
		}
		sp := p.newSpan(int(nameIdx))
		sp.First, sp.Last = first, last
		s.spans = append(s.spans, sp)
	}
}

func (s *PoolString) read(r *block.Reader) error {
	start := r.Position()
	var err error
	if s.pool.IsUTF8() {
		s.text, err = decodeUTF8(r)
	} else {
		s.text, err = decodeUTF16(r)
	}
	if err != nil {
		return err
	}
	end := r.Position()
	if err := r.Seek(start); err != nil {
		return err
	}
	raw, err := r.Read(end - start)
	if err != nil {
		return err
	}
	s.raw = slices.Clone(raw)

	return nil
}

// Name returns the pool name used in error messages.
func (p *StringPool) Name() string {
	return p.strings.Name()
}

// IsUTF8 reports whether strings are stored as UTF-8.
func (p *StringPool) IsUTF8() bool {
	return p.header.Uint32(16)&PoolUTF8 != 0
}

// IsSorted reports the sorted flag.
func (p *StringPool) IsSorted() bool {
	return p.header.Uint32(16)&PoolSorted != 0
}

// Len returns the number of strings.
func (p *StringPool) Len() int {
	return p.strings.Len()
}

// Get returns the string at index i.
func (p *StringPool) Get(i int) (*PoolString, bool) {
	return p.strings.Get(i)
}

// Strings returns the strings in pool order.
func (p *StringPool) Strings() []*PoolString {
	return p.strings.Items()
}

// Section returns the underlying section, the target pool of string references.
func (p *StringPool) Section() *section.Section[*PoolString] {
	return p.strings
}

// Lookup returns the unstyled string equal to s.
func (p *StringPool) Lookup(s string) (*PoolString, bool) {
	return p.strings.Lookup(key.StringKey(s))
}

// GetOrCreate returns the unstyled string equal to s, appending it if needed.
func (p *StringPool) GetOrCreate(s string) (*PoolString, error) {
	return p.strings.GetOrCreate(key.StringKey(s))
}

// Generation returns the edit tracker of the pool.
func (p *StringPool) Generation() *block.Generation {
	return &p.gen
}

// spanEdges yields the span name references of every string.
func (p *StringPool) spanEdges() iter.Seq[ref.Edge] {
	return func(yield func(ref.Edge) bool) {
		for _, s := range p.strings.Items() {
			if !s.edges(yield) {
				return
			}
		}
	}
}

func poolRank(s *PoolString) int {
	switch {
	case s.resID != 0:
		return 0
	case len(s.spans) > 0:
		return 1
	default:
		return 2
	}
}

// order moves resource-bound strings first and styled strings next, keeping the
// relative order otherwise.
//
// Returns:
//   - bool: true when string indexes changed
func (p *StringPool) order() bool {
	return p.strings.Sort(func(a, b *PoolString) int {
		return poolRank(a) - poolRank(b)
	})
}

// sweep removes strings no edge refers to, repeating while removed styled
// strings release span names.
func (p *StringPool) sweep(edges iter.Seq[ref.Edge]) int {
	all := func(yield func(ref.Edge) bool) {
		for e := range edges {
			if !yield(e) {
				return
			}
		}
		for e := range p.spanEdges() {
			if !yield(e) {
				return
			}
		}
	}

	total := 0
	for {
		n := ref.Sweep(p.strings, all)
		total += n
		if n == 0 {
			return total
		}
	}
}

// refresh pushes span indexes and recomputes the header. Edges from outside the
// pool must be refreshed by the owner.
func (p *StringPool) refresh() {
	for e := range p.spanEdges() {
		e.Refresh()
	}

	p.styles = 0
	for i, s := range p.strings.Items() {
		if len(s.spans) > 0 {
			p.styles = i + 1
		}
	}

	if p.gen.Stale() {
		flags := p.header.Uint32(16) &^ PoolSorted
		if slices.IsSortedFunc(p.strings.Items(), func(a, b *PoolString) int {
			return key.CompareStrings(a.text, b.text)
		}) && p.Len() > 1 {
			flags |= PoolSorted
		}
		p.header.PutUint32(16, flags)
		p.gen.Commit()
	}

	count := p.strings.Len()
	stringsStart := poolHeaderSize + 4*count + 4*p.styles
	pos := 0
	for _, s := range p.strings.Items() {
		s.SetOffset(pos)
		pos += s.CountBytes()
	}
	stylesStart := 0
	if p.styles > 0 {
		stylesStart = stringsStart + block.AlignUp(pos, 4)
	}

	putChunkHeader(p.header, ChunkStringPool, poolHeaderSize, p.CountBytes())
	p.header.PutUint32(8, uint32(count))
	p.header.PutUint32(12, uint32(p.styles))
	p.header.PutUint32(20, uint32(stringsStart))
	p.header.PutUint32(24, uint32(stylesStart))
}

func (p *StringPool) stringsSize() int {
	n := 0
	for _, s := range p.strings.Items() {
		n += s.CountBytes()
	}

	return block.AlignUp(n, 4)
}

func (p *StringPool) stylesSize() int {
	if p.styles == 0 {
		return 0
	}
	n := 8
	for _, s := range p.strings.Items()[:p.styles] {
		n += s.styleSize()
	}

	return n
}

// CountBytes implements block.Block.
func (p *StringPool) CountBytes() int {
	return poolHeaderSize + 4*p.strings.Len() + 4*p.styles + p.stringsSize() + p.stylesSize()
}

// CountUpTo implements block.Block.
func (p *StringPool) CountUpTo(c *block.Counter) {
	if c.Enter(p) {
		return
	}
	c.Add(poolHeaderSize + 4*p.strings.Len() + 4*p.styles)
	p.strings.CountUpTo(c)
	c.Align(4)
	c.Add(p.stylesSize())
}

// WriteBytes implements block.Block. Call refresh first.
func (p *StringPool) WriteBytes(w *block.Writer) error {
	if err := p.header.WriteBytes(w); err != nil {
		return err
	}
	for _, s := range p.strings.Items() {
		w.Uint32(uint32(s.Offset()))
	}
	pos := 0
	for _, s := range p.strings.Items()[:p.styles] {
		w.Uint32(uint32(pos))
		pos += s.styleSize()
	}

	n := 0
	for _, s := range p.strings.Items() {
		if err := s.WriteBytes(w); err != nil {
			return err
		}
		n += s.CountBytes()
	}
	w.Zero(block.AlignUp(n, 4) - n)

	if p.styles == 0 {
		return nil
	}
	for _, s := range p.strings.Items()[:p.styles] {
		for _, sp := range s.spans {
			w.Uint32(uint32(sp.name.Raw()))
			w.Uint32(sp.First)
			w.Uint32(sp.Last)
		}
		w.Uint32(spanEnd)
	}
	w.Uint32(spanEnd)
	w.Uint32(spanEnd)

	return nil
}

func encodeUTF8(s string) []byte {
	units := len(utf16.Encode([]rune(s)))
	out := make([]byte, 0, len(s)+5)
	out = appendLen8(out, units)
	out = appendLen8(out, len(s))
	out = append(out, s...)

	return append(out, 0)
}

func appendLen8(out []byte, n int) []byte {
	if n > 0x7f {
		out = append(out, byte(0x80|(n>>8)&0x7f))
	}

	return append(out, byte(n))
}

func encodeUTF16(s string) []byte {
	units := utf16.Encode([]rune(s))
	out := make([]byte, 0, 2*len(units)+6)
	n := len(units)
	if n > 0x7fff {
		out = engine.AppendUint16(out, uint16(0x8000|(n>>16)&0x7fff))
	}
	out = engine.AppendUint16(out, uint16(n))
	for _, u := range units {
		out = engine.AppendUint16(out, u)
	}

	return engine.AppendUint16(out, 0)
}

func readLen8(r *block.Reader) (int, error) {
	b, err := r.Uint8()
	if err != nil {
		return 0, err
	}
	if b&0x80 == 0 {
		return int(b), nil
	}
	lo, err := r.Uint8()
	if err != nil {
		return 0, err
	}

	return int(b&0x7f)<<8 | int(lo), nil
}

func decodeUTF8(r *block.Reader) (string, error) {
	if _, err := readLen8(r); err != nil {
		return "", err
	}
	n, err := readLen8(r)
	if err != nil {
		return "", err
	}
	b, err := r.Read(n + 1)
	if err != nil {
		return "", err
	}
	if b[n] != 0 {
		return "", fmt.Errorf("%w: unterminated UTF-8 pool string", errs.ErrInvalidString)
	}
	if !utf8.Valid(b[:n]) {
		return "", fmt.Errorf("%w: invalid UTF-8 in pool string", errs.ErrInvalidString)
	}

	return string(b[:n]), nil
}

func decodeUTF16(r *block.Reader) (string, error) {
	u, err := r.Uint16()
	if err != nil {
		return "", err
	}
	n := int(u)
	if u&0x8000 != 0 {
		lo, err := r.Uint16()
		if err != nil {
			return "", err
		}
		n = int(u&0x7fff)<<16 | int(lo)
	}
	b, err := r.Read(2*n + 2)
	if err != nil {
		return "", err
	}
	units := make([]uint16, n)
	for i := range units {
		units[i] = engine.Uint16(b[2*i:])
	}
	if engine.Uint16(b[2*n:]) != 0 {
		return "", fmt.Errorf("%w: unterminated UTF-16 pool string", errs.ErrInvalidString)
	}

	return string(utf16.Decode(units)), nil
}
