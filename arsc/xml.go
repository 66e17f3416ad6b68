package arsc

import (
	"fmt"
	"iter"
	"slices"
	"strings"

	"github.com/arloliu/apkblock/block"
	"github.com/arloliu/apkblock/errs"
	"github.com/arloliu/apkblock/key"
	"github.com/arloliu/apkblock/ref"
	"github.com/arloliu/apkblock/section"
	"github.com/arloliu/apkblock/textfmt"
)

const (
	xmlHeaderSize    = 8
	nodeHeaderSize   = 16
	namespaceSize    = nodeHeaderSize + 8
	elementStartSize = nodeHeaderSize + 20
	elementEndSize   = nodeHeaderSize + 8
	cdataHeaderSize  = nodeHeaderSize + 4
	attributeSize    = 12 + valueSize

	attrID uint32 = 0x010100d0
)

// Node is a namespace scope, an element or a text node of a Document.
type Node interface {
	block.Block
	// Line returns the source line number recorded by the compiler.
	Line() uint32
	edges(yield func(ref.Edge) bool) bool
	refresh()
	appendText(w *textfmt.Writer, prefixes map[string]string)
}

// nodeChunk is the fixed header of every tree node chunk: chunk header, line
// number and comment string.
type nodeChunk struct {
	data    *block.Bytes
	comment *ref.Reference[*PoolString]
}

func newNodeChunk(typ ChunkType, size int, pool *section.Section[*PoolString]) nodeChunk {
	data := block.NewBytes(size)
	putChunkHeader(data, typ, nodeHeaderSize, size)
	c := nodeChunk{data: data, comment: ref.NewIndex[*PoolString](data.Field(12, 4), pool, NoIndex)}
	c.comment.Clear()

	return c
}

func (c nodeChunk) read(r *block.Reader, want ChunkType) error {
	h, err := peekChunk(r)
	if err != nil {
		return err
	}
	if h.typ != want || h.headerSize != nodeHeaderSize || h.size < c.data.CountBytes() {
		return fmt.Errorf("%w: %s node header %d, size %d", errs.ErrInvalidChunk, h.typ, h.headerSize, h.size)
	}
	if err := c.data.ReadBytes(r); err != nil {
		return err
	}
	c.comment.Invalidate()

	return nil
}

func (c nodeChunk) line() uint32 { return c.data.Uint32(8) }

// index creates a string reference stored at off of the chunk.
func (c nodeChunk) index(off int, pool *section.Section[*PoolString], nullable bool) *ref.Reference[*PoolString] {
	null := ref.NoNull
	if nullable {
		null = NoIndex
	}

	return ref.NewIndex[*PoolString](c.data.Field(off, 4), pool, null)
}

func stringOf(r *ref.Reference[*PoolString]) string {
	if s, ok := r.Item(); ok {
		return s.Text()
	}

	return ""
}

func setString(r *ref.Reference[*PoolString], s string) error {
	if s == "" {
		r.Clear()
		return nil
	}

	return r.SetKey(key.StringKey(s))
}

// Namespace is a namespace scope: a prefix bound to a URI for its children.
type Namespace struct {
	start    nodeChunk
	end      nodeChunk
	prefix   *ref.Reference[*PoolString]
	uri      *ref.Reference[*PoolString]
	children []Node
	doc      *Document
}

func (d *Document) newNamespace() *Namespace {
	pool := d.pool.Section()
	ns := &Namespace{
		start: newNodeChunk(ChunkXMLStartNamespace, namespaceSize, pool),
		end:   newNodeChunk(ChunkXMLEndNamespace, namespaceSize, pool),
		doc:   d,
	}
	ns.prefix = ns.start.index(16, pool, true)
	ns.uri = ns.start.index(20, pool, true)

	return ns
}

// Prefix returns the namespace prefix.
func (n *Namespace) Prefix() string { return stringOf(n.prefix) }

// URI returns the namespace URI.
func (n *Namespace) URI() string { return stringOf(n.uri) }

// Line implements Node.
func (n *Namespace) Line() uint32 { return n.start.line() }

// Children returns the nodes inside the scope.
func (n *Namespace) Children() []Node { return n.children }

// AddElement appends a child element.
func (n *Namespace) AddElement(name string) (*Element, error) {
	e, err := n.doc.NewElement("", name)
	if err != nil {
		return nil, err
	}
	n.children = append(n.children, e)

	return e, nil
}

func (n *Namespace) edges(yield func(ref.Edge) bool) bool {
	for _, e := range []ref.Edge{n.start.comment, n.end.comment, n.prefix, n.uri} {
		if !yield(e) {
			return false
		}
	}

	return childEdges(n.children, yield)
}

func (n *Namespace) refresh() {
	copy(n.end.data.Data()[nodeHeaderSize:], n.start.data.Data()[nodeHeaderSize:])
	for _, c := range n.children {
		c.refresh()
	}
}

// CountBytes implements block.Block.
func (n *Namespace) CountBytes() int {
	return 2*namespaceSize + childrenSize(n.children)
}

// CountUpTo implements block.Block.
func (n *Namespace) CountUpTo(c *block.Counter) {
	if c.Enter(n) {
		return
	}
	c.Add(namespaceSize)
	countChildren(c, n.children)
	c.Add(namespaceSize)
}

// WriteBytes implements block.Block.
func (n *Namespace) WriteBytes(w *block.Writer) error {
	if err := n.start.data.WriteBytes(w); err != nil {
		return err
	}
	if err := writeChildren(w, n.children); err != nil {
		return err
	}

	return n.end.data.WriteBytes(w)
}

func (n *Namespace) appendText(w *textfmt.Writer, prefixes map[string]string) {
	w.Line(".namespace %s %s", n.Prefix(), textfmt.Quote(n.URI()))
	w.Indent()
	for _, c := range n.children {
		c.appendText(w, prefixes)
	}
	w.Dedent()
}

// Attribute is one attribute of an element.
type Attribute struct {
	data  *block.Bytes
	ns    *ref.Reference[*PoolString]
	name  *ref.Reference[*PoolString]
	raw   *ref.Reference[*PoolString]
	value *Value
}

func (d *Document) newAttribute() *Attribute {
	pool := d.pool.Section()
	data := block.NewBytes(12)
	a := &Attribute{
		data:  data,
		ns:    ref.NewIndex[*PoolString](data.Field(0, 4), pool, NoIndex),
		name:  ref.NewIndex[*PoolString](data.Field(4, 4), pool, ref.NoNull),
		raw:   ref.NewIndex[*PoolString](data.Field(8, 4), pool, NoIndex),
		value: newValue(pool),
	}
	a.ns.Clear()
	a.raw.Clear()

	return a
}

func (a *Attribute) read(r *block.Reader) error {
	if err := a.data.ReadBytes(r); err != nil {
		return err
	}
	a.ns.Invalidate()
	a.name.Invalidate()
	a.raw.Invalidate()

	return a.value.read(r)
}

// Name returns the attribute name.
func (a *Attribute) Name() string { return stringOf(a.name) }

// Namespace returns the attribute namespace URI, empty when unqualified.
func (a *Attribute) Namespace() string { return stringOf(a.ns) }

// ResourceID returns the attribute resource id, 0 when the name is not bound
// to one.
func (a *Attribute) ResourceID() uint32 {
	if s, ok := a.name.Item(); ok {
		return s.resID
	}

	return 0
}

// Value returns the typed value.
func (a *Attribute) Value() *Value { return a.value }

// RawValue returns the original string value, if any.
func (a *Attribute) RawValue() (string, bool) {
	s, ok := a.raw.Item()
	if !ok {
		return "", false
	}

	return s.Text(), true
}

// SetString makes the attribute a string attribute.
func (a *Attribute) SetString(s string) error {
	if err := a.raw.SetKey(key.StringKey(s)); err != nil {
		return err
	}

	return a.value.SetString(s)
}

// SetTypeAndData stores a typed value and drops the raw string.
func (a *Attribute) SetTypeAndData(t ValueType, data uint32) {
	a.raw.Clear()
	a.value.SetTypeAndData(t, data)
}

// SetValue copies v, typically a resource table value, into the attribute.
// String values are re-created in the document pool.
func (a *Attribute) SetValue(v *Value) error {
	if v.Type() != TypeString {
		a.SetTypeAndData(v.Type(), v.Data())
		return nil
	}
	s, ok := v.StringValue()
	if !ok {
		return fmt.Errorf("%w: string index %d", errs.ErrDanglingReference, v.Data())
	}

	return a.SetString(s)
}

func (a *Attribute) edges(yield func(ref.Edge) bool) bool {
	for _, e := range []ref.Edge{a.ns, a.name, a.raw} {
		if !yield(e) {
			return false
		}
	}

	return a.value.edges(yield)
}

func (a *Attribute) format(prefixes map[string]string) string {
	name := a.Name()
	if uri := a.Namespace(); uri != "" {
		if p, ok := prefixes[uri]; ok {
			name = p + ":" + name
		}
	}
	if s, ok := a.RawValue(); ok {
		return name + "=" + textfmt.Quote(s)
	}

	return name + "=" + a.value.Display()
}

// Element is an XML element with its attributes and children.
type Element struct {
	start    nodeChunk
	end      nodeChunk
	ns       *ref.Reference[*PoolString]
	name     *ref.Reference[*PoolString]
	attrs    []*Attribute
	children []Node
	doc      *Document
}

func (d *Document) newElement() *Element {
	pool := d.pool.Section()
	e := &Element{
		start: newNodeChunk(ChunkXMLStartElement, elementStartSize, pool),
		end:   newNodeChunk(ChunkXMLEndElement, elementEndSize, pool),
		doc:   d,
	}
	e.ns = e.start.index(16, pool, true)
	e.name = e.start.index(20, pool, false)
	e.ns.Clear()
	e.start.data.PutUint16(24, 20)
	e.start.data.PutUint16(26, attributeSize)

	return e
}

// NewElement creates a detached element; add it with AddElement or
// Element.AddChild.
func (d *Document) NewElement(uri, name string) (*Element, error) {
	e := d.newElement()
	if err := setString(e.ns, uri); err != nil {
		return nil, err
	}
	if err := e.name.SetKey(key.StringKey(name)); err != nil {
		return nil, err
	}

	return e, nil
}

func (d *Document) readElement(r *block.Reader) (*Element, error) {
	e := d.newElement()
	h, err := peekChunk(r)
	if err != nil {
		return nil, err
	}
	sub, err := r.Sub(h.size)
	if err != nil {
		return nil, err
	}
	if err := e.start.read(sub, ChunkXMLStartElement); err != nil {
		return nil, err
	}
	e.ns.Invalidate()
	e.name.Invalidate()

	attrStart := int(e.start.data.Uint16(24))
	attrSize := int(e.start.data.Uint16(26))
	count := int(e.start.data.Uint16(28))
	if attrSize < attributeSize {
		return nil, fmt.Errorf("%w: attribute size %d", errs.ErrInvalidChunk, attrSize)
	}
	for i := range count {
		if err := sub.Seek(nodeHeaderSize + attrStart + i*attrSize); err != nil {
			return nil, fmt.Errorf("attribute %d: %w", i, err)
		}
		a := d.newAttribute()
		if err := a.read(sub); err != nil {
			return nil, fmt.Errorf("attribute %d: %w", i, err)
		}
		e.attrs = append(e.attrs, a)
	}
	e.start.data.PutUint16(24, 20)
	e.start.data.PutUint16(26, attributeSize)

	return e, nil
}

// Name returns the element name.
func (e *Element) Name() string { return stringOf(e.name) }

// Namespace returns the element namespace URI, empty when unqualified.
func (e *Element) Namespace() string { return stringOf(e.ns) }

// SetName renames the element.
func (e *Element) SetName(name string) error { return e.name.SetKey(key.StringKey(name)) }

// Line implements Node.
func (e *Element) Line() uint32 { return e.start.line() }

// Attributes returns the attributes in file order.
func (e *Element) Attributes() []*Attribute { return e.attrs }

// Attribute returns the attribute bound to resource id.
func (e *Element) Attribute(id uint32) (*Attribute, bool) {
	for _, a := range e.attrs {
		if a.ResourceID() == id {
			return a, true
		}
	}

	return nil, false
}

// AttributeByName returns the first attribute named name, qualified or not.
func (e *Element) AttributeByName(name string) (*Attribute, bool) {
	for _, a := range e.attrs {
		if a.Name() == name {
			return a, true
		}
	}

	return nil, false
}

// AddAttribute adds an attribute holding a null value. Attributes stay sorted
// by resource id; attributes without one follow in insertion order.
func (e *Element) AddAttribute(uri, name string, id uint32) (*Attribute, error) {
	a := e.doc.newAttribute()
	if err := setString(a.ns, uri); err != nil {
		return nil, err
	}
	var k key.Key = key.StringKey(name)
	if id != 0 {
		k = AttrNameKey{Name: name, ID: id}
	}
	if err := a.name.SetKey(k); err != nil {
		return nil, err
	}

	pos := len(e.attrs)
	if id != 0 {
		pos = 0
		for pos < len(e.attrs) {
			other := e.attrs[pos].ResourceID()
			if other == 0 || other > id {
				break
			}
			pos++
		}
	}
	e.attrs = slices.Insert(e.attrs, pos, a)

	return a, nil
}

// RemoveAttribute deletes a from the element.
func (e *Element) RemoveAttribute(a *Attribute) bool {
	i := slices.Index(e.attrs, a)
	if i < 0 {
		return false
	}
	e.attrs = slices.Delete(e.attrs, i, i+1)

	return true
}

// Children returns the child nodes.
func (e *Element) Children() []Node { return e.children }

// Elements returns the child elements.
func (e *Element) Elements() []*Element {
	var out []*Element
	for _, c := range e.children {
		if el, ok := c.(*Element); ok {
			out = append(out, el)
		}
	}

	return out
}

// Child returns the first child element named name.
func (e *Element) Child(name string) (*Element, bool) {
	for _, el := range e.Elements() {
		if el.Name() == name {
			return el, true
		}
	}

	return nil, false
}

// AddChild appends n to the children.
func (e *Element) AddChild(n Node) {
	e.children = append(e.children, n)
}

// AddElement creates and appends a child element.
func (e *Element) AddElement(name string) (*Element, error) {
	child, err := e.doc.NewElement("", name)
	if err != nil {
		return nil, err
	}
	e.children = append(e.children, child)

	return child, nil
}

// RemoveNode deletes the direct child n.
func (e *Element) RemoveNode(n Node) bool {
	return removeChild(&e.children, n)
}

func (e *Element) edges(yield func(ref.Edge) bool) bool {
	for _, r := range []ref.Edge{e.start.comment, e.end.comment, e.ns, e.name} {
		if !yield(r) {
			return false
		}
	}
	for _, a := range e.attrs {
		if !a.edges(yield) {
			return false
		}
	}

	return childEdges(e.children, yield)
}

func (e *Element) refresh() {
	d := e.start.data
	putChunkHeader(d, ChunkXMLStartElement, nodeHeaderSize, elementStartSize+attributeSize*len(e.attrs))
	d.PutUint16(28, uint16(len(e.attrs)))
	var id, class, style int
	for i, a := range e.attrs {
		switch {
		case a.ResourceID() == attrID:
			id = i + 1
		case a.Namespace() == "" && a.Name() == "class":
			class = i + 1
		case a.Namespace() == "" && a.Name() == "style":
			style = i + 1
		}
	}
	d.PutUint16(30, uint16(id))
	d.PutUint16(32, uint16(class))
	d.PutUint16(34, uint16(style))
	copy(e.end.data.Data()[nodeHeaderSize:], d.Data()[nodeHeaderSize:nodeHeaderSize+8])
	for _, c := range e.children {
		c.refresh()
	}
}

// CountBytes implements block.Block.
func (e *Element) CountBytes() int {
	return elementStartSize + attributeSize*len(e.attrs) + childrenSize(e.children) + elementEndSize
}

// CountUpTo implements block.Block.
func (e *Element) CountUpTo(c *block.Counter) {
	if c.Enter(e) {
		return
	}
	c.Add(elementStartSize + attributeSize*len(e.attrs))
	countChildren(c, e.children)
	c.Add(elementEndSize)
}

// WriteBytes implements block.Block.
func (e *Element) WriteBytes(w *block.Writer) error {
	if err := e.start.data.WriteBytes(w); err != nil {
		return err
	}
	for _, a := range e.attrs {
		if err := a.data.WriteBytes(w); err != nil {
			return err
		}
		if err := a.value.WriteBytes(w); err != nil {
			return err
		}
	}
	if err := writeChildren(w, e.children); err != nil {
		return err
	}

	return e.end.data.WriteBytes(w)
}

func (e *Element) appendText(w *textfmt.Writer, prefixes map[string]string) {
	parts := []string{e.qualified(prefixes)}
	for _, a := range e.attrs {
		parts = append(parts, a.format(prefixes))
	}
	if len(e.children) == 0 {
		w.Line("<%s/>", strings.Join(parts, " "))
		return
	}
	w.Line("<%s>", strings.Join(parts, " "))
	w.Indent()
	for _, c := range e.children {
		c.appendText(w, prefixes)
	}
	w.Dedent()
	w.Line("</%s>", e.qualified(prefixes))
}

func (e *Element) qualified(prefixes map[string]string) string {
	if p, ok := prefixes[e.Namespace()]; ok && e.Namespace() != "" {
		return p + ":" + e.Name()
	}

	return e.Name()
}

// CData is a text node.
type CData struct {
	head  nodeChunk
	text  *ref.Reference[*PoolString]
	value *Value
}

func (d *Document) newCData() *CData {
	pool := d.pool.Section()
	c := &CData{head: newNodeChunk(ChunkXMLCData, cdataHeaderSize, pool), value: newValue(pool)}
	putChunkHeader(c.head.data, ChunkXMLCData, nodeHeaderSize, cdataHeaderSize+valueSize)
	c.text = c.head.index(16, pool, false)

	return c
}

// NewCData creates a detached text node.
func (d *Document) NewCData(text string) (*CData, error) {
	c := d.newCData()
	if err := c.SetText(text); err != nil {
		return nil, err
	}

	return c, nil
}

// Text returns the text.
func (c *CData) Text() string { return stringOf(c.text) }

// SetText replaces the text.
func (c *CData) SetText(s string) error {
	if err := c.text.SetKey(key.StringKey(s)); err != nil {
		return err
	}

	return c.value.SetString(s)
}

// Line implements Node.
func (c *CData) Line() uint32 { return c.head.line() }

func (c *CData) edges(yield func(ref.Edge) bool) bool {
	if !yield(c.head.comment) || !yield(c.text) {
		return false
	}

	return c.value.edges(yield)
}

func (c *CData) refresh() {}

// CountBytes implements block.Block.
func (c *CData) CountBytes() int { return cdataHeaderSize + valueSize }

// CountUpTo implements block.Block.
func (c *CData) CountUpTo(cnt *block.Counter) { countLeaf(cnt, c) }

// WriteBytes implements block.Block.
func (c *CData) WriteBytes(w *block.Writer) error {
	if err := c.head.data.WriteBytes(w); err != nil {
		return err
	}

	return c.value.WriteBytes(w)
}

func (c *CData) appendText(w *textfmt.Writer, _ map[string]string) {
	w.Line("%s", textfmt.Quote(c.Text()))
}

func childEdges(children []Node, yield func(ref.Edge) bool) bool {
	for _, c := range children {
		if !c.edges(yield) {
			return false
		}
	}

	return true
}

func childrenSize(children []Node) int {
	n := 0
	for _, c := range children {
		n += c.CountBytes()
	}

	return n
}

func countChildren(c *block.Counter, children []Node) {
	for _, n := range children {
		if c.Found() {
			return
		}
		n.CountUpTo(c)
	}
}

func writeChildren(w *block.Writer, children []Node) error {
	for _, c := range children {
		if err := c.WriteBytes(w); err != nil {
			return err
		}
	}

	return nil
}

func removeChild(children *[]Node, n Node) bool {
	i := slices.Index(*children, n)
	if i < 0 {
		return false
	}
	*children = slices.Delete(*children, i, i+1)

	return true
}

// Document is a compiled binary XML file such as AndroidManifest.xml.
type Document struct {
	header *block.Bytes
	pool   *StringPool
	nodes  []Node
}

var _ block.Block = (*Document)(nil)

// NewDocument creates an empty document with a UTF-16 pool.
func NewDocument() *Document {
	d := &Document{header: block.NewBytes(xmlHeaderSize), pool: NewStringPool("xml_strings", false)}
	d.Refresh()

	return d
}

// ParseXML loads a binary XML document.
//
// Returns:
//   - *Document: the loaded document
//   - error: errs.ErrInvalidChunk for unknown or unbalanced node chunks,
//     errs.ErrTruncated for short input
func ParseXML(data []byte) (*Document, error) {
	r := block.NewReader(data)
	h, sub, err := expectChunk(r, ChunkXML)
	if err != nil {
		return nil, fmt.Errorf("xml: %w", err)
	}
	d := &Document{header: block.NewBytes(xmlHeaderSize)}
	if err := d.header.ReadBytes(sub); err != nil {
		return nil, err
	}
	if err := sub.Seek(h.headerSize); err != nil {
		return nil, err
	}
	if d.pool, err = readStringPool("xml_strings", sub); err != nil {
		return nil, err
	}

	var stack []Node
	attach := func(n Node) {
		if len(stack) == 0 {
			d.nodes = append(d.nodes, n)
			return
		}
		switch p := stack[len(stack)-1].(type) {
		case *Namespace:
			p.children = append(p.children, n)
		case *Element:
			p.children = append(p.children, n)
		}
	}

	for sub.Available() > 0 {
		pos := sub.Position()
		ch, err := peekChunk(sub)
		if err != nil {
			return nil, fmt.Errorf("xml chunk at 0x%x: %w", pos, err)
		}
		switch ch.typ {
		case ChunkXMLResourceMap:
			err = d.readResourceMap(sub)
		case ChunkXMLStartNamespace:
			ns := d.newNamespace()
			if _, err = readNodeChunk(sub, ns.start, ChunkXMLStartNamespace); err == nil {
				ns.prefix.Invalidate()
				ns.uri.Invalidate()
				attach(ns)
				stack = append(stack, ns)
			}
		case ChunkXMLEndNamespace:
			ns, ok := top[*Namespace](stack)
			if !ok {
				err = fmt.Errorf("%w: unbalanced namespace end", errs.ErrInvalidChunk)
				break
			}
			_, err = readNodeChunk(sub, ns.end, ChunkXMLEndNamespace)
			stack = stack[:len(stack)-1]
		case ChunkXMLStartElement:
			var e *Element
			if e, err = d.readElement(sub); err == nil {
				attach(e)
				stack = append(stack, e)
			}
		case ChunkXMLEndElement:
			e, ok := top[*Element](stack)
			if !ok {
				err = fmt.Errorf("%w: unbalanced element end", errs.ErrInvalidChunk)
				break
			}
			_, err = readNodeChunk(sub, e.end, ChunkXMLEndElement)
			stack = stack[:len(stack)-1]
		case ChunkXMLCData:
			c := d.newCData()
			var csub *block.Reader
			if csub, err = readNodeChunk(sub, c.head, ChunkXMLCData); err == nil {
				c.text.Invalidate()
				err = c.value.read(csub)
				attach(c)
			}
		default:
			err = fmt.Errorf("%w: %s in xml", errs.ErrInvalidChunk, ch.typ)
		}
		if err != nil {
			return nil, fmt.Errorf("xml chunk at 0x%x: %w", pos, err)
		}
	}
	if len(stack) > 0 {
		return nil, fmt.Errorf("%w: %d unclosed nodes", errs.ErrInvalidChunk, len(stack))
	}

	for e := range d.edges() {
		e.Pull()
	}

	return d, nil
}

// readNodeChunk reads the fixed part of a node chunk and consumes the whole
// chunk from r.
//
// Returns:
//   - *block.Reader: the chunk, positioned after the fixed part
//   - error: errs.ErrInvalidChunk or errs.ErrTruncated
func readNodeChunk(r *block.Reader, c nodeChunk, want ChunkType) (*block.Reader, error) {
	h, err := peekChunk(r)
	if err != nil {
		return nil, err
	}
	sub, err := r.Sub(h.size)
	if err != nil {
		return nil, err
	}

	return sub, c.read(sub, want)
}

func top[T Node](stack []Node) (T, bool) {
	var zero T
	if len(stack) == 0 {
		return zero, false
	}
	n, ok := stack[len(stack)-1].(T)

	return n, ok
}

func (d *Document) readResourceMap(r *block.Reader) error {
	h, sub, err := nextChunk(r)
	if err != nil {
		return err
	}
	if err := sub.Seek(h.headerSize); err != nil {
		return err
	}
	changed := false
	for i := 0; sub.Available() >= 4; i++ {
		id, _ := sub.Uint32()
		s, ok := d.pool.Get(i)
		if !ok {
			break
		}
		if id != 0 {
			s.resID = id
			changed = true
		}
	}
	if changed {
		d.pool.Section().Rehash()
	}

	return nil
}

// Strings returns the document string pool.
func (d *Document) Strings() *StringPool { return d.pool }

// Nodes returns the top-level nodes.
func (d *Document) Nodes() []Node { return d.nodes }

// AddNamespace appends a top-level namespace scope.
func (d *Document) AddNamespace(prefix, uri string) (*Namespace, error) {
	ns := d.newNamespace()
	if err := setString(ns.prefix, prefix); err != nil {
		return nil, err
	}
	if err := setString(ns.uri, uri); err != nil {
		return nil, err
	}
	d.nodes = append(d.nodes, ns)

	return ns, nil
}

// AddElement appends a top-level element.
func (d *Document) AddElement(name string) (*Element, error) {
	e, err := d.NewElement("", name)
	if err != nil {
		return nil, err
	}
	d.nodes = append(d.nodes, e)

	return e, nil
}

// Root returns the first element, looking through namespace scopes.
func (d *Document) Root() (*Element, bool) {
	return firstElement(d.nodes)
}

func firstElement(nodes []Node) (*Element, bool) {
	for _, n := range nodes {
		switch n := n.(type) {
		case *Element:
			return n, true
		case *Namespace:
			if e, ok := firstElement(n.children); ok {
				return e, true
			}
		}
	}

	return nil, false
}

// RemoveNode deletes n wherever it is in the tree.
func (d *Document) RemoveNode(n Node) bool {
	return removeNode(&d.nodes, n)
}

func removeNode(children *[]Node, n Node) bool {
	if removeChild(children, n) {
		return true
	}
	for _, c := range *children {
		switch c := c.(type) {
		case *Namespace:
			if removeNode(&c.children, n) {
				return true
			}
		case *Element:
			if removeNode(&c.children, n) {
				return true
			}
		}
	}

	return false
}

func (d *Document) edges() iter.Seq[ref.Edge] {
	return func(yield func(ref.Edge) bool) {
		childEdges(d.nodes, yield)
	}
}

// RemoveUnusedStrings drops strings no node refers to. The resource map
// shrinks with the attribute names it covered.
//
// Returns:
//   - int: number of removed strings
func (d *Document) RemoveUnusedStrings() int {
	return d.pool.sweep(d.edges())
}

func (d *Document) mappedStrings() int {
	n := 0
	for _, s := range d.pool.Strings() {
		if s.resID == 0 {
			break
		}
		n++
	}

	return n
}

func (d *Document) resourceMapSize() int {
	if n := d.mappedStrings(); n > 0 {
		return chunkHeaderSize + 4*n
	}

	return 0
}

// Refresh reorders the pool so resource-bound names lead, pushes every string
// index and recomputes chunk headers. Bytes calls it.
func (d *Document) Refresh() {
	d.pool.order()
	for e := range d.edges() {
		e.Refresh()
	}
	d.pool.refresh()
	for _, n := range d.nodes {
		n.refresh()
	}
	putChunkHeader(d.header, ChunkXML, xmlHeaderSize, d.CountBytes())
}

// Bytes refreshes and serializes the document.
func (d *Document) Bytes() ([]byte, error) {
	d.Refresh()
	return block.Serialize(d)
}

// CountBytes implements block.Block.
func (d *Document) CountBytes() int {
	return xmlHeaderSize + d.pool.CountBytes() + d.resourceMapSize() + childrenSize(d.nodes)
}

// CountUpTo implements block.Block.
func (d *Document) CountUpTo(c *block.Counter) {
	if c.Enter(d) {
		return
	}
	c.Add(xmlHeaderSize)
	d.pool.CountUpTo(c)
	c.Add(d.resourceMapSize())
	countChildren(c, d.nodes)
}

// WriteBytes implements block.Block.
func (d *Document) WriteBytes(w *block.Writer) error {
	if err := d.header.WriteBytes(w); err != nil {
		return err
	}
	if err := d.pool.WriteBytes(w); err != nil {
		return err
	}
	if size := d.resourceMapSize(); size > 0 {
		w.Uint16(uint16(ChunkXMLResourceMap))
		w.Uint16(chunkHeaderSize)
		w.Uint32(uint32(size))
		for _, s := range d.pool.Strings()[:d.mappedStrings()] {
			w.Uint32(s.resID)
		}
	}

	return writeChildren(w, d.nodes)
}

// AppendText implements textfmt.Appender.
func (d *Document) AppendText(w *textfmt.Writer) error {
	w.Comment("binary xml: %d strings", d.pool.Len())
	prefixes := make(map[string]string)
	collectPrefixes(d.nodes, prefixes)
	for _, n := range d.nodes {
		n.appendText(w, prefixes)
	}

	return nil
}

func collectPrefixes(nodes []Node, into map[string]string) {
	for _, n := range nodes {
		switch n := n.(type) {
		case *Namespace:
			into[n.URI()] = n.Prefix()
			collectPrefixes(n.children, into)
		case *Element:
			collectPrefixes(n.children, into)
		}
	}
}
