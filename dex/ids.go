package dex

import (
	"fmt"

	"github.com/arloliu/apkblock/block"
	"github.com/arloliu/apkblock/errs"
	"github.com/arloliu/apkblock/key"
	"github.com/arloliu/apkblock/ref"
)

// StringData is a string_data_item: UTF-16 length and MUTF-8 bytes.
type StringData struct {
	item
	value string
	raw   []byte
	units int
	set   bool
}

func newStringData(d *Dex) *StringData {
	return &StringData{item: item{dex: d}}
}

// Value returns the decoded string.
func (s *StringData) Value() string {
	return s.value
}

// Key implements section.Item.
func (s *StringData) Key() key.Key {
	if !s.set {
		return nil
	}

	return key.StringKey(s.value)
}

// SetKey implements section.Item.
func (s *StringData) SetKey(k key.Key) error {
	sk, ok := k.(key.StringKey)
	if !ok {
		return invalidKey("string data", k)
	}
	s.value = string(sk)
	s.raw = EncodeMUTF8(s.raw[:0], s.value)
	s.units = UTF16Len(s.value)
	s.set = true

	return nil
}

// CountBytes implements block.Block.
func (s *StringData) CountBytes() int {
	return ulebLen(s.units) + len(s.raw) + 1
}

// CountUpTo implements block.Block.
func (s *StringData) CountUpTo(c *block.Counter) { countLeaf(c, s) }

// WriteBytes implements block.Block.
func (s *StringData) WriteBytes(w *block.Writer) error {
	w.ULEB128(uint32(s.units))
	w.Write(s.raw)
	w.Uint8(0)

	return nil
}

func (s *StringData) read(r *block.Reader) error {
	units, err := r.ULEB128()
	if err != nil {
		return err
	}
	start := r.Position()
	for {
		b, err := r.Uint8()
		if err != nil {
			return fmt.Errorf("unterminated string at 0x%x: %w", start, err)
		}
		if b == 0 {
			break
		}
	}
	end := r.Position() - 1
	if err := r.Seek(start); err != nil {
		return err
	}
	raw, err := r.Read(end - start)
	if err != nil {
		return err
	}
	_ = r.Skip(1)

	value, _, err := DecodeMUTF8(raw)
	if err != nil {
		return fmt.Errorf("string at 0x%x: %w", start, err)
	}
	s.value, s.raw, s.units, s.set = value, raw, int(units), true

	return nil
}

// StringID is a string_id_item: the offset of its string data.
type StringID struct {
	item
	data *block.Bytes
	ref  *ref.Reference[*StringData]
}

func newStringID(d *Dex) *StringID {
	s := &StringID{item: item{dex: d}, data: block.NewBytes(4)}
	s.ref = ref.NewOffset(block.Field(s.data.Field(0, 4)), d.stringData)

	return s
}

// Value returns the string, "" when the data is missing.
func (s *StringID) Value() string {
	if sd, ok := s.ref.Item(); ok {
		return sd.Value()
	}

	return ""
}

// Data returns the string data item.
func (s *StringID) Data() (*StringData, bool) {
	return s.ref.Item()
}

// Key implements section.Item.
func (s *StringID) Key() key.Key {
	return s.ref.Key()
}

// SetKey implements section.Item.
func (s *StringID) SetKey(k key.Key) error {
	if _, ok := k.(key.StringKey); !ok {
		return invalidKey("string id", k)
	}

	return s.ref.SetKey(k)
}

// CountBytes implements block.Block.
func (s *StringID) CountBytes() int { return 4 }

// CountUpTo implements block.Block.
func (s *StringID) CountUpTo(c *block.Counter) { countLeaf(c, s) }

// WriteBytes implements block.Block.
func (s *StringID) WriteBytes(w *block.Writer) error { return s.data.WriteBytes(w) }

func (s *StringID) read(r *block.Reader) error { return s.data.ReadBytes(r) }

func (s *StringID) edges(yield func(ref.Edge) bool) bool {
	return yield(s.ref)
}

// TypeID is a type_id_item: the string index of a descriptor.
type TypeID struct {
	item
	data       *block.Bytes
	descriptor *ref.Reference[*StringID]
}

func newTypeID(d *Dex) *TypeID {
	t := &TypeID{item: item{dex: d}, data: block.NewBytes(4)}
	t.descriptor = ref.NewIndex(block.Field(t.data.Field(0, 4)), d.strings, ref.NoNull)

	return t
}

// Descriptor returns the type descriptor.
func (t *TypeID) Descriptor() key.TypeKey {
	return key.TypeKey(keyOf[key.StringKey](t.descriptor))
}

// Key implements section.Item.
func (t *TypeID) Key() key.Key {
	sk, ok := t.descriptor.Key().(key.StringKey)
	if !ok {
		return nil
	}

	return key.TypeKey(sk)
}

// SetKey implements section.Item.
func (t *TypeID) SetKey(k key.Key) error {
	tk, ok := k.(key.TypeKey)
	if !ok || !tk.Valid() {
		return invalidKey("type id", k)
	}

	return t.descriptor.SetKey(key.StringKey(tk))
}

// CountBytes implements block.Block.
func (t *TypeID) CountBytes() int { return 4 }

// CountUpTo implements block.Block.
func (t *TypeID) CountUpTo(c *block.Counter) { countLeaf(c, t) }

// WriteBytes implements block.Block.
func (t *TypeID) WriteBytes(w *block.Writer) error { return t.data.WriteBytes(w) }

func (t *TypeID) read(r *block.Reader) error { return t.data.ReadBytes(r) }

func (t *TypeID) edges(yield func(ref.Edge) bool) bool {
	return yield(t.descriptor)
}

// TypeList is a type_list: a u32 count and u16 type indexes.
type TypeList struct {
	item
	data  *block.Bytes
	types []*ref.Reference[*TypeID]
}

func newTypeList(d *Dex) *TypeList {
	return &TypeList{item: item{dex: d}, data: block.NewBytes(4)}
}

func (l *TypeList) resize(n int) {
	l.data.SetSize(4 + 2*n)
	l.data.PutUint32(0, uint32(n))
	l.types = l.types[:0]
	for i := range n {
		l.types = append(l.types, ref.NewIndex(block.Field(l.data.Field(4+2*i, 2)), l.dex.types, ref.NoNull))
	}
}

// Len returns the number of types.
func (l *TypeList) Len() int {
	return len(l.types)
}

// Types returns the type keys in order.
func (l *TypeList) Types() key.TypeListKey {
	out := make(key.TypeListKey, 0, len(l.types))
	for _, t := range l.types {
		out = append(out, keyOf[key.TypeKey](t))
	}

	return out
}

// Key implements section.Item.
func (l *TypeList) Key() key.Key {
	if len(l.types) == 0 {
		return nil
	}
	out := make(key.TypeListKey, 0, len(l.types))
	for _, t := range l.types {
		tk, ok := t.Key().(key.TypeKey)
		if !ok {
			return nil
		}
		out = append(out, tk)
	}

	return out
}

// SetKey implements section.Item. Empty lists are not stored; referrers hold a
// zero offset instead.
func (l *TypeList) SetKey(k key.Key) error {
	tl, ok := k.(key.TypeListKey)
	if !ok || len(tl) == 0 {
		return invalidKey("type list", k)
	}
	for _, t := range tl {
		if !t.Valid() {
			return invalidKey("type list", k)
		}
	}
	l.resize(len(tl))
	for i, t := range tl {
		if err := l.types[i].SetKey(t); err != nil {
			return err
		}
	}

	return nil
}

// Alignment implements block.Aligned.
func (l *TypeList) Alignment() int { return 4 }

// CountBytes implements block.Block.
func (l *TypeList) CountBytes() int { return l.data.CountBytes() }

// CountUpTo implements block.Block.
func (l *TypeList) CountUpTo(c *block.Counter) { countLeaf(c, l) }

// WriteBytes implements block.Block.
func (l *TypeList) WriteBytes(w *block.Writer) error { return l.data.WriteBytes(w) }

func (l *TypeList) read(r *block.Reader) error {
	n, err := r.Uint32()
	if err != nil {
		return err
	}
	if int(n) > r.Available()/2 {
		return fmt.Errorf("%w: type list of %d entries", errs.ErrTruncated, n)
	}
	l.resize(int(n))

	return r.ReadFull(l.data.Data()[4:])
}

func (l *TypeList) edges(yield func(ref.Edge) bool) bool {
	for _, t := range l.types {
		if !yield(t) {
			return false
		}
	}

	return true
}

// ProtoID is a proto_id_item: shorty, return type and parameter list.
type ProtoID struct {
	item
	data       *block.Bytes
	shorty     *ref.Reference[*StringID]
	returnType *ref.Reference[*TypeID]
	params     *ref.Reference[*TypeList]
}

func newProtoID(d *Dex) *ProtoID {
	p := &ProtoID{item: item{dex: d}, data: block.NewBytes(12)}
	p.shorty = ref.NewIndex(block.Field(p.data.Field(0, 4)), d.strings, ref.NoNull)
	p.returnType = ref.NewIndex(block.Field(p.data.Field(4, 4)), d.types, ref.NoNull)
	p.params = ref.NewOffset(block.Field(p.data.Field(8, 4)), d.typeLists)

	return p
}

// Shorty returns the shorty descriptor.
func (p *ProtoID) Shorty() string {
	return string(keyOf[key.StringKey](p.shorty))
}

// ReturnType returns the return type.
func (p *ProtoID) ReturnType() key.TypeKey {
	return keyOf[key.TypeKey](p.returnType)
}

// Parameters returns the parameter types.
func (p *ProtoID) Parameters() key.TypeListKey {
	if tl, ok := p.params.Item(); ok {
		return tl.Types()
	}

	return nil
}

// Proto returns the prototype key.
func (p *ProtoID) Proto() key.ProtoKey {
	return key.ProtoKey{Return: p.ReturnType(), Params: p.Parameters()}
}

// Key implements section.Item.
func (p *ProtoID) Key() key.Key {
	if p.returnType.Key() == nil {
		return nil
	}

	return p.Proto()
}

// SetKey implements section.Item.
func (p *ProtoID) SetKey(k key.Key) error {
	pk, ok := k.(key.ProtoKey)
	if !ok || !pk.Return.Valid() {
		return invalidKey("proto id", k)
	}
	for _, t := range pk.Params {
		if !t.Valid() || t == "V" {
			return invalidKey("proto id", k)
		}
	}
	if err := p.shorty.SetKey(key.StringKey(pk.Shorty())); err != nil {
		return err
	}
	if err := p.returnType.SetKey(pk.Return); err != nil {
		return err
	}
	if len(pk.Params) == 0 {
		p.params.Clear()
		return nil
	}

	return p.params.SetKey(pk.Params)
}

// CountBytes implements block.Block.
func (p *ProtoID) CountBytes() int { return 12 }

// CountUpTo implements block.Block.
func (p *ProtoID) CountUpTo(c *block.Counter) { countLeaf(c, p) }

// WriteBytes implements block.Block.
func (p *ProtoID) WriteBytes(w *block.Writer) error { return p.data.WriteBytes(w) }

func (p *ProtoID) read(r *block.Reader) error { return p.data.ReadBytes(r) }

func (p *ProtoID) edges(yield func(ref.Edge) bool) bool {
	return yield(p.shorty) && yield(p.returnType) && yield(p.params)
}

// FieldID is a field_id_item: defining class, type and name.
type FieldID struct {
	item
	data      *block.Bytes
	defining  *ref.Reference[*TypeID]
	fieldType *ref.Reference[*TypeID]
	name      *ref.Reference[*StringID]
}

func newFieldID(d *Dex) *FieldID {
	f := &FieldID{item: item{dex: d}, data: block.NewBytes(8)}
	f.defining = ref.NewIndex(block.Field(f.data.Field(0, 2)), d.types, ref.NoNull)
	f.fieldType = ref.NewIndex(block.Field(f.data.Field(2, 2)), d.types, ref.NoNull)
	f.name = ref.NewIndex(block.Field(f.data.Field(4, 4)), d.strings, ref.NoNull)

	return f
}

// Field returns the field key.
func (f *FieldID) Field() key.FieldKey {
	return key.FieldKey{
		Defining: keyOf[key.TypeKey](f.defining),
		Name:     keyOf[key.StringKey](f.name),
		Type:     keyOf[key.TypeKey](f.fieldType),
	}
}

// DefinitionIndex implements directory.Definition.
func (f *FieldID) DefinitionIndex() int { return f.Index() }

// Key implements section.Item.
func (f *FieldID) Key() key.Key {
	if f.defining.Key() == nil || f.name.Key() == nil || f.fieldType.Key() == nil {
		return nil
	}

	return f.Field()
}

// SetKey implements section.Item.
func (f *FieldID) SetKey(k key.Key) error {
	fk, ok := k.(key.FieldKey)
	if !ok || !fk.Defining.Valid() || !fk.Type.Valid() || fk.Name == "" {
		return invalidKey("field id", k)
	}
	if err := f.defining.SetKey(fk.Defining); err != nil {
		return err
	}
	if err := f.fieldType.SetKey(fk.Type); err != nil {
		return err
	}

	return f.name.SetKey(fk.Name)
}

// CountBytes implements block.Block.
func (f *FieldID) CountBytes() int { return 8 }

// CountUpTo implements block.Block.
func (f *FieldID) CountUpTo(c *block.Counter) { countLeaf(c, f) }

// WriteBytes implements block.Block.
func (f *FieldID) WriteBytes(w *block.Writer) error { return f.data.WriteBytes(w) }

func (f *FieldID) read(r *block.Reader) error { return f.data.ReadBytes(r) }

func (f *FieldID) edges(yield func(ref.Edge) bool) bool {
	return yield(f.defining) && yield(f.fieldType) && yield(f.name)
}

// MethodID is a method_id_item: defining class, prototype and name.
type MethodID struct {
	item
	data     *block.Bytes
	defining *ref.Reference[*TypeID]
	proto    *ref.Reference[*ProtoID]
	name     *ref.Reference[*StringID]
}

func newMethodID(d *Dex) *MethodID {
	m := &MethodID{item: item{dex: d}, data: block.NewBytes(8)}
	m.defining = ref.NewIndex(block.Field(m.data.Field(0, 2)), d.types, ref.NoNull)
	m.proto = ref.NewIndex(block.Field(m.data.Field(2, 2)), d.protos, ref.NoNull)
	m.name = ref.NewIndex(block.Field(m.data.Field(4, 4)), d.strings, ref.NoNull)

	return m
}

// Method returns the method key.
func (m *MethodID) Method() key.MethodKey {
	mk := key.MethodKey{
		Defining: keyOf[key.TypeKey](m.defining),
		Name:     keyOf[key.StringKey](m.name),
	}
	if p, ok := m.proto.Item(); ok {
		mk.Proto = p.Proto()
	}

	return mk
}

// ParameterCount returns the number of declared parameters.
func (m *MethodID) ParameterCount() int {
	if p, ok := m.proto.Item(); ok {
		return len(p.Parameters())
	}

	return 0
}

// DefinitionIndex implements directory.Definition.
func (m *MethodID) DefinitionIndex() int { return m.Index() }

// Key implements section.Item.
func (m *MethodID) Key() key.Key {
	if m.defining.Key() == nil || m.name.Key() == nil || m.proto.Key() == nil {
		return nil
	}

	return m.Method()
}

// SetKey implements section.Item.
func (m *MethodID) SetKey(k key.Key) error {
	mk, ok := k.(key.MethodKey)
	if !ok || !mk.Defining.Valid() || mk.Name == "" || !mk.Proto.Return.Valid() {
		return invalidKey("method id", k)
	}
	if err := m.defining.SetKey(mk.Defining); err != nil {
		return err
	}
	if err := m.proto.SetKey(mk.Proto); err != nil {
		return err
	}

	return m.name.SetKey(mk.Name)
}

// CountBytes implements block.Block.
func (m *MethodID) CountBytes() int { return 8 }

// CountUpTo implements block.Block.
func (m *MethodID) CountUpTo(c *block.Counter) { countLeaf(c, m) }

// WriteBytes implements block.Block.
func (m *MethodID) WriteBytes(w *block.Writer) error { return m.data.WriteBytes(w) }

func (m *MethodID) read(r *block.Reader) error { return m.data.ReadBytes(r) }

func (m *MethodID) edges(yield func(ref.Edge) bool) bool {
	return yield(m.defining) && yield(m.proto) && yield(m.name)
}
