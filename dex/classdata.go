package dex

import (
	"fmt"
	"slices"

	"github.com/arloliu/apkblock/block"
	"github.com/arloliu/apkblock/errs"
	"github.com/arloliu/apkblock/key"
	"github.com/arloliu/apkblock/ref"
	"github.com/arloliu/apkblock/textfmt"
)

// EncodedField is one field declaration of a class_data_item.
type EncodedField struct {
	field *ref.Reference[*FieldID]
	flags uint32
}

// Field returns the declared field.
func (f *EncodedField) Field() key.FieldKey {
	if id, ok := f.field.Item(); ok {
		return id.Field()
	}

	return key.FieldKey{}
}

// Flags returns the access flags.
func (f *EncodedField) Flags() uint32 { return f.flags }

// EncodedMethod is one method declaration of a class_data_item. The code item
// is kept as opaque bytes.
type EncodedMethod struct {
	method *ref.Reference[*MethodID]
	code   *ref.Reference[*CodeItem]
	flags  uint32
	gen    *block.Generation
}

// Method returns the declared method.
func (m *EncodedMethod) Method() key.MethodKey {
	if id, ok := m.method.Item(); ok {
		return id.Method()
	}

	return key.MethodKey{}
}

// Flags returns the access flags.
func (m *EncodedMethod) Flags() uint32 { return m.flags }

// Code returns the code item, false for abstract and native methods.
func (m *EncodedMethod) Code() (*CodeItem, bool) { return m.code.Item() }

// SetCode attaches code; nil detaches it.
func (m *EncodedMethod) SetCode(c *CodeItem) {
	m.gen.Touch()
	if c == nil {
		m.code.Clear()
		return
	}
	m.code.SetItem(c)
}

// ClassData is a class_data_item: the fields and methods a class declares.
// Members are stored by index delta, so each list is kept in index order.
type ClassData struct {
	item
	staticFields   []*EncodedField
	instanceFields []*EncodedField
	directMethods  []*EncodedMethod
	virtualMethods []*EncodedMethod
}

func newClassData(d *Dex) *ClassData {
	return &ClassData{item: item{dex: d}}
}

func (c *ClassData) newField(idx int, flags uint32) *EncodedField {
	return &EncodedField{field: ref.NewIndex(block.Field(block.NewInt(idx)), c.dex.fields, ref.NoNull), flags: flags}
}

func (c *ClassData) newMethod(idx int, flags uint32, codeOff int) *EncodedMethod {
	return &EncodedMethod{
		method: ref.NewIndex(block.Field(block.NewInt(idx)), c.dex.methods, ref.NoNull),
		code:   ref.NewOffset(block.Field(block.NewInt(codeOff)), c.dex.codes),
		flags:  flags,
		gen:    &c.dex.gen,
	}
}

// StaticFields returns the static field declarations.
func (c *ClassData) StaticFields() []*EncodedField { return c.staticFields }

// InstanceFields returns the instance field declarations.
func (c *ClassData) InstanceFields() []*EncodedField { return c.instanceFields }

// DirectMethods returns the static, private and constructor methods.
func (c *ClassData) DirectMethods() []*EncodedMethod { return c.directMethods }

// VirtualMethods returns the remaining methods.
func (c *ClassData) VirtualMethods() []*EncodedMethod { return c.virtualMethods }

// IsEmpty reports whether the class declares nothing.
func (c *ClassData) IsEmpty() bool {
	return len(c.staticFields)+len(c.instanceFields)+len(c.directMethods)+len(c.virtualMethods) == 0
}

// Key implements section.Item. Class data is never shared.
func (c *ClassData) Key() key.Key { return nil }

// SetKey implements section.Item.
func (c *ClassData) SetKey(k key.Key) error {
	return invalidKey("class data", k)
}

func (c *ClassData) sortMembers() {
	byField := func(x, y *EncodedField) int { return x.field.Raw() - y.field.Raw() }
	byMethod := func(x, y *EncodedMethod) int { return x.method.Raw() - y.method.Raw() }
	slices.SortStableFunc(c.staticFields, byField)
	slices.SortStableFunc(c.instanceFields, byField)
	slices.SortStableFunc(c.directMethods, byMethod)
	slices.SortStableFunc(c.virtualMethods, byMethod)
}

func fieldsLen(fs []*EncodedField) int {
	n, prev := ulebLen(len(fs)), 0
	for _, f := range fs {
		idx := f.field.Raw()
		n += ulebLen(idx-prev) + ulebLen(int(f.flags))
		prev = idx
	}

	return n
}

func methodsLen(ms []*EncodedMethod) int {
	n, prev := ulebLen(len(ms)), 0
	for _, m := range ms {
		idx := m.method.Raw()
		n += ulebLen(idx-prev) + ulebLen(int(m.flags)) + ulebLen(m.code.Raw())
		prev = idx
	}

	return n
}

// CountBytes implements block.Block.
func (c *ClassData) CountBytes() int {
	return fieldsLen(c.staticFields) + fieldsLen(c.instanceFields) +
		methodsLen(c.directMethods) + methodsLen(c.virtualMethods)
}

// CountUpTo implements block.Block.
func (c *ClassData) CountUpTo(cnt *block.Counter) { countLeaf(cnt, c) }

// WriteBytes implements block.Block. The counts precede all member lists.
func (c *ClassData) WriteBytes(w *block.Writer) error {
	w.ULEB128(uint32(len(c.staticFields)))
	w.ULEB128(uint32(len(c.instanceFields)))
	w.ULEB128(uint32(len(c.directMethods)))
	w.ULEB128(uint32(len(c.virtualMethods)))
	for _, fs := range [][]*EncodedField{c.staticFields, c.instanceFields} {
		prev := 0
		for _, f := range fs {
			idx := f.field.Raw()
			w.ULEB128(uint32(idx - prev))
			w.ULEB128(f.flags)
			prev = idx
		}
	}
	for _, ms := range [][]*EncodedMethod{c.directMethods, c.virtualMethods} {
		prev := 0
		for _, m := range ms {
			idx := m.method.Raw()
			w.ULEB128(uint32(idx - prev))
			w.ULEB128(m.flags)
			w.ULEB128(uint32(m.code.Raw()))
			prev = idx
		}
	}

	return nil
}

func (c *ClassData) read(r *block.Reader) error {
	var counts [4]int
	total := 0
	for i := range counts {
		n, err := r.ULEB128()
		if err != nil {
			return err
		}
		counts[i] = int(n)
		total += int(n)
	}
	// every member takes at least two bytes
	if total > r.Available()/2 {
		return fmt.Errorf("%w: class data with %d members", errs.ErrTruncated, total)
	}

	for i, dst := range []*[]*EncodedField{&c.staticFields, &c.instanceFields} {
		*dst = make([]*EncodedField, 0, counts[i])
		idx := 0
		for range counts[i] {
			diff, err := r.ULEB128()
			if err != nil {
				return err
			}
			flags, err := r.ULEB128()
			if err != nil {
				return err
			}
			idx += int(diff)
			*dst = append(*dst, c.newField(idx, flags))
		}
	}
	for i, dst := range []*[]*EncodedMethod{&c.directMethods, &c.virtualMethods} {
		*dst = make([]*EncodedMethod, 0, counts[2+i])
		idx := 0
		for range counts[2+i] {
			diff, err := r.ULEB128()
			if err != nil {
				return err
			}
			flags, err := r.ULEB128()
			if err != nil {
				return err
			}
			off, err := r.ULEB128()
			if err != nil {
				return err
			}
			idx += int(diff)
			*dst = append(*dst, c.newMethod(idx, flags, int(off)))
		}
	}

	return nil
}

func (c *ClassData) edges(yield func(ref.Edge) bool) bool {
	for _, fs := range [][]*EncodedField{c.staticFields, c.instanceFields} {
		for _, f := range fs {
			if !yield(f.field) {
				return false
			}
		}
	}
	for _, ms := range [][]*EncodedMethod{c.directMethods, c.virtualMethods} {
		for _, m := range ms {
			if !yield(m.method) || !yield(m.code) {
				return false
			}
		}
	}

	return true
}

func (c *ClassData) appendText(w *textfmt.Writer) {
	for _, fs := range [][]*EncodedField{c.staticFields, c.instanceFields} {
		for _, f := range fs {
			w.Line(".field %s", memberHead(f.flags, f.Field().String()))
		}
	}
	for _, ms := range [][]*EncodedMethod{c.directMethods, c.virtualMethods} {
		for _, m := range ms {
			w.Line(".method %s", memberHead(m.flags, m.Method().String()))
			if code, ok := m.Code(); ok {
				w.Indent()
				w.Comment("registers %d, %d code units", code.Registers(), code.InstructionUnits())
				w.Dedent()
			}
			w.Line(".end method")
		}
	}
}

func memberHead(flags uint32, name string) string {
	if access := accessString(flags); access != "" {
		return access + " " + name
	}

	return name
}

// CodeItem is a code_item kept as raw bytes. Only the debug info offset is
// tracked; instructions, try blocks and handlers are copied unchanged and may
// hold identifier indexes.
type CodeItem struct {
	item
	data  *block.Bytes
	debug *ref.Reference[*DebugInfo]
}

// codeHeaderSize is the fixed part of a code_item.
const codeHeaderSize = 16

func newCodeItem(d *Dex) *CodeItem {
	c := &CodeItem{item: item{dex: d}, data: block.NewBytes(codeHeaderSize)}
	c.debug = ref.NewOffset(block.Field(c.data.Field(8, 4)), d.debugInfos)

	return c
}

// NewCodeItem adds a code item decoded from raw code_item bytes. The debug
// info offset of raw must be 0.
//
// Returns:
//   - *CodeItem: the new item
//   - error: errs.ErrMalformedInput when raw is not exactly one code item
func (d *Dex) NewCodeItem(raw []byte) (*CodeItem, error) {
	r := block.NewReader(raw)
	n, err := codeItemLen(r)
	if err != nil {
		return nil, err
	}
	if n != len(raw) {
		return nil, fmt.Errorf("%w: %d trailing bytes after code item", errs.ErrMalformedInput, len(raw)-n)
	}
	if engine.Uint32(raw[8:]) != 0 {
		return nil, fmt.Errorf("%w: code item with debug info offset", errs.ErrMalformedInput)
	}
	c := d.codes.CreateItem()
	c.data.SetSize(n)
	copy(c.data.Data(), raw)

	return c, nil
}

// Registers returns the register count.
func (c *CodeItem) Registers() int { return int(c.data.Uint16(0)) }

// InstructionUnits returns the instruction count in 16-bit units.
func (c *CodeItem) InstructionUnits() int { return int(c.data.Uint32(12)) }

// Tries returns the number of try blocks.
func (c *CodeItem) Tries() int { return int(c.data.Uint16(6)) }

// DebugInfo returns the debug info item.
func (c *CodeItem) DebugInfo() (*DebugInfo, bool) { return c.debug.Item() }

// Key implements section.Item.
func (c *CodeItem) Key() key.Key { return nil }

// SetKey implements section.Item.
func (c *CodeItem) SetKey(k key.Key) error { return invalidKey("code item", k) }

// CountBytes implements block.Block.
func (c *CodeItem) CountBytes() int { return c.data.CountBytes() }

// CountUpTo implements block.Block.
func (c *CodeItem) CountUpTo(cnt *block.Counter) { countLeaf(cnt, c) }

// WriteBytes implements block.Block.
func (c *CodeItem) WriteBytes(w *block.Writer) error { return c.data.WriteBytes(w) }

func (c *CodeItem) read(r *block.Reader) error {
	start := r.Position()
	n, err := codeItemLen(r)
	if err != nil {
		return err
	}
	if err := r.Seek(start); err != nil {
		return err
	}
	c.data.SetSize(n)
	if err := c.data.ReadBytes(r); err != nil {
		return err
	}
	c.debug.Invalidate()

	return nil
}

func (c *CodeItem) edges(yield func(ref.Edge) bool) bool {
	return yield(c.debug)
}

// codeItemLen walks one code_item and returns its size.
func codeItemLen(r *block.Reader) (int, error) {
	start := r.Position()
	hdr, err := r.Read(codeHeaderSize)
	if err != nil {
		return 0, err
	}
	tries := int(engine.Uint16(hdr[6:]))
	units := int(engine.Uint32(hdr[12:]))
	if units > r.Available()/2 {
		return 0, fmt.Errorf("%w: %d code units", errs.ErrTruncated, units)
	}
	if err := r.Skip(2 * units); err != nil {
		return 0, err
	}
	if tries == 0 {
		return r.Position() - start, nil
	}
	if units%2 == 1 {
		if err := r.Skip(2); err != nil {
			return 0, err
		}
	}
	if err := r.Skip(8 * tries); err != nil {
		return 0, err
	}

	handlers, err := r.ULEB128()
	if err != nil {
		return 0, err
	}
	if int(handlers) > r.Available() {
		return 0, fmt.Errorf("%w: %d catch handlers", errs.ErrTruncated, handlers)
	}
	for range handlers {
		size, err := r.SLEB128()
		if err != nil {
			return 0, err
		}
		pairs := int(size)
		if pairs < 0 {
			pairs = -pairs
		}
		if pairs > r.Available()/2 {
			return 0, fmt.Errorf("%w: catch handler of %d pairs", errs.ErrTruncated, pairs)
		}
		for range 2 * pairs {
			if _, err := r.ULEB128(); err != nil {
				return 0, err
			}
		}
		if size <= 0 {
			if _, err := r.ULEB128(); err != nil {
				return 0, err
			}
		}
	}

	return r.Position() - start, nil
}

// DebugInfo is a debug_info_item kept as raw bytes.
type DebugInfo struct {
	item
	data *block.Bytes
}

func newDebugInfo(d *Dex) *DebugInfo {
	return &DebugInfo{item: item{dex: d}, data: block.NewBytes(0)}
}

// Key implements section.Item.
func (i *DebugInfo) Key() key.Key { return nil }

// SetKey implements section.Item.
func (i *DebugInfo) SetKey(k key.Key) error { return invalidKey("debug info", k) }

// CountBytes implements block.Block.
func (i *DebugInfo) CountBytes() int { return i.data.CountBytes() }

// CountUpTo implements block.Block.
func (i *DebugInfo) CountUpTo(cnt *block.Counter) { countLeaf(cnt, i) }

// WriteBytes implements block.Block.
func (i *DebugInfo) WriteBytes(w *block.Writer) error { return i.data.WriteBytes(w) }

func (i *DebugInfo) read(r *block.Reader) error {
	start := r.Position()
	if err := skipDebugInfo(r); err != nil {
		return err
	}
	n := r.Position() - start
	if err := r.Seek(start); err != nil {
		return err
	}
	i.data.SetSize(n)

	return i.data.ReadBytes(r)
}

// Debug info state machine opcodes.
const (
	dbgEndSequence        = 0x00
	dbgAdvancePC          = 0x01
	dbgAdvanceLine        = 0x02
	dbgStartLocal         = 0x03
	dbgStartLocalExtended = 0x04
	dbgEndLocal           = 0x05
	dbgRestartLocal       = 0x06
	dbgSetFile            = 0x09
)

func skipULEB(r *block.Reader, n int) error {
	for range n {
		if _, err := r.ULEB128(); err != nil {
			return err
		}
	}

	return nil
}

// skipDebugInfo walks one debug_info_item up to its end sequence.
func skipDebugInfo(r *block.Reader) error {
	if err := skipULEB(r, 1); err != nil {
		return err
	}
	params, err := r.ULEB128()
	if err != nil {
		return err
	}
	if int(params) > r.Available() {
		return fmt.Errorf("%w: debug info with %d parameters", errs.ErrTruncated, params)
	}
	if err := skipULEB(r, int(params)); err != nil {
		return err
	}

	for {
		op, err := r.Uint8()
		if err != nil {
			return err
		}
		switch op {
		case dbgEndSequence:
			return nil
		case dbgAdvancePC, dbgEndLocal, dbgRestartLocal, dbgSetFile:
			err = skipULEB(r, 1)
		case dbgAdvanceLine:
			_, err = r.SLEB128()
		case dbgStartLocal:
			err = skipULEB(r, 3)
		case dbgStartLocalExtended:
			err = skipULEB(r, 4)
		}
		if err != nil {
			return err
		}
	}
}

// StaticValues is an encoded_array_item holding the initial values of a
// class's static fields.
type StaticValues struct {
	item
	values []Value
}

func newStaticValues(d *Dex) *StaticValues {
	return &StaticValues{item: item{dex: d}}
}

// Values returns the keys of the values in field order.
func (s *StaticValues) Values() []ValueKey {
	out := make([]ValueKey, len(s.values))
	for i, v := range s.values {
		out[i] = v.Key()
	}

	return out
}

// Key implements section.Item.
func (s *StaticValues) Key() key.Key { return nil }

// SetKey implements section.Item.
func (s *StaticValues) SetKey(k key.Key) error { return invalidKey("static values", k) }

// CountBytes implements block.Block.
func (s *StaticValues) CountBytes() int {
	n := ulebLen(len(s.values))
	for _, v := range s.values {
		n += v.size()
	}

	return n
}

// CountUpTo implements block.Block.
func (s *StaticValues) CountUpTo(cnt *block.Counter) { countLeaf(cnt, s) }

// WriteBytes implements block.Block.
func (s *StaticValues) WriteBytes(w *block.Writer) error {
	w.ULEB128(uint32(len(s.values)))
	for _, v := range s.values {
		v.write(w)
	}

	return nil
}

func (s *StaticValues) read(r *block.Reader) error {
	n, err := r.ULEB128()
	if err != nil {
		return err
	}
	if int(n) > r.Available() {
		return fmt.Errorf("%w: %d static values", errs.ErrTruncated, n)
	}
	s.values = make([]Value, 0, n)
	for range n {
		v, err := s.dex.readValue(r, 0)
		if err != nil {
			return err
		}
		s.values = append(s.values, v)
	}

	return nil
}

func (s *StaticValues) edges(yield func(ref.Edge) bool) bool {
	for _, v := range s.values {
		if !v.edges(yield) {
			return false
		}
	}

	return true
}
