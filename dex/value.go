package dex

import (
	"fmt"
	"math"

	"github.com/arloliu/apkblock/block"
	"github.com/arloliu/apkblock/endian"
	"github.com/arloliu/apkblock/errs"
	"github.com/arloliu/apkblock/key"
	"github.com/arloliu/apkblock/ref"
	"github.com/arloliu/apkblock/section"
	"github.com/arloliu/apkblock/textfmt"
)

// ValueType is the type code of an encoded_value.
type ValueType uint8

// Encoded value types.
const (
	ValueByte         ValueType = 0x00
	ValueShort        ValueType = 0x02
	ValueChar         ValueType = 0x03
	ValueInt          ValueType = 0x04
	ValueLong         ValueType = 0x06
	ValueFloat        ValueType = 0x10
	ValueDouble       ValueType = 0x11
	ValueMethodType   ValueType = 0x15
	ValueMethodHandle ValueType = 0x16
	ValueString       ValueType = 0x17
	ValueTypeRef      ValueType = 0x18
	ValueField        ValueType = 0x19
	ValueMethod       ValueType = 0x1a
	ValueEnum         ValueType = 0x1b
	ValueArray        ValueType = 0x1c
	ValueAnnotation   ValueType = 0x1d
	ValueNull         ValueType = 0x1e
	ValueBoolean      ValueType = 0x1f
)

var valueTypeNames = map[ValueType]string{
	ValueByte:         "byte",
	ValueShort:        "short",
	ValueChar:         "char",
	ValueInt:          "int",
	ValueLong:         "long",
	ValueFloat:        "float",
	ValueDouble:       "double",
	ValueMethodType:   "method_type",
	ValueMethodHandle: "method_handle",
	ValueString:       "string",
	ValueTypeRef:      "type",
	ValueField:        "field",
	ValueMethod:       "method",
	ValueEnum:         "enum",
	ValueArray:        "array",
	ValueAnnotation:   "annotation",
	ValueNull:         "null",
	ValueBoolean:      "boolean",
}

func (t ValueType) String() string {
	if name, ok := valueTypeNames[t]; ok {
		return name
	}

	return fmt.Sprintf("value_type(0x%02x)", uint8(t))
}

// maxArg returns the largest value_arg allowed for t.
func (t ValueType) maxArg() (int, bool) {
	switch t {
	case ValueByte, ValueNull, ValueArray, ValueAnnotation:
		return 0, true
	case ValueShort, ValueChar, ValueBoolean:
		return 1, true
	case ValueInt, ValueFloat, ValueMethodType, ValueString, ValueTypeRef, ValueField, ValueMethod, ValueEnum:
		return 3, true
	case ValueLong, ValueDouble:
		return 7, true
	default:
		return 0, false
	}
}

// Value is a decoded encoded_value.
type Value interface {
	textfmt.Appender
	Type() ValueType
	Key() ValueKey
	size() int
	write(w *block.Writer)
	edges(yield func(ref.Edge) bool) bool
}

func ulebLen(v int) int {
	return endian.ULEB128Len(uint32(v))
}

func signedLen(v int64) int {
	n := 1
	for n < 8 {
		lim := int64(1) << (8*n - 1)
		if v >= -lim && v < lim {
			break
		}
		n++
	}

	return n
}

func unsignedLen(v uint64) int {
	n := 1
	for n < 8 && v>>(8*n) != 0 {
		n++
	}

	return n
}

// floatLen drops low-order zero bytes of a width-byte float pattern.
func floatLen(bits uint64, width int) int {
	n := width
	for n > 1 && (bits>>(8*(width-n)))&0xff == 0 {
		n--
	}

	return n
}

func writeHeader(w *block.Writer, t ValueType, arg int) {
	w.Uint8(byte(arg<<5) | byte(t))
}

func writeLE(w *block.Writer, v uint64, n int) {
	for i := range n {
		w.Uint8(byte(v >> (8 * i)))
	}
}

func readLE(r *block.Reader, n int) (uint64, error) {
	b, err := r.Read(n)
	if err != nil {
		return 0, err
	}
	var v uint64
	for i, x := range b {
		v |= uint64(x) << (8 * i)
	}

	return v, nil
}

// Primitive is a numeric, boolean or null value. Signed types keep their
// sign-extended bits.
type Primitive struct {
	typ  ValueType
	bits uint64
}

// Type implements Value.
func (p *Primitive) Type() ValueType { return p.typ }

// Bits returns the raw bit pattern.
func (p *Primitive) Bits() uint64 { return p.bits }

// Int returns the value as a signed integer.
func (p *Primitive) Int() int64 { return int64(p.bits) }

// Bool returns a boolean value.
func (p *Primitive) Bool() bool { return p.bits != 0 }

// Key implements Value.
func (p *Primitive) Key() ValueKey {
	if p.typ == ValueNull {
		return ValueKey{Type: ValueNull}
	}

	return ValueKey{Type: p.typ, Inner: PrimitiveKey(p.bits)}
}

func (p *Primitive) payload() int {
	switch p.typ {
	case ValueNull, ValueBoolean:
		return 0
	case ValueByte:
		return 1
	case ValueChar:
		return unsignedLen(p.bits)
	case ValueFloat:
		return floatLen(p.bits, 4)
	case ValueDouble:
		return floatLen(p.bits, 8)
	default:
		return signedLen(int64(p.bits))
	}
}

func (p *Primitive) size() int { return 1 + p.payload() }

func (p *Primitive) write(w *block.Writer) {
	n := p.payload()
	switch p.typ {
	case ValueNull:
		writeHeader(w, p.typ, 0)
	case ValueBoolean:
		writeHeader(w, p.typ, int(p.bits&1))
	case ValueFloat:
		writeHeader(w, p.typ, n-1)
		writeLE(w, p.bits>>(8*(4-n)), n)
	case ValueDouble:
		writeHeader(w, p.typ, n-1)
		writeLE(w, p.bits>>(8*(8-n)), n)
	default:
		writeHeader(w, p.typ, n-1)
		writeLE(w, p.bits, n)
	}
}

func (p *Primitive) edges(func(ref.Edge) bool) bool { return true }

// AppendText implements textfmt.Appender.
func (p *Primitive) AppendText(w *textfmt.Writer) error {
	switch p.typ {
	case ValueNull:
		w.Print("null")
	case ValueBoolean:
		w.Print("%t", p.Bool())
	case ValueByte:
		w.Print("%dt", p.Int())
	case ValueShort:
		w.Print("%ds", p.Int())
	case ValueChar:
		w.Print("%s", quoteChar(rune(p.bits)))
	case ValueInt:
		w.Print("%d", p.Int())
	case ValueLong:
		w.Print("%dL", p.Int())
	case ValueFloat:
		w.Print("%gf", math.Float32frombits(uint32(p.bits)))
	case ValueDouble:
		w.Print("%g", math.Float64frombits(p.bits))
	}

	return nil
}

func quoteChar(r rune) string {
	return fmt.Sprintf("%q", r)
}

// IndexValue is a value naming an identifier: a string, type, field, enum
// constant, method or prototype.
type IndexValue[T section.Node] struct {
	typ ValueType
	raw *block.Int
	ref *ref.Reference[T]
}

func newIndexValue[T section.Node](typ ValueType, pool ref.Pool[T], raw int) *IndexValue[T] {
	v := &IndexValue[T]{typ: typ, raw: block.NewInt(raw)}
	v.ref = ref.NewIndex(block.Field(v.raw), pool, ref.NoNull)

	return v
}

// Type implements Value.
func (v *IndexValue[T]) Type() ValueType { return v.typ }

// Target returns the referenced item.
func (v *IndexValue[T]) Target() (T, bool) { return v.ref.Item() }

// Key implements Value.
func (v *IndexValue[T]) Key() ValueKey {
	return ValueKey{Type: v.typ, Inner: v.ref.Key()}
}

func (v *IndexValue[T]) size() int {
	return 1 + unsignedLen(uint64(v.raw.Get()))
}

func (v *IndexValue[T]) write(w *block.Writer) {
	n := unsignedLen(uint64(v.raw.Get()))
	writeHeader(w, v.typ, n-1)
	writeLE(w, uint64(v.raw.Get()), n)
}

func (v *IndexValue[T]) edges(yield func(ref.Edge) bool) bool {
	return yield(v.ref)
}

// AppendText implements textfmt.Appender.
func (v *IndexValue[T]) AppendText(w *textfmt.Writer) error {
	k := v.ref.Key()
	if k == nil {
		w.Print("<dangling %s %d>", v.typ, v.raw.Get())
		return nil
	}
	switch v.typ {
	case ValueString:
		w.Print("%s", textfmt.Quote(k.String()))
	case ValueEnum:
		w.Print(".enum %s", k)
	default:
		w.Print("%s", k)
	}

	return nil
}

// EncodedArray is an encoded_array value.
type EncodedArray struct {
	values []Value
}

// Type implements Value.
func (a *EncodedArray) Type() ValueType { return ValueArray }

// Values returns the elements.
func (a *EncodedArray) Values() []Value { return a.values }

// Key implements Value.
func (a *EncodedArray) Key() ValueKey {
	elems := make(ArrayKey, len(a.values))
	for i, v := range a.values {
		elems[i] = v.Key()
	}

	return ValueKey{Type: ValueArray, Inner: elems}
}

func (a *EncodedArray) size() int {
	n := 1 + ulebLen(len(a.values))
	for _, v := range a.values {
		n += v.size()
	}

	return n
}

func (a *EncodedArray) write(w *block.Writer) {
	writeHeader(w, ValueArray, 0)
	w.ULEB128(uint32(len(a.values)))
	for _, v := range a.values {
		v.write(w)
	}
}

func (a *EncodedArray) edges(yield func(ref.Edge) bool) bool {
	for _, v := range a.values {
		if !v.edges(yield) {
			return false
		}
	}

	return true
}

// AppendText implements textfmt.Appender.
func (a *EncodedArray) AppendText(w *textfmt.Writer) error {
	if len(a.values) == 0 {
		w.Print("{}")
		return nil
	}
	w.Print("{")
	w.Newline()
	w.Indent()
	for i, v := range a.values {
		if err := v.AppendText(w); err != nil {
			return err
		}
		if i < len(a.values)-1 {
			w.Print(",")
		}
		w.Newline()
	}
	w.Dedent()
	w.Print("}")

	return nil
}

// NestedAnnotation is a nested encoded_annotation value.
type NestedAnnotation struct {
	ann *EncodedAnnotation
}

// Type implements Value.
func (a *NestedAnnotation) Type() ValueType { return ValueAnnotation }

// Annotation returns the nested annotation.
func (a *NestedAnnotation) Annotation() *EncodedAnnotation { return a.ann }

// Key implements Value.
func (a *NestedAnnotation) Key() ValueKey {
	return ValueKey{Type: ValueAnnotation, Inner: a.ann.Key(VisibilityNone)}
}

func (a *NestedAnnotation) size() int { return 1 + a.ann.size() }

func (a *NestedAnnotation) write(w *block.Writer) {
	writeHeader(w, ValueAnnotation, 0)
	a.ann.write(w)
}

func (a *NestedAnnotation) edges(yield func(ref.Edge) bool) bool {
	return a.ann.edges(yield)
}

// AppendText implements textfmt.Appender.
func (a *NestedAnnotation) AppendText(w *textfmt.Writer) error {
	w.Print(".subannotation %s", a.ann.Type())
	w.Newline()
	w.Indent()
	if err := a.ann.appendElements(w); err != nil {
		return err
	}
	w.Dedent()
	w.Print(".end subannotation")

	return nil
}

// readValue decodes one encoded_value.
func (d *Dex) readValue(r *block.Reader, depth int) (Value, error) {
	if depth > maxValueDepth {
		return nil, fmt.Errorf("%w: encoded values nested deeper than %d", errs.ErrMalformedInput, maxValueDepth)
	}
	h, err := r.Uint8()
	if err != nil {
		return nil, err
	}
	typ, arg := ValueType(h&0x1f), int(h>>5)
	limit, known := typ.maxArg()
	if typ == ValueMethodHandle {
		return nil, fmt.Errorf("%w: method handle value", errs.ErrUnsupported)
	}
	if !known {
		return nil, fmt.Errorf("%w: value type 0x%02x", errs.ErrMalformedInput, uint8(typ))
	}
	if arg > limit {
		return nil, fmt.Errorf("%w: value_arg %d for %s", errs.ErrMalformedInput, arg, typ)
	}

	switch typ {
	case ValueNull:
		return &Primitive{typ: typ}, nil
	case ValueBoolean:
		return &Primitive{typ: typ, bits: uint64(arg)}, nil
	case ValueArray:
		n, err := r.ULEB128()
		if err != nil {
			return nil, err
		}
		if int(n) > r.Available() {
			return nil, fmt.Errorf("%w: array of %d values", errs.ErrTruncated, n)
		}
		arr := &EncodedArray{values: make([]Value, 0, n)}
		for range n {
			v, err := d.readValue(r, depth+1)
			if err != nil {
				return nil, err
			}
			arr.values = append(arr.values, v)
		}

		return arr, nil
	case ValueAnnotation:
		ann := d.newEncodedAnnotation()
		if err := ann.read(r, depth+1); err != nil {
			return nil, err
		}

		return &NestedAnnotation{ann: ann}, nil
	}

	n := arg + 1
	u, err := readLE(r, n)
	if err != nil {
		return nil, err
	}
	shift := 64 - 8*n

	switch typ {
	case ValueByte, ValueShort, ValueInt, ValueLong:
		return &Primitive{typ: typ, bits: uint64(int64(u<<shift) >> shift)}, nil
	case ValueChar:
		return &Primitive{typ: typ, bits: u}, nil
	case ValueFloat:
		return &Primitive{typ: typ, bits: u << (8 * (4 - n))}, nil
	case ValueDouble:
		return &Primitive{typ: typ, bits: u << (8 * (8 - n))}, nil
	default:
		return d.indexValue(typ, int(u))
	}
}

const maxValueDepth = 64

func (d *Dex) indexValue(typ ValueType, raw int) (Value, error) {
	switch typ {
	case ValueString:
		return newIndexValue(typ, ref.Pool[*StringID](d.strings), raw), nil
	case ValueTypeRef:
		return newIndexValue(typ, ref.Pool[*TypeID](d.types), raw), nil
	case ValueField, ValueEnum:
		return newIndexValue(typ, ref.Pool[*FieldID](d.fields), raw), nil
	case ValueMethod:
		return newIndexValue(typ, ref.Pool[*MethodID](d.methods), raw), nil
	case ValueMethodType:
		return newIndexValue(typ, ref.Pool[*ProtoID](d.protos), raw), nil
	default:
		return nil, fmt.Errorf("%w: value type %s", errs.ErrUnsupported, typ)
	}
}

// NewValue builds a value from its key, creating referenced identifiers as
// needed.
func (d *Dex) NewValue(k ValueKey) (Value, error) {
	return d.newValue(k, 0)
}

func (d *Dex) newValue(k ValueKey, depth int) (Value, error) {
	if depth > maxValueDepth {
		return nil, fmt.Errorf("%w: value nested deeper than %d", errs.ErrInvalidKey, maxValueDepth)
	}
	switch k.Type {
	case ValueNull:
		return &Primitive{typ: ValueNull}, nil
	case ValueByte, ValueShort, ValueChar, ValueInt, ValueLong, ValueFloat, ValueDouble, ValueBoolean:
		bits, ok := k.Inner.(PrimitiveKey)
		if !ok {
			return nil, invalidKey(k.Type.String()+" value", k)
		}
		if k.Type == ValueBoolean && bits > 1 {
			return nil, invalidKey("boolean value", k)
		}

		return &Primitive{typ: k.Type, bits: normalizeBits(k.Type, uint64(bits))}, nil
	case ValueArray:
		elems, ok := k.Inner.(ArrayKey)
		if !ok {
			return nil, invalidKey("array value", k)
		}
		arr := &EncodedArray{values: make([]Value, 0, len(elems))}
		for _, e := range elems {
			v, err := d.newValue(e, depth+1)
			if err != nil {
				return nil, err
			}
			arr.values = append(arr.values, v)
		}

		return arr, nil
	case ValueAnnotation:
		ak, ok := k.Inner.(AnnotationKey)
		if !ok {
			return nil, invalidKey("annotation value", k)
		}
		ann := d.newEncodedAnnotation()
		if err := ann.setKey(ak, depth+1); err != nil {
			return nil, err
		}

		return &NestedAnnotation{ann: ann}, nil
	case ValueMethodHandle:
		return nil, fmt.Errorf("%w: method handle value", errs.ErrUnsupported)
	}

	if k.Inner == nil {
		return nil, invalidKey(k.Type.String()+" value", k)
	}
	v, err := d.indexValue(k.Type, 0)
	if err != nil {
		return nil, err
	}
	if err := setIndexTarget(v, k.Inner); err != nil {
		return nil, err
	}

	return v, nil
}

// normalizeBits sign-extends or masks b to the width of t.
func normalizeBits(t ValueType, b uint64) uint64 {
	switch t {
	case ValueByte:
		return uint64(int64(int8(b)))
	case ValueShort:
		return uint64(int64(int16(b)))
	case ValueInt:
		return uint64(int64(int32(b)))
	case ValueChar:
		return b & 0xffff
	case ValueFloat:
		return b & 0xffffffff
	default:
		return b
	}
}

func setIndexTarget(v Value, k key.Key) error {
	switch iv := v.(type) {
	case *IndexValue[*StringID]:
		return iv.ref.SetKey(k)
	case *IndexValue[*TypeID]:
		return iv.ref.SetKey(k)
	case *IndexValue[*FieldID]:
		return iv.ref.SetKey(k)
	case *IndexValue[*MethodID]:
		return iv.ref.SetKey(k)
	case *IndexValue[*ProtoID]:
		return iv.ref.SetKey(k)
	default:
		return invalidKey("index value", k)
	}
}
