package arsc

import (
	"fmt"
	"math"

	"github.com/arloliu/apkblock/block"
	"github.com/arloliu/apkblock/errs"
	"github.com/arloliu/apkblock/key"
	"github.com/arloliu/apkblock/ref"
	"github.com/arloliu/apkblock/section"
)

const valueSize = 8

// Value is a Res_value: a data type and 32 bits of data. String values refer
// to the owning container's string pool.
type Value struct {
	data *block.Bytes
	str  *ref.Reference[*PoolString]
}

func newValue(strings *section.Section[*PoolString]) *Value {
	data := block.NewBytes(valueSize)
	data.PutUint16(0, valueSize)

	return &Value{data: data, str: ref.NewIndex[*PoolString](data.Field(4, 4), strings, ref.NoNull)}
}

func (v *Value) read(r *block.Reader) error {
	if err := v.data.ReadBytes(r); err != nil {
		return err
	}
	if size := v.data.Uint16(0); size != valueSize {
		return fmt.Errorf("%w: value size %d", errs.ErrInvalidChunk, size)
	}
	v.str.Invalidate()

	return nil
}

// Type returns the data type.
func (v *Value) Type() ValueType {
	return ValueType(v.data.Uint8(3))
}

// Data returns the raw data word.
func (v *Value) Data() uint32 {
	return v.data.Uint32(4)
}

// SetTypeAndData replaces the value with raw data. For TypeString, data is a
// pool index.
func (v *Value) SetTypeAndData(t ValueType, data uint32) {
	v.data.PutUint8(3, uint8(t))
	v.data.PutUint32(4, data)
	v.str.Invalidate()
}

// SetString makes the value a string, adding s to the pool when needed.
func (v *Value) SetString(s string) error {
	if err := v.str.SetKey(key.StringKey(s)); err != nil {
		return err
	}
	v.data.PutUint8(3, uint8(TypeString))

	return nil
}

// SetPoolString makes the value refer to s, which must belong to the pool of
// the value's container.
func (v *Value) SetPoolString(s *PoolString) {
	v.str.SetItem(s)
	v.data.PutUint8(3, uint8(TypeString))
}

// StringValue returns the string of a TypeString value.
//
// Returns:
//   - string: the pool string text
//   - bool: false for other types and for dangling indexes
func (v *Value) StringValue() (string, bool) {
	s, ok := v.PoolString()
	if !ok {
		return "", false
	}

	return s.Text(), true
}

// PoolString returns the pool item of a TypeString value.
func (v *Value) PoolString() (*PoolString, bool) {
	if v.Type() != TypeString {
		return nil, false
	}

	return v.str.Item()
}

// IsNull reports whether the value holds no data.
func (v *Value) IsNull() bool {
	return v.Type() == TypeNull
}

func (v *Value) edges(yield func(ref.Edge) bool) bool {
	if v.Type() != TypeString {
		return true
	}

	return yield(v.str)
}

// Display renders the value for text dumps.
func (v *Value) Display() string {
	d := v.Data()
	switch v.Type() {
	case TypeNull:
		if d == 1 {
			return "@empty"
		}

		return "@null"
	case TypeReference, TypeDynamicReference:
		return fmt.Sprintf("@0x%08x", d)
	case TypeAttribute, TypeDynamicAttribute:
		return fmt.Sprintf("?0x%08x", d)
	case TypeString:
		if s, ok := v.StringValue(); ok {
			return fmt.Sprintf("%q", s)
		}

		return fmt.Sprintf("<string %d>", d)
	case TypeFloat:
		return fmt.Sprintf("%g", math.Float32frombits(d))
	case TypeIntDec:
		return fmt.Sprintf("%d", int32(d))
	case TypeIntBoolean:
		return fmt.Sprintf("%t", d != 0)
	case TypeIntColorARGB8, TypeIntColorRGB8, TypeIntColorARGB4, TypeIntColorRGB4:
		return fmt.Sprintf("#%08x", d)
	default:
		return fmt.Sprintf("%s(0x%08x)", v.Type(), d)
	}
}

// CountBytes implements block.Block.
func (v *Value) CountBytes() int { return valueSize }

// CountUpTo implements block.Block.
func (v *Value) CountUpTo(c *block.Counter) { countLeaf(c, v) }

// WriteBytes implements block.Block.
func (v *Value) WriteBytes(w *block.Writer) error { return v.data.WriteBytes(w) }
