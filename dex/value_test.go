package dex

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/arloliu/apkblock/block"
	"github.com/arloliu/apkblock/errs"
	"github.com/arloliu/apkblock/key"
)

func encodeValue(t *testing.T, v Value) []byte {
	t.Helper()
	w := block.NewWriter(16)
	v.write(w)
	out := append([]byte(nil), w.Bytes()...)
	w.Release()
	require.Len(t, out, v.size())

	return out
}

func TestPrimitive_MinimalEncoding(t *testing.T) {
	d := New()
	tests := []struct {
		name string
		key  ValueKey
		want []byte
	}{
		{"int zero", IntValue(0), []byte{0x04, 0x00}},
		{"int minus one", IntValue(-1), []byte{0x04, 0xff}},
		{"int 127", IntValue(127), []byte{0x04, 0x7f}},
		{"int 128", IntValue(128), []byte{0x24, 0x80, 0x00}},
		{"int min", IntValue(math.MinInt32), []byte{0x64, 0x00, 0x00, 0x00, 0x80}},
		{"long -5", LongValue(-5), []byte{0x06, 0xfb}},
		{"char", ValueKey{Type: ValueChar, Inner: PrimitiveKey(0x20ac)}, []byte{0x23, 0xac, 0x20}},
		{"byte", ValueKey{Type: ValueByte, Inner: PrimitiveKey(0xff)}, []byte{0x00, 0xff}},
		{"float one", ValueKey{Type: ValueFloat, Inner: PrimitiveKey(math.Float32bits(1))}, []byte{0x30, 0x80, 0x3f}},
		{"double two", ValueKey{Type: ValueDouble, Inner: PrimitiveKey(math.Float64bits(2))}, []byte{0x11, 0x40}},
		{"true", BoolValue(true), []byte{0x3f}},
		{"false", BoolValue(false), []byte{0x1f}},
		{"null", NullValue(), []byte{0x1e}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := d.NewValue(tt.key)
			require.NoError(t, err)
			out := encodeValue(t, v)
			require.Equal(t, tt.want, out)

			back, err := d.readValue(block.NewReader(out), 0)
			require.NoError(t, err)
			require.Equal(t, v.Key().String(), back.Key().String())
		})
	}
}

func TestPrimitive_SignExtension(t *testing.T) {
	d := New()
	v, err := d.NewValue(ValueKey{Type: ValueShort, Inner: PrimitiveKey(0xffff)})
	require.NoError(t, err)
	require.Equal(t, int64(-1), v.(*Primitive).Int())
	require.Equal(t, []byte{0x02, 0xff}, encodeValue(t, v))
}

func TestIndexValue_CreatesTargets(t *testing.T) {
	d := New()
	m := key.MethodKey{Defining: "Lcom/example/Foo;", Name: "go", Proto: key.ProtoKey{Return: "V"}}
	v, err := d.NewValue(MethodValue(m))
	require.NoError(t, err)

	mid, ok := d.Methods().Lookup(m)
	require.True(t, ok)
	target, ok := v.(*IndexValue[*MethodID]).Target()
	require.True(t, ok)
	require.Equal(t, mid, target)
	require.Equal(t, MethodValue(m).String(), v.Key().String())
}

func TestReadValue_Errors(t *testing.T) {
	d := New()
	tests := []struct {
		name string
		data []byte
		err  error
	}{
		{"method handle", []byte{0x16, 0x00}, errs.ErrUnsupported},
		{"unknown type", []byte{0x05}, errs.ErrMalformedInput},
		{"arg too large", []byte{0xe4, 0, 0, 0, 0, 0, 0, 0, 0}, errs.ErrMalformedInput},
		{"truncated", []byte{0x64, 0x00}, errs.ErrTruncated},
		{"huge array", []byte{0x1c, 0xff, 0xff, 0x03}, errs.ErrTruncated},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := d.readValue(block.NewReader(tt.data), 0)
			require.ErrorIs(t, err, tt.err)
		})
	}
}

func TestReadValue_DepthLimit(t *testing.T) {
	data := make([]byte, 0, 2*(maxValueDepth+2)+2)
	for range maxValueDepth + 2 {
		data = append(data, 0x1c, 0x01)
	}
	data = append(data, 0x1e)

	_, err := New().readValue(block.NewReader(data), 0)
	require.ErrorIs(t, err, errs.ErrMalformedInput)
}

func TestNewValue_InvalidKeys(t *testing.T) {
	d := New()
	_, err := d.NewValue(ValueKey{Type: ValueInt, Inner: key.StringKey("x")})
	require.ErrorIs(t, err, errs.ErrInvalidKey)
	_, err = d.NewValue(ValueKey{Type: ValueBoolean, Inner: PrimitiveKey(2)})
	require.ErrorIs(t, err, errs.ErrInvalidKey)
	_, err = d.NewValue(ValueKey{Type: ValueString})
	require.ErrorIs(t, err, errs.ErrInvalidKey)
	_, err = d.NewValue(ValueKey{Type: ValueMethodHandle})
	require.ErrorIs(t, err, errs.ErrUnsupported)
}
