package arsc

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/arloliu/apkblock/block"
	"github.com/arloliu/apkblock/errs"
	"github.com/arloliu/apkblock/key"
	"github.com/arloliu/apkblock/ref"
)

func serializePool(t *testing.T, p *StringPool) []byte {
	t.Helper()

	p.refresh()
	out, err := block.Serialize(p)
	require.NoError(t, err)
	require.Len(t, out, p.CountBytes())

	return out
}

func TestStringPool_RoundTrip(t *testing.T) {
	long := strings.Repeat("x", 300)
	texts := []string{"", "plain", "héllo wörld", "emoji \U0001F600", long}

	for _, utf8 := range []bool{true, false} {
		name := "utf16"
		if utf8 {
			name = "utf8"
		}
		t.Run(name, func(t *testing.T) {
			p := NewStringPool("test", utf8)
			for _, s := range texts {
				_, err := p.GetOrCreate(s)
				require.NoError(t, err)
			}
			_, err := p.Section().GetOrCreate(StyledKey{
				Text:  "styled",
				Spans: []SpanKey{{Name: "i", First: 1, Last: 2}, {Name: "b", First: 0, Last: 5}},
			})
			require.NoError(t, err)
			require.True(t, p.order())

			out := serializePool(t, p)
			loaded, err := readStringPool("test", block.NewReader(out))
			require.NoError(t, err)
			require.Equal(t, utf8, loaded.IsUTF8())
			require.Equal(t, p.Len(), loaded.Len())
			for i, s := range p.Strings() {
				got, _ := loaded.Get(i)
				require.Equal(t, s.Text(), got.Text())
				require.True(t, key.Equal(s.Key(), got.Key()), "string %d", i)
			}

			require.Equal(t, out, serializePool(t, loaded))
		})
	}
}

func TestStringPool_LengthPrefixes(t *testing.T) {
	b := encodeUTF8(strings.Repeat("a", 200))
	require.Equal(t, []byte{0x80, 200, 0x80, 200}, b[:4])
	require.Equal(t, byte(0), b[len(b)-1])

	b = encodeUTF8("\U0001F600")
	require.Equal(t, []byte{2, 4}, b[:2])

	b = encodeUTF16("ab")
	require.Equal(t, []byte{2, 0, 'a', 0, 'b', 0, 0, 0}, b)
}

func TestStringPool_DecodeErrors(t *testing.T) {
	tests := []struct {
		name   string
		data   []byte
		decode func(*block.Reader) (string, error)
		want   error
	}{
		{name: "utf8 unterminated", data: []byte{1, 1, 'a', 'b'}, decode: decodeUTF8, want: errs.ErrInvalidString},
		{name: "utf8 invalid", data: []byte{2, 2, 0xff, 0xfe, 0}, decode: decodeUTF8, want: errs.ErrInvalidString},
		{name: "utf8 short", data: []byte{5, 5, 'a'}, decode: decodeUTF8, want: errs.ErrTruncated},
		{name: "utf16 unterminated", data: []byte{1, 0, 'a', 0, 'b', 0}, decode: decodeUTF16, want: errs.ErrInvalidString},
		{name: "utf16 short", data: []byte{4, 0, 'a', 0}, decode: decodeUTF16, want: errs.ErrTruncated},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.decode(block.NewReader(tt.data))
			require.ErrorIs(t, err, tt.want)
		})
	}
}

func TestStringPool_Order(t *testing.T) {
	p := NewStringPool("test", false)
	plain, err := p.GetOrCreate("plain")
	require.NoError(t, err)
	styled, err := p.Section().GetOrCreate(StyledKey{Text: "styled", Spans: []SpanKey{{Name: "b", Last: 1}}})
	require.NoError(t, err)
	attr, err := p.Section().GetOrCreate(AttrNameKey{Name: "name", ID: AttrName})
	require.NoError(t, err)

	require.True(t, p.order())
	require.Equal(t, 0, attr.Index())
	require.Equal(t, 1, styled.Index())
	require.Less(t, styled.Index(), plain.Index())
	require.False(t, p.order())

	p.refresh()
	require.Equal(t, uint32(2), p.header.Uint32(12))
}

func TestPoolString_Keys(t *testing.T) {
	p := NewStringPool("test", true)

	plain, err := p.GetOrCreate("name")
	require.NoError(t, err)
	attr, err := p.Section().GetOrCreate(AttrNameKey{Name: "name", ID: AttrName})
	require.NoError(t, err)
	require.NotSame(t, plain, attr)

	again, err := p.Section().GetOrCreate(AttrNameKey{Name: "name", ID: AttrName})
	require.NoError(t, err)
	require.Same(t, attr, again)

	id, ok := attr.ResourceID()
	require.True(t, ok)
	require.Equal(t, AttrName, id)

	require.ErrorIs(t, plain.SetKey(key.TypeKey("I")), errs.ErrInvalidKey)
	require.ErrorIs(t, plain.SetKey(AttrNameKey{Name: "x"}), errs.ErrInvalidKey)
	require.Equal(t, "name", plain.Text())

	require.NoError(t, p.Section().Rekey(plain, key.StringKey("renamed")))
	_, ok = p.Lookup("renamed")
	require.True(t, ok)
}

func TestStringPool_SweepReleasesSpanNames(t *testing.T) {
	p := NewStringPool("test", true)
	used, err := p.GetOrCreate("used")
	require.NoError(t, err)
	_, err = p.Section().GetOrCreate(StyledKey{Text: "styled", Spans: []SpanKey{{Name: "u", Last: 2}}})
	require.NoError(t, err)

	v := newValue(p.Section())
	v.SetPoolString(used)

	removed := p.sweep(ref.Collect(v.str))
	require.Equal(t, 2, removed)
	require.Equal(t, 1, p.Len())
	require.Equal(t, 0, int(v.Data()))
}
