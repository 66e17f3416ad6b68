package key

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCompareStrings(t *testing.T) {
	tests := []struct {
		name string
		a, b string
		want int
	}{
		{"equal", "abc", "abc", 0},
		{"prefix", "ab", "abc", -1},
		{"ascii", "b", "a", 1},
		{"empty", "", "a", -1},
		// U+10000 encodes as D800 DC00, which sorts before U+FFFD in UTF-16
		{"surrogate before bmp", "\U00010000", "�", -1},
		{"supplementary order", "\U00010001", "\U00010000", 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, CompareStrings(tt.a, tt.b))
		})
	}
}

func TestCompareAbsent(t *testing.T) {
	require.Equal(t, 0, Compare(nil, nil))
	require.Equal(t, -1, Compare(nil, StringKey("a")))
	require.Equal(t, 1, Compare(StringKey("a"), nil))
	require.True(t, Equal(StringKey("a"), StringKey("a")))
	require.Equal(t, -1, StringKey("a").Compare(TypeKey("b")))
}

func TestTypeKey(t *testing.T) {
	require := require.New(t)

	require.True(TypeKey("I").Valid())
	require.True(TypeKey("[[Ljava/lang/String;").Valid())
	require.False(TypeKey("[V").Valid())
	require.False(TypeKey("L;").Valid())
	require.False(TypeKey("II").Valid())

	require.True(TypeKey("V").IsPrimitive())
	require.True(TypeKey("[I").IsArray())
	require.Equal(byte('L'), TypeKey("[I").Shorty())
	require.Equal(byte('J'), TypeKey("J").Shorty())

	require.Equal("java.lang.String[][]", TypeKey("[[Ljava/lang/String;").SourceName())
	require.Equal("int", TypeKey("I").SourceName())
}

func TestParseProto(t *testing.T) {
	require := require.New(t)

	p, err := ParseProto("(I[BLjava/lang/String;)V")
	require.NoError(err)
	require.Equal(TypeKey("V"), p.Return)
	require.Equal(TypeListKey{"I", "[B", "Ljava/lang/String;"}, p.Params)
	require.Equal("VILL", p.Shorty())
	require.Equal("(I[BLjava/lang/String;)V", p.String())

	_, err = ParseProto("I)V")
	require.Error(err)
	_, err = ParseProto("(Q)V")
	require.Error(err)
	_, err = ParseProto("(I)")
	require.Error(err)
}

func TestMethodKey(t *testing.T) {
	require := require.New(t)

	m, err := ParseMethod("Lcom/example/Foo;->bar(IJ)Z")
	require.NoError(err)
	require.Equal(TypeKey("Lcom/example/Foo;"), m.Defining)
	require.Equal(StringKey("bar"), m.Name)
	require.Equal("Lcom/example/Foo;->bar(IJ)Z", m.String())
	require.Equal("Lcom/example/Foo;->baz(IJ)Z", m.WithName("baz").String())

	_, err = ParseMethod("Lcom/example/Foo;bar()V")
	require.Error(err)

	// defining type, then name, then prototype
	a, _ := ParseMethod("LA;->b()V")
	b, _ := ParseMethod("LA;->a(I)V")
	c, _ := ParseMethod("LB;->a()V")
	d, _ := ParseMethod("LA;->b(I)V")
	require.Positive(a.Compare(b))
	require.Negative(a.Compare(c))
	require.Negative(a.Compare(d))
	require.Zero(a.Compare(a))
}

func TestFieldKey(t *testing.T) {
	f, err := ParseField("Lcom/example/Foo;->count:I")
	require.NoError(t, err)
	require.Equal(t, "Lcom/example/Foo;->count:I", f.String())

	g := f
	g.Type = "J"
	require.Negative(t, f.Compare(g))

	_, err = ParseField("Lcom/example/Foo;->count")
	require.Error(t, err)
}

func TestTypeListKey_Compare(t *testing.T) {
	require.Negative(t, TypeListKey{"I"}.Compare(TypeListKey{"I", "J"}))
	require.Positive(t, TypeListKey{"J"}.Compare(TypeListKey{"I", "J"}))
	require.Zero(t, TypeListKey(nil).Compare(TypeListKey{}))

	l, err := ParseTypeList("")
	require.NoError(t, err)
	require.Empty(t, l)
}
