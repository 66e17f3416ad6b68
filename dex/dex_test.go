package dex

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/arloliu/apkblock/block"
	"github.com/arloliu/apkblock/endian"
	"github.com/arloliu/apkblock/errs"
	"github.com/arloliu/apkblock/key"
	"github.com/arloliu/apkblock/textfmt"
)

const fooClass key.TypeKey = "Lcom/example/Foo;"

var (
	barField = key.FieldKey{Defining: fooClass, Name: "bar", Type: "I"}
	runProto = key.ProtoKey{Return: "V", Params: key.TypeListKey{"I", "Ljava/lang/String;"}}
	runMeth  = key.MethodKey{Defining: fooClass, Name: "run", Proto: runProto}
)

func sampleDex(t *testing.T) *Dex {
	t.Helper()

	d := New()
	c, err := d.GetOrCreateClass(fooClass)
	require.NoError(t, err)
	require.NoError(t, c.SetSourceFile("Foo.java"))
	require.NoError(t, c.SetInterfaces(key.TypeListKey{"Ljava/lang/Runnable;"}))

	require.NoError(t, c.AddAnnotation(NewAnnotationKey(VisibilityRuntime, "Lcom/example/Marker;",
		ElementKey{Name: "value", Value: StringValue("hello")},
		ElementKey{Name: "count", Value: IntValue(42)},
		ElementKey{Name: "tags", Value: ArrayValue(TypeValue("Ljava/lang/String;"), LongValue(-5))},
		ElementKey{Name: "mode", Value: EnumValue(key.FieldKey{
			Defining: "Lcom/example/Mode;", Name: "FAST", Type: "Lcom/example/Mode;",
		})},
		ElementKey{Name: "nested", Value: AnnotationValue(NewAnnotationKey(VisibilityNone, "Lcom/example/Inner;",
			ElementKey{Name: "flag", Value: BoolValue(true)},
		))},
	)))
	require.NoError(t, c.AddFieldAnnotation(barField, NewAnnotationKey(VisibilityBuild, "Lcom/example/Keep;")))
	require.NoError(t, c.AddMethodAnnotation(runMeth, NewAnnotationKey(VisibilitySystem, "Ldalvik/annotation/Throws;",
		ElementKey{Name: "value", Value: ArrayValue(TypeValue("Ljava/io/IOException;"))},
	)))
	require.NoError(t, c.AddParameterAnnotation(runMeth, 1, NewAnnotationKey(VisibilityRuntime, "Lcom/example/NonNull;")))

	return d
}

func TestBytes_RoundTrip(t *testing.T) {
	d := sampleDex(t)
	out, err := d.Bytes()
	require.NoError(t, err)
	require.NoError(t, Verify(out))
	require.Equal(t, len(out), d.Header().FileSize())

	parsed, err := Parse(out)
	require.NoError(t, err)
	require.Equal(t, DefaultVersion, parsed.Version())

	again, err := parsed.Bytes()
	require.NoError(t, err)
	require.Equal(t, out, again)

	c, ok := parsed.Class(fooClass)
	require.True(t, ok)
	src, ok := c.SourceFile()
	require.True(t, ok)
	require.Equal(t, "Foo.java", src)
	super, ok := c.Superclass()
	require.True(t, ok)
	require.Equal(t, key.TypeKey("Ljava/lang/Object;"), super)
	require.Equal(t, key.TypeListKey{"Ljava/lang/Runnable;"}, c.Interfaces())

	orig, _ := d.Class(fooClass)
	require.Equal(t, orig.Annotations().String(), c.Annotations().String())
	require.Equal(t, orig.FieldAnnotations(barField).String(), c.FieldAnnotations(barField).String())
	require.Equal(t, orig.MethodAnnotations(runMeth).String(), c.MethodAnnotations(runMeth).String())
	require.Nil(t, c.ParameterAnnotations(runMeth, 0))
	require.Len(t, c.ParameterAnnotations(runMeth, 1), 1)
}

func TestRefresh_Idempotent(t *testing.T) {
	d := sampleDex(t)
	require.True(t, d.Generation().Stale())

	require.NoError(t, d.Refresh())
	require.False(t, d.Generation().Stale())
	first, err := block.Serialize(d)
	require.NoError(t, err)

	require.NoError(t, d.Refresh())
	second, err := block.Serialize(d)
	require.NoError(t, err)
	require.Equal(t, first, second)
}

func TestOffsetOf_MatchesLayout(t *testing.T) {
	d := sampleDex(t)
	require.NoError(t, d.Refresh())

	for _, s := range d.Strings().Items() {
		require.Equal(t, s.Offset(), block.OffsetOf(d, s))
	}
	for _, s := range d.StringData().Items() {
		require.Equal(t, s.Offset(), block.OffsetOf(d, s))
	}
	for _, c := range d.Classes().Items() {
		require.Equal(t, c.Offset(), block.OffsetOf(d, c))
	}
	for _, s := range d.AnnotationSets().Items() {
		require.Equal(t, s.Offset(), block.OffsetOf(d, s))
	}
	for _, dir := range d.Directories().Items() {
		require.Equal(t, dir.Offset(), block.OffsetOf(d, dir))
	}
	require.Equal(t, d.Header().MapOffset(), block.OffsetOf(d, d.mapList))
}

func TestRefresh_CanonicalOrder(t *testing.T) {
	d := sampleDex(t)
	_, err := d.GetOrCreateString("\uffff")
	require.NoError(t, err)
	_, err = d.GetOrCreateString("\U0001F600")
	require.NoError(t, err)
	require.NoError(t, d.Refresh())

	strs := d.Strings().Items()
	for i := 1; i < len(strs); i++ {
		require.Negative(t, key.CompareStrings(strs[i-1].Value(), strs[i].Value()),
			"%q before %q", strs[i-1].Value(), strs[i].Value())
	}
	types := d.Types().Items()
	for i := 1; i < len(types); i++ {
		require.Negative(t, types[i-1].Descriptor().Compare(types[i].Descriptor()))
	}
	for i, s := range strs {
		require.Equal(t, i, s.Index())
	}
}

func TestParse_Errors(t *testing.T) {
	out, err := sampleDex(t).Bytes()
	require.NoError(t, err)

	t.Run("short", func(t *testing.T) {
		_, err := Parse(out[:HeaderSize-1])
		require.ErrorIs(t, err, errs.ErrTruncated)
	})

	t.Run("magic", func(t *testing.T) {
		bad := append([]byte(nil), out...)
		bad[0] = 'x'
		_, err := Parse(bad)
		require.ErrorIs(t, err, errs.ErrInvalidMagic)
	})

	t.Run("reverse endian", func(t *testing.T) {
		bad := append([]byte(nil), out...)
		engine.PutUint32(bad[offEndianTag:], endian.TagReverse)
		_, err := Parse(bad)
		require.ErrorIs(t, err, errs.ErrUnsupported)
	})

	t.Run("class data offset", func(t *testing.T) {
		d, err := Parse(out)
		require.NoError(t, err)
		c := d.Classes().Items()[0]
		bad := append([]byte(nil), out...)
		engine.PutUint32(bad[c.Offset()+24:], 0x70)
		parsed, err := Parse(bad)
		require.NoError(t, err)
		require.ErrorIs(t, parsed.Validate(), errs.ErrDanglingReference)
	})

	t.Run("unmodelled section", func(t *testing.T) {
		bad := append([]byte(nil), out...)
		mapOff := int(engine.Uint32(bad[offMapOff:]))
		n := int(engine.Uint32(bad[mapOff:]))
		for i := range n {
			at := mapOff + 4 + 12*i
			if ItemType(engine.Uint16(bad[at:])) == TypeAnnotationItem {
				engine.PutUint16(bad[at:], uint16(TypeCallSiteIDItem))
			}
		}
		_, err := Parse(bad)
		require.ErrorIs(t, err, errs.ErrUnsupported)
	})

	t.Run("corrupted checksum", func(t *testing.T) {
		bad := append([]byte(nil), out...)
		bad[len(bad)-1] ^= 0xff
		require.ErrorIs(t, Verify(bad), errs.ErrMalformedInput)
	})
}

func TestRemoveUnusedStrings(t *testing.T) {
	d := sampleDex(t)
	_, err := d.GetOrCreateString("orphan")
	require.NoError(t, err)
	before := d.Strings().Len()

	n, err := d.RemoveUnusedStrings()
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.Equal(t, before-1, d.Strings().Len())
	require.Equal(t, d.Strings().Len(), d.StringData().Len())
	_, ok := d.Strings().Lookup(key.StringKey("orphan"))
	require.False(t, ok)

	out, err := d.Bytes()
	require.NoError(t, err)
	parsed, err := Parse(out)
	require.NoError(t, err)
	require.Equal(t, d.Strings().Len(), parsed.Strings().Len())
	n, err = parsed.RemoveUnusedStrings()
	require.NoError(t, err)
	require.Zero(t, n)
}

// requireSameClass compares what a reparsed class exposes with the original.
func requireSameClass(t *testing.T, want, got *ClassDef) {
	t.Helper()

	wantSrc, _ := want.SourceFile()
	gotSrc, _ := got.SourceFile()
	require.Equal(t, wantSrc, gotSrc)
	require.Equal(t, want.Interfaces(), got.Interfaces())
	require.Equal(t, want.Annotations().String(), got.Annotations().String())
	require.Equal(t, want.FieldAnnotations(barField).String(), got.FieldAnnotations(barField).String())
	require.Equal(t, want.MethodAnnotations(runMeth).String(), got.MethodAnnotations(runMeth).String())
	require.Equal(t, want.ParameterAnnotations(runMeth, 1).String(), got.ParameterAnnotations(runMeth, 1).String())
}

func TestParse_EditThenReparse(t *testing.T) {
	orig := sampleDex(t)
	out, err := orig.Bytes()
	require.NoError(t, err)
	want, _ := orig.Class(fooClass)

	tests := []struct {
		name string
		edit func(t *testing.T, d *Dex)
	}{
		{"new leading type and string", func(t *testing.T, d *Dex) {
			_, err := d.GetOrCreateType("LAAA;")
			require.NoError(t, err)
			_, err = d.GetOrCreateString("AAAA")
			require.NoError(t, err)
		}},
		{"new class", func(t *testing.T, d *Dex) {
			c, err := d.GetOrCreateClass("La/First;")
			require.NoError(t, err)
			require.NoError(t, c.SetSourceFile("A.java"))
		}},
		{"renamed string", func(t *testing.T, d *Dex) {
			s, ok := d.Strings().Lookup(key.StringKey("hello"))
			require.True(t, ok)
			require.NoError(t, d.RenameString(s, "0-first"))
		}},
		{"unused string swept", func(t *testing.T, d *Dex) {
			_, err := d.GetOrCreateString("zzz-unused")
			require.NoError(t, err)
			n, err := d.RemoveUnusedStrings()
			require.NoError(t, err)
			require.Equal(t, 1, n)
		}},
		{"sweep with nothing to remove", func(t *testing.T, d *Dex) {
			n, err := d.RemoveUnusedStrings()
			require.NoError(t, err)
			require.Zero(t, n)
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := Parse(out)
			require.NoError(t, err)
			tt.edit(t, d)

			edited, err := d.Bytes()
			require.NoError(t, err)
			require.NoError(t, Verify(edited))

			back, err := Parse(edited)
			require.NoError(t, err)
			require.NoError(t, back.Validate())
			got, ok := back.Class(fooClass)
			require.True(t, ok)
			if tt.name == "renamed string" {
				require.Contains(t, got.Annotations().String(), "0-first")
				return
			}
			requireSameClass(t, want, got)

			again, err := back.Bytes()
			require.NoError(t, err)
			require.Equal(t, edited, again)
		})
	}
}

func TestBytes_RemovedTargetIsDangling(t *testing.T) {
	out, err := sampleDex(t).Bytes()
	require.NoError(t, err)
	d, err := Parse(out)
	require.NoError(t, err)
	require.NoError(t, d.Refresh())

	s, ok := d.Strings().Lookup(key.StringKey("Foo.java"))
	require.True(t, ok)
	require.True(t, d.Strings().Remove(s))

	c, _ := d.Class(fooClass)
	_, ok = c.SourceFile()
	require.False(t, ok)

	_, err = d.Bytes()
	require.ErrorIs(t, err, errs.ErrDanglingReference)
}

func TestRemoveUnused_AfterAnnotationRemoval(t *testing.T) {
	d := sampleDex(t)
	c, _ := d.Class(fooClass)

	require.NoError(t, c.RemoveFieldAnnotation(barField, "Lcom/example/Keep;"))
	removed, err := c.RemoveAnnotation("Lcom/example/Marker;")
	require.NoError(t, err)
	require.True(t, removed)

	n, err := d.RemoveUnused()
	require.NoError(t, err)
	require.Positive(t, n)

	_, ok := d.Types().Lookup(key.TypeKey("Lcom/example/Keep;"))
	require.False(t, ok)
	_, ok = d.Types().Lookup(key.TypeKey("Lcom/example/Marker;"))
	require.False(t, ok)
	_, ok = d.Fields().Lookup(barField)
	require.False(t, ok)
	_, ok = d.Strings().Lookup(key.StringKey("hello"))
	require.False(t, ok)
	_, ok = d.Methods().Lookup(runMeth)
	require.True(t, ok)

	out, err := d.Bytes()
	require.NoError(t, err)
	parsed, err := Parse(out)
	require.NoError(t, err)
	pc, ok := parsed.Class(fooClass)
	require.True(t, ok)
	require.Empty(t, pc.Annotations())
	require.Len(t, pc.MethodAnnotations(runMeth), 1)
}

func TestRemoveUnused_Kinds(t *testing.T) {
	d := sampleDex(t)
	_, err := d.RemoveUnused(TypeClassDefItem)
	require.ErrorIs(t, err, errs.ErrUnsupported)

	_, err = d.GetOrCreateType("Lcom/example/Unused;")
	require.NoError(t, err)
	n, err := d.RemoveUnused(TypeTypeIDItem)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	_, ok := d.Strings().Lookup(key.StringKey("Lcom/example/Unused;"))
	require.True(t, ok, "strings are only swept when asked for")
}

func TestAnnotationSets_Shared(t *testing.T) {
	d := New()
	a, err := d.GetOrCreateClass("Lcom/example/A;")
	require.NoError(t, err)
	b, err := d.GetOrCreateClass("Lcom/example/B;")
	require.NoError(t, err)

	ann := NewAnnotationKey(VisibilityRuntime, "Lcom/example/Marker;")
	require.NoError(t, a.AddAnnotation(ann))
	require.NoError(t, b.AddAnnotation(ann))
	require.Equal(t, 1, d.AnnotationSets().Len())

	require.NoError(t, a.AddAnnotation(NewAnnotationKey(VisibilityBuild, "Lcom/example/Extra;")))
	require.Equal(t, 2, d.AnnotationSets().Len())
	require.Len(t, b.Annotations(), 1, "editing a shared set leaves other owners untouched")
	require.Len(t, a.Annotations(), 2)
}

func TestMemberAnnotation_WrongClass(t *testing.T) {
	d := sampleDex(t)
	c, err := d.GetOrCreateClass("Lcom/example/Other;")
	require.NoError(t, err)
	err = c.AddFieldAnnotation(barField, NewAnnotationKey(VisibilityBuild, "Lcom/example/Keep;"))
	require.ErrorIs(t, err, errs.ErrInvalidKey)
	err = c.AddParameterAnnotation(key.MethodKey{Defining: "Lcom/example/Other;", Name: "x", Proto: runProto}, 5,
		NewAnnotationKey(VisibilityBuild, "Lcom/example/Keep;"))
	require.ErrorIs(t, err, errs.ErrInvalidKey)
}

func TestRenameString(t *testing.T) {
	d := sampleDex(t)
	s, ok := d.Strings().Lookup(key.StringKey("Foo.java"))
	require.True(t, ok)
	require.NoError(t, d.RenameString(s, "Bar.kt"))

	out, err := d.Bytes()
	require.NoError(t, err)
	parsed, err := Parse(out)
	require.NoError(t, err)
	c, _ := parsed.Class(fooClass)
	src, _ := c.SourceFile()
	require.Equal(t, "Bar.kt", src)

	hello, ok := d.Strings().Lookup(key.StringKey("hello"))
	require.True(t, ok)
	require.ErrorIs(t, d.RenameString(hello, "Bar.kt"), errs.ErrDuplicateKey)
}

func TestValidate_Dangling(t *testing.T) {
	out, err := sampleDex(t).Bytes()
	require.NoError(t, err)
	d, err := Parse(out)
	require.NoError(t, err)

	c := d.Classes().Items()[0]
	c.data.PutUint32(16, 0x7fff)
	c.sourceFile.Invalidate()
	require.ErrorIs(t, d.Validate(), errs.ErrDanglingReference)
}

func TestAppendText(t *testing.T) {
	text, err := textfmt.Render(sampleDex(t))
	require.NoError(t, err)
	require.Contains(t, text, ".class public Lcom/example/Foo;")
	require.Contains(t, text, ".super Ljava/lang/Object;")
	require.Contains(t, text, ".source \"Foo.java\"")
	require.Contains(t, text, ".annotation runtime Lcom/example/Marker;")
	require.Contains(t, text, ".field Lcom/example/Foo;->bar:I")
	require.Contains(t, text, ".param p1")
	require.True(t, strings.HasPrefix(text, "# dex 035"))
}
