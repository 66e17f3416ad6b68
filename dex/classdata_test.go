package dex

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/arloliu/apkblock/block"
	"github.com/arloliu/apkblock/errs"
	"github.com/arloliu/apkblock/key"
	"github.com/arloliu/apkblock/textfmt"
)

var (
	countField = key.FieldKey{Defining: fooClass, Name: "COUNT", Type: "I"}
	initMeth   = key.MethodKey{Defining: fooClass, Name: "<init>", Proto: key.ProtoKey{Return: "V"}}
)

// returnVoid is a code item with one register and a single return-void.
var returnVoid = []byte{1, 0, 1, 0, 0, 0, 0, 0, 0, 0, 0, 0, 1, 0, 0, 0, 0x0e, 0}

// withCode extends sampleDex with declared members, static values and one
// method body.
func withCode(t *testing.T) *Dex {
	t.Helper()

	d := sampleDex(t)
	c, _ := d.Class(fooClass)
	_, err := c.AddField(barField, AccPrivate)
	require.NoError(t, err)
	_, err = c.AddField(countField, AccStatic|AccFinal)
	require.NoError(t, err)
	require.NoError(t, c.SetStaticValues(IntValue(7)))
	_, err = c.AddMethod(runMeth, AccPublic|AccAbstract)
	require.NoError(t, err)
	ctor, err := c.AddMethod(initMeth, AccPublic|AccConstructor)
	require.NoError(t, err)

	// identifiers must be in final order before code is attached
	require.NoError(t, d.Refresh())
	code, err := d.NewCodeItem(returnVoid)
	require.NoError(t, err)
	ctor.SetCode(code)
	require.True(t, d.Pinned())

	return d
}

func TestClassData_RoundTrip(t *testing.T) {
	out, err := withCode(t).Bytes()
	require.NoError(t, err)
	require.NoError(t, Verify(out))

	d, err := Parse(out)
	require.NoError(t, err)
	require.NoError(t, d.Validate())
	c, ok := d.Class(fooClass)
	require.True(t, ok)
	cd, ok := c.Data()
	require.True(t, ok)

	require.Len(t, cd.StaticFields(), 1)
	require.Equal(t, countField, cd.StaticFields()[0].Field())
	require.Equal(t, uint32(AccStatic|AccFinal), cd.StaticFields()[0].Flags())
	require.Len(t, cd.InstanceFields(), 1)
	require.Equal(t, barField, cd.InstanceFields()[0].Field())

	require.Len(t, cd.DirectMethods(), 1)
	ctor := cd.DirectMethods()[0]
	require.Equal(t, initMeth, ctor.Method())
	code, ok := ctor.Code()
	require.True(t, ok)
	require.Equal(t, 1, code.Registers())
	require.Equal(t, 1, code.InstructionUnits())
	require.Zero(t, code.Tries())
	_, ok = code.DebugInfo()
	require.False(t, ok)

	require.Len(t, cd.VirtualMethods(), 1)
	_, ok = cd.VirtualMethods()[0].Code()
	require.False(t, ok)

	sv, ok := c.StaticValues()
	require.True(t, ok)
	require.Equal(t, []ValueKey{IntValue(7)}, sv.Values())

	again, err := d.Bytes()
	require.NoError(t, err)
	require.Equal(t, out, again)

	text, err := textfmt.Render(d)
	require.NoError(t, err)
	require.Contains(t, text, ".method public constructor Lcom/example/Foo;-><init>()V")
	require.Contains(t, text, "# registers 1, 1 code units")
}

func TestClassData_MemberOrder(t *testing.T) {
	d := New()
	c, err := d.GetOrCreateClass(fooClass)
	require.NoError(t, err)
	for _, name := range []key.StringKey{"z", "m", "a"} {
		_, err := c.AddField(key.FieldKey{Defining: fooClass, Name: name, Type: "I"}, AccPublic)
		require.NoError(t, err)
	}
	out, err := d.Bytes()
	require.NoError(t, err)

	parsed, err := Parse(out)
	require.NoError(t, err)
	pc, _ := parsed.Class(fooClass)
	cd, _ := pc.Data()
	var names []key.StringKey
	for _, f := range cd.InstanceFields() {
		names = append(names, f.Field().Name)
	}
	require.Equal(t, []key.StringKey{"a", "m", "z"}, names)
}

func TestClassData_AddErrors(t *testing.T) {
	d := sampleDex(t)
	c, _ := d.Class(fooClass)

	_, err := c.AddField(barField, AccPrivate)
	require.NoError(t, err)
	_, err = c.AddField(barField, AccPublic)
	require.ErrorIs(t, err, errs.ErrInvalidKey)

	other := key.MethodKey{Defining: "Lcom/example/Other;", Name: "x", Proto: runProto}
	_, err = c.AddMethod(other, AccPublic)
	require.ErrorIs(t, err, errs.ErrInvalidKey)
}

func TestPinned_RefusesIdentifierChanges(t *testing.T) {
	out, err := withCode(t).Bytes()
	require.NoError(t, err)

	t.Run("string sweep", func(t *testing.T) {
		d, err := Parse(out)
		require.NoError(t, err)
		_, err = d.RemoveUnusedStrings()
		require.ErrorIs(t, err, errs.ErrUnsafeSweep)
	})

	t.Run("full sweep", func(t *testing.T) {
		d, err := Parse(out)
		require.NoError(t, err)
		before := d.Strings().Len()
		_, err = d.RemoveUnused()
		require.ErrorIs(t, err, errs.ErrUnsafeSweep)
		require.Equal(t, before, d.Strings().Len())

		_, err = d.RemoveUnused(TypeAnnotationItem, TypeCodeItem)
		require.NoError(t, err)
	})

	t.Run("reordering", func(t *testing.T) {
		d, err := Parse(out)
		require.NoError(t, err)
		_, err = d.GetOrCreateString("a-new")
		require.NoError(t, err)
		_, err = d.Bytes()
		require.ErrorIs(t, err, errs.ErrUnsupported)
	})

	t.Run("annotation edit", func(t *testing.T) {
		d, err := Parse(out)
		require.NoError(t, err)
		c, _ := d.Class(fooClass)
		removed, err := c.RemoveAnnotation("Lcom/example/Marker;")
		require.NoError(t, err)
		require.True(t, removed)

		edited, err := d.Bytes()
		require.NoError(t, err)
		back, err := Parse(edited)
		require.NoError(t, err)
		bc, _ := back.Class(fooClass)
		require.Empty(t, bc.Annotations())
		cd, _ := bc.Data()
		_, ok := cd.DirectMethods()[0].Code()
		require.True(t, ok)
	})
}

func TestRemoveUnused_DetachedCode(t *testing.T) {
	d := withCode(t)
	c, _ := d.Class(fooClass)
	cd, _ := c.Data()
	cd.DirectMethods()[0].SetCode(nil)

	n, err := d.RemoveUnused(TypeCodeItem)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.False(t, d.Pinned())

	n, err = d.RemoveUnusedStrings()
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestNewCodeItem(t *testing.T) {
	// one try block over an odd instruction count, one handler list with a
	// typed catch and a catch-all
	withTry := []byte{
		2, 0, 1, 0, 0, 0, 1, 0, 0, 0, 0, 0, 1, 0, 0, 0, // header
		0x0e, 0, // return-void
		0, 0, // padding
		0, 0, 0, 0, 1, 0, 0, 0, // try_item
		1,    // handler lists
		0x7f, // size -1
		0, 0, // type_idx, addr
		0, // catch_all_addr
	}

	d := New()
	code, err := d.NewCodeItem(withTry)
	require.NoError(t, err)
	require.Equal(t, 1, code.Tries())
	require.Equal(t, 2, code.Registers())
	require.Equal(t, len(withTry), code.CountBytes())

	_, err = d.NewCodeItem(withTry[:len(withTry)-1])
	require.ErrorIs(t, err, errs.ErrMalformedInput)

	_, err = d.NewCodeItem(append(append([]byte(nil), returnVoid...), 0))
	require.ErrorIs(t, err, errs.ErrMalformedInput)

	withDebug := append([]byte(nil), returnVoid...)
	withDebug[8] = 0x40
	_, err = d.NewCodeItem(withDebug)
	require.ErrorIs(t, err, errs.ErrMalformedInput)
}

func TestDebugInfo_Read(t *testing.T) {
	raw := []byte{
		1,    // line_start
		1, 0, // one unnamed parameter
		0x07,       // prologue end
		0x01, 0x02, // advance pc
		0x02, 0x7f, // advance line -1
		0x03, 1, 2, 3, // start local
		0x04, 1, 2, 3, 4, // start local extended
		0x0a, // special opcode
		0x00, // end sequence
	}
	trailing := append(append([]byte(nil), raw...), 0xaa)

	info := newDebugInfo(New())
	r := block.NewReader(trailing)
	require.NoError(t, info.read(r))
	require.Equal(t, len(raw), r.Position())

	out, err := block.Serialize(info)
	require.NoError(t, err)
	require.Equal(t, raw, out)

	err = newDebugInfo(New()).read(block.NewReader(raw[:len(raw)-1]))
	require.ErrorIs(t, err, errs.ErrTruncated)
}
