package arsc

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/arloliu/apkblock/block"
	"github.com/arloliu/apkblock/errs"
	"github.com/arloliu/apkblock/textfmt"
)

const (
	attrLabel uint32 = 0x01010001
	iconRef   uint32 = 0x7f020000
)

func sampleManifest(t *testing.T) *Document {
	t.Helper()

	d := NewDocument()
	ns, err := d.AddNamespace("android", AndroidNamespace)
	require.NoError(t, err)
	root, err := ns.AddElement(TagManifest)
	require.NoError(t, err)

	pkg, err := root.AddAttribute("", AttrPackage, 0)
	require.NoError(t, err)
	require.NoError(t, pkg.SetString("com.example"))
	code, err := root.AddAttribute(AndroidNamespace, "versionCode", AttrVersionCode)
	require.NoError(t, err)
	code.SetTypeAndData(TypeIntDec, 42)

	app, err := root.AddElement(TagApplication)
	require.NoError(t, err)
	icon, err := app.AddAttribute(AndroidNamespace, "icon", AttrIcon)
	require.NoError(t, err)
	icon.SetTypeAndData(TypeReference, iconRef)
	label, err := app.AddAttribute(AndroidNamespace, "label", attrLabel)
	require.NoError(t, err)
	label.SetTypeAndData(TypeReference, appNameID)

	activity, err := app.AddElement("activity")
	require.NoError(t, err)
	name, err := activity.AddAttribute(AndroidNamespace, "name", AttrName)
	require.NoError(t, err)
	require.NoError(t, name.SetString(".MainActivity"))
	text, err := d.NewCData("hello")
	require.NoError(t, err)
	activity.AddChild(text)

	_, err = root.AddElement("uses-sdk")
	require.NoError(t, err)

	return d
}

func TestDocument_RoundTrip(t *testing.T) {
	d := sampleManifest(t)
	out, err := d.Bytes()
	require.NoError(t, err)
	require.Len(t, out, d.CountBytes())

	parsed, err := ParseXML(out)
	require.NoError(t, err)
	again, err := parsed.Bytes()
	require.NoError(t, err)
	require.Equal(t, out, again)

	name, ok := parsed.PackageName()
	require.True(t, ok)
	require.Equal(t, "com.example", name)
	code, ok := parsed.VersionCode()
	require.True(t, ok)
	require.Equal(t, 42, code)

	app, ok := parsed.Application()
	require.True(t, ok)
	icon, ok := app.Attribute(AttrIcon)
	require.True(t, ok)
	require.Equal(t, "icon", icon.Name())
	require.Equal(t, AndroidNamespace, icon.Namespace())
	require.Equal(t, iconRef, icon.Value().Data())

	activity, ok := app.Child("activity")
	require.True(t, ok)
	require.Len(t, activity.Children(), 1)
	cdata, ok := activity.Children()[0].(*CData)
	require.True(t, ok)
	require.Equal(t, "hello", cdata.Text())
}

func TestDocument_ResourceMap(t *testing.T) {
	d := sampleManifest(t)
	out, err := d.Bytes()
	require.NoError(t, err)

	mapOff := xmlHeaderSize + d.pool.CountBytes()
	require.Equal(t, uint16(ChunkXMLResourceMap), engine.Uint16(out[mapOff:]))
	size := int(engine.Uint32(out[mapOff+4:]))
	require.Equal(t, chunkHeaderSize+4*4, size)

	for i := range 4 {
		s, ok := d.pool.Get(i)
		require.True(t, ok)
		id, ok := s.ResourceID()
		require.True(t, ok)
		require.Equal(t, id, engine.Uint32(out[mapOff+chunkHeaderSize+4*i:]))
	}
	s, _ := d.pool.Get(4)
	_, ok := s.ResourceID()
	require.False(t, ok)
}

func TestElement_AttributesSortedByID(t *testing.T) {
	d := sampleManifest(t)
	app, _ := d.Application()

	_, err := app.AddAttribute(AndroidNamespace, "name", AttrName)
	require.NoError(t, err)
	_, err = app.AddAttribute("", "tools", 0)
	require.NoError(t, err)
	_, err = app.AddAttribute(AndroidNamespace, "theme", 0x01010000)
	require.NoError(t, err)

	var ids []uint32
	for _, a := range app.Attributes() {
		ids = append(ids, a.ResourceID())
	}
	require.Equal(t, []uint32{0x01010000, attrLabel, AttrIcon, AttrName, 0}, ids)

	require.True(t, app.RemoveAttribute(app.Attributes()[0]))
	require.Len(t, app.Attributes(), 4)
}

func TestDocument_RemoveNodeAndStrings(t *testing.T) {
	d := sampleManifest(t)
	app, _ := d.Application()
	activity, _ := app.Child("activity")

	require.True(t, d.RemoveNode(activity))
	require.False(t, d.RemoveNode(activity))

	n := d.RemoveUnusedStrings()
	require.Equal(t, 4, n)
	for _, gone := range []string{".MainActivity", "activity", "hello"} {
		_, ok := d.Strings().Lookup(gone)
		require.False(t, ok, gone)
	}

	out, err := d.Bytes()
	require.NoError(t, err)
	parsed, err := ParseXML(out)
	require.NoError(t, err)

	papp, ok := parsed.Application()
	require.True(t, ok)
	require.Empty(t, papp.Children())
	label, ok := papp.Attribute(attrLabel)
	require.True(t, ok)
	require.Equal(t, appNameID, label.Value().Data())
	require.Equal(t, 3, parsed.mappedStrings())
}

func TestAttribute_Setters(t *testing.T) {
	d := sampleManifest(t)
	app, _ := d.Application()
	label, _ := app.Attribute(attrLabel)

	require.NoError(t, label.SetString("Example"))
	s, ok := label.RawValue()
	require.True(t, ok)
	require.Equal(t, "Example", s)
	require.Equal(t, TypeString, label.Value().Type())

	label.SetTypeAndData(TypeIntBoolean, 1)
	_, ok = label.RawValue()
	require.False(t, ok)
	_, ok = label.Value().StringValue()
	require.False(t, ok)

	out, err := d.Bytes()
	require.NoError(t, err)
	parsed, err := ParseXML(out)
	require.NoError(t, err)
	papp, _ := parsed.Application()
	plabel, _ := papp.Attribute(attrLabel)
	require.Equal(t, TypeIntBoolean, plabel.Value().Type())
}

func TestDocument_OffsetOf(t *testing.T) {
	d := sampleManifest(t)
	out, err := d.Bytes()
	require.NoError(t, err)

	app, _ := d.Application()
	off := block.OffsetOf(d, app)
	require.Positive(t, off)
	require.Equal(t, uint16(ChunkXMLStartElement), engine.Uint16(out[off:]))
	require.Equal(t, uint16(2), engine.Uint16(out[off+28:]))
}

func TestParseXML_Errors(t *testing.T) {
	out, err := sampleManifest(t).Bytes()
	require.NoError(t, err)

	endSize := elementEndSize + elementEndSize + namespaceSize
	unbalanced := append([]byte(nil), out[:len(out)-endSize]...)
	engine.PutUint32(unbalanced[4:], uint32(len(unbalanced)))

	tests := []struct {
		name string
		data []byte
		want error
	}{
		{name: "empty", data: nil, want: errs.ErrTruncated},
		{name: "truncated", data: out[:len(out)-2], want: errs.ErrTruncated},
		{name: "unbalanced", data: unbalanced, want: errs.ErrInvalidChunk},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseXML(tt.data)
			require.ErrorIs(t, err, tt.want)
		})
	}
}

func TestDocument_AppendText(t *testing.T) {
	text, err := textfmt.Render(sampleManifest(t))
	require.NoError(t, err)
	require.Contains(t, text, `.namespace android "`+AndroidNamespace+`"`)
	require.Contains(t, text, `<manifest android:versionCode=42 package="com.example">`)
	require.Contains(t, text, "<application android:label=@0x7f010000 android:icon=@0x7f020000>")
	require.Contains(t, text, "<uses-sdk/>")
}

func TestAttribute_SetValueFromTable(t *testing.T) {
	tbl := sampleTable(t)
	d := sampleManifest(t)
	app, _ := d.Application()
	label, _ := app.Attribute(attrLabel)

	v, ok := tbl.ResolveValue(label.Value().Data())
	require.True(t, ok)
	require.NoError(t, label.SetValue(v))
	s, ok := label.RawValue()
	require.True(t, ok)
	require.Equal(t, "Example", s)
	_, ok = d.Strings().Lookup("Example")
	require.True(t, ok)

	theme, _ := tbl.Resource(themeID)
	require.NoError(t, label.SetValue(theme.Maps()[0].Value()))
	require.Equal(t, TypeIntDec, label.Value().Type())
	require.Equal(t, uint32(5), label.Value().Data())
}
