package arsc

import (
	"slices"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/arloliu/apkblock/block"
	"github.com/arloliu/apkblock/errs"
	"github.com/arloliu/apkblock/textfmt"
)

const (
	appNameID   uint32 = 0x7f010000
	aliasID     uint32 = 0x7f010001
	loopAID     uint32 = 0x7f010002
	loopBID     uint32 = 0x7f010003
	localOnlyID uint32 = 0x7f010004
	styledID    uint32 = 0x7f010005
	themeID     uint32 = 0x7f020000
)

func germanConfig() []byte {
	cfg := make([]byte, defaultConfigSize)
	engine.PutUint32(cfg, defaultConfigSize)
	cfg[8], cfg[9] = 'd', 'e'

	return cfg
}

func sampleTable(t *testing.T) *Table {
	t.Helper()

	tbl := NewTable()
	pkg, err := tbl.AddPackage(0x7f, "com.example")
	require.NoError(t, err)

	put := func(ty *Type, i int, name string) *Entry {
		e, err := pkg.NewEntry(name)
		require.NoError(t, err)
		ty.SetEntry(i, e)

		return e
	}

	str, err := pkg.AddType("string", 6)
	require.NoError(t, err)
	require.Equal(t, uint8(1), str.ID())
	require.NoError(t, put(str, 0, "app_name").Value().SetString("Example"))
	put(str, 1, "alias").Value().SetTypeAndData(TypeReference, appNameID)
	put(str, 2, "loop_a").Value().SetTypeAndData(TypeReference, loopBID)
	put(str, 3, "loop_b").Value().SetTypeAndData(TypeReference, loopAID)
	styled, err := tbl.Strings().Section().GetOrCreate(StyledKey{
		Text:  "Bold move",
		Spans: []SpanKey{{Name: "b", First: 0, Last: 3}},
	})
	require.NoError(t, err)
	put(str, 5, "styled").Value().SetPoolString(styled)

	de, err := pkg.AddConfig(1, germanConfig())
	require.NoError(t, err)
	require.False(t, de.IsDefault())
	require.NoError(t, put(de, 0, "app_name").Value().SetString("Beispiel"))
	require.NoError(t, put(de, 4, "local_only").Value().SetString("Nur hier"))

	style, err := pkg.AddType("style", 1)
	require.NoError(t, err)
	theme, err := pkg.NewComplexEntry("Theme")
	require.NoError(t, err)
	theme.SetParent(0x01030005)
	m, err := theme.AddMap(0x01010000)
	require.NoError(t, err)
	m.Value().SetTypeAndData(TypeIntDec, 5)
	m, err = theme.AddMap(0x01010001)
	require.NoError(t, err)
	require.NoError(t, m.Value().SetString("Serif"))
	style.SetEntry(0, theme)

	return tbl
}

func requireString(t *testing.T, tbl *Table, id uint32, want string) {
	t.Helper()

	v, ok := tbl.ResolveValue(id)
	require.True(t, ok, "resolve 0x%08x", id)
	s, ok := v.StringValue()
	require.True(t, ok)
	require.Equal(t, want, s)
}

func TestTable_RoundTrip(t *testing.T) {
	tbl := sampleTable(t)
	out, err := tbl.Bytes()
	require.NoError(t, err)
	require.Len(t, out, tbl.CountBytes())
	require.Equal(t, uint32(len(out)), engine.Uint32(out[4:]))

	parsed, err := ParseTable(out)
	require.NoError(t, err)
	require.NoError(t, parsed.LoadErrors())

	again, err := parsed.Bytes()
	require.NoError(t, err)
	require.Equal(t, out, again)

	pkg, ok := parsed.Package(0x7f)
	require.True(t, ok)
	require.Equal(t, "com.example", pkg.Name())
	require.Equal(t, "string", pkg.TypeName(1))
	require.Equal(t, "style", pkg.TypeName(2))
	require.Len(t, pkg.Types(1), 2)
	require.True(t, pkg.Types(1)[0].IsDefault())

	requireString(t, parsed, aliasID, "Example")

	e, ok := parsed.Resource(styledID)
	require.True(t, ok)
	s, ok := e.Value().PoolString()
	require.True(t, ok)
	require.Equal(t, "Bold move", s.Text())
	require.Len(t, s.Spans(), 1)
	require.Equal(t, "b", s.Spans()[0].Name())
	require.Equal(t, uint32(3), s.Spans()[0].Last)

	theme, ok := parsed.Resource(themeID)
	require.True(t, ok)
	require.True(t, theme.IsComplex())
	require.Equal(t, "Theme", theme.Name())
	require.Equal(t, uint32(0x01030005), theme.Parent())
	require.Len(t, theme.Maps(), 2)
	serif, ok := theme.Maps()[1].Value().StringValue()
	require.True(t, ok)
	require.Equal(t, "Serif", serif)
}

func TestTable_StyledStringsLead(t *testing.T) {
	tbl := sampleTable(t)
	tbl.Refresh()

	first, ok := tbl.Strings().Get(0)
	require.True(t, ok)
	require.Equal(t, "Bold move", first.Text())
	require.Equal(t, uint32(1), tbl.Strings().header.Uint32(12))

	requireString(t, tbl, appNameID, "Example")
}

func TestTable_Resolve(t *testing.T) {
	tbl := sampleTable(t)

	requireString(t, tbl, appNameID, "Example")
	requireString(t, tbl, aliasID, "Example")
	requireString(t, tbl, localOnlyID, "Nur hier")

	_, ok := tbl.ResolveValue(loopAID)
	require.False(t, ok)
	chain, err := tbl.Chase(loopAID)
	require.ErrorIs(t, err, errs.ErrCircularReference)
	require.Equal(t, []uint32{loopAID, loopBID}, chain)

	_, err = tbl.Chase(0x7f7f0000)
	require.ErrorIs(t, err, errs.ErrDanglingReference)
	_, err = tbl.Chase(appNameID)
	require.NoError(t, err)

	_, ok = tbl.ResolveValue(themeID)
	require.False(t, ok)
	e, ok := tbl.ResolveEntry(themeID)
	require.True(t, ok)
	require.True(t, e.IsComplex())

	entries := tbl.Entries(appNameID)
	require.Len(t, entries, 2)
	s, _ := entries[1].Value().StringValue()
	require.Equal(t, "Beispiel", s)
}

func TestTable_OffsetOf(t *testing.T) {
	tbl := sampleTable(t)
	out, err := tbl.Bytes()
	require.NoError(t, err)

	e, ok := tbl.Resource(aliasID)
	require.True(t, ok)
	off := block.OffsetOf(tbl, e)
	require.Positive(t, off)
	require.Equal(t, uint16(simpleEntryHeader), engine.Uint16(out[off:]))
	require.Equal(t, uint32(e.key.Raw()), engine.Uint32(out[off+4:]))
	require.Equal(t, uint8(TypeReference), out[off+simpleEntryHeader+3])
	require.Equal(t, appNameID, engine.Uint32(out[off+simpleEntryHeader+4:]))

	theme, _ := tbl.Resource(themeID)
	off = block.OffsetOf(tbl, theme)
	require.Equal(t, uint16(EntryComplex), engine.Uint16(out[off+2:]))
	require.Equal(t, uint32(2), engine.Uint32(out[off+12:]))
}

func TestTable_RemoveUnusedStrings(t *testing.T) {
	tbl := sampleTable(t)
	_, err := tbl.Strings().GetOrCreate("orphan")
	require.NoError(t, err)
	e, _ := tbl.Resource(styledID)
	e.Value().SetTypeAndData(TypeIntDec, 1)

	n, err := tbl.RemoveUnusedStrings()
	require.NoError(t, err)
	require.Equal(t, 3, n)

	for _, gone := range []string{"orphan", "b"} {
		_, ok := tbl.Strings().Lookup(gone)
		require.False(t, ok, gone)
	}
	requireString(t, tbl, aliasID, "Example")
	requireString(t, tbl, localOnlyID, "Nur hier")

	out, err := tbl.Bytes()
	require.NoError(t, err)
	parsed, err := ParseTable(out)
	require.NoError(t, err)
	requireString(t, parsed, aliasID, "Example")
	theme, _ := parsed.Resource(themeID)
	serif, _ := theme.Maps()[1].Value().StringValue()
	require.Equal(t, "Serif", serif)

	n, err = parsed.RemoveUnusedStrings()
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestTable_RemoveUnusedKeys(t *testing.T) {
	tbl := sampleTable(t)
	pkg, _ := tbl.Package(0x7f)
	pkg.Types(1)[0].SetEntry(3, nil)
	pkg.Types(1)[0].SetEntry(2, nil)

	n, err := tbl.RemoveUnusedStrings()
	require.NoError(t, err)
	require.Equal(t, 2, n)
	_, ok := pkg.KeyStrings().Lookup("loop_a")
	require.False(t, ok)

	e, _ := tbl.Resource(localOnlyID)
	require.Equal(t, "local_only", e.Name())
}

func opaqueChunk(typ ChunkType, size int) []byte {
	b := make([]byte, size)
	engine.PutUint16(b, uint16(typ))
	engine.PutUint16(b[2:], uint16(min(size, 12)))
	engine.PutUint32(b[4:], uint32(size))

	return b
}

func TestTable_OpaqueChunks(t *testing.T) {
	out, err := sampleTable(t).Bytes()
	require.NoError(t, err)

	tests := []struct {
		name   string
		chunk  []byte
		unsafe bool
	}{
		{name: "unknown", chunk: opaqueChunk(0x0299, 8), unsafe: true},
		{name: "library", chunk: opaqueChunk(ChunkTableLibrary, 12)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := append(slices.Clone(out), tt.chunk...)
			engine.PutUint32(data[4:], uint32(len(data)))

			parsed, err := ParseTable(data)
			require.NoError(t, err)
			require.NoError(t, parsed.LoadErrors())
			require.Len(t, parsed.RawChunks(), 1)
			require.Equal(t, ChunkType(engine.Uint16(tt.chunk)), parsed.RawChunks()[0].Type())

			_, err = parsed.RemoveUnusedStrings()
			if tt.unsafe {
				require.ErrorIs(t, err, errs.ErrUnsafeSweep)
			} else {
				require.NoError(t, err)
			}

			again, err := parsed.Bytes()
			require.NoError(t, err)
			require.Equal(t, data, again)
		})
	}
}

func TestTable_MalformedTypeKeptOpaque(t *testing.T) {
	tbl := sampleTable(t)
	out, err := tbl.Bytes()
	require.NoError(t, err)

	pkg, _ := tbl.Package(0x7f)
	off := block.OffsetOf(tbl, pkg.Types(1)[1])
	require.Positive(t, off)
	data := slices.Clone(out)
	data[off+9] |= TypeSparse

	parsed, err := ParseTable(data)
	require.NoError(t, err)
	require.ErrorIs(t, parsed.LoadErrors(), errs.ErrUnsupported)

	ppkg, ok := parsed.Package(0x7f)
	require.True(t, ok)
	require.Len(t, ppkg.Types(1), 1)
	require.Len(t, ppkg.Types(2), 1)
	require.Len(t, ppkg.RawChunks(), 1)
	require.Error(t, ppkg.RawChunks()[0].Err())

	requireString(t, parsed, aliasID, "Example")
	_, ok = parsed.ResolveValue(localOnlyID)
	require.False(t, ok)

	_, err = parsed.RemoveUnusedStrings()
	require.ErrorIs(t, err, errs.ErrUnsafeSweep)

	again, err := parsed.Bytes()
	require.NoError(t, err)
	require.Equal(t, data, again)
}

func TestTable_Optimize(t *testing.T) {
	tbl := sampleTable(t)
	require.False(t, tbl.IsOptimized())
	tbl.Refresh()
	before := tbl.CountBytes()

	require.NoError(t, tbl.Optimize("android", 30))
	require.True(t, tbl.IsOptimized())
	require.Less(t, tbl.CountBytes(), before)

	name, version, ok := tbl.FrameworkInfo()
	require.True(t, ok)
	require.Equal(t, "android", name)
	require.Equal(t, 30, version)

	pkg, _ := tbl.Package(0x7f)
	require.Equal(t, "android", pkg.Name())
	types := pkg.Types(1)
	require.Len(t, types, 1)
	require.True(t, types[0].IsDefault())

	requireString(t, tbl, appNameID, "Example")
	requireString(t, tbl, localOnlyID, "Nur hier")
	_, ok = tbl.Strings().Lookup("Beispiel")
	require.False(t, ok)

	out, err := tbl.Bytes()
	require.NoError(t, err)
	parsed, err := ParseTable(out)
	require.NoError(t, err)
	require.True(t, parsed.IsOptimized())

	require.NoError(t, parsed.Optimize("other", 1))
	name, version, _ = parsed.FrameworkInfo()
	require.Equal(t, "android", name)
	require.Equal(t, 30, version)
}

func TestParseTable_Errors(t *testing.T) {
	out, err := sampleTable(t).Bytes()
	require.NoError(t, err)
	doc, err := sampleManifest(t).Bytes()
	require.NoError(t, err)

	badHeader := slices.Clone(out)
	engine.PutUint16(badHeader[2:], 4)

	tests := []struct {
		name string
		data []byte
		want error
	}{
		{name: "empty", data: nil, want: errs.ErrTruncated},
		{name: "xml document", data: doc, want: errs.ErrInvalidChunk},
		{name: "truncated", data: out[:len(out)-4], want: errs.ErrTruncated},
		{name: "header size", data: badHeader, want: errs.ErrInvalidChunk},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseTable(tt.data)
			require.ErrorIs(t, err, tt.want)
			require.ErrorIs(t, err, errs.ErrMalformedInput)
		})
	}
}

func TestTable_AppendText(t *testing.T) {
	text, err := textfmt.Render(sampleTable(t))
	require.NoError(t, err)
	require.Contains(t, text, `.package 0x7f "com.example"`)
	require.Contains(t, text, `0x7f010000 app_name = "Example"`)
	require.Contains(t, text, "0x7f010001 alias = @0x7f010000")
	require.Contains(t, text, "0x7f020000 Theme parent=@0x01030005")
	require.Contains(t, text, ".config default")
}

func TestPackage_AddErrors(t *testing.T) {
	tbl := sampleTable(t)
	_, err := tbl.AddPackage(0x7f, "dup")
	require.ErrorIs(t, err, errs.ErrDuplicateKey)

	pkg, _ := tbl.Package(0x7f)
	_, err = pkg.AddType("string", 1)
	require.ErrorIs(t, err, errs.ErrDuplicateKey)
	_, err = pkg.AddConfig(9, germanConfig())
	require.ErrorIs(t, err, errs.ErrDanglingReference)
	_, err = pkg.AddConfig(1, []byte{1, 2})
	require.ErrorIs(t, err, errs.ErrInvalidChunk)

	e, _ := tbl.Resource(aliasID)
	_, err = e.AddMap(0x01010000)
	require.ErrorIs(t, err, errs.ErrImmutable)
}
