package archive

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/require"

	"github.com/arloliu/apkblock/errs"
	"github.com/arloliu/apkblock/format"
)

func payload(tag string, n int) []byte {
	var buf bytes.Buffer
	for i := 0; buf.Len() < n; i++ {
		fmt.Fprintf(&buf, "%s-%d;", tag, i%13)
	}

	return buf.Bytes()[:n]
}

func sampleArchive(t *testing.T, c format.CompressionType) *Memory {
	t.Helper()

	m, err := NewMemory(WithCompression(c))
	require.NoError(t, err)
	require.NoError(t, m.Replace(ManifestName, payload("manifest", 700)))
	require.NoError(t, m.Replace("classes.dex", payload("dex", 5000)))
	require.NoError(t, m.Replace(TableName, payload("table", 3000)))
	require.NoError(t, m.Replace("classes2.dex", payload("dex2", 100)))
	require.NoError(t, m.Replace("res/drawable/icon.png", []byte{0x89, 'P', 'N', 'G'}))
	require.NoError(t, m.Replace("assets/empty", nil))

	return m
}

func TestMemory_Basics(t *testing.T) {
	for _, c := range []format.CompressionType{format.CompressionNone, format.CompressionZstd, format.CompressionS2, format.CompressionLZ4} {
		t.Run(c.String(), func(t *testing.T) {
			m := sampleArchive(t, c)

			require.Equal(t, 6, m.Len())
			require.Equal(t, []string{ManifestName, "classes.dex", TableName, "classes2.dex", "res/drawable/icon.png", "assets/empty"}, m.Names())
			require.True(t, m.Has(TableName))
			require.False(t, m.Has("missing"))

			data, err := m.Get("classes.dex")
			require.NoError(t, err)
			require.Equal(t, payload("dex", 5000), data)
			require.Equal(t, 5000, m.Size("classes.dex"))
			require.Equal(t, -1, m.Size("missing"))

			data, err = m.Get("assets/empty")
			require.NoError(t, err)
			require.Equal(t, []byte{}, data)

			_, err = m.Get("missing")
			require.ErrorIs(t, err, errs.ErrEntryNotFound)

			d, ok := m.Digest("classes.dex")
			require.True(t, ok)
			require.Equal(t, DigestOf(payload("dex", 5000)), d)

			if c != format.CompressionNone {
				require.Less(t, m.Stats().CompressedSize, m.Stats().OriginalSize)
			}
		})
	}
}

func TestMemory_ReplaceKeepsOrder(t *testing.T) {
	m := sampleArchive(t, format.CompressionS2)

	require.NoError(t, m.Replace("classes.dex", []byte("dex\n035\x00")))
	require.Equal(t, "classes.dex", m.Names()[1])

	data, err := m.Get("classes.dex")
	require.NoError(t, err)
	require.Equal(t, []byte("dex\n035\x00"), data)

	// Get hands out copies.
	data[0] = 'X'
	again, err := m.Get("classes.dex")
	require.NoError(t, err)
	require.Equal(t, byte('d'), again[0])

	require.ErrorIs(t, m.Replace("", nil), errs.ErrInvalidKey)
}

func TestMemory_RemoveAndRetain(t *testing.T) {
	m := sampleArchive(t, format.CompressionNone)

	require.True(t, m.Remove("assets/empty"))
	require.False(t, m.Remove("assets/empty"))
	require.Equal(t, 5, m.Len())

	require.Equal(t, []string{"classes.dex", "classes2.dex"}, DexNames(m))

	removed := RetainOnly(m, TableName, ManifestName, "absent")
	require.Equal(t, 3, removed)
	require.Equal(t, []string{ManifestName, TableName}, m.Names())
}

func TestMemory_DigestMismatch(t *testing.T) {
	m := sampleArchive(t, format.CompressionNone)
	m.entries["classes.dex"].data[0] ^= 0xff

	_, err := m.Get("classes.dex")
	require.ErrorIs(t, err, errs.ErrDigestMismatch)
}

func TestWithCompression_Invalid(t *testing.T) {
	_, err := NewMemory(WithCompression(format.CompressionType(0x7f)))
	require.Error(t, err)
}

func TestZip_RoundTrip(t *testing.T) {
	m := sampleArchive(t, format.CompressionZstd)

	var buf bytes.Buffer
	require.NoError(t, m.WriteZip(&buf))

	back, err := ReadZip(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	require.NoError(t, err)
	require.Equal(t, m.Names(), back.Names())
	for _, name := range m.Names() {
		want, err := m.Get(name)
		require.NoError(t, err)
		got, err := back.Get(name)
		require.NoError(t, err)
		require.Equal(t, want, got, name)
	}

	// Writing is deterministic.
	var again bytes.Buffer
	require.NoError(t, back.WriteZip(&again))
	require.Equal(t, buf.Bytes(), again.Bytes())
}

func TestZip_StoredTableAligned(t *testing.T) {
	for _, prefix := range []string{"", "a", "ab", "abc"} {
		t.Run("prefix_"+prefix, func(t *testing.T) {
			m, err := NewMemory()
			require.NoError(t, err)
			if prefix != "" {
				require.NoError(t, m.Replace(prefix, payload(prefix, 17)))
			}
			table := payload("table", 999)
			require.NoError(t, m.Replace(TableName, table))

			var buf bytes.Buffer
			require.NoError(t, m.WriteZip(&buf))

			zr, err := zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
			require.NoError(t, err)

			var found bool
			for _, f := range zr.File {
				if f.Name != TableName {
					continue
				}
				found = true
				require.Equal(t, zip.Store, f.Method)

				off, err := f.DataOffset()
				require.NoError(t, err)
				require.Zero(t, off%storedAlignment)
				require.Equal(t, table, buf.Bytes()[off:off+int64(len(table))])
			}
			require.True(t, found)
		})
	}
}

func TestReadZip_Errors(t *testing.T) {
	_, err := ReadZip(bytes.NewReader([]byte("not a zip")), 9)
	require.Error(t, err)

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for range 2 {
		fw, err := zw.Create("dup.txt")
		require.NoError(t, err)
		_, err = fw.Write([]byte("x"))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())

	_, err = ReadZip(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	require.ErrorIs(t, err, errs.ErrDuplicateKey)
}

func TestSnapshot_RoundTrip(t *testing.T) {
	m := sampleArchive(t, format.CompressionLZ4)

	snap, err := m.Snapshot()
	require.NoError(t, err)

	back, err := LoadSnapshot(snap)
	require.NoError(t, err)
	require.Equal(t, m.Names(), back.Names())

	for _, name := range m.Names() {
		want, err := m.Get(name)
		require.NoError(t, err)
		got, err := back.Get(name)
		require.NoError(t, err)
		require.Equal(t, want, got)
	}

	again, err := back.Snapshot()
	require.NoError(t, err)
	require.Equal(t, snap, again)
}

func TestLoadSnapshot_Errors(t *testing.T) {
	_, err := LoadSnapshot([]byte{0xff, 0x00})
	require.ErrorIs(t, err, errs.ErrInvalidSnapshot)

	bad, err := encMode.Marshal(snapshot{Version: 99})
	require.NoError(t, err)
	_, err = LoadSnapshot(bad)
	require.ErrorIs(t, err, errs.ErrInvalidSnapshot)

	data := []byte("content")
	d := DigestOf([]byte("other"))
	tampered, err := encMode.Marshal(snapshot{
		Version: snapshotVersion,
		Entries: []snapshotEntry{{Name: "a", Algo: format.CompressionNone, Size: len(data), Digest: d[:], Data: data}},
	})
	require.NoError(t, err)
	_, err = LoadSnapshot(tampered)
	require.ErrorIs(t, err, errs.ErrDigestMismatch)
}

func TestIsDex(t *testing.T) {
	require.True(t, IsDex("classes.dex"))
	require.True(t, IsDex("classes12.dex"))
	require.False(t, IsDex("lib/classes.dex"))
	require.False(t, IsDex("classes.dex.bak"))
}

func TestSanitizeFileName(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"framework-res.apk", "framework-res.apk"},
		{"..//evil\\name", "evilname"},
		{"a  b", "ab"},
		{"-_-", ""},
		{"x..y", "x.y"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			require.Equal(t, tt.want, SanitizeFileName(tt.in))
		})
	}
	require.Len(t, SanitizeFileName(string(bytes.Repeat([]byte("a"), 80))), 50)
}

func TestDigest_String(t *testing.T) {
	d := DigestOf([]byte("abc"))
	require.Len(t, d.String(), 64)
	require.NotEqual(t, DigestOf([]byte("abd")), d)

	text, err := d.MarshalText()
	require.NoError(t, err)
	require.Equal(t, d.String(), string(text))
}
