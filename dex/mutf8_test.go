package dex

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/arloliu/apkblock/errs"
)

func TestMUTF8(t *testing.T) {
	tests := []struct {
		name  string
		in    string
		want  []byte
		units int
	}{
		{"ascii", "abc", []byte("abc"), 3},
		{"nul", "a\x00b", []byte{'a', 0xc0, 0x80, 'b'}, 3},
		{"two byte", "é", []byte{0xc3, 0xa9}, 1},
		{"three byte", "€", []byte{0xe2, 0x82, 0xac}, 1},
		{"supplementary", "\U0001F600", []byte{0xed, 0xa0, 0xbd, 0xed, 0xb8, 0x80}, 2},
		{"empty", "", nil, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			enc := EncodeMUTF8(nil, tt.in)
			require.Equal(t, tt.want, enc)
			require.Equal(t, tt.units, UTF16Len(tt.in))

			got, units, err := DecodeMUTF8(enc)
			require.NoError(t, err)
			require.Equal(t, tt.in, got)
			require.Equal(t, tt.units, units)
		})
	}
}

func TestDecodeMUTF8_Invalid(t *testing.T) {
	for _, data := range [][]byte{
		{0xc3},
		{0xe2, 0x82},
		{0xe2, 0x02, 0xac},
		{0xf0, 0x9f, 0x98, 0x80},
	} {
		_, _, err := DecodeMUTF8(data)
		require.ErrorIs(t, err, errs.ErrInvalidString, "% x", data)
	}
}
