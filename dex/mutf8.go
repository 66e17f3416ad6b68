package dex

import (
	"fmt"
	"unicode/utf16"
	"unicode/utf8"

	"github.com/arloliu/apkblock/errs"
)

// EncodeMUTF8 appends the modified UTF-8 form of s to dst: NUL is written as
// two bytes and supplementary characters as surrogate pairs.
func EncodeMUTF8(dst []byte, s string) []byte {
	for _, r := range s {
		switch {
		case r == 0:
			dst = append(dst, 0xc0, 0x80)
		case r < 0x80:
			dst = append(dst, byte(r))
		case r < 0x800:
			dst = append(dst, 0xc0|byte(r>>6), 0x80|byte(r&0x3f))
		case r < 0x10000:
			dst = appendUnit3(dst, r)
		default:
			hi, lo := utf16.EncodeRune(r)
			dst = appendUnit3(dst, hi)
			dst = appendUnit3(dst, lo)
		}
	}

	return dst
}

func appendUnit3(dst []byte, u rune) []byte {
	return append(dst, 0xe0|byte(u>>12), 0x80|byte((u>>6)&0x3f), 0x80|byte(u&0x3f))
}

// DecodeMUTF8 decodes modified UTF-8 bytes (without the terminating NUL).
// Unpaired surrogates decode to U+FFFD.
//
// Returns:
//   - string: the decoded text
//   - int: the number of UTF-16 code units
//   - error: errs.ErrInvalidString on malformed sequences
func DecodeMUTF8(data []byte) (string, int, error) {
	units := make([]uint16, 0, len(data))
	for i := 0; i < len(data); {
		b := data[i]
		switch {
		case b < 0x80:
			units = append(units, uint16(b))
			i++
		case b&0xe0 == 0xc0:
			if i+1 >= len(data) || data[i+1]&0xc0 != 0x80 {
				return "", 0, fmt.Errorf("%w: bad 2-byte sequence at %d", errs.ErrInvalidString, i)
			}
			units = append(units, uint16(b&0x1f)<<6|uint16(data[i+1]&0x3f))
			i += 2
		case b&0xf0 == 0xe0:
			if i+2 >= len(data) || data[i+1]&0xc0 != 0x80 || data[i+2]&0xc0 != 0x80 {
				return "", 0, fmt.Errorf("%w: bad 3-byte sequence at %d", errs.ErrInvalidString, i)
			}
			units = append(units, uint16(b&0x0f)<<12|uint16(data[i+1]&0x3f)<<6|uint16(data[i+2]&0x3f))
			i += 3
		default:
			return "", 0, fmt.Errorf("%w: bad lead byte 0x%02x at %d", errs.ErrInvalidString, b, i)
		}
	}

	return string(utf16.Decode(units)), len(units), nil
}

// UTF16Len returns the number of UTF-16 code units of s.
func UTF16Len(s string) int {
	n := 0
	for _, r := range s {
		if r >= 0x10000 && r <= utf8.MaxRune {
			n += 2
		} else {
			n++
		}
	}

	return n
}
