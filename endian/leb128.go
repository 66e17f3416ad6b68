package endian

// MaxLEB128Len is the longest LEB128 encoding of a 32-bit value.
const MaxLEB128Len = 5

// AppendULEB128 appends the unsigned LEB128 encoding of v to buf.
func AppendULEB128(buf []byte, v uint32) []byte {
	for v >= 0x80 {
		buf = append(buf, byte(v)|0x80)
		v >>= 7
	}

	return append(buf, byte(v))
}

// AppendSLEB128 appends the signed LEB128 encoding of v to buf.
func AppendSLEB128(buf []byte, v int32) []byte {
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if (v == 0 && b&0x40 == 0) || (v == -1 && b&0x40 != 0) {
			return append(buf, b)
		}
		buf = append(buf, b|0x80)
	}
}

// ULEB128Len returns the encoded length of v.
func ULEB128Len(v uint32) int {
	n := 1
	for v >= 0x80 {
		v >>= 7
		n++
	}

	return n
}

// SLEB128Len returns the encoded length of v.
func SLEB128Len(v int32) int {
	n := 1
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if (v == 0 && b&0x40 == 0) || (v == -1 && b&0x40 != 0) {
			return n
		}
		n++
	}
}

// ULEB128 decodes an unsigned LEB128 value from the start of data.
//
// Returns:
//   - uint32: decoded value
//   - int: bytes consumed, 0 when data is truncated or longer than MaxLEB128Len
func ULEB128(data []byte) (uint32, int) {
	var v uint32
	for i := 0; i < len(data) && i < MaxLEB128Len; i++ {
		b := data[i]
		v |= uint32(b&0x7f) << (7 * uint(i))
		if b&0x80 == 0 {
			return v, i + 1
		}
	}

	return 0, 0
}

// SLEB128 decodes a signed LEB128 value from the start of data.
//
// Returns:
//   - int32: decoded value
//   - int: bytes consumed, 0 when data is truncated or longer than MaxLEB128Len
func SLEB128(data []byte) (int32, int) {
	var v int32
	for i := 0; i < len(data) && i < MaxLEB128Len; i++ {
		b := data[i]
		v |= int32(b&0x7f) << (7 * uint(i))
		if b&0x80 == 0 {
			shift := 7 * uint(i+1)
			if shift < 32 && b&0x40 != 0 {
				v |= -1 << shift
			}

			return v, i + 1
		}
	}

	return 0, 0
}
