// Package endian provides the byte order and variable-length integer helpers used
// by the DEX and ARSC codecs.
//
// Both container formats are little endian on disk. DEX files carry an endian tag
// in their header; EngineForTag maps that tag to an engine so a reader can reject
// (or, in principle, decode) byte-swapped files.
//
//	engine := endian.GetLittleEndianEngine()
//	buf = engine.AppendUint32(buf, 0x12345678)
//
// LEB128 helpers cover the unsigned and signed encodings used by DEX string data,
// encoded values and encoded annotations.
package endian

import "encoding/binary"

// EndianEngine combines ByteOrder and AppendByteOrder from encoding/binary.
type EndianEngine interface {
	binary.ByteOrder
	binary.AppendByteOrder
}

// DEX endian tags as stored in the header.
const (
	TagLittleEndian uint32 = 0x12345678
	TagReverse      uint32 = 0x78563412
)

// GetLittleEndianEngine returns the little-endian engine.
func GetLittleEndianEngine() EndianEngine {
	return binary.LittleEndian
}

// GetBigEndianEngine returns the big-endian engine.
func GetBigEndianEngine() EndianEngine {
	return binary.BigEndian
}

// EngineForTag returns the engine that decodes a DEX header whose endian tag,
// read as little endian, equals tag.
//
// Returns:
//   - EndianEngine: matching engine
//   - bool: false when tag is neither the standard nor the reverse constant
func EngineForTag(tag uint32) (EndianEngine, bool) {
	switch tag {
	case TagLittleEndian:
		return binary.LittleEndian, true
	case TagReverse:
		return binary.BigEndian, true
	default:
		return nil, false
	}
}
