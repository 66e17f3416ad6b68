// Package format defines the enumerations shared by the archive, the CLI and the
// container parsers: entry compression algorithms and container kinds.
package format

import (
	"bytes"
	"fmt"
	"strings"
)

type (
	CompressionType uint8
	Kind            uint8
)

const (
	CompressionNone CompressionType = 0x1 // CompressionNone stores entries as-is.
	CompressionZstd CompressionType = 0x2 // CompressionZstd represents Zstandard compression.
	CompressionS2   CompressionType = 0x3 // CompressionS2 represents S2 compression.
	CompressionLZ4  CompressionType = 0x4 // CompressionLZ4 represents LZ4 block compression.
)

const (
	KindUnknown Kind = iota
	KindDex          // KindDex is a Dalvik executable.
	KindTable        // KindTable is a compiled resource table (resources.arsc).
	KindXML          // KindXML is a compiled binary XML document.
)

func (c CompressionType) String() string {
	switch c {
	case CompressionNone:
		return "None"
	case CompressionZstd:
		return "Zstd"
	case CompressionS2:
		return "S2"
	case CompressionLZ4:
		return "LZ4"
	default:
		return "Unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (c CompressionType) MarshalText() ([]byte, error) {
	if c.String() == "Unknown" {
		return nil, fmt.Errorf("invalid compression type: %d", uint8(c))
	}

	return []byte(strings.ToLower(c.String())), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (c *CompressionType) UnmarshalText(text []byte) error {
	parsed, err := ParseCompression(string(text))
	if err != nil {
		return err
	}
	*c = parsed

	return nil
}

// ParseCompression maps a case-insensitive algorithm name to its type.
//
// Returns:
//   - CompressionType: matching type
//   - error: unknown algorithm name
func ParseCompression(name string) (CompressionType, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "none", "":
		return CompressionNone, nil
	case "zstd":
		return CompressionZstd, nil
	case "s2":
		return CompressionS2, nil
	case "lz4":
		return CompressionLZ4, nil
	default:
		return 0, fmt.Errorf("unknown compression %q", name)
	}
}

func (k Kind) String() string {
	switch k {
	case KindDex:
		return "dex"
	case KindTable:
		return "arsc"
	case KindXML:
		return "xml"
	default:
		return "unknown"
	}
}

var dexMagic = []byte("dex\n")

// Detect sniffs the container kind from the leading bytes of data.
func Detect(data []byte) Kind {
	if len(data) >= 8 && bytes.HasPrefix(data, dexMagic) && data[7] == 0 {
		return KindDex
	}
	if len(data) < 8 {
		return KindUnknown
	}

	// Chunk type 0x0002 (table) or 0x0003 (xml) with an 8 or 12 byte header.
	typ := uint16(data[0]) | uint16(data[1])<<8
	hs := uint16(data[2]) | uint16(data[3])<<8
	switch {
	case typ == 0x0002 && hs == 12:
		return KindTable
	case typ == 0x0003 && hs == 8:
		return KindXML
	default:
		return KindUnknown
	}
}

// Set implements flag.Value.
func (c *CompressionType) Set(s string) error {
	return c.UnmarshalText([]byte(s))
}

// Type names the flag value type for pflag.
func (c *CompressionType) Type() string {
	return "compression"
}
