package arsc

import "fmt"

// ChunkType is the type code of a chunk header.
type ChunkType uint16

// Chunk type codes.
const (
	ChunkNull              ChunkType = 0x0000
	ChunkStringPool        ChunkType = 0x0001
	ChunkTable             ChunkType = 0x0002
	ChunkXML               ChunkType = 0x0003
	ChunkXMLStartNamespace ChunkType = 0x0100
	ChunkXMLEndNamespace   ChunkType = 0x0101
	ChunkXMLStartElement   ChunkType = 0x0102
	ChunkXMLEndElement     ChunkType = 0x0103
	ChunkXMLCData          ChunkType = 0x0104
	ChunkXMLResourceMap    ChunkType = 0x0180
	ChunkTablePackage      ChunkType = 0x0200
	ChunkTableType         ChunkType = 0x0201
	ChunkTableTypeSpec     ChunkType = 0x0202
	ChunkTableLibrary      ChunkType = 0x0203
	ChunkTableOverlayable  ChunkType = 0x0204
	ChunkTablePolicy       ChunkType = 0x0205
	ChunkTableStagedAlias  ChunkType = 0x0206
)

var chunkNames = map[ChunkType]string{
	ChunkNull:              "null",
	ChunkStringPool:        "string_pool",
	ChunkTable:             "table",
	ChunkXML:               "xml",
	ChunkXMLStartNamespace: "xml_start_namespace",
	ChunkXMLEndNamespace:   "xml_end_namespace",
	ChunkXMLStartElement:   "xml_start_element",
	ChunkXMLEndElement:     "xml_end_element",
	ChunkXMLCData:          "xml_cdata",
	ChunkXMLResourceMap:    "xml_resource_map",
	ChunkTablePackage:      "package",
	ChunkTableType:         "type",
	ChunkTableTypeSpec:     "type_spec",
	ChunkTableLibrary:      "library",
	ChunkTableOverlayable:  "overlayable",
	ChunkTablePolicy:       "overlayable_policy",
	ChunkTableStagedAlias:  "staged_alias",
}

func (t ChunkType) String() string {
	if name, ok := chunkNames[t]; ok {
		return name
	}

	return fmt.Sprintf("chunk(0x%04x)", uint16(t))
}

// holdsNoStrings reports chunk types known to carry no string pool indexes.
func (t ChunkType) holdsNoStrings() bool {
	switch t {
	case ChunkTableLibrary, ChunkTableOverlayable, ChunkTablePolicy, ChunkTableStagedAlias:
		return true
	default:
		return false
	}
}

// ValueType is the data type of a Res_value.
type ValueType uint8

// Res_value data types.
const (
	TypeNull             ValueType = 0x00
	TypeReference        ValueType = 0x01
	TypeAttribute        ValueType = 0x02
	TypeString           ValueType = 0x03
	TypeFloat            ValueType = 0x04
	TypeDimension        ValueType = 0x05
	TypeFraction         ValueType = 0x06
	TypeDynamicReference ValueType = 0x07
	TypeDynamicAttribute ValueType = 0x08
	TypeIntDec           ValueType = 0x10
	TypeIntHex           ValueType = 0x11
	TypeIntBoolean       ValueType = 0x12
	TypeIntColorARGB8    ValueType = 0x1c
	TypeIntColorRGB8     ValueType = 0x1d
	TypeIntColorARGB4    ValueType = 0x1e
	TypeIntColorRGB4     ValueType = 0x1f
)

var valueTypeNames = map[ValueType]string{
	TypeNull:             "null",
	TypeReference:        "reference",
	TypeAttribute:        "attribute",
	TypeString:           "string",
	TypeFloat:            "float",
	TypeDimension:        "dimension",
	TypeFraction:         "fraction",
	TypeDynamicReference: "dynamic_reference",
	TypeDynamicAttribute: "dynamic_attribute",
	TypeIntDec:           "int",
	TypeIntHex:           "hex",
	TypeIntBoolean:       "boolean",
	TypeIntColorARGB8:    "argb8",
	TypeIntColorRGB8:     "rgb8",
	TypeIntColorARGB4:    "argb4",
	TypeIntColorRGB4:     "rgb4",
}

func (t ValueType) String() string {
	if name, ok := valueTypeNames[t]; ok {
		return name
	}

	return fmt.Sprintf("value_type(0x%02x)", uint8(t))
}

// IsReference reports whether values of type t hold a resource id to chase.
func (t ValueType) IsReference() bool {
	return t == TypeReference || t == TypeAttribute
}

// NoIndex is the absent string index.
const NoIndex = 0xffffffff

// String pool flags.
const (
	PoolSorted uint32 = 1 << 0
	PoolUTF8   uint32 = 1 << 8
)

// Entry flags.
const (
	EntryComplex uint16 = 0x0001
	EntryPublic  uint16 = 0x0002
	EntryWeak    uint16 = 0x0004
	EntryCompact uint16 = 0x0008
)

// Type chunk flags.
const (
	TypeSparse   uint8 = 0x01
	TypeOffset16 uint8 = 0x02
)

// Framework attribute ids used by manifests.
const (
	AttrIcon        uint32 = 0x01010002
	AttrName        uint32 = 0x01010003
	AttrVersionCode uint32 = 0x0101021b
	AttrVersionName uint32 = 0x0101021c
)

// AndroidNamespace is the URI of the android: attribute namespace.
const AndroidNamespace = "http://schemas.android.com/apk/res/android"
