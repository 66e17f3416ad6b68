package dex

// HeaderSize is the size of the DEX header item.
const HeaderSize = 0x70

// NoIndex marks an absent 32-bit index.
const NoIndex = 0xffffffff

// EndianTag is the little-endian tag stored in the header.
const EndianTag = 0x12345678

// DefaultVersion is the format version written by New.
const DefaultVersion = "035"

// ItemType is a map_list item type code.
type ItemType uint16

// Map item type codes.
const (
	TypeHeaderItem               ItemType = 0x0000
	TypeStringIDItem             ItemType = 0x0001
	TypeTypeIDItem               ItemType = 0x0002
	TypeProtoIDItem              ItemType = 0x0003
	TypeFieldIDItem              ItemType = 0x0004
	TypeMethodIDItem             ItemType = 0x0005
	TypeClassDefItem             ItemType = 0x0006
	TypeCallSiteIDItem           ItemType = 0x0007
	TypeMethodHandleItem         ItemType = 0x0008
	TypeMapList                  ItemType = 0x1000
	TypeTypeList                 ItemType = 0x1001
	TypeAnnotationSetRefList     ItemType = 0x1002
	TypeAnnotationSetItem        ItemType = 0x1003
	TypeClassDataItem            ItemType = 0x2000
	TypeCodeItem                 ItemType = 0x2001
	TypeStringDataItem           ItemType = 0x2002
	TypeDebugInfoItem            ItemType = 0x2003
	TypeAnnotationItem           ItemType = 0x2004
	TypeEncodedArrayItem         ItemType = 0x2005
	TypeAnnotationsDirectoryItem ItemType = 0x2006
	TypeHiddenAPIClassDataItem   ItemType = 0xf000
)

var itemTypeNames = map[ItemType]string{
	TypeHeaderItem:               "header_item",
	TypeStringIDItem:             "string_id_item",
	TypeTypeIDItem:               "type_id_item",
	TypeProtoIDItem:              "proto_id_item",
	TypeFieldIDItem:              "field_id_item",
	TypeMethodIDItem:             "method_id_item",
	TypeClassDefItem:             "class_def_item",
	TypeCallSiteIDItem:           "call_site_id_item",
	TypeMethodHandleItem:         "method_handle_item",
	TypeMapList:                  "map_list",
	TypeTypeList:                 "type_list",
	TypeAnnotationSetRefList:     "annotation_set_ref_list",
	TypeAnnotationSetItem:        "annotation_set_item",
	TypeClassDataItem:            "class_data_item",
	TypeCodeItem:                 "code_item",
	TypeStringDataItem:           "string_data_item",
	TypeDebugInfoItem:            "debug_info_item",
	TypeAnnotationItem:           "annotation_item",
	TypeEncodedArrayItem:         "encoded_array_item",
	TypeAnnotationsDirectoryItem: "annotations_directory_item",
	TypeHiddenAPIClassDataItem:   "hiddenapi_class_data_item",
}

func (t ItemType) String() string {
	if name, ok := itemTypeNames[t]; ok {
		return name
	}

	return "unknown_item"
}

// Visibility is the visibility byte of an annotation item.
type Visibility uint8

// Annotation visibilities.
const (
	VisibilityBuild   Visibility = 0x00
	VisibilityRuntime Visibility = 0x01
	VisibilitySystem  Visibility = 0x02
	// VisibilityNone marks encoded annotations nested inside values.
	VisibilityNone Visibility = 0xff
)

func (v Visibility) String() string {
	switch v {
	case VisibilityBuild:
		return "build"
	case VisibilityRuntime:
		return "runtime"
	case VisibilitySystem:
		return "system"
	case VisibilityNone:
		return ""
	default:
		return "unknown"
	}
}

// ParseVisibility parses the text form of a visibility.
func ParseVisibility(s string) (Visibility, bool) {
	switch s {
	case "build":
		return VisibilityBuild, true
	case "runtime":
		return VisibilityRuntime, true
	case "system":
		return VisibilitySystem, true
	default:
		return 0, false
	}
}

// Access flags of class definitions and members.
const (
	AccPublic     = 0x0001
	AccPrivate    = 0x0002
	AccProtected  = 0x0004
	AccStatic     = 0x0008
	AccFinal      = 0x0010
	AccNative     = 0x0100
	AccInterface  = 0x0200
	AccAbstract   = 0x0400
	AccSynthetic  = 0x1000
	AccAnnotation = 0x2000
	AccEnum       = 0x4000
	// AccConstructor marks <init> and <clinit> methods.
	AccConstructor = 0x10000
)

var accessNames = []struct {
	flag uint32
	name string
}{
	{AccPublic, "public"},
	{AccPrivate, "private"},
	{AccProtected, "protected"},
	{AccStatic, "static"},
	{AccFinal, "final"},
	{AccNative, "native"},
	{AccInterface, "interface"},
	{AccAbstract, "abstract"},
	{AccSynthetic, "synthetic"},
	{AccAnnotation, "annotation"},
	{AccEnum, "enum"},
	{AccConstructor, "constructor"},
}
