package dex

import (
	"errors"
	"fmt"
	"iter"
	"slices"

	"github.com/arloliu/apkblock/block"
	"github.com/arloliu/apkblock/endian"
	"github.com/arloliu/apkblock/errs"
	"github.com/arloliu/apkblock/key"
	"github.com/arloliu/apkblock/ref"
	"github.com/arloliu/apkblock/section"
	"github.com/arloliu/apkblock/textfmt"
)

var engine = endian.GetLittleEndianEngine()

// Dex is an editable DEX container.
type Dex struct {
	header *Header
	gen    block.Generation

	strings          *section.Section[*StringID]
	types            *section.Section[*TypeID]
	protos           *section.Section[*ProtoID]
	fields           *section.Section[*FieldID]
	methods          *section.Section[*MethodID]
	classes          *section.Section[*ClassDef]
	typeLists        *section.Section[*TypeList]
	annotationGroups *section.Section[*AnnotationGroup]
	annotationSets   *section.Section[*AnnotationSet]
	directories      *section.Section[*AnnotationsDirectory]
	stringData       *section.Section[*StringData]
	annotations      *section.Section[*AnnotationItem]
	codes            *section.Section[*CodeItem]
	debugInfos       *section.Section[*DebugInfo]
	staticValues     *section.Section[*StaticValues]
	classData        *section.Section[*ClassData]
	mapList          *MapList
}

// layoutSection is the type-erased view of a section used for layout.
type layoutSection interface {
	block.Block
	Name() string
	Len() int
	Layout(pos int) int
	Alignment() int
	Offset() int
	IndexOffsets()
	Rehash()
}

type part struct {
	typ ItemType
	sec layoutSection
}

// New creates an empty container.
func New() *Dex {
	return newDex(DefaultVersion)
}

func newDex(version string) *Dex {
	d := &Dex{header: newHeader(version), mapList: &MapList{}}
	aligned := []section.Option{section.WithAlignment(4), section.WithGeneration(&d.gen)}
	packed := []section.Option{section.WithGeneration(&d.gen)}

	d.strings = section.New("string_ids", func() *StringID { return newStringID(d) }, aligned...)
	d.types = section.New("type_ids", func() *TypeID { return newTypeID(d) }, aligned...)
	d.protos = section.New("proto_ids", func() *ProtoID { return newProtoID(d) }, aligned...)
	d.fields = section.New("field_ids", func() *FieldID { return newFieldID(d) }, aligned...)
	d.methods = section.New("method_ids", func() *MethodID { return newMethodID(d) }, aligned...)
	d.classes = section.New("class_defs", func() *ClassDef { return newClassDef(d) }, aligned...)
	d.typeLists = section.New("type_lists", func() *TypeList { return newTypeList(d) }, aligned...)
	d.annotationGroups = section.New("annotation_set_ref_lists",
		func() *AnnotationGroup { return newAnnotationGroup(d) }, aligned...)
	d.annotationSets = section.New("annotation_sets", func() *AnnotationSet { return newAnnotationSet(d) }, aligned...)
	d.directories = section.New("annotations_directories",
		func() *AnnotationsDirectory { return newAnnotationsDirectory(d) }, aligned...)
	d.stringData = section.New("string_data", func() *StringData { return newStringData(d) }, packed...)
	d.annotations = section.New("annotation_items", func() *AnnotationItem { return newAnnotationItem(d) }, packed...)
	d.codes = section.New("code_items", func() *CodeItem { return newCodeItem(d) }, aligned...)
	d.debugInfos = section.New("debug_info_items", func() *DebugInfo { return newDebugInfo(d) }, packed...)
	d.staticValues = section.New("encoded_array_items",
		func() *StaticValues { return newStaticValues(d) }, packed...)
	d.classData = section.New("class_data_items", func() *ClassData { return newClassData(d) }, packed...)

	return d
}

// parts lists the sections in file order. Class data comes last because its
// size depends on the code offsets laid out before it.
func (d *Dex) parts() []part {
	return []part{
		{TypeStringIDItem, d.strings},
		{TypeTypeIDItem, d.types},
		{TypeProtoIDItem, d.protos},
		{TypeFieldIDItem, d.fields},
		{TypeMethodIDItem, d.methods},
		{TypeClassDefItem, d.classes},
		{TypeTypeList, d.typeLists},
		{TypeAnnotationSetRefList, d.annotationGroups},
		{TypeAnnotationSetItem, d.annotationSets},
		{TypeAnnotationsDirectoryItem, d.directories},
		{TypeCodeItem, d.codes},
		{TypeStringDataItem, d.stringData},
		{TypeDebugInfoItem, d.debugInfos},
		{TypeAnnotationItem, d.annotations},
		{TypeEncodedArrayItem, d.staticValues},
		{TypeClassDataItem, d.classData},
	}
}

func (d *Dex) firstDataPart() int {
	return slices.IndexFunc(d.parts(), func(p part) bool { return p.typ == TypeTypeList })
}

// Parse reads a DEX file. The returned container resolves references lazily.
//
// Returns:
//   - *Dex: the container
//   - error: errs.ErrMalformedInput (or a wrapping error) for invalid input,
//     errs.ErrUnsupported for big-endian files and unmodelled sections such as
//     call sites and method handles
func Parse(data []byte) (*Dex, error) {
	version, err := checkMagic(data)
	if err != nil {
		return nil, err
	}
	eng, ok := endian.EngineForTag(engine.Uint32(data[offEndianTag:]))
	if !ok {
		return nil, fmt.Errorf("%w: endian tag 0x%08x", errs.ErrInvalidMagic, engine.Uint32(data[offEndianTag:]))
	}
	if eng != engine {
		return nil, fmt.Errorf("%w: big-endian dex", errs.ErrUnsupported)
	}
	if hs := engine.Uint32(data[offHeaderSize:]); hs != HeaderSize {
		return nil, fmt.Errorf("%w: header size 0x%x", errs.ErrMalformedInput, hs)
	}
	if size := int(engine.Uint32(data[offFileSize:])); size >= HeaderSize && size < len(data) {
		data = data[:size]
	}

	d := newDex(version)
	copy(d.header.data.Data(), data[:HeaderSize])

	r := block.NewReader(data)
	if err := r.Seek(d.header.MapOffset()); err != nil {
		return nil, fmt.Errorf("map list: %w", err)
	}
	if err := d.mapList.read(r); err != nil {
		return nil, err
	}
	d.mapList.offset = d.header.MapOffset()

	for _, e := range d.mapList.entries {
		if err := d.loadPart(r, e); err != nil {
			return nil, fmt.Errorf("%s at 0x%x: %w", e.typ, e.offset, err)
		}
	}
	d.finishLoad()

	return d, nil
}

func (d *Dex) loadPart(r *block.Reader, e mapEntry) error {
	switch e.typ {
	case TypeHeaderItem, TypeMapList:
		return nil
	case TypeStringIDItem:
		return load(r, d.strings, e)
	case TypeTypeIDItem:
		return load(r, d.types, e)
	case TypeProtoIDItem:
		return load(r, d.protos, e)
	case TypeFieldIDItem:
		return load(r, d.fields, e)
	case TypeMethodIDItem:
		return load(r, d.methods, e)
	case TypeClassDefItem:
		return load(r, d.classes, e)
	case TypeTypeList:
		return load(r, d.typeLists, e)
	case TypeAnnotationSetRefList:
		return load(r, d.annotationGroups, e)
	case TypeAnnotationSetItem:
		return load(r, d.annotationSets, e)
	case TypeAnnotationsDirectoryItem:
		return load(r, d.directories, e)
	case TypeStringDataItem:
		return load(r, d.stringData, e)
	case TypeAnnotationItem:
		return load(r, d.annotations, e)
	case TypeCodeItem:
		return load(r, d.codes, e)
	case TypeDebugInfoItem:
		return load(r, d.debugInfos, e)
	case TypeEncodedArrayItem:
		return load(r, d.staticValues, e)
	case TypeClassDataItem:
		return load(r, d.classData, e)
	default:
		if e.size == 0 {
			return nil
		}

		return fmt.Errorf("%w: %d items", errs.ErrUnsupported, e.size)
	}
}

// load reads e.size consecutive items of s starting at e.offset.
func load[T interface {
	section.Node
	reader
}](r *block.Reader, s *section.Section[T], e mapEntry) error {
	if err := r.Seek(e.offset); err != nil {
		return err
	}
	if e.size > r.Available() {
		return fmt.Errorf("%w: %d items in %d bytes", errs.ErrTruncated, e.size, r.Available())
	}
	s.Reserve(e.size)
	for i := range e.size {
		pos := block.AlignUp(r.Position(), s.Alignment())
		if err := r.Seek(pos); err != nil {
			return err
		}
		it := s.CreateItem()
		it.SetOffset(pos)
		if err := it.read(r); err != nil {
			return fmt.Errorf("item %d: %w", i, err)
		}
	}

	return nil
}

func (d *Dex) finishLoad() {
	for _, p := range d.parts() {
		p.sec.IndexOffsets()
	}
	// raw values only match the loaded layout until the first edit
	for e := range d.References() {
		e.Pull()
	}
	for _, p := range d.parts() {
		p.sec.Rehash()
	}
	for _, dir := range d.directories.Items() {
		dir.link()
	}
	d.gen.Commit()
}

// Header returns the header item.
func (d *Dex) Header() *Header { return d.header }

// Version returns the format version, e.g. "035".
func (d *Dex) Version() string { return d.header.Version() }

// Generation returns the edit marker; Stale reports edits since the last Refresh.
func (d *Dex) Generation() *block.Generation { return &d.gen }

// Strings returns the string_ids section.
func (d *Dex) Strings() *section.Section[*StringID] { return d.strings }

// StringData returns the string_data section.
func (d *Dex) StringData() *section.Section[*StringData] { return d.stringData }

// Types returns the type_ids section.
func (d *Dex) Types() *section.Section[*TypeID] { return d.types }

// Protos returns the proto_ids section.
func (d *Dex) Protos() *section.Section[*ProtoID] { return d.protos }

// Fields returns the field_ids section.
func (d *Dex) Fields() *section.Section[*FieldID] { return d.fields }

// Methods returns the method_ids section.
func (d *Dex) Methods() *section.Section[*MethodID] { return d.methods }

// Classes returns the class_defs section.
func (d *Dex) Classes() *section.Section[*ClassDef] { return d.classes }

// TypeLists returns the type_list section.
func (d *Dex) TypeLists() *section.Section[*TypeList] { return d.typeLists }

// Annotations returns the annotation_item section.
func (d *Dex) Annotations() *section.Section[*AnnotationItem] { return d.annotations }

// AnnotationSets returns the annotation_set_item section.
func (d *Dex) AnnotationSets() *section.Section[*AnnotationSet] { return d.annotationSets }

// AnnotationGroups returns the annotation_set_ref_list section.
func (d *Dex) AnnotationGroups() *section.Section[*AnnotationGroup] { return d.annotationGroups }

// Directories returns the annotations_directory_item section.
func (d *Dex) Directories() *section.Section[*AnnotationsDirectory] { return d.directories }

// Codes returns the code_item section.
func (d *Dex) Codes() *section.Section[*CodeItem] { return d.codes }

// DebugInfos returns the debug_info_item section.
func (d *Dex) DebugInfos() *section.Section[*DebugInfo] { return d.debugInfos }

// ClassData returns the class_data_item section.
func (d *Dex) ClassData() *section.Section[*ClassData] { return d.classData }

// StaticValues returns the encoded_array_item section.
func (d *Dex) StaticValues() *section.Section[*StaticValues] { return d.staticValues }

// Pinned reports whether the container holds code or debug info. Both are
// copied as raw bytes that may embed identifier indexes, so identifiers can
// neither be reordered nor removed.
func (d *Dex) Pinned() bool {
	return d.codes.Len() > 0 || d.debugInfos.Len() > 0
}

// GetOrCreateString returns the canonical string id for s.
func (d *Dex) GetOrCreateString(s string) (*StringID, error) {
	return d.strings.GetOrCreate(key.StringKey(s))
}

// GetOrCreateType returns the canonical type id for t.
func (d *Dex) GetOrCreateType(t key.TypeKey) (*TypeID, error) {
	return d.types.GetOrCreate(t)
}

// GetOrCreateProto returns the canonical prototype for p.
func (d *Dex) GetOrCreateProto(p key.ProtoKey) (*ProtoID, error) {
	return d.protos.GetOrCreate(p)
}

// GetOrCreateField returns the canonical field id for f.
func (d *Dex) GetOrCreateField(f key.FieldKey) (*FieldID, error) {
	return d.fields.GetOrCreate(f)
}

// GetOrCreateMethod returns the canonical method id for m.
func (d *Dex) GetOrCreateMethod(m key.MethodKey) (*MethodID, error) {
	return d.methods.GetOrCreate(m)
}

// GetOrCreateClass returns the class definition of t, creating a public class
// extending java.lang.Object when none exists.
func (d *Dex) GetOrCreateClass(t key.TypeKey) (*ClassDef, error) {
	if c, ok := d.classes.Lookup(t); ok {
		return c, nil
	}
	c, err := d.classes.GetOrCreate(t)
	if err != nil {
		return nil, err
	}
	c.SetAccessFlags(AccPublic)
	if err := c.SetSuperclass("Ljava/lang/Object;"); err != nil {
		return nil, err
	}

	return c, nil
}

// Class returns the class definition of t.
func (d *Dex) Class(t key.TypeKey) (*ClassDef, bool) {
	return d.classes.Lookup(t)
}

// RenameString changes the value of s. Every item referring to s follows it.
func (d *Dex) RenameString(s *StringID, value string) error {
	return d.strings.Rekey(s, key.StringKey(value))
}

func sectionEdges[T interface {
	section.Node
	edger
}](s *section.Section[T], yield func(ref.Edge) bool) bool {
	for _, it := range s.Items() {
		if !it.edges(yield) {
			return false
		}
	}

	return true
}

// References yields every reference held by any item of the container.
func (d *Dex) References() iter.Seq[ref.Edge] {
	return func(yield func(ref.Edge) bool) {
		_ = sectionEdges(d.strings, yield) &&
			sectionEdges(d.types, yield) &&
			sectionEdges(d.protos, yield) &&
			sectionEdges(d.fields, yield) &&
			sectionEdges(d.methods, yield) &&
			sectionEdges(d.classes, yield) &&
			sectionEdges(d.typeLists, yield) &&
			sectionEdges(d.annotationGroups, yield) &&
			sectionEdges(d.annotationSets, yield) &&
			sectionEdges(d.directories, yield) &&
			sectionEdges(d.annotations, yield) &&
			sectionEdges(d.codes, yield) &&
			sectionEdges(d.staticValues, yield) &&
			sectionEdges(d.classData, yield)
	}
}

// UsedItems yields every item reachable from the class definitions.
func (d *Dex) UsedItems() iter.Seq[section.Item] {
	return func(yield func(section.Item) bool) {
		for _, c := range d.classes.Items() {
			if !c.edges(func(e ref.Edge) bool {
				r, ok := e.(section.Reacher)
				if !ok {
					return true
				}
				for it := range r.UsedItems() {
					if !yield(it) {
						return false
					}
				}

				return true
			}) {
				return
			}
		}
	}
}

func (d *Dex) refreshEdges() {
	for e := range d.References() {
		e.Refresh()
	}
}

// checkIDOrder reports the first identifier section that sorting would
// reorder.
func (d *Dex) checkIDOrder() error {
	for _, sorted := range []struct {
		name string
		ok   bool
	}{
		{d.strings.Name(), slices.IsSortedFunc(d.strings.Items(), byKey[*StringID])},
		{d.types.Name(), slices.IsSortedFunc(d.types.Items(), byKey[*TypeID])},
		{d.protos.Name(), slices.IsSortedFunc(d.protos.Items(), byKey[*ProtoID])},
		{d.fields.Name(), slices.IsSortedFunc(d.fields.Items(), byKey[*FieldID])},
		{d.methods.Name(), slices.IsSortedFunc(d.methods.Items(), byKey[*MethodID])},
	} {
		if !sorted.ok {
			return fmt.Errorf("%w: %s out of order while code is present", errs.ErrUnsupported, sorted.name)
		}
	}

	return nil
}

func (d *Dex) sortIDs() {
	d.strings.Sort(byKey[*StringID])
	d.types.Sort(byKey[*TypeID])
	d.protos.Sort(byKey[*ProtoID])
	d.fields.Sort(byKey[*FieldID])
	d.methods.Sort(byKey[*MethodID])
}

func byKey[T section.Node](a, b T) int {
	return key.Compare(a.Key(), b.Key())
}

func (d *Dex) sortAnnotations() {
	for _, a := range d.annotations.Items() {
		a.ann.sortElements()
	}
	for _, s := range d.annotationSets.Items() {
		s.sortEntries()
	}
}

// layout assigns offsets to every section and rebuilds the map list.
//
// Returns:
//   - int: the file size
func (d *Dex) layout() int {
	pos := HeaderSize
	entries := []mapEntry{{typ: TypeHeaderItem, size: 1}}
	for _, p := range d.parts() {
		if p.sec.Len() == 0 {
			p.sec.Layout(pos)
			continue
		}
		pos = p.sec.Layout(block.AlignUp(pos, p.sec.Alignment()))
		entries = append(entries, mapEntry{typ: p.typ, size: p.sec.Len(), offset: p.sec.Offset()})
	}
	pos = block.AlignUp(pos, d.mapList.Alignment())
	d.mapList.offset = pos
	d.mapList.entries = append(entries, mapEntry{typ: TypeMapList, size: 1, offset: pos})

	return pos + d.mapList.CountBytes()
}

func (d *Dex) syncHeader(fileSize int) {
	h := d.header
	h.data.PutUint32(offFileSize, uint32(fileSize))
	h.data.PutUint32(offLink, 0)
	h.data.PutUint32(offLink+4, 0)
	h.data.PutUint32(offMapOff, uint32(d.mapList.offset))

	ids := d.parts()[:d.firstDataPart()]
	for slot, p := range ids {
		h.setSection(slot, p.sec.Len(), p.sec.Offset())
	}

	dataOff := d.mapList.offset
	for _, p := range d.parts()[d.firstDataPart():] {
		if p.sec.Len() > 0 {
			dataOff = p.sec.Offset()
			break
		}
	}
	h.setSection(slotData, fileSize-dataOff, dataOff)
}

// Refresh sorts the identifier sections, lays out every section and pushes the
// resulting indexes and offsets into every reference. Calling it again without
// edits changes nothing.
//
// Returns:
//   - error: errs.ErrDanglingReference when references point at missing items,
//     errs.ErrUnsupported when a pinned container needs identifier reordering
func (d *Dex) Refresh() error {
	if d.Pinned() {
		if err := d.checkIDOrder(); err != nil {
			return err
		}
	}
	d.sortIDs()
	d.layout()
	d.refreshEdges()
	for _, cd := range d.classData.Items() {
		cd.sortMembers()
	}
	d.sortAnnotations()
	for _, dir := range d.directories.Items() {
		dir.refresh()
	}
	for _, p := range d.parts() {
		p.sec.Rehash()
	}
	// the second pass settles class data sizes against the final code offsets
	size := 0
	for range 2 {
		size = d.layout()
		d.refreshEdges()
	}
	d.syncHeader(size)
	d.gen.Commit()

	return d.Validate()
}

// Validate reports every reference that does not resolve.
func (d *Dex) Validate() error {
	var problems []error
	for e := range d.References() {
		r, ok := e.(interface {
			Dangling() bool
			Raw() int
		})
		if ok && r.Dangling() {
			problems = append(problems, fmt.Errorf("%w: raw value 0x%x", errs.ErrDanglingReference, r.Raw()))
		}
	}

	return errors.Join(problems...)
}

// Bytes refreshes the container and serializes it with a fresh checksum and
// signature.
func (d *Dex) Bytes() ([]byte, error) {
	if err := d.Refresh(); err != nil {
		return nil, err
	}
	out, err := block.Serialize(d)
	if err != nil {
		return nil, err
	}
	sign(out)
	copy(d.header.data.Data(), out[:HeaderSize])

	return out, nil
}

// CountBytes implements block.Block.
func (d *Dex) CountBytes() int {
	pos := HeaderSize
	for _, p := range d.parts() {
		if p.sec.Len() > 0 {
			pos = block.AlignUp(pos, p.sec.Alignment()) + p.sec.CountBytes()
		}
	}

	return block.AlignUp(pos, d.mapList.Alignment()) + d.mapList.CountBytes()
}

// CountUpTo implements block.Block.
func (d *Dex) CountUpTo(c *block.Counter) {
	if c.Enter(d) {
		return
	}
	d.header.CountUpTo(c)
	for _, p := range d.parts() {
		if p.sec.Len() == 0 {
			continue
		}
		c.Align(p.sec.Alignment())
		p.sec.CountUpTo(c)
		if c.Found() {
			return
		}
	}
	c.Align(d.mapList.Alignment())
	d.mapList.CountUpTo(c)
}

// WriteBytes implements block.Block.
func (d *Dex) WriteBytes(w *block.Writer) error {
	if err := d.header.WriteBytes(w); err != nil {
		return err
	}
	for _, p := range d.parts() {
		if p.sec.Len() == 0 {
			continue
		}
		w.Align(p.sec.Alignment())
		if err := p.sec.WriteBytes(w); err != nil {
			return err
		}
	}
	w.Align(d.mapList.Alignment())

	return d.mapList.WriteBytes(w)
}

// AppendText implements textfmt.Appender.
func (d *Dex) AppendText(w *textfmt.Writer) error {
	w.Comment("dex %s", d.Version())
	for _, p := range d.parts() {
		w.Comment("%s: %d", p.sec.Name(), p.sec.Len())
	}
	for _, c := range d.classes.Items() {
		w.Newline()
		if err := c.AppendText(w); err != nil {
			return err
		}
	}

	return nil
}
