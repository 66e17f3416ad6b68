package dex

import (
	"fmt"
	"slices"

	"github.com/arloliu/apkblock/block"
	"github.com/arloliu/apkblock/directory"
	"github.com/arloliu/apkblock/errs"
	"github.com/arloliu/apkblock/key"
	"github.com/arloliu/apkblock/offsets"
	"github.com/arloliu/apkblock/ref"
)

// AnnotationSet is an annotation_set_item: offsets of annotation items sorted
// by type index.
type AnnotationSet struct {
	item
	entries *offsets.Array[*AnnotationItem]
}

func newAnnotationSet(d *Dex) *AnnotationSet {
	entries, _ := offsets.New[*AnnotationItem](d.annotations)
	return &AnnotationSet{item: item{dex: d}, entries: entries}
}

// Len returns the number of annotations.
func (s *AnnotationSet) Len() int { return s.entries.Len() }

// Annotations returns the present annotation items in order.
func (s *AnnotationSet) Annotations() []*AnnotationItem {
	return slices.Collect(s.entries.All())
}

// Find returns the annotation of type t.
func (s *AnnotationSet) Find(t key.TypeKey) (*AnnotationItem, bool) {
	for a := range s.entries.All() {
		if a.Type() == t {
			return a, true
		}
	}

	return nil, false
}

// SetKeyOf returns the typed key, nil when an entry is unresolved.
func (s *AnnotationSet) SetKeyOf() AnnotationSetKey {
	k, _ := s.Key().(AnnotationSetKey)
	return k
}

// Key implements section.Item.
func (s *AnnotationSet) Key() key.Key {
	out := make(AnnotationSetKey, 0, s.entries.Len())
	for a := range s.entries.All() {
		ak, ok := a.Key().(AnnotationKey)
		if !ok {
			return nil
		}
		out = append(out, ak)
	}
	slices.SortStableFunc(out, func(x, y AnnotationKey) int { return x.Type.Compare(y.Type) })

	return out
}

// SetKey implements section.Item.
func (s *AnnotationSet) SetKey(k key.Key) error {
	sk, ok := k.(AnnotationSetKey)
	if !ok {
		return invalidKey("annotation set", k)
	}
	for _, a := range sk {
		if a.Visibility > VisibilitySystem || !a.Type.Valid() {
			return invalidKey("annotation set", k)
		}
	}
	items := make([]*AnnotationItem, 0, len(sk))
	for _, a := range sk {
		it, err := s.dex.annotations.GetOrCreate(a)
		if err != nil {
			return err
		}
		items = append(items, it)
	}
	s.entries.SetItems(items)
	s.sortEntries()

	return nil
}

func (s *AnnotationSet) sortEntries() bool {
	return s.entries.Sort(func(x, y *AnnotationItem) int {
		return key.Compare(x.ann.typ.Key(), y.ann.typ.Key())
	})
}

// Alignment implements block.Aligned.
func (s *AnnotationSet) Alignment() int { return 4 }

// CountBytes implements block.Block.
func (s *AnnotationSet) CountBytes() int { return s.entries.CountBytes() }

// CountUpTo implements block.Block.
func (s *AnnotationSet) CountUpTo(c *block.Counter) { countLeaf(c, s) }

// WriteBytes implements block.Block.
func (s *AnnotationSet) WriteBytes(w *block.Writer) error { return s.entries.WriteBytes(w) }

func (s *AnnotationSet) read(r *block.Reader) error { return s.entries.ReadBytes(r) }

func (s *AnnotationSet) edges(yield func(ref.Edge) bool) bool {
	return yield(s.entries)
}

// AnnotationGroup is an annotation_set_ref_list: one annotation set offset per
// method parameter, 0 for parameters without annotations. Slots never shift.
type AnnotationGroup struct {
	item
	slots []*ref.Reference[*AnnotationSet]
}

func newAnnotationGroup(d *Dex) *AnnotationGroup {
	return &AnnotationGroup{item: item{dex: d}}
}

func (g *AnnotationGroup) newSlot(off int) *ref.Reference[*AnnotationSet] {
	return ref.NewOffset(block.Field(block.NewInt(off)), g.dex.annotationSets)
}

// Len returns the number of parameter slots.
func (g *AnnotationGroup) Len() int { return len(g.slots) }

// Slot returns the annotation set of parameter i.
func (g *AnnotationGroup) Slot(i int) (*AnnotationSet, bool) {
	if i < 0 || i >= len(g.slots) {
		return nil, false
	}

	return g.slots[i].Item()
}

// GroupKey returns the typed key, nil when a slot is unresolved.
func (g *AnnotationGroup) GroupKey() AnnotationGroupKey {
	k, _ := g.Key().(AnnotationGroupKey)
	return k
}

// Key implements section.Item.
func (g *AnnotationGroup) Key() key.Key {
	out := make(AnnotationGroupKey, len(g.slots))
	for i, s := range g.slots {
		if s.IsNull() {
			continue
		}
		set, ok := s.Item()
		if !ok {
			return nil
		}
		sk := set.Key()
		if sk == nil {
			return nil
		}
		out[i] = sk
	}

	return out
}

// SetKey implements section.Item.
func (g *AnnotationGroup) SetKey(k key.Key) error {
	gk, ok := k.(AnnotationGroupKey)
	if !ok {
		return invalidKey("annotation group", k)
	}
	for _, s := range gk {
		if _, ok := s.(AnnotationSetKey); s != nil && !ok {
			return invalidKey("annotation group", k)
		}
	}
	slots := make([]*ref.Reference[*AnnotationSet], 0, len(gk))
	for _, s := range gk {
		slot := g.newSlot(0)
		if s != nil {
			if err := slot.SetKey(s); err != nil {
				return err
			}
		}
		slots = append(slots, slot)
	}
	g.slots = slots

	return nil
}

// Alignment implements block.Aligned.
func (g *AnnotationGroup) Alignment() int { return 4 }

// CountBytes implements block.Block.
func (g *AnnotationGroup) CountBytes() int { return 4 + 4*len(g.slots) }

// CountUpTo implements block.Block.
func (g *AnnotationGroup) CountUpTo(c *block.Counter) { countLeaf(c, g) }

// WriteBytes implements block.Block.
func (g *AnnotationGroup) WriteBytes(w *block.Writer) error {
	w.Uint32(uint32(len(g.slots)))
	for _, s := range g.slots {
		w.Uint32(uint32(s.Raw()))
	}

	return nil
}

func (g *AnnotationGroup) read(r *block.Reader) error {
	n, err := r.Uint32()
	if err != nil {
		return err
	}
	if int(n) > r.Available()/4 {
		return fmt.Errorf("%w: annotation set ref list of %d entries", errs.ErrTruncated, n)
	}
	g.slots = make([]*ref.Reference[*AnnotationSet], 0, n)
	for range n {
		off, err := r.Uint32()
		if err != nil {
			return err
		}
		g.slots = append(g.slots, g.newSlot(int(off)))
	}

	return nil
}

func (g *AnnotationGroup) edges(yield func(ref.Edge) bool) bool {
	for _, s := range g.slots {
		if !yield(s) {
			return false
		}
	}

	return true
}

// directoryHeaderSize is the fixed part of an annotations directory.
const directoryHeaderSize = 16

// AnnotationsDirectory is an annotations_directory_item: the class annotation
// set and the field, method and parameter annotations of one class.
type AnnotationsDirectory struct {
	item
	header   *block.Bytes
	classSet *ref.Reference[*AnnotationSet]
	fields   *directory.Map[*FieldID, *AnnotationSet]
	methods  *directory.Map[*MethodID, *AnnotationSet]
	params   *directory.Map[*MethodID, *AnnotationGroup]
}

func newAnnotationsDirectory(d *Dex) *AnnotationsDirectory {
	dir := &AnnotationsDirectory{
		item:    item{dex: d},
		header:  block.NewBytes(directoryHeaderSize),
		fields:  directory.NewMap[*FieldID, *AnnotationSet](d.annotationSets),
		methods: directory.NewMap[*MethodID, *AnnotationSet](d.annotationSets),
		params:  directory.NewMap[*MethodID, *AnnotationGroup](d.annotationGroups),
	}
	dir.classSet = ref.NewOffset(block.Field(dir.header.Field(0, 4)), d.annotationSets)

	return dir
}

// ClassAnnotations returns the class annotation set.
func (dir *AnnotationsDirectory) ClassAnnotations() (*AnnotationSet, bool) {
	return dir.classSet.Item()
}

// FieldAnnotations returns the annotation set of field f.
func (dir *AnnotationsDirectory) FieldAnnotations(f *FieldID) (*AnnotationSet, bool) {
	for v := range dir.fields.Values(f) {
		return v, true
	}

	return nil, false
}

// MethodAnnotations returns the annotation set of method m.
func (dir *AnnotationsDirectory) MethodAnnotations(m *MethodID) (*AnnotationSet, bool) {
	for v := range dir.methods.Values(m) {
		return v, true
	}

	return nil, false
}

// ParameterAnnotations returns the annotation set of parameter i of method m.
// Parameters are looked up by index; an absent parameter does not shift the
// ones after it.
func (dir *AnnotationsDirectory) ParameterAnnotations(m *MethodID, i int) (*AnnotationSet, bool) {
	for g := range dir.params.Values(m) {
		return g.Slot(i)
	}

	return nil, false
}

// ParameterGroup returns the parameter annotation group of method m.
func (dir *AnnotationsDirectory) ParameterGroup(m *MethodID) (*AnnotationGroup, bool) {
	for g := range dir.params.Values(m) {
		return g, true
	}

	return nil, false
}

// Fields returns the field map.
func (dir *AnnotationsDirectory) Fields() *directory.Map[*FieldID, *AnnotationSet] { return dir.fields }

// Methods returns the method map.
func (dir *AnnotationsDirectory) Methods() *directory.Map[*MethodID, *AnnotationSet] {
	return dir.methods
}

// Parameters returns the parameter map.
func (dir *AnnotationsDirectory) Parameters() *directory.Map[*MethodID, *AnnotationGroup] {
	return dir.params
}

// IsEmpty reports whether the directory annotates nothing.
func (dir *AnnotationsDirectory) IsEmpty() bool {
	_, hasClass := dir.classSet.Item()
	return !hasClass && dir.fields.IsEmpty() && dir.methods.IsEmpty() && dir.params.IsEmpty()
}

// Key implements section.Item. Directories belong to one class and are not
// deduplicated.
func (dir *AnnotationsDirectory) Key() key.Key { return nil }

// SetKey implements section.Item.
func (dir *AnnotationsDirectory) SetKey(k key.Key) error {
	return invalidKey("annotations directory", k)
}

func (dir *AnnotationsDirectory) link() {
	dir.fields.LinkAll(dir.dex.fields.Get)
	dir.methods.LinkAll(dir.dex.methods.Get)
	dir.params.LinkAll(dir.dex.methods.Get)
}

// refresh drops entries whose values were removed and restores index order.
func (dir *AnnotationsDirectory) refresh() {
	dir.fields.Refresh()
	dir.methods.Refresh()
	dir.params.Refresh()
	dir.classSet.Refresh()
}

// Alignment implements block.Aligned.
func (dir *AnnotationsDirectory) Alignment() int { return 4 }

// CountBytes implements block.Block.
func (dir *AnnotationsDirectory) CountBytes() int {
	return directoryHeaderSize + dir.fields.CountBytes() + dir.methods.CountBytes() + dir.params.CountBytes()
}

// CountUpTo implements block.Block.
func (dir *AnnotationsDirectory) CountUpTo(c *block.Counter) {
	if c.Enter(dir) {
		return
	}
	dir.header.CountUpTo(c)
	dir.fields.CountUpTo(c)
	dir.methods.CountUpTo(c)
	dir.params.CountUpTo(c)
}

// WriteBytes implements block.Block.
func (dir *AnnotationsDirectory) WriteBytes(w *block.Writer) error {
	dir.header.PutUint32(4, uint32(dir.fields.Len()))
	dir.header.PutUint32(8, uint32(dir.methods.Len()))
	dir.header.PutUint32(12, uint32(dir.params.Len()))
	if err := dir.header.WriteBytes(w); err != nil {
		return err
	}
	if err := dir.fields.WriteBytes(w); err != nil {
		return err
	}
	if err := dir.methods.WriteBytes(w); err != nil {
		return err
	}

	return dir.params.WriteBytes(w)
}

func (dir *AnnotationsDirectory) read(r *block.Reader) error {
	if err := dir.header.ReadBytes(r); err != nil {
		return err
	}
	nf, nm, np := int(dir.header.Uint32(4)), int(dir.header.Uint32(8)), int(dir.header.Uint32(12))
	if (nf+nm+np)*directory.EntrySize > r.Available() || nf < 0 || nm < 0 || np < 0 {
		return fmt.Errorf("%w: directory with %d/%d/%d entries", errs.ErrTruncated, nf, nm, np)
	}
	if err := dir.fields.ReadEntries(r, nf); err != nil {
		return err
	}
	if err := dir.methods.ReadEntries(r, nm); err != nil {
		return err
	}

	return dir.params.ReadEntries(r, np)
}

func (dir *AnnotationsDirectory) edges(yield func(ref.Edge) bool) bool {
	if !yield(dir.classSet) {
		return false
	}
	for _, seq := range []func(func(ref.Edge) bool){
		dir.fields.References(), dir.fields.Definitions(),
		dir.methods.References(), dir.methods.Definitions(),
		dir.params.References(), dir.params.Definitions(),
	} {
		for e := range seq {
			if !yield(e) {
				return false
			}
		}
	}

	return true
}
