package dex

import (
	"fmt"
	"strings"

	"github.com/arloliu/apkblock/block"
	"github.com/arloliu/apkblock/errs"
	"github.com/arloliu/apkblock/key"
	"github.com/arloliu/apkblock/ref"
	"github.com/arloliu/apkblock/textfmt"
)

// classDefSize is the size of a class_def_item.
const classDefSize = 32

// ClassDef is a class_def_item.
type ClassDef struct {
	item
	data        *block.Bytes
	class       *ref.Reference[*TypeID]
	super       *ref.Reference[*TypeID]
	interfaces  *ref.Reference[*TypeList]
	sourceFile  *ref.Reference[*StringID]
	annotations *ref.Reference[*AnnotationsDirectory]
	classData   *ref.Reference[*ClassData]
	statics     *ref.Reference[*StaticValues]
}

func newClassDef(d *Dex) *ClassDef {
	c := &ClassDef{item: item{dex: d}, data: block.NewBytes(classDefSize)}
	c.class = ref.NewIndex(block.Field(c.data.Field(0, 4)), d.types, ref.NoNull)
	c.super = ref.NewIndex(block.Field(c.data.Field(8, 4)), d.types, NoIndex)
	c.interfaces = ref.NewOffset(block.Field(c.data.Field(12, 4)), d.typeLists)
	c.sourceFile = ref.NewIndex(block.Field(c.data.Field(16, 4)), d.strings, NoIndex)
	c.annotations = ref.NewOffset(block.Field(c.data.Field(20, 4)), d.directories)
	c.classData = ref.NewOffset(block.Field(c.data.Field(24, 4)), d.classData)
	c.statics = ref.NewOffset(block.Field(c.data.Field(28, 4)), d.staticValues)
	c.super.Clear()
	c.sourceFile.Clear()

	return c
}

// Type returns the class descriptor.
func (c *ClassDef) Type() key.TypeKey {
	return keyOf[key.TypeKey](c.class)
}

// AccessFlags returns the access flags.
func (c *ClassDef) AccessFlags() uint32 {
	return c.data.Uint32(4)
}

// SetAccessFlags replaces the access flags.
func (c *ClassDef) SetAccessFlags(flags uint32) {
	c.data.PutUint32(4, flags)
	c.dex.gen.Touch()
}

// Superclass returns the superclass, false for java.lang.Object itself.
func (c *ClassDef) Superclass() (key.TypeKey, bool) {
	k, ok := c.super.Key().(key.TypeKey)
	return k, ok
}

// SetSuperclass sets the superclass; "" removes it.
func (c *ClassDef) SetSuperclass(t key.TypeKey) error {
	c.dex.gen.Touch()
	if t == "" {
		c.super.Clear()
		return nil
	}

	return c.super.SetKey(t)
}

// Interfaces returns the implemented interfaces.
func (c *ClassDef) Interfaces() key.TypeListKey {
	if tl, ok := c.interfaces.Item(); ok {
		return tl.Types()
	}

	return nil
}

// SetInterfaces replaces the implemented interfaces.
func (c *ClassDef) SetInterfaces(list key.TypeListKey) error {
	c.dex.gen.Touch()
	if len(list) == 0 {
		c.interfaces.Clear()
		return nil
	}

	return c.interfaces.SetKey(list)
}

// SourceFile returns the source file name.
func (c *ClassDef) SourceFile() (string, bool) {
	k, ok := c.sourceFile.Key().(key.StringKey)
	return string(k), ok
}

// SetSourceFile sets the source file name.
func (c *ClassDef) SetSourceFile(name string) error {
	c.dex.gen.Touch()
	return c.sourceFile.SetKey(key.StringKey(name))
}

// ClearSourceFile removes the source file name.
func (c *ClassDef) ClearSourceFile() {
	c.dex.gen.Touch()
	c.sourceFile.Clear()
}

// Directory returns the annotations directory.
func (c *ClassDef) Directory() (*AnnotationsDirectory, bool) {
	return c.annotations.Item()
}

func (c *ClassDef) ensureDirectory() *AnnotationsDirectory {
	if dir, ok := c.annotations.Item(); ok {
		return dir
	}
	dir := c.dex.directories.CreateItem()
	c.annotations.SetItem(dir)

	return dir
}

// Key implements section.Item.
func (c *ClassDef) Key() key.Key {
	if c.class.Key() == nil {
		return nil
	}

	return c.Type()
}

// SetKey implements section.Item.
func (c *ClassDef) SetKey(k key.Key) error {
	tk, ok := k.(key.TypeKey)
	if !ok || !tk.Valid() || tk.IsPrimitive() || tk.IsArray() {
		return invalidKey("class def", k)
	}

	return c.class.SetKey(tk)
}

// CountBytes implements block.Block.
func (c *ClassDef) CountBytes() int { return classDefSize }

// CountUpTo implements block.Block.
func (c *ClassDef) CountUpTo(cnt *block.Counter) { countLeaf(cnt, c) }

// WriteBytes implements block.Block.
func (c *ClassDef) WriteBytes(w *block.Writer) error { return c.data.WriteBytes(w) }

func (c *ClassDef) read(r *block.Reader) error {
	if err := c.data.ReadBytes(r); err != nil {
		return err
	}
	c.super.Invalidate()
	c.sourceFile.Invalidate()

	return nil
}

func (c *ClassDef) edges(yield func(ref.Edge) bool) bool {
	return yield(c.class) && yield(c.super) && yield(c.interfaces) &&
		yield(c.sourceFile) && yield(c.annotations) &&
		yield(c.classData) && yield(c.statics)
}

// Data returns the declared fields and methods, false for a marker class.
func (c *ClassDef) Data() (*ClassData, bool) {
	return c.classData.Item()
}

// StaticValues returns the initial values of the static fields.
func (c *ClassDef) StaticValues() (*StaticValues, bool) {
	return c.statics.Item()
}

// SetStaticValues replaces the initial values of the static fields, in static
// field order. No values removes the item.
func (c *ClassDef) SetStaticValues(values ...ValueKey) error {
	c.dex.gen.Touch()
	if len(values) == 0 {
		c.statics.Clear()
		return nil
	}
	decoded := make([]Value, 0, len(values))
	for _, k := range values {
		v, err := c.dex.newValue(k, 0)
		if err != nil {
			return err
		}
		decoded = append(decoded, v)
	}
	sv, ok := c.statics.Item()
	if !ok {
		sv = c.dex.staticValues.CreateItem()
		c.statics.SetItem(sv)
	}
	sv.values = decoded

	return nil
}

func (c *ClassDef) ensureData() *ClassData {
	if cd, ok := c.classData.Item(); ok {
		return cd
	}
	cd := c.dex.classData.CreateItem()
	c.classData.SetItem(cd)

	return cd
}

// AddField declares field f of this class. Static fields go to the static
// list, the rest to the instance list.
//
// Returns:
//   - *EncodedField: the declaration
//   - error: errs.ErrInvalidKey when f belongs to another class or is declared
//     already
func (c *ClassDef) AddField(f key.FieldKey, flags uint32) (*EncodedField, error) {
	if err := c.member(f.Defining); err != nil {
		return nil, err
	}
	fid, err := c.dex.fields.GetOrCreate(f)
	if err != nil {
		return nil, err
	}
	cd := c.ensureData()
	for _, fs := range [][]*EncodedField{cd.staticFields, cd.instanceFields} {
		for _, ef := range fs {
			if id, ok := ef.field.Item(); ok && id == fid {
				return nil, fmt.Errorf("%w: field %s declared twice", errs.ErrInvalidKey, f)
			}
		}
	}
	ef := cd.newField(0, flags)
	ef.field.SetItem(fid)
	if flags&AccStatic != 0 {
		cd.staticFields = append(cd.staticFields, ef)
	} else {
		cd.instanceFields = append(cd.instanceFields, ef)
	}
	c.dex.gen.Touch()

	return ef, nil
}

// AddMethod declares method m of this class without code. Static, private
// and constructor methods are direct, the rest virtual.
//
// Returns:
//   - *EncodedMethod: the declaration, see SetCode
//   - error: errs.ErrInvalidKey when m belongs to another class or is declared
//     already
func (c *ClassDef) AddMethod(m key.MethodKey, flags uint32) (*EncodedMethod, error) {
	if err := c.member(m.Defining); err != nil {
		return nil, err
	}
	mid, err := c.dex.methods.GetOrCreate(m)
	if err != nil {
		return nil, err
	}
	cd := c.ensureData()
	for _, ms := range [][]*EncodedMethod{cd.directMethods, cd.virtualMethods} {
		for _, em := range ms {
			if id, ok := em.method.Item(); ok && id == mid {
				return nil, fmt.Errorf("%w: method %s declared twice", errs.ErrInvalidKey, m)
			}
		}
	}
	em := cd.newMethod(0, flags, 0)
	em.method.SetItem(mid)
	if flags&(AccStatic|AccPrivate|AccConstructor) != 0 {
		cd.directMethods = append(cd.directMethods, em)
	} else {
		cd.virtualMethods = append(cd.virtualMethods, em)
	}
	c.dex.gen.Touch()

	return em, nil
}

// classSetKey returns the current class annotations.
func (c *ClassDef) classSetKey() AnnotationSetKey {
	if dir, ok := c.Directory(); ok {
		if set, ok := dir.ClassAnnotations(); ok {
			return set.SetKeyOf()
		}
	}

	return nil
}

// Annotations returns the class annotations.
func (c *ClassDef) Annotations() AnnotationSetKey {
	return c.classSetKey()
}

// AddAnnotation adds a class annotation, replacing one of the same type. The
// current set is shared, so a new canonical set is selected instead of
// modifying it.
func (c *ClassDef) AddAnnotation(a AnnotationKey) error {
	a = NewAnnotationKey(a.Visibility, a.Type, a.Elements...)
	set, err := c.dex.annotationSets.GetOrCreate(c.classSetKey().With(a))
	if err != nil {
		return err
	}
	c.ensureDirectory().classSet.SetItem(set)
	c.dex.gen.Touch()

	return nil
}

// RemoveAnnotation removes the class annotation of type t.
func (c *ClassDef) RemoveAnnotation(t key.TypeKey) (bool, error) {
	cur := c.classSetKey()
	if _, ok := cur.Find(t); !ok {
		return false, nil
	}
	dir := c.ensureDirectory()
	next := cur.Without(t)
	c.dex.gen.Touch()
	if len(next) == 0 {
		dir.classSet.Clear()
		return true, nil
	}
	set, err := c.dex.annotationSets.GetOrCreate(next)
	if err != nil {
		return false, err
	}
	dir.classSet.SetItem(set)

	return true, nil
}

func (c *ClassDef) member(defining key.TypeKey) error {
	if defining != c.Type() {
		return fmt.Errorf("%w: member of %s edited through %s", errs.ErrInvalidKey, defining, c.Type())
	}

	return nil
}

// FieldAnnotations returns the annotations of field f.
func (c *ClassDef) FieldAnnotations(f key.FieldKey) AnnotationSetKey {
	dir, ok := c.Directory()
	if !ok {
		return nil
	}
	fid, ok := c.dex.fields.Lookup(f)
	if !ok {
		return nil
	}
	if set, ok := dir.FieldAnnotations(fid); ok {
		return set.SetKeyOf()
	}

	return nil
}

// AddFieldAnnotation annotates field f of this class.
func (c *ClassDef) AddFieldAnnotation(f key.FieldKey, a AnnotationKey) error {
	return c.editFieldAnnotations(f, func(cur AnnotationSetKey) AnnotationSetKey {
		return cur.With(NewAnnotationKey(a.Visibility, a.Type, a.Elements...))
	})
}

// RemoveFieldAnnotation removes the annotation of type t from field f.
func (c *ClassDef) RemoveFieldAnnotation(f key.FieldKey, t key.TypeKey) error {
	return c.editFieldAnnotations(f, func(cur AnnotationSetKey) AnnotationSetKey {
		return cur.Without(t)
	})
}

func (c *ClassDef) editFieldAnnotations(f key.FieldKey, edit func(AnnotationSetKey) AnnotationSetKey) error {
	if err := c.member(f.Defining); err != nil {
		return err
	}
	fid, err := c.dex.fields.GetOrCreate(f)
	if err != nil {
		return err
	}
	dir := c.ensureDirectory()
	next := edit(c.FieldAnnotations(f))
	dir.fields.Remove(fid)
	c.dex.gen.Touch()
	if len(next) == 0 {
		return nil
	}
	set, err := c.dex.annotationSets.GetOrCreate(next)
	if err != nil {
		return err
	}
	dir.fields.Add(fid, set)

	return nil
}

// MethodAnnotations returns the annotations of method m.
func (c *ClassDef) MethodAnnotations(m key.MethodKey) AnnotationSetKey {
	dir, ok := c.Directory()
	if !ok {
		return nil
	}
	mid, ok := c.dex.methods.Lookup(m)
	if !ok {
		return nil
	}
	if set, ok := dir.MethodAnnotations(mid); ok {
		return set.SetKeyOf()
	}

	return nil
}

// AddMethodAnnotation annotates method m of this class.
func (c *ClassDef) AddMethodAnnotation(m key.MethodKey, a AnnotationKey) error {
	return c.editMethodAnnotations(m, func(cur AnnotationSetKey) AnnotationSetKey {
		return cur.With(NewAnnotationKey(a.Visibility, a.Type, a.Elements...))
	})
}

// RemoveMethodAnnotation removes the annotation of type t from method m.
func (c *ClassDef) RemoveMethodAnnotation(m key.MethodKey, t key.TypeKey) error {
	return c.editMethodAnnotations(m, func(cur AnnotationSetKey) AnnotationSetKey {
		return cur.Without(t)
	})
}

func (c *ClassDef) editMethodAnnotations(m key.MethodKey, edit func(AnnotationSetKey) AnnotationSetKey) error {
	if err := c.member(m.Defining); err != nil {
		return err
	}
	mid, err := c.dex.methods.GetOrCreate(m)
	if err != nil {
		return err
	}
	dir := c.ensureDirectory()
	next := edit(c.MethodAnnotations(m))
	dir.methods.Remove(mid)
	c.dex.gen.Touch()
	if len(next) == 0 {
		return nil
	}
	set, err := c.dex.annotationSets.GetOrCreate(next)
	if err != nil {
		return err
	}
	dir.methods.Add(mid, set)

	return nil
}

// ParameterAnnotations returns the annotations of parameter i of method m.
func (c *ClassDef) ParameterAnnotations(m key.MethodKey, i int) AnnotationSetKey {
	return c.parameterGroupKey(m).Slot(i)
}

func (c *ClassDef) parameterGroupKey(m key.MethodKey) AnnotationGroupKey {
	dir, ok := c.Directory()
	if !ok {
		return nil
	}
	mid, ok := c.dex.methods.Lookup(m)
	if !ok {
		return nil
	}
	if g, ok := dir.ParameterGroup(mid); ok {
		return g.GroupKey()
	}

	return nil
}

// AddParameterAnnotation annotates parameter i of method m.
func (c *ClassDef) AddParameterAnnotation(m key.MethodKey, i int, a AnnotationKey) error {
	return c.editParameterAnnotations(m, i, func(cur AnnotationSetKey) AnnotationSetKey {
		return cur.With(NewAnnotationKey(a.Visibility, a.Type, a.Elements...))
	})
}

// RemoveParameterAnnotation removes the annotation of type t from parameter i of
// method m.
func (c *ClassDef) RemoveParameterAnnotation(m key.MethodKey, i int, t key.TypeKey) error {
	return c.editParameterAnnotations(m, i, func(cur AnnotationSetKey) AnnotationSetKey {
		return cur.Without(t)
	})
}

func (c *ClassDef) editParameterAnnotations(m key.MethodKey, i int, edit func(AnnotationSetKey) AnnotationSetKey) error {
	if err := c.member(m.Defining); err != nil {
		return err
	}
	if i < 0 || i >= len(m.Proto.Params) {
		return fmt.Errorf("%w: parameter %d of %s", errs.ErrInvalidKey, i, m)
	}
	mid, err := c.dex.methods.GetOrCreate(m)
	if err != nil {
		return err
	}
	dir := c.ensureDirectory()
	cur := c.parameterGroupKey(m)
	for len(cur) < len(m.Proto.Params) {
		cur = append(cur, nil)
	}
	next := cur.WithSlot(i, edit(cur.Slot(i)))
	dir.params.Remove(mid)
	c.dex.gen.Touch()
	if next.IsEmpty() {
		return nil
	}
	g, err := c.dex.annotationGroups.GetOrCreate(next)
	if err != nil {
		return err
	}
	dir.params.Add(mid, g)

	return nil
}

func accessString(flags uint32) string {
	var parts []string
	for _, a := range accessNames {
		if flags&a.flag != 0 {
			parts = append(parts, a.name)
		}
	}

	return strings.Join(parts, " ")
}

// AppendText implements textfmt.Appender.
func (c *ClassDef) AppendText(w *textfmt.Writer) error {
	if flags := accessString(c.AccessFlags()); flags != "" {
		w.Line(".class %s %s", flags, c.Type())
	} else {
		w.Line(".class %s", c.Type())
	}
	if super, ok := c.Superclass(); ok {
		w.Line(".super %s", super)
	}
	if src, ok := c.SourceFile(); ok {
		w.Line(".source %s", textfmt.Quote(src))
	}
	for _, iface := range c.Interfaces() {
		w.Line(".implements %s", iface)
	}
	if cd, ok := c.Data(); ok && !cd.IsEmpty() {
		w.Newline()
		cd.appendText(w)
	}

	dir, ok := c.Directory()
	if !ok {
		return nil
	}
	if set, ok := dir.ClassAnnotations(); ok {
		w.Newline()
		for _, a := range set.Annotations() {
			if err := a.AppendText(w); err != nil {
				return err
			}
		}
	}
	for e := range dir.fields.All() {
		w.Newline()
		if f, ok := e.Definition(); ok {
			w.Line(".field %s", f.Field())
		} else {
			w.Line(".field <index %d>", e.DefinitionIndexValue())
		}
		if err := appendSet(w, e.Value); err != nil {
			return err
		}
	}
	for e := range dir.methods.All() {
		w.Newline()
		if m, ok := e.Definition(); ok {
			w.Line(".method %s", m.Method())
		} else {
			w.Line(".method <index %d>", e.DefinitionIndexValue())
		}
		if err := appendSet(w, e.Value); err != nil {
			return err
		}
	}
	for e := range dir.params.All() {
		g, ok := e.Value()
		if !ok {
			continue
		}
		w.Newline()
		if m, ok := e.Definition(); ok {
			w.Line(".method %s", m.Method())
		} else {
			w.Line(".method <index %d>", e.DefinitionIndexValue())
		}
		w.Indent()
		for i := range g.Len() {
			set, ok := g.Slot(i)
			if !ok {
				continue
			}
			w.Line(".param p%d", i)
			if err := appendSet(w, func() (*AnnotationSet, bool) { return set, true }); err != nil {
				return err
			}
			w.Line(".end param")
		}
		w.Dedent()
	}

	return nil
}

func appendSet(w *textfmt.Writer, get func() (*AnnotationSet, bool)) error {
	set, ok := get()
	if !ok {
		return nil
	}
	w.Indent()
	defer w.Dedent()
	for _, a := range set.Annotations() {
		if err := a.AppendText(w); err != nil {
			return err
		}
	}

	return nil
}
