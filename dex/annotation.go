package dex

import (
	"fmt"
	"slices"

	"github.com/arloliu/apkblock/block"
	"github.com/arloliu/apkblock/errs"
	"github.com/arloliu/apkblock/key"
	"github.com/arloliu/apkblock/ref"
	"github.com/arloliu/apkblock/textfmt"
)

// Element is one name/value pair of an encoded annotation.
type Element struct {
	nameRaw *block.Int
	name    *ref.Reference[*StringID]
	value   Value
}

// Name returns the element name.
func (e *Element) Name() string {
	return string(keyOf[key.StringKey](e.name))
}

// Value returns the element value.
func (e *Element) Value() Value {
	return e.value
}

// EncodedAnnotation is an annotation type with its elements.
type EncodedAnnotation struct {
	dex      *Dex
	typeRaw  *block.Int
	typ      *ref.Reference[*TypeID]
	elements []*Element
}

func (d *Dex) newEncodedAnnotation() *EncodedAnnotation {
	a := &EncodedAnnotation{dex: d, typeRaw: block.NewInt(0)}
	a.typ = ref.NewIndex(block.Field(a.typeRaw), d.types, ref.NoNull)

	return a
}

func (a *EncodedAnnotation) newElement(raw int) *Element {
	e := &Element{nameRaw: block.NewInt(raw)}
	e.name = ref.NewIndex(block.Field(e.nameRaw), a.dex.strings, ref.NoNull)

	return e
}

// Type returns the annotation type.
func (a *EncodedAnnotation) Type() key.TypeKey {
	return keyOf[key.TypeKey](a.typ)
}

// Elements returns the elements in order.
func (a *EncodedAnnotation) Elements() []*Element {
	return a.elements
}

// Element returns the element named name.
func (a *EncodedAnnotation) Element(name string) (*Element, bool) {
	for _, e := range a.elements {
		if e.Name() == name {
			return e, true
		}
	}

	return nil, false
}

// Key returns the annotation key with visibility vis, nil when the type is
// unresolved.
func (a *EncodedAnnotation) Key(vis Visibility) key.Key {
	if a.typ.Key() == nil {
		return nil
	}
	elems := make([]ElementKey, len(a.elements))
	for i, e := range a.elements {
		elems[i] = ElementKey{Name: keyOf[key.StringKey](e.name), Value: e.value.Key()}
	}

	return AnnotationKey{Visibility: vis, Type: a.Type(), Elements: elems}
}

func (a *EncodedAnnotation) setKey(k AnnotationKey, depth int) error {
	if !k.Type.Valid() || k.Type.IsPrimitive() {
		return invalidKey("annotation", k)
	}
	elems := make([]*Element, 0, len(k.Elements))
	for _, ek := range k.Elements {
		v, err := a.dex.newValue(ek.Value, depth)
		if err != nil {
			return err
		}
		e := a.newElement(0)
		if err := e.name.SetKey(ek.Name); err != nil {
			return err
		}
		e.value = v
		elems = append(elems, e)
	}
	if err := a.typ.SetKey(k.Type); err != nil {
		return err
	}
	a.elements = elems
	a.sortElements()

	return nil
}

// sortElements orders elements by name, which matches name index order once
// the string table is sorted.
func (a *EncodedAnnotation) sortElements() bool {
	byName := func(x, y *Element) int {
		return key.Compare(x.name.Key(), y.name.Key())
	}
	changed := !slices.IsSortedFunc(a.elements, byName)
	if changed {
		slices.SortStableFunc(a.elements, byName)
	}
	for _, e := range a.elements {
		if av, ok := e.value.(*NestedAnnotation); ok && av.ann.sortElements() {
			changed = true
		}
	}

	return changed
}

func (a *EncodedAnnotation) size() int {
	n := ulebLen(a.typeRaw.Get()) + ulebLen(len(a.elements))
	for _, e := range a.elements {
		n += ulebLen(e.nameRaw.Get()) + e.value.size()
	}

	return n
}

func (a *EncodedAnnotation) write(w *block.Writer) {
	w.ULEB128(uint32(a.typeRaw.Get()))
	w.ULEB128(uint32(len(a.elements)))
	for _, e := range a.elements {
		w.ULEB128(uint32(e.nameRaw.Get()))
		e.value.write(w)
	}
}

func (a *EncodedAnnotation) read(r *block.Reader, depth int) error {
	typ, err := r.ULEB128()
	if err != nil {
		return err
	}
	a.typeRaw.Set(int(typ))
	a.typ.Invalidate()

	n, err := r.ULEB128()
	if err != nil {
		return err
	}
	if int(n) > r.Available() {
		return fmt.Errorf("%w: annotation with %d elements", errs.ErrTruncated, n)
	}
	a.elements = make([]*Element, 0, n)
	for range n {
		name, err := r.ULEB128()
		if err != nil {
			return err
		}
		v, err := a.dex.readValue(r, depth)
		if err != nil {
			return err
		}
		e := a.newElement(int(name))
		e.value = v
		a.elements = append(a.elements, e)
	}

	return nil
}

func (a *EncodedAnnotation) edges(yield func(ref.Edge) bool) bool {
	if !yield(a.typ) {
		return false
	}
	for _, e := range a.elements {
		if !yield(e.name) || !e.value.edges(yield) {
			return false
		}
	}

	return true
}

func (a *EncodedAnnotation) appendElements(w *textfmt.Writer) error {
	for _, e := range a.elements {
		w.Print("%s = ", e.Name())
		if err := e.value.AppendText(w); err != nil {
			return err
		}
		w.Newline()
	}

	return nil
}

// AnnotationItem is an annotation_item: visibility and encoded annotation.
type AnnotationItem struct {
	item
	visibility Visibility
	ann        *EncodedAnnotation
}

func newAnnotationItem(d *Dex) *AnnotationItem {
	return &AnnotationItem{item: item{dex: d}, ann: d.newEncodedAnnotation()}
}

// Visibility returns the annotation visibility.
func (a *AnnotationItem) Visibility() Visibility { return a.visibility }

// Annotation returns the encoded annotation.
func (a *AnnotationItem) Annotation() *EncodedAnnotation { return a.ann }

// Type returns the annotation type.
func (a *AnnotationItem) Type() key.TypeKey { return a.ann.Type() }

// Key implements section.Item.
func (a *AnnotationItem) Key() key.Key {
	return a.ann.Key(a.visibility)
}

// SetKey implements section.Item.
func (a *AnnotationItem) SetKey(k key.Key) error {
	ak, ok := k.(AnnotationKey)
	if !ok || ak.Visibility > VisibilitySystem {
		return invalidKey("annotation item", k)
	}
	ann := a.dex.newEncodedAnnotation()
	if err := ann.setKey(ak, 0); err != nil {
		return err
	}
	a.visibility = ak.Visibility
	a.ann = ann

	return nil
}

// CountBytes implements block.Block.
func (a *AnnotationItem) CountBytes() int { return 1 + a.ann.size() }

// CountUpTo implements block.Block.
func (a *AnnotationItem) CountUpTo(c *block.Counter) { countLeaf(c, a) }

// WriteBytes implements block.Block.
func (a *AnnotationItem) WriteBytes(w *block.Writer) error {
	w.Uint8(uint8(a.visibility))
	a.ann.write(w)

	return nil
}

func (a *AnnotationItem) read(r *block.Reader) error {
	vis, err := r.Uint8()
	if err != nil {
		return err
	}
	a.visibility = Visibility(vis)

	return a.ann.read(r, 0)
}

func (a *AnnotationItem) edges(yield func(ref.Edge) bool) bool {
	return a.ann.edges(yield)
}

// AppendText implements textfmt.Appender.
func (a *AnnotationItem) AppendText(w *textfmt.Writer) error {
	w.Line(".annotation %s %s", a.visibility, a.ann.Type())
	w.Indent()
	if err := a.ann.appendElements(w); err != nil {
		return err
	}
	w.Dedent()
	w.Line(".end annotation")

	return nil
}
