package dex

import (
	"cmp"
	"fmt"
	"slices"
	"strings"

	"github.com/arloliu/apkblock/key"
)

// PrimitiveKey is the raw bit pattern of a primitive encoded value.
type PrimitiveKey uint64

func (k PrimitiveKey) String() string { return fmt.Sprintf("0x%x", uint64(k)) }

// Compare implements key.Key.
func (k PrimitiveKey) Compare(other key.Key) int {
	if o, ok := other.(PrimitiveKey); ok {
		return cmp.Compare(k, o)
	}

	return strings.Compare(k.String(), other.String())
}

// ValueKey identifies an encoded value by type and content. Inner is nil for
// null values.
type ValueKey struct {
	Type  ValueType
	Inner key.Key
}

func (k ValueKey) String() string {
	if k.Inner == nil {
		return k.Type.String()
	}

	return k.Type.String() + ":" + k.Inner.String()
}

// Compare implements key.Key: value type first, then content.
func (k ValueKey) Compare(other key.Key) int {
	o, ok := other.(ValueKey)
	if !ok {
		return strings.Compare(k.String(), other.String())
	}
	if c := cmp.Compare(k.Type, o.Type); c != 0 {
		return c
	}

	return key.Compare(k.Inner, o.Inner)
}

// Convenience constructors for common value keys.

// IntValue returns the key of an int value.
func IntValue(v int32) ValueKey {
	return ValueKey{Type: ValueInt, Inner: PrimitiveKey(uint64(int64(v)))}
}

// LongValue returns the key of a long value.
func LongValue(v int64) ValueKey {
	return ValueKey{Type: ValueLong, Inner: PrimitiveKey(uint64(v))}
}

// BoolValue returns the key of a boolean value.
func BoolValue(v bool) ValueKey {
	bits := PrimitiveKey(0)
	if v {
		bits = 1
	}

	return ValueKey{Type: ValueBoolean, Inner: bits}
}

// NullValue returns the key of the null value.
func NullValue() ValueKey {
	return ValueKey{Type: ValueNull}
}

// StringValue returns the key of a string value.
func StringValue(s string) ValueKey {
	return ValueKey{Type: ValueString, Inner: key.StringKey(s)}
}

// TypeValue returns the key of a type value.
func TypeValue(t key.TypeKey) ValueKey {
	return ValueKey{Type: ValueTypeRef, Inner: t}
}

// EnumValue returns the key of an enum constant value.
func EnumValue(f key.FieldKey) ValueKey {
	return ValueKey{Type: ValueEnum, Inner: f}
}

// MethodValue returns the key of a method value.
func MethodValue(m key.MethodKey) ValueKey {
	return ValueKey{Type: ValueMethod, Inner: m}
}

// ArrayValue returns the key of an array value.
func ArrayValue(elems ...ValueKey) ValueKey {
	return ValueKey{Type: ValueArray, Inner: ArrayKey(elems)}
}

// AnnotationValue returns the key of a nested annotation value.
func AnnotationValue(a AnnotationKey) ValueKey {
	a.Visibility = VisibilityNone
	return ValueKey{Type: ValueAnnotation, Inner: a}
}

// ArrayKey is the content of an array value.
type ArrayKey []ValueKey

func (k ArrayKey) String() string {
	parts := make([]string, len(k))
	for i, v := range k {
		parts[i] = v.String()
	}

	return "{" + strings.Join(parts, ", ") + "}"
}

// Compare implements key.Key element by element.
func (k ArrayKey) Compare(other key.Key) int {
	o, ok := other.(ArrayKey)
	if !ok {
		return strings.Compare(k.String(), other.String())
	}

	return slices.CompareFunc(k, o, ValueKey.cmp)
}

func (k ValueKey) cmp(o ValueKey) int {
	return k.Compare(o)
}

// ElementKey is one name/value pair of an annotation.
type ElementKey struct {
	Name  key.StringKey
	Value ValueKey
}

func (e ElementKey) compare(o ElementKey) int {
	if c := e.Name.Compare(o.Name); c != 0 {
		return c
	}

	return e.Value.Compare(o.Value)
}

// AnnotationKey identifies an annotation by visibility, type and elements.
// Elements are kept sorted by name.
type AnnotationKey struct {
	Visibility Visibility
	Type       key.TypeKey
	Elements   []ElementKey
}

// NewAnnotationKey builds an annotation key with its elements sorted by name.
func NewAnnotationKey(vis Visibility, typ key.TypeKey, elems ...ElementKey) AnnotationKey {
	sorted := slices.Clone(elems)
	slices.SortStableFunc(sorted, func(a, b ElementKey) int { return a.Name.Compare(b.Name) })

	return AnnotationKey{Visibility: vis, Type: typ, Elements: sorted}
}

func (k AnnotationKey) String() string {
	var sb strings.Builder
	if k.Visibility != VisibilityNone {
		sb.WriteString(k.Visibility.String())
		sb.WriteByte(' ')
	}
	sb.WriteString(string(k.Type))
	sb.WriteByte('(')
	for i, e := range k.Elements {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(string(e.Name))
		sb.WriteByte('=')
		sb.WriteString(e.Value.String())
	}
	sb.WriteByte(')')

	return sb.String()
}

// Compare implements key.Key: type, visibility, then elements.
func (k AnnotationKey) Compare(other key.Key) int {
	o, ok := other.(AnnotationKey)
	if !ok {
		return strings.Compare(k.String(), other.String())
	}
	if c := k.Type.Compare(o.Type); c != 0 {
		return c
	}
	if c := cmp.Compare(k.Visibility, o.Visibility); c != 0 {
		return c
	}

	return slices.CompareFunc(k.Elements, o.Elements, ElementKey.compare)
}

// Element returns the value of the element named name.
func (k AnnotationKey) Element(name string) (ValueKey, bool) {
	for _, e := range k.Elements {
		if string(e.Name) == name {
			return e.Value, true
		}
	}

	return ValueKey{}, false
}

// AnnotationSetKey is the content of an annotation set, sorted by type.
type AnnotationSetKey []AnnotationKey

// NewAnnotationSetKey sorts annotations by type. Later entries replace earlier
// ones of the same type.
func NewAnnotationSetKey(anns ...AnnotationKey) AnnotationSetKey {
	out := make(AnnotationSetKey, 0, len(anns))
	for _, a := range anns {
		out = out.With(a)
	}

	return out
}

// With returns a copy of k holding a, replacing any annotation of a's type.
func (k AnnotationSetKey) With(a AnnotationKey) AnnotationSetKey {
	out := slices.Clone(k)
	i, found := slices.BinarySearchFunc(out, a.Type, func(e AnnotationKey, t key.TypeKey) int {
		return e.Type.Compare(t)
	})
	if found {
		out[i] = a
		return out
	}

	return slices.Insert(out, i, a)
}

// Without returns a copy of k without annotations of type t.
func (k AnnotationSetKey) Without(t key.TypeKey) AnnotationSetKey {
	return slices.DeleteFunc(slices.Clone(k), func(a AnnotationKey) bool {
		return a.Type == t
	})
}

// Find returns the annotation of type t.
func (k AnnotationSetKey) Find(t key.TypeKey) (AnnotationKey, bool) {
	for _, a := range k {
		if a.Type == t {
			return a, true
		}
	}

	return AnnotationKey{}, false
}

func (k AnnotationSetKey) String() string {
	parts := make([]string, len(k))
	for i, a := range k {
		parts[i] = a.String()
	}

	return "[" + strings.Join(parts, "; ") + "]"
}

// Compare implements key.Key element by element.
func (k AnnotationSetKey) Compare(other key.Key) int {
	o, ok := other.(AnnotationSetKey)
	if !ok {
		return strings.Compare(k.String(), other.String())
	}

	return slices.CompareFunc(k, o, func(a, b AnnotationKey) int { return a.Compare(b) })
}

// AnnotationGroupKey is the content of a parameter annotation list: one slot per
// parameter, each an AnnotationSetKey or nil for a parameter without annotations.
type AnnotationGroupKey []key.Key

func (k AnnotationGroupKey) String() string {
	parts := make([]string, len(k))
	for i, s := range k {
		if s == nil {
			parts[i] = "-"
		} else {
			parts[i] = s.String()
		}
	}

	return "(" + strings.Join(parts, ", ") + ")"
}

// Compare implements key.Key slot by slot; absent slots sort first.
func (k AnnotationGroupKey) Compare(other key.Key) int {
	o, ok := other.(AnnotationGroupKey)
	if !ok {
		return strings.Compare(k.String(), other.String())
	}

	return slices.CompareFunc(k, o, key.Compare)
}

// IsEmpty reports whether every slot is absent.
func (k AnnotationGroupKey) IsEmpty() bool {
	for _, s := range k {
		if s != nil {
			return false
		}
	}

	return true
}

// Slot returns the set of parameter i, nil when absent or out of range.
func (k AnnotationGroupKey) Slot(i int) AnnotationSetKey {
	if i < 0 || i >= len(k) {
		return nil
	}
	s, _ := k[i].(AnnotationSetKey)

	return s
}

// WithSlot returns a copy of k whose slot i is set, growing k as needed. An empty
// set clears the slot.
func (k AnnotationGroupKey) WithSlot(i int, set AnnotationSetKey) AnnotationGroupKey {
	out := slices.Clone(k)
	for len(out) <= i {
		out = append(out, nil)
	}
	if len(set) == 0 {
		out[i] = nil
	} else {
		out[i] = set
	}

	return out
}
