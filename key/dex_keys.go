package key

import (
	"fmt"
	"strings"
)

// TypeKey is a type descriptor such as "I", "[J" or "Ljava/lang/Object;".
type TypeKey string

func (k TypeKey) String() string { return string(k) }

// Compare implements Key.
func (k TypeKey) Compare(other Key) int {
	if o, ok := other.(TypeKey); ok {
		return CompareStrings(string(k), string(o))
	}

	return fallback(k, other)
}

// Valid reports whether k is a single well-formed descriptor.
func (k TypeKey) Valid() bool {
	n, ok := descriptorLen(string(k))
	return ok && n == len(k)
}

// IsPrimitive reports whether k names a primitive type or void.
func (k TypeKey) IsPrimitive() bool {
	return len(k) == 1 && strings.IndexByte("VZBSCIJFD", k[0]) >= 0
}

// IsArray reports whether k is an array descriptor.
func (k TypeKey) IsArray() bool {
	return len(k) > 0 && k[0] == '['
}

// Shorty returns the shorty character of k: the descriptor itself for
// primitives, 'L' for class and array types.
func (k TypeKey) Shorty() byte {
	if k.IsPrimitive() {
		return k[0]
	}

	return 'L'
}

var primitiveNames = map[byte]string{
	'V': "void", 'Z': "boolean", 'B': "byte", 'S': "short", 'C': "char",
	'I': "int", 'J': "long", 'F': "float", 'D': "double",
}

// SourceName returns the Java source form, e.g. "java.lang.String[]".
func (k TypeKey) SourceName() string {
	s := string(k)
	dims := 0
	for dims < len(s) && s[dims] == '[' {
		dims++
	}
	s = s[dims:]

	var name string
	switch {
	case len(s) == 1:
		name = primitiveNames[s[0]]
	case len(s) > 2 && s[0] == 'L' && s[len(s)-1] == ';':
		name = strings.ReplaceAll(s[1:len(s)-1], "/", ".")
	default:
		name = s
	}

	return name + strings.Repeat("[]", dims)
}

// descriptorLen returns the length of the descriptor at the start of s.
func descriptorLen(s string) (int, bool) {
	i := 0
	for i < len(s) && s[i] == '[' {
		i++
	}
	if i >= len(s) {
		return 0, false
	}

	switch s[i] {
	case 'L':
		end := strings.IndexByte(s[i:], ';')
		if end < 2 {
			return 0, false
		}

		return i + end + 1, true
	case 'Z', 'B', 'S', 'C', 'I', 'J', 'F', 'D':
		return i + 1, true
	case 'V':
		return i + 1, i == 0
	default:
		return 0, false
	}
}

// TypeListKey is an ordered list of types, e.g. method parameters or interfaces.
type TypeListKey []TypeKey

// ParseTypeList splits concatenated descriptors such as "ILjava/lang/String;[B".
func ParseTypeList(s string) (TypeListKey, error) {
	var list TypeListKey
	for len(s) > 0 {
		n, ok := descriptorLen(s)
		if !ok {
			return nil, fmt.Errorf("invalid descriptor list %q", s)
		}
		list = append(list, TypeKey(s[:n]))
		s = s[n:]
	}

	return list, nil
}

func (k TypeListKey) String() string {
	var sb strings.Builder
	for _, t := range k {
		sb.WriteString(string(t))
	}

	return sb.String()
}

// Compare implements Key. Lists compare element-wise, shorter first on a tie.
func (k TypeListKey) Compare(other Key) int {
	o, ok := other.(TypeListKey)
	if !ok {
		return fallback(k, other)
	}
	for i := 0; i < len(k) && i < len(o); i++ {
		if c := k[i].Compare(o[i]); c != 0 {
			return c
		}
	}

	return len(k) - len(o)
}

// ProtoKey is a method prototype: return type and parameter types.
type ProtoKey struct {
	Return TypeKey
	Params TypeListKey
}

// ParseProto parses a method descriptor such as "(ILjava/lang/String;)V".
func ParseProto(s string) (ProtoKey, error) {
	if !strings.HasPrefix(s, "(") {
		return ProtoKey{}, fmt.Errorf("invalid method descriptor %q", s)
	}
	end := strings.IndexByte(s, ')')
	if end < 0 {
		return ProtoKey{}, fmt.Errorf("invalid method descriptor %q", s)
	}
	params, err := ParseTypeList(s[1:end])
	if err != nil {
		return ProtoKey{}, err
	}
	ret := TypeKey(s[end+1:])
	if !ret.Valid() {
		return ProtoKey{}, fmt.Errorf("invalid return type in %q", s)
	}

	return ProtoKey{Return: ret, Params: params}, nil
}

func (k ProtoKey) String() string {
	return "(" + k.Params.String() + ")" + string(k.Return)
}

// Shorty returns the shorty descriptor, e.g. "VIL".
func (k ProtoKey) Shorty() string {
	b := make([]byte, 0, len(k.Params)+1)
	b = append(b, k.Return.Shorty())
	for _, p := range k.Params {
		b = append(b, p.Shorty())
	}

	return string(b)
}

// Compare implements Key: return type first, then parameters.
func (k ProtoKey) Compare(other Key) int {
	o, ok := other.(ProtoKey)
	if !ok {
		return fallback(k, other)
	}
	if c := k.Return.Compare(o.Return); c != 0 {
		return c
	}

	return k.Params.Compare(o.Params)
}

// FieldKey identifies a field by defining class, name and type.
type FieldKey struct {
	Defining TypeKey
	Name     StringKey
	Type     TypeKey
}

// ParseField parses "Lcom/Foo;->name:I".
func ParseField(s string) (FieldKey, error) {
	owner, rest, ok := strings.Cut(s, "->")
	if !ok {
		return FieldKey{}, fmt.Errorf("invalid field reference %q", s)
	}
	name, typ, ok := strings.Cut(rest, ":")
	if !ok || name == "" || !TypeKey(owner).Valid() || !TypeKey(typ).Valid() {
		return FieldKey{}, fmt.Errorf("invalid field reference %q", s)
	}

	return FieldKey{Defining: TypeKey(owner), Name: StringKey(name), Type: TypeKey(typ)}, nil
}

func (k FieldKey) String() string {
	return string(k.Defining) + "->" + string(k.Name) + ":" + string(k.Type)
}

// Compare implements Key: defining class, name, then type.
func (k FieldKey) Compare(other Key) int {
	o, ok := other.(FieldKey)
	if !ok {
		return fallback(k, other)
	}
	if c := k.Defining.Compare(o.Defining); c != 0 {
		return c
	}
	if c := k.Name.Compare(o.Name); c != 0 {
		return c
	}

	return k.Type.Compare(o.Type)
}

// MethodKey identifies a method by defining class, name and prototype.
type MethodKey struct {
	Defining TypeKey
	Name     StringKey
	Proto    ProtoKey
}

// ParseMethod parses "Lcom/Foo;->bar(I)V".
func ParseMethod(s string) (MethodKey, error) {
	owner, rest, ok := strings.Cut(s, "->")
	if !ok || !TypeKey(owner).Valid() {
		return MethodKey{}, fmt.Errorf("invalid method reference %q", s)
	}
	i := strings.IndexByte(rest, '(')
	if i < 1 {
		return MethodKey{}, fmt.Errorf("invalid method reference %q", s)
	}
	proto, err := ParseProto(rest[i:])
	if err != nil {
		return MethodKey{}, err
	}

	return MethodKey{Defining: TypeKey(owner), Name: StringKey(rest[:i]), Proto: proto}, nil
}

func (k MethodKey) String() string {
	return string(k.Defining) + "->" + string(k.Name) + k.Proto.String()
}

// Compare implements Key: defining class, name, then prototype.
func (k MethodKey) Compare(other Key) int {
	o, ok := other.(MethodKey)
	if !ok {
		return fallback(k, other)
	}
	if c := k.Defining.Compare(o.Defining); c != 0 {
		return c
	}
	if c := k.Name.Compare(o.Name); c != 0 {
		return c
	}

	return k.Proto.Compare(o.Proto)
}

// WithName returns a copy of k renamed to name.
func (k MethodKey) WithName(name string) MethodKey {
	k.Name = StringKey(name)
	return k
}
