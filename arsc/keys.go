package arsc

import (
	"cmp"
	"fmt"
	"slices"
	"strings"

	"github.com/arloliu/apkblock/key"
)

// SpanKey is one style span: a tag name applied to the UTF-16 range
// [First, Last].
type SpanKey struct {
	Name  string
	First int
	Last  int
}

func (s SpanKey) String() string {
	return fmt.Sprintf("%s:%d-%d", s.Name, s.First, s.Last)
}

func (s SpanKey) compare(o SpanKey) int {
	if c := key.CompareStrings(s.Name, o.Name); c != 0 {
		return c
	}
	if c := cmp.Compare(s.First, o.First); c != 0 {
		return c
	}

	return cmp.Compare(s.Last, o.Last)
}

// StyledKey identifies a styled pool string: its text plus its spans.
type StyledKey struct {
	Text  string
	Spans []SpanKey
}

func (k StyledKey) String() string {
	parts := make([]string, len(k.Spans))
	for i, s := range k.Spans {
		parts[i] = s.String()
	}

	return k.Text + "\x00<" + strings.Join(parts, ";") + ">"
}

// Compare implements key.Key.
func (k StyledKey) Compare(other key.Key) int {
	o, ok := other.(StyledKey)
	if !ok {
		return strings.Compare(k.String(), other.String())
	}
	if c := key.CompareStrings(k.Text, o.Text); c != 0 {
		return c
	}

	return slices.CompareFunc(k.Spans, o.Spans, SpanKey.compare)
}

// AttrNameKey identifies an XML attribute name bound to a resource id. Such
// names occupy the leading pool slots covered by the resource map.
type AttrNameKey struct {
	Name string
	ID   uint32
}

func (k AttrNameKey) String() string {
	return fmt.Sprintf("%s\x00@0x%08x", k.Name, k.ID)
}

// Compare implements key.Key.
func (k AttrNameKey) Compare(other key.Key) int {
	o, ok := other.(AttrNameKey)
	if !ok {
		return strings.Compare(k.String(), other.String())
	}
	if c := cmp.Compare(k.ID, o.ID); c != 0 {
		return c
	}

	return key.CompareStrings(k.Name, o.Name)
}
