package dex

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/arloliu/apkblock/key"
)

func TestAnnotationKey_SortsElements(t *testing.T) {
	a := NewAnnotationKey(VisibilityRuntime, "Lcom/example/A;",
		ElementKey{Name: "zeta", Value: IntValue(1)},
		ElementKey{Name: "alpha", Value: IntValue(2)},
	)
	require.Equal(t, key.StringKey("alpha"), a.Elements[0].Name)
	v, ok := a.Element("zeta")
	require.True(t, ok)
	require.Zero(t, v.Compare(IntValue(1)))
	_, ok = a.Element("missing")
	require.False(t, ok)
	require.Equal(t, "runtime Lcom/example/A;(alpha=int:0x2, zeta=int:0x1)", a.String())
}

func TestAnnotationSetKey_WithWithout(t *testing.T) {
	b := NewAnnotationKey(VisibilityBuild, "Lb;")
	a := NewAnnotationKey(VisibilityBuild, "La;")
	set := NewAnnotationSetKey(b, a)
	require.Equal(t, key.TypeKey("La;"), set[0].Type)

	replaced := set.With(NewAnnotationKey(VisibilityRuntime, "Lb;"))
	require.Len(t, replaced, 2)
	require.Equal(t, VisibilityRuntime, replaced[1].Visibility)
	require.Equal(t, VisibilityBuild, set[1].Visibility, "With copies")

	without := replaced.Without("La;")
	require.Len(t, without, 1)
	require.Len(t, replaced, 2, "Without copies")
	_, ok := without.Find("La;")
	require.False(t, ok)
}

func TestAnnotationGroupKey_Slots(t *testing.T) {
	set := NewAnnotationSetKey(NewAnnotationKey(VisibilityRuntime, "Lx;"))
	var g AnnotationGroupKey
	require.True(t, g.IsEmpty())

	g = g.WithSlot(2, set)
	require.Len(t, g, 3)
	require.False(t, g.IsEmpty())
	require.Nil(t, g.Slot(0))
	require.Nil(t, g.Slot(7))
	require.Len(t, g.Slot(2), 1)

	cleared := g.WithSlot(2, nil)
	require.Len(t, cleared, 3)
	require.True(t, cleared.IsEmpty())
}

func TestValueKey_CompareAcrossTypes(t *testing.T) {
	require.Negative(t, IntValue(5).Compare(LongValue(1)))
	require.Negative(t, IntValue(1).Compare(IntValue(2)))
	require.Zero(t, StringValue("x").Compare(StringValue("x")))
	require.NotZero(t, ArrayValue(IntValue(1)).Compare(ArrayValue(IntValue(1), IntValue(2))))
}
