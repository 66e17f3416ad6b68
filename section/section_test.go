package section

import (
	"fmt"
	"strings"
	"testing"

	"github.com/arloliu/apkblock/block"
	"github.com/arloliu/apkblock/errs"
	"github.com/arloliu/apkblock/key"
	"github.com/stretchr/testify/require"
)

type testItem struct {
	Entry
	name string
}

func newTestItem() *testItem { return &testItem{} }

func (t *testItem) Key() key.Key {
	if t.name == "" {
		return nil
	}

	return key.StringKey(t.name)
}

func (t *testItem) SetKey(k key.Key) error {
	sk, ok := k.(key.StringKey)
	if !ok || sk == "" {
		return fmt.Errorf("%w: %v", errs.ErrInvalidKey, k)
	}
	t.name = string(sk)

	return nil
}

func (t *testItem) CountBytes() int { return len(t.name) + 1 }

func (t *testItem) CountUpTo(c *block.Counter) {
	if c.Enter(t) {
		return
	}
	c.Add(t.CountBytes())
}

func (t *testItem) WriteBytes(w *block.Writer) error {
	w.Write([]byte(t.name))
	w.Uint8(0)

	return nil
}

func names(s *Section[*testItem]) []string {
	out := make([]string, 0, s.Len())
	for _, it := range s.Items() {
		out = append(out, it.name)
	}

	return out
}

func TestGetOrCreate_Idempotent(t *testing.T) {
	s := New("strings", newTestItem)

	for _, k := range []key.StringKey{"a", "b", "Ljava/lang/Object;", "a"} {
		first, err := s.GetOrCreate(k)
		require.NoError(t, err)
		second, err := s.GetOrCreate(k)
		require.NoError(t, err)
		require.Same(t, first, second)
	}
	require.Equal(t, []string{"a", "b", "Ljava/lang/Object;"}, names(s))

	it, ok := s.Get(1)
	require.True(t, ok)
	require.Equal(t, "b", it.name)
	require.Equal(t, 1, it.Index())

	_, ok = s.Get(3)
	require.False(t, ok)
	_, ok = s.Get(-1)
	require.False(t, ok)
}

func TestGetOrCreate_InvalidKey(t *testing.T) {
	s := New("strings", newTestItem)

	_, err := s.GetOrCreate(nil)
	require.ErrorIs(t, err, errs.ErrInvalidKey)

	_, err = s.GetOrCreate(key.TypeKey("I"))
	require.ErrorIs(t, err, errs.ErrInvalidKey)

	_, err = s.GetOrCreate(key.StringKey(""))
	require.ErrorIs(t, err, errs.ErrInvalidKey)

	require.Zero(t, s.Len())
}

func TestAppend_AllowsLoadedDuplicates(t *testing.T) {
	s := New("strings", newTestItem)
	a, b := &testItem{name: "dup"}, &testItem{name: "dup"}
	s.Append(a)
	s.Append(b)
	s.Rehash()

	got, err := s.GetOrCreate(key.StringKey("dup"))
	require.NoError(t, err)
	require.Same(t, a, got)
	require.Equal(t, 2, s.Len())
	require.Equal(t, 1, s.Collisions())
}

func TestRekey(t *testing.T) {
	s := New("strings", newTestItem)
	a, _ := s.GetOrCreate(key.StringKey("a"))
	_, _ = s.GetOrCreate(key.StringKey("b"))

	require.ErrorIs(t, s.Rekey(a, key.StringKey("b")), errs.ErrDuplicateKey)
	require.Equal(t, "a", a.name)

	require.ErrorIs(t, s.Rekey(a, key.TypeKey("I")), errs.ErrInvalidKey)
	got, ok := s.Lookup(key.StringKey("a"))
	require.True(t, ok)
	require.Same(t, a, got)

	require.NoError(t, s.Rekey(a, key.StringKey("c")))
	_, ok = s.Lookup(key.StringKey("a"))
	require.False(t, ok)
	got, ok = s.Lookup(key.StringKey("c"))
	require.True(t, ok)
	require.Same(t, a, got)
}

func TestRemoveUnused(t *testing.T) {
	s := New("strings", newTestItem)
	for _, n := range []string{"a", "b", "c", "d"} {
		_, err := s.GetOrCreate(key.StringKey(n))
		require.NoError(t, err)
	}
	a, _ := s.Get(0)
	b, _ := s.Get(1)
	c, _ := s.Get(2)
	d, _ := s.Get(3)

	s.ResetUsage()
	a.AddUsage()
	c.AddUsage()
	d.AddUsage()

	require.Equal(t, 1, s.RemoveUnused())
	require.Equal(t, []string{"a", "c", "d"}, names(s))
	require.Equal(t, 0, a.Index())
	require.Equal(t, 1, c.Index())
	require.Equal(t, 2, d.Index())
	require.Equal(t, -1, b.Index())
	require.Zero(t, b.Offset())

	_, ok := s.Lookup(key.StringKey("b"))
	require.False(t, ok)
	require.Zero(t, s.RemoveUnused())
}

func TestGrowthIncrement(t *testing.T) {
	s := New("strings", newTestItem, WithGrowth(3))

	for _, n := range []string{"a", "b", "c"} {
		_, err := s.GetOrCreate(key.StringKey(n))
		require.NoError(t, err)
	}
	require.Equal(t, 1, s.Reallocations())

	_, err := s.GetOrCreate(key.StringKey("d"))
	require.NoError(t, err)
	require.Equal(t, 2, s.Reallocations(), "4th item triggers exactly one reallocation")

	require.Equal(t, 2, s.RemoveFunc(func(it *testItem) bool { return it.name == "a" || it.name == "c" }))
	_, err = s.GetOrCreate(key.StringKey("e"))
	require.NoError(t, err)
	require.Equal(t, 2, s.Reallocations())
	require.Equal(t, []string{"b", "d", "e"}, names(s))
	for i, it := range s.Items() {
		require.Equal(t, i, it.Index())
	}
}

func TestSort(t *testing.T) {
	s := New("strings", newTestItem)
	for _, n := range []string{"c", "a", "b"} {
		_, _ = s.GetOrCreate(key.StringKey(n))
	}
	byKey := func(a, b *testItem) int { return key.Compare(a.Key(), b.Key()) }

	require.True(t, s.Sort(byKey))
	require.Equal(t, []string{"a", "b", "c"}, names(s))
	require.False(t, s.Sort(byKey))

	last, _ := s.Get(2)
	require.Equal(t, 2, last.Index())
}

func TestLayoutAndOffsets(t *testing.T) {
	gen := &block.Generation{}
	s := New("data", newTestItem, WithAlignment(4), WithGeneration(gen))
	for _, n := range []string{"ab", "cdefg", "h"} {
		_, _ = s.GetOrCreate(key.StringKey(n))
	}
	require.True(t, gen.Stale())

	end := s.Layout(0x70)
	require.Equal(t, 0x70+4+6+2+2, end)
	require.Equal(t, 0x70, s.Offset())

	second, _ := s.Get(1)
	require.Equal(t, 0x74, second.Offset())
	got, ok := s.AtOffset(0x74)
	require.True(t, ok)
	require.Same(t, second, got)
	_, ok = s.AtOffset(0x75)
	require.False(t, ok)

	// offsets relative to the section start agree with the layout
	third, _ := s.Get(2)
	require.Equal(t, third.Offset()-s.Offset(), block.OffsetOf(s, third))
	require.Equal(t, end-0x70, s.CountBytes())

	w := block.NewWriter(0)
	defer w.Release()
	w.Zero(0x70)
	require.NoError(t, s.WriteBytes(w))
	require.Equal(t, end, w.Position())
	require.True(t, strings.HasPrefix(string(w.Bytes()[0x70:]), "ab\x00\x00cdefg\x00"))
}

func TestWriteBytes_LayoutMismatch(t *testing.T) {
	s := New("data", newTestItem)
	_, _ = s.GetOrCreate(key.StringKey("x"))
	s.Layout(8)

	w := block.NewWriter(0)
	defer w.Release()
	require.ErrorIs(t, s.WriteBytes(w), errs.ErrLayoutMismatch)
}

func BenchmarkGetOrCreate(b *testing.B) {
	s := New("strings", newTestItem)
	keys := make([]key.StringKey, 4096)
	for i := range keys {
		keys[i] = key.StringKey(fmt.Sprintf("Lcom/example/Class%d;", i))
	}

	b.ResetTimer()
	for i := range b.N {
		_, _ = s.GetOrCreate(keys[i%len(keys)])
	}
}
