package pool

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestByteBuffer(t *testing.T) {
	require := require.New(t)

	bb := NewByteBuffer(4)
	_, err := bb.Write([]byte{1, 2, 3})
	require.NoError(err)
	bb.Zero(3)
	require.Equal([]byte{1, 2, 3, 0, 0, 0}, bb.Bytes())
	require.Equal(6, bb.Len())
	require.GreaterOrEqual(bb.Cap(), 6)

	var out bytes.Buffer
	n, err := bb.WriteTo(&out)
	require.NoError(err)
	require.Equal(int64(6), n)

	bb.Reset()
	require.Zero(bb.Len())
}

func TestByteBufferPool(t *testing.T) {
	p := NewByteBufferPool(16, 32)

	bb := p.Get()
	require.NotNil(t, bb)
	bb.Grow(64)
	p.Put(bb)
	p.Put(nil)

	bb = GetBlockBuffer()
	require.Zero(t, bb.Len())
	PutBlockBuffer(bb)
}

func TestGrowSlice(t *testing.T) {
	t.Run("fixed increments", func(t *testing.T) {
		var s []int
		s, grew := GrowSlice(s, 1, 3)
		require.True(t, grew)
		require.Equal(t, 3, cap(s))

		s = append(s, 1, 2, 3)
		s, grew = GrowSlice(s, 1, 3)
		require.True(t, grew)
		require.Equal(t, 6, cap(s))
		require.Equal(t, []int{1, 2, 3}, s)

		s, grew = GrowSlice(s, 2, 3)
		require.False(t, grew)
	})

	t.Run("large request", func(t *testing.T) {
		s, grew := GrowSlice([]byte(nil), 10, 4)
		require.True(t, grew)
		require.Equal(t, 12, cap(s))
	})

	t.Run("invalid step", func(t *testing.T) {
		s, grew := GrowSlice([]byte(nil), 2, 0)
		require.True(t, grew)
		require.Equal(t, 2, cap(s))
	})
}
