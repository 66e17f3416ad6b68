package collision

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type item struct{ name string }

func TestNewTracker(t *testing.T) {
	tracker := NewTracker[*item]()

	require.NotNil(t, tracker)
	require.Equal(t, 0, tracker.Count())
	require.False(t, tracker.HasCollision())
	require.Empty(t, tracker.Bucket(1))
}

func TestTracker_Track(t *testing.T) {
	tracker := NewTracker[*item]()
	a, b, c := &item{"a"}, &item{"b"}, &item{"c"}

	tracker.Track(0x1234, a)
	tracker.Track(0x5678, b)
	require.Equal(t, 2, tracker.Count())
	require.False(t, tracker.HasCollision())

	// same hash, different item
	tracker.Track(0x1234, c)
	require.True(t, tracker.HasCollision())
	require.Equal(t, 1, tracker.Collisions())
	require.Equal(t, []*item{a, c}, tracker.Bucket(0x1234))
}

func TestTracker_Untrack(t *testing.T) {
	tracker := NewTracker[*item]()
	a, b := &item{"a"}, &item{"b"}
	tracker.Track(1, a)
	tracker.Track(1, b)

	require.True(t, tracker.Untrack(1, a))
	require.False(t, tracker.Untrack(1, a))
	require.Equal(t, []*item{b}, tracker.Bucket(1))

	require.True(t, tracker.Untrack(1, b))
	require.Empty(t, tracker.Bucket(1))
	require.Equal(t, 0, tracker.Count())
}

func TestTracker_Reset(t *testing.T) {
	tracker := NewTracker[*item]()
	tracker.Track(1, &item{"a"})
	tracker.Track(1, &item{"b"})

	tracker.Reset()

	require.Equal(t, 0, tracker.Count())
	require.False(t, tracker.HasCollision())
	require.Empty(t, tracker.Bucket(1))
}
