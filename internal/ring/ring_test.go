package ring

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPushAndSnapshot(t *testing.T) {
	b := New[int](3)
	assert.Equal(t, 3, b.Cap())
	assert.Zero(t, b.Len())

	_, ok := b.Latest()
	assert.False(t, ok)

	b.Push(1)
	b.Push(2)
	assert.Equal(t, []int{1, 2}, b.Snapshot())

	b.Push(3)
	b.Push(4)
	assert.Equal(t, []int{2, 3, 4}, b.Snapshot(), "oldest entry evicted")
	assert.Equal(t, 3, b.Len())

	latest, ok := b.Latest()
	require.True(t, ok)
	assert.Equal(t, 4, latest)
}

func TestZeroCapacityFallsBackToOne(t *testing.T) {
	b := New[string](0)
	b.Push("a")
	b.Push("b")
	assert.Equal(t, []string{"b"}, b.Snapshot())
}
