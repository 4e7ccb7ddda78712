package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlayQueueReorderShiftsCurrentIndexForward(t *testing.T) {
	q := NewPlayQueue(1, 1, "web")
	for _, id := range []int64{10, 20, 30, 40} {
		q.AddItem(id)
	}
	q.TakeEvents()
	two := 2
	q.CurrentIndex = &two // currently on item 30

	q.Reorder(20, 3) // move index1 -> index3, crossing current_index 2
	require.NotNil(t, q.CurrentIndex)
	assert.Equal(t, 1, *q.CurrentIndex, "current item stays the same logical song, index shifts back by one")
	assert.Equal(t, []int64{10, 30, 40, 20}, q.Items)
}

func TestPlayQueueReorderShiftsCurrentIndexBackward(t *testing.T) {
	q := NewPlayQueue(1, 1, "web")
	for _, id := range []int64{10, 20, 30, 40} {
		q.AddItem(id)
	}
	q.TakeEvents()
	one := 1
	q.CurrentIndex = &one // currently on item 20

	q.Reorder(40, 0) // move index3 -> index0, crossing current_index 1
	require.NotNil(t, q.CurrentIndex)
	assert.Equal(t, 2, *q.CurrentIndex)
	assert.Equal(t, []int64{40, 10, 20, 30}, q.Items)
}

func TestPlayQueueReorderNoopWhenSameIndex(t *testing.T) {
	q := NewPlayQueue(1, 1, "web")
	for _, id := range []int64{10, 20} {
		q.AddItem(id)
	}
	q.TakeEvents()
	q.Reorder(10, 0)
	assert.Equal(t, []int64{10, 20}, q.Items)
	assert.Empty(t, q.TakeEvents())
}

func TestPlayQueueRemoveItemBeforeCurrentDecrements(t *testing.T) {
	q := NewPlayQueue(1, 1, "web")
	for _, id := range []int64{10, 20, 30} {
		q.AddItem(id)
	}
	q.TakeEvents()
	two := 2
	q.CurrentIndex = &two

	q.RemoveItem(10)
	require.NotNil(t, q.CurrentIndex)
	assert.Equal(t, 1, *q.CurrentIndex)
}

func TestPlayQueueRemoveCurrentClampsToLast(t *testing.T) {
	q := NewPlayQueue(1, 1, "web")
	for _, id := range []int64{10, 20, 30} {
		q.AddItem(id)
	}
	q.TakeEvents()
	two := 2
	q.CurrentIndex = &two

	q.RemoveItem(30)
	require.NotNil(t, q.CurrentIndex)
	assert.Equal(t, 1, *q.CurrentIndex)
}

func TestPlayQueueSnapshot(t *testing.T) {
	q := NewPlayQueue(1, 1, "web")
	for _, id := range []int64{10, 20, 30} {
		q.AddItem(id)
	}
	one := 1
	q.CurrentIndex = &one

	snap := q.Snapshot()
	require.NotNil(t, snap.Current)
	assert.Equal(t, int64(20), *snap.Current)
	require.NotNil(t, snap.Previous)
	assert.Equal(t, int64(10), *snap.Previous)
	require.NotNil(t, snap.Next)
	assert.Equal(t, int64(30), *snap.Next)
}

func TestFromSavedStateResolvesCurrentIndex(t *testing.T) {
	current := int64(20)
	q := FromSavedState(1, 1, []int64{10, 20, 30}, &current, 1500, "android")
	require.NotNil(t, q.CurrentIndex)
	assert.Equal(t, 1, *q.CurrentIndex)
}
