package replacer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storageengine/types"
)

func TestEvictPrefersInfiniteDistance(t *testing.T) {
	r := New(2)

	r.RecordAccess(1, AccessLookup) // frame 1: one access, infinite distance
	r.RecordAccess(2, AccessLookup)
	r.RecordAccess(2, AccessLookup) // frame 2: two accesses, finite distance
	r.SetEvictable(1, true)
	r.SetEvictable(2, true)

	victim, ok := r.Evict()
	require.True(t, ok)
	assert.Equal(t, types.FrameID(1), victim, "frame with fewer than k accesses should evict first")
}

func TestEvictTieBreakPicksOldestHistoryZero(t *testing.T) {
	r := New(2)

	r.RecordAccess(1, AccessLookup) // frame 1: history = [1]
	r.RecordAccess(2, AccessLookup) // frame 2: history = [2]
	r.SetEvictable(1, true)
	r.SetEvictable(2, true)

	victim, ok := r.Evict()
	require.True(t, ok)
	assert.Equal(t, types.FrameID(1), victim, "tie between infinite distances breaks on smallest history[0]")
}

func TestEvictFiniteDistanceLargestWins(t *testing.T) {
	r := New(2)

	r.RecordAccess(1, AccessLookup)
	r.RecordAccess(1, AccessLookup) // frame 1: history = [1,2]
	r.RecordAccess(2, AccessLookup)
	r.RecordAccess(2, AccessLookup) // frame 2: history = [3,4]
	r.RecordAccess(2, AccessLookup) // frame 2: history = [4,5]
	r.SetEvictable(1, true)
	r.SetEvictable(2, true)

	// clock is now 5. dist(1) = 5-1 = 4. dist(2) = 5-4 = 1.
	victim, ok := r.Evict()
	require.True(t, ok)
	assert.Equal(t, types.FrameID(1), victim, "largest backward k-distance should evict")
}

func TestNonEvictableFrameIsSkipped(t *testing.T) {
	r := New(2)
	r.RecordAccess(1, AccessLookup)
	r.RecordAccess(2, AccessLookup)
	r.SetEvictable(1, false)
	r.SetEvictable(2, true)

	victim, ok := r.Evict()
	require.True(t, ok)
	assert.Equal(t, types.FrameID(2), victim)
}

func TestEvictEmptyReturnsFalse(t *testing.T) {
	r := New(2)
	_, ok := r.Evict()
	assert.False(t, ok)
}

func TestSizeTracksEvictableCount(t *testing.T) {
	r := New(2)
	r.RecordAccess(1, AccessLookup)
	r.RecordAccess(2, AccessLookup)
	assert.Equal(t, 0, r.Size())

	r.SetEvictable(1, true)
	assert.Equal(t, 1, r.Size())

	r.SetEvictable(2, true)
	assert.Equal(t, 2, r.Size())

	r.SetEvictable(1, false)
	assert.Equal(t, 1, r.Size())
}

func TestRemovePanicsOnNonEvictable(t *testing.T) {
	r := New(2)
	r.RecordAccess(1, AccessLookup)
	r.SetEvictable(1, false)

	assert.Panics(t, func() { r.Remove(1) })
}

func TestRemoveDropsBookkeeping(t *testing.T) {
	r := New(2)
	r.RecordAccess(1, AccessLookup)
	r.SetEvictable(1, true)
	r.Remove(1)
	assert.Equal(t, 0, r.Size())

	_, ok := r.Evict()
	assert.False(t, ok)
}

func TestHistoryBoundedToK(t *testing.T) {
	r := New(2)
	for i := 0; i < 5; i++ {
		r.RecordAccess(1, AccessLookup)
	}
	n := r.nodes[1]
	assert.Len(t, n.history, 2)
}
