package core

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHistoryBufferEvictsOldestFirst(t *testing.T) {
	req := require.New(t)
	h := NewHistoryBuffer(3)

	for i := int64(1); i <= 5; i++ {
		h.Append(Message{ID: i})
	}

	snap := h.Snapshot()
	req.Len(snap, 3)
	req.Equal([]int64{3, 4, 5}, []int64{snap[0].ID, snap[1].ID, snap[2].ID})
	req.Equal(3, h.Len())
}

func TestHistoryBufferSnapshotIsCopy(t *testing.T) {
	req := require.New(t)
	h := NewHistoryBuffer(2)
	h.Append(Message{ID: 1, Body: "a"})

	snap := h.Snapshot()
	snap[0].Body = "mutated"
	h.Append(Message{ID: 2, Body: "b"})

	req.Len(snap, 1)
	req.Equal([]string{"a", "b"}, bodies(h.Snapshot()))
}

func TestHistoryBufferDefaultCapacity(t *testing.T) {
	h := NewHistoryBuffer(0)
	require.Equal(t, DefaultHistorySize, h.Cap())
	require.Empty(t, h.Snapshot())
}
