package events

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHistoryRingEvictsOldestWhenFull(t *testing.T) {
	ring := newHistoryRing(3)

	for i := 0; i < 5; i++ {
		ring.Append(&Event{ID: fmt.Sprintf("e%d", i), Category: JobCompleted})
	}

	assert.Equal(t, 3, ring.Len())

	got := ring.Query("", "", 0)
	require.Len(t, got, 3)
	assert.Equal(t, "e2", got[0].ID, "oldest surviving entry first")
	assert.Equal(t, "e4", got[2].ID)
}

func TestHistoryRingQueryFilters(t *testing.T) {
	ring := newHistoryRing(10)
	ring.Append(&Event{ID: "1", Category: AssessmentCompleted, SubjectID: "alice"})
	ring.Append(&Event{ID: "2", Category: ModeChanged, SubjectID: "alice"})
	ring.Append(&Event{ID: "3", Category: AssessmentCompleted, SubjectID: "bob"})

	t.Run("by category", func(t *testing.T) {
		got := ring.Query(AssessmentCompleted, "", 0)
		require.Len(t, got, 2)
		assert.Equal(t, "1", got[0].ID)
		assert.Equal(t, "3", got[1].ID)
	})

	t.Run("by subject", func(t *testing.T) {
		got := ring.Query("", "alice", 0)
		require.Len(t, got, 2)
		assert.Equal(t, "1", got[0].ID)
		assert.Equal(t, "2", got[1].ID)
	})

	t.Run("by both", func(t *testing.T) {
		got := ring.Query(AssessmentCompleted, "bob", 0)
		require.Len(t, got, 1)
		assert.Equal(t, "3", got[0].ID)
	})

	t.Run("limit keeps most recent", func(t *testing.T) {
		got := ring.Query("", "", 2)
		require.Len(t, got, 2)
		assert.Equal(t, "2", got[0].ID)
		assert.Equal(t, "3", got[1].ID)
	})

	t.Run("no match", func(t *testing.T) {
		assert.Empty(t, ring.Query(EmergencyDeclared, "", 0))
	})
}

func TestHistoryRingMinimumSize(t *testing.T) {
	ring := newHistoryRing(0)
	ring.Append(&Event{ID: "a"})
	ring.Append(&Event{ID: "b"})

	got := ring.Query("", "", 0)
	require.Len(t, got, 1)
	assert.Equal(t, "b", got[0].ID)
}
