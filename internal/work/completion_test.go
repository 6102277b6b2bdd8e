package work

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompletionTrackerMarkAndGet(t *testing.T) {
	tracker := NewCompletionTracker()

	_, exists := tracker.GetCompletion("prices:quotes", "")
	assert.False(t, exists)

	item := NewWorkItem(&WorkType{ID: "prices:quotes"}, "")
	tracker.MarkCompleted(item)

	completedAt, exists := tracker.GetCompletion("prices:quotes", "")
	require.True(t, exists)
	assert.WithinDuration(t, time.Now(), completedAt, time.Second)
}

func TestCompletionTrackerScopedBySubject(t *testing.T) {
	tracker := NewCompletionTracker()

	item := NewWorkItem(&WorkType{ID: "analytics:refresh"}, "p1")
	tracker.MarkCompleted(item)

	_, exists := tracker.GetCompletion("analytics:refresh", "p1")
	assert.True(t, exists)
	_, exists = tracker.GetCompletion("analytics:refresh", "p2")
	assert.False(t, exists)
}

func TestCompletionTrackerIsStale(t *testing.T) {
	tracker := NewCompletionTracker()
	item := NewWorkItem(&WorkType{ID: "prices:quotes"}, "")

	t.Run("never completed", func(t *testing.T) {
		assert.True(t, tracker.IsStale("prices:quotes", "", time.Hour))
	})

	t.Run("zero interval always stale", func(t *testing.T) {
		tracker.MarkCompleted(item)
		assert.True(t, tracker.IsStale("prices:quotes", "", 0))
	})

	t.Run("within interval", func(t *testing.T) {
		tracker.MarkCompleted(item)
		assert.False(t, tracker.IsStale("prices:quotes", "", time.Hour))
	})

	t.Run("interval elapsed", func(t *testing.T) {
		tracker.MarkCompletedAt(item, time.Now().Add(-2*time.Hour))
		assert.True(t, tracker.IsStale("prices:quotes", "", time.Hour))
	})
}

func TestCompletionTrackerClear(t *testing.T) {
	tracker := NewCompletionTracker()

	tracker.MarkCompleted(NewWorkItem(&WorkType{ID: "analytics:refresh"}, "p1"))
	tracker.Clear("analytics:refresh", "p1")

	_, exists := tracker.GetCompletion("analytics:refresh", "p1")
	assert.False(t, exists)
}

func TestCompletionTrackerClearByTypeID(t *testing.T) {
	tracker := NewCompletionTracker()

	tracker.MarkCompleted(NewWorkItem(&WorkType{ID: "analytics:refresh"}, "p1"))
	tracker.MarkCompleted(NewWorkItem(&WorkType{ID: "analytics:refresh"}, "p2"))
	tracker.MarkCompleted(NewWorkItem(&WorkType{ID: "prices:quotes"}, ""))

	tracker.ClearByTypeID("analytics:refresh")

	_, exists := tracker.GetCompletion("analytics:refresh", "p1")
	assert.False(t, exists)
	_, exists = tracker.GetCompletion("analytics:refresh", "p2")
	assert.False(t, exists)
	_, exists = tracker.GetCompletion("prices:quotes", "")
	assert.True(t, exists)
}

func TestParseWorkID(t *testing.T) {
	typeID, subject := ParseWorkID("analytics:refresh:p1")
	assert.Equal(t, "analytics:refresh", typeID)
	assert.Equal(t, "p1", subject)

	typeID, subject = ParseWorkID("cache:prune")
	assert.Equal(t, "cache:prune", typeID)
	assert.Equal(t, "", subject)
}

func TestCompletionKeyString(t *testing.T) {
	item := NewWorkItem(&WorkType{ID: "analytics:refresh"}, "p1")
	key := NewCompletionKey(item)

	assert.Equal(t, "analytics:refresh:p1", key.String())
	assert.Equal(t, "cache:prune", CompletionKey{TypeID: "cache:prune"}.String())
}
