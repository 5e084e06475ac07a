package storage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(t.TempDir())
	require.NoError(t, err)
	return store
}

func TestStore_InteractedFlag(t *testing.T) {
	store := openTestStore(t)

	assert.False(t, store.Interacted())
	require.NoError(t, store.MarkInteracted())
	assert.True(t, store.Interacted())
}

func TestStore_AutoPlayTimestamp(t *testing.T) {
	store := openTestStore(t)

	assert.True(t, store.LastAutoPlayed().IsZero())

	now := time.Now()
	require.NoError(t, store.MarkAutoPlayed(now))
	got := store.LastAutoPlayed()
	assert.WithinDuration(t, now, got, time.Millisecond)
}

func TestStore_FeedbackMarkers(t *testing.T) {
	store := openTestStore(t)

	assert.False(t, store.FeedbackGiven("D1"))
	require.NoError(t, store.MarkFeedbackGiven("D1"))
	assert.True(t, store.FeedbackGiven("D1"))
	assert.False(t, store.FeedbackGiven("D2"))
}

func TestStore_FeedbackQueueRoundTrip(t *testing.T) {
	store := openTestStore(t)

	require.NoError(t, store.EnqueueFeedback(QueuedFeedback{DocID: "D1", Feedback: "up", Summary: "S"}))
	require.NoError(t, store.EnqueueFeedback(QueuedFeedback{DocID: "D2", Feedback: "down", Summary: "S2"}))

	pending, ids, err := store.PendingFeedback()
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, "D1", pending[0].DocID)
	assert.NotZero(t, pending[0].Timestamp)

	require.NoError(t, store.RemoveFeedback(ids[:1]))
	pending, _, err = store.PendingFeedback()
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "D2", pending[0].DocID)
}
