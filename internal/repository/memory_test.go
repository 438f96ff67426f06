package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trackwave/trackwave/internal/domain"
)

func seed(t *testing.T, store *MemoryTrackStore, id string, status domain.TrackStatus) {
	t.Helper()
	require.NoError(t, store.Create(context.Background(), &domain.Track{
		ID:      id,
		UserID:  "u1",
		Title:   "t",
		Privacy: domain.PrivacyPublic,
		Status:  status,
	}))
}

func TestMemoryTrackStoreStatusGuards(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryTrackStore()
	seed(t, store, "t1", domain.StatusUploaded)

	// uploaded -> processing moves exactly once per lifecycle phase.
	moved, err := store.MarkProcessing(ctx, "t1")
	require.NoError(t, err)
	assert.True(t, moved)

	// Re-marking while still processing is allowed so a crashed worker can
	// pick the job back up.
	moved, err = store.MarkProcessing(ctx, "t1")
	require.NoError(t, err)
	assert.True(t, moved)

	require.NoError(t, store.MarkReady(ctx, "t1", "t1.mp3"))
	track, err := store.FindByID(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusReady, track.Status)

	// Terminal tracks never move again.
	moved, err = store.MarkProcessing(ctx, "t1")
	require.NoError(t, err)
	assert.False(t, moved)

	err = store.MarkReady(ctx, "t1", "other.mp3")
	assert.Error(t, err, "ready requires a processing row")
	require.NoError(t, store.MarkFailed(ctx, "t1"))
	track, err = store.FindByID(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusReady, track.Status, "failed must not overwrite ready")
}

func TestMemoryTrackStoreMarkFailedFromProcessing(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryTrackStore()
	seed(t, store, "t1", domain.StatusUploaded)

	moved, err := store.MarkProcessing(ctx, "t1")
	require.NoError(t, err)
	require.True(t, moved)

	require.NoError(t, store.MarkFailed(ctx, "t1"))
	track, err := store.FindByID(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFailed, track.Status)
}

func TestMemoryTrackStorePublishScheduledDue(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryTrackStore()
	now := time.Now()
	past := now.Add(-time.Minute)
	future := now.Add(time.Minute)

	require.NoError(t, store.Create(ctx, &domain.Track{
		ID: "due", UserID: "u1", Title: "due",
		Privacy: domain.PrivacyScheduled, ScheduledAt: &past, Status: domain.StatusReady,
	}))
	require.NoError(t, store.Create(ctx, &domain.Track{
		ID: "later", UserID: "u1", Title: "later",
		Privacy: domain.PrivacyScheduled, ScheduledAt: &future, Status: domain.StatusReady,
	}))

	n, err := store.PublishScheduledDue(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	due, err := store.FindByID(ctx, "due")
	require.NoError(t, err)
	assert.Equal(t, domain.PrivacyPublic, due.Privacy)
}

func TestMemoryTrackStorePaging(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryTrackStore()
	for _, id := range []string{"a", "b", "c"} {
		seed(t, store, id, domain.StatusUploaded)
	}

	page, total, err := store.FindPage(ctx, 2, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	assert.Len(t, page, 2)

	rest, total, err := store.FindPage(ctx, 2, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	assert.Len(t, rest, 1)

	empty, total, err := store.FindPage(ctx, 2, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	assert.Empty(t, empty)
}
