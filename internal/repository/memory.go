package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/trackwave/trackwave/internal/apperr"
	"github.com/trackwave/trackwave/internal/domain"
)

// MemoryTrackStore is an in-memory track repository guarded by an RWMutex.
// It enforces the same status-transition guards as the SQL repository and
// backs unit tests that exercise the upload and transcode flows without a
// database.
type MemoryTrackStore struct {
	mu     sync.RWMutex
	tracks map[string]*domain.Track
}

// NewMemoryTrackStore constructs an empty store.
func NewMemoryTrackStore() *MemoryTrackStore {
	return &MemoryTrackStore{tracks: make(map[string]*domain.Track)}
}

// Create inserts a track.
func (m *MemoryTrackStore) Create(_ context.Context, t *domain.Track) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now().UTC()
	t.CreatedAt = now
	t.UpdatedAt = now
	cp := *t
	m.tracks[t.ID] = &cp
	return nil
}

// FindByID returns a copy of the track.
func (m *MemoryTrackStore) FindByID(_ context.Context, id string) (*domain.Track, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.tracks[id]
	if !ok {
		return nil, &apperr.NotFoundError{Entity: "track", ID: id}
	}
	cp := *t
	return &cp, nil
}

// FindPage returns tracks newest first.
func (m *MemoryTrackStore) FindPage(_ context.Context, limit, offset int) ([]domain.Track, int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	all := make([]domain.Track, 0, len(m.tracks))
	for _, t := range m.tracks {
		all = append(all, *t)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })
	total := int64(len(all))
	if offset >= len(all) {
		return nil, total, nil
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end], total, nil
}

// UpdateMetadata applies non-nil fields.
func (m *MemoryTrackStore) UpdateMetadata(_ context.Context, id string, u TrackUpdate) (*domain.Track, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tracks[id]
	if !ok {
		return nil, &apperr.NotFoundError{Entity: "track", ID: id}
	}
	if u.Title != nil {
		t.Title = *u.Title
	}
	if u.Description != nil {
		t.Description = u.Description
	}
	if u.Genre != nil {
		t.Genre = u.Genre
	}
	if u.Tags != nil {
		t.Tags = u.Tags
	}
	if u.ArtworkURL != nil {
		t.ArtworkURL = u.ArtworkURL
	}
	if u.Privacy != nil {
		t.Privacy = *u.Privacy
	}
	if u.ScheduledAt != nil {
		t.ScheduledAt = u.ScheduledAt
	}
	if u.EnableDirectDownloads != nil {
		t.EnableDirectDownloads = *u.EnableDirectDownloads
	}
	if u.EnableOfflineListening != nil {
		t.EnableOfflineListening = *u.EnableOfflineListening
	}
	if u.AllowComments != nil {
		t.AllowComments = *u.AllowComments
	}
	t.UpdatedAt = time.Now().UTC()
	cp := *t
	return &cp, nil
}

// Delete removes a track.
func (m *MemoryTrackStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tracks[id]; !ok {
		return &apperr.NotFoundError{Entity: "track", ID: id}
	}
	delete(m.tracks, id)
	return nil
}

// SumDurationSecondsByUser sums known durations for a user.
func (m *MemoryTrackStore) SumDurationSecondsByUser(_ context.Context, userID string) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var total int64
	for _, t := range m.tracks {
		if t.UserID == userID && t.DurationSeconds != nil {
			total += *t.DurationSeconds
		}
	}
	return total, nil
}

// MarkProcessing mirrors the SQL guard: only uploaded or processing rows move.
func (m *MemoryTrackStore) MarkProcessing(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tracks[id]
	if !ok || t.Status.Terminal() {
		return false, nil
	}
	t.Status = domain.StatusProcessing
	t.UpdatedAt = time.Now().UTC()
	return true, nil
}

// MarkReady transitions processing -> ready with the transcoded key.
func (m *MemoryTrackStore) MarkReady(_ context.Context, id, transcodedKey string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tracks[id]
	if !ok || t.Status != domain.StatusProcessing {
		return &apperr.PersistenceError{Op: "mark ready", Err: &apperr.NotFoundError{Entity: "processing track", ID: id}}
	}
	t.Status = domain.StatusReady
	t.TranscodedObjectKey = &transcodedKey
	t.UpdatedAt = time.Now().UTC()
	return nil
}

// MarkFailed transitions processing -> failed.
func (m *MemoryTrackStore) MarkFailed(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tracks[id]
	if !ok || t.Status != domain.StatusProcessing {
		return nil
	}
	t.Status = domain.StatusFailed
	t.UpdatedAt = time.Now().UTC()
	return nil
}

// IncrementPlayCount bumps the play counter.
func (m *MemoryTrackStore) IncrementPlayCount(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t, ok := m.tracks[id]; ok {
		t.PlayCount++
	}
	return nil
}

// PublishScheduledDue flips due scheduled tracks to public.
func (m *MemoryTrackStore) PublishScheduledDue(_ context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, t := range m.tracks {
		if t.Privacy == domain.PrivacyScheduled && t.ScheduledAt != nil && !t.ScheduledAt.After(now) {
			t.Privacy = domain.PrivacyPublic
			t.ScheduledAt = nil
			t.UpdatedAt = now.UTC()
			n++
		}
	}
	return n, nil
}
