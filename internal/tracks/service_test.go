package tracks_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trackwave/trackwave/internal/apperr"
	"github.com/trackwave/trackwave/internal/domain"
	"github.com/trackwave/trackwave/internal/repository"
	"github.com/trackwave/trackwave/internal/tracks"
)

type serviceFixture struct {
	svc   *tracks.Service
	repo  *repository.MemoryTrackStore
	users *fakeUserDirectory
	quota *fakeQuotaLedger
	store *fakeObjectStore
	jobs  *fakeJobQueue
}

func newServiceFixture(limits tracks.Limits) *serviceFixture {
	f := &serviceFixture{
		repo:  repository.NewMemoryTrackStore(),
		users: &fakeUserDirectory{users: map[string]*domain.User{}},
		quota: &fakeQuotaLedger{},
		store: newFakeObjectStore(),
		jobs:  &fakeJobQueue{},
	}
	f.svc = tracks.NewService(f.repo, f.users, f.quota, f.store, f.jobs, limits)
	return f
}

func defaultLimits() tracks.Limits {
	return tracks.Limits{
		MaxFileSizeBytes: 1 << 20,
		FreeLimitSeconds: 180 * 60,
		ProLimitSeconds:  0,
	}
}

func freeUser(id string) *domain.User {
	return &domain.User{ID: id, SubscriptionPlan: domain.PlanFree}
}

func proUser(id string, expiresAt *time.Time) *domain.User {
	return &domain.User{ID: id, SubscriptionPlan: domain.PlanPro, SubscriptionExpiresAt: expiresAt}
}

func audioUpload(content string) tracks.Upload {
	return tracks.Upload{
		Reader:      strings.NewReader(content),
		Size:        int64(len(content)),
		FileName:    "song.wav",
		ContentType: "audio/wav",
	}
}

func int64Ptr(v int64) *int64 { return &v }

func TestCreateFromUpload_Success(t *testing.T) {
	// Arrange
	ctx := context.Background()
	f := newServiceFixture(defaultLimits())
	f.users.users["u1"] = freeUser("u1")

	in := tracks.CreateTrackInput{
		Title:                    "First Light",
		EstimatedDurationSeconds: int64Ptr(240),
	}

	// Act
	track, err := f.svc.CreateFromUpload(ctx, audioUpload("wav-bytes"), in, "u1")

	// Assert
	require.NoError(t, err)
	require.NotNil(t, track)
	assert.Equal(t, "u1", track.UserID)
	assert.Equal(t, domain.StatusUploaded, track.Status)
	assert.Equal(t, domain.PrivacyPublic, track.Privacy)
	assert.True(t, strings.HasSuffix(track.ObjectKey, "-song.wav"))
	assert.False(t, track.EnableDirectDownloads)
	assert.True(t, track.EnableOfflineListening)
	assert.True(t, track.AllowComments)

	stored, err := f.repo.FindByID(ctx, track.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusUploaded, stored.Status)

	assert.Contains(t, f.store.objects, track.ObjectKey)

	require.Len(t, f.jobs.payloads, 1)
	job := f.jobs.payloads[0]
	assert.Equal(t, track.ID, job.TrackID)
	assert.Equal(t, track.ObjectKey, job.SourceKey)
	assert.Equal(t, track.ID+".mp3", job.TargetKey)

	assert.Equal(t, []int64{240}, f.quota.reserves)
	assert.Empty(t, f.quota.releases)
}

func TestCreateFromUpload_ValidationOrder(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture(defaultLimits())
	f.users.users["u1"] = freeUser("u1")

	cases := []struct {
		name    string
		up      tracks.Upload
		in      tracks.CreateTrackInput
		caller  string
		wantMsg string
	}{
		{
			name:    "missing file",
			up:      tracks.Upload{},
			in:      tracks.CreateTrackInput{Title: "t"},
			caller:  "u1",
			wantMsg: "file is required",
		},
		{
			name:    "missing uploader",
			up:      audioUpload("x"),
			in:      tracks.CreateTrackInput{Title: "t"},
			caller:  "",
			wantMsg: "uploader id is required",
		},
		{
			name:    "empty title",
			up:      audioUpload("x"),
			in:      tracks.CreateTrackInput{Title: "   "},
			caller:  "u1",
			wantMsg: "title is required",
		},
		{
			name:    "title too long",
			up:      audioUpload("x"),
			in:      tracks.CreateTrackInput{Title: strings.Repeat("a", 256)},
			caller:  "u1",
			wantMsg: "title must be at most 255 characters",
		},
		{
			name:    "negative estimate",
			up:      audioUpload("x"),
			in:      tracks.CreateTrackInput{Title: "t", EstimatedDurationSeconds: int64Ptr(-1)},
			caller:  "u1",
			wantMsg: "estimatedDurationSeconds must not be negative",
		},
		{
			name:   "scheduled without time",
			up:     audioUpload("x"),
			caller: "u1",
			in: tracks.CreateTrackInput{
				Title:   "t",
				Privacy: privacyPtr(domain.PrivacyScheduled),
			},
			wantMsg: "scheduledAt is required when privacy is scheduled",
		},
		{
			name:    "unknown uploader",
			up:      audioUpload("x"),
			in:      tracks.CreateTrackInput{Title: "t"},
			caller:  "ghost",
			wantMsg: "uploader not found",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.CreateFromUpload(ctx, tc.up, tc.in, tc.caller)
			var verr *apperr.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tc.wantMsg, verr.Msg)
		})
	}
	// No side effects from any rejected upload.
	assert.Empty(t, f.store.objects)
	assert.Empty(t, f.jobs.payloads)
}

func TestCreateFromUpload_FileTooLarge(t *testing.T) {
	ctx := context.Background()
	limits := defaultLimits()
	limits.MaxFileSizeBytes = 4
	f := newServiceFixture(limits)
	f.users.users["u1"] = freeUser("u1")

	_, err := f.svc.CreateFromUpload(ctx, audioUpload("12345"), tracks.CreateTrackInput{Title: "t"}, "u1")

	var verr *apperr.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Msg, "file too large")
	// Size is checked before the user lookup touches the quota.
	assert.Empty(t, f.quota.reserves)
}

func TestCreateFromUpload_QuotaExceeded(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture(defaultLimits())
	f.users.users["u1"] = freeUser("u1")
	f.quota.used = 180*60 - 10 // 10 seconds of headroom left

	_, err := f.svc.CreateFromUpload(ctx, audioUpload("x"), tracks.CreateTrackInput{
		Title:                    "t",
		EstimatedDurationSeconds: int64Ptr(11),
	}, "u1")

	var qerr *apperr.QuotaExceededError
	require.ErrorAs(t, err, &qerr)
	assert.Equal(t, "u1", qerr.UserID)
	// Nothing was stored or enqueued after the rejection.
	assert.Empty(t, f.store.objects)
	assert.Empty(t, f.jobs.payloads)
}

func TestCreateFromUpload_ProPlanUnlimited(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture(defaultLimits())
	f.users.users["u1"] = proUser("u1", nil)
	f.quota.used = 1 << 40 // far past any free budget

	track, err := f.svc.CreateFromUpload(ctx, audioUpload("x"), tracks.CreateTrackInput{
		Title:                    "t",
		EstimatedDurationSeconds: int64Ptr(6 * 3600),
	}, "u1")

	require.NoError(t, err)
	require.NotNil(t, track)
}

func TestCreateFromUpload_ExpiredProFallsBackToFree(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture(defaultLimits())
	yesterday := time.Now().Add(-24 * time.Hour)
	f.users.users["u1"] = proUser("u1", &yesterday)
	f.quota.used = 180 * 60 // free budget fully spent

	_, err := f.svc.CreateFromUpload(ctx, audioUpload("x"), tracks.CreateTrackInput{
		Title:                    "t",
		EstimatedDurationSeconds: int64Ptr(1),
	}, "u1")

	var qerr *apperr.QuotaExceededError
	require.ErrorAs(t, err, &qerr)
}

func TestCreateFromUpload_StorageFailureReleasesQuota(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture(defaultLimits())
	f.users.users["u1"] = freeUser("u1")
	f.store.uploadErr = assert.AnError

	_, err := f.svc.CreateFromUpload(ctx, audioUpload("x"), tracks.CreateTrackInput{
		Title:                    "t",
		EstimatedDurationSeconds: int64Ptr(120),
	}, "u1")

	var serr *apperr.StorageError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, []int64{120}, f.quota.releases)
	assert.Empty(t, f.jobs.payloads)
}

func TestCreateFromUpload_EnqueueFailure(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture(defaultLimits())
	f.users.users["u1"] = freeUser("u1")
	f.jobs.err = assert.AnError

	_, err := f.svc.CreateFromUpload(ctx, audioUpload("x"), tracks.CreateTrackInput{Title: "t"}, "u1")

	var qerr *apperr.QueueError
	require.ErrorAs(t, err, &qerr)
	// The track row and object survive so the job can be re-enqueued later.
	_, total, listErr := f.repo.FindPage(ctx, 10, 0)
	require.NoError(t, listErr)
	assert.Equal(t, int64(1), total)
	assert.Len(t, f.store.objects, 1)
}

func TestUpdate_OwnershipEnforced(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture(defaultLimits())
	f.users.users["owner"] = freeUser("owner")

	track, err := f.svc.CreateFromUpload(ctx, audioUpload("x"), tracks.CreateTrackInput{Title: "mine"}, "owner")
	require.NoError(t, err)

	newTitle := "stolen"
	_, err = f.svc.Update(ctx, track.ID, repository.TrackUpdate{Title: &newTitle}, "intruder")
	var ferr *apperr.ForbiddenError
	require.ErrorAs(t, err, &ferr)

	updated, err := f.svc.Update(ctx, track.ID, repository.TrackUpdate{Title: &newTitle}, "owner")
	require.NoError(t, err)
	assert.Equal(t, "stolen", updated.Title)
}

func TestDelete_ReleasesReservedDuration(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture(defaultLimits())
	f.users.users["u1"] = freeUser("u1")

	track, err := f.svc.CreateFromUpload(ctx, audioUpload("x"), tracks.CreateTrackInput{
		Title:                    "t",
		EstimatedDurationSeconds: int64Ptr(300),
	}, "u1")
	require.NoError(t, err)

	require.NoError(t, f.svc.Delete(ctx, track.ID, "u1"))
	assert.Equal(t, []int64{300}, f.quota.releases)

	_, err = f.svc.Get(ctx, track.ID)
	var nerr *apperr.NotFoundError
	require.ErrorAs(t, err, &nerr)
}

func TestList_ClampsPageSize(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture(defaultLimits())
	f.users.users["u1"] = freeUser("u1")
	for i := 0; i < 12; i++ {
		_, err := f.svc.CreateFromUpload(ctx, audioUpload("x"), tracks.CreateTrackInput{Title: "t"}, "u1")
		require.NoError(t, err)
	}

	items, total, err := f.svc.List(ctx, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(12), total)
	assert.Len(t, items, 10) // default page size
}

func privacyPtr(p domain.TrackPrivacy) *domain.TrackPrivacy { return &p }
