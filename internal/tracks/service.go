// Package tracks implements the upload/quota pipeline and range streaming
// for audio tracks.
package tracks

import (
	"context"
	"fmt"
	"io"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/trackwave/trackwave/internal/apperr"
	"github.com/trackwave/trackwave/internal/domain"
	"github.com/trackwave/trackwave/internal/logger"
	"github.com/trackwave/trackwave/internal/queue"
	"github.com/trackwave/trackwave/internal/repository"
	"github.com/trackwave/trackwave/internal/storage"
)

// TrackRepository is the persistence surface the service needs.
type TrackRepository interface {
	Create(ctx context.Context, t *domain.Track) error
	FindByID(ctx context.Context, id string) (*domain.Track, error)
	FindPage(ctx context.Context, limit, offset int) ([]domain.Track, int64, error)
	UpdateMetadata(ctx context.Context, id string, u repository.TrackUpdate) (*domain.Track, error)
	Delete(ctx context.Context, id string) error
	SumDurationSecondsByUser(ctx context.Context, userID string) (int64, error)
	IncrementPlayCount(ctx context.Context, id string) error
}

// UserDirectory resolves uploader identities to plan snapshots.
type UserDirectory interface {
	FindByID(ctx context.Context, id string) (*domain.User, error)
}

// QuotaLedger reserves and releases cumulative upload seconds.
type QuotaLedger interface {
	Reserve(ctx context.Context, userID string, seconds, limit int64) (bool, error)
	Release(ctx context.Context, userID string, seconds int64) error
}

// ObjectStore is the slice of the storage gateway the service uses.
type ObjectStore interface {
	UploadBuffer(ctx context.Context, objectKey string, reader io.Reader, size int64, contentType string) error
	StatObject(ctx context.Context, objectKey string) (storage.ObjectInfo, error)
	GetObjectStream(ctx context.Context, objectKey string) (io.ReadCloser, error)
	GetObjectRange(ctx context.Context, objectKey string, start, end int64) (io.ReadCloser, error)
}

// JobQueue enqueues transcode jobs.
type JobQueue interface {
	EnqueueTranscode(ctx context.Context, payload queue.TranscodePayload) error
}

// Limits carries the configured upload ceilings.
type Limits struct {
	MaxFileSizeBytes int64
	FreeLimitSeconds int64
	// ProLimitSeconds of zero or less means pro uploads are unlimited.
	ProLimitSeconds int64
}

// Service owns track creation, metadata, and stream resolution.
type Service struct {
	repo    TrackRepository
	users   UserDirectory
	quota   QuotaLedger
	store   ObjectStore
	jobs    JobQueue
	limits  Limits
	nowFunc func() time.Time
}

// NewService wires the service.
func NewService(repo TrackRepository, users UserDirectory, quota QuotaLedger, store ObjectStore, jobs JobQueue, limits Limits) *Service {
	return &Service{
		repo:    repo,
		users:   users,
		quota:   quota,
		store:   store,
		jobs:    jobs,
		limits:  limits,
		nowFunc: time.Now,
	}
}

// Upload is the incoming file: a reader positioned at the start of the
// payload plus the client-declared metadata about it.
type Upload struct {
	Reader      io.Reader
	Size        int64
	FileName    string
	ContentType string
}

// CreateTrackInput carries the descriptive fields of a new track. Pointer
// fields distinguish "absent" from zero values; absent booleans take the
// documented defaults.
type CreateTrackInput struct {
	Title                    string
	Description              *string
	Genre                    *string
	Tags                     *string
	ArtworkURL               *string
	Privacy                  *domain.TrackPrivacy
	ScheduledAt              *time.Time
	EstimatedDurationSeconds *int64
	EnableDirectDownloads    *bool
	EnableOfflineListening   *bool
	AllowComments            *bool
}

// CreateFromUpload validates the upload against size and plan-quota limits,
// stores the raw bytes, inserts the track row in uploaded state, and
// enqueues a transcode job. Side effects happen strictly in that order so a
// queued job always refers to stored bytes.
func (s *Service) CreateFromUpload(ctx context.Context, up Upload, in CreateTrackInput, uploaderID string) (*domain.Track, error) {
	if up.Reader == nil || up.Size <= 0 {
		return nil, apperr.Validation("file is required")
	}
	if uploaderID == "" {
		return nil, apperr.Validation("uploader id is required")
	}
	if err := validateInput(in); err != nil {
		return nil, err
	}
	if up.Size > s.limits.MaxFileSizeBytes {
		return nil, apperr.Validation("file too large, max allowed is %s", formatBytes(s.limits.MaxFileSizeBytes))
	}

	user, err := s.users.FindByID(ctx, uploaderID)
	if err != nil {
		if _, ok := err.(*apperr.NotFoundError); ok {
			return nil, apperr.Validation("uploader not found")
		}
		return nil, err
	}

	limitSeconds := s.planLimitSeconds(user)
	estimated := int64(0)
	if in.EstimatedDurationSeconds != nil {
		estimated = *in.EstimatedDurationSeconds
	}
	ok, err := s.quota.Reserve(ctx, user.ID, estimated, limitSeconds)
	if err != nil {
		return nil, err
	}
	if !ok {
		used, sumErr := s.repo.SumDurationSecondsByUser(ctx, user.ID)
		if sumErr == nil {
			logger.Warn("upload rejected by quota",
				logger.String("userId", user.ID),
				logger.Int64("usedSeconds", used),
				logger.Int64("estimatedSeconds", estimated),
				logger.Int64("limitSeconds", limitSeconds))
		}
		return nil, &apperr.QuotaExceededError{UserID: user.ID}
	}

	// Key derives from a random UUID plus the original filename, so
	// collisions are impossible without retry logic.
	objectKey := fmt.Sprintf("%s-%s", uuid.NewString(), sanitizeFileName(up.FileName))

	if err := s.store.UploadBuffer(ctx, objectKey, up.Reader, up.Size, up.ContentType); err != nil {
		s.releaseQuota(ctx, user.ID, estimated)
		return nil, &apperr.StorageError{Op: "upload", Err: err}
	}

	track := s.buildTrack(in, uploaderID, objectKey, up)
	if err := s.repo.Create(ctx, track); err != nil {
		// The stored object is orphaned here on purpose: cleanup is an
		// operational concern, not an in-band compensation.
		s.releaseQuota(ctx, user.ID, estimated)
		return nil, err
	}

	payload := queue.TranscodePayload{
		TrackID:   track.ID,
		SourceKey: objectKey,
		TargetKey: track.ID + ".mp3",
	}
	if err := s.jobs.EnqueueTranscode(ctx, payload); err != nil {
		return nil, &apperr.QueueError{Task: queue.TranscodeTask, Err: err}
	}

	logger.Info("track uploaded",
		logger.String("trackId", track.ID),
		logger.String("userId", uploaderID),
		logger.Int64("size", up.Size))
	return track, nil
}

// Get returns a track or a NotFoundError.
func (s *Service) Get(ctx context.Context, id string) (*domain.Track, error) {
	return s.repo.FindByID(ctx, id)
}

// List returns one page of tracks, newest first, and the total count.
func (s *Service) List(ctx context.Context, limit, offset int) ([]domain.Track, int64, error) {
	if limit <= 0 {
		limit = 10
	}
	if limit > 100 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	return s.repo.FindPage(ctx, limit, offset)
}

// Update applies a metadata patch. Only the owner may update a track.
func (s *Service) Update(ctx context.Context, id string, u repository.TrackUpdate, callerID string) (*domain.Track, error) {
	track, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if track.UserID != callerID {
		return nil, &apperr.ForbiddenError{Msg: "you can only update your own tracks"}
	}
	if u.Title != nil && (*u.Title == "" || len(*u.Title) > 255) {
		return nil, apperr.Validation("title must be between 1 and 255 characters")
	}
	return s.repo.UpdateMetadata(ctx, id, u)
}

// Delete removes the track row and returns its reserved duration to the
// ledger. Stored objects are left behind for offline cleanup.
func (s *Service) Delete(ctx context.Context, id string, callerID string) error {
	track, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if track.UserID != callerID {
		return &apperr.ForbiddenError{Msg: "you can only delete your own tracks"}
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	if track.DurationSeconds != nil && *track.DurationSeconds > 0 {
		s.releaseQuota(ctx, track.UserID, *track.DurationSeconds)
	}
	return nil
}

func (s *Service) buildTrack(in CreateTrackInput, uploaderID, objectKey string, up Upload) *domain.Track {
	privacy := domain.PrivacyPublic
	if in.Privacy != nil {
		privacy = *in.Privacy
	}
	track := &domain.Track{
		ID:                     uuid.NewString(),
		UserID:                 uploaderID,
		Title:                  in.Title,
		Description:            in.Description,
		Genre:                  in.Genre,
		Tags:                   in.Tags,
		ArtworkURL:             in.ArtworkURL,
		Privacy:                privacy,
		ScheduledAt:            in.ScheduledAt,
		ObjectKey:              objectKey,
		ContentType:            up.ContentType,
		Size:                   up.Size,
		DurationSeconds:        in.EstimatedDurationSeconds,
		Status:                 domain.StatusUploaded,
		EnableDirectDownloads:  false,
		EnableOfflineListening: true,
		AllowComments:          true,
	}
	if in.EnableDirectDownloads != nil {
		track.EnableDirectDownloads = *in.EnableDirectDownloads
	}
	if in.EnableOfflineListening != nil {
		track.EnableOfflineListening = *in.EnableOfflineListening
	}
	if in.AllowComments != nil {
		track.AllowComments = *in.AllowComments
	}
	return track
}

// planLimitSeconds resolves the effective quota. An active pro subscription
// with a zero configured pro limit means unlimited, returned as a
// non-positive sentinel the ledger understands.
func (s *Service) planLimitSeconds(user *domain.User) int64 {
	if !user.ProActive(s.nowFunc()) {
		return s.limits.FreeLimitSeconds
	}
	if s.limits.ProLimitSeconds > 0 {
		return s.limits.ProLimitSeconds
	}
	return 0
}

func (s *Service) releaseQuota(ctx context.Context, userID string, seconds int64) {
	if seconds <= 0 {
		return
	}
	if err := s.quota.Release(ctx, userID, seconds); err != nil {
		logger.Error("release quota reservation",
			logger.String("userId", userID),
			logger.Int64("seconds", seconds),
			logger.ErrorField(err))
	}
}

func validateInput(in CreateTrackInput) error {
	if strings.TrimSpace(in.Title) == "" {
		return apperr.Validation("title is required")
	}
	if len(in.Title) > 255 {
		return apperr.Validation("title must be at most 255 characters")
	}
	if in.Description != nil && len(*in.Description) > 1000 {
		return apperr.Validation("description must be at most 1000 characters")
	}
	if in.EstimatedDurationSeconds != nil && *in.EstimatedDurationSeconds < 0 {
		return apperr.Validation("estimatedDurationSeconds must not be negative")
	}
	if in.Privacy != nil {
		switch *in.Privacy {
		case domain.PrivacyPublic, domain.PrivacyPrivate:
		case domain.PrivacyScheduled:
			if in.ScheduledAt == nil {
				return apperr.Validation("scheduledAt is required when privacy is scheduled")
			}
		default:
			return apperr.Validation("invalid privacy %q", string(*in.Privacy))
		}
	}
	return nil
}

// formatBytes renders a byte count for error messages, e.g. "4.00 GB".
func formatBytes(bytes int64) string {
	if bytes <= 0 {
		return "0 Bytes"
	}
	units := []string{"Bytes", "KB", "MB", "GB", "TB"}
	i := int(math.Floor(math.Log(float64(bytes)) / math.Log(1024)))
	if i >= len(units) {
		i = len(units) - 1
	}
	value := float64(bytes) / math.Pow(1024, float64(i))
	return fmt.Sprintf("%.2f %s", value, units[i])
}

// sanitizeFileName strips path separators so client filenames cannot nest
// object keys.
func sanitizeFileName(name string) string {
	name = strings.ReplaceAll(name, "/", "_")
	name = strings.ReplaceAll(name, "\\", "_")
	if name == "" {
		name = "upload"
	}
	return name
}
