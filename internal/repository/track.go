// Package repository wraps all SQL used by the API and the worker.
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/trackwave/trackwave/internal/apperr"
	"github.com/trackwave/trackwave/internal/domain"
)

const trackColumns = `id, user_id, title, description, genre, tags, artwork_url,
	privacy, scheduled_at, object_key, transcoded_object_key, content_type,
	size, duration_seconds, status, enable_direct_downloads,
	enable_offline_listening, allow_comments, play_count, created_at, updated_at`

// TrackRepository persists tracks in Postgres.
type TrackRepository struct {
	pool *pgxpool.Pool
}

// NewTrackRepository constructs a repository.
func NewTrackRepository(pool *pgxpool.Pool) *TrackRepository {
	return &TrackRepository{pool: pool}
}

// Create inserts a freshly uploaded track.
func (r *TrackRepository) Create(ctx context.Context, t *domain.Track) error {
	now := time.Now().UTC()
	t.CreatedAt = now
	t.UpdatedAt = now
	_, err := r.pool.Exec(ctx, `
		INSERT INTO tracks (id, user_id, title, description, genre, tags, artwork_url,
			privacy, scheduled_at, object_key, transcoded_object_key, content_type,
			size, duration_seconds, status, enable_direct_downloads,
			enable_offline_listening, allow_comments, play_count, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21)
	`, t.ID, t.UserID, t.Title, t.Description, t.Genre, t.Tags, t.ArtworkURL,
		t.Privacy, t.ScheduledAt, t.ObjectKey, t.TranscodedObjectKey, t.ContentType,
		t.Size, t.DurationSeconds, t.Status, t.EnableDirectDownloads,
		t.EnableOfflineListening, t.AllowComments, t.PlayCount, t.CreatedAt, t.UpdatedAt)
	if err != nil {
		return &apperr.PersistenceError{Op: "insert track", Err: err}
	}
	return nil
}

// FindByID returns a track by id.
func (r *TrackRepository) FindByID(ctx context.Context, id string) (*domain.Track, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+trackColumns+` FROM tracks WHERE id=$1`, id)
	t, err := scanTrack(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &apperr.NotFoundError{Entity: "track", ID: id}
		}
		return nil, &apperr.PersistenceError{Op: "select track", Err: err}
	}
	return t, nil
}

// FindPage returns one page of tracks, newest first, plus the total count.
func (r *TrackRepository) FindPage(ctx context.Context, limit, offset int) ([]domain.Track, int64, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+trackColumns+` FROM tracks
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, 0, &apperr.PersistenceError{Op: "select tracks", Err: err}
	}
	defer rows.Close()

	var tracks []domain.Track
	for rows.Next() {
		t, err := scanTrack(rows)
		if err != nil {
			return nil, 0, &apperr.PersistenceError{Op: "scan track", Err: err}
		}
		tracks = append(tracks, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, &apperr.PersistenceError{Op: "iterate tracks", Err: err}
	}

	var total int64
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM tracks`).Scan(&total); err != nil {
		return nil, 0, &apperr.PersistenceError{Op: "count tracks", Err: err}
	}
	return tracks, total, nil
}

// TrackUpdate carries the optional metadata fields of a PATCH. Nil fields are
// left untouched.
type TrackUpdate struct {
	Title                  *string
	Description            *string
	Genre                  *string
	Tags                   *string
	ArtworkURL             *string
	Privacy                *domain.TrackPrivacy
	ScheduledAt            *time.Time
	EnableDirectDownloads  *bool
	EnableOfflineListening *bool
	AllowComments          *bool
}

// UpdateMetadata applies a partial metadata update and returns the new row.
func (r *TrackRepository) UpdateMetadata(ctx context.Context, id string, u TrackUpdate) (*domain.Track, error) {
	now := time.Now().UTC()
	tag, err := r.pool.Exec(ctx, `
		UPDATE tracks SET
			title = COALESCE($1, title),
			description = COALESCE($2, description),
			genre = COALESCE($3, genre),
			tags = COALESCE($4, tags),
			artwork_url = COALESCE($5, artwork_url),
			privacy = COALESCE($6, privacy),
			scheduled_at = COALESCE($7, scheduled_at),
			enable_direct_downloads = COALESCE($8, enable_direct_downloads),
			enable_offline_listening = COALESCE($9, enable_offline_listening),
			allow_comments = COALESCE($10, allow_comments),
			updated_at = $11
		WHERE id = $12
	`, u.Title, u.Description, u.Genre, u.Tags, u.ArtworkURL, u.Privacy, u.ScheduledAt,
		u.EnableDirectDownloads, u.EnableOfflineListening, u.AllowComments, now, id)
	if err != nil {
		return nil, &apperr.PersistenceError{Op: "update track", Err: err}
	}
	if tag.RowsAffected() == 0 {
		return nil, &apperr.NotFoundError{Entity: "track", ID: id}
	}
	return r.FindByID(ctx, id)
}

// Delete removes a track row. Object-store cleanup is handled out of band.
func (r *TrackRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM tracks WHERE id=$1`, id)
	if err != nil {
		return &apperr.PersistenceError{Op: "delete track", Err: err}
	}
	if tag.RowsAffected() == 0 {
		return &apperr.NotFoundError{Entity: "track", ID: id}
	}
	return nil
}

// SumDurationSecondsByUser sums the stored durations of a user's tracks,
// treating unknown durations as zero.
func (r *TrackRepository) SumDurationSecondsByUser(ctx context.Context, userID string) (int64, error) {
	var total int64
	err := r.pool.QueryRow(ctx, `
		SELECT COALESCE(SUM(duration_seconds), 0) FROM tracks WHERE user_id=$1
	`, userID).Scan(&total)
	if err != nil {
		return 0, &apperr.PersistenceError{Op: "sum durations", Err: err}
	}
	return total, nil
}

// MarkProcessing transitions uploaded -> processing. It also lets a track
// already in processing re-enter the state so a job redelivered after a
// worker crash can resume. Returns false when the track is terminal, which
// callers treat as a no-op.
func (r *TrackRepository) MarkProcessing(ctx context.Context, id string) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE tracks SET status=$1, updated_at=$2
		WHERE id=$3 AND status IN ($4, $1)
	`, domain.StatusProcessing, time.Now().UTC(), id, domain.StatusUploaded)
	if err != nil {
		return false, &apperr.PersistenceError{Op: "mark processing", Err: err}
	}
	return tag.RowsAffected() > 0, nil
}

// MarkReady transitions processing -> ready and records the transcoded object
// key in the same statement. The status guard keeps a stale redelivery from
// rewriting a terminal row.
func (r *TrackRepository) MarkReady(ctx context.Context, id, transcodedKey string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE tracks SET status=$1, transcoded_object_key=$2, updated_at=$3
		WHERE id=$4 AND status=$5
	`, domain.StatusReady, transcodedKey, time.Now().UTC(), id, domain.StatusProcessing)
	if err != nil {
		return &apperr.PersistenceError{Op: "mark ready", Err: err}
	}
	if tag.RowsAffected() == 0 {
		return &apperr.PersistenceError{Op: "mark ready", Err: errors.New("track not in processing state")}
	}
	return nil
}

// MarkFailed transitions processing -> failed.
func (r *TrackRepository) MarkFailed(ctx context.Context, id string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE tracks SET status=$1, updated_at=$2
		WHERE id=$3 AND status=$4
	`, domain.StatusFailed, time.Now().UTC(), id, domain.StatusProcessing)
	if err != nil {
		return &apperr.PersistenceError{Op: "mark failed", Err: err}
	}
	return nil
}

// IncrementPlayCount bumps the play counter. Best effort; callers ignore
// failures so a metrics hiccup never breaks playback.
func (r *TrackRepository) IncrementPlayCount(ctx context.Context, id string) error {
	_, err := r.pool.Exec(ctx, `UPDATE tracks SET play_count = play_count + 1 WHERE id=$1`, id)
	if err != nil {
		return &apperr.PersistenceError{Op: "increment play count", Err: err}
	}
	return nil
}

// PublishScheduledDue flips scheduled tracks whose publish instant has passed
// to public. Returns how many rows changed.
func (r *TrackRepository) PublishScheduledDue(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE tracks SET privacy=$1, scheduled_at=NULL, updated_at=$2
		WHERE privacy=$3 AND scheduled_at IS NOT NULL AND scheduled_at <= $2
	`, domain.PrivacyPublic, now.UTC(), domain.PrivacyScheduled)
	if err != nil {
		return 0, &apperr.PersistenceError{Op: "publish scheduled", Err: err}
	}
	return tag.RowsAffected(), nil
}

// rowScanner covers pgx.Row and pgx.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanTrack(row rowScanner) (*domain.Track, error) {
	var t domain.Track
	err := row.Scan(&t.ID, &t.UserID, &t.Title, &t.Description, &t.Genre, &t.Tags,
		&t.ArtworkURL, &t.Privacy, &t.ScheduledAt, &t.ObjectKey, &t.TranscodedObjectKey,
		&t.ContentType, &t.Size, &t.DurationSeconds, &t.Status, &t.EnableDirectDownloads,
		&t.EnableOfflineListening, &t.AllowComments, &t.PlayCount, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
