package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/trackwave/trackwave/internal/apperr"
)

// QuotaLedger tracks cumulative uploaded seconds per user in a counter row.
// The guarded increment makes the quota check race-free: two concurrent
// uploads cannot both slip under a finite limit.
type QuotaLedger struct {
	pool *pgxpool.Pool
}

// NewQuotaLedger constructs a ledger.
func NewQuotaLedger(pool *pgxpool.Pool) *QuotaLedger {
	return &QuotaLedger{pool: pool}
}

// Reserve atomically adds seconds to the user's usage if the result stays
// within limit. Returns false when the reservation would exceed the limit.
// A limit of zero or less means unlimited and always succeeds.
func (l *QuotaLedger) Reserve(ctx context.Context, userID string, seconds, limit int64) (bool, error) {
	if err := l.seed(ctx, userID); err != nil {
		return false, err
	}
	if limit <= 0 {
		_, err := l.pool.Exec(ctx, `
			UPDATE user_upload_usage SET used_seconds = used_seconds + $1, updated_at = $2
			WHERE user_id = $3
		`, seconds, time.Now().UTC(), userID)
		if err != nil {
			return false, &apperr.PersistenceError{Op: "reserve quota", Err: err}
		}
		return true, nil
	}
	tag, err := l.pool.Exec(ctx, `
		UPDATE user_upload_usage SET used_seconds = used_seconds + $1, updated_at = $2
		WHERE user_id = $3 AND used_seconds + $1 <= $4
	`, seconds, time.Now().UTC(), userID, limit)
	if err != nil {
		return false, &apperr.PersistenceError{Op: "reserve quota", Err: err}
	}
	return tag.RowsAffected() > 0, nil
}

// Release returns previously reserved seconds, for uploads that fail after
// the quota check or for deleted tracks. The counter never goes negative.
func (l *QuotaLedger) Release(ctx context.Context, userID string, seconds int64) error {
	_, err := l.pool.Exec(ctx, `
		UPDATE user_upload_usage SET used_seconds = GREATEST(used_seconds - $1, 0), updated_at = $2
		WHERE user_id = $3
	`, seconds, time.Now().UTC(), userID)
	if err != nil {
		return &apperr.PersistenceError{Op: "release quota", Err: err}
	}
	return nil
}

// seed creates the counter row on first use, initialized from the durations
// already stored for the user so the ledger agrees with pre-existing tracks.
func (l *QuotaLedger) seed(ctx context.Context, userID string) error {
	_, err := l.pool.Exec(ctx, `
		INSERT INTO user_upload_usage (user_id, used_seconds, updated_at)
		SELECT $1, COALESCE(SUM(duration_seconds), 0), $2 FROM tracks WHERE user_id = $1
		ON CONFLICT (user_id) DO NOTHING
	`, userID, time.Now().UTC())
	if err != nil {
		return &apperr.PersistenceError{Op: "seed quota", Err: err}
	}
	return nil
}
