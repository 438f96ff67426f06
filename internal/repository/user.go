package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/trackwave/trackwave/internal/apperr"
	"github.com/trackwave/trackwave/internal/domain"
)

// UserRepository reads the user snapshots the upload pipeline consults for
// plan resolution. Writes happen in the account service, not here.
type UserRepository struct {
	pool *pgxpool.Pool
}

// NewUserRepository constructs a repository.
func NewUserRepository(pool *pgxpool.Pool) *UserRepository {
	return &UserRepository{pool: pool}
}

// FindByID returns a user by id.
func (r *UserRepository) FindByID(ctx context.Context, id string) (*domain.User, error) {
	var u domain.User
	row := r.pool.QueryRow(ctx, `
		SELECT id, email, display_name, subscription_plan, subscription_expires_at, created_at, updated_at
		FROM users WHERE id=$1
	`, id)
	err := row.Scan(&u.ID, &u.Email, &u.DisplayName, &u.SubscriptionPlan,
		&u.SubscriptionExpiresAt, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &apperr.NotFoundError{Entity: "user", ID: id}
		}
		return nil, &apperr.PersistenceError{Op: "select user", Err: err}
	}
	return &u, nil
}
