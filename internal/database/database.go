// Package database owns the pgx connection pool and the schema bootstrap.
package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Connect opens a pgx connection pool using the provided DSN.
func Connect(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	cfg.MaxConns = 8
	cfg.MaxConnIdleTime = 5 * time.Minute
	return pgxpool.NewWithConfig(ctx, cfg)
}

// EnsureSchema creates the tables the service needs. Having the migration in
// code keeps the stack self-contained so docker-compose can bootstrap
// everything.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	const stmt = `
CREATE TABLE IF NOT EXISTS users (
	id TEXT PRIMARY KEY,
	email TEXT NOT NULL UNIQUE,
	display_name TEXT NOT NULL DEFAULT '',
	subscription_plan TEXT NOT NULL DEFAULT 'free',
	subscription_expires_at TIMESTAMPTZ,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS tracks (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL REFERENCES users(id),
	title TEXT NOT NULL,
	description TEXT,
	genre TEXT,
	tags TEXT,
	artwork_url TEXT,
	privacy TEXT NOT NULL DEFAULT 'public',
	scheduled_at TIMESTAMPTZ,
	object_key TEXT NOT NULL,
	transcoded_object_key TEXT,
	content_type TEXT NOT NULL,
	size BIGINT NOT NULL,
	duration_seconds BIGINT,
	status TEXT NOT NULL,
	enable_direct_downloads BOOLEAN NOT NULL DEFAULT FALSE,
	enable_offline_listening BOOLEAN NOT NULL DEFAULT TRUE,
	allow_comments BOOLEAN NOT NULL DEFAULT TRUE,
	play_count BIGINT NOT NULL DEFAULT 0,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_tracks_user ON tracks(user_id);
CREATE INDEX IF NOT EXISTS idx_tracks_status ON tracks(status);
CREATE INDEX IF NOT EXISTS idx_tracks_scheduled ON tracks(privacy, scheduled_at);
CREATE TABLE IF NOT EXISTS user_upload_usage (
	user_id TEXT PRIMARY KEY REFERENCES users(id),
	used_seconds BIGINT NOT NULL DEFAULT 0,
	updated_at TIMESTAMPTZ NOT NULL
);`
	if _, err := pool.Exec(ctx, stmt); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}
