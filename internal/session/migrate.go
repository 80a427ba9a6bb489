package session

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// AutoMigrate creates the sessions table. The session document keeps its
// participants, queue and current track as embedded JSONB, so one row is one
// whole session and queue writes are single-row updates.
func AutoMigrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, `
      CREATE TABLE IF NOT EXISTS sessions (
          session_id    TEXT PRIMARY KEY,
          host_id       TEXT NOT NULL,
          created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
          expires_at    TIMESTAMPTZ NOT NULL,
          is_active     BOOLEAN NOT NULL DEFAULT TRUE,
          participants  JSONB NOT NULL DEFAULT '[]',
          queue         JSONB NOT NULL DEFAULT '[]',
          current_track JSONB
      )
    `); err != nil {
		return err
	}

	// The sweeper scans on expiry; without this index every sweep is a
	// sequential scan.
	if _, err := pool.Exec(ctx, `
      CREATE INDEX IF NOT EXISTS idx_sessions_expires_at
      ON sessions(expires_at)
    `); err != nil {
		return err
	}

	return nil
}
