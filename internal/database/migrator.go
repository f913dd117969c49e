package database

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// schemaStatements holds the DDL applied at startup. All statements are
// idempotent so the migrator can run on every boot.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS jobs (
		id UUID PRIMARY KEY,
		client_id TEXT NOT NULL,
		schedule_type TEXT NOT NULL,
		cron_expression TEXT,
		time_zone TEXT NOT NULL DEFAULT 'UTC',
		start_time TIMESTAMP,
		next_fire_time TIMESTAMP,
		status TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_jobs_client_id ON jobs (client_id)`,
	`CREATE INDEX IF NOT EXISTS idx_jobs_status ON jobs (status)`,
	`CREATE TABLE IF NOT EXISTS triggers (
		job_id UUID PRIMARY KEY REFERENCES jobs (id) ON DELETE CASCADE,
		next_fire_at TIMESTAMPTZ NOT NULL,
		cron_expression TEXT,
		time_zone TEXT NOT NULL,
		paused BOOLEAN NOT NULL DEFAULT FALSE
	)`,
	`CREATE TABLE IF NOT EXISTS users (
		id UUID PRIMARY KEY,
		client_id TEXT NOT NULL,
		name TEXT NOT NULL,
		email TEXT,
		address TEXT,
		phone TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_users_client_id ON users (client_id)`,
}

// EnsureSchema creates the tables and indexes the service needs.
func EnsureSchema(ctx context.Context, db *sqlx.DB) error {
	for _, stmt := range schemaStatements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema statement: %w", err)
		}
	}
	return nil
}
