package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/jonesrussell/north-cloud/dispatcher/internal/domain"
)

// JobRepository handles database operations for jobs.
type JobRepository struct {
	// q is the current execution target: the root handle or a transaction.
	q Querier
	// db is always the root handle; status and next-fire writes go through it
	// so they commit independently of any caller transaction.
	db *sqlx.DB
}

// NewJobRepository creates a new job repository.
func NewJobRepository(db *sqlx.DB) *JobRepository {
	return &JobRepository{q: db, db: db}
}

// WithTx returns a copy of the repository whose reads and writes run inside tx.
// Independent-transaction methods keep using the root handle.
func (r *JobRepository) WithTx(tx *Tx) *JobRepository {
	return &JobRepository{q: tx, db: r.db}
}

const jobColumns = `id, client_id, schedule_type, cron_expression, time_zone,
	       start_time, next_fire_time, status, created_at, updated_at`

// Create inserts a new job into the database.
func (r *JobRepository) Create(ctx context.Context, job *domain.Job) error {
	query := `
		INSERT INTO jobs (id, client_id, schedule_type, cron_expression, time_zone,
		                  start_time, next_fire_time, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at, updated_at
	`

	err := r.q.QueryRowContext(
		ctx,
		query,
		job.ID,
		job.ClientID,
		job.ScheduleType,
		job.CronExpression,
		job.TimeZone,
		job.StartTime,
		job.NextFireTime,
		job.Status,
	).Scan(&job.CreatedAt, &job.UpdatedAt)

	if err != nil {
		return fmt.Errorf("failed to create job: %w", err)
	}

	return nil
}

// GetByID retrieves a job by its ID.
func (r *JobRepository) GetByID(ctx context.Context, id string) (*domain.Job, error) {
	var job domain.Job
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE id = $1`

	err := r.q.GetContext(ctx, &job, query, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("job %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}

	return &job, nil
}

// List retrieves all jobs with optional status filtering.
func (r *JobRepository) List(ctx context.Context, status string, limit, offset int) ([]*domain.Job, error) {
	var jobs []*domain.Job
	var query string
	var args []any

	if status != "" {
		query = `SELECT ` + jobColumns + ` FROM jobs
			WHERE status = $1
			ORDER BY created_at DESC
			LIMIT $2 OFFSET $3`
		args = []any{status, limit, offset}
	} else {
		query = `SELECT ` + jobColumns + ` FROM jobs
			ORDER BY created_at DESC
			LIMIT $1 OFFSET $2`
		args = []any{limit, offset}
	}

	err := r.q.SelectContext(ctx, &jobs, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}

	if jobs == nil {
		jobs = []*domain.Job{}
	}

	return jobs, nil
}

// Update updates an existing job.
func (r *JobRepository) Update(ctx context.Context, job *domain.Job) error {
	query := `
		UPDATE jobs
		SET client_id = $1, schedule_type = $2, cron_expression = $3, time_zone = $4,
		    start_time = $5, next_fire_time = $6, status = $7, updated_at = now()
		WHERE id = $8
	`

	result, err := r.q.ExecContext(
		ctx,
		query,
		job.ClientID,
		job.ScheduleType,
		job.CronExpression,
		job.TimeZone,
		job.StartTime,
		job.NextFireTime,
		job.Status,
		job.ID,
	)

	if err != nil {
		return fmt.Errorf("failed to update job: %w", err)
	}

	return requireRowsAffected(result, job.ID)
}

// Delete removes a job from the database. The trigger row follows via the
// foreign-key cascade.
func (r *JobRepository) Delete(ctx context.Context, id string) error {
	result, err := r.q.ExecContext(ctx, `DELETE FROM jobs WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete job: %w", err)
	}

	return requireRowsAffected(result, id)
}

// UpdateNextFireTime records the next fire as wall clock in the job's zone.
// Runs on the root handle so it commits independently of any open transaction.
func (r *JobRepository) UpdateNextFireTime(ctx context.Context, id string, wall *time.Time) error {
	result, err := r.db.ExecContext(
		ctx,
		`UPDATE jobs SET next_fire_time = $1, updated_at = now() WHERE id = $2`,
		wall,
		id,
	)
	if err != nil {
		return fmt.Errorf("failed to update next fire time: %w", err)
	}

	return requireRowsAffected(result, id)
}

// UpdateStatus transitions the job's status. Runs on the root handle so the
// outcome of a fire or a failed scheduling attempt is durable even when the
// caller's transaction has already closed.
func (r *JobRepository) UpdateStatus(ctx context.Context, id string, status domain.JobStatus) error {
	result, err := r.db.ExecContext(
		ctx,
		`UPDATE jobs SET status = $1, updated_at = now() WHERE id = $2`,
		status,
		id,
	)
	if err != nil {
		return fmt.Errorf("failed to update job status: %w", err)
	}

	return requireRowsAffected(result, id)
}

// Count returns the total number of jobs, optionally filtered by status.
func (r *JobRepository) Count(ctx context.Context, status string) (int, error) {
	var count int
	var query string
	var args []any

	if status != "" {
		query = `SELECT COUNT(*) FROM jobs WHERE status = $1`
		args = []any{status}
	} else {
		query = `SELECT COUNT(*) FROM jobs`
		args = []any{}
	}

	err := r.q.GetContext(ctx, &count, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to count jobs: %w", err)
	}

	return count, nil
}

// requireRowsAffected maps zero-row updates to ErrNotFound.
func requireRowsAffected(result sql.Result, id string) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return fmt.Errorf("job %s: %w", id, ErrNotFound)
	}

	return nil
}
