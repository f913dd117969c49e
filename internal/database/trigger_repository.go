package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/jonesrussell/north-cloud/dispatcher/internal/domain"
)

// TriggerRepository persists the firing-schedule side of jobs. The in-memory
// queue in the scheduler is a cache over these rows; every mutation lands here
// first so the schedule survives restarts.
type TriggerRepository struct {
	q  Querier
	db *sqlx.DB
}

// NewTriggerRepository creates a new trigger repository.
func NewTriggerRepository(db *sqlx.DB) *TriggerRepository {
	return &TriggerRepository{q: db, db: db}
}

// WithTx returns a copy of the repository bound to tx.
func (r *TriggerRepository) WithTx(tx *Tx) *TriggerRepository {
	return &TriggerRepository{q: tx, db: r.db}
}

// Upsert writes the trigger row for a job, replacing any previous schedule.
func (r *TriggerRepository) Upsert(ctx context.Context, trigger *domain.Trigger) error {
	query := `
		INSERT INTO triggers (job_id, next_fire_at, cron_expression, time_zone, paused)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (job_id) DO UPDATE
		SET next_fire_at = EXCLUDED.next_fire_at,
		    cron_expression = EXCLUDED.cron_expression,
		    time_zone = EXCLUDED.time_zone,
		    paused = EXCLUDED.paused
	`

	_, err := r.q.ExecContext(
		ctx,
		query,
		trigger.JobID,
		trigger.NextFireAt,
		trigger.CronExpression,
		trigger.TimeZone,
		trigger.Paused,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert trigger: %w", err)
	}

	return nil
}

// Get returns the trigger row for a job.
func (r *TriggerRepository) Get(ctx context.Context, jobID string) (*domain.Trigger, error) {
	var trigger domain.Trigger
	query := `
		SELECT job_id, next_fire_at, cron_expression, time_zone, paused
		FROM triggers
		WHERE job_id = $1
	`

	if err := r.q.GetContext(ctx, &trigger, query, jobID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("trigger for job %s: %w", jobID, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get trigger: %w", err)
	}

	return &trigger, nil
}

// Delete removes the trigger row for a job. Missing rows are not an error;
// one-shot triggers are already gone after their fire.
func (r *TriggerRepository) Delete(ctx context.Context, jobID string) error {
	if _, err := r.q.ExecContext(ctx, `DELETE FROM triggers WHERE job_id = $1`, jobID); err != nil {
		return fmt.Errorf("failed to delete trigger: %w", err)
	}
	return nil
}

// SetPaused flips the persisted paused flag.
func (r *TriggerRepository) SetPaused(ctx context.Context, jobID string, paused bool) error {
	result, err := r.q.ExecContext(
		ctx,
		`UPDATE triggers SET paused = $1 WHERE job_id = $2`,
		paused,
		jobID,
	)
	if err != nil {
		return fmt.Errorf("failed to set trigger paused: %w", err)
	}

	return requireRowsAffected(result, jobID)
}

// ListActive returns the triggers of all jobs that are not terminally
// completed, for rehydrating the in-memory queue on startup.
func (r *TriggerRepository) ListActive(ctx context.Context) ([]*domain.Trigger, error) {
	var triggers []*domain.Trigger
	query := `
		SELECT t.job_id, t.next_fire_at, t.cron_expression, t.time_zone, t.paused
		FROM triggers t
		JOIN jobs j ON j.id = t.job_id
		WHERE NOT (j.schedule_type IN ('IMMEDIATE', 'ONE_TIME')
		           AND j.status IN ('COMPLETED_SUCCESS', 'COMPLETED_FAILURE'))
		ORDER BY t.next_fire_at ASC
	`

	if err := r.q.SelectContext(ctx, &triggers, query); err != nil {
		return nil, fmt.Errorf("failed to list active triggers: %w", err)
	}

	if triggers == nil {
		triggers = []*domain.Trigger{}
	}

	return triggers, nil
}
