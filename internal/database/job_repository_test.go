package database

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/north-cloud/dispatcher/internal/domain"
)

func jobRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "client_id", "schedule_type", "cron_expression", "time_zone",
		"start_time", "next_fire_time", "status", "created_at", "updated_at",
	})
}

func TestJobRepositoryCreate(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewJobRepository(db)

	now := time.Now().UTC()
	mock.ExpectQuery(`INSERT INTO jobs`).
		WithArgs("job-1", "client-1", "IMMEDIATE", nil, "UTC",
			sqlmock.AnyArg(), nil, "SCHEDULING").
		WillReturnRows(sqlmock.NewRows([]string{"created_at", "updated_at"}).
			AddRow(now, now))

	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	j := &domain.Job{
		ID:           "job-1",
		ClientID:     "client-1",
		ScheduleType: domain.ScheduleImmediate,
		TimeZone:     "UTC",
		StartTime:    &start,
		Status:       domain.StatusScheduling,
	}

	require.NoError(t, repo.Create(context.Background(), j))
	assert.Equal(t, now, j.CreatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestJobRepositoryGetByID(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewJobRepository(db)

	now := time.Now().UTC()
	mock.ExpectQuery(`SELECT .+ FROM jobs WHERE id = \$1`).
		WithArgs("job-1").
		WillReturnRows(jobRows().AddRow(
			"job-1", "client-1", "RECURRING", "0 0 9 * * ?", "America/New_York",
			nil, nil, "SCHEDULED", now, now))

	j, err := repo.GetByID(context.Background(), "job-1")
	require.NoError(t, err)
	assert.Equal(t, domain.ScheduleRecurring, j.ScheduleType)
	assert.Equal(t, "America/New_York", j.TimeZone)
	require.NotNil(t, j.CronExpression)
	assert.Equal(t, "0 0 9 * * ?", *j.CronExpression)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestJobRepositoryGetByIDNotFound(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewJobRepository(db)

	mock.ExpectQuery(`SELECT .+ FROM jobs WHERE id = \$1`).
		WithArgs("missing").
		WillReturnRows(jobRows())

	_, err := repo.GetByID(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestJobRepositoryListWithStatus(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewJobRepository(db)

	now := time.Now().UTC()
	mock.ExpectQuery(`SELECT .+ FROM jobs\s+WHERE status = \$1`).
		WithArgs("SCHEDULED", 10, 0).
		WillReturnRows(jobRows().AddRow(
			"job-1", "client-1", "ONE_TIME", nil, "UTC",
			now, now, "SCHEDULED", now, now))

	jobs, err := repo.List(context.Background(), "SCHEDULED", 10, 0)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, domain.StatusScheduled, jobs[0].Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestJobRepositoryListEmpty(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewJobRepository(db)

	mock.ExpectQuery(`SELECT .+ FROM jobs`).
		WithArgs(50, 0).
		WillReturnRows(jobRows())

	jobs, err := repo.List(context.Background(), "", 50, 0)
	require.NoError(t, err)
	assert.NotNil(t, jobs)
	assert.Empty(t, jobs)
}

func TestJobRepositoryUpdateStatus(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewJobRepository(db)

	mock.ExpectExec(`UPDATE jobs SET status = \$1, updated_at = now\(\) WHERE id = \$2`).
		WithArgs("RUNNING", "job-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.UpdateStatus(context.Background(), "job-1", domain.StatusRunning))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestJobRepositoryUpdateStatusNotFound(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewJobRepository(db)

	mock.ExpectExec(`UPDATE jobs SET status = `).
		WithArgs("RUNNING", "missing").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.UpdateStatus(context.Background(), "missing", domain.StatusRunning)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestJobRepositoryUpdateNextFireTimeClears(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewJobRepository(db)

	mock.ExpectExec(`UPDATE jobs SET next_fire_time = \$1, updated_at = now\(\) WHERE id = \$2`).
		WithArgs(nil, "job-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.UpdateNextFireTime(context.Background(), "job-1", nil))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestJobRepositoryDelete(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewJobRepository(db)

	mock.ExpectExec(`DELETE FROM jobs WHERE id = \$1`).
		WithArgs("job-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Delete(context.Background(), "job-1"))

	mock.ExpectExec(`DELETE FROM jobs WHERE id = \$1`).
		WithArgs("missing").
		WillReturnResult(sqlmock.NewResult(0, 0))

	assert.ErrorIs(t, repo.Delete(context.Background(), "missing"), ErrNotFound)
}

func TestJobRepositoryCount(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewJobRepository(db)

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM jobs WHERE status = \$1`).
		WithArgs("PAUSED").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))

	count, err := repo.Count(context.Background(), "PAUSED")
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}
