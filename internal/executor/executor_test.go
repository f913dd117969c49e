package executor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/north-cloud/dispatcher/internal/database"
	"github.com/jonesrussell/north-cloud/dispatcher/internal/domain"
	"github.com/jonesrussell/north-cloud/dispatcher/internal/logger"
	"github.com/jonesrussell/north-cloud/dispatcher/internal/scheduler"
)

type fakeJobStore struct {
	mu       sync.Mutex
	job      *domain.Job
	statuses []domain.JobStatus
	nextFire []*time.Time
}

func (s *fakeJobStore) GetByID(_ context.Context, id string) (*domain.Job, error) {
	if s.job == nil || s.job.ID != id {
		return nil, fmt.Errorf("job %s: %w", id, database.ErrNotFound)
	}
	cp := *s.job
	return &cp, nil
}

func (s *fakeJobStore) UpdateStatus(_ context.Context, _ string, status domain.JobStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statuses = append(s.statuses, status)
	return nil
}

func (s *fakeJobStore) UpdateNextFireTime(_ context.Context, _ string, wall *time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextFire = append(s.nextFire, wall)
	return nil
}

type fakeUserStore struct {
	users []*domain.User
	err   error
}

func (s *fakeUserStore) FindByClientID(_ context.Context, _ string) ([]*domain.User, error) {
	return s.users, s.err
}

type fakeTriggerReader struct {
	trigger *domain.Trigger
	err     error
}

func (r *fakeTriggerReader) Get(_ context.Context, _ string) (*domain.Trigger, error) {
	return r.trigger, r.err
}

type fakePublisher struct {
	mu        sync.Mutex
	published []string
	failFor   map[string]error
}

func (p *fakePublisher) PublishUser(ctx context.Context, user *domain.User) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if err, ok := p.failFor[user.ID]; ok {
		return err
	}
	p.published = append(p.published, user.ID)
	return nil
}

func oneTimeJob() *domain.Job {
	return &domain.Job{
		ID:           "job-1",
		ClientID:     "client-1",
		ScheduleType: domain.ScheduleOneTime,
		TimeZone:     "UTC",
		Status:       domain.StatusScheduled,
	}
}

func someUsers(n int) []*domain.User {
	users := make([]*domain.User, 0, n)
	for i := 0; i < n; i++ {
		users = append(users, &domain.User{
			ID:       fmt.Sprintf("user-%d", i),
			ClientID: "client-1",
		})
	}
	return users
}

func fireFor(j *domain.Job) scheduler.Fire {
	return scheduler.Fire{JobID: j.ID, Due: time.Now().UTC()}
}

func TestExecuteSuccessOneShot(t *testing.T) {
	jobs := &fakeJobStore{job: oneTimeJob()}
	bus := &fakePublisher{}
	exec := New(jobs, &fakeUserStore{users: someUsers(5)}, &fakeTriggerReader{}, bus, logger.NewNoOp())

	err := exec.Execute(context.Background(), fireFor(jobs.job))
	require.NoError(t, err)

	assert.Len(t, bus.published, 5)
	assert.Equal(t, []domain.JobStatus{
		domain.StatusRunning,
		domain.StatusCompletedSuccess,
	}, jobs.statuses)
	// One-shot jobs clear their next fire time.
	require.Len(t, jobs.nextFire, 1)
	assert.Nil(t, jobs.nextFire[0])
}

func TestExecuteEmptyUserSetSucceeds(t *testing.T) {
	jobs := &fakeJobStore{job: oneTimeJob()}
	exec := New(jobs, &fakeUserStore{}, &fakeTriggerReader{}, &fakePublisher{}, logger.NewNoOp())

	err := exec.Execute(context.Background(), fireFor(jobs.job))
	require.NoError(t, err)
	assert.Contains(t, jobs.statuses, domain.StatusCompletedSuccess)
}

func TestExecuteAllOrFail(t *testing.T) {
	jobs := &fakeJobStore{job: oneTimeJob()}
	pubErr := errors.New("broker unreachable")
	bus := &fakePublisher{failFor: map[string]error{"user-2": pubErr}}
	exec := New(jobs, &fakeUserStore{users: someUsers(5)}, &fakeTriggerReader{}, bus, logger.NewNoOp())

	err := exec.Execute(context.Background(), fireFor(jobs.job))
	require.Error(t, err)
	assert.ErrorIs(t, err, pubErr)

	assert.Equal(t, []domain.JobStatus{
		domain.StatusRunning,
		domain.StatusCompletedFailure,
	}, jobs.statuses)
}

func TestExecuteUserFetchErrorIsFailure(t *testing.T) {
	jobs := &fakeJobStore{job: oneTimeJob()}
	fetchErr := errors.New("connection reset")
	exec := New(jobs, &fakeUserStore{err: fetchErr}, &fakeTriggerReader{}, &fakePublisher{}, logger.NewNoOp())

	err := exec.Execute(context.Background(), fireFor(jobs.job))
	require.Error(t, err)
	assert.Contains(t, jobs.statuses, domain.StatusCompletedFailure)
}

func TestExecuteRecurringReturnsToScheduled(t *testing.T) {
	expr := "0 0 9 * * ?"
	j := oneTimeJob()
	j.ScheduleType = domain.ScheduleRecurring
	j.CronExpression = &expr

	next := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	jobs := &fakeJobStore{job: j}
	triggers := &fakeTriggerReader{trigger: &domain.Trigger{
		JobID:          j.ID,
		NextFireAt:     next,
		CronExpression: &expr,
		TimeZone:       "UTC",
	}}
	exec := New(jobs, &fakeUserStore{users: someUsers(2)}, triggers, &fakePublisher{}, logger.NewNoOp())

	err := exec.Execute(context.Background(), fireFor(j))
	require.NoError(t, err)

	// RUNNING -> COMPLETED_SUCCESS -> SCHEDULED, with the next wall-clock
	// fire written back.
	assert.Equal(t, []domain.JobStatus{
		domain.StatusRunning,
		domain.StatusCompletedSuccess,
		domain.StatusScheduled,
	}, jobs.statuses)
	require.Len(t, jobs.nextFire, 1)
	require.NotNil(t, jobs.nextFire[0])
	assert.Equal(t, next, *jobs.nextFire[0])
}

func TestExecuteRecurringFailureStillReschedules(t *testing.T) {
	expr := "0 0 9 * * ?"
	j := oneTimeJob()
	j.ScheduleType = domain.ScheduleRecurring
	j.CronExpression = &expr

	jobs := &fakeJobStore{job: j}
	triggers := &fakeTriggerReader{trigger: &domain.Trigger{
		JobID:      j.ID,
		NextFireAt: time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC),
		TimeZone:   "UTC",
	}}
	bus := &fakePublisher{failFor: map[string]error{"user-0": errors.New("nope")}}
	exec := New(jobs, &fakeUserStore{users: someUsers(1)}, triggers, bus, logger.NewNoOp())

	err := exec.Execute(context.Background(), fireFor(j))
	require.Error(t, err)

	assert.Equal(t, []domain.JobStatus{
		domain.StatusRunning,
		domain.StatusCompletedFailure,
		domain.StatusScheduled,
	}, jobs.statuses)
}

func TestExecuteMissingJobIsDropped(t *testing.T) {
	jobs := &fakeJobStore{}
	exec := New(jobs, &fakeUserStore{}, &fakeTriggerReader{}, &fakePublisher{}, logger.NewNoOp())

	err := exec.Execute(context.Background(), scheduler.Fire{JobID: "gone", Due: time.Now()})
	require.NoError(t, err)
	assert.Empty(t, jobs.statuses)
}

func TestExecuteRecurringTriggerGoneClearsNextFire(t *testing.T) {
	expr := "0 0 9 * * ?"
	j := oneTimeJob()
	j.ScheduleType = domain.ScheduleRecurring
	j.CronExpression = &expr

	jobs := &fakeJobStore{job: j}
	triggers := &fakeTriggerReader{err: fmt.Errorf("trigger: %w", database.ErrNotFound)}
	exec := New(jobs, &fakeUserStore{users: someUsers(1)}, triggers, &fakePublisher{}, logger.NewNoOp())

	err := exec.Execute(context.Background(), fireFor(j))
	require.NoError(t, err)

	require.Len(t, jobs.nextFire, 1)
	assert.Nil(t, jobs.nextFire[0])
}
