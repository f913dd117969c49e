// Package job is the lifecycle service over jobs: create, read, delete,
// pause and resume, with scheduling handed to the trigger engine only after
// the creating transaction commits.
package job

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/jonesrussell/north-cloud/dispatcher/internal/clock"
	"github.com/jonesrussell/north-cloud/dispatcher/internal/database"
	"github.com/jonesrussell/north-cloud/dispatcher/internal/domain"
	"github.com/jonesrussell/north-cloud/dispatcher/internal/logger"
	"github.com/jonesrussell/north-cloud/dispatcher/internal/scheduler"
)

// activationTimeout bounds the post-commit registration work, which runs
// detached from the request context.
const activationTimeout = 10 * time.Second

// Registrar is the scheduling side the service drives. The engine implements
// it.
type Registrar interface {
	Register(ctx context.Context, trigger *domain.Trigger) error
	Deregister(ctx context.Context, jobID string) error
	Pause(ctx context.Context, jobID string) error
	Resume(ctx context.Context, jobID string) (*domain.Trigger, error)
}

// FireCanceller aborts a job's in-flight fire. The worker pool implements it.
type FireCanceller interface {
	Cancel(jobID string) bool
}

// Service implements job lifecycle operations.
type Service struct {
	db       *sqlx.DB
	jobs     *database.JobRepository
	engine   Registrar
	fires    FireCanceller
	clock    clock.Clock
	logger   logger.Interface
	// defaultZone applies when a request omits time_zone.
	defaultZone string
}

// NewService creates the job service.
func NewService(
	db *sqlx.DB,
	jobs *database.JobRepository,
	engine Registrar,
	fires FireCanceller,
	clk clock.Clock,
	defaultZone string,
	log logger.Interface,
) *Service {
	return &Service{
		db:          db,
		jobs:        jobs,
		engine:      engine,
		fires:       fires,
		clock:       clk,
		logger:      log.WithComponent("job"),
		defaultZone: defaultZone,
	}
}

// Create validates the request, persists the job with status SCHEDULING, and
// arms its trigger once the transaction commits. The returned job reflects
// the state after activation: SCHEDULED with its next fire time set, or
// COMPLETED_FAILURE when registration failed.
func (s *Service) Create(ctx context.Context, req *CreateRequest) (*domain.Job, error) {
	p, err := s.resolve(req)
	if err != nil {
		return nil, err
	}

	p.job.ID = uuid.NewString()
	p.trigger.JobID = p.job.ID

	err = database.InTx(ctx, s.db, func(tx *database.Tx) error {
		if createErr := s.jobs.WithTx(tx).Create(ctx, p.job); createErr != nil {
			return createErr
		}
		tx.AfterCommit(func() {
			s.activate(p.job.ID, p.trigger)
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Job created",
		"job_id", p.job.ID,
		"client_id", p.job.ClientID,
		"schedule_type", p.job.ScheduleType,
		"time_zone", p.job.TimeZone)

	// Activation ran in the post-commit hook; re-read so the response
	// carries the promoted status and next fire time.
	created, err := s.jobs.GetByID(ctx, p.job.ID)
	if err != nil {
		s.logger.Warn("Failed to re-read job after activation",
			"job_id", p.job.ID,
			"error", err)
		return p.job, nil
	}
	return created, nil
}

// activate registers the trigger and promotes the job to SCHEDULED. Runs in
// the post-commit hook; failures are absorbed into the job's status, never
// surfaced as an error to the creating request.
func (s *Service) activate(jobID string, trigger *domain.Trigger) {
	ctx, cancel := context.WithTimeout(context.Background(), activationTimeout)
	defer cancel()

	j, err := s.jobs.GetByID(ctx, jobID)
	if err != nil {
		s.logger.Warn("Job gone before activation",
			"job_id", jobID,
			"error", err)
		return
	}
	if err := scheduler.ValidateStateTransition(j.Status, domain.StatusScheduled); err != nil {
		s.logger.Warn("Job not in an activatable state",
			"job_id", jobID,
			"status", j.Status)
		return
	}

	if err := s.engine.Register(ctx, trigger); err != nil {
		s.logger.Error("Failed to register trigger, job marked failed",
			"job_id", jobID,
			"error", err)
		if statusErr := s.jobs.UpdateStatus(ctx, jobID, domain.StatusCompletedFailure); statusErr != nil {
			s.logger.Error("Failed to record scheduling failure",
				"job_id", jobID,
				"error", statusErr)
		}
		return
	}

	wall, err := scheduler.NextWall(trigger)
	if err == nil {
		err = s.jobs.UpdateNextFireTime(ctx, jobID, wall)
	}
	if err == nil {
		err = s.jobs.UpdateStatus(ctx, jobID, domain.StatusScheduled)
	}
	if err != nil {
		s.logger.Error("Failed to promote job to scheduled",
			"job_id", jobID,
			"error", err)
	}
}

// Get returns a job by ID.
func (s *Service) Get(ctx context.Context, id string) (*domain.Job, error) {
	return s.jobs.GetByID(ctx, id)
}

// List returns jobs, optionally filtered by status.
func (s *Service) List(ctx context.Context, status string, limit, offset int) ([]*domain.Job, error) {
	return s.jobs.List(ctx, status, limit, offset)
}

// Count returns the number of jobs, optionally filtered by status.
func (s *Service) Count(ctx context.Context, status string) (int, error) {
	return s.jobs.Count(ctx, status)
}

// Delete removes a job. The trigger is deregistered first and any in-flight
// fire is cancelled; deleting an unknown job is a no-op.
func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.engine.Deregister(ctx, id); err != nil {
		s.logger.Warn("Failed to deregister trigger during delete",
			"job_id", id,
			"error", err)
	}

	if s.fires != nil {
		s.fires.Cancel(id)
	}

	if err := s.jobs.Delete(ctx, id); err != nil {
		if database.IsNotFound(err) {
			return nil
		}
		return err
	}

	s.logger.Info("Job deleted", "job_id", id)
	return nil
}

// Pause suspends a scheduled job. Pausing an already paused job is a no-op;
// any other state is rejected.
func (s *Service) Pause(ctx context.Context, id string) error {
	j, err := s.jobs.GetByID(ctx, id)
	if err != nil {
		return err
	}

	if j.Status == domain.StatusPaused {
		return nil
	}
	if !scheduler.CanPause(j) {
		return errInvalidTransitionFor(j, domain.StatusPaused)
	}

	if err := s.engine.Pause(ctx, id); err != nil {
		return err
	}
	if err := s.jobs.UpdateStatus(ctx, id, domain.StatusPaused); err != nil {
		return err
	}

	s.logger.Info("Job paused", "job_id", id)
	return nil
}

// Resume re-arms a paused job. Occurrences missed while paused are dropped;
// a recurring job picks up at its next occurrence from now.
func (s *Service) Resume(ctx context.Context, id string) error {
	j, err := s.jobs.GetByID(ctx, id)
	if err != nil {
		return err
	}

	if j.Status == domain.StatusScheduled {
		return nil
	}
	if !scheduler.CanResume(j) {
		return errInvalidTransitionFor(j, domain.StatusScheduled)
	}

	trigger, err := s.engine.Resume(ctx, id)
	if err != nil {
		return err
	}

	wall, err := scheduler.NextWall(trigger)
	if err != nil {
		return err
	}
	if err := s.jobs.UpdateNextFireTime(ctx, id, wall); err != nil {
		return err
	}
	if err := s.jobs.UpdateStatus(ctx, id, domain.StatusScheduled); err != nil {
		return err
	}

	s.logger.Info("Job resumed", "job_id", id, "next_fire_time", wall)
	return nil
}
