// Package executor carries out job fires: it marks the job running, streams
// the client's user records to the bus, and records the outcome.
package executor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jonesrussell/north-cloud/dispatcher/internal/database"
	"github.com/jonesrussell/north-cloud/dispatcher/internal/domain"
	"github.com/jonesrussell/north-cloud/dispatcher/internal/kafka"
	"github.com/jonesrussell/north-cloud/dispatcher/internal/logger"
	"github.com/jonesrussell/north-cloud/dispatcher/internal/scheduler"
)

// publishConcurrency bounds how many records publish in parallel per fire.
const publishConcurrency = 8

// JobStore is the slice of the job repository the executor needs. Status and
// next-fire writes happen outside any surrounding transaction so progress is
// visible immediately.
type JobStore interface {
	GetByID(ctx context.Context, id string) (*domain.Job, error)
	UpdateStatus(ctx context.Context, id string, status domain.JobStatus) error
	UpdateNextFireTime(ctx context.Context, id string, wall *time.Time) error
}

// UserStore reads the tenant records a fire publishes.
type UserStore interface {
	FindByClientID(ctx context.Context, clientID string) ([]*domain.User, error)
}

// TriggerReader exposes the re-armed trigger so the executor can write the
// next fire time back to the job row.
type TriggerReader interface {
	Get(ctx context.Context, jobID string) (*domain.Trigger, error)
}

// Executor implements worker.Handler. One Execute call is one fire.
type Executor struct {
	jobs     JobStore
	users    UserStore
	triggers TriggerReader
	bus      kafka.Publisher
	logger   logger.Interface
}

// New creates an executor.
func New(
	jobs JobStore,
	users UserStore,
	triggers TriggerReader,
	bus kafka.Publisher,
	log logger.Interface,
) *Executor {
	return &Executor{
		jobs:     jobs,
		users:    users,
		triggers: triggers,
		bus:      bus,
		logger:   log.WithComponent("executor"),
	}
}

// Execute runs one fire: RUNNING, fetch, publish all records, then the
// outcome status. A fire succeeds only if every record published; the first
// failure cancels the rest. Recurring jobs return to SCHEDULED with their
// next fire time; one-shot jobs keep the completed status as terminal.
func (e *Executor) Execute(ctx context.Context, fire scheduler.Fire) error {
	job, err := e.jobs.GetByID(ctx, fire.JobID)
	if err != nil {
		if database.IsNotFound(err) {
			// Deleted between dispatch and execution.
			e.logger.Info("Fire for deleted job dropped", "job_id", fire.JobID)
			return nil
		}
		return fmt.Errorf("failed to load job %s: %w", fire.JobID, err)
	}

	if err := e.jobs.UpdateStatus(ctx, job.ID, domain.StatusRunning); err != nil {
		return fmt.Errorf("failed to mark job %s running: %w", job.ID, err)
	}

	e.logger.Info("Fire started",
		"job_id", job.ID,
		"client_id", job.ClientID,
		"schedule_type", job.ScheduleType)

	published, execErr := e.publishUsers(ctx, job)

	outcome := domain.StatusCompletedSuccess
	if execErr != nil {
		outcome = domain.StatusCompletedFailure
		e.logger.Error("Fire failed",
			"job_id", job.ID,
			"client_id", job.ClientID,
			"published", published,
			"error", execErr)
	} else {
		e.logger.Info("Fire completed",
			"job_id", job.ID,
			"client_id", job.ClientID,
			"published", published)
	}

	if err := e.finish(ctx, job, outcome); err != nil {
		return err
	}
	return execErr
}

// publishUsers fetches the client's records and publishes them with bounded
// concurrency. Returns how many records made it to the bus.
func (e *Executor) publishUsers(ctx context.Context, job *domain.Job) (int, error) {
	users, err := e.users.FindByClientID(ctx, job.ClientID)
	if err != nil {
		return 0, fmt.Errorf("failed to fetch users for client %s: %w", job.ClientID, err)
	}
	if len(users) == 0 {
		e.logger.Warn("No user records for client",
			"job_id", job.ID,
			"client_id", job.ClientID)
		return 0, nil
	}

	pubCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		firstErr  error
		published int
	)
	sem := make(chan struct{}, publishConcurrency)

	for _, user := range users {
		select {
		case <-pubCtx.Done():
		case sem <- struct{}{}:
			wg.Add(1)
			go func(u *domain.User) {
				defer func() {
					<-sem
					wg.Done()
				}()

				if pubErr := e.bus.PublishUser(pubCtx, u); pubErr != nil {
					mu.Lock()
					if firstErr == nil {
						firstErr = pubErr
						cancel()
					}
					mu.Unlock()
					return
				}

				mu.Lock()
				published++
				mu.Unlock()
			}(user)
		}
		if pubCtx.Err() != nil {
			break
		}
	}

	wg.Wait()

	if firstErr != nil {
		return published, firstErr
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return published, ctxErr
	}
	return published, nil
}

// finish records the fire's outcome. Status writes run even when the fire's
// context is already cancelled, so outcomes never go missing on shutdown.
func (e *Executor) finish(ctx context.Context, job *domain.Job, outcome domain.JobStatus) error {
	writeCtx := ctx
	if ctx.Err() != nil {
		var cancel context.CancelFunc
		writeCtx, cancel = context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
	}

	if err := e.jobs.UpdateStatus(writeCtx, job.ID, outcome); err != nil {
		return fmt.Errorf("failed to record outcome for job %s: %w", job.ID, err)
	}

	if job.ScheduleType != domain.ScheduleRecurring {
		if err := e.jobs.UpdateNextFireTime(writeCtx, job.ID, nil); err != nil {
			return fmt.Errorf("failed to clear next fire time for job %s: %w", job.ID, err)
		}
		return nil
	}

	// Recurring jobs go back to waiting for the trigger the engine re-armed.
	trigger, err := e.triggers.Get(writeCtx, job.ID)
	if err != nil {
		if database.IsNotFound(err) {
			// Expression exhausted or job deregistered mid-fire.
			return e.jobs.UpdateNextFireTime(writeCtx, job.ID, nil)
		}
		return fmt.Errorf("failed to read trigger for job %s: %w", job.ID, err)
	}

	wall, err := scheduler.NextWall(trigger)
	if err != nil {
		return fmt.Errorf("failed to convert next fire for job %s: %w", job.ID, err)
	}
	if err := e.jobs.UpdateNextFireTime(writeCtx, job.ID, wall); err != nil {
		return fmt.Errorf("failed to update next fire time for job %s: %w", job.ID, err)
	}
	return e.jobs.UpdateStatus(writeCtx, job.ID, domain.StatusScheduled)
}
