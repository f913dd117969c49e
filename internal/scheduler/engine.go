// Package scheduler keeps the in-memory firing schedule and dispatches due
// jobs to the worker pool. The queue mirrors the durable trigger rows; every
// schedule change is persisted before it becomes visible in memory, so a
// restart reconstructs the same schedule via Restore.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/jonesrussell/north-cloud/dispatcher/internal/clock"
	"github.com/jonesrussell/north-cloud/dispatcher/internal/cronexpr"
	"github.com/jonesrussell/north-cloud/dispatcher/internal/domain"
	"github.com/jonesrussell/north-cloud/dispatcher/internal/logger"
)

const (
	// dispatchSlop treats triggers due within this window as due now, so the
	// dispatcher doesn't spin on sub-millisecond timer wakeups.
	dispatchSlop = 5 * time.Millisecond
	// queueRetryInterval is how long a due trigger waits when the fire
	// channel is full before the dispatcher tries again.
	queueRetryInterval = 100 * time.Millisecond
	// lateFireThreshold is how far past due a fire must be before it is
	// logged as late.
	lateFireThreshold = 1 * time.Second
	// idleWait caps the dispatcher's sleep so a drifting timer can't park it
	// forever when the queue is empty.
	idleWait = 1 * time.Minute

	// DefaultQueueCapacity bounds the fire channel when config gives none.
	DefaultQueueCapacity = 25
)

// Fire is one dispatch handed to the worker pool.
type Fire struct {
	JobID string
	// Due is the instant the trigger was scheduled for, not when it was
	// dispatched.
	Due time.Time
}

// TriggerStore is the durable side of the schedule.
type TriggerStore interface {
	Upsert(ctx context.Context, trigger *domain.Trigger) error
	Get(ctx context.Context, jobID string) (*domain.Trigger, error)
	Delete(ctx context.Context, jobID string) error
	SetPaused(ctx context.Context, jobID string, paused bool) error
	ListActive(ctx context.Context) ([]*domain.Trigger, error)
}

// Engine owns the trigger queue and the dispatch loop. A single goroutine
// pops due triggers and pushes fires onto a bounded channel; the worker pool
// drains it. At most one fire per job is in flight at a time.
type Engine struct {
	store  TriggerStore
	clock  clock.Clock
	logger logger.Interface

	mu       sync.Mutex
	queue    *triggerQueue
	inflight map[string]bool
	// pending holds recurring triggers whose due fire was skipped because the
	// previous fire is still running; they re-arm when FireDone comes in.
	pending map[string]*domain.Trigger

	fires chan Fire
	wake  chan struct{}

	cancel context.CancelFunc
	done   chan struct{}
}

// NewEngine creates an engine dispatching onto a channel of the given
// capacity.
func NewEngine(store TriggerStore, clk clock.Clock, queueCapacity int, log logger.Interface) *Engine {
	if queueCapacity <= 0 {
		queueCapacity = DefaultQueueCapacity
	}

	return &Engine{
		store:    store,
		clock:    clk,
		logger:   log.WithComponent("scheduler"),
		queue:    newTriggerQueue(),
		inflight: make(map[string]bool),
		pending:  make(map[string]*domain.Trigger),
		fires:    make(chan Fire, queueCapacity),
		wake:     make(chan struct{}, 1),
	}
}

// Fires returns the channel the worker pool consumes.
func (e *Engine) Fires() <-chan Fire {
	return e.fires
}

// Start launches the dispatch loop.
func (e *Engine) Start(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	e.done = make(chan struct{})
	go e.run(runCtx)
	e.logger.Info("Scheduler engine started", "queue_capacity", cap(e.fires))
}

// Stop halts the dispatch loop and closes the fire channel. Pending fires
// already on the channel remain for the worker pool to drain.
func (e *Engine) Stop() {
	if e.cancel == nil {
		return
	}
	e.cancel()
	<-e.done
	close(e.fires)
	e.logger.Info("Scheduler engine stopped")
}

// Register persists a trigger and arms it in the queue. Called after the
// job's creating transaction commits, and whenever a recurring job re-arms.
func (e *Engine) Register(ctx context.Context, trigger *domain.Trigger) error {
	if err := e.store.Upsert(ctx, trigger); err != nil {
		return err
	}

	e.mu.Lock()
	e.queue.push(trigger)
	e.mu.Unlock()
	e.poke()

	e.logger.Debug("Trigger registered",
		"job_id", trigger.JobID,
		"next_fire_at", trigger.NextFireAt)
	return nil
}

// Deregister drops a job's trigger from the queue and the store. A fire
// already in flight runs to completion.
func (e *Engine) Deregister(ctx context.Context, jobID string) error {
	e.mu.Lock()
	e.queue.remove(jobID)
	delete(e.pending, jobID)
	e.mu.Unlock()

	return e.store.Delete(ctx, jobID)
}

// Pause suspends a job's trigger. The row stays in the store with the paused
// flag set so the suspension survives restarts.
func (e *Engine) Pause(ctx context.Context, jobID string) error {
	if err := e.store.SetPaused(ctx, jobID, true); err != nil {
		return err
	}

	e.mu.Lock()
	e.queue.remove(jobID)
	delete(e.pending, jobID)
	e.mu.Unlock()

	e.logger.Info("Trigger paused", "job_id", jobID)
	return nil
}

// Resume re-arms a paused trigger. Recurring triggers recompute their next
// fire from now; a one-shot trigger keeps its stored instant and fires
// immediately if that instant has passed.
func (e *Engine) Resume(ctx context.Context, jobID string) (*domain.Trigger, error) {
	trigger, err := e.store.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}

	if trigger.CronExpression != nil {
		loc, zoneErr := clock.LoadZone(trigger.TimeZone)
		if zoneErr != nil {
			return nil, zoneErr
		}
		next, nextErr := cronexpr.NextAfter(e.clock.Now(), *trigger.CronExpression, loc)
		if nextErr != nil {
			return nil, nextErr
		}
		trigger.NextFireAt = next
	}
	trigger.Paused = false

	if err := e.store.Upsert(ctx, trigger); err != nil {
		return nil, err
	}

	e.mu.Lock()
	e.queue.push(trigger)
	e.mu.Unlock()
	e.poke()

	e.logger.Info("Trigger resumed",
		"job_id", jobID,
		"next_fire_at", trigger.NextFireAt)
	return trigger, nil
}

// Restore rehydrates the queue from the store after a restart. Paused
// triggers stay out of the queue; past-due recurring triggers advance to
// their next occurrence; past-due one-shot triggers fire immediately.
func (e *Engine) Restore(ctx context.Context) (int, error) {
	triggers, err := e.store.ListActive(ctx)
	if err != nil {
		return 0, err
	}

	now := e.clock.Now()
	restored := 0
	for _, trigger := range triggers {
		if trigger.Paused {
			continue
		}

		if trigger.CronExpression != nil && trigger.NextFireAt.Before(now) {
			loc, zoneErr := clock.LoadZone(trigger.TimeZone)
			if zoneErr != nil {
				e.logger.Error("Skipping trigger with unknown zone",
					"job_id", trigger.JobID,
					"time_zone", trigger.TimeZone)
				continue
			}
			next, nextErr := cronexpr.NextAfter(now, *trigger.CronExpression, loc)
			if nextErr != nil {
				e.logger.Error("Skipping trigger with invalid expression",
					"job_id", trigger.JobID,
					"error", nextErr)
				continue
			}
			trigger.NextFireAt = next
			if upsertErr := e.store.Upsert(ctx, trigger); upsertErr != nil {
				return restored, upsertErr
			}
		}

		e.mu.Lock()
		e.queue.push(trigger)
		e.mu.Unlock()
		restored++
	}

	e.poke()
	e.logger.Info("Schedule restored", "triggers", restored)
	return restored, nil
}

// FireDone releases a job's in-flight slot. A recurring trigger that came due
// while its previous fire was running is armed now.
func (e *Engine) FireDone(jobID string) {
	e.mu.Lock()
	delete(e.inflight, jobID)
	if trigger, ok := e.pending[jobID]; ok {
		delete(e.pending, jobID)
		e.queue.push(trigger)
	}
	e.mu.Unlock()
	e.poke()
}

// poke wakes the dispatch loop without blocking.
func (e *Engine) poke() {
	select {
	case e.wake <- struct{}{}:
	default:
	}
}

// run is the dispatch loop.
func (e *Engine) run(ctx context.Context) {
	defer close(e.done)

	timer := time.NewTimer(idleWait)
	defer timer.Stop()

	for {
		wait := e.dispatchDue(ctx)

		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(wait)

		select {
		case <-ctx.Done():
			return
		case <-e.wake:
		case <-timer.C:
		}
	}
}

// dispatchDue pops and dispatches every due trigger, then returns how long
// the loop should sleep before the next one comes due.
func (e *Engine) dispatchDue(ctx context.Context) time.Duration {
	for {
		now := e.clock.Now()
		deadline := now.Add(dispatchSlop)

		e.mu.Lock()
		trigger := e.queue.popDue(deadline)
		if trigger == nil {
			wait := idleWait
			if head := e.queue.peek(); head != nil {
				wait = head.NextFireAt.Sub(now)
				if wait < 0 {
					wait = 0
				}
			}
			e.mu.Unlock()
			return wait
		}

		if e.inflight[trigger.JobID] {
			// Previous fire still running. Recurring triggers advance past
			// the missed occurrence and park until FireDone; a one-shot fire
			// is simply skipped since its work is already in flight.
			e.mu.Unlock()
			e.skipOverlap(ctx, trigger, now)
			continue
		}
		e.mu.Unlock()

		if !e.emit(ctx, trigger, now) {
			return queueRetryInterval
		}
	}
}

// skipOverlap advances a recurring trigger past an occurrence that overlapped
// a still-running fire.
func (e *Engine) skipOverlap(ctx context.Context, trigger *domain.Trigger, now time.Time) {
	e.logger.Warn("Fire skipped, previous fire still running",
		"job_id", trigger.JobID,
		"due", trigger.NextFireAt)

	if trigger.CronExpression == nil {
		return
	}
	if err := e.rearm(ctx, trigger, now); err != nil {
		e.logger.Error("Failed to advance overlapped trigger",
			"job_id", trigger.JobID,
			"error", err)
	}
}

// emit pushes a fire onto the channel, marking the job in flight and arming
// the next occurrence for recurring triggers. Returns false when the channel
// is full; the trigger goes back in the queue for a retry.
func (e *Engine) emit(ctx context.Context, trigger *domain.Trigger, now time.Time) bool {
	fire := Fire{JobID: trigger.JobID, Due: trigger.NextFireAt}

	select {
	case e.fires <- fire:
	default:
		e.mu.Lock()
		e.queue.push(trigger)
		e.mu.Unlock()
		e.logger.Warn("Fire channel full, retrying",
			"job_id", trigger.JobID,
			"queued", e.queue.len())
		return false
	}

	if lag := now.Sub(trigger.NextFireAt); lag > lateFireThreshold {
		e.logger.Warn("Late fire",
			"job_id", trigger.JobID,
			"due", trigger.NextFireAt,
			"lag", lag)
	}

	e.mu.Lock()
	e.inflight[trigger.JobID] = true
	e.mu.Unlock()

	if trigger.CronExpression != nil {
		if err := e.rearm(ctx, trigger, now); err != nil {
			e.logger.Error("Failed to re-arm recurring trigger",
				"job_id", trigger.JobID,
				"error", err)
		}
	} else if err := e.store.Delete(ctx, trigger.JobID); err != nil {
		e.logger.Error("Failed to delete one-shot trigger",
			"job_id", trigger.JobID,
			"error", err)
	}

	e.logger.Debug("Fire dispatched",
		"job_id", trigger.JobID,
		"due", trigger.NextFireAt)
	return true
}

// rearm computes a recurring trigger's next occurrence after now, persists it
// and puts it back in the queue. In-flight jobs park in pending instead; they
// re-enter the queue on FireDone.
func (e *Engine) rearm(ctx context.Context, trigger *domain.Trigger, now time.Time) error {
	loc, err := clock.LoadZone(trigger.TimeZone)
	if err != nil {
		return err
	}

	from := now
	if trigger.NextFireAt.After(from) {
		from = trigger.NextFireAt
	}
	next, err := cronexpr.NextAfter(from, *trigger.CronExpression, loc)
	if err != nil {
		return err
	}
	if next.IsZero() {
		return e.store.Delete(ctx, trigger.JobID)
	}

	armed := &domain.Trigger{
		JobID:          trigger.JobID,
		NextFireAt:     next,
		CronExpression: trigger.CronExpression,
		TimeZone:       trigger.TimeZone,
	}
	if err := e.store.Upsert(ctx, armed); err != nil {
		return err
	}

	e.mu.Lock()
	if e.inflight[trigger.JobID] {
		e.pending[trigger.JobID] = armed
	} else {
		e.queue.push(armed)
	}
	e.mu.Unlock()

	return nil
}

// NextWall converts a trigger's next fire instant to the wall clock of its
// zone, for writing back to the job row.
func NextWall(trigger *domain.Trigger) (*time.Time, error) {
	loc, err := clock.LoadZone(trigger.TimeZone)
	if err != nil {
		return nil, err
	}
	wall := clock.ToWall(trigger.NextFireAt, loc)
	return &wall, nil
}
