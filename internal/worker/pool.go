// Package worker runs job fires on a bounded pool of goroutines. The pool
// drains the scheduler's fire channel; backpressure happens upstream, in the
// channel itself.
package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonesrussell/north-cloud/dispatcher/internal/logger"
	"github.com/jonesrussell/north-cloud/dispatcher/internal/scheduler"
)

// PoolState represents the current state of the pool.
type PoolState int32

const (
	// PoolStateStopped means the pool is not running.
	PoolStateStopped PoolState = iota

	// PoolStateRunning means the pool is actively processing fires.
	PoolStateRunning

	// PoolStateDraining means the pool is shutting down gracefully.
	PoolStateDraining
)

// String returns the string representation of a pool state.
func (s PoolState) String() string {
	switch s {
	case PoolStateStopped:
		return "stopped"
	case PoolStateRunning:
		return "running"
	case PoolStateDraining:
		return "draining"
	default:
		return "unknown"
	}
}

// Handler executes one fire. The executor implements this.
type Handler interface {
	Execute(ctx context.Context, fire scheduler.Fire) error
}

// Config holds pool settings.
type Config struct {
	// PoolSize is the number of concurrent fires.
	PoolSize int
	// FireTimeout bounds a single fire's execution. Zero means no limit.
	FireTimeout time.Duration
	// DrainTimeout caps how long Stop waits for in-flight fires.
	DrainTimeout time.Duration
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.PoolSize <= 0 {
		return errors.New("pool size must be positive")
	}
	return nil
}

// Pool consumes the scheduler's fire channel with PoolSize goroutines. Each
// fire runs under a cancellable context registered by job ID, so deleting a
// job can abort its in-flight execution.
type Pool struct {
	config  Config
	fires   <-chan scheduler.Fire
	handler Handler
	// done releases the job's in-flight slot in the scheduler.
	done   func(jobID string)
	logger logger.Interface

	state atomic.Int32
	wg    sync.WaitGroup

	mu      sync.Mutex
	cancels map[string]context.CancelFunc

	firesProcessed atomic.Int64
	firesSucceeded atomic.Int64
	firesFailed    atomic.Int64
}

// NewPool creates a worker pool over the given fire channel.
func NewPool(
	cfg Config,
	fires <-chan scheduler.Fire,
	handler Handler,
	done func(jobID string),
	log logger.Interface,
) (*Pool, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if handler == nil {
		return nil, errors.New("handler cannot be nil")
	}

	p := &Pool{
		config:  cfg,
		fires:   fires,
		handler: handler,
		done:    done,
		logger:  log.WithComponent("worker"),
		cancels: make(map[string]context.CancelFunc),
	}
	p.state.Store(int32(PoolStateStopped))

	return p, nil
}

// Start launches the worker goroutines. They exit when the fire channel
// closes.
func (p *Pool) Start(ctx context.Context) error {
	if !p.state.CompareAndSwap(int32(PoolStateStopped), int32(PoolStateRunning)) {
		return errors.New("pool is already running")
	}

	for i := 0; i < p.config.PoolSize; i++ {
		p.wg.Add(1)
		go p.runWorker(ctx, i)
	}

	p.logger.Info("Worker pool started", "pool_size", p.config.PoolSize)
	return nil
}

// Stop waits for in-flight fires to finish. The fire channel must already be
// closed by the scheduler; Stop only drains.
func (p *Pool) Stop(ctx context.Context) error {
	if !p.state.CompareAndSwap(int32(PoolStateRunning), int32(PoolStateDraining)) {
		return errors.New("pool is not running")
	}

	p.logger.Info("Worker pool draining")

	finished := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(finished)
	}()

	drain := p.config.DrainTimeout
	if drain <= 0 {
		drain = 30 * time.Second
	}

	select {
	case <-finished:
		p.logger.Info("Worker pool stopped gracefully")
	case <-ctx.Done():
		p.logger.Warn("Worker pool stop cancelled")
	case <-time.After(drain):
		p.logger.Warn("Worker pool drain timeout exceeded")
	}

	p.state.Store(int32(PoolStateStopped))
	return nil
}

// Cancel aborts the in-flight fire for a job, if any. Used when a job is
// deleted while running.
func (p *Pool) Cancel(jobID string) bool {
	p.mu.Lock()
	cancel, ok := p.cancels[jobID]
	p.mu.Unlock()

	if ok {
		cancel()
		p.logger.Info("In-flight fire cancelled", "job_id", jobID)
	}
	return ok
}

func (p *Pool) runWorker(ctx context.Context, id int) {
	defer p.wg.Done()

	log := p.logger.With("worker_id", id)
	for fire := range p.fires {
		p.process(ctx, fire, log)
	}
	log.Debug("Worker exiting, fire channel closed")
}

func (p *Pool) process(ctx context.Context, fire scheduler.Fire, log logger.Interface) {
	var fireCtx context.Context
	var cancel context.CancelFunc
	if p.config.FireTimeout > 0 {
		fireCtx, cancel = context.WithTimeout(ctx, p.config.FireTimeout)
	} else {
		fireCtx, cancel = context.WithCancel(ctx)
	}

	p.mu.Lock()
	p.cancels[fire.JobID] = cancel
	p.mu.Unlock()

	defer func() {
		p.mu.Lock()
		delete(p.cancels, fire.JobID)
		p.mu.Unlock()
		cancel()
		if p.done != nil {
			p.done(fire.JobID)
		}
	}()

	start := time.Now()
	err := p.handler.Execute(fireCtx, fire)

	p.firesProcessed.Add(1)
	if err != nil {
		p.firesFailed.Add(1)
		log.Error("Fire failed",
			"job_id", fire.JobID,
			"duration", time.Since(start),
			"error", err)
		return
	}

	p.firesSucceeded.Add(1)
	log.Debug("Fire completed",
		"job_id", fire.JobID,
		"duration", time.Since(start))
}

// State returns the current pool state.
func (p *Pool) State() PoolState {
	return PoolState(p.state.Load())
}

// Stats returns pool statistics.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	inflight := len(p.cancels)
	p.mu.Unlock()

	return Stats{
		State:          p.State(),
		PoolSize:       p.config.PoolSize,
		InflightFires:  inflight,
		FiresProcessed: p.firesProcessed.Load(),
		FiresSucceeded: p.firesSucceeded.Load(),
		FiresFailed:    p.firesFailed.Load(),
	}
}

// Stats holds pool statistics.
type Stats struct {
	State          PoolState `json:"state"`
	PoolSize       int       `json:"pool_size"`
	InflightFires  int       `json:"inflight_fires"`
	FiresProcessed int64     `json:"fires_processed"`
	FiresSucceeded int64     `json:"fires_succeeded"`
	FiresFailed    int64     `json:"fires_failed"`
}

// MarshalJSON renders the state by name.
func (s PoolState) MarshalJSON() ([]byte, error) {
	return []byte(`"` + s.String() + `"`), nil
}
