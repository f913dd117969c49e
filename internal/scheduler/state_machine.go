package scheduler

import (
	"fmt"

	"github.com/jonesrussell/north-cloud/dispatcher/internal/domain"
)

// ValidateStateTransition checks if a status transition is valid.
// Returns an error if the transition is not allowed.
func ValidateStateTransition(from, to domain.JobStatus) error {
	validTransitions := map[domain.JobStatus][]domain.JobStatus{
		domain.StatusScheduling: {
			domain.StatusScheduled,        // Trigger registered after commit
			domain.StatusCompletedFailure, // Registration failed
		},
		domain.StatusScheduled: {
			domain.StatusRunning, // Fire dispatched
			domain.StatusPaused,  // Manual pause
		},
		domain.StatusPaused: {
			domain.StatusScheduled, // Manual resume
		},
		domain.StatusRunning: {
			domain.StatusScheduled,        // Recurring job re-arms, success or failure
			domain.StatusCompletedSuccess, // One-shot fire succeeded
			domain.StatusCompletedFailure, // One-shot fire failed
		},
		// Terminal for one-shot jobs; recurring jobs pass through via the
		// engine re-arming them to SCHEDULED.
		domain.StatusCompletedSuccess: {
			domain.StatusScheduled,
			domain.StatusRunning,
		},
		domain.StatusCompletedFailure: {
			domain.StatusScheduled,
			domain.StatusRunning,
		},
	}

	allowedStates, exists := validTransitions[from]
	if !exists {
		return fmt.Errorf("unknown source status: %s", from)
	}

	for _, allowed := range allowedStates {
		if allowed == to {
			return nil
		}
	}

	return fmt.Errorf("invalid status transition from %s to %s", from, to)
}

// CanPause checks if a job can be paused in its current status.
func CanPause(job *domain.Job) bool {
	return job.Status == domain.StatusScheduled
}

// CanResume checks if a job can be resumed from its current status.
func CanResume(job *domain.Job) bool {
	return job.Status == domain.StatusPaused
}
