// Package domain provides domain models used across the application.
package domain

import (
	"time"
)

// ScheduleType describes how a job fires.
type ScheduleType string

const (
	// ScheduleImmediate fires once, as soon as the creating transaction commits.
	ScheduleImmediate ScheduleType = "IMMEDIATE"
	// ScheduleOneTime fires once at a wall-clock time in the job's timezone.
	ScheduleOneTime ScheduleType = "ONE_TIME"
	// ScheduleRecurring fires repeatedly per a cron expression in the job's timezone.
	ScheduleRecurring ScheduleType = "RECURRING"
)

// Valid reports whether the schedule type is one of the known values.
func (s ScheduleType) Valid() bool {
	switch s {
	case ScheduleImmediate, ScheduleOneTime, ScheduleRecurring:
		return true
	default:
		return false
	}
}

// JobStatus is the lifecycle status of a job.
type JobStatus string

const (
	// StatusScheduling means the job row is persisted but not yet registered
	// with the trigger engine.
	StatusScheduling JobStatus = "SCHEDULING"
	// StatusScheduled means the job is registered and waiting for its next fire.
	StatusScheduled JobStatus = "SCHEDULED"
	// StatusRunning means a worker is executing a fire for the job.
	StatusRunning JobStatus = "RUNNING"
	// StatusCompletedSuccess is the terminal success state for one-shot jobs,
	// and the per-fire outcome recorded for recurring jobs.
	StatusCompletedSuccess JobStatus = "COMPLETED_SUCCESS"
	// StatusCompletedFailure is the failure counterpart of StatusCompletedSuccess.
	StatusCompletedFailure JobStatus = "COMPLETED_FAILURE"
	// StatusPaused means the job's trigger is suspended; reachable from
	// StatusScheduled only.
	StatusPaused JobStatus = "PAUSED"
)

// Job represents a persisted scheduling intent owned by a tenant.
// A job fetches user records for its client and publishes them to the bus.
type Job struct {
	ID             string       `db:"id" json:"id"`
	ClientID       string       `db:"client_id" json:"client_id"`
	ScheduleType   ScheduleType `db:"schedule_type" json:"schedule_type"`
	CronExpression *string      `db:"cron_expression" json:"cron_expression,omitempty"`
	// TimeZone is the IANA zone all wall-clock fields are interpreted in.
	TimeZone string `db:"time_zone" json:"time_zone"`
	// StartTime is a zone-less wall-clock time in TimeZone. For ONE_TIME jobs
	// it is the requested fire time; for IMMEDIATE and RECURRING it records
	// the creation instant's wall clock.
	StartTime *time.Time `db:"start_time" json:"start_time,omitempty"`
	// NextFireTime is the next fire expressed as wall clock in TimeZone.
	// The trigger row carries the same moment as an absolute instant.
	NextFireTime *time.Time `db:"next_fire_time" json:"next_fire_time,omitempty"`
	Status       JobStatus  `db:"status" json:"status"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at" json:"updated_at"`
}

// IsTerminal reports whether the job has finished for good. Recurring jobs
// pass through the completed statuses between fires, so only one-shot and
// immediate jobs ever terminate.
func (j *Job) IsTerminal() bool {
	if j.ScheduleType == ScheduleRecurring {
		return false
	}
	return j.Status == StatusCompletedSuccess || j.Status == StatusCompletedFailure
}
