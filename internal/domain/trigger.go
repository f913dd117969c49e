package domain

import (
	"time"
)

// Trigger is the firing-schedule side of a job, persisted so the in-memory
// schedule survives restarts. One row per active job.
type Trigger struct {
	JobID string `db:"job_id" json:"job_id"`
	// NextFireAt is the next fire as an absolute UTC instant.
	NextFireAt     time.Time `db:"next_fire_at" json:"next_fire_at"`
	CronExpression *string   `db:"cron_expression" json:"cron_expression,omitempty"`
	TimeZone       string    `db:"time_zone" json:"time_zone"`
	Paused         bool      `db:"paused" json:"paused"`
}
