package api

import (
	"time"

	"github.com/jonesrussell/north-cloud/dispatcher/internal/domain"
)

// wallFormat is the textual form of zone-less wall-clock times: no offset
// suffix, interpreted in the job's time_zone.
const wallFormat = "2006-01-02T15:04:05"

// CreateJobRequest is the POST /api/jobs body. Recurrence is given either as
// a raw cron expression or as descriptor fields; the expression wins.
type CreateJobRequest struct {
	ClientID     string `json:"client_id"`
	ScheduleType string `json:"schedule_type"`
	// TimeZone is an IANA zone name; empty means the server default.
	TimeZone string `json:"time_zone"`
	// StartTime is wall clock in TimeZone, format 2006-01-02T15:04:05.
	StartTime      string  `json:"start_time"`
	CronExpression *string `json:"cron_expression"`
	HourlyInterval *int    `json:"hourly_interval"`
	DaysOfWeek     []int   `json:"days_of_week"`
	DaysOfMonth    []int   `json:"days_of_month"`
	Hour           *int    `json:"recurring_time_hour"`
	Minute         *int    `json:"recurring_time_minute"`
}

// JobResponse is the API projection of a job. Wall-clock fields carry no
// offset; created_at and updated_at are RFC 3339 instants.
type JobResponse struct {
	ID             string  `json:"id"`
	ClientID       string  `json:"client_id"`
	ScheduleType   string  `json:"schedule_type"`
	CronExpression *string `json:"cron_expression,omitempty"`
	TimeZone       string  `json:"time_zone"`
	StartTime      *string `json:"start_time,omitempty"`
	NextFireTime   *string `json:"next_fire_time,omitempty"`
	Status         string  `json:"status"`
	CreatedAt      string  `json:"created_at"`
	UpdatedAt      string  `json:"updated_at"`
}

// ListJobsResponse is the GET /api/jobs body.
type ListJobsResponse struct {
	Jobs  []JobResponse `json:"jobs"`
	Total int           `json:"total"`
}

// ErrorResponse is the uniform error body.
type ErrorResponse struct {
	Timestamp string   `json:"timestamp"`
	Status    int      `json:"status"`
	Error     string   `json:"error"`
	Message   string   `json:"message"`
	Details   []string `json:"details,omitempty"`
}

// toJobResponse converts a domain job to its API projection.
func toJobResponse(j *domain.Job) JobResponse {
	resp := JobResponse{
		ID:             j.ID,
		ClientID:       j.ClientID,
		ScheduleType:   string(j.ScheduleType),
		CronExpression: j.CronExpression,
		TimeZone:       j.TimeZone,
		Status:         string(j.Status),
		CreatedAt:      j.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:      j.UpdatedAt.UTC().Format(time.RFC3339),
	}
	if j.StartTime != nil {
		s := j.StartTime.Format(wallFormat)
		resp.StartTime = &s
	}
	if j.NextFireTime != nil {
		s := j.NextFireTime.Format(wallFormat)
		resp.NextFireTime = &s
	}
	return resp
}

func toJobResponses(jobs []*domain.Job) []JobResponse {
	out := make([]JobResponse, 0, len(jobs))
	for _, j := range jobs {
		out = append(out, toJobResponse(j))
	}
	return out
}
