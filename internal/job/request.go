package job

import (
	"errors"
	"fmt"
	"time"

	"github.com/jonesrussell/north-cloud/dispatcher/internal/clock"
	"github.com/jonesrussell/north-cloud/dispatcher/internal/cronexpr"
	"github.com/jonesrussell/north-cloud/dispatcher/internal/domain"
)

// pastGrace is how far in the past a one-time start is still accepted,
// absorbing request latency between client and server.
const pastGrace = 30 * time.Second

var (
	// ErrMissingClientID is returned when client_id is blank.
	ErrMissingClientID = errors.New("client_id is required")
	// ErrInvalidScheduleType is returned for an unknown schedule type.
	ErrInvalidScheduleType = errors.New("invalid schedule_type")
	// ErrMissingStartTime is returned when a one-time job has no start time.
	ErrMissingStartTime = errors.New("start_time is required for ONE_TIME jobs")
	// ErrPastScheduleTime is returned when a one-time start is in the past
	// beyond the grace window.
	ErrPastScheduleTime = errors.New("start_time is in the past")
	// ErrInvalidTransition is returned for pause/resume in the wrong state.
	ErrInvalidTransition = errors.New("invalid state for requested operation")
)

// errInvalidTransitionFor reports why a pause or resume was rejected.
func errInvalidTransitionFor(j *domain.Job, target domain.JobStatus) error {
	return fmt.Errorf("%w: job %s is %s, cannot move to %s",
		ErrInvalidTransition, j.ID, j.Status, target)
}

// CreateRequest is the validated input to Service.Create. StartTime is a
// zone-less wall clock interpreted in TimeZone; the API layer parses it from
// its textual form.
type CreateRequest struct {
	ClientID     string
	ScheduleType domain.ScheduleType
	// TimeZone is an IANA name; blank means the configured default zone.
	TimeZone  string
	StartTime *time.Time
	// CronExpression, when set, wins over the descriptor fields below.
	CronExpression *string
	HourlyInterval *int
	DaysOfWeek     []int
	DaysOfMonth    []int
	Hour           *int
	Minute         *int
}

// plan is the resolved schedule for a create request: the job row to persist
// and the trigger to arm after commit.
type plan struct {
	job     *domain.Job
	trigger *domain.Trigger
}

// resolve validates the request and computes the first fire instant.
func (s *Service) resolve(req *CreateRequest) (*plan, error) {
	if req.ClientID == "" {
		return nil, ErrMissingClientID
	}
	if !req.ScheduleType.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidScheduleType, req.ScheduleType)
	}

	zone := req.TimeZone
	if zone == "" {
		zone = s.defaultZone
	}
	loc, err := clock.LoadZone(zone)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	j := &domain.Job{
		ClientID:     req.ClientID,
		ScheduleType: req.ScheduleType,
		TimeZone:     zone,
		Status:       domain.StatusScheduling,
	}
	trigger := &domain.Trigger{TimeZone: zone}

	switch req.ScheduleType {
	case domain.ScheduleImmediate:
		startWall := clock.ToWall(now, loc)
		j.StartTime = &startWall
		trigger.NextFireAt = now

	case domain.ScheduleOneTime:
		if req.StartTime == nil {
			return nil, ErrMissingStartTime
		}
		instant := clock.ToInstant(*req.StartTime, loc)
		if instant.Before(now.Add(-pastGrace)) {
			return nil, fmt.Errorf("%w: %s %s",
				ErrPastScheduleTime, req.StartTime.Format("2006-01-02 15:04:05"), zone)
		}
		j.StartTime = req.StartTime
		trigger.NextFireAt = instant

	case domain.ScheduleRecurring:
		expr := s.deriveCron(req)
		if err := cronexpr.Validate(expr); err != nil {
			return nil, err
		}
		first, err := cronexpr.NextAfter(now, expr, loc)
		if err != nil {
			return nil, err
		}
		if first.IsZero() {
			return nil, fmt.Errorf("%w: %q never fires", cronexpr.ErrInvalidExpression, expr)
		}
		startWall := clock.ToWall(now, loc)
		j.StartTime = &startWall
		j.CronExpression = &expr
		trigger.CronExpression = &expr
		trigger.NextFireAt = first
	}

	return &plan{job: j, trigger: trigger}, nil
}

// deriveCron returns the raw expression when given, otherwise builds one from
// the descriptor fields.
func (s *Service) deriveCron(req *CreateRequest) string {
	if req.CronExpression != nil && *req.CronExpression != "" {
		return *req.CronExpression
	}
	return cronexpr.Build(cronexpr.Descriptor{
		HourlyInterval: req.HourlyInterval,
		DaysOfWeek:     req.DaysOfWeek,
		DaysOfMonth:    req.DaysOfMonth,
		Hour:           req.Hour,
		Minute:         req.Minute,
	})
}
