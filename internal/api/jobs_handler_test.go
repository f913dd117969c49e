package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/north-cloud/dispatcher/internal/database"
	"github.com/jonesrussell/north-cloud/dispatcher/internal/domain"
	"github.com/jonesrussell/north-cloud/dispatcher/internal/job"
	"github.com/jonesrussell/north-cloud/dispatcher/internal/logger"
)

type fakeJobService struct {
	jobs      map[string]*domain.Job
	createErr error
	opErr     error
	lastReq   *job.CreateRequest
}

func newFakeJobService() *fakeJobService {
	return &fakeJobService{jobs: make(map[string]*domain.Job)}
}

func (s *fakeJobService) Create(_ context.Context, req *job.CreateRequest) (*domain.Job, error) {
	if s.createErr != nil {
		return nil, s.createErr
	}
	s.lastReq = req
	nextFire := time.Date(2026, 7, 1, 9, 30, 0, 0, time.UTC)
	j := &domain.Job{
		ID:           "job-1",
		ClientID:     req.ClientID,
		ScheduleType: req.ScheduleType,
		TimeZone:     req.TimeZone,
		StartTime:    req.StartTime,
		NextFireTime: &nextFire,
		Status:       domain.StatusScheduled,
		CreatedAt:    time.Date(2026, 6, 15, 12, 0, 0, 0, time.UTC),
		UpdatedAt:    time.Date(2026, 6, 15, 12, 0, 0, 0, time.UTC),
	}
	s.jobs[j.ID] = j
	return j, nil
}

func (s *fakeJobService) Get(_ context.Context, id string) (*domain.Job, error) {
	j, ok := s.jobs[id]
	if !ok {
		return nil, fmt.Errorf("job %s: %w", id, database.ErrNotFound)
	}
	return j, nil
}

func (s *fakeJobService) List(_ context.Context, _ string, _, _ int) ([]*domain.Job, error) {
	out := make([]*domain.Job, 0, len(s.jobs))
	for _, j := range s.jobs {
		out = append(out, j)
	}
	return out, nil
}

func (s *fakeJobService) Count(_ context.Context, _ string) (int, error) {
	return len(s.jobs), nil
}

func (s *fakeJobService) Delete(_ context.Context, _ string) error { return s.opErr }
func (s *fakeJobService) Pause(_ context.Context, _ string) error  { return s.opErr }
func (s *fakeJobService) Resume(_ context.Context, _ string) error { return s.opErr }

func doRequest(t *testing.T, svc JobService, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	router := NewRouter(svc, logger.NewNoOp())

	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, http.NoBody)
	}

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestCreateJobCreated(t *testing.T) {
	svc := newFakeJobService()
	body := `{
		"client_id": "client-1",
		"schedule_type": "ONE_TIME",
		"time_zone": "America/New_York",
		"start_time": "2026-07-01T09:30:00"
	}`

	rec := doRequest(t, svc, http.MethodPost, "/api/jobs", body)
	require.Equal(t, http.StatusCreated, rec.Code)

	var resp JobResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "job-1", resp.ID)
	assert.Equal(t, "SCHEDULED", resp.Status)
	require.NotNil(t, resp.StartTime)
	assert.Equal(t, "2026-07-01T09:30:00", *resp.StartTime)
	require.NotNil(t, resp.NextFireTime)
	assert.Equal(t, "2026-07-01T09:30:00", *resp.NextFireTime)

	require.NotNil(t, svc.lastReq.StartTime)
	assert.Equal(t, time.Date(2026, 7, 1, 9, 30, 0, 0, time.UTC), *svc.lastReq.StartTime)
}

func TestCreateJobRecurringTimeFields(t *testing.T) {
	svc := newFakeJobService()
	body := `{
		"client_id": "client-1",
		"schedule_type": "RECURRING",
		"time_zone": "America/New_York",
		"days_of_week": [1, 3, 5],
		"recurring_time_hour": 9,
		"recurring_time_minute": 0
	}`

	rec := doRequest(t, svc, http.MethodPost, "/api/jobs", body)
	require.Equal(t, http.StatusCreated, rec.Code)

	require.NotNil(t, svc.lastReq.Hour)
	assert.Equal(t, 9, *svc.lastReq.Hour)
	require.NotNil(t, svc.lastReq.Minute)
	assert.Equal(t, 0, *svc.lastReq.Minute)
	assert.Equal(t, []int{1, 3, 5}, svc.lastReq.DaysOfWeek)
}

func TestCreateJobMalformedBody(t *testing.T) {
	rec := doRequest(t, newFakeJobService(), http.MethodPost, "/api/jobs", `{"client_id": 42`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateJobBadStartTimeFormat(t *testing.T) {
	body := `{"client_id": "c", "schedule_type": "ONE_TIME", "start_time": "tomorrow at 9"}`
	rec := doRequest(t, newFakeJobService(), http.MethodPost, "/api/jobs", body)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateJobValidationErrorsMapTo400(t *testing.T) {
	for _, svcErr := range []error{
		job.ErrMissingClientID,
		job.ErrPastScheduleTime,
		job.ErrMissingStartTime,
	} {
		svc := newFakeJobService()
		svc.createErr = svcErr
		rec := doRequest(t, svc, http.MethodPost, "/api/jobs",
			`{"client_id": "c", "schedule_type": "IMMEDIATE"}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code, "error %v", svcErr)

		var resp ErrorResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, http.StatusBadRequest, resp.Status)
		assert.Equal(t, "Bad Request", resp.Error)
		assert.NotEmpty(t, resp.Timestamp)
		assert.NotEmpty(t, resp.Message)
	}
}

func TestGetJob(t *testing.T) {
	svc := newFakeJobService()
	_, err := svc.Create(context.Background(), &job.CreateRequest{
		ClientID:     "client-1",
		ScheduleType: domain.ScheduleImmediate,
		TimeZone:     "UTC",
	})
	require.NoError(t, err)

	rec := doRequest(t, svc, http.MethodGet, "/api/jobs/job-1", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp JobResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "client-1", resp.ClientID)
}

func TestGetJobNotFound(t *testing.T) {
	rec := doRequest(t, newFakeJobService(), http.MethodGet, "/api/jobs/missing", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "Not Found", resp.Error)
}

func TestListJobs(t *testing.T) {
	svc := newFakeJobService()
	_, err := svc.Create(context.Background(), &job.CreateRequest{
		ClientID:     "client-1",
		ScheduleType: domain.ScheduleImmediate,
		TimeZone:     "UTC",
	})
	require.NoError(t, err)

	rec := doRequest(t, svc, http.MethodGet, "/api/jobs?status=SCHEDULED&limit=10", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp ListJobsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Total)
	assert.Len(t, resp.Jobs, 1)
}

func TestDeleteJobAccepted(t *testing.T) {
	rec := doRequest(t, newFakeJobService(), http.MethodDelete, "/api/jobs/job-1", "")
	assert.Equal(t, http.StatusAccepted, rec.Code)
}

func TestPauseJobAccepted(t *testing.T) {
	rec := doRequest(t, newFakeJobService(), http.MethodPatch, "/api/jobs/job-1/pause", "")
	assert.Equal(t, http.StatusAccepted, rec.Code)
}

func TestPauseInvalidStateMapsToConflict(t *testing.T) {
	svc := newFakeJobService()
	svc.opErr = fmt.Errorf("%w: job job-1 is RUNNING", job.ErrInvalidTransition)

	rec := doRequest(t, svc, http.MethodPatch, "/api/jobs/job-1/pause", "")
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestResumeJobNotFound(t *testing.T) {
	svc := newFakeJobService()
	svc.opErr = fmt.Errorf("job job-1: %w", database.ErrNotFound)

	rec := doRequest(t, svc, http.MethodPatch, "/api/jobs/job-1/resume", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHealth(t *testing.T) {
	rec := doRequest(t, newFakeJobService(), http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}
