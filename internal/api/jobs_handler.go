package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jonesrussell/north-cloud/dispatcher/internal/domain"
	"github.com/jonesrussell/north-cloud/dispatcher/internal/job"
)

const (
	defaultLimit  = 50
	defaultOffset = 0
)

// JobService is the lifecycle surface the handlers call. job.Service
// implements it.
type JobService interface {
	Create(ctx context.Context, req *job.CreateRequest) (*domain.Job, error)
	Get(ctx context.Context, id string) (*domain.Job, error)
	List(ctx context.Context, status string, limit, offset int) ([]*domain.Job, error)
	Count(ctx context.Context, status string) (int, error)
	Delete(ctx context.Context, id string) error
	Pause(ctx context.Context, id string) error
	Resume(ctx context.Context, id string) error
}

// JobsHandler handles job-related HTTP requests.
type JobsHandler struct {
	service JobService
}

// NewJobsHandler creates a new jobs handler.
func NewJobsHandler(service JobService) *JobsHandler {
	return &JobsHandler{service: service}
}

// CreateJob handles POST /api/jobs
func (h *JobsHandler) CreateJob(c *gin.Context) {
	var req CreateJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}

	createReq := &job.CreateRequest{
		ClientID:       req.ClientID,
		ScheduleType:   domain.ScheduleType(req.ScheduleType),
		TimeZone:       req.TimeZone,
		CronExpression: req.CronExpression,
		HourlyInterval: req.HourlyInterval,
		DaysOfWeek:     req.DaysOfWeek,
		DaysOfMonth:    req.DaysOfMonth,
		Hour:           req.Hour,
		Minute:         req.Minute,
	}

	if req.StartTime != "" {
		wall, err := time.ParseInLocation(wallFormat, req.StartTime, time.UTC)
		if err != nil {
			respondError(c, http.StatusBadRequest,
				"Invalid start_time", "expected format "+wallFormat)
			return
		}
		createReq.StartTime = &wall
	}

	created, err := h.service.Create(c.Request.Context(), createReq)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, toJobResponse(created))
}

// ListJobs handles GET /api/jobs
func (h *JobsHandler) ListJobs(c *gin.Context) {
	status := c.Query("status")
	limit, offset := parseLimitOffset(c, defaultLimit, defaultOffset)

	jobs, err := h.service.List(c.Request.Context(), status, limit, offset)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "Failed to retrieve jobs")
		return
	}

	total, err := h.service.Count(c.Request.Context(), status)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "Failed to get total count")
		return
	}

	c.JSON(http.StatusOK, ListJobsResponse{
		Jobs:  toJobResponses(jobs),
		Total: total,
	})
}

// GetJob handles GET /api/jobs/:id
func (h *JobsHandler) GetJob(c *gin.Context) {
	id := c.Param("id")
	if id == "" || id == "undefined" {
		respondError(c, http.StatusBadRequest, "Invalid job ID")
		return
	}

	j, err := h.service.Get(c.Request.Context(), id)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, toJobResponse(j))
}

// DeleteJob handles DELETE /api/jobs/:id
func (h *JobsHandler) DeleteJob(c *gin.Context) {
	id := c.Param("id")

	if err := h.service.Delete(c.Request.Context(), id); err != nil {
		respondServiceError(c, err)
		return
	}

	c.Status(http.StatusAccepted)
}

// PauseJob handles PATCH /api/jobs/:id/pause
func (h *JobsHandler) PauseJob(c *gin.Context) {
	id := c.Param("id")

	if err := h.service.Pause(c.Request.Context(), id); err != nil {
		respondServiceError(c, err)
		return
	}

	c.Status(http.StatusAccepted)
}

// ResumeJob handles PATCH /api/jobs/:id/resume
func (h *JobsHandler) ResumeJob(c *gin.Context) {
	id := c.Param("id")

	if err := h.service.Resume(c.Request.Context(), id); err != nil {
		respondServiceError(c, err)
		return
	}

	c.Status(http.StatusAccepted)
}
