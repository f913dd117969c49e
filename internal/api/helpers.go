// Package api implements the HTTP API for the dispatcher service.
package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jonesrussell/north-cloud/dispatcher/internal/clock"
	"github.com/jonesrussell/north-cloud/dispatcher/internal/cronexpr"
	"github.com/jonesrussell/north-cloud/dispatcher/internal/database"
	"github.com/jonesrussell/north-cloud/dispatcher/internal/job"
)

// parseLimitOffset parses limit and offset query params with defaults.
func parseLimitOffset(c *gin.Context, defaultLimit, defaultOffset int) (limit, offset int) {
	limitStr := c.DefaultQuery("limit", strconv.Itoa(defaultLimit))
	offsetStr := c.DefaultQuery("offset", strconv.Itoa(defaultOffset))
	limit, _ = strconv.Atoi(limitStr)
	offset, _ = strconv.Atoi(offsetStr)
	if limit <= 0 {
		limit = defaultLimit
	}
	if offset < 0 {
		offset = defaultOffset
	}
	return limit, offset
}

// respondError sends the uniform error body.
func respondError(c *gin.Context, status int, message string, details ...string) {
	c.JSON(status, ErrorResponse{
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Status:    status,
		Error:     http.StatusText(status),
		Message:   message,
		Details:   details,
	})
}

// respondServiceError maps service-layer errors onto status codes.
func respondServiceError(c *gin.Context, err error) {
	switch {
	case database.IsNotFound(err):
		respondError(c, http.StatusNotFound, err.Error())
	case errors.Is(err, job.ErrMissingClientID),
		errors.Is(err, job.ErrInvalidScheduleType),
		errors.Is(err, job.ErrMissingStartTime),
		errors.Is(err, job.ErrPastScheduleTime),
		errors.Is(err, clock.ErrUnknownZone),
		errors.Is(err, cronexpr.ErrInvalidExpression):
		respondError(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, job.ErrInvalidTransition):
		respondError(c, http.StatusConflict, err.Error())
	default:
		respondError(c, http.StatusInternalServerError, err.Error())
	}
}
