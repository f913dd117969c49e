package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jonesrussell/north-cloud/dispatcher/internal/logger"
)

// NewRouter builds the gin engine with all routes registered.
func NewRouter(service JobService, log logger.Interface) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestLogger(log.WithComponent("http")))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	jobs := NewJobsHandler(service)
	group := router.Group("/api/jobs")
	{
		group.POST("", jobs.CreateJob)
		group.GET("", jobs.ListJobs)
		group.GET("/:id", jobs.GetJob)
		group.DELETE("/:id", jobs.DeleteJob)
		group.PATCH("/:id/pause", jobs.PauseJob)
		group.PATCH("/:id/resume", jobs.ResumeJob)
	}

	return router
}

// requestLogger logs one line per request.
func requestLogger(log logger.Interface) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		log.Info("Request handled",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start))
	}
}
