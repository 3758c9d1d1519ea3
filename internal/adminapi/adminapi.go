// Package adminapi is the minimal Gin surface the external
// health-monitoring daemon and browser UI poll: liveness, job-status
// counts, and a per-job SSE progress stream. It owns no pipeline
// logic, only read access to the store and the progress broadcaster.
package adminapi

import (
	"context"
	"net/http"

	"secondpass/internal/database"
	"secondpass/internal/models"
	"secondpass/pkg/logger"

	"github.com/gin-gonic/gin"
)

// statsStore is the slice of *store.Store the stats endpoint needs.
type statsStore interface {
	CountByStatus(ctx context.Context) (map[models.JobStatus]int64, error)
}

// eventStreamer is the slice of *progress.Broadcaster the events
// endpoint needs.
type eventStreamer interface {
	ServeHTTP(w http.ResponseWriter, r *http.Request, jobID string)
}

// Server is the admin HTTP surface.
type Server struct {
	engine *gin.Engine
	store  statsStore
	events eventStreamer
}

// New builds the admin router, wiring store and events into their
// handlers. Gin runs in release mode with the shared request logger,
// matching the teacher's SetupRoutes posture.
func New(store statsStore, events eventStreamer) *Server {
	gin.SetMode(gin.ReleaseMode)
	logger.SetGinOutput()

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(logger.GinLogger())

	s := &Server{engine: engine, store: store, events: events}

	engine.GET("/healthz", s.healthz)
	engine.GET("/stats", s.stats)
	engine.GET("/jobs/:id/events", s.jobEvents)

	return s
}

// Handler returns the underlying http.Handler for use with an
// *http.Server, so the caller controls listen address and shutdown.
func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) healthz(c *gin.Context) {
	if err := database.HealthCheck(); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}

func (s *Server) stats(c *gin.Context) {
	counts, err := s.store.CountByStatus(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"pending":    counts[models.StatusPending],
		"processing": counts[models.StatusProcessing],
		"completed":  counts[models.StatusCompleted],
		"failed":     counts[models.StatusFailed],
	})
}

func (s *Server) jobEvents(c *gin.Context) {
	s.events.ServeHTTP(c.Writer, c.Request, c.Param("id"))
}
