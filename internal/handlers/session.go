// Package handlers implements the broker's HTTP surface: session creation,
// offer submission, the video catalogue, and the health check.
package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/huziichuk/bcs-broker/internal/apperrors"
	"github.com/huziichuk/bcs-broker/internal/catalog"
	"github.com/huziichuk/bcs-broker/internal/logger"
	"github.com/huziichuk/bcs-broker/internal/models"
	"github.com/huziichuk/bcs-broker/internal/registry"
	"github.com/huziichuk/bcs-broker/internal/scheduler"
	"github.com/huziichuk/bcs-broker/internal/validator"
)

// SessionHandler serves the session-creation and offer-submission endpoints.
type SessionHandler struct {
	reg     *registry.Registry
	sched   *scheduler.Scheduler
	catalog *catalog.Catalog
}

func NewSessionHandler(reg *registry.Registry, sched *scheduler.Scheduler, cat *catalog.Catalog) *SessionHandler {
	return &SessionHandler{reg: reg, sched: sched, catalog: cat}
}

// RegisterRoutes mounts the session endpoints on a gin router group.
func (h *SessionHandler) RegisterRoutes(r gin.IRouter) {
	r.GET("/videos", h.GetVideos)
	r.GET("/health", h.GetHealth)
	r.POST("/session", h.CreateSession)
	r.POST("/session/:id/offer", h.SubmitOffer)
}

// GetVideos returns the static catalogue of filenames a session may
// reference.
func (h *SessionHandler) GetVideos(c *gin.Context) {
	c.JSON(http.StatusOK, models.VideosResponse{Videos: h.catalog.List()})
}

// GetHealth reports the broker's current load at a glance.
func (h *SessionHandler) GetHealth(c *gin.Context) {
	c.JSON(http.StatusOK, models.HealthResponse{
		OK:          true,
		Workers:     h.reg.WorkerCount(),
		QueueLength: h.reg.QueueLength(),
		JobsTotal:   h.reg.JobsTotal(),
		Sessions:    h.reg.SessionCount(),
		Videos:      h.catalog.List(),
	})
}

// CreateSession creates a new session, refusing unknown filenames (404) and
// refusing when no workers are connected to serve it (503).
func (h *SessionHandler) CreateSession(c *gin.Context) {
	var req models.CreateSessionRequest
	if !validator.BindAndValidate(c, &req) {
		return
	}

	if !h.catalog.Contains(req.Filename) {
		err := apperrors.UnknownFilename(req.Filename)
		c.JSON(err.StatusCode, err.ToResponse())
		return
	}

	if h.reg.WorkerCount() == 0 {
		err := apperrors.NoWorkersAvailable()
		c.JSON(err.StatusCode, err.ToResponse())
		return
	}

	session := h.reg.CreateSession(req.Filename, req.Ammunition, req.CustomID, time.Now())

	logger.HTTP().Info().Str("session_id", session.ID).Str("filename", session.Filename).Msg("session created")

	c.JSON(http.StatusOK, models.CreateSessionResponse{
		SessionID: session.ID,
		Filename:  session.Filename,
	})
}

// SubmitOffer wraps an SDP offer into a job against an existing session and
// enqueues it, returning the job id and its queue position after the
// scheduler has had a chance to dispatch it immediately.
func (h *SessionHandler) SubmitOffer(c *gin.Context) {
	sessionID := c.Param("id")

	var req models.OfferRequest
	if !validator.BindAndValidate(c, &req) {
		return
	}

	session, ok := h.reg.GetSession(sessionID)
	if !ok {
		err := apperrors.UnknownSession(sessionID)
		c.JSON(err.StatusCode, err.ToResponse())
		return
	}

	job := h.reg.EnqueueJob(session, models.OfferPayload{SDP: req.SDP, Type: req.Type}, time.Now())

	h.sched.Run()

	position := h.reg.QueuePosition(job.ID)

	logger.HTTP().Info().Str("job_id", job.ID).Str("session_id", sessionID).Int("position", position).Msg("offer enqueued")

	c.JSON(http.StatusAccepted, models.OfferResponse{
		JobID:    job.ID,
		Position: position,
	})
}
