package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"tradesync/internal/models"
	"tradesync/internal/queue"
	"tradesync/internal/repository"
	"tradesync/internal/schema"
)

type SyncHandler struct {
	Queue      *queue.Queue
	Store      repository.Storage
	AdminToken string
	Logger     *zap.Logger
}

func (h *SyncHandler) Register(r *gin.Engine) {
	group := r.Group("/v1/sync")
	group.POST("", AdminAuth(h.AdminToken), h.trigger)
	group.GET("/progress", h.progress)
	group.GET("/checkpoints", h.checkpoints)
	group.GET("/jobs", h.jobs)
}

type triggerRequest struct {
	Collection  string   `json:"collection"`
	Collections []string `json:"collections"`
}

// trigger enqueues sync jobs; the configured cron drain (or an explicit
// drain call) picks them up. Defaults to the catch-all collection.
func (h *SyncHandler) trigger(c *gin.Context) {
	if h.Queue == nil {
		Error(c, http.StatusInternalServerError, "queue unavailable", nil)
		return
	}
	var req triggerRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			Error(c, http.StatusBadRequest, "invalid request body", nil)
			return
		}
	}
	names := req.Collections
	if len(names) == 0 {
		names = []string{req.Collection}
	}

	queued := make([]gin.H, 0, len(names))
	for _, raw := range names {
		name := strings.TrimSpace(raw)
		if name == "" {
			name = models.JobCollectionAll
		}
		id, err := h.Queue.Add(c.Request.Context(), name)
		if err != nil {
			switch {
			case errors.Is(err, schema.ErrUnknownCollection):
				Error(c, http.StatusNotFound, err.Error(), nil)
			case errors.Is(err, schema.ErrCollectionNotAllowed):
				Error(c, http.StatusForbidden, err.Error(), nil)
			default:
				if h.Logger != nil {
					h.Logger.Warn("enqueue sync failed", zap.Error(err))
				}
				Error(c, http.StatusInternalServerError, err.Error(), nil)
			}
			return
		}
		queued = append(queued, gin.H{"job_id": id, "collection": name})
	}
	if len(queued) == 1 {
		Ok(c, queued[0], nil)
		return
	}
	Ok(c, gin.H{"jobs": queued}, nil)
}

func (h *SyncHandler) progress(c *gin.Context) {
	if h.Queue == nil {
		Error(c, http.StatusInternalServerError, "queue unavailable", nil)
		return
	}
	value, err := h.Queue.Progress(c.Request.Context())
	if err != nil {
		Error(c, http.StatusInternalServerError, err.Error(), nil)
		return
	}
	Ok(c, gin.H{"progress": value}, nil)
}

func (h *SyncHandler) checkpoints(c *gin.Context) {
	if h.Store == nil {
		Error(c, http.StatusInternalServerError, "storage unavailable", nil)
		return
	}
	cps, err := h.Store.ListCheckpoints(c.Request.Context())
	if err != nil {
		Error(c, http.StatusInternalServerError, err.Error(), nil)
		return
	}
	Ok(c, cps, map[string]any{"total": len(cps)})
}

func (h *SyncHandler) jobs(c *gin.Context) {
	if h.Store == nil {
		Error(c, http.StatusInternalServerError, "storage unavailable", nil)
		return
	}
	states := []string{models.JobStateNew, models.JobStateLocked, models.JobStateError}
	if raw := strings.TrimSpace(c.Query("state")); raw != "" {
		states = strings.Split(strings.ToUpper(raw), ",")
	}
	jobs, err := h.Store.ListJobsByStates(c.Request.Context(), states, intQuery(c, "limit", 0))
	if err != nil {
		Error(c, http.StatusInternalServerError, err.Error(), nil)
		return
	}
	Ok(c, jobs, map[string]any{"total": len(jobs)})
}
