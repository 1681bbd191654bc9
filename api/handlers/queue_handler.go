package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/yourusername/tunepull/internal/app"
	"github.com/yourusername/tunepull/internal/queue"
)

// QueueHandler exposes the pending queue and the failure ledger
type QueueHandler struct {
	orch   *app.Orchestrator
	store  *queue.Store
	ledger *queue.Ledger
	logger *zap.Logger
}

// NewQueueHandler creates a new queue handler
func NewQueueHandler(orch *app.Orchestrator, store *queue.Store, ledger *queue.Ledger, logger *zap.Logger) *QueueHandler {
	return &QueueHandler{orch: orch, store: store, ledger: ledger, logger: logger}
}

// GetQueue handles GET /api/v1/queue
func (h *QueueHandler) GetQueue(c *gin.Context) {
	// Pick up external edits to the queue file, but never reload under a
	// running orchestrator (a reload would reset in-flight claims)
	if !h.orch.IsRunning() {
		if err := h.store.Load(); err != nil {
			h.logger.Error("Failed to load queue", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
	}

	tracks := h.store.Snapshot()
	keys := make([]string, len(tracks))
	for i, track := range tracks {
		keys[i] = track.Key()
	}

	c.JSON(http.StatusOK, gin.H{
		"count":  len(keys),
		"tracks": keys,
	})
}

// ClearQueue handles DELETE /api/v1/queue
func (h *QueueHandler) ClearQueue(c *gin.Context) {
	if h.orch.IsRunning() {
		c.JSON(http.StatusConflict, gin.H{"error": "cannot clear the queue while a run is in progress"})
		return
	}

	if err := h.store.Clear(); err != nil {
		h.logger.Error("Failed to clear queue", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "queue cleared"})
}

// GetFailed handles GET /api/v1/failed
func (h *QueueHandler) GetFailed(c *gin.Context) {
	entries, err := h.ledger.Load()
	if err != nil {
		h.logger.Error("Failed to load failure ledger", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	type failedTrack struct {
		Track  string `json:"track"`
		Reason string `json:"reason,omitempty"`
	}
	failed := make([]failedTrack, len(entries))
	for i, entry := range entries {
		failed[i] = failedTrack{Track: entry.Track.Key(), Reason: entry.Reason}
	}

	c.JSON(http.StatusOK, gin.H{
		"count":  len(failed),
		"failed": failed,
	})
}

// RetryFailedRequest optionally names the tracks to requeue; empty means all
type RetryFailedRequest struct {
	Tracks []string `json:"tracks"`
}

// RetryFailed handles POST /api/v1/failed/retry
func (h *QueueHandler) RetryFailed(c *gin.Context) {
	var req RetryFailedRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	requeued, err := h.orch.RequeueFailed(req.Tracks)
	if err != nil {
		if h.orch.IsRunning() {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		h.logger.Error("Failed to requeue tracks", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"requeued": requeued})
}
