package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/yourusername/tunepull/internal/app"
)

// RunHandler controls and observes orchestrator runs
type RunHandler struct {
	orch   *app.Orchestrator
	logger *zap.Logger
}

// NewRunHandler creates a new run handler
func NewRunHandler(orch *app.Orchestrator, logger *zap.Logger) *RunHandler {
	return &RunHandler{orch: orch, logger: logger}
}

// StartRun handles POST /api/v1/runs
func (h *RunHandler) StartRun(c *gin.Context) {
	if err := h.orch.StartRun(); err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"message": "run started"})
}

// GetCurrentRun handles GET /api/v1/runs/current
func (h *RunHandler) GetCurrentRun(c *gin.Context) {
	c.JSON(http.StatusOK, h.orch.Status())
}

// CancelCurrentRun handles DELETE /api/v1/runs/current
func (h *RunHandler) CancelCurrentRun(c *gin.Context) {
	if !h.orch.IsRunning() {
		c.JSON(http.StatusNotFound, gin.H{"error": "no run in progress"})
		return
	}

	h.orch.RequestCancel()
	c.JSON(http.StatusAccepted, gin.H{"message": "cancel requested"})
}
