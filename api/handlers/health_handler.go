package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yourusername/tunepull/internal/app"
	"github.com/yourusername/tunepull/internal/queue"
)

// HealthHandler handles health check requests
type HealthHandler struct {
	orch  *app.Orchestrator
	store *queue.Store
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(orch *app.Orchestrator, store *queue.Store) *HealthHandler {
	return &HealthHandler{orch: orch, store: store}
}

// HealthResponse represents a health check response
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Run     struct {
		Running bool `json:"running"`
	} `json:"run"`
	Queue struct {
		Pending int `json:"pending"`
	} `json:"queue"`
}

// Health handles GET /health
func (h *HealthHandler) Health(c *gin.Context) {
	response := HealthResponse{
		Status:  "ok",
		Version: "1.0.0",
	}
	response.Run.Running = h.orch.IsRunning()
	response.Queue.Pending = h.store.Len()

	c.JSON(http.StatusOK, response)
}

// Ready handles GET /ready
func (h *HealthHandler) Ready(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}
