package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/yourusername/tunepull/internal/domain"
)

// HistoryHandler exposes the download history repository
type HistoryHandler struct {
	history domain.HistoryRepository
	logger  *zap.Logger
}

// NewHistoryHandler creates a new history handler. The repository may be nil
// when history is disabled.
func NewHistoryHandler(history domain.HistoryRepository, logger *zap.Logger) *HistoryHandler {
	return &HistoryHandler{history: history, logger: logger}
}

// GetHistory handles GET /api/v1/history
func (h *HistoryHandler) GetHistory(c *gin.Context) {
	if h.history == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "history is disabled"})
		return
	}

	var records []*domain.DownloadRecord
	var err error
	if runID := c.Query("run_id"); runID != "" {
		records, err = h.history.FindByRun(runID)
	} else {
		limit, convErr := strconv.Atoi(c.DefaultQuery("limit", "100"))
		if convErr != nil || limit < 0 {
			limit = 100
		}
		records, err = h.history.FindRecent(limit)
	}
	if err != nil {
		h.logger.Error("Failed to read history", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"count":   len(records),
		"records": records,
	})
}

// GetStats handles GET /api/v1/history/stats
func (h *HistoryHandler) GetStats(c *gin.Context) {
	if h.history == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "history is disabled"})
		return
	}

	stats, err := h.history.GetStats()
	if err != nil {
		h.logger.Error("Failed to read history stats", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, stats)
}
