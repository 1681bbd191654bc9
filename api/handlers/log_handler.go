package handlers

import (
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/yourusername/tunepull/pkg/logger"
)

// categoryInfo describes one of the per-category log files under the logs
// directory. The download category is the raw backend transcript; the rest
// are structured JSON lines.
type categoryInfo struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Structured  bool   `json:"structured"`
}

var logCategories = []categoryInfo{
	{string(logger.CategoryDownload), "raw backend output for every download attempt", false},
	{string(logger.CategoryQueue), "queue and run lifecycle events", true},
	{string(logger.CategoryError), "per-track failure records", true},
	{string(logger.CategoryWebAccess), "API request log", true},
}

// LogHandler serves the per-category log files over the REST API.
type LogHandler struct {
	logReader *logger.LogReader
}

// NewLogHandler creates a new log handler
func NewLogHandler(logsDir string) *LogHandler {
	return &LogHandler{
		logReader: logger.NewLogReader(logsDir),
	}
}

// logCategory validates the :category path parameter. On failure it writes
// the 400 response itself and reports ok=false.
func logCategory(c *gin.Context) (logger.LogCategory, bool) {
	name := c.Param("category")
	for _, info := range logCategories {
		if info.Name == name {
			return logger.LogCategory(name), true
		}
	}
	c.JSON(http.StatusBadRequest, gin.H{"error": "unknown log category: " + name})
	return "", false
}

// logDate parses the optional ?date=YYYY-MM-DD parameter, defaulting to
// today. On failure it writes the 400 response itself and reports ok=false.
func logDate(c *gin.Context) (time.Time, bool) {
	dateStr := c.Query("date")
	if dateStr == "" {
		return time.Now(), true
	}
	date, err := time.Parse("2006-01-02", dateStr)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid date format, use YYYY-MM-DD"})
		return time.Time{}, false
	}
	return date, true
}

// logLimit clamps the optional ?limit= parameter to [0, 1000].
func logLimit(c *gin.Context) int {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "100"))
	if err != nil || limit < 0 {
		return 100
	}
	if limit > 1000 {
		return 1000
	}
	return limit
}

// GetLogs handles GET /api/v1/logs/:category
func (h *LogHandler) GetLogs(c *gin.Context) {
	category, ok := logCategory(c)
	if !ok {
		return
	}
	date, ok := logDate(c)
	if !ok {
		return
	}

	entries, err := h.logReader.ReadLogs(category, date, logLimit(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read logs"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"category": category,
		"date":     date.Format("2006-01-02"),
		"count":    len(entries),
		"entries":  entries,
	})
}

// SearchLogs handles GET /api/v1/logs/:category/search
func (h *LogHandler) SearchLogs(c *gin.Context) {
	category, ok := logCategory(c)
	if !ok {
		return
	}

	query := c.Query("q")
	if query == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "query parameter 'q' is required"})
		return
	}

	date, ok := logDate(c)
	if !ok {
		return
	}

	entries, err := h.logReader.SearchLogs(category, date, query, logLimit(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to search logs"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"category": category,
		"query":    query,
		"count":    len(entries),
		"entries":  entries,
	})
}

// GetCategories handles GET /api/v1/logs/categories
func (h *LogHandler) GetCategories(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"categories": logCategories,
	})
}

// ExportLogs handles GET /api/v1/logs/:category/export
func (h *LogHandler) ExportLogs(c *gin.Context) {
	category, ok := logCategory(c)
	if !ok {
		return
	}
	date, ok := logDate(c)
	if !ok {
		return
	}

	logPath := h.logReader.GetLogPath(category, date)
	if _, err := os.Stat(logPath); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no log file for " + date.Format("2006-01-02")})
		return
	}

	filename := string(category) + "-" + date.Format("20060102") + ".log"
	c.Header("Content-Description", "File Transfer")
	c.Header("Content-Disposition", "attachment; filename="+filename)
	c.Header("Content-Type", "text/plain")
	c.File(logPath)
}
