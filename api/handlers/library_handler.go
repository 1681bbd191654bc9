package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/yourusername/tunepull/internal/app"
	"github.com/yourusername/tunepull/internal/library"
)

// LibraryHandler browses the music directory and runs duplicate resolution
type LibraryHandler struct {
	orch     *app.Orchestrator
	resolver *library.Resolver
	musicDir string
	logger   *zap.Logger
}

// NewLibraryHandler creates a new library handler
func NewLibraryHandler(orch *app.Orchestrator, resolver *library.Resolver, musicDir string, logger *zap.Logger) *LibraryHandler {
	return &LibraryHandler{
		orch:     orch,
		resolver: resolver,
		musicDir: musicDir,
		logger:   logger,
	}
}

// ListFiles handles GET /api/v1/library
func (h *LibraryHandler) ListFiles(c *gin.Context) {
	entries, err := library.List(h.musicDir)
	if err != nil {
		h.logger.Error("Failed to list library", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"count": len(entries),
		"files": entries,
	})
}

// ServeFile handles GET /api/v1/library/*name
func (h *LibraryHandler) ServeFile(c *gin.Context) {
	name := strings.TrimPrefix(c.Param("name"), "/")

	path, err := library.Resolve(h.musicDir, name)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}

	c.File(path)
}

// DeleteFile handles DELETE /api/v1/library/*name
func (h *LibraryHandler) DeleteFile(c *gin.Context) {
	name := strings.TrimPrefix(c.Param("name"), "/")

	if err := library.Delete(h.musicDir, name); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "file deleted"})
}

// Dedupe handles POST /api/v1/library/dedupe. The pass never runs while a
// download run is writing into the same directory.
func (h *LibraryHandler) Dedupe(c *gin.Context) {
	if h.orch.IsRunning() {
		c.JSON(http.StatusConflict, gin.H{"error": "cannot deduplicate while a run is in progress"})
		return
	}

	report, err := h.resolver.Resolve(h.musicDir)
	if err != nil {
		h.logger.Error("Duplicate resolution failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, report)
}
