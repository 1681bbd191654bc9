package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/yourusername/tunepull/internal/app"
	"github.com/yourusername/tunepull/internal/domain"
)

// TrackHandler handles enqueueing tracks directly or from a CSV upload
type TrackHandler struct {
	orch   *app.Orchestrator
	logger *zap.Logger
}

// NewTrackHandler creates a new track handler
func NewTrackHandler(orch *app.Orchestrator, logger *zap.Logger) *TrackHandler {
	return &TrackHandler{orch: orch, logger: logger}
}

// AddTracksRequest represents a request to enqueue tracks by display key
type AddTracksRequest struct {
	Tracks []string `json:"tracks" binding:"required,min=1"`
}

// AddTracks handles POST /api/v1/tracks
func (h *TrackHandler) AddTracks(c *gin.Context) {
	var req AddTracksRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var tracks []domain.Track
	var invalid []string
	for _, line := range req.Tracks {
		track, err := domain.ParseTrack(line)
		if err != nil {
			invalid = append(invalid, line)
			continue
		}
		tracks = append(tracks, track)
	}
	if len(tracks) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no valid tracks in request"})
		return
	}

	added, err := h.orch.Enqueue(tracks)
	if err != nil {
		h.logger.Error("Failed to enqueue tracks", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"added":   added,
		"skipped": len(tracks) - added,
		"invalid": invalid,
	})
}

// ImportCSV handles POST /api/v1/tracks/import with a multipart playlist CSV
func (h *TrackHandler) ImportCSV(c *gin.Context) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing CSV upload in form field 'file'"})
		return
	}

	f, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	defer f.Close()

	tracks, err := app.ImportCSV(f)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	added, err := h.orch.Enqueue(tracks)
	if err != nil {
		h.logger.Error("Failed to enqueue imported tracks", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"parsed":  len(tracks),
		"added":   added,
		"skipped": len(tracks) - added,
	})
}
