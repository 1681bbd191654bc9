package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/yourusername/tunepull/pkg/logger"
	"go.uber.org/zap"
)

const (
	// streamBacklog is how many of today's entries a client receives on
	// connect before live tailing starts.
	streamBacklog      = 50
	streamPingInterval = 30 * time.Second
	streamWriteWait    = 10 * time.Second
)

// LogStreamHandler streams a log category to WebSocket clients. The
// dashboard uses it to tail the raw download transcript while a run is
// in progress.
type LogStreamHandler struct {
	logReader *logger.LogReader
	logger    *zap.Logger
	upgrader  websocket.Upgrader
}

// NewLogStreamHandler creates a WebSocket log streaming handler.
func NewLogStreamHandler(logsDir string, log *zap.Logger) *LogStreamHandler {
	return &LogStreamHandler{
		logReader: logger.NewLogReader(logsDir),
		logger:    log,
		upgrader: websocket.Upgrader{
			// The dashboard is served from the same origin and the API has
			// no auth layer, so cross-origin upgrades are not restricted.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Stream handles GET /api/v1/ws/logs?category=<name>. The category
// defaults to the download transcript.
func (h *LogStreamHandler) Stream(c *gin.Context) {
	name := c.DefaultQuery("category", string(logger.CategoryDownload))
	valid := false
	for _, info := range logCategories {
		if info.Name == name {
			valid = true
			break
		}
	}
	if !valid {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown log category: " + name})
		return
	}
	category := logger.LogCategory(name)

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	h.logger.Info("log stream client connected",
		zap.String("category", name),
		zap.String("remote_addr", c.Request.RemoteAddr))

	// Replay a short backlog so the client is not staring at an empty
	// pane until the next attempt writes something.
	backlog, err := h.logReader.ReadTodayLogs(category, streamBacklog)
	if err == nil {
		for _, entry := range backlog {
			if err := h.writeEntry(conn, entry); err != nil {
				return
			}
		}
	}

	entryChan := make(chan logger.LogEntry, 100)
	stopChan := make(chan struct{})
	defer close(stopChan)

	go func() {
		if err := h.logReader.TailLogs(category, entryChan, stopChan); err != nil {
			h.logger.Error("log tail failed", zap.Error(err))
		}
	}()

	// Drain client frames so close and pong messages are processed.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(streamPingInterval)
	defer ticker.Stop()

	for {
		select {
		case entry := <-entryChan:
			if err := h.writeEntry(conn, entry); err != nil {
				return
			}
		case <-ticker.C:
			deadline := time.Now().Add(streamWriteWait)
			if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				return
			}
		case <-closed:
			return
		}
	}
}

func (h *LogStreamHandler) writeEntry(conn *websocket.Conn, entry logger.LogEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		h.logger.Error("marshal log entry", zap.Error(err))
		return nil
	}
	conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
	return conn.WriteMessage(websocket.TextMessage, data)
}
