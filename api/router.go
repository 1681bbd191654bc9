package api

import (
	"io/fs"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yourusername/tunepull/api/handlers"
	"github.com/yourusername/tunepull/api/middleware"
	"github.com/yourusername/tunepull/internal/app"
	"github.com/yourusername/tunepull/internal/domain"
	"github.com/yourusername/tunepull/internal/library"
	"github.com/yourusername/tunepull/internal/queue"
	"github.com/yourusername/tunepull/pkg/logger"
	"github.com/yourusername/tunepull/web"
)

// Deps carries the collaborators the HTTP surface exposes
type Deps struct {
	Orchestrator *app.Orchestrator
	Store        *queue.Store
	Ledger       *queue.Ledger
	History      domain.HistoryRepository // nil when history is disabled
	Resolver     *library.Resolver
	Config       *domain.Config
	LogAdapter   *logger.LoggerAdapter
	LogsDir      string
	Shutdown     func() // requests a graceful server stop; nil disables the endpoint
}

// SetupRouter sets up the HTTP router with the API surface and the embedded
// dashboard
func SetupRouter(deps Deps) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()

	// Middleware
	router.Use(middleware.LoggerWithAdapter(deps.LogAdapter))
	router.Use(middleware.RecoveryWithAdapter(deps.LogAdapter))
	router.Use(middleware.CORS())

	log := deps.LogAdapter.GetSingleLogger()

	// Health endpoints
	healthHandler := handlers.NewHealthHandler(deps.Orchestrator, deps.Store)
	router.GET("/health", healthHandler.Health)
	router.GET("/ready", healthHandler.Ready)

	// API v1 routes
	v1 := router.Group("/api/v1")
	{
		trackHandler := handlers.NewTrackHandler(deps.Orchestrator, log)
		tracks := v1.Group("/tracks")
		{
			tracks.POST("", trackHandler.AddTracks)
			tracks.POST("/import", trackHandler.ImportCSV)
		}

		queueHandler := handlers.NewQueueHandler(deps.Orchestrator, deps.Store, deps.Ledger, log)
		v1.GET("/queue", queueHandler.GetQueue)
		v1.DELETE("/queue", queueHandler.ClearQueue)
		v1.GET("/failed", queueHandler.GetFailed)
		v1.POST("/failed/retry", queueHandler.RetryFailed)

		runHandler := handlers.NewRunHandler(deps.Orchestrator, log)
		runs := v1.Group("/runs")
		{
			runs.POST("", runHandler.StartRun)
			runs.GET("/current", runHandler.GetCurrentRun)
			runs.DELETE("/current", runHandler.CancelCurrentRun)
		}

		historyHandler := handlers.NewHistoryHandler(deps.History, log)
		history := v1.Group("/history")
		{
			history.GET("", historyHandler.GetHistory)
			history.GET("/stats", historyHandler.GetStats)
		}

		libraryHandler := handlers.NewLibraryHandler(deps.Orchestrator, deps.Resolver, deps.Config.Download.MusicDir, log)
		v1.GET("/library", libraryHandler.ListFiles)
		v1.POST("/library/dedupe", libraryHandler.Dedupe)
		v1.GET("/library/files/*name", libraryHandler.ServeFile)
		v1.DELETE("/library/files/*name", libraryHandler.DeleteFile)

		logHandler := handlers.NewLogHandler(deps.LogsDir)
		logs := v1.Group("/logs")
		{
			logs.GET("/categories", logHandler.GetCategories)
			logs.GET("/:category", logHandler.GetLogs)
			logs.GET("/:category/search", logHandler.SearchLogs)
			logs.GET("/:category/export", logHandler.ExportLogs)
		}

		streamHandler := handlers.NewLogStreamHandler(deps.LogsDir, log)
		v1.GET("/ws/logs", streamHandler.Stream)

		if deps.Shutdown != nil {
			v1.POST("/server/stop", func(c *gin.Context) {
				c.JSON(http.StatusAccepted, gin.H{"message": "server stopping"})
				deps.Shutdown()
			})
		}
	}

	// Embedded single-page dashboard. index.html is served directly to
	// avoid the http.FileServer redirect on the index name.
	staticFS := web.GetStaticFS()
	router.StaticFS("/static", http.FS(staticFS))
	router.GET("/", func(c *gin.Context) {
		data, err := fs.ReadFile(staticFS, "index.html")
		if err != nil {
			c.String(http.StatusInternalServerError, "dashboard unavailable: %v", err)
			return
		}
		c.Data(http.StatusOK, "text/html; charset=utf-8", data)
	})
	router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	})

	return router
}
