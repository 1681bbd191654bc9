package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gofrs/flock"
	"go.uber.org/zap"

	"github.com/yourusername/tunepull/api"
	"github.com/yourusername/tunepull/internal/app"
	"github.com/yourusername/tunepull/internal/backend"
	"github.com/yourusername/tunepull/internal/domain"
	"github.com/yourusername/tunepull/internal/infrastructure"
	"github.com/yourusername/tunepull/internal/library"
	"github.com/yourusername/tunepull/internal/queue"
	"github.com/yourusername/tunepull/pkg/logger"
)

var (
	serverMode = flag.Bool("server-mode", false, "Internal flag: run in server mode (called by daemon)")
	foreground = flag.Bool("foreground", false, "Run in the foreground instead of daemonizing")
	configPath = flag.String("config", "", "Path to config file (default: search standard locations)")
)

func main() {
	flag.Parse()

	// If not in server mode, fork ourselves into the background
	if !*serverMode && !*foreground {
		startAsDaemon()
		return
	}

	runServer()
}

// startAsDaemon forks the current process and runs the server in background
func startAsDaemon() {
	execPath, err := os.Executable()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to get executable path: %v\n", err)
		os.Exit(1)
	}

	cwd, err := os.Getwd()
	if err != nil {
		cwd = "/"
	}

	args := []string{"-server-mode"}
	if *configPath != "" {
		args = append(args, "-config", *configPath)
	}
	cmd := exec.Command(execPath, args...)
	cmd.Dir = cwd
	cmd.Env = os.Environ()

	// Detach from parent process
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setsid: true,
	}

	devNull, err := os.OpenFile(os.DevNull, os.O_RDWR, 0)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open /dev/null: %v\n", err)
		os.Exit(1)
	}
	cmd.Stdin = devNull
	cmd.Stdout = devNull
	cmd.Stderr = devNull

	if err := cmd.Start(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to start daemon: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Server started as daemon (PID: %d)\n", cmd.Process.Pid)
	os.Exit(0)
}

func runServer() {
	config, err := app.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	if err := createDirectories(config); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create directories: %v\n", err)
		os.Exit(1)
	}

	// A second server instance would race on the queue file and ledger, so
	// refuse to start while another instance holds the lock.
	lock := flock.New(filepath.Join(config.Logging.LogsDir, "tunepulld.lock"))
	locked, err := lock.TryLock()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to acquire instance lock: %v\n", err)
		os.Exit(1)
	}
	if !locked {
		fmt.Fprintf(os.Stderr, "Another tunepull server is already running (lock: %s)\n", lock.Path())
		os.Exit(1)
	}
	defer lock.Unlock()

	multiLog, err := logger.NewMultiLogger(logger.MultiLoggerConfig{
		Level:   config.Logging.Level,
		LogsDir: config.Logging.LogsDir,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer multiLog.Close()

	logAdapter := logger.NewLoggerAdapter(multiLog)
	log := logAdapter.GetSingleLogger()

	log.Info("Starting tunepull server",
		zap.String("version", "1.0.0"),
		zap.String("host", config.Server.Host),
		zap.Int("port", config.Server.Port),
		zap.String("music_dir", config.Download.MusicDir),
		zap.Int("workers", config.Download.Workers))

	variants, err := backend.ResolveVariants(config.Backend.Variants)
	if err != nil {
		log.Fatal("Invalid search variant configuration", zap.Error(err))
	}

	runner := backend.NewRunner(&config.Backend, config.Download.MusicDir, multiLog)
	if err := runner.Probe(); err != nil {
		log.Warn("Download backend not available, runs will fail until it is installed",
			zap.String("binary", config.Backend.Binary),
			zap.Error(err))
	}

	store := queue.NewStore(config.Download.QueueFile, log)
	if err := store.Load(); err != nil {
		log.Fatal("Failed to load the track queue", zap.Error(err))
	}
	ledger := queue.NewLedger(config.Download.FailedFile, log)

	orch := app.NewOrchestrator(store, ledger, runner, variants, &config.Download, multiLog, log)

	var history domain.HistoryRepository
	if config.History.DatabasePath != "" {
		repo, err := infrastructure.NewSQLiteHistoryRepository(config.History.DatabasePath)
		if err != nil {
			log.Warn("Failed to open history database, continuing without history", zap.Error(err))
		} else {
			defer repo.Close()
			history = repo
			orch.SetHistory(repo)
		}
	}

	notifier := infrastructure.NewNotificationService(&config.Notification, log)
	orch.SetNotifier(notifier)

	resolver := library.NewResolver(log)
	orch.SetResolver(resolver)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	router := api.SetupRouter(api.Deps{
		Orchestrator: orch,
		Store:        store,
		Ledger:       ledger,
		History:      history,
		Resolver:     resolver,
		Config:       config,
		LogAdapter:   logAdapter,
		LogsDir:      config.Logging.LogsDir,
		Shutdown: func() {
			select {
			case quit <- syscall.SIGTERM:
			default:
			}
		},
	})

	addr := fmt.Sprintf("%s:%d", config.Server.Host, config.Server.Port)
	server := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	go func() {
		log.Info("HTTP server listening", zap.String("addr", addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	if config.Download.AutoRun {
		if err := orch.StartRun(); err != nil {
			log.Warn("Auto-run not started", zap.Error(err))
		}
	}

	<-quit
	log.Info("Received shutdown signal")

	log.Info("Shutting down server...")

	// Interrupt the run first so workers release their claims before the
	// process exits; interrupted tracks stay queued for the next run.
	orch.RequestCancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}

	waitForIdle(shutdownCtx, orch)

	log.Info("Server exited")
}

// waitForIdle blocks until the current run has wound down or the context
// expires.
func waitForIdle(ctx context.Context, orch *app.Orchestrator) {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for orch.IsRunning() {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func createDirectories(config *domain.Config) error {
	dirs := []string{
		config.Download.MusicDir,
		filepath.Dir(config.Download.QueueFile),
		filepath.Dir(config.Download.FailedFile),
		config.Logging.LogsDir,
	}
	if config.History.DatabasePath != "" {
		dirs = append(dirs, filepath.Dir(config.History.DatabasePath))
	}

	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	return nil
}
