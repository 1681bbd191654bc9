package logger

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogCategory represents different log categories
type LogCategory string

const (
	CategoryDownload  LogCategory = "download"   // Raw backend transcript (plain text)
	CategoryQueue     LogCategory = "queue"      // Queue and run lifecycle events (JSON)
	CategoryError     LogCategory = "error"      // Application errors (JSON)
	CategoryWebAccess LogCategory = "web-access" // HTTP access log (JSON)
)

// MultiLogger provides categorized logging with separate dated output files.
// Queue, error, and web-access categories are structured JSON; the download
// category is the raw stdout/stderr transcript of backend invocations, which
// the live log tail follows.
type MultiLogger struct {
	loggers     map[LogCategory]*zap.Logger
	general     *zap.Logger
	config      MultiLoggerConfig
	mu          sync.RWMutex
	downloadMu  sync.Mutex
	downloadLog *os.File
	currentDate string
}

// MultiLoggerConfig contains configuration for multi-output logging
type MultiLoggerConfig struct {
	Level   string // debug, info, warn, error
	Format  string // json, console (console logger only)
	LogsDir string // Directory for log files
}

// NewMultiLogger creates a new multi-output logger
func NewMultiLogger(config MultiLoggerConfig) (*MultiLogger, error) {
	if config.LogsDir == "" {
		return nil, fmt.Errorf("logs_dir must be specified")
	}

	if err := os.MkdirAll(config.LogsDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create logs directory: %w", err)
	}

	ml := &MultiLogger{
		loggers:     make(map[LogCategory]*zap.Logger),
		config:      config,
		currentDate: time.Now().Format("20060102"),
	}

	level := ParseLevel(config.Level)

	for _, category := range []LogCategory{CategoryQueue, CategoryWebAccess} {
		structured, err := ml.createStructuredLogger(category, level)
		if err != nil {
			return nil, fmt.Errorf("failed to create %s logger: %w", category, err)
		}
		ml.loggers[category] = structured
	}

	errorLogger, err := ml.createStructuredLogger(CategoryError, zapcore.ErrorLevel)
	if err != nil {
		return nil, fmt.Errorf("failed to create error logger: %w", err)
	}
	ml.loggers[CategoryError] = errorLogger

	general, err := New(Config{
		Level:      config.Level,
		Format:     config.Format,
		OutputPath: "stdout",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create console logger: %w", err)
	}
	ml.general = general

	downloadLog, err := ml.openDownloadLog()
	if err != nil {
		return nil, fmt.Errorf("failed to open download log: %w", err)
	}
	ml.downloadLog = downloadLog

	return ml, nil
}

// createStructuredLogger creates a JSON-formatted logger for a category
func (ml *MultiLogger) createStructuredLogger(category LogCategory, level zapcore.Level) (*zap.Logger, error) {
	// Keys match LogEntry's JSON tags so LogReader can parse these files back.
	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.TimeKey = "timestamp"
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderConfig.MessageKey = "message"
	encoderConfig.LevelKey = "level"
	encoderConfig.CallerKey = ""

	encoder := zapcore.NewJSONEncoder(encoderConfig)

	logPath := ml.getCategoryLogPath(category)
	file, err := os.OpenFile(logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, err
	}

	writer := zapcore.AddSync(file)
	core := zapcore.NewCore(encoder, writer, level)

	return zap.New(core), nil
}

// getCategoryLogPath generates a log file path for a category with current date
func (ml *MultiLogger) getCategoryLogPath(category LogCategory) string {
	dateStr := time.Now().Format("20060102")
	filename := fmt.Sprintf("%s-%s.log", category, dateStr)
	return filepath.Join(ml.config.LogsDir, filename)
}

func (ml *MultiLogger) openDownloadLog() (*os.File, error) {
	return os.OpenFile(ml.getCategoryLogPath(CategoryDownload), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
}

// GetLogsDir returns the logs directory path
func (ml *MultiLogger) GetLogsDir() string {
	return ml.config.LogsDir
}

// GetLogger returns the structured logger for a specific category
func (ml *MultiLogger) GetLogger(category LogCategory) *zap.Logger {
	ml.mu.RLock()
	defer ml.mu.RUnlock()

	if logger, ok := ml.loggers[category]; ok {
		return logger
	}
	return ml.loggers[CategoryError]
}

// Queue returns the queue logger (JSON format)
func (ml *MultiLogger) Queue() *zap.Logger {
	return ml.GetLogger(CategoryQueue)
}

// Error returns the error logger (JSON format)
func (ml *MultiLogger) Error() *zap.Logger {
	return ml.GetLogger(CategoryError)
}

// WebAccess returns the HTTP access logger (JSON format)
func (ml *MultiLogger) WebAccess() *zap.Logger {
	return ml.GetLogger(CategoryWebAccess)
}

// General returns the console logger
func (ml *MultiLogger) General() *zap.Logger {
	return ml.general
}

// LogAppError logs an application-level error (Go errors, panics)
func (ml *MultiLogger) LogAppError(msg string, fields ...zap.Field) {
	ml.Error().Error(msg, fields...)
}

// LogError logs an error to both the category logger and the error log
func (ml *MultiLogger) LogError(category LogCategory, msg string, fields ...zap.Field) {
	if category != CategoryError && category != CategoryDownload {
		ml.GetLogger(category).Error(msg, fields...)
	}
	ml.Error().Error(msg, fields...)
}

// LogQueueEvent logs a queue or run lifecycle event with structured data
func (ml *MultiLogger) LogQueueEvent(event string, fields ...zap.Field) {
	ml.Queue().Info(event, fields...)
}

// WriteDownloadHeader writes the attempt start marker and command line to
// the raw download transcript
func (ml *MultiLogger) WriteDownloadHeader(trackKey, cmdLine string) {
	timestamp := time.Now().Format("2006-01-02 15:04:05")
	ml.writeRaw(fmt.Sprintf("\n=== [%s] Download: %s ===\n$ %s\n", timestamp, trackKey, cmdLine))
}

// WriteRawDownloadLine writes one line of backend output to the transcript
func (ml *MultiLogger) WriteRawDownloadLine(line string) {
	ml.writeRaw(line + "\n")
}

// WriteRawErrorLine writes one line of backend stderr to the transcript and
// mirrors it into the error log
func (ml *MultiLogger) WriteRawErrorLine(trackKey, line string) {
	ml.writeRaw("[STDERR] " + line + "\n")
	ml.Error().Error("Backend stderr",
		zap.String("track", trackKey),
		zap.String("line", line))
}

// WriteDownloadFooter writes the attempt end marker to the transcript
func (ml *MultiLogger) WriteDownloadFooter(success bool, message string) {
	timestamp := time.Now().Format("2006-01-02 15:04:05")
	status := "SUCCESS"
	if !success {
		status = "FAILED"
	}
	ml.writeRaw(fmt.Sprintf("[%s] %s: %s\n=== END ===\n\n", timestamp, status, message))
}

func (ml *MultiLogger) writeRaw(s string) {
	ml.downloadMu.Lock()
	defer ml.downloadMu.Unlock()
	if ml.downloadLog == nil {
		return
	}
	ml.downloadLog.WriteString(s)
}

// Sync flushes all loggers
func (ml *MultiLogger) Sync() error {
	ml.mu.RLock()
	defer ml.mu.RUnlock()

	var lastErr error
	for _, logger := range ml.loggers {
		if err := logger.Sync(); err != nil {
			lastErr = err
		}
	}
	if err := ml.general.Sync(); err != nil {
		lastErr = err
	}
	return lastErr
}

// Close flushes all loggers and closes the download transcript
func (ml *MultiLogger) Close() error {
	lastErr := ml.Sync()

	ml.downloadMu.Lock()
	defer ml.downloadMu.Unlock()
	if ml.downloadLog != nil {
		if err := ml.downloadLog.Close(); err != nil {
			lastErr = err
		}
		ml.downloadLog = nil
	}
	return lastErr
}
