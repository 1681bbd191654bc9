package logger

import (
	"fmt"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config describes the console logger every tunepull process carries. The
// per-category dated files are MultiLogger's concern; this one is what a
// terminal or service log sees.
type Config struct {
	Level      string // debug, info, warn, error
	Format     string // json, console
	OutputPath string // stdout, stderr, or a file path
}

// New builds a zap logger from the config
func New(config Config) (*zap.Logger, error) {
	sink, err := newSink(config.OutputPath)
	if err != nil {
		return nil, fmt.Errorf("open log output %q: %w", config.OutputPath, err)
	}

	core := zapcore.NewCore(newEncoder(config.Format), sink, ParseLevel(config.Level))
	return zap.New(core, zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel)), nil
}

// ParseLevel maps a config level string to a zap level. Unknown or empty
// strings fall back to info rather than failing startup.
func ParseLevel(s string) zapcore.Level {
	level, err := zapcore.ParseLevel(s)
	if err != nil {
		return zapcore.InfoLevel
	}
	return level
}

// newEncoder returns a JSON encoder for "json" and a colored console encoder
// otherwise. Both stamp ISO8601 timestamps under the key the log reader and
// dashboard expect.
func newEncoder(format string) zapcore.Encoder {
	if format == "json" {
		cfg := zap.NewProductionEncoderConfig()
		cfg.TimeKey = "timestamp"
		cfg.EncodeTime = zapcore.ISO8601TimeEncoder
		return zapcore.NewJSONEncoder(cfg)
	}

	cfg := zap.NewDevelopmentEncoderConfig()
	cfg.TimeKey = "timestamp"
	cfg.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
	return zapcore.NewConsoleEncoder(cfg)
}

// newSink resolves the configured output path. Files are opened for append
// so restarts extend the log instead of truncating it.
func newSink(path string) (zapcore.WriteSyncer, error) {
	switch path {
	case "stdout", "":
		return zapcore.AddSync(os.Stdout), nil
	case "stderr":
		return zapcore.AddSync(os.Stderr), nil
	default:
		file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			return nil, err
		}
		return zapcore.AddSync(file), nil
	}
}
