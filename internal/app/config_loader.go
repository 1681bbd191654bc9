package app

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/yourusername/tunepull/internal/backend"
	"github.com/yourusername/tunepull/internal/domain"
)

// LoadConfig loads configuration from file and environment
func LoadConfig(configPath string) (*domain.Config, error) {
	// Start with default config
	config := domain.DefaultConfig()

	// Set up viper
	v := viper.New()
	v.SetConfigType("yaml")

	// If config path is provided, use it
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		// Look for config in standard locations
		v.SetConfigName("config")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.tunepull")
		v.AddConfigPath("/etc/tunepull")
	}

	// Read environment variables
	v.SetEnvPrefix("TUNEPULL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Try to read config file
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		// Config file not found, use defaults
	}

	// Unmarshal into config struct
	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	// Expand environment variables in paths
	config = expandPaths(config)

	// Validate config
	if err := validateConfig(config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// expandPaths expands environment variables in path configurations
func expandPaths(config *domain.Config) *domain.Config {
	config.Download.MusicDir = expandPath(config.Download.MusicDir)
	config.Download.QueueFile = expandPath(config.Download.QueueFile)
	config.Download.FailedFile = expandPath(config.Download.FailedFile)
	config.History.DatabasePath = expandPath(config.History.DatabasePath)
	config.Logging.LogsDir = expandPath(config.Logging.LogsDir)

	if config.Logging.OutputPath != "stdout" && config.Logging.OutputPath != "stderr" {
		config.Logging.OutputPath = expandPath(config.Logging.OutputPath)
	}

	return config
}

// expandPath expands environment variables and ~ in paths
func expandPath(path string) string {
	// Expand environment variables
	path = os.ExpandEnv(path)

	// Expand home directory
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err == nil {
			path = filepath.Join(home, path[2:])
		}
	}

	// Replace $HOME
	if strings.Contains(path, "$HOME") {
		home, err := os.UserHomeDir()
		if err == nil {
			path = strings.ReplaceAll(path, "$HOME", home)
		}
	}

	return path
}

// validateConfig validates the configuration
func validateConfig(config *domain.Config) error {
	if config.Server.Port < 1 || config.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", config.Server.Port)
	}

	if config.Download.MusicDir == "" {
		return fmt.Errorf("music directory not configured")
	}

	if config.Download.QueueFile == "" {
		return fmt.Errorf("queue file not configured")
	}

	if config.Download.FailedFile == "" {
		return fmt.Errorf("failed list file not configured")
	}

	if config.Download.Workers < 1 {
		return fmt.Errorf("workers must be at least 1")
	}

	if config.Download.TrackTimeout <= 0 {
		return fmt.Errorf("track timeout must be positive")
	}

	if config.Download.ItemDelay < 0 {
		return fmt.Errorf("item delay cannot be negative")
	}

	if config.Backend.Binary == "" {
		return fmt.Errorf("backend binary not configured")
	}

	if _, err := backend.ResolveVariants(config.Backend.Variants); err != nil {
		return err
	}

	if config.Logging.Level == "" {
		config.Logging.Level = "info"
	}

	return nil
}

// SaveConfig saves configuration to file
func SaveConfig(config *domain.Config, path string) error {
	v := viper.New()
	v.SetConfigType("yaml")

	// Set leaf keys explicitly so the file reads back through the same
	// mapstructure tags
	v.Set("server.host", config.Server.Host)
	v.Set("server.port", config.Server.Port)
	v.Set("download.music_dir", config.Download.MusicDir)
	v.Set("download.queue_file", config.Download.QueueFile)
	v.Set("download.failed_file", config.Download.FailedFile)
	v.Set("download.workers", config.Download.Workers)
	v.Set("download.track_timeout", config.Download.TrackTimeout.String())
	v.Set("download.item_delay", config.Download.ItemDelay.String())
	v.Set("download.dedupe_after_run", config.Download.DedupeAfterRun)
	v.Set("download.auto_run", config.Download.AutoRun)
	v.Set("backend.binary", config.Backend.Binary)
	v.Set("backend.extra_args", config.Backend.ExtraArgs)
	if len(config.Backend.Variants) > 0 {
		variants := make([]map[string]interface{}, len(config.Backend.Variants))
		for i, variant := range config.Backend.Variants {
			variants[i] = map[string]interface{}{"name": variant.Name, "args": variant.Args}
		}
		v.Set("backend.variants", variants)
	}
	v.Set("history.database_path", config.History.DatabasePath)
	v.Set("notification.enabled", config.Notification.Enabled)
	v.Set("notification.sound", config.Notification.Sound)
	v.Set("notification.method", config.Notification.Method)
	v.Set("logging.level", config.Logging.Level)
	v.Set("logging.format", config.Logging.Format)
	v.Set("logging.output_path", config.Logging.OutputPath)
	v.Set("logging.logs_dir", config.Logging.LogsDir)

	// Ensure directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}

	// Write config file
	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}

	return nil
}
