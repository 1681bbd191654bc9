package domain

import "time"

// Config represents the application configuration
type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	Download     DownloadConfig     `mapstructure:"download"`
	Backend      BackendConfig      `mapstructure:"backend"`
	History      HistoryConfig      `mapstructure:"history"`
	Notification NotificationConfig `mapstructure:"notification"`
	Logging      LoggingConfig      `mapstructure:"logging"`
}

// ServerConfig contains server-related configuration
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// DownloadConfig contains download run configuration
type DownloadConfig struct {
	MusicDir       string        `mapstructure:"music_dir"`
	QueueFile      string        `mapstructure:"queue_file"`
	FailedFile     string        `mapstructure:"failed_file"`
	Workers        int           `mapstructure:"workers"`
	TrackTimeout   time.Duration `mapstructure:"track_timeout"`
	ItemDelay      time.Duration `mapstructure:"item_delay"`
	DedupeAfterRun bool          `mapstructure:"dedupe_after_run"`
	AutoRun        bool          `mapstructure:"auto_run"`
}

// BackendConfig contains the external download backend configuration
type BackendConfig struct {
	Binary    string    `mapstructure:"binary"`
	ExtraArgs string    `mapstructure:"extra_args"`
	Variants  []Variant `mapstructure:"variants"` // empty means the built-in variant list
}

// HistoryConfig contains download history persistence configuration
type HistoryConfig struct {
	DatabasePath string `mapstructure:"database_path"`
}

// NotificationConfig contains notification-related configuration
type NotificationConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Sound   bool   `mapstructure:"sound"`
	Method  string `mapstructure:"method"` // osascript, notify-send, etc.
}

// LoggingConfig contains logging-related configuration
type LoggingConfig struct {
	Level      string `mapstructure:"level"`       // debug, info, warn, error
	Format     string `mapstructure:"format"`      // json, console
	OutputPath string `mapstructure:"output_path"` // stdout, stderr, or file path
	LogsDir    string `mapstructure:"logs_dir"`    // directory for per-category log files
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "localhost",
			Port: 8090,
		},
		Download: DownloadConfig{
			MusicDir:       "$HOME/Music/tunepull",
			QueueFile:      "$HOME/Music/tunepull/track_list.txt",
			FailedFile:     "$HOME/Music/tunepull/failed_tracks.txt",
			Workers:        3,
			TrackTimeout:   150 * time.Second,
			ItemDelay:      2 * time.Second,
			DedupeAfterRun: true,
			AutoRun:        false,
		},
		Backend: BackendConfig{
			Binary:    "hifi",
			ExtraArgs: "",
		},
		History: HistoryConfig{
			DatabasePath: "$HOME/Music/tunepull/history.db",
		},
		Notification: NotificationConfig{
			Enabled: true,
			Sound:   true,
			Method:  "osascript",
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "console",
			OutputPath: "stdout",
			LogsDir:    "$HOME/Music/tunepull/logs",
		},
	}
}
