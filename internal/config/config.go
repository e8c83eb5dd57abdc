// Package config implements TOML configuration loading, validation, and
// platform-specific path resolution for flipper-sync. It supports a
// four-layer override chain (defaults -> config file -> environment -> CLI
// flags).
package config

import "time"

// Config is the top-level configuration structure parsed from a TOML file.
type Config struct {
	Storage StorageConfig `toml:"storage"`
	Device  DeviceConfig  `toml:"device"`
	Sync    SyncConfig    `toml:"sync"`
	Logging LoggingConfig `toml:"logging"`
}

// StorageConfig locates the mobile-side state. The archive, notes, trash,
// favorites documents, and synced manifest all live beneath DataDir.
type StorageConfig struct {
	DataDir string `toml:"data_dir"`
}

// DeviceConfig describes how the device is reached. Exactly one of URL (a
// WebSocket bridge) or Dir (device storage mounted on this host) is used.
type DeviceConfig struct {
	URL            string `toml:"url"`
	Dir            string `toml:"dir"`
	Root           string `toml:"root"`
	FavoritesFile  string `toml:"favorites_file"`
	RequestTimeout string `toml:"request_timeout"`
	MaxRetries     int    `toml:"max_retries"`
	BandwidthLimit string `toml:"bandwidth_limit"`
}

// Timeout returns the parsed request timeout. Validate guarantees it parses.
func (d *DeviceConfig) Timeout() time.Duration {
	t, _ := time.ParseDuration(d.RequestTimeout)
	return t
}

// SyncConfig controls watch mode and event handling.
type SyncConfig struct {
	WatchDebounce string `toml:"watch_debounce"`
	EventWorkers  int    `toml:"event_workers"`
}

// Debounce returns the parsed watch debounce. Validate guarantees it parses.
func (s *SyncConfig) Debounce() time.Duration {
	d, _ := time.ParseDuration(s.WatchDebounce)
	return d
}

// LoggingConfig controls log output behavior: level, format, and rotation.
type LoggingConfig struct {
	LogLevel      string `toml:"log_level"`
	LogFile       string `toml:"log_file"`
	LogFormat     string `toml:"log_format"`
	LogMaxSizeMB  int    `toml:"log_max_size_mb"`
	LogMaxBackups int    `toml:"log_max_backups"`
}

// CLIOverrides holds values from CLI flags that override config file and
// environment settings. Pointer fields distinguish "not specified" (nil)
// from "explicitly set to the zero value".
type CLIOverrides struct {
	ConfigPath string  // --config flag (empty = use default)
	DataDir    *string // --data-dir flag
	DeviceURL  *string // --device-url flag
	DeviceDir  *string // --device-dir flag
}
