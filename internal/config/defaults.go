package config

// Default values for configuration options. These are "layer 0" of the
// override chain.
const (
	defaultDeviceRoot     = "/ext"
	defaultFavoritesFile  = "favorites.txt"
	defaultRequestTimeout = "10s"
	defaultMaxRetries     = 3
	defaultBandwidthLimit = "0"
	defaultWatchDebounce  = "2s"
	defaultEventWorkers   = 4
	defaultLogLevel       = "info"
	defaultLogFormat      = "auto"
	defaultLogMaxSizeMB   = 10
	defaultLogMaxBackups  = 3
)

// DefaultConfig returns a Config populated with all default values. It is
// the starting point for TOML decoding so unset fields keep their defaults.
func DefaultConfig() *Config {
	return &Config{
		Device:  defaultDeviceConfig(),
		Sync:    defaultSyncConfig(),
		Logging: defaultLoggingConfig(),
	}
}

func defaultDeviceConfig() DeviceConfig {
	return DeviceConfig{
		Root:           defaultDeviceRoot,
		FavoritesFile:  defaultFavoritesFile,
		RequestTimeout: defaultRequestTimeout,
		MaxRetries:     defaultMaxRetries,
		BandwidthLimit: defaultBandwidthLimit,
	}
}

func defaultSyncConfig() SyncConfig {
	return SyncConfig{
		WatchDebounce: defaultWatchDebounce,
		EventWorkers:  defaultEventWorkers,
	}
}

func defaultLoggingConfig() LoggingConfig {
	return LoggingConfig{
		LogLevel:      defaultLogLevel,
		LogFormat:     defaultLogFormat,
		LogMaxSizeMB:  defaultLogMaxSizeMB,
		LogMaxBackups: defaultLogMaxBackups,
	}
}
