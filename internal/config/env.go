package config

import "os"

// Environment variable names for overrides.
const (
	EnvConfig    = "FLIPPER_SYNC_CONFIG"
	EnvDataDir   = "FLIPPER_SYNC_DATA_DIR"
	EnvDeviceURL = "FLIPPER_SYNC_DEVICE_URL"
)

// EnvOverrides holds values derived from environment variables.
type EnvOverrides struct {
	ConfigPath string // FLIPPER_SYNC_CONFIG: override config file path
	DataDir    string // FLIPPER_SYNC_DATA_DIR: mobile data directory
	DeviceURL  string // FLIPPER_SYNC_DEVICE_URL: device bridge URL
}

// ReadEnvOverrides reads environment variables and returns any overrides found.
func ReadEnvOverrides() EnvOverrides {
	return EnvOverrides{
		ConfigPath: os.Getenv(EnvConfig),
		DataDir:    os.Getenv(EnvDataDir),
		DeviceURL:  os.Getenv(EnvDeviceURL),
	}
}
