package config

import (
	"errors"
	"fmt"
	"net/url"
	"path"
	"strings"
	"time"
)

// Validation range constants.
const (
	minEventWorkers   = 1
	maxEventWorkers   = 64
	maxRetries        = 10
	minWatchDebounce  = 100 * time.Millisecond
	minRequestTimeout = 0
	minLogSizeMB      = 1
)

// Validate checks all configuration values and returns all errors found.
// Every error is accumulated so users can fix all issues in one pass.
func Validate(cfg *Config) error {
	var errs []error

	errs = append(errs, validateDevice(&cfg.Device)...)
	errs = append(errs, validateSync(&cfg.Sync)...)
	errs = append(errs, validateLogging(&cfg.Logging)...)

	return errors.Join(errs...)
}

func validateDevice(d *DeviceConfig) []error {
	var errs []error

	if d.URL != "" && d.Dir != "" {
		errs = append(errs, errors.New("device: url and dir are mutually exclusive"))
	}

	if d.URL != "" {
		errs = append(errs, validateDeviceURL(d.URL)...)
	}

	if !strings.HasPrefix(d.Root, "/") {
		errs = append(errs, fmt.Errorf("root: must be an absolute device path, got %q", d.Root))
	}

	if d.FavoritesFile == "" || strings.HasPrefix(d.FavoritesFile, "/") ||
		strings.HasPrefix(path.Clean(d.FavoritesFile), "..") {
		errs = append(errs, fmt.Errorf("favorites_file: must be a path relative to root, got %q", d.FavoritesFile))
	}

	errs = append(errs, validateDurationMin("request_timeout", d.RequestTimeout, minRequestTimeout)...)

	if d.MaxRetries < 0 || d.MaxRetries > maxRetries {
		errs = append(errs, fmt.Errorf("max_retries: must be between 0 and %d, got %d", maxRetries, d.MaxRetries))
	}

	errs = append(errs, validateBandwidthLimit(d.BandwidthLimit)...)

	return errs
}

func validateDeviceURL(raw string) []error {
	u, err := url.Parse(raw)
	if err != nil {
		return []error{fmt.Errorf("url: %w", err)}
	}

	switch u.Scheme {
	case "ws", "wss", "http", "https":
	default:
		return []error{fmt.Errorf("url: scheme must be ws, wss, http or https; got %q", u.Scheme)}
	}

	if u.Host == "" {
		return []error{fmt.Errorf("url: missing host in %q", raw)}
	}

	return nil
}

func validateBandwidthLimit(s string) []error {
	trimmed := strings.TrimSpace(s)
	if strings.HasSuffix(strings.ToLower(trimmed), "/s") {
		trimmed = trimmed[:len(trimmed)-len("/s")]
	}

	if _, err := ParseSize(trimmed); err != nil {
		return []error{fmt.Errorf("bandwidth_limit: %w", err)}
	}

	return nil
}

func validateSync(s *SyncConfig) []error {
	var errs []error

	errs = append(errs, validateDurationMin("watch_debounce", s.WatchDebounce, minWatchDebounce)...)

	if s.EventWorkers < minEventWorkers || s.EventWorkers > maxEventWorkers {
		errs = append(errs, fmt.Errorf("event_workers: must be between %d and %d, got %d",
			minEventWorkers, maxEventWorkers, s.EventWorkers))
	}

	return errs
}

func validateDurationMin(field, value string, minimum time.Duration) []error {
	d, err := time.ParseDuration(value)
	if err != nil {
		return []error{fmt.Errorf("%s: invalid duration %q: %w", field, value, err)}
	}

	if d < minimum {
		return []error{fmt.Errorf("%s: must be >= %s, got %s", field, minimum, d)}
	}

	return nil
}

func validateLogging(l *LoggingConfig) []error {
	var errs []error

	if !validLogLevels[l.LogLevel] {
		errs = append(errs, fmt.Errorf("log_level: must be one of debug, info, warn, error; got %q", l.LogLevel))
	}

	if !validLogFormats[l.LogFormat] {
		errs = append(errs, fmt.Errorf("log_format: must be one of auto, text, json; got %q", l.LogFormat))
	}

	if l.LogFile != "" && l.LogMaxSizeMB < minLogSizeMB {
		errs = append(errs, fmt.Errorf("log_max_size_mb: must be >= %d, got %d", minLogSizeMB, l.LogMaxSizeMB))
	}

	if l.LogMaxBackups < 0 {
		errs = append(errs, fmt.Errorf("log_max_backups: must be >= 0, got %d", l.LogMaxBackups))
	}

	return errs
}

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

var validLogFormats = map[string]bool{
	"auto": true,
	"text": true,
	"json": true,
}
