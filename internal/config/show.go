package config

import (
	"fmt"
	"io"
)

// RenderEffective writes the resolved configuration as TOML-like text to w.
// This powers the "config show" command.
func RenderEffective(cfg *Config, w io.Writer) error {
	ew := &errWriter{w: w}

	ew.printf("# Effective configuration\n\n")

	ew.printf("[storage]\n")
	ew.printf("  data_dir        = %q\n\n", cfg.Storage.DataDir)

	ew.printf("[device]\n")
	ew.printf("  url             = %q\n", cfg.Device.URL)
	ew.printf("  dir             = %q\n", cfg.Device.Dir)
	ew.printf("  root            = %q\n", cfg.Device.Root)
	ew.printf("  favorites_file  = %q\n", cfg.Device.FavoritesFile)
	ew.printf("  request_timeout = %q\n", cfg.Device.RequestTimeout)
	ew.printf("  max_retries     = %d\n", cfg.Device.MaxRetries)
	ew.printf("  bandwidth_limit = %q\n\n", cfg.Device.BandwidthLimit)

	ew.printf("[sync]\n")
	ew.printf("  watch_debounce  = %q\n", cfg.Sync.WatchDebounce)
	ew.printf("  event_workers   = %d\n\n", cfg.Sync.EventWorkers)

	ew.printf("[logging]\n")
	ew.printf("  log_level       = %q\n", cfg.Logging.LogLevel)
	ew.printf("  log_format      = %q\n", cfg.Logging.LogFormat)
	ew.printf("  log_file        = %q\n", cfg.Logging.LogFile)
	ew.printf("  log_max_size_mb = %d\n", cfg.Logging.LogMaxSizeMB)
	ew.printf("  log_max_backups = %d\n", cfg.Logging.LogMaxBackups)

	return ew.err
}

// errWriter wraps an io.Writer and captures the first write error.
// Subsequent writes after an error are no-ops.
type errWriter struct {
	w   io.Writer
	err error
}

func (ew *errWriter) printf(format string, args ...any) {
	if ew.err != nil {
		return
	}

	_, ew.err = fmt.Fprintf(ew.w, format, args...)
}
