package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/tonimelisma/flipper-sync/internal/config"
)

// version is set at build time via ldflags.
var version = "dev"

// Global persistent flags, bound in newRootCmd().
var (
	flagConfigPath string
	flagDataDir    string
	flagDeviceURL  string
	flagDeviceDir  string
	flagJSON       bool
	flagVerbose    bool
	flagQuiet      bool
)

// resolvedCfg holds the effective configuration loaded by PersistentPreRunE.
// It is available to all subcommands after the root pre-run phase completes.
var resolvedCfg *config.Config

// newRootCmd builds and returns the fully-assembled root command with all
// subcommands registered. Called once from main().
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "flipper-sync",
		Short:   "Flipper Zero archive sync",
		Long:    "Keep a local key archive and a Flipper Zero's SD card in sync.",
		Version: version,
		// Silence Cobra's default error/usage printing; main handles it.
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return loadConfig(cmd)
		},
	}

	cmd.PersistentFlags().StringVar(&flagConfigPath, "config", "", "config file path")
	cmd.PersistentFlags().StringVar(&flagDataDir, "data-dir", "", "directory holding the local archive and sync state")
	cmd.PersistentFlags().StringVar(&flagDeviceURL, "device-url", "", "WebSocket URL of a device bridge")
	cmd.PersistentFlags().StringVar(&flagDeviceDir, "device-dir", "", "device storage mounted on this host")
	cmd.PersistentFlags().BoolVar(&flagJSON, "json", false, "output in JSON format")
	cmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "enable debug logging")
	cmd.PersistentFlags().BoolVarP(&flagQuiet, "quiet", "q", false, "suppress informational output")

	cmd.MarkFlagsMutuallyExclusive("device-url", "device-dir")
	cmd.MarkFlagsMutuallyExclusive("verbose", "quiet")

	cmd.AddCommand(newSyncCmd())
	cmd.AddCommand(newLsCmd())
	cmd.AddCommand(newFavoriteCmd())
	cmd.AddCommand(newRmCmd())
	cmd.AddCommand(newTrashCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newBridgeCmd())
	cmd.AddCommand(newConfigCmd())

	return cmd
}

// loadConfig resolves the effective configuration from the four-layer
// override chain and stores the result in resolvedCfg.
func loadConfig(cmd *cobra.Command) error {
	cli := config.CLIOverrides{ConfigPath: flagConfigPath}

	// Only explicitly set flags take part in the override chain.
	if cmd.Flags().Changed("data-dir") {
		cli.DataDir = &flagDataDir
	}

	if cmd.Flags().Changed("device-url") {
		cli.DeviceURL = &flagDeviceURL
	}

	if cmd.Flags().Changed("device-dir") {
		cli.DeviceDir = &flagDeviceDir
	}

	cfg, err := config.Resolve(config.ReadEnvOverrides(), cli)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	resolvedCfg = cfg

	return nil
}

// logLevel maps the config level and CLI flags to a slog level. CLI flags
// always win over the config file.
func logLevel(cfg *config.Config) slog.Level {
	level := slog.LevelInfo

	if cfg != nil {
		switch cfg.Logging.LogLevel {
		case "debug":
			level = slog.LevelDebug
		case "warn":
			level = slog.LevelWarn
		case "error":
			level = slog.LevelError
		}
	}

	if flagVerbose {
		level = slog.LevelDebug
	}

	if flagQuiet {
		level = slog.LevelError
	}

	return level
}

// buildLogger creates the root logger. Output goes to the rotating log file
// when one is configured, otherwise to stderr. With log_format "auto" a
// terminal gets text and anything else gets JSON.
func buildLogger(cfg *config.Config) *slog.Logger {
	var (
		out    io.Writer = os.Stderr
		format           = "auto"
	)

	if cfg != nil {
		format = cfg.Logging.LogFormat

		if cfg.Logging.LogFile != "" {
			out = &lumberjack.Logger{
				Filename:   cfg.Logging.LogFile,
				MaxSize:    cfg.Logging.LogMaxSizeMB,
				MaxBackups: cfg.Logging.LogMaxBackups,
			}
		}
	}

	return newLogger(out, format, logLevel(cfg), isatty.IsTerminal(os.Stderr.Fd()))
}

func newLogger(out io.Writer, format string, level slog.Level, terminal bool) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}

	useJSON := format == "json"
	if format == "auto" || format == "" {
		_, toFile := out.(*lumberjack.Logger)
		useJSON = toFile || !terminal
	}

	if useJSON {
		return slog.New(slog.NewJSONHandler(out, opts))
	}

	return slog.New(slog.NewTextHandler(out, opts))
}

// exitOnError prints a user-friendly error message to stderr and exits.
func exitOnError(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}
