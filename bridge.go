package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/flipper-sync/internal/remote"
	"github.com/tonimelisma/flipper-sync/internal/storage"
)

const (
	defaultBridgeListen  = "127.0.0.1:8765"
	bridgeReadHeaderTime = 10 * time.Second
	bridgeShutdownGrace  = 5 * time.Second
)

func newBridgeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bridge",
		Short: "Serve a mounted device directory over WebSocket",
		Long: `Expose the device storage mounted at device.dir (or --device-dir) over the
WebSocket protocol, so another host can sync against it with --device-url.`,
		Args: cobra.NoArgs,
		RunE: runBridge,
	}

	cmd.Flags().String("listen", defaultBridgeListen, "address to listen on")

	return cmd
}

func runBridge(cmd *cobra.Command, _ []string) error {
	cfg := resolvedCfg
	if cfg.Device.Dir == "" {
		return errors.New("bridge needs device.dir or --device-dir to serve")
	}

	addr, err := cmd.Flags().GetString("listen")
	if err != nil {
		return err
	}

	logger := buildLogger(cfg)

	store, err := storage.NewOS(cfg.Device.Dir, logger)
	if err != nil {
		return err
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}

	ctx := shutdownContext(cmd.Context(), logger)

	srv := &http.Server{
		Handler:           remote.NewBridgeHandler(remote.NewDirLink(store, cfg.Device.Root), logger),
		ReadHeaderTimeout: bridgeReadHeaderTime,
	}

	go func() {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), bridgeShutdownGrace)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("bridge shutdown", slog.String("error", err.Error()))
		}
	}()

	logger.Info("bridge listening",
		slog.String("addr", ln.Addr().String()),
		slog.String("dir", cfg.Device.Dir),
		slog.String("root", cfg.Device.Root),
	)
	statusf(flagQuiet, "Serving %s on ws://%s\n", cfg.Device.Dir, ln.Addr())

	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return nil
}
