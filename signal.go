package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
)

// errInterrupted is the cancellation cause recorded by the first signal.
var errInterrupted = errors.New("interrupted")

// exitInterrupted is the conventional exit status after SIGINT.
const exitInterrupted = 130

// shutdownContext returns a context that is canceled with errInterrupted on
// the first SIGINT/SIGTERM. A running sync sees the cancellation between
// items and stops with its partial result. The second signal exits
// immediately.
func shutdownContext(parent context.Context, logger *slog.Logger) context.Context {
	ctx, cancel := context.WithCancelCause(parent)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		defer signal.Stop(sigCh)

		select {
		case sig := <-sigCh:
			logger.Info("received signal, canceling sync after the current item",
				slog.String("signal", sig.String()),
			)
			statusf(flagQuiet, "Stopping after the current item; press Ctrl-C again to exit now.\n")
			cancel(errInterrupted)
		case <-ctx.Done():
			return
		}

		select {
		case sig := <-sigCh:
			logger.Warn("received second signal, forcing exit",
				slog.String("signal", sig.String()),
			)
			os.Exit(exitInterrupted)
		case <-parent.Done():
			return
		}
	}()

	return ctx
}

// interrupted reports whether ctx ended because of a signal.
func interrupted(ctx context.Context) bool {
	return errors.Is(context.Cause(ctx), errInterrupted)
}
