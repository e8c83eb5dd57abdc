package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	isync "github.com/tonimelisma/flipper-sync/internal/sync"
)

// defaultPollInterval bounds how long watch mode waits before re-checking a
// device whose changes cannot be observed locally.
const defaultPollInterval = 5 * time.Minute

func newSyncCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Synchronize the archive with the device",
		Long: `Run a sync cycle between the local archive and the device.

Changes made on either side since the last sync are copied across; an item
edited on both sides keeps the local version. Items deleted on the device are
moved to the local trash and can be restored with "trash restore".

With --watch the command keeps running and syncs again whenever the local
archive (or a mounted device directory) changes, and at least every
--interval. Press Ctrl-C once to stop after the current item.`,
		RunE: runSync,
	}

	cmd.Flags().Bool("watch", false, "keep running and sync on every change")
	cmd.Flags().Duration("interval", defaultPollInterval, "in watch mode, sync at least this often")

	return cmd
}

func runSync(cmd *cobra.Command, _ []string) error {
	cfg := resolvedCfg
	if !hasDevice(cfg) {
		return errNoDevice
	}

	watch, err := cmd.Flags().GetBool("watch")
	if err != nil {
		return err
	}

	interval, err := cmd.Flags().GetDuration("interval")
	if err != nil {
		return err
	}

	if watch && interval <= 0 {
		return fmt.Errorf("--interval must be positive, got %s", interval)
	}

	logger := buildLogger(cfg)

	lock, err := acquireSyncLock(pidPath(cfg))
	if err != nil {
		return err
	}
	defer lock.Release()

	ctx := shutdownContext(cmd.Context(), logger)

	s, err := openSession(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer s.Close()

	// The first signal stops the run before its next item; the item in flight
	// finishes.
	stop := context.AfterFunc(ctx, s.archive.CancelSync)
	defer stop()

	if !watch {
		return syncOnce(ctx, s)
	}

	return watchLoop(ctx, s, interval)
}

// syncOnce runs one Synchronize and reports its items and outcome.
func syncOnce(ctx context.Context, s *session) error {
	events, unsubscribe := s.archive.Subscribe()
	printed := make(chan struct{})

	go func() {
		defer close(printed)

		for ev := range events {
			printEvent(ev)
		}
	}()

	started := time.Now()

	changes, err := s.archive.Synchronize(ctx, func(v float64) {
		s.logger.Debug("sync progress", slog.String("done", formatPercent(v)))
	})

	unsubscribe()
	<-printed

	switch {
	case errors.Is(err, isync.ErrSyncCanceled):
		statusf(flagQuiet, "Sync canceled after %d change(s).\n", changes)
		return err
	case err != nil:
		return fmt.Errorf("sync failed: %w", err)
	}

	if flagJSON {
		return printJSON(os.Stdout, syncResultJSON{
			Changes:  changes,
			State:    s.archive.State().String(),
			Duration: time.Since(started).Round(time.Millisecond).String(),
		})
	}

	statusf(flagQuiet, "Synced: %d change(s) in %s.\n", changes, time.Since(started).Round(time.Millisecond))

	return nil
}

type syncResultJSON struct {
	Changes  int    `json:"changes"`
	State    string `json:"state"`
	Duration string `json:"duration"`
}

// printEvent reports finished item transfers. Syncing events only mark the
// start of an item and are not printed.
func printEvent(ev isync.Event) {
	switch ev.Type {
	case isync.EventImported:
		statusf(flagQuiet, "  imported  %s\n", ev.Ref.Path)
	case isync.EventExported:
		statusf(flagQuiet, "  exported  %s\n", ev.Ref.Path)
	case isync.EventDeleted:
		statusf(flagQuiet, "  deleted   %s\n", ev.Ref.Path)
	case isync.EventSyncing:
	}
}

// watchLoop syncs, then waits for a local change, the poll interval or
// shutdown, and repeats. A failed run is logged and retried on the next
// trigger; only shutdown ends the loop.
func watchLoop(ctx context.Context, s *session, interval time.Duration) error {
	roots := []string{s.mobile.Root()}
	if s.cfg.Device.Dir != "" {
		roots = append(roots, s.cfg.Device.Dir)
	}

	w, err := newArchiveWatcher(roots, s.cfg.Sync.Debounce(), s.logger)
	if err != nil {
		return fmt.Errorf("starting watcher: %w", err)
	}
	defer w.Close()

	go w.run(ctx)

	statusf(flagQuiet, "Watching for changes. Press Ctrl-C to stop.\n")

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if err := syncOnce(ctx, s); err != nil {
			if ctx.Err() != nil {
				return nil
			}

			s.logger.Error("sync failed, waiting for next change", slog.String("error", err.Error()))
		}

		select {
		case <-ctx.Done():
			return nil
		case <-w.Changes():
			s.logger.Debug("change detected, syncing")
		case <-ticker.C:
			s.logger.Debug("poll interval elapsed, syncing")
		}
	}
}
