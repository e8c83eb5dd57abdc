package main

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/tonimelisma/flipper-sync/internal/storage"
)

// archiveWatcher turns filesystem activity under a set of roots into a
// debounced change signal. Each burst of events yields at most one value on
// Changes once the tree has been quiet for the debounce window.
type archiveWatcher struct {
	watcher  *fsnotify.Watcher
	debounce time.Duration
	logger   *slog.Logger
	changes  chan struct{}
}

// newArchiveWatcher watches every directory below roots. Roots that do not
// exist yet are skipped.
func newArchiveWatcher(roots []string, debounce time.Duration, logger *slog.Logger) (*archiveWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	aw := &archiveWatcher{
		watcher:  w,
		debounce: debounce,
		logger:   logger,
		changes:  make(chan struct{}, 1),
	}

	for _, root := range roots {
		if err := aw.addTree(root); err != nil {
			w.Close()
			return nil, err
		}
	}

	return aw, nil
}

// addTree adds root and all directories below it.
func (w *archiveWatcher) addTree(root string) error {
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}

			return err
		}

		if !d.IsDir() {
			return nil
		}

		if addErr := w.watcher.Add(path); addErr != nil {
			return addErr
		}

		w.logger.Debug("watching directory", slog.String("path", path))

		return nil
	})
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}

	return err
}

// Changes delivers one value per debounced burst.
func (w *archiveWatcher) Changes() <-chan struct{} { return w.changes }

// Close stops the underlying watcher.
func (w *archiveWatcher) Close() error { return w.watcher.Close() }

// run processes fsnotify events until ctx ends or the watcher is closed.
func (w *archiveWatcher) run(ctx context.Context) {
	timer := time.NewTimer(w.debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}

			if !w.relevant(ev) {
				continue
			}

			timer.Reset(w.debounce)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}

			w.logger.Warn("filesystem watcher error", slog.String("error", err.Error()))

		case <-timer.C:
			select {
			case w.changes <- struct{}{}:
			default:
				// A signal is already pending.
			}
		}
	}
}

// relevant filters out events that cannot change the archive and picks up
// newly created directories.
func (w *archiveWatcher) relevant(ev fsnotify.Event) bool {
	// Mode changes are not synced.
	if ev.Has(fsnotify.Chmod) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) {
		return false
	}

	if storage.IsTempFile(filepath.Base(ev.Name)) {
		return false
	}

	if ev.Has(fsnotify.Create) {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			if err := w.addTree(ev.Name); err != nil {
				w.logger.Warn("failed to add watch on new directory",
					slog.String("path", ev.Name), slog.String("error", err.Error()))
			}
		}
	}

	w.logger.Debug("watch event", slog.String("path", ev.Name), slog.String("op", ev.Op.String()))

	return true
}
