package sync

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	stdsync "sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/tonimelisma/flipper-sync/internal/archive"
)

// EngineConfig holds the collaborators of an ArchiveSync.
type EngineConfig struct {
	Mobile   Store
	Remote   Store
	Manifest *Manifest
	Logger   *slog.Logger
}

// SyncReport summarizes one run.
type SyncReport struct {
	RunID     string
	Paths     int // distinct paths classified
	Processed int // paths handled before the run ended
	Imported  int
	Exported  int
	Deleted   int
	Conflicts int
	Duration  time.Duration
}

// Changes is the number of imports, exports and deletions.
func (r *SyncReport) Changes() int { return r.Imported + r.Exported + r.Deleted }

// cancelToken is the cooperative stop flag of one run.
type cancelToken struct {
	stop atomic.Bool
}

// ArchiveSync runs the three-way diff between the manifest, the mobile
// archive and the device, and carries out the resulting transfers one item
// at a time.
type ArchiveSync struct {
	mobile   Store
	remote   Store
	manifest *Manifest
	planner  *Planner
	logger   *slog.Logger
	nowFunc  func() time.Time

	mu      stdsync.Mutex
	current *cancelToken
}

// NewArchiveSync creates an engine from cfg.
func NewArchiveSync(cfg EngineConfig) *ArchiveSync {
	return &ArchiveSync{
		mobile:   cfg.Mobile,
		remote:   cfg.Remote,
		manifest: cfg.Manifest,
		planner:  NewPlanner(cfg.Logger),
		logger:   cfg.Logger,
		nowFunc:  time.Now,
	}
}

// Cancel asks the in-flight run to stop before its next item. The item
// being transferred, if any, completes. Without a run in flight it does
// nothing.
func (e *ArchiveSync) Cancel() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.current != nil {
		e.current.stop.Store(true)
		e.logger.Info("sync cancellation requested")
	}
}

func (e *ArchiveSync) begin() *cancelToken {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.current = &cancelToken{}

	return e.current
}

func (e *ArchiveSync) end(tok *cancelToken) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.current == tok {
		e.current = nil
	}
}

// Run executes one sync pass and returns the number of changes made. emit
// receives per-item events in the order they happen; it must not block for
// long. A run that is canceled returns the changes made so far together
// with ErrSyncCanceled. Any transfer or storage fault aborts the run.
func (e *ArchiveSync) Run(ctx context.Context, progress ProgressFunc, emit func(Event)) (int, error) {
	report, err := e.RunReport(ctx, progress, emit)
	return report.Changes(), err
}

// RunReport is Run returning the full report.
func (e *ArchiveSync) RunReport(ctx context.Context, progress ProgressFunc, emit func(Event)) (*SyncReport, error) {
	tok := e.begin()
	defer e.end(tok)

	if emit == nil {
		emit = func(Event) {}
	}

	start := e.nowFunc()
	report := &SyncReport{RunID: uuid.New().String()}
	logger := e.logger.With(slog.String("run_id", report.RunID))

	logger.Info("sync run started")

	// Step 1: enumerate the three sides concurrently.
	manifest, mobile, remote, err := e.enumerate(ctx)
	if err != nil {
		if tok.stop.Load() || ctx.Err() != nil {
			logger.Info("sync run canceled during enumeration")
			return report, ErrSyncCanceled
		}

		return report, err
	}

	// Step 2: classify.
	plan := e.planner.Plan(manifest, mobile, remote)
	report.Paths = len(plan.Actions)

	progress.report(0)

	// Step 3: execute, checking for cancellation between items. A started
	// item runs to completion even if ctx ends while it is in flight.
	itemCtx := context.WithoutCancel(ctx)

	for i := range plan.Actions {
		if tok.stop.Load() || ctx.Err() != nil {
			report.Duration = e.nowFunc().Sub(start)
			logger.Info("sync run canceled",
				slog.Int("processed", report.Processed),
				slog.Int("paths", report.Paths),
				slog.Int("changes", report.Changes()),
			)

			return report, ErrSyncCanceled
		}

		action := &plan.Actions[i]

		if err := e.execute(itemCtx, logger, report, action, emit); err != nil {
			report.Duration = e.nowFunc().Sub(start)
			logger.Error("sync run failed",
				slog.String("path", string(action.Ref.Path)),
				slog.String("action", action.Type.String()),
				slog.String("error", err.Error()),
			)

			return report, err
		}

		report.Processed++
		progress.report(float64(report.Processed) / float64(report.Paths))
	}

	if report.Paths == 0 {
		progress.report(1)
	}

	report.Duration = e.nowFunc().Sub(start)

	logger.Info("sync run completed",
		slog.Int("paths", report.Paths),
		slog.Int("imported", report.Imported),
		slog.Int("exported", report.Exported),
		slog.Int("deleted", report.Deleted),
		slog.Int("conflicts", report.Conflicts),
		slog.Duration("duration", report.Duration),
	)

	return report, nil
}

// enumerate loads the manifest and both listings in parallel.
func (e *ArchiveSync) enumerate(ctx context.Context) (manifest, mobile, remote archive.Listing, err error) {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		var err error
		if manifest, err = e.manifest.Load(gctx); err != nil {
			return err
		}

		return nil
	})

	g.Go(func() error {
		var err error
		if mobile, err = e.mobile.List(gctx); err != nil {
			return fmt.Errorf("sync: listing mobile archive: %w", err)
		}

		return nil
	})

	g.Go(func() error {
		var err error
		if remote, err = e.remote.List(gctx); err != nil {
			return fmt.Errorf("sync: listing device archive: %w", err)
		}

		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, nil, nil, err
	}

	return manifest, mobile, remote, nil
}

// execute performs one action. The manifest is touched only after the
// store operation it records has succeeded.
func (e *ArchiveSync) execute(
	ctx context.Context, logger *slog.Logger, report *SyncReport, action *Action, emit func(Event),
) error {
	path := action.Ref.Path

	switch action.Type {
	case ActionNone:
		return nil

	case ActionUpdateManifest:
		return e.manifest.Upsert(ctx, path, action.Fingerprint, report.RunID)

	case ActionCleanup:
		return e.manifest.Delete(ctx, path)

	case ActionImport:
		emit(Event{Type: EventSyncing, Ref: action.Ref})

		if err := e.copy(ctx, e.remote, e.mobile, path, report.RunID); err != nil {
			return fmt.Errorf("sync: importing %s: %w", path, err)
		}

		report.Imported++
		logger.Info("imported", slog.String("path", string(path)))
		emit(Event{Type: EventImported, Ref: action.Ref})

	case ActionExport:
		emit(Event{Type: EventSyncing, Ref: action.Ref})

		if action.Conflict {
			report.Conflicts++
			logger.Warn("conflict: keeping mobile version", slog.String("path", string(path)))
		}

		if err := e.copy(ctx, e.mobile, e.remote, path, report.RunID); err != nil {
			return fmt.Errorf("sync: exporting %s: %w", path, err)
		}

		report.Exported++
		logger.Info("exported", slog.String("path", string(path)))
		emit(Event{Type: EventExported, Ref: action.Ref})

	case ActionDeleteMobile, ActionDeleteRemote:
		emit(Event{Type: EventSyncing, Ref: action.Ref})

		target, side := e.mobile, "mobile"
		if action.Type == ActionDeleteRemote {
			target, side = e.remote, "device"
		}

		if action.Conflict {
			report.Conflicts++
			logger.Warn("conflict: deleting device version edited since last sync", slog.String("path", string(path)))
		}

		if err := target.Delete(ctx, path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("sync: deleting %s from %s: %w", path, side, err)
		}

		if err := e.manifest.Delete(ctx, path); err != nil {
			return err
		}

		report.Deleted++
		logger.Info("deleted", slog.String("path", string(path)), slog.String("side", side))
		emit(Event{Type: EventDeleted, Ref: action.Ref})

	default:
		return fmt.Errorf("sync: unknown action %s for %s", action.Type, path)
	}

	return nil
}

// copy moves one item between stores and records the fingerprint of the
// bytes that were written.
func (e *ArchiveSync) copy(ctx context.Context, from, to Store, path archive.Path, runID string) error {
	content, err := from.Read(ctx, path)
	if err != nil {
		return err
	}

	if err := to.Write(ctx, path, content); err != nil {
		return err
	}

	return e.manifest.Upsert(ctx, path, archive.FingerprintOf(content), runID)
}
