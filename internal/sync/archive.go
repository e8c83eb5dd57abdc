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
	"github.com/samber/lo"

	"github.com/tonimelisma/flipper-sync/internal/archive"
)

// RunState is the state of the most recent Synchronize call.
type RunState int

const (
	StateIdle RunState = iota
	StateRunning
	StateCompleted
	StateCancelled
	StateFailed
)

var runStateNames = map[RunState]string{
	StateIdle:      "idle",
	StateRunning:   "running",
	StateCompleted: "completed",
	StateCancelled: "cancelled",
	StateFailed:    "failed",
}

func (s RunState) String() string {
	if name, ok := runStateNames[s]; ok {
		return name
	}

	return fmt.Sprintf("state(%d)", int(s))
}

func parseRunState(s string) RunState {
	for state, name := range runStateNames {
		if name == s {
			return state
		}
	}

	return StateIdle
}

// Errors returned by item operations.
var (
	ErrItemNotFound = fmt.Errorf("sync: item not found: %w", fs.ErrNotExist)
	ErrItemExists   = errors.New("sync: item already exists")
)

// defaultEventWorkers bounds concurrent event handlers when unset.
const defaultEventWorkers = 4

// ArchiveConfig holds the collaborators of an Archive.
type ArchiveConfig struct {
	Mobile          Store // typed key files; synchronized
	Notes           Store // notes; never synchronized
	Remote          Store
	Trash           TrashStorage
	Manifest        *Manifest
	MobileFavorites FavoritesStore
	RemoteFavorites FavoritesStore
	EventWorkers    int
	Logger          *slog.Logger
}

// Archive is the user-facing archive: the in-memory item list with
// favorite and status annotations, the trash, and synchronization. All
// mutations of in-memory state go through a single mutex shared by API
// calls and background event handlers.
type Archive struct {
	mobile          Store
	notes           Store
	mobileFavorites FavoritesStore
	manifest        *Manifest
	engine          *ArchiveSync
	favorites       *FavoritesSync
	deleted         *DeletedArchive
	shadow          *ShadowReconciler
	bus             *EventBus
	workers         int
	logger          *slog.Logger
	nowFunc         func() time.Time

	running atomic.Bool

	mu     stdsync.Mutex
	loaded bool
	state  RunState
	items  map[archive.Path]archive.Item
	notesM map[archive.Path]archive.Item
	trash  map[archive.Path]archive.Item
}

// NewArchive wires an Archive from cfg. Call Load before Synchronize.
func NewArchive(cfg ArchiveConfig) *Archive {
	workers := cfg.EventWorkers
	if workers <= 0 {
		workers = defaultEventWorkers
	}

	a := &Archive{
		mobile:          cfg.Mobile,
		notes:           cfg.Notes,
		mobileFavorites: cfg.MobileFavorites,
		manifest:        cfg.Manifest,
		engine: NewArchiveSync(EngineConfig{
			Mobile:   cfg.Mobile,
			Remote:   cfg.Remote,
			Manifest: cfg.Manifest,
			Logger:   cfg.Logger,
		}),
		favorites: NewFavoritesSync(cfg.MobileFavorites, cfg.RemoteFavorites, cfg.Manifest.SyncedFavorites(), cfg.Logger),
		deleted:   NewDeletedArchive(cfg.Trash, cfg.Logger),
		bus:       NewEventBus(),
		workers:   workers,
		logger:    cfg.Logger,
		nowFunc:   time.Now,
		items:     make(map[archive.Path]archive.Item),
		notesM:    make(map[archive.Path]archive.Item),
		trash:     make(map[archive.Path]archive.Item),
	}

	a.shadow = newShadowReconciler(cfg.Mobile, a, cfg.Logger)

	return a
}

// Load populates the item list, notes and trash from storage. Shadow
// markers are not items and are skipped.
func (a *Archive) Load(ctx context.Context) error {
	items, err := loadItems(ctx, a.mobile)
	if err != nil {
		return fmt.Errorf("sync: loading archive: %w", err)
	}

	notes, err := loadItems(ctx, a.notes)
	if err != nil {
		return fmt.Errorf("sync: loading notes: %w", err)
	}

	deleted, err := a.deleted.GetManifest(ctx, nil)
	if err != nil {
		return err
	}

	favs, err := a.mobileFavorites.Read(ctx)
	if err != nil {
		return fmt.Errorf("sync: loading favorites: %w", err)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	a.items = items
	a.notesM = notes
	a.trash = lo.KeyBy(deleted, func(it archive.Item) archive.Path { return it.Path })
	a.applyFavoritesLocked(favs)
	a.loaded = true

	a.logger.Info("archive loaded",
		slog.Int("items", len(a.items)),
		slog.Int("notes", len(a.notesM)),
		slog.Int("deleted", len(a.trash)),
	)

	return nil
}

func loadItems(ctx context.Context, store Store) (map[archive.Path]archive.Item, error) {
	listing, err := store.List(ctx)
	if err != nil {
		return nil, err
	}

	items := make(map[archive.Path]archive.Item, len(listing))

	for _, p := range listing.SortedPaths() {
		if archive.Classify(p).IsShadow() {
			continue
		}

		content, err := store.Read(ctx, p)
		if err != nil {
			return nil, err
		}

		items[p] = archive.NewItem(p, content)
	}

	return items, nil
}

// IsLoaded reports whether Load has completed.
func (a *Archive) IsLoaded() bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.loaded
}

// State returns the state of the latest Synchronize call.
func (a *Archive) State() RunState {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.state
}

func (a *Archive) setState(s RunState) {
	a.mu.Lock()
	a.state = s
	a.mu.Unlock()
}

// Subscribe returns a stream of sync events and a function that ends the
// subscription.
func (a *Archive) Subscribe() (<-chan Event, func()) {
	return a.bus.Subscribe()
}

// Synchronize runs the archive sync, then the favorites sync, then
// recomputes favorite flags. A call before Load completes, or while another
// run is in flight, is rejected with zero changes and no error. A canceled
// run returns its changes with ErrSyncCanceled and skips the favorites
// sync.
func (a *Archive) Synchronize(ctx context.Context, progress ProgressFunc) (int, error) {
	if !a.IsLoaded() {
		a.logger.Warn("synchronize rejected: archive not loaded")
		return 0, nil
	}

	if !a.running.CompareAndSwap(false, true) {
		a.logger.Warn("synchronize rejected: a run is already in progress")
		return 0, nil
	}
	defer a.running.Store(false)

	a.setState(StateRunning)
	started := a.nowFunc()

	// Bookkeeping finishes even if the caller's context ends mid-run.
	dispatcher := NewDispatcher(context.WithoutCancel(ctx), a.workers, a.handleEvent, a.logger)

	report, err := a.engine.RunReport(ctx, progress, func(ev Event) {
		a.bus.Publish(ev)
		dispatcher.Submit(ev)
	})

	dispatcher.Wait()

	if err == nil {
		var favs *archive.Favorites
		if favs, err = a.favorites.Run(ctx); err == nil {
			a.mu.Lock()
			a.applyFavoritesLocked(favs)
			a.mu.Unlock()
		}
	}

	state := StateCompleted

	switch {
	case errors.Is(err, ErrSyncCanceled):
		state = StateCancelled
	case err != nil:
		state = StateFailed
	}

	a.setState(state)
	a.recordRun(ctx, report, started, state, err)

	return report.Changes(), err
}

// CancelSync asks the in-flight run, if any, to stop before its next item.
func (a *Archive) CancelSync() {
	a.engine.Cancel()
}

func (a *Archive) recordRun(ctx context.Context, report *SyncReport, started time.Time, state RunState, runErr error) {
	rec := RunRecord{
		RunID:      report.RunID,
		StartedAt:  started,
		FinishedAt: a.nowFunc(),
		Outcome:    state,
		Changes:    report.Changes(),
	}

	if rec.RunID == "" {
		rec.RunID = uuid.New().String()
	}

	if runErr != nil && state == StateFailed {
		rec.Err = runErr.Error()
	}

	if err := a.manifest.RecordRun(context.WithoutCancel(ctx), rec); err != nil {
		a.logger.Warn("recording sync run failed", slog.String("error", err.Error()))
	}
}

// handleEvent applies one sync event to the in-memory archive.
func (a *Archive) handleEvent(ctx context.Context, ev Event) error {
	target := ev.Ref.Origin

	switch ev.Type {
	case EventSyncing:
		a.setStatus(target, archive.StatusSynchronizing)

	case EventImported:
		if err := a.shadow.Imported(ctx, ev.Ref); err != nil {
			a.setStatus(target, archive.StatusError)
			return err
		}

		a.setStatus(target, archive.StatusSynchronized)

	case EventExported:
		a.setStatus(target, archive.StatusSynchronized)

	case EventDeleted:
		return a.shadow.Deleted(ctx, ev.Ref)
	}

	return nil
}

func (a *Archive) setStatus(p archive.Path, s archive.Status) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if it, ok := a.items[p]; ok {
		it.Status = s
		a.items[p] = it
	}
}

// reload re-reads p from the mobile store into the item list.
func (a *Archive) reload(ctx context.Context, p archive.Path) error {
	content, err := a.mobile.Read(ctx, p)
	if err != nil {
		return err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	it := archive.NewItem(p, content)
	if prev, ok := a.items[p]; ok {
		it.Favorite = prev.Favorite
	}

	a.items[p] = it

	return nil
}

// remove takes p out of the active set after a device-side deletion. Its
// last known content goes to the trash so it stays recoverable.
func (a *Archive) remove(ctx context.Context, p archive.Path) error {
	a.mu.Lock()
	it, ok := a.items[p]
	delete(a.items, p)
	a.mu.Unlock()

	if !ok {
		return nil
	}

	return a.moveToTrash(ctx, it)
}

func (a *Archive) moveToTrash(ctx context.Context, it archive.Item) error {
	if err := a.deleted.Upsert(ctx, it.Content, it.Path); err != nil {
		return err
	}

	it.Status = archive.StatusDeleted
	it.Favorite = false

	a.mu.Lock()
	a.trash[it.Path] = it
	a.mu.Unlock()

	return nil
}

func (a *Archive) applyFavoritesLocked(favs *archive.Favorites) {
	for p, it := range a.items {
		it.Favorite = favs.Contains(p)
		a.items[p] = it
	}
}

// Items returns the active archive items in path order.
func (a *Archive) Items() []archive.Item {
	a.mu.Lock()
	items := lo.Values(a.items)
	a.mu.Unlock()

	archive.SortItems(items)

	return items
}

// Notes returns the notes in path order.
func (a *Archive) Notes() []archive.Item {
	a.mu.Lock()
	notes := lo.Values(a.notesM)
	a.mu.Unlock()

	archive.SortItems(notes)

	return notes
}

// Deleted returns the trash contents in path order.
func (a *Archive) Deleted() []archive.Item {
	a.mu.Lock()
	deleted := lo.Values(a.trash)
	a.mu.Unlock()

	archive.SortItems(deleted)

	return deleted
}

// Item returns the active item or note at p.
func (a *Archive) Item(p archive.Path) (archive.Item, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.lookupLocked(p)
}

func (a *Archive) lookupLocked(p archive.Path) (archive.Item, bool) {
	if it, ok := a.items[p]; ok {
		return it, true
	}

	it, ok := a.notesM[p]

	return it, ok
}
