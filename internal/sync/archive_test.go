package sync

import (
	"context"
	"errors"
	"io/fs"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tonimelisma/flipper-sync/internal/archive"
)

type archiveFixture struct {
	archive   *Archive
	mobile    *memStore
	notes     *memStore
	remote    *memStore
	trash     *memStore
	manifest  *Manifest
	mobileFav *memFavorites
	remoteFav *memFavorites
}

func newArchiveFixture(t *testing.T, mobile, remote map[string]string) *archiveFixture {
	t.Helper()

	f := &archiveFixture{
		mobile:    newMemStore(mobile),
		notes:     newMemStore(nil),
		remote:    newMemStore(remote),
		trash:     newMemStore(nil),
		manifest:  newTestManifest(t),
		mobileFav: newMemFavorites(),
		remoteFav: newMemFavorites(),
	}

	f.archive = NewArchive(ArchiveConfig{
		Mobile:          f.mobile,
		Notes:           f.notes,
		Remote:          f.remote,
		Trash:           f.trash,
		Manifest:        f.manifest,
		MobileFavorites: f.mobileFav,
		RemoteFavorites: f.remoteFav,
		EventWorkers:    2,
		Logger:          testLogger(t),
	})

	return f
}

func (f *archiveFixture) load(t *testing.T) {
	t.Helper()
	require.NoError(t, f.archive.Load(context.Background()))
}

func (f *archiveFixture) sync(t *testing.T) int {
	t.Helper()

	n, err := f.archive.Synchronize(context.Background(), nil)
	require.NoError(t, err)

	return n
}

func itemPaths(items []archive.Item) []archive.Path {
	out := make([]archive.Path, 0, len(items))
	for _, it := range items {
		out = append(out, it.Path)
	}

	return out
}

// ---------------------------------------------------------------------------
// Load and guards
// ---------------------------------------------------------------------------

func TestArchive_SynchronizeBeforeLoadIsRejected(t *testing.T) {
	t.Parallel()

	f := newArchiveFixture(t, map[string]string{"nfc/a.nfc": "A"}, nil)

	n, err := f.archive.Synchronize(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Equal(t, 0, f.remote.len())
	assert.Equal(t, StateIdle, f.archive.State())
}

func TestArchive_SynchronizeWhileRunningIsRejected(t *testing.T) {
	t.Parallel()

	f := newArchiveFixture(t, map[string]string{"nfc/a.nfc": "A"}, nil)
	f.load(t)

	f.archive.running.Store(true)

	n, err := f.archive.Synchronize(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Equal(t, 0, f.remote.len())
}

func TestArchive_LoadSkipsShadowsAndAppliesFavorites(t *testing.T) {
	t.Parallel()

	f := newArchiveFixture(t, map[string]string{
		"nfc/b.nfc":    "B",
		"nfc/a.nfc":    "A",
		"nfc/a.shd":    "marker",
		"subghz/c.sub": "C",
	}, nil)
	f.notes.put("notes/todo.txt", "buy milk")
	f.trash.put("infrared/old.ir", "OLD")
	f.mobileFav = newMemFavorites("nfc/b.nfc")
	f.archive.mobileFavorites = f.mobileFav

	f.load(t)

	items := f.archive.Items()
	assert.Equal(t, []archive.Path{"nfc/a.nfc", "nfc/b.nfc", "subghz/c.sub"}, itemPaths(items))
	assert.False(t, items[0].Favorite)
	assert.True(t, items[1].Favorite)
	assert.Equal(t, "b", items[1].Name)
	assert.Equal(t, archive.NFC, items[1].Type)

	notes := f.archive.Notes()
	require.Len(t, notes, 1)
	assert.Equal(t, archive.Note, notes[0].Type)

	deleted := f.archive.Deleted()
	require.Len(t, deleted, 1)
	assert.Equal(t, archive.StatusDeleted, deleted[0].Status)
}

// ---------------------------------------------------------------------------
// Synchronize
// ---------------------------------------------------------------------------

func TestArchive_SynchronizeImportsAndMergesFavorites(t *testing.T) {
	t.Parallel()

	f := newArchiveFixture(t,
		map[string]string{"nfc/mine.nfc": "M"},
		map[string]string{"subghz/gate.sub": "G"},
	)
	f.remoteFav = newMemFavorites("subghz/gate.sub")
	f.archive.favorites.remote = f.remoteFav

	f.load(t)

	events, unsubscribe := f.archive.Subscribe()
	defer unsubscribe()

	var progress []float64

	n, err := f.archive.Synchronize(context.Background(), func(v float64) { progress = append(progress, v) })
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, StateCompleted, f.archive.State())
	assert.InDelta(t, 1.0, progress[len(progress)-1], 1e-9)

	item, ok := f.archive.Item("subghz/gate.sub")
	require.True(t, ok)
	assert.Equal(t, []byte("G"), item.Content)
	assert.True(t, item.Favorite)
	assert.Equal(t, archive.StatusSynchronized, item.Status)

	assert.Equal(t, []string{"subghz/gate.sub"}, f.mobileFav.paths())

	got, _ := f.remote.get("nfc/mine.nfc")
	assert.Equal(t, "M", got)

	var seen []string
	for len(events) > 0 {
		seen = append(seen, (<-events).String())
	}

	assert.Equal(t, []string{
		"syncing(nfc/mine.nfc)", "exported(nfc/mine.nfc)",
		"syncing(subghz/gate.sub)", "imported(subghz/gate.sub)",
	}, seen)

	last, ok, err := f.manifest.LastRun(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, StateCompleted, last.Outcome)
	assert.Equal(t, 2, last.Changes)
}

func TestArchive_ShadowImportNeverBecomesItem(t *testing.T) {
	t.Parallel()

	f := newArchiveFixture(t, nil, map[string]string{
		"nfc/card.nfc": "C",
		"nfc/card.shd": "S",
		"nfc/lone.shd": "orphan",
	})
	f.load(t)

	assert.Equal(t, 3, f.sync(t))
	assert.Equal(t, []archive.Path{"nfc/card.nfc"}, itemPaths(f.archive.Items()))

	// The markers are still mirrored on the mobile side.
	_, ok := f.mobile.get("nfc/card.shd")
	assert.True(t, ok)
}

func TestArchive_DeviceDeletionMovesItemToTrash(t *testing.T) {
	t.Parallel()

	f := newArchiveFixture(t, nil, map[string]string{"ibutton/key.ibtn": "KEY"})
	f.load(t)
	f.sync(t)

	f.remote.remove("ibutton/key.ibtn")

	assert.Equal(t, 1, f.sync(t))
	assert.Empty(t, f.archive.Items())

	deleted := f.archive.Deleted()
	require.Len(t, deleted, 1)
	assert.Equal(t, archive.Path("ibutton/key.ibtn"), deleted[0].Path)

	got, ok := f.trash.get("ibutton/key.ibtn")
	require.True(t, ok)
	assert.Equal(t, "KEY", got)
}

func TestArchive_CancelSkipsFavorites(t *testing.T) {
	t.Parallel()

	f := newArchiveFixture(t, nil, map[string]string{"nfc/1.nfc": "1", "nfc/2.nfc": "2"})
	f.remoteFav = newMemFavorites("nfc/1.nfc")
	f.archive.favorites.remote = f.remoteFav
	f.load(t)

	f.mobile.onWrite = func(archive.Path) { f.archive.CancelSync() }

	n, err := f.archive.Synchronize(context.Background(), nil)
	require.ErrorIs(t, err, ErrSyncCanceled)
	assert.Equal(t, 1, n)
	assert.Equal(t, StateCancelled, f.archive.State())
	assert.Equal(t, 0, f.mobileFav.writes)

	last, ok, err := f.manifest.LastRun(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, StateCancelled, last.Outcome)
	assert.Empty(t, last.Err)
}

func TestArchive_InterruptDuringTransferIsCancelled(t *testing.T) {
	t.Parallel()

	f := newArchiveFixture(t, nil, map[string]string{"nfc/1.nfc": "1", "nfc/2.nfc": "2", "nfc/3.nfc": "3"})
	f.load(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stop := context.AfterFunc(ctx, f.archive.CancelSync)
	defer stop()

	f.remote.onRead = func(readCtx context.Context, p archive.Path) error {
		if p == "nfc/2.nfc" {
			cancel()
		}

		return readCtx.Err()
	}

	n, err := f.archive.Synchronize(ctx, nil)
	require.ErrorIs(t, err, ErrSyncCanceled)
	assert.Equal(t, 2, n)
	assert.Equal(t, StateCancelled, f.archive.State())

	_, ok := f.mobile.get("nfc/2.nfc")
	assert.True(t, ok, "the item in flight completes")
	_, ok = f.mobile.get("nfc/3.nfc")
	assert.False(t, ok)
}

func TestArchive_FailureIsRecorded(t *testing.T) {
	t.Parallel()

	f := newArchiveFixture(t, nil, nil)
	f.load(t)
	f.remote.listErr = errors.New("device not connected")

	_, err := f.archive.Synchronize(context.Background(), nil)
	require.Error(t, err)
	assert.Equal(t, StateFailed, f.archive.State())

	last, ok, err := f.manifest.LastRun(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, StateFailed, last.Outcome)
	assert.Contains(t, last.Err, "device not connected")

	// A later run is accepted once the device is back.
	f.remote.listErr = nil
	f.sync(t)
	assert.Equal(t, StateCompleted, f.archive.State())
}

func TestArchive_NotesAreNeverSynced(t *testing.T) {
	t.Parallel()

	f := newArchiveFixture(t, nil, nil)
	f.load(t)

	note := archive.NewItem("notes/todo.txt", []byte("buy milk"))
	require.NoError(t, f.archive.Upsert(context.Background(), note))

	assert.Equal(t, 0, f.sync(t))
	assert.Equal(t, 0, f.remote.len())
	assert.Equal(t, 0, f.mobile.len())

	got, ok := f.notes.get("notes/todo.txt")
	require.True(t, ok)
	assert.Equal(t, "buy milk", got)
	assert.Len(t, f.archive.Notes(), 1)
}

// ---------------------------------------------------------------------------
// Item operations
// ---------------------------------------------------------------------------

func TestArchive_DeleteMovesToTrashAndPropagates(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newArchiveFixture(t, map[string]string{"nfc/a.nfc": "A"}, nil)
	f.load(t)
	f.sync(t)

	_, err := f.archive.ToggleFavorite(ctx, "nfc/a.nfc")
	require.NoError(t, err)

	require.NoError(t, f.archive.Delete(ctx, "nfc/a.nfc"))

	assert.Empty(t, f.archive.Items())
	assert.Empty(t, f.mobileFav.paths())
	assert.Len(t, f.archive.Deleted(), 1)

	assert.Equal(t, 1, f.sync(t))

	_, ok := f.remote.get("nfc/a.nfc")
	assert.False(t, ok)

	err = f.archive.Delete(ctx, "nfc/a.nfc")
	require.ErrorIs(t, err, ErrItemNotFound)
	assert.ErrorIs(t, err, fs.ErrNotExist)
}

func TestArchive_RenameMovesFavorite(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newArchiveFixture(t, map[string]string{"nfc/a.nfc": "A", "nfc/b.nfc": "B"}, nil)
	f.load(t)

	on, err := f.archive.ToggleFavorite(ctx, "nfc/a.nfc")
	require.NoError(t, err)
	require.True(t, on)

	item, err := f.archive.Rename(ctx, "nfc/a.nfc", "office")
	require.NoError(t, err)
	assert.Equal(t, archive.Path("nfc/office.nfc"), item.Path)
	assert.Equal(t, "office", item.Name)
	assert.True(t, item.Favorite)

	_, ok := f.mobile.get("nfc/a.nfc")
	assert.False(t, ok)
	assert.Equal(t, []string{"nfc/office.nfc"}, f.mobileFav.paths())

	_, err = f.archive.Rename(ctx, "nfc/office.nfc", "b")
	require.ErrorIs(t, err, ErrItemExists)

	_, err = f.archive.Rename(ctx, "nfc/missing.nfc", "x")
	require.ErrorIs(t, err, ErrItemNotFound)
}

func TestArchive_ToggleFavorite(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newArchiveFixture(t, map[string]string{"nfc/a.nfc": "A"}, nil)
	f.load(t)

	on, err := f.archive.ToggleFavorite(ctx, "nfc/a.nfc")
	require.NoError(t, err)
	assert.True(t, on)

	on, err = f.archive.ToggleFavorite(ctx, "nfc/a.nfc")
	require.NoError(t, err)
	assert.False(t, on)
	assert.Empty(t, f.mobileFav.paths())

	_, err = f.archive.ToggleFavorite(ctx, "nfc/nope.nfc")
	require.ErrorIs(t, err, ErrItemNotFound)
}

func TestArchive_NotesCannotBeFavorites(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newArchiveFixture(t, nil, nil)
	f.notes.put("notes/todo.txt", "milk")
	f.load(t)

	_, err := f.archive.ToggleFavorite(ctx, "notes/todo.txt")
	require.ErrorIs(t, err, ErrItemNotFound)
	assert.Empty(t, f.mobileFav.paths())

	f.sync(t)
	assert.Empty(t, f.remoteFav.paths())
}

func TestArchive_ImportPicksFreeName(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newArchiveFixture(t, map[string]string{"nfc/card.nfc": "old", "nfc/card_1.nfc": "older"}, nil)
	f.load(t)

	imported, err := f.archive.Import(ctx, archive.NewItem("nfc/card.nfc", []byte("new")))
	require.NoError(t, err)
	assert.Equal(t, archive.Path("nfc/card_2.nfc"), imported.Path)
	assert.Equal(t, "card_2", imported.Name)

	got, _ := f.mobile.get("nfc/card.nfc")
	assert.Equal(t, "old", got)

	got, _ = f.mobile.get("nfc/card_2.nfc")
	assert.Equal(t, "new", got)

	item, ok := f.archive.Item("nfc/card_2.nfc")
	require.True(t, ok)
	assert.Equal(t, archive.StatusUnsynced, item.Status, "not on the device yet")

	f.sync(t)

	item, ok = f.archive.Item("nfc/card_2.nfc")
	require.True(t, ok)
	assert.Equal(t, archive.StatusSynchronized, item.Status)
}

func TestArchive_UpsertKeepsFavorite(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newArchiveFixture(t, map[string]string{"nfc/a.nfc": "A"}, nil)
	f.load(t)

	_, err := f.archive.ToggleFavorite(ctx, "nfc/a.nfc")
	require.NoError(t, err)

	require.NoError(t, f.archive.Upsert(ctx, archive.NewItem("nfc/a.nfc", []byte("A2"))))

	item, ok := f.archive.Item("nfc/a.nfc")
	require.True(t, ok)
	assert.True(t, item.Favorite)
	assert.Equal(t, []byte("A2"), item.Content)
}

// ---------------------------------------------------------------------------
// Trash
// ---------------------------------------------------------------------------

func TestArchive_RestoreAllResynchronizes(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newArchiveFixture(t, map[string]string{"nfc/a.nfc": "A", "subghz/b.sub": "B"}, nil)
	f.load(t)
	f.sync(t)

	require.NoError(t, f.archive.Delete(ctx, "nfc/a.nfc"))
	require.NoError(t, f.archive.Delete(ctx, "subghz/b.sub"))
	assert.Equal(t, 2, f.sync(t))
	assert.Equal(t, 0, f.remote.len())

	n, err := f.archive.RestoreAll(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	assert.Empty(t, f.archive.Deleted())
	assert.Equal(t, 0, f.trash.len())
	assert.Equal(t, []archive.Path{"nfc/a.nfc", "subghz/b.sub"}, itemPaths(f.archive.Items()))

	got, ok := f.remote.get("subghz/b.sub")
	require.True(t, ok)
	assert.Equal(t, "B", got)
}

func TestArchive_RestoreIntoTakenPath(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newArchiveFixture(t, map[string]string{"nfc/a.nfc": "current"}, nil)
	f.trash.put("nfc/a.nfc", "deleted")
	f.load(t)

	item, err := f.archive.Restore(ctx, "nfc/a.nfc")
	require.NoError(t, err)
	assert.Equal(t, archive.Path("nfc/a_1.nfc"), item.Path)

	got, _ := f.mobile.get("nfc/a.nfc")
	assert.Equal(t, "current", got)

	got, _ = f.mobile.get("nfc/a_1.nfc")
	assert.Equal(t, "deleted", got)
}

func TestArchive_WipeAndWipeAll(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newArchiveFixture(t, map[string]string{"nfc/a.nfc": "A"}, nil)
	f.trash.put("nfc/x.nfc", "X")
	f.trash.put("nfc/y.nfc", "Y")
	f.load(t)

	require.NoError(t, f.archive.Wipe(ctx, "nfc/x.nfc"))
	assert.Equal(t, []archive.Path{"nfc/y.nfc"}, itemPaths(f.archive.Deleted()))

	require.NoError(t, f.archive.WipeAll(ctx))
	assert.Empty(t, f.archive.Deleted())
	assert.Equal(t, 0, f.trash.len())
	assert.Len(t, f.archive.Items(), 1, "active archive is untouched")

	_, err := f.archive.Restore(ctx, "nfc/x.nfc")
	require.ErrorIs(t, err, fs.ErrNotExist)
}
