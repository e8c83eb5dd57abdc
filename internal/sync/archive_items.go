package sync

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"

	"github.com/tonimelisma/flipper-sync/internal/archive"
)

// storeFor routes an item to the store that holds its type.
func (a *Archive) storeFor(t archive.FileType) Store {
	if t == archive.Note {
		return a.notes
	}

	return a.mobile
}

func (a *Archive) mapForLocked(t archive.FileType) map[archive.Path]archive.Item {
	if t == archive.Note {
		return a.notesM
	}

	return a.items
}

// taken reports whether p is used by an item or note.
func (a *Archive) taken(p archive.Path) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	_, ok := a.lookupLocked(p)

	return ok
}

// Upsert writes item to the mobile side, creating or replacing it. The
// change reaches the device on the next Synchronize.
func (a *Archive) Upsert(ctx context.Context, item archive.Item) error {
	if item.Type == archive.Unknown {
		item.Type = archive.TypeOf(item.Path)
	}

	if item.Name == "" {
		item.Name = item.Path.Stem()
	}

	if err := a.storeFor(item.Type).Write(ctx, item.Path, item.Content); err != nil {
		return fmt.Errorf("sync: saving %s: %w", item.Path, err)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	m := a.mapForLocked(item.Type)
	if prev, ok := m[item.Path]; ok {
		item.Favorite = prev.Favorite
		item.Status = prev.Status
	}

	m[item.Path] = item

	return nil
}

// Rename gives the item at p a new display name, which moves it to the
// matching path. Favorite membership follows the item.
func (a *Archive) Rename(ctx context.Context, p archive.Path, newName string) (archive.Item, error) {
	a.mu.Lock()
	item, ok := a.lookupLocked(p)
	a.mu.Unlock()

	if !ok {
		return archive.Item{}, fmt.Errorf("%w: %s", ErrItemNotFound, p)
	}

	newPath, err := p.WithStem(newName)
	if err != nil {
		return archive.Item{}, err
	}

	if newPath == p {
		return item, nil
	}

	if a.taken(newPath) {
		return archive.Item{}, fmt.Errorf("%w: %s", ErrItemExists, newPath)
	}

	store := a.storeFor(item.Type)

	if err := store.Write(ctx, newPath, item.Content); err != nil {
		return archive.Item{}, fmt.Errorf("sync: renaming %s: %w", p, err)
	}

	if err := store.Delete(ctx, p); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return archive.Item{}, fmt.Errorf("sync: renaming %s: %w", p, err)
	}

	if item.Favorite {
		if err := a.updateFavorites(ctx, func(f *archive.Favorites) {
			f.Remove(p)
			f.Upsert(newPath)
		}); err != nil {
			return archive.Item{}, err
		}
	}

	a.mu.Lock()
	m := a.mapForLocked(item.Type)
	delete(m, p)
	item.Path = newPath
	item.Name = newPath.Stem()
	m[newPath] = item
	a.mu.Unlock()

	a.logger.Info("item renamed", slog.String("from", string(p)), slog.String("to", string(newPath)))

	return item, nil
}

// Delete moves the item at p to the trash and removes it from the mobile
// side and the mobile favorites.
func (a *Archive) Delete(ctx context.Context, p archive.Path) error {
	a.mu.Lock()
	item, ok := a.lookupLocked(p)
	a.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrItemNotFound, p)
	}

	if err := a.deleted.Upsert(ctx, item.Content, p); err != nil {
		return err
	}

	if err := a.storeFor(item.Type).Delete(ctx, p); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("sync: deleting %s: %w", p, err)
	}

	if item.Favorite {
		if err := a.updateFavorites(ctx, func(f *archive.Favorites) { f.Remove(p) }); err != nil {
			return err
		}
	}

	item.Status = archive.StatusDeleted
	item.Favorite = false

	a.mu.Lock()
	delete(a.mapForLocked(item.Type), p)
	a.trash[p] = item
	a.mu.Unlock()

	a.logger.Info("item deleted", slog.String("path", string(p)))

	return nil
}

// ToggleFavorite flips the favorite flag of the item at p and returns the
// new value. Notes cannot be favorites.
func (a *Archive) ToggleFavorite(ctx context.Context, p archive.Path) (bool, error) {
	a.mu.Lock()
	_, ok := a.items[p]
	a.mu.Unlock()

	if !ok {
		return false, fmt.Errorf("%w: %s", ErrItemNotFound, p)
	}

	var on bool
	if err := a.updateFavorites(ctx, func(f *archive.Favorites) { on = f.Toggle(p) }); err != nil {
		return false, err
	}

	a.mu.Lock()
	if it, ok := a.items[p]; ok {
		it.Favorite = on
		a.items[p] = it
	}
	a.mu.Unlock()

	return on, nil
}

func (a *Archive) updateFavorites(ctx context.Context, mutate func(*archive.Favorites)) error {
	favs, err := a.mobileFavorites.Read(ctx)
	if err != nil {
		return fmt.Errorf("sync: reading favorites: %w", err)
	}

	mutate(favs)

	if err := a.mobileFavorites.Write(ctx, favs); err != nil {
		return fmt.Errorf("sync: writing favorites: %w", err)
	}

	return nil
}

// CopyIfExists returns item moved to a free path: unchanged if its path is
// unused, otherwise with a "_N" suffix on the name.
func (a *Archive) CopyIfExists(item archive.Item) (archive.Item, error) {
	free, err := archive.FreePath(item.Path, a.taken)
	if err != nil {
		return archive.Item{}, err
	}

	if free != item.Path {
		item.Path = free
		item.Name = free.Stem()
	}

	return item, nil
}

// Import adds a new item without overwriting an existing one.
func (a *Archive) Import(ctx context.Context, item archive.Item) (archive.Item, error) {
	item, err := a.CopyIfExists(item)
	if err != nil {
		return archive.Item{}, err
	}

	// Sync events set the status once the item reaches the device.
	item.Favorite = false
	item.Status = archive.StatusUnsynced

	if err := a.Upsert(ctx, item); err != nil {
		return archive.Item{}, err
	}

	a.logger.Info("item imported", slog.String("path", string(item.Path)))

	return item, nil
}

// Restore moves one item from the trash back to the active archive. If its
// path is taken meanwhile it is restored under a free name.
func (a *Archive) Restore(ctx context.Context, p archive.Path) (archive.Item, error) {
	content, err := a.deleted.Read(ctx, p)
	if err != nil {
		return archive.Item{}, fmt.Errorf("sync: restoring %s: %w", p, err)
	}

	item, err := a.CopyIfExists(archive.NewItem(p, content))
	if err != nil {
		return archive.Item{}, err
	}

	item.Status = archive.StatusUnsynced

	if err := a.storeFor(item.Type).Write(ctx, item.Path, item.Content); err != nil {
		return archive.Item{}, fmt.Errorf("sync: restoring %s: %w", p, err)
	}

	if err := a.deleted.Delete(ctx, p); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return archive.Item{}, fmt.Errorf("sync: removing %s from trash: %w", p, err)
	}

	a.mu.Lock()
	delete(a.trash, p)
	a.mapForLocked(item.Type)[item.Path] = item
	a.mu.Unlock()

	return item, nil
}

// RestoreAll moves every trash entry back to the active archive and then
// synchronizes so the restored items reach the device. It returns the
// change count of that synchronization.
func (a *Archive) RestoreAll(ctx context.Context, progress ProgressFunc) (int, error) {
	deleted, err := a.deleted.GetManifest(ctx, nil)
	if err != nil {
		return 0, err
	}

	for _, it := range deleted {
		if _, err := a.Restore(ctx, it.Path); err != nil {
			return 0, err
		}
	}

	a.logger.Info("trash restored", slog.Int("items", len(deleted)))

	return a.Synchronize(ctx, progress)
}

// Wipe permanently deletes one trash entry.
func (a *Archive) Wipe(ctx context.Context, p archive.Path) error {
	if err := a.deleted.Delete(ctx, p); err != nil {
		return fmt.Errorf("sync: wiping %s: %w", p, err)
	}

	a.mu.Lock()
	delete(a.trash, p)
	a.mu.Unlock()

	return nil
}

// WipeAll permanently empties the trash. The active archive and the
// manifest are untouched.
func (a *Archive) WipeAll(ctx context.Context) error {
	if err := a.deleted.WipeAll(ctx); err != nil {
		return err
	}

	a.mu.Lock()
	clear(a.trash)
	a.mu.Unlock()

	return nil
}
