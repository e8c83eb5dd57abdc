package sync

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/tonimelisma/flipper-sync/internal/archive"
)

// TrashStorage is raw byte storage for the deleted archive, disjoint from
// the active archive.
type TrashStorage interface {
	Paths(ctx context.Context) ([]archive.Path, error)
	Read(ctx context.Context, p archive.Path) ([]byte, error)
	Write(ctx context.Context, p archive.Path, content []byte) error
	Delete(ctx context.Context, p archive.Path) error
	Wipe(ctx context.Context) error
}

// DeletedArchive keeps logically deleted items until they are restored or
// wiped.
type DeletedArchive struct {
	storage TrashStorage
	logger  *slog.Logger
}

// NewDeletedArchive wraps storage.
func NewDeletedArchive(storage TrashStorage, logger *slog.Logger) *DeletedArchive {
	return &DeletedArchive{storage: storage, logger: logger}
}

// GetManifest loads every deleted item, reporting progress after each one.
func (d *DeletedArchive) GetManifest(ctx context.Context, progress ProgressFunc) ([]archive.Item, error) {
	paths, err := d.storage.Paths(ctx)
	if err != nil {
		return nil, fmt.Errorf("sync: listing trash: %w", err)
	}

	items := make([]archive.Item, 0, len(paths))

	for i, p := range paths {
		content, err := d.storage.Read(ctx, p)
		if err != nil {
			return nil, fmt.Errorf("sync: reading trash %s: %w", p, err)
		}

		item := archive.NewItem(p, content)
		item.Status = archive.StatusDeleted
		items = append(items, item)

		progress.report(float64(i+1) / float64(len(paths)))
	}

	if len(paths) == 0 {
		progress.report(1)
	}

	archive.SortItems(items)

	return items, nil
}

// Read returns the deleted content at p.
func (d *DeletedArchive) Read(ctx context.Context, p archive.Path) ([]byte, error) {
	return d.storage.Read(ctx, p)
}

// Upsert stores content at p, replacing an earlier deletion of the same
// path.
func (d *DeletedArchive) Upsert(ctx context.Context, content []byte, p archive.Path) error {
	if err := d.storage.Write(ctx, p, content); err != nil {
		return fmt.Errorf("sync: moving %s to trash: %w", p, err)
	}

	d.logger.Debug("moved to trash", slog.String("path", string(p)))

	return nil
}

// Delete purges p from the trash.
func (d *DeletedArchive) Delete(ctx context.Context, p archive.Path) error {
	return d.storage.Delete(ctx, p)
}

// WipeAll permanently clears the trash.
func (d *DeletedArchive) WipeAll(ctx context.Context) error {
	if err := d.storage.Wipe(ctx); err != nil {
		return fmt.Errorf("sync: wiping trash: %w", err)
	}

	d.logger.Info("trash wiped")

	return nil
}
