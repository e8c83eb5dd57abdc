package storage

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"

	"github.com/tonimelisma/flipper-sync/internal/archive"
)

// FavoritesFile persists a favorites set as a line-delimited document
// stored under a fixed path of a Store.
type FavoritesFile struct {
	store *Store
	path  archive.Path
}

// NewFavoritesFile binds a favorites document to path within store.
func NewFavoritesFile(store *Store, path archive.Path) *FavoritesFile {
	return &FavoritesFile{store: store, path: path}
}

// Read decodes the document. A missing document is an empty set.
func (f *FavoritesFile) Read(ctx context.Context) (*archive.Favorites, error) {
	data, err := f.store.Read(ctx, f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return archive.NewFavorites(), nil
	}

	if err != nil {
		return nil, err
	}

	favs, err := archive.DecodeFavorites(data)
	if err != nil {
		f.store.logger.Warn("skipping invalid favorites lines",
			slog.String("path", string(f.path)),
			slog.String("error", err.Error()),
		)
	}

	return favs, nil
}

// Write replaces the document with favs.
func (f *FavoritesFile) Write(ctx context.Context, favs *archive.Favorites) error {
	return f.store.Write(ctx, f.path, favs.Encode())
}
