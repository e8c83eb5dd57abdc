package remote

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"

	"github.com/tonimelisma/flipper-sync/internal/archive"
)

// DefaultFavoritesPath is where the device keeps its favorites document,
// relative to the archive root.
const DefaultFavoritesPath archive.Path = "favorites.txt"

// FavoritesFile is the device-side favorites document.
type FavoritesFile struct {
	source *Source
	path   archive.Path
}

// NewFavoritesFile binds the favorites document at path on source. The
// path should also be listed in SourceConfig.Exclude so it is not synced
// as an item.
func NewFavoritesFile(source *Source, path archive.Path) *FavoritesFile {
	return &FavoritesFile{source: source, path: path}
}

// Read fetches and decodes the document. A missing document is empty.
func (f *FavoritesFile) Read(ctx context.Context) (*archive.Favorites, error) {
	data, err := f.source.Read(ctx, f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return archive.NewFavorites(), nil
	}

	if err != nil {
		return nil, err
	}

	favs, err := archive.DecodeFavorites(data)
	if err != nil {
		f.source.logger.Warn("skipping invalid favorites lines",
			slog.String("path", string(f.path)),
			slog.String("error", err.Error()),
		)
	}

	return favs, nil
}

// Write replaces the document.
func (f *FavoritesFile) Write(ctx context.Context, favs *archive.Favorites) error {
	return f.source.Write(ctx, f.path, favs.Encode())
}
