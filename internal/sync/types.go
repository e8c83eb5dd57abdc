// Package sync implements archive synchronization between the mobile store
// and the device: the three-way manifest diff, the favorites merge, shadow
// file reconciliation, the trash, and the Archive facade that runs them.
package sync

import (
	"context"
	"errors"

	"github.com/tonimelisma/flipper-sync/internal/archive"
)

// ErrSyncCanceled is returned by a run that stopped because CancelSync was
// called or its context ended between items. It is an outcome, not a
// failure: every item completed before the stop is fully recorded.
var ErrSyncCanceled = errors.New("sync: canceled")

// Store is the byte-store contract shared by the mobile archive and the
// remote source. Read and Delete of a missing path fail with an error
// matching fs.ErrNotExist.
type Store interface {
	List(ctx context.Context) (archive.Listing, error)
	Read(ctx context.Context, p archive.Path) ([]byte, error)
	Write(ctx context.Context, p archive.Path, content []byte) error
	Delete(ctx context.Context, p archive.Path) error
}

// FavoritesStore persists one favorites set.
type FavoritesStore interface {
	Read(ctx context.Context) (*archive.Favorites, error)
	Write(ctx context.Context, favs *archive.Favorites) error
}

// ProgressFunc receives run progress in [0, 1]. Values never decrease
// within a run.
type ProgressFunc func(float64)

func (f ProgressFunc) report(v float64) {
	if f != nil {
		f(v)
	}
}
