package sync

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/tonimelisma/flipper-sync/internal/archive"
)

// FavoritesSync merges the mobile and device favorites documents against
// the synced-favorites baseline.
type FavoritesSync struct {
	mobile FavoritesStore
	remote FavoritesStore
	synced FavoritesStore
	logger *slog.Logger
}

// NewFavoritesSync creates a favorites synchronizer.
func NewFavoritesSync(mobile, remote, synced FavoritesStore, logger *slog.Logger) *FavoritesSync {
	return &FavoritesSync{mobile: mobile, remote: remote, synced: synced, logger: logger}
}

// Run reads all three sets, merges them, writes the result to every side
// that differs from it, and returns the merged set. The baseline is written
// last so a failed side write is retried by the next run.
func (s *FavoritesSync) Run(ctx context.Context) (*archive.Favorites, error) {
	mobile, err := s.mobile.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("sync: reading mobile favorites: %w", err)
	}

	remote, err := s.remote.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("sync: reading device favorites: %w", err)
	}

	baseline, err := s.synced.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("sync: reading synced favorites: %w", err)
	}

	merged := MergeFavorites(baseline, mobile, remote)

	if !merged.Equal(mobile) {
		if err := s.mobile.Write(ctx, merged); err != nil {
			return nil, fmt.Errorf("sync: writing mobile favorites: %w", err)
		}
	}

	if !merged.Equal(remote) {
		if err := s.remote.Write(ctx, merged); err != nil {
			return nil, fmt.Errorf("sync: writing device favorites: %w", err)
		}
	}

	if !merged.Equal(baseline) {
		if err := s.synced.Write(ctx, merged); err != nil {
			return nil, fmt.Errorf("sync: writing synced favorites: %w", err)
		}
	}

	s.logger.Info("favorites synchronized",
		slog.Int("mobile", mobile.Len()),
		slog.Int("device", remote.Len()),
		slog.Int("merged", merged.Len()),
	)

	return merged, nil
}

// MergeFavorites performs the three-way merge. A path unknown to the
// baseline is an addition on whichever side has it and is kept. A path the
// baseline knows survives only if both sides still have it, so a removal on
// either side propagates. The result lists paths in the order they are met
// walking mobile, then remote.
func MergeFavorites(baseline, mobile, remote *archive.Favorites) *archive.Favorites {
	merged := archive.NewFavorites()

	for _, p := range append(mobile.Paths(), remote.Paths()...) {
		inMobile, inRemote := mobile.Contains(p), remote.Contains(p)

		keep := inMobile || inRemote
		if baseline.Contains(p) {
			keep = inMobile && inRemote
		}

		if keep {
			merged.Upsert(p)
		}
	}

	return merged
}
