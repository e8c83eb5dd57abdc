package sync

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"

	"github.com/tonimelisma/flipper-sync/internal/archive"
)

// itemIndex is the part of the in-memory archive the reconciler updates.
type itemIndex interface {
	// reload re-reads p from the mobile store into the item list. It fails
	// with fs.ErrNotExist when p is not on the mobile side.
	reload(ctx context.Context, p archive.Path) error
	// remove drops p from the active item list.
	remove(ctx context.Context, p archive.Path) error
}

// ShadowReconciler folds imported and deleted events for shadow markers
// onto the canonical item they stand for.
type ShadowReconciler struct {
	mobile Store
	index  itemIndex
	logger *slog.Logger
}

func newShadowReconciler(mobile Store, index itemIndex, logger *slog.Logger) *ShadowReconciler {
	return &ShadowReconciler{mobile: mobile, index: index, logger: logger}
}

// Imported handles an import. A shadow marker means its origin was just
// finished writing, so the origin is reloaded and the marker itself never
// becomes an item.
func (r *ShadowReconciler) Imported(ctx context.Context, ref archive.Ref) error {
	if !ref.IsShadow() {
		return r.index.reload(ctx, ref.Path)
	}

	return r.reloadOrigin(ctx, ref)
}

// Deleted handles a deletion. For a shadow marker the mobile copy of the
// marker is removed and the origin refreshed; otherwise the item leaves
// the active set.
func (r *ShadowReconciler) Deleted(ctx context.Context, ref archive.Ref) error {
	if !ref.IsShadow() {
		return r.index.remove(ctx, ref.Path)
	}

	if err := r.mobile.Delete(ctx, ref.Path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("sync: deleting shadow %s: %w", ref.Path, err)
	}

	return r.reloadOrigin(ctx, ref)
}

// reloadOrigin reloads the origin of a shadow ref. A missing origin is an
// orphan shadow, which is expected when the marker arrives first.
func (r *ShadowReconciler) reloadOrigin(ctx context.Context, ref archive.Ref) error {
	err := r.index.reload(ctx, ref.Origin)
	if errors.Is(err, fs.ErrNotExist) {
		r.logger.Info("orphan shadow file",
			slog.String("shadow", string(ref.Path)),
			slog.String("origin", string(ref.Origin)),
		)

		return nil
	}

	return err
}
