package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tonimelisma/flipper-sync/internal/archive"
)

func TestFavoritesFile_MissingIsEmpty(t *testing.T) {
	t.Parallel()

	s, _ := newMemStore(t)
	f := NewFavoritesFile(s, "favorites.txt")

	got, err := f.Read(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, got.Len())
}

func TestFavoritesFile_WriteRead(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s, _ := newMemStore(t)
	f := NewFavoritesFile(s, "favorites.txt")

	want := archive.NewFavorites("nfc/B.nfc", "nfc/A.nfc")
	require.NoError(t, f.Write(ctx, want))

	raw, err := s.Read(ctx, "favorites.txt")
	require.NoError(t, err)
	assert.Equal(t, "nfc/B.nfc\nnfc/A.nfc\n", string(raw))

	got, err := f.Read(ctx)
	require.NoError(t, err)
	assert.True(t, want.Equal(got))
}

func TestFavoritesFile_SkipsInvalidLines(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s, _ := newMemStore(t)
	require.NoError(t, s.Write(ctx, "favorites.txt", []byte("../bad\nnfc/ok.nfc\n")))

	got, err := NewFavoritesFile(s, "favorites.txt").Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, []archive.Path{"nfc/ok.nfc"}, got.Paths())
}
