package sync

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	stdsync "sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tonimelisma/flipper-sync/internal/archive"
)

// testLogger returns a debug-level logger that writes to t.Log,
// so all activity appears in CI output.
func testLogger(t *testing.T) *slog.Logger {
	t.Helper()

	return slog.New(slog.NewTextHandler(&testLogWriter{t: t}, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
}

// testLogWriter adapts testing.T to io.Writer for slog.
type testLogWriter struct {
	t *testing.T
}

func (w *testLogWriter) Write(p []byte) (int, error) {
	w.t.Helper()
	w.t.Log(string(p))

	return len(p), nil
}

// newTestManifest creates a Manifest backed by a temp directory,
// registering cleanup with t.Cleanup.
func newTestManifest(t *testing.T) *Manifest {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "manifest.db")

	m, err := NewManifest(dbPath, testLogger(t))
	require.NoError(t, err)

	t.Cleanup(func() {
		if err := m.Close(); err != nil {
			t.Errorf("Close(): %v", err)
		}
	})

	return m
}

// --- memStore: in-memory Store and TrashStorage with fault injection ---

type memStore struct {
	mu    stdsync.Mutex
	files map[archive.Path][]byte

	listErr   error
	readErr   map[archive.Path]error
	writeErr  map[archive.Path]error
	deleteErr map[archive.Path]error

	// onRead runs before every read, outside the lock; an error fails it.
	onRead func(ctx context.Context, p archive.Path) error
	// onWrite runs after every successful write, outside the lock.
	onWrite func(p archive.Path)

	writes  []archive.Path
	deletes []archive.Path
}

func newMemStore(files map[string]string) *memStore {
	s := &memStore{
		files:     make(map[archive.Path][]byte),
		readErr:   make(map[archive.Path]error),
		writeErr:  make(map[archive.Path]error),
		deleteErr: make(map[archive.Path]error),
	}

	for p, content := range files {
		s.files[archive.Path(p)] = []byte(content)
	}

	return s
}

func (s *memStore) List(ctx context.Context) (archive.Listing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listErr != nil {
		return nil, s.listErr
	}

	l := make(archive.Listing, len(s.files))
	for p, c := range s.files {
		l[p] = archive.FingerprintOf(c)
	}

	return l, nil
}

func (s *memStore) Paths(ctx context.Context) ([]archive.Path, error) {
	l, err := s.List(ctx)
	if err != nil {
		return nil, err
	}

	return l.SortedPaths(), nil
}

func (s *memStore) Read(ctx context.Context, p archive.Path) ([]byte, error) {
	s.mu.Lock()
	hook := s.onRead
	s.mu.Unlock()

	if hook != nil {
		if err := hook(ctx, p); err != nil {
			return nil, err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.readErr[p]; err != nil {
		return nil, err
	}

	c, ok := s.files[p]
	if !ok {
		return nil, fmt.Errorf("mem: reading %s: %w", p, fs.ErrNotExist)
	}

	return append([]byte(nil), c...), nil
}

func (s *memStore) Write(_ context.Context, p archive.Path, content []byte) error {
	s.mu.Lock()

	if err := s.writeErr[p]; err != nil {
		s.mu.Unlock()
		return err
	}

	s.files[p] = append([]byte(nil), content...)
	s.writes = append(s.writes, p)
	hook := s.onWrite
	s.mu.Unlock()

	if hook != nil {
		hook(p)
	}

	return nil
}

func (s *memStore) Delete(_ context.Context, p archive.Path) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.deleteErr[p]; err != nil {
		return err
	}

	if _, ok := s.files[p]; !ok {
		return fmt.Errorf("mem: deleting %s: %w", p, fs.ErrNotExist)
	}

	delete(s.files, p)
	s.deletes = append(s.deletes, p)

	return nil
}

func (s *memStore) Wipe(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	clear(s.files)

	return nil
}

func (s *memStore) get(p string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.files[archive.Path(p)]

	return string(c), ok
}

func (s *memStore) put(p, content string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.files[archive.Path(p)] = []byte(content)
}

func (s *memStore) remove(p string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.files, archive.Path(p))
}

func (s *memStore) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.files)
}

// --- memFavorites: in-memory FavoritesStore ---

type memFavorites struct {
	mu       stdsync.Mutex
	favs     *archive.Favorites
	readErr  error
	writeErr error
	writes   int
}

func newMemFavorites(paths ...string) *memFavorites {
	favs := archive.NewFavorites()
	for _, p := range paths {
		favs.Upsert(archive.Path(p))
	}

	return &memFavorites{favs: favs}
}

func (f *memFavorites) Read(context.Context) (*archive.Favorites, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.readErr != nil {
		return nil, f.readErr
	}

	return f.favs.Clone(), nil
}

func (f *memFavorites) Write(_ context.Context, favs *archive.Favorites) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.writeErr != nil {
		return f.writeErr
	}

	f.favs = favs.Clone()
	f.writes++

	return nil
}

func (f *memFavorites) paths() []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]string, 0, f.favs.Len())
	for _, p := range f.favs.Paths() {
		out = append(out, string(p))
	}

	return out
}

// fp is shorthand for the fingerprint of a string.
func fp(s string) archive.Fingerprint {
	return archive.FingerprintOf([]byte(s))
}

// eventRecorder collects emitted events.
type eventRecorder struct {
	mu     stdsync.Mutex
	events []Event
}

func (r *eventRecorder) emit(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.events = append(r.events, ev)
}

func (r *eventRecorder) strings() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]string, 0, len(r.events))
	for _, ev := range r.events {
		out = append(out, ev.String())
	}

	return out
}
