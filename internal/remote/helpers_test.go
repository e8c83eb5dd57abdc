package remote

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/spf13/afero"

	"github.com/tonimelisma/flipper-sync/internal/archive"
	"github.com/tonimelisma/flipper-sync/internal/storage"
)

func testLogger(t *testing.T) *slog.Logger {
	t.Helper()

	return slog.New(slog.NewTextHandler(&testLogWriter{t: t}, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
}

type testLogWriter struct {
	t *testing.T
}

func (w *testLogWriter) Write(p []byte) (int, error) {
	w.t.Helper()
	w.t.Log(string(p))

	return len(p), nil
}

// fastRetry retries quickly so tests stay fast.
func fastRetry(attempts int) RetryPolicy {
	return RetryPolicy{MaxAttempts: attempts, InitialWait: time.Millisecond, MaxWait: 5 * time.Millisecond, Multiplier: 2}
}

// newDirLink returns a DirLink over an in-memory SD card image mounted at
// /ext, plus the store behind it.
func newDirLink(t *testing.T) (*DirLink, *storage.Store) {
	t.Helper()

	store := storage.New(afero.NewMemMapFs(), "/sdcard", testLogger(t))

	return NewDirLink(store, DefaultRoot), store
}

func newDirSource(t *testing.T) (*Source, *storage.Store) {
	t.Helper()

	link, store := newDirLink(t)

	src := NewSource(link, SourceConfig{
		Retry:   fastRetry(1),
		Exclude: []archive.Path{DefaultFavoritesPath},
	}, testLogger(t))

	return src, store
}

// scriptedLink returns canned results in order, then delegates to next.
type scriptedLink struct {
	mu      sync.Mutex
	errs    []error
	next    Link
	calls   int
	respond func(req Request) Response
}

func (l *scriptedLink) Do(ctx context.Context, req Request) (Response, error) {
	l.mu.Lock()
	l.calls++

	if len(l.errs) > 0 {
		err := l.errs[0]
		l.errs = l.errs[1:]
		l.mu.Unlock()

		return Response{}, err
	}

	respond := l.respond
	l.mu.Unlock()

	if respond != nil {
		return respond(req), nil
	}

	return l.next.Do(ctx, req)
}

func (l *scriptedLink) Close() error { return nil }

func (l *scriptedLink) callCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.calls
}
