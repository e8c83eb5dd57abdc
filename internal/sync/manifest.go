package sync

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	stdsync "sync"
	"time"

	// Pure-Go SQLite driver (no CGO).
	_ "modernc.org/sqlite"

	"github.com/tonimelisma/flipper-sync/internal/archive"
)

// SQL statements for manifest operations.
const (
	sqlLoadManifest = `SELECT path, fingerprint, synced_at, run_id FROM synced_manifest`

	sqlUpsertManifest = `INSERT INTO synced_manifest (path, fingerprint, synced_at, run_id)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
		 fingerprint = excluded.fingerprint,
		 synced_at = excluded.synced_at,
		 run_id = excluded.run_id`

	sqlDeleteManifest = `DELETE FROM synced_manifest WHERE path = ?`

	sqlCountManifest = `SELECT COUNT(*) FROM synced_manifest`

	sqlLoadFavorites  = `SELECT path FROM synced_favorites ORDER BY position`
	sqlClearFavorites = `DELETE FROM synced_favorites`
	sqlInsertFavorite = `INSERT INTO synced_favorites (position, path) VALUES (?, ?)`

	sqlInsertRun = `INSERT INTO sync_runs
		(run_id, started_at, finished_at, outcome, changes, error)
		VALUES (?, ?, ?, ?, ?, ?)`

	sqlLastRun = `SELECT run_id, started_at, finished_at, outcome, changes, error
		FROM sync_runs ORDER BY started_at DESC LIMIT 1`
)

// ManifestEntry is the last confirmed identical state of one path.
type ManifestEntry struct {
	Path        archive.Path
	Fingerprint archive.Fingerprint
	SyncedAt    time.Time
	RunID       string
}

// RunRecord summarizes one finished sync run.
type RunRecord struct {
	RunID      string
	StartedAt  time.Time
	FinishedAt time.Time
	Outcome    RunState
	Changes    int
	Err        string
}

// Manifest is the synced manifest: the persisted {path -> fingerprint}
// record of what was last confirmed identical between mobile and device.
// It also holds the synced-favorites baseline and the run history. Every
// write is its own transaction, so an entry is visible only once the
// transfer it records has succeeded.
type Manifest struct {
	mu      stdsync.Mutex
	db      *sql.DB
	logger  *slog.Logger
	nowFunc func() time.Time // injectable for deterministic tests

	schemaVersion int64
}

// NewManifest opens the SQLite database at dbPath, runs migrations, and
// returns a ready-to-use manifest. The database uses WAL mode with
// synchronous=FULL for crash-safe durability.
func NewManifest(dbPath string, logger *slog.Logger) (*Manifest, error) {
	dsn := fmt.Sprintf(
		"file:%s?_pragma=journal_mode(WAL)&_pragma=synchronous(FULL)"+
			"&_pragma=foreign_keys(ON)&_pragma=busy_timeout(5000)",
		dbPath,
	)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sync: opening database %s: %w", dbPath, err)
	}

	// Sole-writer pattern: only one connection writes at a time.
	db.SetMaxOpenConns(1)

	version, err := migrateManifest(context.Background(), db, logger)
	if err != nil {
		db.Close()
		return nil, err
	}

	logger.Info("manifest initialized", slog.String("db_path", dbPath), slog.Int64("schema_version", version))

	return &Manifest{db: db, logger: logger, nowFunc: time.Now, schemaVersion: version}, nil
}

// SchemaVersion is the migration version the database was opened at.
func (m *Manifest) SchemaVersion() int64 { return m.schemaVersion }

// Close releases the database.
func (m *Manifest) Close() error {
	return m.db.Close()
}

// Load returns the manifest as a listing.
func (m *Manifest) Load(ctx context.Context) (archive.Listing, error) {
	entries, err := m.Entries(ctx)
	if err != nil {
		return nil, err
	}

	listing := make(archive.Listing, len(entries))
	for _, e := range entries {
		listing[e.Path] = e.Fingerprint
	}

	m.logger.Debug("manifest loaded", slog.Int("entries", len(listing)))

	return listing, nil
}

// Entries returns every manifest entry.
func (m *Manifest) Entries(ctx context.Context) ([]ManifestEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rows, err := m.db.QueryContext(ctx, sqlLoadManifest)
	if err != nil {
		return nil, fmt.Errorf("sync: loading manifest: %w", err)
	}
	defer rows.Close()

	var entries []ManifestEntry

	for rows.Next() {
		var (
			e        ManifestEntry
			path     string
			fp       string
			syncedAt int64
		)

		if err := rows.Scan(&path, &fp, &syncedAt, &e.RunID); err != nil {
			return nil, fmt.Errorf("sync: scanning manifest row: %w", err)
		}

		e.Path = archive.Path(path)
		e.Fingerprint = archive.Fingerprint(fp)
		e.SyncedAt = time.Unix(0, syncedAt)
		entries = append(entries, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sync: iterating manifest rows: %w", err)
	}

	return entries, nil
}

// Len returns the number of entries.
func (m *Manifest) Len(ctx context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var n int
	if err := m.db.QueryRowContext(ctx, sqlCountManifest).Scan(&n); err != nil {
		return 0, fmt.Errorf("sync: counting manifest: %w", err)
	}

	return n, nil
}

// Upsert records p as synchronized with fingerprint fp.
func (m *Manifest) Upsert(ctx context.Context, p archive.Path, fp archive.Fingerprint, runID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, err := m.db.ExecContext(ctx, sqlUpsertManifest, string(p), string(fp), m.nowFunc().UnixNano(), runID)
	if err != nil {
		return fmt.Errorf("sync: upserting manifest for %s: %w", p, err)
	}

	return nil
}

// Delete drops the entry for p. Deleting an absent entry is not an error.
func (m *Manifest) Delete(ctx context.Context, p archive.Path) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, err := m.db.ExecContext(ctx, sqlDeleteManifest, string(p)); err != nil {
		return fmt.Errorf("sync: deleting manifest for %s: %w", p, err)
	}

	return nil
}

// RecordRun appends a run to the history.
func (m *Manifest) RecordRun(ctx context.Context, r RunRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, err := m.db.ExecContext(ctx, sqlInsertRun,
		r.RunID, r.StartedAt.UnixNano(), r.FinishedAt.UnixNano(),
		r.Outcome.String(), r.Changes, nullString(r.Err),
	)
	if err != nil {
		return fmt.Errorf("sync: recording run %s: %w", r.RunID, err)
	}

	return nil
}

// LastRun returns the most recent run, or false if none was recorded.
func (m *Manifest) LastRun(ctx context.Context) (RunRecord, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var (
		r                 RunRecord
		started, finished int64
		outcome           string
		errText           sql.NullString
	)

	err := m.db.QueryRowContext(ctx, sqlLastRun).Scan(&r.RunID, &started, &finished, &outcome, &r.Changes, &errText)
	if errors.Is(err, sql.ErrNoRows) {
		return RunRecord{}, false, nil
	}

	if err != nil {
		return RunRecord{}, false, fmt.Errorf("sync: reading last run: %w", err)
	}

	r.StartedAt = time.Unix(0, started)
	r.FinishedAt = time.Unix(0, finished)
	r.Outcome = parseRunState(outcome)
	r.Err = errText.String

	return r, true, nil
}

// SyncedFavorites returns a FavoritesStore over the baseline kept in the
// manifest database.
func (m *Manifest) SyncedFavorites() FavoritesStore {
	return &syncedFavorites{m: m}
}

type syncedFavorites struct {
	m *Manifest
}

func (s *syncedFavorites) Read(ctx context.Context) (*archive.Favorites, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()

	rows, err := s.m.db.QueryContext(ctx, sqlLoadFavorites)
	if err != nil {
		return nil, fmt.Errorf("sync: loading synced favorites: %w", err)
	}
	defer rows.Close()

	favs := archive.NewFavorites()

	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, fmt.Errorf("sync: scanning synced favorite: %w", err)
		}

		favs.Upsert(archive.Path(p))
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sync: iterating synced favorites: %w", err)
	}

	return favs, nil
}

func (s *syncedFavorites) Write(ctx context.Context, favs *archive.Favorites) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()

	tx, err := s.m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sync: beginning favorites transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, sqlClearFavorites); err != nil {
		return fmt.Errorf("sync: clearing synced favorites: %w", err)
	}

	for i, p := range favs.Paths() {
		if _, err := tx.ExecContext(ctx, sqlInsertFavorite, i, string(p)); err != nil {
			return fmt.Errorf("sync: inserting synced favorite %s: %w", p, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sync: committing synced favorites: %w", err)
	}

	return nil
}

// nullString returns a sql.NullString that is NULL for empty strings.
func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
