package sync

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"

	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// migrateManifest brings the manifest schema up to date and returns the
// resulting schema version.
func migrateManifest(ctx context.Context, db *sql.DB, logger *slog.Logger) (int64, error) {
	sqlFiles, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		return 0, fmt.Errorf("sync: opening embedded migrations: %w", err)
	}

	provider, err := goose.NewProvider(goose.DialectSQLite3, db, sqlFiles)
	if err != nil {
		return 0, fmt.Errorf("sync: preparing manifest migrations: %w", err)
	}

	applied, err := provider.Up(ctx)
	if err != nil {
		return 0, fmt.Errorf("sync: migrating manifest: %w", err)
	}

	for _, r := range applied {
		logger.Info("manifest schema migrated",
			slog.Int64("version", r.Source.Version),
			slog.Duration("took", r.Duration),
		)
	}

	version, err := provider.GetDBVersion(ctx)
	if err != nil {
		return 0, fmt.Errorf("sync: reading manifest schema version: %w", err)
	}

	return version, nil
}
