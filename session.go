package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/tonimelisma/flipper-sync/internal/archive"
	"github.com/tonimelisma/flipper-sync/internal/config"
	"github.com/tonimelisma/flipper-sync/internal/remote"
	"github.com/tonimelisma/flipper-sync/internal/storage"
	isync "github.com/tonimelisma/flipper-sync/internal/sync"
)

// mobileFavoritesName is the local favorites document inside the state
// directory, kept apart from the archive so it is never listed as an item.
const mobileFavoritesName archive.Path = "favorites.txt"

// errNoDevice is returned when a command needs the device but neither
// device.url nor device.dir is configured.
var errNoDevice = errors.New("no device configured: set device.url or device.dir, or pass --device-url / --device-dir")

// session holds everything one CLI invocation needs: the loaded archive
// facade and the resources to release afterwards.
type session struct {
	cfg      *config.Config
	logger   *slog.Logger
	archive  *isync.Archive
	manifest *isync.Manifest
	link     remote.Link
	mobile   *storage.Store
}

// dataPath joins elements below the configured data directory.
func dataPath(cfg *config.Config, elem ...string) string {
	return filepath.Join(append([]string{cfg.Storage.DataDir}, elem...)...)
}

func manifestPath(cfg *config.Config) string {
	return dataPath(cfg, config.StateDirName, config.ManifestFileName)
}

func pidPath(cfg *config.Config) string {
	return dataPath(cfg, config.StateDirName, config.PIDFileName)
}

func hasDevice(cfg *config.Config) bool {
	return cfg.Device.URL != "" || cfg.Device.Dir != ""
}

// openSession wires the stores, the device link and the archive facade, and
// loads the archive.
func openSession(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*session, error) {
	mobile, err := storage.NewOS(dataPath(cfg, config.ArchiveDirName), logger)
	if err != nil {
		return nil, err
	}

	notes, err := storage.NewOS(dataPath(cfg, config.NotesDirName), logger)
	if err != nil {
		return nil, err
	}

	trash, err := storage.NewOS(dataPath(cfg, config.TrashDirName), logger)
	if err != nil {
		return nil, err
	}

	state, err := storage.NewOS(dataPath(cfg, config.StateDirName), logger)
	if err != nil {
		return nil, err
	}

	manifest, err := isync.NewManifest(manifestPath(cfg), logger)
	if err != nil {
		return nil, err
	}

	link, err := openLink(cfg, logger)
	if err != nil {
		manifest.Close()
		return nil, err
	}

	source, remoteFavorites, err := newSource(cfg, link, logger)
	if err != nil {
		link.Close()
		manifest.Close()

		return nil, err
	}

	a := isync.NewArchive(isync.ArchiveConfig{
		Mobile:          mobile,
		Notes:           notes,
		Remote:          source,
		Trash:           trash,
		Manifest:        manifest,
		MobileFavorites: storage.NewFavoritesFile(state, mobileFavoritesName),
		RemoteFavorites: remoteFavorites,
		EventWorkers:    cfg.Sync.EventWorkers,
		Logger:          logger,
	})

	s := &session{cfg: cfg, logger: logger, archive: a, manifest: manifest, link: link, mobile: mobile}

	if err := a.Load(ctx); err != nil {
		s.Close()
		return nil, err
	}

	return s, nil
}

// openLink picks the transport for the configured device.
func openLink(cfg *config.Config, logger *slog.Logger) (remote.Link, error) {
	switch {
	case cfg.Device.URL != "":
		return remote.NewWebSocketLink(cfg.Device.URL, logger), nil
	case cfg.Device.Dir != "":
		store, err := storage.NewOS(cfg.Device.Dir, logger)
		if err != nil {
			return nil, err
		}

		return remote.NewDirLink(store, cfg.Device.Root), nil
	default:
		return noDeviceLink{}, nil
	}
}

// newSource builds the remote archive source and the device favorites
// document on top of link.
func newSource(cfg *config.Config, link remote.Link, logger *slog.Logger) (*remote.Source, *remote.FavoritesFile, error) {
	limiter, err := remote.NewLimiter(cfg.Device.BandwidthLimit, logger)
	if err != nil {
		return nil, nil, err
	}

	favPath, err := archive.NewPath(cfg.Device.FavoritesFile)
	if err != nil {
		return nil, nil, fmt.Errorf("device.favorites_file: %w", err)
	}

	policy := remote.DefaultRetryPolicy()
	policy.MaxAttempts = cfg.Device.MaxRetries + 1

	source := remote.NewSource(link, remote.SourceConfig{
		Root:           cfg.Device.Root,
		RequestTimeout: cfg.Device.Timeout(),
		Retry:          policy,
		Limiter:        limiter,
		Exclude:        []archive.Path{favPath},
	}, logger)

	return source, remote.NewFavoritesFile(source, favPath), nil
}

// Close releases the link and the manifest database.
func (s *session) Close() {
	if err := s.link.Close(); err != nil {
		s.logger.Debug("closing device link", slog.String("error", err.Error()))
	}

	if err := s.manifest.Close(); err != nil {
		s.logger.Warn("closing manifest", slog.String("error", err.Error()))
	}
}

// noDeviceLink stands in when no device is configured. Local commands work;
// anything that reaches the device fails without retrying.
type noDeviceLink struct{}

func (noDeviceLink) Do(context.Context, remote.Request) (remote.Response, error) {
	return remote.Response{}, errNoDevice
}

func (noDeviceLink) Close() error { return nil }
