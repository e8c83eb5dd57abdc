// Package storage implements the byte stores the synchronizer runs against
// on the mobile side: the active archive, notes, the trash, and the
// favorites documents. Each store is rooted in a directory of an afero.Fs,
// so production uses the OS filesystem and tests use an in-memory one.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	pathpkg "path"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"

	"github.com/tonimelisma/flipper-sync/internal/archive"
)

// tmpPrefix marks in-progress writes. Files carrying it are never listed.
const tmpPrefix = ".flipper-sync-tmp-"

// IsTempFile reports whether the base name belongs to an in-progress write.
func IsTempFile(name string) bool {
	return strings.HasPrefix(name, tmpPrefix)
}

const (
	dirPerm  = 0o755
	filePerm = 0o644
)

// Store is a path-keyed byte store rooted at a directory.
type Store struct {
	fs     afero.Fs
	root   string
	logger *slog.Logger
}

// New returns a store rooted at root within fsys. The root is created on
// first write.
func New(fsys afero.Fs, root string, logger *slog.Logger) *Store {
	return &Store{fs: fsys, root: filepath.Clean(root), logger: logger}
}

// NewOS returns a store rooted at an OS directory, creating it if needed.
func NewOS(root string, logger *slog.Logger) (*Store, error) {
	fsys := afero.NewOsFs()
	if err := fsys.MkdirAll(root, dirPerm); err != nil {
		return nil, fmt.Errorf("storage: creating %s: %w", root, err)
	}

	return New(fsys, root, logger), nil
}

// Root returns the directory the store is rooted at.
func (s *Store) Root() string { return s.root }

func (s *Store) abs(p archive.Path) string {
	return filepath.Join(s.root, filepath.FromSlash(string(p)))
}

// List fingerprints every file under the root.
func (s *Store) List(ctx context.Context) (archive.Listing, error) {
	listing := make(archive.Listing)

	err := afero.Walk(s.fs, s.root, func(name string, info fs.FileInfo, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) && name == s.root {
				return nil
			}

			return err
		}

		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		if info.IsDir() || IsTempFile(info.Name()) {
			return nil
		}

		rel, err := filepath.Rel(s.root, name)
		if err != nil {
			return err
		}

		p, err := archive.NewPath(filepath.ToSlash(rel))
		if err != nil {
			s.logger.Warn("storage: skipping unaddressable file", slog.String("name", name))
			return nil
		}

		content, err := afero.ReadFile(s.fs, name)
		if err != nil {
			return err
		}

		listing[p] = archive.FingerprintOf(content)

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("storage: listing %s: %w", s.root, err)
	}

	return listing, nil
}

// Paths returns the stored paths without reading content.
func (s *Store) Paths(ctx context.Context) ([]archive.Path, error) {
	var out []archive.Path

	err := afero.Walk(s.fs, s.root, func(name string, info fs.FileInfo, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) && name == s.root {
				return nil
			}

			return err
		}

		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		if info.IsDir() || IsTempFile(info.Name()) {
			return nil
		}

		rel, err := filepath.Rel(s.root, name)
		if err != nil {
			return err
		}

		if p, err := archive.NewPath(filepath.ToSlash(rel)); err == nil {
			out = append(out, p)
		}

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("storage: walking %s: %w", s.root, err)
	}

	return out, nil
}

// Read returns the content at p. A missing path yields an error matching
// fs.ErrNotExist.
func (s *Store) Read(ctx context.Context, p archive.Path) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	content, err := afero.ReadFile(s.fs, s.abs(p))
	if err != nil {
		return nil, fmt.Errorf("storage: reading %s: %w", p, err)
	}

	return content, nil
}

// Exists reports whether a file is stored at p.
func (s *Store) Exists(_ context.Context, p archive.Path) bool {
	ok, err := afero.Exists(s.fs, s.abs(p))
	return err == nil && ok
}

// Write stores content at p atomically: the bytes go to a temp file in the
// destination directory which is then renamed over the target.
func (s *Store) Write(ctx context.Context, p archive.Path, content []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	dst := s.abs(p)
	dir := filepath.Dir(dst)

	if err := s.fs.MkdirAll(dir, dirPerm); err != nil {
		return fmt.Errorf("storage: creating directory for %s: %w", p, err)
	}

	tmp, err := afero.TempFile(s.fs, dir, tmpPrefix+"*")
	if err != nil {
		return fmt.Errorf("storage: creating temp file for %s: %w", p, err)
	}

	tmpName := tmp.Name()

	if _, err := tmp.Write(content); err != nil {
		tmp.Close()
		s.fs.Remove(tmpName)

		return fmt.Errorf("storage: writing %s: %w", p, err)
	}

	if err := tmp.Sync(); err != nil {
		tmp.Close()
		s.fs.Remove(tmpName)

		return fmt.Errorf("storage: syncing %s: %w", p, err)
	}

	if err := tmp.Close(); err != nil {
		s.fs.Remove(tmpName)
		return fmt.Errorf("storage: closing %s: %w", p, err)
	}

	if err := s.fs.Chmod(tmpName, filePerm); err != nil {
		s.logger.Debug("storage: chmod failed", slog.String("path", string(p)), slog.String("error", err.Error()))
	}

	if err := s.fs.Rename(tmpName, dst); err != nil {
		s.fs.Remove(tmpName)
		return fmt.Errorf("storage: renaming into %s: %w", p, err)
	}

	return nil
}

// Delete removes p. Deleting a missing path yields an error matching
// fs.ErrNotExist. Emptied parent directories below the root are pruned.
func (s *Store) Delete(ctx context.Context, p archive.Path) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := s.fs.Remove(s.abs(p)); err != nil {
		return fmt.Errorf("storage: deleting %s: %w", p, err)
	}

	s.pruneParents(p)

	return nil
}

func (s *Store) pruneParents(p archive.Path) {
	for dir := pathpkg.Dir(string(p)); dir != "." && dir != "/"; dir = pathpkg.Dir(dir) {
		abs := filepath.Join(s.root, filepath.FromSlash(dir))

		entries, err := afero.ReadDir(s.fs, abs)
		if err != nil || len(entries) > 0 {
			return
		}

		if err := s.fs.Remove(abs); err != nil {
			return
		}
	}
}

// Wipe removes everything under the root.
func (s *Store) Wipe(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := s.fs.RemoveAll(s.root); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("storage: wiping %s: %w", s.root, err)
	}

	return nil
}
