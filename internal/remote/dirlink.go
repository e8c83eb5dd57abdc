package remote

import (
	"context"
	"errors"
	"io/fs"
	pathpkg "path"
	"strings"

	"github.com/tonimelisma/flipper-sync/internal/archive"
	"github.com/tonimelisma/flipper-sync/internal/storage"
)

// DirLink serves device requests from a local directory that mirrors the
// device's storage, such as an SD card mounted on the host. The directory
// stands in for the device path mount (usually "/ext").
type DirLink struct {
	store *storage.Store
	mount string
}

// NewDirLink serves requests under mount from store.
func NewDirLink(store *storage.Store, mount string) *DirLink {
	return &DirLink{store: store, mount: "/" + strings.Trim(mount, "/")}
}

// Close is a no-op; the store has nothing to release.
func (l *DirLink) Close() error { return nil }

// Do executes req against the directory.
func (l *DirLink) Do(ctx context.Context, req Request) (Response, error) {
	if err := ctx.Err(); err != nil {
		return Response{}, err
	}

	resp := Response{ID: req.ID, Status: StatusOK}

	rel, ok := l.relative(req.Path)
	if !ok {
		return failure(req, StatusError, "path outside "+l.mount), nil
	}

	if req.Op == OpList {
		listing, err := l.store.List(ctx)
		if err != nil {
			return failure(req, StatusError, err.Error()), nil
		}

		for _, p := range listing.SortedPaths() {
			name := string(p)
			if rel != "" {
				if !strings.HasPrefix(name, rel+"/") {
					continue
				}

				name = strings.TrimPrefix(name, rel+"/")
			}

			resp.Entries = append(resp.Entries, Entry{Name: name, MD5: string(listing[p])})
		}

		return resp, nil
	}

	p, err := archive.NewPath(rel)
	if err != nil {
		return failure(req, StatusError, err.Error()), nil
	}

	switch req.Op {
	case OpRead:
		resp.Data, err = l.store.Read(ctx, p)
	case OpWrite:
		err = l.store.Write(ctx, p, req.Data)
	case OpDelete:
		err = l.store.Delete(ctx, p)
	default:
		return failure(req, StatusError, "unsupported op "+string(req.Op)), nil
	}

	switch {
	case errors.Is(err, fs.ErrNotExist):
		return failure(req, StatusNotFound, err.Error()), nil
	case err != nil:
		return failure(req, StatusError, err.Error()), nil
	}

	return resp, nil
}

// relative maps an absolute device path to a store-relative one.
func (l *DirLink) relative(devicePath string) (string, bool) {
	clean := pathpkg.Clean("/" + devicePath)
	if clean == l.mount {
		return "", true
	}

	if !strings.HasPrefix(clean, l.mount+"/") {
		return "", false
	}

	return strings.TrimPrefix(clean, l.mount+"/"), true
}

func failure(req Request, status Status, msg string) Response {
	return Response{ID: req.ID, Status: status, Message: msg}
}
