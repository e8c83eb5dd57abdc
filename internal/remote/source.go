package remote

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	pathpkg "path"
	"strings"
	"sync/atomic"
	"time"

	"github.com/tonimelisma/flipper-sync/internal/archive"
)

// DefaultRoot is the device mount point that holds the archive.
const DefaultRoot = "/ext"

// SourceConfig tunes a Source. Zero values fall back to defaults.
type SourceConfig struct {
	Root           string        // device directory holding the archive
	RequestTimeout time.Duration // per request, 0 = no per-request deadline
	Retry          RetryPolicy
	Limiter        *Limiter       // nil = unlimited
	Exclude        []archive.Path // paths under Root that are not archive items
}

// Source exposes the device's archive through a Link with the same
// contract as the mobile stores.
type Source struct {
	link    Link
	cfg     SourceConfig
	exclude map[archive.Path]bool
	nextID  atomic.Uint64
	logger  *slog.Logger
}

// NewSource wraps link. The link is owned by the caller.
func NewSource(link Link, cfg SourceConfig, logger *slog.Logger) *Source {
	if cfg.Root == "" {
		cfg.Root = DefaultRoot
	}

	cfg.Root = "/" + strings.Trim(cfg.Root, "/")

	exclude := make(map[archive.Path]bool, len(cfg.Exclude))
	for _, p := range cfg.Exclude {
		exclude[p] = true
	}

	return &Source{link: link, cfg: cfg, exclude: exclude, logger: logger}
}

func (s *Source) devicePath(p archive.Path) string {
	return pathpkg.Join(s.cfg.Root, string(p))
}

// do sends req with the per-request timeout, retrying transport faults.
func (s *Source) do(ctx context.Context, req Request) (Response, error) {
	return retry(ctx, s.cfg.Retry, func() (Response, error) {
		req.ID = s.nextID.Add(1)

		reqCtx := ctx
		if s.cfg.RequestTimeout > 0 {
			var cancel context.CancelFunc
			reqCtx, cancel = context.WithTimeout(ctx, s.cfg.RequestTimeout)
			defer cancel()
		}

		resp, err := s.link.Do(reqCtx, req)
		if err != nil {
			if ctx.Err() != nil {
				return Response{}, ctx.Err()
			}

			if errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, ErrTimeout) {
				err = fmt.Errorf("%w: %w", ErrTimeout, err)
			}

			return Response{}, err
		}

		if resp.ID != req.ID {
			return Response{}, &DeviceError{
				Op: req.Op, Path: req.Path,
				Message: fmt.Sprintf("response id %d for request %d", resp.ID, req.ID),
				Err:     ErrMalformedResponse,
			}
		}

		return resp, checkResponse(req, resp)
	}, func(attempt int, err error) {
		s.logger.Warn("remote: retrying request",
			slog.String("op", string(req.Op)),
			slog.String("path", req.Path),
			slog.Int("attempt", attempt),
			slog.String("error", err.Error()),
		)
	})
}

// List fingerprints every archive file on the device.
func (s *Source) List(ctx context.Context) (archive.Listing, error) {
	resp, err := s.do(ctx, Request{Op: OpList, Path: s.cfg.Root})
	if err != nil {
		return nil, fmt.Errorf("remote: listing %s: %w", s.cfg.Root, err)
	}

	listing := make(archive.Listing, len(resp.Entries))

	for _, e := range resp.Entries {
		p, err := archive.NewPath(e.Name)
		if err != nil {
			s.logger.Warn("remote: skipping unaddressable entry", slog.String("name", e.Name))
			continue
		}

		if s.exclude[p] {
			continue
		}

		if e.MD5 == "" {
			return nil, &DeviceError{Op: OpList, Path: e.Name, Message: "entry without md5", Err: ErrMalformedResponse}
		}

		listing[p] = archive.Fingerprint(strings.ToLower(e.MD5))
	}

	s.logger.Debug("remote: listed archive", slog.Int("entries", len(listing)))

	return listing, nil
}

// Read downloads the content at p.
func (s *Source) Read(ctx context.Context, p archive.Path) ([]byte, error) {
	resp, err := s.do(ctx, Request{Op: OpRead, Path: s.devicePath(p)})
	if err != nil {
		return nil, fmt.Errorf("remote: reading %s: %w", p, err)
	}

	if err := s.cfg.Limiter.WaitN(ctx, len(resp.Data)); err != nil {
		return nil, err
	}

	return resp.Data, nil
}

// Write uploads content to p, replacing any existing file.
func (s *Source) Write(ctx context.Context, p archive.Path, content []byte) error {
	if err := s.cfg.Limiter.WaitN(ctx, len(content)); err != nil {
		return err
	}

	if _, err := s.do(ctx, Request{Op: OpWrite, Path: s.devicePath(p), Data: content}); err != nil {
		return fmt.Errorf("remote: writing %s: %w", p, err)
	}

	return nil
}

// Delete removes p from the device.
func (s *Source) Delete(ctx context.Context, p archive.Path) error {
	if _, err := s.do(ctx, Request{Op: OpDelete, Path: s.devicePath(p)}); err != nil {
		return fmt.Errorf("remote: deleting %s: %w", p, err)
	}

	return nil
}
