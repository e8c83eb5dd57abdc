// Package remote adapts the device's storage, reached over a slow and
// intermittent link, to the same list/read/write/delete contract the mobile
// stores implement. It owns the transport error taxonomy, request retries,
// per-request timeouts, and link throughput limiting.
package remote

import (
	"errors"
	"fmt"
)

// Sentinel errors for transport faults. Use errors.Is(err, remote.ErrTimeout)
// to check. Missing paths are reported with fs.ErrNotExist instead.
var (
	ErrLinkUnavailable   = errors.New("remote: link unavailable")
	ErrTimeout           = errors.New("remote: request timed out")
	ErrMalformedResponse = errors.New("remote: malformed response")
	ErrDevice            = errors.New("remote: device error")
)

// DeviceError wraps a sentinel with the operation and path that failed and
// the message the device returned, if any.
type DeviceError struct {
	Op      Op
	Path    string
	Message string
	Err     error // sentinel, for errors.Is()
}

func (e *DeviceError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("remote: %s %s: %v: %s", e.Op, e.Path, e.Err, e.Message)
	}

	return fmt.Sprintf("remote: %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *DeviceError) Unwrap() error {
	return e.Err
}

// isRetryable reports whether a failed request is worth repeating. Only
// transport faults are; not-found and device-reported errors are final.
func isRetryable(err error) bool {
	return errors.Is(err, ErrLinkUnavailable) || errors.Is(err, ErrTimeout)
}
