package remote

import (
	"context"
	"fmt"
	"io/fs"
)

// Op names a storage request understood by the device.
type Op string

const (
	OpList   Op = "list"
	OpRead   Op = "read"
	OpWrite  Op = "write"
	OpDelete Op = "delete"
)

// Status is the outcome code carried by a Response.
type Status string

const (
	StatusOK       Status = "ok"
	StatusNotFound Status = "not_found"
	StatusError    Status = "error"
)

// Request is one storage call. Paths are absolute device paths.
type Request struct {
	ID   uint64 `json:"id"`
	Op   Op     `json:"op"`
	Path string `json:"path"`
	Data []byte `json:"data,omitempty"`
}

// Entry is one file in a list response. Name is relative to the listed
// directory and MD5 is the hex digest of the file's content.
type Entry struct {
	Name string `json:"name"`
	MD5  string `json:"md5"`
	Size int64  `json:"size"`
}

// Response answers the Request with the same ID.
type Response struct {
	ID      uint64  `json:"id"`
	Status  Status  `json:"status"`
	Entries []Entry `json:"entries,omitempty"`
	Data    []byte  `json:"data,omitempty"`
	Message string  `json:"message,omitempty"`
}

// Link carries requests to the device. Implementations return
// ErrLinkUnavailable or ErrTimeout (wrapped) for transport faults and
// report device-side outcomes through Response.Status.
type Link interface {
	Do(ctx context.Context, req Request) (Response, error)
	Close() error
}

// checkResponse converts a response status into an error.
func checkResponse(req Request, resp Response) error {
	switch resp.Status {
	case StatusOK:
		return nil
	case StatusNotFound:
		return &DeviceError{Op: req.Op, Path: req.Path, Message: resp.Message, Err: fs.ErrNotExist}
	case StatusError:
		return &DeviceError{Op: req.Op, Path: req.Path, Message: resp.Message, Err: ErrDevice}
	default:
		return &DeviceError{
			Op: req.Op, Path: req.Path,
			Message: fmt.Sprintf("unknown status %q", resp.Status),
			Err:     ErrMalformedResponse,
		}
	}
}
