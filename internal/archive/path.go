// Package archive defines the data model shared by every layer of the
// synchronizer: logical paths, the shadow-file variant, file types,
// content fingerprints, archive items, and the favorites set.
package archive

import (
	"errors"
	"fmt"
	pathpkg "path"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// ErrInvalidPath is returned when a raw string cannot be turned into a Path.
var ErrInvalidPath = errors.New("archive: invalid path")

// Path is a normalized, slash-delimited, root-relative item identifier such
// as "nfc/Office.nfc". Construct with NewPath so every Path in the system is
// NFC-normalized and cleaned; two spellings of the same name compare equal.
type Path string

// NewPath normalizes raw into a Path. Leading slashes are dropped, repeated
// separators collapsed, and backslashes treated as separators. Paths that
// escape the root ("..") or are empty are rejected.
func NewPath(raw string) (Path, error) {
	s := norm.NFC.String(strings.TrimSpace(raw))
	s = strings.ReplaceAll(s, `\`, "/")
	s = strings.TrimLeft(s, "/")

	if s == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidPath)
	}

	for _, seg := range strings.Split(s, "/") {
		if seg == ".." {
			return "", fmt.Errorf("%w: %q escapes archive root", ErrInvalidPath, raw)
		}
	}

	cleaned := pathpkg.Clean(s)
	if cleaned == "." {
		return "", fmt.Errorf("%w: %q", ErrInvalidPath, raw)
	}

	return Path(cleaned), nil
}

// MustPath is NewPath for literals known to be valid. It panics otherwise.
func MustPath(raw string) Path {
	p, err := NewPath(raw)
	if err != nil {
		panic(err)
	}

	return p
}

func (p Path) String() string { return string(p) }

// Dir returns the parent directory, or "" for top-level paths.
func (p Path) Dir() string {
	d := pathpkg.Dir(string(p))
	if d == "." {
		return ""
	}

	return d
}

// Base returns the final path element including its extension.
func (p Path) Base() string { return pathpkg.Base(string(p)) }

// Ext returns the extension including the leading dot, lowercased.
func (p Path) Ext() string { return strings.ToLower(pathpkg.Ext(string(p))) }

// Stem returns the final path element without its extension.
func (p Path) Stem() string {
	base := p.Base()
	return strings.TrimSuffix(base, pathpkg.Ext(base))
}

// TopDir returns the first path segment, or "" for top-level paths.
func (p Path) TopDir() string {
	s := string(p)
	if i := strings.IndexByte(s, '/'); i >= 0 {
		return s[:i]
	}

	return ""
}

// WithStem returns p with its final element's name (not extension) replaced.
func (p Path) WithStem(stem string) (Path, error) {
	base := p.Base()
	name := stem + pathpkg.Ext(base)

	if d := p.Dir(); d != "" {
		return NewPath(d + "/" + name)
	}

	return NewPath(name)
}

// FreePath returns p if taken reports it unused, otherwise the first of
// "name_1.ext", "name_2.ext", ... that is free.
func FreePath(p Path, taken func(Path) bool) (Path, error) {
	if !taken(p) {
		return p, nil
	}

	for i := 1; ; i++ {
		candidate, err := p.WithStem(fmt.Sprintf("%s_%d", p.Stem(), i))
		if err != nil {
			return "", err
		}

		if !taken(candidate) {
			return candidate, nil
		}
	}
}
