package archive

import (
	"bytes"
	"errors"
	"fmt"
	"slices"

	"github.com/samber/lo"
)

// Favorites is an ordered set of paths. Insertion order is preserved and
// duplicates are collapsed. The zero value is an empty set ready for use.
type Favorites struct {
	order []Path
	index map[Path]struct{}
}

// NewFavorites returns a set holding paths in first-seen order.
func NewFavorites(paths ...Path) *Favorites {
	f := &Favorites{}
	for _, p := range lo.Uniq(paths) {
		f.Upsert(p)
	}

	return f
}

// Upsert appends p unless it is already present. It reports whether the set
// changed.
func (f *Favorites) Upsert(p Path) bool {
	if f.index == nil {
		f.index = make(map[Path]struct{})
	}

	if _, ok := f.index[p]; ok {
		return false
	}

	f.index[p] = struct{}{}
	f.order = append(f.order, p)

	return true
}

// Remove deletes p, reporting whether it was present.
func (f *Favorites) Remove(p Path) bool {
	if _, ok := f.index[p]; !ok {
		return false
	}

	delete(f.index, p)
	f.order = slices.DeleteFunc(f.order, func(q Path) bool { return q == p })

	return true
}

// Toggle flips membership of p and reports the new state.
func (f *Favorites) Toggle(p Path) bool {
	if f.Remove(p) {
		return false
	}

	f.Upsert(p)

	return true
}

// Contains reports whether p is in the set.
func (f *Favorites) Contains(p Path) bool {
	if f == nil {
		return false
	}

	_, ok := f.index[p]

	return ok
}

// Len returns the number of paths.
func (f *Favorites) Len() int {
	if f == nil {
		return 0
	}

	return len(f.order)
}

// Paths returns a copy of the set in order.
func (f *Favorites) Paths() []Path {
	if f == nil {
		return nil
	}

	return slices.Clone(f.order)
}

// Clone returns an independent copy.
func (f *Favorites) Clone() *Favorites {
	return NewFavorites(f.Paths()...)
}

// Equal reports whether both sets hold the same paths in the same order.
// Order matters because it is what gets persisted.
func (f *Favorites) Equal(other *Favorites) bool {
	return slices.Equal(f.Paths(), other.Paths())
}

// Encode renders the set as one path per line, each newline-terminated.
func (f *Favorites) Encode() []byte {
	var buf bytes.Buffer
	for _, p := range f.Paths() {
		buf.WriteString(string(p))
		buf.WriteByte('\n')
	}

	return buf.Bytes()
}

// DecodeFavorites parses a favorites document. Blank lines and CRLF line
// endings are tolerated; repeated paths collapse to their first occurrence.
// Lines that are not valid paths are skipped and reported together in err;
// the returned set is never nil and holds every valid line.
func DecodeFavorites(data []byte) (*Favorites, error) {
	f := &Favorites{}

	var errs []error

	for i, line := range bytes.Split(data, []byte("\n")) {
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}

		p, err := NewPath(string(line))
		if err != nil {
			errs = append(errs, fmt.Errorf("archive: favorites line %d: %w", i+1, err))
			continue
		}

		f.Upsert(p)
	}

	return f, errors.Join(errs...)
}
