package archive

import (
	"fmt"
	"slices"
	"strings"
)

// Status is the per-item synchronization state shown to the user. The zero
// value marks an item that has not been through a sync yet.
type Status int

const (
	StatusUnsynced Status = iota
	StatusSynchronized
	StatusSynchronizing
	StatusDeleted
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusUnsynced:
		return "unsynced"
	case StatusSynchronized:
		return "synchronized"
	case StatusSynchronizing:
		return "synchronizing"
	case StatusDeleted:
		return "deleted"
	case StatusError:
		return "error"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Item is one archive record: a key capture or a note.
type Item struct {
	Path     Path
	Type     FileType
	Name     string
	Content  []byte
	Favorite bool
	Status   Status
}

// NewItem builds an item for content stored at p, deriving type and name
// from the path.
func NewItem(p Path, content []byte) Item {
	return Item{
		Path:    p,
		Type:    TypeOf(p),
		Name:    p.Stem(),
		Content: content,
		Status:  StatusSynchronized,
	}
}

// Fingerprint returns the fingerprint of the item's content.
func (it Item) Fingerprint() Fingerprint { return FingerprintOf(it.Content) }

// SortItems orders items by path, the order the archive is presented in.
func SortItems(items []Item) {
	slices.SortFunc(items, func(a, b Item) int {
		return strings.Compare(string(a.Path), string(b.Path))
	})
}
