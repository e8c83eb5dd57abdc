package archive

import (
	"crypto/md5" //nolint:gosec // the device reports md5 digests; used for change detection only
	"encoding/hex"
	"slices"
)

// Fingerprint is a comparable content summary: the lowercase hex MD5 digest,
// matching what the device's storage API reports for a file.
type Fingerprint string

// FingerprintOf computes the fingerprint of content.
func FingerprintOf(content []byte) Fingerprint {
	sum := md5.Sum(content) //nolint:gosec // see import
	return Fingerprint(hex.EncodeToString(sum[:]))
}

// Listing maps each path in a store to the fingerprint of its content.
type Listing map[Path]Fingerprint

// SortedPaths returns the listing's paths in lexical order.
func (l Listing) SortedPaths() []Path {
	out := make([]Path, 0, len(l))
	for p := range l {
		out = append(out, p)
	}

	slices.Sort(out)

	return out
}
