package archive

import "strings"

// ShadowExt is the suffix that marks a transient duplicate-write file.
const ShadowExt = ".shd"

// Kind distinguishes canonical item paths from shadow markers.
type Kind int

const (
	KindCanonical Kind = iota
	KindShadow
)

func (k Kind) String() string {
	if k == KindShadow {
		return "shadow"
	}

	return "canonical"
}

// Ref is a Path tagged once at ingestion with its kind. For shadow refs,
// Origin is the canonical path the marker stands for; for canonical refs
// Origin equals Path.
type Ref struct {
	Path   Path
	Kind   Kind
	Origin Path
}

// IsShadow reports whether the ref is a shadow marker.
func (r Ref) IsShadow() bool { return r.Kind == KindShadow }

func (r Ref) String() string { return string(r.Path) }

// Classify tags p as canonical or shadow. A shadow "nfc/Card.shd" resolves
// to "nfc/Card.nfc": the suffix is stripped and the extension of the type
// owning the top-level directory is restored, defaulting to NFC.
func Classify(p Path) Ref {
	s := string(p)
	if !strings.HasSuffix(strings.ToLower(s), ShadowExt) || len(s) == len(ShadowExt) {
		return Ref{Path: p, Kind: KindCanonical, Origin: p}
	}

	ext := NFC.Extension()
	if t, ok := TypeForDir(p.TopDir()); ok && t != Note {
		ext = t.Extension()
	}

	origin := Path(s[:len(s)-len(ShadowExt)] + ext)

	return Ref{Path: p, Kind: KindShadow, Origin: origin}
}
