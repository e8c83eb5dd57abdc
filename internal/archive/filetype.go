package archive

import (
	"fmt"
	"strings"
)

// FileType is the fixed enumeration of item formats the device stores.
type FileType int

const (
	Unknown FileType = iota
	RFID
	SubGHz
	NFC
	IButton
	Infrared
	Note
)

// fileTypeInfo is the per-type extension, device directory, and label.
var fileTypeInfo = map[FileType]struct {
	ext, dir, name string
}{
	RFID:     {".rfid", "lfrfid", "rfid"},
	SubGHz:   {".sub", "subghz", "subghz"},
	NFC:      {".nfc", "nfc", "nfc"},
	IButton:  {".ibtn", "ibutton", "ibutton"},
	Infrared: {".ir", "infrared", "infrared"},
	Note:     {".txt", "notes", "note"},
}

func (t FileType) String() string {
	if info, ok := fileTypeInfo[t]; ok {
		return info.name
	}

	return "unknown"
}

// Extension returns the canonical extension including the dot.
func (t FileType) Extension() string { return fileTypeInfo[t].ext }

// Directory returns the top-level directory the type lives under.
func (t FileType) Directory() string { return fileTypeInfo[t].dir }

// Synced reports whether items of this type are exchanged with the device.
// Notes stay on the mobile side.
func (t FileType) Synced() bool { return t != Unknown && t != Note }

// ParseFileType converts a label such as "nfc" back into a FileType.
func ParseFileType(s string) (FileType, error) {
	for t, info := range fileTypeInfo {
		if strings.EqualFold(info.name, s) {
			return t, nil
		}
	}

	return Unknown, fmt.Errorf("archive: unknown file type %q", s)
}

// TypeForDir returns the type whose items live under dir.
func TypeForDir(dir string) (FileType, bool) {
	for t, info := range fileTypeInfo {
		if info.dir == dir {
			return t, true
		}
	}

	return Unknown, false
}

// TypeOf infers the file type of p from its extension. Shadow markers take
// the type of their origin.
func TypeOf(p Path) FileType {
	if ref := Classify(p); ref.IsShadow() {
		p = ref.Origin
	}

	ext := p.Ext()
	for t, info := range fileTypeInfo {
		if info.ext == ext {
			return t
		}
	}

	return Unknown
}
