package archiveindex

import "errors"

var (
	// ErrFormat wraps a malformed header/footer field (wrong version, bad
	// reserved bytes, out-of-range size constants).
	ErrFormat = errors.New("archiveindex: malformed format")
	// ErrCorrupt wraps a footer_hash mismatch.
	ErrCorrupt = errors.New("archiveindex: corrupt index")
	// ErrNotFound is returned by Lookup when the key is absent.
	ErrNotFound = errors.New("archiveindex: key not found")
)
