package localindex

import "errors"

var (
	// ErrEmptyEntry is returned when parsing an all-zero (padding) record.
	ErrEmptyEntry = errors.New("localindex: empty entry")
	// ErrEntryTooSmall is returned when a buffer is shorter than a full record.
	ErrEntryTooSmall = errors.New("localindex: entry buffer too small")
	// ErrNotFound is returned by Lookup when a key is absent from both sections.
	ErrNotFound = errors.New("localindex: key not found")
	// ErrInvalidKeySize is returned for a key length other than 9 or 16 bytes.
	ErrInvalidKeySize = errors.New("localindex: invalid key size")
	// ErrCorrupt wraps a guarded-block hash mismatch or malformed header.
	ErrCorrupt = errors.New("localindex: corrupt index file")
	// ErrUpdateSectionFull is returned when the update section cannot accept
	// another record even immediately after a flush attempt.
	ErrUpdateSectionFull = errors.New("localindex: update section full after flush")
)
