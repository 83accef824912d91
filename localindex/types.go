// Package localindex implements the per-bucket LSM-tree journal (the
// "v7 .idx" format): a sorted, binary-searchable section merged
// periodically from an append-only update section, one journal file per
// bucket. Record layout is fixed at 18/19 bytes with the mixed endianness
// (little-endian headers and sizes, big-endian archive locations) that
// Agent.exe and CascLib write.
package localindex

import (
	"encoding/binary"
	"fmt"

	"github.com/castore-ngdp/castore/binarycodec"
)

// KeySize is the truncated encoding-key length used by local indices.
const KeySize = 9

// EncodingKey is a 9-byte truncated content-addressed key.
type EncodingKey [KeySize]byte

func (k EncodingKey) String() string {
	return fmt.Sprintf("%x", k[:])
}

// IsZero reports whether k is the reserved, all-zero padding key.
func (k EncodingKey) IsZero() bool {
	return k == EncodingKey{}
}

// Less reports whether k sorts strictly before other.
func (k EncodingKey) Less(other EncodingKey) bool {
	for i := range k {
		if k[i] != other[i] {
			return k[i] < other[i]
		}
	}
	return false
}

// ArchiveLocation identifies a byte range within one of up to 1024 archive
// files: a 10-bit archive id and a 30-bit byte offset.
type ArchiveLocation struct {
	ArchiveID     uint16 // 10 bits used, max 0x3FF
	ArchiveOffset uint32 // 30 bits used, max 0x3FFFFFFF
}

const (
	MaxArchiveID     = 0x3FF
	MaxArchiveOffset = 0x3FFFFFFF

	archiveLocationSize = 5
)

// Bytes packs the location into the 5-byte big-endian form:
// [hi8_of_archive | low2_of_archive:2 | offset:30].
func (loc ArchiveLocation) Bytes() ([]byte, error) {
	if loc.ArchiveID > MaxArchiveID {
		return nil, fmt.Errorf("localindex: archive id %d exceeds max %d", loc.ArchiveID, MaxArchiveID)
	}
	if loc.ArchiveOffset > MaxArchiveOffset {
		return nil, fmt.Errorf("localindex: archive offset %d exceeds max %d", loc.ArchiveOffset, MaxArchiveOffset)
	}
	combined := uint64(loc.ArchiveID)<<30 | uint64(loc.ArchiveOffset)
	buf := make([]byte, archiveLocationSize)
	binarycodec.PutUintBE(buf, combined, archiveLocationSize)
	return buf, nil
}

// ParseArchiveLocation unpacks a 5-byte big-endian ArchiveLocation.
func ParseArchiveLocation(buf []byte) (ArchiveLocation, error) {
	if len(buf) != archiveLocationSize {
		return ArchiveLocation{}, fmt.Errorf("localindex: archive location must be %d bytes, got %d", archiveLocationSize, len(buf))
	}
	combined := binarycodec.UintBE(buf, archiveLocationSize)
	return ArchiveLocation{
		ArchiveID:     uint16(combined >> 30),
		ArchiveOffset: uint32(combined & MaxArchiveOffset),
	}, nil
}

// EntrySize is the on-disk size of a sorted-section IndexEntry.
const EntrySize = KeySize + archiveLocationSize + 4

// IndexEntry is a single sorted-section record: key || location(BE) || size(LE).
type IndexEntry struct {
	Key      EncodingKey
	Location ArchiveLocation
	Size     uint32
}

// Bytes serializes the entry to its 18-byte on-disk form.
func (e IndexEntry) Bytes() ([]byte, error) {
	loc, err := e.Location.Bytes()
	if err != nil {
		return nil, err
	}
	buf := make([]byte, EntrySize)
	copy(buf[0:KeySize], e.Key[:])
	copy(buf[KeySize:KeySize+archiveLocationSize], loc)
	binary.LittleEndian.PutUint32(buf[KeySize+archiveLocationSize:], e.Size)
	return buf, nil
}

// ParseIndexEntry parses an 18-byte on-disk record. An all-zero key is
// reserved padding and reported as ErrEmptyEntry; anything shorter than 18
// bytes is ErrEntryTooSmall.
func ParseIndexEntry(buf []byte) (IndexEntry, error) {
	if len(buf) < EntrySize {
		return IndexEntry{}, ErrEntryTooSmall
	}
	var key EncodingKey
	copy(key[:], buf[0:KeySize])
	if key.IsZero() {
		return IndexEntry{}, ErrEmptyEntry
	}
	loc, err := ParseArchiveLocation(buf[KeySize : KeySize+archiveLocationSize])
	if err != nil {
		return IndexEntry{}, err
	}
	size := binary.LittleEndian.Uint32(buf[KeySize+archiveLocationSize : EntrySize])
	return IndexEntry{Key: key, Location: loc, Size: size}, nil
}

// UpdateStatus marks the kind of an update-section record.
type UpdateStatus byte

const (
	StatusNormal      UpdateStatus = 1
	StatusDelete      UpdateStatus = 3
	StatusNonResident UpdateStatus = 7
)

func (s UpdateStatus) String() string {
	switch s {
	case StatusNormal:
		return "Normal"
	case StatusDelete:
		return "Delete"
	case StatusNonResident:
		return "NonResident"
	default:
		return fmt.Sprintf("UpdateStatus(%d)", byte(s))
	}
}

// UpdateEntrySize is the on-disk size of an update-section record.
const UpdateEntrySize = EntrySize + 1

// UpdateEntry is an append-only update-section record: IndexEntry || status.
type UpdateEntry struct {
	Entry  IndexEntry
	Status UpdateStatus
}

func (u UpdateEntry) Bytes() ([]byte, error) {
	entryBytes, err := u.Entry.Bytes()
	if err != nil {
		return nil, err
	}
	buf := make([]byte, UpdateEntrySize)
	copy(buf, entryBytes)
	buf[EntrySize] = byte(u.Status)
	return buf, nil
}

func ParseUpdateEntry(buf []byte) (UpdateEntry, error) {
	if len(buf) < UpdateEntrySize {
		return UpdateEntry{}, ErrEntryTooSmall
	}
	entry, err := ParseIndexEntry(buf[:EntrySize])
	if err != nil {
		return UpdateEntry{}, err
	}
	return UpdateEntry{Entry: entry, Status: UpdateStatus(buf[EntrySize])}, nil
}
