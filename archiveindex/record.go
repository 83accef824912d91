// Package archiveindex implements the CDN-side paged, footer-validated
// archive index: a sorted table mapping variable-length encoding keys to
// (size, offset) pairs, addressed through a table-of-contents of per-page
// last-keys so that lookup never needs the whole index resident.
//
// Indices are immutable once built: Build sorts and partitions records,
// Bytes emits the flat-file form (records, then TOC, then footer), and
// OpenChunked reads the same form back footer-first without loading pages.
package archiveindex

import (
	"encoding/binary"
	"fmt"

	"github.com/castore-ngdp/castore/binarycodec"
)

// OffsetBytes is the on-disk width of a record's offset field.
type OffsetBytes uint8

const (
	OffsetBytes4 OffsetBytes = 4
	OffsetBytes5 OffsetBytes = 5
	// OffsetBytes6 is the "archive-group" variant: archive_index[2,BE] || offset[4,BE].
	OffsetBytes6 OffsetBytes = 6
)

func (o OffsetBytes) valid() bool {
	return o == OffsetBytes4 || o == OffsetBytes5 || o == OffsetBytes6
}

// Record is one entry of an archive index: a variable-length key mapped to
// a byte size and an offset (optionally qualified by an archive-group id).
type Record struct {
	Key          []byte
	Size         uint32
	Offset       uint64 // full offset value; for the 6-byte variant this is just the 4-byte offset part
	ArchiveIndex uint16 // only meaningful when OffsetBytes == OffsetBytes6
}

// RecordSize returns the fixed on-disk size of a record given the index's
// key length and offset width: key || size[4,BE] || offset[offsetBytes,BE].
func RecordSize(keyLen int, offsetBytes OffsetBytes) int {
	return keyLen + 4 + int(offsetBytes)
}

// EncodeRecord writes r into a RecordSize(keyLen, offsetBytes)-length buffer.
func EncodeRecord(r Record, keyLen int, offsetBytes OffsetBytes) ([]byte, error) {
	if len(r.Key) != keyLen {
		return nil, fmt.Errorf("archiveindex: key length %d does not match index key length %d", len(r.Key), keyLen)
	}
	if !offsetBytes.valid() {
		return nil, fmt.Errorf("archiveindex: invalid offset width %d", offsetBytes)
	}
	buf := make([]byte, RecordSize(keyLen, offsetBytes))
	copy(buf, r.Key)
	binary.BigEndian.PutUint32(buf[keyLen:keyLen+4], r.Size)
	off := buf[keyLen+4:]
	switch offsetBytes {
	case OffsetBytes6:
		binary.BigEndian.PutUint16(off[0:2], r.ArchiveIndex)
		binary.BigEndian.PutUint32(off[2:6], uint32(r.Offset))
	case OffsetBytes5:
		binarycodec.PutUintBE(off, r.Offset, 5)
	case OffsetBytes4:
		binary.BigEndian.PutUint32(off, uint32(r.Offset))
	}
	return buf, nil
}

// DecodeRecord is the inverse of EncodeRecord.
func DecodeRecord(buf []byte, keyLen int, offsetBytes OffsetBytes) (Record, error) {
	want := RecordSize(keyLen, offsetBytes)
	if len(buf) != want {
		return Record{}, fmt.Errorf("archiveindex: record buffer is %d bytes, want %d", len(buf), want)
	}
	r := Record{
		Key:  append([]byte(nil), buf[:keyLen]...),
		Size: binary.BigEndian.Uint32(buf[keyLen : keyLen+4]),
	}
	off := buf[keyLen+4:]
	switch offsetBytes {
	case OffsetBytes6:
		r.ArchiveIndex = binary.BigEndian.Uint16(off[0:2])
		r.Offset = uint64(binary.BigEndian.Uint32(off[2:6]))
	case OffsetBytes5:
		r.Offset = binarycodec.UintBE(off, 5)
	case OffsetBytes4:
		r.Offset = uint64(binary.BigEndian.Uint32(off))
	}
	return r, nil
}
