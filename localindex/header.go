package localindex

import (
	"encoding/binary"
	"fmt"
)

// HeaderVersion is the only local-index format version this module writes.
// Any other version is logged with a warning on open; lower versions are
// upgraded (see UpgradeHeader) and higher ones are kept unchanged.
const HeaderVersion = 7

// HeaderSize is the fixed on-disk size of IndexHeader.
const HeaderSize = 16

// NumBuckets is the size of the bucket address space.
const NumBuckets = 16

// IndexHeader is the 16-byte little-endian header at offset 0x08 of a local
// index file (preceded by its own GuardedBlockHeader at 0x00).
type IndexHeader struct {
	Version        uint8
	BucketID       uint8
	LengthSize     uint8 // always 4
	LocationSize   uint8 // always 5
	KeySize        uint8 // 9 or 16
	FileOffsetBits uint8 // always 30
	SegmentSize    uint64
}

// NewHeader builds the canonical v7 header for bucketID.
func NewHeader(bucketID uint8) IndexHeader {
	const fileOffsetBits = 30
	return IndexHeader{
		Version:        HeaderVersion,
		BucketID:       bucketID,
		LengthSize:     4,
		LocationSize:   archiveLocationSize,
		KeySize:        KeySize,
		FileOffsetBits: fileOffsetBits,
		SegmentSize:    1 << fileOffsetBits,
	}
}

// Bytes serializes the header to its 16-byte little-endian form.
func (h IndexHeader) Bytes() []byte {
	buf := make([]byte, HeaderSize)
	buf[0] = h.Version
	buf[1] = h.BucketID
	buf[2] = h.LengthSize
	buf[3] = h.LocationSize
	buf[4] = h.KeySize
	buf[5] = h.FileOffsetBits
	binary.LittleEndian.PutUint64(buf[6:14], h.SegmentSize)
	// buf[14:16] reserved, zero.
	return buf
}

// ParseHeader reads a 16-byte IndexHeader. Version is not checked here:
// Load warns on and upgrades anything older than HeaderVersion, so only
// structurally impossible values (bad key size, out-of-range bucket) fail.
func ParseHeader(buf []byte) (IndexHeader, error) {
	if len(buf) < HeaderSize {
		return IndexHeader{}, fmt.Errorf("%w: header too small (%d bytes)", ErrCorrupt, len(buf))
	}
	h := IndexHeader{
		Version:        buf[0],
		BucketID:       buf[1],
		LengthSize:     buf[2],
		LocationSize:   buf[3],
		KeySize:        buf[4],
		FileOffsetBits: buf[5],
		SegmentSize:    binary.LittleEndian.Uint64(buf[6:14]),
	}
	if h.KeySize != 9 && h.KeySize != 16 {
		return IndexHeader{}, fmt.Errorf("%w: invalid key size %d", ErrInvalidKeySize, h.KeySize)
	}
	if h.BucketID >= NumBuckets {
		return IndexHeader{}, fmt.Errorf("%w: bucket id %d out of range", ErrCorrupt, h.BucketID)
	}
	return h, nil
}

// FileName returns the canonical "{bucket:02x}{version:08x}.idx" name
// (14 characters, matching ^[0-9a-f]{2}[0-9a-f]{8}\.idx$).
func FileName(bucket uint8, version uint32) string {
	return fmt.Sprintf("%02x%08x.idx", bucket, version)
}

// BucketOf computes the bucket id for a 9-byte truncated key: the XOR fold
// of all nine bytes, then folded nibble-against-nibble.
//
//	x := key[0]^key[1]^...^key[8]
//	bucket := (x & 0x0F) ^ (x >> 4)
func BucketOf(key EncodingKey) uint8 {
	var x byte
	for _, b := range key {
		x ^= b
	}
	return (x & 0x0F) ^ (x >> 4)
}
