package archiveindex

import (
	"crypto/md5"
	"encoding/binary"
	"fmt"
)

// Footer is the fixed-layout trailer of an archive index file:
//
//	toc_hash[8] || version=1 || reserved[2] || page_size_kb=4 ||
//	offset_bytes ∈ {4,5,6} || size_bytes=4 || ekey_length ∈ 9..=16 ||
//	footer_hash_bytes=8 || element_count:u32(LE) || footer_hash[8]
//
// FooterFieldSize (20 bytes) covers everything up through element_count;
// footer_hash is the MD5 of that zero-padded region, truncated to 8 bytes.
type Footer struct {
	TOCHash         [8]byte
	Version         uint8
	PageSizeKB      uint8
	OffsetBytes     OffsetBytes
	SizeBytes       uint8
	EKeyLength      uint8
	FooterHashBytes uint8
	ElementCount    uint32
	FooterHash      [8]byte
}

const (
	FooterFieldSize = 20
	FooterHashBytes = 8
	FooterSize      = FooterFieldSize + FooterHashBytes // 28
)

// NewFooter builds a footer for elementCount records with the given key
// length and offset width, computing the TOC hash field as all-zero (TOC
// hash validation is deliberately omitted, matching reference implementations)
// and the footer_hash over the field region.
func NewFooter(elementCount uint32, ekeyLength int, offsetBytes OffsetBytes) (Footer, error) {
	if ekeyLength < 9 || ekeyLength > 16 {
		return Footer{}, fmt.Errorf("archiveindex: ekey length %d out of range [9,16]", ekeyLength)
	}
	if !offsetBytes.valid() {
		return Footer{}, fmt.Errorf("archiveindex: invalid offset width %d", offsetBytes)
	}
	f := Footer{
		Version:         1,
		PageSizeKB:      4,
		OffsetBytes:     offsetBytes,
		SizeBytes:       4,
		EKeyLength:      uint8(ekeyLength),
		FooterHashBytes: FooterHashBytes,
		ElementCount:    elementCount,
	}
	f.FooterHash = computeFooterHash(f)
	return f, nil
}

func fieldBytes(f Footer) []byte {
	buf := make([]byte, FooterFieldSize)
	copy(buf[0:8], f.TOCHash[:])
	buf[8] = f.Version
	buf[9] = 0
	buf[10] = 0
	buf[11] = f.PageSizeKB
	buf[12] = byte(f.OffsetBytes)
	buf[13] = f.SizeBytes
	buf[14] = f.EKeyLength
	buf[15] = f.FooterHashBytes
	binary.LittleEndian.PutUint32(buf[16:20], f.ElementCount)
	return buf
}

func computeFooterHash(f Footer) [8]byte {
	sum := md5.Sum(fieldBytes(f))
	var out [8]byte
	copy(out[:], sum[:8])
	return out
}

// Bytes serializes the footer to its 28-byte on-disk form.
func (f Footer) Bytes() []byte {
	buf := make([]byte, FooterSize)
	copy(buf[:FooterFieldSize], fieldBytes(f))
	copy(buf[FooterFieldSize:], f.FooterHash[:])
	return buf
}

// ParseFooter parses and validates a 28-byte footer.
func ParseFooter(buf []byte) (Footer, error) {
	if len(buf) != FooterSize {
		return Footer{}, fmt.Errorf("%w: footer must be %d bytes, got %d", ErrFormat, FooterSize, len(buf))
	}
	var f Footer
	copy(f.TOCHash[:], buf[0:8])
	f.Version = buf[8]
	reserved := buf[9:11]
	f.PageSizeKB = buf[11]
	f.OffsetBytes = OffsetBytes(buf[12])
	f.SizeBytes = buf[13]
	f.EKeyLength = buf[14]
	f.FooterHashBytes = buf[15]
	f.ElementCount = binary.LittleEndian.Uint32(buf[16:20])
	copy(f.FooterHash[:], buf[20:28])

	if f.Version != 1 {
		return Footer{}, fmt.Errorf("%w: unsupported version %d", ErrFormat, f.Version)
	}
	if reserved[0] != 0 || reserved[1] != 0 {
		return Footer{}, fmt.Errorf("%w: reserved bytes not zero", ErrFormat)
	}
	if f.PageSizeKB != 4 {
		return Footer{}, fmt.Errorf("%w: unsupported page size %dKiB", ErrFormat, f.PageSizeKB)
	}
	if !f.OffsetBytes.valid() {
		return Footer{}, fmt.Errorf("%w: invalid offset_bytes %d", ErrFormat, f.OffsetBytes)
	}
	if f.SizeBytes != 4 {
		return Footer{}, fmt.Errorf("%w: unsupported size_bytes %d", ErrFormat, f.SizeBytes)
	}
	if f.EKeyLength < 9 || f.EKeyLength > 16 {
		return Footer{}, fmt.Errorf("%w: ekey_length %d out of range", ErrFormat, f.EKeyLength)
	}
	if f.FooterHashBytes != FooterHashBytes {
		return Footer{}, fmt.Errorf("%w: unsupported footer_hash_bytes %d", ErrFormat, f.FooterHashBytes)
	}
	if computeFooterHash(f) != f.FooterHash {
		return Footer{}, fmt.Errorf("%w: footer_hash mismatch", ErrCorrupt)
	}
	return f, nil
}
