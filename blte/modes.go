// Package blte implements the BLTE chunked-compression container format
// and the adaptive-compression analyzer that picks a mode per chunk:
// already-compressed data is stored raw, zero-heavy and repetitive data
// gets zlib at max level, and everything else gets a zlib level tuned by
// entropy. Mode Z is klauspost/compress/zlib; mode 4 is pierrec/lz4.
package blte

import "fmt"

// Mode is a single BLTE chunk's compression mode byte.
type Mode byte

const (
	ModeNone      Mode = 'N' // stored verbatim
	ModeZlib      Mode = 'Z' // klauspost/compress/zlib
	ModeLZ4       Mode = '4' // pierrec/lz4/v4
	ModeFrame     Mode = 'F' // recursive BLTE frame, not produced by this encoder
	ModeEncrypted Mode = 'E' // Salsa20/ARC4 frame, not produced by this encoder
)

func (m Mode) String() string {
	switch m {
	case ModeNone:
		return "none"
	case ModeZlib:
		return "zlib"
	case ModeLZ4:
		return "lz4"
	case ModeFrame:
		return "frame"
	case ModeEncrypted:
		return "encrypted"
	default:
		return fmt.Sprintf("unknown(%q)", byte(m))
	}
}

// magic is the 4-byte literal that opens every BLTE blob.
var magic = [4]byte{'B', 'L', 'T', 'E'}
