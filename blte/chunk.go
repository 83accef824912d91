package blte

import (
	"bytes"
	"crypto/md5"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/klauspost/compress/zlib"
	"github.com/pierrec/lz4/v4"
)

// chunkInfo is one entry of a BLTE chunk table: sizes plus the MD5 checksum
// of the compressed chunk bytes (the on-disk BLTE format, not invented here).
type chunkInfo struct {
	CompressedSize   uint32
	DecompressedSize uint32
	Checksum         [16]byte
}

const chunkInfoSize = 4 + 4 + 16

func encodeChunkInfo(c chunkInfo) []byte {
	buf := make([]byte, chunkInfoSize)
	binary.BigEndian.PutUint32(buf[0:4], c.CompressedSize)
	binary.BigEndian.PutUint32(buf[4:8], c.DecompressedSize)
	copy(buf[8:24], c.Checksum[:])
	return buf
}

func decodeChunkInfo(buf []byte) chunkInfo {
	var c chunkInfo
	c.CompressedSize = binary.BigEndian.Uint32(buf[0:4])
	c.DecompressedSize = binary.BigEndian.Uint32(buf[4:8])
	copy(c.Checksum[:], buf[8:24])
	return c
}

// compressChunk encodes data using mode (and level, for ModeZlib), returning
// the mode byte prepended to the payload, which is the on-wire form of a
// single BLTE chunk's body.
func compressChunk(data []byte, mode Mode, level int) ([]byte, error) {
	var payload []byte
	switch mode {
	case ModeNone:
		payload = data
	case ModeZlib:
		var buf bytes.Buffer
		w, err := zlib.NewWriterLevel(&buf, clampZlibLevel(level))
		if err != nil {
			return nil, fmt.Errorf("blte: zlib writer: %w", err)
		}
		if _, err := w.Write(data); err != nil {
			return nil, fmt.Errorf("blte: zlib write: %w", err)
		}
		if err := w.Close(); err != nil {
			return nil, fmt.Errorf("blte: zlib close: %w", err)
		}
		payload = buf.Bytes()
	case ModeLZ4:
		var buf bytes.Buffer
		w := lz4.NewWriter(&buf)
		if _, err := w.Write(data); err != nil {
			return nil, fmt.Errorf("blte: lz4 write: %w", err)
		}
		if err := w.Close(); err != nil {
			return nil, fmt.Errorf("blte: lz4 close: %w", err)
		}
		payload = buf.Bytes()
	default:
		return nil, fmt.Errorf("blte: unsupported encode mode %s", mode)
	}
	out := make([]byte, 1+len(payload))
	out[0] = byte(mode)
	copy(out[1:], payload)
	return out, nil
}

func clampZlibLevel(level int) int {
	if level < minZlibLevel {
		return zlib.DefaultCompression
	}
	if level > maxZlibLevel {
		return maxZlibLevel
	}
	return level
}

// decompressChunk reverses compressChunk: chunk's first byte selects the
// mode, the rest is mode-specific payload.
func decompressChunk(chunk []byte) ([]byte, error) {
	if len(chunk) == 0 {
		return nil, fmt.Errorf("blte: empty chunk")
	}
	mode := Mode(chunk[0])
	payload := chunk[1:]
	switch mode {
	case ModeNone:
		out := make([]byte, len(payload))
		copy(out, payload)
		return out, nil
	case ModeZlib:
		r, err := zlib.NewReader(bytes.NewReader(payload))
		if err != nil {
			return nil, fmt.Errorf("blte: zlib reader: %w", err)
		}
		defer r.Close()
		return io.ReadAll(r)
	case ModeLZ4:
		r := lz4.NewReader(bytes.NewReader(payload))
		return io.ReadAll(r)
	case ModeFrame, ModeEncrypted:
		return nil, fmt.Errorf("blte: mode %s not supported by this decoder", mode)
	default:
		return nil, fmt.Errorf("blte: unknown chunk mode %q", byte(mode))
	}
}

func md5Sum(data []byte) [16]byte {
	return md5.Sum(data)
}
