package blte

import (
	"bytes"
	"crypto/md5"
	"encoding/binary"
	"fmt"

	"github.com/castore-ngdp/castore/binarycodec"
)

// Decode reverses Encode/Builder.Build: it validates the magic, parses the
// optional chunk table, verifies each chunk's checksum, and concatenates
// the decompressed chunk bodies.
func Decode(blob []byte) ([]byte, error) {
	if len(blob) < 8 {
		return nil, fmt.Errorf("blte: blob too small: %d bytes", len(blob))
	}
	if !bytes.Equal(blob[0:4], magic[:]) {
		return nil, fmt.Errorf("blte: bad magic %q", blob[0:4])
	}
	headerSize := binary.BigEndian.Uint32(blob[4:8])
	if headerSize == 0 {
		out, err := decompressChunk(blob[8:])
		if err != nil {
			return nil, fmt.Errorf("blte: single chunk: %w", err)
		}
		return out, nil
	}

	headerEnd := 8 + int(headerSize) - 4
	if headerEnd > len(blob) || headerEnd < 8 {
		return nil, fmt.Errorf("blte: header_size %d overruns blob of %d bytes", headerSize, len(blob))
	}
	header := blob[8:headerEnd]
	if len(header) < 4 {
		return nil, fmt.Errorf("blte: chunk table header too small")
	}
	count := int(binarycodec.Uint24BE(header[1:4]))
	tableBytes := header[4:]
	if len(tableBytes) != count*chunkInfoSize {
		return nil, fmt.Errorf("blte: chunk table size mismatch: want %d entries (%d bytes), got %d bytes",
			count, count*chunkInfoSize, len(tableBytes))
	}

	infos := make([]chunkInfo, count)
	for i := 0; i < count; i++ {
		infos[i] = decodeChunkInfo(tableBytes[i*chunkInfoSize : (i+1)*chunkInfoSize])
	}

	var out bytes.Buffer
	cursor := headerEnd
	for i, info := range infos {
		end := cursor + int(info.CompressedSize)
		if end > len(blob) {
			return nil, fmt.Errorf("blte: chunk %d overruns blob", i)
		}
		chunk := blob[cursor:end]
		if got := md5.Sum(chunk); got != info.Checksum {
			return nil, fmt.Errorf("blte: chunk %d checksum mismatch", i)
		}
		decoded, err := decompressChunk(chunk)
		if err != nil {
			return nil, fmt.Errorf("blte: chunk %d: %w", i, err)
		}
		if uint32(len(decoded)) != info.DecompressedSize {
			return nil, fmt.Errorf("blte: chunk %d decompressed size mismatch: want %d, got %d",
				i, info.DecompressedSize, len(decoded))
		}
		out.Write(decoded)
		cursor = end
	}
	return out.Bytes(), nil
}
