package blte

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/castore-ngdp/castore/binarycodec"
)

// CompressionStrategy controls how a Builder splits input into BLTE chunks.
type CompressionStrategy interface {
	// split partitions data into chunk boundaries.
	split(data []byte) [][]byte
}

// SingleChunk emits the whole input as one chunk.
type SingleChunk struct{}

func (SingleChunk) split(data []byte) [][]byte {
	if len(data) == 0 {
		return nil
	}
	return [][]byte{data}
}

// FixedSize splits input into chunks of n bytes (the final chunk may be
// shorter).
type FixedSize struct{ Size int }

func (s FixedSize) split(data []byte) [][]byte {
	if s.Size <= 0 {
		return SingleChunk{}.split(data)
	}
	var chunks [][]byte
	for i := 0; i < len(data); i += s.Size {
		end := i + s.Size
		if end > len(data) {
			end = len(data)
		}
		chunks = append(chunks, data[i:end])
	}
	return chunks
}

// Adaptive splits into fixed-size chunks, each analyzed and compressed
// independently, so the emitted stream's per-chunk mode may vary.
type Adaptive struct{ ChunkSize int }

func (s Adaptive) split(data []byte) [][]byte {
	chunkSize := s.ChunkSize
	if chunkSize <= 0 {
		chunkSize = 256 * 1024
	}
	return FixedSize{Size: chunkSize}.split(data)
}

// Auto behaves like Adaptive with the package default chunk size; it is the
// strategy Builder uses when none is set explicitly.
type Auto struct{}

func (Auto) split(data []byte) [][]byte {
	return Adaptive{}.split(data)
}

// Builder assembles a BLTE stream from one or more data segments.
type Builder struct {
	strategy CompressionStrategy
	segments [][]byte
}

// NewBuilder returns a Builder defaulting to the Auto strategy.
func NewBuilder() *Builder {
	return &Builder{strategy: Auto{}}
}

func (b *Builder) WithCompressionStrategy(s CompressionStrategy) *Builder {
	b.strategy = s
	return b
}

func (b *Builder) AddData(data []byte) *Builder {
	b.segments = append(b.segments, data)
	return b
}

// Build concatenates every added segment, splits the result per the
// configured strategy, picks a mode for each chunk via Select, and encodes
// a complete BLTE blob (magic + chunk table + chunk bodies).
func (b *Builder) Build() ([]byte, error) {
	var all []byte
	for _, seg := range b.segments {
		all = append(all, seg...)
	}
	chunks := b.strategy.split(all)
	return Encode(chunks)
}

// Encode builds a BLTE blob from pre-split raw chunks, selecting a
// compression mode independently for each one.
func Encode(rawChunks [][]byte) ([]byte, error) {
	if len(rawChunks) == 0 {
		return encodeSingleChunk(nil)
	}
	if len(rawChunks) == 1 {
		return encodeSingleChunk(rawChunks[0])
	}

	infos := make([]chunkInfo, len(rawChunks))
	bodies := make([][]byte, len(rawChunks))
	for i, raw := range rawChunks {
		rec := Select(Analyze(raw))
		body, err := compressChunk(raw, rec.Mode, rec.Level)
		if err != nil {
			return nil, fmt.Errorf("blte: encode chunk %d: %w", i, err)
		}
		bodies[i] = body
		infos[i] = chunkInfo{
			CompressedSize:   uint32(len(body)),
			DecompressedSize: uint32(len(raw)),
			Checksum:         md5Sum(body),
		}
	}

	var buf bytes.Buffer
	buf.Write(magic[:])

	headerBody := make([]byte, 4+len(infos)*chunkInfoSize)
	headerBody[0] = 0x0F // flags byte Agent.exe writes for chunked streams
	binarycodec.PutUint24BE(headerBody[1:4], uint32(len(infos)))
	for i, info := range infos {
		copy(headerBody[4+i*chunkInfoSize:], encodeChunkInfo(info))
	}
	headerSize := uint32(4 + len(headerBody)) // magic excluded, header_size field itself included
	writeUint32BEBuf(&buf, headerSize)
	buf.Write(headerBody)
	for _, body := range bodies {
		buf.Write(body)
	}
	return buf.Bytes(), nil
}

func encodeSingleChunk(raw []byte) ([]byte, error) {
	rec := Select(Analyze(raw))
	body, err := compressChunk(raw, rec.Mode, rec.Level)
	if err != nil {
		return nil, fmt.Errorf("blte: encode single chunk: %w", err)
	}
	var buf bytes.Buffer
	buf.Write(magic[:])
	writeUint32BEBuf(&buf, 0) // header_size=0 signals the no-table single-chunk form
	buf.Write(body)
	return buf.Bytes(), nil
}

func writeUint32BEBuf(buf *bytes.Buffer, v uint32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	buf.Write(b[:])
}

// CompressWithBestRatio tries every supported mode and returns the
// smallest encoding along with the mode that produced it.
func CompressWithBestRatio(data []byte) ([]byte, Mode, error) {
	candidates := []Mode{ModeNone, ModeZlib, ModeLZ4}
	var best []byte
	var bestMode Mode
	for _, mode := range candidates {
		level := maxZlibLevel
		body, err := compressChunk(data, mode, level)
		if err != nil {
			continue
		}
		if best == nil || len(body) < len(best) {
			best = body
			bestMode = mode
		}
	}
	if best == nil {
		return nil, 0, fmt.Errorf("blte: no candidate mode succeeded")
	}
	var buf bytes.Buffer
	buf.Write(magic[:])
	writeUint32BEBuf(&buf, 0)
	buf.Write(best)
	return buf.Bytes(), bestMode, nil
}

// AutoCompress builds a single-chunk BLTE blob using Select's
// recommendation for the whole input.
func AutoCompress(data []byte) ([]byte, error) {
	return encodeSingleChunk(data)
}
