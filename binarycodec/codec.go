// Package binarycodec provides the low-level reader/writer helpers that
// enforce the mixed-endianness wire format shared by the local index
// journal and the CDN archive index: headers and sizes are little-endian,
// archive offsets are big-endian, and every major region is preceded by a
// GuardedBlock (size + Jenkins32 hash) used for corruption detection.
//
// The byte layout is dictated by byte-exact compatibility with Agent.exe
// and CascLib, so everything here is explicit field-by-field packing rather
// than a general-purpose serialization library.
package binarycodec

import (
	"encoding/binary"
	"fmt"
)

// GuardedBlockHeaderSize is the on-disk size of a GuardedBlockHeader.
const GuardedBlockHeaderSize = 8

// GuardedBlockHeader precedes every major region of a local index file:
// a little-endian size followed by the Jenkins32 hash of the region bytes.
// It detects corruption; it is not an authentication mechanism.
type GuardedBlockHeader struct {
	Size uint32
	Hash uint32
}

// WriteGuardedBlockHeader serializes h as 8 little-endian bytes.
func WriteGuardedBlockHeader(h GuardedBlockHeader) []byte {
	buf := make([]byte, GuardedBlockHeaderSize)
	binary.LittleEndian.PutUint32(buf[0:4], h.Size)
	binary.LittleEndian.PutUint32(buf[4:8], h.Hash)
	return buf
}

// ReadGuardedBlockHeader parses an 8-byte GuardedBlockHeader.
func ReadGuardedBlockHeader(buf []byte) (GuardedBlockHeader, error) {
	if len(buf) < GuardedBlockHeaderSize {
		return GuardedBlockHeader{}, fmt.Errorf("binarycodec: guarded block header too small: %d bytes", len(buf))
	}
	return GuardedBlockHeader{
		Size: binary.LittleEndian.Uint32(buf[0:4]),
		Hash: binary.LittleEndian.Uint32(buf[4:8]),
	}, nil
}

// NewGuardedBlock computes a GuardedBlockHeader covering block.
func NewGuardedBlock(block []byte) GuardedBlockHeader {
	return GuardedBlockHeader{
		Size: uint32(len(block)),
		Hash: Jenkins(block),
	}
}

// VerifyGuardedBlock checks that block matches the size and hash recorded
// in h, returning a descriptive error on mismatch.
func VerifyGuardedBlock(h GuardedBlockHeader, block []byte) error {
	if uint32(len(block)) != h.Size {
		return fmt.Errorf("binarycodec: guarded block size mismatch: header says %d, got %d", h.Size, len(block))
	}
	if got := Jenkins(block); got != h.Hash {
		return fmt.Errorf("binarycodec: guarded block hash mismatch: header says %#x, computed %#x", h.Hash, got)
	}
	return nil
}

// PutUint24BE writes the low 24 bits of v into buf (3 bytes, big-endian).
func PutUint24BE(buf []byte, v uint32) {
	_ = buf[2]
	buf[0] = byte(v >> 16)
	buf[1] = byte(v >> 8)
	buf[2] = byte(v)
}

// Uint24BE reads a 3-byte big-endian integer.
func Uint24BE(buf []byte) uint32 {
	_ = buf[2]
	return uint32(buf[0])<<16 | uint32(buf[1])<<8 | uint32(buf[2])
}

// PutUintBE writes v into the low n bytes of buf, big-endian, for n in 1..8.
func PutUintBE(buf []byte, v uint64, n int) {
	for i := 0; i < n; i++ {
		buf[n-1-i] = byte(v >> (8 * i))
	}
}

// UintBE reads an n-byte (n in 1..8) big-endian integer.
func UintBE(buf []byte, n int) uint64 {
	var v uint64
	for i := 0; i < n; i++ {
		v = v<<8 | uint64(buf[i])
	}
	return v
}
