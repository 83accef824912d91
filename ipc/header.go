// Package ipc defines the fixed message schema the host process and the
// storage engine exchange. Only the wire schema and a typed encode/decode
// pair live here; shared-memory region management and transport are left
// to the embedding application.
package ipc

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Magic identifies a castore IPC message.
const Magic uint32 = 0x43415343

// Version is the only header version this package encodes/decodes.
const Version uint8 = 1

// MaxPayloadSize is the hard cap on a frame's payload_size.
const MaxPayloadSize = 16 * 1024 * 1024

// MessageType enumerates the payload kinds the header's message_type
// field names.
type MessageType uint16

const (
	MessageFileRequest MessageType = iota + 1
	MessageFileResponse
	MessageStatusRequest
	MessageStatusResponse
	MessageKeepAlive
)

// HeaderSize is the fixed on-wire size of Header: magic(4) + version(1) +
// message_type(2) + payload_size(4) + message_id(8) + timestamp(8) +
// reserved(8) = 35 bytes, packed with no alignment padding.
const HeaderSize = 4 + 1 + 2 + 4 + 8 + 8 + 8

// Header is the fixed message header every IPC frame carries, big-endian
// on the wire.
type Header struct {
	Version     uint8
	MessageType MessageType
	PayloadSize uint32
	MessageID   uint64
	Timestamp   time.Time
	Reserved    [8]byte
}

// NewHeader builds a Header for an outgoing message, generating a
// message_id via google/uuid when none is supplied (truncated to the
// header's u64 field) and stamping the current time.
func NewHeader(msgType MessageType, payloadSize int, messageID uint64) (Header, error) {
	if payloadSize < 0 || payloadSize > MaxPayloadSize {
		return Header{}, fmt.Errorf("ipc: payload_size %d exceeds max %d", payloadSize, MaxPayloadSize)
	}
	if messageID == 0 {
		messageID = uuidToUint64(uuid.New())
	}
	return Header{
		Version:     Version,
		MessageType: msgType,
		PayloadSize: uint32(payloadSize),
		MessageID:   messageID,
		Timestamp:   time.Now(),
	}, nil
}

func uuidToUint64(u uuid.UUID) uint64 {
	b := u[:8]
	return binary.BigEndian.Uint64(b)
}

// Encode serializes h as HeaderSize big-endian bytes.
func (h Header) Encode() []byte {
	buf := make([]byte, HeaderSize)
	binary.BigEndian.PutUint32(buf[0:4], Magic)
	buf[4] = h.Version
	binary.BigEndian.PutUint16(buf[5:7], uint16(h.MessageType))
	binary.BigEndian.PutUint32(buf[7:11], h.PayloadSize)
	binary.BigEndian.PutUint64(buf[11:19], h.MessageID)
	binary.BigEndian.PutUint64(buf[19:27], uint64(h.Timestamp.Unix()))
	copy(buf[27:35], h.Reserved[:])
	return buf
}

// Decode parses a HeaderSize-byte buffer into a Header, validating the
// magic, version, and payload_size bound.
func Decode(buf []byte) (Header, error) {
	if len(buf) < HeaderSize {
		return Header{}, fmt.Errorf("ipc: header too small: %d bytes, want %d", len(buf), HeaderSize)
	}
	magic := binary.BigEndian.Uint32(buf[0:4])
	if magic != Magic {
		return Header{}, fmt.Errorf("ipc: bad magic %#x, want %#x", magic, Magic)
	}
	version := buf[4]
	if version != Version {
		return Header{}, fmt.Errorf("ipc: unsupported version %d", version)
	}
	payloadSize := binary.BigEndian.Uint32(buf[7:11])
	if payloadSize > MaxPayloadSize {
		return Header{}, fmt.Errorf("ipc: payload_size %d exceeds max %d", payloadSize, MaxPayloadSize)
	}

	h := Header{
		Version:     version,
		MessageType: MessageType(binary.BigEndian.Uint16(buf[5:7])),
		PayloadSize: payloadSize,
		MessageID:   binary.BigEndian.Uint64(buf[11:19]),
		Timestamp:   time.Unix(int64(binary.BigEndian.Uint64(buf[19:27])), 0),
	}
	copy(h.Reserved[:], buf[27:35])
	return h, nil
}
