package ipc

import "fmt"

// Message pairs a Header with its raw payload bytes. Payload interpretation
// is type-specific (file request/response, status request/response,
// keep-alive) and left to the embedding application; this package only
// guarantees the envelope round-trips and the size invariant holds.
type Message struct {
	Header  Header
	Payload []byte
}

// NewMessage builds a Message, deriving Header.PayloadSize from payload
// and generating a message_id if none is supplied.
func NewMessage(msgType MessageType, payload []byte, messageID uint64) (Message, error) {
	h, err := NewHeader(msgType, len(payload), messageID)
	if err != nil {
		return Message{}, err
	}
	return Message{Header: h, Payload: payload}, nil
}

// Encode serializes m as header bytes followed by the payload.
func (m Message) Encode() []byte {
	buf := make([]byte, HeaderSize+len(m.Payload))
	copy(buf, m.Header.Encode())
	copy(buf[HeaderSize:], m.Payload)
	return buf
}

// DecodeMessage parses a full frame (header + payload) from buf.
func DecodeMessage(buf []byte) (Message, error) {
	h, err := Decode(buf)
	if err != nil {
		return Message{}, err
	}
	want := HeaderSize + int(h.PayloadSize)
	if len(buf) < want {
		return Message{}, fmt.Errorf("ipc: frame too short: have %d bytes, want %d", len(buf), want)
	}
	payload := make([]byte, h.PayloadSize)
	copy(payload, buf[HeaderSize:want])
	return Message{Header: h, Payload: payload}, nil
}

// KeepAlive builds a zero-payload keep-alive message.
func KeepAlive() (Message, error) {
	return NewMessage(MessageKeepAlive, nil, 0)
}
