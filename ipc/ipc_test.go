package ipc

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHeaderEncodeDecodeRoundTrip(t *testing.T) {
	h, err := NewHeader(MessageFileRequest, 128, 0)
	require.NoError(t, err)
	require.NotZero(t, h.MessageID)

	buf := h.Encode()
	require.Len(t, buf, HeaderSize)

	got, err := Decode(buf)
	require.NoError(t, err)
	require.Equal(t, h.Version, got.Version)
	require.Equal(t, h.MessageType, got.MessageType)
	require.Equal(t, uint32(128), got.PayloadSize)
	require.Equal(t, h.MessageID, got.MessageID)
	require.Equal(t, h.Timestamp.Unix(), got.Timestamp.Unix())
}

func TestHeaderRejectsBadMagic(t *testing.T) {
	buf := make([]byte, HeaderSize)
	_, err := Decode(buf)
	require.Error(t, err)
}

func TestHeaderRejectsOversizedPayload(t *testing.T) {
	_, err := NewHeader(MessageFileRequest, MaxPayloadSize+1, 0)
	require.Error(t, err)
}

func TestHeaderUsesSuppliedMessageID(t *testing.T) {
	h, err := NewHeader(MessageStatusRequest, 0, 0xDEADBEEF)
	require.NoError(t, err)
	require.Equal(t, uint64(0xDEADBEEF), h.MessageID)
}

func TestMessageEncodeDecodeRoundTrip(t *testing.T) {
	msg, err := NewMessage(MessageFileResponse, []byte("payload bytes"), 0)
	require.NoError(t, err)

	buf := msg.Encode()
	got, err := DecodeMessage(buf)
	require.NoError(t, err)
	require.Equal(t, msg.Payload, got.Payload)
	require.Equal(t, MessageFileResponse, got.Header.MessageType)
}

func TestKeepAliveHasZeroPayload(t *testing.T) {
	msg, err := KeepAlive()
	require.NoError(t, err)
	require.Equal(t, uint32(0), msg.Header.PayloadSize)
	require.Empty(t, msg.Payload)
}

func TestDecodeMessageRejectsTruncatedFrame(t *testing.T) {
	msg, err := NewMessage(MessageFileRequest, []byte("0123456789"), 0)
	require.NoError(t, err)
	buf := msg.Encode()

	_, err = DecodeMessage(buf[:len(buf)-3])
	require.Error(t, err)
}
