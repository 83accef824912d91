package binarycodec

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGuardedBlockRoundTrip(t *testing.T) {
	block := []byte("some index region bytes, arbitrary length")
	h := NewGuardedBlock(block)

	buf := WriteGuardedBlockHeader(h)
	require.Len(t, buf, GuardedBlockHeaderSize)

	got, err := ReadGuardedBlockHeader(buf)
	require.NoError(t, err)
	require.Equal(t, h, got)
	require.NoError(t, VerifyGuardedBlock(got, block))
}

func TestVerifyGuardedBlockDetectsCorruption(t *testing.T) {
	block := []byte("original bytes")
	h := NewGuardedBlock(block)

	corrupted := append([]byte(nil), block...)
	corrupted[0] ^= 0xFF

	err := VerifyGuardedBlock(h, corrupted)
	require.Error(t, err)
}

func TestUint24BERoundTrip(t *testing.T) {
	buf := make([]byte, 3)
	PutUint24BE(buf, 0xABCDEF)
	require.Equal(t, []byte{0xAB, 0xCD, 0xEF}, buf)
	require.Equal(t, uint32(0xABCDEF), Uint24BE(buf))
}

func TestUintBERoundTrip(t *testing.T) {
	for n := 1; n <= 8; n++ {
		buf := make([]byte, n)
		v := uint64(1) << uint(8*n-1)
		PutUintBE(buf, v, n)
		require.Equal(t, v, UintBE(buf, n), "n=%d", n)
	}
}

func TestJenkinsKnownLengths(t *testing.T) {
	// Exercise every remainder-length branch of hashlittle's tail switch.
	for n := 0; n <= 13; n++ {
		data := make([]byte, n)
		for i := range data {
			data[i] = byte(i*7 + 1)
		}
		h1 := Jenkins(data)
		h2 := Jenkins(append([]byte(nil), data...))
		require.Equal(t, h1, h2, "hash must be deterministic for len=%d", n)
	}
}

func TestJenkinsDiffersOnMutation(t *testing.T) {
	a := []byte("the quick brown fox jumps over the lazy dog")
	b := append([]byte(nil), a...)
	b[len(b)-1] ^= 0x01
	require.NotEqual(t, Jenkins(a), Jenkins(b))
}
