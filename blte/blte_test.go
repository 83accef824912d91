package blte

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func repeat(s string, n int) []byte {
	return []byte(strings.Repeat(s, n))
}

func TestAnalyzeZeroData(t *testing.T) {
	data := make([]byte, 4096)
	a := Analyze(data)
	require.Equal(t, 1.0, a.ZeroRatio)
	require.Equal(t, 0.0, a.Entropy)
	require.False(t, a.IsCompressed)
}

func TestAnalyzeTextData(t *testing.T) {
	data := repeat("the quick brown fox jumps over the lazy dog. ", 50)
	a := Analyze(data)
	require.True(t, a.IsText)
	require.Less(t, a.Entropy, 6.0)
}

func TestAnalyzeRepetitiveData(t *testing.T) {
	data := repeat("ABCD", 500)
	a := Analyze(data)
	require.Greater(t, a.RepetitionRatio, 0.9)
}

func TestSelectPicksNoneWhenAlreadyCompressed(t *testing.T) {
	rec := Select(Analysis{Entropy: 7.9, Size: 10000, IsCompressed: true})
	require.Equal(t, ModeNone, rec.Mode)
}

func TestSelectPicksZlibForZeroHeavyData(t *testing.T) {
	rec := Select(Analysis{ZeroRatio: 0.9})
	require.Equal(t, ModeZlib, rec.Mode)
	require.Equal(t, maxZlibLevel, rec.Level)
}

func TestSelectPicksHighLevelForLowEntropyText(t *testing.T) {
	rec := Select(Analysis{IsText: true, Entropy: 3.0})
	require.Equal(t, ModeZlib, rec.Mode)
	require.Equal(t, maxZlibLevel, rec.Level)
}

func TestEncodeDecodeSingleChunkRoundTrip(t *testing.T) {
	data := repeat("hello castore ", 200)
	blob, err := AutoCompress(data)
	require.NoError(t, err)

	out, err := Decode(blob)
	require.NoError(t, err)
	require.Equal(t, data, out)
}

func TestEncodeDecodeMultiChunkRoundTrip(t *testing.T) {
	data := append(repeat("A", 1000), repeat("B", 1000)...)
	data = append(data, make([]byte, 1000)...)

	blob, err := Encode(FixedSize{Size: 500}.split(data))
	require.NoError(t, err)

	out, err := Decode(blob)
	require.NoError(t, err)
	require.Equal(t, data, out)
}

func TestBuilderWithAdaptiveStrategy(t *testing.T) {
	b := NewBuilder().
		WithCompressionStrategy(Adaptive{ChunkSize: 64}).
		AddData(repeat("text data here ", 20)).
		AddData(make([]byte, 200))

	blob, err := b.Build()
	require.NoError(t, err)

	out, err := Decode(blob)
	require.NoError(t, err)

	want := append(repeat("text data here ", 20), make([]byte, 200)...)
	require.True(t, bytes.Equal(want, out))
}

func TestCompressWithBestRatioPicksSmallest(t *testing.T) {
	data := repeat("compress me please ", 500)
	blob, mode, err := CompressWithBestRatio(data)
	require.NoError(t, err)
	require.NotEqual(t, Mode(0), mode)
	// blob is magic(4) + header_size(4) + the winning chunk body.
	for _, m := range []Mode{ModeNone, ModeZlib, ModeLZ4} {
		body, err := compressChunk(data, m, maxZlibLevel)
		require.NoError(t, err)
		require.LessOrEqual(t, len(blob)-8, len(body), "mode %s", m)
	}

	out, err := Decode(blob)
	require.NoError(t, err)
	require.Equal(t, data, out)
}

func TestSparseDataSelectsRLEStyleModeAndRoundTrips(t *testing.T) {
	data := make([]byte, 5000)
	for i := 0; i < len(data); i += 100 {
		data[i] = 0xAB
	}
	a := Analyze(data)
	require.InDelta(t, 0.99, a.ZeroRatio, 0.02)

	rec := Select(a)
	require.Equal(t, ModeZlib, rec.Mode)
	require.Equal(t, maxZlibLevel, rec.Level)
	require.GreaterOrEqual(t, rec.ExpectedRatio, 0.9)

	blob, err := AutoCompress(data)
	require.NoError(t, err)
	out, err := Decode(blob)
	require.NoError(t, err)
	require.Equal(t, data, out)
}

func TestDecodeRejectsBadMagic(t *testing.T) {
	_, err := Decode([]byte("NOTBLTEDATA"))
	require.Error(t, err)
}

func TestDecodeRejectsChecksumMismatch(t *testing.T) {
	data := repeat("x", 2000)
	blob, err := Encode(FixedSize{Size: 500}.split(data))
	require.NoError(t, err)
	// flip the final byte of the blob, inside the last chunk body.
	corrupted := append([]byte(nil), blob...)
	corrupted[len(corrupted)-1] ^= 0xFF

	_, err = Decode(corrupted)
	require.Error(t, err)
}
