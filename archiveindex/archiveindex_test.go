package archiveindex

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func mkKey(ekeyLength int, n int) []byte {
	k := make([]byte, ekeyLength)
	k[len(k)-2] = byte(n >> 8)
	k[len(k)-1] = byte(n)
	return k
}

func TestFooterRoundTrip(t *testing.T) {
	f, err := NewFooter(1234, 9, OffsetBytes5)
	require.NoError(t, err)
	parsed, err := ParseFooter(f.Bytes())
	require.NoError(t, err)
	require.Equal(t, f, parsed)
}

func TestParseFooterDetectsCorruption(t *testing.T) {
	f, err := NewFooter(10, 9, OffsetBytes5)
	require.NoError(t, err)
	buf := f.Bytes()
	buf[0] ^= 0xFF
	_, err = ParseFooter(buf)
	require.ErrorIs(t, err, ErrCorrupt)
}

func TestRecordRoundTrip4Bytes(t *testing.T) {
	r := Record{Key: mkKey(9, 3), Size: 0x12345678, Offset: 0xAABBCCDD}
	buf, err := EncodeRecord(r, 9, OffsetBytes4)
	require.NoError(t, err)
	got, err := DecodeRecord(buf, 9, OffsetBytes4)
	require.NoError(t, err)
	require.Equal(t, r.Size, got.Size)
	require.Equal(t, r.Offset, got.Offset)
}

func TestRecordRoundTrip6ByteArchiveGroup(t *testing.T) {
	r := Record{Key: mkKey(9, 4), Size: 1, ArchiveIndex: 0x002A, Offset: 0x00001000}
	buf, err := EncodeRecord(r, 9, OffsetBytes6)
	require.NoError(t, err)
	// The offset field follows key[9] and size[4].
	require.Equal(t, []byte{0x00, 0x2A, 0x00, 0x00, 0x10, 0x00}, buf[9+4:])
	got, err := DecodeRecord(buf, 9, OffsetBytes6)
	require.NoError(t, err)
	require.Equal(t, uint16(0x002A), got.ArchiveIndex)
	require.Equal(t, uint64(0x1000), got.Offset)
}

func buildTestIndex(t *testing.T, n int) *ArchiveIndex {
	t.Helper()
	records := make([]Record, n)
	for i := 0; i < n; i++ {
		records[i] = Record{Key: mkKey(9, i), Size: uint32(i), Offset: uint64(i * 100)}
	}
	idx, err := Build(records, 9, OffsetBytes5)
	require.NoError(t, err)
	return idx
}

func TestArchiveIndexLookup(t *testing.T) {
	idx := buildTestIndex(t, 300) // spans multiple 4KiB pages
	for i := 0; i < 300; i++ {
		rec, err := idx.Lookup(mkKey(9, i))
		require.NoError(t, err)
		require.Equal(t, uint32(i), rec.Size)
	}
	require.True(t, idx.PageCount() > 1)
}

func TestArchiveIndexLookupMissing(t *testing.T) {
	idx := buildTestIndex(t, 10)
	_, err := idx.Lookup(bytes.Repeat([]byte{0xFF}, 9))
	require.ErrorIs(t, err, ErrNotFound)
}

func TestArchiveIndexMayContain(t *testing.T) {
	idx := buildTestIndex(t, 50)
	for i := 0; i < 50; i++ {
		require.True(t, idx.MayContain(mkKey(9, i)))
	}
	require.False(t, idx.MayContain(bytes.Repeat([]byte{0xFF}, 9)))
}

func TestArchiveIndexLookupAllHandlesDuplicates(t *testing.T) {
	dup := mkKey(9, 5)
	records := []Record{
		{Key: dup, Size: 1, Offset: 1},
		{Key: dup, Size: 2, Offset: 2},
		{Key: mkKey(9, 6), Size: 3, Offset: 3},
	}
	idx, err := Build(records, 9, OffsetBytes5)
	require.NoError(t, err)
	matches := idx.LookupAll(dup)
	require.Len(t, matches, 2)
}

func TestChunkedArchiveIndexMatchesResident(t *testing.T) {
	records := make([]Record, 500)
	for i := range records {
		k := make([]byte, 9)
		k[7] = byte(i >> 8)
		k[8] = byte(i)
		records[i] = Record{Key: k, Size: uint32(i), Offset: uint64(i)}
	}
	idx, err := Build(records, 9, OffsetBytes5)
	require.NoError(t, err)

	raw, err := idx.Bytes()
	require.NoError(t, err)
	chunked, err := OpenChunked(bytes.NewReader(raw), int64(len(raw)), 4)
	require.NoError(t, err)

	for i := 0; i < len(records); i += 37 {
		want := records[i]
		got, err := chunked.Lookup(want.Key)
		require.NoError(t, err)
		require.Equal(t, want.Size, got.Size)
	}
}

func TestChunkedArchiveIndexShortLastPage(t *testing.T) {
	// 500 records at 18 bytes each span three pages with a short final one;
	// the last page's byte range runs straight into the TOC, which must not
	// be decoded as records.
	records := make([]Record, 500)
	for i := range records {
		k := make([]byte, 9)
		k[7] = byte(i >> 8)
		k[8] = byte(i)
		records[i] = Record{Key: k, Size: uint32(i), Offset: uint64(i)}
	}
	idx, err := Build(records, 9, OffsetBytes5)
	require.NoError(t, err)
	require.Greater(t, idx.PageCount(), 1)

	raw, err := idx.Bytes()
	require.NoError(t, err)
	chunked, err := OpenChunked(bytes.NewReader(raw), int64(len(raw)), 4)
	require.NoError(t, err)

	// Every record of the final page must resolve, and keys past the end
	// must miss instead of matching stray TOC/footer bytes.
	recordsPerPage := PageSizeBytes / RecordSize(9, OffsetBytes5)
	for i := (idx.PageCount() - 1) * recordsPerPage; i < len(records); i++ {
		got, err := chunked.Lookup(records[i].Key)
		require.NoError(t, err, "record %d on the short last page", i)
		require.Equal(t, records[i].Size, got.Size)
	}
	_, err = chunked.Lookup(bytes.Repeat([]byte{0xFF}, 9))
	require.ErrorIs(t, err, ErrNotFound)
}

func TestParseBuildRoundTrip(t *testing.T) {
	idx := buildTestIndex(t, 300)
	raw, err := idx.Bytes()
	require.NoError(t, err)

	parsed, err := Parse(raw)
	require.NoError(t, err)
	require.Equal(t, idx.Footer, parsed.Footer)
	require.Equal(t, idx.PageCount(), parsed.PageCount())
	for i := 0; i < 300; i++ {
		want, err := idx.Lookup(mkKey(9, i))
		require.NoError(t, err)
		got, err := parsed.Lookup(mkKey(9, i))
		require.NoError(t, err)
		require.Equal(t, want, got)
	}
}

func TestGroupLookupFansOutToMember(t *testing.T) {
	key := mkKey(9, 1)
	member, err := Build([]Record{{Key: key, Size: 64, Offset: 0x1000}}, 9, OffsetBytes5)
	require.NoError(t, err)
	primary, err := Build([]Record{{Key: key, Size: 64, ArchiveIndex: 0x2A, Offset: 0x1000}}, 9, OffsetBytes6)
	require.NoError(t, err)

	g, err := NewGroup(primary, map[uint16]*ArchiveIndex{0x2A: member})
	require.NoError(t, err)

	resolved, rec, err := g.Lookup(key)
	require.NoError(t, err)
	require.Same(t, member, resolved)
	require.Equal(t, uint64(0x1000), rec.Offset)
}
