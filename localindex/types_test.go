package localindex

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIndexEntryMixedEndianLayout(t *testing.T) {
	var k EncodingKey
	for i := range k {
		k[i] = byte(i + 1)
	}
	e := IndexEntry{
		Key:      k,
		Location: ArchiveLocation{ArchiveID: 0x0234, ArchiveOffset: 0x16789ABC},
		Size:     0x87654321,
	}
	buf, err := e.Bytes()
	require.NoError(t, err)
	require.Len(t, buf, EntrySize)

	require.Equal(t, []byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08, 0x09}, buf[0:9])
	// archive location is big-endian: archive_id<<30 | offset over 5 bytes.
	require.Equal(t, []byte{0x8D, 0x16, 0x78, 0x9A, 0xBC}, buf[9:14])
	// size is little-endian.
	require.Equal(t, []byte{0x21, 0x43, 0x65, 0x87}, buf[14:18])

	got, err := ParseIndexEntry(buf)
	require.NoError(t, err)
	require.Equal(t, e, got)
}

func TestArchiveLocationBoundaryRoundTrip(t *testing.T) {
	loc := ArchiveLocation{ArchiveID: MaxArchiveID, ArchiveOffset: MaxArchiveOffset}
	buf, err := loc.Bytes()
	require.NoError(t, err)

	got, err := ParseArchiveLocation(buf)
	require.NoError(t, err)
	require.Equal(t, loc, got)
}

func TestArchiveLocationRejectsOutOfRange(t *testing.T) {
	_, err := ArchiveLocation{ArchiveID: MaxArchiveID + 1}.Bytes()
	require.Error(t, err)
	_, err = ArchiveLocation{ArchiveOffset: MaxArchiveOffset + 1}.Bytes()
	require.Error(t, err)
}

func TestParseIndexEntryEmptyAndTooSmall(t *testing.T) {
	_, err := ParseIndexEntry(make([]byte, EntrySize))
	require.ErrorIs(t, err, ErrEmptyEntry)

	_, err = ParseIndexEntry(make([]byte, EntrySize-1))
	require.ErrorIs(t, err, ErrEntryTooSmall)
}

func TestUpdateEntryRoundTrip(t *testing.T) {
	u := UpdateEntry{
		Entry: IndexEntry{
			Key:      keyN(9),
			Location: ArchiveLocation{ArchiveID: 3, ArchiveOffset: 0x2000},
			Size:     2048,
		},
		Status: StatusNonResident,
	}
	buf, err := u.Bytes()
	require.NoError(t, err)
	require.Len(t, buf, UpdateEntrySize)

	got, err := ParseUpdateEntry(buf)
	require.NoError(t, err)
	require.Equal(t, u, got)
}

func TestBucketOfMatchesXorFold(t *testing.T) {
	var k EncodingKey
	for i := range k {
		k[i] = byte(i * 31)
	}
	var x byte
	for _, b := range k {
		x ^= b
	}
	require.Equal(t, (x&0x0F)^(x>>4), BucketOf(k))
	require.Less(t, BucketOf(k), uint8(NumBuckets))
}

func TestFileNameFormat(t *testing.T) {
	require.Equal(t, "0700000001.idx", FileName(0x07, 1))
	require.Regexp(t, `^[0-9a-f]{2}[0-9a-f]{8}\.idx$`, FileName(0x0F, 0xDEADBEEF))
}
