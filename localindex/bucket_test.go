package localindex

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func keyN(n byte) EncodingKey {
	var k EncodingKey
	k[len(k)-1] = n
	return k
}

func TestBucketAddAndLookup(t *testing.T) {
	b := NewBucket(0)
	k := keyN(1)
	require.NoError(t, b.Add(k, ArchiveLocation{ArchiveID: 3, ArchiveOffset: 1024}, 4096))

	got, err := b.Lookup(k)
	require.NoError(t, err)
	require.Equal(t, uint16(3), got.Location.ArchiveID)
	require.Equal(t, uint32(1024), got.Location.ArchiveOffset)
	require.Equal(t, uint32(4096), got.Size)
}

func TestBucketLookupMissing(t *testing.T) {
	b := NewBucket(0)
	_, err := b.Lookup(keyN(9))
	require.ErrorIs(t, err, ErrNotFound)
}

func TestBucketRemoveTombstonesBeforeFlush(t *testing.T) {
	b := NewBucket(0)
	k := keyN(5)
	require.NoError(t, b.Add(k, ArchiveLocation{ArchiveID: 1, ArchiveOffset: 1}, 1))
	require.NoError(t, b.Remove(k))

	_, err := b.Lookup(k)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestBucketFlushMergesAndSorts(t *testing.T) {
	b := NewBucket(0)
	keys := []byte{5, 1, 9, 3, 7}
	for _, n := range keys {
		require.NoError(t, b.Add(keyN(n), ArchiveLocation{ArchiveID: 0, ArchiveOffset: uint32(n)}, uint32(n)))
	}
	require.NoError(t, b.Flush())
	require.True(t, b.IsSorted())
	require.Equal(t, len(keys), b.Len())
	require.Equal(t, 0, b.PendingUpdates())

	got, err := b.Lookup(keyN(7))
	require.NoError(t, err)
	require.Equal(t, uint32(7), got.Size)
}

func TestBucketFlushAppliesDeleteAndOverwrite(t *testing.T) {
	b := NewBucket(0)
	k := keyN(2)
	require.NoError(t, b.Add(k, ArchiveLocation{ArchiveOffset: 1}, 1))
	require.NoError(t, b.Flush())

	require.NoError(t, b.Add(k, ArchiveLocation{ArchiveOffset: 2}, 2))
	require.NoError(t, b.Flush())
	got, err := b.Lookup(k)
	require.NoError(t, err)
	require.Equal(t, uint32(2), got.Location.ArchiveOffset)

	require.NoError(t, b.Remove(k))
	require.NoError(t, b.Flush())
	_, err = b.Lookup(k)
	require.ErrorIs(t, err, ErrNotFound)
	require.Equal(t, 0, b.Len())
}

func TestBucketUpdateSectionFullTriggersFlush(t *testing.T) {
	b := NewBucket(0)
	b.maxUpdates = 2 // shrink for a fast test

	require.NoError(t, b.Add(keyN(1), ArchiveLocation{}, 1))
	require.NoError(t, b.Add(keyN(2), ArchiveLocation{}, 2))
	// third Add should force an implicit flush, not fail
	require.NoError(t, b.Add(keyN(3), ArchiveLocation{}, 3))
	require.Equal(t, 2, b.Len())
	require.Equal(t, 1, b.PendingUpdates())
}

func TestBucketNewestUpdateWinsOverOlder(t *testing.T) {
	b := NewBucket(0)
	k := keyN(4)
	require.NoError(t, b.Add(k, ArchiveLocation{ArchiveOffset: 1}, 1))
	require.NoError(t, b.Add(k, ArchiveLocation{ArchiveOffset: 2}, 2))

	got, err := b.Lookup(k)
	require.NoError(t, err)
	require.Equal(t, uint32(2), got.Location.ArchiveOffset)
}

func TestGCCompactsAndResetsStaleBytes(t *testing.T) {
	b := NewBucket(0)
	k := keyN(6)
	require.NoError(t, b.Add(k, ArchiveLocation{ArchiveOffset: 1}, 1))
	require.NoError(t, b.Flush())
	require.NoError(t, b.Add(k, ArchiveLocation{ArchiveOffset: 2}, 2))
	require.NoError(t, b.Flush())
	require.True(t, b.StaleBytes() > 0)

	require.NoError(t, b.GC())
	require.Equal(t, uint64(0), b.StaleBytes())
	require.Equal(t, 1, b.Len())
}
