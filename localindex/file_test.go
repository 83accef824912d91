package localindex

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPersistReloadSurvivesUnflushedAdd(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.idx")

	b := NewBucket(3)
	k := keyN(11)
	require.NoError(t, b.Add(k, ArchiveLocation{ArchiveID: 2, ArchiveOffset: 99}, 256))
	require.Equal(t, 1, b.PendingUpdates())
	require.Equal(t, 0, b.Len())

	require.NoError(t, b.Persist(path))

	reloaded, err := Load(path, 3)
	require.NoError(t, err)
	require.Equal(t, 1, reloaded.PendingUpdates())
	require.Equal(t, 0, reloaded.Len())

	got, err := reloaded.Lookup(k)
	require.NoError(t, err)
	require.Equal(t, uint16(2), got.Location.ArchiveID)
	require.Equal(t, uint32(99), got.Location.ArchiveOffset)
	require.Equal(t, uint32(256), got.Size)
}

func TestPersistReloadSurvivesUnflushedTombstone(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.idx")

	b := NewBucket(4)
	k := keyN(12)
	require.NoError(t, b.Add(k, ArchiveLocation{ArchiveOffset: 1}, 1))
	require.NoError(t, b.Flush())
	require.NoError(t, b.Persist(path))

	require.NoError(t, b.Remove(k))
	require.NoError(t, b.Persist(path))

	reloaded, err := Load(path, 4)
	require.NoError(t, err)
	require.Equal(t, 1, reloaded.Len()) // sorted section untouched
	require.Equal(t, 1, reloaded.PendingUpdates())

	_, err = reloaded.Lookup(k)
	require.ErrorIs(t, err, ErrNotFound) // tombstone wins over the stale sorted entry
}

func TestPersistReloadWithoutUpdatesOmitsUpdateSection(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.idx")

	b := NewBucket(5)
	require.NoError(t, b.Add(keyN(1), ArchiveLocation{}, 1))
	require.NoError(t, b.Flush())
	require.NoError(t, b.Persist(path))

	reloaded, err := Load(path, 5)
	require.NoError(t, err)
	require.Equal(t, 1, reloaded.Len())
	require.Equal(t, 0, reloaded.PendingUpdates())
}
