package cache

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) (*MultiLayerCache, *MemoryLayer, *BigCacheLayer) {
	t.Helper()
	l0 := NewMemoryLayer(time.Minute)
	t.Cleanup(l0.Close)
	l1, err := NewBigCacheLayer(context.Background(), time.Minute)
	require.NoError(t, err)
	c := New([]Layer{l0, l1}, AfterNHits{N: 2})
	t.Cleanup(c.Close)
	return c, l0, l1
}

func TestPutThenGetHitsLayer0(t *testing.T) {
	c, _, _ := newTestCache(t)
	require.NoError(t, c.Put("k1", []byte("hello")))

	v, ok := c.Get("k1")
	require.True(t, ok)
	require.Equal(t, []byte("hello"), v)
}

func TestGetMissReturnsFalse(t *testing.T) {
	c, _, _ := newTestCache(t)
	_, ok := c.Get("missing")
	require.False(t, ok)
}

func TestGetFallsThroughToLowerLayer(t *testing.T) {
	c, l0, l1 := newTestCache(t)
	require.NoError(t, l1.Put("k2", []byte("from-l1")))
	_, ok, _ := l0.Get("k2")
	require.False(t, ok)

	v, ok := c.Get("k2")
	require.True(t, ok)
	require.Equal(t, []byte("from-l1"), v)
}

func TestPromotionAfterNHitsIsDeferred(t *testing.T) {
	c, l0, l1 := newTestCache(t)
	require.NoError(t, l1.Put("k3", []byte("promote-me")))

	_, _ = c.Get("k3")
	_, ok, _ := l0.Get("k3")
	require.False(t, ok, "should not promote on first hit with AfterNHits{N:2}")

	_, _ = c.Get("k3")
	// The second hit queues the promotion; the background worker applies it.
	require.Eventually(t, func() bool {
		_, ok, _ := l0.Get("k3")
		return ok
	}, time.Second, 5*time.Millisecond, "second hit should promote to layer 0")

	require.Equal(t, int64(1), c.GlobalStats().Promotions)
}

func TestExplicitPromote(t *testing.T) {
	c, l0, l1 := newTestCache(t)
	require.NoError(t, l1.Put("k4", []byte("explicit")))
	require.NoError(t, c.Promote("k4", 1, 0))

	v, ok, _ := l0.Get("k4")
	require.True(t, ok)
	require.Equal(t, []byte("explicit"), v)
}

func TestPutWithValidationRejectsMismatch(t *testing.T) {
	c, _, _ := newTestCache(t)
	err := c.PutWithValidation("k5", "not-the-real-hash", []byte("data"))
	require.ErrorIs(t, err, ErrValidationFailed)

	_, ok := c.Get("k5")
	require.False(t, ok)
}

func TestValidatedPutGetRoundTrip(t *testing.T) {
	c, _, _ := newTestCache(t)
	data := []byte("test content for validation")
	sum := md5.Sum(data)
	key := hex.EncodeToString(sum[:])

	require.NoError(t, c.PutWithValidation("ck", key, data))

	v, err := c.GetWithValidation("ck", key)
	require.NoError(t, err)
	require.Equal(t, data, v)

	stats := c.ValidationSnapshot()
	require.Equal(t, int64(2), stats.Total)
	require.Equal(t, int64(2), stats.Successful)
}

func TestGetWithValidationRemovesCorruptEntry(t *testing.T) {
	c, _, _ := newTestCache(t)
	require.NoError(t, c.Put("k6", []byte("data")))

	_, err := c.GetWithValidation("k6", "wrong-hash")
	require.ErrorIs(t, err, ErrValidationFailed)

	_, ok := c.Get("k6")
	require.False(t, ok, "corrupt entry must be removed from all layers")
}

func TestGetWithValidationSkipsWithoutExpectedKey(t *testing.T) {
	c, _, _ := newTestCache(t)
	require.NoError(t, c.Put("k8", []byte("v")))

	v, err := c.GetWithValidation("k8", "")
	require.NoError(t, err)
	require.Equal(t, []byte("v"), v)
	require.Equal(t, int64(1), c.ValidationSnapshot().Skipped)
}

func TestContainsRemoveClear(t *testing.T) {
	c, _, l1 := newTestCache(t)
	require.NoError(t, c.Put("k9", []byte("v")))
	require.NoError(t, l1.Put("k10", []byte("v")))

	require.True(t, c.Contains("k9"))
	require.True(t, c.Contains("k10"))

	require.NoError(t, c.Remove("k9"))
	require.False(t, c.Contains("k9"))

	require.NoError(t, c.Clear())
	require.False(t, c.Contains("k10"))
}

func TestGlobalStatsTracksHitsAndMisses(t *testing.T) {
	c, _, _ := newTestCache(t)
	require.NoError(t, c.Put("k7", []byte("v")))
	c.Get("k7")
	c.Get("nope")

	stats := c.GlobalStats()
	require.Equal(t, int64(1), stats.Hits)
	require.Equal(t, int64(1), stats.Misses)
}

func TestBatchCompareContent(t *testing.T) {
	a := []byte{1, 2, 3}
	b := []byte{1, 2, 3}
	d := []byte{1, 2, 4}
	got := BatchCompareContent([][2][]byte{{a, b}, {a, d}, {nil, nil}})
	require.Equal(t, []bool{true, false, true}, got)
}
