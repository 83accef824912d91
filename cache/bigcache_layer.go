package cache

import (
	"context"
	"errors"
	"time"

	"github.com/allegro/bigcache/v3"
)

// BigCacheLayer is the larger, off-heap L1 tier: a thin wrapper over
// allegro/bigcache with stats pulled from bigcache's own counters.
type BigCacheLayer struct {
	c *bigcache.BigCache
}

// NewBigCacheLayer builds a BigCacheLayer with the given per-entry life
// window (bigcache itself has no true per-key TTL, so PutWithTTL degrades
// to "evicted no earlier than lifeWindow", acceptable for an L1 tier that
// a promotion policy refreshes on access).
func NewBigCacheLayer(ctx context.Context, lifeWindow time.Duration) (*BigCacheLayer, error) {
	cfg := bigcache.DefaultConfig(lifeWindow)
	c, err := bigcache.New(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &BigCacheLayer{c: c}, nil
}

func (l *BigCacheLayer) Get(key string) ([]byte, bool, error) {
	v, err := l.c.Get(key)
	if err == nil {
		return v, true, nil
	}
	if errors.Is(err, bigcache.ErrEntryNotFound) {
		return nil, false, nil
	}
	return nil, false, err
}

func (l *BigCacheLayer) Put(key string, value []byte) error {
	return l.c.Set(key, value)
}

// PutWithTTL stores value; bigcache has no per-key TTL, so the entry lives
// until the cache's configured life window elapses regardless of ttl.
func (l *BigCacheLayer) PutWithTTL(key string, value []byte, _ time.Duration) error {
	return l.c.Set(key, value)
}

func (l *BigCacheLayer) Contains(key string) bool {
	_, err := l.c.Get(key)
	return err == nil
}

func (l *BigCacheLayer) Remove(key string) error {
	err := l.c.Delete(key)
	if errors.Is(err, bigcache.ErrEntryNotFound) {
		return nil
	}
	return err
}

func (l *BigCacheLayer) Clear() error {
	return l.c.Reset()
}

func (l *BigCacheLayer) Size() int64 {
	return int64(l.c.Len())
}

func (l *BigCacheLayer) Stats() LayerStats {
	s := l.c.Stats()
	return LayerStats{
		Entries:     int64(l.c.Len()),
		MemoryBytes: int64(l.c.Capacity()),
		Hits:        s.Hits,
		Misses:      s.Misses,
	}
}
