package cache

import (
	"sync/atomic"
	"time"

	"github.com/jellydator/ttlcache/v3"
)

// MemoryLayer is the fast L0 tier, backed by jellydator/ttlcache so that
// put_with_ttl has real per-entry expiry instead of a single cache-wide
// life window.
type MemoryLayer struct {
	c    *ttlcache.Cache[string, []byte]
	hits atomic.Int64
	miss atomic.Int64
}

// NewMemoryLayer builds a MemoryLayer with defaultTTL applied to plain Put
// calls. The returned layer's background expiration goroutine is started
// immediately; call Close to stop it.
func NewMemoryLayer(defaultTTL time.Duration) *MemoryLayer {
	c := ttlcache.New[string, []byte](
		ttlcache.WithTTL[string, []byte](defaultTTL),
	)
	go c.Start()
	return &MemoryLayer{c: c}
}

func (l *MemoryLayer) Get(key string) ([]byte, bool, error) {
	item := l.c.Get(key)
	if item == nil {
		l.miss.Add(1)
		return nil, false, nil
	}
	l.hits.Add(1)
	return item.Value(), true, nil
}

func (l *MemoryLayer) Put(key string, value []byte) error {
	l.c.Set(key, value, ttlcache.DefaultTTL)
	return nil
}

func (l *MemoryLayer) PutWithTTL(key string, value []byte, ttl time.Duration) error {
	l.c.Set(key, value, ttl)
	return nil
}

func (l *MemoryLayer) Contains(key string) bool {
	return l.c.Get(key, ttlcache.WithDisableTouchOnHit[string, []byte]()) != nil
}

func (l *MemoryLayer) Remove(key string) error {
	l.c.Delete(key)
	return nil
}

func (l *MemoryLayer) Clear() error {
	l.c.DeleteAll()
	return nil
}

func (l *MemoryLayer) Size() int64 {
	return int64(l.c.Len())
}

func (l *MemoryLayer) Stats() LayerStats {
	var bytes int64
	for _, key := range l.c.Keys() {
		if item := l.c.Get(key, ttlcache.WithDisableTouchOnHit[string, []byte]()); item != nil {
			bytes += int64(len(item.Value()))
		}
	}
	return LayerStats{
		Entries:     int64(l.c.Len()),
		MemoryBytes: bytes,
		Hits:        l.hits.Load(),
		Misses:      l.miss.Load(),
	}
}

// Close stops the background expiration goroutine.
func (l *MemoryLayer) Close() {
	l.c.Stop()
}
