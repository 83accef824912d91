// Package cache implements the content-fingerprint-keyed multi-layer
// cache: an ordered list of backends (fastest first) with deferred
// promotion, per-layer and global statistics, and optional
// content-validation hooks. The stock two-tier setup pairs a small
// ttlcache-backed L0 (true per-entry TTL) with a larger bigcache-backed
// L1 (off-heap, coarser life-window eviction).
package cache

import "time"

// LayerStats is the per-layer statistics snapshot.
type LayerStats struct {
	Entries     int64
	MemoryBytes int64
	Hits        int64
	Misses      int64
}

// HitRate returns Hits / (Hits + Misses), or 0 when there have been no
// accesses yet.
func (s LayerStats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

// Layer is one tier of the multi-layer cache.
type Layer interface {
	Get(key string) ([]byte, bool, error)
	Put(key string, value []byte) error
	PutWithTTL(key string, value []byte, ttl time.Duration) error
	Contains(key string) bool
	Remove(key string) error
	Clear() error
	Size() int64
	Stats() LayerStats
}
