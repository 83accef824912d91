// Package memorypool implements the content-type-aware buffer pool:
// per-ContentTypeHint free lists backed by bytebufferpool, with
// usage-pattern tracking, pressure response, and a background tuning
// scheduler. Each sub-pool carries a capacity that the tuner and pressure
// responses adjust; the free list itself is not capped by it.
package memorypool

import (
	"sync"
	"time"

	"github.com/valyala/bytebufferpool"
)

// ContentTypeHint selects which sub-pool a buffer is drawn from.
type ContentTypeHint int

const (
	ContentConfig ContentTypeHint = iota
	ContentEncoding
	ContentArchive
	ContentRoot
	ContentInstall
	ContentDownload
	ContentBlte
	ContentGeneric
)

func (c ContentTypeHint) String() string {
	switch c {
	case ContentConfig:
		return "Config"
	case ContentEncoding:
		return "Encoding"
	case ContentArchive:
		return "Archive"
	case ContentRoot:
		return "Root"
	case ContentInstall:
		return "Install"
	case ContentDownload:
		return "Download"
	case ContentBlte:
		return "Blte"
	default:
		return "Generic"
	}
}

// TypicalSize returns the nominal buffer size for a content type.
func (c ContentTypeHint) TypicalSize() int {
	switch c {
	case ContentConfig:
		return 16 << 10 // 16 KiB
	case ContentEncoding:
		return 16 << 20 // 16 MiB
	case ContentArchive:
		return 4 << 20 // 4 MiB
	case ContentRoot:
		return 8 << 20 // 8 MiB; root manifests are encoding-shaped but typically smaller
	case ContentInstall:
		return 256 << 10 // 256 KiB, install manifests are small
	case ContentDownload:
		return 1 << 20 // 1 MiB
	case ContentBlte:
		return 256 << 10 // 256 KiB, the common BLTE chunk size
	default:
		return 64 << 10 // 64 KiB
	}
}

// AccessPattern describes how buffers of a content type tend to be used,
// informing warm-up predictions and tuner aggressiveness.
type AccessPattern struct {
	Sequential       bool
	Random           bool
	BurstLikely      bool
	ReuseProbability float64
}

// Pattern returns the nominal access pattern for a content type.
func (c ContentTypeHint) Pattern() AccessPattern {
	switch c {
	case ContentConfig:
		return AccessPattern{Sequential: true, ReuseProbability: 0.9}
	case ContentEncoding, ContentRoot, ContentInstall:
		return AccessPattern{Sequential: true, BurstLikely: true, ReuseProbability: 0.8}
	case ContentArchive:
		return AccessPattern{Random: true, ReuseProbability: 0.4}
	case ContentDownload:
		return AccessPattern{Sequential: true, BurstLikely: true, ReuseProbability: 0.3}
	case ContentBlte:
		return AccessPattern{Sequential: true, BurstLikely: true, ReuseProbability: 0.6}
	default:
		return AccessPattern{Random: true, ReuseProbability: 0.5}
	}
}

// ExpectedLifetime is how long a buffer of this type typically stays
// checked out before returning to the pool.
func (c ContentTypeHint) ExpectedLifetime() time.Duration {
	switch c {
	case ContentConfig:
		return 10 * time.Minute
	case ContentEncoding, ContentRoot:
		return 30 * time.Minute
	case ContentArchive:
		return 5 * time.Minute
	case ContentInstall, ContentDownload:
		return time.Minute
	case ContentBlte:
		return 30 * time.Second
	default:
		return time.Minute
	}
}

// floor returns the minimum number of buffers a sub-pool must retain,
// used as the tuner's lower bound.
func (c ContentTypeHint) floor() int {
	switch c {
	case ContentEncoding, ContentArchive, ContentRoot:
		return 1
	case ContentConfig, ContentDownload, ContentInstall:
		return 4
	default:
		return 2
	}
}

// subPool is one content type's free list. bytebufferpool.Pool itself has
// no notion of a hard capacity or size class, so each sub-pool wraps one and
// layers a capacity figure and reuse/miss instrumentation on top; the
// capacity figure does not limit how many buffers the wrapped pool keeps.
type subPool struct {
	mu       sync.Mutex
	pool     bytebufferpool.Pool
	outCount int // buffers currently checked out, informational only
	capacity int // soft free-list capacity, adjusted by the tuner
	hint     ContentTypeHint

	usage *usageTracker
}

func newSubPool(hint ContentTypeHint) *subPool {
	return &subPool{
		hint:     hint,
		capacity: hint.floor(),
		usage:    newUsageTracker(),
	}
}

// Pool is the top-level content-type-aware memory pool.
type Pool struct {
	mu   sync.RWMutex
	subs map[ContentTypeHint]*subPool

	pressureMu sync.Mutex
	emergency  bool
}

// New builds a Pool with one sub-pool per ContentTypeHint.
func New() *Pool {
	p := &Pool{subs: make(map[ContentTypeHint]*subPool)}
	for _, h := range []ContentTypeHint{ContentConfig, ContentEncoding, ContentArchive, ContentRoot, ContentInstall, ContentDownload, ContentBlte, ContentGeneric} {
		p.subs[h] = newSubPool(h)
	}
	return p
}

func (p *Pool) sub(hint ContentTypeHint) *subPool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if s, ok := p.subs[hint]; ok {
		return s
	}
	return p.subs[ContentGeneric]
}

// subForCapacity returns the sub-pool of the smallest size class that can
// still hold a buffer of the given capacity, falling back to Generic when
// no size class is large enough.
func (p *Pool) subForCapacity(capacity int) *subPool {
	p.mu.RLock()
	defer p.mu.RUnlock()

	best := ContentTypeHint(-1)
	bestSize := -1
	for _, h := range []ContentTypeHint{
		ContentConfig, ContentEncoding, ContentArchive, ContentRoot,
		ContentInstall, ContentDownload, ContentBlte, ContentGeneric,
	} {
		size := h.TypicalSize()
		if size < capacity {
			continue
		}
		if bestSize == -1 || size < bestSize {
			best, bestSize = h, size
		}
	}
	if best == ContentTypeHint(-1) {
		return p.subs[ContentGeneric]
	}
	return p.subs[best]
}

// Allocate returns a buffer sized at least the larger of requested and the
// hint's typical size. Emergency mode bypasses pooling entirely. Never
// blocks.
func (p *Pool) Allocate(hint ContentTypeHint, requested int) *bytebufferpool.ByteBuffer {
	target := requested
	if t := hint.TypicalSize(); t > target {
		target = t
	}

	p.pressureMu.Lock()
	emergency := p.emergency
	p.pressureMu.Unlock()
	if emergency {
		buf := bytebufferpool.Get()
		buf.B = grow(buf.B, target)
		return buf
	}

	s := p.sub(hint)
	s.mu.Lock()
	buf := s.pool.Get()
	reused := cap(buf.B) > 0
	s.outCount++
	s.mu.Unlock()

	buf.B = grow(buf.B, target)
	s.usage.record(target, reused)
	return buf
}

// Deallocate routes buf back to the sub-pool whose size class matches its
// capacity, falling back to Generic when no size class matches. There is
// no hint parameter: routing is decided entirely by cap(buf.B), never by
// what the caller claims the buffer was for.
func (p *Pool) Deallocate(buf *bytebufferpool.ByteBuffer) {
	s := p.subForCapacity(cap(buf.B))
	s.mu.Lock()
	if s.outCount > 0 {
		s.outCount--
	}
	s.pool.Put(buf)
	s.mu.Unlock()
}

func grow(b []byte, n int) []byte {
	if cap(b) >= n {
		return b[:n]
	}
	return make([]byte, n)
}

// Stats returns a snapshot of usage-tracker state for hint, for monitoring
// and the tuner.
func (p *Pool) Stats(hint ContentTypeHint) UsageSnapshot {
	return p.sub(hint).usage.snapshot()
}
