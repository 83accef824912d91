package localindex

import (
	"sort"
	"sync"

	"github.com/dustin/go-humanize"
	"k8s.io/klog/v2"
)

// pageSize is the on-disk alignment unit for update-section pages.
const pageSize = 64 * 1024

// DefaultMaxUpdatePages bounds the update section before a flush is forced;
// K*pageSize must be >= 0x7800 bytes, and a single page already clears that
// bar, so the default keeps a few pages of headroom for write bursts.
const DefaultMaxUpdatePages = 4

// maxUpdateEntries is the number of UpdateEntry records the configured page
// budget can hold.
func maxUpdateEntries(maxPages int) int {
	perPage := pageSize / UpdateEntrySize
	return perPage * maxPages
}

// Bucket is one of the 16 independent, bucket-id-addressed LSM journals.
// A single RWMutex guards both the sorted section and the update section;
// no cross-bucket coordination is required because bucket selection is a
// pure function of the key.
type Bucket struct {
	mu sync.RWMutex

	id          uint8
	sorted      []IndexEntry  // strictly non-decreasing by key
	updates     []UpdateEntry // append-only, oldest first
	maxUpdates  int
	flushCount  uint64 // bumped on every successful flush, used by GC
	staleBucket uint64 // bytes of sorted-section entries superseded since last GC
}

// NewBucket creates an empty, in-memory bucket. Loading from disk is
// layered on top in file.go.
func NewBucket(id uint8) *Bucket {
	return &Bucket{
		id:         id,
		maxUpdates: maxUpdateEntries(DefaultMaxUpdatePages),
	}
}

// Lookup implements SearchBothSections: scan the update section from
// newest to oldest first (a Delete tombstone short-circuits to "not
// found"), then binary-search the sorted section.
func (b *Bucket) Lookup(key EncodingKey) (IndexEntry, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.lookupLocked(key)
}

func (b *Bucket) lookupLocked(key EncodingKey) (IndexEntry, error) {
	for i := len(b.updates) - 1; i >= 0; i-- {
		u := b.updates[i]
		if u.Entry.Key == key {
			if u.Status == StatusDelete {
				return IndexEntry{}, ErrNotFound
			}
			return u.Entry, nil
		}
	}
	if idx, ok := binarySearch(b.sorted, key); ok {
		return b.sorted[idx], nil
	}
	return IndexEntry{}, ErrNotFound
}

func binarySearch(sorted []IndexEntry, key EncodingKey) (int, bool) {
	i := sort.Search(len(sorted), func(i int) bool {
		return !sorted[i].Key.Less(key)
	})
	if i < len(sorted) && sorted[i].Key == key {
		return i, true
	}
	return 0, false
}

// appendUpdate appends an UpdateEntry, flushing first if the section is at
// capacity.
func (b *Bucket) appendUpdate(u UpdateEntry) error {
	b.mu.Lock()
	full := len(b.updates) >= b.maxUpdates
	b.mu.Unlock()

	if full {
		if err := b.Flush(); err != nil {
			return err
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.updates) >= b.maxUpdates {
		return ErrUpdateSectionFull
	}
	b.updates = append(b.updates, u)
	return nil
}

// Add inserts or overwrites key with the given location and size.
func (b *Bucket) Add(key EncodingKey, loc ArchiveLocation, size uint32) error {
	return b.appendUpdate(UpdateEntry{
		Entry:  IndexEntry{Key: key, Location: loc, Size: size},
		Status: StatusNormal,
	})
}

// Remove appends a Delete tombstone for key. This never mutates the sorted
// section in place: either the tombstone becomes durable or it doesn't,
// but the sorted section is untouched either way.
func (b *Bucket) Remove(key EncodingKey) error {
	return b.appendUpdate(UpdateEntry{
		Entry:  IndexEntry{Key: key},
		Status: StatusDelete,
	})
}

// MarkNonResident appends a NonResident status update for key.
func (b *Bucket) MarkNonResident(key EncodingKey, loc ArchiveLocation, size uint32) error {
	return b.appendUpdate(UpdateEntry{
		Entry:  IndexEntry{Key: key, Location: loc, Size: size},
		Status: StatusNonResident,
	})
}

// Flush merges the update section into the sorted section: latest update
// per key wins, Delete tombstones drop their sorted entry, everything else
// lands in key order.
func (b *Bucket) Flush() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.flushLocked()
}

func (b *Bucket) flushLocked() error {
	if len(b.updates) == 0 {
		return nil
	}

	// Step 1: latest-wins map, built in insertion order.
	latest := make(map[EncodingKey]UpdateEntry, len(b.updates))
	order := make([]EncodingKey, 0, len(b.updates))
	for _, u := range b.updates {
		if _, seen := latest[u.Entry.Key]; !seen {
			order = append(order, u.Entry.Key)
		}
		latest[u.Entry.Key] = u
	}

	// Step 2: walk sorted + update keys in key order, skipping superseded
	// sorted entries and omitting Delete tombstones.
	sort.Slice(order, func(i, j int) bool { return order[i].Less(order[j]) })

	merged := make([]IndexEntry, 0, len(b.sorted)+len(order))
	si, oi := 0, 0
	var staleBytes uint64
	for si < len(b.sorted) || oi < len(order) {
		switch {
		case oi >= len(order):
			merged = append(merged, b.sorted[si])
			si++
		case si >= len(b.sorted):
			u := latest[order[oi]]
			if u.Status != StatusDelete {
				merged = append(merged, u.Entry)
			}
			oi++
		case order[oi].Less(b.sorted[si].Key):
			u := latest[order[oi]]
			if u.Status != StatusDelete {
				merged = append(merged, u.Entry)
			}
			oi++
		case b.sorted[si].Key.Less(order[oi]):
			merged = append(merged, b.sorted[si])
			si++
		default: // equal: update supersedes the sorted entry
			staleBytes += uint64(EntrySize)
			u := latest[order[oi]]
			if u.Status != StatusDelete {
				merged = append(merged, u.Entry)
			}
			si++
			oi++
		}
	}

	b.sorted = merged
	b.updates = b.updates[:0]
	b.flushCount++
	b.staleBucket += staleBytes

	klog.V(4).Infof("localindex: bucket %02x flushed, %s sorted entries, %s stale bytes accumulated",
		b.id, humanize.Comma(int64(len(b.sorted))), humanize.IBytes(b.staleBucket))
	return nil
}

// HasEntry reports whether key resolves to a live entry: the latest update
// for a colliding key is authoritative, same as Lookup.
func (b *Bucket) HasEntry(key EncodingKey) bool {
	_, err := b.Lookup(key)
	return err == nil
}

// Len reports the number of entries in the sorted section (for tests/introspection).
func (b *Bucket) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.sorted)
}

// PendingUpdates reports the number of entries in the update section.
func (b *Bucket) PendingUpdates() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.updates)
}

// IsSorted reports whether the sorted section is strictly non-decreasing
// by key.
func (b *Bucket) IsSorted() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for i := 1; i < len(b.sorted); i++ {
		if !b.sorted[i-1].Key.Less(b.sorted[i].Key) {
			return false
		}
	}
	return true
}

// Entries returns a snapshot copy of the sorted section, for iteration.
func (b *Bucket) Entries() []IndexEntry {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]IndexEntry, len(b.sorted))
	copy(out, b.sorted)
	return out
}
