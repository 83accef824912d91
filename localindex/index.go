package localindex

import (
	"fmt"
	"path/filepath"
	"sync"

	"golang.org/x/sync/errgroup"
	"k8s.io/klog/v2"
)

// LocalIndex coordinates the 16 independent buckets that make up a complete
// local index. Bucket selection is a pure function of the key (BucketOf),
// so lookups and writes never need to cross bucket boundaries, and each
// bucket's own RWMutex is the only lock ever held.
type LocalIndex struct {
	dir     string
	version uint32

	mu      sync.RWMutex // guards replacement of the buckets array only
	buckets [NumBuckets]*Bucket
}

// Open loads (or creates) all 16 buckets from dir using the given on-disk
// version stamp.
func Open(dir string, version uint32) (*LocalIndex, error) {
	li := &LocalIndex{dir: dir, version: version}
	for id := uint8(0); id < NumBuckets; id++ {
		b, err := Load(li.pathFor(id), id)
		if err != nil {
			return nil, fmt.Errorf("localindex: bucket %02x: %w", id, err)
		}
		li.buckets[id] = b
	}
	return li, nil
}

func (li *LocalIndex) pathFor(bucket uint8) string {
	return filepath.Join(li.dir, FileName(bucket, li.version))
}

func (li *LocalIndex) bucket(key EncodingKey) *Bucket {
	li.mu.RLock()
	defer li.mu.RUnlock()
	return li.buckets[BucketOf(key)]
}

// Lookup resolves key to its archive location.
func (li *LocalIndex) Lookup(key EncodingKey) (IndexEntry, error) {
	return li.bucket(key).Lookup(key)
}

// Add inserts or overwrites key.
func (li *LocalIndex) Add(key EncodingKey, loc ArchiveLocation, size uint32) error {
	return li.bucket(key).Add(key, loc, size)
}

// HasEntry reports whether key is present, honoring pending tombstones.
func (li *LocalIndex) HasEntry(key EncodingKey) bool {
	return li.bucket(key).HasEntry(key)
}

// Remove tombstones key.
func (li *LocalIndex) Remove(key EncodingKey) error {
	return li.bucket(key).Remove(key)
}

// MarkNonResident marks key as present in the catalog but not locally cached.
func (li *LocalIndex) MarkNonResident(key EncodingKey, loc ArchiveLocation, size uint32) error {
	return li.bucket(key).MarkNonResident(key, loc, size)
}

// Flush merges every bucket's update section into its sorted section and
// persists the result to disk. Buckets are independent, so failures are
// collected rather than aborting early: a caller can still retry just the
// buckets that failed.
func (li *LocalIndex) Flush() error {
	var mu sync.Mutex
	var errs []error
	wg := new(errgroup.Group)
	for id, b := range li.buckets {
		id, b := id, b
		wg.Go(func() error {
			if err := b.Flush(); err != nil {
				mu.Lock()
				errs = append(errs, fmt.Errorf("bucket %02x flush: %w", id, err))
				mu.Unlock()
				return nil
			}
			if err := b.Persist(li.pathFor(uint8(id))); err != nil {
				mu.Lock()
				errs = append(errs, fmt.Errorf("bucket %02x persist: %w", id, err))
				mu.Unlock()
			}
			return nil
		})
	}
	_ = wg.Wait()
	if len(errs) > 0 {
		return fmt.Errorf("localindex: flush encountered %d error(s): %v", len(errs), errs)
	}
	return nil
}

// RunGC compacts every bucket that has crossed GCThresholdBytes of stale
// entries, persisting each as it completes. Buckets are independent, so GC
// runs across all 16 concurrently via errgroup.
func (li *LocalIndex) RunGC() error {
	wg := new(errgroup.Group)
	for id, b := range li.buckets {
		id, b := id, b
		if !b.NeedsGC() {
			continue
		}
		wg.Go(func() error {
			if err := b.GC(); err != nil {
				return fmt.Errorf("bucket %02x gc: %w", id, err)
			}
			if err := b.Persist(li.pathFor(uint8(id))); err != nil {
				return fmt.Errorf("bucket %02x gc persist: %w", id, err)
			}
			klog.V(2).Infof("localindex: bucket %02x compacted by GC", id)
			return nil
		})
	}
	return wg.Wait()
}

// Bucket exposes a single bucket directly, for tooling and tests that need
// to inspect bucket-local state without going through key-based dispatch.
func (li *LocalIndex) Bucket(id uint8) *Bucket {
	li.mu.RLock()
	defer li.mu.RUnlock()
	return li.buckets[id]
}
