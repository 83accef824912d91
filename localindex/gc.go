package localindex

// StaleBytes reports how many bytes of the sorted section are superseded
// entries accumulated since the last GC pass.
func (b *Bucket) StaleBytes() uint64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.staleBucket
}

// GCThresholdBytes is the default stale-byte watermark past which a bucket
// is considered worth compacting.
const GCThresholdBytes = 256 * 1024

// NeedsGC reports whether this bucket has crossed GCThresholdBytes of stale,
// superseded entries since its last flush-driven compaction.
func (b *Bucket) NeedsGC() bool {
	return b.StaleBytes() >= GCThresholdBytes
}

// GC compacts the sorted section, dropping any remaining tombstoned-but-
// unflushed state and resetting the stale-byte counter. Flush already
// rewrites the sorted section with tombstones removed, so GC is that same
// merge triggered proactively rather than on update-section pressure,
// followed by clearing the accounting counter.
func (b *Bucket) GC() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.flushLocked(); err != nil {
		return err
	}
	b.staleBucket = 0
	return nil
}
