package localindex

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/castore-ngdp/castore/binarycodec"
	"k8s.io/klog/v2"
)

// headerBlockOffset and entryBlockOffset are the fixed offsets of the two
// guarded blocks in a local index file:
//
//	[0x00] GuardedBlockHeader(8)  // frames the header block
//	[0x08] IndexHeader(16)
//	[0x18] padding(8, zero)
//	[0x20] GuardedBlockHeader(8)  // frames the entry block
//	[0x28] sorted IndexEntry[]
//	[pad]  zero padding to next 64 KiB boundary
//	[upd]  update-section pages (0 or more, min 0x7800 bytes)
const (
	headerBlockOffset  = 0x00
	headerPayloadSize  = HeaderSize + 8 // header + zero padding, the framed region
	entryBlockOffset   = 0x20
	entryPayloadOffset = entryBlockOffset + binarycodec.GuardedBlockHeaderSize
)

// alignUp rounds n up to the next multiple of align (a power of two).
func alignUp(n, align int) int {
	return (n + align - 1) &^ (align - 1)
}

// maxPersistRetries bounds the atomic-persist retry loop (temp+fsync+rename).
const maxPersistRetries = 3

// Load reads a bucket's sorted section and any pending update section from
// path. A missing file is not an error: it is treated as an empty, freshly
// created bucket.
func Load(path string, bucketID uint8) (*Bucket, error) {
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return NewBucket(bucketID), nil
	}
	if err != nil {
		return nil, err
	}

	if len(raw) < entryPayloadOffset {
		return nil, fmt.Errorf("%w: %s truncated before entry block", ErrCorrupt, path)
	}

	hdrGuard, err := binarycodec.ReadGuardedBlockHeader(raw[headerBlockOffset:])
	if err != nil {
		return nil, err
	}
	hdrRegion := raw[headerBlockOffset+binarycodec.GuardedBlockHeaderSize:][:headerPayloadSize]
	if err := binarycodec.VerifyGuardedBlock(hdrGuard, hdrRegion); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	header, err := ParseHeader(hdrRegion[:HeaderSize])
	if err != nil {
		return nil, err
	}
	if header.BucketID != bucketID {
		return nil, fmt.Errorf("%w: %s header bucket %02x does not match expected %02x", ErrCorrupt, path, header.BucketID, bucketID)
	}
	if header.Version != HeaderVersion {
		klog.Warningf("localindex: %s has header version %d, upgrading to v%d on load", path, header.Version, HeaderVersion)
		header = UpgradeHeader(header)
	}

	entryGuard, err := binarycodec.ReadGuardedBlockHeader(raw[entryBlockOffset:])
	if err != nil {
		return nil, err
	}
	entryRegion := raw[entryPayloadOffset:]
	if int(entryGuard.Size) > len(entryRegion) {
		return nil, fmt.Errorf("%w: %s entry block size exceeds file length", ErrCorrupt, path)
	}
	entryRegion = entryRegion[:entryGuard.Size]
	if err := binarycodec.VerifyGuardedBlock(entryGuard, entryRegion); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	b := NewBucket(bucketID)
	for off := 0; off+EntrySize <= len(entryRegion); off += EntrySize {
		entry, err := ParseIndexEntry(entryRegion[off : off+EntrySize])
		if err == ErrEmptyEntry {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		b.sorted = append(b.sorted, entry)
	}

	// The update section starts at the next 64 KiB boundary past the end of
	// the sorted entries. Its length is whatever data remains in the file; a
	// short file (no update section ever written) leaves b.updates empty.
	updateStart := alignUp(entryPayloadOffset+len(entryRegion), pageSize)
	if updateStart < len(raw) {
		updateRegion := raw[updateStart:]
		for off := 0; off+UpdateEntrySize <= len(updateRegion); off += UpdateEntrySize {
			u, err := ParseUpdateEntry(updateRegion[off : off+UpdateEntrySize])
			if err == ErrEmptyEntry {
				continue
			}
			if err != nil {
				return nil, fmt.Errorf("%s: %w", path, err)
			}
			b.updates = append(b.updates, u)
		}
	}
	return b, nil
}

// Persist atomically writes the bucket's sorted section and pending update
// section to path: write to a temp file in the same directory, fsync, rename
// over the destination. This runs independent of Flush, so a tombstone or
// insert is durable as soon as Persist returns even if the update section
// hasn't been merged yet. Failures are retried up to maxPersistRetries
// times before surfacing.
func (b *Bucket) Persist(path string) error {
	b.mu.RLock()
	payload, err := b.serializeLocked()
	b.mu.RUnlock()
	if err != nil {
		return err
	}

	var lastErr error
	for attempt := 0; attempt < maxPersistRetries; attempt++ {
		if lastErr = atomicWrite(path, payload); lastErr == nil {
			return nil
		}
		klog.Warningf("localindex: persist attempt %d for %s failed: %v", attempt+1, path, lastErr)
	}
	return fmt.Errorf("localindex: persist %s failed after %d attempts: %w", path, maxPersistRetries, lastErr)
}

func (b *Bucket) serializeLocked() ([]byte, error) {
	header := NewHeader(b.id)
	headerRegion := make([]byte, headerPayloadSize)
	copy(headerRegion, header.Bytes())

	var entryBuf bytes.Buffer
	for _, e := range b.sorted {
		eb, err := e.Bytes()
		if err != nil {
			return nil, err
		}
		entryBuf.Write(eb)
	}
	entryRegion := entryBuf.Bytes()

	var updateBuf bytes.Buffer
	for _, u := range b.updates {
		ub, err := u.Bytes()
		if err != nil {
			return nil, err
		}
		updateBuf.Write(ub)
	}

	sortedEnd := entryPayloadOffset + len(entryRegion)
	totalSize := sortedEnd
	if updateBuf.Len() > 0 {
		totalSize = alignUp(sortedEnd, pageSize) + alignUp(updateBuf.Len(), pageSize)
	}

	out := make([]byte, totalSize)
	copy(out[headerBlockOffset:], binarycodec.WriteGuardedBlockHeader(binarycodec.NewGuardedBlock(headerRegion)))
	copy(out[headerBlockOffset+binarycodec.GuardedBlockHeaderSize:], headerRegion)
	copy(out[entryBlockOffset:], binarycodec.WriteGuardedBlockHeader(binarycodec.NewGuardedBlock(entryRegion)))
	copy(out[entryPayloadOffset:], entryRegion)
	if updateBuf.Len() > 0 {
		copy(out[alignUp(sortedEnd, pageSize):], updateBuf.Bytes())
	}
	return out, nil
}

func atomicWrite(path string, payload []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".idx-tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op once renamed away

	if _, err := tmp.Write(payload); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		return err
	}
	// Sync the directory so the rename itself survives a crash.
	d, err := os.Open(dir)
	if err != nil {
		return err
	}
	if err := d.Sync(); err != nil {
		d.Close()
		return err
	}
	return d.Close()
}
