package archiveindex

import (
	"bytes"
	"sort"

	"github.com/cespare/xxhash/v2"
)

// PageSizeBytes is the fixed page size archive indices are partitioned into.
const PageSizeBytes = 4096

// ArchiveIndex is a fully-resident archive index: footer, every page of
// records, and an eytzinger-ordered table of contents for page lookup.
// ChunkedArchiveIndex (chunked.go) is the lazily-loaded counterpart for
// indices too large to keep resident.
type ArchiveIndex struct {
	Footer      Footer
	keyLen      int
	offsetBytes OffsetBytes
	pages       [][]Record
	toc         []tocEntry // eytzinger-ordered

	// keyHashes is a resident, sorted set of xxHash64(key) values used as
	// a fast-reject accelerator in front of the TOC/page lookup. A
	// positive hash match still falls through to the real page scan; it
	// only lets a guaranteed miss skip the page table entirely.
	keyHashes []uint64
}

// Build accepts records in any order, sorts them, partitions them into
// 4 KiB pages, and constructs the resident index with its TOC and footer.
func Build(records []Record, ekeyLength int, offsetBytes OffsetBytes) (*ArchiveIndex, error) {
	sorted := append([]Record(nil), records...)
	sort.Slice(sorted, func(i, j int) bool { return bytes.Compare(sorted[i].Key, sorted[j].Key) < 0 })

	recordSize := RecordSize(ekeyLength, offsetBytes)
	recordsPerPage := PageSizeBytes / recordSize
	if recordsPerPage < 1 {
		recordsPerPage = 1
	}

	var pages [][]Record
	for start := 0; start < len(sorted); start += recordsPerPage {
		end := start + recordsPerPage
		if end > len(sorted) {
			end = len(sorted)
		}
		pages = append(pages, sorted[start:end])
	}

	tocEntries := make([]tocEntry, len(pages))
	for i, page := range pages {
		tocEntries[i] = tocEntry{
			lastKey: page[len(page)-1].Key,
			page:    i,
			// page_hash is emitted as zero: TOC hash validation is
			// deliberately omitted, matching reference implementations.
		}
	}

	footer, err := NewFooter(uint32(len(sorted)), ekeyLength, offsetBytes)
	if err != nil {
		return nil, err
	}

	keyHashes := make([]uint64, len(sorted))
	for i, r := range sorted {
		keyHashes[i] = xxhash.Sum64(r.Key)
	}
	sort.Slice(keyHashes, func(i, j int) bool { return keyHashes[i] < keyHashes[j] })

	return &ArchiveIndex{
		Footer:      footer,
		keyLen:      ekeyLength,
		offsetBytes: offsetBytes,
		pages:       pages,
		toc:         buildEytzinger(tocEntries),
		keyHashes:   keyHashes,
	}, nil
}

// MayContain is a fast, allocation-free negative check: if it returns false,
// key is definitely absent and the caller can skip the page scan entirely.
// A true result is not a guarantee (xxHash64 collisions are possible at
// scale); LookupAll remains the source of truth either way.
func (a *ArchiveIndex) MayContain(key []byte) bool {
	prefix := key
	if len(prefix) > a.keyLen {
		prefix = prefix[:a.keyLen]
	}
	h := xxhash.Sum64(prefix)
	i := sort.Search(len(a.keyHashes), func(i int) bool { return a.keyHashes[i] >= h })
	return i < len(a.keyHashes) && a.keyHashes[i] == h
}

// Lookup binary-searches the TOC by key prefix to find the candidate page,
// then binary-searches within that page for an exact match. Duplicate keys
// are legal; callers that need every match should use LookupAll.
func (a *ArchiveIndex) Lookup(key []byte) (Record, error) {
	matches := a.LookupAll(key)
	if len(matches) == 0 {
		return Record{}, ErrNotFound
	}
	return matches[0], nil
}

// LookupAll returns every record matching key, scanning backward and
// forward from the first hit within the candidate page.
func (a *ArchiveIndex) LookupAll(key []byte) []Record {
	prefix := key
	if len(prefix) > a.keyLen {
		prefix = prefix[:a.keyLen]
	}
	// The hash set only covers full-length keys; a shorter prefix has to go
	// through the page scan.
	if len(prefix) == a.keyLen && !a.MayContain(prefix) {
		return nil
	}

	entry, ok := lowerBound(a.toc, prefix)
	if !ok {
		return nil
	}
	page := a.pages[entry.page]

	i := sort.Search(len(page), func(i int) bool {
		return bytes.Compare(page[i].Key[:len(prefix)], prefix) >= 0
	})
	if i >= len(page) || !bytes.Equal(page[i].Key[:len(prefix)], prefix) {
		return nil
	}

	lo, hi := i, i
	for lo > 0 && bytes.Equal(page[lo-1].Key[:len(prefix)], prefix) {
		lo--
	}
	for hi+1 < len(page) && bytes.Equal(page[hi+1].Key[:len(prefix)], prefix) {
		hi++
	}
	out := make([]Record, hi-lo+1)
	copy(out, page[lo:hi+1])
	return out
}

// PageCount reports the number of 4 KiB pages the index was split into.
func (a *ArchiveIndex) PageCount() int { return len(a.pages) }

// KeyLength reports the configured encoding-key length for this index.
func (a *ArchiveIndex) KeyLength() int { return a.keyLen }

// OffsetWidth reports the configured offset field width for this index.
func (a *ArchiveIndex) OffsetWidth() OffsetBytes { return a.offsetBytes }
