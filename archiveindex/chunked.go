package archiveindex

import (
	"bytes"
	"fmt"
	"io"
	"sort"
	"sync"

	"k8s.io/klog/v2"
)

// DefaultMaxLoadedPages bounds how many pages a ChunkedArchiveIndex keeps
// resident at once before evicting the least-recently-used one.
const DefaultMaxLoadedPages = 256

// ChunkedArchiveIndex keeps only the footer and TOC resident, and loads
// individual 4 KiB pages from the backing store on first access. It is the
// variant for indices too large to keep resident; loaded pages are held in
// a bounded LRU.
type ChunkedArchiveIndex struct {
	Footer      Footer
	keyLen      int
	offsetBytes OffsetBytes
	stream         io.ReaderAt
	recordBytes    int
	recordsPerPage int

	toc []tocEntry // eytzinger-ordered, resident

	mu         sync.Mutex
	loaded     map[int][]Record
	lru        []int // most-recently-used at the end
	maxPages   int
	pageLoads  uint64
	pageOffset func(page int) int64 // page -> byte offset into stream
}

// OpenChunked reads the footer and TOC from the tail of stream without
// loading any record pages.
func OpenChunked(stream io.ReaderAt, streamLen int64, maxLoadedPages int) (*ChunkedArchiveIndex, error) {
	if streamLen < 13 {
		return nil, fmt.Errorf("%w: stream too small for a footer", ErrFormat)
	}

	var hashBytesBuf [1]byte
	if _, err := stream.ReadAt(hashBytesBuf[:], streamLen-13); err != nil {
		return nil, fmt.Errorf("archiveindex: read footer_hash_bytes: %w", err)
	}
	footerHashBytes := int64(hashBytesBuf[0])
	footerTotal := int64(FooterFieldSize) + footerHashBytes
	footerBuf := make([]byte, footerTotal)
	if _, err := stream.ReadAt(footerBuf, streamLen-footerTotal); err != nil {
		return nil, fmt.Errorf("archiveindex: read footer: %w", err)
	}
	footer, err := ParseFooter(footerBuf)
	if err != nil {
		return nil, err
	}

	recordBytes := RecordSize(int(footer.EKeyLength), footer.OffsetBytes)
	recordsPerPage := PageSizeBytes / recordBytes
	if recordsPerPage < 1 {
		recordsPerPage = 1
	}
	pageCount := int((int64(footer.ElementCount) + int64(recordsPerPage) - 1) / int64(recordsPerPage))

	tocEntrySize := int(footer.EKeyLength) + 8
	tocTotal := int64(pageCount * tocEntrySize)
	tocOffset := streamLen - footerTotal - tocTotal
	if tocOffset < 0 {
		return nil, fmt.Errorf("%w: computed negative toc offset", ErrFormat)
	}
	tocBuf := make([]byte, tocTotal)
	if tocTotal > 0 {
		if _, err := stream.ReadAt(tocBuf, tocOffset); err != nil {
			return nil, fmt.Errorf("archiveindex: read toc: %w", err)
		}
	}

	keysRegion := tocBuf[:pageCount*int(footer.EKeyLength)]
	hashesRegion := tocBuf[pageCount*int(footer.EKeyLength):]
	entries := make([]tocEntry, pageCount)
	for i := 0; i < pageCount; i++ {
		e := tocEntry{
			lastKey: append([]byte(nil), keysRegion[i*int(footer.EKeyLength):(i+1)*int(footer.EKeyLength)]...),
			page:    i,
		}
		copy(e.hash[:], hashesRegion[i*8:(i+1)*8])
		entries[i] = e
	}

	if maxLoadedPages <= 0 {
		maxLoadedPages = DefaultMaxLoadedPages
	}

	recordsRegionStart := int64(0) // records are written first, then TOC, then footer
	c := &ChunkedArchiveIndex{
		Footer:         footer,
		keyLen:         int(footer.EKeyLength),
		offsetBytes:    footer.OffsetBytes,
		stream:         stream,
		recordBytes:    recordBytes,
		recordsPerPage: recordsPerPage,
		toc:            buildEytzinger(entries),
		loaded:         make(map[int][]Record),
		maxPages:       maxLoadedPages,
		pageOffset: func(page int) int64 {
			return recordsRegionStart + int64(page*recordsPerPage*recordBytes)
		},
	}
	return c, nil
}

func (c *ChunkedArchiveIndex) loadPage(page int) ([]Record, error) {
	c.mu.Lock()
	if recs, ok := c.loaded[page]; ok {
		c.touchLocked(page)
		c.mu.Unlock()
		return recs, nil
	}
	c.mu.Unlock()

	// Records are packed contiguously with no per-page padding, so the last
	// page runs straight into the TOC. Bound the decode to the records that
	// actually belong to this page.
	count := int(c.Footer.ElementCount) - page*c.recordsPerPage
	if count > c.recordsPerPage {
		count = c.recordsPerPage
	}
	if count < 0 {
		count = 0
	}

	buf := make([]byte, count*c.recordBytes)
	if _, err := c.stream.ReadAt(buf, c.pageOffset(page)); err != nil && err != io.EOF {
		return nil, fmt.Errorf("archiveindex: read page %d: %w", page, err)
	}

	recs := make([]Record, 0, count)
	for off := 0; off+c.recordBytes <= len(buf); off += c.recordBytes {
		r, err := DecodeRecord(buf[off:off+c.recordBytes], c.keyLen, c.offsetBytes)
		if err != nil {
			return nil, err
		}
		recs = append(recs, r)
	}

	c.mu.Lock()
	c.loaded[page] = recs
	c.touchLocked(page)
	c.pageLoads++
	for len(c.loaded) > c.maxPages && len(c.lru) > 0 {
		evict := c.lru[0]
		c.lru = c.lru[1:]
		delete(c.loaded, evict)
	}
	c.mu.Unlock()
	klog.V(4).Infof("archiveindex: loaded page %d (%d records)", page, len(recs))
	return recs, nil
}

func (c *ChunkedArchiveIndex) touchLocked(page int) {
	for i, p := range c.lru {
		if p == page {
			c.lru = append(c.lru[:i], c.lru[i+1:]...)
			break
		}
	}
	c.lru = append(c.lru, page)
}

// Lookup binary-searches the resident TOC, lazily loads the candidate page,
// then binary-searches within it for an exact match.
func (c *ChunkedArchiveIndex) Lookup(key []byte) (Record, error) {
	prefix := key
	if len(prefix) > c.keyLen {
		prefix = prefix[:c.keyLen]
	}
	entry, ok := lowerBound(c.toc, prefix)
	if !ok {
		return Record{}, ErrNotFound
	}
	page, err := c.loadPage(entry.page)
	if err != nil {
		return Record{}, err
	}
	i := sort.Search(len(page), func(i int) bool {
		return bytes.Compare(page[i].Key[:len(prefix)], prefix) >= 0
	})
	if i >= len(page) || !bytes.Equal(page[i].Key[:len(prefix)], prefix) {
		return Record{}, ErrNotFound
	}
	return page[i], nil
}

// PageLoads reports how many distinct page reads have been issued against
// the backing store, for cache-effectiveness diagnostics.
func (c *ChunkedArchiveIndex) PageLoads() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pageLoads
}
