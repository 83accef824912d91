package archiveindex

import (
	"bytes"
	"fmt"
	"sort"
)

// Bytes emits the flat-file form of the index: every record in key order,
// then the TOC (last key of each page, then the 8-byte page hashes), then
// the footer. Page hashes are written as zero; the field is metadata, not
// integrity, and nothing validates it.
func (a *ArchiveIndex) Bytes() ([]byte, error) {
	var buf bytes.Buffer
	for _, page := range a.pages {
		for _, r := range page {
			b, err := EncodeRecord(r, a.keyLen, a.offsetBytes)
			if err != nil {
				return nil, err
			}
			buf.Write(b)
		}
	}

	toc := make([]tocEntry, len(a.toc))
	copy(toc, a.toc)
	sort.Slice(toc, func(i, j int) bool { return toc[i].page < toc[j].page })
	for _, e := range toc {
		buf.Write(e.lastKey)
	}
	for _, e := range toc {
		buf.Write(e.hash[:])
	}

	buf.Write(a.Footer.Bytes())
	return buf.Bytes(), nil
}

// Parse loads a fully-resident ArchiveIndex from the flat-file form Bytes
// produces: footer first (from the tail), then every record page eagerly.
func Parse(raw []byte) (*ArchiveIndex, error) {
	if len(raw) < FooterSize {
		return nil, fmt.Errorf("%w: %d bytes is too small for a footer", ErrFormat, len(raw))
	}
	footer, err := ParseFooter(raw[len(raw)-FooterSize:])
	if err != nil {
		return nil, err
	}

	keyLen := int(footer.EKeyLength)
	recordBytes := RecordSize(keyLen, footer.OffsetBytes)
	recordsPerPage := PageSizeBytes / recordBytes
	if recordsPerPage < 1 {
		recordsPerPage = 1
	}
	count := int(footer.ElementCount)
	pageCount := (count + recordsPerPage - 1) / recordsPerPage

	recordsEnd := count * recordBytes
	tocSize := pageCount * (keyLen + 8)
	if recordsEnd+tocSize+FooterSize > len(raw) {
		return nil, fmt.Errorf("%w: element_count %d overruns %d-byte index", ErrFormat, count, len(raw))
	}

	records := make([]Record, count)
	for i := 0; i < count; i++ {
		r, err := DecodeRecord(raw[i*recordBytes:(i+1)*recordBytes], keyLen, footer.OffsetBytes)
		if err != nil {
			return nil, err
		}
		records[i] = r
	}

	idx, err := Build(records, keyLen, footer.OffsetBytes)
	if err != nil {
		return nil, err
	}
	idx.Footer = footer
	return idx, nil
}
