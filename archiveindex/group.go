package archiveindex

import "errors"

// Group fans a lookup out across the archive-group member indices a
// 6-byte-offset ("archive-group") index can reference: the group index
// itself resolves a key to a member archive (by ArchiveIndex field) plus
// an offset within it, and Group.Lookup performs both steps.
type Group struct {
	// Group is keyed by the archive_index value recorded in the group
	// index's 6-byte offset field.
	Members map[uint16]*ArchiveIndex
	primary *ArchiveIndex // the archive-group index itself (OffsetBytes6)
}

// NewGroup builds a Group from the archive-group index and its member
// archive indices.
func NewGroup(primary *ArchiveIndex, members map[uint16]*ArchiveIndex) (*Group, error) {
	if primary.OffsetWidth() != OffsetBytes6 {
		return nil, errArchiveGroupOffsetWidth
	}
	return &Group{Members: members, primary: primary}, nil
}

// Lookup resolves key via the group index, then returns the record from
// the resolved member archive's own index.
func (g *Group) Lookup(key []byte) (member *ArchiveIndex, rec Record, err error) {
	groupRec, err := g.primary.Lookup(key)
	if err != nil {
		return nil, Record{}, err
	}
	m, ok := g.Members[groupRec.ArchiveIndex]
	if !ok {
		return nil, Record{}, ErrNotFound
	}
	rec, err = m.Lookup(key)
	return m, rec, err
}

var errArchiveGroupOffsetWidth = errors.New("archiveindex: group primary index must use the 6-byte archive-group offset width")
