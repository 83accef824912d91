package localindex

// UpgradeHeader brings an older on-disk header forward to HeaderVersion.
// Local index files only ever carried the 16-byte layout described here;
// earlier versions (pre-v7) used a 9-byte key exclusively and a narrower
// file-offset field, so the upgrade re-stamps the header with current
// defaults while preserving BucketID; entries are never rewritten.
func UpgradeHeader(old IndexHeader) IndexHeader {
	if old.Version >= HeaderVersion {
		return old
	}
	upgraded := NewHeader(old.BucketID)
	if old.KeySize != 0 {
		upgraded.KeySize = old.KeySize
	}
	return upgraded
}
