// Package types provides shared types used across the dupidx codebase.
package types

// Metadata holds the stat results for a single path.
// Times are seconds since the Unix epoch. Created is zero when the
// platform cannot report a birth time.
type Metadata struct {
	Size     int64
	Modified int64
	Created  int64
}

// FileRecord is one row of the persistent index: a single absolute path
// and what was known about it the last time it was observed.
type FileRecord struct {
	ID       int64
	Path     string
	Size     int64
	Modified int64
	Created  int64
	Hash     []byte // 8-byte composite fingerprint, nil until computed
	ScanID   int64
}

// Metadata returns the record's stat fields for change comparison.
func (r FileRecord) Metadata() Metadata {
	return Metadata{Size: r.Size, Modified: r.Modified, Created: r.Created}
}

// DuplicateGroup is a transient view over the index: two or more live
// records sharing a grouping key. Files are ordered by path ascending.
type DuplicateGroup struct {
	Size   int64
	Hash   uint64 // composite fingerprint as a big-endian uint64
	Hashed bool   // false when the group was formed by size alone
	Files  []FileRecord
}
