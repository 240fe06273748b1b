package index

import (
	"fmt"

	"github.com/dmelnik/dupidx/internal/types"
)

// Bucket queries only ever see live records (scan_id = current run).
// Ordering is contractual: callers present the largest buckets first.

// DuplicateSizes returns sizes shared by two or more live records,
// largest first, at most limit starting at offset.
func (s *Store) DuplicateSizes(limit, offset int) ([]int64, error) {
	rows, err := s.db.Query(`
		SELECT size FROM files WHERE scan_id = ?
		GROUP BY size HAVING COUNT(*) >= 2
		ORDER BY size DESC LIMIT ? OFFSET ?`,
		s.runID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("duplicate sizes: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var sizes []int64
	for rows.Next() {
		var size int64
		if err := rows.Scan(&size); err != nil {
			return nil, err
		}
		sizes = append(sizes, size)
	}
	return sizes, rows.Err()
}

// CountDuplicateSizes returns the number of duplicate-size buckets
// without materializing them.
func (s *Store) CountDuplicateSizes() (int, error) {
	return s.countBuckets(`
		SELECT COUNT(*) FROM (
			SELECT 1 FROM files WHERE scan_id = ?
			GROUP BY size HAVING COUNT(*) >= 2
		)`)
}

// CountDuplicateSizeMembers returns how many live records sit in some
// duplicate-size bucket.
func (s *Store) CountDuplicateSizeMembers() (int, error) {
	var n int
	err := s.db.QueryRow(`
		SELECT COUNT(*) FROM files
		WHERE scan_id = ? AND size IN (
			SELECT size FROM files WHERE scan_id = ?
			GROUP BY size HAVING COUNT(*) >= 2
		)`, s.runID, s.runID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count bucket members: %w", err)
	}
	return n, nil
}

// DuplicateHashes returns non-null hashes shared by two or more live
// records, ordered by each bucket's largest member size descending, with
// member count descending as the tiebreak. At most limit buckets
// starting at offset.
func (s *Store) DuplicateHashes(limit, offset int) ([][]byte, error) {
	rows, err := s.db.Query(`
		SELECT hash FROM files WHERE scan_id = ? AND hash IS NOT NULL
		GROUP BY hash HAVING COUNT(*) >= 2
		ORDER BY MAX(size) DESC, COUNT(*) DESC, hash LIMIT ? OFFSET ?`,
		s.runID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("duplicate hashes: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var hashes [][]byte
	for rows.Next() {
		var hash []byte
		if err := rows.Scan(&hash); err != nil {
			return nil, err
		}
		hashes = append(hashes, hash)
	}
	return hashes, rows.Err()
}

// CountDuplicateHashes returns the number of duplicate-hash buckets
// without materializing them.
func (s *Store) CountDuplicateHashes() (int, error) {
	return s.countBuckets(`
		SELECT COUNT(*) FROM (
			SELECT 1 FROM files WHERE scan_id = ? AND hash IS NOT NULL
			GROUP BY hash HAVING COUNT(*) >= 2
		)`)
}

func (s *Store) countBuckets(query string) (int, error) {
	var n int
	if err := s.db.QueryRow(query, s.runID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count buckets: %w", err)
	}
	return n, nil
}

// FilesOfSize returns the live records with the given size, ordered by
// path ascending.
func (s *Store) FilesOfSize(size int64) ([]types.FileRecord, error) {
	return s.queryRecords(`
		SELECT id, path, size, modified, created, hash, scan_id
		FROM files WHERE scan_id = ? AND size = ? ORDER BY path ASC`,
		s.runID, size)
}

// FilesOfHash returns the live records with the given hash, ordered by
// path ascending.
func (s *Store) FilesOfHash(hash []byte) ([]types.FileRecord, error) {
	return s.queryRecords(`
		SELECT id, path, size, modified, created, hash, scan_id
		FROM files WHERE scan_id = ? AND hash = ? ORDER BY path ASC`,
		s.runID, hash)
}

func (s *Store) queryRecords(query string, args ...any) ([]types.FileRecord, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var recs []types.FileRecord
	for rows.Next() {
		var rec types.FileRecord
		if err := rows.Scan(&rec.ID, &rec.Path, &rec.Size, &rec.Modified, &rec.Created, &rec.Hash, &rec.ScanID); err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}
