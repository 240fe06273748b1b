// Package index implements the persistent file catalog.
//
// # Overview
//
// One SQLite database holds two tables: files (one row per absolute path
// ever observed) and config (run-invariant settings such as the hash
// component mask of the last run). Every row carries a scan_id, the Unix
// second at which its run started; a row is "live" when its scan_id
// equals the current run's. Old generations are removed by Sweep.
//
// # Concurrency
//
// WAL journaling lets readers proceed while a write is in flight. Writes
// arriving concurrently from scan workers are serialized by SQLite
// itself; transient busy errors are retried a bounded number of times
// with exponential backoff before being reported as fatal.
package index

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	_ "modernc.org/sqlite"

	"github.com/dmelnik/dupidx/internal/types"
)

// ConfigHashComponents is the config key holding the component bitmask
// of the last successful run.
const ConfigHashComponents = "hash_components"

const schema = `
CREATE TABLE IF NOT EXISTS files (
	id INTEGER PRIMARY KEY,
	path TEXT UNIQUE NOT NULL,
	size INTEGER NOT NULL,
	modified INTEGER NOT NULL,
	created INTEGER NOT NULL DEFAULT 0,
	hash BLOB,
	scan_id INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS config (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS files_size ON files(size);
CREATE INDEX IF NOT EXISTS files_hash ON files(hash) WHERE hash IS NOT NULL;
CREATE INDEX IF NOT EXISTS files_scan_id ON files(scan_id);
`

// Retry policy for transient (busy) errors.
const (
	retryInitialInterval = 10 * time.Millisecond
	retryMaxAttempts     = 5
)

// Store is the persistent file catalog. One Store per run; the run's
// generation is fixed at Open time.
type Store struct {
	db    *sql.DB
	runID int64
}

// Open opens or creates the index at path and starts a new scan
// generation stamped with the current Unix second.
func Open(path string) (*Store, error) {
	dsn := path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open index: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &Store{db: db, runID: time.Now().Unix()}, nil
}

// Close releases the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// RunID returns this run's scan generation.
func (s *Store) RunID() int64 {
	return s.runID
}

// isTransient reports whether err is a busy-class SQLite error worth
// retrying.
func isTransient(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") ||
		strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "database table is locked")
}

// withRetry runs op, retrying transient errors with exponential backoff.
// Persistent errors and retry exhaustion surface to the caller.
func withRetry(op func() error) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = retryInitialInterval
	return backoff.Retry(func() error {
		err := op()
		if err != nil && !isTransient(err) {
			return backoff.Permanent(err)
		}
		return err
	}, backoff.WithMaxRetries(bo, retryMaxAttempts))
}

// exec runs a write statement under the retry policy.
func (s *Store) exec(query string, args ...any) error {
	return withRetry(func() error {
		_, err := s.db.Exec(query, args...)
		return err
	})
}

// GetByPath returns the record for path, if any.
func (s *Store) GetByPath(path string) (types.FileRecord, bool, error) {
	var rec types.FileRecord
	err := s.db.QueryRow(
		`SELECT id, path, size, modified, created, hash, scan_id FROM files WHERE path = ?`,
		path,
	).Scan(&rec.ID, &rec.Path, &rec.Size, &rec.Modified, &rec.Created, &rec.Hash, &rec.ScanID)
	if errors.Is(err, sql.ErrNoRows) {
		return types.FileRecord{}, false, nil
	}
	if err != nil {
		return types.FileRecord{}, false, fmt.Errorf("get %s: %w", path, err)
	}
	return rec, true, nil
}

// Upsert inserts or refreshes the record for path, stamping it with the
// current generation. A nil hash preserves any previously stored hash; a
// non-nil hash overwrites it.
func (s *Store) Upsert(path string, meta types.Metadata, hash []byte) error {
	err := s.exec(`
		INSERT INTO files (path, size, modified, created, hash, scan_id)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			size = excluded.size,
			modified = excluded.modified,
			created = excluded.created,
			hash = COALESCE(excluded.hash, files.hash),
			scan_id = excluded.scan_id`,
		path, meta.Size, meta.Modified, meta.Created, hash, s.runID)
	if err != nil {
		return fmt.Errorf("upsert %s: %w", path, err)
	}
	return nil
}

// TouchScan marks the record for path as live in the current generation
// without modifying anything else.
func (s *Store) TouchScan(path string) error {
	if err := s.exec(`UPDATE files SET scan_id = ? WHERE path = ?`, s.runID, path); err != nil {
		return fmt.Errorf("touch %s: %w", path, err)
	}
	return nil
}

// UpdateHash sets the hash for path unconditionally.
func (s *Store) UpdateHash(path string, hash []byte) error {
	if err := s.exec(`UPDATE files SET hash = ? WHERE path = ?`, hash, path); err != nil {
		return fmt.Errorf("update hash %s: %w", path, err)
	}
	return nil
}

// Config returns the value stored under key, if any.
func (s *Store) Config(key string) (string, bool, error) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM config WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("config %s: %w", key, err)
	}
	return value, true, nil
}

// SetConfig stores value under key, overwriting any previous value.
func (s *Store) SetConfig(key, value string) error {
	err := s.exec(`
		INSERT INTO config (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		key, value)
	if err != nil {
		return fmt.Errorf("set config %s: %w", key, err)
	}
	return nil
}

// Sweep deletes records whose generation is not among the keep most
// recent distinct scan IDs present in the table.
func (s *Store) Sweep(keep int) error {
	err := s.exec(`
		DELETE FROM files WHERE scan_id NOT IN (
			SELECT DISTINCT scan_id FROM files ORDER BY scan_id DESC LIMIT ?
		)`, keep)
	if err != nil {
		return fmt.Errorf("sweep: %w", err)
	}
	return nil
}
