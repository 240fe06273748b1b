// Package scanner walks a directory tree and writes per-file records
// through to the index.
//
// # Architecture Overview
//
// The scan phase is a bounded producer/consumer pipeline:
//
//  1. ENUMERATOR GOROUTINE (single producer)
//     - Breadth-first walk over the root using an explicit directory queue
//     - For each directory: child directories are queued for later
//       traversal, then file paths are sent to pathCh
//     - Blocks when pathCh is full (natural backpressure)
//     - Directory errors are reported and the walk continues with siblings
//
//  2. WORKER GOROUTINES (N consumers)
//     - Each worker takes paths from pathCh until it is closed
//     - Per path: probe metadata, compare against the cached record,
//       then touch, upsert-with-hash, or upsert-without-hash
//
// # Synchronization Primitives
//
//	┌─────────────────┬────────────────────────────────────────────────┐
//	│ Primitive       │ Purpose                                        │
//	├─────────────────┼────────────────────────────────────────────────┤
//	│ pathCh          │ Bounded queue (10 000) enumerator → workers    │
//	│ workerWg        │ Tracks worker goroutines                       │
//	│ fatalOnce       │ Records first fatal index error, cancels run   │
//	│ atomic counters │ Lock-free stats updates from any goroutine     │
//	└─────────────────┴────────────────────────────────────────────────┘
//
// # Per-path decision
//
//	probe metadata ── error ──► report, count skipped
//	    │
//	    ├── incremental && cached record matches size+mtime+ctime
//	    │        └──► TouchScan, count unchanged
//	    │
//	    ├── mask without Content
//	    │        └──► Upsert with metadata-only composite, count updated
//	    │
//	    └── mask with Content
//	             └──► Upsert with nil hash (content phase fills it in)
//
// Cancellation is cooperative: the enumerator checks the context between
// directories, workers between files. In-flight per-file work completes,
// the queue closes, and Run returns the context's error.
package scanner

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dmelnik/dupidx/internal/hashing"
	"github.com/dmelnik/dupidx/internal/index"
	"github.com/dmelnik/dupidx/internal/metadata"
	"github.com/dmelnik/dupidx/internal/progress"
	"github.com/dmelnik/dupidx/internal/types"
)

const (
	// queueCapacity bounds the enumerator → worker path queue.
	queueCapacity = 10000
	// reportInterval is how many scanned files pass between progress updates.
	reportInterval = 1000
)

// Stats is a snapshot of the scan counters.
type Stats struct {
	Scanned   int64 // paths taken off the queue
	Updated   int64 // records inserted or refreshed
	Unchanged int64 // cached records only touched
	Filtered  int64 // below the minimum size, not indexed
	Errors    int64 // paths skipped due to stat or access errors
}

// stats tracks scanning progress using atomic counters for lock-free
// updates from concurrent workers.
type stats struct {
	scanned   atomic.Int64
	updated   atomic.Int64
	unchanged atomic.Int64
	filtered  atomic.Int64
	errors    atomic.Int64
	startTime time.Time
}

func (s *stats) String() string {
	return fmt.Sprintf("Scanned %d files (%d updated, %d unchanged, %d filtered, %d skipped) in %.1fs",
		s.scanned.Load(), s.updated.Load(), s.unchanged.Load(), s.filtered.Load(), s.errors.Load(),
		time.Since(s.startTime).Seconds())
}

func (s *stats) snapshot() Stats {
	return Stats{
		Scanned:   s.scanned.Load(),
		Updated:   s.updated.Load(),
		Unchanged: s.unchanged.Load(),
		Filtered:  s.filtered.Load(),
		Errors:    s.errors.Load(),
	}
}

// Scanner drives the scan phase against one root directory.
//
// The scanner is designed for single-use: create with New(), call Run() once.
type Scanner struct {
	// Config (immutable, set by New)
	root         string
	store        *index.Store
	components   types.HashComponents
	workers      int
	minSize      int64
	fullScan     bool
	showProgress bool
	errCh        chan<- error

	// Runtime (initialized in Run)
	pathCh    chan string
	stats     *stats
	bar       *progress.Bar
	cancel    context.CancelFunc
	fatalOnce sync.Once
	fatalErr  error
}

// New creates a Scanner writing through to store.
func New(root string, store *index.Store, components types.HashComponents, workers int, minSize int64, fullScan, showProgress bool, errCh chan<- error) *Scanner {
	return &Scanner{
		root:         root,
		store:        store,
		components:   components,
		workers:      workers,
		minSize:      minSize,
		fullScan:     fullScan,
		showProgress: showProgress,
		errCh:        errCh,
	}
}

// Run executes the scan phase and returns the final counters.
//
// Coordination sequence:
//  1. Start N workers consuming pathCh
//  2. Start the enumerator; it closes pathCh when the walk ends
//  3. Wait for workers to drain the queue
//
// A fatal index error cancels the pipeline and is returned; per-file
// errors only bump the skip counter.
func (s *Scanner) Run(ctx context.Context) (Stats, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	s.cancel = cancel

	s.pathCh = make(chan string, queueCapacity)
	s.stats = &stats{startTime: time.Now()}
	s.bar = progress.New(s.showProgress, -1)
	s.bar.Describe(s.stats)

	var workerWg sync.WaitGroup
	for i := 0; i < s.workers; i++ {
		workerWg.Add(1)
		go func() {
			defer workerWg.Done()
			for path := range s.pathCh {
				if ctx.Err() != nil {
					continue // drain the queue without doing work
				}
				s.processFile(path)
			}
		}()
	}

	go func() {
		s.enumerate(ctx)
		close(s.pathCh)
	}()

	workerWg.Wait()
	s.bar.Finish(s.stats)

	if s.fatalErr != nil {
		return s.stats.snapshot(), s.fatalErr
	}
	return s.stats.snapshot(), ctx.Err()
}

// enumerate performs a breadth-first walk of the root, sending file
// paths to pathCh. Directories that cannot be read are reported and
// skipped; the walk continues with the remaining queue.
func (s *Scanner) enumerate(ctx context.Context) {
	queue := []string{s.root}
	for len(queue) > 0 {
		if ctx.Err() != nil {
			return
		}
		dir := queue[0]
		queue = queue[1:]

		entries, err := os.ReadDir(dir)
		if err != nil {
			s.sendError(err)
			s.stats.errors.Add(1)
			continue
		}

		// Child directories first, then this directory's files.
		var files []string
		for _, entry := range entries {
			full := filepath.Join(dir, entry.Name())
			switch {
			case entry.IsDir():
				queue = append(queue, full)
			case entry.Type().IsRegular():
				files = append(files, full)
			}
		}
		for _, f := range files {
			select {
			case s.pathCh <- f:
			case <-ctx.Done():
				return
			}
		}
	}
}

// processFile classifies one path and writes the outcome to the index.
func (s *Scanner) processFile(path string) {
	if n := s.stats.scanned.Add(1); n%reportInterval == 0 {
		s.bar.Describe(s.stats)
	}

	meta, err := metadata.Stat(path)
	if err != nil {
		s.sendError(err)
		s.stats.errors.Add(1)
		return
	}
	if meta.Size < s.minSize {
		s.stats.filtered.Add(1)
		return
	}

	var prev types.FileRecord
	var cached bool
	if !s.fullScan {
		rec, ok, err := s.store.GetByPath(path)
		if err != nil {
			s.fail(err)
			return
		}
		if ok && rec.Metadata() == meta {
			if err := s.store.TouchScan(path); err != nil {
				s.fail(err)
				return
			}
			s.stats.unchanged.Add(1)
			return
		}
		prev, cached = rec, ok
	}

	var hash []byte
	if !s.components.Has(types.Content) {
		h := hashing.Composite(s.components, meta, filepath.Base(path), 0)
		hash = hashing.EncodeFingerprint(h)
	}
	if err := s.store.Upsert(path, meta, hash); err != nil {
		s.fail(err)
		return
	}
	// A composite stored by an earlier run describes bytes (or a mask)
	// this record no longer has; leave NULL so the content phase
	// re-samples the file.
	if hash == nil && (s.fullScan || (cached && prev.Hash != nil)) {
		if err := s.store.UpdateHash(path, nil); err != nil {
			s.fail(err)
			return
		}
	}
	s.stats.updated.Add(1)
}

// fail records the first fatal error and cancels the pipeline.
func (s *Scanner) fail(err error) {
	s.fatalOnce.Do(func() {
		s.fatalErr = err
		s.cancel()
	})
}

// sendError sends an error to the errors channel if one is attached.
func (s *Scanner) sendError(err error) {
	if s.errCh != nil {
		s.errCh <- err
	}
}
