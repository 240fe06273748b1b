package scanner

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dmelnik/dupidx/internal/hashing"
	"github.com/dmelnik/dupidx/internal/index"
	"github.com/dmelnik/dupidx/internal/progress"
	"github.com/dmelnik/dupidx/internal/types"
)

// bucketBatchSize is how many size buckets are fetched per index query
// during the content phase.
const bucketBatchSize = 100

// Hasher runs the content phase: for every member of a duplicate-size
// bucket it samples the file's content, mixes the full composite
// fingerprint, and writes it back to the index. Only files whose records
// carry no hash are touched, unless rehashAll is set (full rescans must
// not trust hashes computed under an older component mask).
//
// The hasher is designed for single-use: create with NewHasher(), call
// Run() once.
type Hasher struct {
	// Config (immutable, set by NewHasher)
	store        *index.Store
	components   types.HashComponents
	workers      int
	rehashAll    bool
	showProgress bool
	errCh        chan<- error

	// Runtime (initialized in Run)
	sem       types.Semaphore
	stats     *hashStats
	bar       *progress.Bar
	fatal     atomic.Bool
	fatalOnce sync.Once
	fatalErr  error // read only after the workers are drained
}

type hashStats struct {
	hashed    atomic.Int64
	reused    atomic.Int64
	errors    atomic.Int64
	startTime time.Time
}

func (s *hashStats) String() string {
	return fmt.Sprintf("Hashed %d files (%d cached, %d errors) in %.1fs",
		s.hashed.Load(), s.reused.Load(), s.errors.Load(),
		time.Since(s.startTime).Seconds())
}

// NewHasher creates a Hasher over the duplicate-size buckets of store.
func NewHasher(store *index.Store, components types.HashComponents, workers int, rehashAll, showProgress bool, errCh chan<- error) *Hasher {
	return &Hasher{
		store:        store,
		components:   components,
		workers:      workers,
		rehashAll:    rehashAll,
		showProgress: showProgress,
		errCh:        errCh,
	}
}

// Run executes the content phase. Per-file read errors leave the zero
// sentinel fingerprint in place and do not abort the phase; index errors
// do.
func (h *Hasher) Run(ctx context.Context) error {
	total, err := h.store.CountDuplicateSizeMembers()
	if err != nil {
		return err
	}
	if total == 0 {
		return ctx.Err()
	}

	h.sem = types.NewSemaphore(h.workers)
	h.stats = &hashStats{startTime: time.Now()}
	h.bar = progress.New(h.showProgress, int64(total))
	h.bar.Describe(h.stats)

	var wg sync.WaitGroup
	offset := 0
pages:
	for {
		sizes, err := h.store.DuplicateSizes(bucketBatchSize, offset)
		if err != nil {
			h.fail(err)
			break
		}
		if len(sizes) == 0 {
			break
		}
		offset += len(sizes)

		for _, size := range sizes {
			if ctx.Err() != nil || h.fatal.Load() {
				break pages
			}
			files, err := h.store.FilesOfSize(size)
			if err != nil {
				h.fail(err)
				break pages
			}
			for _, rec := range files {
				if !h.rehashAll && rec.Hash != nil {
					h.stats.reused.Add(1)
					h.bar.Add(1)
					continue
				}
				wg.Add(1)
				go func(rec types.FileRecord) {
					defer wg.Done()
					h.sem.Acquire()
					defer h.sem.Release()
					if ctx.Err() != nil {
						return
					}
					h.hashFile(rec)
				}(rec)
			}
		}
	}
	wg.Wait()
	h.bar.Finish(h.stats)

	if h.fatalErr != nil {
		return h.fatalErr
	}
	return ctx.Err()
}

// hashFile samples one file and writes its full composite back. An
// unreadable file gets the all-zero sentinel so consumers can spot or
// ignore its group; the record is otherwise preserved.
func (h *Hasher) hashFile(rec types.FileRecord) {
	fp, err := hashing.ContentFingerprint(rec.Path, rec.Size)
	stored := hashing.EncodeFingerprint(0)
	if err != nil {
		h.sendError(fmt.Errorf("%s: %w", rec.Path, err))
		h.stats.errors.Add(1)
	} else {
		composite := hashing.Composite(h.components, rec.Metadata(), filepath.Base(rec.Path), fp)
		stored = hashing.EncodeFingerprint(composite)
	}
	if err := h.store.UpdateHash(rec.Path, stored); err != nil {
		h.fail(err)
		return
	}
	h.stats.hashed.Add(1)
	h.bar.Add(1)
	h.bar.Describe(h.stats)
}

func (h *Hasher) fail(err error) {
	h.fatalOnce.Do(func() {
		h.fatalErr = err
		h.fatal.Store(true)
	})
}

func (h *Hasher) sendError(err error) {
	if h.errCh != nil {
		h.errCh <- err
	}
}
