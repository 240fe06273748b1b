// Package detector streams duplicate groups out of the index.
//
// Groups are produced lazily: bucket keys are fetched in batches of
// batchSize, each bucket's members are loaded as the consumer pulls, and
// nothing about the total result set is ever held in memory at once.
// Cancelling the context stops a stream promptly; the producer goroutine
// never outlives its consumer.
//
// ByHash is the mode the pipeline uses (composite hashes exist for every
// record after the scan and content phases). BySize groups on raw size
// with no hash confirmation; it is kept for diagnostics and is not wired
// into the default pipeline.
package detector

import (
	"context"

	"github.com/dmelnik/dupidx/internal/hashing"
	"github.com/dmelnik/dupidx/internal/index"
	"github.com/dmelnik/dupidx/internal/types"
)

// batchSize is how many bucket keys are fetched per index round trip.
const batchSize = 100

// Result is one element of a group stream: a group or a terminal error.
type Result struct {
	Group types.DuplicateGroup
	Err   error
}

// Detector derives duplicate groups from the live records of a store.
type Detector struct {
	store *index.Store
}

// New creates a Detector over store.
func New(store *index.Store) *Detector {
	return &Detector{store: store}
}

// CountByHash returns the number of duplicate-hash groups without
// loading any of them.
func (d *Detector) CountByHash() (int, error) {
	return d.store.CountDuplicateHashes()
}

// CountBySize returns the number of duplicate-size groups without
// loading any of them.
func (d *Detector) CountBySize() (int, error) {
	return d.store.CountDuplicateSizes()
}

// ByHash streams one group per duplicate-hash bucket, in the store's
// bucket order (largest member size first). Within a group, files are
// ordered by path ascending. Groups that fall under two members after
// the live filter are never yielded.
//
// The channel is closed when the stream ends; a Result with a non-nil
// Err is terminal. Cancel ctx to stop early.
func (d *Detector) ByHash(ctx context.Context) <-chan Result {
	out := make(chan Result, batchSize)
	go func() {
		defer close(out)
		offset := 0
		for {
			hashes, err := d.store.DuplicateHashes(batchSize, offset)
			if err != nil {
				emit(ctx, out, Result{Err: err})
				return
			}
			if len(hashes) == 0 {
				return
			}
			offset += len(hashes)
			for _, hash := range hashes {
				files, err := d.store.FilesOfHash(hash)
				if err != nil {
					emit(ctx, out, Result{Err: err})
					return
				}
				if len(files) < 2 {
					continue
				}
				group := types.DuplicateGroup{
					Size:   files[0].Size,
					Hash:   hashing.DecodeFingerprint(hash),
					Hashed: true,
					Files:  files,
				}
				if !emit(ctx, out, Result{Group: group}) {
					return
				}
			}
		}
	}()
	return out
}

// BySize streams one group per duplicate-size bucket, largest size
// first, with no hash on the group.
func (d *Detector) BySize(ctx context.Context) <-chan Result {
	out := make(chan Result, batchSize)
	go func() {
		defer close(out)
		offset := 0
		for {
			sizes, err := d.store.DuplicateSizes(batchSize, offset)
			if err != nil {
				emit(ctx, out, Result{Err: err})
				return
			}
			if len(sizes) == 0 {
				return
			}
			offset += len(sizes)
			for _, size := range sizes {
				files, err := d.store.FilesOfSize(size)
				if err != nil {
					emit(ctx, out, Result{Err: err})
					return
				}
				if len(files) < 2 {
					continue
				}
				group := types.DuplicateGroup{Size: size, Files: files}
				if !emit(ctx, out, Result{Group: group}) {
					return
				}
			}
		}
	}()
	return out
}

// emit sends r unless the context is cancelled first. Reports whether
// the stream should continue.
func emit(ctx context.Context, out chan<- Result, r Result) bool {
	select {
	case out <- r:
		return r.Err == nil
	case <-ctx.Done():
		return false
	}
}
