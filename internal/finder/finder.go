// Package finder sequences a full duplicate-finding run.
//
// A run is linear: scan, optional content phase, detection, group
// consumption, sweep. The only early exit is the consumer asking to stop
// (user quit), which still sweeps; fatal errors abort before the sweep
// and leave the index in its last consistent state, so partial progress
// survives into the next run.
//
// The persisted hash_components config entry forces a full rescan when
// the selected mask differs from the previous run's: nothing is erased,
// the scan phase simply rewrites every record and the content phase
// recomputes every bucket member.
package finder

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/dmelnik/dupidx/internal/detector"
	"github.com/dmelnik/dupidx/internal/index"
	"github.com/dmelnik/dupidx/internal/metadata"
	"github.com/dmelnik/dupidx/internal/scanner"
	"github.com/dmelnik/dupidx/internal/types"
)

// keepGenerations is how many scan generations survive the sweep.
const keepGenerations = 2

// Options configures a run.
type Options struct {
	Root         string
	DBPath       string
	Components   types.HashComponents
	Workers      int
	MinSize      int64
	FullScan     bool
	ShowProgress bool

	// Errors receives non-fatal per-file errors and one-shot warnings.
	// May be nil.
	Errors chan<- error

	// OnCount, when set, is called with the total group count before the
	// first group is delivered.
	OnCount func(total int)
}

// GroupFunc consumes one duplicate group. Returning stop=true ends
// consumption early (user quit); a non-nil error aborts the run.
type GroupFunc func(types.DuplicateGroup) (stop bool, err error)

// Summary reports what a run did.
type Summary struct {
	Scan        scanner.Stats
	Groups      int   // duplicate groups delivered
	Duplicates  int   // redundant copies across all groups
	WastedBytes int64 // bytes those copies occupy
	Quit        bool  // consumer stopped early
}

// Run executes one full duplicate-finding run over opts.Root, handing
// each duplicate group to handle as it becomes available.
func Run(ctx context.Context, opts Options, handle GroupFunc) (Summary, error) {
	var sum Summary

	info, err := os.Stat(opts.Root)
	if err != nil {
		return sum, fmt.Errorf("root: %w", err)
	}
	if !info.IsDir() {
		return sum, fmt.Errorf("root %s is not a directory", opts.Root)
	}

	store, err := index.Open(opts.DBPath)
	if err != nil {
		return sum, err
	}
	defer func() { _ = store.Close() }()

	fullScan, err := reconcileComponents(store, opts.Components, opts.FullScan)
	if err != nil {
		return sum, err
	}

	scan := scanner.New(opts.Root, store, opts.Components, opts.Workers, opts.MinSize, fullScan, opts.ShowProgress, opts.Errors)
	sum.Scan, err = scan.Run(ctx)
	if err != nil {
		return sum, err
	}

	if opts.Components.Has(types.Created) && metadata.BirthTimeUnavailable() {
		sendError(opts.Errors, fmt.Errorf("creation time is unavailable on this platform; the ctime component hashes as zero"))
	}

	if opts.Components.Has(types.Content) {
		hasher := scanner.NewHasher(store, opts.Components, opts.Workers, fullScan, opts.ShowProgress, opts.Errors)
		if err := hasher.Run(ctx); err != nil {
			return sum, err
		}
	}

	// Metadata-only composites are written during the scan phase, so
	// detection always groups by hash.
	det := detector.New(store)
	if opts.OnCount != nil {
		total, err := det.CountByHash()
		if err != nil {
			return sum, err
		}
		opts.OnCount(total)
	}

	streamCtx, stopStream := context.WithCancel(ctx)
	defer stopStream()
	for r := range det.ByHash(streamCtx) {
		if r.Err != nil {
			return sum, r.Err
		}
		sum.Groups++
		sum.Duplicates += len(r.Group.Files) - 1
		sum.WastedBytes += r.Group.Size * int64(len(r.Group.Files)-1)
		stop, err := handle(r.Group)
		if err != nil {
			return sum, err
		}
		if stop {
			sum.Quit = true
			stopStream()
			break
		}
	}
	if err := ctx.Err(); err != nil {
		return sum, err
	}

	if err := store.Sweep(keepGenerations); err != nil {
		return sum, err
	}
	return sum, nil
}

// reconcileComponents compares the requested mask against the persisted
// one and persists the new value. A mismatch forces a full rescan for
// this run.
func reconcileComponents(store *index.Store, components types.HashComponents, fullScan bool) (bool, error) {
	prev, ok, err := store.Config(index.ConfigHashComponents)
	if err != nil {
		return false, err
	}
	if ok {
		prevMask, err := strconv.ParseUint(prev, 10, 32)
		if err != nil || types.HashComponents(prevMask) != components {
			fullScan = true
		}
	} else {
		fullScan = true
	}
	if err := store.SetConfig(index.ConfigHashComponents, strconv.FormatUint(uint64(components), 10)); err != nil {
		return false, err
	}
	return fullScan, nil
}

func sendError(ch chan<- error, err error) {
	if ch != nil {
		ch <- err
	}
}
