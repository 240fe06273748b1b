package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/dmelnik/dupidx/internal/finder"
	"github.com/dmelnik/dupidx/internal/types"
)

// findOptions holds CLI flags for the find command.
type findOptions struct {
	content    string
	size       string
	mtime      string
	ctime      string
	name       string
	workers    int
	dbPath     string
	fullScan   bool
	minSizeStr string
	noProgress bool
	noInteract bool
}

// newFindCmd creates the find subcommand.
func newFindCmd() *cobra.Command {
	opts := &findOptions{
		workers:    runtime.NumCPU(),
		dbPath:     ".dups.db",
		minSizeStr: "1",
	}

	cmd := &cobra.Command{
		Use:   "find [path]",
		Short: "Scan a directory tree and resolve duplicate files",
		Long: `Scans a directory tree, indexes every file, and groups duplicates by a
composite fingerprint built from the selected components.

Component flags take + (include) or - (exclude); by default only file
size is compared. With --content + files are additionally fingerprinted
by sampling their bytes. Results are cached in the index database, so
repeated runs only re-read files that changed.`,
		Args: cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			return runFind(args[0], opts)
		},
	}

	cmd.Flags().StringVar(&opts.content, "content", "", "Toggle the content component (+/-)")
	cmd.Flags().StringVar(&opts.size, "size", "", "Toggle the size component (+/-)")
	cmd.Flags().StringVar(&opts.mtime, "mtime", "", "Toggle the modification time component (+/-)")
	cmd.Flags().StringVar(&opts.ctime, "ctime", "", "Toggle the creation time component (+/-)")
	cmd.Flags().StringVar(&opts.name, "name", "", "Toggle the case-folded file name component (+/-)")
	cmd.Flags().IntVarP(&opts.workers, "workers", "w", opts.workers, "Number of parallel workers")
	cmd.Flags().StringVar(&opts.dbPath, "db", opts.dbPath, "Index database path")
	cmd.Flags().BoolVar(&opts.fullScan, "full-scan", false, "Ignore cached records; treat every path as new")
	cmd.Flags().StringVarP(&opts.minSizeStr, "min-size", "m", opts.minSizeStr, "Minimum file size (e.g., 100, 1K, 10M)")
	cmd.Flags().BoolVar(&opts.noProgress, "no-progress", false, "Disable progress output")
	cmd.Flags().BoolVar(&opts.noInteract, "no-interact", false, "Print duplicate groups instead of prompting")

	return cmd
}

// componentMask builds the effective component bitmask from the toggles.
func componentMask(opts *findOptions) (types.HashComponents, error) {
	mask := types.DefaultComponents
	for _, toggle := range []struct {
		flag string
		val  string
		bit  types.HashComponents
	}{
		{"content", opts.content, types.Content},
		{"size", opts.size, types.Size},
		{"mtime", opts.mtime, types.Modified},
		{"ctime", opts.ctime, types.Created},
		{"name", opts.name, types.FileName},
	} {
		var err error
		mask, err = applyToggle(mask, toggle.bit, toggle.val)
		if err != nil {
			return 0, fmt.Errorf("invalid --%s: %w", toggle.flag, err)
		}
	}
	return mask, nil
}

// drainErrors consumes errors from a channel and writes them to stderr.
// Clears progress bar line before printing to avoid visual collision.
func drainErrors(errs <-chan error) {
	for err := range errs {
		fmt.Fprintf(os.Stderr, "\r\033[Kerror: %v\n", err)
	}
}

// runFind executes the find pipeline: scan → hash → detect → interact → sweep.
func runFind(root string, opts *findOptions) error {
	mask, err := componentMask(opts)
	if err != nil {
		return err
	}
	minSize, err := parseSize(opts.minSizeStr)
	if err != nil {
		return fmt.Errorf("invalid --min-size: %w", err)
	}
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errors := make(chan error, 100)
	go drainErrors(errors)
	defer close(errors)

	handle := printGroup
	if !opts.noInteract {
		handle = newInteractor().handle
	}

	summary, err := finder.Run(ctx, finder.Options{
		Root:         absRoot,
		DBPath:       opts.dbPath,
		Components:   mask,
		Workers:      opts.workers,
		MinSize:      minSize,
		FullScan:     opts.fullScan,
		ShowProgress: !opts.noProgress,
		Errors:       errors,
		OnCount: func(total int) {
			fmt.Printf("Found %d duplicate groups (comparing %s)\n", total, mask)
		},
	}, handle)
	if err != nil {
		return err
	}

	fmt.Printf("Scanned %d files (%d updated, %d unchanged, %d filtered, %d skipped); %d redundant copies in %d groups, %s reclaimable\n",
		summary.Scan.Scanned, summary.Scan.Updated, summary.Scan.Unchanged, summary.Scan.Filtered, summary.Scan.Errors,
		summary.Duplicates, summary.Groups, humanize.IBytes(uint64(summary.WastedBytes)))
	return nil
}
