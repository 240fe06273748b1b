package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/manifoldco/promptui"

	"github.com/dmelnik/dupidx/internal/types"
)

// Actions offered per duplicate group.
const (
	actionKeepAll    = "Keep all"
	actionDelete     = "Delete by index (e.g. 2,3)"
	actionKeepOldest = "Keep oldest"
	actionKeepNewest = "Keep newest"
	actionQuit       = "Quit"
)

// printGroup writes one duplicate group to stdout. Used with
// --no-interact so output can be piped.
func printGroup(g types.DuplicateGroup) (bool, error) {
	if g.Hashed {
		fmt.Printf("%d files, %s each, fingerprint %016x:\n", len(g.Files), humanize.IBytes(uint64(g.Size)), g.Hash)
	} else {
		fmt.Printf("%d files, %s each:\n", len(g.Files), humanize.IBytes(uint64(g.Size)))
	}
	for i, f := range g.Files {
		fmt.Printf("  %d. %s (%s)\n", i+1, f.Path,
			time.Unix(f.Modified, 0).Format(time.DateTime))
	}
	return false, nil
}

// interactor prompts the user for an action on each duplicate group.
// Consumption is sequential and synchronous with user input; the group
// stream upstream stays lazy.
type interactor struct {
	deleted int
	saved   int64
}

func newInteractor() *interactor {
	return &interactor{}
}

// handle presents one group and applies the chosen action. Returns
// stop=true when the user quits.
func (it *interactor) handle(g types.DuplicateGroup) (bool, error) {
	if _, err := printGroup(g); err != nil {
		return false, err
	}

	sel := promptui.Select{
		Label: "Action",
		Items: []string{actionKeepAll, actionDelete, actionKeepOldest, actionKeepNewest, actionQuit},
	}
	_, action, err := sel.Run()
	if err != nil {
		if errors.Is(err, promptui.ErrInterrupt) || errors.Is(err, promptui.ErrEOF) {
			return true, nil
		}
		return false, err
	}

	switch action {
	case actionKeepAll:
		return false, nil
	case actionDelete:
		return false, it.deleteByIndex(g)
	case actionKeepOldest:
		it.deleteAllBut(g, oldestIndex(g.Files))
		return false, nil
	case actionKeepNewest:
		it.deleteAllBut(g, newestIndex(g.Files))
		return false, nil
	default:
		return true, nil
	}
}

// deleteByIndex prompts for an index list and removes the named files.
func (it *interactor) deleteByIndex(g types.DuplicateGroup) error {
	prompt := promptui.Prompt{
		Label: fmt.Sprintf("Indexes to delete (1-%d, comma separated)", len(g.Files)),
		Validate: func(s string) error {
			_, err := parseIndexList(s, len(g.Files))
			return err
		},
	}
	input, err := prompt.Run()
	if err != nil {
		if errors.Is(err, promptui.ErrInterrupt) || errors.Is(err, promptui.ErrEOF) {
			return nil
		}
		return err
	}
	indexes, err := parseIndexList(input, len(g.Files))
	if err != nil {
		return err
	}
	for _, i := range indexes {
		it.remove(g.Files[i-1])
	}
	return nil
}

// deleteAllBut removes every file in the group except the one at keep.
func (it *interactor) deleteAllBut(g types.DuplicateGroup, keep int) {
	for i, f := range g.Files {
		if i != keep {
			it.remove(f)
		}
	}
}

func (it *interactor) remove(f types.FileRecord) {
	if err := os.Remove(f.Path); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return
	}
	it.deleted++
	it.saved += f.Size
	fmt.Printf("deleted %s\n", f.Path)
}

// oldestIndex returns the index of the file with the smallest mtime.
func oldestIndex(files []types.FileRecord) int {
	best := 0
	for i, f := range files {
		if f.Modified < files[best].Modified {
			best = i
		}
	}
	return best
}

// newestIndex returns the index of the file with the largest mtime.
func newestIndex(files []types.FileRecord) int {
	best := 0
	for i, f := range files {
		if f.Modified > files[best].Modified {
			best = i
		}
	}
	return best
}
