package main

import (
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/dmelnik/dupidx/internal/types"
)

// parseSize parses a human-readable size string into bytes.
// Supports formats: "100", "1K", "1MB", "1GiB", etc.
func parseSize(s string) (int64, error) {
	bytes, err := humanize.ParseBytes(s)
	if err != nil {
		return 0, err
	}
	return int64(bytes), nil
}

// applyToggle applies one +/- component flag value to the mask.
// An empty value leaves the default untouched.
func applyToggle(mask, bit types.HashComponents, val string) (types.HashComponents, error) {
	switch val {
	case "":
		return mask, nil
	case "+":
		return mask.With(bit), nil
	case "-":
		return mask.Without(bit), nil
	default:
		return 0, fmt.Errorf("want + or -, got %q", val)
	}
}

// parseIndexList parses a comma-separated list of 1-based indexes such
// as "2,3", validating each against n. Duplicates collapse; the result
// is sorted ascending.
func parseIndexList(s string, n int) ([]int, error) {
	var indexes []int
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		i, err := strconv.Atoi(part)
		if err != nil {
			return nil, fmt.Errorf("index %q: %w", part, err)
		}
		if i < 1 || i > n {
			return nil, fmt.Errorf("index %d out of range 1-%d", i, n)
		}
		if !slices.Contains(indexes, i) {
			indexes = append(indexes, i)
		}
	}
	if len(indexes) == 0 {
		return nil, fmt.Errorf("no indexes given")
	}
	slices.Sort(indexes)
	return indexes, nil
}
