// Package metadata stats files for the scan pipeline.
//
// Creation (birth) time is filesystem- and platform-dependent. Where the
// platform cannot report it the probe substitutes zero and latches a
// process-wide flag so the caller can warn the user exactly once.
package metadata

import (
	"os"
	"sync/atomic"

	"github.com/dmelnik/dupidx/internal/types"
)

var birthUnavailable atomic.Bool

// Stat probes a single path and returns its metadata. Errors (missing,
// inaccessible) mean the path should be skipped.
func Stat(path string) (types.Metadata, error) {
	info, err := os.Stat(path)
	if err != nil {
		return types.Metadata{}, err
	}
	created, ok := birthTime(info)
	if !ok {
		birthUnavailable.Store(true)
	}
	return types.Metadata{
		Size:     info.Size(),
		Modified: info.ModTime().Unix(),
		Created:  created,
	}, nil
}

// BirthTimeUnavailable reports whether any probe in this process failed
// to obtain a birth time. The flag only ever flips from false to true.
func BirthTimeUnavailable() bool {
	return birthUnavailable.Load()
}
