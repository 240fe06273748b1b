//go:build !darwin && !windows

package metadata

import "os"

// birthTime is unavailable on this platform. Linux exposes it through
// statx(2) but not through the stat result Go hands back, so the probe
// reports zero and lets the caller warn once.
func birthTime(os.FileInfo) (int64, bool) {
	return 0, false
}
