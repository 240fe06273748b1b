//go:build darwin

package metadata

import (
	"os"
	"syscall"
)

// birthTime returns the file's birth time in Unix seconds.
func birthTime(info os.FileInfo) (int64, bool) {
	stat, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return 0, false
	}
	return stat.Birthtimespec.Sec, true
}
