//go:build windows

package metadata

import (
	"os"
	"syscall"
	"time"
)

// birthTime returns the file's creation time in Unix seconds.
func birthTime(info os.FileInfo) (int64, bool) {
	attr, ok := info.Sys().(*syscall.Win32FileAttributeData)
	if !ok {
		return 0, false
	}
	return time.Unix(0, attr.CreationTime.Nanoseconds()).Unix(), true
}
