// Package hashing produces the 8-byte composite fingerprints stored in
// the index.
//
// # Overview
//
// Two cooperating pieces:
//
//   - The CONTENT SAMPLER reads a bounded number of evenly spaced 64 KiB
//     windows of a file and folds them into a streaming xxhash64 digest.
//     The window count grows logarithmically with file size, so even a
//     multi-gigabyte file is fingerprinted from a few megabytes of I/O.
//
//   - The COMPOSITE MIXER feeds the selected components (size, ctime,
//     mtime, folded name, content fingerprint) into a fresh xxhash64
//     digest in a fixed canonical order. A disabled component contributes
//     nothing at all, so different component masks never alias each
//     other's bucket namespaces.
//
// Both are stateless; all functions are safe for concurrent use.
package hashing

import (
	"io"
	"math/bits"
	"os"

	"github.com/cespare/xxhash/v2"
)

// ChunkSize is the size of one sampled content window.
const ChunkSize = 64 * 1024

// Sample count bounds for files larger than one chunk.
const (
	minSamples = 3
	maxSamples = 100
)

// SampleCount returns the number of windows the sampler reads for a file
// of the given size: 1 for files no larger than a single chunk, otherwise
// floor(log2(size in MiB)) * 3 clamped to [3, 100].
func SampleCount(size int64) int {
	if size <= ChunkSize {
		return 1
	}
	mib := uint64(size) >> 20
	if mib == 0 {
		return minSamples
	}
	k := (bits.Len64(mib) - 1) * 3
	if k < minSamples {
		return minSamples
	}
	if k > maxSamples {
		return maxSamples
	}
	return k
}

// sampleRange is one planned window: offset and length within the file.
type sampleRange struct {
	off int64
	len int64
}

// samplePlan returns the windows read for a file of the given size, in
// order of increasing offset. Offsets are spaced size/k apart and the
// final window is clamped so it never extends past EOF.
func samplePlan(size int64) []sampleRange {
	if size <= ChunkSize {
		return []sampleRange{{off: 0, len: size}}
	}
	k := SampleCount(size)
	stride := size / int64(k)
	plan := make([]sampleRange, 0, k)
	for i := 0; i < k; i++ {
		off := int64(i) * stride
		if max := size - ChunkSize; off > max {
			off = max
		}
		plan = append(plan, sampleRange{off: off, len: ChunkSize})
	}
	return plan
}

// ContentFingerprint samples the file at path and returns its 64-bit
// content fingerprint. size must be the file's current length in bytes.
//
// On any read failure the returned fingerprint is zero, the sentinel for
// "content unknown"; the error is returned alongside so callers can
// report it.
func ContentFingerprint(path string, size int64) (uint64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer func() { _ = f.Close() }()

	digest := xxhash.New()
	buf := make([]byte, ChunkSize)
	for _, r := range samplePlan(size) {
		chunk := buf[:r.len]
		if _, err := io.ReadFull(io.NewSectionReader(f, r.off, r.len), chunk); err != nil {
			return 0, err
		}
		_, _ = digest.Write(chunk)
	}
	return digest.Sum64(), nil
}
