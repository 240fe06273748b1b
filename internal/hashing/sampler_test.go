package hashing

import (
	"bytes"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/cespare/xxhash/v2"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func TestSampleCount(t *testing.T) {
	tests := []struct {
		size int64
		want int
	}{
		{1, 1},
		{ChunkSize, 1},           // whole file fits one chunk
		{ChunkSize + 1, 3},       // lower clamp
		{1 << 20, 3},             // 1 MiB
		{2 << 20, 3},             // log2(2)*3 = 3
		{4 << 20, 6},             // log2(4)*3 = 6
		{8 << 20, 9},             // log2(8)*3 = 9
		{1 << 30, 30},            // 1 GiB: log2(1024)*3
		{10 << 30, 39},           // 10 GiB: floor(log2(10240))*3 = 13*3
		{1 << 40, 60},            // 1 TiB
		{1 << 53, 99},            // just under the upper clamp
		{1 << 54, 100},           // upper clamp
		{int64(1) << 62, 100},    // stays clamped
	}
	for _, tc := range tests {
		if got := SampleCount(tc.size); got != tc.want {
			t.Errorf("SampleCount(%d) = %d, want %d", tc.size, got, tc.want)
		}
	}
}

func TestSamplePlanInvariants(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("no chunk extends past EOF", prop.ForAll(
		func(size int64) bool {
			for _, r := range samplePlan(size) {
				if r.off < 0 || r.off+r.len > size {
					return false
				}
			}
			return true
		},
		gen.Int64Range(1, 1<<40),
	))

	properties.Property("plan length matches SampleCount", prop.ForAll(
		func(size int64) bool {
			return len(samplePlan(size)) == SampleCount(size)
		},
		gen.Int64Range(1, 1<<40),
	))

	properties.Property("offsets are non-decreasing and chunks are full size", prop.ForAll(
		func(size int64) bool {
			plan := samplePlan(size)
			for i, r := range plan {
				if i > 0 && r.off < plan[i-1].off {
					return false
				}
				if size > ChunkSize && r.len != ChunkSize {
					return false
				}
			}
			return true
		},
		gen.Int64Range(ChunkSize+1, 1<<40),
	))

	properties.TestingRun(t)
}

func writeFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestContentFingerprintSmallFileWholeContent(t *testing.T) {
	data := []byte("hello\n")
	path := writeFile(t, "small.txt", data)

	got, err := ContentFingerprint(path, int64(len(data)))
	if err != nil {
		t.Fatalf("ContentFingerprint failed: %v", err)
	}
	if want := xxhash.Sum64(data); got != want {
		t.Errorf("fingerprint = %016x, want whole-file xxhash %016x", got, want)
	}
}

func TestContentFingerprintMatchesPlan(t *testing.T) {
	// Large enough for multiple chunks, small enough for a test.
	size := int64(3 << 20)
	data := make([]byte, size)
	rnd := rand.New(rand.NewSource(42))
	rnd.Read(data)
	path := writeFile(t, "big.bin", data)

	got, err := ContentFingerprint(path, size)
	if err != nil {
		t.Fatalf("ContentFingerprint failed: %v", err)
	}

	digest := xxhash.New()
	for _, r := range samplePlan(size) {
		digest.Write(data[r.off : r.off+r.len])
	}
	if want := digest.Sum64(); got != want {
		t.Errorf("fingerprint = %016x, want planned-chunk xxhash %016x", got, want)
	}
}

func TestContentFingerprintDeterministic(t *testing.T) {
	data := bytes.Repeat([]byte("abc123"), 50000) // ~300 KB
	path := writeFile(t, "repeat.bin", data)

	first, err := ContentFingerprint(path, int64(len(data)))
	if err != nil {
		t.Fatal(err)
	}
	second, err := ContentFingerprint(path, int64(len(data)))
	if err != nil {
		t.Fatal(err)
	}
	if first != second {
		t.Errorf("fingerprints differ across runs: %016x vs %016x", first, second)
	}
}

func TestContentFingerprintIdenticalFilesAgree(t *testing.T) {
	data := make([]byte, 200_000)
	rand.New(rand.NewSource(7)).Read(data)

	a := writeFile(t, "a.bin", data)
	b := writeFile(t, "b.bin", data)

	ha, err := ContentFingerprint(a, int64(len(data)))
	if err != nil {
		t.Fatal(err)
	}
	hb, err := ContentFingerprint(b, int64(len(data)))
	if err != nil {
		t.Fatal(err)
	}
	if ha != hb {
		t.Errorf("identical files disagree: %016x vs %016x", ha, hb)
	}
}

func TestContentFingerprintReadFailure(t *testing.T) {
	fp, err := ContentFingerprint(filepath.Join(t.TempDir(), "missing"), 100)
	if err == nil {
		t.Fatal("expected error for missing file")
	}
	if fp != 0 {
		t.Errorf("fingerprint = %016x, want zero sentinel", fp)
	}
}
