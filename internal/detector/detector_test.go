package detector

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/dmelnik/dupidx/internal/hashing"
	"github.com/dmelnik/dupidx/internal/index"
	"github.com/dmelnik/dupidx/internal/types"
)

func openTestStore(t *testing.T) *index.Store {
	t.Helper()
	s, err := index.Open(filepath.Join(t.TempDir(), "index.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func upsert(t *testing.T, s *index.Store, path string, size int64, hash []byte) {
	t.Helper()
	if err := s.Upsert(path, types.Metadata{Size: size}, hash); err != nil {
		t.Fatal(err)
	}
}

func collect(t *testing.T, ch <-chan Result) []types.DuplicateGroup {
	t.Helper()
	var groups []types.DuplicateGroup
	for r := range ch {
		if r.Err != nil {
			t.Fatalf("stream error: %v", r.Err)
		}
		groups = append(groups, r.Group)
	}
	return groups
}

func TestByHashGroups(t *testing.T) {
	s := openTestStore(t)

	shared := hashing.EncodeFingerprint(0xaabbccdd11223344)
	other := hashing.EncodeFingerprint(0x5566778899aabbcc)
	upsert(t, s, "/x/1", 50, shared)
	upsert(t, s, "/x/2", 50, shared)
	upsert(t, s, "/x/3", 50, other) // singleton hash, never yielded
	upsert(t, s, "/x/4", 70, nil)   // no hash, ignored

	groups := collect(t, New(s).ByHash(context.Background()))
	if len(groups) != 1 {
		t.Fatalf("got %d groups, want 1", len(groups))
	}
	g := groups[0]
	if !g.Hashed || g.Hash != 0xaabbccdd11223344 {
		t.Errorf("group hash = %x (hashed=%v), want aabbccdd11223344", g.Hash, g.Hashed)
	}
	if g.Size != 50 {
		t.Errorf("group size = %d, want 50", g.Size)
	}
	if len(g.Files) != 2 || g.Files[0].Path != "/x/1" || g.Files[1].Path != "/x/2" {
		t.Errorf("group files = %+v, want /x/1 then /x/2", g.Files)
	}

	n, err := New(s).CountByHash()
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("CountByHash = %d, want 1", n)
	}
}

func TestByHashOrderedByBucketSize(t *testing.T) {
	s := openTestStore(t)

	small := hashing.EncodeFingerprint(1)
	big := hashing.EncodeFingerprint(2)
	upsert(t, s, "/s/1", 10, small)
	upsert(t, s, "/s/2", 10, small)
	upsert(t, s, "/b/1", 9000, big)
	upsert(t, s, "/b/2", 9000, big)

	groups := collect(t, New(s).ByHash(context.Background()))
	if len(groups) != 2 {
		t.Fatalf("got %d groups, want 2", len(groups))
	}
	if groups[0].Size != 9000 || groups[1].Size != 10 {
		t.Errorf("sizes = [%d %d], want largest bucket first", groups[0].Size, groups[1].Size)
	}
}

func TestBySizeGroups(t *testing.T) {
	s := openTestStore(t)

	upsert(t, s, "/a", 100, nil)
	upsert(t, s, "/b", 100, nil)
	upsert(t, s, "/c", 300, nil)
	upsert(t, s, "/d", 300, nil)
	upsert(t, s, "/lone", 200, nil)

	groups := collect(t, New(s).BySize(context.Background()))
	if len(groups) != 2 {
		t.Fatalf("got %d groups, want 2", len(groups))
	}
	if groups[0].Size != 300 || groups[1].Size != 100 {
		t.Errorf("sizes = [%d %d], want descending", groups[0].Size, groups[1].Size)
	}
	for _, g := range groups {
		if g.Hashed {
			t.Errorf("size group %d carries a hash", g.Size)
		}
		if len(g.Files) != 2 {
			t.Errorf("size group %d has %d files, want 2", g.Size, len(g.Files))
		}
	}

	n, err := New(s).CountBySize()
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("CountBySize = %d, want 2", n)
	}
}

func TestStreamStopsOnCancel(t *testing.T) {
	s := openTestStore(t)

	// Enough buckets to outnumber the channel buffer.
	for i := 0; i < 300; i++ {
		h := hashing.EncodeFingerprint(uint64(i + 1))
		upsert(t, s, fmt.Sprintf("/f/%03d", i), int64(i+1), h)
		upsert(t, s, fmt.Sprintf("/g/%03d", i), int64(i+1), h)
	}

	ctx, cancel := context.WithCancel(context.Background())
	ch := New(s).ByHash(ctx)

	// Take one group, then stop consuming.
	if r, ok := <-ch; !ok || r.Err != nil {
		t.Fatalf("first pull failed: %+v", r)
	}
	cancel()

	// The producer must close the stream promptly after cancellation.
	for range ch {
	}
}
