package hashing

import (
	"encoding/binary"
	"strings"

	"github.com/cespare/xxhash/v2"

	"github.com/dmelnik/dupidx/internal/types"
)

// Composite mixes the components selected by mask into a single 64-bit
// fingerprint. Selected inputs are fed into a fresh xxhash64 digest in a
// fixed canonical order: size, ctime, mtime, case-folded base name,
// content fingerprint. Integers are encoded as 8 little-endian bytes; the
// content fingerprint is encoded with EncodeFingerprint. A component not
// in the mask contributes nothing.
func Composite(mask types.HashComponents, meta types.Metadata, name string, content uint64) uint64 {
	digest := xxhash.New()
	var buf [8]byte
	writeInt := func(v int64) {
		binary.LittleEndian.PutUint64(buf[:], uint64(v))
		_, _ = digest.Write(buf[:])
	}
	if mask.Has(types.Size) {
		writeInt(meta.Size)
	}
	if mask.Has(types.Created) {
		writeInt(meta.Created)
	}
	if mask.Has(types.Modified) {
		writeInt(meta.Modified)
	}
	if mask.Has(types.FileName) {
		_, _ = digest.WriteString(strings.ToLower(name))
	}
	if mask.Has(types.Content) {
		_, _ = digest.Write(EncodeFingerprint(content))
	}
	return digest.Sum64()
}

// EncodeFingerprint returns the persisted 8-byte form of a fingerprint.
// Big-endian, so the stored blob sorts like the integer it encodes and
// DecodeFingerprint is its inverse.
func EncodeFingerprint(h uint64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, h)
	return buf
}

// DecodeFingerprint reinterprets a stored 8-byte fingerprint as uint64.
func DecodeFingerprint(b []byte) uint64 {
	return binary.BigEndian.Uint64(b)
}
