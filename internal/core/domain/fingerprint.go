package domain

import (
	"encoding/binary"
	"encoding/hex"
	"math"

	"github.com/cespare/xxhash/v2"
)

const (
	fingerprintSeedLo uint64 = 0x9e3779b97f4a7c15
	fingerprintSeedHi uint64 = 0xc2b2ae3d27d4eb4f
)

// Fingerprint is a 128-bit stable content hash.
//
// Equal content always produces equal fingerprints across processes, which is what
// allows results to be compared between sessions. Two different inputs that collide
// on all 128 bits cannot be told apart; the width makes that risk negligible.
type Fingerprint struct {
	Lo uint64
	Hi uint64
}

// ZeroFingerprint is the fingerprint recorded for results that are not hashed.
var ZeroFingerprint = Fingerprint{}

// IsZero reports whether f is the zero fingerprint.
func (f Fingerprint) IsZero() bool {
	return f == ZeroFingerprint
}

// Combine mixes other into f. The operation is order dependent.
func (f Fingerprint) Combine(other Fingerprint) Fingerprint {
	h := NewStableHasher()
	h.WriteFingerprint(f)
	h.WriteFingerprint(other)
	return h.Finish()
}

// Bytes returns the little-endian encoding of the fingerprint.
func (f Fingerprint) Bytes() [16]byte {
	var b [16]byte
	binary.LittleEndian.PutUint64(b[:8], f.Lo)
	binary.LittleEndian.PutUint64(b[8:], f.Hi)
	return b
}

// String returns the fingerprint as 32 hex characters.
func (f Fingerprint) String() string {
	b := f.Bytes()
	return hex.EncodeToString(b[:])
}

// FingerprintOf hashes a byte slice.
func FingerprintOf(data []byte) Fingerprint {
	h := NewStableHasher()
	h.WriteBytes(data)
	return h.Finish()
}

// StableHash is implemented by types that know how to feed their content into a
// StableHasher. Implementations must not hash pointers or other process-specific data.
type StableHash interface {
	StableHash(h *StableHasher)
}

// StableHasher accumulates content into a Fingerprint.
// Variable-length writes are length-prefixed so that adjacent fields cannot alias.
type StableHasher struct {
	lo  *xxhash.Digest
	hi  *xxhash.Digest
	buf [8]byte
}

// NewStableHasher creates an empty hasher.
func NewStableHasher() *StableHasher {
	return &StableHasher{
		lo: xxhash.NewWithSeed(fingerprintSeedLo),
		hi: xxhash.NewWithSeed(fingerprintSeedHi),
	}
}

func (h *StableHasher) write(p []byte) {
	_, _ = h.lo.Write(p)
	_, _ = h.hi.Write(p)
}

// WriteUint64 hashes an unsigned integer.
func (h *StableHasher) WriteUint64(v uint64) {
	binary.LittleEndian.PutUint64(h.buf[:], v)
	h.write(h.buf[:])
}

// WriteInt64 hashes a signed integer.
func (h *StableHasher) WriteInt64(v int64) {
	h.WriteUint64(uint64(v)) //nolint:gosec // Bit pattern is what we hash
}

// WriteBool hashes a boolean.
func (h *StableHasher) WriteBool(v bool) {
	if v {
		h.WriteUint64(1)
		return
	}
	h.WriteUint64(0)
}

// WriteFloat64 hashes a float by its IEEE-754 bits.
func (h *StableHasher) WriteFloat64(v float64) {
	h.WriteUint64(math.Float64bits(v))
}

// WriteString hashes a length-prefixed string.
func (h *StableHasher) WriteString(s string) {
	h.WriteUint64(uint64(len(s)))
	_, _ = h.lo.WriteString(s)
	_, _ = h.hi.WriteString(s)
}

// WriteBytes hashes a length-prefixed byte slice.
func (h *StableHasher) WriteBytes(b []byte) {
	h.WriteUint64(uint64(len(b)))
	h.write(b)
}

// WriteFingerprint hashes another fingerprint.
func (h *StableHasher) WriteFingerprint(f Fingerprint) {
	h.WriteUint64(f.Lo)
	h.WriteUint64(f.Hi)
}

// Finish returns the fingerprint of everything written so far.
func (h *StableHasher) Finish() Fingerprint {
	return Fingerprint{Lo: h.lo.Sum64(), Hi: h.hi.Sum64()}
}

// HashValue feeds v into h. It supports StableHash implementations and the common
// scalar, string and slice types. It reports false for anything else.
//
//nolint:cyclop // Flat type switch
func HashValue(h *StableHasher, v any) bool {
	switch x := v.(type) {
	case StableHash:
		x.StableHash(h)
	case string:
		h.WriteString(x)
	case []byte:
		h.WriteBytes(x)
	case bool:
		h.WriteBool(x)
	case int:
		h.WriteInt64(int64(x))
	case int8:
		h.WriteInt64(int64(x))
	case int16:
		h.WriteInt64(int64(x))
	case int32:
		h.WriteInt64(int64(x))
	case int64:
		h.WriteInt64(x)
	case uint:
		h.WriteUint64(uint64(x))
	case uint8:
		h.WriteUint64(uint64(x))
	case uint16:
		h.WriteUint64(uint64(x))
	case uint32:
		h.WriteUint64(uint64(x))
	case uint64:
		h.WriteUint64(x)
	case float64:
		h.WriteFloat64(x)
	case Fingerprint:
		h.WriteFingerprint(x)
	case []string:
		h.WriteUint64(uint64(len(x)))
		for _, s := range x {
			h.WriteString(s)
		}
	case Unit:
		h.WriteUint64(0)
	default:
		return false
	}
	return true
}

// Unit is the key of queries that are computed once per session.
type Unit struct{}
