package ir

import (
	"encoding/binary"
	"fmt"

	"github.com/cespare/xxhash/v2"
)

// Domain prefixes for structural identity.
// Version suffix enables future layout migration (see HashVersion).
const (
	DomainOperation = "horizon/operation/v1"
	DomainNode      = "horizon/node/v1"
	DomainInitial   = "horizon/initial/v1"
	DomainValue     = "horizon/value/v1"
)

// Hasher accumulates a 64-bit structural hash with domain separation.
// Format: xxhash(domain + 0x00 + fields...). Variable-length fields are
// length-prefixed so adjacent fields cannot alias.
type Hasher struct {
	d   *xxhash.Digest
	buf [8]byte
}

// NewHasher starts a hash in the given domain.
func NewHasher(domain string) *Hasher {
	h := &Hasher{d: xxhash.New()}
	_, _ = h.d.WriteString(domain)
	_, _ = h.d.Write([]byte{0x00})
	return h
}

// Uint64 mixes in a fixed-width integer.
func (h *Hasher) Uint64(v uint64) *Hasher {
	binary.LittleEndian.PutUint64(h.buf[:], v)
	_, _ = h.d.Write(h.buf[:])
	return h
}

// Int64 mixes in a signed fixed-width integer.
func (h *Hasher) Int64(v int64) *Hasher {
	return h.Uint64(uint64(v))
}

// Bytes mixes in a length-prefixed byte string.
func (h *Hasher) Bytes(b []byte) *Hasher {
	h.Uint64(uint64(len(b)))
	_, _ = h.d.Write(b)
	return h
}

// String mixes in a length-prefixed string.
func (h *Hasher) String(s string) *Hasher {
	h.Uint64(uint64(len(s)))
	_, _ = h.d.WriteString(s)
	return h
}

// Sum64 returns the accumulated hash.
func (h *Hasher) Sum64() uint64 {
	return h.d.Sum64()
}

// OperationHash computes the configuration identity of one operation of an
// activity: its label, its position in the decomposition and its canonical
// static arguments. Placement times are deliberately absent so identical
// operations at different times share identity.
func OperationHash(label string, index int, args Object) (uint64, error) {
	if args == nil {
		args = Object{}
	}
	canonical, err := MarshalCanonical(args)
	if err != nil {
		return 0, fmt.Errorf("OperationHash: failed to marshal args: %w", err)
	}
	return NewHasher(DomainOperation).
		String(label).
		Int64(int64(index)).
		Bytes(canonical).
		Sum64(), nil
}

// ValueHash hashes a canonical value.
func ValueHash(v Value) (uint64, error) {
	canonical, err := MarshalCanonical(v)
	if err != nil {
		return 0, fmt.Errorf("ValueHash: %w", err)
	}
	return NewHasher(DomainValue).Bytes(canonical).Sum64(), nil
}

// MustOperationHash is like OperationHash but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustOperationHash(label string, index int, args Object) uint64 {
	h, err := OperationHash(label, index, args)
	if err != nil {
		panic(err)
	}
	return h
}
