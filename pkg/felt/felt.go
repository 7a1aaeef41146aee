// Package felt defines the field-element value type shared across cairofuzz
// components: the mutator, the VM, the feedback database and the corpus
// sinks all exchange inputs expressed as slices of Felt.
package felt

import (
	"encoding/binary"
	"fmt"
	"strings"
)

// Felt is an opaque scalar drawn from the VM's finite field. It is
// represented as a fixed-width 256-bit value, matching the width of a
// Cairo field element, but no modular-reduction semantics are implemented
// here: the VM (internal/vm) is responsible for any field-specific
// arithmetic. Felt itself only needs equality, hashing and byte-seeding.
type Felt [32]byte

// Zero is the additive identity.
var Zero = Felt{}

// FromU64 builds a Felt from a 64-bit unsigned integer, placed in the
// low-order bytes (big-endian, so lexicographic byte comparison agrees
// with numeric comparison for values that fit in 64 bits).
func FromU64(v uint64) Felt {
	var f Felt
	binary.BigEndian.PutUint64(f[24:], v)
	return f
}

// FromByte builds a Felt from a single byte, zero-extended.
func FromByte(b byte) Felt {
	var f Felt
	f[31] = b
	return f
}

// Clone returns an independent copy of f. Felt is a value type, so a plain
// assignment already copies it; Clone exists for symmetry with the other
// reference-counted databases that call Clone() on their elements.
func (f Felt) Clone() Felt {
	return f
}

// Equal reports whether two Felts hold the same bytes.
func (f Felt) Equal(other Felt) bool {
	return f == other
}

// Uint64 returns the low 64 bits of f, useful for small test values and for
// VM opcodes that only need machine-word arithmetic.
func (f Felt) Uint64() uint64 {
	return binary.BigEndian.Uint64(f[24:])
}

// String renders f as a hex string, used in crash log lines.
func (f Felt) String() string {
	return fmt.Sprintf("0x%x", [32]byte(f))
}

// FromHex parses the textual form produced by String back into a Felt. It
// accepts an optional "0x" prefix and right-aligns the decoded bytes, the
// same placement FromU64 uses, so round-tripping through a sink file is
// lossless for any value that fits the 32-byte width.
func FromHex(s string) (Felt, error) {
	s = strings.TrimPrefix(s, "0x")
	if len(s)%2 != 0 {
		s = "0" + s
	}
	if len(s) > 64 {
		return Zero, fmt.Errorf("felt: hex string %q exceeds 32 bytes", s)
	}
	raw := make([]byte, len(s)/2)
	for i := range raw {
		var b byte
		if _, err := fmt.Sscanf(s[i*2:i*2+2], "%02x", &b); err != nil {
			return Zero, fmt.Errorf("felt: invalid hex digit in %q: %w", s, err)
		}
		raw[i] = b
	}
	var f Felt
	copy(f[32-len(raw):], raw)
	return f, nil
}

// Input is an ordered sequence of field elements whose length is exactly
// the target function's num_args. Inputs are treated as immutable once
// published: callers that need to keep mutating a buffer should build it up
// in a separate []Felt and only convert to Input when done mutating.
type Input []Felt

// Clone returns a deep copy of in, so that a caller's later mutation of one
// shared buffer cannot corrupt a copy already published into a database.
func (in Input) Clone() Input {
	out := make(Input, len(in))
	copy(out, in)
	return out
}

// Equal reports whether two inputs hold the same elements in the same
// order.
func (in Input) Equal(other Input) bool {
	if len(in) != len(other) {
		return false
	}
	for i := range in {
		if !in[i].Equal(other[i]) {
			return false
		}
	}
	return true
}

// Key returns a comparable representation of in suitable for use as a Go
// map key (map keys must be comparable; slices aren't, arrays are). This is
// the content-equality/content-hash backbone that InputSet and CoverageMap
// build on.
func (in Input) Key() string {
	b := make([]byte, 0, len(in)*32)
	for _, f := range in {
		b = append(b, f[:]...)
	}
	return string(b)
}

// String renders an Input for crash log lines and diagnostics.
func (in Input) String() string {
	s := "["
	for i, f := range in {
		if i > 0 {
			s += ", "
		}
		s += f.String()
	}
	return s + "]"
}
