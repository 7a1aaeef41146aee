// Package mutator implements the input mutation engine: it evolves an
// input buffer drawn from the corpus by applying a fixed number of
// independently-chosen mutation passes, optionally drawing whole elements
// from a dictionary database. It is the Felt-vector analog of the teacher
// fluxfuzzer project's byte-oriented internal/mutator package (afl.go's
// BitFlipMutator family, mutator.go's Registry) adapted to operate on
// []felt.Felt instead of []byte, since the VM here executes field-element
// argument vectors rather than raw byte payloads.
package mutator

import (
	"fmt"

	"github.com/cairo-fuzz/cairofuzz/internal/rng"
	"github.com/cairo-fuzz/cairofuzz/pkg/felt"
)

// CorruptMutationError reports that the input buffer ended up at the
// wrong length for the target function's argument count after a call to
// Mutate. Mutate's own contract guarantees this never happens (it only
// ever rewrites existing elements), so a CorruptMutationError means the
// caller seeded the buffer at the wrong length to begin with — the fuzz
// worker checks for it defensively with CheckLength rather than trusting
// that invariant blindly, and silently discards the case (spec.md §7:
// CorruptMutation is recoverable, the loop simply continues).
type CorruptMutationError struct {
	Got  int
	Want int
}

func (e *CorruptMutationError) Error() string {
	return fmt.Sprintf("mutator: corrupt mutation: input length %d, want %d", e.Got, e.Want)
}

// CheckLength returns a *CorruptMutationError if the buffer's current
// length doesn't match want, or nil if it does.
func (m *Mutator) CheckLength(want int) error {
	if len(m.Input) != want {
		return &CorruptMutationError{Got: len(m.Input), Want: want}
	}
	return nil
}

// passKind enumerates the mutation passes a single call to Mutate chooses
// among. Unlike the teacher's byte-level BitFlip/Arithmetic/Interesting
// family, a Felt element is opaque, so the available passes operate on
// whole elements: overwrite, dictionary insertion, zeroing and copy.
type passKind int

const (
	passOverwriteRandom passKind = iota
	passOverwriteFromDict
	passZero
	passCopy
	numPassKinds
)

// Database is the dictionary abstraction a Mutator may draw whole sample
// elements from. A nil or zero-length Database behaves exactly like the
// disabled EmptyDatabase sentinel.
type Database interface {
	Len() int
	Get(i int) felt.Felt
}

// EmptyDatabase is the sentinel Database that disables dictionary-based
// insertion. The fuzz worker always passes it; a configured dictionary
// file only contributes synthetic seed inputs to the corpus at startup.
type EmptyDatabase struct{}

func (EmptyDatabase) Len() int          { return 0 }
func (EmptyDatabase) Get(i int) felt.Felt { return felt.Zero }

// Dictionary is a simple slice-backed Database, used when a Config dict
// file is supplied.
type Dictionary []felt.Felt

func (d Dictionary) Len() int          { return len(d) }
func (d Dictionary) Get(i int) felt.Felt { return d[i] }

// Mutator holds the mutable input buffer and the deterministic RNG used to
// drive every pass. Each worker owns one Mutator; it is not safe for
// concurrent use.
type Mutator struct {
	Input        []felt.Felt
	MaxInputSize int
	rng          rng.Rng
}

// New constructs a Mutator seeded for reproducible mutation choices and
// bounded to maxInputSize elements.
func New(seed uint64, maxInputSize int) *Mutator {
	return &Mutator{
		Input:        make([]felt.Felt, 0, maxInputSize),
		MaxInputSize: maxInputSize,
		rng:          rng.Seeded(seed),
	}
}

// Clear empties the input buffer without releasing its backing array.
func (m *Mutator) Clear() {
	m.Input = m.Input[:0]
}

// SelectIndex draws the next index in [0, n) from the Mutator's own
// pseudo-random stream. The fuzz worker uses this to choose which corpus
// entry to seed the buffer from, so that corpus selection and mutation
// passes draw from one single reproducible stream per worker.
func (m *Mutator) SelectIndex(n int) int {
	return m.rng.Intn(n)
}

// ExtendFromSlice appends src to the input buffer. Appending past
// MaxInputSize silently truncates the excess.
func (m *Mutator) ExtendFromSlice(src []felt.Felt) {
	room := m.MaxInputSize - len(m.Input)
	if room <= 0 {
		return
	}
	if len(src) > room {
		src = src[:room]
	}
	m.Input = append(m.Input, src...)
}

// Mutate applies passes independently-chosen mutations to the input
// buffer. dict is an optional sample database; pass EmptyDatabase{} to
// disable dictionary-based insertion. Mutate leaves len(m.Input) unchanged
// from what it was on entry — it only ever rewrites existing elements, it
// never grows or shrinks the buffer — so a buffer that was already at
// MaxInputSize on entry stays at MaxInputSize, satisfying the contract the
// caller (the fuzz worker) relies on to detect corruption.
func (m *Mutator) Mutate(passes uint32, dict Database) {
	n := len(m.Input)
	if n == 0 {
		return
	}

	for p := uint32(0); p < passes; p++ {
		kind := passKind(m.rng.Intn(int(numPassKinds)))
		if kind == passOverwriteFromDict && (dict == nil || dict.Len() == 0) {
			kind = passOverwriteRandom
		}

		switch kind {
		case passOverwriteRandom:
			idx := m.rng.Intn(n)
			m.Input[idx] = felt.FromU64(m.rng.Uint64())
		case passOverwriteFromDict:
			idx := m.rng.Intn(n)
			m.Input[idx] = dict.Get(m.rng.Intn(dict.Len()))
		case passZero:
			idx := m.rng.Intn(n)
			m.Input[idx] = felt.Zero
		case passCopy:
			src := m.rng.Intn(n)
			dst := m.rng.Intn(n)
			m.Input[dst] = m.Input[src]
		}
	}
}
