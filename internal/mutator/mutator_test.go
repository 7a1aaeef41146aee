package mutator

import (
	"testing"

	"github.com/cairo-fuzz/cairofuzz/pkg/felt"
)

func TestExtendFromSliceTruncates(t *testing.T) {
	m := New(1, 3)
	m.ExtendFromSlice([]felt.Felt{felt.FromU64(1), felt.FromU64(2), felt.FromU64(3), felt.FromU64(4)})

	if len(m.Input) != 3 {
		t.Fatalf("expected input truncated to 3 elements, got %d", len(m.Input))
	}
	if !m.Input[2].Equal(felt.FromU64(3)) {
		t.Errorf("expected last kept element to be 3, got %v", m.Input[2])
	}
}

func TestClearEmptiesBuffer(t *testing.T) {
	m := New(1, 3)
	m.ExtendFromSlice([]felt.Felt{felt.FromU64(1)})
	m.Clear()

	if len(m.Input) != 0 {
		t.Fatalf("expected empty input after Clear, got %d elements", len(m.Input))
	}
}

func TestMutatePreservesLength(t *testing.T) {
	m := New(42, 5)
	m.ExtendFromSlice([]felt.Felt{felt.FromU64(1), felt.FromU64(2), felt.FromU64(3), felt.FromU64(4), felt.FromU64(5)})

	m.Mutate(4, EmptyDatabase{})

	if len(m.Input) != 5 {
		t.Fatalf("expected length to stay 5 after mutation, got %d", len(m.Input))
	}
}

func TestMutateOnEmptyInputIsNoop(t *testing.T) {
	m := New(42, 5)
	m.Mutate(4, EmptyDatabase{})

	if len(m.Input) != 0 {
		t.Fatalf("expected mutation of empty buffer to stay empty, got %d elements", len(m.Input))
	}
}

func TestMutateIsDeterministicForFixedSeed(t *testing.T) {
	build := func() *Mutator {
		m := New(7, 4)
		m.ExtendFromSlice([]felt.Felt{felt.FromU64(10), felt.FromU64(20), felt.FromU64(30), felt.FromU64(40)})
		m.Mutate(4, EmptyDatabase{})
		return m
	}

	a := build()
	b := build()

	for i := range a.Input {
		if !a.Input[i].Equal(b.Input[i]) {
			t.Fatalf("mutation sequence diverged at index %d: %v != %v", i, a.Input[i], b.Input[i])
		}
	}
}

func TestSelectIndexStaysInRange(t *testing.T) {
	m := New(3, 4)
	for i := 0; i < 50; i++ {
		idx := m.SelectIndex(5)
		if idx < 0 || idx >= 5 {
			t.Fatalf("SelectIndex returned out-of-range index %d", idx)
		}
	}
}

func TestCheckLengthReportsCorruptMutation(t *testing.T) {
	m := New(1, 3)
	m.ExtendFromSlice([]felt.Felt{felt.FromU64(1), felt.FromU64(2)})

	err := m.CheckLength(3)
	if err == nil {
		t.Fatalf("expected an error for a buffer shorter than the wanted length")
	}
	cmErr, ok := err.(*CorruptMutationError)
	if !ok {
		t.Fatalf("expected *CorruptMutationError, got %T", err)
	}
	if cmErr.Got != 2 || cmErr.Want != 3 {
		t.Fatalf("expected Got=2 Want=3, got Got=%d Want=%d", cmErr.Got, cmErr.Want)
	}
}

func TestCheckLengthPassesWhenLengthMatches(t *testing.T) {
	m := New(1, 3)
	m.ExtendFromSlice([]felt.Felt{felt.FromU64(1), felt.FromU64(2), felt.FromU64(3)})

	if err := m.CheckLength(3); err != nil {
		t.Fatalf("expected no error when length matches, got %v", err)
	}
}

func TestMutateWithDictionaryCanInsertSampleValues(t *testing.T) {
	dict := Dictionary{felt.FromU64(999)}
	found := false

	for seed := uint64(0); seed < 200; seed++ {
		m := New(seed, 2)
		m.ExtendFromSlice([]felt.Felt{felt.FromU64(1), felt.FromU64(2)})
		m.Mutate(8, dict)
		for _, v := range m.Input {
			if v.Equal(felt.FromU64(999)) {
				found = true
			}
		}
		if found {
			break
		}
	}

	if !found {
		t.Fatalf("expected dictionary value to appear in at least one seed's mutated output")
	}
}
