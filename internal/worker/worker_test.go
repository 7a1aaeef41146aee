package worker

import (
	"path/filepath"
	"testing"

	"github.com/cairo-fuzz/cairofuzz/internal/feedback"
	"github.com/cairo-fuzz/cairofuzz/internal/sink"
	"github.com/cairo-fuzz/cairofuzz/internal/vm"
	"github.com/cairo-fuzz/cairofuzz/pkg/felt"
)

func newTarget(t *testing.T, prog *vm.Program) FuzzTarget {
	t.Helper()
	dir := t.TempDir()
	return FuzzTarget{
		Program:      prog,
		FunctionName: "f",
		NumArgs:      1,
		Global:       feedback.NewGlobal(),
		Corpus:       sink.NewFileSink(filepath.Join(dir, "inputs.json")),
		Crashes:      sink.NewFileSink(filepath.Join(dir, "crashes.json")),
	}
}

func TestFuzzWithZeroIterDoesNothing(t *testing.T) {
	target := newTarget(t, vm.NoOp())
	result := Fuzz(0, target, 1, 0)

	if result.CasesRun != 0 {
		t.Fatalf("expected 0 cases with iter=0, got %d", result.CasesRun)
	}
	if got := target.Global.Snapshot().FuzzCases; got != 0 {
		t.Fatalf("expected global fuzz_cases 0, got %d", got)
	}
}

func TestFuzzNoOpGrowsSingleCoverageEntry(t *testing.T) {
	target := newTarget(t, vm.NoOp())
	result := Fuzz(0, target, 1, 100)

	if result.Crashed {
		t.Fatalf("no-op program should never crash")
	}
	if got := target.Global.CoverageSize(); got != 1 {
		t.Fatalf("expected exactly 1 coverage entry for a no-op trace, got %d", got)
	}
	if target.Global.Snapshot().InputLen < 1 {
		t.Fatalf("expected at least one input recorded")
	}
}

func alwaysCrashProgram() *vm.Program {
	return &vm.Program{Instructions: []vm.Instruction{
		{Op: vm.OpConst, A: 1},
		{Op: vm.OpConst, A: 1},
		{Op: vm.OpFailIfEqual},
	}}
}

func TestFuzzTerminatesOnFirstCrash(t *testing.T) {
	target := newTarget(t, alwaysCrashProgram())

	result := Fuzz(0, target, 1, -1)

	if !result.Crashed {
		t.Fatalf("expected worker to report a crash")
	}
	if result.CasesRun != 1 {
		t.Fatalf("expected exactly 1 case run before the crashing worker returns, got %d", result.CasesRun)
	}
	if target.Global.CrashSetSize() != 1 {
		t.Fatalf("expected 1 unique crash, got %d", target.Global.CrashSetSize())
	}
}

func TestReplayMarksThreadFinishedExactlyOnce(t *testing.T) {
	target := newTarget(t, vm.Default())
	chunk := []felt.Input{
		{felt.FromU64(1)},
		{felt.FromU64(2)},
		{felt.FromU64(42)},
	}

	result := Replay(0, target, chunk)

	if result.CasesRun != 3 {
		t.Fatalf("expected 3 cases run, got %d", result.CasesRun)
	}
	if result.CrashesSeen != 1 {
		t.Fatalf("expected 1 crash seen (input 42), got %d", result.CrashesSeen)
	}
	if got := target.Global.Snapshot().ThreadsFinished; got != 1 {
		t.Fatalf("expected threads_finished 1, got %d", got)
	}
}

func TestReplayDoesNotTerminateOnCrash(t *testing.T) {
	target := newTarget(t, vm.Default())
	chunk := []felt.Input{{felt.FromU64(42)}, {felt.FromU64(1)}}

	result := Replay(0, target, chunk)

	if result.CasesRun != 2 {
		t.Fatalf("expected both inputs in the chunk to run, got %d", result.CasesRun)
	}
}
