package worker

import (
	"fmt"

	"github.com/cairo-fuzz/cairofuzz/internal/feedback"
	"github.com/cairo-fuzz/cairofuzz/internal/mutator"
	"github.com/cairo-fuzz/cairofuzz/internal/sink"
	"github.com/cairo-fuzz/cairofuzz/internal/vm"
	"github.com/cairo-fuzz/cairofuzz/pkg/felt"
)

// mutationPasses is the fixed number of mutation passes the fuzz worker
// applies to its buffer every iteration.
const mutationPasses = 4

// flushEvery is the number of local iterations a worker batches before
// taking the global lock once to add them all to fuzz_cases at once.
const flushEvery = 1000

// FuzzTarget bundles the immutable, post-startup state every fuzz worker
// shares: the program under fuzz, its function descriptor, and the global
// feedback/sink handles.
type FuzzTarget struct {
	Program      *vm.Program
	FunctionName string
	NumArgs      int
	Global       *feedback.Global
	Corpus       *sink.FileSink
	Crashes      *sink.FileSink
}

// FuzzResult reports how a fuzz worker ended — used so the coordinator can
// detect a first unique crash and terminate the process itself, rather
// than the worker calling os.Exit directly, which would make the loop
// impossible to exercise from a test.
type FuzzResult struct {
	Crashed    bool
	CrashInput felt.Input
	CrashErr   error
	CasesRun   int64
}

// Fuzz runs the per-thread fuzz loop for worker id, seeded with seed, with
// an iteration cap of iter (iter < 0 means unbounded, iter == 0 returns at
// once). It returns as soon as a new unique crash is observed, or once the
// global fuzz_cases count exceeds iter; since workers add to that count in
// batches of flushEvery, a worker can run up to flushEvery cases past iter.
func Fuzz(id int, target FuzzTarget, seed uint64, iter int64) FuzzResult {
	if iter == 0 {
		// An iteration cap of zero means exit immediately with no cases
		// recorded at all.
		return FuzzResult{}
	}

	local := feedback.NewStatistics()
	mut := mutator.New(seed, target.NumArgs)

	var sinceFlush int64
	var cases int64

	flush := func() {
		if sinceFlush > 0 {
			target.Global.FlushFuzzCases(sinceFlush)
			sinceFlush = 0
		}
	}
	defer flush()

	for {
		if iter > 0 {
			if snap := target.Global.Snapshot(); snap.FuzzCases > iter {
				return FuzzResult{CasesRun: cases}
			}
		}

		// Seed the buffer from a random corpus entry, or from zeros if the
		// shadow doesn't know of any inputs yet.
		mut.Clear()
		if local.InputLen() > 0 {
			i := mut.SelectIndex(local.InputLen())
			mut.ExtendFromSlice(local.GetInput(i))
		} else {
			zeros := make([]felt.Felt, target.NumArgs)
			mut.ExtendFromSlice(zeros)
		}

		mut.Mutate(mutationPasses, mutator.EmptyDatabase{})
		if err := mut.CheckLength(target.NumArgs); err != nil {
			// *mutator.CorruptMutationError: silently discarded, loop
			// continues (spec.md §7).
			continue
		}
		input := felt.Input(mut.Input).Clone()

		trace, err := vm.Execute(target.Program, target.FunctionName, input)

		if err != nil {
			firstSeen := target.Global.CommitCrash(input, target.Crashes)
			local.RecordLocalCrash(input)

			cases++
			sinceFlush++
			if sinceFlush >= flushEvery {
				flush()
			}

			if firstSeen {
				fmt.Printf("WORKER %d -- INPUT %s -- ERROR %s\n", id, input.String(), err.Error())
				return FuzzResult{Crashed: true, CrashInput: input, CrashErr: err, CasesRun: cases}
			}
			continue
		}

		traceKey := trace.Key()
		target.Global.RefreshIfStale(local)

		if !local.HasTrace(traceKey) {
			local.RecordLocalCoverage(traceKey, input)
			target.Global.CommitCoverage(traceKey, input, target.Corpus)
		}

		cases++
		sinceFlush++
		if sinceFlush >= flushEvery {
			flush()
		}
	}
}
