package worker

import (
	"fmt"

	"github.com/cairo-fuzz/cairofuzz/internal/feedback"
	"github.com/cairo-fuzz/cairofuzz/internal/vm"
	"github.com/cairo-fuzz/cairofuzz/pkg/felt"
)

// ReplayResult reports how a replay worker's assigned chunk was processed.
type ReplayResult struct {
	CasesRun      int64
	CrashesSeen   int64
	FirstCrashMsg string
}

// Replay executes every input in chunk once against target's program,
// classifying each result exactly as the fuzz loop does — except a crash
// here never terminates the process: the worker prints the crash line on
// first sight of a given crashing input and moves on to the rest of its
// chunk. When the chunk is exhausted it increments threads_finished
// exactly once.
func Replay(id int, target FuzzTarget, chunk []felt.Input) ReplayResult {
	local := feedback.NewStatistics()
	var result ReplayResult

	for _, input := range chunk {
		trace, err := vm.Execute(target.Program, target.FunctionName, input)

		if err != nil {
			firstSeen := target.Global.CommitCrash(input, target.Crashes)
			local.RecordLocalCrash(input)
			result.CrashesSeen++
			if firstSeen {
				msg := fmt.Sprintf("WORKER %d -- INPUT %s -- ERROR %s", id, input.String(), err.Error())
				fmt.Println(msg)
				if result.FirstCrashMsg == "" {
					result.FirstCrashMsg = msg
				}
			}
		} else {
			traceKey := trace.Key()
			target.Global.RefreshIfStale(local)
			if !local.HasTrace(traceKey) {
				local.RecordLocalCoverage(traceKey, input)
				target.Global.CommitCoverage(traceKey, input, target.Corpus)
			}
		}

		result.CasesRun++
		target.Global.FlushFuzzCases(1)
	}

	target.Global.IncThreadsFinished()
	return result
}
