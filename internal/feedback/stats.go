// Package feedback implements the shared coverage/input/crash bookkeeping
// every fuzz and replay worker reports into. It is the Felt/Trace analog of
// the teacher project's internal/coverage package (CoverageMap, Corpus,
// CoverageTracker): the same "one mutable-exclusion lock guarding a handful
// of growing collections" shape, but keyed on exact trace equality instead
// of an AFL bitmap, and without the teacher's hit-count bucketing — a
// CoverageMap here answers only "have we ever seen this trace", not "how
// many times".
package feedback

import (
	"sync"

	"github.com/cairo-fuzz/cairofuzz/internal/sink"
	"github.com/cairo-fuzz/cairofuzz/internal/vm"
	"github.com/cairo-fuzz/cairofuzz/pkg/felt"
)

// CoverageMap maps a trace's content key to the first input that produced
// it. Entries are never removed.
type CoverageMap map[string]felt.Input

// InputSet is a set of inputs keyed by content equality.
type InputSet map[string]struct{}

// InputList is an indexable, insertion-ordered mirror of InputSet, used for
// O(1) random selection during mutation.
type InputList []felt.Input

// CrashSet is a set of inputs that caused the VM to fail. Always a subset
// of the owning Statistics' InputSet.
type CrashSet map[string]struct{}

// Counters are the scalar tallies every Statistics instance carries.
type Counters struct {
	FuzzCases       int64
	Crashes         int64
	ThreadsFinished int64
	InputLen        int64
}

// Statistics bundles the four growing collections and their counters. A
// worker's private shadow is a plain *Statistics with no locking of its
// own — only one goroutine ever touches it. The process-wide instance is
// wrapped by Global, which adds the single mutex spec.md's concurrency
// model requires.
type Statistics struct {
	Coverage CoverageMap
	Inputs   InputSet
	List     InputList
	Crashes  CrashSet
	Counters Counters
}

// NewStatistics returns an empty Statistics, suitable as a worker's initial
// shadow.
func NewStatistics() *Statistics {
	return &Statistics{
		Coverage: make(CoverageMap),
		Inputs:   make(InputSet),
		Crashes:  make(CrashSet),
	}
}

// HasTrace reports whether this shadow already has local coverage for the
// trace keyed by key.
func (s *Statistics) HasTrace(key string) bool {
	_, ok := s.Coverage[key]
	return ok
}

// RecordLocalCoverage records the local half of a new-coverage discovery:
// the trace in the shadow CoverageMap and the input in the shadow InputSet.
// It does not touch List or InputLen — those only grow under the global
// lock once the discovery is confirmed process-wide.
func (s *Statistics) RecordLocalCoverage(traceKey string, input felt.Input) {
	s.Inputs[input.Key()] = struct{}{}
	s.Coverage[traceKey] = input
}

// RecordLocalCrash records the local half of a crash classification.
func (s *Statistics) RecordLocalCrash(input felt.Input) {
	s.Inputs[input.Key()] = struct{}{}
	s.Crashes[input.Key()] = struct{}{}
}

// GetInput returns the i-th input known to this shadow, for use with
// rng.Intn(InputLen()).
func (s *Statistics) GetInput(i int) felt.Input {
	return s.List[i]
}

// InputLen returns the number of inputs this shadow currently knows about.
func (s *Statistics) InputLen() int {
	return len(s.List)
}

// cloneCoverage, cloneInputSet, cloneInputList and cloneCrashSet build
// independent copies so a refreshed shadow never aliases the global maps —
// Go maps are not safe to read while another goroutine writes them outside
// a lock.

func cloneCoverage(m CoverageMap) CoverageMap {
	out := make(CoverageMap, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func cloneInputSet(m InputSet) InputSet {
	out := make(InputSet, len(m))
	for k := range m {
		out[k] = struct{}{}
	}
	return out
}

func cloneInputList(l InputList) InputList {
	out := make(InputList, len(l))
	copy(out, l)
	return out
}

func cloneCrashSet(m CrashSet) CrashSet {
	out := make(CrashSet, len(m))
	for k := range m {
		out[k] = struct{}{}
	}
	return out
}

// Global is the single process-wide Statistics instance, guarded by one
// mutex held only for the brief critical sections the fuzz and replay
// workers need. Workers must never call the VM while holding it.
type Global struct {
	mu       sync.Mutex
	coverage CoverageMap
	inputs   InputSet
	list     InputList
	crashes  CrashSet
	counters Counters
}

// NewGlobal returns an empty Global Statistics instance.
func NewGlobal() *Global {
	return &Global{
		coverage: make(CoverageMap),
		inputs:   make(InputSet),
		crashes:  make(CrashSet),
	}
}

// RefreshIfStale copies the global collections into local when local's
// cached InputLen no longer matches the global one. This is the lazy
// refresh the fuzz worker's coverage-classification step performs before
// consulting its shadow.
func (g *Global) RefreshIfStale(local *Statistics) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if local.Counters.InputLen == g.counters.InputLen {
		return
	}
	local.Coverage = cloneCoverage(g.coverage)
	local.Inputs = cloneInputSet(g.inputs)
	local.List = cloneInputList(g.list)
	local.Crashes = cloneCrashSet(g.crashes)
	local.Counters.InputLen = g.counters.InputLen
}

// CommitCoverage performs the double-checked global half of a new-coverage
// discovery. It returns true if this call is the one that actually won the
// race for traceKey (i.e. the global CoverageMap did not already have it).
// On a win, it also registers the input in the global InputSet/InputList
// (if not already present) and persists it via dump when it does.
func (g *Global) CommitCoverage(traceKey string, input felt.Input, corpus *sink.FileSink) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.coverage[traceKey]; ok {
		return false
	}

	key := input.Key()
	if _, exists := g.inputs[key]; !exists {
		g.inputs[key] = struct{}{}
		g.list = append(g.list, input)
		g.counters.InputLen++
		if corpus != nil {
			corpus.Append(input)
			corpus.Dump()
		}
	}
	g.coverage[traceKey] = input
	return true
}

// CommitCrash performs the global half of a crash classification: the
// crashes counter always increments; the input is registered in InputSet
// (and InputList) if new; CrashSet membership is the tie-break for whether
// this is a first-seen crash, in which case it is persisted via dump.
// Returns whether this was the first time this exact input was seen as a
// crash.
func (g *Global) CommitCrash(input felt.Input, crashes *sink.FileSink) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.counters.Crashes++

	key := input.Key()
	if _, exists := g.inputs[key]; !exists {
		g.inputs[key] = struct{}{}
		g.list = append(g.list, input)
		g.counters.InputLen++
	}

	if _, exists := g.crashes[key]; exists {
		return false
	}
	g.crashes[key] = struct{}{}
	if crashes != nil {
		crashes.Append(input)
		crashes.Dump()
	}
	return true
}

// SeedInput ingests a pre-existing input (loaded from a corpus file, or
// synthesised from the dictionary) directly into the global InputSet and
// InputList at startup, before any worker runs.
func (g *Global) SeedInput(input felt.Input) {
	g.mu.Lock()
	defer g.mu.Unlock()
	key := input.Key()
	if _, exists := g.inputs[key]; exists {
		return
	}
	g.inputs[key] = struct{}{}
	g.list = append(g.list, input)
	g.counters.InputLen++
}

// SeedCrash ingests a pre-existing crash input at startup. It also seeds
// InputSet, preserving the CrashSet ⊆ InputSet invariant.
func (g *Global) SeedCrash(input felt.Input) {
	g.mu.Lock()
	defer g.mu.Unlock()
	key := input.Key()
	if _, exists := g.inputs[key]; !exists {
		g.inputs[key] = struct{}{}
		g.list = append(g.list, input)
		g.counters.InputLen++
	}
	g.crashes[key] = struct{}{}
}

// FlushFuzzCases adds n to the global fuzz_cases counter. Workers call this
// every 1,000 local iterations, and once more on exit to flush the
// remainder, rather than taking the lock on every single iteration.
func (g *Global) FlushFuzzCases(n int64) {
	if n == 0 {
		return
	}
	g.mu.Lock()
	g.counters.FuzzCases += n
	g.mu.Unlock()
}

// IncThreadsFinished increments threads_finished by one. Each replay worker
// calls this exactly once, on exhausting its chunk.
func (g *Global) IncThreadsFinished() {
	g.mu.Lock()
	g.counters.ThreadsFinished++
	g.mu.Unlock()
}

// Snapshot returns a copy of the current counters, for the monitor loop and
// for the replay-done check.
func (g *Global) Snapshot() Counters {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.counters
}

// CoverageSize returns |CoverageMap| under lock.
func (g *Global) CoverageSize() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.coverage)
}

// CrashSetSize returns |CrashSet| under lock — the "unique crashes" field
// of the monitor line.
func (g *Global) CrashSetSize() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.crashes)
}

// TraceKey is a convenience wrapper so callers outside this package don't
// need to import internal/vm just to compute a coverage key.
func TraceKey(t vm.Trace) string {
	return t.Key()
}
