// Package coordinator implements the fuzzer coordinator (spec.md §4.7):
// given the effective Config that cmd/cairofuzz resolves from flags and
// the optional --config file, it picks the run seed, loads the artifact and any seed
// corpus/crashes/dictionary, spawns the worker pool, and runs the
// once-a-second monitor loop until a termination condition fires. It is
// the cairofuzz analog of the teacher project's internal/cluster.Master,
// but owns a single-process worker pool (internal/worker.Pool, backed by
// ants) rather than a fleet of remote HTTP workers.
package coordinator

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/cairo-fuzz/cairofuzz/internal/artifact"
	"github.com/cairo-fuzz/cairofuzz/internal/config"
	"github.com/cairo-fuzz/cairofuzz/internal/feedback"
	"github.com/cairo-fuzz/cairofuzz/internal/rng"
	"github.com/cairo-fuzz/cairofuzz/internal/sink"
	"github.com/cairo-fuzz/cairofuzz/internal/vm"
	"github.com/cairo-fuzz/cairofuzz/internal/worker"
	"github.com/cairo-fuzz/cairofuzz/pkg/felt"
)

// newDictRng seeds the Rng used for dictionary-corpus synthesis (spec.md
// §4.7 step 5) from the coordinator's own run seed, so a fixed --seed
// reproduces the synthesised entries exactly like it reproduces the
// mutation stream.
func newDictRng(seed uint64) rng.Rng {
	return rng.Seeded(seed)
}

// StartupError is returned for any failure that must abort before a single
// worker runs: an unreadable/unparseable artifact, a missing function, or
// a required flag left empty. The coordinator never recovers one of these
// itself — cmd/cairofuzz prints it to stderr and exits 1 (spec.md §7).
type StartupError struct {
	Op  string
	Err error
}

func (e *StartupError) Error() string { return fmt.Sprintf("startup: %s: %v", e.Op, e.Err) }
func (e *StartupError) Unwrap() error { return e.Err }

// monitorFormat is the exact monitor-line format from spec.md §6.
const monitorFormat = " %12.2f uptime | %9d fuzz cases | %12.2f fcps | %6d coverage | %6d inputs | %6d crashes [%6d unique]\n"

// Monitor is one second-by-second snapshot the coordinator's monitor loop
// produces; cmd/cairofuzz's optional --tui/--web surfaces consume this
// same struct so the three presentations (stdout, TUI, web) never drift.
type Monitor struct {
	UptimeSeconds float64 `json:"uptimeSeconds"`
	FuzzCases     int64   `json:"fuzzCases"`
	FuzzCasesPS   float64 `json:"fuzzCasesPerSec"`
	Coverage      int     `json:"coverage"`
	Inputs        int64   `json:"inputs"`
	Crashes       int64   `json:"crashes"`
	UniqueCrashes int     `json:"uniqueCrashes"`
}

// Line renders m in the exact monitor-line format spec.md §6 specifies.
func (m Monitor) Line() string {
	return fmt.Sprintf(monitorFormat, m.UptimeSeconds, m.FuzzCases, m.FuzzCasesPS, m.Coverage, m.Inputs, m.Crashes, m.UniqueCrashes)
}

// LogRow renders m as the whitespace-separated row spec.md §4.7 step 8
// describes for the --logs file.
func (m Monitor) LogRow() string {
	return fmt.Sprintf("%.2f %d %.2f %d %d %d %d\n", m.UptimeSeconds, m.FuzzCases, m.FuzzCasesPS, m.Coverage, m.Inputs, m.Crashes, m.UniqueCrashes)
}

// Coordinator owns the global Statistics and the loaded program/function
// for the duration of one run.
type Coordinator struct {
	Cfg      config.Config
	Fn       *artifact.FunctionDescriptor
	Program  *vm.Program
	Global   *feedback.Global
	Corpus   *sink.FileSink
	Crashes  *sink.FileSink
	seed     uint64
	start    time.Time
	monitors chan Monitor // optional subscriber feed for --tui/--web; nil if unused
}

// New resolves an effective Coordinator from cfg: it reads the artifact,
// parses the function descriptor, loads any seed corpus/crashes/dictionary,
// and loads the VM program. It does not spawn any workers yet.
func New(cfg config.Config) (*Coordinator, error) {
	if cfg.Contract == "" {
		return nil, &StartupError{Op: "validate", Err: fmt.Errorf("--contract is required")}
	}
	if cfg.Function == "" {
		return nil, &StartupError{Op: "validate", Err: fmt.Errorf("--function is required")}
	}

	data, err := os.ReadFile(cfg.Contract)
	if err != nil {
		return nil, &StartupError{Op: "read artifact", Err: err}
	}

	fn, err := artifact.Parse(data, cfg.Function)
	if err != nil {
		return nil, &StartupError{Op: "parse artifact", Err: err}
	}

	program, err := vm.Load(data, vm.FunctionDescriptor{Name: fn.Name, Entrypoint: fn.Entrypoint, NumArgs: fn.NumArgs})
	if err != nil {
		return nil, &StartupError{Op: "load program", Err: err}
	}

	seed := resolveSeed(cfg)
	log.Printf("Seed: %d", seed)

	global := feedback.NewGlobal()

	var corpusSink, crashSink *sink.FileSink
	if cfg.Workspace != "" {
		corpusSink = sink.NewFileSink(filepath.Join(cfg.Workspace, "corpus.json"))
		crashSink = sink.NewFileSink(filepath.Join(cfg.Workspace, "crashes.json"))
	}

	c := &Coordinator{
		Cfg:     cfg,
		Fn:      fn,
		Program: program,
		Global:  global,
		Corpus:  corpusSink,
		Crashes: crashSink,
		seed:    seed,
		start:   time.Now(),
	}

	if err := c.seedCorpus(); err != nil {
		return nil, err
	}
	if err := c.seedCrashes(); err != nil {
		return nil, err
	}
	if err := c.seedDictionary(); err != nil {
		return nil, err
	}

	return c, nil
}

// resolveSeed picks the user-supplied seed, or falls back to the current
// wall-clock milliseconds truncated to 64 bits (spec.md §4.7 step 2).
func resolveSeed(cfg config.Config) uint64 {
	if cfg.Seed != nil {
		return *cfg.Seed
	}
	return uint64(time.Now().UnixMilli())
}

// seedCorpus ingests any pre-existing inputs named by --inputfolder or
// --inputfile into the global InputSet/InputList before any worker runs.
func (c *Coordinator) seedCorpus() error {
	var inputs []felt.Input
	var err error
	switch {
	case c.Cfg.InputFolder != "":
		inputs, err = sink.LoadFolder(c.Cfg.InputFolder)
	case c.Cfg.InputFile != "":
		inputs, err = sink.LoadFile(c.Cfg.InputFile)
	default:
		return nil
	}
	if err != nil {
		return &StartupError{Op: "load seed corpus", Err: err}
	}
	for _, in := range inputs {
		c.Global.SeedInput(in)
	}
	return nil
}

// seedCrashes ingests any pre-existing crash inputs named by --crashfolder
// or --crashfile. spec.md §9's Open Questions flags that the original
// implementation's crash loader checks config.input_folder.is_empty(),
// not config.crash_folder.is_empty(), to decide between folder- and
// file-based loading — SPEC_FULL.md resolves that open question by
// reproducing the typo faithfully rather than silently "fixing" behavior
// the operator never asked us to change.
//
// BUG: this mirrors the original's input_folder/crash_folder mixup; see
// SPEC_FULL.md §4 item 4 and spec.md §9.
func (c *Coordinator) seedCrashes() error {
	var inputs []felt.Input
	var err error
	switch {
	case c.Cfg.InputFolder != "":
		inputs, err = sink.LoadFolder(c.Cfg.CrashFolder)
	case c.Cfg.CrashFile != "":
		inputs, err = sink.LoadFile(c.Cfg.CrashFile)
	default:
		return nil
	}
	if err != nil {
		return &StartupError{Op: "load seed crashes", Err: err}
	}
	for _, in := range inputs {
		c.Global.SeedCrash(in)
	}
	return nil
}

// seedDictionary constructs one synthetic input per dictionary value
// (spec.md §4.7 step 5): slot 0 holds that value, and the remaining
// num_args-1 slots are drawn uniformly from the dictionary using the
// coordinator's own seed-derived Rng.
func (c *Coordinator) seedDictionary() error {
	if c.Cfg.Dict == "" {
		return nil
	}
	raw, err := config.LoadDictionaryFile(c.Cfg.Dict)
	if err != nil {
		return &StartupError{Op: "load dictionary", Err: err}
	}
	if len(raw) == 0 || c.Fn.NumArgs == 0 {
		return nil
	}

	values := make([]felt.Felt, 0, len(raw))
	for _, s := range raw {
		f, err := felt.FromHex(s)
		if err != nil {
			return &StartupError{Op: "parse dictionary value", Err: err}
		}
		values = append(values, f)
	}

	r := newDictRng(c.seed)
	for _, v := range values {
		buf := make(felt.Input, c.Fn.NumArgs)
		buf[0] = v
		for i := 1; i < c.Fn.NumArgs; i++ {
			buf[i] = values[r.Intn(len(values))]
		}
		c.Global.SeedInput(buf)
	}
	return nil
}

// Run spawns Cfg.Cores fuzz workers and drives the monitor loop to
// completion, returning the process exit code spec.md §6 assigns: 0 on a
// first unique crash, on run_time timeout, or on normal iteration-cap
// completion.
func (c *Coordinator) Run() int {
	pool, err := worker.NewPool(c.Cfg.Cores)
	if err != nil {
		log.Printf("startup: %v", err)
		return 1
	}
	defer pool.Release()

	target := worker.FuzzTarget{
		Program:      c.Program,
		FunctionName: c.Fn.Name,
		NumArgs:      c.Fn.NumArgs,
		Global:       c.Global,
		Corpus:       c.Corpus,
		Crashes:      c.Crashes,
	}

	var crashed atomic.Bool

	for i := 0; i < c.Cfg.Cores; i++ {
		id := i
		workerSeed := c.seed + uint64(id)
		pool.Go(func() {
			res := worker.Fuzz(id, target, workerSeed, c.Cfg.Iter)
			if res.Crashed {
				crashed.Store(true)
			}
		})
	}

	done := make(chan struct{})
	go func() {
		pool.Wait()
		close(done)
	}()

	return c.monitorLoop(done, &crashed, nil)
}

// RunReplay spawns Cfg.Cores replay workers over the provided inputs,
// splitting them into contiguous per-worker chunks, and runs the monitor
// loop until threads_finished reaches the worker count (spec.md §4.7
// step 8's replay-done condition).
func (c *Coordinator) RunReplay(inputs []felt.Input) int {
	pool, err := worker.NewPool(c.Cfg.Cores)
	if err != nil {
		log.Printf("startup: %v", err)
		return 1
	}
	defer pool.Release()

	target := worker.FuzzTarget{
		Program:      c.Program,
		FunctionName: c.Fn.Name,
		NumArgs:      c.Fn.NumArgs,
		Global:       c.Global,
		Corpus:       c.Corpus,
		Crashes:      c.Crashes,
	}

	chunks := splitChunks(inputs, c.Cfg.Cores)
	running := int64(0)
	for i, chunk := range chunks {
		if len(chunk) == 0 {
			continue
		}
		id := i
		running++
		ch := chunk
		pool.Go(func() {
			worker.Replay(id, target, ch)
		})
	}

	done := make(chan struct{})
	go func() {
		pool.Wait()
		close(done)
	}()

	replayDone := func() bool {
		return c.Global.Snapshot().ThreadsFinished >= running
	}

	return c.monitorLoop(done, nil, replayDone)
}

// splitChunks divides inputs into at most n contiguous, roughly even
// chunks, matching the original's per-worker slicing of the replay corpus.
func splitChunks(inputs []felt.Input, n int) [][]felt.Input {
	if n <= 0 {
		n = 1
	}
	out := make([][]felt.Input, n)
	base := len(inputs) / n
	rem := len(inputs) % n
	idx := 0
	for i := 0; i < n; i++ {
		size := base
		if i < rem {
			size++
		}
		out[i] = inputs[idx : idx+size]
		idx += size
	}
	return out
}

// monitorLoop prints (and, if enabled, logs to file) one status line per
// second until one of: the replay-done predicate is satisfied, the
// iteration cap is exceeded, run_time elapses, or the worker pool's done
// channel closes first (covers the iter=0 / empty-replay-set edge cases
// where no worker ever touches the global lock again).
func (c *Coordinator) monitorLoop(done <-chan struct{}, crashed *atomic.Bool, replayDone func() bool) int {
	var logFile *os.File
	if c.Cfg.Logs && c.Cfg.Workspace != "" {
		f, err := os.OpenFile(filepath.Join(c.Cfg.Workspace, "fuzzer.log"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err == nil {
			logFile = f
			defer logFile.Close()
		}
	}

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			c.printMonitor(logFile)
			return 0
		case <-ticker.C:
			m := c.snapshotMonitor()
			c.emitMonitor(m, logFile)

			if crashed != nil && crashed.Load() {
				return 0
			}
			if c.Cfg.Iter > 0 && m.FuzzCases > c.Cfg.Iter {
				return 0
			}
			if c.Cfg.RunTime > 0 && m.UptimeSeconds >= float64(c.Cfg.RunTime) {
				return 0
			}
			if replayDone != nil && replayDone() {
				return 0
			}
		}
	}
}

func (c *Coordinator) printMonitor(logFile *os.File) {
	c.emitMonitor(c.snapshotMonitor(), logFile)
}

func (c *Coordinator) snapshotMonitor() Monitor {
	snap := c.Global.Snapshot()
	uptime := time.Since(c.start).Seconds()
	fcps := 0.0
	if uptime > 0 {
		fcps = float64(snap.FuzzCases) / uptime
	}
	return Monitor{
		UptimeSeconds: uptime,
		FuzzCases:     snap.FuzzCases,
		FuzzCasesPS:   fcps,
		Coverage:      c.Global.CoverageSize(),
		Inputs:        snap.InputLen,
		Crashes:       snap.Crashes,
		UniqueCrashes: c.Global.CrashSetSize(),
	}
}

func (c *Coordinator) emitMonitor(m Monitor, logFile *os.File) {
	fmt.Print(m.Line())
	if logFile != nil {
		logFile.WriteString(m.LogRow())
	}
	if c.monitors != nil {
		select {
		case c.monitors <- m:
		default:
		}
	}
}

// Subscribe returns a channel that receives a copy of every monitor
// snapshot the coordinator emits, for the optional --tui/--web
// presentations. Calling it more than once replaces the previous
// subscriber — only one live presentation is supported per run.
func (c *Coordinator) Subscribe() <-chan Monitor {
	ch := make(chan Monitor, 8)
	c.monitors = ch
	return ch
}
