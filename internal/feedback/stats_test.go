package feedback

import (
	"path/filepath"
	"testing"

	"github.com/cairo-fuzz/cairofuzz/internal/sink"
	"github.com/cairo-fuzz/cairofuzz/pkg/felt"
)

func TestCommitCoverageFirstWriterWins(t *testing.T) {
	g := NewGlobal()
	corpus := sink.NewFileSink(filepath.Join(t.TempDir(), "inputs.json"))

	in1 := felt.Input{felt.FromU64(1)}
	in2 := felt.Input{felt.FromU64(2)}

	if !g.CommitCoverage("trace-a", in1, corpus) {
		t.Fatalf("expected first commit for trace-a to win")
	}
	if g.CommitCoverage("trace-a", in2, corpus) {
		t.Fatalf("expected second commit for trace-a to lose")
	}
	if g.CoverageSize() != 1 {
		t.Fatalf("expected coverage size 1, got %d", g.CoverageSize())
	}
}

func TestCommitCrashReturnsFirstSeenOnly(t *testing.T) {
	g := NewGlobal()
	crashes := sink.NewFileSink(filepath.Join(t.TempDir(), "crashes.json"))

	in := felt.Input{felt.FromU64(42)}

	if !g.CommitCrash(in, crashes) {
		t.Fatalf("expected first crash commit to report first-seen")
	}
	if g.CommitCrash(in, crashes) {
		t.Fatalf("expected repeat crash commit to report not first-seen")
	}
	if g.CrashSetSize() != 1 {
		t.Fatalf("expected unique crash count 1, got %d", g.CrashSetSize())
	}
	snap := g.Snapshot()
	if snap.Crashes != 2 {
		t.Fatalf("expected total crashes counter 2, got %d", snap.Crashes)
	}
}

func TestRefreshIfStaleCopiesGlobalIntoLocal(t *testing.T) {
	g := NewGlobal()
	corpus := sink.NewFileSink(filepath.Join(t.TempDir(), "inputs.json"))

	in := felt.Input{felt.FromU64(9)}
	g.CommitCoverage("trace-x", in, corpus)

	local := NewStatistics()
	g.RefreshIfStale(local)

	if local.InputLen() != 1 {
		t.Fatalf("expected local InputLen 1 after refresh, got %d", local.InputLen())
	}
	if !local.HasTrace("trace-x") {
		t.Fatalf("expected refreshed local shadow to contain trace-x")
	}

	// A second refresh with no intervening global change must be a no-op
	// (it must not panic or duplicate state), since InputLen is unchanged.
	g.RefreshIfStale(local)
	if local.InputLen() != 1 {
		t.Fatalf("expected InputLen to remain 1 after redundant refresh, got %d", local.InputLen())
	}
}

func TestSeedCrashAlsoSeedsInputSet(t *testing.T) {
	g := NewGlobal()
	in := felt.Input{felt.FromU64(42)}
	g.SeedCrash(in)

	if g.CrashSetSize() != 1 {
		t.Fatalf("expected 1 seeded crash, got %d", g.CrashSetSize())
	}
	if g.Snapshot().InputLen != 1 {
		t.Fatalf("expected seeding a crash to also grow InputSet, got InputLen=%d", g.Snapshot().InputLen)
	}
}

func TestFlushFuzzCasesAccumulates(t *testing.T) {
	g := NewGlobal()
	g.FlushFuzzCases(1000)
	g.FlushFuzzCases(500)

	if got := g.Snapshot().FuzzCases; got != 1500 {
		t.Fatalf("expected FuzzCases 1500, got %d", got)
	}
}
