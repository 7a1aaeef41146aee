package coordinator

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/cairo-fuzz/cairofuzz/internal/config"
	"github.com/cairo-fuzz/cairofuzz/internal/sink"
)

func writeArtifact(t *testing.T, dir, name string, numArgs int) string {
	t.Helper()
	return writeArtifactWithCode(t, dir, name, numArgs, nil)
}

// writeArtifactWithCode writes an artifact whose "identifiers" describe a
// function with entrypoint "pc": 0 and, when code is non-nil, a top-level
// "code" object mapping that entrypoint ("0") to code — exercising the
// real artifact-driven internal/vm.Load path end to end, rather than only
// ever falling back to its built-in Default() demonstration program.
func writeArtifactWithCode(t *testing.T, dir, name string, numArgs int, code []map[string]any) string {
	t.Helper()
	doc := map[string]any{
		"hints": map[string]any{},
		"identifiers": map[string]any{
			"__main__." + name: map[string]any{"type": "function", "pc": 0},
			"__main__." + name + ".Args": map[string]any{
				"size": numArgs,
				"members": map[string]any{
					"a": map[string]any{"cairo_type": "felt"},
				},
			},
		},
	}
	if code != nil {
		doc["code"] = map[string]any{"0": code}
	}
	data, err := json.Marshal(doc)
	if err != nil {
		t.Fatalf("marshal artifact: %v", err)
	}
	path := filepath.Join(dir, "artifact.json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write artifact: %v", err)
	}
	return path
}

func TestNewRejectsMissingContract(t *testing.T) {
	_, err := New(config.Config{Function: "f"})
	if err == nil {
		t.Fatalf("expected error for missing --contract")
	}
}

func TestNewRejectsMissingFunction(t *testing.T) {
	dir := t.TempDir()
	path := writeArtifact(t, dir, "f", 1)
	_, err := New(config.Config{Contract: path})
	if err == nil {
		t.Fatalf("expected error for missing --function")
	}
}

func TestNewSeedsCorpusFromInputFile(t *testing.T) {
	dir := t.TempDir()
	artifactPath := writeArtifact(t, dir, "f", 1)

	seedPath := filepath.Join(dir, "seeds.json")
	seedDoc := `{"inputs": [["0x01"], ["0x02"]]}`
	if err := os.WriteFile(seedPath, []byte(seedDoc), 0o644); err != nil {
		t.Fatalf("write seed file: %v", err)
	}

	cfg := config.Default()
	cfg.Contract = artifactPath
	cfg.Function = "f"
	cfg.InputFile = seedPath

	co, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	snap := co.Global.Snapshot()
	if snap.InputLen != 2 {
		t.Fatalf("expected 2 seeded inputs, got %d", snap.InputLen)
	}
	if co.Global.CoverageSize() != 0 {
		t.Fatalf("seeding the corpus must not run the VM or record coverage")
	}
}

func TestRunWithZeroIterProducesNoCases(t *testing.T) {
	dir := t.TempDir()
	artifactPath := writeArtifact(t, dir, "noop", 1)

	cfg := config.Default()
	cfg.Contract = artifactPath
	cfg.Function = "noop"
	cfg.Cores = 2
	cfg.Iter = 0

	co, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	code := co.Run()
	if code != 0 {
		t.Fatalf("expected exit code 0, got %d", code)
	}
	if got := co.Global.Snapshot().FuzzCases; got != 0 {
		t.Fatalf("expected 0 fuzz cases with iter=0, got %d", got)
	}
}

func TestCoordinatorDecodesArtifactCodeEndToEnd(t *testing.T) {
	dir := t.TempDir()
	code := []map[string]any{
		{"op": "emit_edge", "a": 1},
		{"op": "halt"},
	}
	artifactPath := writeArtifactWithCode(t, dir, "noop", 1, code)

	seedPath := filepath.Join(dir, "seeds.json")
	seedDoc := `{"inputs": [["0x00"], ["0x01"], ["0xff"]]}`
	if err := os.WriteFile(seedPath, []byte(seedDoc), 0o644); err != nil {
		t.Fatalf("write seed file: %v", err)
	}

	cfg := config.Default()
	cfg.Contract = artifactPath
	cfg.Function = "noop"
	cfg.Cores = 1
	cfg.InputFile = seedPath

	co, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	inputs, err := sink.LoadFile(seedPath)
	if err != nil {
		t.Fatalf("load replay seeds: %v", err)
	}
	code2 := co.RunReplay(inputs)
	if code2 != 0 {
		t.Fatalf("expected exit code 0, got %d", code2)
	}
	if got := co.Global.CoverageSize(); got != 1 {
		t.Fatalf("expected the decoded single-edge program to yield exactly 1 coverage entry regardless of input, got %d", got)
	}
}

func TestRunReplayFinishesOnEmptyCorpus(t *testing.T) {
	dir := t.TempDir()
	artifactPath := writeArtifact(t, dir, "noop", 1)

	cfg := config.Default()
	cfg.Contract = artifactPath
	cfg.Function = "noop"
	cfg.Cores = 2

	co, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	code := co.RunReplay(nil)
	if code != 0 {
		t.Fatalf("expected exit code 0 for an empty replay corpus, got %d", code)
	}
}
