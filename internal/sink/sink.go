// Package sink implements the disk persistence spec.md treats as an opaque
// collaborator with a single dump() operation. It is grounded on the
// teacher project's internal/coverage/corpus.go (saveEntry/saveCrash), but
// where the teacher writes one file per entry, a sink here holds its whole
// accumulated set in memory and rewrites a single JSON file atomically
// each time Dump is called — the format spec.md §6 describes: "a single
// object with a list of input vectors".
package sink

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/cairo-fuzz/cairofuzz/pkg/felt"
)

// document is the on-disk shape of a sink file.
type document struct {
	Inputs [][]string `json:"inputs"`
}

func encodeInput(in felt.Input) []string {
	out := make([]string, len(in))
	for i, f := range in {
		out[i] = f.String()
	}
	return out
}

func decodeInput(raw []string) (felt.Input, error) {
	out := make(felt.Input, len(raw))
	for i, s := range raw {
		f, err := felt.FromHex(s)
		if err != nil {
			return nil, err
		}
		out[i] = f
	}
	return out, nil
}

// FileSink accumulates inputs in memory and persists them to path as a
// single JSON document. Append and Dump are independently safe for
// concurrent use, though spec.md's concurrency model only ever calls them
// from inside a Statistics critical section, so contention in practice is
// the same brief window as the Statistics lock itself.
type FileSink struct {
	mu      sync.Mutex
	path    string
	entries []felt.Input
}

// NewFileSink returns a FileSink that will persist to path on Dump. The
// directory containing path is created if it does not already exist.
func NewFileSink(path string) *FileSink {
	if dir := filepath.Dir(path); dir != "." {
		os.MkdirAll(dir, 0o755)
	}
	return &FileSink{path: path}
}

// Append records a new input to be included in the next Dump.
func (s *FileSink) Append(input felt.Input) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, input.Clone())
}

// Dump rewrites the full sink file from the currently accumulated entries.
// The write goes to a temporary file in the same directory followed by a
// rename, so a process killed mid-dump can never leave a half-written or
// corrupt sink file behind — running Dump twice with no Append in between
// produces byte-identical files.
func (s *FileSink) Dump() error {
	s.mu.Lock()
	doc := document{Inputs: make([][]string, len(s.entries))}
	for i, in := range s.entries {
		doc.Inputs[i] = encodeInput(in)
	}
	s.mu.Unlock()

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("sink: marshal %s: %w", s.path, err)
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".sink-*.tmp")
	if err != nil {
		return fmt.Errorf("sink: create temp file for %s: %w", s.path, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("sink: write %s: %w", s.path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("sink: close %s: %w", s.path, err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("sink: rename into %s: %w", s.path, err)
	}
	return nil
}

// LoadFile reads a single sink-format JSON file and returns its inputs.
func LoadFile(path string) ([]felt.Input, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("sink: read %s: %w", path, err)
	}
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("sink: parse %s: %w", path, err)
	}
	out := make([]felt.Input, 0, len(doc.Inputs))
	for _, raw := range doc.Inputs {
		in, err := decodeInput(raw)
		if err != nil {
			return nil, fmt.Errorf("sink: decode entry in %s: %w", path, err)
		}
		out = append(out, in)
	}
	return out, nil
}

// LoadFolder reads every file in dir as a sink-format JSON document and
// concatenates their inputs, in directory order. This is how the
// coordinator ingests a seed input folder or crash folder (spec.md §4.7
// step 4's "Input folder contains two files with inputs A and B" scenario).
func LoadFolder(dir string) ([]felt.Input, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("sink: read dir %s: %w", dir, err)
	}
	var out []felt.Input
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		inputs, err := LoadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, err
		}
		out = append(out, inputs...)
	}
	return out, nil
}
