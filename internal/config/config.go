// Package config resolves the fuzzer's startup parameters from CLI flags
// and an optional JSON file, following the struct-of-fields style of the
// teacher project's internal/config/config.go. Unlike the teacher's
// YAML-tagged web-fuzzing Config, the primary Config here round-trips
// through JSON (the original implementation's Config serialises with
// serde_json) — only the standalone dictionary file uses YAML, since
// dictionaries are hand-authored rather than machine-written.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"runtime"

	"gopkg.in/yaml.v3"
)

// Config is the full set of resolved startup parameters, merging CLI flags
// (spec.md §6) with an optional --config JSON file. Flags explicitly
// passed on the command line always win over the file.
type Config struct {
	Cores       int     `json:"cores"`
	Contract    string  `json:"contract"`
	Function    string  `json:"function"`
	Workspace   string  `json:"workspace"`
	InputFolder string  `json:"input_folder"`
	CrashFolder string  `json:"crash_folder"`
	InputFile   string  `json:"input_file"`
	CrashFile   string  `json:"crash_file"`
	Dict        string  `json:"dict"`
	Logs        bool    `json:"logs"`
	Seed        *uint64 `json:"seed,omitempty"`
	RunTime     int64   `json:"run_time"`
	Replay      bool    `json:"replay"`
	Minimizer   bool    `json:"minimizer"`
	Proptesting bool    `json:"proptesting"`
	Iter        int64   `json:"iter"`
}

// Default returns the baseline Config applied before any file or flag
// overrides. Cores defaults to the host's logical CPU count, and Iter
// defaults to -1 (unbounded), matching spec.md §6's "-1 means unbounded".
func Default() Config {
	return Config{
		Cores: runtime.NumCPU(),
		Iter:  -1,
	}
}

// LoadFile reads cfg's base values from a JSON file.
func LoadFile(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, nil
}

// Dictionary is the set of sample values a hand-authored dictionary file
// supplies, in file order.
type Dictionary struct {
	Values []string `yaml:"values"`
}

// LoadDictionaryFile reads a YAML dictionary file and returns its raw
// hex-string values. Decoding into felt.Felt is left to the caller so this
// package stays free of a dependency on pkg/felt.
func LoadDictionaryFile(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read dict %s: %w", path, err)
	}
	var dict Dictionary
	if err := yaml.Unmarshal(data, &dict); err != nil {
		return nil, fmt.Errorf("config: parse dict %s: %w", path, err)
	}
	return dict.Values, nil
}
