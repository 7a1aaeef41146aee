package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultUsesUnboundedIter(t *testing.T) {
	cfg := Default()
	if cfg.Iter != -1 {
		t.Fatalf("expected default Iter -1, got %d", cfg.Iter)
	}
	if cfg.Cores <= 0 {
		t.Fatalf("expected default Cores > 0, got %d", cfg.Cores)
	}
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	body := `{"cores": 4, "contract": "artifact.json", "function": "main", "iter": 500}`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config file: %v", err)
	}

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if cfg.Cores != 4 || cfg.Contract != "artifact.json" || cfg.Function != "main" || cfg.Iter != 500 {
		t.Fatalf("unexpected config after load: %+v", cfg)
	}
}

func TestLoadDictionaryFileParsesYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "dict.yaml")
	body := "values:\n  - \"0x2a\"\n  - \"0x1\"\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write dict file: %v", err)
	}

	values, err := LoadDictionaryFile(path)
	if err != nil {
		t.Fatalf("LoadDictionaryFile: %v", err)
	}
	if len(values) != 2 || values[0] != "0x2a" || values[1] != "0x1" {
		t.Fatalf("unexpected dictionary values: %v", values)
	}
}
