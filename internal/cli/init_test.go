package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ppiankov/researchpulse/internal/config"
)

func TestInitAction_WritesLoadableConfig(t *testing.T) {
	dir := filepath.Join(t.TempDir(), ".researchpulse")
	old := configDir
	t.Cleanup(func() { configDir = old })
	configDir = dir

	out, err := captureStdout(t, func() error { return initAction(nil, nil) })
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	requireContains(t, out, "created: ")

	cfg, err := config.Load(dir)
	if err != nil {
		t.Fatalf("example config does not load: %v", err)
	}
	if len(cfg.Sources) != 4 {
		t.Errorf("sources = %d, want 4", len(cfg.Sources))
	}
	if cfg.Summarize.Mode != "heuristic" {
		t.Errorf("mode = %q", cfg.Summarize.Mode)
	}

	if err := os.WriteFile(filepath.Join(dir, config.DefaultConfigFile), []byte("days_back: 3\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	out, err = captureStdout(t, func() error { return initAction(nil, nil) })
	if err != nil {
		t.Fatalf("second init: %v", err)
	}
	requireContains(t, out, "already initialized")
	data, _ := os.ReadFile(filepath.Join(dir, config.DefaultConfigFile))
	if string(data) != "days_back: 3\n" {
		t.Errorf("init overwrote an existing config: %q", data)
	}
}
