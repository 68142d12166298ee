package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/ppiankov/researchpulse/internal/config"
	"github.com/ppiankov/researchpulse/internal/source"
	"github.com/ppiankov/researchpulse/internal/store"
)

const healthWindowDays = 30

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check configuration, storage and source health",
	RunE:  doctorAction,
}

func doctorAction(cmd *cobra.Command, _ []string) error {
	ok := true

	// Config dir
	if info, err := os.Stat(configDir); err != nil || !info.IsDir() {
		printCheck(false, "config directory %s", configDir)
		ok = false
	} else {
		printCheck(true, "config directory %s", configDir)
	}

	// Config file
	cfg, err := config.Load(configDir)
	if err != nil {
		printCheck(false, "config.yaml: %v", err)
		ok = false
	} else {
		kinds := make(map[string]int)
		for _, s := range cfg.Sources {
			kinds[strings.ToLower(s.Kind)]++
		}
		printCheck(true, "config.yaml (%d sources, %s)", len(cfg.Sources), describeKinds(kinds))
		if len(cfg.Sources) == 0 {
			printInfo("no sources configured, reports will be empty")
		}
	}

	// Summarizer
	if cfg != nil && cfg.Summarize.Mode == "llm" {
		if cfg.Summarize.LLM.APIKey == "" {
			printCheck(false, "llm api key: %s is not set", cfg.Summarize.LLM.APIKeyEnv)
			ok = false
		} else {
			printCheck(true, "llm summarizer (%s)", cfg.Summarize.LLM.Model)
		}
	}

	// Output directory
	if cfg != nil {
		if err := checkWritable(cfg.Report.OutputDir); err != nil {
			printCheck(false, "output directory %s: %v", cfg.Report.OutputDir, err)
			ok = false
		} else {
			printCheck(true, "output directory %s", cfg.Report.OutputDir)
		}
	}

	// Database
	var db *store.Store
	if cfg != nil {
		db, err = store.Open(cfg.Storage.Path)
		if err != nil {
			printCheck(false, "database: %v", err)
			ok = false
		} else {
			defer func() { _ = db.Close() }()
			printCheck(true, "database %s", cfg.Storage.Path)
		}
	}

	// Source health (info-level, non-fatal)
	if db != nil && cfg != nil {
		checkSourceHealth(commandContext(cmd.Context()), db, cfg, time.Now())
	}

	if !ok {
		return fmt.Errorf("some checks failed")
	}
	fmt.Println("\nAll checks passed.")
	return nil
}

func checkSourceHealth(ctx context.Context, db *store.Store, cfg *config.Config, now time.Time) {
	health, err := db.SourceHealth(ctx, now.AddDate(0, 0, -healthWindowDays))
	if err != nil || len(health) == 0 {
		return // no data yet, skip
	}

	seen := make(map[string]store.SourceHealth, len(health))
	for _, h := range health {
		seen[h.Name] = h
	}

	fmt.Println()
	staleThreshold := now.AddDate(0, 0, -staleDays)
	for _, s := range cfg.Sources {
		h, found := seen[s.Name]
		if !found {
			printInfo("new: %s has not appeared in a stored report yet", s.Name)
			continue
		}
		if h.Runs >= 3 && h.Degraded == h.Runs {
			printInfo("failing: %s degraded in all %d runs, last error: %s", h.Name, h.Runs, h.LastError)
		} else if h.Degraded > 0 {
			printInfo("flaky: %s degraded in %d of %d runs, last error: %s", h.Name, h.Degraded, h.Runs, h.LastError)
		}
		if h.LastSeen.Before(staleThreshold) {
			printInfo("stale: %s last reported %s", h.Name, humanize.RelTime(h.LastSeen, now, "ago", "from now"))
		}
		if h.Runs >= 5 && h.Items == 0 {
			printInfo("quiet: %s returned no items in %d runs, check its topics", h.Name, h.Runs)
		}
	}
}

// checkWritable creates dir if needed and confirms a file can be written in it.
func checkWritable(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	probe, err := os.CreateTemp(dir, ".doctor-*")
	if err != nil {
		return err
	}
	name := probe.Name()
	_ = probe.Close()
	return os.Remove(filepath.Clean(name))
}

func describeKinds(kinds map[string]int) string {
	if len(kinds) == 0 {
		return "none"
	}
	out := ""
	for _, k := range source.Builtin().Kinds() {
		if n := kinds[k]; n > 0 {
			if out != "" {
				out += ", "
			}
			out += fmt.Sprintf("%d %s", n, k)
		}
	}
	return out
}

func printCheck(pass bool, format string, args ...any) {
	mark := "FAIL"
	if pass {
		mark = " OK "
	}
	fmt.Printf("[%s] %s\n", mark, fmt.Sprintf(format, args...))
}

func printInfo(format string, args ...any) {
	fmt.Printf("[INFO] %s\n", fmt.Sprintf(format, args...))
}
