package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/ppiankov/researchpulse/internal/digest"
	"github.com/ppiankov/researchpulse/internal/pulse"
	"github.com/ppiankov/researchpulse/internal/store"
)

// Files written into each run's output directory.
const (
	markdownFile = "pulse_report.md"
	htmlFile     = "pulse_report.html"
	jsonFile     = "report.json"
)

var (
	runDaysBack  int
	runFormat    string
	runOutputDir string
	runNoSave    bool
	noColor      bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Fetch every source, summarize, and write the combined report",
	RunE:  runAction,
}

func init() {
	runCmd.Flags().IntVar(&runDaysBack, "days-back", 0, "override days_back from config")
	runCmd.Flags().StringVar(&runFormat, "format", "terminal", "stdout format: terminal, markdown, json, html")
	runCmd.Flags().StringVar(&runOutputDir, "output-dir", "", "override report.output_dir from config")
	runCmd.Flags().BoolVar(&runNoSave, "no-save", false, "do not write report files or store the report")
	runCmd.Flags().BoolVar(&noColor, "no-color", false, "disable ANSI colors")
}

func runAction(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	if runDaysBack != 0 {
		if runDaysBack < 1 {
			return fmt.Errorf("--days-back must be at least 1, got %d", runDaysBack)
		}
		cfg.DaysBack = runDaysBack
	}
	if runOutputDir != "" {
		cfg.Report.OutputDir = runOutputDir
	}

	formatter, err := digest.ForName(runFormat, !noColor)
	if err != nil {
		return err
	}

	engine, err := buildEngine(cfg, logger)
	if err != nil {
		return err
	}

	ctx := commandContext(cmd.Context())
	report, err := engine.Run(ctx)
	if err != nil {
		return fmt.Errorf("run pulse: %w", err)
	}

	if !runNoSave {
		dir, err := writeReportFiles(cfg.Report.OutputDir, report)
		if err != nil {
			return err
		}
		logger.Info("report written", "dir", dir)

		db, err := store.Open(cfg.Storage.Path)
		if err != nil {
			return fmt.Errorf("open store: %w", err)
		}
		defer func() { _ = db.Close() }()

		if err := db.SaveReport(ctx, report); err != nil {
			return fmt.Errorf("save report: %w", err)
		}
		pruned, err := db.PruneOld(ctx, cfg.Storage.RetainDays)
		if err != nil {
			return fmt.Errorf("prune old: %w", err)
		}
		if pruned > 0 {
			logger.Info("pruned old reports", "count", pruned)
		}
	}

	return formatter.Format(os.Stdout, report)
}

// writeReportFiles writes the markdown, HTML and JSON renderings into a
// directory named after the report's generation time.
func writeReportFiles(base string, report pulse.Report) (string, error) {
	dir := filepath.Join(base, report.GeneratedAt.Format("20060102_150405"))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}

	outputs := []struct {
		name      string
		formatter digest.Formatter
	}{
		{markdownFile, digest.NewMarkdown()},
		{htmlFile, digest.NewHTML()},
		{jsonFile, digest.NewJSON()},
	}
	for _, o := range outputs {
		if err := writeFormatted(filepath.Join(dir, o.name), o.formatter, report); err != nil {
			return "", err
		}
	}
	return dir, nil
}

func writeFormatted(path string, f digest.Formatter, report pulse.Report) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := f.Format(file, report); err != nil {
		_ = file.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	return nil
}
