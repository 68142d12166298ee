package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ppiankov/researchpulse/internal/digest"
	"github.com/ppiankov/researchpulse/internal/pulse"
	"github.com/ppiankov/researchpulse/internal/store"
)

var (
	renderFromJSON string
	renderID       string
	renderFormat   string
	renderOutput   string
)

var renderCmd = &cobra.Command{
	Use:   "render",
	Short: "Re-render a saved report",
	Long: `Renders a report without fetching anything. The report comes from a
report.json file (--from-json), a stored report id (--id), or the most
recent stored report when neither is given.`,
	RunE: renderAction,
}

func init() {
	renderCmd.Flags().StringVar(&renderFromJSON, "from-json", "", "path to a report.json file")
	renderCmd.Flags().StringVar(&renderID, "id", "", "stored report id")
	renderCmd.Flags().StringVar(&renderFormat, "format", "markdown", "output format: markdown, html, json, terminal")
	renderCmd.Flags().StringVarP(&renderOutput, "output", "o", "", "write to file instead of stdout")
	renderCmd.Flags().BoolVar(&noColor, "no-color", false, "disable ANSI colors")
}

func renderAction(cmd *cobra.Command, _ []string) error {
	if renderFromJSON != "" && renderID != "" {
		return errors.New("--from-json and --id are mutually exclusive")
	}

	formatter, err := digest.ForName(renderFormat, !noColor)
	if err != nil {
		return err
	}

	report, err := loadReport(cmd)
	if err != nil {
		return err
	}

	if renderOutput != "" {
		return writeFormatted(renderOutput, formatter, report)
	}
	return formatter.Format(os.Stdout, report)
}

func loadReport(cmd *cobra.Command) (pulse.Report, error) {
	if renderFromJSON != "" {
		f, err := os.Open(renderFromJSON)
		if err != nil {
			return pulse.Report{}, fmt.Errorf("open report: %w", err)
		}
		defer func() { _ = f.Close() }()
		return digest.LoadJSON(f)
	}

	cfg, _, err := loadConfig()
	if err != nil {
		return pulse.Report{}, err
	}
	db, err := store.Open(cfg.Storage.Path)
	if err != nil {
		return pulse.Report{}, fmt.Errorf("open store: %w", err)
	}
	defer func() { _ = db.Close() }()

	ctx := commandContext(cmd.Context())
	if renderID != "" {
		return db.GetReport(ctx, renderID)
	}
	report, err := db.LatestReport(ctx)
	if errors.Is(err, store.ErrNotFound) {
		return pulse.Report{}, errors.New("no stored reports. Run 'pulse run' first")
	}
	return report, err
}
