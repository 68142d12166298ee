package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/ppiankov/researchpulse/internal/store"
)

var (
	historyLimit  int
	historySince  string
	historyFormat string
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List stored reports and per-source health",
	RunE:  historyAction,
}

func init() {
	historyCmd.Flags().IntVar(&historyLimit, "limit", 10, "number of reports to list")
	historyCmd.Flags().StringVar(&historySince, "since", "30d", "health window (e.g. 7d, 48h)")
	historyCmd.Flags().StringVar(&historyFormat, "format", "terminal", "output format: terminal, json")
	rootCmd.AddCommand(historyCmd)
}

const staleDays = 7

func historyAction(cmd *cobra.Command, _ []string) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}

	db, err := store.Open(cfg.Storage.Path)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer func() { _ = db.Close() }()

	sinceDur, err := parseDuration(historySince)
	if err != nil {
		return fmt.Errorf("parse --since: %w", err)
	}

	ctx := commandContext(cmd.Context())
	reports, err := db.ListReports(ctx, historyLimit)
	if err != nil {
		return fmt.Errorf("list reports: %w", err)
	}
	health, err := db.SourceHealth(ctx, time.Now().Add(-sinceDur))
	if err != nil {
		return fmt.Errorf("source health: %w", err)
	}

	switch historyFormat {
	case "json":
		return printHistoryJSON(os.Stdout, reports, health)
	case "terminal", "":
		if len(reports) == 0 {
			fmt.Fprintln(os.Stdout, "No reports found. Run 'pulse run' first.")
			return nil
		}
		printHistory(os.Stdout, reports, health, sinceDur, time.Now())
		return nil
	default:
		return fmt.Errorf("unknown format %q (want terminal or json)", historyFormat)
	}
}

type jsonHistory struct {
	Reports []jsonReportSummary `json:"reports"`
	Health  []jsonSourceHealth  `json:"health"`
}

type jsonReportSummary struct {
	ID          string    `json:"id"`
	GeneratedAt time.Time `json:"generated_at"`
	DaysBack    int       `json:"days_back"`
	Sources     int       `json:"sources"`
	Degraded    int       `json:"degraded"`
	Items       int       `json:"items"`
}

type jsonSourceHealth struct {
	Name      string    `json:"name"`
	Runs      int       `json:"runs"`
	Degraded  int       `json:"degraded"`
	Items     int       `json:"items"`
	LastError string    `json:"last_error,omitempty"`
	LastSeen  time.Time `json:"last_seen"`
}

func printHistoryJSON(w io.Writer, reports []store.ReportSummary, health []store.SourceHealth) error {
	out := jsonHistory{
		Reports: make([]jsonReportSummary, 0, len(reports)),
		Health:  make([]jsonSourceHealth, 0, len(health)),
	}
	for _, r := range reports {
		out.Reports = append(out.Reports, jsonReportSummary(r))
	}
	for _, h := range health {
		out.Health = append(out.Health, jsonSourceHealth(h))
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func printHistory(w io.Writer, reports []store.ReportSummary, health []store.SourceHealth, since time.Duration, now time.Time) {
	fmt.Fprintf(w, "researchpulse history: %d reports\n\n", len(reports))

	for _, r := range reports {
		line := fmt.Sprintf("  %s  %s (%s)  %d sources, %d items",
			r.ID, r.GeneratedAt.Local().Format("2006-01-02 15:04"), humanize.RelTime(r.GeneratedAt, now, "ago", "from now"),
			r.Sources, r.Items)
		if r.Degraded > 0 {
			line += fmt.Sprintf(", %d degraded", r.Degraded)
		}
		fmt.Fprintln(w, line)
	}
	fmt.Fprintln(w)

	if len(health) == 0 {
		return
	}

	fmt.Fprintf(w, "--- Source Health (last %s) ---\n\n", formatSince(since))

	maxName := 6 // minimum "Source"
	for _, h := range health {
		maxName = max(maxName, len(h.Name))
	}
	maxName = min(maxName, 40)

	fmt.Fprintf(w, "  %-*s  %4s  %8s  %5s  %s\n", maxName, "Source", "Runs", "Degraded", "Items", "Last seen")
	for _, h := range health {
		name := h.Name
		if len(name) > maxName {
			name = name[:maxName-1] + "…"
		}
		fmt.Fprintf(w, "  %-*s  %4d  %8d  %5d  %s\n",
			maxName, name, h.Runs, h.Degraded, h.Items, humanize.RelTime(h.LastSeen, now, "ago", "from now"))
	}
	fmt.Fprintln(w)

	staleThreshold := now.AddDate(0, 0, -staleDays)
	for _, h := range health {
		if h.LastError != "" {
			fmt.Fprintf(w, "  %s last error: %s\n", h.Name, h.LastError)
		}
		if h.LastSeen.Before(staleThreshold) {
			fmt.Fprintf(w, "  %s not seen in a report for %d+ days\n", h.Name, staleDays)
		}
	}
}

// parseDuration handles both Go durations and "Nd" day notation.
func parseDuration(s string) (time.Duration, error) {
	if len(s) > 1 && s[len(s)-1] == 'd' {
		var days int
		if _, err := fmt.Sscanf(s, "%dd", &days); err == nil && days > 0 {
			return time.Duration(days) * 24 * time.Hour, nil
		}
	}
	return time.ParseDuration(s)
}

func formatSince(d time.Duration) string {
	hours := int(d.Hours())
	if hours >= 24 && hours%24 == 0 {
		return humanize.Comma(int64(hours/24)) + " days"
	}
	return fmt.Sprintf("%dh", hours)
}
