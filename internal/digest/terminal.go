package digest

import (
	"fmt"
	"io"
	"strings"

	"github.com/ppiankov/researchpulse/internal/pulse"
)

// TerminalFormatter formats a report for terminal output.
type TerminalFormatter struct {
	color bool
}

// NewTerminal creates a terminal formatter. Set color=true for ANSI colors.
func NewTerminal(color bool) *TerminalFormatter {
	return &TerminalFormatter{color: color}
}

// Format writes the overview followed by one block per source.
func (f *TerminalFormatter) Format(w io.Writer, report pulse.Report) error {
	header := fmt.Sprintf("research pulse: %s, %s, last %s",
		plural(len(report.Sources), "source"),
		plural(itemCount(report), "item"),
		plural(report.DaysBack, "day"))
	fmt.Fprintln(w, f.bold(header))
	if !report.GeneratedAt.IsZero() {
		fmt.Fprintln(w, f.dim("generated "+report.GeneratedAt.Format("2006-01-02 15:04 MST")))
	}
	fmt.Fprintln(w)

	if len(report.Sources) == 0 {
		fmt.Fprintln(w, "No sources configured.")
		return nil
	}

	fmt.Fprintln(w, f.green(f.bold("--- Overview ---")))
	fmt.Fprintln(w)
	writeIndented(w, report.Overview, "  ")
	fmt.Fprintln(w)

	for _, src := range report.Sources {
		f.writeSource(w, src)
	}

	if degraded := report.Degraded(); len(degraded) > 0 {
		fmt.Fprintln(w, f.yellow(fmt.Sprintf("Degraded: %s", strings.Join(degraded, ", "))))
	}
	return nil
}

func (f *TerminalFormatter) writeSource(w io.Writer, src pulse.SourceResult) {
	title := fmt.Sprintf("--- %s (%d) ---", src.Name, len(src.Items))
	if src.Degraded() {
		fmt.Fprintln(w, f.yellow(f.bold(title)))
	} else {
		fmt.Fprintln(w, f.bold(title))
	}
	if src.Description != "" {
		fmt.Fprintf(w, "  %s\n", f.dim(src.Description))
	}
	if src.Error != "" {
		fmt.Fprintf(w, "  %s\n", f.yellow("error: "+src.Error))
	}
	fmt.Fprintln(w)

	writeIndented(w, src.Summary, "  ")
	if len(src.Items) > 0 {
		fmt.Fprintln(w)
	}

	for _, item := range src.Items {
		fmt.Fprintf(w, "  %s %s\n", f.dim("["+item.Published.String()+"]"), item.Title)
		if item.Link != "" {
			fmt.Fprintf(w, "      %s\n", f.dim(item.Link))
		}
	}
	fmt.Fprintln(w)
}

func writeIndented(w io.Writer, text, indent string) {
	for line := range strings.SplitSeq(strings.TrimRight(text, "\n"), "\n") {
		if strings.TrimSpace(line) == "" {
			fmt.Fprintln(w)
			continue
		}
		fmt.Fprintln(w, indent+line)
	}
}

// ANSI helpers, no-op when color=false.

func (f *TerminalFormatter) bold(s string) string {
	if !f.color {
		return s
	}
	return "\033[1m" + s + "\033[0m"
}

func (f *TerminalFormatter) green(s string) string {
	if !f.color {
		return s
	}
	return "\033[32m" + s + "\033[0m"
}

func (f *TerminalFormatter) yellow(s string) string {
	if !f.color {
		return s
	}
	return "\033[33m" + s + "\033[0m"
}

func (f *TerminalFormatter) dim(s string) string {
	if !f.color {
		return s
	}
	return "\033[2m" + s + "\033[0m"
}
