// Package digest renders a pulse.Report for people and machines.
package digest

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/ppiankov/researchpulse/internal/pulse"
)

// Formatter writes a formatted report to w.
type Formatter interface {
	Format(w io.Writer, report pulse.Report) error
}

// Format names accepted by ForName.
const (
	FormatMarkdown = "markdown"
	FormatJSON     = "json"
	FormatHTML     = "html"
	FormatTerminal = "terminal"
)

// ForName returns the formatter for a format name. color only affects the
// terminal formatter.
func ForName(name string, color bool) (Formatter, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case FormatMarkdown, "md":
		return NewMarkdown(), nil
	case FormatJSON:
		return NewJSON(), nil
	case FormatHTML:
		return NewHTML(), nil
	case FormatTerminal, "":
		return NewTerminal(color), nil
	default:
		return nil, fmt.Errorf("unknown format %q (want markdown, json, html or terminal)", name)
	}
}

// LoadJSON reads a report previously written by the JSON formatter.
func LoadJSON(r io.Reader) (pulse.Report, error) {
	var report pulse.Report
	if err := json.NewDecoder(r).Decode(&report); err != nil {
		return pulse.Report{}, fmt.Errorf("decode report: %w", err)
	}
	return report, nil
}

// combined returns the report's combined markdown, rebuilding it from the
// sections when a loaded report lacks it.
func combined(report pulse.Report) string {
	if report.Combined != "" {
		return report.Combined
	}
	sections := report.Sections
	if len(sections) == 0 {
		for _, s := range report.Sources {
			sections = append(sections, pulse.Section(s))
		}
	}
	return pulse.Combine(report.Overview, sections)
}

func itemCount(report pulse.Report) int {
	n := 0
	for _, s := range report.Sources {
		n += len(s.Items)
	}
	return n
}

func plural(n int, word string) string {
	if n == 1 {
		return fmt.Sprintf("%d %s", n, word)
	}
	return fmt.Sprintf("%d %ss", n, word)
}
