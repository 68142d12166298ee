package digest

import (
	"encoding/json"
	"io"

	"github.com/ppiankov/researchpulse/internal/pulse"
)

// JSONFormatter writes the report as indented JSON. The output is the
// persisted report snapshot format read back by LoadJSON.
type JSONFormatter struct{}

// NewJSON creates a JSON formatter.
func NewJSON() *JSONFormatter {
	return &JSONFormatter{}
}

// Format writes the report as JSON to w.
func (f *JSONFormatter) Format(w io.Writer, report pulse.Report) error {
	if report.Sources == nil {
		report.Sources = []pulse.SourceResult{}
	}
	if report.Sections == nil {
		report.Sections = []string{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}
