package digest

import (
	"io"
	"strings"

	"github.com/ppiankov/researchpulse/internal/pulse"
)

// MarkdownFormatter writes the report's combined markdown.
type MarkdownFormatter struct{}

// NewMarkdown creates a Markdown formatter.
func NewMarkdown() *MarkdownFormatter {
	return &MarkdownFormatter{}
}

// Format writes the combined markdown to w, newline terminated.
func (f *MarkdownFormatter) Format(w io.Writer, report pulse.Report) error {
	md := combined(report)
	if !strings.HasSuffix(md, "\n") {
		md += "\n"
	}
	_, err := io.WriteString(w, md)
	return err
}
