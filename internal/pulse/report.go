package pulse

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ppiankov/researchpulse/internal/source"
)

const (
	reportTitle         = "# Pulse Summary"
	overviewUnavailable = "Overview unavailable."
	noSourcesOverview   = "No sources configured."
)

// Report is the assembled output of one run.
type Report struct {
	ID          string         `json:"id"`
	GeneratedAt time.Time      `json:"generated_at"`
	DaysBack    int            `json:"days_back"`
	Overview    string         `json:"overall_summary"`
	Sources     []SourceResult `json:"sources"`
	Sections    []string       `json:"sections_markdown"`
	Combined    string         `json:"combined_markdown"`
}

// Degraded returns the names of sources that failed in this report.
func (r Report) Degraded() []string {
	var names []string
	for _, s := range r.Sources {
		if s.Degraded() {
			names = append(names, s.Name)
		}
	}
	return names
}

// Assemble orders results by source registration and builds the combined
// markdown. A source missing from results gets a degraded entry.
func (e *Engine) Assemble(ctx context.Context, results map[string]SourceResult) Report {
	ordered := make([]SourceResult, 0, len(e.sources))
	sections := make([]string, 0, len(e.sources))

	for _, src := range e.sources {
		res, ok := results[src.Name()]
		if !ok {
			res = e.degraded(src, src.Name(), fmt.Errorf("no result collected"))
		}
		ordered = append(ordered, res)
		sections = append(sections, Section(res))
	}

	overview := e.overviewOf(ctx, ordered)

	return Report{
		ID:          uuid.NewString(),
		GeneratedAt: e.cfg.Now().In(e.cfg.Location),
		DaysBack:    e.cfg.DaysBack,
		Overview:    overview,
		Sources:     ordered,
		Sections:    sections,
		Combined:    Combine(overview, sections),
	}
}

// Section renders one source's block of the combined report.
func Section(r SourceResult) string {
	return fmt.Sprintf("## %s\n%s\n\n%s", r.Name, r.Summary, r.Formatted)
}

// Combine joins the overview and the per-source sections.
func Combine(overview string, sections []string) string {
	return reportTitle + "\n" + overview + "\n\n" + strings.Join(sections, "\n\n")
}

// OverviewInput is the text the overview summarizer receives: one
// "<name>: <summary>" paragraph per source.
func OverviewInput(results []SourceResult) string {
	lines := make([]string, len(results))
	for i, r := range results {
		lines[i] = r.Name + ": " + r.Summary
	}
	return strings.Join(lines, "\n\n")
}

func (e *Engine) overviewOf(ctx context.Context, results []SourceResult) string {
	if len(results) == 0 {
		return noSourcesOverview
	}
	out, err := e.overview.Summarize(ctx, OverviewInput(results))
	if err != nil {
		e.logger.Warn("overview summary failed", "error", err)
		return overviewUnavailable
	}
	if strings.TrimSpace(out) == "" {
		return overviewUnavailable
	}
	return out
}

// Run fetches every source and assembles the report. When ctx is cancelled
// the partial report is discarded and ctx.Err() returned.
func (e *Engine) Run(ctx context.Context) (Report, error) {
	results := e.Fetch(ctx)
	if err := ctx.Err(); err != nil {
		return Report{}, err
	}
	report := e.Assemble(ctx, results)
	if err := ctx.Err(); err != nil {
		return Report{}, err
	}
	return report, nil
}

// Search runs query against the named sources, or all of them when names is
// empty, one after another in registration order. It returns the formatted
// blocks joined by blank lines. A failing source contributes its "no recent
// results" block.
func (e *Engine) Search(ctx context.Context, query string, names []string) (string, error) {
	selected, unknown := e.selectSources(names)
	if len(unknown) > 0 {
		e.logger.Warn("search skipping unknown sources", "sources", unknown)
	}

	blocks := make([]string, 0, len(selected))
	for _, src := range selected {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		items, err := src.Search(ctx, query, nil, e.cfg.SearchDaysBack)
		if err != nil {
			e.logger.Warn("search failed", "source", src.Name(), "query", query, "error", err)
			items = nil
		}
		blocks = append(blocks, src.FormatOutput(items))
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return strings.Join(blocks, "\n\n"), nil
}

func (e *Engine) selectSources(names []string) (selected []source.Source, unknown []string) {
	want := make(map[string]bool, len(names))
	for _, n := range names {
		if n = strings.TrimSpace(n); n != "" {
			want[n] = true
		}
	}
	if len(want) == 0 {
		return e.Sources(), nil
	}
	for _, src := range e.sources {
		if want[src.Name()] {
			selected = append(selected, src)
			delete(want, src.Name())
		}
	}
	for n := range want {
		unknown = append(unknown, n)
	}
	slices.Sort(unknown)
	return selected, unknown
}
