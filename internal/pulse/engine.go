// Package pulse runs every configured source concurrently, summarizes what
// each one found and assembles the results into a Report ordered by
// registration.
package pulse

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ppiankov/researchpulse/internal/source"
	"github.com/ppiankov/researchpulse/internal/summarize"
)

const (
	DefaultDaysBack       = 1
	DefaultMaxWorkers     = 8
	DefaultSearchDaysBack = 7
)

// Config holds the engine's run parameters. Zero values select defaults.
type Config struct {
	DaysBack       int
	SearchDaysBack int
	MaxWorkers     int
	// Banners maps a source name to an image URL shown in rendered reports.
	Banners  map[string]string
	Location *time.Location
	Now      func() time.Time
	Logger   *slog.Logger
}

func (c Config) withDefaults() Config {
	if c.DaysBack <= 0 {
		c.DaysBack = DefaultDaysBack
	}
	if c.SearchDaysBack <= 0 {
		c.SearchDaysBack = DefaultSearchDaysBack
	}
	if c.MaxWorkers <= 0 {
		c.MaxWorkers = DefaultMaxWorkers
	}
	if c.Location == nil {
		c.Location = time.UTC
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return c
}

// SourceResult is what one source contributed to a run.
type SourceResult struct {
	Name        string        `json:"name"`
	Description string        `json:"description"`
	Summary     string        `json:"summary"`
	Items       []source.Item `json:"items"`
	Formatted   string        `json:"formatted"`
	BannerURL   string        `json:"banner_url,omitempty"`
	SourceURL   string        `json:"source_url,omitempty"`
	// Error is set when the fetch or the summary failed.
	Error string `json:"error,omitempty"`
}

// Degraded reports whether the source failed during the run.
func (r SourceResult) Degraded() bool { return r.Error != "" }

// Engine fans work out over a fixed set of sources.
type Engine struct {
	cfg      Config
	sources  []source.Source
	sum      summarize.Summarizer
	overview summarize.Summarizer
	logger   *slog.Logger
}

// New validates the source set and builds an engine. sum summarizes each
// source; overview summarizes across sources and defaults to sum. A nil sum
// selects the heuristic summarizer.
func New(cfg Config, sources []source.Source, sum, overview summarize.Summarizer) (*Engine, error) {
	cfg = cfg.withDefaults()

	seen := make(map[string]bool, len(sources))
	for i, src := range sources {
		if src == nil {
			return nil, &source.ConfigError{Source: fmt.Sprintf("#%d", i), Reason: "is nil"}
		}
		name := src.Name()
		if seen[name] {
			return nil, &source.ConfigError{Source: name, Reason: "is registered more than once"}
		}
		seen[name] = true
	}

	if sum == nil {
		sum = &summarize.HeuristicSummarizer{}
	}
	if overview == nil {
		overview = sum
	}

	return &Engine{
		cfg:      cfg,
		sources:  append([]source.Source(nil), sources...),
		sum:      sum,
		overview: overview,
		logger:   cfg.Logger,
	}, nil
}

// Sources returns the sources in registration order.
func (e *Engine) Sources() []source.Source {
	return append([]source.Source(nil), e.sources...)
}

// DaysBack is the recency window used by Fetch.
func (e *Engine) DaysBack() int { return e.cfg.DaysBack }

// Workers is the number of tasks Fetch runs at once.
func (e *Engine) Workers() int {
	return min(e.cfg.MaxWorkers, len(e.sources))
}

// Fetch runs one fetch-and-summarize task per source and returns exactly one
// entry per source, keyed by name. A failing source yields a degraded entry
// and never affects the others.
func (e *Engine) Fetch(ctx context.Context) map[string]SourceResult {
	results := make(map[string]SourceResult, len(e.sources))
	if len(e.sources) == 0 {
		return results
	}

	// The collector is the only writer of results.
	ch := make(chan SourceResult)
	collected := make(chan struct{})
	go func() {
		defer close(collected)
		for r := range ch {
			results[r.Name] = r
		}
	}()

	start := time.Now()
	var g errgroup.Group
	g.SetLimit(e.Workers())
	for _, src := range e.sources {
		g.Go(func() error {
			ch <- e.runTask(ctx, src)
			return nil
		})
	}
	_ = g.Wait()
	close(ch)
	<-collected

	degraded := 0
	for _, r := range results {
		if r.Degraded() {
			degraded++
		}
	}
	e.logger.Info("fetch complete",
		"sources", len(results),
		"degraded", degraded,
		"workers", e.Workers(),
		"duration", time.Since(start).Round(time.Millisecond),
	)
	return results
}

func (e *Engine) runTask(ctx context.Context, src source.Source) (res SourceResult) {
	name := src.Name()
	start := time.Now()
	res = e.newResult(src)

	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("source task panicked", "source", name, "panic", r, "stack", string(debug.Stack()))
			res = e.degraded(src, name, fmt.Errorf("panic: %v", r))
		}
	}()

	items, err := src.GetRecent(ctx, e.cfg.DaysBack)
	if err != nil {
		e.logger.Warn("source fetch failed", "source", name, "error", err, "duration", time.Since(start).Round(time.Millisecond))
		return e.degraded(src, name, err)
	}
	if items == nil {
		items = []source.Item{}
	}
	res.Items = items
	res.Formatted = src.FormatOutput(items)

	if len(items) == 0 {
		res.Summary = source.NoResults(name)
		e.logger.Info("source fetched", "source", name, "items", 0, "duration", time.Since(start).Round(time.Millisecond))
		return res
	}

	summary, err := e.sum.Summarize(ctx, res.Formatted)
	if err != nil {
		e.logger.Warn("source summary failed", "source", name, "error", err)
		res.Summary = fmt.Sprintf("Summary unavailable for %s.", name)
		res.Error = err.Error()
		return res
	}
	res.Summary = summary

	e.logger.Info("source fetched", "source", name, "items", len(items), "duration", time.Since(start).Round(time.Millisecond))
	return res
}

func (e *Engine) newResult(src source.Source) SourceResult {
	return SourceResult{
		Name:        src.Name(),
		Description: src.Description(),
		BannerURL:   e.cfg.Banners[src.Name()],
		SourceURL:   src.Homepage(),
		Items:       []source.Item{},
	}
}

// degraded builds the entry for a source whose task failed. It never calls
// back into the source.
func (e *Engine) degraded(src source.Source, name string, err error) SourceResult {
	res := SourceResult{
		Name:      name,
		Items:     []source.Item{},
		Formatted: source.NoResults(name),
		Summary:   fmt.Sprintf("No recent results from %s (fetch failed).", name),
		BannerURL: e.cfg.Banners[name],
		Error:     err.Error(),
	}
	func() {
		// A broken source may panic here too.
		defer func() { _ = recover() }()
		res.Description = src.Description()
		res.SourceURL = src.Homepage()
	}()
	return res
}
