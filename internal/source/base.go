package source

import (
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/ppiankov/researchpulse/internal/dates"
)

const (
	itemSummaryLimit   = 300
	outputSummaryLimit = 200
	defaultMaxResults  = 5
)

// base holds what every adapter shares: identity, topics and formatting.
type base struct {
	name        string
	description string
	homepage    string
	topics      []string
	deps        Deps
}

func newBase(spec Spec, deps Deps, homepage string) base {
	if h := spec.Options.String("homepage"); h != "" {
		homepage = h
	}
	topics := make([]string, 0, len(spec.Topics))
	for _, t := range spec.Topics {
		if t = strings.TrimSpace(t); t != "" {
			topics = append(topics, t)
		}
	}
	return base{
		name:        spec.Name,
		description: spec.Description,
		homepage:    homepage,
		topics:      topics,
		deps:        deps.withDefaults(),
	}
}

func (b *base) Name() string        { return b.name }
func (b *base) Description() string { return b.description }
func (b *base) Homepage() string    { return b.homepage }

func (b *base) window(daysBack int) dates.Window {
	return dates.NewWindow(b.deps.Now(), daysBack)
}

func (b *base) fetchErr(err error) error {
	return &FetchError{Source: b.name, Err: err}
}

// FormatOutput renders items as a labeled block. An empty slice yields the
// "no recent results" sentinel.
func (b *base) FormatOutput(items []Item) string {
	if len(items) == 0 {
		return NoResults(b.name)
	}

	desc := b.description
	if desc == "" {
		desc = "No description available."
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "**%s:**\n", label(b.name))
	fmt.Fprintf(&sb, "Description: %s\n\n", desc)

	for i, item := range items {
		title := strings.TrimSpace(item.Title)
		if title == "" {
			b.logFormatError(i, "title")
			title = "No title"
		}
		summary := strings.TrimSpace(item.Summary)
		if summary == "" {
			b.logFormatError(i, "summary")
			summary = "No summary"
		}
		link := strings.TrimSpace(item.Link)
		if link == "" {
			b.logFormatError(i, "link")
			link = "#"
		}
		fmt.Fprintf(&sb, "- **%s**: %s [Link](%s) (Posted on: %s)\n",
			title, truncate(summary, outputSummaryLimit), link, item.Published)
	}
	return sb.String()
}

func (b *base) logFormatError(i int, field string) {
	err := &FormatError{Source: b.name, Index: i, Field: field}
	b.deps.Logger.Debug("placeholder substituted", "source", b.name, "error", err)
}

// NoResults is the text FormatOutput returns for an empty item list.
func NoResults(name string) string {
	return fmt.Sprintf("No recent results from %s.", name)
}

// label turns a source name like "web_search" into "Web Search".
func label(name string) string {
	spaced := strings.NewReplacer("_", " ", "-", " ").Replace(name)
	return cases.Title(language.English).String(spaced)
}

// matchesTopics applies the client-side relevance filter. An explicit topic
// override wins outright; otherwise a query must match; otherwise any of the
// configured topics must. An empty configured set lets everything through.
func matchesTopics(text, query string, override, configured []string) bool {
	content := strings.ToLower(text)
	switch {
	case len(override) > 0:
		return containsAny(content, override)
	case strings.TrimSpace(query) != "":
		return strings.Contains(content, strings.ToLower(strings.TrimSpace(query)))
	case len(configured) > 0:
		return containsAny(content, configured)
	default:
		return true
	}
}

func containsAny(lower string, terms []string) bool {
	for _, t := range terms {
		t = strings.ToLower(strings.TrimSpace(t))
		if t != "" && strings.Contains(lower, t) {
			return true
		}
	}
	return false
}

// searchTerms picks the terms pushed into a remote query: override topics
// plus the query, else the query alone, else the configured topics.
func searchTerms(query string, override, configured []string) []string {
	query = strings.TrimSpace(query)
	var terms []string
	switch {
	case len(override) > 0:
		terms = append(terms, override...)
		if query != "" {
			terms = append(terms, query)
		}
	case query != "":
		terms = []string{query}
	default:
		terms = append(terms, configured...)
	}
	return terms
}

func truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i] + "..."
		}
		count++
	}
	return s
}
