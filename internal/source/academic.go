package source

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/ppiankov/researchpulse/internal/dates"
)

const (
	arxivAPIBase         = "https://export.arxiv.org/api/query"
	arxivHomepage        = "https://arxiv.org"
	arxivRequestInterval = 3 * time.Second
	academicMaxResults   = 10
)

// AcademicAdapter queries the arXiv Atom API for the newest submissions
// matching its terms. Papers always carry a submission date, so an entry
// without one is treated as malformed and dropped.
type AcademicAdapter struct {
	base
	apiURL     string
	maxResults int
	interval   time.Duration
}

// NewAcademic builds an arXiv adapter. "base_url" overrides the API endpoint.
func NewAcademic(spec Spec, deps Deps) (Source, error) {
	apiURL := spec.Options.String("base_url")
	if apiURL == "" {
		apiURL = arxivAPIBase
	}
	if _, err := url.Parse(apiURL); err != nil {
		return nil, &ConfigError{Source: spec.Name, Key: "base_url", Reason: err.Error()}
	}
	return &AcademicAdapter{
		base:       newBase(spec, deps, arxivHomepage),
		apiURL:     apiURL,
		maxResults: spec.Options.Int("max_results", academicMaxResults),
		interval:   arxivRequestInterval,
	}, nil
}

func (a *AcademicAdapter) GetRecent(ctx context.Context, daysBack int) ([]Item, error) {
	return a.Search(ctx, "", a.topics, daysBack)
}

func (a *AcademicAdapter) Search(ctx context.Context, query string, topics []string, daysBack int) ([]Item, error) {
	terms := searchTerms(query, topics, a.topics)
	if len(terms) == 0 {
		return nil, nil
	}

	body, err := a.get(ctx, request{url: a.queryURL(terms), interval: a.interval})
	if err != nil {
		return nil, a.fetchErr(err)
	}

	feed, err := gofeed.NewParser().Parse(bytes.NewReader(body))
	if err != nil {
		return nil, a.fetchErr(fmt.Errorf("parse atom: %w", err))
	}

	window := a.window(daysBack)
	var items []Item
	for _, entry := range feed.Items {
		if entry == nil {
			continue
		}
		published := dates.Normalize(entry.PublishedParsed, entry.Published, a.deps.Now())
		if !window.Admit(published, dates.RejectUnknown) {
			continue
		}
		items = append(items, Item{
			Title:     collapse(entry.Title),
			Summary:   truncate(collapse(entry.Description), itemSummaryLimit),
			Link:      paperLink(entry),
			Published: published,
		})
	}
	return items, nil
}

func (a *AcademicAdapter) queryURL(terms []string) string {
	clauses := make([]string, 0, len(terms))
	for _, t := range terms {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		if strings.ContainsAny(t, " \t") {
			t = strconv.Quote(t)
		}
		clauses = append(clauses, "all:"+t)
	}

	v := url.Values{}
	v.Set("search_query", strings.Join(clauses, " OR "))
	v.Set("start", "0")
	v.Set("max_results", strconv.Itoa(a.maxResults))
	v.Set("sortBy", "submittedDate")
	v.Set("sortOrder", "descending")
	return a.apiURL + "?" + v.Encode()
}

// paperLink prefers the PDF link arXiv publishes alongside the abstract page.
func paperLink(entry *gofeed.Item) string {
	for _, l := range entry.Links {
		if strings.Contains(l, "/pdf/") {
			return l
		}
	}
	return strings.TrimSpace(entry.Link)
}
