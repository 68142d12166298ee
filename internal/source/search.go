package source

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/ppiankov/researchpulse/internal/dates"
)

const (
	serpAPIBase     = "https://serpapi.com/search.json"
	searchHomepage  = "https://www.google.com"
	afterFilterDays = 30
)

// SearchAPIAdapter queries a SerpAPI-compatible web search endpoint.
// Without an API key it is inert and returns no items.
type SearchAPIAdapter struct {
	base
	apiURL     string
	apiKey     string
	engine     string
	maxResults int
}

// NewSearchAPI builds a web search adapter. The key comes from "api_key" or
// from the environment variable named by "api_key_env".
func NewSearchAPI(spec Spec, deps Deps) (Source, error) {
	apiKey := spec.Options.String("api_key")
	if env := spec.Options.String("api_key_env"); apiKey == "" && env != "" {
		apiKey = os.Getenv(env)
	}

	apiURL := spec.Options.String("base_url")
	if apiURL == "" {
		apiURL = serpAPIBase
	}

	s := &SearchAPIAdapter{
		base:       newBase(spec, deps, searchHomepage),
		apiURL:     apiURL,
		apiKey:     apiKey,
		engine:     spec.Options.String("engine"),
		maxResults: spec.Options.Int("max_results", defaultMaxResults),
	}
	if s.engine == "" {
		s.engine = "google"
	}
	if apiKey == "" {
		s.deps.Logger.Warn("search source has no API key, it will return no results", "source", spec.Name)
	}
	return s, nil
}

func (s *SearchAPIAdapter) GetRecent(ctx context.Context, daysBack int) ([]Item, error) {
	return s.Search(ctx, "", s.topics, daysBack)
}

func (s *SearchAPIAdapter) Search(ctx context.Context, query string, topics []string, daysBack int) ([]Item, error) {
	if s.apiKey == "" {
		return nil, nil
	}

	q := strings.TrimSpace(strings.Join(searchTerms(query, topics, s.topics), " "))
	if q == "" {
		return nil, nil
	}

	now := s.deps.Now()
	if daysBack < afterFilterDays {
		q += " after:" + now.AddDate(0, 0, -daysBack).Format("2006-01-02")
	}

	v := url.Values{}
	v.Set("q", q)
	v.Set("engine", s.engine)
	v.Set("api_key", s.apiKey)
	v.Set("num", strconv.Itoa(s.maxResults))

	body, err := s.get(ctx, request{url: s.apiURL + "?" + v.Encode()})
	if err != nil {
		return nil, s.fetchErr(redactKey(err, s.apiKey))
	}

	var resp serpResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, s.fetchErr(fmt.Errorf("decode response: %w", err))
	}
	if resp.Error != "" {
		return nil, s.fetchErr(fmt.Errorf("api error: %s", resp.Error))
	}

	window := dates.NewWindow(now, daysBack)
	var items []Item
	for _, r := range resp.OrganicResults {
		published := dates.Parse(r.Date, now)
		// The engine already applied the after: filter, so undated hits stay.
		if !window.Admit(published, dates.AdmitUnknown) {
			continue
		}
		items = append(items, Item{
			Title:     collapse(r.Title),
			Summary:   truncate(collapse(r.Snippet), itemSummaryLimit),
			Link:      strings.TrimSpace(r.Link),
			Published: published,
		})
		if len(items) >= s.maxResults {
			break
		}
	}
	return items, nil
}

// redactKey keeps the API key out of error messages, which carry the URL.
func redactKey(err error, key string) error {
	if key == "" || !strings.Contains(err.Error(), key) {
		return err
	}
	return fmt.Errorf("%s", strings.ReplaceAll(err.Error(), key, "REDACTED"))
}

type serpResponse struct {
	Error          string       `json:"error"`
	OrganicResults []serpResult `json:"organic_results"`
}

type serpResult struct {
	Title   string `json:"title"`
	Snippet string `json:"snippet"`
	Link    string `json:"link"`
	Date    string `json:"date"`
}
