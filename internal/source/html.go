package source

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/ppiankov/researchpulse/internal/dates"
)

// HTMLScrapeAdapter fetches a search or listing page and extracts articles
// with CSS selectors. Articles whose date cannot be determined are assumed
// to be recent.
type HTMLScrapeAdapter struct {
	base
	baseURL    string
	maxResults int

	articleSel string
	titleSel   string
	linkSel    string
	summarySel string
	dateSel    string
}

// NewHTMLScrape builds a scraping adapter. "base_url" and the article,
// title and link selectors are required.
func NewHTMLScrape(spec Spec, deps Deps) (Source, error) {
	h := &HTMLScrapeAdapter{maxResults: spec.Options.Int("max_results", defaultMaxResults)}

	required := []struct {
		key string
		dst *string
	}{
		{"base_url", &h.baseURL},
		{"article_selector", &h.articleSel},
		{"title_selector", &h.titleSel},
		{"link_selector", &h.linkSel},
	}
	for _, r := range required {
		v, err := spec.Options.Require(spec.Name, r.key)
		if err != nil {
			return nil, err
		}
		*r.dst = v
	}
	if _, err := url.Parse(h.baseURL); err != nil {
		return nil, &ConfigError{Source: spec.Name, Key: "base_url", Reason: err.Error()}
	}

	h.summarySel = spec.Options.String("summary_selector")
	h.dateSel = spec.Options.String("date_selector")
	h.base = newBase(spec, deps, h.baseURL)

	if spec.Options.Bool("use_playwright", false) {
		h.deps.Logger.Warn("use_playwright is not supported, fetching static HTML", "source", spec.Name)
	}
	return h, nil
}

func (h *HTMLScrapeAdapter) GetRecent(ctx context.Context, daysBack int) ([]Item, error) {
	return h.Search(ctx, "", h.topics, daysBack)
}

func (h *HTMLScrapeAdapter) Search(ctx context.Context, query string, topics []string, daysBack int) ([]Item, error) {
	pageURL := h.searchURL(searchTerms(query, topics, h.topics))

	header := http.Header{}
	header.Set("Accept", "*/*")
	header.Set("Accept-Language", "en-US,en;q=0.5")

	body, err := h.get(ctx, request{url: pageURL, header: header})
	if err != nil {
		return nil, h.fetchErr(err)
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, h.fetchErr(fmt.Errorf("parse html: %w", err))
	}

	articles := doc.Find(h.articleSel)
	h.deps.Logger.Debug("scraped page", "source", h.name, "url", pageURL, "articles", articles.Length())

	now := h.deps.Now()
	window := dates.NewWindow(now, daysBack)

	var items []Item
	articles.EachWithBreak(func(i int, article *goquery.Selection) bool {
		if h.maxResults > 0 && i >= h.maxResults {
			return false
		}
		item := h.extract(article, pageURL, now)
		if window.Admit(item.Published, dates.AdmitUnknown) {
			items = append(items, item)
		} else {
			h.deps.Logger.Debug("article not recent", "source", h.name, "title", item.Title, "date", item.Published.String())
		}
		return true
	})
	return items, nil
}

func (h *HTMLScrapeAdapter) extract(article *goquery.Selection, pageURL string, now time.Time) Item {
	item := Item{
		Title: collapse(article.Find(h.titleSel).First().Text()),
		Link:  "#",
	}
	if item.Title == "" {
		item.Title = "No title"
	}

	if href, ok := article.Find(h.linkSel).First().Attr("href"); ok {
		item.Link = resolveLink(pageURL, href)
	}

	if h.summarySel != "" {
		item.Summary = truncate(collapse(article.Find(h.summarySel).First().Text()), itemSummaryLimit)
	}

	if h.dateSel != "" {
		el := article.Find(h.dateSel).First()
		raw, ok := el.Attr("datetime")
		if !ok || strings.TrimSpace(raw) == "" {
			raw = el.Text()
		}
		item.Published = dates.Parse(raw, now)
	}
	return item
}

// resolveLink makes a scraped href absolute against the page it came from.
func resolveLink(pageURL, href string) string {
	href = strings.TrimSpace(href)
	if href == "" {
		return "#"
	}
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	page, err := url.Parse(pageURL)
	if err != nil {
		return href
	}
	return page.ResolveReference(ref).String()
}

// searchURL appends the escaped search terms to the base URL.
func (h *HTMLScrapeAdapter) searchURL(terms []string) string {
	q := strings.TrimSpace(strings.Join(terms, " "))
	return h.baseURL + strings.ReplaceAll(url.QueryEscape(q), "+", "%20")
}
