package source

import (
	"bytes"
	"cmp"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/ppiankov/researchpulse/internal/dates"
)

// RSSAdapter reads an RSS or Atom feed and filters its entries by recency
// and topic. Entries without a usable date skip the recency check but
// still go through the topic filter.
type RSSAdapter struct {
	base
	feedURL    string
	maxResults int
}

// NewRSS builds an RSS adapter. The "url" option is required.
func NewRSS(spec Spec, deps Deps) (Source, error) {
	feedURL, err := spec.Options.Require(spec.Name, "url")
	if err != nil {
		return nil, err
	}
	return &RSSAdapter{
		base:       newBase(spec, deps, feedURL),
		feedURL:    feedURL,
		maxResults: spec.Options.Int("max_results", defaultMaxResults),
	}, nil
}

func (r *RSSAdapter) GetRecent(ctx context.Context, daysBack int) ([]Item, error) {
	return r.Search(ctx, "", r.topics, daysBack)
}

func (r *RSSAdapter) Search(ctx context.Context, query string, topics []string, daysBack int) ([]Item, error) {
	body, err := r.get(ctx, request{url: r.feedURL})
	if err != nil {
		return nil, r.fetchErr(err)
	}

	feed, err := gofeed.NewParser().Parse(bytes.NewReader(body))
	if err != nil {
		return nil, r.fetchErr(fmt.Errorf("parse feed: %w", err))
	}

	return r.itemsFromFeed(feed, query, topics, daysBack), nil
}

func (r *RSSAdapter) itemsFromFeed(feed *gofeed.Feed, query string, topics []string, daysBack int) []Item {
	now := r.deps.Now()
	window := dates.NewWindow(now, daysBack)

	var items []Item
	for _, entry := range feed.Items {
		if entry == nil {
			continue
		}
		published := dates.Normalize(itemPublishedTime(entry), cmp.Or(entry.Published, entry.Updated), now)
		if !window.Admit(published, dates.AdmitUnknown) {
			continue
		}

		title := collapse(entry.Title)
		summary := itemText(entry)
		if !matchesTopics(title+" "+summary, query, topics, r.topics) {
			continue
		}

		items = append(items, Item{
			Title:     title,
			Summary:   truncate(summary, itemSummaryLimit),
			Link:      strings.TrimSpace(entry.Link),
			Published: published,
		})
		if r.maxResults > 0 && len(items) >= r.maxResults {
			break
		}
	}
	return items
}

func itemPublishedTime(item *gofeed.Item) *time.Time {
	if item.PublishedParsed != nil {
		return item.PublishedParsed
	}
	return item.UpdatedParsed
}

func itemText(item *gofeed.Item) string {
	raw := item.Description
	if strings.TrimSpace(raw) == "" {
		raw = item.Content
	}
	return stripHTML(raw)
}
