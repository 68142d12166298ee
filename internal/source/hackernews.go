package source

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/ppiankov/researchpulse/internal/dates"
)

const (
	hnAPIBase         = "https://hacker-news.firebaseio.com/v0"
	hnHomepage        = "https://news.ycombinator.com"
	hnItemURL         = "https://news.ycombinator.com/item?id=%d"
	hnMaxStories      = 200
	hnMaxWorkers      = 5
	hnDefaultMinScore = 50
)

// hnAPIBaseURL allows tests to override the API endpoint.
var hnAPIBaseURL = hnAPIBase

// HackerNewsAdapter reads top stories from the Hacker News Firebase API,
// keeping stories above a score threshold that match the topics.
type HackerNewsAdapter struct {
	base
	minPoints  int
	maxResults int
}

// hnItem represents a Hacker News story from the API.
type hnItem struct {
	ID          int    `json:"id"`
	Type        string `json:"type"`
	Title       string `json:"title"`
	URL         string `json:"url"`
	Text        string `json:"text"`
	Score       int    `json:"score"`
	Time        int64  `json:"time"`
	Descendants int    `json:"descendants"`
	By          string `json:"by"`
}

// NewHackerNews builds a Hacker News adapter. "min_points" must be at least 1.
func NewHackerNews(spec Spec, deps Deps) (Source, error) {
	minPoints := spec.Options.Int("min_points", hnDefaultMinScore)
	if minPoints < 1 {
		return nil, &ConfigError{Source: spec.Name, Key: "min_points", Reason: "must be at least 1"}
	}
	return &HackerNewsAdapter{
		base:       newBase(spec, deps, hnHomepage),
		minPoints:  minPoints,
		maxResults: spec.Options.Int("max_results", defaultMaxResults),
	}, nil
}

func (h *HackerNewsAdapter) GetRecent(ctx context.Context, daysBack int) ([]Item, error) {
	return h.Search(ctx, "", h.topics, daysBack)
}

func (h *HackerNewsAdapter) Search(ctx context.Context, query string, topics []string, daysBack int) ([]Item, error) {
	ids, err := h.fetchTopStories(ctx)
	if err != nil {
		return nil, h.fetchErr(fmt.Errorf("top stories: %w", err))
	}
	if len(ids) > hnMaxStories {
		ids = ids[:hnMaxStories]
	}

	window := h.window(daysBack)

	type result struct {
		rank int
		item *Item
	}

	jobs := make(chan int, len(ids))
	results := make(chan result, len(ids))

	workers := min(hnMaxWorkers, len(ids))

	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for rank := range jobs {
				story, err := h.fetchItem(ctx, ids[rank])
				if err != nil {
					h.deps.Logger.Debug("skipping story", "source", h.name, "id", ids[rank], "error", err)
					continue
				}
				if story.Type != "story" || story.Score < h.minPoints {
					continue
				}
				published := dates.At(time.Unix(story.Time, 0).UTC())
				if !window.Admit(published, dates.RejectUnknown) {
					continue
				}
				text := stripHTML(story.Text)
				if !matchesTopics(story.Title+" "+text, query, topics, h.topics) {
					continue
				}
				results <- result{rank: rank, item: &Item{
					Title:     collapse(story.Title),
					Summary:   h.storySummary(story, text),
					Link:      storyLink(story),
					Published: published,
				}}
			}
		}()
	}

	for rank := range ids {
		jobs <- rank
	}
	close(jobs)

	go func() {
		wg.Wait()
		close(results)
	}()

	// Collect keyed by rank so the output keeps the front-page order.
	byRank := make(map[int]Item)
	for r := range results {
		byRank[r.rank] = *r.item
	}
	if err := ctx.Err(); err != nil {
		return nil, h.fetchErr(err)
	}

	var items []Item
	for rank := range ids {
		item, ok := byRank[rank]
		if !ok {
			continue
		}
		items = append(items, item)
		if h.maxResults > 0 && len(items) >= h.maxResults {
			break
		}
	}
	return items, nil
}

func (h *HackerNewsAdapter) storySummary(story *hnItem, text string) string {
	if text != "" {
		return truncate(text, itemSummaryLimit)
	}
	return fmt.Sprintf("%d points, %d comments", story.Score, story.Descendants)
}

// storyLink prefers the story's own URL; Ask HN posts link to the thread.
func storyLink(story *hnItem) string {
	if story.URL != "" {
		return story.URL
	}
	return fmt.Sprintf(hnItemURL, story.ID)
}

func (h *HackerNewsAdapter) fetchTopStories(ctx context.Context) ([]int, error) {
	body, err := h.get(ctx, request{url: hnAPIBaseURL + "/topstories.json"})
	if err != nil {
		return nil, err
	}
	var ids []int
	if err := json.Unmarshal(body, &ids); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	return ids, nil
}

func (h *HackerNewsAdapter) fetchItem(ctx context.Context, id int) (*hnItem, error) {
	body, err := h.get(ctx, request{url: fmt.Sprintf("%s/item/%d.json", hnAPIBaseURL, id)})
	if err != nil {
		return nil, fmt.Errorf("item %d: %w", id, err)
	}
	var item hnItem
	if err := json.Unmarshal(body, &item); err != nil {
		return nil, fmt.Errorf("item %d: %w", id, err)
	}
	return &item, nil
}
