package source

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ppiankov/researchpulse/internal/dates"
)

const (
	redditBaseURL   = "https://www.reddit.com"
	redditRateLimit = 1 * time.Second
	redditPageSize  = 100
)

// RedditAdapter reads new posts from one public subreddit via Reddit's JSON API.
type RedditAdapter struct {
	base
	subreddit  string
	baseURL    string
	maxResults int
}

// NewReddit builds a subreddit adapter. The "subreddit" option is required.
func NewReddit(spec Spec, deps Deps) (Source, error) {
	sub, err := spec.Options.Require(spec.Name, "subreddit")
	if err != nil {
		return nil, err
	}
	sub = strings.TrimPrefix(sub, "r/")

	baseURL := spec.Options.String("base_url")
	if baseURL == "" {
		baseURL = redditBaseURL
	}
	baseURL = strings.TrimRight(baseURL, "/")

	return &RedditAdapter{
		base:       newBase(spec, deps, baseURL+"/r/"+sub),
		subreddit:  sub,
		baseURL:    baseURL,
		maxResults: spec.Options.Int("max_results", defaultMaxResults),
	}, nil
}

func (rs *RedditAdapter) GetRecent(ctx context.Context, daysBack int) ([]Item, error) {
	return rs.Search(ctx, "", rs.topics, daysBack)
}

func (rs *RedditAdapter) Search(ctx context.Context, query string, topics []string, daysBack int) ([]Item, error) {
	v := url.Values{}
	v.Set("limit", strconv.Itoa(redditPageSize))
	listURL := fmt.Sprintf("%s/r/%s/new.json?%s", rs.baseURL, url.PathEscape(rs.subreddit), v.Encode())

	body, err := rs.get(ctx, request{url: listURL, interval: redditRateLimit})
	if err != nil {
		return nil, rs.fetchErr(err)
	}

	var listing redditListing
	if err := json.Unmarshal(body, &listing); err != nil {
		return nil, rs.fetchErr(fmt.Errorf("decode r/%s: %w", rs.subreddit, err))
	}
	return rs.itemsFromListing(listing, query, topics, daysBack), nil
}

func (rs *RedditAdapter) itemsFromListing(listing redditListing, query string, topics []string, daysBack int) []Item {
	window := rs.window(daysBack)

	var items []Item
	for _, child := range listing.Data.Children {
		p := child.Data
		published := dates.At(time.Unix(int64(p.CreatedUTC), 0).UTC())
		if !window.Admit(published, dates.RejectUnknown) {
			continue
		}

		selftext := collapse(p.Selftext)
		if !matchesTopics(p.Title+" "+selftext, query, topics, rs.topics) {
			continue
		}

		summary := selftext
		if summary == "" {
			summary = fmt.Sprintf("%d points, %d comments", p.Score, p.NumComments)
		}

		items = append(items, Item{
			Title:     collapse(p.Title),
			Summary:   truncate(summary, itemSummaryLimit),
			Link:      rs.baseURL + p.Permalink,
			Published: published,
		})
		if rs.maxResults > 0 && len(items) >= rs.maxResults {
			break
		}
	}
	return items
}

type redditListing struct {
	Data struct {
		Children []redditChild `json:"children"`
	} `json:"data"`
}

type redditChild struct {
	Data redditPost `json:"data"`
}

type redditPost struct {
	ID          string  `json:"id"`
	Title       string  `json:"title"`
	Selftext    string  `json:"selftext"`
	URL         string  `json:"url"`
	Permalink   string  `json:"permalink"`
	Score       int     `json:"score"`
	NumComments int     `json:"num_comments"`
	CreatedUTC  float64 `json:"created_utc"`
}
