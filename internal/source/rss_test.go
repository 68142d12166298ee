package source

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/ppiankov/researchpulse/internal/dates"
)

func TestNewRSS_MissingURL(t *testing.T) {
	_, err := NewRSS(Spec{Name: "blog", Kind: KindRSS}, testDeps())
	var ce *ConfigError
	if !errors.As(err, &ce) {
		t.Fatalf("err = %v, want ConfigError", err)
	}
	if ce.Key != "url" {
		t.Errorf("key = %q, want url", ce.Key)
	}
}

func TestNewRSS_Valid(t *testing.T) {
	src, err := NewRSS(Spec{Name: "blog", Options: Options{"url": "https://example.com/feed.xml"}}, testDeps())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if src.Name() != "blog" {
		t.Errorf("name = %q, want blog", src.Name())
	}
	if src.Homepage() != "https://example.com/feed.xml" {
		t.Errorf("homepage = %q", src.Homepage())
	}
}

func TestStripHTML(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"simple tags", "<p>hello</p>", "hello"},
		{"nested tags", "<div><p>hello</p></div>", "hello"},
		{"entities", "&amp; &lt; &gt;", "& < >"},
		{"mixed", "<b>bold</b> &amp; <i>italic</i>", "bold & italic"},
		{"empty", "", ""},
		{"no html", "plain  text", "plain text"},
		{"paragraphs", "<p>one</p>\n<p>two</p>", "one two"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := stripHTML(tt.input)
			if got != tt.want {
				t.Errorf("stripHTML(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestItemPublishedTime(t *testing.T) {
	now := testNow
	earlier := now.Add(-time.Hour)

	t.Run("published", func(t *testing.T) {
		item := &gofeed.Item{PublishedParsed: &now}
		if got := itemPublishedTime(item); !got.Equal(now) {
			t.Errorf("got %v, want %v", got, now)
		}
	})

	t.Run("updated fallback", func(t *testing.T) {
		item := &gofeed.Item{UpdatedParsed: &earlier}
		if got := itemPublishedTime(item); !got.Equal(earlier) {
			t.Errorf("got %v, want %v", got, earlier)
		}
	})

	t.Run("published preferred", func(t *testing.T) {
		item := &gofeed.Item{PublishedParsed: &now, UpdatedParsed: &earlier}
		if got := itemPublishedTime(item); !got.Equal(now) {
			t.Errorf("got %v (updated), want %v (published)", got, now)
		}
	})

	t.Run("none", func(t *testing.T) {
		if got := itemPublishedTime(&gofeed.Item{}); got != nil {
			t.Errorf("got %v, want nil", got)
		}
	})
}

func TestItemText(t *testing.T) {
	t.Run("description", func(t *testing.T) {
		item := &gofeed.Item{Description: "<p>Short description</p>", Content: "<p>long</p>"}
		if got := itemText(item); got != "Short description" {
			t.Errorf("got %q", got)
		}
	})

	t.Run("content fallback", func(t *testing.T) {
		item := &gofeed.Item{Content: "<p>Details about the change</p>"}
		if got := itemText(item); got != "Details about the change" {
			t.Errorf("got %q", got)
		}
	})

	t.Run("empty", func(t *testing.T) {
		if got := itemText(&gofeed.Item{}); got != "" {
			t.Errorf("got %q, want empty", got)
		}
	})
}

func newTestRSS(t *testing.T, topics []string, opts Options) *RSSAdapter {
	t.Helper()
	if opts == nil {
		opts = Options{}
	}
	if _, ok := opts["url"]; !ok {
		opts["url"] = "https://example.com/feed.xml"
	}
	src, err := NewRSS(Spec{Name: "blog", Topics: topics, Options: opts}, testDeps())
	if err != nil {
		t.Fatalf("NewRSS: %v", err)
	}
	return src.(*RSSAdapter)
}

func TestItemsFromFeed_Window(t *testing.T) {
	recent := testNow.Add(-1 * time.Hour)
	old := testNow.Add(-48 * time.Hour)

	feed := &gofeed.Feed{
		Title: "DevOps Weekly",
		Items: []*gofeed.Item{
			{Title: "Recent Post", Description: "Recent content", Link: "https://example.com/1", PublishedParsed: &recent},
			{Title: "Old Post", Description: "Old content", Link: "https://example.com/2", PublishedParsed: &old},
			{Title: "No Date", Description: "No date content", Link: "https://example.com/3"},
		},
	}

	items := newTestRSS(t, nil, nil).itemsFromFeed(feed, "", nil, 1)

	want := []string{"Recent Post", "No Date"}
	if got := titles(items); !reflect.DeepEqual(got, want) {
		t.Fatalf("titles = %v, want %v", got, want)
	}
	if items[0].Published.Precision != dates.Exact {
		t.Errorf("precision = %v, want exact", items[0].Published.Precision)
	}
	if items[1].Published.IsKnown() {
		t.Errorf("undated item should stay unknown, got %v", items[1].Published)
	}
}

func TestItemsFromFeed_TopicFilter(t *testing.T) {
	recent := testNow.Add(-1 * time.Hour)
	feed := &gofeed.Feed{Items: []*gofeed.Item{
		{Title: "New LLM release", Description: "weights published", PublishedParsed: &recent},
		{Title: "Gardening tips", Description: "tomatoes", PublishedParsed: &recent},
		{Title: "Autonomous Agents", Description: "a survey", PublishedParsed: &recent},
	}}

	tests := []struct {
		name     string
		topics   []string
		query    string
		override []string
		want     []string
	}{
		{"configured topics", []string{"llm", "agents"}, "", nil, []string{"New LLM release", "Autonomous Agents"}},
		{"no topics keeps all", nil, "", nil, []string{"New LLM release", "Gardening tips", "Autonomous Agents"}},
		{"query", []string{"llm"}, "tomatoes", nil, []string{"Gardening tips"}},
		{"override wins", []string{"llm"}, "", []string{"garden"}, []string{"Gardening tips"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newTestRSS(t, tt.topics, nil)
			got := titles(r.itemsFromFeed(feed, tt.query, tt.override, 1))
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("titles = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestItemsFromFeed_MaxResults(t *testing.T) {
	recent := testNow.Add(-1 * time.Hour)
	feed := &gofeed.Feed{}
	for i := range 10 {
		feed.Items = append(feed.Items, &gofeed.Item{Title: fmt.Sprintf("post %d", i), PublishedParsed: &recent})
	}
	items := newTestRSS(t, nil, Options{"max_results": 3}).itemsFromFeed(feed, "", nil, 1)
	if len(items) != 3 {
		t.Errorf("got %d items, want 3", len(items))
	}
}

func rssBody(pub time.Time) string {
	return fmt.Sprintf(`<?xml version="1.0"?>
<rss version="2.0">
  <channel>
    <title>Test Feed</title>
    <item>
      <title>Test Item</title>
      <link>https://example.com/1</link>
      <description>&lt;p&gt;About agents&lt;/p&gt;</description>
      <pubDate>%s</pubDate>
    </item>
  </channel>
</rss>`, pub.Format(time.RFC1123Z))
}

func TestRSSSearch_HTTP(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.Header.Get("User-Agent"), "researchpulse") {
			t.Errorf("user-agent = %q", r.Header.Get("User-Agent"))
		}
		w.Header().Set("Content-Type", "application/xml")
		fmt.Fprint(w, rssBody(testNow.Add(-2*time.Hour)))
	}))
	defer ts.Close()

	src, err := NewRSS(Spec{Name: "blog", Options: Options{"url": ts.URL}}, testDeps())
	if err != nil {
		t.Fatalf("NewRSS: %v", err)
	}
	items, err := src.GetRecent(t.Context(), 1)
	if err != nil {
		t.Fatalf("GetRecent: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("got %d items, want 1", len(items))
	}
	if items[0].Summary != "About agents" {
		t.Errorf("summary = %q", items[0].Summary)
	}
	if got := items[0].Published.String(); got != "2026-03-10" {
		t.Errorf("published = %q, want 2026-03-10", got)
	}
}

func TestRSSSearch_TransientThenSuccess(t *testing.T) {
	noSleep(t)

	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) <= 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		fmt.Fprint(w, rssBody(testNow.Add(-time.Hour)))
	}))
	defer ts.Close()

	src, _ := NewRSS(Spec{Name: "blog", Options: Options{"url": ts.URL}}, testDeps())
	items, err := src.GetRecent(t.Context(), 1)
	if err != nil {
		t.Fatalf("GetRecent: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("got %d items, want 1", len(items))
	}
	if calls.Load() != 3 {
		t.Errorf("expected 3 attempts, got %d", calls.Load())
	}
}

func TestRSSSearch_PermanentFailure(t *testing.T) {
	noSleep(t)

	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer ts.Close()

	src, _ := NewRSS(Spec{Name: "blog", Options: Options{"url": ts.URL}}, testDeps())
	_, err := src.GetRecent(t.Context(), 1)
	var fe *FetchError
	if !errors.As(err, &fe) {
		t.Fatalf("err = %v, want FetchError", err)
	}
	if fe.Source != "blog" {
		t.Errorf("source = %q, want blog", fe.Source)
	}
	if calls.Load() != 1 {
		t.Errorf("404 should not be retried, got %d attempts", calls.Load())
	}
}

func TestRSSSearch_MalformedFeed(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, "this is not a feed")
	}))
	defer ts.Close()

	src, _ := NewRSS(Spec{Name: "blog", Options: Options{"url": ts.URL}}, testDeps())
	if _, err := src.GetRecent(t.Context(), 1); err == nil {
		t.Fatal("expected error for malformed feed")
	}
}
