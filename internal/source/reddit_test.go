package source

import (
	"errors"
	"net/http"
	"reflect"
	"sync/atomic"
	"testing"
	"time"
)

func makeListing(posts ...redditPost) redditListing {
	var children []redditChild
	for _, p := range posts {
		children = append(children, redditChild{Data: p})
	}
	return redditListing{Data: struct {
		Children []redditChild `json:"children"`
	}{Children: children}}
}

func redditWithTransport(t *testing.T, spec Spec, rt roundTripFunc) Source {
	t.Helper()
	if spec.Name == "" {
		spec.Name = "devops"
	}
	if spec.Options == nil {
		spec.Options = Options{}
	}
	spec.Options["base_url"] = "https://reddit.test"
	if _, ok := spec.Options["subreddit"]; !ok {
		spec.Options["subreddit"] = "devops"
	}
	src, err := NewReddit(spec, transportDeps(rt))
	if err != nil {
		t.Fatalf("NewReddit: %v", err)
	}
	return src
}

func TestNewReddit_MissingSubreddit(t *testing.T) {
	_, err := NewReddit(Spec{Name: "reddit"}, testDeps())
	var ce *ConfigError
	if !errors.As(err, &ce) || ce.Key != "subreddit" {
		t.Fatalf("err = %v, want ConfigError for subreddit", err)
	}
}

func TestNewReddit_Homepage(t *testing.T) {
	src, err := NewReddit(Spec{Name: "reddit", Options: Options{"subreddit": "r/MachineLearning"}}, testDeps())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if src.Homepage() != "https://www.reddit.com/r/MachineLearning" {
		t.Errorf("homepage = %q", src.Homepage())
	}
}

func TestReddit_SuccessfulFetch(t *testing.T) {
	rs := redditWithTransport(t, Spec{}, func(r *http.Request) (*http.Response, error) {
		if r.Header.Get("User-Agent") == "" {
			t.Error("missing user-agent")
		}
		if r.URL.Path != "/r/devops/new.json" {
			t.Errorf("path = %q, want /r/devops/new.json", r.URL.Path)
		}
		if got := r.URL.Query().Get("limit"); got != "100" {
			t.Errorf("limit query = %q, want 100", got)
		}

		listing := makeListing(
			redditPost{
				ID:         "abc123",
				Title:      "CVE Alert",
				Selftext:   "Critical vulnerability found",
				Permalink:  "/r/devops/comments/abc123/cve_alert/",
				CreatedUTC: float64(testNow.Unix()),
			},
			redditPost{
				ID:          "def456",
				Title:       "Link Post",
				URL:         "https://example.com",
				Permalink:   "/r/devops/comments/def456/link_post/",
				Score:       12,
				NumComments: 3,
				CreatedUTC:  float64(testNow.Unix()),
			},
		)
		return response(http.StatusOK, mustJSON(t, listing)), nil
	})

	items, err := rs.GetRecent(t.Context(), 1)
	if err != nil {
		t.Fatalf("GetRecent: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("got %d items, want 2", len(items))
	}

	if items[0].Summary != "Critical vulnerability found" {
		t.Errorf("summary = %q", items[0].Summary)
	}
	if items[0].Link != "https://reddit.test/r/devops/comments/abc123/cve_alert/" {
		t.Errorf("link = %q", items[0].Link)
	}
	if items[1].Summary != "12 points, 3 comments" {
		t.Errorf("link post summary = %q", items[1].Summary)
	}
}

func TestReddit_WindowAndTopics(t *testing.T) {
	old := testNow.Add(-48 * time.Hour)

	rs := redditWithTransport(t, Spec{Topics: []string{"kubernetes"}}, func(_ *http.Request) (*http.Response, error) {
		listing := makeListing(
			redditPost{ID: "new1", Title: "Kubernetes 1.40 released", CreatedUTC: float64(testNow.Unix()), Permalink: "/r/test/new1"},
			redditPost{ID: "old1", Title: "Kubernetes 1.39 released", CreatedUTC: float64(old.Unix()), Permalink: "/r/test/old1"},
			redditPost{ID: "new2", Title: "Friday meme", CreatedUTC: float64(testNow.Add(-1 * time.Hour).Unix()), Permalink: "/r/test/new2"},
			redditPost{ID: "new3", Title: "Upgrade notes", Selftext: "our kubernetes upgrade", CreatedUTC: float64(testNow.Unix()), Permalink: "/r/test/new3"},
		)
		return response(http.StatusOK, mustJSON(t, listing)), nil
	})

	items, err := rs.GetRecent(t.Context(), 1)
	if err != nil {
		t.Fatalf("GetRecent: %v", err)
	}
	want := []string{"Kubernetes 1.40 released", "Upgrade notes"}
	if got := titles(items); !reflect.DeepEqual(got, want) {
		t.Errorf("titles = %v, want %v", got, want)
	}
}

func TestReddit_EmptyListing(t *testing.T) {
	rs := redditWithTransport(t, Spec{}, func(_ *http.Request) (*http.Response, error) {
		return response(http.StatusOK, mustJSON(t, makeListing())), nil
	})

	items, err := rs.GetRecent(t.Context(), 1)
	if err != nil {
		t.Fatalf("GetRecent: %v", err)
	}
	if len(items) != 0 {
		t.Errorf("got %d items, want 0", len(items))
	}
}

func TestReddit_APIError(t *testing.T) {
	noSleep(t)

	var calls atomic.Int32
	rs := redditWithTransport(t, Spec{}, func(_ *http.Request) (*http.Response, error) {
		calls.Add(1)
		return response(http.StatusForbidden, ""), nil
	})
	_, err := rs.GetRecent(t.Context(), 1)
	var fe *FetchError
	if !errors.As(err, &fe) {
		t.Fatalf("err = %v, want FetchError", err)
	}
	if calls.Load() != 1 {
		t.Errorf("403 should not be retried, got %d attempts", calls.Load())
	}
}

func TestReddit_MalformedJSON(t *testing.T) {
	rs := redditWithTransport(t, Spec{}, func(_ *http.Request) (*http.Response, error) {
		return response(http.StatusOK, "{{{not json"), nil
	})
	if _, err := rs.GetRecent(t.Context(), 1); err == nil {
		t.Fatal("expected error for malformed json")
	}
}
