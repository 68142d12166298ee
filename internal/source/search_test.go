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
)

func TestSearchAPI_NoKeyIsInert(t *testing.T) {
	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
	}))
	defer ts.Close()

	t.Setenv("PULSE_TEST_SERP_KEY", "")
	src, err := NewSearchAPI(Spec{Name: "web", Topics: []string{"llm"}, Options: Options{
		"base_url":    ts.URL,
		"api_key_env": "PULSE_TEST_SERP_KEY",
	}}, testDeps())
	if err != nil {
		t.Fatalf("NewSearchAPI: %v", err)
	}

	items, err := src.GetRecent(t.Context(), 1)
	if err != nil || len(items) != 0 {
		t.Fatalf("GetRecent = %v, %v; want no items and no error", items, err)
	}
	if calls.Load() != 0 {
		t.Errorf("made %d requests without a key", calls.Load())
	}
}

func TestSearchAPI_GetRecent(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if got := q.Get("q"); got != "llm agents after:2026-03-09" {
			t.Errorf("q = %q", got)
		}
		if q.Get("api_key") != "secret" || q.Get("engine") != "google" || q.Get("num") != "5" {
			t.Errorf("query = %v", q)
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"organic_results": [
			{"title": "Fresh", "snippet": "  new   stuff ", "link": "https://a.example", "date": "2 hours ago"},
			{"title": "Undated", "snippet": "s", "link": "https://b.example"},
			{"title": "Stale", "snippet": "s", "link": "https://c.example", "date": "Jan 5, 2020"}
		]}`)
	}))
	defer ts.Close()

	src, err := NewSearchAPI(Spec{Name: "web", Topics: []string{"llm", "agents"}, Options: Options{
		"base_url": ts.URL,
		"api_key":  "secret",
	}}, testDeps())
	if err != nil {
		t.Fatalf("NewSearchAPI: %v", err)
	}

	items, err := src.GetRecent(t.Context(), 1)
	if err != nil {
		t.Fatalf("GetRecent: %v", err)
	}
	if got := titles(items); !reflect.DeepEqual(got, []string{"Fresh", "Undated"}) {
		t.Fatalf("titles = %v", got)
	}
	if items[0].Summary != "new stuff" {
		t.Errorf("summary = %q", items[0].Summary)
	}
	if items[0].Published.String() != "2026-03-10" {
		t.Errorf("published = %v", items[0].Published)
	}
}

func TestSearchAPI_LongWindowSkipsAfterFilter(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.URL.Query().Get("q"), "after:") {
			t.Errorf("q = %q, want no after: filter", r.URL.Query().Get("q"))
		}
		fmt.Fprint(w, `{}`)
	}))
	defer ts.Close()

	src, _ := NewSearchAPI(Spec{Name: "web", Options: Options{"base_url": ts.URL, "api_key": "k"}}, testDeps())
	if _, err := src.Search(t.Context(), "rust", nil, 60); err != nil {
		t.Fatalf("Search: %v", err)
	}
}

func TestSearchAPI_APIError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"error": "Invalid API key."}`)
	}))
	defer ts.Close()

	src, _ := NewSearchAPI(Spec{Name: "web", Options: Options{"base_url": ts.URL, "api_key": "k"}}, testDeps())
	_, err := src.Search(t.Context(), "rust", nil, 1)
	var fe *FetchError
	if !errors.As(err, &fe) {
		t.Fatalf("err = %v, want FetchError", err)
	}
	if !strings.Contains(err.Error(), "Invalid API key") {
		t.Errorf("err = %v", err)
	}
}

func TestSearchAPI_KeyRedactedFromErrors(t *testing.T) {
	noSleep(t)

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer ts.Close()

	src, _ := NewSearchAPI(Spec{Name: "web", Options: Options{"base_url": ts.URL, "api_key": "supersecret"}}, testDeps())
	_, err := src.Search(t.Context(), "rust", nil, 1)
	if err == nil {
		t.Fatal("expected error")
	}
	if strings.Contains(err.Error(), "supersecret") {
		t.Errorf("api key leaked into error: %v", err)
	}
	if !strings.Contains(err.Error(), "REDACTED") {
		t.Errorf("err = %v, want redacted URL", err)
	}
}
