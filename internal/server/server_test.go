package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ppiankov/researchpulse/internal/dates"
	"github.com/ppiankov/researchpulse/internal/pulse"
	"github.com/ppiankov/researchpulse/internal/source"
	"github.com/ppiankov/researchpulse/internal/store"
	"github.com/ppiankov/researchpulse/internal/summarize"
)

var testNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

type stubSource struct {
	name  string
	delay time.Duration
	items []source.Item
	err   error
}

func (s *stubSource) Name() string        { return s.name }
func (s *stubSource) Description() string { return s.name + " description" }
func (s *stubSource) Homepage() string    { return "https://example.com/" + s.name }

func (s *stubSource) Search(ctx context.Context, query string, _ []string, _ int) ([]source.Item, error) {
	var out []source.Item
	for _, it := range s.items {
		if strings.Contains(strings.ToLower(it.Title), strings.ToLower(query)) {
			out = append(out, it)
		}
	}
	return out, nil
}

func (s *stubSource) GetRecent(ctx context.Context, _ int) ([]source.Item, error) {
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	if s.err != nil {
		return nil, &source.FetchError{Source: s.name, Err: s.err}
	}
	return s.items, nil
}

func (s *stubSource) FormatOutput(items []source.Item) string {
	if len(items) == 0 {
		return source.NoResults(s.name)
	}
	lines := make([]string, len(items))
	for i, it := range items {
		lines[i] = "- " + it.Title
	}
	return strings.Join(lines, "\n")
}

func stubItem(title string) source.Item {
	return source.Item{Title: title, Summary: "s", Link: "https://example.com/" + title, Published: dates.At(testNow)}
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestEngine(t *testing.T) *pulse.Engine {
	t.Helper()
	sources := []source.Source{
		// The slowest source is registered first so completion order differs.
		&stubSource{name: "slow", delay: 30 * time.Millisecond, items: []source.Item{stubItem("Agents paper")}},
		&stubSource{name: "broken", err: errors.New("status 503")},
		&stubSource{name: "fast", items: []source.Item{stubItem("Agents release"), stubItem("Other")}},
	}
	sum := summarize.Func(func(_ context.Context, text string) (string, error) {
		first, _, _ := strings.Cut(text, "\n")
		return "sum(" + first + ")", nil
	})
	e, err := pulse.New(pulse.Config{
		Now:    func() time.Time { return testNow },
		Logger: discard(),
	}, sources, sum, nil)
	if err != nil {
		t.Fatalf("pulse.New: %v", err)
	}
	return e
}

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "pulse.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func do(t *testing.T, h http.Handler, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	r := New(NewHandler(newTestEngine(t), nil, discard()))

	rec := do(t, r, "/healthz")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"status":"ok"`) {
		t.Errorf("body = %s", rec.Body.String())
	}
}

func TestPulse_RegistrationOrderAndPersistence(t *testing.T) {
	st := openTestStore(t)
	r := New(NewHandler(newTestEngine(t), st, discard()))

	rec := do(t, r, "/api/pulse")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var report pulse.Report
	if err := json.Unmarshal(rec.Body.Bytes(), &report); err != nil {
		t.Fatalf("decode: %v", err)
	}
	var names []string
	for _, s := range report.Sources {
		names = append(names, s.Name)
	}
	if strings.Join(names, ",") != "slow,broken,fast" {
		t.Errorf("source order = %v, want slow,broken,fast", names)
	}
	if degraded := report.Degraded(); len(degraded) != 1 || degraded[0] != "broken" {
		t.Errorf("degraded = %v, want [broken]", degraded)
	}
	if !strings.HasPrefix(report.Combined, "# Pulse Summary\n") {
		t.Errorf("combined = %q", report.Combined)
	}

	saved, err := st.GetReport(context.Background(), report.ID)
	if err != nil {
		t.Fatalf("report not persisted: %v", err)
	}
	if len(saved.Sources) != 3 {
		t.Errorf("persisted sources = %d, want 3", len(saved.Sources))
	}
}

func TestSearch(t *testing.T) {
	r := New(NewHandler(newTestEngine(t), nil, discard()))

	tests := []struct {
		name       string
		target     string
		wantStatus int
		contains   []string
		excludes   []string
	}{
		{
			name:       "missing query",
			target:     "/api/search",
			wantStatus: http.StatusBadRequest,
			contains:   []string{"missing 'q' parameter"},
		},
		{
			name:       "all sources",
			target:     "/api/search?q=agents",
			wantStatus: http.StatusOK,
			contains:   []string{"Agents paper", "Agents release"},
			excludes:   []string{"Other"},
		},
		{
			name:       "selected sources",
			target:     "/api/search?q=agents&sources=fast,%20",
			wantStatus: http.StatusOK,
			contains:   []string{"Agents release", `"sources":["fast"]`},
			excludes:   []string{"Agents paper"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, r, tt.target)
			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d (body %s)", rec.Code, tt.wantStatus, rec.Body.String())
			}
			body := rec.Body.String()
			for _, s := range tt.contains {
				if !strings.Contains(body, s) {
					t.Errorf("body missing %q: %s", s, body)
				}
			}
			for _, s := range tt.excludes {
				if strings.Contains(body, s) {
					t.Errorf("body should not contain %q: %s", s, body)
				}
			}
		})
	}
}

func TestReports(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	for i, id := range []string{"first", "second"} {
		report := pulse.Report{
			ID:          id,
			GeneratedAt: testNow.Add(time.Duration(i) * time.Hour),
			DaysBack:    1,
			Overview:    "overview " + id,
			Sources:     []pulse.SourceResult{{Name: "fast", Summary: "s", Formatted: "f", Error: "boom"}},
		}
		if err := st.SaveReport(ctx, report); err != nil {
			t.Fatalf("save: %v", err)
		}
	}
	r := New(NewHandler(newTestEngine(t), st, discard()))

	rec := do(t, r, "/api/reports?limit=1")
	if rec.Code != http.StatusOK {
		t.Fatalf("list status = %d", rec.Code)
	}
	var list struct {
		Reports []reportSummary `json:"reports"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(list.Reports) != 1 || list.Reports[0].ID != "second" || list.Reports[0].Degraded != 1 {
		t.Errorf("list = %+v", list.Reports)
	}

	rec = do(t, r, "/api/reports/latest")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "overview second") {
		t.Errorf("latest: status %d body %s", rec.Code, rec.Body.String())
	}

	rec = do(t, r, "/api/reports/first")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "overview first") {
		t.Errorf("get: status %d body %s", rec.Code, rec.Body.String())
	}

	rec = do(t, r, "/api/reports/missing")
	if rec.Code != http.StatusNotFound {
		t.Errorf("missing status = %d, want 404", rec.Code)
	}

	rec = do(t, r, "/api/reports?limit=zero")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad limit status = %d, want 400", rec.Code)
	}
}

func TestReports_NoStore(t *testing.T) {
	r := New(NewHandler(newTestEngine(t), nil, discard()))

	for _, target := range []string{"/api/reports", "/api/reports/latest", "/api/reports/x"} {
		if rec := do(t, r, target); rec.Code != http.StatusServiceUnavailable {
			t.Errorf("%s status = %d, want 503", target, rec.Code)
		}
	}
}

type cancelledRunner struct{}

func (cancelledRunner) Run(context.Context) (pulse.Report, error) {
	return pulse.Report{}, context.Canceled
}

func (cancelledRunner) Search(context.Context, string, []string) (string, error) {
	return "", context.Canceled
}

func TestCancelledRun(t *testing.T) {
	r := New(NewHandler(cancelledRunner{}, nil, discard()))

	for _, target := range []string{"/api/pulse", "/api/search?q=x"} {
		if rec := do(t, r, target); rec.Code != http.StatusServiceUnavailable {
			t.Errorf("%s status = %d, want 503", target, rec.Code)
		}
	}
}

func TestServe_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- Serve(ctx, "127.0.0.1:0", NewHandler(cancelledRunner{}, nil, discard()))
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Serve: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}
