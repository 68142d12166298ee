// Package source defines the adapter contract for content sources and the
// adapters that normalize feeds, search APIs and scraped pages into Items.
package source

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ppiankov/researchpulse/internal/dates"
)

// Item is one discovered piece of content. Every adapter produces the same shape.
type Item struct {
	Title     string     `json:"title"`
	Summary   string     `json:"summary"`
	Link      string     `json:"link"`
	Published dates.Date `json:"published"`
}

// Source is a content source adapter.
type Source interface {
	// Name returns the identifier the source was registered under.
	Name() string

	// Description returns a human description, possibly empty.
	Description() string

	// Homepage returns a URL for the source itself, possibly empty.
	Homepage() string

	// Search returns items matching query and topics published within the
	// last daysBack days. A nil topics slice means "no override". Returned
	// items are already filtered; callers apply no further filtering.
	Search(ctx context.Context, query string, topics []string, daysBack int) ([]Item, error)

	// GetRecent is Search with no query and the configured topics.
	GetRecent(ctx context.Context, daysBack int) ([]Item, error)

	// FormatOutput renders items as a labeled text block. It never fails and
	// never returns an empty string.
	FormatOutput(items []Item) string
}

// Spec is the static descriptor of one configured source.
type Spec struct {
	Name        string
	Kind        string
	Topics      []string
	Description string
	Banner      string
	Options     Options
}

// Options holds kind-specific settings as decoded from configuration.
type Options map[string]any

// String returns the option as a trimmed string, or "" when absent.
func (o Options) String(key string) string {
	v, ok := o[key]
	if !ok || v == nil {
		return ""
	}
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	default:
		return strings.TrimSpace(fmt.Sprint(t))
	}
}

// Int returns the option as an int, or def when absent or malformed.
func (o Options) Int(key string, def int) int {
	v, ok := o[key]
	if !ok || v == nil {
		return def
	}
	switch t := v.(type) {
	case int:
		return t
	case int64:
		return int(t)
	case float64:
		return int(t)
	case string:
		if n, err := strconv.Atoi(strings.TrimSpace(t)); err == nil {
			return n
		}
	}
	return def
}

// Bool returns the option as a bool, or def when absent or malformed.
func (o Options) Bool(key string, def bool) bool {
	v, ok := o[key]
	if !ok || v == nil {
		return def
	}
	switch t := v.(type) {
	case bool:
		return t
	case string:
		if b, err := strconv.ParseBool(strings.TrimSpace(t)); err == nil {
			return b
		}
	}
	return def
}

// Require returns the named string option or a ConfigError.
func (o Options) Require(source, key string) (string, error) {
	v := o.String(key)
	if v == "" {
		return "", &ConfigError{Source: source, Key: key, Reason: "is required"}
	}
	return v, nil
}

const (
	defaultFetchTimeout = 30 * time.Second
	defaultUserAgent    = "Mozilla/5.0 (compatible; researchpulse/1.0; +https://github.com/ppiankov/researchpulse)"
)

// Deps carries the collaborators shared by adapters built together.
type Deps struct {
	Client    *http.Client
	UserAgent string
	Now       func() time.Time
	Logger    *slog.Logger
	Pacer     *Pacer
}

func (d Deps) withDefaults() Deps {
	if d.Client == nil {
		d.Client = &http.Client{Timeout: defaultFetchTimeout}
	}
	if d.UserAgent == "" {
		d.UserAgent = defaultUserAgent
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Pacer == nil {
		d.Pacer = NewPacer()
	}
	return d
}
