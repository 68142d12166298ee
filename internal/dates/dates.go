// Package dates normalizes the heterogeneous date representations found in
// feeds, search APIs and scraped pages into a comparable value that keeps
// track of how much of the date is actually known.
package dates

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"
)

// Precision describes how much of a Date is known.
type Precision int

const (
	// Unknown means no usable date was found.
	Unknown Precision = iota
	// Year means only a four-digit year was given.
	Year
	// Exact means a full instant was parsed.
	Exact
)

func (p Precision) String() string {
	switch p {
	case Exact:
		return "exact"
	case Year:
		return "year"
	default:
		return "unknown"
	}
}

const displayLayout = "2006-01-02"

var (
	yearRe     = regexp.MustCompile(`^\d{4}$`)
	relativeRe = regexp.MustCompile(`^(\d+|an?|one)\s+(second|sec|minute|min|hour|hr|day|week|month|year)s?\s+ago$`)
)

// Date is the result of normalizing a date. The zero value is Unknown.
type Date struct {
	Time      time.Time
	Precision Precision
}

// At returns an Exact date for t.
func At(t time.Time) Date {
	if t.IsZero() {
		return Date{}
	}
	return Date{Time: t, Precision: Exact}
}

// InYear returns a year-only date.
func InYear(year int) Date {
	return Date{Time: time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC), Precision: Year}
}

// IsKnown reports whether any part of the date is known.
func (d Date) IsKnown() bool { return d.Precision != Unknown }

// String renders the date for report text.
func (d Date) String() string {
	switch d.Precision {
	case Exact:
		return d.Time.Format(displayLayout)
	case Year:
		return strconv.Itoa(d.Time.Year())
	default:
		return "Unknown date"
	}
}

// Normalize applies the resolution order: a structured timestamp wins, then
// the free-text form, then Unknown. now anchors relative phrases.
func Normalize(structured *time.Time, text string, now time.Time) Date {
	if structured != nil && !structured.IsZero() {
		return At(*structured)
	}
	return Parse(text, now)
}

// Parse interprets free-form date text. A bare four-digit year yields a Year
// date, relative phrases ("3 days ago") resolve against now, everything else
// goes through dateparse. Anything unparsable is Unknown, never now.
func Parse(text string, now time.Time) Date {
	s := strings.TrimSpace(text)
	if s == "" {
		return Date{}
	}

	if yearRe.MatchString(s) {
		year, _ := strconv.Atoi(s)
		return InYear(year)
	}

	if d, ok := parseRelative(strings.ToLower(s), now); ok {
		return d
	}

	t, err := dateparse.ParseIn(s, time.UTC)
	if err != nil {
		return Date{}
	}
	return At(t)
}

func parseRelative(s string, now time.Time) (Date, bool) {
	switch s {
	case "just now", "now", "today":
		return At(now), true
	case "yesterday":
		return At(now.Add(-24 * time.Hour)), true
	}

	m := relativeRe.FindStringSubmatch(s)
	if m == nil {
		return Date{}, false
	}

	n := 1
	if v, err := strconv.Atoi(m[1]); err == nil {
		n = v
	}

	switch m[2] {
	case "second", "sec":
		return At(now.Add(-time.Duration(n) * time.Second)), true
	case "minute", "min":
		return At(now.Add(-time.Duration(n) * time.Minute)), true
	case "hour", "hr":
		return At(now.Add(-time.Duration(n) * time.Hour)), true
	case "day":
		return At(now.AddDate(0, 0, -n)), true
	case "week":
		return At(now.AddDate(0, 0, -7*n)), true
	case "month":
		return At(now.AddDate(0, -n, 0)), true
	default:
		return At(now.AddDate(-n, 0, 0)), true
	}
}

// MarshalJSON encodes Exact dates as RFC 3339, Year dates as "YYYY" and
// Unknown dates as null.
func (d Date) MarshalJSON() ([]byte, error) {
	switch d.Precision {
	case Exact:
		return json.Marshal(d.Time.Format(time.RFC3339Nano))
	case Year:
		return json.Marshal(strconv.Itoa(d.Time.Year()))
	default:
		return []byte("null"), nil
	}
}

// UnmarshalJSON reverses MarshalJSON.
func (d *Date) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*d = Date{}
		return nil
	}

	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("decode date: %w", err)
	}
	if s == "" {
		*d = Date{}
		return nil
	}
	if yearRe.MatchString(s) {
		year, _ := strconv.Atoi(s)
		*d = InYear(year)
		return nil
	}

	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return fmt.Errorf("decode date %q: %w", s, err)
	}
	*d = At(t)
	return nil
}
