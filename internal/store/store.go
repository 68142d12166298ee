// Package store persists assembled reports in SQLite so past runs can be
// listed, re-rendered and audited for source health.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/ppiankov/researchpulse/internal/dates"
	"github.com/ppiankov/researchpulse/internal/pulse"
	"github.com/ppiankov/researchpulse/internal/source"
)

// ErrNotFound is returned when a requested report does not exist.
var ErrNotFound = errors.New("report not found")

var errNotInitialized = errors.New("store is not initialized")

type Store struct {
	db *sql.DB
}

// ReportSummary is one row of the report history.
type ReportSummary struct {
	ID          string
	GeneratedAt time.Time
	DaysBack    int
	Sources     int
	Degraded    int
	Items       int
}

// SourceHealth aggregates how a source fared across stored reports.
type SourceHealth struct {
	Name      string
	Runs      int
	Degraded  int
	Items     int
	LastError string
	LastSeen  time.Time
}

func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("path is required")
	}

	dir := filepath.Dir(path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// PRAGMA foreign_keys is per connection.
	db.SetMaxOpenConns(1)

	ctx := context.Background()
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	if err := migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) ready(ctx context.Context) (context.Context, error) {
	if s == nil || s.db == nil {
		return nil, errNotInitialized
	}
	if ctx == nil {
		ctx = context.Background()
	}
	return ctx, nil
}

// SaveReport stores a report with its sources and items. Saving a report
// whose ID already exists replaces it.
func (s *Store) SaveReport(ctx context.Context, report pulse.Report) error {
	ctx, err := s.ready(ctx)
	if err != nil {
		return err
	}
	if strings.TrimSpace(report.ID) == "" {
		return errors.New("report id is required")
	}
	if report.GeneratedAt.IsZero() {
		return errors.New("generated_at is required")
	}

	return withTx(ctx, s.db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM reports WHERE id = ?", report.ID); err != nil {
			return fmt.Errorf("replace report: %w", err)
		}

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO reports (id, generated_at, days_back, overview, combined)
			VALUES (?, ?, ?, ?, ?)
		`,
			report.ID,
			formatTime(report.GeneratedAt),
			report.DaysBack,
			report.Overview,
			report.Combined,
		); err != nil {
			return fmt.Errorf("insert report: %w", err)
		}

		for pos, src := range report.Sources {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO report_sources (
					report_id, position, name, description, summary, formatted, banner_url, source_url, error
				) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
			`,
				report.ID,
				pos,
				src.Name,
				src.Description,
				src.Summary,
				src.Formatted,
				nullString(src.BannerURL),
				nullString(src.SourceURL),
				nullString(src.Error),
			); err != nil {
				return fmt.Errorf("insert source %s: %w", src.Name, err)
			}

			for i, item := range src.Items {
				published, precision := encodeDate(item.Published)
				if _, err := tx.ExecContext(ctx, `
					INSERT INTO report_items (
						report_id, source_position, position, title, summary, link, published, precision
					) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
				`,
					report.ID,
					pos,
					i,
					item.Title,
					item.Summary,
					item.Link,
					published,
					precision,
				); err != nil {
					return fmt.Errorf("insert item %d of %s: %w", i, src.Name, err)
				}
			}
		}
		return nil
	})
}

// GetReport loads a stored report. Sections are rebuilt from the sources.
func (s *Store) GetReport(ctx context.Context, id string) (pulse.Report, error) {
	ctx, err := s.ready(ctx)
	if err != nil {
		return pulse.Report{}, err
	}

	var (
		report      pulse.Report
		generatedAt string
	)
	err = s.db.QueryRowContext(ctx, `
		SELECT id, generated_at, days_back, overview, combined
		FROM reports
		WHERE id = ?
	`, id).Scan(&report.ID, &generatedAt, &report.DaysBack, &report.Overview, &report.Combined)
	if errors.Is(err, sql.ErrNoRows) {
		return pulse.Report{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return pulse.Report{}, fmt.Errorf("get report: %w", err)
	}
	report.GeneratedAt, err = parseTime(generatedAt)
	if err != nil {
		return pulse.Report{}, fmt.Errorf("parse generated_at: %w", err)
	}

	report.Sources, err = s.sourcesOf(ctx, id)
	if err != nil {
		return pulse.Report{}, err
	}
	if err := s.attachItems(ctx, id, report.Sources); err != nil {
		return pulse.Report{}, err
	}

	report.Sections = make([]string, len(report.Sources))
	for i, src := range report.Sources {
		report.Sections[i] = pulse.Section(src)
	}
	return report, nil
}

// LatestReport loads the most recently generated report.
func (s *Store) LatestReport(ctx context.Context) (pulse.Report, error) {
	ctx, err := s.ready(ctx)
	if err != nil {
		return pulse.Report{}, err
	}

	var id string
	err = s.db.QueryRowContext(ctx, "SELECT id FROM reports ORDER BY generated_at DESC LIMIT 1").Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return pulse.Report{}, ErrNotFound
	}
	if err != nil {
		return pulse.Report{}, fmt.Errorf("get latest report: %w", err)
	}
	return s.GetReport(ctx, id)
}

func (s *Store) sourcesOf(ctx context.Context, id string) ([]pulse.SourceResult, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT name, description, summary, formatted, banner_url, source_url, error
		FROM report_sources
		WHERE report_id = ?
		ORDER BY position ASC
	`, id)
	if err != nil {
		return nil, fmt.Errorf("get report sources: %w", err)
	}
	defer func() { _ = rows.Close() }()

	sources := []pulse.SourceResult{}
	for rows.Next() {
		src, err := scanSource(rows)
		if err != nil {
			return nil, err
		}
		sources = append(sources, src)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate report sources: %w", err)
	}
	return sources, nil
}

func (s *Store) attachItems(ctx context.Context, id string, sources []pulse.SourceResult) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT source_position, title, summary, link, published, precision
		FROM report_items
		WHERE report_id = ?
		ORDER BY source_position ASC, position ASC
	`, id)
	if err != nil {
		return fmt.Errorf("get report items: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for i := range sources {
		sources[i].Items = []source.Item{}
	}
	for rows.Next() {
		var (
			pos       int
			item      source.Item
			published sql.NullString
			precision string
		)
		if err := rows.Scan(&pos, &item.Title, &item.Summary, &item.Link, &published, &precision); err != nil {
			return fmt.Errorf("scan item: %w", err)
		}
		if pos < 0 || pos >= len(sources) {
			return fmt.Errorf("item refers to missing source position %d", pos)
		}
		item.Published, err = decodeDate(published, precision)
		if err != nil {
			return err
		}
		sources[pos].Items = append(sources[pos].Items, item)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate report items: %w", err)
	}
	return nil
}

// ListReports returns the newest reports first. A limit of zero or less
// returns all of them.
func (s *Store) ListReports(ctx context.Context, limit int) ([]ReportSummary, error) {
	ctx, err := s.ready(ctx)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = -1
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT r.id, r.generated_at, r.days_back,
			(SELECT COUNT(*) FROM report_sources s WHERE s.report_id = r.id) AS sources,
			(SELECT COUNT(*) FROM report_sources s WHERE s.report_id = r.id AND COALESCE(s.error, '') <> '') AS degraded,
			(SELECT COUNT(*) FROM report_items i WHERE i.report_id = r.id) AS items
		FROM reports r
		ORDER BY r.generated_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list reports: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []ReportSummary
	for rows.Next() {
		var (
			rs          ReportSummary
			generatedAt string
		)
		if err := rows.Scan(&rs.ID, &generatedAt, &rs.DaysBack, &rs.Sources, &rs.Degraded, &rs.Items); err != nil {
			return nil, fmt.Errorf("scan report summary: %w", err)
		}
		rs.GeneratedAt, err = parseTime(generatedAt)
		if err != nil {
			return nil, fmt.Errorf("parse generated_at: %w", err)
		}
		out = append(out, rs)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate reports: %w", err)
	}
	return out, nil
}

// SourceHealth reports per-source run and failure counts for reports
// generated at or after since, ordered by source name.
func (s *Store) SourceHealth(ctx context.Context, since time.Time) ([]SourceHealth, error) {
	ctx, err := s.ready(ctx)
	if err != nil {
		return nil, err
	}
	cutoff := formatTime(since)

	rows, err := s.db.QueryContext(ctx, `
		SELECT s.name,
			COUNT(*) AS runs,
			SUM(CASE WHEN COALESCE(s.error, '') <> '' THEN 1 ELSE 0 END) AS degraded,
			COALESCE(SUM(ic.n), 0) AS items,
			(
				SELECT s2.error
				FROM report_sources s2
				JOIN reports r2 ON r2.id = s2.report_id
				WHERE s2.name = s.name AND COALESCE(s2.error, '') <> '' AND r2.generated_at >= ?
				ORDER BY r2.generated_at DESC
				LIMIT 1
			) AS last_error,
			MAX(r.generated_at) AS last_seen
		FROM report_sources s
		JOIN reports r ON r.id = s.report_id
		LEFT JOIN (
			SELECT report_id, source_position, COUNT(*) AS n
			FROM report_items
			GROUP BY report_id, source_position
		) ic ON ic.report_id = s.report_id AND ic.source_position = s.position
		WHERE r.generated_at >= ?
		GROUP BY s.name
		ORDER BY s.name
	`, cutoff, cutoff)
	if err != nil {
		return nil, fmt.Errorf("get source health: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []SourceHealth
	for rows.Next() {
		var (
			h         SourceHealth
			lastError sql.NullString
			lastSeen  string
		)
		if err := rows.Scan(&h.Name, &h.Runs, &h.Degraded, &h.Items, &lastError, &lastSeen); err != nil {
			return nil, fmt.Errorf("scan source health: %w", err)
		}
		h.LastError = lastError.String
		h.LastSeen, err = parseTime(lastSeen)
		if err != nil {
			return nil, fmt.Errorf("parse last_seen: %w", err)
		}
		out = append(out, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate source health: %w", err)
	}
	return out, nil
}

// PruneOld deletes reports older than retainDays. Sources and items cascade.
func (s *Store) PruneOld(ctx context.Context, retainDays int) (int64, error) {
	ctx, err := s.ready(ctx)
	if err != nil {
		return 0, err
	}
	if retainDays <= 0 {
		return 0, nil
	}

	cutoff := formatTime(time.Now().AddDate(0, 0, -retainDays))

	var n int64
	err = withTx(ctx, s.db, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, "DELETE FROM reports WHERE generated_at < ?", cutoff)
		if err != nil {
			return fmt.Errorf("prune old reports: %w", err)
		}
		n, _ = res.RowsAffected()
		return nil
	})
	return n, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSource(scanner rowScanner) (pulse.SourceResult, error) {
	var (
		src                          pulse.SourceResult
		bannerURL, sourceURL, errVal sql.NullString
	)
	if err := scanner.Scan(
		&src.Name,
		&src.Description,
		&src.Summary,
		&src.Formatted,
		&bannerURL,
		&sourceURL,
		&errVal,
	); err != nil {
		return pulse.SourceResult{}, fmt.Errorf("scan source: %w", err)
	}
	src.BannerURL = bannerURL.String
	src.SourceURL = sourceURL.String
	src.Error = errVal.String
	return src, nil
}

// encodeDate splits a date into its stored text and precision. Unknown
// dates store NULL.
func encodeDate(d dates.Date) (sql.NullString, string) {
	switch d.Precision {
	case dates.Exact:
		return sql.NullString{String: formatTime(d.Time), Valid: true}, d.Precision.String()
	case dates.Year:
		return sql.NullString{String: strconv.Itoa(d.Time.Year()), Valid: true}, d.Precision.String()
	default:
		return sql.NullString{}, dates.Unknown.String()
	}
}

func decodeDate(published sql.NullString, precision string) (dates.Date, error) {
	if !published.Valid {
		return dates.Date{}, nil
	}
	switch precision {
	case dates.Exact.String():
		t, err := parseTime(published.String)
		if err != nil {
			return dates.Date{}, fmt.Errorf("parse published: %w", err)
		}
		return dates.At(t), nil
	case dates.Year.String():
		year, err := strconv.Atoi(published.String)
		if err != nil {
			return dates.Date{}, fmt.Errorf("parse published year: %w", err)
		}
		return dates.InYear(year), nil
	default:
		return dates.Date{}, nil
	}
}

func nullString(s string) sql.NullString {
	if strings.TrimSpace(s) == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// timeLayout is fixed width so stored timestamps sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	if ts, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return ts, nil
	}
	return time.Parse(time.RFC3339, value)
}
