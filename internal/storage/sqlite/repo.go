package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"serpetl/internal/storage"
)

// Repo implements storage.Repository for SQLite.
//
// Key design points vs Postgres:
//   - SQLite has no native TIMESTAMPTZ type; timestamps are stored as
//     RFC3339Nano strings for reliable round-trip behavior and easy
//     debugging.
//   - Idempotency rides on INSERT OR IGNORE against the serp primary key:
//     when the page row turns out to exist already, the link rows are
//     skipped too.
type Repo struct {
	db *sql.DB
}

func init() {
	storage.Register("sqlite", New)
}

func New(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
	db, err := sql.Open("sqlite", cfg.DSN)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Repo{db: db}, nil
}

func (r *Repo) Close() { _ = r.db.Close() }

// EnsureSchema creates the serp and link tables. Idempotent, safe to run on
// every startup.
func (r *Repo) EnsureSchema(ctx context.Context) error {
	for _, ddl := range createTableSQL() {
		if _, err := r.db.ExecContext(ctx, ddl); err != nil {
			return fmt.Errorf("sqlite: ensure schema: %w", err)
		}
	}
	return nil
}

// SaveSerp stores one page and its links in a single transaction.
func (r *Repo) SaveSerp(ctx context.Context, s *storage.Serp) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	q, args := buildInsertSerpSQL(s)
	res, err := tx.ExecContext(ctx, q, args...)
	if err != nil {
		return fmt.Errorf("sqlite: insert serp %s: %w", s.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		// Page already stored; nothing to add.
		return tx.Commit()
	}

	if len(s.Links) > 0 {
		q, args = buildInsertLinksSQL(s.Links)
		if _, err := tx.ExecContext(ctx, q, args...); err != nil {
			return fmt.Errorf("sqlite: insert links for serp %s: %w", s.ID, err)
		}
	}
	return tx.Commit()
}

func sqlIdent(id string) string {
	// SQLite supports "quoted identifiers"
	return `"` + strings.ReplaceAll(id, `"`, `""`) + `"`
}

func createTableSQL() []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS serp (
  "id" TEXT PRIMARY KEY,
  "status" TEXT NOT NULL DEFAULT 'successful',
  "search_engine_name" TEXT,
  "scrape_method" TEXT,
  "page_number" INTEGER,
  "requested_at" TEXT,
  "requested_by" TEXT DEFAULT '127.0.0.1',
  "query" TEXT,
  "num_results_for_query" TEXT DEFAULT '',
  "num_results" INTEGER DEFAULT -1,
  "effective_query" TEXT DEFAULT '',
  "no_results" INTEGER DEFAULT 0
);`,
		`CREATE TABLE IF NOT EXISTS link (
  "id" TEXT PRIMARY KEY,
  "title" TEXT,
  "snippet" TEXT,
  "link" TEXT,
  "domain" TEXT,
  "visible_link" TEXT,
  "actual_link" TEXT,
  "rank" INTEGER,
  "link_type" TEXT,
  "user" TEXT,
  "profile_url" TEXT,
  "scrape_id" TEXT,
  "project_id" TEXT,
  "scrape_time" TEXT,
  "serp_id" TEXT REFERENCES serp(id)
);`,
	}
}

var serpColumns = []string{
	"id", "status", "search_engine_name", "scrape_method", "page_number",
	"requested_at", "requested_by", "query", "num_results_for_query",
	"num_results", "effective_query", "no_results",
}

var linkColumns = []string{
	"id", "title", "snippet", "link", "domain", "visible_link",
	"actual_link", "rank", "link_type", "user", "profile_url",
	"scrape_id", "project_id", "scrape_time", "serp_id",
}

// buildInsertSerpSQL is pure so placeholder counts and argument order stay
// unit-testable without a database.
func buildInsertSerpSQL(s *storage.Serp) (string, []any) {
	var b strings.Builder
	b.WriteString("INSERT OR IGNORE INTO serp (")
	b.WriteString(joinIdentList(serpColumns))
	b.WriteString(") VALUES (")
	b.WriteString(strings.TrimRight(strings.Repeat("?,", len(serpColumns)), ","))
	b.WriteString(");")

	args := []any{
		s.ID, s.Status, s.SearchEngineName, s.ScrapeMethod, s.PageNumber,
		formatTime(s.RequestedAt), s.RequestedBy, s.Query, s.NumResultsForQuery,
		s.NumResults, s.EffectiveQuery, boolInt(s.NoResults),
	}
	return b.String(), args
}

func buildInsertLinksSQL(links []*storage.Link) (string, []any) {
	var b strings.Builder
	b.WriteString("INSERT OR IGNORE INTO link (")
	b.WriteString(joinIdentList(linkColumns))
	b.WriteString(") VALUES ")

	placeholders := "(" + strings.TrimRight(strings.Repeat("?,", len(linkColumns)), ",") + ")"
	args := make([]any, 0, len(links)*len(linkColumns))
	for i, l := range links {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(placeholders)
		args = append(args,
			l.ID, l.Title, l.Snippet, l.Link, l.Domain, l.VisibleLink,
			l.ActualLink, l.Rank, l.LinkType, l.User, l.ProfileURL,
			l.ScrapeID, l.ProjectID, formatTime(l.ScrapeTime), l.SerpID,
		)
	}
	b.WriteString(";")
	return b.String(), args
}

func joinIdentList(columns []string) string {
	out := make([]string, 0, len(columns))
	for _, c := range columns {
		out = append(out, sqlIdent(c))
	}
	return strings.Join(out, ", ")
}

func boolInt(v bool) int {
	if v {
		return 1
	}
	return 0
}

// formatTime formats a time as RFC3339Nano in UTC. Stored as TEXT for
// reliable scanning with modernc.org/sqlite.
func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
