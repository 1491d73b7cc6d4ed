package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"serpetl/internal/storage"
)

/*
Repo implements storage.Repository for Postgres.

Idempotency:
  - SaveSerp uses INSERT ... ON CONFLICT (id) DO NOTHING on the serp row.
    When the row already exists the link batch is skipped, so reprocessing
    the same page cannot duplicate records or fail a unique constraint.
*/
type Repo struct {
	pool *pgxpool.Pool
}

func init() {
	storage.Register("postgres", New)
}

// New creates a Postgres-backed Repo.
func New(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
	pool, err := pgxpool.New(ctx, cfg.DSN)
	if err != nil {
		return nil, err
	}
	return &Repo{pool: pool}, nil
}

// Close closes the connection pool.
func (r *Repo) Close() {
	r.pool.Close()
}

// EnsureSchema creates the serp and link tables if missing.
func (r *Repo) EnsureSchema(ctx context.Context) error {
	for _, ddl := range createTableSQL() {
		if _, err := r.pool.Exec(ctx, ddl); err != nil {
			return fmt.Errorf("postgres: ensure schema: %w", err)
		}
	}
	return nil
}

// SaveSerp stores one page and its links in a single transaction.
func (r *Repo) SaveSerp(ctx context.Context, s *storage.Serp) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	q, args := buildInsertSerpSQL(s)
	cmd, err := tx.Exec(ctx, q, args...)
	if err != nil {
		return fmt.Errorf("postgres: insert serp %s: %w", s.ID, err)
	}
	if cmd.RowsAffected() == 0 {
		// Page already stored; nothing to add.
		return tx.Commit(ctx)
	}

	if len(s.Links) > 0 {
		q, args = buildInsertLinksSQL(s.Links)
		if _, err := tx.Exec(ctx, q, args...); err != nil {
			return fmt.Errorf("postgres: insert links for serp %s: %w", s.ID, err)
		}
	}
	return tx.Commit(ctx)
}

func pgIdent(id string) string {
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
  "requested_at" TIMESTAMPTZ,
  "requested_by" TEXT DEFAULT '127.0.0.1',
  "query" TEXT,
  "num_results_for_query" TEXT DEFAULT '',
  "num_results" INTEGER DEFAULT -1,
  "effective_query" TEXT DEFAULT '',
  "no_results" BOOLEAN DEFAULT FALSE
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
  "scrape_time" TIMESTAMPTZ,
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

// buildInsertSerpSQL constructs the serp INSERT and its args.
//
// Why this exists:
//   - It is pure and deterministic, so placeholder numbering and the ON
//     CONFLICT clause are unit-testable without a database.
func buildInsertSerpSQL(s *storage.Serp) (string, []any) {
	var b strings.Builder
	b.WriteString("INSERT INTO serp (")
	b.WriteString(joinIdentList(serpColumns))
	b.WriteString(") VALUES (")
	for i := range serpColumns {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "$%d", i+1)
	}
	b.WriteString(") ON CONFLICT (\"id\") DO NOTHING;")

	args := []any{
		s.ID, s.Status, s.SearchEngineName, s.ScrapeMethod, s.PageNumber,
		s.RequestedAt, s.RequestedBy, s.Query, s.NumResultsForQuery,
		s.NumResults, s.EffectiveQuery, s.NoResults,
	}
	return b.String(), args
}

func buildInsertLinksSQL(links []*storage.Link) (string, []any) {
	var b strings.Builder
	b.WriteString("INSERT INTO link (")
	b.WriteString(joinIdentList(linkColumns))
	b.WriteString(") VALUES ")

	args := make([]any, 0, len(links)*len(linkColumns))
	p := 1
	for i, l := range links {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString("(")
		for j := 0; j < len(linkColumns); j++ {
			if j > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "$%d", p)
			p++
		}
		b.WriteString(")")
		args = append(args,
			l.ID, l.Title, l.Snippet, l.Link, l.Domain, l.VisibleLink,
			l.ActualLink, l.Rank, l.LinkType, l.User, l.ProfileURL,
			l.ScrapeID, l.ProjectID, l.ScrapeTime, l.SerpID,
		)
	}
	b.WriteString(` ON CONFLICT ("id") DO NOTHING;`)
	return b.String(), args
}

func joinIdentList(columns []string) string {
	out := make([]string, 0, len(columns))
	for _, c := range columns {
		out = append(out, pgIdent(c))
	}
	return strings.Join(out, ", ")
}
