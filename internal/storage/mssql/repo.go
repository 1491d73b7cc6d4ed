package mssql

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/microsoft/go-mssqldb"

	"serpetl/internal/storage"
)

// Repo implements storage.Repository for Microsoft SQL Server.
//
// Idempotency:
//   - SQL Server has no ON CONFLICT, so SaveSerp guards the serp insert
//     with IF NOT EXISTS and reads @@ROWCOUNT-equivalent RowsAffected to
//     decide whether the link batch still needs to run.
//
// DDL:
//   - Table creation is wrapped in IF OBJECT_ID guards, the idiomatic
//     create-if-missing form for SQL Server.
type Repo struct {
	db *sql.DB
}

func init() {
	storage.Register("mssql", New)
}

// New constructs a Repo using database/sql and the "sqlserver" driver.
// Connectivity is validated via PingContext.
func New(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
	db, err := sql.Open("sqlserver", cfg.DSN)
	if err != nil {
		return nil, err
	}

	// Conservative defaults for bursty batch loads.
	db.SetMaxOpenConns(64)
	db.SetMaxIdleConns(64)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Repo{db: db}, nil
}

// Close releases database resources held by this repository.
func (r *Repo) Close() {
	if r == nil || r.db == nil {
		return
	}
	_ = r.db.Close()
}

// EnsureSchema creates the serp and link tables if missing.
func (r *Repo) EnsureSchema(ctx context.Context) error {
	for _, ddl := range createTableSQL() {
		if _, err := r.db.ExecContext(ctx, ddl); err != nil {
			return fmt.Errorf("mssql: ensure schema: %w", err)
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
		return fmt.Errorf("mssql: insert serp %s: %w", s.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		// Page already stored; nothing to add.
		return tx.Commit()
	}

	if len(s.Links) > 0 {
		q, args = buildInsertLinksSQL(s.Links)
		if _, err := tx.ExecContext(ctx, q, args...); err != nil {
			return fmt.Errorf("mssql: insert links for serp %s: %w", s.ID, err)
		}
	}
	return tx.Commit()
}

func mssqlIdent(id string) string {
	return "[" + strings.ReplaceAll(id, "]", "]]") + "]"
}

// wrapCreateIfMissing wraps a CREATE TABLE statement in an OBJECT_ID guard.
func wrapCreateIfMissing(table, defs string) string {
	return fmt.Sprintf(
		"IF OBJECT_ID(N'%s', N'U') IS NULL BEGIN CREATE TABLE %s (%s); END;",
		table, mssqlIdent(table), defs,
	)
}

func createTableSQL() []string {
	return []string{
		wrapCreateIfMissing("serp", strings.Join([]string{
			"[id] NVARCHAR(64) PRIMARY KEY",
			"[status] NVARCHAR(64) NOT NULL DEFAULT 'successful'",
			"[search_engine_name] NVARCHAR(128)",
			"[scrape_method] NVARCHAR(64)",
			"[page_number] INT",
			"[requested_at] DATETIME2",
			"[requested_by] NVARCHAR(256) DEFAULT '127.0.0.1'",
			"[query] NVARCHAR(1024)",
			"[num_results_for_query] NVARCHAR(256) DEFAULT ''",
			"[num_results] INT DEFAULT -1",
			"[effective_query] NVARCHAR(1024) DEFAULT ''",
			"[no_results] BIT DEFAULT 0",
		}, ", ")),
		wrapCreateIfMissing("link", strings.Join([]string{
			"[id] NVARCHAR(64) PRIMARY KEY",
			"[title] NVARCHAR(1024)",
			"[snippet] NVARCHAR(MAX)",
			"[link] NVARCHAR(MAX)",
			"[domain] NVARCHAR(1024)",
			"[visible_link] NVARCHAR(2048)",
			"[actual_link] NVARCHAR(MAX)",
			"[rank] INT",
			"[link_type] NVARCHAR(64)",
			"[user] NVARCHAR(256)",
			"[profile_url] NVARCHAR(1024)",
			"[scrape_id] NVARCHAR(64)",
			"[project_id] NVARCHAR(64)",
			"[scrape_time] DATETIME2",
			"[serp_id] NVARCHAR(64) REFERENCES [serp]([id])",
		}, ", ")),
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

// buildInsertSerpSQL guards the insert with NOT EXISTS so a duplicate page
// id affects zero rows instead of failing the primary key. Pure, for tests.
func buildInsertSerpSQL(s *storage.Serp) (string, []any) {
	var b strings.Builder
	b.WriteString("INSERT INTO [serp] (")
	b.WriteString(joinIdentList(serpColumns))
	b.WriteString(") SELECT ")
	for i := range serpColumns {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "@p%d", i+1)
	}
	fmt.Fprintf(&b, " WHERE NOT EXISTS (SELECT 1 FROM [serp] WHERE [id] = @p%d);", len(serpColumns)+1)

	args := []any{
		s.ID, s.Status, s.SearchEngineName, s.ScrapeMethod, s.PageNumber,
		s.RequestedAt, s.RequestedBy, s.Query, s.NumResultsForQuery,
		s.NumResults, s.EffectiveQuery, s.NoResults,
		s.ID, // NOT EXISTS probe
	}
	return b.String(), args
}

func buildInsertLinksSQL(links []*storage.Link) (string, []any) {
	var b strings.Builder
	b.WriteString("INSERT INTO [link] (")
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
			fmt.Fprintf(&b, "@p%d", p)
			p++
		}
		b.WriteString(")")
		args = append(args,
			l.ID, l.Title, l.Snippet, l.Link, l.Domain, l.VisibleLink,
			l.ActualLink, l.Rank, l.LinkType, l.User, l.ProfileURL,
			l.ScrapeID, l.ProjectID, l.ScrapeTime, l.SerpID,
		)
	}
	b.WriteString(";")
	return b.String(), args
}

func joinIdentList(columns []string) string {
	out := make([]string, 0, len(columns))
	for _, c := range columns {
		out = append(out, mssqlIdent(c))
	}
	return strings.Join(out, ", ")
}
