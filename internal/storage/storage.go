// Package storage persists parsed result pages. A page becomes one serp row
// plus one link row per accepted record; backends for SQLite, Postgres and
// SQL Server register themselves under a kind string and are selected by
// configuration, never by import site.
package storage

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"serpetl/internal/serp"
)

// Defaults applied when the caller's Meta leaves the field empty.
const (
	DefaultStatus      = "successful"
	DefaultRequestedBy = "127.0.0.1"
)

// Meta carries the request-side facts about a page that the parse outcome
// cannot know: who asked for it, when, how, and under which scrape run.
type Meta struct {
	ScrapeID     string
	ProjectID    string
	EngineName   string
	ScrapeMethod string
	Status       string
	RequestedBy  string
	RequestedAt  time.Time
}

// Serp is one persisted result page.
type Serp struct {
	ID                 string
	Status             string
	SearchEngineName   string
	ScrapeMethod       string
	PageNumber         int
	RequestedAt        time.Time
	RequestedBy        string
	Query              string
	NumResultsForQuery string
	NumResults         int
	EffectiveQuery     string
	NoResults          bool

	Links []*Link
}

// Link is one persisted record of a page. ActualLink starts out equal to
// Link; a follow-up resolver may later replace it with the redirect target.
type Link struct {
	ID          string
	Title       string
	Snippet     string
	Link        string
	Domain      string
	VisibleLink string
	ActualLink  string
	Rank        int
	LinkType    string
	User        string
	ProfileURL  string
	ScrapeID    string
	ProjectID   string
	ScrapeTime  time.Time
	SerpID      string
}

// HasNoResultsForQuery reports the database-side emptiness signal: a zero
// accepted count or a rewritten query. It is deliberately separate from the
// per-engine NoResults flag, which encodes page markers the row does not
// keep.
func (s *Serp) HasNoResultsForQuery() bool {
	return s.NumResults == 0 || s.EffectiveQuery != ""
}

// FromOutcome flattens a parse outcome into a Serp aggregate ready for
// SaveSerp. Meta fields left empty fall back to the package defaults; ids
// are freshly generated.
func FromOutcome(o *serp.Outcome, meta Meta) *Serp {
	now := meta.RequestedAt
	if now.IsZero() {
		now = time.Now().UTC()
	}
	status := meta.Status
	if status == "" {
		status = DefaultStatus
	}
	requestedBy := meta.RequestedBy
	if requestedBy == "" {
		requestedBy = DefaultRequestedBy
	}

	s := &Serp{
		ID:                 uuid.NewString(),
		Status:             status,
		SearchEngineName:   meta.EngineName,
		ScrapeMethod:       meta.ScrapeMethod,
		PageNumber:         o.PageNumber,
		RequestedAt:        now,
		RequestedBy:        requestedBy,
		Query:              o.Query,
		NumResultsForQuery: o.NumResultsForQuery,
		NumResults:         o.NumResults,
		EffectiveQuery:     o.EffectiveQuery,
		NoResults:          o.NoResults,
	}

	for _, rec := range o.AllResults() {
		domain := rec.Get(serp.FieldDomain)
		if domain == "" {
			domain = serp.DomainOf(rec.Link())
		}
		s.Links = append(s.Links, &Link{
			ID:          uuid.NewString(),
			Title:       rec.Title(),
			Snippet:     rec.Snippet(),
			Link:        rec.Link(),
			Domain:      domain,
			VisibleLink: rec.VisibleLink(),
			ActualLink:  rec.Link(),
			Rank:        rec.Rank,
			LinkType:    rec.Type,
			User:        rec.Get(serp.FieldUser),
			ProfileURL:  rec.Get(serp.FieldProfileURL),
			ScrapeID:    meta.ScrapeID,
			ProjectID:   meta.ProjectID,
			ScrapeTime:  now,
			SerpID:      s.ID,
		})
	}
	return s
}

// Repository is the backend-agnostic persistence surface.
//
// IMPORTANT: SaveSerp must be idempotent on Serp.ID: re-saving an already
// stored page is a no-op, links included. Each backend implements that in
// its own idiomatic way (Postgres ON CONFLICT, SQLite OR IGNORE, SQL Server
// existence guard).
type Repository interface {
	// EnsureSchema creates the serp and link tables if missing. Safe to run
	// on every startup.
	EnsureSchema(ctx context.Context) error

	// SaveSerp stores one page and its links in a single transaction.
	SaveSerp(ctx context.Context, s *Serp) error

	// Close releases backend resources. Treat as "call once".
	Close()
}

// Config selects a backend.
//
// Edge cases:
//   - Kind must be non-empty and must match a registered backend kind.
//   - DSN is passed through to the backend factory; validation is
//     backend-specific.
type Config struct {
	Kind string
	DSN  string
}

type factory func(ctx context.Context, cfg Config) (Repository, error)

var (
	mu        sync.RWMutex
	factories = map[string]factory{}
)

// Register registers a backend under a kind (e.g. "postgres", "sqlite").
//
// When to use:
//   - Call Register from an init() function in a backend package.
//   - The kind string becomes the lookup key used by New.
//
// Panics:
//   - If kind is empty.
//   - If f is nil.
//   - If kind is already registered. Failing fast beats ambiguous backend
//     selection.
func Register(kind string, f factory) {
	mu.Lock()
	defer mu.Unlock()

	if kind == "" {
		panic("storage: Register called with empty kind")
	}
	if f == nil {
		panic("storage: Register called with nil factory")
	}
	if _, exists := factories[kind]; exists {
		panic(fmt.Sprintf("storage: factory already registered for kind=%q", kind))
	}

	factories[kind] = f
}

// New constructs a Repository using the registered backend factory.
//
// Concurrency:
//   - Safe for concurrent use with Register. New takes a read lock while
//     selecting the factory.
//
// Errors:
//   - Returns an error if cfg.Kind is empty or unsupported.
//   - Returns whatever error the registered factory returns.
func New(ctx context.Context, cfg Config) (Repository, error) {
	if cfg.Kind == "" {
		return nil, fmt.Errorf("storage: missing storage.kind")
	}

	mu.RLock()
	f := factories[cfg.Kind]
	mu.RUnlock()

	if f == nil {
		return nil, fmt.Errorf("unsupported storage.kind=%s", cfg.Kind)
	}
	return f(ctx, cfg)
}
