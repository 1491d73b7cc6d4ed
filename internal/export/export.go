// Package export writes stored pages out as CSV load files plus a JSON
// manifest, the hand-off format for copy-style bulk loaders. One run produces
// one serp file, one link file and one manifest listing both.
package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"serpetl/internal/storage"
)

// SerpColumns is the serp CSV column order. It matches the storage entity
// and the serp table DDL; loaders map columns by position.
var SerpColumns = []string{
	"id",
	"status",
	"search_engine_name",
	"scrape_method",
	"page_number",
	"requested_at",
	"requested_by",
	"query",
	"num_results_for_query",
	"num_results",
	"effective_query",
	"no_results",
}

// LinkColumns is the link CSV column order.
var LinkColumns = []string{
	"id",
	"title",
	"snippet",
	"link",
	"domain",
	"visible_link",
	"actual_link",
	"rank",
	"link_type",
	"user",
	"profile_url",
	"scrape_id",
	"project_id",
	"scrape_time",
	"serp_id",
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func serpRow(s *storage.Serp) []string {
	return []string{
		s.ID,
		s.Status,
		s.SearchEngineName,
		s.ScrapeMethod,
		strconv.Itoa(s.PageNumber),
		formatTime(s.RequestedAt),
		s.RequestedBy,
		s.Query,
		s.NumResultsForQuery,
		strconv.Itoa(s.NumResults),
		s.EffectiveQuery,
		strconv.FormatBool(s.NoResults),
	}
}

func linkRow(l *storage.Link) []string {
	return []string{
		l.ID,
		l.Title,
		l.Snippet,
		l.Link,
		l.Domain,
		l.VisibleLink,
		l.ActualLink,
		strconv.Itoa(l.Rank),
		l.LinkType,
		l.User,
		l.ProfileURL,
		l.ScrapeID,
		l.ProjectID,
		formatTime(l.ScrapeTime),
		l.SerpID,
	}
}

// WriteSerpCSV writes a header row followed by one row per page. Quoting is
// minimal, the way loaders expect it.
func WriteSerpCSV(w io.Writer, serps []*storage.Serp) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(SerpColumns); err != nil {
		return fmt.Errorf("write serp header: %w", err)
	}
	for _, s := range serps {
		if err := cw.Write(serpRow(s)); err != nil {
			return fmt.Errorf("write serp row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteLinkCSV writes a header row followed by one row per link.
func WriteLinkCSV(w io.Writer, links []*storage.Link) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(LinkColumns); err != nil {
		return fmt.Errorf("write link header: %w", err)
	}
	for _, l := range links {
		if err := cw.Write(linkRow(l)); err != nil {
			return fmt.Errorf("write link row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

type manifestEntry struct {
	URL string `json:"url"`
}

type manifest struct {
	Entries []manifestEntry `json:"entries"`
}

// Manifest builds the loader manifest for a set of exported file URLs.
func Manifest(urls ...string) ([]byte, error) {
	m := manifest{Entries: make([]manifestEntry, 0, len(urls))}
	for _, u := range urls {
		m.Entries = append(m.Entries, manifestEntry{URL: u})
	}
	return json.Marshal(m)
}

// Writer accumulates stored pages and writes them out in one go.
//
// When to use:
//   - The batch pipeline adds each stored page, then calls Flush once at the
//     end of the run.
//
// Edge cases:
//   - Flush with no pages added writes nothing and returns no paths.
//   - Bucket is optional; when set, manifest entries become s3://bucket/file
//     URLs, otherwise they are bare file names.
type Writer struct {
	dir      string
	bucket   string
	scrapeID string

	serps []*storage.Serp
	links []*storage.Link
}

// NewWriter returns a Writer that will place files into dir, named after
// scrapeID.
func NewWriter(dir, bucket, scrapeID string) *Writer {
	return &Writer{dir: dir, bucket: bucket, scrapeID: scrapeID}
}

// Add queues one stored page and its links for export.
func (w *Writer) Add(s *storage.Serp) {
	if s == nil {
		return
	}
	w.serps = append(w.serps, s)
	w.links = append(w.links, s.Links...)
}

// Pages returns how many pages have been queued.
func (w *Writer) Pages() int {
	return len(w.serps)
}

func (w *Writer) entryURL(name string) string {
	if w.bucket == "" {
		return name
	}
	return "s3://" + w.bucket + "/" + name
}

func (w *Writer) writeFile(name string, write func(io.Writer) error) (string, error) {
	path := filepath.Join(w.dir, name)
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create %s: %w", path, err)
	}
	if err := write(f); err != nil {
		f.Close()
		return "", err
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("close %s: %w", path, err)
	}
	return path, nil
}

// Flush writes the serp CSV, the link CSV and the manifest into the
// directory and returns the paths written, in that order.
func (w *Writer) Flush() ([]string, error) {
	if len(w.serps) == 0 {
		return nil, nil
	}
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return nil, fmt.Errorf("create export dir: %w", err)
	}

	serpFile := fmt.Sprintf("serp-%s.csv", w.scrapeID)
	linkFile := fmt.Sprintf("link-%s.csv", w.scrapeID)

	var paths []string

	p, err := w.writeFile(serpFile, func(f io.Writer) error {
		return WriteSerpCSV(f, w.serps)
	})
	if err != nil {
		return nil, err
	}
	paths = append(paths, p)

	p, err = w.writeFile(linkFile, func(f io.Writer) error {
		return WriteLinkCSV(f, w.links)
	})
	if err != nil {
		return nil, err
	}
	paths = append(paths, p)

	body, err := Manifest(w.entryURL(serpFile), w.entryURL(linkFile))
	if err != nil {
		return nil, fmt.Errorf("build manifest: %w", err)
	}
	p, err = w.writeFile(fmt.Sprintf("serp-load-%s.manifest.json", w.scrapeID), func(f io.Writer) error {
		_, werr := f.Write(body)
		return werr
	})
	if err != nil {
		return nil, err
	}
	paths = append(paths, p)

	return paths, nil
}
