// Package config defines the two JSON documents the batch pipeline consumes:
// the pipeline config (what to parse, where to store, how to report) and the
// page manifest (the fetch collaborator's hand-off listing the HTML files of
// one scrape run). Validation reports issues instead of failing on the first
// problem, so an operator sees everything wrong with a config at once.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"serpetl/internal/engines"
	"serpetl/internal/serp"
)

// Pipeline is the top-level pipeline config document.
type Pipeline struct {
	Job     string        `json:"job"`
	Source  Source        `json:"source"`
	Parse   Parse         `json:"parse"`
	Runtime RuntimeConfig `json:"runtime"`
	Storage Storage       `json:"storage"`
	Metrics Metrics       `json:"metrics"`
	Export  Export        `json:"export"`
	Scrape  Scrape        `json:"scrape"`
}

// Source names the page directory and the manifest inside it.
type Source struct {
	Dir      string `json:"dir"`
	Manifest string `json:"manifest"`
}

// Parse carries the per-run parse defaults; individual manifest pages may
// override both fields.
type Parse struct {
	Engine     string `json:"engine"`
	SearchType string `json:"search_type"`
}

// RuntimeConfig controls pipeline execution behavior.
type RuntimeConfig struct {
	ParseWorkers  int `json:"parse_workers"`
	ChannelBuffer int `json:"channel_buffer"`
}

// Storage selects the repository backend: "sqlite" | "postgres" | "mssql".
// An empty kind disables persistence for the run.
type Storage struct {
	Kind string `json:"kind"`
	DSN  string `json:"dsn"`
}

// Metrics selects the metrics backend: "datadog" | "none" | "".
type Metrics struct {
	Backend        string `json:"backend"`
	FlushIntervalS int    `json:"flush_interval_s"`
	Tags           string `json:"tags"`
}

// Export enables CSV export when Dir is set. Bucket, when set, is used for
// the s3:// URLs written into the load manifest.
type Export struct {
	Dir    string `json:"dir"`
	Bucket string `json:"bucket"`
}

// Scrape identifies the scrape run the pages belong to.
type Scrape struct {
	ScrapeID    string `json:"scrape_id"`
	ProjectID   string `json:"project_id"`
	RequestedBy string `json:"requested_by"`
}

// Load reads and decodes a pipeline config file.
func Load(path string) (Pipeline, error) {
	f, err := os.Open(path)
	if err != nil {
		return Pipeline{}, fmt.Errorf("open config: %w", err)
	}
	defer f.Close()

	var p Pipeline
	if err := json.NewDecoder(f).Decode(&p); err != nil {
		return Pipeline{}, fmt.Errorf("decode config: %w", err)
	}
	return p, nil
}

// ManifestPath resolves the page manifest location. Relative manifests live
// inside the source directory.
func (p Pipeline) ManifestPath() string {
	if filepath.IsAbs(p.Source.Manifest) {
		return p.Source.Manifest
	}
	return filepath.Join(p.Source.Dir, p.Source.Manifest)
}

// PagePath resolves a manifest file entry. Relative entries live inside the
// source directory.
func (p Pipeline) PagePath(file string) string {
	if filepath.IsAbs(file) {
		return file
	}
	return filepath.Join(p.Source.Dir, file)
}

// Severity classifies a validation issue. Errors block the run; warnings do
// not.
type Severity string

const (
	SeverityError Severity = "error"
	SeverityWarn  Severity = "warn"
)

// Issue is one validation finding, addressed by the JSON path of the field
// it concerns.
type Issue struct {
	Severity Severity
	Path     string
	Message  string
}

func errorf(path, format string, v ...any) Issue {
	return Issue{Severity: SeverityError, Path: path, Message: fmt.Sprintf(format, v...)}
}

func warnf(path, format string, v ...any) Issue {
	return Issue{Severity: SeverityWarn, Path: path, Message: fmt.Sprintf(format, v...)}
}

// ValidatePipeline checks a pipeline config and reports everything wrong
// with it. It stats the source directory and manifest, so it expects to run
// where the pipeline would run.
func ValidatePipeline(p Pipeline) []Issue {
	var issues []Issue

	if p.Job == "" {
		issues = append(issues, warnf("job", "job name is empty; metrics will carry the default job tag"))
	}

	if p.Source.Dir == "" {
		issues = append(issues, errorf("source.dir", "page directory is required"))
	} else if fi, err := os.Stat(p.Source.Dir); err != nil {
		issues = append(issues, errorf("source.dir", "%v", err))
	} else if !fi.IsDir() {
		issues = append(issues, errorf("source.dir", "%s is not a directory", p.Source.Dir))
	}

	if p.Source.Manifest == "" {
		issues = append(issues, errorf("source.manifest", "page manifest is required"))
	} else if p.Source.Dir != "" {
		if _, err := os.Stat(p.ManifestPath()); err != nil {
			issues = append(issues, errorf("source.manifest", "%v", err))
		}
	}

	var defaultEngine *engines.Engine
	switch p.Parse.Engine {
	case "":
		issues = append(issues, warnf("parse.engine", "no default engine; every page must carry an engine or a final_url"))
	default:
		e, err := engines.ByName(p.Parse.Engine)
		if err != nil {
			issues = append(issues, errorf("parse.engine", "%v", err))
		} else {
			defaultEngine = e
		}
	}

	if st := p.Parse.SearchType; st != "" && defaultEngine != nil {
		if !slices.Contains(defaultEngine.Schema.SupportedTypes, st) {
			issues = append(issues, errorf("parse.search_type", "engine %q does not support %q", defaultEngine.Name, st))
		}
	}

	if p.Runtime.ParseWorkers < 0 {
		issues = append(issues, errorf("runtime.parse_workers", "must be >= 0"))
	}
	if p.Runtime.ChannelBuffer < 0 {
		issues = append(issues, errorf("runtime.channel_buffer", "must be >= 0"))
	}

	if p.Storage.Kind == "" {
		issues = append(issues, warnf("storage.kind", "no storage backend; pages will not be persisted"))
	} else if p.Storage.DSN == "" {
		issues = append(issues, errorf("storage.dsn", "dsn is required when a storage backend is set"))
	}

	switch p.Metrics.Backend {
	case "", "none", "datadog":
	default:
		issues = append(issues, warnf("metrics.backend", "unknown backend %q; metrics will be disabled", p.Metrics.Backend))
	}
	if p.Metrics.FlushIntervalS < 0 {
		issues = append(issues, errorf("metrics.flush_interval_s", "must be >= 0"))
	}

	if p.Export.Dir == "" && p.Export.Bucket != "" {
		issues = append(issues, warnf("export.bucket", "bucket has no effect without export.dir"))
	}

	if p.Scrape.ScrapeID == "" {
		issues = append(issues, warnf("scrape.scrape_id", "empty; a fresh id will be generated per run"))
	}

	return issues
}

// HasErrors reports whether any issue in the list blocks the run.
func HasErrors(issues []Issue) bool {
	for _, iss := range issues {
		if iss.Severity == SeverityError {
			return true
		}
	}
	return false
}

// PageSpec is one entry of the page manifest. File and Query are required;
// the rest defaults from the pipeline's parse section.
type PageSpec struct {
	File       string `json:"file"`
	Query      string `json:"query"`
	Engine     string `json:"engine,omitempty"`
	FinalURL   string `json:"final_url,omitempty"`
	SearchType string `json:"search_type,omitempty"`
	PageNumber int    `json:"page_number,omitempty"`
}

type pageManifest struct {
	Pages []PageSpec `json:"pages"`
}

// LoadPages reads the page manifest. Pages without a file name are rejected
// here; everything else is resolved later, per page.
func LoadPages(path string) ([]PageSpec, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open page manifest: %w", err)
	}
	defer f.Close()

	var m pageManifest
	if err := json.NewDecoder(f).Decode(&m); err != nil {
		return nil, fmt.Errorf("decode page manifest: %w", err)
	}
	for i, pg := range m.Pages {
		if pg.File == "" {
			return nil, fmt.Errorf("page manifest: pages[%d] has no file", i)
		}
	}
	return m.Pages, nil
}

// ResolvePage fills a page's engine and search type from the pipeline
// defaults.
//
// Engine precedence: the page's own engine, then the engine behind the
// page's final_url, then parse.engine. A final_url nobody recognizes falls
// back to the default engine; it only surfaces as an error when there is no
// default to fall back to.
func (p Pipeline) ResolvePage(spec PageSpec) (PageSpec, error) {
	out := spec

	if out.Engine == "" && out.FinalURL != "" {
		e, err := engines.ByURL(out.FinalURL)
		if err == nil {
			out.Engine = e.Name
		} else if p.Parse.Engine == "" {
			return PageSpec{}, fmt.Errorf("page %s: %w", spec.File, err)
		}
	}
	if out.Engine == "" {
		out.Engine = p.Parse.Engine
	}
	if out.Engine == "" {
		return PageSpec{}, fmt.Errorf("page %s: no engine given and no default configured", spec.File)
	}

	if out.SearchType == "" {
		out.SearchType = p.Parse.SearchType
	}
	if out.SearchType == "" {
		out.SearchType = serp.SearchTypeNormal
	}

	return out, nil
}
