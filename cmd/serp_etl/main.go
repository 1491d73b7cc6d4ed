// Command serp_etl loads a batch of archived search result pages, parses
// them with the configured engines, stores the outcomes and optionally
// exports bulk-load CSV files.
//
// Usage:
//
//	serp_etl -config configs/pipelines/google.json
//	serp_etl -config configs/pipelines/google.json -validate
//	serp_etl -config configs/pipelines/google.json -metrics-backend none
//
// The pipeline config names a page directory, the page manifest (the
// hand-off format of the fetch side), parse defaults, a storage backend and
// optional metrics and export settings.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"serpetl/internal/config"
	"serpetl/internal/engines"
	"serpetl/internal/export"
	"serpetl/internal/metrics"
	"serpetl/internal/metrics/datadog"
	"serpetl/internal/serp"
	"serpetl/internal/storage"

	// register all backends with the storage factory; the config decides
	// which one a run actually uses.
	_ "serpetl/internal/storage/all"
)

// Defaults applied when the config leaves runtime knobs unset. The scrape
// method is a fixed label: every page this command sees was fetched over
// plain HTTP by the crawl side.
const (
	defaultParseWorkers  = 4
	defaultChannelBuffer = 64
	defaultScrapeMethod  = "http"
)

// backendCloser is the minimal interface used by this command to manage a
// metrics backend.
type backendCloser interface {
	metrics.Backend
	Close() error
}

// Package seams swapped by tests.
var (
	newDatadogBackend = func(ctx context.Context, opts datadog.Options) (backendCloser, error) {
		return datadog.NewBackend(ctx, opts)
	}
	setMetricsBackend = func(b metrics.Backend) { metrics.SetBackend(b) }
	logPrintf         = log.Printf
)

// appDeps are the external seams of the command.
//
// When to use:
//   - Unit tests: inject fake config sources, repositories and metrics.
//   - Alternate runtimes: swap the storage factory or page reader.
type appDeps struct {
	loadConfig  func(path string) (config.Pipeline, error)
	loadPages   func(path string) ([]config.PageSpec, error)
	readPage    func(path string) ([]byte, error)
	openRepo    func(ctx context.Context, cfg storage.Config) (storage.Repository, error)
	initMetrics func(ctx context.Context, p config.Pipeline, backendName string) (func(), error)
}

// main is intentionally small: it wires real dependencies and exits with a
// code.
func main() {
	os.Exit(runMain(context.Background(), os.Args[1:], os.Stdout, os.Stderr, appDeps{
		loadConfig:  config.Load,
		loadPages:   config.LoadPages,
		readPage:    os.ReadFile,
		openRepo:    storage.New,
		initMetrics: initMetrics,
	}))
}

// runMain executes the command and returns an exit code.
//
// Exit codes:
//   - 0: success.
//   - 1: config, storage or parse failure at runtime.
//   - 2: usage error.
func runMain(ctx context.Context, args []string, stdout, stderr io.Writer, d appDeps) int {
	fs := flag.NewFlagSet("serp_etl", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var (
		cfgPath           string
		validate          bool
		metricsBackendFlg string
	)
	fs.StringVar(&cfgPath, "config", "", "pipeline config JSON path")
	fs.BoolVar(&validate, "validate", false, "validate the configuration and exit")
	fs.StringVar(&metricsBackendFlg, "metrics-backend", "", "metrics backend override (none|datadog)")

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if strings.TrimSpace(cfgPath) == "" {
		fmt.Fprintln(stderr, "usage: serp_etl -config path/to/pipeline.json")
		return 2
	}

	logger := log.New(stderr, "", log.LstdFlags)

	p, err := d.loadConfig(cfgPath)
	if err != nil {
		fmt.Fprintf(stderr, "load config: %v\n", err)
		return 1
	}

	issues := config.ValidatePipeline(p)
	for _, iss := range issues {
		fmt.Fprintf(stderr, "%s: %s: %s\n", iss.Severity, iss.Path, iss.Message)
	}
	if config.HasErrors(issues) {
		logger.Printf("Configuration is invalid: %v", cfgPath)
		return 1
	}
	if validate {
		logger.Printf("Configuration is valid: %v", cfgPath)
		return 0
	}

	// Decide metrics backend: flag, then environment, then config.
	backendName := metricsBackendFlg
	if backendName == "" {
		backendName = os.Getenv("METRICS_BACKEND")
	}
	if backendName == "" {
		backendName = p.Metrics.Backend
	}
	cleanup, err := d.initMetrics(ctx, p, backendName)
	if err != nil {
		fmt.Fprintf(stderr, "init metrics: %v\n", err)
		return 1
	}
	defer cleanup()

	if err := runPipeline(ctx, p, d, logger); err != nil {
		fmt.Fprintf(stderr, "run: %v\n", err)
		return 1
	}

	fmt.Fprintln(stdout, "ok")
	return 0
}

// initMetrics wires the named metrics backend and returns its cleanup. The
// cleanup is always non-nil and safe to call, also on error.
func initMetrics(ctx context.Context, p config.Pipeline, backendName string) (func(), error) {
	switch backendName {
	case "", "none":
		// metrics disabled; the nop backend stays in place.
		return func() {}, nil

	case "datadog", "dd":
		jobName := p.Job
		if jobName == "" {
			jobName = "serp_etl"
		}
		b, err := newDatadogBackend(ctx, datadog.Options{
			JobName:    jobName,
			Tags:       datadog.ParseTagsCSV(p.Metrics.Tags),
			FlushEvery: time.Duration(p.Metrics.FlushIntervalS) * time.Second,
		})
		if err != nil {
			return func() {}, fmt.Errorf("datadog backend: %w", err)
		}
		setMetricsBackend(b)
		// Close stops the periodic flush loop and performs a final flush;
		// its failure is logged, never fatal.
		return func() {
			if err := b.Close(); err != nil {
				logPrintf("metrics: datadog close error: %v", err)
			}
		}, nil

	default:
		return func() {}, fmt.Errorf("unknown metrics backend %q (use none|datadog)", backendName)
	}
}

type pageJob struct {
	idx  int
	spec config.PageSpec
}

type pageResult struct {
	idx      int
	spec     config.PageSpec
	outcome  *serp.Outcome
	parseDur time.Duration
	err      error
}

// runPipeline executes one batch: parse the manifest pages on a worker
// pool, store and export them in manifest order, and log a summary. The
// first page failure cancels the run.
func runPipeline(ctx context.Context, p config.Pipeline, d appDeps, logger *log.Logger) error {
	start := time.Now()

	pages, err := d.loadPages(p.ManifestPath())
	if err != nil {
		return err
	}
	if len(pages) == 0 {
		logger.Printf("no pages in %s, nothing to do", p.ManifestPath())
		return nil
	}

	// Resolve every page before opening any backend so bad manifest entries
	// fail the run immediately.
	resolved := make([]config.PageSpec, len(pages))
	for i, pg := range pages {
		rp, err := p.ResolvePage(pg)
		if err != nil {
			return err
		}
		resolved[i] = rp
	}

	scrapeID := p.Scrape.ScrapeID
	if scrapeID == "" {
		scrapeID = uuid.NewString()
	}

	var repo storage.Repository
	if p.Storage.Kind != "" {
		r, err := d.openRepo(ctx, storage.Config{Kind: p.Storage.Kind, DSN: p.Storage.DSN})
		if err != nil {
			return fmt.Errorf("open storage: %w", err)
		}
		defer r.Close()
		if err := r.EnsureSchema(ctx); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
		repo = r
	}

	var exporter *export.Writer
	if p.Export.Dir != "" {
		exporter = export.NewWriter(p.Export.Dir, p.Export.Bucket, scrapeID)
	}

	workers := p.Runtime.ParseWorkers
	if workers <= 0 {
		workers = defaultParseWorkers
	}
	buffer := p.Runtime.ChannelBuffer
	if buffer <= 0 {
		buffer = defaultChannelBuffer
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Fail fast on the first page that cannot be parsed or stored.
	var (
		errMu    sync.Mutex
		firstErr error
	)
	fail := func(err error) {
		errMu.Lock()
		if firstErr == nil {
			firstErr = err
		}
		errMu.Unlock()
		cancel()
	}
	failed := func() bool {
		errMu.Lock()
		defer errMu.Unlock()
		return firstErr != nil
	}

	jobs := make(chan pageJob)
	results := make(chan pageResult, buffer)

	var stats struct {
		pages     int
		links     int
		noResults int
	}

	handle := func(r pageResult) {
		if failed() {
			return
		}
		if r.err != nil {
			fail(r.err)
			return
		}

		o := r.outcome
		s := storage.FromOutcome(o, storage.Meta{
			ScrapeID:     scrapeID,
			ProjectID:    p.Scrape.ProjectID,
			EngineName:   r.spec.Engine,
			ScrapeMethod: defaultScrapeMethod,
			RequestedBy:  p.Scrape.RequestedBy,
		})
		if repo != nil {
			t0 := time.Now()
			if err := repo.SaveSerp(ctx, s); err != nil {
				fail(fmt.Errorf("save page %s: %w", r.spec.File, err))
				return
			}
			metrics.RecordStore(p.Storage.Kind, time.Since(t0))
		}
		if exporter != nil {
			exporter.Add(s)
		}

		linksByType := make(map[string]int, len(o.Results))
		for resultType, recs := range o.Results {
			linksByType[resultType] = len(recs)
		}
		metrics.RecordPage(r.spec.Engine, s.Status, o.Query, linksByType, o.NoResults, r.parseDur)

		stats.pages++
		stats.links += len(s.Links)
		if o.NoResults {
			stats.noResults++
		}
	}

	// Single writer goroutine. Results arrive in completion order and are
	// reordered to manifest order before storing, so ids, ranks and export
	// rows are reproducible run to run.
	var writerWG sync.WaitGroup
	writerWG.Add(1)
	go func() {
		defer writerWG.Done()
		pending := make(map[int]pageResult, workers)
		next := 0
		for res := range results {
			pending[res.idx] = res
			for {
				r, ok := pending[next]
				if !ok {
					break
				}
				delete(pending, next)
				next++
				handle(r)
			}
		}
	}()

	// Workers.
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case job, ok := <-jobs:
					if !ok {
						return
					}
					res := parsePage(d, p, job)
					select {
					case <-ctx.Done():
						return
					case results <- res:
					}
				}
			}
		}()
	}

	// Producer.
	go func() {
		defer close(jobs)
		for i, spec := range resolved {
			select {
			case <-ctx.Done():
				return
			case jobs <- pageJob{idx: i, spec: spec}:
			}
		}
	}()

	wg.Wait()
	close(results)
	writerWG.Wait()

	errMu.Lock()
	err = firstErr
	errMu.Unlock()
	if err != nil {
		return err
	}

	if exporter != nil {
		paths, err := exporter.Flush()
		if err != nil {
			return fmt.Errorf("export: %w", err)
		}
		if len(paths) > 0 {
			logger.Printf("export: wrote %s", strings.Join(paths, ", "))
		}
	}

	_ = metrics.Flush()

	logger.Printf("completed: pages=%d links=%d no_results=%d in %s",
		stats.pages, stats.links, stats.noResults, time.Since(start).Truncate(time.Millisecond))
	return nil
}

// parsePage reads and parses one page. All failure modes (unreadable file,
// unknown engine, unsupported search type) surface as the result error.
func parsePage(d appDeps, p config.Pipeline, job pageJob) pageResult {
	res := pageResult{idx: job.idx, spec: job.spec}

	raw, err := d.readPage(p.PagePath(job.spec.File))
	if err != nil {
		res.err = fmt.Errorf("page %s: %w", job.spec.File, err)
		return res
	}
	e, err := engines.ByName(job.spec.Engine)
	if err != nil {
		res.err = fmt.Errorf("page %s: %w", job.spec.File, err)
		return res
	}

	t0 := time.Now()
	o, err := e.Parse(string(raw), job.spec.Query, job.spec.SearchType)
	res.parseDur = time.Since(t0)
	if err != nil {
		res.err = fmt.Errorf("page %s: %w", job.spec.File, err)
		return res
	}

	// The manifest's page number fills in when the page itself does not
	// reveal one.
	if o.PageNumber < 0 && job.spec.PageNumber > 0 {
		o.PageNumber = job.spec.PageNumber
	}
	res.outcome = o
	return res
}
