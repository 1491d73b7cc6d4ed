package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"serpetl/internal/config"
	"serpetl/internal/metrics"
	"serpetl/internal/metrics/datadog"
	"serpetl/internal/storage"
)

// samplePage is a minimal Google result page with one organic record.
const samplePage = `<html><body>
<div id="resultStats">About 1,230 results</div>
<div id="center_col">
  <div class="g">
    <h3 class="r"><a href="/url?q=http://example.com/cats&amp;sa=U&amp;ei=abc">Cats are great</a></h3>
    <div class="s"><span class="st">All about cats.</span></div>
    <cite>example.com/cats</cite>
  </div>
</div>
</body></html>`

// fakeRepo is a deterministic repository used by CLI tests. It records the
// pages it was asked to save, in call order, and is concurrency-safe so
// tests can run with -race.
type fakeRepo struct {
	saveErr error

	mu      sync.Mutex
	ensured int
	saved   []*storage.Serp
	closed  int
}

func (r *fakeRepo) EnsureSchema(ctx context.Context) error {
	r.mu.Lock()
	r.ensured++
	r.mu.Unlock()
	return nil
}

func (r *fakeRepo) SaveSerp(ctx context.Context, s *storage.Serp) error {
	if r.saveErr != nil {
		return r.saveErr
	}
	r.mu.Lock()
	r.saved = append(r.saved, s)
	r.mu.Unlock()
	return nil
}

func (r *fakeRepo) Close() {
	r.mu.Lock()
	r.closed++
	r.mu.Unlock()
}

// fakeMetricsBackend is a deterministic metrics backend for the initMetrics
// tests.
type fakeMetricsBackend struct {
	closeErr error
	closed   atomic.Int64
}

func (b *fakeMetricsBackend) IncCounter(string, float64, metrics.Labels)       {}
func (b *fakeMetricsBackend) ObserveHistogram(string, float64, metrics.Labels) {}
func (b *fakeMetricsBackend) Flush() error                                     { return nil }

func (b *fakeMetricsBackend) Close() error {
	b.closed.Add(1)
	return b.closeErr
}

// newPipelineDir writes a page directory holding pages.json plus the given
// page files and returns its path.
func newPipelineDir(t *testing.T, manifest string, pages map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "pages.json"), []byte(manifest), 0o600); err != nil {
		t.Fatalf("write manifest: %v", err)
	}
	for name, html := range pages {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(html), 0o600); err != nil {
			t.Fatalf("write page %s: %v", name, err)
		}
	}
	return dir
}

// validPipeline returns a pipeline whose filesystem references exist, so
// ValidatePipeline reports no errors.
func validPipeline(t *testing.T) config.Pipeline {
	t.Helper()
	var p config.Pipeline
	p.Job = "serp_batch"
	p.Source.Dir = newPipelineDir(t, `{"pages":[]}`, nil)
	p.Source.Manifest = "pages.json"
	p.Parse.Engine = "google"
	p.Parse.SearchType = "normal"
	p.Storage.Kind = "sqlite"
	p.Storage.DSN = "file:unused.db"
	p.Scrape.ScrapeID = "s-1"
	return p
}

func TestRunMain_UsageErrors(t *testing.T) {
	t.Parallel()

	// This test verifies the CLI's "usage error" contract:
	//   - exit code is 2
	//   - stderr contains a helpful message
	//   - no side effects occur (no config reads, no metrics init, no storage)
	tests := []struct {
		name          string
		args          []string
		wantStderrSub string
	}{
		{"missing_config_flag", []string{}, "usage: serp_etl -config"},
		{"empty_config_value", []string{"-config", "   "}, "usage: serp_etl -config"},
		{"unknown_flag", []string{"-nope"}, "flag provided but not defined"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			var stdout, stderr bytes.Buffer

			// Each seam fatals if called, proving usage failures
			// short-circuit before any side effects occur.
			code := runMain(context.Background(), tc.args, &stdout, &stderr, appDeps{
				loadConfig: func(string) (config.Pipeline, error) {
					t.Fatalf("loadConfig must not be called on usage errors")
					return config.Pipeline{}, nil
				},
				loadPages: func(string) ([]config.PageSpec, error) {
					t.Fatalf("loadPages must not be called on usage errors")
					return nil, nil
				},
				readPage: func(string) ([]byte, error) {
					t.Fatalf("readPage must not be called on usage errors")
					return nil, nil
				},
				openRepo: func(context.Context, storage.Config) (storage.Repository, error) {
					t.Fatalf("openRepo must not be called on usage errors")
					return nil, nil
				},
				initMetrics: func(context.Context, config.Pipeline, string) (func(), error) {
					t.Fatalf("initMetrics must not be called on usage errors")
					return func() {}, nil
				},
			})

			if code != 2 {
				t.Fatalf("exit code=%d, want 2; stderr=%q", code, stderr.String())
			}
			if !strings.Contains(stderr.String(), tc.wantStderrSub) {
				t.Fatalf("stderr=%q, want contains %q", stderr.String(), tc.wantStderrSub)
			}
			if stdout.Len() != 0 {
				t.Fatalf("stdout=%q, want empty", stdout.String())
			}
		})
	}
}

// TestRunMain_ValidateFlow verifies -validate prints the issue list and
// exits without touching metrics or storage, on both the valid and the
// invalid path.
func TestRunMain_ValidateFlow(t *testing.T) {
	t.Parallel()

	fatalDeps := func(t *testing.T, p config.Pipeline) appDeps {
		return appDeps{
			loadConfig: func(path string) (config.Pipeline, error) {
				if path != "cfg.json" {
					t.Fatalf("loadConfig path=%q, want %q", path, "cfg.json")
				}
				return p, nil
			},
			loadPages: func(string) ([]config.PageSpec, error) {
				t.Fatalf("loadPages must not be called in validate mode")
				return nil, nil
			},
			initMetrics: func(context.Context, config.Pipeline, string) (func(), error) {
				t.Fatalf("initMetrics must not be called in validate mode")
				return func() {}, nil
			},
		}
	}

	t.Run("valid", func(t *testing.T) {
		t.Parallel()

		var stdout, stderr bytes.Buffer
		code := runMain(context.Background(),
			[]string{"-config", "cfg.json", "-validate"},
			&stdout, &stderr, fatalDeps(t, validPipeline(t)))

		if code != 0 {
			t.Fatalf("exit code=%d, want 0; stderr=%q", code, stderr.String())
		}
		if !strings.Contains(stderr.String(), "Configuration is valid") {
			t.Fatalf("stderr=%q, want contains %q", stderr.String(), "Configuration is valid")
		}
	})

	t.Run("invalid", func(t *testing.T) {
		t.Parallel()

		p := validPipeline(t)
		p.Source.Dir = ""

		var stdout, stderr bytes.Buffer
		code := runMain(context.Background(),
			[]string{"-config", "cfg.json", "-validate"},
			&stdout, &stderr, fatalDeps(t, p))

		if code != 1 {
			t.Fatalf("exit code=%d, want 1; stderr=%q", code, stderr.String())
		}
		if !strings.Contains(stderr.String(), "error: source.dir") {
			t.Fatalf("stderr=%q, want the issue line", stderr.String())
		}
		if !strings.Contains(stderr.String(), "Configuration is invalid") {
			t.Fatalf("stderr=%q, want contains %q", stderr.String(), "Configuration is invalid")
		}
	})
}

// TestRunMain_FullFlow validates error precedence (load config -> init
// metrics -> run) and cleanup ownership: the metrics cleanup runs exactly
// once whenever initMetrics succeeded.
func TestRunMain_FullFlow(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name             string
		loadConfigErr    error
		initMetricsErr   error
		loadPagesErr     error
		wantCode         int
		wantStderrSub    string
		wantStdout       string
		wantPagesCalls   int64
		wantCleanupCalls int64
	}{
		{
			name:          "load_config_error",
			loadConfigErr: errors.New("no such file"),
			wantCode:      1,
			wantStderrSub: "load config:",
		},
		{
			name:           "init_metrics_error",
			initMetricsErr: errors.New("metrics unavailable"),
			wantCode:       1,
			wantStderrSub:  "init metrics:",
		},
		{
			name:             "pipeline_error_runs_cleanup",
			loadPagesErr:     errors.New("manifest gone"),
			wantCode:         1,
			wantStderrSub:    "run:",
			wantPagesCalls:   1,
			wantCleanupCalls: 1,
		},
		{
			name:             "success_empty_manifest",
			wantCode:         0,
			wantStderrSub:    "no pages",
			wantStdout:       "ok\n",
			wantPagesCalls:   1,
			wantCleanupCalls: 1,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			p := validPipeline(t)

			var (
				pagesCalls   atomic.Int64
				cleanupCalls atomic.Int64
			)
			deps := appDeps{
				loadConfig: func(string) (config.Pipeline, error) {
					if tc.loadConfigErr != nil {
						return config.Pipeline{}, tc.loadConfigErr
					}
					return p, nil
				},
				loadPages: func(string) ([]config.PageSpec, error) {
					pagesCalls.Add(1)
					if tc.loadPagesErr != nil {
						return nil, tc.loadPagesErr
					}
					return nil, nil
				},
				readPage: func(string) ([]byte, error) {
					t.Errorf("readPage must not be called in this flow")
					return nil, nil
				},
				openRepo: func(context.Context, storage.Config) (storage.Repository, error) {
					t.Errorf("openRepo must not be called in this flow")
					return nil, nil
				},
				initMetrics: func(_ context.Context, got config.Pipeline, backendName string) (func(), error) {
					// Assumption: config and resolved backend name are
					// forwarded unchanged.
					if got.Job != p.Job {
						t.Errorf("initMetrics job=%q, want %q", got.Job, p.Job)
					}
					if backendName != "none" {
						t.Errorf("initMetrics backend=%q, want %q", backendName, "none")
					}
					if tc.initMetricsErr != nil {
						return func() {}, tc.initMetricsErr
					}
					return func() { cleanupCalls.Add(1) }, nil
				},
			}

			var stdout, stderr bytes.Buffer
			code := runMain(
				context.Background(),
				[]string{"-config", "cfg.json", "-metrics-backend", "none"},
				&stdout, &stderr, deps,
			)

			if code != tc.wantCode {
				t.Fatalf("exit code=%d, want %d; stderr=%q", code, tc.wantCode, stderr.String())
			}
			if tc.wantStderrSub != "" && !strings.Contains(stderr.String(), tc.wantStderrSub) {
				t.Fatalf("stderr=%q, want contains %q", stderr.String(), tc.wantStderrSub)
			}
			if got := stdout.String(); got != tc.wantStdout {
				t.Fatalf("stdout=%q, want %q", got, tc.wantStdout)
			}
			if got := pagesCalls.Load(); got != tc.wantPagesCalls {
				t.Fatalf("loadPages calls=%d, want %d", got, tc.wantPagesCalls)
			}
			if got := cleanupCalls.Load(); got != tc.wantCleanupCalls {
				t.Fatalf("cleanup calls=%d, want %d", got, tc.wantCleanupCalls)
			}
		})
	}
}

// TestRunMain_StoresInManifestOrder runs a three-page batch end to end
// (real config file, real manifest, real page files, fake repository) and
// verifies the outcomes are stored and exported in manifest order even
// though three workers race to parse them.
func TestRunMain_StoresInManifestOrder(t *testing.T) {
	t.Parallel()

	manifest := `{"pages":[
		{"file":"a.html","query":"alpha","page_number":2},
		{"file":"b.html","query":"beta"},
		{"file":"c.html","query":"gamma"}
	]}`
	srcDir := newPipelineDir(t, manifest, map[string]string{
		"a.html": samplePage,
		"b.html": samplePage,
		"c.html": samplePage,
	})
	outDir := t.TempDir()

	cfgPath := filepath.Join(t.TempDir(), "pipeline.json")
	cfgJSON := fmt.Sprintf(`{
		"job": "serp_batch",
		"source": {"dir": %q, "manifest": "pages.json"},
		"parse": {"engine": "google", "search_type": "normal"},
		"runtime": {"parse_workers": 3, "channel_buffer": 2},
		"storage": {"kind": "sqlite", "dsn": "file:unused.db"},
		"export": {"dir": %q, "bucket": "serp-loads"},
		"scrape": {"scrape_id": "s-42", "project_id": "p-7", "requested_by": "tester"}
	}`, srcDir, outDir)
	if err := os.WriteFile(cfgPath, []byte(cfgJSON), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	repo := &fakeRepo{}
	var cleanups atomic.Int64
	deps := appDeps{
		loadConfig: config.Load,
		loadPages:  config.LoadPages,
		readPage:   os.ReadFile,
		openRepo: func(_ context.Context, cfg storage.Config) (storage.Repository, error) {
			if cfg.Kind != "sqlite" || cfg.DSN != "file:unused.db" {
				t.Errorf("openRepo cfg=%+v", cfg)
			}
			return repo, nil
		},
		initMetrics: func(context.Context, config.Pipeline, string) (func(), error) {
			return func() { cleanups.Add(1) }, nil
		},
	}

	var stdout, stderr bytes.Buffer
	code := runMain(
		context.Background(),
		[]string{"-config", cfgPath, "-metrics-backend", "none"},
		&stdout, &stderr, deps,
	)
	if code != 0 {
		t.Fatalf("exit code=%d, want 0; stderr=%q", code, stderr.String())
	}
	if stdout.String() != "ok\n" {
		t.Fatalf("stdout=%q, want %q", stdout.String(), "ok\n")
	}

	if repo.ensured != 1 {
		t.Fatalf("EnsureSchema calls=%d, want 1", repo.ensured)
	}
	if len(repo.saved) != 3 {
		t.Fatalf("saved pages=%d, want 3", len(repo.saved))
	}
	wantQueries := []string{"alpha", "beta", "gamma"}
	for i, s := range repo.saved {
		if s.Query != wantQueries[i] {
			t.Fatalf("saved[%d].Query=%q, want %q (manifest order)", i, s.Query, wantQueries[i])
		}
		if s.SearchEngineName != "google" {
			t.Fatalf("saved[%d].SearchEngineName=%q", i, s.SearchEngineName)
		}
		if s.ScrapeMethod != "http" {
			t.Fatalf("saved[%d].ScrapeMethod=%q", i, s.ScrapeMethod)
		}
		if s.RequestedBy != "tester" {
			t.Fatalf("saved[%d].RequestedBy=%q", i, s.RequestedBy)
		}
		if len(s.Links) != 1 {
			t.Fatalf("saved[%d] links=%d, want 1", i, len(s.Links))
		}
		link := s.Links[0]
		if link.Link != "http://example.com/cats" || link.Domain != "example.com" {
			t.Fatalf("saved[%d] link=%q domain=%q", i, link.Link, link.Domain)
		}
		if link.ScrapeID != "s-42" || link.ProjectID != "p-7" {
			t.Fatalf("saved[%d] scrape_id=%q project_id=%q", i, link.ScrapeID, link.ProjectID)
		}
	}

	// The manifest's page_number fills in only when the page itself does
	// not reveal one; unknown stays the -1 sentinel.
	if repo.saved[0].PageNumber != 2 {
		t.Fatalf("saved[0].PageNumber=%d, want 2", repo.saved[0].PageNumber)
	}
	if repo.saved[1].PageNumber != -1 {
		t.Fatalf("saved[1].PageNumber=%d, want -1", repo.saved[1].PageNumber)
	}

	if repo.closed != 1 {
		t.Fatalf("repo Close calls=%d, want 1", repo.closed)
	}
	if cleanups.Load() != 1 {
		t.Fatalf("metrics cleanup calls=%d, want 1", cleanups.Load())
	}

	serpCSV, err := os.ReadFile(filepath.Join(outDir, "serp-s-42.csv"))
	if err != nil {
		t.Fatalf("read serp csv: %v", err)
	}
	if lines := strings.Count(string(serpCSV), "\n"); lines != 4 {
		t.Fatalf("serp csv lines=%d, want 4 (header + 3 pages)", lines)
	}
	loadManifest, err := os.ReadFile(filepath.Join(outDir, "serp-load-s-42.manifest.json"))
	if err != nil {
		t.Fatalf("read load manifest: %v", err)
	}
	if !strings.Contains(string(loadManifest), "s3://serp-loads/serp-s-42.csv") {
		t.Fatalf("load manifest=%s, want the bucket url", loadManifest)
	}

	if !strings.Contains(stderr.String(), "completed: pages=3 links=3 no_results=0") {
		t.Fatalf("stderr=%q, want the summary line", stderr.String())
	}
}

// TestRunMain_MissingPageFailsRun verifies the fail-fast contract: one
// unreadable page fails the whole batch with its name in the error.
func TestRunMain_MissingPageFailsRun(t *testing.T) {
	t.Parallel()

	manifest := `{"pages":[
		{"file":"a.html","query":"alpha"},
		{"file":"b.html","query":"beta"},
		{"file":"c.html","query":"gamma"}
	]}`
	srcDir := newPipelineDir(t, manifest, map[string]string{
		"a.html": samplePage,
		"c.html": samplePage,
	})

	p := validPipeline(t)
	p.Source.Dir = srcDir

	repo := &fakeRepo{}
	var stdout, stderr bytes.Buffer
	code := runMain(
		context.Background(),
		[]string{"-config", "cfg.json", "-metrics-backend", "none"},
		&stdout, &stderr, appDeps{
			loadConfig: func(string) (config.Pipeline, error) { return p, nil },
			loadPages:  config.LoadPages,
			readPage:   os.ReadFile,
			openRepo: func(context.Context, storage.Config) (storage.Repository, error) {
				return repo, nil
			},
			initMetrics: func(context.Context, config.Pipeline, string) (func(), error) {
				return func() {}, nil
			},
		},
	)

	if code != 1 {
		t.Fatalf("exit code=%d, want 1; stderr=%q", code, stderr.String())
	}
	if !strings.Contains(stderr.String(), "run: page b.html") {
		t.Fatalf("stderr=%q, want the failing page named", stderr.String())
	}
	if stdout.Len() != 0 {
		t.Fatalf("stdout=%q, want empty", stdout.String())
	}
	if repo.closed != 1 {
		t.Fatalf("repo Close calls=%d, want 1", repo.closed)
	}
}

// TestRunMain_SaveErrorFailsRun verifies a storage failure aborts the run
// with the page named. The writer stores in manifest order, so the first
// page is the one that fails.
func TestRunMain_SaveErrorFailsRun(t *testing.T) {
	t.Parallel()

	manifest := `{"pages":[{"file":"a.html","query":"alpha"}]}`
	srcDir := newPipelineDir(t, manifest, map[string]string{"a.html": samplePage})

	p := validPipeline(t)
	p.Source.Dir = srcDir

	repo := &fakeRepo{saveErr: errors.New("disk full")}
	var stdout, stderr bytes.Buffer
	code := runMain(
		context.Background(),
		[]string{"-config", "cfg.json", "-metrics-backend", "none"},
		&stdout, &stderr, appDeps{
			loadConfig: func(string) (config.Pipeline, error) { return p, nil },
			loadPages:  config.LoadPages,
			readPage:   os.ReadFile,
			openRepo: func(context.Context, storage.Config) (storage.Repository, error) {
				return repo, nil
			},
			initMetrics: func(context.Context, config.Pipeline, string) (func(), error) {
				return func() {}, nil
			},
		},
	)

	if code != 1 {
		t.Fatalf("exit code=%d, want 1; stderr=%q", code, stderr.String())
	}
	if !strings.Contains(stderr.String(), "save page a.html") {
		t.Fatalf("stderr=%q, want the save error named", stderr.String())
	}
	if !strings.Contains(stderr.String(), "disk full") {
		t.Fatalf("stderr=%q, want the underlying error", stderr.String())
	}
}

// The initMetrics tests below swap package seams and therefore must not run
// in parallel.

// TestInitMetrics_NoneLeavesGlobalStateAlone ensures the disabled backend
// never mutates the global metrics state.
func TestInitMetrics_NoneLeavesGlobalStateAlone(t *testing.T) {
	oldSet := setMetricsBackend
	t.Cleanup(func() { setMetricsBackend = oldSet })
	setMetricsBackend = func(metrics.Backend) {
		t.Fatalf("setMetricsBackend must not be called for none")
	}

	for _, name := range []string{"", "none"} {
		cleanup, err := initMetrics(context.Background(), config.Pipeline{}, name)
		if err != nil {
			t.Fatalf("initMetrics(%q) err=%v, want nil", name, err)
		}
		if cleanup == nil {
			t.Fatalf("initMetrics(%q) cleanup=nil, want non-nil", name)
		}
		cleanup()
	}
}

// TestInitMetrics_DatadogWiresBackendAndCloses verifies the datadog path:
// options are built from the pipeline config, the backend is wired into the
// global metrics package, and cleanup closes it exactly once without
// logging on success.
func TestInitMetrics_DatadogWiresBackendAndCloses(t *testing.T) {
	b := &fakeMetricsBackend{}

	var (
		gotOpts  datadog.Options
		setCalls int
		logged   bytes.Buffer
	)

	oldNew, oldSet, oldLog := newDatadogBackend, setMetricsBackend, logPrintf
	t.Cleanup(func() {
		newDatadogBackend, setMetricsBackend, logPrintf = oldNew, oldSet, oldLog
	})
	newDatadogBackend = func(_ context.Context, opts datadog.Options) (backendCloser, error) {
		gotOpts = opts
		return b, nil
	}
	setMetricsBackend = func(metrics.Backend) { setCalls++ }
	logPrintf = func(format string, v ...any) { fmt.Fprintf(&logged, format, v...) }

	p := config.Pipeline{Job: "serp_batch"}
	p.Metrics.Tags = "team:search,svc:serp"
	p.Metrics.FlushIntervalS = 20

	cleanup, err := initMetrics(context.Background(), p, "datadog")
	if err != nil {
		t.Fatalf("initMetrics err=%v, want nil", err)
	}

	if gotOpts.JobName != "serp_batch" {
		t.Fatalf("JobName=%q, want %q", gotOpts.JobName, "serp_batch")
	}
	if gotOpts.FlushEvery != 20*time.Second {
		t.Fatalf("FlushEvery=%v, want 20s", gotOpts.FlushEvery)
	}
	if len(gotOpts.Tags) != 2 || gotOpts.Tags[0] != "team:search" || gotOpts.Tags[1] != "svc:serp" {
		t.Fatalf("Tags=%v", gotOpts.Tags)
	}
	if setCalls != 1 {
		t.Fatalf("setMetricsBackend calls=%d, want 1", setCalls)
	}

	cleanup()
	if b.closed.Load() != 1 {
		t.Fatalf("backend closed=%d, want 1", b.closed.Load())
	}
	if logged.Len() != 0 {
		t.Fatalf("unexpected log output: %q", logged.String())
	}
}

// TestInitMetrics_DefaultJobName verifies the fallback job name and the
// short "dd" alias.
func TestInitMetrics_DefaultJobName(t *testing.T) {
	var gotOpts datadog.Options

	oldNew, oldSet := newDatadogBackend, setMetricsBackend
	t.Cleanup(func() { newDatadogBackend, setMetricsBackend = oldNew, oldSet })
	newDatadogBackend = func(_ context.Context, opts datadog.Options) (backendCloser, error) {
		gotOpts = opts
		return &fakeMetricsBackend{}, nil
	}
	setMetricsBackend = func(metrics.Backend) {}

	if _, err := initMetrics(context.Background(), config.Pipeline{}, "dd"); err != nil {
		t.Fatalf("initMetrics err=%v, want nil", err)
	}
	if gotOpts.JobName != "serp_etl" {
		t.Fatalf("JobName=%q, want %q", gotOpts.JobName, "serp_etl")
	}
}

// TestInitMetrics_CloseErrorIsLogged verifies cleanup logs Close failures
// instead of panicking or swallowing them; cleanup is best-effort flush.
func TestInitMetrics_CloseErrorIsLogged(t *testing.T) {
	b := &fakeMetricsBackend{closeErr: errors.New("flush failed")}

	var logged bytes.Buffer
	oldNew, oldSet, oldLog := newDatadogBackend, setMetricsBackend, logPrintf
	t.Cleanup(func() {
		newDatadogBackend, setMetricsBackend, logPrintf = oldNew, oldSet, oldLog
	})
	newDatadogBackend = func(context.Context, datadog.Options) (backendCloser, error) {
		return b, nil
	}
	setMetricsBackend = func(metrics.Backend) {}
	logPrintf = func(format string, v ...any) { fmt.Fprintf(&logged, format, v...) }

	cleanup, err := initMetrics(context.Background(), config.Pipeline{}, "datadog")
	if err != nil {
		t.Fatalf("initMetrics err=%v, want nil", err)
	}
	cleanup()

	if b.closed.Load() != 1 {
		t.Fatalf("backend closed=%d, want 1", b.closed.Load())
	}
	if !strings.Contains(logged.String(), "metrics: datadog close error") {
		t.Fatalf("log=%q, want contains close error prefix", logged.String())
	}
	if !strings.Contains(logged.String(), "flush failed") {
		t.Fatalf("log=%q, want contains underlying error", logged.String())
	}
}

// TestInitMetrics_UnknownBackendErrors verifies an unknown backend fails
// fast with a clear message and a safe no-op cleanup.
func TestInitMetrics_UnknownBackendErrors(t *testing.T) {
	cleanup, err := initMetrics(context.Background(), config.Pipeline{}, "nope")
	if err == nil {
		t.Fatalf("initMetrics err=nil, want error")
	}
	if cleanup == nil {
		t.Fatalf("cleanup=nil, want non-nil")
	}
	cleanup()

	if !strings.Contains(err.Error(), "unknown metrics backend") {
		t.Fatalf("err=%q, want contains %q", err.Error(), "unknown metrics backend")
	}
	if !strings.Contains(err.Error(), "none|datadog") {
		t.Fatalf("err=%q, want contains %q", err.Error(), "none|datadog")
	}
}

// BenchmarkRunMain_Validate measures the -validate orchestration path:
// flag parsing, config loading through the seam and the validation pass
// (which stats the source directory).
func BenchmarkRunMain_Validate(b *testing.B) {
	dir := b.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "pages.json"), []byte(`{"pages":[]}`), 0o600); err != nil {
		b.Fatalf("write manifest: %v", err)
	}
	var p config.Pipeline
	p.Job = "serp_batch"
	p.Source.Dir = dir
	p.Source.Manifest = "pages.json"
	p.Parse.Engine = "google"
	p.Storage.Kind = "sqlite"
	p.Storage.DSN = "file:unused.db"
	p.Scrape.ScrapeID = "s-1"

	deps := appDeps{
		loadConfig: func(string) (config.Pipeline, error) { return p, nil },
	}
	args := []string{"-config", "cfg.json", "-validate"}

	b.ReportAllocs()
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		var stdout, stderr bytes.Buffer
		if code := runMain(context.Background(), args, &stdout, &stderr, deps); code != 0 {
			b.Fatalf("code=%d, stderr=%q", code, stderr.String())
		}
	}
}
