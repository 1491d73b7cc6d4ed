// Package metrics decouples pipeline instrumentation from any particular
// metrics vendor.
//
// The core parse code never emits metrics; only the pipeline layer (the CLIs)
// does, and it does so through this package. A process picks a backend once at
// startup with SetBackend; everything else calls the package-level helpers.
// The default backend discards everything, so library code can instrument
// unconditionally without configuration.
//
// Contract for backends:
//   - IncCounter and ObserveHistogram must be safe for concurrent use.
//   - Backends ignore non-positive counter deltas and negative histogram
//     values, so callers never need to guard.
//   - Flush pushes buffered data out; it may be a no-op for backends that
//     submit synchronously.
package metrics

import (
	"sync"
	"time"
)

// Labels carries the dimension tags attached to a metric observation.
type Labels map[string]string

// Backend is the minimal surface a metrics vendor has to provide.
type Backend interface {
	IncCounter(name string, delta float64, labels Labels)
	ObserveHistogram(name string, value float64, labels Labels)
	Flush() error
}

// nopBackend is the default: it drops everything.
type nopBackend struct{}

func (nopBackend) IncCounter(name string, delta float64, labels Labels)       {}
func (nopBackend) ObserveHistogram(name string, value float64, labels Labels) {}
func (nopBackend) Flush() error                                               { return nil }

var (
	mu      sync.RWMutex
	backend Backend = nopBackend{}
)

// SetBackend installs b as the process-wide metrics backend. Passing nil
// restores the discarding default, which is how tests detach a backend they
// installed.
func SetBackend(b Backend) {
	mu.Lock()
	defer mu.Unlock()
	if b == nil {
		backend = nopBackend{}
		return
	}
	backend = b
}

func current() Backend {
	mu.RLock()
	defer mu.RUnlock()
	return backend
}

// IncCounter adds delta to the named counter on the current backend.
func IncCounter(name string, delta float64, labels Labels) {
	current().IncCounter(name, delta, labels)
}

// ObserveHistogram records one sample of the named histogram on the current
// backend.
func ObserveHistogram(name string, value float64, labels Labels) {
	current().ObserveHistogram(name, value, labels)
}

// Flush asks the current backend to submit whatever it has buffered.
func Flush() error {
	return current().Flush()
}

// RecordPage records everything a single parsed page contributes:
//
//   - serp_pages_total{engine,status}, always
//   - serp_links_total{engine,result_type,keyword}, once per result type that
//     produced records
//   - serp_no_results_total{engine}, when the page reported no results
//   - serp_parse_duration_seconds{engine}
//
// linksByType is typically built from the outcome's result-type map; result
// types with zero records are skipped so empty slots never show up as series.
func RecordPage(engine, status, keyword string, linksByType map[string]int, noResults bool, parseDur time.Duration) {
	IncCounter("serp_pages_total", 1, Labels{"engine": engine, "status": status})

	for resultType, n := range linksByType {
		if n <= 0 {
			continue
		}
		IncCounter("serp_links_total", float64(n), Labels{
			"engine":      engine,
			"result_type": resultType,
			"keyword":     keyword,
		})
	}

	if noResults {
		IncCounter("serp_no_results_total", 1, Labels{"engine": engine})
	}

	ObserveHistogram("serp_parse_duration_seconds", parseDur.Seconds(), Labels{"engine": engine})
}

// RecordStore records the duration of one storage write, tagged with the
// repository kind ("sqlite", "postgres", "mssql").
func RecordStore(kind string, d time.Duration) {
	ObserveHistogram("serp_store_duration_seconds", d.Seconds(), Labels{"kind": kind})
}
