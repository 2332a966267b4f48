// Package metrics provides a small, backend-agnostic abstraction for
// recording operational metrics from the dataset pipeline.
//
// The package is intentionally minimal and opinionated:
//
//   - It exposes a narrow interface (Backend) focused on counters and
//     timing data (histograms).
//   - It provides a global, pluggable backend that defaults to a no-op
//     implementation, so metrics are always safe to call even when no
//     real backend is configured.
//   - Concrete metric systems stay isolated in subpackages; the rest of
//     the codebase depends only on this interface.
//
// The primary use case is instrumentation of the stage transitions
// (raw acquisition, interim normalization, processed merge) without
// coupling the pipeline logic to a specific metrics system.
package metrics

import "time"

// Labels are string key/value pairs attached to a metric.
type Labels map[string]string

// Backend is the minimal interface for metrics backends.
// It is intentionally generic so we can plug in Prometheus, Datadog, etc.
type Backend interface {
	// IncCounter increments a counter by delta.
	IncCounter(name string, delta float64, labels Labels)
	// ObserveHistogram records a value in a latency/duration style metric.
	ObserveHistogram(name string, value float64, labels Labels)
	// Flush pushes or flushes metrics, if the backend needs it (e.g. Pushgateway).
	Flush() error
}

// nopBackend is used by default so metrics are optional.
type nopBackend struct{}

func (nopBackend) IncCounter(name string, delta float64, labels Labels)       {}
func (nopBackend) ObserveHistogram(name string, value float64, labels Labels) {}
func (nopBackend) Flush() error                                               { return nil }

var backend Backend = nopBackend{}

// SetBackend installs a concrete backend. Passing nil keeps the existing backend.
func SetBackend(b Backend) {
	if b == nil {
		return
	}
	backend = b
}

// Flush delegates to the current backend.
func Flush() error {
	return backend.Flush()
}

// RecordStage measures one stage transition of one dataset: latency
// plus a success/failure counter.
func RecordStage(dataset, stage string, err error, d time.Duration) {
	status := "success"
	if err != nil {
		status = "failure"
	}

	lbls := Labels{
		"dataset": dataset,
		"stage":   stage,
		"status":  status,
	}

	backend.IncCounter("geoetl_stage_total", 1, lbls)
	backend.ObserveHistogram("geoetl_stage_duration_seconds", d.Seconds(), lbls)
}

// RecordRows counts rows flowing out of a stage for one dataset.
//
// Typical kinds:
//   - "normalized"
//   - "aggregated"
//   - "merged"
func RecordRows(dataset, kind string, delta int64) {
	if delta <= 0 {
		return
	}
	backend.IncCounter("geoetl_rows_total", float64(delta), Labels{
		"dataset": dataset,
		"kind":    kind,
	})
}

// RecordFiles counts files consumed or produced by a stage.
func RecordFiles(dataset, stage string, delta int64) {
	if delta <= 0 {
		return
	}
	backend.IncCounter("geoetl_files_total", float64(delta), Labels{
		"dataset": dataset,
		"stage":   stage,
	})
}
