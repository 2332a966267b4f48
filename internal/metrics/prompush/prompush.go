// Package prompush implements a Prometheus Pushgateway backend for the
// metrics package.
//
// The pipeline is a batch process, not a long-lived server, so there is
// no scrape endpoint to expose: collectors accumulate in a private
// registry during the run and Flush pushes them to a Pushgateway once
// the stages finish. All Prometheus-specific dependencies stay in this
// package; the rest of the project only sees metrics.Backend.
package prompush

import (
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"

	"geoetl/internal/metrics"
)

// Config configures the Pushgateway backend.
type Config struct {
	// Gateway is the base URL of the Pushgateway, e.g.
	// "http://pushgateway:9091".
	Gateway string

	// Job is the Pushgateway job grouping. Defaults to "geoetl".
	Job string

	// Timeout bounds the push request. Zero means the default HTTP
	// client behavior.
	Timeout time.Duration
}

// Backend is a Prometheus Pushgateway metrics backend.
type Backend struct {
	cfg Config
	reg *prometheus.Registry

	stages        *prometheus.CounterVec // geoetl_stage_total
	stageDuration *prometheus.SummaryVec // geoetl_stage_duration_seconds
	rows          *prometheus.CounterVec // geoetl_rows_total
	files         *prometheus.CounterVec // geoetl_files_total
}

// New constructs a Pushgateway backend with the pipeline's collectors
// registered.
func New(cfg Config) (*Backend, error) {
	if cfg.Gateway == "" {
		return nil, fmt.Errorf("prompush: gateway URL is required")
	}
	if cfg.Job == "" {
		cfg.Job = "geoetl"
	}

	reg := prometheus.NewRegistry()

	stages := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "geoetl_stage_total",
			Help: "Stage executions, partitioned by dataset, stage, and status.",
		},
		[]string{"dataset", "stage", "status"},
	)
	stageDuration := prometheus.NewSummaryVec(
		prometheus.SummaryOpts{
			Name:       "geoetl_stage_duration_seconds",
			Help:       "Stage duration in seconds, partitioned by dataset, stage, and status.",
			Objectives: map[float64]float64{0.5: 0.05, 0.9: 0.01, 0.99: 0.001},
		},
		[]string{"dataset", "stage", "status"},
	)
	rows := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "geoetl_rows_total",
			Help: "Rows flowing out of a stage, partitioned by dataset and kind.",
		},
		[]string{"dataset", "kind"},
	)
	files := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "geoetl_files_total",
			Help: "Files consumed or produced, partitioned by dataset and stage.",
		},
		[]string{"dataset", "stage"},
	)

	if err := reg.Register(stages); err != nil {
		return nil, fmt.Errorf("prompush: register stage counter: %w", err)
	}
	if err := reg.Register(stageDuration); err != nil {
		return nil, fmt.Errorf("prompush: register stage summary: %w", err)
	}
	if err := reg.Register(rows); err != nil {
		return nil, fmt.Errorf("prompush: register row counter: %w", err)
	}
	if err := reg.Register(files); err != nil {
		return nil, fmt.Errorf("prompush: register file counter: %w", err)
	}

	return &Backend{
		cfg:           cfg,
		reg:           reg,
		stages:        stages,
		stageDuration: stageDuration,
		rows:          rows,
		files:         files,
	}, nil
}

// IncCounter maps the generic counter names onto the registered
// collectors. Unknown names are ignored.
func (b *Backend) IncCounter(name string, delta float64, labels metrics.Labels) {
	switch name {
	case "geoetl_stage_total":
		if b.stages == nil {
			return
		}
		b.stages.WithLabelValues(labels["dataset"], labels["stage"], labels["status"]).Add(delta)

	case "geoetl_rows_total":
		if b.rows == nil {
			return
		}
		b.rows.WithLabelValues(labels["dataset"], labels["kind"]).Add(delta)

	case "geoetl_files_total":
		if b.files == nil {
			return
		}
		b.files.WithLabelValues(labels["dataset"], labels["stage"]).Add(delta)
	}
}

// ObserveHistogram records stage durations; other names are ignored.
func (b *Backend) ObserveHistogram(name string, value float64, labels metrics.Labels) {
	if name != "geoetl_stage_duration_seconds" || b.stageDuration == nil {
		return
	}
	b.stageDuration.WithLabelValues(labels["dataset"], labels["stage"], labels["status"]).Observe(value)
}

// Flush pushes the accumulated registry to the Pushgateway, grouped by
// job and instance so concurrent runs on different hosts do not clobber
// each other's series.
func (b *Backend) Flush() error {
	p := push.New(b.cfg.Gateway, b.cfg.Job).Gatherer(b.reg)
	if host, err := os.Hostname(); err == nil && host != "" {
		p = p.Grouping("instance", host)
	}
	if b.cfg.Timeout > 0 {
		p = p.Client(&http.Client{Timeout: b.cfg.Timeout})
	}
	if err := p.Push(); err != nil {
		return fmt.Errorf("prompush: push to %s: %w", b.cfg.Gateway, err)
	}
	return nil
}
