package prompush

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"geoetl/internal/metrics"
)

// readCounterValue reads the current value of a Counter for assertions in tests.
func readCounterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()

	m := &dto.Metric{}
	if err := c.Write(m); err != nil {
		t.Fatalf("Counter.Write() error = %v", err)
	}
	if m.GetCounter() == nil {
		t.Fatalf("metric did not contain Counter value")
	}
	return m.GetCounter().GetValue()
}

// readSummaryCountSum reads sample count and sum from a SummaryVec for assertions in tests.
func readSummaryCountSum(t *testing.T, v *prometheus.SummaryVec, labels ...string) (uint64, float64) {
	t.Helper()

	m := &dto.Metric{}
	metric, ok := v.WithLabelValues(labels...).(prometheus.Metric)
	if !ok {
		t.Fatalf("SummaryVec.WithLabelValues(...) does not implement prometheus.Metric")
	}
	if err := metric.Write(m); err != nil {
		t.Fatalf("Summary.Write() error = %v", err)
	}
	if m.GetSummary() == nil {
		t.Fatalf("metric did not contain Summary value")
	}
	sum := m.GetSummary()
	return sum.GetSampleCount(), sum.GetSampleSum()
}

// TestNew constructs backends with different inputs and validates field
// initialization, defaults, and basic collector usability.
func TestNew(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
		wantJob string
	}{
		{
			name:    "missing gateway URL returns error",
			cfg:     Config{Job: "nightly"},
			wantErr: true,
		},
		{
			name:    "empty job name uses default",
			cfg:     Config{Gateway: "http://pushgateway:9091"},
			wantJob: "geoetl",
		},
		{
			name:    "explicit job name is preserved",
			cfg:     Config{Gateway: "http://pushgateway:9091", Job: "census-nightly"},
			wantJob: "census-nightly",
		},
	}

	for _, tt := range tests {
		tt := tt // capture
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			b, err := New(tt.cfg)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("New(%+v) error = nil, want non-nil", tt.cfg)
				}
				if b != nil {
					t.Fatalf("New(%+v) backend = %v, want nil", tt.cfg, b)
				}
				return
			}

			if err != nil {
				t.Fatalf("New(%+v) error = %v, want nil", tt.cfg, err)
			}
			if b.cfg.Job != tt.wantJob {
				t.Fatalf("backend job = %q, want %q", b.cfg.Job, tt.wantJob)
			}
			if b.cfg.Gateway != tt.cfg.Gateway {
				t.Fatalf("backend gateway = %q, want %q", b.cfg.Gateway, tt.cfg.Gateway)
			}

			// Collectors should be non-nil and accept the expected labels.
			if b.stages == nil || b.stageDuration == nil || b.rows == nil || b.files == nil {
				t.Fatalf("New(%+v) left a collector nil", tt.cfg)
			}
			b.stages.WithLabelValues("census", "interim", "success").Add(1)
			b.stageDuration.WithLabelValues("elections", "processed", "failure").Observe(0.5)
			b.rows.WithLabelValues("census", "merged").Add(1)
			b.files.WithLabelValues("elections", "raw").Add(1)
		})
	}
}

// TestIncCounter verifies that IncCounter routes updates to the correct
// collectors and ignores unknown metric names.
func TestIncCounter(t *testing.T) {
	t.Parallel()

	type call struct {
		name   string
		delta  float64
		labels metrics.Labels
	}
	tests := []struct {
		name  string
		calls []call
		want  func(t *testing.T, b *Backend)
	}{
		{
			name: "stage counter with dataset, stage, and status",
			calls: []call{
				{"geoetl_stage_total", 3, metrics.Labels{"dataset": "census", "stage": "interim", "status": "success"}},
			},
			want: func(t *testing.T, b *Backend) {
				got := readCounterValue(t, b.stages.WithLabelValues("census", "interim", "success"))
				if got != 3 {
					t.Fatalf("stage counter = %v, want 3", got)
				}
			},
		},
		{
			name: "row counter with dataset and kind",
			calls: []call{
				{"geoetl_rows_total", 5, metrics.Labels{"dataset": "elections", "kind": "aggregated"}},
				{"geoetl_rows_total", 2, metrics.Labels{"dataset": "elections", "kind": "aggregated"}},
			},
			want: func(t *testing.T, b *Backend) {
				got := readCounterValue(t, b.rows.WithLabelValues("elections", "aggregated"))
				if got != 7 {
					t.Fatalf("row counter = %v, want 7", got)
				}
			},
		},
		{
			name: "file counter with dataset and stage",
			calls: []call{
				{"geoetl_files_total", 4, metrics.Labels{"dataset": "census", "stage": "raw"}},
			},
			want: func(t *testing.T, b *Backend) {
				got := readCounterValue(t, b.files.WithLabelValues("census", "raw"))
				if got != 4 {
					t.Fatalf("file counter = %v, want 4", got)
				}
			},
		},
		{
			name: "unknown metric name is ignored",
			calls: []call{
				{"unknown_metric", 10, metrics.Labels{"foo": "bar"}},
			},
			want: func(t *testing.T, b *Backend) {
				if got := readCounterValue(t, b.stages.WithLabelValues("x", "y", "z")); got != 0 {
					t.Fatalf("stage counter = %v, want 0 (unchanged)", got)
				}
			},
		},
	}

	for _, tt := range tests {
		tt := tt // capture
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			b, err := New(Config{Gateway: "http://pushgateway:9091"})
			if err != nil {
				t.Fatalf("New() error = %v", err)
			}

			for _, c := range tt.calls {
				b.IncCounter(c.name, c.delta, c.labels)
			}
			tt.want(t, b)
		})
	}
}

// TestZeroValueBackendIsSafe ensures that a backend with nil collectors
// does not panic on updates.
func TestZeroValueBackendIsSafe(t *testing.T) {
	t.Parallel()

	b := &Backend{}

	b.IncCounter("geoetl_stage_total", 1, metrics.Labels{"dataset": "census", "stage": "raw", "status": "success"})
	b.IncCounter("geoetl_rows_total", 1, metrics.Labels{"dataset": "census", "kind": "merged"})
	b.IncCounter("geoetl_files_total", 1, metrics.Labels{"dataset": "census", "stage": "raw"})
	b.ObserveHistogram("geoetl_stage_duration_seconds", 1, metrics.Labels{"dataset": "census", "stage": "raw", "status": "success"})
}

// TestObserveHistogram verifies that ObserveHistogram records stage
// durations and ignores other metric names.
func TestObserveHistogram(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		metricName string
		value      float64
		wantCount  uint64
		wantSum    float64
	}{
		{
			name:       "records duration for the stage summary",
			metricName: "geoetl_stage_duration_seconds",
			value:      1.5,
			wantCount:  1,
			wantSum:    1.5,
		},
		{
			name:       "ignores unknown metric name",
			metricName: "other_metric",
			value:      2.0,
			wantCount:  0,
			wantSum:    0,
		},
	}

	for _, tt := range tests {
		tt := tt // capture
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			b, err := New(Config{Gateway: "http://pushgateway:9091"})
			if err != nil {
				t.Fatalf("New() error = %v", err)
			}

			labels := metrics.Labels{"dataset": "census", "stage": "processed", "status": "success"}
			b.ObserveHistogram(tt.metricName, tt.value, labels)

			gotCount, gotSum := readSummaryCountSum(t, b.stageDuration, "census", "processed", "success")
			if gotCount != tt.wantCount {
				t.Fatalf("summary sample count = %d, want %d", gotCount, tt.wantCount)
			}
			if gotSum != tt.wantSum {
				t.Fatalf("summary sample sum = %v, want %v", gotSum, tt.wantSum)
			}
		})
	}
}

// TestFlush verifies that Flush pushes the registry to the configured
// Pushgateway URL under the configured job grouping.
func TestFlush(t *testing.T) {
	t.Parallel()

	type pushRequest struct {
		method  string
		path    string
		bodyLen int
	}

	reqCh := make(chan pushRequest, 1)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer r.Body.Close()
		body, _ := io.ReadAll(r.Body)

		reqCh <- pushRequest{
			method:  r.Method,
			path:    r.URL.Path,
			bodyLen: len(body),
		}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	b, err := New(Config{Gateway: server.URL, Job: "nightly", Timeout: 5 * time.Second})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	// Add some data so the push body is non-empty.
	b.IncCounter("geoetl_stage_total", 1, metrics.Labels{"dataset": "census", "stage": "interim", "status": "success"})

	if err := b.Flush(); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}

	var got pushRequest
	select {
	case got = <-reqCh:
	default:
		t.Fatalf("Flush() did not send any HTTP request to the Pushgateway")
	}

	if !strings.Contains(got.path, "/job/nightly") {
		t.Fatalf("push path = %q, want it to contain %q", got.path, "/job/nightly")
	}
	if got.method == "" {
		t.Fatalf("push request method is empty")
	}
	if got.bodyLen == 0 {
		t.Fatalf("push request body length = 0, want > 0")
	}
}

// TestFlush_GatewayDown verifies that a connection failure surfaces as an
// error naming the gateway.
func TestFlush_GatewayDown(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close() // nothing listens anymore

	b, err := New(Config{Gateway: server.URL})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if err := b.Flush(); err == nil {
		t.Fatalf("Flush() error = nil, want non-nil for unreachable gateway")
	} else if !strings.Contains(err.Error(), server.URL) {
		t.Fatalf("Flush() error = %v, want it to name the gateway URL", err)
	}
}

// BenchmarkIncCounterStage measures the cost of incrementing the stage
// counter through the Backend abstraction.
func BenchmarkIncCounterStage(b *testing.B) {
	backend, err := New(Config{Gateway: "http://pushgateway:9091"})
	if err != nil {
		b.Fatalf("New() error = %v", err)
	}

	labels := metrics.Labels{"dataset": "census", "stage": "interim", "status": "success"}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		backend.IncCounter("geoetl_stage_total", 1, labels)
	}
}

// BenchmarkObserveHistogram measures the cost of recording a stage
// duration observation.
func BenchmarkObserveHistogram(b *testing.B) {
	backend, err := New(Config{Gateway: "http://pushgateway:9091"})
	if err != nil {
		b.Fatalf("New() error = %v", err)
	}

	labels := metrics.Labels{"dataset": "elections", "stage": "processed", "status": "success"}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		backend.ObserveHistogram("geoetl_stage_duration_seconds", 0.123, labels)
	}
}
