package prompush

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"daybook/internal/metrics"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
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

// readSummaryCountSum reads sample count and sum from a SummaryVec.
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

/* TestNewBackend verifies defaults and error handling of the constructor. */
func TestNewBackend(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		jobName     string
		gatewayURL  string
		wantErr     bool
		wantJobName string
	}{
		{name: "missing gateway URL returns error", jobName: "daybook-poll", wantErr: true},
		{name: "empty job name uses default", gatewayURL: "http://pushgateway:9091", wantJobName: "daybook"},
		{name: "explicit job name is preserved", jobName: "daybook-poll", gatewayURL: "http://pushgateway:9091", wantJobName: "daybook-poll"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			b, err := NewBackend(tt.jobName, tt.gatewayURL)
			if tt.wantErr {
				if err == nil || b != nil {
					t.Fatalf("NewBackend(%q, %q) = %v, %v; want nil, error", tt.jobName, tt.gatewayURL, b, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("NewBackend(%q, %q) error = %v", tt.jobName, tt.gatewayURL, err)
			}
			if b.jobName != tt.wantJobName {
				t.Fatalf("backend.jobName = %q, want %q", b.jobName, tt.wantJobName)
			}
			if b.stepCounter == nil || b.stepDuration == nil || b.recordCounter == nil || b.runCounter == nil {
				t.Fatalf("collectors not initialized: %+v", b)
			}
		})
	}
}

/* TestIncCounter verifies routing of counter updates by metric name. */
func TestIncCounter(t *testing.T) {
	t.Parallel()

	b, err := NewBackend("daybook", "http://example.com")
	if err != nil {
		t.Fatalf("NewBackend() error = %v", err)
	}

	b.IncCounter(metrics.StepTotal, 3, metrics.Labels{"step": "normalized", "status": "success"})
	b.IncCounter(metrics.RecordsTotal, 5, metrics.Labels{"kind": "stored"})
	b.IncCounter(metrics.RunsTotal, 1, metrics.Labels{"outcome": "active"})
	b.IncCounter(metrics.RunsTotal, 1, metrics.Labels{"outcome": "active"})
	b.IncCounter("unknown_metric", 10, metrics.Labels{"foo": "bar"})

	if got := readCounterValue(t, b.stepCounter.WithLabelValues("normalized", "success")); got != 3 {
		t.Fatalf("stepCounter = %v, want 3", got)
	}
	if got := readCounterValue(t, b.recordCounter.WithLabelValues("stored")); got != 5 {
		t.Fatalf("recordCounter = %v, want 5", got)
	}
	if got := readCounterValue(t, b.runCounter.WithLabelValues("active")); got != 2 {
		t.Fatalf("runCounter = %v, want 2", got)
	}
	if got := readCounterValue(t, b.runCounter.WithLabelValues("error")); got != 0 {
		t.Fatalf("runCounter{error} = %v, want 0", got)
	}
}

/* TestIncCounterNilMetrics verifies a zero-value backend does not panic. */
func TestIncCounterNilMetrics(t *testing.T) {
	t.Parallel()

	b := &Backend{}
	b.IncCounter(metrics.StepTotal, 1, metrics.Labels{"step": "s", "status": "success"})
	b.IncCounter(metrics.RecordsTotal, 1, metrics.Labels{"kind": "stored"})
	b.IncCounter(metrics.RunsTotal, 1, metrics.Labels{"outcome": "error"})
	b.ObserveHistogram(metrics.StepDuration, 1, metrics.Labels{})
}

/* TestObserveHistogram verifies step durations land in the summary. */
func TestObserveHistogram(t *testing.T) {
	t.Parallel()

	b, err := NewBackend("daybook", "http://example.com")
	if err != nil {
		t.Fatalf("NewBackend() error = %v", err)
	}

	b.ObserveHistogram(metrics.StepDuration, 1.5, metrics.Labels{"step": "encoded", "status": "success"})
	b.ObserveHistogram("other_metric", 2.0, metrics.Labels{"step": "encoded", "status": "success"})

	count, sum := readSummaryCountSum(t, b.stepDuration, "encoded", "success")
	if count != 1 || sum != 1.5 {
		t.Fatalf("summary = (%d, %v), want (1, 1.5)", count, sum)
	}
}

/* TestFlush verifies Flush pushes the registry to the gateway. */
func TestFlush(t *testing.T) {
	t.Parallel()

	type pushRequestInfo struct {
		method  string
		path    string
		bodyLen int
	}
	reqCh := make(chan pushRequestInfo, 1)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer r.Body.Close()
		body, _ := io.ReadAll(r.Body)
		reqCh <- pushRequestInfo{method: r.Method, path: r.URL.Path, bodyLen: len(body)}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	b, err := NewBackend("daybook-poll", server.URL)
	if err != nil {
		t.Fatalf("NewBackend() error = %v", err)
	}
	b.IncCounter(metrics.RunsTotal, 1, metrics.Labels{"outcome": "active"})

	if err := b.Flush(); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}

	var got pushRequestInfo
	select {
	case got = <-reqCh:
	default:
		t.Fatalf("Flush() did not send a request to the Pushgateway")
	}
	if got.method != http.MethodPut {
		t.Fatalf("method = %q, want PUT", got.method)
	}
	if got.path != "/metrics/job/daybook-poll" {
		t.Fatalf("path = %q, want /metrics/job/daybook-poll", got.path)
	}
	if got.bodyLen == 0 {
		t.Fatalf("push body is empty")
	}
}

func BenchmarkIncCounterStep(b *testing.B) {
	backend, err := NewBackend("daybook", "http://example.com")
	if err != nil {
		b.Fatalf("NewBackend() error = %v", err)
	}
	labels := metrics.Labels{"step": "stored", "status": "success"}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		backend.IncCounter(metrics.StepTotal, 1, labels)
	}
}
