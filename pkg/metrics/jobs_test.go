package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func TestJobMetricsRecordsRunsByResult(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewJobMetrics(reg)
	stamp := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return stamp }

	m.ObserveDuration("payment-reconcile", 250*time.Millisecond)
	m.IncSuccess("payment-reconcile")
	m.IncSuccess("payment-reconcile")
	m.IncFailure("payment-reconcile")

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}

	if got, err := fetchCounterValue(mfs, "homeserve_jobs_runs_total", "job", "payment-reconcile", "result", "success"); err != nil {
		t.Fatalf("fetch success: %v", err)
	} else if got != 2 {
		t.Fatalf("expected success=2, got %f", got)
	}
	if got, err := fetchCounterValue(mfs, "homeserve_jobs_runs_total", "result", "failure"); err != nil {
		t.Fatalf("fetch failure: %v", err)
	} else if got != 1 {
		t.Fatalf("expected failure=1, got %f", got)
	}
	if got, err := fetchGaugeValue(mfs, "homeserve_jobs_last_success_timestamp_seconds", "job", "payment-reconcile"); err != nil {
		t.Fatalf("fetch last success: %v", err)
	} else if got != float64(stamp.Unix()) {
		t.Fatalf("expected last success %d, got %f", stamp.Unix(), got)
	}
	if got, err := fetchHistogramSum(mfs, "homeserve_jobs_run_duration_seconds", "job", "payment-reconcile"); err != nil {
		t.Fatalf("fetch duration: %v", err)
	} else if got <= 0 {
		t.Fatalf("expected duration sum > 0, got %f", got)
	}
}

func TestJobMetricsEmptyJobName(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewJobMetrics(reg)
	m.IncFailure("")

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	if _, err := fetchCounterValue(mfs, "homeserve_jobs_runs_total", "job", "unknown"); err != nil {
		t.Fatalf("expected unknown label: %v", err)
	}
}

func TestJobMetricsNilSafe(t *testing.T) {
	var m *JobMetrics
	m.ObserveDuration("x", time.Second)
	m.IncSuccess("x")
	m.IncFailure("x")

	NewJobMetrics(nil).IncSuccess("x")
}
