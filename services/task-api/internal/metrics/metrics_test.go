package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

// TestRecordHTTPRequest verifies the request counter and histogram are updated.
func TestRecordHTTPRequest(t *testing.T) {
	initial := getCounterValue(HTTPRequestsTotal.WithLabelValues("GET", "/tasks", "200"))
	initialCount := getHistogramCount(HTTPRequestDurationSeconds.WithLabelValues("GET", "/tasks").(prometheus.Histogram))

	RecordHTTPRequest("GET", "/tasks", 200, 15*time.Millisecond)

	if got := getCounterValue(HTTPRequestsTotal.WithLabelValues("GET", "/tasks", "200")); got != initial+1 {
		t.Errorf("expected requests_total to increment, got initial=%f, new=%f", initial, got)
	}
	if got := getHistogramCount(HTTPRequestDurationSeconds.WithLabelValues("GET", "/tasks").(prometheus.Histogram)); got != initialCount+1 {
		t.Errorf("expected one new observation, got %d -> %d", initialCount, got)
	}
}

// TestRecordHTTPRequestUnmatchedRoute keeps 404 traffic under one label value.
func TestRecordHTTPRequestUnmatchedRoute(t *testing.T) {
	initial := getCounterValue(HTTPRequestsTotal.WithLabelValues("GET", "unmatched", "404"))
	RecordHTTPRequest("GET", "", 404, time.Millisecond)
	if got := getCounterValue(HTTPRequestsTotal.WithLabelValues("GET", "unmatched", "404")); got <= initial {
		t.Error("expected unmatched route counter to increment")
	}
}

// TestRecordLoadSimulation verifies simulations and iterations are counted.
func TestRecordLoadSimulation(t *testing.T) {
	initialRuns := getCounterValue(LoadSimulationsTotal)
	initialIterations := getCounterValue(LoadIterationsTotal)

	RecordLoadSimulation(50*time.Millisecond, 1000)

	if got := getCounterValue(LoadSimulationsTotal); got != initialRuns+1 {
		t.Errorf("expected simulations_total +1, got %f -> %f", initialRuns, got)
	}
	if got := getCounterValue(LoadIterationsTotal); got != initialIterations+1000 {
		t.Errorf("expected iterations_total +1000, got %f -> %f", initialIterations, got)
	}
}

// TestRecordTaskOperation verifies results are tracked per operation.
func TestRecordTaskOperation(t *testing.T) {
	initial := getCounterValue(TaskOperationsTotal.WithLabelValues("delete", "not_found"))
	RecordTaskOperation("delete", "not_found")
	if got := getCounterValue(TaskOperationsTotal.WithLabelValues("delete", "not_found")); got <= initial {
		t.Error("expected TaskOperationsTotal to increment")
	}
}

func TestRecordAuditEvent(t *testing.T) {
	initial := getCounterValue(AuditEventsTotal.WithLabelValues("task.create", "failure"))
	RecordAuditEvent("task.create", "failure")
	if got := getCounterValue(AuditEventsTotal.WithLabelValues("task.create", "failure")); got <= initial {
		t.Error("expected AuditEventsTotal to increment")
	}
}

func getCounterValue(counter prometheus.Counter) float64 {
	metric := &dto.Metric{}
	if err := counter.Write(metric); err != nil {
		return 0
	}
	if metric.Counter != nil {
		return metric.Counter.GetValue()
	}
	return 0
}

func getHistogramCount(h prometheus.Histogram) uint64 {
	metric := &dto.Metric{}
	if err := h.Write(metric); err != nil {
		return 0
	}
	return metric.GetHistogram().GetSampleCount()
}
