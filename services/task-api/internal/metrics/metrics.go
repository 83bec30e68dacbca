// Package metrics provides Prometheus metrics collectors for the task-api service.
//
// Purpose:
//
//	This package defines and exports Prometheus metrics for HTTP traffic, the
//	load simulator, task persistence operations and the request execution
//	context. Metrics are registered globally and exposed on /metrics.
//
// Dependencies:
//   - github.com/prometheus/client_golang/prometheus: Prometheus Go client
//
// Usage:
//
//	Metrics are automatically registered when the package is imported.
//	Use the exported functions to record metric values:
//	  metrics.RecordTaskOperation("create", "success")
//	  metrics.RecordLoadSimulation(10*time.Second, 1234567)
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "task_api"

var (
	// HTTPRequestsTotal counts requests by method, route pattern and status.
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests by method, route and status",
		},
		[]string{"method", "route", "status"},
	)

	// HTTPRequestDurationSeconds measures request latency including time spent
	// waiting for the execution context.
	HTTPRequestDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds",
			Buckets:   []float64{.005, .01, .05, .1, .5, 1, 2.5, 5, 10, 20, 30},
		},
		[]string{"method", "route"},
	)

	// LoadSimulationsTotal counts completed load simulations.
	LoadSimulationsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "load",
			Name:      "simulations_total",
			Help:      "Total number of completed load simulations",
		},
	)

	// LoadInFlight tracks simulations currently spinning.
	LoadInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "load",
			Name:      "in_flight",
			Help:      "Number of load simulations currently running",
		},
	)

	// LoadBusyDurationSeconds measures the wall-clock time each simulation held the CPU.
	LoadBusyDurationSeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "load",
			Name:      "busy_duration_seconds",
			Help:      "Wall-clock duration of load simulations in seconds",
			Buckets:   []float64{.01, .1, .5, 1, 5, 10, 15, 30},
		},
	)

	// LoadIterationsTotal counts busy-loop iterations across simulations.
	LoadIterationsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "load",
			Name:      "iterations_total",
			Help:      "Total number of busy-loop iterations",
		},
	)

	// TaskOperationsTotal counts persistence operations by operation and result.
	TaskOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "task",
			Name:      "operations_total",
			Help:      "Total number of task operations by operation and result",
		},
		[]string{"operation", "result"}, // operation: list, create, delete; result: success, not_found, error
	)

	// ExecutionContextWaiting tracks requests queued for the execution context.
	ExecutionContextWaiting = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "execution_context",
			Name:      "waiting",
			Help:      "Number of requests waiting for the execution context",
		},
	)

	// ExecutionContextWaitSeconds measures how long requests queued.
	ExecutionContextWaitSeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "execution_context",
			Name:      "wait_seconds",
			Help:      "Time spent waiting for the execution context in seconds",
			Buckets:   []float64{.0001, .001, .01, .1, 1, 5, 10, 20},
		},
	)

	// ExecutionContextHeld tracks tokens currently held.
	ExecutionContextHeld = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "execution_context",
			Name:      "tokens_held",
			Help:      "Number of execution context tokens currently held",
		},
	)

	// AuditEventsTotal counts audit emissions by action and result.
	AuditEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "audit",
			Name:      "events_total",
			Help:      "Total number of audit events by action and result",
		},
		[]string{"action", "result"},
	)
)

// RecordHTTPRequest records a served request.
func RecordHTTPRequest(method, route string, status int, duration time.Duration) {
	if route == "" {
		route = "unmatched"
	}
	HTTPRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	HTTPRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// RecordLoadSimulation records a finished simulation.
func RecordLoadSimulation(busy time.Duration, iterations uint64) {
	LoadSimulationsTotal.Inc()
	LoadBusyDurationSeconds.Observe(busy.Seconds())
	LoadIterationsTotal.Add(float64(iterations))
}

// RecordTaskOperation records a persistence operation outcome.
func RecordTaskOperation(operation, result string) {
	TaskOperationsTotal.WithLabelValues(operation, result).Inc()
}

// RecordExecutionContextWait records the time a request queued for a token.
func RecordExecutionContextWait(wait time.Duration) {
	ExecutionContextWaitSeconds.Observe(wait.Seconds())
}

// RecordAuditEvent records an audit emission outcome.
func RecordAuditEvent(action, result string) {
	AuditEventsTotal.WithLabelValues(action, result).Inc()
}
