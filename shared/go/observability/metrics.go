package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// exportFailures counts trace exporters that could not be built, labelled by
// the protocol that failed. "degraded" marks a fall back to the no-op provider.
var exportFailures = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "task_api",
	Subsystem: "telemetry",
	Name:      "export_failures_total",
	Help:      "Trace exporter setup failures by exporter protocol.",
}, []string{"service_name", "exporter"})

func recordExporterFailure(service, exporter string) {
	if service == "" {
		service = "unknown"
	}
	if exporter == "" {
		exporter = protocolGRPC
	}
	exportFailures.WithLabelValues(service, exporter).Inc()
}

// TelemetryExporterFailures returns the counter behind
// task_api_telemetry_export_failures_total.
func TelemetryExporterFailures() *prometheus.CounterVec { return exportFailures }
