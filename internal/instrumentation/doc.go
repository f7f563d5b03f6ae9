// Package instrumentation provides OpenTelemetry tracing and metrics for
// primazactl.
//
// Instrumentation is disabled by default. When enabled, each workflow
// (tenant install, cluster join, namespace onboarding) gets a root span,
// every Kubernetes API call made through the resource applier gets a child
// span, and the following metrics are recorded:
//
//   - primazactl_kubernetes_operations_total: Counter of API operations by operation and status
//   - primazactl_kubernetes_operation_duration_seconds: Histogram of API operation durations
//   - primazactl_poll_wait_duration_seconds: Histogram of convergence and readiness waits
//   - primazactl_access_violations_total: Counter of RBAC access violations found
//   - primazactl_workflows_total: Counter of workflows by name and status
//
// # Exporters
//
// Metrics can be exported to a Prometheus registry, stdout or an OTLP
// collector. A command line invocation is short lived, so the Prometheus
// registry is usually written once at exit with WriteMetricsFile in the
// node-exporter textfile format.
//
// Traces can be exported to stdout or an OTLP collector.
//
// # Configuration
//
//	INSTRUMENTATION_ENABLED=true
//	METRICS_EXPORTER=prometheus|otlp|stdout|none
//	TRACING_EXPORTER=otlp|stdout|none
//	OTEL_EXPORTER_OTLP_ENDPOINT=http://localhost:4318
//	OTEL_TRACES_SAMPLER_ARG=1.0
package instrumentation
