package instrumentation

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metric attribute keys
const (
	attrStatus       = "status"
	attrOperation    = "operation"
	attrResourceType = "resource_type"
	attrNamespace    = "namespace"
	attrWait         = "wait"
	attrWorkflow     = "workflow"
)

// Metrics provides methods for recording observability metrics.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	// Kubernetes operation metrics
	k8sOperationsTotal   metric.Int64Counter
	k8sOperationDuration metric.Float64Histogram

	// Poll metrics
	pollWaitDuration metric.Float64Histogram

	// Access verification metrics
	accessViolationsTotal metric.Int64Counter

	// Workflow metrics
	workflowsTotal   metric.Int64Counter
	workflowDuration metric.Float64Histogram

	// detailedLabels controls whether namespace and resource_type labels
	// are included in Kubernetes operation metrics
	detailedLabels bool
}

// NewMetrics creates a new Metrics instance with all metrics initialized.
func NewMetrics(meter metric.Meter, detailedLabels bool) (*Metrics, error) {
	m := &Metrics{
		detailedLabels: detailedLabels,
	}

	var err error

	m.k8sOperationsTotal, err = meter.Int64Counter(
		"primazactl_kubernetes_operations_total",
		metric.WithDescription("Total number of Kubernetes operations"),
		metric.WithUnit("{operation}"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create primazactl_kubernetes_operations_total counter")
	}

	m.k8sOperationDuration, err = meter.Float64Histogram(
		"primazactl_kubernetes_operation_duration_seconds",
		metric.WithDescription("Kubernetes operation duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.01, 0.1, 0.5, 1.0, 2.5, 5.0, 10.0),
	)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create primazactl_kubernetes_operation_duration_seconds histogram")
	}

	m.pollWaitDuration, err = meter.Float64Histogram(
		"primazactl_poll_wait_duration_seconds",
		metric.WithDescription("Time spent waiting for a polled condition"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.1, 1, 5, 10, 30, 60, 120),
	)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create primazactl_poll_wait_duration_seconds histogram")
	}

	m.accessViolationsTotal, err = meter.Int64Counter(
		"primazactl_access_violations_total",
		metric.WithDescription("Total number of RBAC access violations found"),
		metric.WithUnit("{violation}"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create primazactl_access_violations_total counter")
	}

	m.workflowsTotal, err = meter.Int64Counter(
		"primazactl_workflows_total",
		metric.WithDescription("Total number of federation workflows run"),
		metric.WithUnit("{workflow}"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create primazactl_workflows_total counter")
	}

	m.workflowDuration, err = meter.Float64Histogram(
		"primazactl_workflow_duration_seconds",
		metric.WithDescription("Federation workflow duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(1, 5, 10, 30, 60, 120, 300),
	)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create primazactl_workflow_duration_seconds histogram")
	}

	return m, nil
}

// RecordK8sOperation records a Kubernetes operation with operation type, resource type,
// namespace, status, and duration.
//
// When detailedLabels is false, only operation and status labels are recorded.
func (m *Metrics) RecordK8sOperation(ctx context.Context, operation, resourceType, namespace, status string, duration time.Duration) {
	if m == nil || m.k8sOperationsTotal == nil || m.k8sOperationDuration == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String(attrOperation, operation),
		attribute.String(attrStatus, status),
	}

	if m.detailedLabels {
		attrs = append(attrs,
			attribute.String(attrResourceType, resourceType),
			attribute.String(attrNamespace, namespace),
		)
	}

	m.k8sOperationsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.k8sOperationDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
}

// RecordPollWait records how long a bounded poll waited and how it ended.
func (m *Metrics) RecordPollWait(ctx context.Context, wait, status string, duration time.Duration) {
	if m == nil || m.pollWaitDuration == nil {
		return
	}

	m.pollWaitDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(
		attribute.String(attrWait, wait),
		attribute.String(attrStatus, status),
	))
}

// RecordAccessViolations adds count violations found in namespace.
func (m *Metrics) RecordAccessViolations(ctx context.Context, namespace string, count int) {
	if m == nil || m.accessViolationsTotal == nil || count == 0 {
		return
	}

	var attrs []attribute.KeyValue
	if m.detailedLabels {
		attrs = append(attrs, attribute.String(attrNamespace, namespace))
	}
	m.accessViolationsTotal.Add(ctx, int64(count), metric.WithAttributes(attrs...))
}

// RecordWorkflow records a completed federation workflow.
func (m *Metrics) RecordWorkflow(ctx context.Context, workflow, status string, duration time.Duration) {
	if m == nil || m.workflowsTotal == nil || m.workflowDuration == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String(attrWorkflow, workflow),
		attribute.String(attrStatus, status),
	}
	m.workflowsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.workflowDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
}

// StatusFromError maps an error to a metric status label.
func StatusFromError(err error) string {
	if err == nil {
		return StatusSuccess
	}
	return StatusError
}
