package instrumentation

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
)

func attrsToMap(attrs []attribute.KeyValue) map[attribute.Key]attribute.Value {
	m := make(map[attribute.Key]attribute.Value, len(attrs))
	for _, a := range attrs {
		m[a.Key] = a.Value
	}
	return m
}

func setupTestTracer(t *testing.T) *tracetest.InMemoryExporter {
	t.Helper()
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	previous := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		_ = tp.Shutdown(context.Background())
		otel.SetTracerProvider(previous)
	})
	return exporter
}

func TestSpanAttributeBuilder(t *testing.T) {
	t.Run("empty builder", func(t *testing.T) {
		attrs := NewSpanAttributeBuilder().Build()
		if len(attrs) != 0 {
			t.Errorf("Empty builder should return 0 attributes, got %d", len(attrs))
		}
	})

	t.Run("empty values are skipped", func(t *testing.T) {
		attrs := NewSpanAttributeBuilder().
			WithCluster("").
			WithTenant("").
			WithNamespace("").
			WithResource("", "").
			Build()
		if len(attrs) != 0 {
			t.Errorf("Expected 0 attributes, got %d", len(attrs))
		}
	})

	t.Run("all attributes", func(t *testing.T) {
		attrs := NewSpanAttributeBuilder().
			WithCluster("kind-worker").
			WithTenant("primaza-system").
			WithClusterEnvironment("worker-env").
			WithNamespace("applications").
			WithResource("secrets", "primaza-auth-worker-env").
			WithDryRun("client").
			Build()

		attrMap := attrsToMap(attrs)
		expected := map[attribute.Key]string{
			SpanAttrCluster:            "kind-worker",
			SpanAttrTenant:             "primaza-system",
			SpanAttrClusterEnvironment: "worker-env",
			SpanAttrNamespace:          "applications",
			SpanAttrResourceType:       "secrets",
			SpanAttrResourceName:       "primaza-auth-worker-env",
			SpanAttrDryRun:             "client",
		}
		for k, v := range expected {
			if attrMap[k].AsString() != v {
				t.Errorf("Expected %s=%q, got %q", k, v, attrMap[k].AsString())
			}
		}
	})
}

func TestStartK8sSpan(t *testing.T) {
	exporter := setupTestTracer(t)

	_, span := StartK8sSpan(context.Background(), "create", "secrets", "primaza-system")
	SetSpanSuccess(span)
	span.End()

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("Expected 1 span, got %d", len(spans))
	}
	if spans[0].Name != "k8s.create" {
		t.Errorf("Expected span name k8s.create, got %s", spans[0].Name)
	}
	if spans[0].SpanKind != trace.SpanKindClient {
		t.Errorf("Expected client span kind, got %v", spans[0].SpanKind)
	}
	attrMap := attrsToMap(spans[0].Attributes)
	if attrMap[SpanAttrResourceType].AsString() != "secrets" {
		t.Errorf("Expected resource type secrets, got %q", attrMap[SpanAttrResourceType].AsString())
	}
	if spans[0].Status.Code != codes.Ok {
		t.Errorf("Expected status OK, got %v", spans[0].Status.Code)
	}
}

func TestStartWorkflowSpanNestsK8sSpans(t *testing.T) {
	exporter := setupTestTracer(t)

	ctx, root := StartWorkflowSpan(context.Background(), "join", "primaza-system")
	_, child := StartK8sSpan(ctx, "read", "clusterenvironments", "primaza-system")
	child.End()
	EndSpan(root, errors.New("convergence timed out"))

	spans := exporter.GetSpans()
	if len(spans) != 2 {
		t.Fatalf("Expected 2 spans, got %d", len(spans))
	}

	byName := map[string]tracetest.SpanStub{}
	for _, s := range spans {
		byName[s.Name] = s
	}
	rootStub := byName["federation.join"]
	childStub := byName["k8s.read"]

	if childStub.Parent.SpanID() != rootStub.SpanContext.SpanID() {
		t.Error("Expected k8s span to be a child of the workflow span")
	}
	if rootStub.Status.Code != codes.Error {
		t.Errorf("Expected error status on workflow span, got %v", rootStub.Status.Code)
	}
	if len(rootStub.Events) == 0 {
		t.Error("Expected the error to be recorded as an event")
	}
}

func TestGetTraceID(t *testing.T) {
	if id := GetTraceID(context.Background()); id != "" {
		t.Errorf("Expected empty trace ID without span, got %q", id)
	}

	setupTestTracer(t)
	ctx, span := StartSpan(context.Background(), "test")
	defer span.End()

	if id := GetTraceID(ctx); id == "" {
		t.Error("Expected trace ID with active span")
	}
}
