package instrumentation

import (
	"context"
	"io"
	"os"

	"github.com/cockroachdb/errors"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// Provider owns the tracer and meter providers of one invocation.
type Provider struct {
	config Config

	tracerProvider *sdktrace.TracerProvider
	meterProvider  *sdkmetric.MeterProvider
	registry       *prometheus.Registry
	metrics        *Metrics
}

// ProviderOption customizes NewProvider.
type ProviderOption func(*providerOptions)

type providerOptions struct {
	stdout    io.Writer
	spanSinks []sdktrace.SpanExporter
}

// WithStdout sets the writer used by stdout exporters.
func WithStdout(w io.Writer) ProviderOption {
	return func(o *providerOptions) { o.stdout = w }
}

// WithSpanExporter adds a synchronous span exporter, mainly for tests.
func WithSpanExporter(exp sdktrace.SpanExporter) ProviderOption {
	return func(o *providerOptions) { o.spanSinks = append(o.spanSinks, exp) }
}

// NewProvider builds tracing and metrics according to cfg. When cfg.Enabled
// is false the returned provider hands out no-op metrics and leaves the
// global tracer provider untouched.
func NewProvider(ctx context.Context, cfg Config, opts ...ProviderOption) (*Provider, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	o := &providerOptions{stdout: os.Stdout}
	for _, opt := range opts {
		opt(o)
	}

	p := &Provider{config: cfg}

	if !cfg.Enabled {
		m, err := NewMetrics(noop.NewMeterProvider().Meter(TracerName), false)
		if err != nil {
			return nil, err
		}
		p.metrics = m
		return p, nil
	}

	res := resource.NewSchemaless(
		attribute.String("service.name", cfg.ServiceName),
		attribute.String("service.version", cfg.ServiceVersion),
	)

	if err := p.initTracing(ctx, cfg, res, o); err != nil {
		return nil, err
	}
	if err := p.initMetrics(ctx, cfg, res, o); err != nil {
		return nil, err
	}

	return p, nil
}

func (p *Provider) initTracing(ctx context.Context, cfg Config, res *resource.Resource, o *providerOptions) error {
	tpOpts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.TraceSamplingRate))),
	}

	switch cfg.TracingExporter {
	case ExporterStdout:
		exp, err := stdouttrace.New(stdouttrace.WithWriter(o.stdout), stdouttrace.WithPrettyPrint())
		if err != nil {
			return errors.Wrap(err, "creating stdout trace exporter")
		}
		tpOpts = append(tpOpts, sdktrace.WithBatcher(exp))
	case ExporterOTLP:
		clientOpts := []otlptracehttp.Option{otlptracehttp.WithEndpointURL(cfg.OTLPEndpoint)}
		if cfg.OTLPInsecure {
			clientOpts = append(clientOpts, otlptracehttp.WithInsecure())
		}
		exp, err := otlptracehttp.New(ctx, clientOpts...)
		if err != nil {
			return errors.Wrap(err, "creating OTLP trace exporter")
		}
		tpOpts = append(tpOpts, sdktrace.WithBatcher(exp))
	}

	for _, sink := range o.spanSinks {
		tpOpts = append(tpOpts, sdktrace.WithSyncer(sink))
	}

	p.tracerProvider = sdktrace.NewTracerProvider(tpOpts...)
	otel.SetTracerProvider(p.tracerProvider)
	return nil
}

func (p *Provider) initMetrics(ctx context.Context, cfg Config, res *resource.Resource, o *providerOptions) error {
	mpOpts := []sdkmetric.Option{sdkmetric.WithResource(res)}

	switch cfg.MetricsExporter {
	case ExporterPrometheus, "":
		p.registry = prometheus.NewRegistry()
		exp, err := otelprom.New(otelprom.WithRegisterer(p.registry))
		if err != nil {
			return errors.Wrap(err, "creating prometheus exporter")
		}
		mpOpts = append(mpOpts, sdkmetric.WithReader(exp))
	case ExporterStdout:
		exp, err := stdoutmetric.New(stdoutmetric.WithWriter(o.stdout))
		if err != nil {
			return errors.Wrap(err, "creating stdout metric exporter")
		}
		mpOpts = append(mpOpts, sdkmetric.WithReader(
			sdkmetric.NewPeriodicReader(exp, sdkmetric.WithInterval(DefaultMetricInterval))))
	case ExporterOTLP:
		clientOpts := []otlpmetrichttp.Option{otlpmetrichttp.WithEndpointURL(cfg.OTLPEndpoint)}
		if cfg.OTLPInsecure {
			clientOpts = append(clientOpts, otlpmetrichttp.WithInsecure())
		}
		exp, err := otlpmetrichttp.New(ctx, clientOpts...)
		if err != nil {
			return errors.Wrap(err, "creating OTLP metric exporter")
		}
		mpOpts = append(mpOpts, sdkmetric.WithReader(
			sdkmetric.NewPeriodicReader(exp, sdkmetric.WithInterval(DefaultMetricInterval))))
	}

	p.meterProvider = sdkmetric.NewMeterProvider(mpOpts...)
	otel.SetMeterProvider(p.meterProvider)

	m, err := NewMetrics(p.meterProvider.Meter(TracerName), cfg.DetailedLabels)
	if err != nil {
		return err
	}
	p.metrics = m
	return nil
}

// Metrics returns the metrics recorder. It is never nil.
func (p *Provider) Metrics() *Metrics {
	return p.metrics
}

// Registry returns the Prometheus registry, or nil when the Prometheus
// exporter is not in use.
func (p *Provider) Registry() *prometheus.Registry {
	return p.registry
}

// WriteMetricsFile writes the Prometheus registry to path in the textfile
// collector format.
func (p *Provider) WriteMetricsFile(path string) error {
	if p.registry == nil {
		return errors.New("metrics file requires the prometheus metrics exporter")
	}
	if err := prometheus.WriteToTextfile(path, p.registry); err != nil {
		return errors.Wrapf(err, "writing metrics to %s", path)
	}
	return nil
}

// Shutdown flushes and stops the providers.
func (p *Provider) Shutdown(ctx context.Context) error {
	var errs []error
	if p.tracerProvider != nil {
		if err := p.tracerProvider.Shutdown(ctx); err != nil {
			errs = append(errs, errors.Wrap(err, "shutting down tracer provider"))
		}
	}
	if p.meterProvider != nil {
		if err := p.meterProvider.Shutdown(ctx); err != nil {
			errs = append(errs, errors.Wrap(err, "shutting down meter provider"))
		}
	}
	return errors.Join(errs...)
}
