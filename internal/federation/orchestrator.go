package federation

import (
	"context"
	"log/slog"
	"time"

	"github.com/cockroachdb/errors"
	"go.opentelemetry.io/otel/attribute"

	"github.com/primaza/primazactl/internal/access"
	"github.com/primaza/primazactl/internal/clusterenv"
	"github.com/primaza/primazactl/internal/identity"
	"github.com/primaza/primazactl/internal/instrumentation"
	"github.com/primaza/primazactl/internal/k8s"
	"github.com/primaza/primazactl/internal/logging"
	"github.com/primaza/primazactl/internal/manifest"
	"github.com/primaza/primazactl/internal/runctx"
)

// ControllerPodPrefix names the pods of the control plane controller.
const ControllerPodPrefix = "primaza-controller"

// DefaultPodPoll bounds the wait for the controller pod.
var DefaultPodPoll = k8s.PollConfig{Interval: k8s.PodPollInterval, Timeout: k8s.PodPollTimeout}

// Orchestrator runs the federation workflows. Every workflow is a strict
// sequence of steps across the tenant and worker clusters; the first
// failing step aborts it with a *StepError.
type Orchestrator struct {
	run      *runctx.RunContext
	resolver *manifest.Resolver
	metrics  *instrumentation.Metrics
	logger   *slog.Logger

	tokenPoll k8s.PollConfig
	statePoll k8s.PollConfig
	podPoll   k8s.PollConfig
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithResolver sets the manifest resolver.
func WithResolver(r *manifest.Resolver) Option {
	return func(o *Orchestrator) { o.resolver = r }
}

// WithMetrics records workflows and API calls in m.
func WithMetrics(m *instrumentation.Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// WithPolls overrides the token, cluster environment state and pod waits.
// Zero values keep the defaults.
func WithPolls(token, state, pod k8s.PollConfig) Option {
	return func(o *Orchestrator) {
		if token.Timeout > 0 {
			o.tokenPoll = token
		}
		if state.Timeout > 0 {
			o.statePoll = state
		}
		if pod.Timeout > 0 {
			o.podPoll = pod
		}
	}
}

// NewOrchestrator creates an orchestrator sharing run with every component.
func NewOrchestrator(run *runctx.RunContext, opts ...Option) *Orchestrator {
	if run == nil {
		run = runctx.Default()
	}
	o := &Orchestrator{
		run:       run,
		logger:    slog.Default(),
		tokenPoll: identity.DefaultTokenPoll,
		statePoll: clusterenv.DefaultStatePoll,
		podPoll:   DefaultPodPoll,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.resolver == nil {
		o.resolver = manifest.NewResolver(manifest.WithLogger(o.logger))
	}
	return o
}

// RunContext returns the run context shared by the workflows.
func (o *Orchestrator) RunContext() *runctx.RunContext { return o.run }

func (o *Orchestrator) applier(cluster *k8s.ClusterHandle) *k8s.Applier {
	return k8s.NewApplier(cluster, o.run, k8s.WithMetrics(o.metrics), k8s.WithLogger(o.logger))
}

func (o *Orchestrator) provisioner(a *k8s.Applier) *identity.Provisioner {
	return identity.NewProvisioner(a, identity.WithTokenPoll(o.tokenPoll))
}

func (o *Orchestrator) clusterEnvironments(a *k8s.Applier) *clusterenv.Manager {
	return clusterenv.NewManager(a, clusterenv.WithStatePoll(o.statePoll), clusterenv.WithMetrics(o.metrics))
}

func (o *Orchestrator) verifier(a *k8s.Applier) *access.Verifier {
	return access.NewVerifier(a, access.WithMetrics(o.metrics))
}

// workflow runs fn inside a span and records its outcome.
func (o *Orchestrator) workflow(ctx context.Context, name, tenant string, fn func(ctx context.Context) error) (err error) {
	ctx, span := instrumentation.StartWorkflowSpan(ctx, name, tenant,
		instrumentation.NewSpanAttributeBuilder().WithDryRun(string(o.run.DryRun())).Build()...)
	start := time.Now()
	logger := logging.WithOperation(o.logger, name)
	if id := instrumentation.GetTraceID(ctx); id != "" {
		logger = logger.With(slog.String("trace_id", id))
	}
	logger.Info("workflow started", slog.String("tenant", tenant), logging.DryRun(string(o.run.DryRun())))

	defer func() {
		o.metrics.RecordWorkflow(ctx, name, instrumentation.StatusFromError(err), time.Since(start))
		var se *StepError
		if errors.As(err, &se) {
			instrumentation.AddSpanEvent(span, "step failed",
				attribute.String(instrumentation.SpanAttrStep, se.Step),
				attribute.String(instrumentation.SpanAttrCluster, se.Cluster))
		}
		instrumentation.EndSpan(span, err)
		if err != nil {
			logger.Error("workflow failed", logging.SanitizedErr(err), slog.Duration(logging.KeyDuration, time.Since(start)))
			return
		}
		logger.Info("workflow completed", slog.Duration(logging.KeyDuration, time.Since(start)))
	}()

	return fn(ctx)
}

// step wraps err with the workflow step that produced it.
func step(workflow, name string, cluster *k8s.ClusterHandle, err error) error {
	if err == nil {
		return nil
	}
	se := &StepError{Workflow: workflow, Step: name, Err: err}
	if cluster != nil {
		se.Cluster = cluster.Context()
	}
	return se
}

// applyManifest resolves a manifest and applies every document with action.
func (o *Orchestrator) applyManifest(ctx context.Context, a *k8s.Applier, src manifest.Source, action k8s.Action) error {
	docs, err := o.resolver.Resolve(ctx, src)
	if err != nil {
		return err
	}
	_, err = a.ApplyAll(ctx, docs, action)
	return err
}
