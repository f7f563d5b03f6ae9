package k8s

import (
	"context"
	"log/slog"
	"time"

	"github.com/cockroachdb/errors"
	"go.opentelemetry.io/otel/attribute"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/types"
	"k8s.io/client-go/dynamic"

	"github.com/primaza/primazactl/internal/instrumentation"
	"github.com/primaza/primazactl/internal/logging"
	"github.com/primaza/primazactl/internal/runctx"
)

// Action is the operation the applier performs on a document.
type Action string

const (
	ActionCreate Action = "create"
	ActionRead   Action = "read"
	ActionDelete Action = "delete"
	ActionPatch  Action = "patch"
)

// Verb returns the RBAC verb exercised by the action.
func (a Action) Verb() string {
	if a == ActionRead {
		return "get"
	}
	return string(a)
}

// Mutating reports whether the action changes cluster state.
func (a Action) Mutating() bool {
	return a != ActionRead
}

// ParseAction validates an action name.
func ParseAction(s string) (Action, error) {
	switch Action(s) {
	case ActionCreate, ActionRead, ActionDelete, ActionPatch:
		return Action(s), nil
	}
	return "", Malformed("unknown action %q", s)
}

// Outcome tells what an applier call did.
type Outcome string

const (
	OutcomeCreated Outcome = "created"
	OutcomeExists  Outcome = "exists"
	OutcomeFound   Outcome = "found"
	OutcomeAbsent  Outcome = "absent"
	OutcomeDeleted Outcome = "deleted"
	OutcomePatched Outcome = "patched"
	// OutcomeSkipped is returned in client dry-run mode, where no call is made.
	OutcomeSkipped Outcome = "skipped"
)

// Result is the response of one applier call. Object is nil when the
// outcome is OutcomeAbsent.
type Result struct {
	Object  *unstructured.Unstructured
	Outcome Outcome
}

// Applier dispatches create, read, delete and patch calls for arbitrary
// documents against one cluster.
type Applier struct {
	cluster  *ClusterHandle
	registry *Registry
	run      *runctx.RunContext
	metrics  *instrumentation.Metrics
	logger   *slog.Logger
}

// ApplierOption customizes an Applier.
type ApplierOption func(*Applier)

// WithRegistry replaces the default kind registry.
func WithRegistry(r *Registry) ApplierOption {
	return func(a *Applier) { a.registry = r }
}

// WithMetrics records every call in m.
func WithMetrics(m *instrumentation.Metrics) ApplierOption {
	return func(a *Applier) { a.metrics = m }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) ApplierOption {
	return func(a *Applier) { a.logger = l }
}

// NewApplier creates an applier for cluster. A nil run context means no
// dry-run and no output.
func NewApplier(cluster *ClusterHandle, run *runctx.RunContext, opts ...ApplierOption) *Applier {
	if run == nil {
		run = runctx.Default()
	}
	a := &Applier{
		cluster:  cluster,
		registry: NewRegistry(),
		run:      run,
	}
	for _, opt := range opts {
		opt(a)
	}
	a.logger = logging.WithCluster(logging.OrDefault(a.logger), cluster.Context())
	return a
}

// Cluster returns the cluster the applier works on.
func (a *Applier) Cluster() *ClusterHandle { return a.cluster }

// RunContext returns the run context the applier records into.
func (a *Applier) RunContext() *runctx.RunContext { return a.run }

// Registry returns the kind registry.
func (a *Applier) Registry() *Registry { return a.registry }

// Logger returns the applier's logger.
func (a *Applier) Logger() *slog.Logger { return a.logger }

// Apply performs action on doc. Documents with a namespace are addressed
// as namespaced resources, others as cluster scoped. An existing object on
// create and a missing one on read or delete are reported through the
// outcome, not as errors. Any other failure is an *APIError.
func (a *Applier) Apply(ctx context.Context, doc *unstructured.Unstructured, action Action) (*Result, error) {
	info, err := a.registry.ForObject(doc)
	if err != nil {
		return nil, err
	}
	return a.apply(ctx, info, doc, action, nil)
}

// ApplyObject converts a typed object and applies it.
func (a *Applier) ApplyObject(ctx context.Context, obj runtime.Object, action Action) (*Result, error) {
	doc, err := ToUnstructured(obj)
	if err != nil {
		return nil, err
	}
	return a.Apply(ctx, doc, action)
}

// Patch sends patch as a JSON merge patch for the object named by doc.
func (a *Applier) Patch(ctx context.Context, doc *unstructured.Unstructured, patch []byte) (*Result, error) {
	info, err := a.registry.ForObject(doc)
	if err != nil {
		return nil, err
	}
	return a.apply(ctx, info, doc, ActionPatch, patch)
}

// Get reads the object named by kind coordinates. It is a shortcut for
// Apply with ActionRead on a skeleton document.
func (a *Applier) Get(ctx context.Context, apiVersion, kind, namespace, name string) (*Result, error) {
	doc := &unstructured.Unstructured{}
	doc.SetAPIVersion(apiVersion)
	doc.SetKind(kind)
	doc.SetNamespace(namespace)
	doc.SetName(name)
	return a.Apply(ctx, doc, ActionRead)
}

// ApplyAll validates every document, runs the self access check for
// mutating actions and then applies the documents in order. Any violation
// aborts before the first call with a *PermissionError listing all of them.
// The first non-benign failure aborts the remaining documents.
func (a *Applier) ApplyAll(ctx context.Context, docs []*unstructured.Unstructured, action Action) ([]*Result, error) {
	infos := make([]ResourceInfo, len(docs))
	for i, doc := range docs {
		info, err := a.registry.ForObject(doc)
		if err != nil {
			return nil, err
		}
		infos[i] = info
	}

	if action.Mutating() {
		violations, err := a.CheckSelfAccess(ctx, docs, action)
		if err != nil {
			return nil, err
		}
		if len(violations) > 0 {
			return nil, &PermissionError{Violations: violations}
		}
	}

	results := make([]*Result, 0, len(docs))
	for i, doc := range docs {
		res, err := a.apply(ctx, infos[i], doc, action, nil)
		if err != nil {
			return results, err
		}
		results = append(results, res)
	}
	return results, nil
}

func (a *Applier) apply(ctx context.Context, info ResourceInfo, doc *unstructured.Unstructured, action Action, patch []byte) (res *Result, err error) {
	ref := ObjectRef{Kind: info.GVK.Kind, Namespace: doc.GetNamespace(), Name: doc.GetName()}

	ctx, span := instrumentation.StartK8sSpan(ctx, string(action), info.GVR.Resource, ref.Namespace,
		instrumentation.NewSpanAttributeBuilder().
			WithCluster(a.cluster.Context()).
			WithResource("", ref.Name).
			WithDryRun(string(a.run.DryRun())).
			Build()...)
	start := time.Now()
	defer func() {
		status := instrumentation.StatusFromError(err)
		if res != nil {
			status = string(res.Outcome)
			span.SetAttributes(attribute.String(instrumentation.SpanAttrOutcome, string(res.Outcome)))
		}
		a.metrics.RecordK8sOperation(ctx, string(action), info.GVR.Resource, ref.Namespace, status, time.Since(start))
		instrumentation.EndSpan(span, err)
	}()

	ri := a.resourceFor(info, ref.Namespace)

	switch action {
	case ActionCreate:
		res, err = a.create(ctx, ri, doc, ref)
	case ActionRead:
		res, err = a.read(ctx, ri, ref)
	case ActionDelete:
		res, err = a.delete(ctx, ri, doc, ref)
	case ActionPatch:
		res, err = a.patch(ctx, ri, doc, ref, patch)
	default:
		return nil, Malformed("unknown action %q", action)
	}

	if err != nil {
		a.logger.Debug("operation failed",
			logging.Operation(string(action)),
			logging.ResourceType(info.GVR.Resource),
			logging.Namespace(ref.Namespace),
			logging.ResourceName(ref.Name),
			logging.SanitizedErr(err))
		return nil, err
	}

	a.logger.Debug("operation completed",
		logging.Operation(string(action)),
		logging.ResourceType(info.GVR.Resource),
		logging.Namespace(ref.Namespace),
		logging.ResourceName(ref.Name),
		logging.Status(string(res.Outcome)))
	return res, nil
}

func (a *Applier) resourceFor(info ResourceInfo, namespace string) dynamic.ResourceInterface {
	if namespace != "" {
		return a.cluster.Dynamic().Resource(info.GVR).Namespace(namespace)
	}
	return a.cluster.Dynamic().Resource(info.GVR)
}

func (a *Applier) create(ctx context.Context, ri dynamic.ResourceInterface, doc *unstructured.Unstructured, ref ObjectRef) (*Result, error) {
	if a.run.ClientDryRun() {
		if err := a.run.Record(doc); err != nil {
			return nil, err
		}
		return &Result{Object: doc.DeepCopy(), Outcome: OutcomeSkipped}, nil
	}

	existing, err := ri.Get(ctx, ref.Name, metav1.GetOptions{})
	switch {
	case err == nil:
		a.logger.Info("already exists",
			logging.ResourceType(ref.Kind),
			logging.Namespace(ref.Namespace),
			logging.ResourceName(ref.Name))
		return &Result{Object: existing, Outcome: OutcomeExists}, nil
	case !apierrors.IsNotFound(err):
		return nil, NewAPIError(ActionRead, ref, err)
	}

	opts := metav1.CreateOptions{FieldManager: FieldManager}
	if a.run.ServerDryRun() {
		opts.DryRun = []string{metav1.DryRunAll}
	}

	created, err := ri.Create(ctx, doc, opts)
	if err != nil {
		if IsBenign(ActionCreate, err) {
			return &Result{Object: doc.DeepCopy(), Outcome: OutcomeExists}, nil
		}
		return nil, NewAPIError(ActionCreate, ref, err)
	}

	if err := a.run.Record(doc); err != nil {
		return nil, err
	}
	return &Result{Object: created, Outcome: OutcomeCreated}, nil
}

func (a *Applier) read(ctx context.Context, ri dynamic.ResourceInterface, ref ObjectRef) (*Result, error) {
	obj, err := ri.Get(ctx, ref.Name, metav1.GetOptions{})
	if err != nil {
		if IsBenign(ActionRead, err) {
			return &Result{Outcome: OutcomeAbsent}, nil
		}
		return nil, NewAPIError(ActionRead, ref, err)
	}
	return &Result{Object: obj, Outcome: OutcomeFound}, nil
}

func (a *Applier) delete(ctx context.Context, ri dynamic.ResourceInterface, doc *unstructured.Unstructured, ref ObjectRef) (*Result, error) {
	if a.run.ClientDryRun() {
		return &Result{Object: doc.DeepCopy(), Outcome: OutcomeSkipped}, nil
	}

	policy := metav1.DeletePropagationBackground
	opts := metav1.DeleteOptions{PropagationPolicy: &policy}
	if a.run.ServerDryRun() {
		opts.DryRun = []string{metav1.DryRunAll}
	}

	if err := ri.Delete(ctx, ref.Name, opts); err != nil {
		if IsBenign(ActionDelete, err) {
			return &Result{Outcome: OutcomeAbsent}, nil
		}
		return nil, NewAPIError(ActionDelete, ref, err)
	}
	return &Result{Object: doc.DeepCopy(), Outcome: OutcomeDeleted}, nil
}

func (a *Applier) patch(ctx context.Context, ri dynamic.ResourceInterface, doc *unstructured.Unstructured, ref ObjectRef, patch []byte) (*Result, error) {
	if patch == nil {
		data, err := doc.MarshalJSON()
		if err != nil {
			return nil, errors.Wrapf(err, "encoding patch for %s", ref)
		}
		patch = data
	}

	if a.run.ClientDryRun() {
		return &Result{Object: doc.DeepCopy(), Outcome: OutcomeSkipped}, nil
	}

	opts := metav1.PatchOptions{FieldManager: FieldManager}
	if a.run.ServerDryRun() {
		opts.DryRun = []string{metav1.DryRunAll}
	}

	patched, err := ri.Patch(ctx, ref.Name, types.MergePatchType, patch, opts)
	if err != nil {
		return nil, NewAPIError(ActionPatch, ref, err)
	}
	return &Result{Object: patched, Outcome: OutcomePatched}, nil
}
