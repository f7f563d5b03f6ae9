package clusterenv

import (
	"context"
	"encoding/json"
	"log/slog"
	"slices"
	"time"

	"github.com/cockroachdb/errors"
	jsonpatch "github.com/evanphx/json-patch"

	"github.com/primaza/primazactl/internal/instrumentation"
	"github.com/primaza/primazactl/internal/k8s"
	"github.com/primaza/primazactl/internal/logging"
)

var (
	// ErrConditionMissing is returned when an expected condition type is
	// not reported at all.
	ErrConditionMissing = errors.New("cluster environment condition missing")

	// ErrConditionMismatch is returned when a condition carries another
	// status than expected.
	ErrConditionMismatch = errors.New("cluster environment condition mismatch")
)

// DefaultStatePoll bounds the wait for a state.
var DefaultStatePoll = k8s.PollConfig{Interval: 5 * time.Second, Timeout: 60 * time.Second}

// Manager creates cluster environments and follows their status.
type Manager struct {
	applier *k8s.Applier
	poll    k8s.PollConfig
	metrics *instrumentation.Metrics
	logger  *slog.Logger
}

// Option customizes a Manager.
type Option func(*Manager)

// WithStatePoll overrides DefaultStatePoll.
func WithStatePoll(cfg k8s.PollConfig) Option {
	return func(m *Manager) { m.poll = cfg }
}

// WithMetrics records state waits in metrics.
func WithMetrics(metrics *instrumentation.Metrics) Option {
	return func(m *Manager) { m.metrics = metrics }
}

// NewManager returns a manager for cluster environments on the cluster
// applier works on.
func NewManager(applier *k8s.Applier, opts ...Option) *Manager {
	m := &Manager{
		applier: applier,
		poll:    DefaultStatePoll,
		logger:  applier.Logger().With(slog.String("component", "clusterenv")),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Ensure creates ce. When it already exists with a different environment
// name or credential secret, the difference is sent as a merge patch.
func (m *Manager) Ensure(ctx context.Context, ce *ClusterEnvironment) (*k8s.Result, error) {
	doc, err := ce.Unstructured()
	if err != nil {
		return nil, err
	}
	res, err := m.applier.Apply(ctx, doc, k8s.ActionCreate)
	if err != nil || res.Outcome != k8s.OutcomeExists {
		return res, err
	}

	current, err := FromUnstructured(res.Object)
	if err != nil {
		return nil, err
	}
	if current.Spec.EnvironmentName == ce.Spec.EnvironmentName &&
		current.Spec.ClusterContextSecret == ce.Spec.ClusterContextSecret {
		return res, nil
	}

	desired := current.Spec
	desired.EnvironmentName = ce.Spec.EnvironmentName
	desired.ClusterContextSecret = ce.Spec.ClusterContextSecret
	patch, err := specPatch(current.Spec, desired)
	if err != nil {
		return nil, err
	}

	m.logger.Info("updating cluster environment",
		logging.Namespace(ce.Namespace),
		logging.ResourceName(ce.Name),
		slog.String("secret", ce.Spec.ClusterContextSecret))
	return m.applier.Patch(ctx, doc, patch)
}

// Get reads a cluster environment. A missing one is k8s.ErrNotFound.
func (m *Manager) Get(ctx context.Context, namespace, name string) (*ClusterEnvironment, error) {
	res, err := m.applier.Get(ctx, APIVersion, Kind, namespace, name)
	if err != nil {
		return nil, err
	}
	if res.Outcome == k8s.OutcomeAbsent {
		return nil, errors.Wrapf(k8s.ErrNotFound, "cluster environment %s/%s", namespace, name)
	}
	return FromUnstructured(res.Object)
}

// AddNamespace appends target to the given namespace list. A namespace
// already listed is left alone. During a dry run a cluster environment
// that was never created is not an error.
func (m *Manager) AddNamespace(ctx context.Context, namespace, name string, list NamespaceList, target string) (*ClusterEnvironment, error) {
	ce, err := m.Get(ctx, namespace, name)
	if err != nil {
		if errors.Is(err, k8s.ErrNotFound) && m.applier.RunContext().DryRunActive() {
			m.logger.Info("cluster environment not found, skipping namespace list update",
				logging.Namespace(namespace),
				logging.ResourceName(name))
			return nil, nil
		}
		return nil, err
	}

	values := ce.Spec.Namespaces(list)
	if slices.Contains(values, target) {
		m.logger.Debug("namespace already listed",
			logging.ResourceName(name),
			slog.String("list", string(list)),
			slog.String("target", target))
		return ce, nil
	}

	desired := ce.Spec
	desired.setNamespaces(list, append(slices.Clone(values), target))
	patch, err := specPatch(ce.Spec, desired)
	if err != nil {
		return nil, err
	}

	doc, err := ce.Unstructured()
	if err != nil {
		return nil, err
	}
	res, err := m.applier.Patch(ctx, doc, patch)
	if err != nil {
		return nil, err
	}
	if res.Outcome == k8s.OutcomeSkipped {
		ce.Spec = desired
		return ce, nil
	}
	return FromUnstructured(res.Object)
}

// WaitForState polls until status.state equals state. Expiry is a
// *k8s.TimeoutError carrying the last observed status. Dry runs do not
// wait since nothing reconciles the objects.
func (m *Manager) WaitForState(ctx context.Context, namespace, name, state string) (err error) {
	if m.applier.RunContext().DryRunActive() {
		m.logger.Info("dry run, not waiting for cluster environment state",
			logging.ResourceName(name),
			slog.String("state", state))
		return nil
	}

	ctx, span := instrumentation.StartSpan(ctx, "clusterenv.wait_state",
		instrumentation.NewSpanAttributeBuilder().
			WithCluster(m.applier.Cluster().Context()).
			WithNamespace(namespace).
			WithClusterEnvironment(name).
			Build()...)
	start := time.Now()
	defer func() {
		m.metrics.RecordPollWait(ctx, "cluster_environment_state", k8s.PollStatus(err), time.Since(start))
		instrumentation.EndSpan(span, err)
	}()

	what := "cluster environment " + namespace + "/" + name + " state " + state
	return k8s.Poll(ctx, what, m.poll, func(ctx context.Context) (k8s.Observation, error) {
		res, err := m.applier.Get(ctx, APIVersion, Kind, namespace, name)
		if err != nil {
			return k8s.Observation{}, err
		}
		if res.Outcome == k8s.OutcomeAbsent {
			return k8s.Observation{Last: "absent"}, nil
		}
		ce, err := FromUnstructured(res.Object)
		if err != nil {
			return k8s.Observation{}, err
		}
		status := ce.CurrentStatus()
		return k8s.Observation{Done: status.State == state, Last: status}, nil
	})
}

// CheckConditions reads the status once and requires every expectation to
// hold, in order.
func (m *Manager) CheckConditions(ctx context.Context, namespace, name string, want []Expectation) error {
	if m.applier.RunContext().DryRunActive() {
		return nil
	}

	ce, err := m.Get(ctx, namespace, name)
	if err != nil {
		return err
	}
	conditions := ce.CurrentStatus().Conditions
	if len(conditions) == 0 {
		return errors.Wrapf(ErrConditionMissing, "cluster environment %s has no status conditions", name)
	}

	for _, exp := range want {
		idx := slices.IndexFunc(conditions, func(c Condition) bool { return c.Type == exp.Type })
		if idx < 0 {
			return errors.Wrapf(ErrConditionMissing, "cluster environment %s: condition %s", name, exp.Type)
		}
		if got := conditions[idx].Status; got != exp.Status {
			return errors.Wrapf(ErrConditionMismatch, "cluster environment %s: condition %s is %s, expected %s",
				name, exp.Type, got, exp.Status)
		}
	}
	return nil
}

// Converge waits for state and then checks the conditions. Conditions are
// only read after the state is reached since they are updated later.
func (m *Manager) Converge(ctx context.Context, namespace, name, state string, want []Expectation) error {
	if err := m.WaitForState(ctx, namespace, name, state); err != nil {
		return err
	}
	if err := m.CheckConditions(ctx, namespace, name, want); err != nil {
		return err
	}
	m.logger.Info("cluster environment converged",
		logging.Namespace(namespace),
		logging.ResourceName(name),
		slog.String("state", state))
	return nil
}

func specPatch(from, to Spec) ([]byte, error) {
	original, err := json.Marshal(map[string]Spec{"spec": from})
	if err != nil {
		return nil, errors.Wrap(err, "encoding cluster environment spec")
	}
	modified, err := json.Marshal(map[string]Spec{"spec": to})
	if err != nil {
		return nil, errors.Wrap(err, "encoding cluster environment spec")
	}
	patch, err := jsonpatch.CreateMergePatch(original, modified)
	if err != nil {
		return nil, errors.Wrap(err, "computing cluster environment patch")
	}
	return patch, nil
}
