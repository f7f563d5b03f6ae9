package access

import (
	"context"
	"log/slog"

	"github.com/cockroachdb/errors"
	authorizationv1 "k8s.io/api/authorization/v1"
	rbacv1 "k8s.io/api/rbac/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	"github.com/primaza/primazactl/internal/instrumentation"
	"github.com/primaza/primazactl/internal/k8s"
	"github.com/primaza/primazactl/internal/logging"
)

// ErrAccessViolation marks the error returned for a non-empty violation
// list. It comes with k8s.ErrPermissionDenied.
var ErrAccessViolation = errors.New("access rules not satisfied")

// Check is one simulated access and the expected answer.
type Check struct {
	Attributes authorizationv1.ResourceAttributes
	Expected   bool
}

// Verifier simulates accesses of other users with SubjectAccessReviews.
type Verifier struct {
	applier *k8s.Applier
	catalog *k8s.VerbCatalog
	metrics *instrumentation.Metrics
	logger  *slog.Logger
}

// Option customizes a Verifier.
type Option func(*Verifier)

// WithMetrics counts violations in m.
func WithMetrics(m *instrumentation.Metrics) Option {
	return func(v *Verifier) { v.metrics = m }
}

// WithVerbCatalog replaces the catalog built from the cluster's discovery.
func WithVerbCatalog(c *k8s.VerbCatalog) Option {
	return func(v *Verifier) { v.catalog = c }
}

// NewVerifier creates a verifier for the cluster applier works on.
func NewVerifier(applier *k8s.Applier, opts ...Option) *Verifier {
	v := &Verifier{
		applier: applier,
		logger:  applier.Logger(),
	}
	for _, opt := range opts {
		opt(v)
	}
	if v.catalog == nil {
		v.catalog = k8s.NewVerbCatalog(applier.Cluster().Discovery())
	}
	return v
}

// Checks expands rules into the accesses to simulate for namespace. Each
// rule is expanded over its resources, API groups and resource names.
func (v *Verifier) Checks(namespace string, rules []rbacv1.PolicyRule) ([]Check, error) {
	var checks []Check
	for _, rule := range rules {
		groups := orAny(rule.APIGroups)
		names := orAny(rule.ResourceNames)
		for _, resource := range rule.Resources {
			for _, group := range groups {
				full, err := v.catalog.Verbs(group, resource)
				if err != nil {
					return nil, err
				}
				for _, name := range names {
					allowed, denied := SplitVerbs(rule.Verbs, full, name != "")
					for _, verb := range allowed {
						checks = append(checks, check(namespace, group, resource, name, verb, true))
					}
					for _, verb := range denied {
						checks = append(checks, check(namespace, group, resource, name, verb, false))
					}
				}
			}
		}
	}
	return checks, nil
}

// Verify simulates every check derived from rules for user in namespace
// and returns all mismatches.
func (v *Verifier) Verify(ctx context.Context, user, namespace string, rules []rbacv1.PolicyRule) ([]k8s.Violation, error) {
	checks, err := v.Checks(namespace, rules)
	if err != nil {
		return nil, err
	}

	var violations []k8s.Violation
	for _, c := range checks {
		allowed, err := v.review(ctx, user, c.Attributes)
		if err != nil {
			return nil, err
		}
		if allowed == c.Expected {
			continue
		}
		violation := k8s.Violation{
			Subject:   user,
			Verb:      c.Attributes.Verb,
			Group:     c.Attributes.Group,
			Resource:  c.Attributes.Resource,
			Namespace: c.Attributes.Namespace,
			Name:      c.Attributes.Name,
			Expected:  c.Expected,
			Allowed:   allowed,
		}
		v.logger.Warn("access mismatch", slog.String("violation", violation.String()))
		violations = append(violations, violation)
	}

	v.metrics.RecordAccessViolations(ctx, namespace, len(violations))
	v.logger.Info("access verified",
		logging.Namespace(namespace),
		slog.String("user", user),
		slog.Int("checks", len(checks)),
		slog.Int("violations", len(violations)))
	return violations, nil
}

// VerifyRole reads the Role roleName from roleNamespace and verifies its
// rules for user in the same namespace.
func (v *Verifier) VerifyRole(ctx context.Context, user, roleNamespace, roleName string) ([]k8s.Violation, error) {
	res, err := v.applier.Get(ctx, "rbac.authorization.k8s.io/v1", "Role", roleNamespace, roleName)
	if err != nil {
		return nil, err
	}
	if res.Outcome == k8s.OutcomeAbsent {
		return nil, errors.Wrapf(k8s.ErrNotFound, "role %s/%s", roleNamespace, roleName)
	}

	var role rbacv1.Role
	if err := k8s.FromUnstructured(res.Object, &role); err != nil {
		return nil, err
	}
	return v.Verify(ctx, user, roleNamespace, role.Rules)
}

// AsError returns nil for an empty list, else a *k8s.PermissionError
// marked with ErrAccessViolation.
func AsError(violations []k8s.Violation) error {
	if len(violations) == 0 {
		return nil
	}
	return errors.Mark(&k8s.PermissionError{Violations: violations}, ErrAccessViolation)
}

func (v *Verifier) review(ctx context.Context, user string, attr authorizationv1.ResourceAttributes) (bool, error) {
	review := &authorizationv1.SubjectAccessReview{
		Spec: authorizationv1.SubjectAccessReviewSpec{
			User:               user,
			ResourceAttributes: &attr,
		},
	}
	resp, err := v.applier.Cluster().Clientset().AuthorizationV1().SubjectAccessReviews().Create(ctx, review, metav1.CreateOptions{})
	if err != nil {
		return false, k8s.NewAPIError(k8s.ActionCreate, k8s.ObjectRef{Kind: "SubjectAccessReview"}, err)
	}
	return resp.Status.Allowed, nil
}

func check(namespace, group, resource, name, verb string, expected bool) Check {
	return Check{
		Attributes: authorizationv1.ResourceAttributes{
			Namespace: namespace,
			Group:     group,
			Resource:  resource,
			Name:      name,
			Verb:      verb,
		},
		Expected: expected,
	}
}

// orAny turns an empty list into the single "any" placeholder.
func orAny(values []string) []string {
	if len(values) == 0 {
		return []string{""}
	}
	return values
}
