package access_test

import (
	"bytes"
	"context"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	rbacv1 "k8s.io/api/rbac/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	"github.com/primaza/primazactl/internal/access"
	"github.com/primaza/primazactl/internal/k8s"
	"github.com/primaza/primazactl/internal/k8s/k8stest"
)

const (
	namespace = "agents"
	user      = "system:serviceaccount:kube-system:primaza-tenant1-env1"
)

func grant(cluster *k8stest.Cluster, rules []rbacv1.PolicyRule) {
	cluster.Add(&rbacv1.Role{
		ObjectMeta: metav1.ObjectMeta{Name: "granted", Namespace: namespace},
		Rules:      rules,
	})
	cluster.Add(&rbacv1.RoleBinding{
		ObjectMeta: metav1.ObjectMeta{Name: "granted", Namespace: namespace},
		RoleRef:    rbacv1.RoleRef{APIGroup: rbacv1.GroupName, Kind: "Role", Name: "granted"},
		Subjects: []rbacv1.Subject{{
			Kind:      rbacv1.ServiceAccountKind,
			Name:      "primaza-tenant1-env1",
			Namespace: "kube-system",
		}},
	})
}

var secretRules = []rbacv1.PolicyRule{{
	APIGroups: []string{""},
	Resources: []string{"secrets"},
	Verbs:     []string{"get", "list"},
}}

func TestVerify_Satisfied(t *testing.T) {
	cluster := k8stest.NewCluster("worker", "https://worker:6443")
	grant(cluster, secretRules)

	v := access.NewVerifier(k8s.NewApplier(cluster.Handle, nil))
	violations, err := v.Verify(context.Background(), user, namespace, secretRules)
	require.NoError(t, err)
	assert.Empty(t, violations)
	assert.NoError(t, access.AsError(violations))
}

func TestVerify_ReportsEveryMismatch(t *testing.T) {
	cluster := k8stest.NewCluster("worker", "https://worker:6443")
	grant(cluster, []rbacv1.PolicyRule{{
		APIGroups: []string{""},
		Resources: []string{"secrets"},
		Verbs:     []string{"get", "delete"},
	}})

	v := access.NewVerifier(k8s.NewApplier(cluster.Handle, nil))
	violations, err := v.Verify(context.Background(), user, namespace, secretRules)
	require.NoError(t, err)
	require.Len(t, violations, 2)

	// Expected grants are checked before expected denials.
	assert.Equal(t, "list", violations[0].Verb)
	assert.True(t, violations[0].Expected)
	assert.False(t, violations[0].Allowed)

	assert.Equal(t, "delete", violations[1].Verb)
	assert.False(t, violations[1].Expected)
	assert.True(t, violations[1].Allowed)

	err = access.AsError(violations)
	assert.True(t, errors.Is(err, access.ErrAccessViolation))
	assert.True(t, errors.Is(err, k8s.ErrPermissionDenied))

	var buf bytes.Buffer
	access.WriteReport(&buf, violations)
	assert.Contains(t, buf.String(), "secrets")
	assert.Contains(t, buf.String(), "delete")
}

func TestVerify_NamedRuleSkipsDenied(t *testing.T) {
	cluster := k8stest.NewCluster("worker", "https://worker:6443")
	// A broader grant exists: a denied check would be a false violation.
	grant(cluster, []rbacv1.PolicyRule{{
		APIGroups: []string{"apps"},
		Resources: []string{"deployments"},
		Verbs:     []string{"*"},
	}})

	named := []rbacv1.PolicyRule{{
		APIGroups:     []string{"apps"},
		Resources:     []string{"deployments"},
		Verbs:         []string{"delete", "get", "update"},
		ResourceNames: []string{"primaza-app-agent"},
	}}

	v := access.NewVerifier(k8s.NewApplier(cluster.Handle, nil))
	checks, err := v.Checks(namespace, named)
	require.NoError(t, err)
	require.Len(t, checks, 3)
	for _, c := range checks {
		assert.True(t, c.Expected)
		assert.Equal(t, "primaza-app-agent", c.Attributes.Name)
	}

	violations, err := v.Verify(context.Background(), user, namespace, named)
	require.NoError(t, err)
	assert.Empty(t, violations)
}

func TestVerifyRole(t *testing.T) {
	cluster := k8stest.NewCluster("worker", "https://worker:6443")
	grant(cluster, secretRules)

	v := access.NewVerifier(k8s.NewApplier(cluster.Handle, nil))
	violations, err := v.VerifyRole(context.Background(), user, namespace, "granted")
	require.NoError(t, err)
	assert.Empty(t, violations)

	_, err = v.VerifyRole(context.Background(), user, namespace, "missing")
	assert.True(t, errors.Is(err, k8s.ErrNotFound))
}

func TestChecks_ExpandsGroupsAndResources(t *testing.T) {
	cluster := k8stest.NewCluster("worker", "https://worker:6443")
	v := access.NewVerifier(k8s.NewApplier(cluster.Handle, nil))

	checks, err := v.Checks(namespace, []rbacv1.PolicyRule{{
		APIGroups: []string{"primaza.io"},
		Resources: []string{"servicebindings", "servicecatalogs"},
		Verbs:     []string{"get"},
	}})
	require.NoError(t, err)
	// Two resources, each checked against the default vocabulary.
	assert.Len(t, checks, 2*len(k8s.DefaultVerbs))
}
