package federation

import (
	"strings"

	rbacv1 "k8s.io/api/rbac/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

// Agent object names the namespace role grants access to by name.
const (
	ApplicationAgentDeployment = "primaza-app-agent"
	ServiceAgentDeployment     = "primaza-svc-agent"
	ApplicationAgentConfigMap  = "primaza-agentapp-config"
	ServiceAgentConfigMap      = "primaza-agentsvc-config"
)

// NamespaceRole is the Role the tenant's worker identity receives in every
// agent namespace. It covers both agent types.
func NamespaceRole(name, namespace string) *rbacv1.Role {
	return &rbacv1.Role{
		TypeMeta: metav1.TypeMeta{APIVersion: rbacv1.SchemeGroupVersion.String(), Kind: "Role"},
		ObjectMeta: metav1.ObjectMeta{
			Name:      name,
			Namespace: namespace,
			Labels: map[string]string{
				"app.kubernetes.io/component":  "coreV1",
				"app.kubernetes.io/created-by": "primaza",
				"app.kubernetes.io/instance":   strings.ReplaceAll(name, ":", "-"),
				"app.kubernetes.io/managed-by": "primazactl",
				"app.kubernetes.io/name":       "rolebinding",
				"app.kubernetes.io/part-of":    "primaza",
			},
		},
		Rules: namespaceRules(),
	}
}

func namespaceRules() []rbacv1.PolicyRule {
	return []rbacv1.PolicyRule{
		// shared
		{APIGroups: []string{"apps"}, Resources: []string{"deployments"}, Verbs: []string{"create"}},
		{APIGroups: []string{""}, Resources: []string{"configmaps"}, Verbs: []string{"create"}},
		{
			APIGroups: []string{""},
			Resources: []string{"secrets"},
			// get and list are shared, create, update and delete serve
			// application namespaces, watch the pull strategy of service
			// namespaces.
			Verbs: []string{"get", "list", "create", "update", "delete", "watch"},
		},

		// application namespace
		{
			APIGroups:     []string{"apps"},
			Resources:     []string{"deployments"},
			Verbs:         []string{"delete", "get", "update"},
			ResourceNames: []string{ApplicationAgentDeployment},
		},
		{
			APIGroups: []string{"primaza.io"},
			Resources: []string{"servicebindings", "servicecatalogs"},
			Verbs:     []string{"get", "list", "watch", "create", "update", "delete"},
		},
		{
			APIGroups:     []string{""},
			Resources:     []string{"configmaps"},
			Verbs:         []string{"get", "list", "update", "delete"},
			ResourceNames: []string{ApplicationAgentConfigMap},
		},
		{APIGroups: []string{"primaza.io"}, Resources: []string{"serviceclaims"}, Verbs: []string{"get", "list", "watch"}},

		// service namespace
		{
			APIGroups:     []string{"apps"},
			Resources:     []string{"deployments"},
			Verbs:         []string{"delete", "get", "update"},
			ResourceNames: []string{ServiceAgentDeployment},
		},
		{
			APIGroups:     []string{""},
			Resources:     []string{"configmaps"},
			Verbs:         []string{"get", "list", "update", "delete"},
			ResourceNames: []string{ServiceAgentConfigMap},
		},
		{
			APIGroups: []string{"primaza.io"},
			Resources: []string{"serviceclasses"},
			Verbs:     []string{"get", "list", "watch", "create", "update", "patch", "delete"},
		},
		{APIGroups: []string{"primaza.io"}, Resources: []string{"registeredservices"}, Verbs: []string{"get", "list", "watch"}},
	}
}

// RoleBinding binds the Role roleName in namespace to a service account.
func RoleBinding(name, namespace, roleName, saNamespace, saName string) *rbacv1.RoleBinding {
	return &rbacv1.RoleBinding{
		TypeMeta: metav1.TypeMeta{APIVersion: rbacv1.SchemeGroupVersion.String(), Kind: "RoleBinding"},
		ObjectMeta: metav1.ObjectMeta{
			Name:      name,
			Namespace: namespace,
		},
		RoleRef: rbacv1.RoleRef{
			APIGroup: rbacv1.GroupName,
			Kind:     "Role",
			Name:     roleName,
		},
		Subjects: []rbacv1.Subject{{
			Kind:      rbacv1.ServiceAccountKind,
			Name:      saName,
			Namespace: saNamespace,
		}},
	}
}
