package identity

import (
	"fmt"
	"strings"
)

// User types distinguish the identities created for one tenant.
const (
	UserTypeApplication = "app"
	UserTypeService     = "svc"
)

// MaxNameLength bounds every generated object name.
const MaxNameLength = 63

// WorkerNamespace hosts the identity a tenant uses to reach a worker cluster.
const WorkerNamespace = "kube-system"

// ServiceAccountName names the identity of tenant on provider. A non-empty
// userType is included to tell apart identities of the same pair.
func ServiceAccountName(tenant, provider, userType string) string {
	if userType == "" {
		return boundName(fmt.Sprintf("primaza-%s-%s", tenant, provider))
	}
	return boundName(fmt.Sprintf("primaza-%s-%s-%s", userType, tenant, provider))
}

// TokenSecretName names the token secret of the identity named by the same
// arguments.
func TokenSecretName(tenant, provider, userType string) string {
	if userType == "" {
		return boundName(fmt.Sprintf("primaza-tkn-%s-%s", tenant, provider))
	}
	return boundName(fmt.Sprintf("primaza-tkn-%s-%s-%s", userType, tenant, provider))
}

// KubeconfigSecretName names the secret holding the kubeconfig of owner,
// usually a cluster environment.
func KubeconfigSecretName(owner string) string {
	return boundName(fmt.Sprintf("primaza-%s-kubeconfig", owner))
}

// AuthSecretName names the secret agents of a worker namespace use to
// reach the control plane of clusterEnvironment.
func AuthSecretName(clusterEnvironment string) string {
	return boundName("primaza-auth-" + clusterEnvironment)
}

// AgentServiceAccountName names the agent identity of a worker namespace.
func AgentServiceAccountName(agentType string) string {
	return boundName(fmt.Sprintf("primaza-%s-agent", agentType))
}

// ControlPlaneRoleName names the control plane Role granted to userType.
func ControlPlaneRoleName(userType string) string {
	return boundName("primaza:controlplane:" + userType)
}

// ControlPlaneRoleBindingName names the binding of the control plane Role
// to serviceAccount.
func ControlPlaneRoleBindingName(serviceAccount string) string {
	return boundName(serviceAccount + ":controlplane")
}

// NamespaceRoleBindingName names the binding of the primaza namespace role
// in an agent namespace.
func NamespaceRoleBindingName(role, agentType string) string {
	return boundName(fmt.Sprintf("%s-%s-binding", role, agentType))
}

func boundName(name string) string {
	if len(name) <= MaxNameLength {
		return name
	}
	return strings.TrimRight(name[:MaxNameLength], "-.:")
}
