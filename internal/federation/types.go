package federation

import (
	"github.com/primaza/primazactl/internal/clusterenv"
	"github.com/primaza/primazactl/internal/identity"
	"github.com/primaza/primazactl/internal/manifest"
)

// DefaultTenant is the tenant used when none is given.
const DefaultTenant = "primaza-system"

// Workflow names, used in spans, metrics and errors.
const (
	WorkflowInstallTenant   = "create-tenant"
	WorkflowUninstallTenant = "delete-tenant"
	WorkflowJoinCluster     = "join-cluster"
	WorkflowCreateNamespace = "create-namespace"
	WorkflowApplyOptions    = "apply"
)

// ManifestRef selects a manifest: a local file, or a release of the
// primaza repository.
type ManifestRef struct {
	Path    string
	Version string
}

func (m ManifestRef) source(typ manifest.Type, namespace string) manifest.Source {
	return manifest.Source{Path: m.Path, Version: m.Version, Type: typ, Namespace: namespace}
}

// TenantRequest installs or removes the control plane of a tenant.
type TenantRequest struct {
	// Tenant is the control plane namespace.
	Tenant   string
	Manifest ManifestRef
}

// RoleRef names a Role whose rules an identity must satisfy.
type RoleRef struct {
	Namespace string
	Name      string
}

// JoinRequest registers a worker cluster with a tenant.
type JoinRequest struct {
	Tenant             string
	ClusterEnvironment string
	// Environment is the environment name recorded in the cluster
	// environment, for example "dev" or "prod".
	Environment string
	Manifest    ManifestRef

	// ServiceAccount, IdentityNamespace, TokenSecret and KubeconfigSecret
	// override the conventional names.
	ServiceAccount    string
	IdentityNamespace string
	TokenSecret       string
	KubeconfigSecret  string

	// VerifyRoles are checked against the worker identity once it exists.
	VerifyRoles []RoleRef
}

// WorkerIdentity returns the identity the tenant uses on the worker cluster.
func (r JoinRequest) WorkerIdentity() identity.Identity {
	return workerIdentity(r.Tenant, r.ClusterEnvironment, r.ServiceAccount, r.IdentityNamespace, r.TokenSecret)
}

// SecretName returns the name of the kubeconfig secret on the tenant cluster.
func (r JoinRequest) SecretName() string {
	if r.KubeconfigSecret != "" {
		return r.KubeconfigSecret
	}
	return identity.KubeconfigSecretName(r.ClusterEnvironment)
}

// AgentType tells application namespaces from service namespaces.
type AgentType string

const (
	AgentApplication AgentType = "application"
	AgentService     AgentType = "service"
)

// UserType is the short form used in identity names.
func (t AgentType) UserType() string {
	if t == AgentService {
		return identity.UserTypeService
	}
	return identity.UserTypeApplication
}

// ManifestType is the agent manifest deployed into the namespace.
func (t AgentType) ManifestType() manifest.Type {
	if t == AgentService {
		return manifest.ServiceAgentConfig
	}
	return manifest.ApplicationAgentConfig
}

// NamespaceList is the cluster environment list the namespace is added to.
func (t AgentType) NamespaceList() clusterenv.NamespaceList {
	if t == AgentService {
		return clusterenv.ServiceNamespaces
	}
	return clusterenv.ApplicationNamespaces
}

// ParseAgentType accepts "application" and "service".
func ParseAgentType(s string) (AgentType, error) {
	switch t := AgentType(s); t {
	case AgentApplication, AgentService:
		return t, nil
	}
	return "", &ValidationError{Field: "agent type", Value: s, Reason: "must be application or service", Err: ErrInvalidOptions}
}

// NamespaceRequest onboards an agent namespace on a joined worker cluster.
type NamespaceRequest struct {
	Tenant             string
	ClusterEnvironment string
	Namespace          string
	Type               AgentType
	Manifest           ManifestRef

	// WorkerServiceAccount and WorkerIdentityNamespace name the worker
	// identity created when the cluster was joined. Empty values use the
	// conventional names.
	WorkerServiceAccount    string
	WorkerIdentityNamespace string

	// ControlPlaneRole, when set, binds the namespace's control plane
	// identity to the Role of that name in the tenant namespace.
	ControlPlaneRole bool
}

// WorkerIdentity returns the identity of the tenant on the worker cluster.
func (r NamespaceRequest) WorkerIdentity() identity.Identity {
	return workerIdentity(r.Tenant, r.ClusterEnvironment, r.WorkerServiceAccount, r.WorkerIdentityNamespace, "")
}

// AgentIdentity returns the identity the namespace's agents use on the
// tenant cluster.
func (r NamespaceRequest) AgentIdentity() identity.Identity {
	userType := r.Type.UserType()
	return identity.Identity{
		ServiceAccount: identity.ServiceAccountName(r.Tenant, r.ClusterEnvironment, userType),
		TokenSecret:    identity.TokenSecretName(r.Tenant, r.ClusterEnvironment, userType),
		Namespace:      r.Tenant,
		Tenant:         r.Tenant,
	}
}

func workerIdentity(tenant, clusterEnvironment, serviceAccount, namespace, tokenSecret string) identity.Identity {
	id := identity.Identity{
		ServiceAccount: serviceAccount,
		TokenSecret:    tokenSecret,
		Namespace:      namespace,
		Tenant:         tenant,
	}
	if id.ServiceAccount == "" {
		id.ServiceAccount = identity.ServiceAccountName(tenant, clusterEnvironment, "")
	}
	if id.TokenSecret == "" {
		id.TokenSecret = identity.TokenSecretName(tenant, clusterEnvironment, "")
	}
	if id.Namespace == "" {
		id.Namespace = identity.WorkerNamespace
	}
	return id
}
