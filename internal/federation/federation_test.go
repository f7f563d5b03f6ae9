package federation_test

import (
	"context"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	corev1 "k8s.io/api/core/v1"
	rbacv1 "k8s.io/api/rbac/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/client-go/tools/clientcmd"

	"github.com/primaza/primazactl/internal/access"
	"github.com/primaza/primazactl/internal/federation"
	"github.com/primaza/primazactl/internal/k8s"
	"github.com/primaza/primazactl/internal/k8s/k8stest"
	"github.com/primaza/primazactl/internal/manifest"
	"github.com/primaza/primazactl/internal/runctx"
)

var (
	ceGVR             = schema.GroupVersionResource{Group: "primaza.io", Version: "v1alpha1", Resource: "clusterenvironments"}
	secretsGVR        = schema.GroupVersionResource{Version: "v1", Resource: "secrets"}
	serviceAccountGVR = schema.GroupVersionResource{Version: "v1", Resource: "serviceaccounts"}
	namespacesGVR     = schema.GroupVersionResource{Version: "v1", Resource: "namespaces"}
	rolesGVR          = schema.GroupVersionResource{Group: "rbac.authorization.k8s.io", Version: "v1", Resource: "roles"}
	roleBindingsGVR   = schema.GroupVersionResource{Group: "rbac.authorization.k8s.io", Version: "v1", Resource: "rolebindings"}
)

const tenant = "primaza-system"

var fastPoll = k8s.PollConfig{Interval: 50 * time.Millisecond, Timeout: 500 * time.Millisecond}

// onlineStatus is what the control plane reports for a healthy cluster
// environment.
func onlineStatus() map[string]any {
	return map[string]any{
		"state": "Online",
		"conditions": []any{
			map[string]any{"type": "Online", "status": "True"},
			map[string]any{"type": "ApplicationNamespacePermissionsRequired", "status": "False"},
			map[string]any{"type": "ServiceNamespacePermissionsRequired", "status": "False"},
		},
	}
}

type clusters struct {
	main, worker *k8stest.Cluster
}

func newClusters() clusters {
	main := k8stest.NewCluster("main-cluster", "https://main.example.com:6443").
		WithServerOverride("https://main.internal:6443")
	worker := k8stest.NewCluster("worker-cluster", "https://worker.example.com:6443").
		WithServerOverride("https://worker.internal:6443")
	main.IssueTokens()
	worker.IssueTokens()
	main.OnCreate("clusterenvironments", func(doc *unstructured.Unstructured) {
		_ = unstructured.SetNestedField(doc.Object, onlineStatus(), "status")
	})
	return clusters{main: main, worker: worker}
}

func newOrchestrator(run *runctx.RunContext) *federation.Orchestrator {
	return federation.NewOrchestrator(run,
		federation.WithResolver(manifest.NewResolver(manifest.WithReleaseLister(failingLister{}))),
		federation.WithPolls(fastPoll, fastPoll, fastPoll))
}

// failingLister makes any attempt to reach the release API fail the test.
type failingLister struct{}

func (failingLister) ListReleases(context.Context, string) ([]manifest.Release, error) {
	return nil, errors.New("release lookup not expected")
}

func localManifest(name string) federation.ManifestRef {
	return federation.ManifestRef{Path: "testdata/" + name}
}

func joinRequest() federation.JoinRequest {
	return federation.JoinRequest{
		Tenant:             tenant,
		ClusterEnvironment: "tenant1-env",
		Environment:        "dev",
		Manifest:           localManifest("crds_config.yaml"),
		ServiceAccount:     "primaza-app-tenant1",
		IdentityNamespace:  tenant,
		KubeconfigSecret:   "primaza-tenant1-kubeconfig",
	}
}

func TestJoinWorkerCluster(t *testing.T) {
	c := newClusters()
	o := newOrchestrator(nil)
	ctx := context.Background()

	require.NoError(t, o.JoinWorkerCluster(ctx, c.main.Handle, c.worker.Handle, joinRequest()))

	// Worker identity.
	require.NotNil(t, c.worker.Get(serviceAccountGVR, tenant, "primaza-app-tenant1"))

	// Kubeconfig secret on the tenant, owned by the cluster environment.
	secret := c.main.Get(secretsGVR, tenant, "primaza-tenant1-kubeconfig")
	require.NotNil(t, secret)
	owners := secret.GetOwnerReferences()
	require.Len(t, owners, 1)
	assert.Equal(t, "ClusterEnvironment", owners[0].Kind)
	assert.Equal(t, "tenant1-env", owners[0].Name)
	assert.NotEmpty(t, owners[0].UID)

	data, _, _ := unstructured.NestedString(secret.Object, "stringData", "kubeconfig")
	kc, err := clientcmd.Load([]byte(data))
	require.NoError(t, err)
	assert.Equal(t, "worker-cluster", kc.CurrentContext)
	require.Contains(t, kc.Clusters, "worker-cluster")
	assert.Equal(t, "https://worker.internal:6443", kc.Clusters["worker-cluster"].Server)
	require.Contains(t, kc.AuthInfos, "primaza-app-tenant1")
	assert.Equal(t, "token-primaza-tkn-primaza-system-tenant1-env", kc.AuthInfos["primaza-app-tenant1"].Token)

	// Cluster environment.
	ce := c.main.Get(ceGVR, tenant, "tenant1-env")
	require.NotNil(t, ce)
	ref, _, _ := unstructured.NestedString(ce.Object, "spec", "clusterContextSecret")
	assert.Equal(t, "primaza-tenant1-kubeconfig", ref)

	// Running again changes nothing.
	mainBefore, workerBefore := len(c.main.MutatingActions()), len(c.worker.MutatingActions())
	require.NoError(t, o.JoinWorkerCluster(ctx, c.main.Handle, c.worker.Handle, joinRequest()))
	assert.Len(t, c.main.MutatingActions(), mainBefore)
	assert.Len(t, c.worker.MutatingActions(), workerBefore)
}

func TestJoinWorkerCluster_ConvergenceTimeout(t *testing.T) {
	main := k8stest.NewCluster("main-cluster", "https://main.example.com:6443")
	worker := k8stest.NewCluster("worker-cluster", "https://worker.example.com:6443")
	worker.IssueTokens()

	err := newOrchestrator(nil).JoinWorkerCluster(context.Background(), main.Handle, worker.Handle, joinRequest())
	require.Error(t, err)
	assert.True(t, errors.Is(err, k8s.ErrTimeout))

	var stepErr *federation.StepError
	require.True(t, errors.As(err, &stepErr))
	assert.Equal(t, "wait for cluster environment", stepErr.Step)
	assert.Equal(t, "main-cluster", stepErr.Cluster)

	// Objects created before the failing step stay.
	assert.NotNil(t, main.Get(secretsGVR, tenant, "primaza-tenant1-kubeconfig"))
}

func TestJoinWorkerCluster_ClientDryRun(t *testing.T) {
	c := newClusters()
	run := runctx.New(runctx.DryRunClient, runctx.OutputYAML, nil)

	require.NoError(t, newOrchestrator(run).JoinWorkerCluster(context.Background(), c.main.Handle, c.worker.Handle, joinRequest()))
	assert.Empty(t, c.main.MutatingActions())
	assert.Empty(t, c.worker.MutatingActions())

	var kinds []string
	for _, item := range run.Items() {
		kinds = append(kinds, item["kind"].(string))
		if payload, ok := item["stringData"].(map[string]any); ok {
			for _, v := range payload {
				assert.Equal(t, runctx.RedactedValue, v)
			}
		}
	}
	assert.Equal(t, []string{
		"Namespace", "ClusterRole", "Role", // worker manifest
		"ServiceAccount", "Secret", // worker identity
		"ClusterEnvironment", "Secret", // tenant side
	}, kinds)
	assert.NotEmpty(t, run.Warnings())
}

func TestJoinWorkerCluster_VerifiesRoles(t *testing.T) {
	req := federation.JoinRequest{
		Tenant:             tenant,
		ClusterEnvironment: "env1",
		Environment:        "dev",
		Manifest:           localManifest("crds_config.yaml"),
		VerifyRoles:        []federation.RoleRef{{Namespace: "kube-system", Name: "primaza-worker"}},
	}
	user := req.WorkerIdentity()

	t.Run("granted", func(t *testing.T) {
		c := newClusters()
		c.worker.Add(federation.RoleBinding("primaza-worker", "kube-system", "primaza-worker", user.Namespace, user.ServiceAccount))
		assert.NoError(t, newOrchestrator(nil).JoinWorkerCluster(context.Background(), c.main.Handle, c.worker.Handle, req))
	})

	t.Run("not granted", func(t *testing.T) {
		c := newClusters()
		err := newOrchestrator(nil).JoinWorkerCluster(context.Background(), c.main.Handle, c.worker.Handle, req)
		require.Error(t, err)
		assert.True(t, errors.Is(err, access.ErrAccessViolation))
		assert.True(t, errors.Is(err, k8s.ErrPermissionDenied))

		var perm *k8s.PermissionError
		require.True(t, errors.As(err, &perm))
		// get and list expected but denied; no other verb is granted.
		assert.Len(t, perm.Violations, 2)

		// Verification runs before the cluster environment is awaited but
		// after it is created.
		assert.NotNil(t, c.main.Get(ceGVR, tenant, "env1"))
	})
}

func TestJoinWorkerCluster_SelfCheckBlocksManifest(t *testing.T) {
	c := newClusters()
	c.worker.DenySelf("create", rbacv1.GroupName, "clusterroles")

	err := newOrchestrator(nil).JoinWorkerCluster(context.Background(), c.main.Handle, c.worker.Handle, joinRequest())
	require.Error(t, err)
	assert.True(t, errors.Is(err, k8s.ErrPermissionDenied))
	assert.Empty(t, c.worker.MutatingActions())
	assert.Empty(t, c.main.MutatingActions())
}

func TestJoinWorkerCluster_InvalidNames(t *testing.T) {
	c := newClusters()
	req := joinRequest()
	req.ClusterEnvironment = "Not_Valid"

	err := newOrchestrator(nil).JoinWorkerCluster(context.Background(), c.main.Handle, c.worker.Handle, req)
	assert.True(t, errors.Is(err, federation.ErrInvalidName))
	assert.Empty(t, c.worker.Dynamic.Actions())
}

func TestOnboardAgentNamespace(t *testing.T) {
	c := newClusters()
	o := newOrchestrator(nil)
	ctx := context.Background()

	join := federation.JoinRequest{
		Tenant:             tenant,
		ClusterEnvironment: "env1",
		Environment:        "dev",
		Manifest:           localManifest("crds_config.yaml"),
	}
	require.NoError(t, o.JoinWorkerCluster(ctx, c.main.Handle, c.worker.Handle, join))

	req := federation.NamespaceRequest{
		Tenant:             tenant,
		ClusterEnvironment: "env1",
		Namespace:          "app1",
		Type:               federation.AgentApplication,
		Manifest:           localManifest("application_namespace_config.yaml"),
		ControlPlaneRole:   true,
	}
	require.NoError(t, o.OnboardAgentNamespace(ctx, c.main.Handle, c.worker.Handle, req))

	// Tenant side: agent identity and its control plane binding.
	agent := req.AgentIdentity()
	assert.Equal(t, "primaza-app-primaza-system-env1", agent.ServiceAccount)
	assert.NotNil(t, c.main.Get(serviceAccountGVR, tenant, agent.ServiceAccount))
	binding := c.main.Get(roleBindingsGVR, tenant, agent.ServiceAccount+":controlplane")
	require.NotNil(t, binding)
	roleName, _, _ := unstructured.NestedString(binding.Object, "roleRef", "name")
	assert.Equal(t, "primaza:controlplane:app", roleName)

	// Worker side.
	assert.NotNil(t, c.worker.Get(namespacesGVR, "", "app1"))
	authSecret := c.worker.Get(secretsGVR, "app1", "primaza-auth-env1")
	require.NotNil(t, authSecret)
	data, _, _ := unstructured.NestedString(authSecret.Object, "stringData", "kubeconfig")
	kc, err := clientcmd.Load([]byte(data))
	require.NoError(t, err)
	assert.Equal(t, "https://main.internal:6443", kc.Clusters["main-cluster"].Server)

	assert.NotNil(t, c.worker.Get(serviceAccountGVR, "app1", "primaza-app-agent"))
	assert.NotNil(t, c.worker.Get(rolesGVR, "app1", "primaza-app-agent"), "agent manifest retargeted")

	worker := req.WorkerIdentity()
	role := c.worker.Get(rolesGVR, "app1", worker.ServiceAccount)
	require.NotNil(t, role)
	assert.Equal(t, "primazactl", role.GetLabels()["app.kubernetes.io/managed-by"])
	assert.NotNil(t, c.worker.Get(roleBindingsGVR, "app1", worker.ServiceAccount+"-app-binding"))

	// Cluster environment lists the namespace.
	ce := c.main.Get(ceGVR, tenant, "env1")
	apps, _, _ := unstructured.NestedStringSlice(ce.Object, "spec", "applicationNamespaces")
	assert.Equal(t, []string{"app1"}, apps)

	// A service namespace goes to the other list.
	svc := req
	svc.Namespace = "svc1"
	svc.Type = federation.AgentService
	svc.Manifest = localManifest("service_namespace_config.yaml")
	require.NoError(t, o.OnboardAgentNamespace(ctx, c.main.Handle, c.worker.Handle, svc))
	ce = c.main.Get(ceGVR, tenant, "env1")
	svcs, _, _ := unstructured.NestedStringSlice(ce.Object, "spec", "serviceNamespaces")
	assert.Equal(t, []string{"svc1"}, svcs)
	apps, _, _ = unstructured.NestedStringSlice(ce.Object, "spec", "applicationNamespaces")
	assert.Equal(t, []string{"app1"}, apps)

	// Running again changes nothing.
	before := len(c.worker.MutatingActions()) + len(c.main.MutatingActions())
	require.NoError(t, o.OnboardAgentNamespace(ctx, c.main.Handle, c.worker.Handle, req))
	assert.Equal(t, before, len(c.worker.MutatingActions())+len(c.main.MutatingActions()))
}

func TestOnboardAgentNamespace_MissingClusterEnvironment(t *testing.T) {
	c := newClusters()
	req := federation.NamespaceRequest{
		Tenant:             tenant,
		ClusterEnvironment: "env1",
		Namespace:          "app1",
		Type:               federation.AgentApplication,
		Manifest:           localManifest("application_namespace_config.yaml"),
	}

	err := newOrchestrator(nil).OnboardAgentNamespace(context.Background(), c.main.Handle, c.worker.Handle, req)
	require.Error(t, err)
	assert.True(t, errors.Is(err, k8s.ErrNotFound))

	var stepErr *federation.StepError
	require.True(t, errors.As(err, &stepErr))
	assert.Equal(t, "list namespace in cluster environment", stepErr.Step)
}

func TestInstallTenant(t *testing.T) {
	c := newClusters()
	require.NoError(t, c.main.Clientset.Tracker().Add(runningPod("primaza-controller-manager-7d9f", tenant)))
	o := newOrchestrator(nil)
	req := federation.TenantRequest{Tenant: tenant, Manifest: localManifest("control_plane_config.yaml")}

	require.NoError(t, o.InstallTenant(context.Background(), c.main.Handle, req))
	assert.NotNil(t, c.main.Get(serviceAccountGVR, tenant, "primaza-controller-manager"))

	require.NoError(t, o.UninstallTenant(context.Background(), c.main.Handle, req))
	assert.Nil(t, c.main.Get(serviceAccountGVR, tenant, "primaza-controller-manager"))
	assert.Nil(t, c.main.Get(namespacesGVR, "", tenant))
}

func TestInstallTenant_ControllerNotRunning(t *testing.T) {
	c := newClusters()
	req := federation.TenantRequest{Tenant: tenant, Manifest: localManifest("control_plane_config.yaml")}

	err := newOrchestrator(nil).InstallTenant(context.Background(), c.main.Handle, req)
	require.Error(t, err)
	assert.True(t, errors.Is(err, k8s.ErrTimeout))
	assert.Contains(t, err.Error(), "wait for controller")
}

func TestInstallTenant_ServerDryRunSkipsControllerWait(t *testing.T) {
	c := newClusters()
	run := runctx.New(runctx.DryRunServer, runctx.OutputNone, nil)
	req := federation.TenantRequest{Tenant: tenant, Manifest: localManifest("control_plane_config.yaml")}

	require.NoError(t, newOrchestrator(run).InstallTenant(context.Background(), c.main.Handle, req))
}

func TestInstallTenant_RejectsBadVersion(t *testing.T) {
	c := newClusters()
	req := federation.TenantRequest{Tenant: tenant, Manifest: federation.ManifestRef{Version: "not-a-version"}}

	err := newOrchestrator(nil).InstallTenant(context.Background(), c.main.Handle, req)
	assert.True(t, errors.Is(err, k8s.ErrMalformedInput))
}

func runningPod(name, namespace string) *corev1.Pod {
	return &corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{Name: name, Namespace: namespace},
		Status:     corev1.PodStatus{Phase: corev1.PodRunning},
	}
}
