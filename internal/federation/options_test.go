package federation_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"

	"github.com/primaza/primazactl/internal/federation"
	"github.com/primaza/primazactl/internal/k8s"
	"github.com/primaza/primazactl/internal/k8s/k8stest"
)

const validOptions = `
apiVersion: primaza.io/v1alpha1
kind: Tenant
name: primaza-system
manifestDirectory: testdata
controlPlane:
  context: main-cluster
  internalUrl: https://main.internal:6443
clusterEnvironments:
- name: worker
  environmentName: dev
  targetCluster:
    context: worker-cluster
    internalUrl: https://worker.internal:6443
  applicationNamespaces:
  - name: app1
  serviceNamespaces:
  - name: svc1
`

func TestParseOptions(t *testing.T) {
	opts, err := federation.ParseOptions([]byte(validOptions))
	require.NoError(t, err)
	assert.Equal(t, "primaza-system", opts.Name)
	require.Len(t, opts.ClusterEnvironments, 1)
	ce := opts.ClusterEnvironments[0]
	assert.Equal(t, "worker-cluster", ce.TargetCluster.Context)
	assert.Equal(t, []federation.NamespaceOptions{{Name: "app1"}}, ce.ApplicationNamespaces)
	assert.Equal(t, []federation.NamespaceOptions{{Name: "svc1"}}, ce.ServiceNamespaces)
}

func TestParseOptions_DefaultsName(t *testing.T) {
	opts, err := federation.ParseOptions([]byte("apiVersion: primaza.io/v1alpha1\nkind: Tenant\n"))
	require.NoError(t, err)
	assert.Equal(t, federation.DefaultTenant, opts.Name)
}

func TestParseOptions_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		wantErr error
	}{
		{
			name:    "unknown field",
			data:    "apiVersion: primaza.io/v1alpha1\nkind: Tenant\ncolour: blue\n",
			wantErr: federation.ErrInvalidOptions,
		},
		{
			name:    "wrong kind",
			data:    "apiVersion: primaza.io/v1alpha1\nkind: Worker\n",
			wantErr: federation.ErrInvalidOptions,
		},
		{
			name:    "bad tenant name",
			data:    "apiVersion: primaza.io/v1alpha1\nkind: Tenant\nname: Primaza_System\n",
			wantErr: federation.ErrInvalidName,
		},
		{
			name:    "bad version",
			data:    "apiVersion: primaza.io/v1alpha1\nkind: Tenant\nversion: someday\n",
			wantErr: k8s.ErrMalformedInput,
		},
		{
			name:    "relative internal url",
			data:    "apiVersion: primaza.io/v1alpha1\nkind: Tenant\ncontrolPlane:\n  internalUrl: main:6443\n",
			wantErr: federation.ErrInvalidOptions,
		},
		{
			name: "duplicate cluster environment",
			data: `apiVersion: primaza.io/v1alpha1
kind: Tenant
clusterEnvironments:
- name: worker
  environmentName: dev
- name: worker
  environmentName: prod
`,
			wantErr: federation.ErrInvalidOptions,
		},
		{
			name: "bad namespace",
			data: `apiVersion: primaza.io/v1alpha1
kind: Tenant
clusterEnvironments:
- name: worker
  environmentName: dev
  serviceNamespaces:
  - name: -svc
`,
			wantErr: federation.ErrInvalidName,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := federation.ParseOptions([]byte(tt.data))
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
		})
	}
}

func TestLoadOptions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tenant.yaml")
	require.NoError(t, os.WriteFile(path, []byte(validOptions), 0o600))

	opts, err := federation.LoadOptions(path)
	require.NoError(t, err)
	assert.Equal(t, "testdata", opts.ManifestDirectory)

	_, err = federation.LoadOptions(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestApply(t *testing.T) {
	c := newClusters()
	require.NoError(t, c.main.Clientset.Tracker().Add(runningPod("primaza-controller-manager-0", tenant)))

	byContext := map[string]*k8stest.Cluster{"main-cluster": c.main, "worker-cluster": c.worker}
	loads := 0
	clusters := federation.NewClusterSet(federation.WithClusterLoader(func(opts k8s.ClusterOptions) (*k8s.ClusterHandle, error) {
		loads++
		fc, ok := byContext[opts.Context]
		if !ok {
			return nil, errors.Newf("unknown context %q", opts.Context)
		}
		return k8s.NewClusterHandle(opts.Context, opts.ServerURL, fc.Handle.Kubeconfig(), fc.Clientset, fc.Dynamic), nil
	}))

	opts, err := federation.ParseOptions([]byte(validOptions))
	require.NoError(t, err)
	require.NoError(t, newOrchestrator(nil).Apply(context.Background(), opts, clusters))

	assert.Equal(t, 2, loads)
	assert.Equal(t, 2, clusters.Size())

	// Control plane.
	assert.NotNil(t, c.main.Get(serviceAccountGVR, tenant, "primaza-controller-manager"))

	// Worker joined, with the internal URL in its credentials.
	secret := c.main.Get(secretsGVR, tenant, "primaza-worker-kubeconfig")
	require.NotNil(t, secret)
	data, _, _ := unstructured.NestedString(secret.Object, "stringData", "kubeconfig")
	assert.Contains(t, data, "https://worker.internal:6443")

	// Agent namespaces.
	assert.NotNil(t, c.worker.Get(namespacesGVR, "", "app1"))
	assert.NotNil(t, c.worker.Get(namespacesGVR, "", "svc1"))
	assert.NotNil(t, c.worker.Get(rolesGVR, "svc1", "primaza-svc-agent"))

	ce := c.main.Get(ceGVR, tenant, "worker")
	require.NotNil(t, ce)
	apps, _, _ := unstructured.NestedStringSlice(ce.Object, "spec", "applicationNamespaces")
	svcs, _, _ := unstructured.NestedStringSlice(ce.Object, "spec", "serviceNamespaces")
	assert.Equal(t, []string{"app1"}, apps)
	assert.Equal(t, []string{"svc1"}, svcs)
}

func TestApply_StopsAtFirstFailure(t *testing.T) {
	c := newClusters()
	require.NoError(t, c.main.Clientset.Tracker().Add(runningPod("primaza-controller-manager-0", tenant)))

	clusters := federation.NewClusterSet(federation.WithClusterLoader(func(opts k8s.ClusterOptions) (*k8s.ClusterHandle, error) {
		if opts.Context == "worker-cluster" {
			return nil, errors.New("no such context")
		}
		return c.main.Handle, nil
	}))

	opts, err := federation.ParseOptions([]byte(validOptions))
	require.NoError(t, err)
	err = newOrchestrator(nil).Apply(context.Background(), opts, clusters)
	require.Error(t, err)

	var stepErr *federation.StepError
	require.True(t, errors.As(err, &stepErr))
	assert.Equal(t, "load cluster of worker", stepErr.Step)
	assert.NotNil(t, c.main.Get(serviceAccountGVR, tenant, "primaza-controller-manager"), "tenant stays installed")
	assert.Nil(t, c.main.Get(ceGVR, tenant, "worker"))
}
