package federation_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"k8s.io/apimachinery/pkg/runtime"
	k8stesting "k8s.io/client-go/testing"

	"github.com/primaza/primazactl/internal/federation"
	"github.com/primaza/primazactl/internal/k8s"
	"github.com/primaza/primazactl/internal/k8s/k8stest"
)

func countingLoader(c *k8stest.Cluster, calls *atomic.Int32) federation.ClusterLoader {
	return func(opts k8s.ClusterOptions) (*k8s.ClusterHandle, error) {
		calls.Add(1)
		return c.Handle, nil
	}
}

func TestClusterSet_LoadsOnce(t *testing.T) {
	c := k8stest.NewCluster("main-cluster", "https://main.example.com:6443")
	var calls atomic.Int32
	set := federation.NewClusterSet(federation.WithClusterLoader(countingLoader(c, &calls)))
	opts := k8s.ClusterOptions{KubeconfigPath: "/tmp/kubeconfig", Context: "main-cluster"}

	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h, err := set.Get(context.Background(), opts)
			assert.NoError(t, err)
			assert.Same(t, c.Handle, h)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, 1, set.Size())
}

func TestClusterSet_KeyIncludesServerURL(t *testing.T) {
	c := k8stest.NewCluster("main-cluster", "https://main.example.com:6443")
	var calls atomic.Int32
	set := federation.NewClusterSet(federation.WithClusterLoader(countingLoader(c, &calls)))

	_, err := set.Get(context.Background(), k8s.ClusterOptions{KubeconfigPath: "/tmp/kubeconfig", Context: "main-cluster"})
	require.NoError(t, err)
	_, err = set.Get(context.Background(), k8s.ClusterOptions{KubeconfigPath: "/tmp/kubeconfig", Context: "main-cluster", ServerURL: "https://main.internal:6443"})
	require.NoError(t, err)

	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, 2, set.Size())
}

func TestClusterSet_PreflightFailureNotCached(t *testing.T) {
	c := k8stest.NewCluster("main-cluster", "https://main.example.com:6443")
	reachable := false
	c.Clientset.PrependReactor("get", "version", func(k8stesting.Action) (bool, runtime.Object, error) {
		if reachable {
			return false, nil, nil
		}
		return true, nil, errors.New("dial tcp 10.0.0.1:6443: connect: connection refused")
	})

	var calls atomic.Int32
	set := federation.NewClusterSet(
		federation.WithClusterLoader(countingLoader(c, &calls)),
		federation.WithPreflight(true))
	opts := k8s.ClusterOptions{KubeconfigPath: "/tmp/kubeconfig", Context: "main-cluster"}

	_, err := set.Get(context.Background(), opts)
	require.Error(t, err)
	assert.ErrorIs(t, err, federation.ErrClusterUnreachable)
	assert.Equal(t, 0, set.Size())

	reachable = true
	h, err := set.Get(context.Background(), opts)
	require.NoError(t, err)
	assert.Same(t, c.Handle, h)
	assert.Equal(t, int32(2), calls.Load())
}

func TestClusterSet_LoaderError(t *testing.T) {
	set := federation.NewClusterSet(federation.WithClusterLoader(func(k8s.ClusterOptions) (*k8s.ClusterHandle, error) {
		return nil, errors.New("context \"missing\" not found")
	}))

	_, err := set.Get(context.Background(), k8s.ClusterOptions{Context: "missing"})
	assert.ErrorContains(t, err, "missing")
	assert.Equal(t, 0, set.Size())
}
