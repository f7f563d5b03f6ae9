package federation

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/primaza/primazactl/internal/k8s"
	"github.com/primaza/primazactl/internal/logging"
)

// ClusterLoader builds the handle of one cluster.
type ClusterLoader func(opts k8s.ClusterOptions) (*k8s.ClusterHandle, error)

// ClusterSet keeps one handle per kubeconfig file, context and internal
// URL, so an options file naming the same cluster several times connects
// and checks it once.
type ClusterSet struct {
	mu      sync.RWMutex
	handles map[string]*k8s.ClusterHandle

	load        ClusterLoader
	preflight   bool
	logger      *slog.Logger
	createGroup singleflight.Group
}

// ClusterSetOption is a functional option for configuring ClusterSet.
type ClusterSetOption func(*ClusterSet)

// WithClusterLoader replaces k8s.LoadCluster.
func WithClusterLoader(load ClusterLoader) ClusterSetOption {
	return func(s *ClusterSet) { s.load = load }
}

// WithPreflight checks connectivity of every cluster when it is loaded.
func WithPreflight(enabled bool) ClusterSetOption {
	return func(s *ClusterSet) { s.preflight = enabled }
}

// WithClusterSetLogger sets the logger.
func WithClusterSetLogger(logger *slog.Logger) ClusterSetOption {
	return func(s *ClusterSet) { s.logger = logger }
}

// NewClusterSet creates an empty set.
func NewClusterSet(opts ...ClusterSetOption) *ClusterSet {
	s := &ClusterSet{
		handles: make(map[string]*k8s.ClusterHandle),
		load:    k8s.LoadCluster,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// cacheKey generates a composite key from the cluster options.
// Format: "${kubeconfig}|${context}|${serverURL}"
func cacheKey(opts k8s.ClusterOptions) string {
	return fmt.Sprintf("%s|%s|%s", k8s.ResolveKubeconfigPath(opts.KubeconfigPath), opts.Context, opts.ServerURL)
}

// Get returns the handle for opts, loading it on first use.
func (s *ClusterSet) Get(ctx context.Context, opts k8s.ClusterOptions) (*k8s.ClusterHandle, error) {
	key := cacheKey(opts)

	s.mu.RLock()
	handle, ok := s.handles[key]
	s.mu.RUnlock()
	if ok {
		return handle, nil
	}

	result, err, _ := s.createGroup.Do(key, func() (any, error) {
		s.mu.RLock()
		cached, ok := s.handles[key]
		s.mu.RUnlock()
		if ok {
			return cached, nil
		}

		handle, err := s.load(opts)
		if err != nil {
			return nil, err
		}
		if s.preflight {
			if err := CheckConnectivity(ctx, handle, s.logger); err != nil {
				return nil, err
			}
		}

		s.mu.Lock()
		s.handles[key] = handle
		s.mu.Unlock()

		s.logger.Debug("cluster loaded",
			logging.Context(handle.Context()),
			logging.Host(handle.Server()))
		return handle, nil
	})
	if err != nil {
		return nil, err
	}
	return result.(*k8s.ClusterHandle), nil
}

// Size returns the number of loaded clusters.
func (s *ClusterSet) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.handles)
}
