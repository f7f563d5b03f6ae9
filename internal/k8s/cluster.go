package k8s

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/cockroachdb/errors"
	"k8s.io/client-go/discovery"
	"k8s.io/client-go/dynamic"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
	clientcmdapi "k8s.io/client-go/tools/clientcmd/api"
)

// ClusterOptions identifies one cluster in a kubeconfig file.
type ClusterOptions struct {
	// KubeconfigPath is the kubeconfig file. When empty, KUBECONFIG and then
	// ~/.kube/config are used.
	KubeconfigPath string
	// Context is the kubeconfig context. When empty the current context is used.
	Context string
	// ServerURL replaces the API server address recorded in the kubeconfig
	// in credentials handed to other clusters.
	ServerURL string
}

// ClusterHandle bundles the credentials and clients addressing one cluster.
// A handle is owned by the component working on that cluster and is never
// shared across clusters.
type ClusterHandle struct {
	context   string
	serverURL string

	raw        *clientcmdapi.Config
	restConfig *rest.Config
	clientset  kubernetes.Interface
	dynamic    dynamic.Interface
}

// ResolveKubeconfigPath returns the explicit path, or KUBECONFIG with a
// leading "~/" expanded, or the default ~/.kube/config.
func ResolveKubeconfigPath(explicit string) string {
	if explicit != "" {
		return explicit
	}
	kconf := os.Getenv("KUBECONFIG")
	if strings.HasPrefix(kconf, "~/") {
		uhd, _ := os.UserHomeDir()
		kconf = filepath.Join(uhd, kconf[2:])
	}
	if kconf != "" {
		return kconf
	}
	return clientcmd.RecommendedHomeFile
}

// LoadCluster loads the kubeconfig and builds the clients for one context.
func LoadCluster(opts ClusterOptions) (*ClusterHandle, error) {
	loadingRules := clientcmd.NewDefaultClientConfigLoadingRules()
	loadingRules.ExplicitPath = ResolveKubeconfigPath(opts.KubeconfigPath)

	config := clientcmd.NewNonInteractiveDeferredLoadingClientConfig(
		loadingRules,
		&clientcmd.ConfigOverrides{CurrentContext: opts.Context},
	)

	rawConfig, err := config.RawConfig()
	if err != nil {
		return nil, errors.Wrapf(err, "failed to load kubeconfig %s", loadingRules.ExplicitPath)
	}

	contextName := opts.Context
	if contextName == "" {
		contextName = rawConfig.CurrentContext
	}
	if _, ok := rawConfig.Contexts[contextName]; !ok {
		return nil, errors.Wrapf(ErrNotFound, "context %q in kubeconfig %s", contextName, loadingRules.ExplicitPath)
	}

	restConfig, err := config.ClientConfig()
	if err != nil {
		return nil, errors.Wrapf(err, "failed to build client config for context %q", contextName)
	}
	restConfig.QPS = DefaultQPSLimit
	restConfig.Burst = DefaultBurstLimit
	restConfig.Timeout = DefaultTimeout
	restConfig.UserAgent = FieldManager

	clientset, err := kubernetes.NewForConfig(restConfig)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create clientset")
	}
	dynamicClient, err := dynamic.NewForConfig(restConfig)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create dynamic client")
	}

	return &ClusterHandle{
		context:    contextName,
		serverURL:  opts.ServerURL,
		raw:        &rawConfig,
		restConfig: restConfig,
		clientset:  clientset,
		dynamic:    dynamicClient,
	}, nil
}

// NewClusterHandle assembles a handle from existing clients. It is used by
// tests and by callers that build their own clients.
func NewClusterHandle(contextName, serverURL string, raw *clientcmdapi.Config, clientset kubernetes.Interface, dynamicClient dynamic.Interface) *ClusterHandle {
	return &ClusterHandle{
		context:   contextName,
		serverURL: serverURL,
		raw:       raw,
		clientset: clientset,
		dynamic:   dynamicClient,
	}
}

// Context returns the kubeconfig context name.
func (c *ClusterHandle) Context() string { return c.context }

// ServerOverride returns the explicit server address, or "" when the
// kubeconfig address is used.
func (c *ClusterHandle) ServerOverride() string { return c.serverURL }

// Server returns the API server address other clusters should use to
// reach this cluster.
func (c *ClusterHandle) Server() string {
	if c.serverURL != "" {
		return c.serverURL
	}
	if c.raw == nil {
		return ""
	}
	if ctx, ok := c.raw.Contexts[c.context]; ok {
		if cluster, ok := c.raw.Clusters[ctx.Cluster]; ok {
			return cluster.Server
		}
	}
	return ""
}

// Kubeconfig returns a copy of the full kubeconfig the handle was loaded from.
func (c *ClusterHandle) Kubeconfig() *clientcmdapi.Config {
	if c.raw == nil {
		return clientcmdapi.NewConfig()
	}
	return c.raw.DeepCopy()
}

// Clientset returns the typed client.
func (c *ClusterHandle) Clientset() kubernetes.Interface { return c.clientset }

// Dynamic returns the dynamic client.
func (c *ClusterHandle) Dynamic() dynamic.Interface { return c.dynamic }

// Discovery returns the discovery client.
func (c *ClusterHandle) Discovery() discovery.DiscoveryInterface {
	return c.clientset.Discovery()
}

// RESTConfig returns the client configuration, nil for handles built from
// existing clients.
func (c *ClusterHandle) RESTConfig() *rest.Config { return c.restConfig }
