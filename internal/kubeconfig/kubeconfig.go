// Package kubeconfig derives minimized kubeconfig documents that are safe
// to hand to another cluster: one cluster, one user, one context.
package kubeconfig

import (
	"github.com/cockroachdb/errors"
	"k8s.io/client-go/tools/clientcmd"
	clientcmdapi "k8s.io/client-go/tools/clientcmd/api"

	"github.com/primaza/primazactl/internal/k8s"
)

// ErrContextNotFound indicates that the requested context is not in the
// kubeconfig. It also matches k8s.ErrNotFound.
var ErrContextNotFound = errors.Mark(errors.New("context not found"), k8s.ErrNotFound)

// Scope returns a kubeconfig holding only the cluster, user and context
// entries of contextName. When the context's user is itself the name of a
// context, that context entry is kept as well. The input is not modified.
// A context whose cluster or user entry is missing is malformed.
func Scope(cfg *clientcmdapi.Config, contextName string) (*clientcmdapi.Config, error) {
	ctx, ok := cfg.Contexts[contextName]
	if !ok {
		return nil, errors.Wrapf(ErrContextNotFound, "%q", contextName)
	}

	cluster, ok := cfg.Clusters[ctx.Cluster]
	if !ok {
		return nil, k8s.Malformed("context %q references missing cluster %q", contextName, ctx.Cluster)
	}
	user, ok := cfg.AuthInfos[ctx.AuthInfo]
	if !ok {
		return nil, k8s.Malformed("context %q references missing user %q", contextName, ctx.AuthInfo)
	}

	out := clientcmdapi.NewConfig()
	out.Contexts[contextName] = ctx.DeepCopy()
	out.Clusters[ctx.Cluster] = cluster.DeepCopy()
	out.AuthInfos[ctx.AuthInfo] = user.DeepCopy()
	if ctx.AuthInfo != contextName {
		if userCtx, ok := cfg.Contexts[ctx.AuthInfo]; ok {
			out.Contexts[ctx.AuthInfo] = userCtx.DeepCopy()
		}
	}
	out.CurrentContext = contextName
	return out, nil
}

// WithToken returns a copy of cfg whose only user is user, authenticating
// with token. Every context is switched to that user.
func WithToken(cfg *clientcmdapi.Config, user, token string) *clientcmdapi.Config {
	out := cfg.DeepCopy()
	out.AuthInfos = map[string]*clientcmdapi.AuthInfo{
		user: {Token: token},
	}
	for _, ctx := range out.Contexts {
		ctx.AuthInfo = user
	}
	return out
}

// WithServer returns a copy of cfg whose current context's cluster is
// reached at server. An empty server leaves cfg unchanged.
func WithServer(cfg *clientcmdapi.Config, server string) *clientcmdapi.Config {
	out := cfg.DeepCopy()
	if server == "" {
		return out
	}
	if ctx, ok := out.Contexts[out.CurrentContext]; ok {
		if cluster, ok := out.Clusters[ctx.Cluster]; ok {
			cluster.Server = server
		}
	}
	return out
}

// Server returns the server address of the current context's cluster.
func Server(cfg *clientcmdapi.Config) string {
	if ctx, ok := cfg.Contexts[cfg.CurrentContext]; ok {
		if cluster, ok := cfg.Clusters[ctx.Cluster]; ok {
			return cluster.Server
		}
	}
	return ""
}

// Serialize renders cfg as a kubeconfig YAML document.
func Serialize(cfg *clientcmdapi.Config) ([]byte, error) {
	data, err := clientcmd.Write(*cfg)
	if err != nil {
		return nil, errors.Wrap(err, "failed to serialize kubeconfig")
	}
	return data, nil
}

// Load parses a kubeconfig document.
func Load(data []byte) (*clientcmdapi.Config, error) {
	cfg, err := clientcmd.Load(data)
	if err != nil {
		return nil, errors.Mark(errors.Wrap(err, "failed to parse kubeconfig"), k8s.ErrMalformedInput)
	}
	return cfg, nil
}
