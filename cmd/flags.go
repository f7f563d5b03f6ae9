package cmd

import (
	"os"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/spf13/pflag"

	"github.com/primaza/primazactl/internal/federation"
	"github.com/primaza/primazactl/internal/manifest"
)

// manifestFlags select the manifest a command applies.
type manifestFlags struct {
	config  string
	version string
}

func (f *manifestFlags) register(fs *pflag.FlagSet, what string) {
	fs.StringVarP(&f.config, "config", "f", "", what+" manifest file, takes precedence over --version")
	fs.StringVarP(&f.version, "version", "v", "", "primaza release to take the manifest from: a semantic version, latest or nightly")
}

// ref validates the flags. One of them is required.
func (f manifestFlags) ref() (federation.ManifestRef, error) {
	if f.config != "" {
		info, err := os.Stat(f.config)
		if err != nil {
			return federation.ManifestRef{}, errors.Mark(errors.Wrapf(err, "--config %s", f.config), federation.ErrInvalidOptions)
		}
		if info.IsDir() {
			return federation.ManifestRef{}, errors.Mark(errors.Newf("--config %s is a directory", f.config), federation.ErrInvalidOptions)
		}
		return federation.ManifestRef{Path: f.config}, nil
	}
	if f.version == "" {
		return federation.ManifestRef{}, errors.Mark(errors.New("one of --config or --version is required"), federation.ErrInvalidOptions)
	}
	if err := manifest.ValidateSelector(f.version); err != nil {
		return federation.ManifestRef{}, err
	}
	return federation.ManifestRef{Version: f.version}, nil
}

// clusterFlags locate one cluster. The kubeconfig defaults to the global
// --kubeconfig.
type clusterFlags struct {
	kubeconfig  string
	context     string
	internalURL string
}

// registerWorker adds the flags of the cluster a command works on.
func (f *clusterFlags) registerWorker(fs *pflag.FlagSet, internalURL bool) {
	fs.StringVarP(&f.context, "context", "c", "", "kubeconfig context of the cluster (default: current context)")
	if internalURL {
		fs.StringVar(&f.internalURL, "internal-url", "", "API server URL the control plane uses to reach this cluster (default: the kubeconfig server)")
	}
}

// registerTenant adds the flags of the control plane cluster.
func (f *clusterFlags) registerTenant(fs *pflag.FlagSet, internalURL bool) {
	fs.StringVarP(&f.kubeconfig, "tenant-kubeconfig", "l", "", "kubeconfig file of the control plane cluster (default: --kubeconfig)")
	fs.StringVarP(&f.context, "tenant-context", "m", "", "kubeconfig context of the control plane cluster (default: current context)")
	if internalURL {
		fs.StringVar(&f.internalURL, "tenant-internal-url", "", "API server URL worker clusters use to reach the control plane (default: the kubeconfig server)")
	}
}

func (f clusterFlags) validate(prefix string) error {
	return federation.ValidateInternalURL(prefix+"internal-url", f.internalURL)
}

// parseRoleRefs parses namespace/name pairs.
func parseRoleRefs(values []string) ([]federation.RoleRef, error) {
	refs := make([]federation.RoleRef, 0, len(values))
	for _, v := range values {
		ns, name, ok := strings.Cut(v, "/")
		if !ok {
			return nil, errors.Mark(errors.Newf("role %q must be namespace/name", v), federation.ErrInvalidOptions)
		}
		if err := federation.ValidateName("role namespace", ns); err != nil {
			return nil, err
		}
		if name == "" {
			return nil, errors.Mark(errors.Newf("role %q has no name", v), federation.ErrInvalidOptions)
		}
		refs = append(refs, federation.RoleRef{Namespace: ns, Name: name})
	}
	return refs, nil
}
