package federation

import (
	"context"
	"os"
	"path/filepath"

	"github.com/cockroachdb/errors"
	"sigs.k8s.io/yaml"

	"github.com/primaza/primazactl/internal/k8s"
	"github.com/primaza/primazactl/internal/manifest"
)

// Options file identification.
const (
	OptionsAPIVersion = "primaza.io/v1alpha1"
	OptionsKind       = "Tenant"
)

// TenantOptions describes a tenant, its worker clusters and their agent
// namespaces in one file.
type TenantOptions struct {
	APIVersion          string                      `json:"apiVersion"`
	Kind                string                      `json:"kind"`
	Name                string                      `json:"name"`
	Version             string                      `json:"version,omitempty"`
	ManifestDirectory   string                      `json:"manifestDirectory,omitempty"`
	ControlPlane        ClusterOptions              `json:"controlPlane"`
	ClusterEnvironments []ClusterEnvironmentOptions `json:"clusterEnvironments,omitempty"`
}

// ClusterOptions locates a cluster.
type ClusterOptions struct {
	Kubeconfig  string `json:"kubeconfig,omitempty"`
	Context     string `json:"context,omitempty"`
	InternalURL string `json:"internalUrl,omitempty"`
}

type ClusterEnvironmentOptions struct {
	Name                  string             `json:"name"`
	EnvironmentName       string             `json:"environmentName"`
	TargetCluster         ClusterOptions     `json:"targetCluster"`
	ApplicationNamespaces []NamespaceOptions `json:"applicationNamespaces,omitempty"`
	ServiceNamespaces     []NamespaceOptions `json:"serviceNamespaces,omitempty"`
}

type NamespaceOptions struct {
	Name string `json:"name"`
}

// LoadOptions reads and validates an options file. Unknown fields are
// rejected.
func LoadOptions(path string) (*TenantOptions, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading options file %s", path)
	}
	return ParseOptions(data)
}

// ParseOptions decodes and validates options.
func ParseOptions(data []byte) (*TenantOptions, error) {
	var opts TenantOptions
	if err := yaml.UnmarshalStrict(data, &opts); err != nil {
		return nil, errors.Mark(errors.Wrap(err, "decoding options"), ErrInvalidOptions)
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	return &opts, nil
}

// Validate checks identification, names and URLs.
func (t *TenantOptions) Validate() error {
	if t.APIVersion != OptionsAPIVersion || t.Kind != OptionsKind {
		return errors.Mark(errors.Newf("options must be %s %s, got %s %s",
			OptionsAPIVersion, OptionsKind, t.APIVersion, t.Kind), ErrInvalidOptions)
	}
	if t.Name == "" {
		t.Name = DefaultTenant
	}
	if err := ValidateName("name", t.Name); err != nil {
		return err
	}
	if t.Version != "" {
		if err := manifest.ValidateSelector(t.Version); err != nil {
			return err
		}
	}
	if err := ValidateInternalURL("controlPlane.internalUrl", t.ControlPlane.InternalURL); err != nil {
		return err
	}

	seen := map[string]bool{}
	for _, ce := range t.ClusterEnvironments {
		if err := validateNames("clusterEnvironments.name", ce.Name, "environmentName", ce.EnvironmentName); err != nil {
			return err
		}
		if seen[ce.Name] {
			return errors.Mark(errors.Newf("cluster environment %q listed twice", ce.Name), ErrInvalidOptions)
		}
		seen[ce.Name] = true
		if err := ValidateInternalURL("targetCluster.internalUrl", ce.TargetCluster.InternalURL); err != nil {
			return err
		}
		for _, ns := range append(append([]NamespaceOptions{}, ce.ApplicationNamespaces...), ce.ServiceNamespaces...) {
			if err := ValidateName("namespace", ns.Name); err != nil {
				return err
			}
		}
	}
	return nil
}

// manifestRef selects the manifest of typ: the file in ManifestDirectory
// when set, else the release Version.
func (t *TenantOptions) manifestRef(typ manifest.Type) ManifestRef {
	if t.ManifestDirectory != "" {
		return ManifestRef{Path: filepath.Join(t.ManifestDirectory, typ.FileName())}
	}
	return ManifestRef{Version: t.Version}
}

func (c ClusterOptions) clusterOptions() k8s.ClusterOptions {
	return k8s.ClusterOptions{KubeconfigPath: c.Kubeconfig, Context: c.Context, ServerURL: c.InternalURL}
}

// Apply installs the tenant, joins every cluster environment and onboards
// every namespace, in file order.
func (o *Orchestrator) Apply(ctx context.Context, opts *TenantOptions, clusters *ClusterSet) error {
	return o.workflow(ctx, WorkflowApplyOptions, opts.Name, func(ctx context.Context) error {
		main, err := clusters.Get(ctx, opts.ControlPlane.clusterOptions())
		if err != nil {
			return step(WorkflowApplyOptions, "load control plane cluster", nil, err)
		}

		err = o.InstallTenant(ctx, main, TenantRequest{
			Tenant:   opts.Name,
			Manifest: opts.manifestRef(manifest.ControlPlaneConfig),
		})
		if err != nil {
			return err
		}

		for _, ce := range opts.ClusterEnvironments {
			worker, err := clusters.Get(ctx, ce.TargetCluster.clusterOptions())
			if err != nil {
				return step(WorkflowApplyOptions, "load cluster of "+ce.Name, nil, err)
			}
			err = o.JoinWorkerCluster(ctx, main, worker, JoinRequest{
				Tenant:             opts.Name,
				ClusterEnvironment: ce.Name,
				Environment:        ce.EnvironmentName,
				Manifest:           opts.manifestRef(manifest.WorkerConfig),
			})
			if err != nil {
				return err
			}
		}

		for _, ce := range opts.ClusterEnvironments {
			worker, err := clusters.Get(ctx, ce.TargetCluster.clusterOptions())
			if err != nil {
				return step(WorkflowApplyOptions, "load cluster of "+ce.Name, nil, err)
			}
			for _, agent := range []struct {
				typ        AgentType
				namespaces []NamespaceOptions
			}{
				{AgentApplication, ce.ApplicationNamespaces},
				{AgentService, ce.ServiceNamespaces},
			} {
				for _, ns := range agent.namespaces {
					err := o.OnboardAgentNamespace(ctx, main, worker, NamespaceRequest{
						Tenant:             opts.Name,
						ClusterEnvironment: ce.Name,
						Namespace:          ns.Name,
						Type:               agent.typ,
						Manifest:           opts.manifestRef(agent.typ.ManifestType()),
					})
					if err != nil {
						return err
					}
				}
			}
		}
		return nil
	})
}
