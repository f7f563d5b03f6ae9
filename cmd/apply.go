package cmd

import (
	"context"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/primaza/primazactl/internal/federation"
)

func newApplyCmd(v *viper.Viper) *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "apply",
		Short: "Set up a tenant, its worker clusters and namespaces from a file",
		Long: `Read a Tenant options file and run, in file order, the tenant install,
the join of every cluster environment and the creation of every
application and service namespace.

Example:

  apiVersion: primaza.io/v1alpha1
  kind: Tenant
  name: primaza-system
  version: latest
  controlPlane:
    context: kind-main
  clusterEnvironments:
  - name: worker
    environmentName: dev
    targetCluster:
      context: kind-worker
      internalUrl: https://172.18.0.3:6443
    applicationNamespaces:
    - name: applications
    serviceNamespaces:
    - name: services`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			opts, err := federation.LoadOptions(file)
			if err != nil {
				return err
			}
			rt, err := newRuntime(cmd, v)
			if err != nil {
				return err
			}
			defaultKubeconfig(opts, rt.kubeconfig)
			return rt.execute("Apply tenant "+opts.Name, func(ctx context.Context) error {
				return rt.orchestrator.Apply(ctx, opts, rt.clusters)
			})
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "Tenant options file")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

// defaultKubeconfig fills the clusters of opts that name no kubeconfig
// file with the global one.
func defaultKubeconfig(opts *federation.TenantOptions, kubeconfig string) {
	if opts.ControlPlane.Kubeconfig == "" {
		opts.ControlPlane.Kubeconfig = kubeconfig
	}
	for i := range opts.ClusterEnvironments {
		if opts.ClusterEnvironments[i].TargetCluster.Kubeconfig == "" {
			opts.ClusterEnvironments[i].TargetCluster.Kubeconfig = kubeconfig
		}
	}
}
