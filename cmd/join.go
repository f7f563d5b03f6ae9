package cmd

import (
	"context"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/primaza/primazactl/internal/federation"
)

func newJoinCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "join",
		Short: "Join a worker cluster to a tenant",
	}
	cmd.AddCommand(newJoinClusterCmd(v))
	return cmd
}

func newJoinClusterCmd(v *viper.Viper) *cobra.Command {
	var (
		manifestFlags manifestFlags
		worker        clusterFlags
		tenant        clusterFlags
		req           federation.JoinRequest
		verifyRoles   []string
	)

	cmd := &cobra.Command{
		Use:   "cluster",
		Short: "Register a worker cluster with a tenant",
		Long: `Install the worker manifest on the worker cluster, create the identity the
tenant uses there and register the cluster as a ClusterEnvironment of the
tenant. The command waits for the ClusterEnvironment to be Online.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			for _, pair := range [][2]string{
				{"tenant", req.Tenant},
				{"cluster environment", req.ClusterEnvironment},
				{"environment", req.Environment},
			} {
				if err := federation.ValidateName(pair[0], pair[1]); err != nil {
					return err
				}
			}
			if err := worker.validate(""); err != nil {
				return err
			}
			ref, err := manifestFlags.ref()
			if err != nil {
				return err
			}
			roles, err := parseRoleRefs(verifyRoles)
			if err != nil {
				return err
			}
			req.Manifest = ref
			req.VerifyRoles = roles

			rt, err := newRuntime(cmd, v)
			if err != nil {
				return err
			}
			return rt.execute("Join worker cluster "+req.ClusterEnvironment, func(ctx context.Context) error {
				main, err := rt.cluster(ctx, tenant.kubeconfig, tenant.context, "")
				if err != nil {
					return err
				}
				workerCluster, err := rt.cluster(ctx, "", worker.context, worker.internalURL)
				if err != nil {
					return err
				}
				return rt.orchestrator.JoinWorkerCluster(ctx, main, workerCluster, req)
			})
		},
	}
	manifestFlags.register(cmd.Flags(), "worker")
	worker.registerWorker(cmd.Flags(), true)
	tenant.registerTenant(cmd.Flags(), false)

	flags := cmd.Flags()
	flags.StringVarP(&req.Tenant, "tenant", "t", federation.DefaultTenant, "tenant to join")
	flags.StringVarP(&req.ClusterEnvironment, "cluster-environment", "d", "", "name of the ClusterEnvironment created in the tenant")
	flags.StringVarP(&req.Environment, "environment", "e", "", "environment associated to the ClusterEnvironment, for example dev or prod")
	flags.StringVar(&req.ServiceAccount, "service-account", "", "service account of the tenant on the worker cluster (default: primaza-<tenant>-<cluster-environment>)")
	flags.StringVar(&req.IdentityNamespace, "identity-namespace", "", "namespace of that service account (default: kube-system)")
	flags.StringVar(&req.KubeconfigSecret, "kubeconfig-secret", "", "secret holding the worker kubeconfig in the tenant (default: primaza-<cluster-environment>-kubeconfig)")
	flags.StringSliceVar(&verifyRoles, "verify-role", nil, "namespace/name of a Role on the worker the tenant identity must satisfy, repeatable")
	_ = cmd.MarkFlagRequired("cluster-environment")
	_ = cmd.MarkFlagRequired("environment")
	return cmd
}
