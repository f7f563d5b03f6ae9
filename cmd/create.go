package cmd

import (
	"context"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/primaza/primazactl/internal/federation"
)

func newCreateCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a tenant or an agent namespace",
	}
	cmd.AddCommand(newCreateTenantCmd(v))
	cmd.AddCommand(newCreateNamespaceCmd(v, federation.AgentApplication))
	cmd.AddCommand(newCreateNamespaceCmd(v, federation.AgentService))
	return cmd
}

func newCreateTenantCmd(v *viper.Viper) *cobra.Command {
	var (
		manifestFlags manifestFlags
		cluster       clusterFlags
	)

	cmd := &cobra.Command{
		Use:   "tenant [name]",
		Short: "Install the primaza control plane of a tenant",
		Long: `Install the primaza control plane into the tenant namespace and wait for
the controller to run. The tenant defaults to ` + federation.DefaultTenant + `.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := tenantRequest(args, manifestFlags)
			if err != nil {
				return err
			}
			rt, err := newRuntime(cmd, v)
			if err != nil {
				return err
			}
			return rt.execute("Install primaza tenant "+req.Tenant, func(ctx context.Context) error {
				main, err := rt.cluster(ctx, "", cluster.context, "")
				if err != nil {
					return err
				}
				return rt.orchestrator.InstallTenant(ctx, main, req)
			})
		},
	}
	manifestFlags.register(cmd.Flags(), "control plane")
	cluster.registerWorker(cmd.Flags(), false)
	return cmd
}

func tenantRequest(args []string, m manifestFlags) (federation.TenantRequest, error) {
	tenant := federation.DefaultTenant
	if len(args) == 1 {
		tenant = args[0]
	}
	if err := federation.ValidateName("tenant", tenant); err != nil {
		return federation.TenantRequest{}, err
	}
	ref, err := m.ref()
	if err != nil {
		return federation.TenantRequest{}, err
	}
	return federation.TenantRequest{Tenant: tenant, Manifest: ref}, nil
}

func newCreateNamespaceCmd(v *viper.Viper, typ federation.AgentType) *cobra.Command {
	var (
		manifestFlags      manifestFlags
		worker, tenant     clusterFlags
		tenantName         string
		clusterEnvironment string
		controlPlaneRole   bool
	)

	cmd := &cobra.Command{
		Use:   string(typ) + "-namespace name",
		Short: "Prepare a worker namespace for the " + string(typ) + " agent",
		Long: `Create a namespace on a joined worker cluster and deploy the ` + string(typ) + ` agent
into it. The agent receives credentials for the control plane, the tenant's
worker identity receives access to the namespace, and the namespace is
added to the cluster environment.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := federation.ValidateName("namespace", args[0]); err != nil {
				return err
			}
			if err := federation.ValidateName("tenant", tenantName); err != nil {
				return err
			}
			if err := federation.ValidateName("cluster environment", clusterEnvironment); err != nil {
				return err
			}
			if err := tenant.validate("tenant-"); err != nil {
				return err
			}
			ref, err := manifestFlags.ref()
			if err != nil {
				return err
			}
			req := federation.NamespaceRequest{
				Tenant:             tenantName,
				ClusterEnvironment: clusterEnvironment,
				Namespace:          args[0],
				Type:               typ,
				Manifest:           ref,
				ControlPlaneRole:   controlPlaneRole,
			}

			rt, err := newRuntime(cmd, v)
			if err != nil {
				return err
			}
			title := cases.Title(language.English).String(string(typ))
			return rt.execute("Create "+string(typ)+" namespace "+req.Namespace, func(ctx context.Context) error {
				main, err := rt.cluster(ctx, tenant.kubeconfig, tenant.context, tenant.internalURL)
				if err != nil {
					return err
				}
				workerCluster, err := rt.cluster(ctx, "", worker.context, "")
				if err != nil {
					return err
				}
				if err := rt.orchestrator.OnboardAgentNamespace(ctx, main, workerCluster, req); err != nil {
					return err
				}
				rt.progress("%s namespace %s was successfully created", title, req.Namespace)
				return nil
			})
		},
	}
	manifestFlags.register(cmd.Flags(), string(typ)+" agent")
	worker.registerWorker(cmd.Flags(), false)
	tenant.registerTenant(cmd.Flags(), true)
	cmd.Flags().StringVarP(&tenantName, "tenant", "t", federation.DefaultTenant, "tenant the worker cluster joined")
	cmd.Flags().StringVarP(&clusterEnvironment, "cluster-environment", "d", "", "cluster environment of the worker cluster")
	cmd.Flags().BoolVar(&controlPlaneRole, "control-plane-role", false, "bind the agent identity to the primaza:controlplane role of the tenant")
	_ = cmd.MarkFlagRequired("cluster-environment")
	return cmd
}
