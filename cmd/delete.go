package cmd

import (
	"context"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/primaza/primazactl/internal/federation"
)

func newDeleteCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete",
		Short: "Delete a tenant",
	}
	cmd.AddCommand(newDeleteTenantCmd(v))
	return cmd
}

func newDeleteTenantCmd(v *viper.Viper) *cobra.Command {
	var (
		manifestFlags manifestFlags
		cluster       clusterFlags
	)

	cmd := &cobra.Command{
		Use:   "tenant [name]",
		Short: "Remove the primaza control plane of a tenant",
		Long: `Delete every object of the control plane manifest. Objects already gone
are skipped. The tenant defaults to ` + federation.DefaultTenant + `.`,
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
			return rt.execute("Delete primaza tenant "+req.Tenant, func(ctx context.Context) error {
				main, err := rt.cluster(ctx, "", cluster.context, "")
				if err != nil {
					return err
				}
				return rt.orchestrator.UninstallTenant(ctx, main, req)
			})
		},
	}
	manifestFlags.register(cmd.Flags(), "control plane")
	cluster.registerWorker(cmd.Flags(), false)
	return cmd
}
