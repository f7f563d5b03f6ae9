package federation

import (
	"context"
	"log/slog"

	"github.com/primaza/primazactl/internal/k8s"
	"github.com/primaza/primazactl/internal/logging"
	"github.com/primaza/primazactl/internal/manifest"
)

// InstallTenant applies the control plane manifest into the tenant
// namespace and waits for the controller pod.
func (o *Orchestrator) InstallTenant(ctx context.Context, main *k8s.ClusterHandle, req TenantRequest) error {
	if err := ValidateName("tenant", req.Tenant); err != nil {
		return err
	}
	if err := validateVersion(req.Manifest); err != nil {
		return err
	}

	return o.workflow(ctx, WorkflowInstallTenant, req.Tenant, func(ctx context.Context) error {
		a := o.applier(main)
		src := req.Manifest.source(manifest.ControlPlaneConfig, req.Tenant)
		if err := o.applyManifest(ctx, a, src, k8s.ActionCreate); err != nil {
			return step(WorkflowInstallTenant, "apply control plane manifest", main, err)
		}

		pod, err := a.WaitForPodRunning(ctx, req.Tenant, ControllerPodPrefix, o.podPoll)
		if err != nil {
			return step(WorkflowInstallTenant, "wait for controller", main, err)
		}
		if pod != nil {
			o.logger.Info("controller running", logging.Namespace(req.Tenant), slog.String("pod", pod.Name))
		}
		return nil
	})
}

// UninstallTenant deletes every object of the control plane manifest.
func (o *Orchestrator) UninstallTenant(ctx context.Context, main *k8s.ClusterHandle, req TenantRequest) error {
	if err := ValidateName("tenant", req.Tenant); err != nil {
		return err
	}
	if err := validateVersion(req.Manifest); err != nil {
		return err
	}

	return o.workflow(ctx, WorkflowUninstallTenant, req.Tenant, func(ctx context.Context) error {
		src := req.Manifest.source(manifest.ControlPlaneConfig, req.Tenant)
		return step(WorkflowUninstallTenant, "delete control plane manifest", main,
			o.applyManifest(ctx, o.applier(main), src, k8s.ActionDelete))
	})
}

func validateVersion(ref ManifestRef) error {
	if ref.Path != "" || ref.Version == "" {
		return nil
	}
	return manifest.ValidateSelector(ref.Version)
}
