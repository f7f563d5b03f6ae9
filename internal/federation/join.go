package federation

import (
	"context"

	"github.com/primaza/primazactl/internal/access"
	"github.com/primaza/primazactl/internal/clusterenv"
	"github.com/primaza/primazactl/internal/identity"
	"github.com/primaza/primazactl/internal/k8s"
	"github.com/primaza/primazactl/internal/logging"
	"github.com/primaza/primazactl/internal/manifest"
)

// JoinWorkerCluster registers worker with the tenant on main:
//
//  1. apply the worker manifest on worker
//  2. provision the worker identity and derive its kubeconfig
//  3. create the ClusterEnvironment on main
//  4. store the kubeconfig in a secret owned by the ClusterEnvironment
//  5. verify the worker identity's roles
//  6. wait for the ClusterEnvironment to be Online
//
// Every step is idempotent, so a failed join is resumed by running it again.
func (o *Orchestrator) JoinWorkerCluster(ctx context.Context, main, worker *k8s.ClusterHandle, req JoinRequest) error {
	if err := validateNames("tenant", req.Tenant, "cluster environment", req.ClusterEnvironment); err != nil {
		return err
	}
	if err := validateVersion(req.Manifest); err != nil {
		return err
	}
	const wf = WorkflowJoinCluster

	return o.workflow(ctx, wf, req.Tenant, func(ctx context.Context) error {
		workerApplier := o.applier(worker)
		mainApplier := o.applier(main)

		src := req.Manifest.source(manifest.WorkerConfig, identity.WorkerNamespace)
		if err := o.applyManifest(ctx, workerApplier, src, k8s.ActionCreate); err != nil {
			return step(wf, "apply worker manifest", worker, err)
		}

		prov := o.provisioner(workerApplier)
		id, err := prov.Provision(ctx, req.WorkerIdentity())
		if err != nil {
			return step(wf, "provision worker identity", worker, err)
		}
		kc, err := prov.Kubeconfig(ctx, id, worker)
		if err != nil {
			return step(wf, "derive worker kubeconfig", worker, err)
		}

		ceMgr := o.clusterEnvironments(mainApplier)
		secretName := req.SecretName()
		res, err := ceMgr.Ensure(ctx, clusterenv.New(req.Tenant, req.ClusterEnvironment, req.Environment, secretName))
		if err != nil {
			return step(wf, "create cluster environment", main, err)
		}

		owner := identity.OwnerReference(res.Object, clusterenv.APIVersion, clusterenv.Kind)
		_, err = o.provisioner(mainApplier).StoreCredential(ctx, identity.CredentialSecret{
			Name:       secretName,
			Namespace:  req.Tenant,
			Tenant:     req.Tenant,
			Kubeconfig: kc,
			Owner:      &owner,
		})
		if err != nil {
			return step(wf, "store worker kubeconfig", main, err)
		}

		if err := o.verifyRoles(ctx, workerApplier, id, req.VerifyRoles); err != nil {
			return step(wf, "verify worker identity", worker, err)
		}

		err = ceMgr.Converge(ctx, req.Tenant, req.ClusterEnvironment, clusterenv.StateOnline, clusterenv.JoinedConditions)
		return step(wf, "wait for cluster environment", main, err)
	})
}

// verifyRoles checks every role for id and reports all violations at once.
// Dry runs skip it since the identity may not exist.
func (o *Orchestrator) verifyRoles(ctx context.Context, a *k8s.Applier, id identity.Identity, roles []RoleRef) error {
	if len(roles) == 0 {
		return nil
	}
	if o.run.DryRunActive() {
		o.logger.Info("dry run, skipping access verification", logging.ResourceName(id.ServiceAccount))
		return nil
	}

	v := o.verifier(a)
	var violations []k8s.Violation
	for _, role := range roles {
		found, err := v.VerifyRole(ctx, id.User(), role.Namespace, role.Name)
		if err != nil {
			return err
		}
		violations = append(violations, found...)
	}
	return access.AsError(violations)
}
