package federation

import (
	"context"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	"github.com/primaza/primazactl/internal/access"
	"github.com/primaza/primazactl/internal/clusterenv"
	"github.com/primaza/primazactl/internal/identity"
	"github.com/primaza/primazactl/internal/k8s"
	"github.com/primaza/primazactl/internal/logging"
)

// OnboardAgentNamespace prepares a namespace of a joined worker cluster
// for an application or service agent. On main it provisions the
// identity the agent uses to reach the control plane; on worker it
// creates the namespace, the agent credentials and service account, the
// agent manifest and the Role granting the tenant's worker identity
// access. The namespace is then listed in the ClusterEnvironment.
func (o *Orchestrator) OnboardAgentNamespace(ctx context.Context, main, worker *k8s.ClusterHandle, req NamespaceRequest) error {
	if err := validateNames("tenant", req.Tenant, "cluster environment", req.ClusterEnvironment, "namespace", req.Namespace); err != nil {
		return err
	}
	if _, err := ParseAgentType(string(req.Type)); err != nil {
		return err
	}
	if err := validateVersion(req.Manifest); err != nil {
		return err
	}
	const wf = WorkflowCreateNamespace

	return o.workflow(ctx, wf, req.Tenant, func(ctx context.Context) error {
		mainApplier := o.applier(main)
		workerApplier := o.applier(worker)
		userType := req.Type.UserType()

		// Tenant side.
		mainProv := o.provisioner(mainApplier)
		agentID, err := mainProv.Provision(ctx, req.AgentIdentity())
		if err != nil {
			return step(wf, "provision agent identity", main, err)
		}
		if req.ControlPlaneRole {
			binding := RoleBinding(identity.ControlPlaneRoleBindingName(agentID.ServiceAccount), req.Tenant,
				identity.ControlPlaneRoleName(userType), agentID.Namespace, agentID.ServiceAccount)
			if _, err := mainApplier.ApplyObject(ctx, binding, k8s.ActionCreate); err != nil {
				return step(wf, "bind control plane role", main, err)
			}
		}
		kc, err := mainProv.Kubeconfig(ctx, agentID, main)
		if err != nil {
			return step(wf, "derive agent kubeconfig", main, err)
		}

		// Worker side.
		ns := &corev1.Namespace{
			TypeMeta:   metav1.TypeMeta{APIVersion: "v1", Kind: "Namespace"},
			ObjectMeta: metav1.ObjectMeta{Name: req.Namespace},
		}
		if _, err := workerApplier.ApplyObject(ctx, ns, k8s.ActionCreate); err != nil {
			return step(wf, "create namespace", worker, err)
		}

		_, err = o.provisioner(workerApplier).StoreCredential(ctx, identity.CredentialSecret{
			Name:       identity.AuthSecretName(req.ClusterEnvironment),
			Namespace:  req.Namespace,
			Tenant:     req.Tenant,
			Kubeconfig: kc,
		})
		if err != nil {
			return step(wf, "store agent kubeconfig", worker, err)
		}

		sa := &corev1.ServiceAccount{
			TypeMeta:   metav1.TypeMeta{APIVersion: "v1", Kind: "ServiceAccount"},
			ObjectMeta: metav1.ObjectMeta{Name: identity.AgentServiceAccountName(userType), Namespace: req.Namespace},
		}
		if _, err := workerApplier.ApplyObject(ctx, sa, k8s.ActionCreate); err != nil {
			return step(wf, "create agent service account", worker, err)
		}

		src := req.Manifest.source(req.Type.ManifestType(), req.Namespace)
		if err := o.applyManifest(ctx, workerApplier, src, k8s.ActionCreate); err != nil {
			return step(wf, "apply agent manifest", worker, err)
		}

		workerID := req.WorkerIdentity()
		role := NamespaceRole(workerID.ServiceAccount, req.Namespace)
		if _, err := workerApplier.ApplyObject(ctx, role, k8s.ActionCreate); err != nil {
			return step(wf, "create namespace role", worker, err)
		}
		binding := RoleBinding(identity.NamespaceRoleBindingName(role.Name, userType), req.Namespace,
			role.Name, workerID.Namespace, workerID.ServiceAccount)
		if _, err := workerApplier.ApplyObject(ctx, binding, k8s.ActionCreate); err != nil {
			return step(wf, "bind namespace role", worker, err)
		}

		if o.run.DryRunActive() {
			o.logger.Info("dry run, skipping access verification", logging.Namespace(req.Namespace))
		} else {
			violations, err := o.verifier(workerApplier).Verify(ctx, workerID.User(), req.Namespace, role.Rules)
			if err == nil {
				err = access.AsError(violations)
			}
			if err != nil {
				return step(wf, "verify namespace access", worker, err)
			}
		}

		// Back on the tenant.
		ceMgr := o.clusterEnvironments(mainApplier)
		if _, err := ceMgr.AddNamespace(ctx, req.Tenant, req.ClusterEnvironment, req.Type.NamespaceList(), req.Namespace); err != nil {
			return step(wf, "list namespace in cluster environment", main, err)
		}
		err = ceMgr.WaitForState(ctx, req.Tenant, req.ClusterEnvironment, clusterenv.StateOnline)
		return step(wf, "wait for cluster environment", main, err)
	})
}
