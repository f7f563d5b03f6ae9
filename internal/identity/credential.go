package identity

import (
	"context"

	"github.com/cockroachdb/errors"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	clientcmdapi "k8s.io/client-go/tools/clientcmd/api"

	"github.com/primaza/primazactl/internal/k8s"
	"github.com/primaza/primazactl/internal/kubeconfig"
	"github.com/primaza/primazactl/internal/logging"
)

// KubeconfigKey is the secret data key holding a kubeconfig.
const KubeconfigKey = "kubeconfig"

// CredentialSecret is a secret carrying a kubeconfig for another cluster.
type CredentialSecret struct {
	Name       string
	Namespace  string
	Tenant     string
	Kubeconfig *clientcmdapi.Config
	// Owner, when set, ties the secret's lifetime to another object. The
	// cascade is carried out by the cluster's garbage collector.
	Owner *metav1.OwnerReference
}

// StoreCredential creates the secret unless it exists. An existing secret
// is left untouched.
func (p *Provisioner) StoreCredential(ctx context.Context, cs CredentialSecret) (*k8s.Result, error) {
	data, err := kubeconfig.Serialize(cs.Kubeconfig)
	if err != nil {
		return nil, err
	}

	secret := &corev1.Secret{
		ObjectMeta: metav1.ObjectMeta{
			Name:      cs.Name,
			Namespace: cs.Namespace,
			Labels:    tenantLabels(cs.Tenant),
		},
		Type:       corev1.SecretTypeOpaque,
		StringData: map[string]string{KubeconfigKey: string(data)},
	}
	if cs.Owner != nil {
		secret.OwnerReferences = []metav1.OwnerReference{*cs.Owner}
	}

	res, err := p.applier.ApplyObject(ctx, secret, k8s.ActionCreate)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to create credential secret %s/%s", cs.Namespace, cs.Name)
	}
	p.logger.Info("credential secret ready",
		logging.Namespace(cs.Namespace),
		logging.ResourceName(cs.Name),
		logging.Status(string(res.Outcome)))
	return res, nil
}
