// Package identity provisions service-account identities and turns them
// into credentials other clusters can use.
package identity

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cockroachdb/errors"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/types"
	"k8s.io/apimachinery/pkg/util/uuid"
	clientcmdapi "k8s.io/client-go/tools/clientcmd/api"

	"github.com/primaza/primazactl/internal/k8s"
	"github.com/primaza/primazactl/internal/kubeconfig"
	"github.com/primaza/primazactl/internal/logging"
	"github.com/primaza/primazactl/internal/runctx"
)

// ErrTokenNotReady indicates that the token secret was not populated in time.
var ErrTokenNotReady = errors.New("service account token not ready")

// TenantLabel marks objects created on behalf of a tenant.
const TenantLabel = "primaza.io/tenant"

// DefaultTokenPoll bounds the wait for a token secret.
var DefaultTokenPoll = k8s.PollConfig{Interval: time.Second, Timeout: 60 * time.Second}

// Identity is a service account and the secret holding its token.
type Identity struct {
	ServiceAccount string
	TokenSecret    string
	Namespace      string
	Tenant         string
}

// User returns the user name the API server authenticates the identity as.
func (i Identity) User() string {
	return fmt.Sprintf("system:serviceaccount:%s:%s", i.Namespace, i.ServiceAccount)
}

// Token is the content of a populated token secret.
type Token struct {
	Token     string
	Namespace string
	CACert    []byte
}

// Provisioner creates identities on one cluster.
type Provisioner struct {
	applier *k8s.Applier
	poll    k8s.PollConfig
	logger  *slog.Logger
}

// Option customizes a Provisioner.
type Option func(*Provisioner)

// WithTokenPoll replaces DefaultTokenPoll.
func WithTokenPoll(cfg k8s.PollConfig) Option {
	return func(p *Provisioner) { p.poll = cfg }
}

// NewProvisioner creates a provisioner working through applier.
func NewProvisioner(applier *k8s.Applier, opts ...Option) *Provisioner {
	p := &Provisioner{
		applier: applier,
		poll:    DefaultTokenPoll,
		logger:  applier.Logger(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Provision creates the service account and its token secret unless they
// exist. The secret is owned by the service account.
func (p *Provisioner) Provision(ctx context.Context, id Identity) (Identity, error) {
	p.logger.Info("provisioning identity",
		logging.Namespace(id.Namespace),
		logging.ResourceName(id.ServiceAccount))

	sa := &corev1.ServiceAccount{
		ObjectMeta: metav1.ObjectMeta{
			Name:      id.ServiceAccount,
			Namespace: id.Namespace,
			Labels:    tenantLabels(id.Tenant),
		},
	}
	res, err := p.applier.ApplyObject(ctx, sa, k8s.ActionCreate)
	if err != nil {
		return Identity{}, errors.Wrapf(err, "failed to create service account %s/%s", id.Namespace, id.ServiceAccount)
	}

	secret := &corev1.Secret{
		ObjectMeta: metav1.ObjectMeta{
			Name:      id.TokenSecret,
			Namespace: id.Namespace,
			Labels:    tenantLabels(id.Tenant),
			Annotations: map[string]string{
				corev1.ServiceAccountNameKey: id.ServiceAccount,
			},
			OwnerReferences: []metav1.OwnerReference{OwnerReference(res.Object, "v1", "ServiceAccount")},
		},
		Type: corev1.SecretTypeServiceAccountToken,
	}
	if _, err := p.applier.ApplyObject(ctx, secret, k8s.ActionCreate); err != nil {
		return Identity{}, errors.Wrapf(err, "failed to create token secret %s/%s", id.Namespace, id.TokenSecret)
	}
	return id, nil
}

// Token waits until the token secret of id is populated and returns its
// content. In dry-run mode nothing was persisted, so a placeholder is
// returned without polling.
func (p *Provisioner) Token(ctx context.Context, id Identity) (Token, error) {
	if p.applier.RunContext().DryRunActive() {
		return Token{Token: runctx.RedactedValue, Namespace: id.Namespace}, nil
	}

	var secret *unstructured.Unstructured
	what := fmt.Sprintf("token of service account %s/%s", id.Namespace, id.ServiceAccount)
	start := time.Now()
	err := k8s.Poll(ctx, what, p.poll, func(ctx context.Context) (k8s.Observation, error) {
		res, err := p.applier.Get(ctx, "v1", "Secret", id.Namespace, id.TokenSecret)
		if err != nil {
			return k8s.Observation{}, err
		}
		if res.Outcome == k8s.OutcomeAbsent {
			return k8s.Observation{Last: "secret " + id.TokenSecret + " absent"}, nil
		}
		token, _, _ := unstructured.NestedString(res.Object.Object, "data", corev1.ServiceAccountTokenKey)
		if token == "" {
			return k8s.Observation{Last: "secret " + id.TokenSecret + " has no token"}, nil
		}
		secret = res.Object
		return k8s.Observation{Done: true}, nil
	})
	p.logger.Debug("token wait finished",
		logging.ResourceName(id.TokenSecret),
		logging.Status(k8s.PollStatus(err)),
		slog.Duration(logging.KeyDuration, time.Since(start)))
	if err != nil {
		if errors.Is(err, k8s.ErrTimeout) {
			return Token{}, errors.Mark(err, ErrTokenNotReady)
		}
		return Token{}, err
	}

	var typed corev1.Secret
	if err := k8s.FromUnstructured(secret, &typed); err != nil {
		return Token{}, err
	}
	tok := Token{
		Token:     string(typed.Data[corev1.ServiceAccountTokenKey]),
		Namespace: string(typed.Data[corev1.ServiceAccountNamespaceKey]),
		CACert:    typed.Data[corev1.ServiceAccountRootCAKey],
	}
	if tok.Namespace == "" {
		tok.Namespace = id.Namespace
	}
	return tok, nil
}

// Kubeconfig derives a kubeconfig for id on cluster: the cluster's own
// entry, authenticated with the identity's token, addressed at the
// cluster's server override when one is set.
func (p *Provisioner) Kubeconfig(ctx context.Context, id Identity, cluster *k8s.ClusterHandle) (*clientcmdapi.Config, error) {
	tok, err := p.Token(ctx, id)
	if err != nil {
		return nil, err
	}

	scoped, err := kubeconfig.Scope(cluster.Kubeconfig(), cluster.Context())
	if err != nil {
		return nil, err
	}
	p.logger.Debug("derived kubeconfig",
		logging.Context(cluster.Context()),
		logging.Host(cluster.Server()),
		slog.String("token", logging.SanitizeToken(tok.Token)))

	return kubeconfig.WithServer(kubeconfig.WithToken(scoped, id.ServiceAccount, tok.Token), cluster.ServerOverride()), nil
}

// OwnerReference builds a reference to obj. When obj has no UID, as in
// client dry-run mode, a random one stands in.
func OwnerReference(obj *unstructured.Unstructured, apiVersion, kind string) metav1.OwnerReference {
	ref := metav1.OwnerReference{APIVersion: apiVersion, Kind: kind}
	if obj != nil {
		ref.Name = obj.GetName()
		ref.UID = obj.GetUID()
		if v := obj.GetAPIVersion(); v != "" {
			ref.APIVersion = v
		}
		if k := obj.GetKind(); k != "" {
			ref.Kind = k
		}
	}
	if ref.UID == "" {
		ref.UID = types.UID(uuid.NewUUID())
	}
	return ref
}

func tenantLabels(tenant string) map[string]string {
	if tenant == "" {
		return nil
	}
	return map[string]string{TenantLabel: tenant}
}
