// Package k8stest builds in-memory clusters for tests. Objects live in a
// fake dynamic client, access reviews are answered from the Roles and
// RoleBindings stored there.
package k8stest

import (
	"context"
	"encoding/base64"
	"fmt"
	"slices"
	"strings"
	"sync"

	authorizationv1 "k8s.io/api/authorization/v1"
	corev1 "k8s.io/api/core/v1"
	rbacv1 "k8s.io/api/rbac/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/runtime/schema"
	fakediscovery "k8s.io/client-go/discovery/fake"
	dynamicfake "k8s.io/client-go/dynamic/fake"
	kubefake "k8s.io/client-go/kubernetes/fake"
	k8stesting "k8s.io/client-go/testing"
	clientcmdapi "k8s.io/client-go/tools/clientcmd/api"

	"github.com/primaza/primazactl/internal/k8s"
)

var (
	rolesGVR               = schema.GroupVersionResource{Group: "rbac.authorization.k8s.io", Version: "v1", Resource: "roles"}
	roleBindingsGVR        = schema.GroupVersionResource{Group: "rbac.authorization.k8s.io", Version: "v1", Resource: "rolebindings"}
	clusterRolesGVR        = schema.GroupVersionResource{Group: "rbac.authorization.k8s.io", Version: "v1", Resource: "clusterroles"}
	clusterRoleBindingsGVR = schema.GroupVersionResource{Group: "rbac.authorization.k8s.io", Version: "v1", Resource: "clusterrolebindings"}
)

var listKinds = map[schema.GroupVersionResource]string{
	rolesGVR:                                     "RoleList",
	roleBindingsGVR:                              "RoleBindingList",
	clusterRolesGVR:                              "ClusterRoleList",
	clusterRoleBindingsGVR:                       "ClusterRoleBindingList",
	{Version: "v1", Resource: "namespaces"}:      "NamespaceList",
	{Version: "v1", Resource: "secrets"}:         "SecretList",
	{Version: "v1", Resource: "serviceaccounts"}: "ServiceAccountList",
	{Group: "primaza.io", Version: "v1alpha1", Resource: "clusterenvironments"}: "ClusterEnvironmentList",
}

// Cluster is a fake cluster.
type Cluster struct {
	Handle    *k8s.ClusterHandle
	Clientset *kubefake.Clientset
	Dynamic   *dynamicfake.FakeDynamicClient

	mu         sync.Mutex
	selfDenied map[string]bool
}

// NewCluster creates a fake cluster reachable as contextName at server.
// Typed objects are converted to documents. The caller is allowed
// everything until DenySelf is called.
func NewCluster(contextName, server string, objs ...runtime.Object) *Cluster {
	docs := make([]runtime.Object, 0, len(objs))
	for _, obj := range objs {
		doc, err := k8s.ToUnstructured(obj)
		if err != nil {
			panic(err)
		}
		docs = append(docs, doc)
	}

	c := &Cluster{
		Clientset:  kubefake.NewSimpleClientset(),
		Dynamic:    dynamicfake.NewSimpleDynamicClientWithCustomListKinds(runtime.NewScheme(), listKinds, docs...),
		selfDenied: map[string]bool{},
	}

	raw := clientcmdapi.NewConfig()
	raw.Clusters[contextName] = &clientcmdapi.Cluster{Server: server, CertificateAuthorityData: []byte("test-ca")}
	raw.AuthInfos[contextName] = &clientcmdapi.AuthInfo{Token: "admin-token"}
	raw.Contexts[contextName] = &clientcmdapi.Context{Cluster: contextName, AuthInfo: contextName}
	raw.CurrentContext = contextName

	c.Handle = k8s.NewClusterHandle(contextName, "", raw, c.Clientset, c.Dynamic)
	c.Clientset.Discovery().(*fakediscovery.FakeDiscovery).Resources = DefaultResources()

	c.Clientset.PrependReactor("create", "selfsubjectaccessreviews", c.reviewSelf)
	c.Clientset.PrependReactor("create", "subjectaccessreviews", c.reviewSubject)
	return c
}

// DefaultResources is the discovery document of the fake cluster.
func DefaultResources() []*metav1.APIResourceList {
	full := []string{"create", "delete", "deletecollection", "get", "list", "patch", "update", "watch"}
	return []*metav1.APIResourceList{
		{
			GroupVersion: "v1",
			APIResources: []metav1.APIResource{
				{Name: "namespaces", Kind: "Namespace", Verbs: []string{"create", "delete", "get", "list", "patch", "update", "watch"}},
				{Name: "secrets", Namespaced: true, Kind: "Secret", Verbs: full},
				{Name: "serviceaccounts", Namespaced: true, Kind: "ServiceAccount", Verbs: full},
				{Name: "pods", Namespaced: true, Kind: "Pod", Verbs: full},
			},
		},
		{
			GroupVersion: "admissionregistration.k8s.io/v1",
			APIResources: []metav1.APIResource{
				{Name: "validatingwebhookconfigurations", Kind: "ValidatingWebhookConfiguration", Verbs: full},
			},
		},
	}
}

// WithServerOverride replaces the handle by one whose credentials handed to
// other clusters address url.
func (c *Cluster) WithServerOverride(url string) *Cluster {
	c.Handle = k8s.NewClusterHandle(c.Handle.Context(), url, c.Handle.Kubeconfig(), c.Clientset, c.Dynamic)
	return c
}

// OnCreate lets mutate change every created document of resource before it
// is stored, the way a controller or admission plugin would.
func (c *Cluster) OnCreate(resource string, mutate func(doc *unstructured.Unstructured)) {
	c.Dynamic.PrependReactor("create", resource, func(action k8stesting.Action) (bool, runtime.Object, error) {
		doc := action.(k8stesting.CreateAction).GetObject().(*unstructured.Unstructured).DeepCopy()
		mutate(doc)
		if err := c.Dynamic.Tracker().Create(action.GetResource(), doc, action.GetNamespace()); err != nil {
			return true, nil, err
		}
		return true, doc, nil
	})
}

// IssueTokens populates service account token secrets on creation with
// the token "token-<secret name>".
func (c *Cluster) IssueTokens() {
	c.OnCreate("secrets", func(doc *unstructured.Unstructured) {
		if t, _, _ := unstructured.NestedString(doc.Object, "type"); t != string(corev1.SecretTypeServiceAccountToken) {
			return
		}
		data := map[string]any{
			corev1.ServiceAccountTokenKey:     base64.StdEncoding.EncodeToString([]byte("token-" + doc.GetName())),
			corev1.ServiceAccountNamespaceKey: base64.StdEncoding.EncodeToString([]byte(doc.GetNamespace())),
			corev1.ServiceAccountRootCAKey:    base64.StdEncoding.EncodeToString([]byte("test-ca")),
		}
		_ = unstructured.SetNestedMap(doc.Object, data, "data")
	})
}

// DenySelf makes the caller's own access review for verb on resource fail.
func (c *Cluster) DenySelf(verb, group, resource string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.selfDenied[verb+"/"+group+"/"+resource] = true
}

// Add stores obj in the cluster.
func (c *Cluster) Add(obj runtime.Object) {
	doc, err := k8s.ToUnstructured(obj)
	if err != nil {
		panic(err)
	}
	if err := c.Dynamic.Tracker().Add(doc); err != nil {
		panic(err)
	}
}

// Get returns the stored document or nil.
func (c *Cluster) Get(gvr schema.GroupVersionResource, namespace, name string) *unstructured.Unstructured {
	var ri = c.Dynamic.Resource(gvr)
	var (
		obj *unstructured.Unstructured
		err error
	)
	if namespace != "" {
		obj, err = ri.Namespace(namespace).Get(context.Background(), name, metav1.GetOptions{})
	} else {
		obj, err = ri.Get(context.Background(), name, metav1.GetOptions{})
	}
	if err != nil {
		return nil
	}
	return obj
}

// MutatingActions returns the create, update, patch and delete calls the
// dynamic client received.
func (c *Cluster) MutatingActions() []k8stesting.Action {
	var out []k8stesting.Action
	for _, a := range c.Dynamic.Actions() {
		switch a.GetVerb() {
		case "create", "update", "patch", "delete":
			out = append(out, a)
		}
	}
	return out
}

func (c *Cluster) reviewSelf(action k8stesting.Action) (bool, runtime.Object, error) {
	review := action.(k8stesting.CreateAction).GetObject().(*authorizationv1.SelfSubjectAccessReview).DeepCopy()
	attr := review.Spec.ResourceAttributes

	c.mu.Lock()
	denied := attr != nil && c.selfDenied[attr.Verb+"/"+attr.Group+"/"+attr.Resource]
	c.mu.Unlock()

	review.Status.Allowed = !denied
	return true, review, nil
}

func (c *Cluster) reviewSubject(action k8stesting.Action) (bool, runtime.Object, error) {
	review := action.(k8stesting.CreateAction).GetObject().(*authorizationv1.SubjectAccessReview).DeepCopy()
	if review.Spec.ResourceAttributes == nil {
		return true, review, nil
	}
	allowed, err := c.authorize(review.Spec.User, *review.Spec.ResourceAttributes)
	if err != nil {
		return true, nil, err
	}
	review.Status.Allowed = allowed
	return true, review, nil
}

// authorize evaluates RBAC for a service account user from the stored
// bindings.
func (c *Cluster) authorize(user string, attr authorizationv1.ResourceAttributes) (bool, error) {
	parts := strings.Split(user, ":")
	if len(parts) != 4 || parts[0] != "system" || parts[1] != "serviceaccount" {
		return false, nil
	}
	saNamespace, saName := parts[2], parts[3]

	var bindings []rbacv1.RoleBinding
	if attr.Namespace != "" {
		list, err := c.Dynamic.Resource(roleBindingsGVR).Namespace(attr.Namespace).List(context.Background(), metav1.ListOptions{})
		if err != nil {
			return false, err
		}
		for i := range list.Items {
			var b rbacv1.RoleBinding
			if err := k8s.FromUnstructured(&list.Items[i], &b); err != nil {
				return false, err
			}
			bindings = append(bindings, b)
		}
	}
	crbs, err := c.Dynamic.Resource(clusterRoleBindingsGVR).List(context.Background(), metav1.ListOptions{})
	if err != nil {
		return false, err
	}
	for i := range crbs.Items {
		var b rbacv1.ClusterRoleBinding
		if err := k8s.FromUnstructured(&crbs.Items[i], &b); err != nil {
			return false, err
		}
		bindings = append(bindings, rbacv1.RoleBinding{Subjects: b.Subjects, RoleRef: b.RoleRef})
	}

	for _, b := range bindings {
		if !bindsServiceAccount(b.Subjects, saNamespace, saName) {
			continue
		}
		rules, err := c.rulesFor(b.RoleRef, b.Namespace)
		if err != nil {
			return false, err
		}
		for _, rule := range rules {
			if ruleAllows(rule, attr) {
				return true, nil
			}
		}
	}
	return false, nil
}

func (c *Cluster) rulesFor(ref rbacv1.RoleRef, namespace string) ([]rbacv1.PolicyRule, error) {
	var doc *unstructured.Unstructured
	switch ref.Kind {
	case "Role":
		doc = c.Get(rolesGVR, namespace, ref.Name)
	case "ClusterRole":
		doc = c.Get(clusterRolesGVR, "", ref.Name)
	default:
		return nil, fmt.Errorf("unsupported role kind %q", ref.Kind)
	}
	if doc == nil {
		return nil, nil
	}
	var role rbacv1.Role
	if err := k8s.FromUnstructured(doc, &role); err != nil {
		return nil, err
	}
	return role.Rules, nil
}

func bindsServiceAccount(subjects []rbacv1.Subject, namespace, name string) bool {
	for _, s := range subjects {
		if s.Kind == rbacv1.ServiceAccountKind && s.Namespace == namespace && s.Name == name {
			return true
		}
	}
	return false
}

func ruleAllows(rule rbacv1.PolicyRule, attr authorizationv1.ResourceAttributes) bool {
	return matches(rule.Verbs, attr.Verb) &&
		matches(rule.APIGroups, attr.Group) &&
		matches(rule.Resources, attr.Resource) &&
		(len(rule.ResourceNames) == 0 || slices.Contains(rule.ResourceNames, attr.Name))
}

func matches(values []string, v string) bool {
	return slices.Contains(values, rbacv1.VerbAll) || slices.Contains(values, v)
}
