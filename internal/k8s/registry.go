package k8s

import (
	"strings"

	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime/schema"
)

// Surface tells which API surface serves a kind.
type Surface int

const (
	// SurfaceTyped is a kind built into the API server or a well known add-on.
	SurfaceTyped Surface = iota
	// SurfaceCustom is any other kind, served as a custom object whose
	// plural is inferred from the kind.
	SurfaceCustom
)

func (s Surface) String() string {
	if s == SurfaceTyped {
		return "typed"
	}
	return "custom"
}

// ResourceInfo describes how a kind is addressed.
type ResourceInfo struct {
	GVK     schema.GroupVersionKind
	GVR     schema.GroupVersionResource
	Surface Surface
}

// Registry maps kinds to resources. Lookups of unknown kinds fall back to
// the custom object surface.
type Registry struct {
	entries map[schema.GroupVersionKind]ResourceInfo
}

// NewRegistry returns a registry holding the builtin kinds.
func NewRegistry() *Registry {
	r := &Registry{entries: make(map[schema.GroupVersionKind]ResourceInfo)}
	for _, b := range builtinKinds {
		r.Register(schema.GroupVersionKind{Group: b.group, Version: b.version, Kind: b.kind}, b.resource, SurfaceTyped)
	}
	return r
}

// Register adds or replaces the resource serving gvk.
func (r *Registry) Register(gvk schema.GroupVersionKind, resource string, surface Surface) {
	r.entries[gvk] = ResourceInfo{
		GVK:     gvk,
		GVR:     gvk.GroupVersion().WithResource(resource),
		Surface: surface,
	}
}

// Lookup returns the resource serving gvk.
func (r *Registry) Lookup(gvk schema.GroupVersionKind) ResourceInfo {
	if info, ok := r.entries[gvk]; ok {
		return info
	}
	return ResourceInfo{
		GVK:     gvk,
		GVR:     gvk.GroupVersion().WithResource(strings.ToLower(gvk.Kind) + "s"),
		Surface: SurfaceCustom,
	}
}

// ForObject resolves the resource of a document from its apiVersion and
// kind. A missing or unparsable apiVersion, kind or name is ErrMalformedInput.
func (r *Registry) ForObject(obj *unstructured.Unstructured) (ResourceInfo, error) {
	apiVersion := obj.GetAPIVersion()
	if apiVersion == "" || obj.GetKind() == "" {
		return ResourceInfo{}, Malformed("document %q has no apiVersion or kind", obj.GetName())
	}
	gv, err := schema.ParseGroupVersion(apiVersion)
	if err != nil || gv.Version == "" {
		return ResourceInfo{}, Malformed("document %q has invalid apiVersion %q", obj.GetName(), apiVersion)
	}
	if obj.GetName() == "" {
		return ResourceInfo{}, Malformed("%s document has no metadata.name", obj.GetKind())
	}
	return r.Lookup(gv.WithKind(obj.GetKind())), nil
}

type builtinKind struct {
	group, version, kind, resource string
}

var builtinKinds = []builtinKind{
	// Core/v1
	{"", "v1", "Namespace", "namespaces"},
	{"", "v1", "ServiceAccount", "serviceaccounts"},
	{"", "v1", "Secret", "secrets"},
	{"", "v1", "ConfigMap", "configmaps"},
	{"", "v1", "Service", "services"},
	{"", "v1", "Pod", "pods"},

	// Apps/v1
	{"apps", "v1", "Deployment", "deployments"},
	{"apps", "v1", "DaemonSet", "daemonsets"},
	{"apps", "v1", "StatefulSet", "statefulsets"},

	// RBAC
	{"rbac.authorization.k8s.io", "v1", "Role", "roles"},
	{"rbac.authorization.k8s.io", "v1", "RoleBinding", "rolebindings"},
	{"rbac.authorization.k8s.io", "v1", "ClusterRole", "clusterroles"},
	{"rbac.authorization.k8s.io", "v1", "ClusterRoleBinding", "clusterrolebindings"},

	// Authorization
	{"authorization.k8s.io", "v1", "SubjectAccessReview", "subjectaccessreviews"},
	{"authorization.k8s.io", "v1", "SelfSubjectAccessReview", "selfsubjectaccessreviews"},

	// Admission and API extensions
	{"admissionregistration.k8s.io", "v1", "MutatingWebhookConfiguration", "mutatingwebhookconfigurations"},
	{"admissionregistration.k8s.io", "v1", "ValidatingWebhookConfiguration", "validatingwebhookconfigurations"},
	{"apiextensions.k8s.io", "v1", "CustomResourceDefinition", "customresourcedefinitions"},

	// Networking
	{"networking.k8s.io", "v1", "NetworkPolicy", "networkpolicies"},
	{"networking.k8s.io", "v1", "Ingress", "ingresses"},

	// cert-manager, shipped with the control plane manifests
	{"cert-manager.io", "v1", "Certificate", "certificates"},
	{"cert-manager.io", "v1", "Issuer", "issuers"},
	{"cert-manager.io", "v1", "ClusterIssuer", "clusterissuers"},
}
