package manifest

import (
	"strings"

	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
)

const injectCAAnnotation = "cert-manager.io/inject-ca-from"

// Retarget returns copies of docs moved into namespace. The namespace the
// manifest was published for is taken from its Namespace document, or
// else from the first namespaced document. Namespace documents are
// renamed. Every other document has its metadata.namespace replaced when
// it has one, and the fields that reference the namespace elsewhere are
// rewritten: binding subjects, webhook and API service references,
// certificate DNS names and CA injection annotations.
func Retarget(docs []*unstructured.Unstructured, namespace string) []*unstructured.Unstructured {
	origin := originNamespace(docs)

	out := make([]*unstructured.Unstructured, 0, len(docs))
	for _, d := range docs {
		doc := d.DeepCopy()
		if namespace == "" {
			out = append(out, doc)
			continue
		}

		if doc.GetKind() == "Namespace" {
			doc.SetName(namespace)
			out = append(out, doc)
			continue
		}
		if doc.GetNamespace() != "" {
			doc.SetNamespace(namespace)
		}

		switch doc.GetKind() {
		case "RoleBinding", "ClusterRoleBinding":
			rewriteSubjects(doc, namespace)
		case "ValidatingWebhookConfiguration", "MutatingWebhookConfiguration":
			rewriteWebhooks(doc, namespace)
		case "CustomResourceDefinition":
			setIfPresent(doc.Object, namespace, "spec", "conversion", "webhook", "clientConfig", "service", "namespace")
		case "APIService":
			setIfPresent(doc.Object, namespace, "spec", "service", "namespace")
		case "Certificate":
			rewriteDNSNames(doc, origin, namespace)
		}
		rewriteInjectCA(doc, namespace)

		out = append(out, doc)
	}
	return out
}

func originNamespace(docs []*unstructured.Unstructured) string {
	for _, d := range docs {
		if d.GetKind() == "Namespace" {
			return d.GetName()
		}
	}
	for _, d := range docs {
		if ns := d.GetNamespace(); ns != "" {
			return ns
		}
	}
	return ""
}

func setIfPresent(obj map[string]any, value string, fields ...string) {
	if _, found, _ := unstructured.NestedString(obj, fields...); found {
		_ = unstructured.SetNestedField(obj, value, fields...)
	}
}

func rewriteSubjects(doc *unstructured.Unstructured, namespace string) {
	subjects, found, _ := unstructured.NestedSlice(doc.Object, "subjects")
	if !found {
		return
	}
	for _, s := range subjects {
		subject, ok := s.(map[string]any)
		if !ok {
			continue
		}
		if subject["kind"] == "ServiceAccount" {
			subject["namespace"] = namespace
		}
	}
	_ = unstructured.SetNestedSlice(doc.Object, subjects, "subjects")
}

func rewriteWebhooks(doc *unstructured.Unstructured, namespace string) {
	webhooks, found, _ := unstructured.NestedSlice(doc.Object, "webhooks")
	if !found {
		return
	}
	for _, w := range webhooks {
		if webhook, ok := w.(map[string]any); ok {
			setIfPresent(webhook, namespace, "clientConfig", "service", "namespace")
		}
	}
	_ = unstructured.SetNestedSlice(doc.Object, webhooks, "webhooks")
}

func rewriteDNSNames(doc *unstructured.Unstructured, origin, namespace string) {
	if origin == "" || origin == namespace {
		return
	}
	names, found, _ := unstructured.NestedStringSlice(doc.Object, "spec", "dnsNames")
	if !found {
		return
	}
	from, to := "."+origin+".svc", "."+namespace+".svc"
	for i, name := range names {
		names[i] = strings.Replace(name, from, to, 1)
	}
	_ = unstructured.SetNestedStringSlice(doc.Object, names, "spec", "dnsNames")
}

func rewriteInjectCA(doc *unstructured.Unstructured, namespace string) {
	annotations := doc.GetAnnotations()
	ref, ok := annotations[injectCAAnnotation]
	if !ok {
		return
	}
	if _, name, found := strings.Cut(ref, "/"); found {
		annotations[injectCAAnnotation] = namespace + "/" + name
		doc.SetAnnotations(annotations)
	}
}
