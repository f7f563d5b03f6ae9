package k8s

import (
	"github.com/cockroachdb/errors"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/client-go/kubernetes/scheme"
)

// ToUnstructured converts a typed object into a document. apiVersion and
// kind are filled in from the client-go scheme when the object lacks them.
func ToUnstructured(obj runtime.Object) (*unstructured.Unstructured, error) {
	if u, ok := obj.(*unstructured.Unstructured); ok {
		return u, nil
	}

	obj = obj.DeepCopyObject()
	if obj.GetObjectKind().GroupVersionKind().Kind == "" {
		gvks, _, err := scheme.Scheme.ObjectKinds(obj)
		if err != nil {
			return nil, errors.Wrapf(err, "resolving kind of %T", obj)
		}
		obj.GetObjectKind().SetGroupVersionKind(gvks[0])
	}

	content, err := runtime.DefaultUnstructuredConverter.ToUnstructured(obj)
	if err != nil {
		return nil, errors.Wrapf(err, "converting %T", obj)
	}
	return &unstructured.Unstructured{Object: content}, nil
}

// FromUnstructured converts a document into the typed object into.
func FromUnstructured(u *unstructured.Unstructured, into any) error {
	if err := runtime.DefaultUnstructuredConverter.FromUnstructured(u.Object, into); err != nil {
		return errors.Wrapf(err, "converting %s %s", u.GetKind(), u.GetName())
	}
	return nil
}
