package k8s

import (
	"context"

	authorizationv1 "k8s.io/api/authorization/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime/schema"

	"github.com/primaza/primazactl/internal/logging"
)

// CheckSelfAccess asks the API server whether the caller may perform
// action on every document. A CustomResourceDefinition is also checked
// for its custom resource in SelfCheckNamespace, since installers
// commonly create instances right after the definition. Review calls that
// fail are logged and do not count as violations.
func (a *Applier) CheckSelfAccess(ctx context.Context, docs []*unstructured.Unstructured, action Action) ([]Violation, error) {
	var violations []Violation
	for _, doc := range docs {
		info, err := a.registry.ForObject(doc)
		if err != nil {
			return nil, err
		}

		attrs := []authorizationv1.ResourceAttributes{{
			Group:     info.GVR.Group,
			Resource:  info.GVR.Resource,
			Verb:      action.Verb(),
			Namespace: doc.GetNamespace(),
			Name:      doc.GetName(),
		}}
		if cr, ok := customResourceOf(doc); ok {
			attrs = append(attrs, authorizationv1.ResourceAttributes{
				Group:     cr.Group,
				Resource:  cr.Resource,
				Verb:      action.Verb(),
				Namespace: SelfCheckNamespace,
				Name:      doc.GetName(),
			})
		}

		for _, attr := range attrs {
			allowed, err := a.selfAllowed(ctx, attr)
			if err != nil {
				a.logger.Warn("self access review failed",
					logging.ResourceType(attr.Resource),
					logging.ResourceName(attr.Name),
					logging.Err(err))
				continue
			}
			if !allowed {
				violations = append(violations, Violation{
					Verb:      attr.Verb,
					Group:     attr.Group,
					Resource:  attr.Resource,
					Namespace: attr.Namespace,
					Name:      attr.Name,
					Expected:  true,
					Allowed:   false,
				})
			}
		}
	}

	if len(violations) > 0 {
		a.metrics.RecordAccessViolations(ctx, "", len(violations))
	}
	return violations, nil
}

func (a *Applier) selfAllowed(ctx context.Context, attr authorizationv1.ResourceAttributes) (bool, error) {
	review := &authorizationv1.SelfSubjectAccessReview{
		Spec: authorizationv1.SelfSubjectAccessReviewSpec{ResourceAttributes: &attr},
	}
	resp, err := a.cluster.Clientset().AuthorizationV1().SelfSubjectAccessReviews().Create(ctx, review, metav1.CreateOptions{})
	if err != nil {
		return false, NewAPIError(ActionCreate, ObjectRef{Kind: "SelfSubjectAccessReview"}, err)
	}
	return resp.Status.Allowed, nil
}

func customResourceOf(doc *unstructured.Unstructured) (schema.GroupResource, bool) {
	if doc.GetKind() != "CustomResourceDefinition" {
		return schema.GroupResource{}, false
	}
	group, _, _ := unstructured.NestedString(doc.Object, "spec", "group")
	plural, _, _ := unstructured.NestedString(doc.Object, "spec", "names", "plural")
	if plural == "" {
		return schema.GroupResource{}, false
	}
	return schema.GroupResource{Group: group, Resource: plural}, true
}
