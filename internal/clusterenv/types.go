package clusterenv

import (
	"github.com/cockroachdb/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime"

	"github.com/primaza/primazactl/internal/k8s"
)

const (
	// APIVersion is the group version of ClusterEnvironment.
	APIVersion = "primaza.io/v1alpha1"
	// Kind is the ClusterEnvironment kind.
	Kind = "ClusterEnvironment"

	// StateOnline is the terminal state of a healthy cluster environment.
	StateOnline = "Online"

	// ConditionOnline reports that the control plane reaches the cluster.
	ConditionOnline = "Online"
	// ConditionApplicationNamespacePermissionsRequired reports application
	// namespaces the tenant identity cannot manage yet.
	ConditionApplicationNamespacePermissionsRequired = "ApplicationNamespacePermissionsRequired"
	// ConditionServiceNamespacePermissionsRequired reports service
	// namespaces the tenant identity cannot manage yet.
	ConditionServiceNamespacePermissionsRequired = "ServiceNamespacePermissionsRequired"
)

// NamespaceList names one of the namespace lists of a ClusterEnvironment spec.
type NamespaceList string

// Namespace lists of a ClusterEnvironment.
const (
	ApplicationNamespaces NamespaceList = "applicationNamespaces"
	ServiceNamespaces     NamespaceList = "serviceNamespaces"
)

// ClusterEnvironment registers a worker cluster with a tenant.
type ClusterEnvironment struct {
	metav1.TypeMeta   `json:",inline"`
	metav1.ObjectMeta `json:"metadata,omitempty"`

	Spec   Spec    `json:"spec"`
	Status *Status `json:"status,omitempty"`
}

// Spec names the environment, the secret holding the worker kubeconfig and
// the agent namespaces of the cluster.
type Spec struct {
	EnvironmentName       string   `json:"environmentName"`
	ClusterContextSecret  string   `json:"clusterContextSecret"`
	ApplicationNamespaces []string `json:"applicationNamespaces,omitempty"`
	ServiceNamespaces     []string `json:"serviceNamespaces,omitempty"`
}

// Status is written by the control plane.
type Status struct {
	State      string      `json:"state"`
	Conditions []Condition `json:"conditions,omitempty"`
}

// Condition is one typed status condition.
type Condition struct {
	Type               string `json:"type"`
	Status             string `json:"status"`
	Reason             string `json:"reason,omitempty"`
	Message            string `json:"message,omitempty"`
	LastTransitionTime string `json:"lastTransitionTime,omitempty"`
}

// Expectation is a condition type and the status it must carry.
type Expectation struct {
	Type   string
	Status string
}

// JoinedConditions hold once a worker cluster is joined and every agent
// namespace has its permissions.
var JoinedConditions = []Expectation{
	{Type: ConditionOnline, Status: string(metav1.ConditionTrue)},
	{Type: ConditionApplicationNamespacePermissionsRequired, Status: string(metav1.ConditionFalse)},
	{Type: ConditionServiceNamespacePermissionsRequired, Status: string(metav1.ConditionFalse)},
}

// New returns the desired state of a cluster environment.
func New(namespace, name, environment, secretName string) *ClusterEnvironment {
	return &ClusterEnvironment{
		TypeMeta:   metav1.TypeMeta{APIVersion: APIVersion, Kind: Kind},
		ObjectMeta: metav1.ObjectMeta{Name: name, Namespace: namespace},
		Spec: Spec{
			EnvironmentName:      environment,
			ClusterContextSecret: secretName,
		},
	}
}

// Namespaces returns the list named by list.
func (s *Spec) Namespaces(list NamespaceList) []string {
	if list == ServiceNamespaces {
		return s.ServiceNamespaces
	}
	return s.ApplicationNamespaces
}

func (s *Spec) setNamespaces(list NamespaceList, values []string) {
	if list == ServiceNamespaces {
		s.ServiceNamespaces = values
		return
	}
	s.ApplicationNamespaces = values
}

// CurrentStatus returns the status, the zero value when none is written yet.
func (ce *ClusterEnvironment) CurrentStatus() Status {
	if ce.Status == nil {
		return Status{}
	}
	return *ce.Status
}

// Unstructured converts ce for the dynamic client.
func (ce *ClusterEnvironment) Unstructured() (*unstructured.Unstructured, error) {
	content, err := runtime.DefaultUnstructuredConverter.ToUnstructured(ce)
	if err != nil {
		return nil, errors.Wrapf(err, "converting cluster environment %s", ce.Name)
	}
	doc := &unstructured.Unstructured{Object: content}
	doc.SetAPIVersion(APIVersion)
	doc.SetKind(Kind)
	return doc, nil
}

// FromUnstructured decodes a cluster environment read from the API.
func FromUnstructured(doc *unstructured.Unstructured) (*ClusterEnvironment, error) {
	var ce ClusterEnvironment
	if err := k8s.FromUnstructured(doc, &ce); err != nil {
		return nil, err
	}
	return &ce, nil
}
