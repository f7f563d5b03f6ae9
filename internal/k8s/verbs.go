package k8s

import (
	"github.com/cockroachdb/errors"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/client-go/discovery"
)

// DefaultVerbs is the verb vocabulary of a standard resource, used when
// discovery does not list the resource.
var DefaultVerbs = []string{"create", "delete", "deletecollection", "get", "list", "patch", "update", "watch"}

// VerbCatalog answers the full verb vocabulary of a resource from the
// cluster's discovery document. The document is read on first use; a
// failed read is retried by the next call.
type VerbCatalog struct {
	discovery discovery.DiscoveryInterface
	verbs     lazyValue[map[schema.GroupResource][]string]
}

// NewVerbCatalog creates a catalog backed by d.
func NewVerbCatalog(d discovery.DiscoveryInterface) *VerbCatalog {
	return &VerbCatalog{discovery: d}
}

// Verbs returns the verbs the cluster serves for group/resource.
func (c *VerbCatalog) Verbs(group, resource string) ([]string, error) {
	catalog, err := c.verbs.Get(c.load)
	if err != nil {
		return nil, err
	}
	if verbs, ok := catalog[schema.GroupResource{Group: group, Resource: resource}]; ok {
		return verbs, nil
	}
	return DefaultVerbs, nil
}

func (c *VerbCatalog) load() (map[schema.GroupResource][]string, error) {
	catalog := make(map[schema.GroupResource][]string)

	_, lists, err := c.discovery.ServerGroupsAndResources()
	if err != nil && !discovery.IsGroupDiscoveryFailedError(err) {
		return nil, errors.Wrap(err, "discovering api resources")
	}

	for _, list := range lists {
		gv, err := schema.ParseGroupVersion(list.GroupVersion)
		if err != nil {
			continue
		}
		for _, r := range list.APIResources {
			key := schema.GroupResource{Group: gv.Group, Resource: r.Name}
			if _, seen := catalog[key]; seen || len(r.Verbs) == 0 {
				continue
			}
			catalog[key] = append([]string(nil), r.Verbs...)
		}
	}
	return catalog, nil
}
