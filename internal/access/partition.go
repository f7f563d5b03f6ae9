package access

import (
	"slices"

	rbacv1 "k8s.io/api/rbac/v1"
)

// SplitVerbs partitions fullVerbs into the verbs a rule granting
// ruleVerbs allows and those it denies, both in fullVerbs order. A "*"
// rule verb grants every verb. When the rule is restricted to named
// objects no denied verbs are returned, since another rule may grant them
// on other objects.
func SplitVerbs(ruleVerbs, fullVerbs []string, nameRestricted bool) (allowed, denied []string) {
	all := slices.Contains(ruleVerbs, rbacv1.VerbAll)
	for _, verb := range fullVerbs {
		if all || slices.Contains(ruleVerbs, verb) {
			allowed = append(allowed, verb)
			continue
		}
		if !nameRestricted {
			denied = append(denied, verb)
		}
	}
	return allowed, denied
}
