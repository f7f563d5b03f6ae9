// Package access checks that an identity holds exactly the permissions a
// set of RBAC rules declares: every granted verb must be allowed and,
// where the rule is not restricted to named objects, every other verb the
// resource serves must be denied.
package access
