// Package manifest resolves the ordered document sets primazactl applies:
// from a local file, or from an asset of a versioned release of the
// primaza repository. Documents are retargeted to the requested namespace
// before they are returned.
package manifest
