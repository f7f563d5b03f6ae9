// Package runctx holds the per-invocation dry-run and output settings of
// primazactl together with the accumulated resource list and warnings.
//
// A RunContext is created once from validated command line options and
// passed by reference to every component that talks to a cluster. The
// modes are fixed at construction; only the resource and warning lists
// grow while the command runs. Rendering the accumulated resources as a
// `{apiVersion: v1, items: [...]}` list happens once, when the command
// finishes.
package runctx
