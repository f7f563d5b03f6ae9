// Package k8s is the cluster access layer shared by every primazactl
// workflow.
//
// A ClusterHandle carries the kubeconfig entry and clients for one
// cluster. The Applier performs create, read, delete and patch calls for
// arbitrary documents through the dynamic client, resolving resources with
// a kind Registry, honoring the run's dry-run mode and recording created
// documents for output.
//
// Failures are classified into a small taxonomy that callers test with
// errors.Is:
//
//   - ErrNotFound for missing objects outside the applier
//   - ErrPermissionDenied, carried by *PermissionError
//   - ErrTimeout, carried by *TimeoutError from Poll
//   - ErrMalformedInput for invalid documents
//   - ErrUnclassifiedFault, carried by *APIError
//
// Example usage:
//
//	cluster, err := k8s.LoadCluster(k8s.ClusterOptions{Context: "main"})
//	if err != nil {
//		return err
//	}
//	applier := k8s.NewApplier(cluster, run)
//	results, err := applier.ApplyAll(ctx, docs, k8s.ActionCreate)
package k8s
