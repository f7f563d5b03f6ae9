// Package federation runs the workflows that connect a primaza tenant to
// its worker clusters.
//
// # Workflows
//
//   - InstallTenant / UninstallTenant apply or delete the control plane
//     manifest in the tenant namespace.
//   - JoinWorkerCluster provisions the tenant's identity on a worker
//     cluster, hands its kubeconfig to the control plane and registers a
//     ClusterEnvironment.
//   - OnboardAgentNamespace prepares a worker namespace for an application
//     or service agent and lists it in the ClusterEnvironment.
//   - Apply runs all of the above from a Tenant options file.
//
// Workflows are strictly sequential. A failing step aborts the workflow
// with a *StepError naming the step and cluster; objects created before
// are left in place and every step is idempotent, so running the workflow
// again resumes it.
//
// # Clusters
//
// Clusters are addressed through k8s.ClusterHandle values. ClusterSet loads
// each distinct kubeconfig context once and can check connectivity before
// handing it out:
//
//	clusters := federation.NewClusterSet(federation.WithPreflight(true))
//	main, err := clusters.Get(ctx, k8s.ClusterOptions{Context: "main"})
//
// # Dry runs
//
// All components share one runctx.RunContext. In dry-run mode the
// workflows still run every step, but nothing is persisted (client) or
// only validated (server); waits and access verification are skipped.
package federation
