// Package clusterenv manages ClusterEnvironment objects on a tenant
// cluster: creating them, listing agent namespaces in them and waiting for
// the control plane to report them Online.
//
// Convergence has two phases. The state is polled first; the conditions
// are checked once the state is reached:
//
//	m := clusterenv.NewManager(applier)
//	err := m.Converge(ctx, "primaza-system", "worker", clusterenv.StateOnline, clusterenv.JoinedConditions)
package clusterenv
