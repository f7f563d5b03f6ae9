// Package logging provides structured logging utilities for primazactl.
//
// A single *slog.Logger is built from the command line options with New and
// handed to every component through its constructor. The attribute helpers
// in this package keep key names stable across the code base so that log
// lines emitted while joining clusters or onboarding namespaces can be
// filtered by cluster, namespace or resource.
//
// # Usage Patterns
//
//	logger := logging.WithCluster(base, "worker-cluster")
//	logger.Info("created service account",
//	    logging.Namespace("kube-system"),
//	    logging.ResourceName("primaza-tenant1-env1"))
//
// # Security Considerations
//
//   - API server URLs have IP addresses redacted by SanitizeHost
//   - Bearer tokens are reduced to a length indicator by SanitizeToken
//   - Secret payloads are never passed to a logger
package logging
