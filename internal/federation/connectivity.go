package federation

import (
	"context"
	"log/slog"
	"net"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/primaza/primazactl/internal/k8s"
	"github.com/primaza/primazactl/internal/logging"
)

// CheckConnectivity asks the cluster for its version before any workflow
// step touches it, so an unreachable cluster fails fast with a classified
// error instead of in the middle of a workflow.
func CheckConnectivity(ctx context.Context, cluster *k8s.ClusterHandle, logger *slog.Logger) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	info, err := cluster.Discovery().ServerVersion()
	if err != nil {
		return wrapConnectivityError(cluster.Context(), cluster.Server(), err)
	}

	logging.OrDefault(logger).Debug("cluster reachable",
		logging.Context(cluster.Context()),
		logging.Host(cluster.Server()),
		slog.String("version", info.GitVersion))
	return nil
}

// wrapConnectivityError classifies err into a *ConnectionError.
func wrapConnectivityError(clusterName, host string, err error) error {
	cerr := &ConnectionError{
		Cluster: clusterName,
		Host:    logging.SanitizeHost(host),
		Reason:  "server unreachable",
		Kind:    ErrClusterUnreachable,
		Err:     err,
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded), isTimeoutError(err):
		cerr.Reason = "connection timed out"
		cerr.Kind = ErrConnectionTimeout
	case isTLSError(err):
		cerr.Reason = extractTLSReason(err)
		cerr.Kind = ErrTLSHandshakeFailed
	}
	return cerr
}

// isTLSError checks if the error is related to TLS/certificate issues.
func isTLSError(err error) bool {
	errStr := strings.ToLower(err.Error())
	for _, pattern := range []string{"x509:", "tls:", "certificate", "handshake"} {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}
	return false
}

// isTimeoutError checks if the error is a timeout error.
func isTimeoutError(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	errStr := strings.ToLower(err.Error())
	for _, pattern := range []string{"timeout", "timed out", "deadline exceeded"} {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}
	return false
}

// extractTLSReason extracts a human-readable reason from a TLS error.
func extractTLSReason(err error) string {
	errStr := err.Error()

	switch {
	case strings.Contains(errStr, "unknown authority"):
		return "certificate signed by unknown authority"
	case strings.Contains(errStr, "has expired"):
		return "certificate has expired"
	case strings.Contains(errStr, "not valid yet"):
		return "certificate is not yet valid"
	case strings.Contains(errStr, "doesn't contain any IP SANs"):
		return "certificate doesn't match server IP"
	case strings.Contains(errStr, "doesn't match"):
		return "certificate hostname mismatch"
	default:
		return "TLS error"
	}
}
