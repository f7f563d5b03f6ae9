package federation

import (
	"fmt"

	"github.com/cockroachdb/errors"
)

var (
	// ErrInvalidName indicates a tenant, cluster environment or namespace
	// name that is not a valid Kubernetes name.
	ErrInvalidName = errors.New("invalid name")

	// ErrInvalidOptions indicates an options file that cannot be used.
	ErrInvalidOptions = errors.New("invalid options")

	// ErrClusterUnreachable indicates that the cluster API server is not reachable.
	// This typically occurs due to:
	//   - a wrong internal URL or kubeconfig server
	//   - DNS resolution failures
	//   - a cluster that is not running
	ErrClusterUnreachable = errors.New("cluster unreachable")

	// ErrTLSHandshakeFailed indicates that the TLS handshake with the cluster failed.
	ErrTLSHandshakeFailed = errors.New("TLS handshake failed")

	// ErrConnectionTimeout indicates that the connection to the cluster timed out.
	ErrConnectionTimeout = errors.New("connection timeout")
)

// StepError reports the workflow step that failed. Resources created by
// earlier steps are left in place; running the workflow again resumes it.
type StepError struct {
	Workflow string
	Step     string
	// Cluster is the kubeconfig context the step worked on.
	Cluster string
	Err     error
}

// Error implements the error interface.
func (e *StepError) Error() string {
	if e.Cluster != "" {
		return fmt.Sprintf("%s: %s on %s: %v", e.Workflow, e.Step, e.Cluster, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Workflow, e.Step, e.Err)
}

// Unwrap returns the step failure.
func (e *StepError) Unwrap() error {
	return e.Err
}

// ConnectionError provides detailed context about a connectivity failure.
type ConnectionError struct {
	Cluster string
	Host    string
	Reason  string
	// Kind is one of ErrClusterUnreachable, ErrTLSHandshakeFailed or
	// ErrConnectionTimeout.
	Kind error
	Err  error
}

// Error implements the error interface.
func (e *ConnectionError) Error() string {
	msg := fmt.Sprintf("cluster %q (%s): %s", e.Cluster, e.Host, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying error.
func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// Is matches the connectivity sentinel in Kind.
func (e *ConnectionError) Is(target error) bool {
	return target == e.Kind
}
