package k8s

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

// Sentinel errors for the failure classes of cluster operations.
// These errors can be checked using errors.Is() for programmatic error handling.
var (
	// ErrNotFound indicates that an object does not exist. Applier calls
	// convert it to an absent result, it only surfaces from direct lookups.
	ErrNotFound = errors.New("not found")

	// ErrPermissionDenied indicates that one or more permission checks
	// failed. The carrying *PermissionError lists every violation.
	ErrPermissionDenied = errors.New("permission denied")

	// ErrTimeout indicates that a bounded poll gave up. The carrying
	// *TimeoutError holds the last observed object.
	ErrTimeout = errors.New("timed out")

	// ErrMalformedInput indicates an invalid document, manifest or version.
	// It is raised before any mutating call.
	ErrMalformedInput = errors.New("malformed input")

	// ErrUnclassifiedFault indicates any other API server failure. The
	// carrying *APIError holds the raw server status.
	ErrUnclassifiedFault = errors.New("unclassified server fault")
)

// ObjectRef identifies one object for error and log messages.
type ObjectRef struct {
	Kind      string
	Namespace string
	Name      string
}

func (r ObjectRef) String() string {
	if r.Namespace == "" {
		return fmt.Sprintf("%s %s", r.Kind, r.Name)
	}
	return fmt.Sprintf("%s %s/%s", r.Kind, r.Namespace, r.Name)
}

// APIError is a server fault raised by a single operation. It is never
// retried.
type APIError struct {
	Action Action
	Object ObjectRef
	// Status is the raw status returned by the API server, when there is one.
	Status *metav1.Status
	Err    error
}

// Error implements the error interface.
func (e *APIError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Action, e.Object, e.Err)
}

// Unwrap returns the underlying client error so apierrors helpers keep working.
func (e *APIError) Unwrap() error {
	return e.Err
}

// Is matches ErrUnclassifiedFault.
func (e *APIError) Is(target error) bool {
	return target == ErrUnclassifiedFault
}

// Detail renders the raw server status for verbose output.
func (e *APIError) Detail() string {
	if e.Status == nil {
		return ""
	}
	data, err := json.Marshal(e.Status)
	if err != nil {
		return e.Status.Message
	}
	return string(data)
}

// NewAPIError wraps err with the raw server status when err carries one.
func NewAPIError(action Action, ref ObjectRef, err error) error {
	apiErr := &APIError{Action: action, Object: ref, Err: err}
	var status apierrors.APIStatus
	if errors.As(err, &status) {
		s := status.Status()
		apiErr.Status = &s
	}
	return apiErr
}

// TimeoutError is raised when a bounded poll expires.
type TimeoutError struct {
	// What describes the awaited condition.
	What    string
	Timeout time.Duration
	// LastObserved is the last value seen by the poll, nil when nothing
	// was ever observed.
	LastObserved any
	Err          error
}

// Error implements the error interface.
func (e *TimeoutError) Error() string {
	msg := fmt.Sprintf("timed out after %s waiting for %s", e.Timeout, e.What)
	if e.LastObserved != nil {
		msg += fmt.Sprintf(", last observed: %s", renderObserved(e.LastObserved))
	}
	return msg
}

// Unwrap returns the underlying wait error.
func (e *TimeoutError) Unwrap() error {
	return e.Err
}

// Is matches ErrTimeout.
func (e *TimeoutError) Is(target error) bool {
	return target == ErrTimeout
}

func renderObserved(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(data)
}

// Violation is one failed permission check.
type Violation struct {
	// Subject is the user checked, empty for the caller's own identity.
	Subject   string
	Verb      string
	Group     string
	Resource  string
	Namespace string
	Name      string
	// Expected is the access the subject should have had.
	Expected bool
	// Allowed is the access reported by the API server.
	Allowed bool
}

func (v Violation) String() string {
	subject := v.Subject
	if subject == "" {
		subject = "current user"
	}
	resource := v.Resource
	if v.Group != "" {
		resource = v.Resource + "." + v.Group
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %s %s", subject, v.Verb, resource)
	if v.Name != "" {
		fmt.Fprintf(&b, " %q", v.Name)
	}
	if v.Namespace != "" {
		fmt.Fprintf(&b, " in namespace %s", v.Namespace)
	}
	fmt.Fprintf(&b, " (allowed: %t, expected: %t)", v.Allowed, v.Expected)
	return b.String()
}

// PermissionError aggregates every violation found by a batch of checks.
type PermissionError struct {
	Violations []Violation
}

// Error implements the error interface.
func (e *PermissionError) Error() string {
	lines := make([]string, 0, len(e.Violations))
	for _, v := range e.Violations {
		lines = append(lines, v.String())
	}
	return fmt.Sprintf("%d permission violation(s): %s", len(e.Violations), strings.Join(lines, "; "))
}

// Is matches ErrPermissionDenied.
func (e *PermissionError) Is(target error) bool {
	return target == ErrPermissionDenied
}

// Malformed marks a formatted error as ErrMalformedInput.
func Malformed(format string, args ...any) error {
	return errors.Mark(errors.Newf(format, args...), ErrMalformedInput)
}

// IsBenign reports whether err is the expected outcome of action: an
// existing object on create or a missing one on read and delete.
func IsBenign(action Action, err error) bool {
	switch action {
	case ActionCreate:
		return apierrors.IsAlreadyExists(err)
	case ActionRead, ActionDelete:
		return apierrors.IsNotFound(err)
	}
	return false
}
