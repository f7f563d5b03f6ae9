package federation

import (
	"fmt"
	"net/url"
	"regexp"
	"unicode"

	"github.com/primaza/primazactl/internal/identity"
)

// validNameRegex matches RFC 1123 labels: lowercase alphanumeric or
// hyphens, starting and ending with an alphanumeric.
var validNameRegex = regexp.MustCompile(`^[a-z0-9]([-a-z0-9]*[a-z0-9])?$`)

// ValidationError provides detailed context about a validation failure.
type ValidationError struct {
	Field  string
	Value  string // truncated
	Reason string
	Err    error
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Value != "" {
		return fmt.Sprintf("validation failed for %s %q: %s", e.Field, e.Value, e.Reason)
	}
	return fmt.Sprintf("validation failed for %s: %s", e.Field, e.Reason)
}

// Unwrap returns the underlying sentinel error.
func (e *ValidationError) Unwrap() error {
	return e.Err
}

// ValidateName checks that value can name a Kubernetes namespace or
// object used by the workflows.
func ValidateName(field, value string) error {
	if value == "" {
		return &ValidationError{Field: field, Reason: "name cannot be empty", Err: ErrInvalidName}
	}
	if len(value) > identity.MaxNameLength {
		return &ValidationError{
			Field:  field,
			Value:  truncateForError(value, 20),
			Reason: fmt.Sprintf("name too long (max %d characters)", identity.MaxNameLength),
			Err:    ErrInvalidName,
		}
	}
	if containsControlCharacters(value) {
		return &ValidationError{
			Field:  field,
			Value:  truncateForError(value, 20),
			Reason: "name contains invalid control characters",
			Err:    ErrInvalidName,
		}
	}
	if !validNameRegex.MatchString(value) {
		return &ValidationError{
			Field:  field,
			Value:  truncateForError(value, 20),
			Reason: "must consist of lowercase alphanumeric characters or '-', and must start and end with an alphanumeric character",
			Err:    ErrInvalidName,
		}
	}
	return nil
}

// ValidateInternalURL checks an optional API server address handed to
// other clusters.
func ValidateInternalURL(field, value string) error {
	if value == "" {
		return nil
	}
	u, err := url.Parse(value)
	if err != nil || u.Host == "" || (u.Scheme != "https" && u.Scheme != "http") {
		return &ValidationError{
			Field:  field,
			Value:  truncateForError(value, 40),
			Reason: "must be an absolute http(s) URL",
			Err:    ErrInvalidOptions,
		}
	}
	return nil
}

func validateNames(pairs ...string) error {
	for i := 0; i+1 < len(pairs); i += 2 {
		if err := ValidateName(pairs[i], pairs[i+1]); err != nil {
			return err
		}
	}
	return nil
}

func containsControlCharacters(s string) bool {
	for _, r := range s {
		if unicode.IsControl(r) {
			return true
		}
	}
	return false
}

// truncateForError truncates a string for safe inclusion in error messages.
func truncateForError(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
