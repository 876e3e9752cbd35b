package ignition

import (
	"errors"
	"fmt"
)

// ErrorClass classifies a failure for retry and escalation decisions.
type ErrorClass string

const (
	// ErrorClassTransient indicates a temporary failure that may succeed on
	// retry. Examples: network timeouts, a droplet API blip.
	ErrorClassTransient ErrorClass = "transient"

	// ErrorClassThrottled indicates rate limiting or quota exhaustion on a
	// collaborator API. Retried with a longer backoff.
	ErrorClassThrottled ErrorClass = "throttled"

	// ErrorClassConflict indicates a state conflict, such as a concurrent
	// ignition attempt for the same workspace.
	ErrorClassConflict ErrorClass = "conflict"

	// ErrorClassPermanent indicates a non-recoverable failure. Examples:
	// invalid configuration, permission denied, exhausted handshake budget.
	ErrorClassPermanent ErrorClass = "permanent"
)

// IgnitionError is a classified error carrying workspace and step context.
// nolint:revive // IgnitionError is intentionally named to distinguish from standard errors
type IgnitionError struct {
	// Class is the error classification for retry logic.
	Class ErrorClass `json:"class"`

	// Message is the human-readable error message.
	Message string `json:"message"`

	// Code is an optional error code for programmatic handling.
	Code string `json:"code,omitempty"`

	// Workspace is the workspace the failure belongs to, if applicable.
	Workspace string `json:"workspace,omitempty"`

	// Step is the saga step during which the failure occurred.
	Step string `json:"step,omitempty"`

	// Err is the underlying error that caused this error.
	Err error `json:"-"`
}

// Error implements the error interface.
func (e *IgnitionError) Error() string {
	var s string
	switch {
	case e.Step != "":
		s = fmt.Sprintf("[%s] %s (workspace=%s, step=%s)", e.Class, e.Message, e.Workspace, e.Step)
	case e.Workspace != "":
		s = fmt.Sprintf("[%s] %s (workspace=%s)", e.Class, e.Message, e.Workspace)
	default:
		s = fmt.Sprintf("[%s] %s", e.Class, e.Message)
	}
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}

// Unwrap returns the underlying error for error chain inspection.
func (e *IgnitionError) Unwrap() error {
	return e.Err
}

// Is implements error equality checking for errors.Is.
func (e *IgnitionError) Is(target error) bool {
	t, ok := target.(*IgnitionError)
	if !ok {
		return false
	}
	return e.Class == t.Class && e.Code == t.Code
}

// NewTransientError creates a new transient error.
func NewTransientError(message string, err error) *IgnitionError {
	return &IgnitionError{Class: ErrorClassTransient, Message: message, Err: err}
}

// NewThrottledError creates a new throttled error.
func NewThrottledError(message string, err error) *IgnitionError {
	return &IgnitionError{Class: ErrorClassThrottled, Message: message, Err: err}
}

// NewConflictError creates a new conflict error.
func NewConflictError(message string, err error) *IgnitionError {
	return &IgnitionError{Class: ErrorClassConflict, Message: message, Err: err}
}

// NewPermanentError creates a new permanent error.
func NewPermanentError(message string, err error) *IgnitionError {
	return &IgnitionError{Class: ErrorClassPermanent, Message: message, Err: err}
}

// WithWorkspace adds workspace context to an error.
func (e *IgnitionError) WithWorkspace(workspaceID string) *IgnitionError {
	e.Workspace = workspaceID
	return e
}

// WithStep adds saga step context to an error.
func (e *IgnitionError) WithStep(step string) *IgnitionError {
	e.Step = step
	return e
}

// WithCode adds an error code to an error.
func (e *IgnitionError) WithCode(code string) *IgnitionError {
	e.Code = code
	return e
}

// IsTransient returns true if the error is classified as transient.
func IsTransient(err error) bool {
	var e *IgnitionError
	if errors.As(err, &e) {
		return e.Class == ErrorClassTransient
	}
	return false
}

// IsThrottled returns true if the error is classified as throttled.
func IsThrottled(err error) bool {
	var e *IgnitionError
	if errors.As(err, &e) {
		return e.Class == ErrorClassThrottled
	}
	return false
}

// IsConflict returns true if the error is classified as a conflict.
func IsConflict(err error) bool {
	var e *IgnitionError
	if errors.As(err, &e) {
		return e.Class == ErrorClassConflict
	}
	return false
}

// IsRetryable returns true if the error can be retried. Transient and
// throttled errors are retryable; conflicts and permanent errors are not,
// since a second attempt inside the same saga cannot resolve them.
func IsRetryable(err error) bool {
	return IsTransient(err) || IsThrottled(err)
}

// Common error codes.
const (
	ErrCodeValidation       = "VALIDATION_ERROR"
	ErrCodeNotFound         = "NOT_FOUND"
	ErrCodeInProgress       = "IGNITION_IN_PROGRESS"
	ErrCodeStateStore       = "STATE_STORE_ERROR"
	ErrCodePartitionFailed  = "PARTITION_FAILED"
	ErrCodeVaultFailed      = "VAULT_FAILED"
	ErrCodeProvisionFailed  = "PROVISION_FAILED"
	ErrCodeHandshakeTimeout = "HANDSHAKE_TIMEOUT"
	ErrCodeDeployFailed     = "DEPLOY_FAILED"
	ErrCodeFinalizeFailed   = "FINALIZE_FAILED"
)

// ErrNotFound is returned by a state store when no ignition record exists
// for the requested workspace.
var ErrNotFound = NewPermanentError("ignition state not found", nil).WithCode(ErrCodeNotFound)
