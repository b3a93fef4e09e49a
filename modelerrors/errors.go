// Package modelerrors defines the four error kinds used throughout the core
// (spec §7): Retryable, NonRetryable, RecoverableAtBoot, and OperatorVisible.
// Handlers never swallow unknown errors; they wrap them with task/recording
// context via these constructors and re-raise so the worker pool's retry
// policy applies uniformly.
package modelerrors

import (
	"errors"
	"fmt"
)

// retryableError marks transient failures (I/O, DB serialization, subprocess
// start timeouts) that the caller's retry decorator should retry.
type retryableError struct {
	msg   string
	cause error
}

func (e retryableError) Error() string { return e.msg }
func (e retryableError) Unwrap() error { return e.cause }

// Retryable wraps err as a transient failure eligible for exponential
// backoff retry.
func Retryable(msg string, cause error) error {
	return retryableError{msg: withCause(msg, cause), cause: cause}
}

// IsRetryable reports whether err (or anything it wraps) is a Retryable error.
func IsRetryable(err error) bool {
	var r retryableError
	return errors.As(err, &r)
}

// nonRetryableError marks logical failures (not-found, auth, constraint
// violation, malformed input) that must surface immediately without retry.
type nonRetryableError struct {
	msg   string
	cause error
}

func (e nonRetryableError) Error() string { return e.msg }
func (e nonRetryableError) Unwrap() error { return e.cause }

// NonRetryable wraps err as a failure that should surface immediately; the
// owning task moves straight to failed.
func NonRetryable(msg string, cause error) error {
	return nonRetryableError{msg: withCause(msg, cause), cause: cause}
}

func IsNonRetryable(err error) bool {
	var r nonRetryableError
	return errors.As(err, &r)
}

// recoverableAtBootError marks failures where durable state (ActiveRecordingState,
// RecordingProcessingState) already captures what's needed for the recovery
// subsystem to resume on next boot; no action is required from the caller
// beyond logging.
type recoverableAtBootError struct {
	msg   string
	cause error
}

func (e recoverableAtBootError) Error() string { return e.msg }
func (e recoverableAtBootError) Unwrap() error { return e.cause }

func RecoverableAtBoot(msg string, cause error) error {
	return recoverableAtBootError{msg: withCause(msg, cause), cause: cause}
}

func IsRecoverableAtBoot(err error) bool {
	var r recoverableAtBootError
	return errors.As(err, &r)
}

// operatorVisibleError marks failures an operator must act on (permission
// denied, missing tool): logged with context, surfaced over the WebSocket
// fan-out, never retried past the configured limit.
type operatorVisibleError struct {
	msg    string
	cause  error
	reason string
}

func (e operatorVisibleError) Error() string { return e.msg }
func (e operatorVisibleError) Unwrap() error { return e.cause }

// OperatorVisible wraps err with a stable machine-readable failure_reason tag.
func OperatorVisible(reason, msg string, cause error) error {
	return operatorVisibleError{msg: withCause(msg, cause), cause: cause, reason: reason}
}

func IsOperatorVisible(err error) bool {
	var r operatorVisibleError
	return errors.As(err, &r)
}

func withCause(msg string, cause error) string {
	if cause == nil {
		return msg
	}
	return fmt.Sprintf("%s: %s", msg, cause)
}

// unretriableError is the teacher's marker-wrapper pattern, reused verbatim
// by the worker pool: any error wrapped with Unretriable skips remaining
// retry attempts regardless of its kind.
type unretriableError struct{ error }

func Unretriable(err error) error {
	return unretriableError{err}
}

func (e unretriableError) Unwrap() error {
	return e.error
}

func IsUnretriable(err error) bool {
	var u unretriableError
	return errors.As(err, &u)
}

// FailureReason returns the stable machine-readable tag recorded on the
// Recording row's failure_reason column. It falls back to a generic tag for
// errors that were never classified through this package.
func FailureReason(err error) string {
	if err == nil {
		return ""
	}
	var ov operatorVisibleError
	if errors.As(err, &ov) {
		return ov.reason
	}
	switch {
	case IsNonRetryable(err):
		return "non_retryable"
	case IsRetryable(err):
		return "retryable_exhausted"
	case IsRecoverableAtBoot(err):
		return "recoverable_at_boot"
	default:
		return "unknown"
	}
}

// DependenciesFailedError is the error recorded on a task whose dependency
// propagated a failure (spec §4.5 / scenario S5), of the form
// "Dependencies failed: [<id>, ...]".
func DependenciesFailedError(failedDepIDs []string) error {
	return nonRetryableError{msg: fmt.Sprintf("Dependencies failed: %v", failedDepIDs)}
}
