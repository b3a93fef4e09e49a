package modelerrors

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRetryableClassification(t *testing.T) {
	base := errors.New("connection reset")
	err := Retryable("writing segment", base)
	require.True(t, IsRetryable(err))
	require.False(t, IsNonRetryable(err))
	require.ErrorIs(t, err, base)
}

func TestNonRetryableClassification(t *testing.T) {
	err := NonRetryable("stream not found", nil)
	require.True(t, IsNonRetryable(err))
	require.False(t, IsRetryable(err))
}

func TestUnretriableWrapsAnyKind(t *testing.T) {
	err := Unretriable(Retryable("fatal probe failure", nil))
	require.True(t, IsUnretriable(err))
	require.True(t, IsRetryable(err))
}

func TestFailureReasonOperatorVisible(t *testing.T) {
	err := OperatorVisible("missing_tool", "ffmpeg binary not found", nil)
	require.Equal(t, "missing_tool", FailureReason(err))
}

func TestFailureReasonDefaults(t *testing.T) {
	require.Equal(t, "non_retryable", FailureReason(NonRetryable("bad input", nil)))
	require.Equal(t, "retryable_exhausted", FailureReason(Retryable("timeout", nil)))
	require.Equal(t, "unknown", FailureReason(errors.New("plain")))
	require.Equal(t, "", FailureReason(nil))
}

func TestDependenciesFailedError(t *testing.T) {
	err := DependenciesFailedError([]string{"task-1"})
	require.Contains(t, err.Error(), "task-1")
	require.True(t, IsNonRetryable(err))
}
