package queue

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Serph91P/StreamVault-sub001/modelerrors"
)

func TestRunWithRetrySucceedsWithoutRetrying(t *testing.T) {
	calls := 0
	attempts, err := runWithRetry(context.Background(), 3, func(attempt int) error {
		calls++
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 1, calls)
	require.Equal(t, 1, attempts)
}

func TestRunWithRetryStopsImmediatelyOnNonRetryable(t *testing.T) {
	calls := 0
	_, err := runWithRetry(context.Background(), 3, func(attempt int) error {
		calls++
		return modelerrors.NonRetryable("bad input", nil)
	})
	require.Error(t, err)
	require.Equal(t, 1, calls)
}

func TestRunWithRetryExhaustsMaxRetries(t *testing.T) {
	calls := 0
	attempts, err := runWithRetry(context.Background(), 2, func(attempt int) error {
		calls++
		return modelerrors.Retryable("transient", errors.New("boom"))
	})
	require.Error(t, err)
	require.Equal(t, 2, calls)
	require.Equal(t, 2, attempts)
}

func TestRunWithRetryRespectsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := runWithRetry(ctx, 5, func(attempt int) error {
		return modelerrors.Retryable("transient", errors.New("boom"))
	})
	require.Error(t, err)
}

func TestRegistryLookupReturnsRegisteredHandler(t *testing.T) {
	r := NewRegistry()
	r.Register("start_capture", func(ctx context.Context, p Payload, progress func(int)) error { return nil })

	fn, ok := r.lookup("start_capture")
	require.True(t, ok)
	require.NotNil(t, fn)

	_, ok = r.lookup("unknown")
	require.False(t, ok)
}
