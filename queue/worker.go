package queue

import (
	"context"
	"math"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/Serph91P/StreamVault-sub001/config"
	"github.com/Serph91P/StreamVault-sub001/modelerrors"
)

// HandlerFunc performs the actual work of one task. progressFn reports
// 0-100 progress into the tracker (C4); handlers that can't report partial
// progress simply never call it, which is fine -- the tracker only notifies
// on status change in that case.
type HandlerFunc func(ctx context.Context, payload Payload, progressFn func(int)) error

// Registry maps task-type to its handler, mirroring spec.md §4.4's
// "handler registry maps task-type -> async function".
type Registry struct {
	handlers map[string]HandlerFunc
}

func NewRegistry() *Registry {
	return &Registry{handlers: map[string]HandlerFunc{}}
}

func (r *Registry) Register(taskType string, fn HandlerFunc) {
	r.handlers[taskType] = fn
}

func (r *Registry) lookup(taskType string) (HandlerFunc, bool) {
	fn, ok := r.handlers[taskType]
	return fn, ok
}

// retryDelay implements spec.md §4.4's "delay = min(2^attempt, 60) s",
// jittered via cenkalti/backoff's randomization so that many tasks failing
// at once don't all retry in lockstep.
func retryDelay(attempt int) time.Duration {
	base := time.Duration(math.Pow(2, float64(attempt))) * time.Second
	if base > config.WorkerBackoffCap {
		base = config.WorkerBackoffCap
	}
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = base
	eb.RandomizationFactor = 0.3
	eb.Multiplier = 1 // single jittered sample, not a growing series
	eb.MaxInterval = config.WorkerBackoffCap
	eb.Reset()
	d := eb.NextBackOff()
	if d == backoff.Stop || d <= 0 {
		return base
	}
	return d
}

// runWithRetry executes fn, retrying on a Retryable/unclassified error with
// the jittered backoff above, for at most maxRetries attempts in all (the
// first call included). A NonRetryable or
// Unretriable-wrapped error (or retry exhaustion) returns immediately.
// Handlers that never call progressFn still get the success/failure status
// notification the tracker requires.
func runWithRetry(ctx context.Context, maxRetries int, fn func(attempt int) error) (attempts int, err error) {
	for attempt := 0; ; attempt++ {
		attempts = attempt + 1
		err = fn(attempt)
		if err == nil {
			return attempts, nil
		}
		if modelerrors.IsNonRetryable(err) || modelerrors.IsUnretriable(err) {
			return attempts, err
		}
		if attempt+1 >= maxRetries {
			return attempts, err
		}
		select {
		case <-ctx.Done():
			return attempts, ctx.Err()
		case <-time.After(retryDelay(attempt)):
		}
	}
}
