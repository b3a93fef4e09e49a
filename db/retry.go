package db

import (
	"context"
	"database/sql"
	"errors"

	"github.com/cenkalti/backoff/v4"
	"github.com/lib/pq"

	"github.com/Serph91P/StreamVault-sub001/config"
	"github.com/Serph91P/StreamVault-sub001/metrics"
	"github.com/Serph91P/StreamVault-sub001/modelerrors"
)

// withRetry runs fn under an exponential backoff policy bounded by
// config.DBMaxRetryAttempts, retrying only errors classified as transient
// (connection resets, lib/pq serialization/deadlock codes). Anything else
// returns immediately, wrapped as modelerrors.NonRetryable.
func (g *Gateway) withRetry(ctx context.Context, op string, fn func() error) error {
	start := config.Clock.Now()
	defer func() {
		if g.metrics != nil {
			g.metrics.DBOpDurations.WithLabelValues(op).Observe(config.Clock.Now().Sub(start).Seconds())
		}
	}()

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = config.DBRetryBaseDelay
	b.MaxInterval = config.DBRetryMaxDelay
	b.MaxElapsedTime = 0
	bo := backoff.WithContext(b, ctx)

	attempt := 0
	operation := func() error {
		attempt++
		err := fn()
		if err == nil {
			return nil
		}
		if !isTransient(err) {
			return backoff.Permanent(modelerrors.NonRetryable("db operation "+op+" failed", err))
		}
		if attempt >= config.DBMaxRetryAttempts {
			return backoff.Permanent(modelerrors.Retryable("db operation "+op+" exhausted retries", err))
		}
		if g.metrics != nil {
			g.metrics.DBRetryCount.Inc()
		}
		return err
	}

	return backoff.Retry(operation, bo)
}

func isTransient(err error) bool {
	if errors.Is(err, sql.ErrConnDone) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code.Class() {
		case "08", "40", "53", "57": // connection exception, transaction rollback, insufficient resources, operator intervention
			return true
		}
	}
	return false
}
