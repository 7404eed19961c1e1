package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/iliyamo/movie-reservation/internal/config"
	"github.com/iliyamo/movie-reservation/internal/logger"
	"github.com/iliyamo/movie-reservation/internal/model"
)

type retryPolicy struct {
	attempts uint
	initial  time.Duration
	max      time.Duration
}

func policyFrom(cfg config.BookingConfig) retryPolicy {
	p := retryPolicy{attempts: uint(cfg.RetryMaxAttempts), initial: cfg.RetryInitialInterval, max: cfg.RetryMaxInterval}
	if p.attempts < 1 {
		p.attempts = 1
	}
	return p
}

// withRetry runs fn until it succeeds, fails with a non-transient error or
// the attempt budget is spent.  Exhausting the budget on transient errors
// yields model.ErrUnavailable.
func withRetry[T any](ctx context.Context, p retryPolicy, log logger.Logger, op string, fn func() (T, error)) (T, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.initial
	b.MaxInterval = p.max

	attempt := 0
	res, err := backoff.Retry(ctx, func() (T, error) {
		attempt++
		v, err := fn()
		if err != nil && !model.IsTransient(err) {
			return v, backoff.Permanent(err)
		}
		return v, err
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(p.attempts),
		backoff.WithNotify(func(err error, next time.Duration) {
			log.Warn("transient store error, retrying", "op", op, "attempt", attempt, "backoff", next, "error", err)
		}),
	)
	if err == nil {
		return res, nil
	}
	// the last attempt's error comes back still wrapped
	var perm *backoff.PermanentError
	if errors.As(err, &perm) {
		err = perm.Err
	}
	if model.IsTransient(err) {
		log.Error("store unavailable, retries exhausted", "op", op, "attempts", attempt, "error", err)
		return res, fmt.Errorf("%s: %w (%v)", op, model.ErrUnavailable, err)
	}
	return res, err
}
