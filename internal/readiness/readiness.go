// Package readiness waits for dependencies to come up at startup.
package readiness

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

// Wait calls connect with exponential backoff until it succeeds or timeout
// elapses, and returns the connected value.
func Wait[T any](ctx context.Context, name string, timeout time.Duration, logger *zap.Logger, connect func(ctx context.Context) (T, error)) (T, error) {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 500 * time.Millisecond
	policy.MaxInterval = 10 * time.Second
	policy.MaxElapsedTime = timeout

	attempt := 0
	op := func() (T, error) {
		attempt++
		attemptCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		return connect(attemptCtx)
	}
	notify := func(err error, next time.Duration) {
		logger.Warn("⚠️ Dependency not ready",
			zap.String("dependency", name),
			zap.Int("attempt", attempt),
			zap.Duration("retry_in", next),
			zap.Error(err),
		)
	}

	v, err := backoff.RetryNotifyWithData(op, backoff.WithContext(policy, ctx), notify)
	if err != nil {
		var zero T
		return zero, fmt.Errorf("%s not ready after %s: %w", name, timeout, err)
	}
	return v, nil
}

// Checker reports whether a dependency currently answers.
type Checker interface {
	Ping(ctx context.Context) error
}

type CheckerFunc func(ctx context.Context) error

func (f CheckerFunc) Ping(ctx context.Context) error { return f(ctx) }

// Check pings every checker and returns per-dependency status ("up" or the
// error text) and whether all are up.
func Check(ctx context.Context, checkers map[string]Checker) (map[string]string, bool) {
	statuses := make(map[string]string, len(checkers))
	ok := true
	for name, c := range checkers {
		if err := c.Ping(ctx); err != nil {
			statuses[name] = err.Error()
			ok = false
			continue
		}
		statuses[name] = "up"
	}
	return statuses, ok
}
