// Package retry runs an operation under a bounded, fixed-delay policy.
// Policies compose by nesting Do calls: the outer policy retries the whole
// inner run, including the inner policy's own attempts.
package retry

import (
	"context"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/pkg/errors"
)

type Policy struct {
	Name        string
	MaxAttempts int
	Delay       time.Duration
	// Retryable decides whether err is worth another attempt. A nil
	// predicate retries nothing.
	Retryable func(err error) bool
}

// On returns a predicate matching any of targets via errors.Is.
func On(targets ...error) func(error) bool {
	return func(err error) bool {
		for _, t := range targets {
			if errors.Is(err, t) {
				return true
			}
		}
		return false
	}
}

type ExhaustedError struct {
	Policy   string
	Attempts int
	Err      error
}

func (e *ExhaustedError) Error() string {
	return "retry policy " + e.Policy + " exhausted: " + e.Err.Error()
}

func (e *ExhaustedError) Unwrap() error { return e.Err }

// sleep is swapped in tests.
var sleep = func(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Do calls op until it succeeds, returns a non-retryable error or the
// attempt budget is spent. op receives the 1-based attempt number.
func Do(ctx context.Context, p Policy, logger log.Logger, op func(attempt int) error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			if serr := sleep(ctx, p.Delay); serr != nil {
				return serr
			}
		}

		err = op(attempt)
		if err == nil {
			return nil
		}
		if p.Retryable == nil || !p.Retryable(err) {
			return err
		}
		if attempt < attempts {
			level.Warn(logger).Log("msg", "retrying", "policy", p.Name, "attempt", attempt, "max_attempts", attempts, "delay", p.Delay, "err", err)
		}
	}

	return &ExhaustedError{Policy: p.Name, Attempts: attempts, Err: err}
}
