package retry

import (
	"context"
	"testing"
	"time"

	"github.com/go-kit/log"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

var (
	errExpired  = errors.New("expired")
	errNotReady = errors.New("not ready")
	errFatal    = errors.New("fatal")
)

func noSleep(t *testing.T) *[]time.Duration {
	slept := make([]time.Duration, 0)
	orig := sleep
	sleep = func(ctx context.Context, d time.Duration) error {
		slept = append(slept, d)
		return ctx.Err()
	}
	t.Cleanup(func() { sleep = orig })
	return &slept
}

func TestDoSucceedsAfterRetry(t *testing.T) {
	slept := noSleep(t)
	p := Policy{Name: "expiry", MaxAttempts: 2, Delay: time.Second, Retryable: On(errExpired)}

	calls := 0
	err := Do(context.Background(), p, log.NewNopLogger(), func(attempt int) error {
		calls++
		if attempt == 1 {
			return errors.Wrap(errExpired, "query")
		}
		return nil
	})

	assert.NoError(t, err)
	assert.Equal(t, 2, calls)
	assert.Equal(t, []time.Duration{time.Second}, *slept)
}

func TestDoStopsOnNonRetryable(t *testing.T) {
	noSleep(t)
	p := Policy{Name: "expiry", MaxAttempts: 5, Retryable: On(errExpired)}

	calls := 0
	err := Do(context.Background(), p, log.NewNopLogger(), func(int) error {
		calls++
		return errFatal
	})

	assert.Equal(t, errFatal, err)
	assert.Equal(t, 1, calls)
}

func TestDoExhausted(t *testing.T) {
	noSleep(t)
	p := Policy{Name: "not-ready", MaxAttempts: 3, Retryable: On(errNotReady)}

	calls := 0
	err := Do(context.Background(), p, log.NewNopLogger(), func(int) error {
		calls++
		return errNotReady
	})

	var ex *ExhaustedError
	assert.True(t, errors.As(err, &ex))
	assert.Equal(t, "not-ready", ex.Policy)
	assert.Equal(t, 3, calls)
	assert.ErrorIs(t, err, errNotReady)
}

func TestNestedPolicies(t *testing.T) {
	slept := noSleep(t)
	outer := Policy{Name: "not-ready", MaxAttempts: 5, Delay: time.Minute, Retryable: On(errNotReady)}
	inner := Policy{Name: "expiry", MaxAttempts: 2, Delay: time.Second, Retryable: On(errExpired)}

	responses := []error{errExpired, errNotReady, errNotReady, nil}
	calls := 0
	err := Do(context.Background(), outer, log.NewNopLogger(), func(int) error {
		return Do(context.Background(), inner, log.NewNopLogger(), func(int) error {
			r := responses[calls]
			calls++
			return r
		})
	})

	assert.NoError(t, err)
	assert.Equal(t, 4, calls)
	assert.Equal(t, []time.Duration{time.Second, time.Minute, time.Minute}, *slept)
}

func TestNestedInnerExhaustionIsNotRetriedByOuter(t *testing.T) {
	noSleep(t)
	outer := Policy{Name: "not-ready", MaxAttempts: 5, Retryable: On(errNotReady)}
	inner := Policy{Name: "expiry", MaxAttempts: 2, Retryable: On(errExpired)}

	calls := 0
	err := Do(context.Background(), outer, log.NewNopLogger(), func(int) error {
		return Do(context.Background(), inner, log.NewNopLogger(), func(int) error {
			calls++
			return errExpired
		})
	})

	var ex *ExhaustedError
	assert.True(t, errors.As(err, &ex))
	assert.Equal(t, "expiry", ex.Policy)
	assert.Equal(t, 2, calls)
}

func TestDoHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := Policy{Name: "expiry", MaxAttempts: 3, Delay: time.Hour, Retryable: On(errExpired)}
	err := Do(ctx, p, log.NewNopLogger(), func(int) error { return errExpired })
	assert.ErrorIs(t, err, context.Canceled)
}
