package stream

import (
	"errors"
	"time"
)

// ErrRetriesExhausted is returned when the retry policy gives up on a feed.
var ErrRetriesExhausted = errors.New("stream retries exhausted")

// RetryPolicy decides whether a failed connection is re-opened. attempt is
// the number of consecutive failures so far, starting at 1.
type RetryPolicy interface {
	ShouldRetry(attempt int, err error) (bool, time.Duration)
}

// RetryPolicyFunc adapts a function to RetryPolicy.
type RetryPolicyFunc func(attempt int, err error) (bool, time.Duration)

func (f RetryPolicyFunc) ShouldRetry(attempt int, err error) (bool, time.Duration) {
	return f(attempt, err)
}

// RetryForever reconnects immediately after every transient failure.
func RetryForever() RetryPolicy {
	return RetryPolicyFunc(func(_ int, err error) (bool, time.Duration) {
		return !isPermanent(err), 0
	})
}

// MaxAttempts retries transient failures up to n consecutive times, waiting
// delay between attempts.
func MaxAttempts(n int, delay time.Duration) RetryPolicy {
	return RetryPolicyFunc(func(attempt int, err error) (bool, time.Duration) {
		if isPermanent(err) || attempt > n {
			return false, 0
		}
		return true, delay
	})
}

type retryable interface {
	Retryable() bool
}

func isPermanent(err error) bool {
	var r retryable
	if errors.As(err, &r) {
		return !r.Retryable()
	}
	return false
}
