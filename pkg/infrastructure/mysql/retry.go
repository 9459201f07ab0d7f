package mysql

import (
	"context"
	"time"

	"github.com/cenkalti/backoff"
)

const (
	DefaultRetries    = 3
	DefaultRetryDelay = 100 * time.Millisecond
)

// Operation is a fallible unit of work handed to RetryOperation.
type Operation func() error

// RetryOperation invokes operation and retries failures up to retries
// more times, doubling the delay between attempts. The final failure
// surfaces as an ExhaustedRetriesError carrying the last cause. Wrap an
// error in backoff.Permanent to stop retrying early.
//
// Retrying is strictly opt-in: callers use it for operations whose
// failure mode is plausibly transient, such as connection acquisition,
// never for logic or validation errors.
func RetryOperation(ctx context.Context, operation Operation, retries uint64, delay time.Duration) error {
	exponential := backoff.NewExponentialBackOff()
	exponential.InitialInterval = delay
	exponential.RandomizationFactor = 0
	exponential.Multiplier = 2
	exponential.MaxInterval = time.Hour
	exponential.MaxElapsedTime = 0

	var attempts uint64
	err := backoff.Retry(func() error {
		attempts++
		return operation()
	}, backoff.WithContext(backoff.WithMaxRetries(exponential, retries), ctx))
	if err == nil {
		return nil
	}
	if attempts <= retries {
		// stopped early: a permanent error or a canceled context
		return err
	}
	return &ExhaustedRetriesError{Attempts: int(attempts), Err: err}
}
