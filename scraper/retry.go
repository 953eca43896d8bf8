package scraper

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"rc_harvester/metrics"
)

// Outcome classifies the result of a retried operation.
type Outcome int

const (
	OutcomeSuccess Outcome = iota
	OutcomeRetryable
	OutcomeFatal
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeRetryable:
		return "retryable"
	default:
		return "fatal"
	}
}

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Sleep is the default SleepFunc.
func Sleep(ctx context.Context, d time.Duration) error {
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

// RetryPolicy is an exponential back-off. MaxAttempts of 0 never gives up:
// every failure except cancellation is retried, client errors included.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Sleep       SleepFunc
}

// Do runs fn until it succeeds, fails fatally, or attempts run out.
// A retryable outcome with an error means attempts were exhausted.
func (r *RetryPolicy) Do(ctx context.Context, operationName string, fn func(ctx context.Context) error) (Outcome, error) {
	sleep := r.Sleep
	if sleep == nil {
		sleep = Sleep
	}
	delay := r.BaseDelay

	var lastErr error
	for attempt := 1; r.MaxAttempts <= 0 || attempt <= r.MaxAttempts; attempt++ {
		lastErr = fn(ctx)
		if lastErr == nil {
			return OutcomeSuccess, nil
		}
		if ctx.Err() != nil {
			return OutcomeFatal, fmt.Errorf("%s: %w", operationName, ctx.Err())
		}
		if !r.retryable(lastErr) {
			return OutcomeFatal, fmt.Errorf("%s: %w", operationName, lastErr)
		}
		if r.MaxAttempts > 0 && attempt == r.MaxAttempts {
			break
		}

		log.Printf("Retry: %s failed (attempt %d/%s): %v, retrying in %v",
			operationName, attempt, attemptsLabel(r.MaxAttempts), lastErr, delay)
		metrics.FetchRetries.WithLabelValues(operationName).Inc()

		if err := sleep(ctx, delay); err != nil {
			return OutcomeFatal, fmt.Errorf("%s: %w", operationName, err)
		}
		delay *= 2
		if r.MaxDelay > 0 && delay > r.MaxDelay {
			delay = r.MaxDelay
		}
	}

	return OutcomeRetryable, fmt.Errorf("%s failed after %d attempts: %w", operationName, r.MaxAttempts, lastErr)
}

func (r *RetryPolicy) retryable(err error) bool {
	if r.MaxAttempts <= 0 {
		return !errors.Is(err, context.Canceled)
	}
	return IsRetryable(err)
}

// IsRetryable treats anything that is not a non-retryable FetchError as
// transient.
func IsRetryable(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.Retryable()
	}
	return true
}

func attemptsLabel(max int) string {
	if max <= 0 {
		return "∞"
	}
	return fmt.Sprintf("%d", max)
}
