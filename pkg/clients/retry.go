package clients

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/ultimatecoffee/shopsync/pkg/errors"
)

// DetailRetryAfter is the error detail holding the server's requested delay
// as a time.Duration, taken from a Retry-After header
const DetailRetryAfter = "retry_after"

// RetryPolicy defines retry behavior
type RetryPolicy struct {
	MaxAttempts     int
	InitialDelay    time.Duration
	MaxDelay        time.Duration
	Multiplier      float64
	RandomizeFactor float64

	// sleep is replaced in tests
	sleep func(ctx context.Context, d time.Duration) error
}

// NewRetryPolicy creates a new retry policy with exponential backoff
func NewRetryPolicy(maxAttempts int, initialDelay, maxDelay time.Duration, multiplier float64) *RetryPolicy {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	if multiplier < 1 {
		multiplier = 1
	}
	return &RetryPolicy{
		MaxAttempts:     maxAttempts,
		InitialDelay:    initialDelay,
		MaxDelay:        maxDelay,
		Multiplier:      multiplier,
		RandomizeFactor: 0.25,
	}
}

// DefaultRetryPolicy returns three attempts starting at one second
func DefaultRetryPolicy() *RetryPolicy {
	return NewRetryPolicy(3, time.Second, 30*time.Second, 2.0)
}

// NoRetryPolicy returns a policy that doesn't retry
func NoRetryPolicy() *RetryPolicy {
	return &RetryPolicy{MaxAttempts: 1}
}

// Execute retries fn while the error is retryable per errors.IsRetryable
func (rp *RetryPolicy) Execute(ctx context.Context, fn func() error) error {
	return rp.ExecuteWithCondition(ctx, fn, errors.IsRetryable)
}

// ExecuteWithCondition runs fn, retrying only errors for which shouldRetry
// returns true. When the error carries a Retry-After detail the wait is at
// least that long.
func (rp *RetryPolicy) ExecuteWithCondition(ctx context.Context, fn func() error, shouldRetry func(error) bool) error {
	var lastErr error

	for attempt := 0; attempt < rp.MaxAttempts; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err

		if !shouldRetry(err) {
			return err
		}

		// Don't retry on the last attempt
		if attempt == rp.MaxAttempts-1 {
			break
		}

		delay := rp.calculateDelay(attempt)
		if after := RetryAfter(err); after > delay {
			delay = after
		}

		if err := rp.wait(ctx, delay); err != nil {
			return errors.Wrap(err, errors.ErrorTypeTimeout, fmt.Sprintf("retry cancelled after %d attempts", attempt+1))
		}
	}

	if rp.MaxAttempts <= 1 {
		return lastErr
	}
	return fmt.Errorf("all %d attempts failed: %w", rp.MaxAttempts, lastErr)
}

// RetryAfter returns the Retry-After delay attached to err, or zero
func RetryAfter(err error) time.Duration {
	var e *errors.Error
	if !errors.As(err, &e) {
		return 0
	}
	v, ok := e.Detail(DetailRetryAfter)
	if !ok {
		return 0
	}
	d, _ := v.(time.Duration)
	return d
}

func (rp *RetryPolicy) wait(ctx context.Context, d time.Duration) error {
	if rp.sleep != nil {
		return rp.sleep(ctx, d)
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// calculateDelay calculates the delay for a given attempt
func (rp *RetryPolicy) calculateDelay(attempt int) time.Duration {
	delay := float64(rp.InitialDelay) * math.Pow(rp.Multiplier, float64(attempt))

	if rp.MaxDelay > 0 && delay > float64(rp.MaxDelay) {
		delay = float64(rp.MaxDelay)
	}

	// Apply randomization factor (jitter)
	if rp.RandomizeFactor > 0 {
		delta := delay * rp.RandomizeFactor
		delay = delay - delta + (rand.Float64() * 2 * delta)
	}

	return time.Duration(delay)
}
