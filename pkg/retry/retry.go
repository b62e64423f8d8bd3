// Package retry implements bounded exponential retry with a verification
// predicate. It drives transport connect loops, index-visibility waits,
// version-conflict retries, and the delay schedule of the status poller.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"time"
)

// Defaults applied by Policy.withDefaults.
const (
	DefaultInitialDelay = 1 * time.Second
	DefaultFactor       = 1.5
	DefaultTimeout      = 60 * time.Second
)

// ErrConditionNotMet is returned when the retry window closed while the
// verify predicate was still false and no attempt returned an error.
var ErrConditionNotMet = errors.New("condition not met before timeout")

// Policy describes a retry schedule.
//
// The zero value is usable: it retries with a 1 s initial delay, factor 1.5,
// inside a 60 s window, unbounded attempts, and no jitter.
type Policy struct {
	// InitialDelay is the wait before the second attempt.
	InitialDelay time.Duration

	// Factor multiplies the delay after every attempt.
	Factor float64

	// MaxDelay caps a single inter-attempt delay. Zero means uncapped.
	MaxDelay time.Duration

	// Timeout bounds the whole loop, first attempt included.
	Timeout time.Duration

	// MaxAttempts bounds the number of attempts. Zero means attempts are
	// limited only by Timeout.
	MaxAttempts int

	// Jitter randomizes each delay by up to the given fraction of its
	// value (0.25 means +-25%). Zero disables jitter.
	Jitter float64
}

func (p Policy) withDefaults() Policy {
	if p.InitialDelay <= 0 {
		p.InitialDelay = DefaultInitialDelay
	}
	if p.Factor <= 1 {
		p.Factor = DefaultFactor
	}
	if p.Timeout <= 0 {
		p.Timeout = DefaultTimeout
	}
	return p
}

// Delay returns the wait before the given attempt (attempt 1 is the first
// retry). The progression is InitialDelay * Factor^(attempt-1), capped by
// MaxDelay, with jitter applied last.
func (p Policy) Delay(attempt int) time.Duration {
	p = p.withDefaults()
	if attempt < 1 {
		attempt = 1
	}

	d := float64(p.InitialDelay) * math.Pow(p.Factor, float64(attempt-1))
	if p.MaxDelay > 0 && d > float64(p.MaxDelay) {
		d = float64(p.MaxDelay)
	}
	if p.Jitter > 0 {
		d += d * p.Jitter * (2*rand.Float64() - 1)
	}
	if d < 0 {
		d = 0
	}
	return time.Duration(d)
}

// Await runs fn until verify accepts its result, the attempt budget is
// exhausted, or the timeout window closes.
//
// A failed attempt is either fn returning an error or verify returning
// false; both re-run fn after the next delay. Await returns the last
// observed result. The error is nil iff verify was satisfied; otherwise it
// wraps the last attempt error, or ErrConditionNotMet when every attempt
// completed cleanly but verify stayed false.
//
// Cancelling ctx aborts the loop promptly, including mid-delay.
func Await[T any](ctx context.Context, p Policy, fn func(ctx context.Context) (T, error), verify func(T) bool) (T, error) {
	p = p.withDefaults()

	ctx, cancel := context.WithTimeout(ctx, p.Timeout)
	defer cancel()

	var (
		last    T
		lastErr error
	)

	for attempt := 1; ; attempt++ {
		result, err := fn(ctx)
		if err == nil {
			last = result
			if verify == nil || verify(result) {
				return last, nil
			}
			lastErr = nil
		} else {
			lastErr = err
		}

		if p.MaxAttempts > 0 && attempt >= p.MaxAttempts {
			return last, exhausted(attempt, lastErr)
		}

		// The window closing is not itself the failure: report the last
		// attempt error, or ErrConditionNotMet when every attempt
		// completed cleanly but verify stayed false.
		select {
		case <-ctx.Done():
			return last, exhausted(attempt, lastErr)
		case <-time.After(p.Delay(attempt)):
		}

		if ctx.Err() != nil {
			return last, exhausted(attempt, lastErr)
		}
	}
}

// Do is Await for operations without a result: fn is retried until it
// returns nil.
func Do(ctx context.Context, p Policy, fn func(ctx context.Context) error) error {
	_, err := Await(ctx, p, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	}, nil)
	return err
}

func exhausted(attempts int, cause error) error {
	if cause == nil {
		cause = ErrConditionNotMet
	}
	return fmt.Errorf("gave up after %d attempts: %w", attempts, cause)
}
