package powerbi

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"
)

// Retry budgets and waits. Attempt counts are totals, not retries: a policy
// with 5 attempts makes at most 4 waits.
const (
	conflictAttempts  = 5
	conflictWaitMin   = 10 * time.Second
	conflictWaitMax   = 20 * time.Second
	rateLimitAttempts = 10
	defaultRetryAfter = 60 * time.Second
)

// SleepFunc waits for the given duration or until the context is canceled.
// Tests override it to avoid real delays.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Sleep is the default SleepFunc.
func Sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Policy classifies errors from an outbound request and computes the wait
// before the next attempt. Policies compose: Do evaluates every policy per
// failure and applies the first one that matches and still has budget.
type Policy struct {
	name     string
	attempts int
	matches  func(error) bool
	wait     func(error) time.Duration
}

// ConflictPolicy retries 400/409 responses, which the service returns when a
// refresh submission clashes with one already running. Waits are uniformly
// random in [10s, 20s].
func ConflictPolicy() Policy {
	return Policy{
		name:     "conflict",
		attempts: conflictAttempts,
		matches:  IsConflict,
		wait: func(error) time.Duration {
			return conflictWaitMin + rand.N(conflictWaitMax-conflictWaitMin)
		},
	}
}

// RateLimitPolicy retries 429 responses, honoring the Retry-After header when
// present and parseable, falling back to a fixed 60s wait otherwise.
func RateLimitPolicy() Policy {
	return Policy{
		name:     "rate-limit",
		attempts: rateLimitAttempts,
		matches:  IsRateLimited,
		wait: func(err error) time.Duration {
			if d, ok := retryAfter(err); ok {
				return d
			}

			return defaultRetryAfter
		},
	}
}

// Do runs fn under the given retry policies. Each failure is classified
// against every policy in order; a match consumes one of that policy's
// attempts and waits the policy's computed duration before retrying.
// Errors no policy matches, and errors whose matching policy has exhausted
// its budget, are returned as-is.
func Do(ctx context.Context, logger *slog.Logger, sleep SleepFunc, fn func(context.Context) error, policies ...Policy) error {
	if logger == nil {
		logger = slog.Default()
	}

	if sleep == nil {
		sleep = Sleep
	}

	// attempts[i] counts calls already charged to policies[i].
	attempts := make([]int, len(policies))

	for {
		err := fn(ctx)
		if err == nil {
			return nil
		}

		if ctx.Err() != nil {
			return err
		}

		matched := -1

		for i := range policies {
			if policies[i].matches(err) {
				matched = i
				break
			}
		}

		if matched < 0 {
			return err
		}

		p := policies[matched]
		attempts[matched]++

		if attempts[matched] >= p.attempts {
			logger.Warn("retry budget exhausted",
				slog.String("policy", p.name),
				slog.Int("attempts", attempts[matched]),
				slog.String("error", err.Error()),
			)

			return err
		}

		wait := p.wait(err)
		retriesTotal.WithLabelValues(p.name).Inc()
		logger.Warn("retrying request",
			slog.String("policy", p.name),
			slog.Int("attempt", attempts[matched]),
			slog.Duration("wait", wait),
			slog.String("error", err.Error()),
		)

		if sleepErr := sleep(ctx, wait); sleepErr != nil {
			return fmt.Errorf("powerbi: retry canceled: %w", sleepErr)
		}
	}
}
