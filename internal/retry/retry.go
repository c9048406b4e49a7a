// Package retry provides a stateless retry-with-backoff wrapper for
// fallible operations. Whether a failure is retried is decided by an
// explicit classifier, so validation and security errors are never
// retried by accident.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/fsaudit/fsaudit/internal/pathsec"
)

// Policy holds retry configuration for one class of operation.
type Policy struct {
	// Attempts is the total number of invocations, including the first
	// (default: 3).
	Attempts int

	// BaseDelay is the delay before the first retry (default: 200ms).
	BaseDelay time.Duration

	// MaxDelay caps the backoff delay (default: 1s).
	MaxDelay time.Duration

	// Classify reports whether an error is transient and worth retrying.
	// Nil means DefaultClassifier.
	Classify func(error) bool
}

// DefaultPolicy returns the policy used for agent invocations.
func DefaultPolicy() Policy {
	return Policy{
		Attempts:  3,
		BaseDelay: 200 * time.Millisecond,
		MaxDelay:  1 * time.Second,
	}
}

// DefaultClassifier treats every failure as transient except containment
// violations and cancellation. Retrying a path-security error can only
// reproduce it, and a canceled context means the caller gave up. A
// deadline-exceeded error IS retried: an operation-internal timeout is
// the typical transient failure, and Do aborts on its own when the run
// context itself is the one that expired.
func DefaultClassifier(err error) bool {
	if err == nil {
		return false
	}
	if pathsec.IsContainmentError(err) {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	return true
}

// Do invokes op, retrying transient failures with exponential backoff and
// jitter. The final failure propagates wrapped with the attempt count; the
// original error stays reachable through errors.Is/As. Non-retryable
// failures propagate immediately without consuming a backoff delay.
func Do(ctx context.Context, policy Policy, operation string, op func(context.Context) error) error {
	attempts := policy.Attempts
	if attempts <= 0 {
		attempts = 1
	}
	classify := policy.Classify
	if classify == nil {
		classify = DefaultClassifier
	}

	var lastErr error
	delay := policy.BaseDelay

	for attempt := 1; attempt <= attempts; attempt++ {
		err := op(ctx)
		if err == nil {
			if attempt > 1 {
				log.Debug().Str("operation", operation).Int("attempt", attempt).Msg("succeeded after retry")
			}
			return nil
		}
		lastErr = err

		if !classify(err) {
			return err
		}
		if attempt == attempts {
			break
		}
		if ctx.Err() != nil {
			return fmt.Errorf("%s: %w", operation, ctx.Err())
		}

		sleep := delay + time.Duration(rand.Int63n(int64(policy.BaseDelay)+1))
		if policy.MaxDelay > 0 && sleep > policy.MaxDelay {
			sleep = policy.MaxDelay
		}
		log.Debug().
			Str("operation", operation).
			Int("attempt", attempt).
			Int("max_attempts", attempts).
			Dur("backoff", sleep).
			Err(err).
			Msg("retrying after transient failure")

		select {
		case <-time.After(sleep):
			delay *= 2
		case <-ctx.Done():
			return fmt.Errorf("%s: canceled during backoff: %w", operation, ctx.Err())
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operation, attempts, lastErr)
}
