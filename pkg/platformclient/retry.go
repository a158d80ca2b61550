package platformclient

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/wisbric/paygate/internal/telemetry"
)

const (
	maxAttempts        = 4
	initialInterval    = 200 * time.Millisecond
	maxInterval        = 1600 * time.Millisecond
	backoffMultiplier  = 2.0
	jitterFactor       = 0.1
)

// transportError marks a network/transport failure (timeout, connect
// timeout, DNS, I/O) — always retryable.
type transportError struct{ err error }

func (e *transportError) Error() string { return fmt.Sprintf("platform transport error: %v", e.err) }
func (e *transportError) Unwrap() error { return e.err }

// statusError marks a non-2xx HTTP response. 5xx is retryable, 4xx is not.
type statusError struct {
	StatusCode int
	Body       string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("platform API HTTP %d: %s", e.StatusCode, e.Body)
}

// businessError marks `{ok: false, description}` — a permanent, non-retryable
// rejection from the platform's own business logic.
type businessError struct {
	Description string
}

func (e *businessError) Error() string { return e.Description }

func isRetryable(err error) bool {
	var te *transportError
	if errors.As(err, &te) {
		return true
	}
	var se *statusError
	if errors.As(err, &se) {
		return se.StatusCode >= 500
	}
	return false
}

// retryPolicy builds the shared policy: 200ms initial, doubling, capped at
// 1.6s, ±10% jitter.
func retryPolicy() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = initialInterval
	b.Multiplier = backoffMultiplier
	b.MaxInterval = maxInterval
	b.RandomizationFactor = jitterFactor
	return b
}

// withRetry runs op up to maxAttempts times. Errors classified retryable by
// isRetryable are retried with exponential backoff + jitter; all others stop
// the loop immediately via backoff.Permanent. method labels the platform_*
// metrics.
func withRetry[T any](ctx context.Context, method string, op func() (T, error)) (T, error) {
	attempt := 0
	telemetry.PlatformRequestsTotal.WithLabelValues(method).Inc()

	result, err := backoff.Retry(ctx, func() (T, error) {
		attempt++
		v, err := op()
		if err == nil {
			return v, nil
		}
		if !isRetryable(err) {
			return v, backoff.Permanent(err)
		}
		if attempt > 1 {
			telemetry.PlatformRetriesTotal.WithLabelValues(method).Inc()
		}
		return v, err
	}, backoff.WithBackOff(retryPolicy()), backoff.WithMaxTries(maxAttempts))

	if err != nil {
		telemetry.PlatformErrorsTotal.WithLabelValues(method).Inc()
	}
	return result, err
}
