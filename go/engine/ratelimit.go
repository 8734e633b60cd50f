package engine

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
)

// RateLimiter is a per-database token bucket plus a circuit breaker. One
// instance is shared by every drainer goroutine serving the same backend;
// in the common case of a single drainer per backend, contention is zero.
type RateLimiter struct {
	bucket  *rate.Limiter
	breaker *gobreaker.CircuitBreaker
}

// NewRateLimiter builds a token bucket with the given refill rate (events per
// second) and burst capacity, guarded by a circuit breaker that trips after a
// run of consecutive failures.
func NewRateLimiter(name string, ratePerSecond float64, burst int) *RateLimiter {
	st := gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	}
	return &RateLimiter{
		bucket:  rate.NewLimiter(rate.Limit(ratePerSecond), burst),
		breaker: gobreaker.NewCircuitBreaker(st),
	}
}

// errRateLimitExhausted is returned when a backend keeps responding 429 past
// MaxRateLimitRetries.
var errRateLimitExhausted = errors.New("rate limit exhausted after retries")

// acquire blocks until a token is available, then calls fn, retrying on
// *RateLimitedError responses with exponential backoff (capped at 60s,
// starting at 1s) or the server-supplied Retry-After, up to maxRetries times.
// It runs fn through the limiter's circuit breaker so a backend failing
// repeatedly within a batch fails fast for subsequent jobs.
func (rl *RateLimiter) acquire(ctx context.Context, maxRetries int, fn func(ctx context.Context) (DbQueryResult, error)) (DbQueryResult, error) {
	if rl == nil {
		return fn(ctx)
	}
	if err := rl.bucket.Wait(ctx); err != nil {
		return DbQueryResult{}, err
	}
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 1 * time.Second
	bo.MaxInterval = 60 * time.Second
	bo.Multiplier = 2
	bo.MaxElapsedTime = 0 // bounded by maxRetries below, not wall-clock

	for attempt := 0; attempt <= maxRetries; attempt++ {
		out, callErr := rl.breaker.Execute(func() (interface{}, error) {
			return fn(ctx)
		})
		res, _ := out.(DbQueryResult)
		if callErr == nil {
			return res, nil
		}
		var rle *RateLimitedError
		if !errors.As(callErr, &rle) {
			return DbQueryResult{}, callErr
		}
		if attempt == maxRetries {
			return DbQueryResult{}, errRateLimitExhausted
		}
		wait := rle.RetryAfter
		if wait <= 0 {
			wait = bo.NextBackOff()
		}
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return DbQueryResult{}, ctx.Err()
		}
	}
	return DbQueryResult{}, errRateLimitExhausted
}
