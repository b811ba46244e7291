package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var errInvalidRate = errors.New("rate limiter rate and burst must be positive")

const stripeBucketKey = "stripe:outbound:%s"

// Bucket is satisfied by both the redis and in-process buckets.
type Bucket interface {
	Allow(ctx context.Context, key string, rate float64, burst int) (Result, error)
}

// StripeLimiter throttles outbound Stripe calls per connected account
// so one tenant's sync cannot starve another's.
type StripeLimiter struct {
	bucket Bucket
	rate   float64
	burst  int
}

func NewStripeLimiter(bucket Bucket, rate float64, burst int) *StripeLimiter {
	return &StripeLimiter{
		bucket: bucket,
		rate:   rate,
		burst:  burst,
	}
}

// Wait blocks until a token is available or the context expires.
func (s *StripeLimiter) Wait(ctx context.Context, accountID string) (time.Duration, error) {
	if s == nil || s.bucket == nil {
		return 0, nil
	}

	key := fmt.Sprintf(stripeBucketKey, accountID)
	start := time.Now()
	for {
		res, err := s.bucket.Allow(ctx, key, s.rate, s.burst)
		if err != nil {
			return time.Since(start), err
		}
		if res.Allowed {
			return time.Since(start), nil
		}

		delay := res.RetryAfter
		if delay <= 0 {
			delay = 10 * time.Millisecond
		}
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return time.Since(start), ctx.Err()
		case <-timer.C:
		}
	}
}
