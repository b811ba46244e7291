package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/smallbiznis/subsight/internal/clock"
)

// LocalBucket is an in-process token bucket with the same refill
// semantics as the redis-backed one. Used when no redis address is
// configured; good enough for a single instance.
type LocalBucket struct {
	mu      sync.Mutex
	clk     clock.Clock
	buckets map[string]*localBucketState
}

type localBucketState struct {
	tokens float64
	ts     time.Time
}

func NewLocalBucket(clk clock.Clock) *LocalBucket {
	if clk == nil {
		clk = clock.NewSystemClock()
	}
	return &LocalBucket{
		clk:     clk,
		buckets: make(map[string]*localBucketState),
	}
}

func (l *LocalBucket) Allow(_ context.Context, key string, rate float64, burst int) (Result, error) {
	if rate <= 0 || burst <= 0 {
		return Result{}, errInvalidRate
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clk.Now()
	state, ok := l.buckets[key]
	if !ok {
		state = &localBucketState{tokens: float64(burst), ts: now}
		l.buckets[key] = state
	} else {
		delta := now.Sub(state.ts)
		if delta < 0 {
			delta = 0
		}
		state.tokens = minFloat(float64(burst), state.tokens+delta.Seconds()*rate)
		state.ts = now
	}

	allowed := false
	if state.tokens >= 1 {
		allowed = true
		state.tokens--
	}

	return Result{
		Allowed:    allowed,
		Remaining:  state.tokens,
		RetryAfter: retryAfter(allowed, state.tokens, rate),
	}, nil
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
