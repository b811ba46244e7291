package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/smallbiznis/subsight/internal/clock"
	"github.com/stretchr/testify/require"
)

func TestLocalBucketDrainAndRefill(t *testing.T) {
	clk := clock.NewFakeClock(time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC))
	bucket := NewLocalBucket(clk)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		res, err := bucket.Allow(ctx, "acct_1", 1, 3)
		require.NoError(t, err)
		require.True(t, res.Allowed, "take %d", i)
	}

	res, err := bucket.Allow(ctx, "acct_1", 1, 3)
	require.NoError(t, err)
	require.False(t, res.Allowed)
	require.Greater(t, res.RetryAfter, time.Duration(0))

	clk.Advance(2 * time.Second)
	res, err = bucket.Allow(ctx, "acct_1", 1, 3)
	require.NoError(t, err)
	require.True(t, res.Allowed)
}

func TestLocalBucketIsolatesKeys(t *testing.T) {
	clk := clock.NewFakeClock(time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC))
	bucket := NewLocalBucket(clk)
	ctx := context.Background()

	res, err := bucket.Allow(ctx, "acct_a", 1, 1)
	require.NoError(t, err)
	require.True(t, res.Allowed)

	res, err = bucket.Allow(ctx, "acct_a", 1, 1)
	require.NoError(t, err)
	require.False(t, res.Allowed)

	res, err = bucket.Allow(ctx, "acct_b", 1, 1)
	require.NoError(t, err)
	require.True(t, res.Allowed)
}

func TestLocalBucketRejectsBadConfig(t *testing.T) {
	bucket := NewLocalBucket(nil)
	_, err := bucket.Allow(context.Background(), "k", 0, 1)
	require.Error(t, err)
}

func TestLocalLockerMutualExclusion(t *testing.T) {
	locker := NewLocalLocker()
	ctx := context.Background()

	token, ok, err := locker.TryLock(ctx, "sync:user_1", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
	require.NotEmpty(t, token)

	_, ok, err = locker.TryLock(ctx, "sync:user_1", time.Minute)
	require.NoError(t, err)
	require.False(t, ok)

	// Wrong token must not release.
	require.NoError(t, locker.Release(ctx, "sync:user_1", "bogus"))
	_, ok, err = locker.TryLock(ctx, "sync:user_1", time.Minute)
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, locker.Release(ctx, "sync:user_1", token))
	_, ok, err = locker.TryLock(ctx, "sync:user_1", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestLocalLockerTTLExpiry(t *testing.T) {
	locker := NewLocalLocker()
	ctx := context.Background()

	_, ok, err := locker.TryLock(ctx, "sync:user_2", time.Millisecond)
	require.NoError(t, err)
	require.True(t, ok)

	time.Sleep(5 * time.Millisecond)

	_, ok, err = locker.TryLock(ctx, "sync:user_2", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
}
