package ratelimit

import (
	"context"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/subsight/internal/clock"
	"github.com/smallbiznis/subsight/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// SyncLocker serializes sync runs per tenant. Satisfied by the redis
// Locker and by LocalLocker.
type SyncLocker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (string, bool, error)
	Release(ctx context.Context, key, token string) error
}

var Module = fx.Module("rate.limit",
	fx.Provide(
		newRedisClient,
		newBucket,
		newSyncLocker,
		newStripeLimiter,
	),
)

func newRedisClient(lc fx.Lifecycle, cfg config.Config, log *zap.Logger) *redis.Client {
	if cfg.RedisAddr == "" {
		return nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})
	lc.Append(fx.Hook{
		OnStop: func(_ context.Context) error {
			return client.Close()
		},
	})
	log.Info("redis connected", zap.String("addr", cfg.RedisAddr))
	return client
}

func newBucket(client *redis.Client, clk clock.Clock) Bucket {
	if client != nil {
		return NewTokenBucket(client)
	}
	return NewLocalBucket(clk)
}

func newSyncLocker(client *redis.Client) SyncLocker {
	if client != nil {
		return NewLocker(client)
	}
	return NewLocalLocker()
}

func newStripeLimiter(bucket Bucket, holder *config.AnalyticsConfigHolder) *StripeLimiter {
	cfg := holder.Get()
	return NewStripeLimiter(bucket, cfg.StripeRatePerSec, cfg.StripeBurst)
}
