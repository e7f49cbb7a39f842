package lock

import (
	"context"

	"github.com/careplix/opdwallet/internal/config"
	redis "github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("lock",
	fx.Provide(NewClient),
	fx.Provide(NewLocker),
)

// NewClient returns a redis client when REDIS_ADDR is set, nil otherwise.
func NewClient(lc fx.Lifecycle, cfg config.Config, log *zap.Logger) *redis.Client {
	if cfg.RedisAddr == "" {
		log.Info("redis not configured, wallet locking falls back to sequence CAS only")
		return nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return client.Ping(ctx).Err()
		},
		OnStop: func(ctx context.Context) error {
			_ = ctx
			return client.Close()
		},
	})

	return client
}
