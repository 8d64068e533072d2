package data

import (
	"context"
	"fmt"
	"time"

	"postguard/internal/conf"
	pkgredis "postguard/internal/pkg/redis"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/hibiken/asynq"
	redis "github.com/redis/go-redis/v9"
)

func redisOptions(c *conf.Data) *redis.Options {
	opts := &redis.Options{
		Network:      c.Redis.Network,
		Addr:         c.Redis.Addr,
		Password:     c.Redis.Password,
		DB:           c.Redis.DB,
		ReadTimeout:  c.Redis.ReadTimeout.AsDuration(),
		WriteTimeout: c.Redis.WriteTimeout.AsDuration(),
	}
	return opts
}

// NewRedisCache creates a new Redis cache from configuration.
func NewRedisCache(c *conf.Data, logger log.Logger) (pkgredis.Cache, func(), error) {
	helper := log.NewHelper(logger)

	client := pkgredis.New(redis.NewClient(redisOptions(c)))

	// Test connection with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx); err != nil {
		helper.Errorf("failed to connect to Redis at %s: %v", c.Redis.Addr, err)
		client.Close()
		return nil, nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	helper.Infof("connected to Redis at %s", c.Redis.Addr)

	cleanup := func() {
		helper.Info("closing Redis connection")
		client.Close()
	}

	return client, cleanup, nil
}

// AsynqRedisOpt reuses the data Redis settings for the task queue.
func AsynqRedisOpt(c *conf.Data) asynq.RedisClientOpt {
	opts := redisOptions(c)
	return asynq.RedisClientOpt{
		Network:      opts.Network,
		Addr:         opts.Addr,
		Password:     opts.Password,
		DB:           opts.DB,
		ReadTimeout:  opts.ReadTimeout,
		WriteTimeout: opts.WriteTimeout,
	}
}
