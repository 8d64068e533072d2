package redis

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis implements Cache on top of a go-redis client.
type Redis struct {
	client redis.UniversalClient
}

const Nil = redis.Nil

// New wraps an existing client.
func New(client redis.UniversalClient) *Redis {
	return &Redis{client: client}
}

// NewFromURL parses a redis:// URL and creates a client.
func NewFromURL(url string) (*Redis, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return New(redis.NewClient(opts)), nil
}

// NewScript implements Cache.
func NewScript(script string) *redis.Script {
	return redis.NewScript(script)
}

// Ping checks the connection.
func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close closes the underlying client.
func (r *Redis) Close() error {
	return r.client.Close()
}

func (r *Redis) SetBytes(ctx context.Context, key string, value []byte, exp time.Duration) error {
	return r.client.Set(ctx, key, value, exp).Err()
}

func (r *Redis) GetBytes(ctx context.Context, key string) ([]byte, error) {
	return r.client.Get(ctx, key).Bytes()
}

func (r *Redis) Exists(ctx context.Context, key string) (bool, error) {
	count, err := r.client.Exists(ctx, key).Result()
	return count > 0, err
}

func (r *Redis) Del(ctx context.Context, keys ...string) (int64, error) {
	return r.client.Del(ctx, keys...).Result()
}

func (r *Redis) Expire(ctx context.Context, key string, seconds int) (bool, error) {
	return r.client.Expire(ctx, key, time.Duration(seconds)*time.Second).Result()
}

func (r *Redis) ScriptRun(ctx context.Context, script *redis.Script, keys []string, args ...any) (any, error) {
	return script.Run(ctx, r.client, keys, args...).Result()
}
