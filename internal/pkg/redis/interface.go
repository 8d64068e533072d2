package redis

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache is the subset of Redis used by postguard: byte values with TTL and
// Lua scripts for the Bloom filter bit set.
type Cache interface {
	SetBytes(ctx context.Context, key string, value []byte, exp time.Duration) error
	GetBytes(ctx context.Context, key string) ([]byte, error)

	Exists(ctx context.Context, key string) (bool, error)

	ScriptRun(ctx context.Context, script *redis.Script, keys []string,
		args ...any) (any, error)

	Del(ctx context.Context, keys ...string) (int64, error)

	Expire(ctx context.Context, key string, seconds int) (bool, error)
}
