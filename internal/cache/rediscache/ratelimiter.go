package rediscache

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// RateLimiter считает обращения к перевозчику в минутных окнах.
// Один лимитер делят все горутины sweep'а.
type RateLimiter struct {
	c *redis.Client
}

func NewRateLimiter(addr string) *RateLimiter {
	return &RateLimiter{
		c: redis.NewClient(&redis.Options{
			Addr:        addr,
			DialTimeout: 3 * time.Second,
		}),
	}
}

// Allow инкрементит счётчик окна. TTL выставляется только при создании
// ключа, чтобы окно не продлевалось каждым вызовом.
func (rl *RateLimiter) Allow(ctx context.Context, key string, limit int64, window time.Duration) (bool, int64, error) {
	n, err := rl.c.Incr(ctx, key).Result()
	if err != nil {
		return false, 0, errors.Wrapf(err, "ratelimit incr %q", key)
	}
	if n == 1 {
		if err := rl.c.Expire(ctx, key, window).Err(); err != nil {
			return false, n, errors.Wrapf(err, "ratelimit expire %q", key)
		}
	}
	return n <= limit, n, nil
}
