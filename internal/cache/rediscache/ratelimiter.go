package rediscache

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

type RateLimiter struct {
	c *redis.Client
}

func NewRateLimiter(c *redis.Client) *RateLimiter {
	return &RateLimiter{c: c}
}

// Allow делает INCR по ключу и ставит TTL, если ключ создаётся впервые.
// Возвращает (allowed, currentCount).
func (rl *RateLimiter) Allow(ctx context.Context, key string, limit int64, window time.Duration) (bool, int64, error) {
	pipe := rl.c.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.ExpireNX(ctx, key, window)
	_, err := pipe.Exec(ctx)
	if err != nil {
		return false, 0, errors.Wrap(err, "redis ratelimit")
	}
	n := incr.Val()
	return n <= limit, n, nil
}

// Window is a limiter bound to one key. Acquire blocks until a slot in the
// current window is free or ctx ends.
type Window struct {
	rl     *RateLimiter
	key    string
	limit  int64
	window time.Duration
}

func (rl *RateLimiter) Window(key string, limit int64, window time.Duration) *Window {
	return &Window{rl: rl, key: key, limit: limit, window: window}
}

func (w *Window) Acquire(ctx context.Context) error {
	for {
		ok, _, err := w.rl.Allow(ctx, w.key, w.limit, w.window)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}

		wait := w.window / 10
		if ttl, err := w.rl.c.PTTL(ctx, w.key).Result(); err == nil && ttl > 0 && ttl < wait {
			wait = ttl
		}
		if wait <= 0 {
			wait = 10 * time.Millisecond
		}

		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
}

