package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var ErrLimited = errors.New("ratelimit: too many requests")

// LimitedError carries how long the caller should wait before retrying.
type LimitedError struct {
	RetryAfter time.Duration
}

func (e *LimitedError) Error() string {
	return fmt.Sprintf("%s, retry after %s", ErrLimited, e.RetryAfter)
}

func (e *LimitedError) Is(target error) bool { return target == ErrLimited }

type Limiter interface {
	Allow(ctx context.Context, key string) error
}

// RedisLimiter is a fixed-window counter shared by every API replica.
type RedisLimiter struct {
	client *redis.Client
	limit  int64
	window time.Duration
	prefix string
}

func NewRedisLimiter(client *redis.Client, limit int, window time.Duration) *RedisLimiter {
	return &RedisLimiter{
		client: client,
		limit:  int64(limit),
		window: window,
		prefix: "ratelimit:",
	}
}

// Allow counts one hit against key. The window starts at the first hit.
// INCR and TTL run in one MULTI. A counter found without an expiry gets
// one, so an interrupted first hit cannot lock the key out for good.
func (l *RedisLimiter) Allow(ctx context.Context, key string) error {
	k := l.prefix + key

	var (
		incr *redis.IntCmd
		ttl  *redis.DurationCmd
	)
	_, err := l.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, k)
		ttl = pipe.TTL(ctx, k)
		return nil
	})
	if err != nil {
		return fmt.Errorf("ratelimit incr: %w", err)
	}

	retryAfter := ttl.Val()
	if retryAfter < 0 {
		if err := l.client.Expire(ctx, k, l.window).Err(); err != nil {
			return fmt.Errorf("ratelimit expire: %w", err)
		}
		retryAfter = l.window
	}
	if incr.Val() <= l.limit {
		return nil
	}
	return &LimitedError{RetryAfter: retryAfter}
}

// Unlimited admits every request. Used when no redis is configured.
type Unlimited struct{}

func (Unlimited) Allow(context.Context, string) error { return nil }

var (
	_ Limiter = (*RedisLimiter)(nil)
	_ Limiter = Unlimited{}
)
