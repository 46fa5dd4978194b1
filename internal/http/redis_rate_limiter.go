package httpx

import (
	"context"
	"log/slog"
	"time"

	redis "github.com/redis/go-redis/v9"
)

type redisRateLimiter struct {
	client  *redis.Client
	logger  *slog.Logger
	prefix  string
	timeout time.Duration
}

// NewRedisRateLimiter shares client across API replicas. The client is owned by
// the caller; Close on the limiter does not close it.
func NewRedisRateLimiter(client *redis.Client, logger *slog.Logger) RateLimiter {
	return &redisRateLimiter{
		client:  client,
		logger:  logger,
		prefix:  "sirpi:ratelimit:",
		timeout: 250 * time.Millisecond,
	}
}

// Allow fails open when redis is unreachable.
func (rl *redisRateLimiter) Allow(key string, limit int, window time.Duration) rateDecision {
	if limit <= 0 {
		return rateDecision{allowed: true}
	}
	if window <= 0 {
		window = time.Minute
	}
	ctx, cancel := context.WithTimeout(context.Background(), rl.timeout)
	defer cancel()

	redisKey := rl.prefix + key
	var incr *redis.IntCmd
	var ttl *redis.DurationCmd
	_, err := rl.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, redisKey)
		pipe.ExpireNX(ctx, redisKey, window)
		ttl = pipe.PTTL(ctx, redisKey)
		return nil
	})
	if err != nil {
		rl.logRedisError("pipeline", err)
		return rateDecision{allowed: true}
	}
	remaining := ttl.Val()
	if remaining <= 0 {
		remaining = window
	}
	counter := int(incr.Val())
	return rateDecision{
		allowed:   counter <= limit,
		count:     counter,
		windowEnd: time.Now().Add(remaining),
	}
}

func (rl *redisRateLimiter) Close() {}

func (rl *redisRateLimiter) logRedisError(op string, err error) {
	if rl.logger == nil {
		return
	}
	rl.logger.Error("redis rate limiter error", "op", op, "error", err)
}
