package httpx

import (
	"context"
	"log/slog"
	"time"

	redis "github.com/redis/go-redis/v9"
)

const redisRatePrefix = "deploydash:ratelimit:"

// fixedWindowScript increments the counter of a window, starts its expiry on the
// first hit and reports the count with the remaining lifetime in milliseconds.
var fixedWindowScript = redis.NewScript(`
local n = redis.call("INCR", KEYS[1])
if n == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return {n, redis.call("PTTL", KEYS[1])}
`)

// redisRateLimiter shares windows between API replicas. It fails open when Redis
// is unreachable.
type redisRateLimiter struct {
	client  *redis.Client
	logger  *slog.Logger
	timeout time.Duration
}

// NewRedisRateLimiterFromClient wraps client. The caller keeps ownership of it.
func NewRedisRateLimiterFromClient(client *redis.Client, logger *slog.Logger) RateLimiter {
	return &redisRateLimiter{
		client:  client,
		logger:  logger,
		timeout: 250 * time.Millisecond,
	}
}

func (rl *redisRateLimiter) Allow(key string, limit int, window time.Duration) rateDecision {
	if limit <= 0 {
		return rateDecision{allowed: true}
	}
	if window <= 0 {
		window = rateWindowDefault
	}
	ctx, cancel := context.WithTimeout(context.Background(), rl.timeout)
	defer cancel()

	res, err := fixedWindowScript.Run(ctx, rl.client, []string{redisRatePrefix + key}, window.Milliseconds()).Int64Slice()
	if err != nil || len(res) != 2 {
		rl.logRedisError(err)
		return rateDecision{allowed: true}
	}
	ttl := time.Duration(res[1]) * time.Millisecond
	if ttl <= 0 {
		ttl = window
	}
	return rateDecision{
		allowed:   res[0] <= int64(limit),
		count:     int(res[0]),
		windowEnd: time.Now().Add(ttl),
	}
}

func (rl *redisRateLimiter) Close() {}

func (rl *redisRateLimiter) logRedisError(err error) {
	if rl.logger == nil {
		return
	}
	rl.logger.Error("redis rate limiter error", "error", err)
}
