package archive

import (
	"context"
	"fmt"
	"log/slog"

	redis "github.com/redis/go-redis/v9"
)

const defaultRedisPrefix = "deploydash:archive:"

// RedisCounters keeps archive numbers in Redis so several API replicas share them.
type RedisCounters struct {
	client *redis.Client
	prefix string
	logger *slog.Logger
}

// NewRedisCounters wraps an existing client. An empty prefix selects the default namespace.
func NewRedisCounters(client *redis.Client, prefix string, logger *slog.Logger) *RedisCounters {
	if prefix == "" {
		prefix = defaultRedisPrefix
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisCounters{client: client, prefix: prefix, logger: logger}
}

// Next increments the counter of key atomically.
func (c *RedisCounters) Next(ctx context.Context, key string) (int, error) {
	n, err := c.client.Incr(ctx, c.prefix+key).Result()
	if err != nil {
		return 0, fmt.Errorf("incr archive counter: %w", err)
	}
	return int(n), nil
}

// Reset removes every counter under the prefix.
func (c *RedisCounters) Reset(ctx context.Context) error {
	iter := c.client.Scan(ctx, 0, c.prefix+"*", 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("scan archive counters: %w", err)
	}
	if len(keys) == 0 {
		return nil
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("delete archive counters: %w", err)
	}
	c.logger.Info("archive counters reset", "count", len(keys))
	return nil
}
