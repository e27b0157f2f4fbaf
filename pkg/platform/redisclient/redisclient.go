package redisclient

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"persona/pkg/platform/config"
)

// New creates a Redis client from the provided configuration.
// Returns nil if the URL is empty (caching not configured).
func New(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	if cfg.URL == "" {
		return nil, nil
	}

	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return client, nil
}
