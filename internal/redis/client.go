// Package redis connects to the Redis instance backing sessions and rate limits.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/garrettladley/whoopweb/internal/config"
	"github.com/redis/go-redis/v9"
)

const pingTimeout = 5 * time.Second

var ErrNoURL = errors.New("REDIS_URL is not set")

// Connect parses REDIS_URL and verifies the server answers before returning the client.
func Connect(ctx context.Context, cfg config.Redis) (*redis.Client, error) {
	if cfg.URL == "" {
		return nil, ErrNoURL
	}

	opt, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}

	client := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	return client, nil
}
