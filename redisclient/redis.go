package redisclient

import (
    "context"
    "fmt"
    "time"

    "github.com/riverreach/ledgerview/config"
    "github.com/redis/go-redis/v9"
)

type Client struct {
    c *redis.Client
}

// New creates a Redis client from the provided config. Returns an error
// if the Redis URL cannot be parsed.
func New(cfg *config.Config) (*Client, error) {
    opt, err := redis.ParseURL(cfg.RedisURL)
    if err != nil {
        return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
    }
    r := redis.NewClient(opt)
    return &Client{c: r}, nil
}

func (r *Client) Ping() error {
    ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
    defer cancel()
    return r.c.Ping(ctx).Err()
}

// ErrNotFound is returned by Get when the key does not exist.
var ErrNotFound = fmt.Errorf("redisclient: key not found")

// Get fetches a string value, used for caching the latest
// system.permission.granted budget JSON per caller ID and session
// correlation lookups.
func (r *Client) Get(ctx context.Context, key string) (string, error) {
    v, err := r.c.Get(ctx, key).Result()
    if err == redis.Nil {
        return "", ErrNotFound
    }
    return v, err
}

// Set stores a string value with an expiry.
func (r *Client) Set(ctx context.Context, key, value string, ttl time.Duration) error {
    return r.c.Set(ctx, key, value, ttl).Err()
}
