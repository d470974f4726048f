// Package cache is the read-through cache over page and workspace lookups.
// The cache is never authoritative: readers fall back to the store on any
// failure, and invalidation failures are logged without failing the mutation.
package cache

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrCacheMiss is returned by Get when the key is absent or expired.
var ErrCacheMiss = errors.New("cache miss")

type Client struct {
	client *redis.Client
	ttl    time.Duration
}

// New connects to Redis and verifies the connection.
func New(redisURL string, ttl time.Duration) (*Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return &Client{client: client, ttl: ttl}, nil
}

// NewWithClient wraps an existing Redis client. Used by tests.
func NewWithClient(client *redis.Client, ttl time.Duration) *Client {
	return &Client{client: client, ttl: ttl}
}

func (c *Client) Close() error {
	return c.client.Close()
}

func (c *Client) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *Client) TTL() time.Duration {
	return c.ttl
}

// Key families. NULL-parent sibling groups have no children key; the
// workspace list covers the root level.
func PageKey(pageID string) string {
	return "page:" + pageID
}

func ChildPagesKey(pageID string) string {
	return "page:" + pageID + ":children"
}

func WorkspacePagesKey(workspaceID string) string {
	return "workspace:" + workspaceID + ":pages"
}

func UserWorkspacesKey(userID string) string {
	return "user:" + userID + ":workspaces"
}

func (c *Client) Get(ctx context.Context, key string) ([]byte, error) {
	value, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("cache get %s: %w", key, err)
	}
	return value, nil
}

func (c *Client) SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := c.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("cache set %s: %w", key, err)
	}
	return nil
}

// Set stores the value under the configured default TTL.
func (c *Client) Set(ctx context.Context, key string, value []byte) error {
	return c.SetWithTTL(ctx, key, value, c.ttl)
}

func (c *Client) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("cache delete: %w", err)
	}
	return nil
}

// Invalidate deletes keys and logs failures instead of returning them. The
// store write is the durable fact; a missed invalidation is bounded by TTL.
func (c *Client) Invalidate(ctx context.Context, keys ...string) {
	if err := c.Delete(ctx, keys...); err != nil {
		log.Printf("cache invalidation failed (keys=%v): %v", keys, err)
	}
}
