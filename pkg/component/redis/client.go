// Package redis provides the Redis client used for answer and embedding caches.
package redis

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
	utilerrors "k8s.io/apimachinery/pkg/util/errors"

	options "github.com/kart-io/virtual-ta/pkg/options/redis"
)

// Client wraps a go-redis client built from Options.
type Client struct {
	client *goredis.Client
	opts   *options.Options
}

// New creates a new Redis client from the provided options.
func New(opts *options.Options) (*Client, error) {
	return NewWithContext(context.Background(), opts)
}

// NewWithContext creates a new Redis client and verifies connectivity with ctx.
func NewWithContext(ctx context.Context, opts *options.Options) (*Client, error) {
	if opts == nil {
		return nil, fmt.Errorf("redis options cannot be nil")
	}
	if errs := opts.Validate(); len(errs) > 0 {
		return nil, fmt.Errorf("invalid redis options: %w", utilerrors.NewAggregate(errs))
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:         opts.Addr(),
		Password:     opts.Password,
		DB:           opts.Database,
		MaxRetries:   opts.MaxRetries,
		PoolSize:     opts.PoolSize,
		MinIdleConns: opts.MinIdleConns,
		DialTimeout:  opts.DialTimeout,
		ReadTimeout:  opts.ReadTimeout,
		WriteTimeout: opts.WriteTimeout,
	})

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to ping redis at %s: %w", opts.Addr(), err)
	}

	return &Client{client: rdb, opts: opts}, nil
}

// Name returns the storage type identifier.
func (c *Client) Name() string {
	return "redis"
}

// Ping checks if the connection to Redis is alive.
func (c *Client) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (c *Client) Close() error {
	return c.client.Close()
}

// Client returns the underlying go-redis client.
func (c *Client) Client() *goredis.Client {
	return c.client
}

// HealthStats contains health information about the Redis connection.
type HealthStats struct {
	Healthy    bool          `json:"healthy"`
	Latency    time.Duration `json:"latency"`
	TotalConns uint32        `json:"total_conns"`
	IdleConns  uint32        `json:"idle_conns"`
	Error      string        `json:"error,omitempty"`
}

// HealthWithStats pings Redis and returns latency plus pool statistics.
func (c *Client) HealthWithStats(ctx context.Context) *HealthStats {
	start := time.Now()
	err := c.Ping(ctx)
	stats := &HealthStats{Latency: time.Since(start), Healthy: err == nil}
	if err != nil {
		stats.Error = err.Error()
		return stats
	}

	ps := c.client.PoolStats()
	stats.TotalConns = ps.TotalConns
	stats.IdleConns = ps.IdleConns
	return stats
}
