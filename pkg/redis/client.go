// Package redis holds the shared Redis client plus the distributed lock and rate limiter built on it.
package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/redis/go-redis/v9"
)

// Config holds Redis connection settings
type Config struct {
	Host     string
	Port     int
	Password string
	DB       int
	// DialTimeout bounds the initial ping.
	DialTimeout time.Duration
}

// Addr returns host:port
func (c Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Client wraps the go-redis client
type Client struct {
	rdb    redis.UniversalClient
	logger ectologger.Logger
}

// NewClient connects and pings once. A failed ping is returned so callers can decide
// whether to run without Redis.
func NewClient(ctx context.Context, cfg Config, logger ectologger.Logger) (*Client, error) {
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 5 * time.Second
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:        cfg.Addr(),
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: cfg.DialTimeout,
	})

	pingCtx, cancel := context.WithTimeout(ctx, cfg.DialTimeout)
	defer cancel()

	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", cfg.Addr(), err)
	}

	logger.WithContext(ctx).Infof("Connected to Redis at %s", cfg.Addr())
	return &Client{rdb: rdb, logger: logger}, nil
}

// NewClientFrom wraps an existing go-redis client.
func NewClientFrom(rdb redis.UniversalClient, logger ectologger.Logger) *Client {
	return &Client{rdb: rdb, logger: logger}
}

// Close closes the connection pool
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Ping checks connectivity
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// Redis returns the underlying client
func (c *Client) Redis() redis.UniversalClient {
	return c.rdb
}
