// Package bus wraps the platform's Redis connection with minimal helpers.
// All platform traffic, control events in and transcripts out, flows over
// Redis pub/sub channels.
package bus

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/scribelabs/scribe-core/internal/config"
)

type Client struct {
	rdb *redis.Client
	log zerolog.Logger
}

func Connect(ctx context.Context, cfg config.RedisConfig, log zerolog.Logger) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       0,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	log.Info().Str("addr", cfg.Addr()).Msg("connected to redis")

	return &Client{
		rdb: rdb,
		log: log,
	}, nil
}

func (c *Client) Close() {
	if c == nil {
		return
	}
	c.log.Info().Msg("closing redis connection")
	_ = c.rdb.Close()
}

func (c *Client) Healthy() bool {
	if c == nil || c.rdb == nil {
		return false
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return c.rdb.Ping(ctx).Err() == nil
}

// Publish sends a payload on a channel.
func (c *Client) Publish(ctx context.Context, channel string, payload []byte) error {
	return c.rdb.Publish(ctx, channel, payload).Err()
}

// Subscribe opens a pub/sub subscription on a channel. The caller owns the
// returned subscription and must close it.
func (c *Client) Subscribe(ctx context.Context, channel string) *redis.PubSub {
	return c.rdb.Subscribe(ctx, channel)
}

func (c *Client) Conn() *redis.Client {
	return c.rdb
}

func (c *Client) Logger() zerolog.Logger {
	return c.log
}
