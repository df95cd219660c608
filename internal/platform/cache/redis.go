package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"
)

// Redis shares cached entries between instances. Purge bumps a generation
// counter that is part of every key, so old entries become unreachable at
// once and expire through their TTL.
type Redis struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	logger zerolog.Logger
}

// NewRedis connects to url and verifies the connection with a PING.
func NewRedis(ctx context.Context, url, prefix string, ttl time.Duration, logger zerolog.Logger) (*Redis, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return &Redis{
		client: client,
		prefix: prefix,
		ttl:    ttl,
		logger: logger.With().Str("component", "cache.redis").Logger(),
	}, nil
}

func (c *Redis) generationKey() string { return c.prefix + "generation" }

func (c *Redis) generation(ctx context.Context) (int64, error) {
	gen, err := c.client.Get(ctx, c.generationKey()).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return gen, err
}

func (c *Redis) key(gen int64, key string) string {
	return fmt.Sprintf("%s%d:%s", c.prefix, gen, key)
}

func (c *Redis) Get(ctx context.Context, key string) ([]byte, Generation, bool) {
	gen, err := c.generation(ctx)
	if err != nil {
		c.logger.Warn().Err(err).Msg("read cache generation")
		return nil, NoGeneration, false
	}
	v, err := c.client.Get(ctx, c.key(gen, key)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn().Err(err).Str("key", key).Msg("cache get")
		}
		return nil, Generation(gen), false
	}
	return v, Generation(gen), true
}

// Set writes under gen, not the current generation. After a Purge the old
// generation's keys are never read again, so a late write is harmless.
func (c *Redis) Set(ctx context.Context, gen Generation, key string, value []byte) {
	if gen == NoGeneration {
		return
	}
	if err := c.client.Set(ctx, c.key(int64(gen), key), value, c.ttl).Err(); err != nil {
		c.logger.Warn().Err(err).Str("key", key).Msg("cache set")
	}
}

func (c *Redis) Purge(ctx context.Context) {
	if err := c.client.Incr(ctx, c.generationKey()).Err(); err != nil {
		c.logger.Error().Err(err).Msg("cache purge")
	}
}

func (c *Redis) Close() error {
	return c.client.Close()
}
