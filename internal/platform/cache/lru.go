package cache

import (
	"context"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/rs/zerolog"
)

// LRU is an in-process cache bounded by size and entry age. Entries written
// by other instances are not seen, so staleness across a fleet is bounded by
// the TTL.
type LRU struct {
	mu      sync.Mutex
	gen     Generation
	entries *expirable.LRU[string, []byte]
	logger  zerolog.Logger
}

func NewLRU(size int, ttl time.Duration, logger zerolog.Logger) *LRU {
	return &LRU{
		entries: expirable.NewLRU[string, []byte](size, nil, ttl),
		logger:  logger.With().Str("component", "cache.lru").Logger(),
	}
}

func (c *LRU) Get(_ context.Context, key string) ([]byte, Generation, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.entries.Get(key)
	if !ok {
		c.logger.Debug().Str("key", key).Msg("cache miss")
	}
	return v, c.gen, ok
}

// Set stores value unless the cache was purged after gen was read.
func (c *LRU) Set(_ context.Context, gen Generation, key string, value []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen {
		c.logger.Debug().Str("key", key).Msg("dropping value computed before purge")
		return
	}
	c.entries.Add(key, value)
}

func (c *LRU) Purge(_ context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen++
	c.entries.Purge()
}

// Len reports the number of live entries.
func (c *LRU) Len() int { return c.entries.Len() }
