// Package cache holds short-lived computed responses. Every implementation
// treats failures as misses: callers always have the database to fall back on.
package cache

import "context"

// Generation identifies the cache contents between two purges.
type Generation int64

// NoGeneration is reported when the current generation could not be read.
// Set ignores values tagged with it.
const NoGeneration Generation = -1

// Cache stores values computed from the database. A caller looks a key up,
// computes on a miss and stores the result with the generation Get reported,
// so a value read before a Purge is never visible after it.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, Generation, bool)
	Set(ctx context.Context, gen Generation, key string, value []byte)
	// Purge drops every entry and starts a new generation.
	Purge(ctx context.Context)
}

// Nop never stores anything.
type Nop struct{}

func (Nop) Get(context.Context, string) ([]byte, Generation, bool) { return nil, 0, false }
func (Nop) Set(context.Context, Generation, string, []byte) {}
func (Nop) Purge(context.Context) {}
