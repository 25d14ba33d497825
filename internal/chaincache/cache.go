// Package chaincache keeps recently built chains keyed by the fingerprint of
// their declarations, so that an unchanged set of steps is not validated
// again on every rebuild.
package chaincache

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/hashicorp/golang-lru/v2"
	"github.com/specialistvlad/buildchain/internal/chain"
	"github.com/specialistvlad/buildchain/internal/ctxlog"
)

// DefaultSize is the number of chains kept when no size is given.
const DefaultSize = 16

// Cache is an LRU cache of built chains. It is safe for concurrent use.
type Cache struct {
	chains *lru.Cache[string, *chain.Chain]
	hits   atomic.Int64
	misses atomic.Int64
}

// Stats are cache counters.
type Stats struct {
	Hits   int64
	Misses int64
	Size   int
}

// New creates a cache holding up to size chains.
func New(size int) (*Cache, error) {
	if size <= 0 {
		size = DefaultSize
	}
	chains, err := lru.New[string, *chain.Chain](size)
	if err != nil {
		return nil, fmt.Errorf("creating chain cache: %w", err)
	}
	return &Cache{chains: chains}, nil
}

// Build returns the cached chain for b's fingerprint, building and caching it
// on a miss. The boolean reports a cache hit. Failed builds are not cached.
func (c *Cache) Build(ctx context.Context, b *chain.Builder) (*chain.Chain, bool, error) {
	logger := ctxlog.FromContext(ctx)
	fp := b.Fingerprint()

	if cached, ok := c.chains.Get(fp); ok {
		c.hits.Add(1)
		logger.Debug("Chain cache hit.", "fingerprint", fp)
		return cached, true, nil
	}

	c.misses.Add(1)
	logger.Debug("Chain cache miss, building chain.", "fingerprint", fp)
	built, err := b.Build(ctx)
	if err != nil {
		return nil, false, err
	}
	c.chains.Add(fp, built)
	return built, false, nil
}

// Purge drops every cached chain.
func (c *Cache) Purge() { c.chains.Purge() }

// Stats returns the current counters.
func (c *Cache) Stats() Stats {
	return Stats{
		Hits:   c.hits.Load(),
		Misses: c.misses.Load(),
		Size:   c.chains.Len(),
	}
}
