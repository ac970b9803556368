// Package feed keeps the Price Cache current from the poll and push channels.
package feed

import (
	"sync"

	"github.com/Arushi221/got-trading-bot/internal/model"
	"github.com/Arushi221/got-trading-bot/internal/observ"
	"github.com/Arushi221/got-trading-bot/internal/pubsub"
)

// Cache holds the latest PriceRecord per symbol. Updates are tagged with a
// receipt sequence number and applied only when newer than everything
// already applied; a symbol missing from an update keeps its last record.
type Cache struct {
	mu     sync.RWMutex
	prices model.PriceCache
	seq    uint64

	subs pubsub.Subscribers[model.PriceCache]
}

func NewCache() *Cache {
	return &Cache{prices: model.PriceCache{}}
}

// Apply merges update into the cache if seq is newer than the cache's
// current sequence number. It reports whether the update was applied.
// Subscribers are notified synchronously with the new snapshot.
func (c *Cache) Apply(update model.PriceCache, seq uint64) bool {
	c.mu.Lock()
	if seq <= c.seq {
		c.mu.Unlock()
		return false
	}
	next := c.prices.Clone()
	for sym, rec := range update {
		next[sym] = rec
	}
	c.prices = next
	c.seq = seq
	snap := next.Clone()
	c.mu.Unlock()

	observ.SetGauge("price_cache_size", float64(len(snap)), nil)
	observ.SetGauge("price_cache_seq", float64(seq), nil)
	c.subs.Publish(snap)
	return true
}

// Snapshot returns a copy of the current cache.
func (c *Cache) Snapshot() model.PriceCache {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.prices.Clone()
}

// Seq returns the sequence number of the last applied update, 0 if none.
func (c *Cache) Seq() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.seq
}

// Subscribe registers fn to receive every applied snapshot.
func (c *Cache) Subscribe(fn func(model.PriceCache)) (unsubscribe func()) {
	return c.subs.Subscribe(fn)
}
