// Package storemem layers a sturdyc in-memory tier in front of a persistent
// store. The persistent store remains the source of truth and the
// synchronization point for writes; the tier only short-circuits repeat
// reads and may evict or expire independently without affecting
// correctness, because entries are immutable once published.
package storemem

import (
	"context"

	"github.com/viccon/sturdyc"

	"github.com/goliatone/go-method-cache/cache"
)

// Tiered is a cache.Store that consults an in-memory front before the
// backing store and promotes backing hits into memory.
type Tiered struct {
	front *sturdyc.Client[cache.Entry]
	back  cache.Store
}

var _ cache.Store = (*Tiered)(nil)

// New wraps back with an in-memory tier configured by cfg.
//
// Version compatibility note: this assumes the sturdyc v1.x constructor
// signature (capacity, shards, ttl, eviction percentage).
func New(cfg cache.MemoryConfig, back cache.Store) *Tiered {
	return &Tiered{
		front: sturdyc.New[cache.Entry](
			cfg.Capacity,
			cfg.NumShards,
			cfg.TTL,
			cfg.EvictionPercentage,
		),
		back: back,
	}
}

// NewDefault wraps back with default front-tier settings.
func NewDefault(back cache.Store) *Tiered {
	return New(*cache.DefaultMemoryConfig(), back)
}

func tierKey(ns cache.Namespace, fp cache.Fingerprint) string {
	return ns.String() + cache.KeySeparator + fp.Hex()
}

// Get serves from memory when possible, falling back to the backing store
// and promoting what it finds.
func (t *Tiered) Get(ctx context.Context, ns cache.Namespace, fp cache.Fingerprint) (cache.Entry, bool, error) {
	key := tierKey(ns, fp)
	if entry, ok := t.front.Get(key); ok {
		return entry, true, nil
	}

	entry, ok, err := t.back.Get(ctx, ns, fp)
	if err != nil || !ok {
		return cache.Entry{}, ok, err
	}
	t.front.Set(key, entry)
	return entry, true, nil
}

// PutIfAbsent delegates the write decision to the backing store; the memory
// tier is populated only for the winning writer. Losers warm up on their
// next Get instead, which keeps the tier strictly derived from the backing
// store.
func (t *Tiered) PutIfAbsent(ctx context.Context, ns cache.Namespace, fp cache.Fingerprint, entry cache.Entry) (bool, error) {
	inserted, err := t.back.PutIfAbsent(ctx, ns, fp, entry)
	if err != nil {
		return false, err
	}
	if inserted {
		t.front.Set(tierKey(ns, fp), entry)
	}
	return inserted, nil
}

// Delete removes the entry from both tiers. The front eviction happens even
// when the backing delete fails, so a poisoned entry never keeps serving
// from memory.
func (t *Tiered) Delete(ctx context.Context, ns cache.Namespace, fp cache.Fingerprint) error {
	t.front.Delete(tierKey(ns, fp))
	return t.back.Delete(ctx, ns, fp)
}
