/*
 * SPDX-FileCopyrightText: © Hypermode Inc. <hello@hypermode.com>
 * SPDX-License-Identifier: Apache-2.0
 */

package store

import (
	"context"

	"github.com/dgraph-io/ristretto/v2"
	"github.com/pkg/errors"
)

// Cached puts a ristretto cache in front of a store.  Records are immutable, so
// a cached query never goes stale; only found records are cached, never misses.
type Cached struct {
	Store
	cache *ristretto.Cache[string, string]
}

// NewCached wraps s with a cache holding up to maxCost bytes of query text.
func NewCached(s Store, maxCost int64) (*Cached, error) {
	// About ten counters per item, guessing 1KB per query.
	numCounters := maxCost / 1024 * 10
	if numCounters < 1000 {
		numCounters = 1000
	}
	cache, err := ristretto.NewCache(&ristretto.Config[string, string]{
		NumCounters: numCounters,
		MaxCost:     maxCost,
		BufferItems: 64,
		Cost: func(query string) int64 {
			return int64(len(query))
		},
	})
	if err != nil {
		return nil, errors.Wrap(err, "while creating persisted query cache")
	}
	return &Cached{Store: s, cache: cache}, nil
}

// Exists implements apq.QueryStore.
func (c *Cached) Exists(ctx context.Context, version int, hash string) (bool, error) {
	if _, ok := c.cache.Get(key(version, hash)); ok {
		return true, nil
	}
	return c.Store.Exists(ctx, version, hash)
}

// Get implements apq.QueryStore.
func (c *Cached) Get(ctx context.Context, version int, hash string) (string, bool, error) {
	k := key(version, hash)
	if query, ok := c.cache.Get(k); ok {
		return query, true, nil
	}
	query, ok, err := c.Store.Get(ctx, version, hash)
	if err != nil || !ok {
		return query, ok, err
	}
	c.cache.Set(k, query, 0)
	return query, true, nil
}

// CreateIfAbsent implements apq.QueryStore.  Only the winner caches its text:
// a loser's text may differ from the stored one.
func (c *Cached) CreateIfAbsent(ctx context.Context, version int, hash,
	query string) (bool, error) {

	created, err := c.Store.CreateIfAbsent(ctx, version, hash, query)
	if err != nil || !created {
		return created, err
	}
	c.cache.Set(key(version, hash), query, 0)
	return true, nil
}

// Wait blocks until pending cache writes are applied.
func (c *Cached) Wait() {
	c.cache.Wait()
}

// Close closes the cache and the wrapped store.
func (c *Cached) Close() error {
	c.cache.Close()
	return c.Store.Close()
}
