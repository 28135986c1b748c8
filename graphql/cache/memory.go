/*
 * SPDX-FileCopyrightText: © Hypermode Inc. <hello@hypermode.com>
 * SPDX-License-Identifier: Apache-2.0
 */

package cache

import (
	"context"
	"sync"
	"time"

	"github.com/dgraph-io/ristretto/v2"
	"github.com/pkg/errors"
)

// DefaultMaxCost is the memory budget of a Memory cache built with no budget.
const DefaultMaxCost = 16 << 20

// Memory is a ResponseCache in process memory.  Entries live in ristretto; the
// tag index lives beside it and remembers when each tagged key expires so that
// it can be pruned.
type Memory struct {
	cache *ristretto.Cache[string, []byte]

	sync.Mutex
	tags map[string]map[string]time.Time
}

// NewMemory returns a Memory cache holding up to maxCost bytes of responses.
func NewMemory(maxCost int64) (*Memory, error) {
	if maxCost <= 0 {
		maxCost = DefaultMaxCost
	}
	cache, err := ristretto.NewCache(&ristretto.Config[string, []byte]{
		// Negative responses are small, guess 256 bytes each.
		NumCounters: maxCost / 256 * 10,
		MaxCost:     maxCost,
		BufferItems: 64,
		Cost: func(body []byte) int64 {
			return int64(len(body))
		},
	})
	if err != nil {
		return nil, errors.Wrap(err, "while creating response cache")
	}
	return &Memory{cache: cache, tags: make(map[string]map[string]time.Time)}, nil
}

// Get implements ResponseCache.
func (m *Memory) Get(_ context.Context, key string) ([]byte, bool, error) {
	body, ok := m.cache.Get(key)
	return body, ok, nil
}

// Set implements ResponseCache.
func (m *Memory) Set(_ context.Context, key string, body []byte, tags []string,
	ttl time.Duration) error {

	if ttl <= 0 {
		return nil
	}
	now := time.Now()
	expires := now.Add(ttl)

	m.Lock()
	for _, tag := range tags {
		keys, ok := m.tags[tag]
		if !ok {
			keys = make(map[string]time.Time)
			m.tags[tag] = keys
		}
		for k, exp := range keys {
			if exp.Before(now) {
				delete(keys, k)
			}
		}
		keys[key] = expires
	}
	m.Unlock()

	m.cache.SetWithTTL(key, body, 0, ttl)
	return nil
}

// Invalidate implements ResponseCache and apq.Invalidator.
func (m *Memory) Invalidate(_ context.Context, tags []string) error {
	m.Lock()
	defer m.Unlock()
	for _, tag := range tags {
		for key := range m.tags[tag] {
			m.cache.Del(key)
		}
		delete(m.tags, tag)
	}
	return nil
}

// Wait blocks until pending writes are applied.
func (m *Memory) Wait() {
	m.cache.Wait()
}

// Close releases the cache.
func (m *Memory) Close() {
	m.cache.Close()
}
