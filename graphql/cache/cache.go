/*
 * SPDX-FileCopyrightText: © Hypermode Inc. <hello@hypermode.com>
 * SPDX-License-Identifier: Apache-2.0
 */

// Package cache is a response cache whose entries carry cache tags.  Dropping
// a tag drops every entry carrying it, which is how a newly stored persisted
// query clears the PersistedQueryNotFound responses cached for its hash.
package cache

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// Backends accepted by Config.Backend.
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
	BackendNone   = "none"
)

// A ResponseCache holds serialized responses by key.  It also implements
// apq.Invalidator.
type ResponseCache interface {
	// Get returns the response cached under key.
	Get(ctx context.Context, key string) ([]byte, bool, error)
	// Set caches body under key for ttl, tagged with tags.  A ttl <= 0 caches
	// nothing.
	Set(ctx context.Context, key string, body []byte, tags []string, ttl time.Duration) error
	// Invalidate drops every entry tagged with any of tags.
	Invalidate(ctx context.Context, tags []string) error
}

// Config selects and configures a ResponseCache.
type Config struct {
	Backend string
	// MaxCost bounds the memory backend, in bytes.
	MaxCost int64
	Redis   redis.UniversalClient
	Prefix  string
}

// New builds the cache described by cfg.  BackendNone returns a nil cache and
// no error.
func New(cfg Config) (ResponseCache, error) {
	switch cfg.Backend {
	case BackendNone:
		return nil, nil
	case BackendMemory, "":
		m, err := NewMemory(cfg.MaxCost)
		if err != nil {
			return nil, err
		}
		return m, nil
	case BackendRedis:
		if cfg.Redis == nil {
			return nil, errors.New("a redis client is required for the redis response cache")
		}
		return NewRedis(cfg.Redis, cfg.Prefix), nil
	default:
		return nil, errors.Errorf("unknown response cache backend %q", cfg.Backend)
	}
}
