/*
 * SPDX-FileCopyrightText: © Hypermode Inc. <hello@hypermode.com>
 * SPDX-License-Identifier: Apache-2.0
 */

// Package store holds the persisted query stores: badger for a single node,
// redis for a fleet sharing one store, and a ristretto read cache in front of
// either.
package store

import (
	"io"
	"strconv"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/hypermodeinc/graphql-apq/graphql/apq"
)

// Backends accepted by Config.Backend.
const (
	BackendBadger = "badger"
	BackendRedis  = "redis"
	BackendMemory = "memory"
)

// Config selects and configures a store.
type Config struct {
	Backend string

	// Dir is the badger directory.
	Dir string
	// SyncWrites makes badger fsync every write.
	SyncWrites bool

	// Redis is the client used by the redis backend.
	Redis redis.UniversalClient
	// Prefix namespaces redis keys.
	Prefix string

	// CacheSize is the ristretto read cache budget in bytes.  Zero disables
	// the cache.
	CacheSize int64
}

// A Store is a QueryStore that holds resources until closed.
type Store interface {
	apq.QueryStore
	io.Closer
}

// Open builds the store described by cfg.
func Open(cfg Config) (Store, error) {
	var s Store
	var err error
	switch cfg.Backend {
	case BackendBadger, "":
		if cfg.Dir == "" {
			return nil, errors.New("a directory is required for the badger store")
		}
		s, err = OpenBadger(BadgerOptions{Dir: cfg.Dir, SyncWrites: cfg.SyncWrites})
	case BackendMemory:
		s, err = OpenBadger(BadgerOptions{InMemory: true})
	case BackendRedis:
		if cfg.Redis == nil {
			return nil, errors.New("a redis client is required for the redis store")
		}
		s = NewRedis(cfg.Redis, cfg.Prefix)
	default:
		return nil, errors.Errorf("unknown store backend %q", cfg.Backend)
	}
	if err != nil {
		return nil, err
	}

	if cfg.CacheSize <= 0 {
		return s, nil
	}
	cached, err := NewCached(s, cfg.CacheSize)
	if err != nil {
		_ = s.Close()
		return nil, err
	}
	return cached, nil
}

// key renders the record key for (version, hash).
func key(version int, hash string) string {
	return strconv.Itoa(version) + ":" + hash
}
