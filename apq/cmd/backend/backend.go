/*
 * SPDX-FileCopyrightText: © Hypermode Inc. <hello@hypermode.com>
 * SPDX-License-Identifier: Apache-2.0
 */

// Package backend wires the schemas, store, response cache and processor
// shared by the apq subcommands from their flags.
package backend

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/golang/glog"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/pflag"

	"github.com/hypermodeinc/graphql-apq/graphql/apq"
	"github.com/hypermodeinc/graphql-apq/graphql/cache"
	"github.com/hypermodeinc/graphql-apq/graphql/schema"
	"github.com/hypermodeinc/graphql-apq/store"
	"github.com/hypermodeinc/graphql-apq/x"
)

// RegisterFlags adds the flags read by Open to flags.
func RegisterFlags(flags *pflag.FlagSet) {
	flags.StringSlice("schema", nil,
		"GraphQL schema files as id=path pairs. A bare path is served as the "+
			"default schema.")

	// Persisted query store.
	flags.String("store", store.BackendBadger,
		"Persisted query store, one of [badger, redis, memory].")
	flags.String("badger_dir", "apq", "Directory of the badger store.")
	flags.Bool("badger_sync", false, "Fsync every write to the badger store.")
	flags.String("cache_size", "64MiB",
		"Memory for caching persisted queries in front of the store. 0 disables it.")

	// Redis, shared by the store and the response cache.
	flags.String("redis_addr", "localhost:6379",
		"Comma-separated redis addresses, used when a redis backend is selected.")
	flags.String("redis_prefix", "", "Prefix of every redis key written.")

	// Negative response cache.
	flags.String("negative_cache", cache.BackendMemory,
		"Cache for PersistedQueryNotFound responses, one of [memory, redis, none].")
	flags.String("negative_cache_size", "16MiB", "Memory for the in-memory negative cache.")
	flags.Duration("negative_ttl", 30*time.Second,
		"How long a PersistedQueryNotFound response is cached.")

	// Processing.
	flags.Bool("verify_hash", true,
		"Reject persisted queries whose text doesn't hash to the given sha256Hash.")
	flags.String("max_query_size", "256KiB", "Largest query text that gets persisted.")
	flags.Int("tag_prefix_len", apq.DefaultTagLength,
		"Hash characters kept in a cache tag, 1 to 64.")
}

// Backend holds everything a subcommand needs to process operations.
type Backend struct {
	Schemas   *schema.Registry
	Store     store.Store
	Cache     cache.ResponseCache
	Bridge    *apq.Bridge
	Processor *apq.Processor

	TagLength   int
	NegativeTTL time.Duration

	redis redis.UniversalClient
}

// Open builds a Backend from the flags registered by RegisterFlags.
func Open(sc x.SubCommand) (*Backend, error) {
	conf := sc.Conf
	b := &Backend{
		TagLength:   conf.GetInt("tag_prefix_len"),
		NegativeTTL: conf.GetDuration("negative_ttl"),
	}
	if b.TagLength < 1 || b.TagLength > 64 {
		return nil, errors.Errorf("--tag_prefix_len must be between 1 and 64, got %d",
			b.TagLength)
	}

	var err error
	if b.Schemas, err = loadSchemas(sc); err != nil {
		return nil, err
	}

	storeBackend := conf.GetString("store")
	cacheBackend := conf.GetString("negative_cache")
	if storeBackend == store.BackendRedis || cacheBackend == cache.BackendRedis {
		if b.redis, err = openRedis(conf.GetString("redis_addr")); err != nil {
			return nil, err
		}
	}

	cacheSize, err := sc.GetBytes("cache_size")
	if err != nil {
		b.Close()
		return nil, err
	}
	b.Store, err = store.Open(store.Config{
		Backend:    storeBackend,
		Dir:        conf.GetString("badger_dir"),
		SyncWrites: conf.GetBool("badger_sync"),
		Redis:      b.redis,
		Prefix:     conf.GetString("redis_prefix"),
		CacheSize:  int64(cacheSize),
	})
	if err != nil {
		b.Close()
		return nil, err
	}

	negSize, err := sc.GetBytes("negative_cache_size")
	if err != nil {
		b.Close()
		return nil, err
	}
	b.Cache, err = cache.New(cache.Config{
		Backend: cacheBackend,
		MaxCost: int64(negSize),
		Redis:   b.redis,
		Prefix:  conf.GetString("redis_prefix"),
	})
	if err != nil {
		b.Close()
		return nil, err
	}

	maxQuerySize, err := sc.GetBytes("max_query_size")
	if err != nil {
		b.Close()
		return nil, err
	}

	var inv apq.Invalidator
	if b.Cache != nil {
		inv = b.Cache
	}
	b.Bridge = apq.NewBridge(inv, b.TagLength)
	b.Processor = apq.NewProcessor(b.Schemas, b.Store, b.Bridge, apq.Options{
		VerifyHash:   conf.GetBool("verify_hash"),
		MaxQuerySize: maxQuerySize,
	})

	glog.Infof("Serving schemas %v with a %s store and a %s negative cache",
		b.Schemas.IDs(), storeBackend, cacheBackend)
	return b, nil
}

func loadSchemas(sc x.SubCommand) (*schema.Registry, error) {
	paths, err := sc.GetKeyValues("schema", schema.DefaultID)
	if err != nil {
		return nil, err
	}
	if len(paths) == 0 {
		return nil, errors.New("at least one --schema is required")
	}

	ids := make([]string, 0, len(paths))
	for id := range paths {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	reg := schema.NewRegistry()
	for _, id := range ids {
		s, err := schema.FromFile(id, paths[id])
		if err != nil {
			return nil, err
		}
		reg.Set(s)
	}
	return reg, nil
}

func openRedis(addr string) (redis.UniversalClient, error) {
	var addrs []string
	for _, a := range strings.Split(addr, ",") {
		if a = strings.TrimSpace(a); a != "" {
			addrs = append(addrs, a)
		}
	}
	if len(addrs) == 0 {
		return nil, errors.New("--redis_addr is required for the redis backends")
	}

	client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: addrs})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.Wrapf(err, "while connecting to redis at %s", addr)
	}
	return client, nil
}

// Close releases the store, the cache and the redis connection.
func (b *Backend) Close() {
	if b.Store != nil {
		if err := b.Store.Close(); err != nil {
			glog.Warningf("Error while closing the store: %v", err)
		}
	}
	if m, ok := b.Cache.(*cache.Memory); ok {
		m.Close()
	}
	if b.redis != nil {
		if err := b.redis.Close(); err != nil {
			glog.Warningf("Error while closing redis: %v", err)
		}
	}
}
