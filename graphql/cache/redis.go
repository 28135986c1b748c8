/*
 * SPDX-FileCopyrightText: © Hypermode Inc. <hello@hypermode.com>
 * SPDX-License-Identifier: Apache-2.0
 */

package cache

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// Redis is a ResponseCache shared through redis.  Each tag is a redis set of
// the keys carrying it.  All entries share one ttl, so pushing the set's
// expiry out on every Set keeps it alive as long as its newest entry.
type Redis struct {
	client redis.UniversalClient
	prefix string
}

// NewRedis returns a cache keeping its entries under prefix.
func NewRedis(client redis.UniversalClient, prefix string) *Redis {
	return &Redis{client: client, prefix: prefix}
}

func (c *Redis) key(k string) string {
	if c.prefix == "" {
		return "apq:r:" + k
	}
	return c.prefix + ":apq:r:" + k
}

func (c *Redis) tagKey(tag string) string {
	if c.prefix == "" {
		return "apq:t:" + tag
	}
	return c.prefix + ":apq:t:" + tag
}

// Get implements ResponseCache.
func (c *Redis) Get(ctx context.Context, key string) ([]byte, bool, error) {
	body, err := c.client.Get(ctx, c.key(key)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.Wrap(err, "redis get failed")
	}
	return body, true, nil
}

// Set implements ResponseCache.
func (c *Redis) Set(ctx context.Context, key string, body []byte, tags []string,
	ttl time.Duration) error {

	if ttl <= 0 {
		return nil
	}
	rkey := c.key(key)
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, rkey, body, ttl)
		for _, tag := range tags {
			tk := c.tagKey(tag)
			pipe.SAdd(ctx, tk, rkey)
			pipe.Expire(ctx, tk, ttl)
		}
		return nil
	})
	return errors.Wrap(err, "redis set failed")
}

// Invalidate implements ResponseCache and apq.Invalidator.  An entry cached
// concurrently with the invalidation may survive it until its ttl runs out.
func (c *Redis) Invalidate(ctx context.Context, tags []string) error {
	for _, tag := range tags {
		tk := c.tagKey(tag)
		keys, err := c.client.SMembers(ctx, tk).Result()
		if err != nil {
			return errors.Wrapf(err, "while reading cache tag %s", tag)
		}
		if err := c.client.Del(ctx, append(keys, tk)...).Err(); err != nil {
			return errors.Wrapf(err, "while invalidating cache tag %s", tag)
		}
	}
	return nil
}
