/*
 * SPDX-FileCopyrightText: © Hypermode Inc. <hello@hypermode.com>
 * SPDX-License-Identifier: Apache-2.0
 */

package store

import (
	"context"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// Redis is a QueryStore shared through redis.  Records never expire; eviction
// is left to the redis server's policy.
type Redis struct {
	client redis.UniversalClient
	prefix string
}

// NewRedis returns a store keeping its records under prefix.
func NewRedis(client redis.UniversalClient, prefix string) *Redis {
	return &Redis{client: client, prefix: prefix}
}

func (s *Redis) key(version int, hash string) string {
	if s.prefix == "" {
		return "apq:q:" + key(version, hash)
	}
	return s.prefix + ":apq:q:" + key(version, hash)
}

// Exists implements apq.QueryStore.
func (s *Redis) Exists(ctx context.Context, version int, hash string) (bool, error) {
	count, err := s.client.Exists(ctx, s.key(version, hash)).Result()
	if err != nil {
		return false, errors.Wrap(err, "redis exists failed")
	}
	return count > 0, nil
}

// Get implements apq.QueryStore.
func (s *Redis) Get(ctx context.Context, version int, hash string) (string, bool, error) {
	query, err := s.client.Get(ctx, s.key(version, hash)).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, errors.Wrap(err, "redis get failed")
	}
	return query, true, nil
}

// CreateIfAbsent implements apq.QueryStore with SETNX, which redis applies
// atomically: exactly one caller sets the key.
func (s *Redis) CreateIfAbsent(ctx context.Context, version int, hash,
	query string) (bool, error) {

	created, err := s.client.SetNX(ctx, s.key(version, hash), query, 0).Result()
	if err != nil {
		return false, errors.Wrap(err, "redis setnx failed")
	}
	return created, nil
}

// Close is a no-op: the client belongs to the caller.
func (s *Redis) Close() error {
	return nil
}
