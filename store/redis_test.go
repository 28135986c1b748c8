/*
 * SPDX-FileCopyrightText: © Hypermode Inc. <hello@hypermode.com>
 * SPDX-License-Identifier: Apache-2.0
 */

package store

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/hypermodeinc/graphql-apq/graphql/apq"
)

func newMiniRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestRedisStore(t *testing.T) {
	_, client := newMiniRedis(t)
	testQueryStore(t, NewRedis(client, "test"))
}

func TestRedisConcurrentCreate(t *testing.T) {
	_, client := newMiniRedis(t)
	testConcurrentCreate(t, NewRedis(client, ""))
}

func TestRedisKeyLayout(t *testing.T) {
	mr, client := newMiniRedis(t)
	s := NewRedis(client, "svc")
	hash := apq.Hash(pingQuery)

	created, err := s.CreateIfAbsent(context.Background(), 1, hash, pingQuery)
	require.NoError(t, err)
	require.True(t, created)

	got, err := mr.Get("svc:apq:q:1:" + hash)
	require.NoError(t, err)
	require.Equal(t, pingQuery, got)
	require.Zero(t, mr.TTL("svc:apq:q:1:"+hash))
}

func TestRedisUnavailable(t *testing.T) {
	mr, client := newMiniRedis(t)
	s := NewRedis(client, "")
	mr.Close()

	_, _, err := s.Get(context.Background(), 1, apq.Hash(pingQuery))
	require.Error(t, err)
	_, err = s.CreateIfAbsent(context.Background(), 1, apq.Hash(pingQuery), pingQuery)
	require.Error(t, err)
}
