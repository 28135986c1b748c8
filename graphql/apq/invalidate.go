/*
 * SPDX-FileCopyrightText: © Hypermode Inc. <hello@hypermode.com>
 * SPDX-License-Identifier: Apache-2.0
 */

package apq

import (
	"context"

	"github.com/golang/glog"
	"go.opencensus.io/stats"

	"github.com/hypermodeinc/graphql-apq/x"
)

// An Invalidator drops every cached response carrying any of tags.
type Invalidator interface {
	Invalidate(ctx context.Context, tags []string) error
}

// Bridge turns a newly stored query into an invalidation of the negative cache
// entries for its hash.
type Bridge struct {
	invalidator Invalidator
	tagLength   int
}

// NewBridge returns a Bridge invalidating through inv, with cache tags keeping
// tagLength hash characters.  A nil inv makes Invalidate a no-op.
func NewBridge(inv Invalidator, tagLength int) *Bridge {
	return &Bridge{invalidator: inv, tagLength: tagLength}
}

// Tag returns the cache tag for hash.
func (b *Bridge) Tag(hash string) string {
	if b == nil {
		return CacheTag(hash, DefaultTagLength)
	}
	return CacheTag(hash, b.tagLength)
}

// Invalidate invalidates the cache tag for hash.  A failure is logged and
// returned, but the stored query stays: a stale negative entry expires on its
// own.
func (b *Bridge) Invalidate(ctx context.Context, hash string) error {
	if b == nil || b.invalidator == nil {
		return nil
	}
	tag := b.Tag(hash)
	stats.Record(ctx, x.NumInvalidations.M(1))
	if err := b.invalidator.Invalidate(ctx, []string{tag}); err != nil {
		glog.Warningf("Unable to invalidate cache tag %s: %v", tag, err)
		return err
	}
	glog.V(2).Infof("Invalidated cache tag %s", tag)
	return nil
}
