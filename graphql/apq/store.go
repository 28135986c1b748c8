/*
 * SPDX-FileCopyrightText: © Hypermode Inc. <hello@hypermode.com>
 * SPDX-License-Identifier: Apache-2.0
 */

package apq

import (
	"context"
)

// A QueryStore keeps persisted queries by (version, hash).  Records are
// immutable: there is no update and no delete.
type QueryStore interface {
	// Exists reports whether a query is stored under (version, hash).
	Exists(ctx context.Context, version int, hash string) (bool, error)

	// Get returns the query stored under (version, hash), if any.
	Get(ctx context.Context, version int, hash string) (string, bool, error)

	// CreateIfAbsent stores query under (version, hash) unless something is
	// already stored there.  Of any number of concurrent callers for the same
	// key exactly one sees created == true; the others get false and no error.
	CreateIfAbsent(ctx context.Context, version int, hash, query string) (bool, error)
}
