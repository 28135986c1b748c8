/*
 * SPDX-FileCopyrightText: © Hypermode Inc. <hello@hypermode.com>
 * SPDX-License-Identifier: Apache-2.0
 */

// Package api holds helpers shared by the GraphQL serving layers.
package api

import (
	"context"
	"runtime/debug"

	"github.com/golang/glog"
	"github.com/pkg/errors"

	"github.com/hypermodeinc/graphql-apq/x"
)

// maxLoggedQuery bounds how much of an offending query goes into the log.
const maxLoggedQuery = 4 << 10

// PanicHandler recovers from a panic while serving an operation against
// schemaID.  It logs the stack and the (truncated) query, counts the panic as
// an operation outcome and hands fn an error fit to be sent to the client.
//
// It must be called directly from a deferred call.
func PanicHandler(ctx context.Context, schemaID, query string, fn func(error)) {
	if err := recover(); err != nil {
		if len(query) > maxLoggedQuery {
			query = query[:maxLoggedQuery] + "..."
		}
		glog.Errorf("panic: %s.\n schema: %q\n query: %s\n trace: %s",
			err, schemaID, query, string(debug.Stack()))
		x.RecordOutcome(ctx, schemaID, "panic")

		fn(errors.Errorf("Internal Server Error - a panic was trapped.  " +
			"This indicates a bug in the persisted query server.  A stack trace was logged."))
	}
}
