/*
 * SPDX-FileCopyrightText: © Hypermode Inc. <hello@hypermode.com>
 * SPDX-License-Identifier: Apache-2.0
 */

package apq

import (
	"encoding/json"
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hypermodeinc/graphql-apq/graphql/schema"
)

func pqExtension(version int, hash string) map[string]interface{} {
	return map[string]interface{}{
		ExtensionKey: map[string]interface{}{
			"version":    json.Number(strconv.Itoa(version)),
			"sha256Hash": hash,
		},
	}
}

func TestNormalize(t *testing.T) {
	hash := Hash("{ping}")
	other := Hash("{pong}")
	vars := map[string]interface{}{"id": "0x1"}

	tests := map[string]struct {
		req  *schema.Request
		op   Operation
		kind Kind
	}{
		"classic": {
			req:  &schema.Request{Query: "{ping}", OperationName: "P", Variables: vars},
			op:   Operation{Query: "{ping}", QueryText: "{ping}", OperationName: "P", Variables: vars},
			kind: Classic,
		},
		"register": {
			req: &schema.Request{Query: "{ping}", Extensions: pqExtension(1, hash)},
			op: Operation{QueryID: "1:" + hash, QueryText: "{ping}",
				Ref: Ref{Version: 1, Hash: hash}},
			kind: Register,
		},
		"resolve from extension": {
			req:  &schema.Request{Extensions: pqExtension(1, hash)},
			op:   Operation{QueryID: "1:" + hash, Ref: Ref{Version: 1, Hash: hash}},
			kind: Resolve,
		},
		"resolve from queryId": {
			req:  &schema.Request{QueryID: "1:" + hash},
			op:   Operation{QueryID: "1:" + hash, Ref: Ref{Version: 1, Hash: hash}},
			kind: Resolve,
		},
		"extension wins over queryId": {
			req: &schema.Request{QueryID: "1:" + other, Extensions: pqExtension(1, hash)},
			op: Operation{QueryID: "1:" + other, Ref: Ref{Version: 1, Hash: hash}},
			kind: Resolve,
		},
		"malformed extension is classic": {
			req:  &schema.Request{Query: "{ping}", Extensions: pqExtension(1, "abc")},
			op:   Operation{Query: "{ping}", QueryText: "{ping}"},
			kind: Classic,
		},
		"malformed queryId is classic": {
			req:  &schema.Request{Query: "{ping}", QueryID: "nope"},
			op:   Operation{Query: "{ping}", QueryText: "{ping}"},
			kind: Classic,
		},
	}

	for name, tcase := range tests {
		t.Run(name, func(t *testing.T) {
			op := Normalize(tcase.req)
			require.Equal(t, tcase.op, op)
			require.Equal(t, tcase.kind, op.Kind())
		})
	}
}

func TestNormalizeLeavesRequestAlone(t *testing.T) {
	hash := Hash("{ping}")
	req := &schema.Request{Query: "{ping}", Extensions: pqExtension(1, hash)}
	op := Normalize(req)

	require.Empty(t, op.Query)
	require.Equal(t, "{ping}", req.Query)
	require.Empty(t, req.QueryID)
}
