/*
 * SPDX-FileCopyrightText: © Hypermode Inc. <hello@hypermode.com>
 * SPDX-License-Identifier: Apache-2.0
 */

package schema

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDecodeRequests(t *testing.T) {
	reqs, batched, err := DecodeRequests(strings.NewReader(
		`{"query": "{ping}", "variables": {"n": 1}, "extensions": {"persistedQuery": {"version": 1}}}`))
	require.NoError(t, err)
	require.False(t, batched)
	require.Len(t, reqs, 1)
	require.Equal(t, "{ping}", reqs[0].Query)
	require.Equal(t, json.Number("1"), reqs[0].Variables["n"])
	require.Contains(t, reqs[0].Extensions, "persistedQuery")

	reqs, batched, err = DecodeRequests(strings.NewReader(
		` [{"query": "{a}"}, {"queryId": "1:abc"}]`))
	require.NoError(t, err)
	require.True(t, batched)
	require.Len(t, reqs, 2)
	require.Equal(t, "{a}", reqs[0].Query)
	require.Equal(t, "1:abc", reqs[1].QueryID)
}

func TestDecodeRequestsErrors(t *testing.T) {
	tests := map[string]string{
		"not json":    `{ping}`,
		"empty batch": `[]`,
		"null item":   `[{"query": "{a}"}, null]`,
		"wrong type":  `{"query": 5}`,
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			_, _, err := DecodeRequests(strings.NewReader(body))
			require.Error(t, err)
		})
	}
}

func TestDecodeJSONParam(t *testing.T) {
	var out map[string]interface{}
	require.NoError(t, DecodeJSONParam("variables", "", &out))
	require.Nil(t, out)

	require.NoError(t, DecodeJSONParam("variables", `{"id": 7}`, &out))
	require.Equal(t, json.Number("7"), out["id"])

	err := DecodeJSONParam("extensions", `{`, &out)
	require.Error(t, err)
	require.Contains(t, err.Error(), "malformed extensions")
}
