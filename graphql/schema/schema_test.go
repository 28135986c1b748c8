/*
 * SPDX-FileCopyrightText: © Hypermode Inc. <hello@hypermode.com>
 * SPDX-License-Identifier: Apache-2.0
 */

package schema

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

const testSDL = `
type Query {
	ping: String
	user(id: ID!): User
}

type User {
	id: ID!
	name: String
}
`

func mustSchema(t *testing.T) *Schema {
	s, err := FromString(DefaultID, testSDL)
	require.NoError(t, err)
	return s
}

func TestFromString(t *testing.T) {
	s := mustSchema(t)
	require.Equal(t, DefaultID, s.ID())

	_, err := FromString("broken", "type Query {")
	require.Error(t, err)
	require.Contains(t, err.Error(), "while parsing GraphQL schema broken")

	_, err = FromString("unknown", "type Query { u: Unknown }")
	require.Error(t, err)
	require.Contains(t, err.Error(), "while validating GraphQL schema unknown")

	_, err = FromString("noquery", "type User { id: ID }")
	require.Error(t, err)
	require.Contains(t, err.Error(), "has no Query type")
}

func TestFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "schema.graphql")
	require.NoError(t, os.WriteFile(path, []byte(testSDL), 0644))

	s, err := FromFile("users", path)
	require.NoError(t, err)
	require.Equal(t, "users", s.ID())

	_, err = FromFile("missing", filepath.Join(t.TempDir(), "nope.graphql"))
	require.Error(t, err)
}

func TestCheck(t *testing.T) {
	s := mustSchema(t)

	tests := map[string]struct {
		query string
		vars  map[string]interface{}
		err   string
	}{
		"valid":           {query: "{ping}"},
		"valid with vars": {query: "query($id: ID!) { user(id: $id) { name } }",
			vars: map[string]interface{}{"id": "0x1"}},
		"empty":         {query: "", err: "no query string supplied in request"},
		"syntax error":  {query: "{ping", err: "<EOF>"},
		"unknown field": {query: "{nope}", err: `Cannot query field "nope" on type "Query".`},
		"undefined var": {query: "{ user(id: $id) { name } }",
			err: `Variable "$id" is not defined`},
	}

	for name, tcase := range tests {
		t.Run(name, func(t *testing.T) {
			doc, errs := s.Check(tcase.query, tcase.vars)
			if tcase.err == "" {
				require.Nil(t, errs)
				require.NotNil(t, doc)
				return
			}
			require.NotEmpty(t, errs)
			require.Nil(t, doc)
			require.Contains(t, errs.Error(), tcase.err)
		})
	}
}

func TestCheckReportsLocations(t *testing.T) {
	s := mustSchema(t)
	_, errs := s.Check("{\n  nope\n}", nil)
	require.Len(t, errs, 1)
	require.NotEmpty(t, errs[0].Locations)
	require.Equal(t, 2, errs[0].Locations[0].Line)
}

func TestRegistry(t *testing.T) {
	def := mustSchema(t)
	other, err := FromString("other", "type Query { other: Int }")
	require.NoError(t, err)

	r := NewRegistry(def)
	got, ok := r.Get(DefaultID)
	require.True(t, ok)
	require.Same(t, def, got)

	_, ok = r.Get("other")
	require.False(t, ok)

	r.Set(other)
	require.Equal(t, []string{DefaultID, "other"}, r.IDs())
}
