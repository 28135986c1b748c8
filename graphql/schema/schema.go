/*
 * SPDX-FileCopyrightText: © Hypermode Inc. <hello@hypermode.com>
 * SPDX-License-Identifier: Apache-2.0
 */

package schema

import (
	"os"
	"sort"
	"sync"

	"github.com/dgraph-io/gqlparser/v2/ast"
	"github.com/dgraph-io/gqlparser/v2/parser"
	"github.com/dgraph-io/gqlparser/v2/validator"
	_ "github.com/dgraph-io/gqlparser/v2/validator/rules" // make gql validator init() all rules
	"github.com/pkg/errors"

	"github.com/hypermodeinc/graphql-apq/x"
)

// DefaultID is the id of the schema served when a request doesn't name one.
const DefaultID = "default"

// A Schema is a validated GraphQL schema that queries can be checked against.
// It never executes anything, it only answers whether a query document is
// valid for it.
type Schema struct {
	id     string
	schema *ast.Schema
}

// FromString builds a GraphQL Schema from input string, or returns any parsing
// or validation errors.
func FromString(id, input string) (*Schema, error) {
	// validator.Prelude includes a bunch of predefined types which help with schema introspection
	// queries, hence we include it as part of the schema.
	doc, gqlErr := parser.ParseSchemas(validator.Prelude, &ast.Source{Name: id, Input: input})
	if gqlErr != nil {
		return nil, errors.Wrapf(gqlErr, "while parsing GraphQL schema %s", id)
	}

	gqlSchema, gqlErr := validator.ValidateSchemaDocument(doc)
	if gqlErr != nil {
		return nil, errors.Wrapf(gqlErr, "while validating GraphQL schema %s", id)
	}

	if gqlSchema.Query == nil {
		return nil, errors.Errorf("GraphQL schema %s has no Query type", id)
	}

	return &Schema{id: id, schema: gqlSchema}, nil
}

// FromFile reads and builds the schema stored at path.
func FromFile(id, path string) (*Schema, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "while reading GraphQL schema %s", id)
	}
	return FromString(id, string(b))
}

// ID returns the id the schema is registered under.
func (s *Schema) ID() string {
	return s.id
}

// Parse parses query into a document.  Syntax errors come back as GraphQL
// errors carrying the location of the problem.
func (s *Schema) Parse(query string) (*ast.QueryDocument, x.GqlErrorList) {
	if query == "" {
		return nil, x.GqlErrorList{x.GqlErrorf("no query string supplied in request")}
	}

	doc, gqlErr := parser.ParseQuery(&ast.Source{Input: query})
	if gqlErr != nil {
		return nil, AsGQLErrors(gqlErr)
	}
	return doc, nil
}

// Validate runs the default GraphQL validation rules over doc.  An empty result
// means doc is valid against s.
func (s *Schema) Validate(doc *ast.QueryDocument,
	variables map[string]interface{}) x.GqlErrorList {

	listErr := validator.Validate(s.schema, doc, variables)
	if len(listErr) != 0 {
		return AsGQLErrors(listErr)
	}
	return nil
}

// Check parses and then validates query, stopping at the first stage that
// reports errors.
func (s *Schema) Check(query string,
	variables map[string]interface{}) (*ast.QueryDocument, x.GqlErrorList) {

	doc, errs := s.Parse(query)
	if errs != nil {
		return nil, errs
	}
	if errs := s.Validate(doc, variables); errs != nil {
		return nil, errs
	}
	return doc, nil
}

// A Registry holds the schemas a server answers for, by id.
type Registry struct {
	sync.RWMutex
	schemas map[string]*Schema
}

// NewRegistry returns a Registry holding schemas.
func NewRegistry(schemas ...*Schema) *Registry {
	r := &Registry{schemas: make(map[string]*Schema)}
	for _, s := range schemas {
		r.schemas[s.ID()] = s
	}
	return r
}

// Get returns the schema registered as id.
func (r *Registry) Get(id string) (*Schema, bool) {
	r.RLock()
	defer r.RUnlock()
	s, ok := r.schemas[id]
	return s, ok
}

// Set registers s, replacing any schema with the same id.
func (r *Registry) Set(s *Schema) {
	r.Lock()
	defer r.Unlock()
	r.schemas[s.ID()] = s
}

// IDs returns the registered schema ids in sorted order.
func (r *Registry) IDs() []string {
	r.RLock()
	defer r.RUnlock()
	ids := make([]string, 0, len(r.schemas))
	for id := range r.schemas {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
