/*
 * SPDX-FileCopyrightText: © Hypermode Inc. <hello@hypermode.com>
 * SPDX-License-Identifier: Apache-2.0
 */

package apq

import (
	"github.com/hypermodeinc/graphql-apq/graphql/schema"
)

// Kind says which of the three APQ paths an Operation takes.
type Kind int

const (
	// Classic operations carry no persisted query reference.
	Classic Kind = iota
	// Register operations carry a reference and the query text to store under it.
	Register
	// Resolve operations carry only a reference, to be resolved from the store.
	Resolve
)

func (k Kind) String() string {
	switch k {
	case Classic:
		return "classic"
	case Register:
		return "register"
	case Resolve:
		return "resolve"
	default:
		return "unknown"
	}
}

// Operation is a request after normalization.  Query and QueryID are mutually
// exclusive: a classic operation executes Query, an APQ operation is
// identified by QueryID and Query stays empty.
type Operation struct {
	// Query is the body to execute as is.  Empty for APQ operations.
	Query string
	// QueryID is "<version>:<hash>" for APQ operations.
	QueryID string
	// QueryText is the body the client submitted, kept for storage.
	QueryText string
	// Ref is the persisted query reference, zero for classic operations.
	Ref Ref

	OperationName string
	Variables     map[string]interface{}
}

// Kind classifies op.
func (op Operation) Kind() Kind {
	switch {
	case op.Ref.IsZero():
		return Classic
	case op.QueryText != "":
		return Register
	default:
		return Resolve
	}
}

// Normalize canonicalizes req without modifying it.  The persistedQuery
// extension identifies the query when it is well formed, otherwise a well
// formed queryId does.  Without either, req is a classic request.
func Normalize(req *schema.Request) Operation {
	op := Operation{
		OperationName: req.OperationName,
		Variables:     req.Variables,
	}

	ref, ok := ExtractRef(req.Extensions)
	if !ok {
		ref, ok = ParseQueryID(req.QueryID)
	}
	if !ok {
		op.Query = req.Query
		op.QueryText = req.Query
		return op
	}

	op.Ref = ref
	op.QueryID = req.QueryID
	if op.QueryID == "" {
		op.QueryID = ref.QueryID()
	}
	op.QueryText = req.Query
	return op
}
