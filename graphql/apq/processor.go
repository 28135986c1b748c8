/*
 * SPDX-FileCopyrightText: © Hypermode Inc. <hello@hypermode.com>
 * SPDX-License-Identifier: Apache-2.0
 */

package apq

import (
	"context"
	"fmt"

	"github.com/dgraph-io/gqlparser/v2/ast"
	"github.com/dustin/go-humanize"
	"github.com/golang/glog"
	"github.com/pkg/errors"
	"go.opencensus.io/stats"
	"go.opencensus.io/trace"

	"github.com/hypermodeinc/graphql-apq/graphql/schema"
	"github.com/hypermodeinc/graphql-apq/x"
)

const (
	// NotFoundMessage is the error message APQ clients react to by resending
	// the query with its text.
	NotFoundMessage = "PersistedQueryNotFound"
	// NotFoundCode is the extensions.code sent along with NotFoundMessage.
	NotFoundCode = "PERSISTED_QUERY_NOT_FOUND"

	// DefaultMaxQuerySize bounds the text stored for one persisted query.
	DefaultMaxQuerySize = 256 << 10
)

// OutcomeKind is the result class of processing one operation.
type OutcomeKind int

const (
	// Resolved means there is a query ready to execute.
	Resolved OutcomeKind = iota
	// Rejected means the query failed to parse or validate, or the reference
	// didn't check out.  Nothing was stored.
	Rejected
	// NotFound means a hash-only request named a hash that isn't stored.
	NotFound
)

func (k OutcomeKind) String() string {
	switch k {
	case Resolved:
		return "resolved"
	case Rejected:
		return "rejected"
	case NotFound:
		return "not_found"
	default:
		return "unknown"
	}
}

// Outcome is what Process decided for one operation.
type Outcome struct {
	Kind OutcomeKind

	// Query is the text to execute when Kind is Resolved.
	Query string
	// Doc is Query parsed and validated against the schema, when Process had
	// to do that already.  Nil means the caller still has to.
	Doc *ast.QueryDocument
	// Created is set when this operation stored its query.
	Created bool

	// Errors holds the GraphQL errors for Rejected and NotFound outcomes.
	Errors x.GqlErrorList
	// CacheTag tags a NotFound outcome so that a cached copy of it can be
	// dropped once the hash gets stored.
	CacheTag string
}

// A StoreError is a failure of the QueryStore.  The operation can't go on
// without the store, so it is reported as a request error rather than an
// outcome.
type StoreError struct {
	Ref Ref
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("persisted query store unavailable for %s: %v", e.Ref, e.Err)
}

// Cause returns the underlying store error, pkg/errors style.
func (e *StoreError) Cause() error { return e.Err }

// Unwrap returns the underlying store error.
func (e *StoreError) Unwrap() error { return e.Err }

// A SchemaSource looks up schemas by id.
type SchemaSource interface {
	Get(id string) (*schema.Schema, bool)
}

// Options tune a Processor.
type Options struct {
	// VerifyHash rejects registrations whose text doesn't hash to the
	// reference they are registered under.
	VerifyHash bool
	// MaxQuerySize rejects registrations with longer query text.  Zero means
	// DefaultMaxQuerySize.
	MaxQuerySize uint64
}

// Processor decides, for each operation, whether to store, resolve or reject.
// It holds no per request state and is safe for concurrent use.
type Processor struct {
	schemas SchemaSource
	store   QueryStore
	bridge  *Bridge
	opts    Options
}

// NewProcessor returns a Processor validating against schemas, persisting into
// store and invalidating negative cache entries through bridge.
func NewProcessor(schemas SchemaSource, store QueryStore, bridge *Bridge,
	opts Options) *Processor {

	if opts.MaxQuerySize == 0 {
		opts.MaxQuerySize = DefaultMaxQuerySize
	}
	return &Processor{
		schemas: schemas,
		store:   store,
		bridge:  bridge,
		opts:    opts,
	}
}

// Process runs op against the schema registered as schemaID.  Parse and
// validation failures come back as a Rejected outcome; the error return is
// only for store failures.
func (p *Processor) Process(ctx context.Context, schemaID string, op Operation) (Outcome, error) {
	ctx, span := trace.StartSpan(ctx, "apq.Process")
	defer span.End()

	sch, ok := p.schemas.Get(schemaID)
	if !ok {
		return rejected(x.GqlErrorf("Unknown GraphQL schema %q", schemaID)), nil
	}

	var out Outcome
	var err error
	kind := op.Kind()
	span.AddAttributes(trace.StringAttribute("kind", kind.String()))

	switch kind {
	case Classic:
		out = p.classic(sch, op)
	case Register:
		out, err = p.register(ctx, sch, op)
	case Resolve:
		out, err = p.resolve(ctx, op)
	}

	label := out.Kind.String()
	switch {
	case err != nil:
		label = "error"
		span.SetStatus(trace.Status{Code: trace.StatusCodeUnavailable, Message: err.Error()})
	case out.Created:
		label = "stored"
	case kind != Classic && out.Kind == Resolved:
		label = "hit"
	}
	x.RecordOutcome(ctx, schemaID, label)
	return out, err
}

func (p *Processor) classic(sch *schema.Schema, op Operation) Outcome {
	doc, errs := sch.Check(op.Query, op.Variables)
	if errs != nil {
		return Outcome{Kind: Rejected, Errors: errs}
	}
	return Outcome{Kind: Resolved, Query: op.Query, Doc: doc}
}

// register validates op.QueryText and stores it under op.Ref unless something
// is stored there already.  A query that fails any check is never stored.
func (p *Processor) register(ctx context.Context, sch *schema.Schema,
	op Operation) (Outcome, error) {

	ref := op.Ref
	if p.opts.VerifyHash && !ref.Matches(op.QueryText) {
		return rejected(x.GqlErrorf("provided sha does not match query")), nil
	}
	if size := uint64(len(op.QueryText)); size > p.opts.MaxQuerySize {
		return rejected(x.GqlErrorf("query of %s exceeds the %s limit for persisted queries",
			humanize.IBytes(size), humanize.IBytes(p.opts.MaxQuerySize))), nil
	}

	doc, errs := sch.Check(op.QueryText, op.Variables)
	if errs != nil {
		glog.V(2).Infof("Not storing persisted query %s: %v", ref, errs)
		return Outcome{Kind: Rejected, Errors: errs}, nil
	}

	// The write must not be lost to a client going away: the query is already
	// validated and storing it again later would be a no-op anyway.
	wctx := context.WithoutCancel(ctx)

	exists, err := p.store.Exists(wctx, ref.Version, ref.Hash)
	if err != nil {
		return Outcome{}, &StoreError{Ref: ref, Err: errors.Wrap(err, "while checking")}
	}
	out := Outcome{Kind: Resolved, Query: op.QueryText, Doc: doc}
	if exists {
		return out, nil
	}

	created, err := p.store.CreateIfAbsent(wctx, ref.Version, ref.Hash, op.QueryText)
	if err != nil {
		return Outcome{}, &StoreError{Ref: ref, Err: errors.Wrap(err, "while storing")}
	}
	if !created {
		return out, nil
	}

	out.Created = true
	stats.Record(ctx, x.NumRegistrations.M(1))
	glog.V(2).Infof("Stored persisted query %s", ref)
	// Best effort: the query is stored either way.
	x.Ignore(p.bridge.Invalidate(ctx, ref.Hash))
	return out, nil
}

func (p *Processor) resolve(ctx context.Context, op Operation) (Outcome, error) {
	ref := op.Ref
	query, ok, err := p.store.Get(ctx, ref.Version, ref.Hash)
	if err != nil {
		return Outcome{}, &StoreError{Ref: ref, Err: errors.Wrap(err, "while looking up")}
	}
	if !ok {
		glog.V(2).Infof("Persisted query %s not found", ref)
		return Outcome{
			Kind:     NotFound,
			Errors:   x.GqlErrorList{x.GqlErrorf(NotFoundMessage).WithCode(NotFoundCode)},
			CacheTag: p.bridge.Tag(ref.Hash),
		}, nil
	}
	return Outcome{Kind: Resolved, Query: query}, nil
}

func rejected(err *x.GqlError) Outcome {
	return Outcome{Kind: Rejected, Errors: x.GqlErrorList{err}}
}
