/*
 * SPDX-FileCopyrightText: © Hypermode Inc. <hello@hypermode.com>
 * SPDX-License-Identifier: Apache-2.0
 */

package resolve

import (
	"context"
	"encoding/json"
	"time"

	"github.com/golang/glog"
	"github.com/pkg/errors"
	otrace "go.opencensus.io/trace"
	"golang.org/x/sync/errgroup"

	"github.com/hypermodeinc/graphql-apq/graphql/api"
	"github.com/hypermodeinc/graphql-apq/graphql/apq"
	"github.com/hypermodeinc/graphql-apq/graphql/schema"
	"github.com/hypermodeinc/graphql-apq/x"
)

const (
	methodResolve      = "RequestResolver.Resolve"
	methodResolveBatch = "RequestResolver.ResolveBatch"

	errInternal         = "Internal error"
	errStoreUnavailable = "persisted query store unavailable"

	// DefaultBatchConcurrency bounds how many operations of one batch run at
	// the same time.
	DefaultBatchConcurrency = 8
)

// RequestResolver takes GraphQL requests through persisted query processing
// and, when there is a query to run, through the Executor.  A schema.Request
// always yields exactly one schema.Response.
type RequestResolver struct {
	schemas          apq.SchemaSource
	processor        *apq.Processor
	executor         Executor
	batchConcurrency int
}

// New creates a new RequestResolver.  A batchConcurrency <= 0 means
// DefaultBatchConcurrency.
func New(schemas apq.SchemaSource, processor *apq.Processor, executor Executor,
	batchConcurrency int) *RequestResolver {

	if batchConcurrency <= 0 {
		batchConcurrency = DefaultBatchConcurrency
	}
	return &RequestResolver{
		schemas:          schemas,
		processor:        processor,
		executor:         executor,
		batchConcurrency: batchConcurrency,
	}
}

// Resolve processes gqlReq against the schema registered as schemaID and
// returns a GraphQL response.  Resolve records any errors in the response's
// error field.
func (r *RequestResolver) Resolve(ctx context.Context, schemaID string,
	gqlReq *schema.Request) (resp *schema.Response) {

	span := otrace.FromContext(ctx)
	stop := x.SpanTimer(span, methodResolve)
	defer stop()

	if r == nil {
		glog.Errorf("Call to Resolve with nil RequestResolver")
		return schema.ErrorResponse(errors.New(errInternal))
	}

	startTime := time.Now()
	var failed error
	defer func() {
		x.RecordLatency(x.WithMethod(ctx, methodResolve), startTime, failed)
	}()
	defer api.PanicHandler(ctx, schemaID, gqlReq.Query, func(err error) {
		failed = err
		resp = schema.ErrorResponse(err)
	})

	op := apq.Normalize(gqlReq)
	if glog.V(3) {
		b, err := json.Marshal(op.Variables)
		if err != nil {
			glog.Infof("Failed to marshal variables for logging : %s", err)
		}
		glog.Infof("Resolving GQL request (%s): \n%s\nWith Variables: \n%s\n",
			op.Kind(), op.QueryText, string(b))
	}

	out, err := r.processor.Process(ctx, schemaID, op)
	if err != nil {
		failed = err
		glog.Errorf("Unable to process persisted query: %v", err)
		return schema.ErrorResponse(x.GqlErrorf(errStoreUnavailable))
	}

	switch out.Kind {
	case apq.Rejected:
		return &schema.Response{Errors: out.Errors}
	case apq.NotFound:
		resp := &schema.Response{Errors: out.Errors}
		if out.CacheTag != "" {
			resp.CacheTags = []string{out.CacheTag}
		}
		return resp
	}

	if out.Doc == nil {
		// Stored text was valid when stored; the schema may have changed since.
		sch, ok := r.schemas.Get(schemaID)
		if !ok {
			return schema.ErrorResponsef("Unknown GraphQL schema %q", schemaID)
		}
		if _, errs := sch.Check(out.Query, op.Variables); errs != nil {
			return &schema.Response{Errors: errs}
		}
	}

	return r.executor.Execute(ctx, &ExecRequest{
		Query:         out.Query,
		OperationName: op.OperationName,
		Variables:     op.Variables,
		Header:        gqlReq.Header,
	})
}

// ResolveBatch resolves every request of a batch.  The requests are
// independent of each other: an error in one doesn't affect the others, and
// responses come back in request order.
func (r *RequestResolver) ResolveBatch(ctx context.Context, schemaID string,
	gqlReqs []*schema.Request) []*schema.Response {

	span := otrace.FromContext(ctx)
	stop := x.SpanTimer(span, methodResolveBatch)
	defer stop()

	resps := make([]*schema.Response, len(gqlReqs))
	var g errgroup.Group
	g.SetLimit(r.batchConcurrency)
	for i, req := range gqlReqs {
		i, req := i, req
		g.Go(func() error {
			resps[i] = r.Resolve(ctx, schemaID, req)
			return nil
		})
	}
	x.Ignore(g.Wait())
	return resps
}
