/*
 * SPDX-FileCopyrightText: © Hypermode Inc. <hello@hypermode.com>
 * SPDX-License-Identifier: Apache-2.0
 */

package resolve

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/golang/glog"
	"github.com/pkg/errors"
	otrace "go.opencensus.io/trace"

	"github.com/hypermodeinc/graphql-apq/graphql/schema"
	"github.com/hypermodeinc/graphql-apq/x"
)

const methodExecute = "resolve.Execute"

// DefaultUpstreamTimeout bounds one upstream request.
const DefaultUpstreamTimeout = time.Minute

// maxUpstreamResponse bounds how much of an upstream response gets read.
const maxUpstreamResponse = 64 << 20

// An ExecRequest is a query that passed validation, ready to be executed.
type ExecRequest struct {
	Query         string
	OperationName string
	Variables     map[string]interface{}
	Header        http.Header
}

// An Executor runs validated queries.  Failures are reported as GraphQL
// errors in the response, never as a Go error.
type Executor interface {
	Execute(ctx context.Context, req *ExecRequest) *schema.Response
}

// ExecutorFunc is an adapter that allows us to build an Executor from a
// function.  Based on the http.HandlerFunc pattern.
type ExecutorFunc func(ctx context.Context, req *ExecRequest) *schema.Response

// Execute calls ef(ctx, req)
func (ef ExecutorFunc) Execute(ctx context.Context, req *ExecRequest) *schema.Response {
	return ef(ctx, req)
}

// UpstreamExecutor executes queries by POSTing them to an upstream GraphQL
// server and relaying its answer.
type UpstreamExecutor struct {
	client         *http.Client
	url            string
	forwardHeaders []string
}

// NewUpstreamExecutor returns an executor for the GraphQL server at url.  The
// named request headers are forwarded to it.  A nil client gets one with
// DefaultUpstreamTimeout.
func NewUpstreamExecutor(client *http.Client, url string,
	forwardHeaders []string) *UpstreamExecutor {

	if client == nil {
		client = &http.Client{Timeout: DefaultUpstreamTimeout}
	}
	return &UpstreamExecutor{client: client, url: url, forwardHeaders: forwardHeaders}
}

type upstreamRequest struct {
	Query         string                 `json:"query"`
	OperationName string                 `json:"operationName,omitempty"`
	Variables     map[string]interface{} `json:"variables,omitempty"`
}

type upstreamResponse struct {
	Data   json.RawMessage `json:"data,omitempty"`
	Errors x.GqlErrorList  `json:"errors,omitempty"`
}

// Execute implements Executor.
func (ue *UpstreamExecutor) Execute(ctx context.Context, req *ExecRequest) *schema.Response {
	span := otrace.FromContext(ctx)
	stop := x.SpanTimer(span, methodExecute)
	defer stop()

	b, err := json.Marshal(&upstreamRequest{
		Query:         req.Query,
		OperationName: req.OperationName,
		Variables:     req.Variables,
	})
	if err != nil {
		return schema.ErrorResponse(
			schema.GQLWrapf(err, "couldn't marshal request for upstream GraphQL server"))
	}

	body, status, err := ue.post(ctx, b, req.Header)
	if err != nil {
		glog.Warningf("Upstream GraphQL request to %s failed: %v", ue.url, err)
		return schema.ErrorResponse(
			schema.GQLWrapf(err, "upstream GraphQL request failed"))
	}

	var ur upstreamResponse
	if err := json.Unmarshal(body, &ur); err != nil {
		if status < 200 || status >= 300 {
			return schema.ErrorResponsef(
				"upstream GraphQL server responded with status %d", status)
		}
		return schema.ErrorResponse(
			schema.GQLWrapf(err, "couldn't unmarshal upstream GraphQL response"))
	}

	resp := &schema.Response{Errors: ur.Errors}
	resp.SetData(ur.Data)
	return resp
}

func (ue *UpstreamExecutor) post(ctx context.Context, body []byte,
	header http.Header) ([]byte, int, error) {

	hreq, err := http.NewRequestWithContext(ctx, http.MethodPost, ue.url, bytes.NewReader(body))
	if err != nil {
		return nil, 0, err
	}
	hreq.Header.Set("Content-Type", "application/json")
	hreq.Header.Set("Accept", "application/json")
	for _, h := range ue.forwardHeaders {
		if v := header.Values(h); len(v) > 0 {
			hreq.Header[http.CanonicalHeaderKey(h)] = v
		}
	}

	resp, err := ue.client.Do(hreq)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(io.LimitReader(resp.Body, maxUpstreamResponse))
	if err != nil {
		return nil, resp.StatusCode, errors.Wrap(err, "while reading upstream response")
	}
	return b, resp.StatusCode, nil
}
