/*
 * SPDX-FileCopyrightText: © Hypermode Inc. <hello@hypermode.com>
 * SPDX-License-Identifier: Apache-2.0
 */

package web

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/stretchr/testify/require"

	"github.com/hypermodeinc/graphql-apq/graphql/apq"
	"github.com/hypermodeinc/graphql-apq/graphql/cache"
	"github.com/hypermodeinc/graphql-apq/graphql/resolve"
	"github.com/hypermodeinc/graphql-apq/graphql/schema"
	"github.com/hypermodeinc/graphql-apq/store"
)

type gqlResponse struct {
	Data       map[string]interface{} `json:"data"`
	Errors     []struct {
		Message    string                 `json:"message"`
		Extensions map[string]interface{} `json:"extensions"`
	} `json:"errors"`
	Extensions map[string]interface{} `json:"extensions"`
}

type testServer struct {
	*httptest.Server
	cache    *cache.Memory
	executed int32
}

func newTestServer(t *testing.T) *testServer {
	def, err := schema.FromString(schema.DefaultID, "type Query { ping: String }")
	require.NoError(t, err)
	users, err := schema.FromString("users", "type Query { user(id: ID!): String }")
	require.NoError(t, err)
	schemas := schema.NewRegistry(def, users)

	st, err := store.OpenBadger(store.BadgerOptions{InMemory: true})
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, st.Close()) })
	c, err := cache.NewMemory(1 << 20)
	require.NoError(t, err)
	t.Cleanup(c.Close)

	ts := &testServer{cache: c}
	exec := resolve.ExecutorFunc(func(ctx context.Context, req *resolve.ExecRequest) *schema.Response {
		atomic.AddInt32(&ts.executed, 1)
		resp := &schema.Response{}
		resp.SetData(json.RawMessage(`{"ping": "pong"}`))
		return resp
	})

	proc := apq.NewProcessor(schemas, st, apq.NewBridge(c, 0), apq.Options{VerifyHash: true})
	srv := NewServer(resolve.New(schemas, proc, exec, 2), Options{
		Cache:       c,
		NegativeTTL: time.Minute,
	})

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	srv.Mount(r)
	ts.Server = httptest.NewServer(r)
	t.Cleanup(ts.Close)
	return ts
}

func pqParam(hash string) string {
	return `{"persistedQuery":{"version":1,"sha256Hash":"` + hash + `"}}`
}

func (ts *testServer) get(t *testing.T, path string, params url.Values) (*http.Response, gqlResponse) {
	resp, err := http.Get(ts.URL + path + "?" + params.Encode())
	require.NoError(t, err)
	return resp, decode(t, resp)
}

func (ts *testServer) post(t *testing.T, path, body string) (*http.Response, []byte) {
	resp, err := http.Post(ts.URL+path, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, b
}

func decode(t *testing.T, resp *http.Response) gqlResponse {
	defer resp.Body.Close()
	var out gqlResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func TestGetRoundTrip(t *testing.T) {
	ts := newTestServer(t)
	hash := apq.Hash("{ping}")
	hashOnly := url.Values{"extensions": {pqParam(hash)}}

	resp, out := ts.get(t, "/graphql", hashOnly)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, out.Errors, 1)
	require.Equal(t, apq.NotFoundMessage, out.Errors[0].Message)
	require.Equal(t, apq.CacheTag(hash, 0), resp.Header.Get("Cache-Tags"))
	require.Equal(t, "public, max-age=60", resp.Header.Get("Cache-Control"))
	require.NotEmpty(t, out.Extensions["requestID"])
	ts.cache.Wait()

	// Served from the negative cache the second time.
	resp, out = ts.get(t, "/graphql", hashOnly)
	require.Equal(t, "HIT", resp.Header.Get("X-Cache"))
	require.Equal(t, apq.CacheTag(hash, 0), resp.Header.Get("Cache-Tags"))
	require.Equal(t, apq.NotFoundMessage, out.Errors[0].Message)

	resp, out = ts.get(t, "/graphql", url.Values{
		"query": {"{ping}"}, "extensions": {pqParam(hash)}})
	require.Empty(t, out.Errors)
	require.Equal(t, "pong", out.Data["ping"])
	require.Empty(t, resp.Header.Get("Cache-Tags"))

	// The registration dropped the cached negative response.
	resp, out = ts.get(t, "/graphql", hashOnly)
	require.Empty(t, resp.Header.Get("X-Cache"))
	require.Empty(t, out.Errors)
	require.Equal(t, "pong", out.Data["ping"])
	require.Equal(t, int32(2), atomic.LoadInt32(&ts.executed))
}

func TestGetQueryID(t *testing.T) {
	ts := newTestServer(t)
	hash := apq.Hash("{ping}")

	_, out := ts.get(t, "/graphql", url.Values{"queryId": {"1:" + hash}})
	require.Len(t, out.Errors, 1)
	require.Equal(t, apq.NotFoundCode, out.Errors[0].Extensions["code"])
}

func TestPostBatch(t *testing.T) {
	ts := newTestServer(t)
	unknown := apq.Hash("{ other }")

	resp, body := ts.post(t, "/graphql", `[
		{"query": "{ping}"},
		{"extensions": `+pqParam(unknown)+`},
		{"query": "{ nope }"}
	]`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	// POST responses are never cached by intermediaries.
	require.Empty(t, resp.Header.Get("Cache-Control"))

	var outs []gqlResponse
	require.NoError(t, json.Unmarshal(body, &outs))
	require.Len(t, outs, 3)
	require.Equal(t, "pong", outs[0].Data["ping"])
	require.Equal(t, apq.NotFoundMessage, outs[1].Errors[0].Message)
	require.Contains(t, outs[2].Errors[0].Message, `Cannot query field "nope"`)
}

func TestPostSingle(t *testing.T) {
	ts := newTestServer(t)
	_, body := ts.post(t, "/graphql", `{"query": "{ping}"}`)
	var out gqlResponse
	require.NoError(t, json.Unmarshal(body, &out))
	require.Equal(t, "pong", out.Data["ping"])
}

func TestNamedSchema(t *testing.T) {
	ts := newTestServer(t)

	_, body := ts.post(t, "/graphql/users", `{"query": "{ user(id: 1) }"}`)
	var out gqlResponse
	require.NoError(t, json.Unmarshal(body, &out))
	require.Empty(t, out.Errors)

	_, body = ts.post(t, "/graphql/nope", `{"query": "{ping}"}`)
	out = gqlResponse{}
	require.NoError(t, json.Unmarshal(body, &out))
	require.Contains(t, out.Errors[0].Message, `Unknown GraphQL schema "nope"`)
}

func TestBadRequests(t *testing.T) {
	ts := newTestServer(t)

	tests := map[string]struct {
		method, contentType, body, msg string
	}{
		"bad method":       {http.MethodPut, "application/json", `{}`, "Unrecognised request method"},
		"bad content type": {http.MethodPost, "text/plain", `{}`, "Unrecognised Content-Type"},
		"bad json":         {http.MethodPost, "application/json", `{`, "Not a valid GraphQL request body"},
		"empty batch":      {http.MethodPost, "application/json", `[]`, "Empty batch"},
	}
	for name, tcase := range tests {
		t.Run(name, func(t *testing.T) {
			req, err := http.NewRequest(tcase.method, ts.URL+"/graphql", strings.NewReader(tcase.body))
			require.NoError(t, err)
			req.Header.Set("Content-Type", tcase.contentType)
			resp, err := http.DefaultClient.Do(req)
			require.NoError(t, err)
			out := decode(t, resp)
			require.Len(t, out.Errors, 1)
			require.Contains(t, out.Errors[0].Message, tcase.msg)
		})
	}

	_, out := ts.get(t, "/graphql", url.Values{"query": {"{ping}"}, "variables": {"{"}})
	require.Contains(t, out.Errors[0].Message, "malformed variables")
}

func TestGzip(t *testing.T) {
	ts := newTestServer(t)

	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	_, err := zw.Write([]byte(`{"query": "{ping}"}`))
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	req, err := http.NewRequest(http.MethodPost, ts.URL+"/graphql", &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Content-Encoding", "gzip")
	req.Header.Set("Accept-Encoding", "gzip")

	// A custom transport keeps the client from transparently decompressing.
	resp, err := (&http.Transport{DisableCompression: true}).RoundTrip(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, "gzip", resp.Header.Get("Content-Encoding"))

	zr, err := gzip.NewReader(resp.Body)
	require.NoError(t, err)
	var out gqlResponse
	require.NoError(t, json.NewDecoder(zr).Decode(&out))
	require.Equal(t, "pong", out.Data["ping"])
}

func TestCorsPreflight(t *testing.T) {
	ts := newTestServer(t)
	req, err := http.NewRequest(http.MethodOptions, ts.URL+"/graphql", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestPanicRecovered(t *testing.T) {
	var s *Server
	rec := httptest.NewRecorder()
	recoveryHandler(commonHeaders(s)).ServeHTTP(rec,
		httptest.NewRequest(http.MethodGet, "/graphql", nil))

	var out gqlResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	require.Contains(t, out.Errors[0].Message, "a panic was trapped")
}
