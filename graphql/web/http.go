/*
 * SPDX-FileCopyrightText: © Hypermode Inc. <hello@hypermode.com>
 * SPDX-License-Identifier: Apache-2.0
 */

// Package web serves persisted query aware GraphQL over HTTP.
package web

import (
	"bytes"
	"compress/gzip"
	"context"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dgryski/go-farm"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/golang/glog"
	"github.com/pkg/errors"
	"go.opencensus.io/stats"
	"go.opencensus.io/trace"

	"github.com/hypermodeinc/graphql-apq/graphql/api"
	"github.com/hypermodeinc/graphql-apq/graphql/apq"
	"github.com/hypermodeinc/graphql-apq/graphql/cache"
	"github.com/hypermodeinc/graphql-apq/graphql/resolve"
	"github.com/hypermodeinc/graphql-apq/graphql/schema"
	"github.com/hypermodeinc/graphql-apq/x"
)

// SchemaParam is the route parameter naming the schema to serve.
const SchemaParam = "schema"

// Options tune a Server.
type Options struct {
	// Cache holds PersistedQueryNotFound responses to hash-only GET requests.
	// Nil disables the negative cache.
	Cache cache.ResponseCache
	// NegativeTTL is how long a cached negative response lives, and the
	// max-age sent along with it.
	NegativeTTL time.Duration
	// TagLength is the number of hash characters in a cache tag, as given to
	// apq.NewBridge.
	TagLength int
}

// Server serves GraphQL over HTTP through a RequestResolver.
type Server struct {
	resolver *resolve.RequestResolver
	opts     Options
	handler  http.Handler
}

// NewServer returns a Server resolving requests with resolver.
func NewServer(resolver *resolve.RequestResolver, opts Options) *Server {
	s := &Server{resolver: resolver, opts: opts}
	s.handler = recoveryHandler(commonHeaders(s))
	return s
}

// HTTPHandler returns the http.Handler serving GraphQL, with panics trapped
// and the common headers set.
func (s *Server) HTTPHandler() http.Handler {
	return s.handler
}

// Mount routes /graphql to the default schema and /graphql/{schema} to the
// named one.
func (s *Server) Mount(r chi.Router) {
	r.Handle("/graphql", s.handler)
	r.Handle("/graphql/{"+SchemaParam+"}", s.handler)
}

// write chooses between the http response writer and gzip writer
// and sends the body using that.
func write(w http.ResponseWriter, body []byte, acceptGzip bool) {
	var out io.Writer = w

	// If the receiver accepts gzip, then we would update the writer
	// and send gzipped content instead.
	if acceptGzip {
		w.Header().Set("Content-Encoding", "gzip")
		gzw := gzip.NewWriter(w)
		defer gzw.Close()
		out = gzw
	}

	if _, err := out.Write(body); err != nil {
		glog.Error(err)
	}
}

func acceptsGzip(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept-Encoding"), "gzip")
}

func schemaID(r *http.Request) string {
	if id := chi.URLParam(r, SchemaParam); id != "" {
		return id
	}
	return schema.DefaultID
}

// ServeHTTP handles single and batched GraphQL requests.  It always writes a
// valid GraphQL JSON response to w: a single object for a single request, an
// array in request order for a batch.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx, span := trace.StartSpan(r.Context(), "handler")
	defer span.End()

	if s == nil || s.resolver == nil {
		panic("graphql server not initialised")
	}

	sid := schemaID(r)
	reqID := chimw.GetReqID(ctx)
	span.AddAttributes(trace.StringAttribute("schema", sid))

	var negKey string
	if r.Method == http.MethodGet && s.negativeCacheEnabled() {
		negKey = negativeCacheKey(sid, r.URL.RawQuery)
		if body, ok := s.cachedNegative(ctx, negKey); ok {
			stats.Record(ctx, x.NumNegativeCacheHits.M(1))
			w.Header().Set("X-Cache", "HIT")
			s.setCacheHeaders(w, r, nil)
			write(w, body, acceptsGzip(r))
			return
		}
	}

	gqlReqs, batched, err := getRequests(r)
	if err != nil {
		res := schema.ErrorResponse(err)
		res.Extensions = extensions(reqID)
		body, _ := res.Output()
		write(w, body, acceptsGzip(r))
		return
	}

	if batched {
		resps := s.resolver.ResolveBatch(ctx, sid, gqlReqs)
		var buf bytes.Buffer
		buf.WriteByte('[')
		for i, res := range resps {
			if i > 0 {
				buf.WriteByte(',')
			}
			res.Extensions = extensions(reqID)
			body, _ := res.Output()
			buf.Write(body)
		}
		buf.WriteByte(']')
		write(w, buf.Bytes(), acceptsGzip(r))
		return
	}

	res := s.resolver.Resolve(ctx, sid, gqlReqs[0])
	if len(res.CacheTags) > 0 {
		w.Header().Set("Cache-Tags", strings.Join(res.CacheTags, ","))
		if negKey != "" {
			// Cached bodies carry no request id.
			body, _ := res.Output()
			s.storeNegative(ctx, negKey, body, res.CacheTags)
			s.setCacheHeaders(w, r, res.CacheTags)
		}
	}
	res.Extensions = extensions(reqID)
	body, _ := res.Output()
	write(w, body, acceptsGzip(r))
}

func extensions(reqID string) *schema.Extensions {
	if reqID == "" {
		return nil
	}
	return &schema.Extensions{RequestID: reqID}
}

func (s *Server) negativeCacheEnabled() bool {
	return s.opts.Cache != nil && s.opts.NegativeTTL > 0
}

// negativeCacheKey keys a GET request by schema and its raw query string, so
// only byte identical requests share an entry.
func negativeCacheKey(schemaID, rawQuery string) string {
	return strconv.FormatUint(farm.Fingerprint64([]byte(schemaID+"?"+rawQuery)), 16)
}

func (s *Server) cachedNegative(ctx context.Context, key string) ([]byte, bool) {
	body, ok, err := s.opts.Cache.Get(ctx, key)
	if err != nil {
		glog.Warningf("Unable to read response cache: %v", err)
		return nil, false
	}
	return body, ok
}

func (s *Server) storeNegative(ctx context.Context, key string, body []byte, tags []string) {
	if err := s.opts.Cache.Set(ctx, key, body, tags, s.opts.NegativeTTL); err != nil {
		glog.Warningf("Unable to write response cache: %v", err)
	}
}

// setCacheHeaders marks a negative response as cacheable by intermediaries
// for NegativeTTL.  Tags are known on a miss; on a hit the cached body has
// them, so they are recovered from the request.
func (s *Server) setCacheHeaders(w http.ResponseWriter, r *http.Request, tags []string) {
	if tags == nil {
		if tag := tagFromQuery(r, s.opts.TagLength); tag != "" {
			tags = []string{tag}
		}
	}
	if len(tags) > 0 {
		w.Header().Set("Cache-Tags", strings.Join(tags, ","))
	}
	w.Header().Set("Cache-Control",
		"public, max-age="+strconv.Itoa(int(s.opts.NegativeTTL/time.Second)))
}

type gzreadCloser struct {
	*gzip.Reader
	io.Closer
}

func (gz gzreadCloser) Close() error {
	err := gz.Reader.Close()
	if err != nil {
		return err
	}
	return gz.Closer.Close()
}

// getRequests decodes the GraphQL requests carried by r.  GET requests carry
// exactly one; POST bodies may carry a batch.
func getRequests(r *http.Request) ([]*schema.Request, bool, error) {
	if r.Header.Get("Content-Encoding") == "gzip" {
		zr, err := gzip.NewReader(r.Body)
		if err != nil {
			return nil, false, errors.Wrap(err, "Unable to parse gzip")
		}
		r.Body = gzreadCloser{zr, r.Body}
	}

	switch r.Method {
	case http.MethodGet:
		gqlReq, err := getRequestFromQuery(r)
		if err != nil {
			return nil, false, err
		}
		return []*schema.Request{gqlReq}, false, nil
	case http.MethodPost:
		mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
		if err != nil {
			return nil, false, errors.Wrap(err, "unable to parse media type")
		}

		switch mediaType {
		case "application/json":
			gqlReqs, batched, err := schema.DecodeRequests(r.Body)
			if err != nil {
				return nil, false, err
			}
			for _, gqlReq := range gqlReqs {
				gqlReq.Header = r.Header
			}
			return gqlReqs, batched, nil
		default:
			// https://graphql.org/learn/serving-over-http/#post-request says:
			// "A standard GraphQL POST request should use the application/json
			// content type ..."
			return nil, false, errors.New(
				"Unrecognised Content-Type.  Please use application/json for GraphQL requests")
		}
	default:
		return nil, false,
			errors.New("Unrecognised request method.  Please use GET or POST for GraphQL requests")
	}
}

func getRequestFromQuery(r *http.Request) (*schema.Request, error) {
	query := r.URL.Query()
	gqlReq := &schema.Request{
		Query:         query.Get("query"),
		QueryID:       query.Get("queryId"),
		OperationName: query.Get("operationName"),
		Header:        r.Header,
	}
	if err := schema.DecodeJSONParam("variables", query.Get("variables"),
		&gqlReq.Variables); err != nil {
		return nil, err
	}
	if err := schema.DecodeJSONParam("extensions", query.Get("extensions"),
		&gqlReq.Extensions); err != nil {
		return nil, err
	}
	return gqlReq, nil
}

// tagFromQuery returns the cache tag of the persisted query named by a GET
// request, if it names one.
func tagFromQuery(r *http.Request, tagLength int) string {
	gqlReq, err := getRequestFromQuery(r)
	if err != nil {
		return ""
	}
	if op := apq.Normalize(gqlReq); !op.Ref.IsZero() {
		return apq.CacheTag(op.Ref.Hash, tagLength)
	}
	return ""
}

func commonHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers",
			"Content-Type, Content-Length, Accept-Encoding, Authorization")
		w.Header().Set("Content-Type", "application/json")

		if r.Method == http.MethodOptions {
			return
		}
		next.ServeHTTP(w, r)
	})
}

func recoveryHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer api.PanicHandler(r.Context(), chi.URLParam(r, "schema"), r.URL.RawQuery,
			func(err error) {
				body, _ := schema.ErrorResponse(err).Output()
				write(w, body, acceptsGzip(r))
			})

		next.ServeHTTP(w, r)
	})
}
