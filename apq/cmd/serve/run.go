/*
 * SPDX-FileCopyrightText: © Hypermode Inc. <hello@hypermode.com>
 * SPDX-License-Identifier: Apache-2.0
 */

// Package serve is the http server for persisted GraphQL queries.
//
// GraphQL servers should serve both GET and POST
// https://graphql.org/learn/serving-over-http/
//
// GET should be like
// http://myapi/graphql?extensions={"persistedQuery":{"version":1,"sha256Hash":"..."}}
//
// POST should have a json content body like
//
//	{
//	  "query": "...",
//	  "operationName": "...",
//	  "variables": { "myVariable": "someValue", ... },
//	  "extensions": { "persistedQuery": { "version": 1, "sha256Hash": "..." } }
//	}
//
// or an array of such objects for a batch.
//
// GraphQL servers should return 200 (even on errors), and the result body
// should be json.  Queries that pass validation are executed by the upstream
// GraphQL server and its data and errors relayed.
package serve

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/golang/glog"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"go.opencensus.io/trace"
	"go.opencensus.io/zpages"

	"github.com/hypermodeinc/graphql-apq/apq/cmd/backend"
	"github.com/hypermodeinc/graphql-apq/graphql/resolve"
	"github.com/hypermodeinc/graphql-apq/graphql/web"
	"github.com/hypermodeinc/graphql-apq/x"
)

// Serve is the sub-command invoked when running "apq serve".
var Serve x.SubCommand

func init() {
	Serve.Cmd = &cobra.Command{
		Use:   "serve",
		Short: "Run the persisted query GraphQL HTTP API",
		Run: func(cmd *cobra.Command, args []string) {
			if err := run(); err != nil {
				if glog.V(2) {
					fmt.Printf("Error : %+v\n", err)
				} else {
					fmt.Printf("Error : %s\n", err)
				}
				os.Exit(1)
			}
		},
	}
	Serve.EnvPrefix = "APQ_SERVE"

	flags := Serve.Cmd.Flags()
	flags.IntP("port", "p", 8080, "Port on which to run the HTTP service")
	flags.Bool("bindall", true,
		"Use 0.0.0.0 instead of localhost to bind to all addresses on local machine.")
	flags.String("upstream", "http://localhost:8081/graphql",
		"URL of the GraphQL server validated queries are executed by.")
	flags.StringSlice("forward_headers", []string{"Authorization"},
		"Request headers forwarded to the upstream GraphQL server.")
	flags.Duration("upstream_timeout", resolve.DefaultUpstreamTimeout,
		"Timeout of one upstream request.")
	flags.Int("batch_concurrency", resolve.DefaultBatchConcurrency,
		"Operations of one batch executed at the same time.")
	flags.Duration("shutdown_timeout", 10*time.Second,
		"How long in-flight requests get to finish on shutdown.")

	// OpenCensus flags.
	flags.Float64("trace", 0.01, "The ratio of queries to trace.")

	backend.RegisterFlags(flags)
}

// Router builds the HTTP routes served for b.
func Router(b *backend.Backend, executor resolve.Executor, batchConcurrency int) (
	http.Handler, error) {

	resolver := resolve.New(b.Schemas, b.Processor, executor, batchConcurrency)
	server := web.NewServer(resolver, web.Options{
		Cache:       b.Cache,
		NegativeTTL: b.NegativeTTL,
		TagLength:   b.TagLength,
	})

	metrics, err := x.MetricsHandler()
	if err != nil {
		return nil, err
	}

	// Add OpenCensus z-pages.
	zmux := http.NewServeMux()
	zpages.Handle(zmux, "/z")

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	server.Mount(r)
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = fmt.Fprintf(w, `{"status":"healthy","version":%q}`, x.Version())
	})
	r.Handle("/metrics", metrics)
	r.Mount("/z", zmux)
	return r, nil
}

func run() error {
	glog.Infof("Starting apq %s", x.Version())
	conf := Serve.Conf

	b, err := backend.Open(Serve)
	if err != nil {
		return err
	}
	defer b.Close()

	upstreamTimeout := conf.GetDuration("upstream_timeout")
	executor := resolve.NewUpstreamExecutor(&http.Client{Timeout: upstreamTimeout},
		conf.GetString("upstream"), conf.GetStringSlice("forward_headers"))

	handler, err := Router(b, executor, conf.GetInt("batch_concurrency"))
	if err != nil {
		return err
	}

	trace.ApplyConfig(trace.Config{
		DefaultSampler:             trace.ProbabilitySampler(conf.GetFloat64("trace")),
		MaxAnnotationEventsPerSpan: 256,
	})

	bind := "localhost"
	if conf.GetBool("bindall") {
		bind = "0.0.0.0"
	}
	addr := net.JoinHostPort(bind, fmt.Sprint(conf.GetInt("port")))
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		glog.Infof("Bringing up GraphQL HTTP API at %s/graphql", addr)
		glog.Infof("Upstream GraphQL server is %s", conf.GetString("upstream"))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return errors.Wrap(err, "GraphQL server failed")
	case <-ctx.Done():
	}

	glog.Infoln("Shutting down...")
	sctx, cancel := context.WithTimeout(context.Background(), conf.GetDuration("shutdown_timeout"))
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		return errors.Wrap(err, "while shutting down GraphQL server")
	}
	glog.Infoln("Server shutdown. Bye!")
	return nil
}
