/*
 * SPDX-FileCopyrightText: © Hypermode Inc. <hello@hypermode.com>
 * SPDX-License-Identifier: Apache-2.0
 */

package x

import (
	"context"
	"math/rand"
	"net/http"
	"sync"
	"time"

	"contrib.go.opencensus.io/exporter/prometheus"
	"github.com/golang/glog"
	"github.com/pkg/errors"
	"go.opencensus.io/stats"
	"go.opencensus.io/stats/view"
	"go.opencensus.io/tag"
	"go.opencensus.io/trace"
)

var (
	// Cumulative metrics.
	NumOperations = stats.Int64("apq_operations_total",
		"Total number of GraphQL operations processed", stats.UnitDimensionless)
	NumRegistrations = stats.Int64("apq_registrations_total",
		"Total number of persisted queries stored", stats.UnitDimensionless)
	NumInvalidations = stats.Int64("apq_invalidations_total",
		"Total number of cache tag invalidation calls", stats.UnitDimensionless)
	NumNegativeCacheHits = stats.Int64("apq_negative_cache_hits_total",
		"Total number of PersistedQueryNotFound responses served from cache",
		stats.UnitDimensionless)
	LatencyMs = stats.Float64("apq_latency",
		"Latency of the various methods", stats.UnitMilliseconds)

	// Tag keys here
	KeyStatus, _  = tag.NewKey("status")
	KeyMethod, _  = tag.NewKey("method")
	KeyOutcome, _ = tag.NewKey("outcome")
	KeySchema, _  = tag.NewKey("schema")

	// Tag values here
	TagValueStatusOK    = "ok"
	TagValueStatusError = "error"

	defaultLatencyMsDistribution = view.Distribution(
		0, 0.01, 0.05, 0.1, 0.3, 0.6, 0.8, 1, 2, 3, 4, 5, 6, 8, 10, 13, 16,
		20, 25, 30, 40, 50, 65, 80, 100, 130, 160, 200, 250, 300, 400, 500,
		650, 800, 1000, 2000, 5000, 10000, 20000, 50000, 100000)

	allTagKeys = []tag.Key{
		KeyStatus, KeyMethod, KeyOutcome, KeySchema,
	}

	allViews = []*view.View{
		{
			Name:        LatencyMs.Name(),
			Measure:     LatencyMs,
			Description: LatencyMs.Description(),
			Aggregation: defaultLatencyMsDistribution,
			TagKeys:     allTagKeys,
		},
		{
			Name:        NumOperations.Name(),
			Measure:     NumOperations,
			Description: NumOperations.Description(),
			Aggregation: view.Count(),
			TagKeys:     allTagKeys,
		},
		{
			Name:        NumRegistrations.Name(),
			Measure:     NumRegistrations,
			Description: NumRegistrations.Description(),
			Aggregation: view.Count(),
			TagKeys:     allTagKeys,
		},
		{
			Name:        NumInvalidations.Name(),
			Measure:     NumInvalidations,
			Description: NumInvalidations.Description(),
			Aggregation: view.Count(),
			TagKeys:     allTagKeys,
		},
		{
			Name:        NumNegativeCacheHits.Name(),
			Measure:     NumNegativeCacheHits,
			Description: NumNegativeCacheHits.Description(),
			Aggregation: view.Count(),
			TagKeys:     allTagKeys,
		},
	}

	registerOnce sync.Once
	exporter     *prometheus.Exporter
	exporterErr  error
)

// MetricsHandler registers the views once and returns the Prometheus exporter
// that serves them.
func MetricsHandler() (http.Handler, error) {
	registerOnce.Do(func() {
		if err := view.Register(allViews...); err != nil {
			exporterErr = errors.Wrap(err, "while registering OpenCensus views")
			return
		}
		exporter, exporterErr = prometheus.NewExporter(prometheus.Options{
			OnError: func(err error) { glog.Errorf("%v", err) },
		})
		if exporterErr != nil {
			exporterErr = errors.Wrap(exporterErr,
				"Failed to create OpenCensus Prometheus exporter")
			return
		}
		view.RegisterExporter(exporter)
	})
	return exporter, exporterErr
}

// WithMethod returns a new updated context with the tag KeyMethod set to the given value.
func WithMethod(parent context.Context, method string) context.Context {
	ctx, err := tag.New(parent, tag.Upsert(KeyMethod, method))
	if err != nil {
		return parent
	}
	return ctx
}

// RecordOutcome counts one processed operation for schemaID under outcome.
func RecordOutcome(ctx context.Context, schemaID, outcome string) {
	Ignore(stats.RecordWithTags(ctx,
		[]tag.Mutator{tag.Upsert(KeySchema, schemaID), tag.Upsert(KeyOutcome, outcome)},
		NumOperations.M(1)))
}

// RecordLatency records the time spent since start, tagged with status.
func RecordLatency(ctx context.Context, start time.Time, err error) {
	status := TagValueStatusOK
	if err != nil {
		status = TagValueStatusError
	}
	Ignore(stats.RecordWithTags(ctx,
		[]tag.Mutator{tag.Upsert(KeyStatus, status)},
		LatencyMs.M(SinceMs(start))))
}

// SinceMs returns the time since startTime in milliseconds (as a float).
func SinceMs(startTime time.Time) float64 {
	return float64(time.Since(startTime)) / 1e6
}

// SpanTimer annotates span with the start and end of the named step and
// returns the function ending it.
func SpanTimer(span *trace.Span, name string) func() {
	if span == nil {
		return func() {}
	}
	uniq := int64(rand.Int31())
	attrs := []trace.Attribute{
		trace.Int64Attribute("funcId", uniq),
		trace.StringAttribute("funcName", name),
	}
	span.Annotate(attrs, "Start.")
	start := time.Now()

	return func() {
		span.Annotatef(attrs, "End. Took %s", time.Since(start))
	}
}
