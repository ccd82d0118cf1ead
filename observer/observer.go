// Package observer provides OTEL-based observability for strata indexing and
// retrieval.
//
// It wraps EmbeddingProvider, ChildIndex, ParentStore and Querier with
// instrumented versions that emit traces, metrics and logs via
// OpenTelemetry. Users export to any OTEL-compatible backend by setting
// standard OTEL env vars.
package observer

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploghttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	otellog "go.opentelemetry.io/otel/log"
	"go.opentelemetry.io/otel/log/global"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const scopeName = "github.com/nevindra/strata/observer"

// Instruments holds all OTEL instruments used by the observer wrappers.
type Instruments struct {
	Tracer trace.Tracer
	Meter  metric.Meter
	Logger otellog.Logger

	// Counters
	ParentsWritten  metric.Int64Counter
	ChildrenWritten metric.Int64Counter
	ParentsNotFound metric.Int64Counter
	Queries         metric.Int64Counter
	EmbedRequests   metric.Int64Counter

	// Histograms
	EmbedDuration  metric.Float64Histogram
	SearchDuration metric.Float64Histogram
	WriteDuration  metric.Float64Histogram
	QueryDuration  metric.Float64Histogram
}

// Init sets up OTEL trace, metric, and log providers with OTLP HTTP exporters.
// Configuration comes from standard OTEL env vars (OTEL_EXPORTER_OTLP_ENDPOINT, etc.).
// Returns a shutdown function that must be called on application exit.
func Init(ctx context.Context) (*Instruments, func(context.Context) error, error) {
	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceName("strata")),
		resource.WithFromEnv(),
	)
	if err != nil {
		return nil, nil, err
	}

	// Trace provider
	traceExp, err := otlptracehttp.New(ctx)
	if err != nil {
		return nil, nil, err
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(traceExp),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)

	// Metric provider
	metricExp, err := otlpmetrichttp.New(ctx)
	if err != nil {
		_ = tp.Shutdown(ctx)
		return nil, nil, err
	}
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExp)),
		sdkmetric.WithResource(res),
	)
	otel.SetMeterProvider(mp)

	// Log provider
	logExp, err := otlploghttp.New(ctx)
	if err != nil {
		_ = tp.Shutdown(ctx)
		_ = mp.Shutdown(ctx)
		return nil, nil, err
	}
	lp := sdklog.NewLoggerProvider(
		sdklog.WithProcessor(sdklog.NewBatchProcessor(logExp)),
		sdklog.WithResource(res),
	)
	global.SetLoggerProvider(lp)

	inst, err := newInstruments()
	if err != nil {
		_ = tp.Shutdown(ctx)
		_ = mp.Shutdown(ctx)
		_ = lp.Shutdown(ctx)
		return nil, nil, err
	}

	shutdown := func(ctx context.Context) error {
		return errors.Join(
			tp.Shutdown(ctx),
			mp.Shutdown(ctx),
			lp.Shutdown(ctx),
		)
	}

	return inst, shutdown, nil
}

// NewInstruments builds instruments on the current global providers without
// installing exporters. With no prior Init every instrument is a no-op.
func NewInstruments() (*Instruments, error) {
	return newInstruments()
}

func newInstruments() (*Instruments, error) {
	return newInstrumentsFrom(otel.GetTracerProvider(), otel.GetMeterProvider())
}

func newInstrumentsFrom(tp trace.TracerProvider, mp metric.MeterProvider) (*Instruments, error) {
	tracer := tp.Tracer(scopeName)
	meter := mp.Meter(scopeName)
	logger := global.GetLoggerProvider().Logger(scopeName)

	parentsWritten, err := meter.Int64Counter("strata.parents.written",
		metric.WithDescription("Parent records written"),
		metric.WithUnit("{parent}"))
	if err != nil {
		return nil, err
	}

	childrenWritten, err := meter.Int64Counter("strata.children.written",
		metric.WithDescription("Child records written to the index"),
		metric.WithUnit("{child}"))
	if err != nil {
		return nil, err
	}

	parentsNotFound, err := meter.Int64Counter("strata.parents.not_found",
		metric.WithDescription("Parent lookups that found no record"),
		metric.WithUnit("{lookup}"))
	if err != nil {
		return nil, err
	}

	queries, err := meter.Int64Counter("strata.queries",
		metric.WithDescription("Retrieval query count"),
		metric.WithUnit("{query}"))
	if err != nil {
		return nil, err
	}

	embedRequests, err := meter.Int64Counter("embedding.requests",
		metric.WithDescription("Embedding request count"),
		metric.WithUnit("{request}"))
	if err != nil {
		return nil, err
	}

	embedDuration, err := meter.Float64Histogram("embedding.duration",
		metric.WithDescription("Embedding call duration"),
		metric.WithUnit("ms"))
	if err != nil {
		return nil, err
	}

	searchDuration, err := meter.Float64Histogram("strata.child_index.search.duration",
		metric.WithDescription("Child index similarity search duration"),
		metric.WithUnit("ms"))
	if err != nil {
		return nil, err
	}

	writeDuration, err := meter.Float64Histogram("strata.write.duration",
		metric.WithDescription("Parent and child write duration"),
		metric.WithUnit("ms"))
	if err != nil {
		return nil, err
	}

	queryDuration, err := meter.Float64Histogram("strata.query.duration",
		metric.WithDescription("Retrieval query duration"),
		metric.WithUnit("ms"))
	if err != nil {
		return nil, err
	}

	return &Instruments{
		Tracer:          tracer,
		Meter:           meter,
		Logger:          logger,
		ParentsWritten:  parentsWritten,
		ChildrenWritten: childrenWritten,
		ParentsNotFound: parentsNotFound,
		Queries:         queries,
		EmbedRequests:   embedRequests,
		EmbedDuration:   embedDuration,
		SearchDuration:  searchDuration,
		WriteDuration:   writeDuration,
		QueryDuration:   queryDuration,
	}, nil
}

// statusOf labels an operation outcome for metrics.
func statusOf(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
