package observer

import (
	"context"
	"time"

	"github.com/nevindra/strata"

	"go.opentelemetry.io/otel/codes"
	otellog "go.opentelemetry.io/otel/log"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// ObservedQuerier wraps a strata.Querier with a span, a query counter and a
// duration histogram per call.
type ObservedQuerier struct {
	inner strata.Querier
	inst  *Instruments
}

// WrapQuerier returns an instrumented querier.
func WrapQuerier(inner strata.Querier, inst *Instruments) *ObservedQuerier {
	return &ObservedQuerier{inner: inner, inst: inst}
}

func (o *ObservedQuerier) Query(ctx context.Context, text string, topK int) ([]strata.QueryResult, error) {
	ctx, span := o.start(ctx, "parents", topK)
	defer span.End()
	start := time.Now()

	res, err := o.inner.Query(ctx, text, topK)

	o.finish(ctx, span, "parents", len(res), start, err)
	return res, err
}

func (o *ObservedQuerier) SearchChildren(ctx context.Context, text string, k int) ([]strata.ScoredChild, error) {
	ctx, span := o.start(ctx, "children", k)
	defer span.End()
	start := time.Now()

	res, err := o.inner.SearchChildren(ctx, text, k)

	o.finish(ctx, span, "children", len(res), start, err)
	return res, err
}

func (o *ObservedQuerier) start(ctx context.Context, mode string, k int) (context.Context, trace.Span) {
	return o.inst.Tracer.Start(ctx, "strata.query", trace.WithAttributes(
		AttrQueryMode.String(mode),
		AttrQueryTopK.Int(k),
	))
}

func (o *ObservedQuerier) finish(ctx context.Context, span trace.Span, mode string, n int, start time.Time, err error) {
	durationMs := float64(time.Since(start).Milliseconds())
	status := statusOf(err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.SetAttributes(AttrQueryResults.Int(n))

	o.inst.Queries.Add(ctx, 1, metric.WithAttributes(
		AttrQueryMode.String(mode),
		AttrStatus.String(status),
	))
	o.inst.QueryDuration.Record(ctx, durationMs, metric.WithAttributes(AttrQueryMode.String(mode)))

	var rec otellog.Record
	rec.SetSeverity(otellog.SeverityInfo)
	rec.SetBody(otellog.StringValue("query completed"))
	rec.AddAttributes(
		otellog.String("strata.query.mode", mode),
		otellog.Int("strata.query.results", n),
		otellog.Float64("strata.duration_ms", durationMs),
		otellog.String("status", status),
	)
	o.inst.Logger.Emit(ctx, rec)
}

var _ strata.Querier = (*ObservedQuerier)(nil)
