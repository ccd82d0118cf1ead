package observer

import (
	"context"
	"time"

	"github.com/nevindra/strata"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// ObservedChildIndex wraps a strata.ChildIndex. Writes and searches get
// spans; successful writes count toward strata.children.written.
type ObservedChildIndex struct {
	strata.ChildIndex
	inst *Instruments
}

// WrapChildIndex returns an instrumented child index. Methods other than
// AddBatch and SimilaritySearch pass straight through.
func WrapChildIndex(inner strata.ChildIndex, inst *Instruments) *ObservedChildIndex {
	return &ObservedChildIndex{ChildIndex: inner, inst: inst}
}

func (o *ObservedChildIndex) AddBatch(ctx context.Context, records []strata.ChildRecord) error {
	attrs := []trace.SpanStartOption{trace.WithAttributes(AttrBatchSize.Int(len(records)))}
	if len(records) > 0 {
		attrs = append(attrs, trace.WithAttributes(
			AttrBatchFirst.String(records[0].ID),
			AttrBatchLast.String(records[len(records)-1].ID),
		))
	}
	ctx, span := o.inst.Tracer.Start(ctx, "strata.child_index.add_batch", attrs...)
	defer span.End()
	start := time.Now()

	err := o.ChildIndex.AddBatch(ctx, records)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		o.inst.ChildrenWritten.Add(ctx, int64(len(records)))
	}
	o.inst.WriteDuration.Record(ctx, float64(time.Since(start).Milliseconds()),
		metric.WithAttributes(AttrStatus.String(statusOf(err))))
	return err
}

func (o *ObservedChildIndex) SimilaritySearch(ctx context.Context, embedding []float32, k int) ([]strata.ScoredChild, error) {
	ctx, span := o.inst.Tracer.Start(ctx, "strata.child_index.search", trace.WithAttributes(
		AttrSearchK.Int(k),
		AttrEmbedDimensions.Int(len(embedding)),
	))
	defer span.End()
	start := time.Now()

	hits, err := o.ChildIndex.SimilaritySearch(ctx, embedding, k)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.SetAttributes(AttrSearchHits.Int(len(hits)))
	o.inst.SearchDuration.Record(ctx, float64(time.Since(start).Milliseconds()),
		metric.WithAttributes(AttrStatus.String(statusOf(err))))
	return hits, err
}

var _ strata.ChildIndex = (*ObservedChildIndex)(nil)
