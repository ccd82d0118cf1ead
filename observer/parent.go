package observer

import (
	"context"
	"errors"
	"time"

	"github.com/nevindra/strata"

	otellog "go.opentelemetry.io/otel/log"
	"go.opentelemetry.io/otel/metric"
)

// ObservedParentStore wraps a strata.ParentStore and counts written and
// missing parents.
type ObservedParentStore struct {
	strata.ParentStore
	inst *Instruments
}

// WrapParentStore returns an instrumented parent store.
func WrapParentStore(inner strata.ParentStore, inst *Instruments) *ObservedParentStore {
	return &ObservedParentStore{ParentStore: inner, inst: inst}
}

func (o *ObservedParentStore) UpsertParent(ctx context.Context, p strata.ParentRecord) error {
	start := time.Now()
	err := o.ParentStore.UpsertParent(ctx, p)
	if err == nil {
		o.inst.ParentsWritten.Add(ctx, 1, metric.WithAttributes(AttrSourceID.String(p.SourceID)))
	}
	o.inst.WriteDuration.Record(ctx, float64(time.Since(start).Milliseconds()),
		metric.WithAttributes(AttrStatus.String(statusOf(err))))
	return err
}

func (o *ObservedParentStore) GetParent(ctx context.Context, id string) (strata.ParentRecord, error) {
	p, err := o.ParentStore.GetParent(ctx, id)
	if errors.Is(err, strata.ErrNotFound) {
		o.inst.ParentsNotFound.Add(ctx, 1)

		var rec otellog.Record
		rec.SetSeverity(otellog.SeverityWarn)
		rec.SetBody(otellog.StringValue("parent not found"))
		rec.AddAttributes(otellog.String("strata.parent_id", id))
		o.inst.Logger.Emit(ctx, rec)
	}
	return p, err
}

var _ strata.ParentStore = (*ObservedParentStore)(nil)
