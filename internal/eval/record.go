package eval

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	otelmetric "go.opentelemetry.io/otel/metric"

	"github.com/MrWong99/phoneval/internal/dataset"
	"github.com/MrWong99/phoneval/pkg/metric"
)

func metricAttrs(kv ...attribute.KeyValue) otelmetric.MeasurementOption {
	return otelmetric.WithAttributes(kv...)
}

func (r *Runner) recordScore(ctx context.Context, kind metric.Kind, task dataset.Task, rate float64) {
	if r.metrics != nil {
		r.metrics.RecordScore(ctx, string(kind), string(task), rate)
	}
}

func (r *Runner) recordSkipped(ctx context.Context, kind metric.Kind, task dataset.Task) {
	if r.metrics != nil {
		r.metrics.RecordSkipped(ctx, string(kind), string(task))
	}
}

func (r *Runner) recordFailed(ctx context.Context, task dataset.Task, stage string) {
	if r.metrics != nil {
		r.metrics.RecordFailed(ctx, string(task), stage)
	}
}
