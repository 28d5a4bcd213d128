package ledger

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

const (
	outcomeCommitted = "committed"
	outcomeRejected  = "rejected"
	outcomeNoop      = "noop"
	outcomeFailed    = "failed"
)

// instruments mirror the prometheus ledger collectors over OTLP.
type instruments struct {
	ops      metric.Int64Counter
	duration metric.Float64Histogram
}

func newInstruments(meter metric.Meter) (instruments, error) {
	if meter == nil {
		meter = noop.NewMeterProvider().Meter("")
	}
	ops, err := meter.Int64Counter("treasury.ledger.operations",
		metric.WithDescription("Operations handled by the ledger by kind and outcome."),
		metric.WithUnit("{operation}"))
	if err != nil {
		return instruments{}, err
	}
	duration, err := meter.Float64Histogram("treasury.ledger.apply.duration",
		metric.WithDescription("Time spent applying and committing an operation."),
		metric.WithUnit("s"))
	if err != nil {
		return instruments{}, err
	}
	return instruments{ops: ops, duration: duration}, nil
}

func (i instruments) record(ctx context.Context, op OpKind, outcome string, elapsed time.Duration) {
	if i.ops == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("treasury.op", string(op)),
		attribute.String("treasury.outcome", outcome),
	)
	i.ops.Add(ctx, 1, attrs)
	i.duration.Record(ctx, elapsed.Seconds(), attrs)
}
