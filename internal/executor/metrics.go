package executor

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
)

type instruments struct {
	stepDuration  metric.Float64Histogram
	stepOutcomes  metric.Int64Counter
	activeSteps   metric.Int64UpDownCounter
	buildDuration metric.Float64Histogram
	buildOutcomes metric.Int64Counter
}

// newInstruments creates the build metrics. Instruments that cannot be
// created fall back to no-ops.
func newInstruments(meter metric.Meter) *instruments {
	fallback := metricnoop.NewMeterProvider().Meter(instrumentationName)
	ins := &instruments{}
	var err error

	if ins.stepDuration, err = meter.Float64Histogram("buildchain_step_duration_seconds",
		metric.WithDescription("Time spent running each build step"),
		metric.WithUnit("s"),
	); err != nil {
		ins.stepDuration, _ = fallback.Float64Histogram("buildchain_step_duration_seconds")
	}
	if ins.stepOutcomes, err = meter.Int64Counter("buildchain_steps_total",
		metric.WithDescription("Number of steps by final status"),
	); err != nil {
		ins.stepOutcomes, _ = fallback.Int64Counter("buildchain_steps_total")
	}
	if ins.activeSteps, err = meter.Int64UpDownCounter("buildchain_active_steps",
		metric.WithDescription("Number of currently running steps"),
	); err != nil {
		ins.activeSteps, _ = fallback.Int64UpDownCounter("buildchain_active_steps")
	}
	if ins.buildDuration, err = meter.Float64Histogram("buildchain_build_duration_seconds",
		metric.WithDescription("Total build time"),
		metric.WithUnit("s"),
	); err != nil {
		ins.buildDuration, _ = fallback.Float64Histogram("buildchain_build_duration_seconds")
	}
	if ins.buildOutcomes, err = meter.Int64Counter("buildchain_builds_total",
		metric.WithDescription("Number of builds by outcome"),
	); err != nil {
		ins.buildOutcomes, _ = fallback.Int64Counter("buildchain_builds_total")
	}
	return ins
}

func (ins *instruments) recordStep(ctx context.Context, step string, status Status, reason SkipReason, d time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String("step", step),
		attribute.String("status", status.String()),
		attribute.String("reason", string(reason)),
	)
	ins.stepOutcomes.Add(ctx, 1, attrs)
	if status != Skipped {
		ins.stepDuration.Record(ctx, d.Seconds(), metric.WithAttributes(attribute.String("step", step)))
	}
}

func (ins *instruments) recordBuild(ctx context.Context, outcome string, d time.Duration) {
	attrs := metric.WithAttributes(attribute.String("outcome", outcome))
	ins.buildOutcomes.Add(ctx, 1, attrs)
	ins.buildDuration.Record(ctx, d.Seconds(), attrs)
}
