package executor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/specialistvlad/buildchain/internal/chain"
	"github.com/specialistvlad/buildchain/internal/ctxlog"
	"github.com/specialistvlad/buildchain/internal/events"
	"github.com/specialistvlad/buildchain/internal/item"
	"github.com/specialistvlad/buildchain/internal/itemstore"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

// DefaultWorkers is the size of the worker pool when none is configured.
const DefaultWorkers = 10

const instrumentationName = "github.com/specialistvlad/buildchain/internal/executor"

// Executor runs a chain. It holds no per-build state and may run several
// builds concurrently.
type Executor struct {
	chain      *chain.Chain
	numWorkers int
	failFast   bool
	sink       events.Sink
	tracer     trace.Tracer
	meter      metric.Meter
	metrics    *instruments
}

// Option configures an Executor.
type Option func(*Executor)

// WithWorkers sets the size of the worker pool. Values below one are ignored.
func WithWorkers(n int) Option {
	return func(e *Executor) {
		if n > 0 {
			e.numWorkers = n
		}
	}
}

// WithFailFast makes a fatal failure cancel every step that has not started.
func WithFailFast(enabled bool) Option {
	return func(e *Executor) { e.failFast = enabled }
}

// WithSink sets where step transitions are reported.
func WithSink(s events.Sink) Option {
	return func(e *Executor) {
		if s != nil {
			e.sink = s
		}
	}
}

// WithTracerProvider sets the tracer provider used for build and step spans.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(e *Executor) {
		if tp != nil {
			e.tracer = tp.Tracer(instrumentationName)
		}
	}
}

// WithMeterProvider sets the meter provider used for build metrics.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(e *Executor) {
		if mp != nil {
			e.meter = mp.Meter(instrumentationName)
		}
	}
}

// New creates an executor for c.
func New(c *chain.Chain, opts ...Option) *Executor {
	e := &Executor{
		chain:      c,
		numWorkers: DefaultWorkers,
		sink:       events.Discard,
		tracer:     tracenoop.NewTracerProvider().Tracer(instrumentationName),
		meter:      metricnoop.NewMeterProvider().Meter(instrumentationName),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.metrics = newInstruments(e.meter)
	return e
}

// Chain returns the chain the executor runs.
func (e *Executor) Chain() *chain.Chain { return e.chain }

// Execute runs one build. initial supplies the values of the chain's initial
// items. A failed build returns both the result and a *BuildError; invalid
// initial values are rejected before any step runs.
func (e *Executor) Execute(ctx context.Context, initial map[item.ID][]any) (*Result, error) {
	runID := uuid.NewString()
	ctx, logger := ctxlog.With(ctx, "run_id", runID)

	store := itemstore.New(e.chain.Items(), e.chain.Layout())
	if err := e.seed(store, initial); err != nil {
		return nil, err
	}

	ctx, span := e.tracer.Start(ctx, "buildchain.execute", trace.WithAttributes(
		attribute.String("buildchain.run_id", runID),
		attribute.String("buildchain.fingerprint", e.chain.Fingerprint()),
		attribute.Int("buildchain.steps", e.chain.Len()),
	))
	defer span.End()

	logger.Info("Starting build.", "steps", e.chain.Len(), "workers", e.numWorkers, "fail_fast", e.failFast)
	e.sink.Emit(ctx, events.Event{RunID: runID, Status: "started", Time: time.Now()})

	r := newRun(e, runID, store)
	result := r.execute(ctx)

	buildErr := r.buildError(ctx)
	outcome := "succeeded"
	if buildErr != nil {
		outcome = "failed"
		span.RecordError(buildErr)
		span.SetStatus(codes.Error, buildErr.Error())
		logger.Error("Build failed.", "error", buildErr, "duration", result.Duration())
	} else {
		result.Succeeded = true
		result.Finals = store.Snapshot(e.chain.Finals()...)
		span.SetStatus(codes.Ok, "")
		logger.Info("Build succeeded.", "duration", result.Duration(),
			"completed", result.Count(Completed), "skipped", result.Count(Skipped), "failed", result.Count(Failed))
	}
	e.metrics.recordBuild(ctx, outcome, result.Duration())
	ev := events.Event{RunID: runID, Status: outcome, Time: time.Now()}
	if buildErr != nil {
		ev.Error = buildErr.Error()
	}
	e.sink.Emit(ctx, ev)

	if buildErr != nil {
		return result, buildErr
	}
	return result, nil
}

// seed validates the caller's initial values and stores them.
func (e *Executor) seed(store *itemstore.Store, initial map[item.ID][]any) error {
	declared := make(map[item.ID]bool, len(e.chain.Initial()))
	for _, id := range e.chain.Initial() {
		declared[id] = true
	}

	var problems []error
	for id := range initial {
		if !declared[id] {
			problems = append(problems, fmt.Errorf("item %s is not an initial item of the chain", id))
		}
	}
	for _, id := range e.chain.Initial() {
		values, supplied := initial[id]
		if !supplied || len(values) == 0 {
			if e.requiresValue(id) {
				problems = append(problems, fmt.Errorf("initial item %s requires a value", id))
			}
			continue
		}
		if err := store.Seed(id, values...); err != nil {
			problems = append(problems, err)
		}
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidInitial, errors.Join(problems...))
	}
	return nil
}

// requiresValue reports whether a missing initial value would starve a
// consumer or a final item.
func (e *Executor) requiresValue(id item.ID) bool {
	if id.Mode() != item.Single {
		return false
	}
	plan, ok := e.chain.Plan(id)
	if !ok {
		return false
	}
	if plan.Final {
		return true
	}
	for _, name := range plan.Consumers {
		s, _ := e.chain.Step(name)
		for _, c := range s.Consumes {
			if c.Item == id && c.Required() {
				return true
			}
		}
	}
	return false
}
