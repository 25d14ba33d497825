package executor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/specialistvlad/buildchain/internal/chain"
	"github.com/specialistvlad/buildchain/internal/ctxlog"
	"github.com/specialistvlad/buildchain/internal/events"
	"github.com/specialistvlad/buildchain/internal/item"
	"github.com/specialistvlad/buildchain/internal/itemstore"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

// stepState is the mutable state of one step within one build.
type stepState struct {
	step *chain.Step
	// pending counts dependencies that have not reached a terminal state.
	pending atomic.Int32
	// tainted is set when a dependency failed fatally or was skipped because
	// of such a failure.
	tainted atomic.Bool
	status  atomic.Int32

	// Written only by the worker that owns the step, read after wg.Wait.
	reason   SkipReason
	detail   string
	err      error
	fatal    bool
	started  time.Time
	finished time.Time
}

func (st *stepState) setStatus(s Status) { st.status.Store(int32(s)) }
func (st *stepState) getStatus() Status  { return Status(st.status.Load()) }

// run is the state of one Execute call.
type run struct {
	e       *Executor
	runID   string
	store   *itemstore.Store
	states  map[string]*stepState
	ordered []*stepState
	ready   chan *stepState
	wg      sync.WaitGroup
	// cancel stops scheduling. Running steps keep stepCtx, which only the
	// caller can cancel.
	cancel  context.CancelFunc
	stepCtx context.Context
	started time.Time
}

func newRun(e *Executor, runID string, store *itemstore.Store) *run {
	r := &run{
		e:      e,
		runID:  runID,
		store:  store,
		states: make(map[string]*stepState, e.chain.Len()),
	}
	for _, s := range e.chain.Steps() {
		st := &stepState{step: s}
		st.pending.Store(int32(len(s.Dependencies)))
		r.states[s.Name] = st
		r.ordered = append(r.ordered, st)
	}
	return r
}

// execute walks the chain and returns once every step is terminal.
func (r *run) execute(ctx context.Context) *Result {
	logger := ctxlog.FromContext(ctx)
	r.started = time.Now()

	readyChan := make(chan *stepState, len(r.ordered))
	r.ready = readyChan
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	r.cancel = cancel
	r.stepCtx = ctx

	r.wg.Add(len(r.ordered))

	logger.Debug("Finding root steps.")
	roots := 0
	for _, st := range r.ordered {
		if st.pending.Load() == 0 {
			r.markReady(runCtx, st)
			readyChan <- st
			roots++
		}
	}
	logger.Debug("Found all root steps.", "count", roots)

	var g errgroup.Group
	logger.Debug("Starting worker pool.", "workers", r.e.numWorkers)
	for i := 0; i < r.e.numWorkers; i++ {
		workerID := i
		g.Go(func() error {
			r.worker(runCtx, readyChan, workerID)
			return nil
		})
	}

	r.wg.Wait()
	close(readyChan)
	_ = g.Wait()
	logger.Debug("All steps reached a terminal state.")

	return r.result()
}

// worker is the processing loop of one pool goroutine.
func (r *run) worker(ctx context.Context, readyChan chan *stepState, workerID int) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Worker started.", "workerID", workerID)

	for st := range readyChan {
		stepCtx := ctxlog.WithLogger(ctx, logger.With("workerID", workerID, "step", st.step.Name))
		r.process(stepCtx, st)
		r.wg.Done()
	}
	logger.Debug("Worker finished.", "workerID", workerID)
}

// process decides whether the step runs, runs it and releases its
// dependents.
func (r *run) process(ctx context.Context, st *stepState) {
	logger := ctxlog.FromContext(ctx)

	switch {
	case st.tainted.Load():
		r.skip(ctx, st, ReasonUpstreamFailed, "a dependency failed")
	case ctx.Err() != nil:
		r.skip(ctx, st, ReasonCanceled, context.Cause(ctx).Error())
	default:
		if missing := r.missingRequired(st); missing != "" {
			r.skip(ctx, st, ReasonNotProduced, fmt.Sprintf("required item %s was not produced", missing))
			break
		}
		r.runStep(ctx, st)
	}

	status := st.getStatus()
	succeeded := status == Completed
	r.store.ProducerDone(st.step.Name, succeeded)

	propagateFailure := (status == Failed && st.fatal) ||
		(status == Skipped && st.reason == ReasonUpstreamFailed)
	if status == Failed && st.fatal && r.e.failFast {
		logger.Warn("Fail-fast: cancelling steps that have not started.")
		r.cancel()
	}

	for _, name := range st.step.Dependents {
		dependent := r.states[name]
		if propagateFailure {
			dependent.tainted.Store(true)
		}
		if dependent.pending.Add(-1) == 0 {
			logger.Debug("Unlocking dependent step.", "dependent", name)
			r.markReady(ctx, dependent)
			r.enqueue(dependent)
		}
	}
}

// enqueue hands a ready step to the pool. The channel is sized to the chain
// so this never blocks.
func (r *run) enqueue(st *stepState) {
	r.ready <- st
}

func (r *run) missingRequired(st *stepState) string {
	for _, c := range st.step.Consumes {
		if !c.Required() {
			continue
		}
		if r.store.Status(c.Item) != itemstore.Produced {
			return c.Item.String()
		}
	}
	return ""
}

func (r *run) runStep(ctx context.Context, st *stepState) {
	logger := ctxlog.FromContext(ctx)
	ctx = ctxlog.WithLogger(r.stepCtx, logger)
	ctx, span := r.e.tracer.Start(ctx, "step "+st.step.Name, trace.WithAttributes(
		attribute.String("buildchain.step", st.step.Name),
		attribute.Bool("buildchain.non_essential", st.step.NonEssential),
	))
	defer span.End()

	st.started = time.Now()
	st.setStatus(Running)
	r.emit(ctx, st, nil)
	r.e.metrics.activeSteps.Add(ctx, 1)
	logger.Info("Starting step.")

	sc := newStepContext(st.step, r.store)
	err := invoke(ctx, st.step.Fn, sc)

	r.e.metrics.activeSteps.Add(ctx, -1)
	st.finished = time.Now()

	if violation := sc.violation(); violation != nil {
		if err == nil || !errors.Is(err, violation) {
			err = violation
		}
		st.fatal = true
	} else if err != nil {
		st.fatal = !st.step.NonEssential || isViolation(err)
	}

	if err != nil {
		st.err = &StepError{Step: st.step.Name, Fatal: st.fatal, Err: err}
		st.setStatus(Failed)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if st.fatal {
			logger.Error("Step failed.", "error", err)
		} else {
			logger.Warn("Non-essential step failed, its items are not produced.", "error", err)
		}
	} else {
		st.setStatus(Completed)
		span.SetStatus(codes.Ok, "")
		logger.Info("Finished step.", "duration", st.finished.Sub(st.started))
	}
	r.e.metrics.recordStep(ctx, st.step.Name, st.getStatus(), ReasonNone, st.finished.Sub(st.started))
	r.emit(ctx, st, st.err)
}

// invoke runs fn and turns a panic into an error.
func invoke(ctx context.Context, fn chain.StepFunc, sc chain.StepContext) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("%w: %v", ErrPanic, p)
		}
	}()
	return fn(ctx, sc)
}

func (r *run) skip(ctx context.Context, st *stepState, reason SkipReason, detail string) {
	now := time.Now()
	st.reason = reason
	st.detail = detail
	st.finished = now
	st.setStatus(Skipped)
	ctxlog.FromContext(ctx).Warn("Skipping step.", "reason", string(reason), "detail", detail)
	r.e.metrics.recordStep(ctx, st.step.Name, Skipped, reason, 0)
	r.emit(ctx, st, nil)
}

func (r *run) markReady(ctx context.Context, st *stepState) {
	st.setStatus(Ready)
	r.emit(ctx, st, nil)
}

func (r *run) emit(ctx context.Context, st *stepState, err error) {
	e := events.Event{
		RunID:  r.runID,
		Step:   st.step.Name,
		Status: st.getStatus().String(),
		Reason: string(st.reason),
		Time:   time.Now(),
	}
	if err != nil {
		e.Error = err.Error()
	}
	r.e.sink.Emit(ctx, e)
}

func (r *run) result() *Result {
	res := &Result{
		RunID:    r.runID,
		Started:  r.started,
		Finished: time.Now(),
		Steps:    make([]StepResult, 0, len(r.ordered)),
		Finals:   map[item.ID][]any{},
	}
	for _, st := range r.ordered {
		res.Steps = append(res.Steps, StepResult{
			Name:     st.step.Name,
			Status:   st.getStatus(),
			Reason:   st.reason,
			Detail:   st.detail,
			Err:      st.err,
			Fatal:    st.fatal,
			Started:  st.started,
			Finished: st.finished,
		})
	}
	return res
}

// buildError returns nil when the build succeeded.
func (r *run) buildError(ctx context.Context) error {
	var failed []string
	var rootCause error
	canceled := false
	for _, st := range r.ordered {
		switch {
		case st.getStatus() == Failed && st.fatal:
			failed = append(failed, st.step.Name)
			if rootCause == nil {
				rootCause = st.err
			}
		case st.getStatus() == Skipped && st.reason == ReasonCanceled:
			canceled = true
		}
	}
	if rootCause == nil && canceled {
		rootCause = context.Cause(ctx)
		if rootCause == nil {
			rootCause = context.Canceled
		}
	}
	if rootCause == nil {
		return nil
	}
	return &BuildError{RunID: r.runID, Failed: failed, Cause: rootCause}
}
