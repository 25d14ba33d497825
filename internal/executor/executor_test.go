package executor

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/specialistvlad/buildchain/internal/chain"
	"github.com/specialistvlad/buildchain/internal/events"
	"github.com/specialistvlad/buildchain/internal/item"
	"github.com/specialistvlad/buildchain/internal/itemstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// fixture bundles an item registry and a chain builder for one test.
type fixture struct {
	t     *testing.T
	items *item.Registry
	b     *chain.Builder
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	reg := item.NewRegistry()
	return &fixture{t: t, items: reg, b: chain.NewBuilder(reg)}
}

func (f *fixture) item(name string, mode item.Mode) item.ID {
	f.t.Helper()
	id, err := f.items.Declare(name, mode)
	require.NoError(f.t, err)
	return id
}

func (f *fixture) build() *chain.Chain {
	f.t.Helper()
	c, err := f.b.Build(context.Background())
	require.NoError(f.t, err)
	return c
}

// recordValue returns a step that records v into id.
func recordValue(id item.ID, v any) chain.StepFunc {
	return func(_ context.Context, sc chain.StepContext) error {
		return sc.Record(id, v)
	}
}

func failWith(msg string) chain.StepFunc {
	return func(context.Context, chain.StepContext) error {
		return errors.New(msg)
	}
}

// sequence records the order in which steps ran.
type sequence struct {
	mu    sync.Mutex
	names []string
}

func (s *sequence) step(name string, next chain.StepFunc) chain.StepFunc {
	return func(ctx context.Context, sc chain.StepContext) error {
		s.mu.Lock()
		s.names = append(s.names, name)
		s.mu.Unlock()
		if next == nil {
			return nil
		}
		return next(ctx, sc)
	}
}

func (s *sequence) get() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.names...)
}

func statusOf(t *testing.T, res *Result, name string) StepResult {
	t.Helper()
	sr, ok := res.Step(name)
	require.True(t, ok, "no result for step %s", name)
	return sr
}

func TestExecute_LinearScenario(t *testing.T) {
	f := newFixture(t)
	x := f.item("x", item.Single)
	y := f.item("y", item.Single)

	var seq sequence
	var reads atomic.Int32
	var got []any
	f.b.AddStep("A", seq.step("A", recordValue(x, "from A"))).Produces(x).Register()
	f.b.AddStep("B", seq.step("B", func(_ context.Context, sc chain.StepContext) error {
		in, err := sc.Read(x)
		if err != nil {
			return err
		}
		return sc.Record(y, in[0].(string)+" via B")
	})).Consumes(x).Produces(y).Register()
	f.b.AddStep("C", seq.step("C", func(_ context.Context, sc chain.StepContext) error {
		reads.Add(1)
		v, err := sc.Read(y)
		got = v
		return err
	})).Consumes(y).Register()

	res, err := New(f.build(), WithWorkers(4)).Execute(context.Background(), nil)
	require.NoError(t, err)
	assert.True(t, res.Succeeded)
	assert.Equal(t, []string{"A", "B", "C"}, seq.get())
	assert.Equal(t, int32(1), reads.Load())
	assert.Equal(t, []any{"from A via B"}, got)
	assert.Equal(t, 3, res.Count(Completed))
	assert.NotEmpty(t, res.RunID)
}

func TestExecute_IndependentStepsRunConcurrently(t *testing.T) {
	run := func(workers int) (overlap bool) {
		f := newFixture(t)
		var mu sync.Mutex
		type span struct{ start, end time.Time }
		spans := map[string]span{}
		sleepy := func(name string) chain.StepFunc {
			return func(context.Context, chain.StepContext) error {
				start := time.Now()
				time.Sleep(50 * time.Millisecond)
				mu.Lock()
				spans[name] = span{start, time.Now()}
				mu.Unlock()
				return nil
			}
		}
		f.b.AddStep("one", sleepy("one")).Register()
		f.b.AddStep("two", sleepy("two")).Register()

		_, err := New(f.build(), WithWorkers(workers)).Execute(context.Background(), nil)
		require.NoError(t, err)
		a, b := spans["one"], spans["two"]
		return a.start.Before(b.end) && b.start.Before(a.end)
	}

	assert.True(t, run(2), "steps without a dependency should overlap")
	assert.False(t, run(1), "a single worker runs steps one at a time")
}

func TestExecute_FatalFailureSkipsDependents(t *testing.T) {
	f := newFixture(t)
	x := f.item("x", item.Single)
	y := f.item("y", item.Single)
	z := f.item("z", item.Single)
	final := f.item("sibling-out", item.Single)

	f.b.AddStep("S", failWith("compiler crashed")).Produces(x).Register()
	f.b.AddStep("D1", recordValue(y, 1)).Consumes(x).Produces(y).Register()
	f.b.AddStep("D2", recordValue(z, 2)).Consumes(y).Produces(z).Register()
	f.b.AddStep("sibling", recordValue(final, "ok")).Produces(final).Register()
	f.b.AddFinal(final, z)

	res, err := New(f.build()).Execute(context.Background(), nil)
	require.Error(t, err)

	var buildErr *BuildError
	require.ErrorAs(t, err, &buildErr)
	assert.Equal(t, []string{"S"}, buildErr.Failed)
	assert.ErrorContains(t, err, "compiler crashed")

	var stepErr *StepError
	require.ErrorAs(t, err, &stepErr)
	assert.Equal(t, "S", stepErr.Step)
	assert.True(t, stepErr.Fatal)

	assert.False(t, res.Succeeded)
	assert.Equal(t, Failed, statusOf(t, res, "S").Status)
	for _, name := range []string{"D1", "D2"} {
		sr := statusOf(t, res, name)
		assert.Equal(t, Skipped, sr.Status, name)
		assert.Equal(t, ReasonUpstreamFailed, sr.Reason, name)
	}
	assert.Equal(t, Completed, statusOf(t, res, "sibling").Status)
	assert.Empty(t, res.Finals, "failed builds expose no final items")
}

func TestExecute_NonEssentialFailure(t *testing.T) {
	f := newFixture(t)
	x := f.item("x", item.Single)
	y := f.item("y", item.Single)
	m := f.item("m", item.Multi)
	out := f.item("out", item.Multi)

	var optionalSaw, multiSaw []any
	f.b.AddStep("flaky", failWith("network down")).Produces(x).NonEssential().Register()
	f.b.AddStep("m-ok", recordValue(m, "kept")).Produces(m).Register()
	f.b.AddStep("m-flaky", func(_ context.Context, sc chain.StepContext) error {
		if err := sc.Record(m, "dropped"); err != nil {
			return err
		}
		return errors.New("late failure")
	}).Produces(m).NonEssential().Register()
	f.b.AddStep("requires", recordValue(y, "never")).Consumes(x).Produces(y).Register()
	f.b.AddStep("requires-transitively", recordValue(out, "never")).Consumes(y).Produces(out).Register()
	f.b.AddStep("optional", func(_ context.Context, sc chain.StepContext) error {
		v, err := sc.Read(x)
		optionalSaw = v
		if err != nil {
			return err
		}
		return sc.Record(out, "optional ran")
	}).ConsumesOptional(x).Produces(out).Register()
	f.b.AddStep("multi", func(_ context.Context, sc chain.StepContext) error {
		v, err := sc.Read(m)
		multiSaw = v
		return err
	}).Consumes(m).Register()

	res, err := New(f.build()).Execute(context.Background(), nil)
	require.NoError(t, err)
	assert.True(t, res.Succeeded)

	flaky := statusOf(t, res, "flaky")
	assert.Equal(t, Failed, flaky.Status)
	assert.False(t, flaky.Fatal)

	for _, name := range []string{"requires", "requires-transitively"} {
		sr := statusOf(t, res, name)
		assert.Equal(t, Skipped, sr.Status, name)
		assert.Equal(t, ReasonNotProduced, sr.Reason, name)
	}
	assert.Contains(t, statusOf(t, res, "requires").Detail, "x")

	assert.Equal(t, Completed, statusOf(t, res, "optional").Status)
	assert.Empty(t, optionalSaw)
	assert.Equal(t, Completed, statusOf(t, res, "multi").Status)
	assert.Equal(t, []any{"kept"}, multiSaw)
}

func TestExecute_OptionalWithoutProducer(t *testing.T) {
	f := newFixture(t)
	o := f.item("o", item.Optional)

	ran := false
	f.b.AddStep("reader", func(_ context.Context, sc chain.StepContext) error {
		ran = true
		v, err := sc.Read(o)
		if err != nil {
			return err
		}
		if len(v) != 0 || sc.Status(o) != itemstore.NotProduced {
			return errors.New("expected an absent value")
		}
		return nil
	}).Consumes(o).Register()

	_, err := New(f.build()).Execute(context.Background(), nil)
	require.NoError(t, err)
	assert.True(t, ran)
}

func TestExecute_FailFastCancelsPendingSteps(t *testing.T) {
	f := newFixture(t)
	x := f.item("x", item.Single)
	m := f.item("m", item.Multi)

	slowStarted := make(chan struct{})
	f.b.AddStep("fails", func(context.Context, chain.StepContext) error {
		<-slowStarted
		return errors.New("boom")
	}).Register()
	f.b.AddStep("slow", func(ctx context.Context, sc chain.StepContext) error {
		close(slowStarted)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(300 * time.Millisecond):
		}
		return sc.Record(x, "finished")
	}).Produces(x).Register()
	f.b.AddStep("after-slow", recordValue(m, 1)).Consumes(x).Produces(m).Register()

	res, err := New(f.build(), WithFailFast(true), WithWorkers(2)).Execute(context.Background(), nil)
	require.Error(t, err)
	var buildErr *BuildError
	require.ErrorAs(t, err, &buildErr)
	assert.Equal(t, []string{"fails"}, buildErr.Failed, "a running sibling must not be blamed")
	assert.ErrorContains(t, err, "boom")

	slow := statusOf(t, res, "slow")
	assert.Equal(t, Completed, slow.Status, "running steps finish")
	assert.NoError(t, slow.Err)
	assert.False(t, slow.Fatal)

	after := statusOf(t, res, "after-slow")
	assert.Equal(t, Skipped, after.Status)
	assert.Equal(t, ReasonCanceled, after.Reason)
}

func TestExecute_CallerCancellation(t *testing.T) {
	f := newFixture(t)
	x := f.item("x", item.Single)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.b.AddStep("first", func(_ context.Context, sc chain.StepContext) error {
		cancel()
		return sc.Record(x, "done")
	}).Produces(x).Register()
	f.b.AddStep("second", func(context.Context, chain.StepContext) error { return nil }).Consumes(x).Register()

	res, err := New(f.build()).Execute(ctx, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, Completed, statusOf(t, res, "first").Status)
	assert.Equal(t, ReasonCanceled, statusOf(t, res, "second").Reason)
}

func TestExecute_PanicIsAFailure(t *testing.T) {
	f := newFixture(t)
	f.b.AddStep("panics", func(context.Context, chain.StepContext) error {
		panic("nil map")
	}).Register()

	res, err := New(f.build()).Execute(context.Background(), nil)
	require.ErrorIs(t, err, ErrPanic)
	assert.ErrorContains(t, err, "nil map")
	assert.Equal(t, Failed, statusOf(t, res, "panics").Status)
}

func TestExecute_ContextViolationsAreFatal(t *testing.T) {
	tests := []struct {
		name     string
		fn       func(x, other item.ID) chain.StepFunc
		sentinel error
	}{
		{
			name: "double write",
			fn: func(x, _ item.ID) chain.StepFunc {
				return func(_ context.Context, sc chain.StepContext) error {
					_ = sc.Record(x, 1)
					_ = sc.Record(x, 2)
					return nil
				}
			},
			sentinel: itemstore.ErrDoubleWrite,
		},
		{
			name: "undeclared record",
			fn: func(_, other item.ID) chain.StepFunc {
				return func(_ context.Context, sc chain.StepContext) error {
					return sc.Record(other, 1)
				}
			},
			sentinel: itemstore.ErrUndeclared,
		},
		{
			name: "undeclared read",
			fn: func(_, other item.ID) chain.StepFunc {
				return func(_ context.Context, sc chain.StepContext) error {
					_, _ = sc.Read(other)
					return nil
				}
			},
			sentinel: itemstore.ErrUndeclared,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			x := f.item("x", item.Single)
			other := f.item("other", item.Single)
			f.b.AddStep("offender", tt.fn(x, other)).Produces(x).NonEssential().Register()

			res, err := New(f.build()).Execute(context.Background(), nil)
			require.ErrorIs(t, err, tt.sentinel)
			sr := statusOf(t, res, "offender")
			assert.Equal(t, Failed, sr.Status)
			assert.True(t, sr.Fatal)
		})
	}
}

func TestExecute_TypedMismatchIsFatal(t *testing.T) {
	f := newFixture(t)
	port := item.MustDeclare[int](f.items, "port", item.Single)
	f.b.AddStep("offender", func(_ context.Context, sc chain.StepContext) error {
		return sc.Record(port.ID(), "8080")
	}).Produces(port.ID()).NonEssential().Register()

	_, err := New(f.build()).Execute(context.Background(), nil)
	assert.ErrorIs(t, err, itemstore.ErrTypeMismatch)
}

func TestExecute_InitialItems(t *testing.T) {
	f := newFixture(t)
	config := f.item("config", item.Single)
	sources := f.item("sources", item.Multi)
	out := f.item("out", item.Single)
	f.b.AddInitial(config, sources)
	f.b.AddStep("use", func(_ context.Context, sc chain.StepContext) error {
		cfg, err := sc.Read(config)
		if err != nil {
			return err
		}
		src, err := sc.Read(sources)
		if err != nil {
			return err
		}
		return sc.Record(out, []any{cfg[0], len(src)})
	}).Consumes(config, sources).Produces(out).Register()
	f.b.AddFinal(out)
	exec := New(f.build())

	t.Run("seeded values are visible", func(t *testing.T) {
		res, err := exec.Execute(context.Background(), map[item.ID][]any{
			config:  {"demo"},
			sources: {"a.go", "b.go"},
		})
		require.NoError(t, err)
		values, _ := res.Final(out)
		assert.Equal(t, []any{[]any{"demo", 2}}, values)
	})

	t.Run("missing required initial value", func(t *testing.T) {
		_, err := exec.Execute(context.Background(), nil)
		require.ErrorIs(t, err, ErrInvalidInitial)
		assert.ErrorContains(t, err, "initial item config requires a value")
	})

	t.Run("unknown initial item", func(t *testing.T) {
		_, err := exec.Execute(context.Background(), map[item.ID][]any{
			config: {"demo"},
			out:    {"x"},
		})
		require.ErrorIs(t, err, ErrInvalidInitial)
		assert.ErrorContains(t, err, "not an initial item")
	})
}

func TestExecute_OverriddenProducerIsDiscarded(t *testing.T) {
	f := newFixture(t)
	x := f.item("x", item.Single)
	var seen []any
	f.b.AddStep("default", recordValue(x, "default")).ProducesOverridable(x).Register()
	f.b.AddStep("custom", recordValue(x, "custom")).Produces(x).Register()
	f.b.AddStep("use", func(_ context.Context, sc chain.StepContext) error {
		v, err := sc.Read(x)
		seen = v
		return err
	}).Consumes(x).Register()

	_, err := New(f.build()).Execute(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, []any{"custom"}, seen)
}

func TestExecute_EventsAndSpans(t *testing.T) {
	f := newFixture(t)
	x := f.item("x", item.Single)
	f.b.AddStep("a", recordValue(x, 1)).Produces(x).Register()
	f.b.AddStep("b", failWith("nope")).Consumes(x).NonEssential().Register()

	var rec events.Recorder
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))

	res, err := New(f.build(), WithSink(&rec), WithTracerProvider(tp)).Execute(context.Background(), nil)
	require.NoError(t, err)

	assert.Equal(t, []string{"ready", "running", "completed"}, rec.ForStep("a"))
	assert.Equal(t, []string{"ready", "running", "failed"}, rec.ForStep("b"))
	all := rec.Events()
	assert.Equal(t, "started", all[0].Status)
	assert.Equal(t, "succeeded", all[len(all)-1].Status)
	assert.Equal(t, res.RunID, all[0].RunID)

	names := map[string]bool{}
	for _, s := range sr.Ended() {
		names[s.Name()] = true
	}
	assert.True(t, names["buildchain.execute"])
	assert.True(t, names["step a"])
	assert.True(t, names["step b"])
}

func TestExecute_EmptyChain(t *testing.T) {
	f := newFixture(t)
	res, err := New(f.build()).Execute(context.Background(), nil)
	require.NoError(t, err)
	assert.True(t, res.Succeeded)
	assert.Empty(t, res.Steps)
}

func TestExecute_RandomAcyclicChainsRespectDependencies(t *testing.T) {
	for seed := int64(1); seed <= 25; seed++ {
		rng := rand.New(rand.NewSource(seed))
		t.Run(fmt.Sprintf("seed %d", seed), func(t *testing.T) {
			f := newFixture(t)
			n := 2 + rng.Intn(18)

			var clock atomic.Int64
			started := make([]int64, n)
			finished := make([]int64, n)
			outputs := make([]item.ID, n)
			deps := make([][]int, n)

			for i := 0; i < n; i++ {
				mode := item.Single
				if rng.Intn(3) == 0 {
					mode = item.Multi
				}
				outputs[i] = f.item(fmt.Sprintf("out%d", i), mode)
				for j := 0; j < i; j++ {
					if rng.Intn(4) == 0 {
						deps[i] = append(deps[i], j)
					}
				}
			}
			// Steps are registered in shuffled order so declaration order
			// never hides a scheduling bug.
			for _, i := range rng.Perm(n) {
				consumed := make([]item.ID, 0, len(deps[i]))
				for _, j := range deps[i] {
					consumed = append(consumed, outputs[j])
				}
				pause := time.Duration(rng.Intn(3)) * time.Millisecond
				f.b.AddStep(fmt.Sprintf("s%d", i), func(_ context.Context, sc chain.StepContext) error {
					started[i] = clock.Add(1)
					for _, id := range consumed {
						if _, err := sc.Read(id); err != nil {
							return err
						}
					}
					time.Sleep(pause)
					finished[i] = clock.Add(1)
					return sc.Record(outputs[i], i)
				}).Consumes(consumed...).Produces(outputs[i]).Register()
			}

			res, err := New(f.build(), WithWorkers(1+rng.Intn(6))).Execute(context.Background(), nil)
			require.NoError(t, err)
			require.True(t, res.Succeeded)
			assert.Equal(t, n, res.Count(Completed))

			for i := 0; i < n; i++ {
				for _, j := range deps[i] {
					assert.Less(t, finished[j], started[i], "s%d started before its producer s%d finished", i, j)
				}
			}
		})
	}
}
