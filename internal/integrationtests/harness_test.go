package integrationtests

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/specialistvlad/buildchain/internal/app"
	"github.com/specialistvlad/buildchain/internal/executor"
	"github.com/specialistvlad/buildchain/internal/registry"
	"github.com/specialistvlad/buildchain/internal/testutil"
	"github.com/specialistvlad/buildchain/modules/collect"
	"github.com/specialistvlad/buildchain/modules/emit"
)

// runResult holds everything a test may want to inspect after a run.
type runResult struct {
	App    *app.App
	Result *executor.Result
	Err    error
	Output *testutil.SafeBuffer
	Logs   *testutil.SafeBuffer
}

// baseModules are registered for every run next to the test's own modules.
func baseModules() []registry.Module {
	return []registry.Module{&emit.Module{}, &collect.Module{}, &testutil.NoOpModule{}, &testutil.FailModule{}}
}

// newApp writes files to a temporary directory and builds an App that loads
// them. mutate may adjust the configuration before it is validated.
func newApp(t *testing.T, files map[string]string, mutate func(*app.Config), modules ...registry.Module) (*app.App, *testutil.SafeBuffer, *testutil.SafeBuffer) {
	t.Helper()

	dir := t.TempDir()
	testutil.WriteFiles(t, dir, files)

	raw := app.Config{
		ChainPaths:     []string{dir},
		Workers:        4,
		LogLevel:       "debug",
		MetricExporter: "none",
		NoColor:        true,
	}
	if mutate != nil {
		mutate(&raw)
	}
	logs := &testutil.SafeBuffer{}
	raw.LogOutput = logs

	cfg, err := app.NewConfig(raw)
	require.NoError(t, err, "test configuration must be valid")

	out := &testutil.SafeBuffer{}
	a, err := app.NewApp(context.Background(), out, cfg, append(baseModules(), modules...)...)
	require.NoError(t, err, "app setup should not fail")
	t.Cleanup(func() { _ = a.Close() })
	return a, out, logs
}

// runChain runs the chain in files once.
func runChain(t *testing.T, files map[string]string, mutate func(*app.Config), modules ...registry.Module) runResult {
	t.Helper()

	a, out, logs := newApp(t, files, mutate, modules...)
	res, err := a.Run(context.Background())
	if err != nil {
		t.Logf("run error: %v\nlogs:\n%s", err, logs.String())
	}
	return runResult{App: a, Result: res, Err: err, Output: out, Logs: logs}
}

func stepResult(t *testing.T, res *executor.Result, name string) executor.StepResult {
	t.Helper()
	require.NotNil(t, res)
	step, ok := res.Step(name)
	require.True(t, ok, "step %q missing from result", name)
	return step
}
