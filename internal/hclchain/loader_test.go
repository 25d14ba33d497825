package hclchain

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hashicorp/hcl/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zclconf/go-cty/cty"

	"github.com/specialistvlad/buildchain/internal/chain"
	"github.com/specialistvlad/buildchain/internal/chaincache"
	"github.com/specialistvlad/buildchain/internal/executor"
	"github.com/specialistvlad/buildchain/internal/item"
	"github.com/specialistvlad/buildchain/internal/registry"
	"github.com/specialistvlad/buildchain/internal/testutil"
)

type echoInput struct {
	Value cty.Value `hcl:"value"`
}

// echoModule registers "echo", which records its value argument, and
// "join", which records the string values it consumes joined by commas.
type echoModule struct{}

func (echoModule) Register(r *registry.Registry) {
	r.RegisterHandler("echo", &registry.RegisteredHandler{
		NewInput: func() any { return new(echoInput) },
		Fn: func(ctx context.Context, call *registry.Call) error {
			v, err := ToNative(call.Input.(*echoInput).Value)
			if err != nil {
				return err
			}
			return call.RecordAll(v)
		},
	})
	r.RegisterHandler("join", &registry.RegisteredHandler{
		Fn: func(ctx context.Context, call *registry.Call) error {
			var parts []string
			for _, c := range call.Consumes {
				values, err := call.Read(c.Item)
				if err != nil {
					return err
				}
				for _, v := range values {
					parts = append(parts, v.(string))
				}
			}
			return call.RecordAll(strings.Join(parts, ","))
		},
	})
}

func newTestLoader(out *bytes.Buffer) *Loader {
	r := registry.New()
	r.Install(echoModule{}, &testutil.NoOpModule{})
	return NewLoader(r, out)
}

func loadFiles(t *testing.T, files map[string]string) (*Definition, error) {
	t.Helper()
	dir := t.TempDir()
	testutil.WriteFiles(t, dir, files)
	return newTestLoader(nil).Load(context.Background(), dir)
}

func diagnostics(t *testing.T, err error) hcl.Diagnostics {
	t.Helper()
	var diags hcl.Diagnostics
	require.True(t, errors.As(err, &diags), "expected hcl diagnostics, got %v", err)
	return diags
}

const demoChain = `
item "config"  { mode = "single" }
item "classes" { mode = "multi" }
item "archive" {}
item "extra"   { mode = "optional" }

initial "config" {
  value = { name = "demo", level = 2 }
}

final "archive" {}

step "compile_a" {
  handler  = "echo"
  consumes = ["config"]
  produces = ["classes"]
  arguments {
    value = "A.class"
  }
}

step "compile_b" {
  handler  = "echo"
  consumes = ["config"]
  produces = ["classes"]
  arguments {
    value = "B.class"
  }
}

step "package" {
  handler           = "join"
  consumes          = ["classes"]
  consumes_optional = ["extra"]
  produces          = ["archive"]
}

step "unrelated" {
  handler       = "noop"
  non_essential = true
}
`

func TestLoad_DemoChain(t *testing.T) {
	def, err := loadFiles(t, map[string]string{"main.hcl": demoChain})
	require.NoError(t, err)
	require.Len(t, def.Files, 1)

	items := def.Builder.Items()
	config, ok := items.Lookup("config")
	require.True(t, ok)
	assert.Equal(t, item.Single, config.Mode())
	classes, _ := items.Lookup("classes")
	assert.Equal(t, item.Multi, classes.Mode())
	archive, _ := items.Lookup("archive")
	assert.Equal(t, item.Single, archive.Mode())

	assert.Equal(t, map[item.ID][]any{
		config: {map[string]any{"name": "demo", "level": int64(2)}},
	}, def.Initial)
	assert.Equal(t, []string{"compile_a", "compile_b", "package", "unrelated"}, def.Builder.Steps())

	c, err := def.Builder.Build(context.Background())
	require.NoError(t, err)

	// The final item prunes the step that contributes nothing.
	_, ok = c.Step("unrelated")
	assert.False(t, ok)

	pkg, ok := c.Step("package")
	require.True(t, ok)
	assert.Equal(t, "join", pkg.Annotations[AnnotationHandler])
	assert.Contains(t, pkg.Annotations[AnnotationSource], "main.hcl")

	compileA, _ := c.Step("compile_a")
	assert.Contains(t, compileA.Annotations[AnnotationArguments], `value = "A.class"`)
}

func TestLoad_ExecutesRoundTrip(t *testing.T) {
	def, err := loadFiles(t, map[string]string{"main.hcl": demoChain})
	require.NoError(t, err)

	c, err := def.Builder.Build(context.Background())
	require.NoError(t, err)

	res, err := executor.New(c, executor.WithWorkers(2)).Execute(context.Background(), def.Initial)
	require.NoError(t, err)
	require.True(t, res.Succeeded)

	archive, _ := c.Items().Lookup("archive")
	values, ok := res.Final(archive)
	require.True(t, ok)
	assert.Equal(t, []any{"A.class,B.class"}, values)
}

func TestLoad_ItemsAcrossFiles(t *testing.T) {
	def, err := loadFiles(t, map[string]string{
		"steps/build.hcl": `
step "produce" {
  handler  = "echo"
  produces = ["out"]
  arguments { value = "x" }
}
`,
		"items.hcl": `item "out" {}
final "out" {}`,
	})
	require.NoError(t, err)
	assert.Len(t, def.Files, 2)

	c, err := def.Builder.Build(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"produce"}, c.Order())
}

func TestLoad_InitialValues(t *testing.T) {
	def, err := loadFiles(t, map[string]string{"main.hcl": `
item "sources" { mode = "multi" }
item "name" {}
item "empty" { mode = "multi" }

initial "sources" {
  values = ["a.go", "b.go"]
}
initial "name" {
  value = "demo-${upper("x")}"
}
initial "empty" {}
`})
	// upper is not available: expressions run without functions.
	require.Error(t, err)
	assert.Contains(t, err.Error(), "upper")

	def, err = loadFiles(t, map[string]string{"main.hcl": `
item "sources" { mode = "multi" }
item "name" {}
item "empty" { mode = "multi" }

initial "sources" {
  values = ["a.go", "b.go"]
}
initial "name" {
  value = "demo"
}
initial "empty" {}
`})
	require.NoError(t, err)

	items := def.Builder.Items()
	sources, _ := items.Lookup("sources")
	name, _ := items.Lookup("name")
	empty, _ := items.Lookup("empty")
	assert.Equal(t, []any{"a.go", "b.go"}, def.Initial[sources])
	assert.Equal(t, []any{"demo"}, def.Initial[name])
	assert.NotContains(t, def.Initial, empty)

	c, err := def.Builder.Build(context.Background())
	require.NoError(t, err)
	assert.ElementsMatch(t, []item.ID{sources, name, empty}, c.Initial())
}

func TestLoad_EnvironmentVariables(t *testing.T) {
	t.Setenv("BUILDCHAIN_LOADER_TEST", "from-env")

	def, err := loadFiles(t, map[string]string{"main.hcl": `
item "name" {}
initial "name" {
  value = env.BUILDCHAIN_LOADER_TEST
}
`})
	require.NoError(t, err)
	name, _ := def.Builder.Items().Lookup("name")
	assert.Equal(t, []any{"from-env"}, def.Initial[name])
}

func TestLoad_EnvironmentIsPartOfTheFingerprint(t *testing.T) {
	dir := t.TempDir()
	testutil.WriteFiles(t, dir, map[string]string{"main.hcl": `
item "greeting" {}
final "greeting" {}

step "greet" {
  handler  = "echo"
  produces = ["greeting"]
  arguments {
    value = "hello ${env.BUILDCHAIN_GREETING_TEST}"
  }
}
`})
	cache, err := chaincache.New(4)
	require.NoError(t, err)
	loader := newTestLoader(nil)

	run := func() (string, bool) {
		def, err := loader.Load(context.Background(), dir)
		require.NoError(t, err)
		c, cached, err := cache.Build(context.Background(), def.Builder)
		require.NoError(t, err)
		res, err := executor.New(c).Execute(context.Background(), def.Initial)
		require.NoError(t, err)
		greeting, _ := c.Items().Lookup("greeting")
		values, _ := res.Final(greeting)
		require.Len(t, values, 1)
		return values[0].(string), cached
	}

	t.Setenv("BUILDCHAIN_GREETING_TEST", "world")
	got, cached := run()
	assert.Equal(t, "hello world", got)
	assert.False(t, cached)

	got, cached = run()
	assert.Equal(t, "hello world", got)
	assert.True(t, cached, "an unchanged environment reuses the chain")

	t.Setenv("BUILDCHAIN_GREETING_TEST", "gophers")
	got, cached = run()
	assert.Equal(t, "hello gophers", got, "a changed environment must not run stale arguments")
	assert.False(t, cached)
}

func TestLoad_Errors(t *testing.T) {
	testCases := []struct {
		name    string
		src     string
		summary string
	}{
		{
			name:    "syntax error",
			src:     `item "x" {`,
			summary: "Unclosed configuration block",
		},
		{
			name:    "unknown block",
			src:     `thing "x" {}`,
			summary: "Unsupported block type",
		},
		{
			name:    "invalid mode",
			src:     `item "x" { mode = "many" }`,
			summary: "Invalid item mode",
		},
		{
			name: "mode conflict",
			src: `item "x" { mode = "single" }
item "x" { mode = "multi" }`,
			summary: "Invalid item declaration",
		},
		{
			name: "unknown item in step",
			src: `step "s" {
  handler  = "noop"
  consumes = ["missing"]
}`,
			summary: "Unknown item",
		},
		{
			name:    "unknown final item",
			src:     `final "missing" {}`,
			summary: "Unknown item",
		},
		{
			name:    "unknown handler",
			src:     `step "s" { handler = "nope" }`,
			summary: "Unknown handler",
		},
		{
			name:    "missing handler",
			src:     `step "s" {}`,
			summary: "Missing required argument",
		},
		{
			name:    "missing handler argument",
			src:     `step "s" { handler = "echo" }`,
			summary: "Missing required argument",
		},
		{
			name: "arguments for handler without input",
			src: `step "s" {
  handler = "noop"
  arguments { value = 1 }
}`,
			summary: "Unexpected arguments block",
		},
		{
			name: "value and values",
			src: `item "x" { mode = "multi" }
initial "x" {
  value  = 1
  values = [1]
}`,
			summary: "Conflicting initial value",
		},
		{
			name: "values on single item",
			src: `item "x" {}
initial "x" { values = [1] }`,
			summary: "Invalid initial values",
		},
		{
			name: "values not a list",
			src: `item "x" { mode = "multi" }
initial "x" { values = "a" }`,
			summary: "Invalid initial values",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := loadFiles(t, map[string]string{"main.hcl": tc.src})
			require.Error(t, err)
			diags := diagnostics(t, err)
			var summaries []string
			for _, d := range diags {
				summaries = append(summaries, d.Summary)
			}
			assert.Contains(t, summaries, tc.summary)
		})
	}
}

func TestLoad_ReportsEveryProblem(t *testing.T) {
	_, err := loadFiles(t, map[string]string{
		"a.hcl": `step "a" { handler = "nope" }`,
		"b.hcl": `final "missing" {}`,
	})
	require.Error(t, err)
	assert.Len(t, diagnostics(t, err), 2)
}

func TestLoad_NoFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.md"), []byte("x"), 0o644))

	_, err := newTestLoader(nil).Load(context.Background(), dir)
	assert.ErrorIs(t, err, ErrNoFiles)

	_, err = newTestLoader(nil).Load(context.Background(), filepath.Join(dir, "missing"))
	assert.ErrorContains(t, err, "error accessing path")
}

func TestLoad_ConfigurationErrorsSurfaceAtBuild(t *testing.T) {
	def, err := loadFiles(t, map[string]string{"main.hcl": `
item "x" {}
item "y" {}
step "a" {
  handler  = "noop"
  consumes = ["y"]
  produces = ["x"]
}
step "b" {
  handler  = "noop"
  consumes = ["x"]
  produces = ["y"]
}
`})
	require.NoError(t, err)

	_, err = def.Builder.Build(context.Background())
	assert.ErrorIs(t, err, chain.ErrCycle)
}
