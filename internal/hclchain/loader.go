package hclchain

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/hashicorp/hcl/v2/hclsyntax"

	"github.com/specialistvlad/buildchain/internal/chain"
	"github.com/specialistvlad/buildchain/internal/ctxlog"
	"github.com/specialistvlad/buildchain/internal/fsutil"
	"github.com/specialistvlad/buildchain/internal/item"
	"github.com/specialistvlad/buildchain/internal/registry"
)

// ErrNoFiles is returned when none of the given paths holds a chain file.
var ErrNoFiles = errors.New("no chain files found")

// Annotation keys set on every loaded step.
const (
	AnnotationHandler   = "handler"
	AnnotationArguments = "arguments"
	AnnotationSource    = "source"
	// AnnotationEnv holds the environment values the arguments read, so a
	// changed environment changes the chain fingerprint.
	AnnotationEnv = "env"
)

// Definition is a loaded chain, ready to be built.
type Definition struct {
	Builder *chain.Builder
	// Initial holds the values of the initial blocks, keyed by item.
	Initial map[item.ID][]any
	// Files are the chain files that were loaded, sorted.
	Files []string
}

// Loader turns chain files into a chain.Builder whose steps call handlers
// from a registry.
type Loader struct {
	handlers *registry.Registry
	output   io.Writer
}

// NewLoader creates a loader resolving handler names against handlers.
// Handlers write user-facing output to output.
func NewLoader(handlers *registry.Registry, output io.Writer) *Loader {
	if output == nil {
		output = io.Discard
	}
	return &Loader{handlers: handlers, output: output}
}

// Load parses every .hcl file under paths. All problems found across the
// files are returned together as hcl.Diagnostics.
func (l *Loader) Load(ctx context.Context, paths ...string) (*Definition, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("HCL chain loader started.", "path_count", len(paths))

	files, err := fsutil.FindAll(paths, ".hcl")
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("%w in %s", ErrNoFiles, strings.Join(paths, ", "))
	}
	logger.Debug("Discovered HCL files.", "count", len(files))

	parser := hclparse.NewParser()
	evalCtx := newEvalContext()

	var diags hcl.Diagnostics
	var roots []*fileRoot
	for _, file := range files {
		hclFile, parseDiags := parser.ParseHCLFile(file)
		diags = append(diags, parseDiags...)
		if parseDiags.HasErrors() {
			continue
		}
		var root fileRoot
		diags = append(diags, gohcl.DecodeBody(hclFile.Body, evalCtx, &root)...)
		roots = append(roots, &root)
	}
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse chain files: %w", diags)
	}

	ld := &load{
		Loader:  l,
		ctx:     ctx,
		evalCtx: evalCtx,
		sources: parser.Files(),
		items:   item.NewRegistry(),
		def:     &Definition{Initial: make(map[item.ID][]any), Files: files},
	}
	ld.def.Builder = chain.NewBuilder(ld.items)

	// Items first: any other block may refer to an item from any file.
	for _, root := range roots {
		for _, b := range root.Items {
			ld.declareItem(b)
		}
	}
	for _, root := range roots {
		for _, b := range root.Initials {
			ld.addInitial(b)
		}
		for _, b := range root.Finals {
			ld.addFinal(b)
		}
		for _, b := range root.Steps {
			ld.addStep(b)
		}
	}
	if ld.diags.HasErrors() {
		return nil, fmt.Errorf("invalid chain definition: %w", ld.diags)
	}

	logger.Info("Chain files loaded.",
		"files", len(files),
		"items", len(ld.items.All()),
		"steps", len(ld.def.Builder.Steps()),
	)
	return ld.def, nil
}

// load is the state of one Load call.
type load struct {
	*Loader
	ctx     context.Context
	evalCtx *hcl.EvalContext
	sources map[string]*hcl.File
	items   *item.Registry
	def     *Definition
	diags   hcl.Diagnostics
}

func (ld *load) errorf(rng hcl.Range, summary, format string, args ...any) {
	subject := rng
	ld.diags = append(ld.diags, &hcl.Diagnostic{
		Severity: hcl.DiagError,
		Summary:  summary,
		Detail:   fmt.Sprintf(format, args...),
		Subject:  &subject,
	})
}

func (ld *load) declareItem(b *itemBlock) {
	mode, err := item.ParseMode(b.Mode)
	if err != nil {
		ld.errorf(b.DefRange, "Invalid item mode", "Item %q: %s.", b.Name, err)
		return
	}
	id, err := ld.items.Declare(b.Name, mode)
	if err != nil {
		ld.errorf(b.DefRange, "Invalid item declaration", "%s.", err)
		return
	}
	if b.Description != "" {
		ld.items.Describe(id, b.Description)
	}
}

func (ld *load) lookup(rng hcl.Range, owner, name string) (item.ID, bool) {
	id, ok := ld.items.Lookup(name)
	if !ok {
		ld.errorf(rng, "Unknown item", "%s refers to item %q, which is not declared by any item block.", owner, name)
	}
	return id, ok
}

func (ld *load) lookupAll(rng hcl.Range, owner string, names []string) []item.ID {
	ids := make([]item.ID, 0, len(names))
	for _, name := range names {
		if id, ok := ld.lookup(rng, owner, name); ok {
			ids = append(ids, id)
		}
	}
	return ids
}

func (ld *load) addInitial(b *initialBlock) {
	owner := fmt.Sprintf("Initial block %q", b.Name)
	id, ok := ld.lookup(b.DefRange, owner, b.Name)
	if !ok {
		return
	}
	ld.def.Builder.AddInitial(id)

	hasValue := isExprDefined(ld.ctx, b.Value, "value")
	hasValues := isExprDefined(ld.ctx, b.Values, "values")
	switch {
	case hasValue && hasValues:
		ld.errorf(b.DefRange, "Conflicting initial value", "%s sets both value and values.", owner)
	case hasValues && !id.IsMulti():
		ld.errorf(b.Values.Range(), "Invalid initial values", "%s: values is only allowed for multi items, use value.", owner)
	case hasValue:
		if v, ok := ld.evaluate(b.Value); ok {
			ld.def.Initial[id] = append(ld.def.Initial[id], v)
		}
	case hasValues:
		v, ok := ld.evaluate(b.Values)
		if !ok {
			return
		}
		list, isList := v.([]any)
		if !isList {
			ld.errorf(b.Values.Range(), "Invalid initial values", "%s: values must be a list.", owner)
			return
		}
		ld.def.Initial[id] = append(ld.def.Initial[id], list...)
	}
}

func (ld *load) evaluate(expr hcl.Expression) (any, bool) {
	val, diags := expr.Value(ld.evalCtx)
	ld.diags = append(ld.diags, diags...)
	if diags.HasErrors() {
		return nil, false
	}
	native, err := ToNative(val)
	if err != nil {
		ld.errorf(expr.Range(), "Unsupported value", "%s.", err)
		return nil, false
	}
	return native, true
}

func (ld *load) addFinal(b *finalBlock) {
	if id, ok := ld.lookup(b.DefRange, fmt.Sprintf("Final block %q", b.Name), b.Name); ok {
		ld.def.Builder.AddFinal(id)
	}
}

func (ld *load) addStep(b *stepBlock) {
	owner := fmt.Sprintf("Step %q", b.Name)
	handler, ok := ld.handlers.Handler(b.Handler)
	if !ok {
		ld.errorf(b.DefRange, "Unknown handler", "%s uses handler %q; registered handlers are: %s.",
			owner, b.Handler, strings.Join(ld.handlers.Names(), ", "))
		return
	}

	input, ok := ld.decodeInput(owner, handler, b.Arguments)
	if !ok {
		return
	}

	consumes := ld.lookupAll(b.DefRange, owner, b.Consumes)
	consumesOptional := ld.lookupAll(b.DefRange, owner, b.ConsumesOptional)
	produces := ld.lookupAll(b.DefRange, owner, b.Produces)
	overridable := ld.lookupAll(b.DefRange, owner, b.ProducesOverridable)
	weak := ld.lookupAll(b.DefRange, owner, b.ProducesWeak)

	var allProduced []item.ID
	allProduced = append(allProduced, produces...)
	allProduced = append(allProduced, overridable...)
	allProduced = append(allProduced, weak...)

	var consumptions []chain.Consumption
	output := ld.output
	fn := handler.Fn
	sb := ld.def.Builder.AddStep(b.Name, func(ctx context.Context, sc chain.StepContext) error {
		return fn(ctx, &registry.Call{
			StepContext: sc,
			Input:       input,
			Consumes:    consumptions,
			Produces:    allProduced,
			Output:      output,
		})
	})
	sb.Consumes(consumes...).
		ConsumesOptional(consumesOptional...).
		Produces(produces...).
		ProducesOverridable(overridable...).
		ProducesWeak(weak...).
		Annotate(AnnotationHandler, b.Handler).
		Annotate(AnnotationSource, b.DefRange.String())
	if b.Arguments != nil {
		sb.Annotate(AnnotationArguments, ld.sourceOf(b.Arguments.Body))
		if env := envReferences(b.Arguments.Body, ld.evalCtx); env != "" {
			sb.Annotate(AnnotationEnv, env)
		}
	}
	if b.NonEssential {
		sb.NonEssential()
	}
	consumptions = sb.Declaration().Consumes
	sb.Register()
}

func (ld *load) decodeInput(owner string, handler *registry.RegisteredHandler, args *argumentsBlock) (any, bool) {
	if handler.NewInput == nil {
		if args != nil {
			ld.errorf(args.DefRange, "Unexpected arguments block", "%s: its handler takes no arguments.", owner)
			return nil, false
		}
		return nil, true
	}

	input := handler.NewInput()
	body := hcl.EmptyBody()
	if args != nil {
		body = args.Body
	}
	diags := gohcl.DecodeBody(body, ld.evalCtx, input)
	ld.diags = append(ld.diags, diags...)
	return input, !diags.HasErrors()
}

// sourceOf returns the source text of a native syntax body.
func (ld *load) sourceOf(body hcl.Body) string {
	sb, ok := body.(*hclsyntax.Body)
	if !ok {
		return ""
	}
	f, ok := ld.sources[sb.SrcRange.Filename]
	if !ok || sb.SrcRange.End.Byte > len(f.Bytes) {
		return ""
	}
	return strings.TrimSpace(string(f.Bytes[sb.SrcRange.Start.Byte:sb.SrcRange.End.Byte]))
}
