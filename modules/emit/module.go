// Package emit provides the emit handler, which records a literal value into
// every item its step produces.
package emit

import (
	"context"
	"fmt"

	"github.com/zclconf/go-cty/cty"

	"github.com/specialistvlad/buildchain/internal/ctxlog"
	"github.com/specialistvlad/buildchain/internal/hclchain"
	"github.com/specialistvlad/buildchain/internal/registry"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

// Input defines the arguments for the emit handler.
type Input struct {
	Value cty.Value `hcl:"value"`
}

// OnRunEmit records the value argument into every produced item.
func OnRunEmit(ctx context.Context, call *registry.Call) error {
	input := call.Input.(*Input)
	value, err := hclchain.ToNative(input.Value)
	if err != nil {
		return fmt.Errorf("converting value: %w", err)
	}
	ctxlog.FromContext(ctx).Debug("Emitting value.", "step", call.StepName(), "items", len(call.Produces))
	return call.RecordAll(value)
}

// Register registers the handler with the registry.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterHandler("emit", &registry.RegisteredHandler{
		NewInput: func() any { return new(Input) },
		Fn:       OnRunEmit,
	})
}
