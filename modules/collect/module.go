// Package collect provides the collect handler, which gathers every consumed
// value into one list.
package collect

import (
	"context"

	"github.com/specialistvlad/buildchain/internal/registry"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

// OnRunCollect reads the consumed items in declaration order and records the
// concatenation of their values into every produced item. Multi items
// contribute each of their values.
func OnRunCollect(ctx context.Context, call *registry.Call) error {
	collected := make([]any, 0, len(call.Consumes))
	for _, c := range call.Consumes {
		values, err := call.Read(c.Item)
		if err != nil {
			return err
		}
		collected = append(collected, values...)
	}
	return call.RecordAll(collected)
}

// Register registers the handler with the registry.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterHandler("collect", &registry.RegisteredHandler{
		Fn: OnRunCollect,
	})
}
