package registry

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/specialistvlad/buildchain/internal/chain"
	"github.com/specialistvlad/buildchain/internal/item"
)

// Call is everything a handler sees of the step it runs for.
type Call struct {
	chain.StepContext
	// Input is the decoded arguments block, as returned by NewInput. Handlers
	// must not modify it: the same value is shared by every build of the
	// chain.
	Input    any
	Consumes []chain.Consumption
	Produces []item.ID
	// Output is where handlers write user-facing text.
	Output io.Writer
}

// RecordAll records value into every produced item.
func (c *Call) RecordAll(value any) error {
	for _, id := range c.Produces {
		if err := c.Record(id, value); err != nil {
			return err
		}
	}
	return nil
}

// HandlerFunc is the Go implementation of a step handler.
type HandlerFunc func(ctx context.Context, call *Call) error

// RegisteredHandler holds the compiled Go parts of a handler.
type RegisteredHandler struct {
	// NewInput returns a pointer to a struct with hcl tags that the step's
	// arguments block is decoded into. Nil means the handler takes no
	// arguments.
	NewInput func() any
	Fn       HandlerFunc
}

// RegisterHandler registers a Go function under name. Registering the same
// name twice is a programming error and panics.
func (r *Registry) RegisterHandler(name string, handler *RegisteredHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.handlers[name]; exists {
		panic(fmt.Sprintf("step handler with name '%s' already registered", name))
	}
	slog.Debug("Registering step handler.", "name", name)
	r.handlers[name] = handler
}
