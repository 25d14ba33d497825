package testutil

import (
	"context"
	"errors"

	"github.com/specialistvlad/buildchain/internal/registry"
)

// NoOpModule registers a "noop" handler that does nothing, for chains that
// only need to be loaded or built.
type NoOpModule struct{}

// Register registers the "noop" handler.
func (m *NoOpModule) Register(r *registry.Registry) {
	r.RegisterHandler("noop", &registry.RegisteredHandler{
		Fn: func(ctx context.Context, call *registry.Call) error {
			return nil
		},
	})
}

// ErrFailModule is the error returned by the "fail" handler.
var ErrFailModule = errors.New("step failed on purpose")

// FailModule registers a "fail" handler that always returns ErrFailModule.
type FailModule struct{}

// Register registers the "fail" handler.
func (m *FailModule) Register(r *registry.Registry) {
	r.RegisterHandler("fail", &registry.RegisteredHandler{
		Fn: func(ctx context.Context, call *registry.Call) error {
			return ErrFailModule
		},
	})
}
