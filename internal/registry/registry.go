package registry

import (
	"sort"
	"sync"
)

// Module is the interface that all built-in modules implement to be
// registered.
type Module interface {
	Register(r *Registry)
}

// Registry holds the registered step handlers of one application instance.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]*RegisteredHandler
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{handlers: make(map[string]*RegisteredHandler)}
}

// Handler returns the handler registered under name.
func (r *Registry) Handler(name string) (*RegisteredHandler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[name]
	return h, ok
}

// Names returns the registered handler names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of registered handlers.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.handlers)
}

// Install registers every module into r.
func (r *Registry) Install(modules ...Module) {
	for _, m := range modules {
		m.Register(r)
	}
}
