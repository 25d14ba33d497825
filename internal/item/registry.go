package item

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"sync"
)

var (
	// ErrModeConflict is returned when an item type is re-declared with a
	// different cardinality mode.
	ErrModeConflict = errors.New("item mode conflict")
	// ErrTypeConflict is returned when an item type is re-declared with a
	// different Go type.
	ErrTypeConflict = errors.New("item type conflict")
	// ErrEmptyName is returned when declaring an item without a name.
	ErrEmptyName = errors.New("item name must not be empty")
)

// Registry holds the item types known to one application instance. It is
// safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	types map[string]*Type
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{types: make(map[string]*Type)}
}

// Declare registers an untyped item type. Declaring an existing name with the
// same mode returns the existing ID.
func (r *Registry) Declare(name string, mode Mode) (ID, error) {
	return r.declare(name, mode, nil, "")
}

// Describe attaches a human readable description to a declared item.
func (r *Registry) Describe(id ID, description string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok := r.types[id.name]; ok {
		t.Description = description
	}
}

func (r *Registry) declare(name string, mode Mode, goType reflect.Type, description string) (ID, error) {
	if name == "" {
		return ID{}, ErrEmptyName
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.types[name]; ok {
		if existing.ID.mode != mode {
			return ID{}, fmt.Errorf("%w: %q is declared as %s, cannot redeclare as %s", ErrModeConflict, name, existing.ID.mode, mode)
		}
		if goType != nil {
			if existing.GoType == nil {
				existing.GoType = goType
			} else if existing.GoType != goType {
				return ID{}, fmt.Errorf("%w: %q holds %s, cannot redeclare with %s", ErrTypeConflict, name, existing.GoType, goType)
			}
		}
		return existing.ID, nil
	}

	id := ID{name: name, mode: mode}
	r.types[name] = &Type{ID: id, GoType: goType, Description: description}
	return id, nil
}

// Lookup returns the ID registered under name.
func (r *Registry) Lookup(name string) (ID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.types[name]
	if !ok {
		return ID{}, false
	}
	return t.ID, true
}

// Type returns a copy of the declaration for id.
func (r *Registry) Type(id ID) (Type, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.types[id.name]
	if !ok || t.ID != id {
		return Type{}, false
	}
	return *t, true
}

// Accepts reports whether value may be recorded for id. Untyped items accept
// anything; typed items accept nil and values assignable to their Go type.
func (r *Registry) Accepts(id ID, value any) bool {
	t, ok := r.Type(id)
	if !ok || t.GoType == nil || value == nil {
		return true
	}
	return reflect.TypeOf(value).AssignableTo(t.GoType)
}

// All returns every declared item ID sorted by name.
func (r *Registry) All() []ID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]ID, 0, len(r.types))
	for _, t := range r.types {
		ids = append(ids, t.ID)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].name < ids[j].name })
	return ids
}

// Declare registers an item type whose values are of type T and returns a
// typed key for it.
func Declare[T any](r *Registry, name string, mode Mode) (Key[T], error) {
	goType := reflect.TypeOf((*T)(nil)).Elem()
	id, err := r.declare(name, mode, goType, "")
	if err != nil {
		return Key[T]{}, err
	}
	return Key[T]{id: id}, nil
}

// MustDeclare is like Declare but panics on error. It is meant for package
// level item declarations in modules.
func MustDeclare[T any](r *Registry, name string, mode Mode) Key[T] {
	k, err := Declare[T](r, name, mode)
	if err != nil {
		panic(err)
	}
	return k
}
