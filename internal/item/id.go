package item

import "reflect"

// ID identifies an item type. IDs are comparable and are used as map keys
// throughout the engine; two IDs are equal when both name and mode match.
type ID struct {
	name string
	mode Mode
}

// Name returns the item type name.
func (id ID) Name() string { return id.name }

// Mode returns the cardinality mode.
func (id ID) Mode() Mode { return id.mode }

// IsMulti reports whether the item accepts any number of producers.
func (id ID) IsMulti() bool { return id.mode == Multi }

// IsZero reports whether id was never declared.
func (id ID) IsZero() bool { return id.name == "" }

func (id ID) String() string {
	if id.mode == Single {
		return id.name
	}
	return id.name + "[" + id.mode.String() + "]"
}

// Key is a typed handle for an item type whose values are of type T.
type Key[T any] struct {
	id ID
}

// ID returns the untyped identifier behind the key.
func (k Key[T]) ID() ID { return k.id }

func (k Key[T]) String() string { return k.id.String() }

// Type describes a declared item type.
type Type struct {
	ID          ID
	Description string
	// GoType is the Go type values must be assignable to. Nil means any.
	GoType reflect.Type
}
