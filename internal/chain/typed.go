package chain

import (
	"fmt"

	"github.com/specialistvlad/buildchain/internal/item"
	"github.com/specialistvlad/buildchain/internal/itemstore"
)

// Produce records v for the typed item k.
func Produce[T any](sc StepContext, k item.Key[T], v T) error {
	return sc.Record(k.ID(), v)
}

// Consume returns the value of a required single item.
func Consume[T any](sc StepContext, k item.Key[T]) (T, error) {
	var zero T
	values, err := sc.Read(k.ID())
	if err != nil {
		return zero, err
	}
	if len(values) == 0 {
		return zero, fmt.Errorf("%w: %s", itemstore.ErrNotProduced, k)
	}
	return cast[T](k.ID(), values[0])
}

// ConsumeOptional returns the value of an item that may be absent. The
// boolean reports whether a value was produced.
func ConsumeOptional[T any](sc StepContext, k item.Key[T]) (T, bool, error) {
	var zero T
	values, err := sc.Read(k.ID())
	if err != nil || len(values) == 0 {
		return zero, false, err
	}
	v, err := cast[T](k.ID(), values[0])
	if err != nil {
		return zero, false, err
	}
	return v, true, nil
}

// ConsumeMulti returns every value of a multi item in producer order. An item
// without producers yields an empty slice.
func ConsumeMulti[T any](sc StepContext, k item.Key[T]) ([]T, error) {
	values, err := sc.Read(k.ID())
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, len(values))
	for _, raw := range values {
		v, err := cast[T](k.ID(), raw)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func cast[T any](id item.ID, raw any) (T, error) {
	if raw == nil {
		var zero T
		return zero, nil
	}
	v, ok := raw.(T)
	if !ok {
		var zero T
		return zero, fmt.Errorf("%w: %s holds %T, want %T", itemstore.ErrTypeMismatch, id, raw, zero)
	}
	return v, nil
}
