package itemstore

import "errors"

// Context violations. Any of them is fatal for the offending step.
var (
	ErrDoubleWrite        = errors.New("item already recorded")
	ErrReadBeforeProduced = errors.New("item read before all producers finished")
	ErrUndeclared         = errors.New("item not declared by step")
	ErrTypeMismatch       = errors.New("item value has wrong type")
)

// ErrNotProduced is returned by consumers that require a value which no
// producer recorded.
var ErrNotProduced = errors.New("item not produced")

// ErrProducerFinished is returned when a step records after reaching a
// terminal state.
var ErrProducerFinished = errors.New("producer already finished")
