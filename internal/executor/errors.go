package executor

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrPanic wraps a value recovered from a panicking step.
	ErrPanic = errors.New("step panicked")
	// ErrInvalidInitial is returned when the initial values do not match the
	// chain's initial items.
	ErrInvalidInitial = errors.New("invalid initial items")
)

// StepError is the failure of one step.
type StepError struct {
	Step string
	// Fatal is false for failures of non-essential steps.
	Fatal bool
	Err   error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("step %q failed: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

// BuildError reports a failed build. It wraps the first root cause: the
// earliest fatal step failure in chain order, or the context error when the
// build was cancelled without a step failing.
type BuildError struct {
	RunID  string
	Failed []string
	Cause  error
}

func (e *BuildError) Error() string {
	if len(e.Failed) == 0 {
		return fmt.Sprintf("build %s failed: %v", e.RunID, e.Cause)
	}
	return fmt.Sprintf("build %s failed: execution failed for %s: %v", e.RunID, strings.Join(e.Failed, ", "), e.Cause)
}

func (e *BuildError) Unwrap() error { return e.Cause }
