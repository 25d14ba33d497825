package executor

import (
	"time"

	"github.com/specialistvlad/buildchain/internal/item"
)

// StepResult is the outcome of one step.
type StepResult struct {
	Name     string
	Status   Status
	Reason   SkipReason
	Detail   string
	Err      error
	Fatal    bool
	Started  time.Time
	Finished time.Time
}

// Duration is the time the step spent running.
func (r StepResult) Duration() time.Duration {
	if r.Started.IsZero() {
		return 0
	}
	return r.Finished.Sub(r.Started)
}

// Result is the outcome of one build.
type Result struct {
	RunID     string
	Succeeded bool
	// Steps are in chain order.
	Steps    []StepResult
	Started  time.Time
	Finished time.Time
	// Finals holds the values of the chain's final items. It is empty when
	// the build failed.
	Finals map[item.ID][]any
}

// Step returns the result of the named step.
func (r *Result) Step(name string) (StepResult, bool) {
	for _, s := range r.Steps {
		if s.Name == name {
			return s, true
		}
	}
	return StepResult{}, false
}

// Final returns the values of a final item.
func (r *Result) Final(id item.ID) ([]any, bool) {
	v, ok := r.Finals[id]
	return v, ok
}

// Count returns how many steps ended with status s.
func (r *Result) Count(s Status) int {
	n := 0
	for _, step := range r.Steps {
		if step.Status == s {
			n++
		}
	}
	return n
}

// Duration is the wall time of the build.
func (r *Result) Duration() time.Duration {
	return r.Finished.Sub(r.Started)
}
