package testutil

import (
	"context"
	"sync"
	"time"

	"github.com/specialistvlad/buildchain/internal/registry"
)

// MockSleeperModule is a shared, self-contained module for concurrency tests.
// It records the execution time of each step that uses it.
type MockSleeperModule struct {
	ExecutionTimes map[string]*ExecutionRecord
	mu             sync.Mutex
	sleepDuration  time.Duration
	completionChan chan<- string
}

// NewMockSleeperModule creates a new sleeper module for testing.
func NewMockSleeperModule(completionChan chan<- string, sleep time.Duration) *MockSleeperModule {
	return &MockSleeperModule{
		ExecutionTimes: make(map[string]*ExecutionRecord),
		sleepDuration:  sleep,
		completionChan: completionChan,
	}
}

type sleeperInput struct {
	ID string `hcl:"id,optional"`
}

// Register registers the "sleeper" handler. A sleeper records an empty
// string into every item its step produces.
func (m *MockSleeperModule) Register(r *registry.Registry) {
	r.RegisterHandler("sleeper", &registry.RegisteredHandler{
		NewInput: func() any { return new(sleeperInput) },
		Fn: func(ctx context.Context, call *registry.Call) error {
			id := call.Input.(*sleeperInput).ID
			if id == "" {
				id = call.StepName()
			}

			startTime := time.Now()
			select {
			case <-time.After(m.sleepDuration):
			case <-ctx.Done():
				return ctx.Err()
			}
			endTime := time.Now()

			m.mu.Lock()
			m.ExecutionTimes[id] = &ExecutionRecord{Start: startTime, End: endTime}
			m.mu.Unlock()

			if m.completionChan != nil {
				m.completionChan <- id
			}
			return call.RecordAll("")
		},
	})
}

// Record returns the execution record of id.
func (m *MockSleeperModule) Record(id string) (*ExecutionRecord, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.ExecutionTimes[id]
	return rec, ok
}
