package testutil

import (
	"fmt"
	"sync"

	"github.com/specialistvlad/buildchain/internal/item"
	"github.com/specialistvlad/buildchain/internal/itemstore"
)

// StepContext is an in-memory chain.StepContext for handler tests. Values
// given to Provide are readable, every Record is kept in Recorded.
type StepContext struct {
	Name string

	mu       sync.Mutex
	provided map[item.ID][]any
	Recorded map[item.ID][]any
}

// NewStepContext creates an empty context for the named step.
func NewStepContext(name string) *StepContext {
	return &StepContext{
		Name:     name,
		provided: make(map[item.ID][]any),
		Recorded: make(map[item.ID][]any),
	}
}

// Provide makes values readable under id.
func (s *StepContext) Provide(id item.ID, values ...any) *StepContext {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.provided[id] = append(s.provided[id], values...)
	return s
}

func (s *StepContext) StepName() string { return s.Name }

func (s *StepContext) Record(id item.ID, value any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !id.IsMulti() && len(s.Recorded[id]) > 0 {
		return fmt.Errorf("%w: %s", itemstore.ErrDoubleWrite, id)
	}
	s.Recorded[id] = append(s.Recorded[id], value)
	return nil
}

func (s *StepContext) Read(id item.ID) ([]any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]any(nil), s.provided[id]...), nil
}

func (s *StepContext) Status(id item.ID) itemstore.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.provided[id]) > 0 {
		return itemstore.Produced
	}
	return itemstore.NotProduced
}
