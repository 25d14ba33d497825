package executor

import (
	"errors"
	"fmt"
	"sync"

	"github.com/specialistvlad/buildchain/internal/chain"
	"github.com/specialistvlad/buildchain/internal/item"
	"github.com/specialistvlad/buildchain/internal/itemstore"
)

// stepContext is the chain.StepContext handed to a running step. It
// remembers the first context violation so that a step cannot hide one by
// swallowing the returned error.
type stepContext struct {
	step  *chain.Step
	store *itemstore.Store

	mu       sync.Mutex
	violated error
}

func newStepContext(step *chain.Step, store *itemstore.Store) *stepContext {
	return &stepContext{step: step, store: store}
}

func (sc *stepContext) StepName() string { return sc.step.Name }

func (sc *stepContext) Record(id item.ID, value any) error {
	if !sc.produces(id) {
		return sc.flag(fmt.Errorf("%w: step %q does not declare producing %s", itemstore.ErrUndeclared, sc.step.Name, id))
	}
	return sc.flag(sc.store.Record(sc.step.Name, id, value))
}

func (sc *stepContext) Read(id item.ID) ([]any, error) {
	if !sc.consumes(id) {
		return nil, sc.flag(fmt.Errorf("%w: step %q does not declare consuming %s", itemstore.ErrUndeclared, sc.step.Name, id))
	}
	values, err := sc.store.Read(id)
	return values, sc.flag(err)
}

func (sc *stepContext) Status(id item.ID) itemstore.Status {
	return sc.store.Status(id)
}

func (sc *stepContext) produces(id item.ID) bool {
	for _, p := range sc.step.Produces {
		if p.Item == id {
			return true
		}
	}
	return false
}

func (sc *stepContext) consumes(id item.ID) bool {
	for _, c := range sc.step.Consumes {
		if c.Item == id {
			return true
		}
	}
	return false
}

// flag records err if it is a context violation and returns it unchanged.
func (sc *stepContext) flag(err error) error {
	if err == nil {
		return nil
	}
	if isViolation(err) {
		sc.mu.Lock()
		if sc.violated == nil {
			sc.violated = err
		}
		sc.mu.Unlock()
	}
	return err
}

func (sc *stepContext) violation() error {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	return sc.violated
}

// isViolation reports whether err is a misuse of the step context.
func isViolation(err error) bool {
	return errors.Is(err, itemstore.ErrDoubleWrite) ||
		errors.Is(err, itemstore.ErrReadBeforeProduced) ||
		errors.Is(err, itemstore.ErrUndeclared) ||
		errors.Is(err, itemstore.ErrTypeMismatch)
}
