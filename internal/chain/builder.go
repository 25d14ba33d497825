package chain

import (
	"fmt"

	"github.com/specialistvlad/buildchain/internal/item"
)

// Provider installs a group of related steps into a builder.
type Provider interface {
	InstallInto(b *Builder) error
}

// ProviderFunc adapts a function to the Provider interface.
type ProviderFunc func(b *Builder) error

// InstallInto calls f(b).
func (f ProviderFunc) InstallInto(b *Builder) error { return f(b) }

// Builder collects step declarations, initial items and final items. It is
// not safe for concurrent use.
type Builder struct {
	items    *item.Registry
	steps    []*StepBuilder
	byName   map[string]*StepBuilder
	initial  []item.ID
	finals   []item.ID
	problems []error
}

// NewBuilder creates a builder whose steps refer to items of reg.
func NewBuilder(reg *item.Registry) *Builder {
	return &Builder{
		items:  reg,
		byName: make(map[string]*StepBuilder),
	}
}

// Items returns the item registry the builder validates against.
func (b *Builder) Items() *item.Registry { return b.items }

// AddStep starts the declaration of a step. The step is not part of the
// chain until Register is called.
func (b *Builder) AddStep(name string, fn StepFunc) *StepBuilder {
	return &StepBuilder{
		parent: b,
		info:   StepInfo{Name: name, Fn: fn},
	}
}

// AddInitial declares items whose values are supplied by the caller of each
// execution.
func (b *Builder) AddInitial(ids ...item.ID) *Builder {
	for _, id := range ids {
		if !b.known(id) {
			b.problems = append(b.problems, problemf(ErrUnknownItem, "initial item %q is not declared", id.Name()))
			continue
		}
		b.initial = appendUnique(b.initial, id)
	}
	return b
}

// AddFinal declares items the caller wants back. When at least one final
// item is declared, steps that do not contribute to any of them are left out
// of the chain.
func (b *Builder) AddFinal(ids ...item.ID) *Builder {
	for _, id := range ids {
		if !b.known(id) {
			b.problems = append(b.problems, problemf(ErrUnknownItem, "final item %q is not declared", id.Name()))
			continue
		}
		b.finals = appendUnique(b.finals, id)
	}
	return b
}

// Install runs each provider against the builder, stopping at the first
// error.
func (b *Builder) Install(providers ...Provider) error {
	for i, p := range providers {
		if err := p.InstallInto(b); err != nil {
			return fmt.Errorf("installing provider #%d (%T): %w", i, p, err)
		}
	}
	return nil
}

// Steps returns the names of the registered steps in registration order.
func (b *Builder) Steps() []string {
	out := make([]string, len(b.steps))
	for i, s := range b.steps {
		out[i] = s.info.Name
	}
	return out
}

func (b *Builder) register(sb *StepBuilder) {
	switch {
	case sb.info.Name == "":
		b.problems = append(b.problems, problemf(ErrInvalidStep, "step name must not be empty"))
		return
	case sb.info.Fn == nil:
		b.problems = append(b.problems, problemf(ErrInvalidStep, "step %q has no function", sb.info.Name))
		return
	}
	if _, exists := b.byName[sb.info.Name]; exists {
		b.problems = append(b.problems, problemf(ErrDuplicateStep, "step %q is registered more than once", sb.info.Name))
		return
	}
	b.byName[sb.info.Name] = sb
	b.steps = append(b.steps, sb)
}

func (b *Builder) known(id item.ID) bool {
	if id.IsZero() || b.items == nil {
		return false
	}
	_, ok := b.items.Type(id)
	return ok
}

func appendUnique(ids []item.ID, id item.ID) []item.ID {
	for _, existing := range ids {
		if existing == id {
			return ids
		}
	}
	return append(ids, id)
}
