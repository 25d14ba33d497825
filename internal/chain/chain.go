package chain

import (
	"github.com/specialistvlad/buildchain/internal/dag"
	"github.com/specialistvlad/buildchain/internal/item"
	"github.com/specialistvlad/buildchain/internal/itemstore"
)

// Step is a step as placed in a built chain.
type Step struct {
	StepInfo
	// Dependencies are the steps this one waits for, in chain order.
	Dependencies []string
	// Dependents are the steps waiting for this one, in chain order.
	Dependents []string
}

// ItemPlan describes how one item flows through the chain.
type ItemPlan struct {
	ID         item.ID
	Producers  []string
	Overridden []string
	Consumers  []string
	Initial    bool
	Final      bool
}

// Chain is a validated, immutable build chain. Steps are kept in a
// topological order. A Chain may be executed concurrently.
type Chain struct {
	items       *item.Registry
	steps       []*Step
	byName      map[string]*Step
	plans       map[item.ID]*ItemPlan
	initial     []item.ID
	finals      []item.ID
	graph       *dag.Graph
	fingerprint string
}

// Items returns the registry the chain was built against.
func (c *Chain) Items() *item.Registry { return c.items }

// Steps returns the steps in topological order.
func (c *Chain) Steps() []*Step { return c.steps }

// Len returns the number of steps.
func (c *Chain) Len() int { return len(c.steps) }

// Step looks up a step by name.
func (c *Chain) Step(name string) (*Step, bool) {
	s, ok := c.byName[name]
	return s, ok
}

// Order returns the step names in topological order.
func (c *Chain) Order() []string {
	out := make([]string, len(c.steps))
	for i, s := range c.steps {
		out[i] = s.Name
	}
	return out
}

// Initial returns the initial items.
func (c *Chain) Initial() []item.ID { return c.initial }

// Finals returns the final items.
func (c *Chain) Finals() []item.ID { return c.finals }

// Plan returns how id flows through the chain.
func (c *Chain) Plan(id item.ID) (ItemPlan, bool) {
	p, ok := c.plans[id]
	if !ok {
		return ItemPlan{}, false
	}
	return *p, true
}

// Descendants returns every step that transitively depends on name.
func (c *Chain) Descendants(name string) []string {
	return c.graph.Descendants(name)
}

// Fingerprint is a digest of the declarations the chain was built from.
func (c *Chain) Fingerprint() string { return c.fingerprint }

// Layout describes every item of the chain for a fresh execution store.
func (c *Chain) Layout() []itemstore.Slot {
	out := make([]itemstore.Slot, 0, len(c.plans))
	for _, id := range c.items.All() {
		p, ok := c.plans[id]
		if !ok {
			continue
		}
		out = append(out, itemstore.Slot{
			ID:         p.ID,
			Producers:  p.Producers,
			Overridden: p.Overridden,
		})
	}
	return out
}
