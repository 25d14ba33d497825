package chain

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/specialistvlad/buildchain/internal/ctxlog"
	"github.com/specialistvlad/buildchain/internal/dag"
	"github.com/specialistvlad/buildchain/internal/item"
)

// producerSet lists the registered producers of one item by kind.
type producerSet struct {
	normal      []string // includes weak producers
	overridable []string
	weak        map[string]bool
}

// candidates returns the producers that serve the item, ignoring pruning.
func (ps *producerSet) candidates() (used, overridden []string) {
	if ps == nil {
		return nil, nil
	}
	if len(ps.normal) > 0 {
		return ps.normal, ps.overridable
	}
	return ps.overridable, nil
}

// Build validates the declarations and derives the chain. All problems are
// reported together in a *ConfigError.
func (b *Builder) Build(ctx context.Context) (*Chain, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Build: Starting chain construction.", "steps", len(b.steps), "initial", len(b.initial), "finals", len(b.finals))

	problems := append([]error(nil), b.problems...)
	for _, sb := range b.steps {
		problems = append(problems, sb.problems...)
	}

	for _, sb := range b.steps {
		for _, p := range sb.info.Produces {
			if _, ok := sb.info.consumption(p.Item); ok {
				problems = append(problems, problemf(ErrSelfLoop, "step %q consumes and produces %s", sb.info.Name, p.Item))
			}
		}
	}

	producers := b.collectProducers()
	initial := make(map[item.ID]bool, len(b.initial))
	for _, id := range b.initial {
		initial[id] = true
	}
	problems = append(problems, b.checkProducers(producers, initial)...)

	included := b.prune(producers)
	logger.Debug("Build: Pruning complete.", "included", len(included), "registered", len(b.steps))

	effective := func(id item.ID) (used, overridden []string) {
		u, o := producers[id].candidates()
		return filterIncluded(u, included), filterIncluded(o, included)
	}

	for _, sb := range b.steps {
		if !included[sb.info.Name] {
			continue
		}
		for _, c := range sb.info.Consumes {
			if !c.Required() || initial[c.Item] {
				continue
			}
			if used, _ := effective(c.Item); len(used) == 0 {
				problems = append(problems, problemf(ErrUnresolvedConsumer, "step %q requires %s but no step produces it", sb.info.Name, c.Item))
			}
		}
	}
	for _, id := range b.finals {
		if id.Mode() != item.Single || initial[id] {
			continue
		}
		if used, _ := effective(id); len(used) == 0 {
			problems = append(problems, problemf(ErrUnresolvedConsumer, "final item %s has no producer", id))
		}
	}

	g := dag.New()
	for _, sb := range b.steps {
		if included[sb.info.Name] {
			g.AddNode(sb.info.Name)
		}
	}
	edgeItems := make(map[[2]string][]string)
	for _, sb := range b.steps {
		if !included[sb.info.Name] {
			continue
		}
		for _, c := range sb.info.Consumes {
			used, _ := effective(c.Item)
			for _, p := range used {
				if p == sb.info.Name {
					continue
				}
				if err := g.AddEdge(p, sb.info.Name); err != nil {
					return nil, fmt.Errorf("linking %s to %s: %w", p, sb.info.Name, err)
				}
				key := [2]string{p, sb.info.Name}
				edgeItems[key] = append(edgeItems[key], c.Item.Name())
			}
		}
	}
	logger.Debug("Build: Step linking complete.", "edges", len(edgeItems))

	if err := g.DetectCycles(); err != nil {
		cycleErr, ok := err.(*dag.CycleError)
		if !ok {
			return nil, fmt.Errorf("error validating dependency graph: %w", err)
		}
		for _, members := range cycleErr.Cycles {
			problems = append(problems, &CycleProblem{
				Steps: members,
				Path:  cyclePath(g, members, edgeItems),
			})
		}
	}

	if len(problems) > 0 {
		logger.Debug("Build: Chain construction failed.", "problems", len(problems))
		return nil, &ConfigError{Problems: problems}
	}

	order, err := g.TopologicalOrder()
	if err != nil {
		return nil, fmt.Errorf("error ordering dependency graph: %w", err)
	}

	c := b.assemble(g, order, effective)
	logger.Debug("Build: Chain construction successful.", "steps", len(c.steps), "fingerprint", c.fingerprint)
	return c, nil
}

func (b *Builder) collectProducers() map[item.ID]*producerSet {
	out := make(map[item.ID]*producerSet)
	for _, sb := range b.steps {
		for _, p := range sb.info.Produces {
			ps, ok := out[p.Item]
			if !ok {
				ps = &producerSet{weak: make(map[string]bool)}
				out[p.Item] = ps
			}
			switch p.Kind {
			case Overridable:
				ps.overridable = append(ps.overridable, sb.info.Name)
			case Weak:
				ps.normal = append(ps.normal, sb.info.Name)
				ps.weak[sb.info.Name] = true
			default:
				ps.normal = append(ps.normal, sb.info.Name)
			}
		}
	}
	return out
}

func (b *Builder) checkProducers(producers map[item.ID]*producerSet, initial map[item.ID]bool) []error {
	ids := make([]item.ID, 0, len(producers))
	for id := range producers {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].Name() < ids[j].Name() })

	var problems []error
	for _, id := range ids {
		if id.IsMulti() {
			continue
		}
		ps := producers[id]
		if initial[id] {
			all := append(append([]string(nil), ps.normal...), ps.overridable...)
			problems = append(problems, problemf(ErrProducedInitial,
				"item %s is an initial item and cannot be produced by %s", id, quoteAll(all)))
			continue
		}
		if len(ps.normal) > 1 {
			problems = append(problems, problemf(ErrAmbiguousProducer,
				"item %s has %d producers: %s", id, len(ps.normal), quoteAll(ps.normal)))
		}
		if len(ps.overridable) > 1 {
			problems = append(problems, problemf(ErrAmbiguousProducer,
				"item %s has %d overridable producers: %s", id, len(ps.overridable), quoteAll(ps.overridable)))
		}
	}
	return problems
}

// prune returns the steps that make it into the chain. Without final items
// every registered step is kept.
func (b *Builder) prune(producers map[item.ID]*producerSet) map[string]bool {
	included := make(map[string]bool, len(b.steps))
	if len(b.finals) == 0 {
		for _, sb := range b.steps {
			included[sb.info.Name] = true
		}
		return included
	}

	var queue []string
	pull := func(id item.ID) {
		ps := producers[id]
		used, _ := ps.candidates()
		for _, name := range used {
			if ps.weak[name] || included[name] {
				continue
			}
			included[name] = true
			queue = append(queue, name)
		}
	}

	for _, id := range b.finals {
		pull(id)
	}
	for len(queue) > 0 {
		name := queue[0]
		queue = queue[1:]
		for _, c := range b.byName[name].info.Consumes {
			pull(c.Item)
		}
	}
	return included
}

func (b *Builder) assemble(g *dag.Graph, order []string, effective func(item.ID) ([]string, []string)) *Chain {
	position := make(map[string]int, len(order))
	for i, name := range order {
		position[name] = i
	}
	byPosition := func(names []string) []string {
		out := append([]string(nil), names...)
		sort.Slice(out, func(i, j int) bool { return position[out[i]] < position[out[j]] })
		return out
	}

	c := &Chain{
		items:       b.items,
		byName:      make(map[string]*Step, len(order)),
		plans:       make(map[item.ID]*ItemPlan),
		initial:     append([]item.ID(nil), b.initial...),
		finals:      append([]item.ID(nil), b.finals...),
		graph:       g,
		fingerprint: b.Fingerprint(),
	}

	plan := func(id item.ID) *ItemPlan {
		p, ok := c.plans[id]
		if !ok {
			used, overridden := effective(id)
			p = &ItemPlan{
				ID:         id,
				Producers:  byPosition(used),
				Overridden: byPosition(overridden),
			}
			c.plans[id] = p
		}
		return p
	}

	for _, name := range order {
		sb := b.byName[name]
		deps, _ := g.Dependencies(name)
		dependents, _ := g.Dependents(name)
		s := &Step{
			StepInfo:     sb.info,
			Dependencies: byPosition(deps),
			Dependents:   byPosition(dependents),
		}
		c.steps = append(c.steps, s)
		c.byName[name] = s

		for _, cons := range s.Consumes {
			p := plan(cons.Item)
			p.Consumers = append(p.Consumers, name)
		}
		for _, prod := range s.Produces {
			plan(prod.Item)
		}
	}
	for _, id := range c.initial {
		plan(id).Initial = true
	}
	for _, id := range c.finals {
		plan(id).Final = true
	}
	return c
}

func filterIncluded(names []string, included map[string]bool) []string {
	var out []string
	for _, n := range names {
		if included[n] {
			out = append(out, n)
		}
	}
	return out
}

// cyclePath walks from the first member back to itself without leaving the
// strongly connected component.
func cyclePath(g *dag.Graph, members []string, edgeItems map[[2]string][]string) []Hop {
	in := make(map[string]bool, len(members))
	for _, m := range members {
		in[m] = true
	}
	start := members[0]
	visited := map[string]bool{start: true}
	var path []Hop

	var walk func(cur string) bool
	walk = func(cur string) bool {
		next, _ := g.Dependents(cur)
		for _, n := range next {
			if !in[n] {
				continue
			}
			path = append(path, Hop{Step: cur, Item: strings.Join(edgeItems[[2]string{cur, n}], ", ")})
			if n == start {
				return true
			}
			if !visited[n] {
				visited[n] = true
				if walk(n) {
					return true
				}
			}
			path = path[:len(path)-1]
		}
		return false
	}
	walk(start)
	return path
}

func quoteAll(names []string) string {
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = fmt.Sprintf("%q", n)
	}
	return strings.Join(quoted, ", ")
}
