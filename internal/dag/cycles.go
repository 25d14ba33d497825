package dag

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrCycle is matched by every CycleError.
var ErrCycle = errors.New("cycle detected")

// CycleError lists every strongly connected component of size two or more.
// Each cycle holds all member IDs, sorted.
type CycleError struct {
	Cycles [][]string
}

func (e *CycleError) Error() string {
	parts := make([]string, len(e.Cycles))
	for i, c := range e.Cycles {
		parts[i] = "[" + strings.Join(c, ", ") + "]"
	}
	return fmt.Sprintf("%d cycle(s) detected: %s", len(e.Cycles), strings.Join(parts, "; "))
}

func (e *CycleError) Is(target error) bool { return target == ErrCycle }

// DetectCycles checks the graph for cycles. Unlike a plain depth first search
// it reports complete cycles: each strongly connected component with more
// than one member is returned in a *CycleError.
func (g *Graph) DetectCycles() error {
	g.mutex.RLock()
	defer g.mutex.RUnlock()

	// Tarjan's algorithm over the insertion order.
	var (
		index   int
		indices = make(map[string]int, len(g.nodes))
		lowlink = make(map[string]int, len(g.nodes))
		onStack = make(map[string]bool, len(g.nodes))
		stack   []string
		cycles  [][]string
	)

	var strongConnect func(n *node)
	strongConnect = func(n *node) {
		indices[n.id] = index
		lowlink[n.id] = index
		index++
		stack = append(stack, n.id)
		onStack[n.id] = true

		for _, nextID := range sortedKeys(n.dependents) {
			if _, visited := indices[nextID]; !visited {
				strongConnect(n.dependents[nextID])
				lowlink[n.id] = min(lowlink[n.id], lowlink[nextID])
			} else if onStack[nextID] {
				lowlink[n.id] = min(lowlink[n.id], indices[nextID])
			}
		}

		if lowlink[n.id] == indices[n.id] {
			var component []string
			for {
				top := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[top] = false
				component = append(component, top)
				if top == n.id {
					break
				}
			}
			if len(component) > 1 {
				sort.Strings(component)
				cycles = append(cycles, component)
			}
		}
	}

	for _, id := range g.order {
		if _, visited := indices[id]; !visited {
			strongConnect(g.nodes[id])
		}
	}

	if len(cycles) == 0 {
		return nil
	}
	sort.Slice(cycles, func(i, j int) bool { return cycles[i][0] < cycles[j][0] })
	return &CycleError{Cycles: cycles}
}

// TopologicalOrder returns all nodes ordered so that every node comes after
// its dependencies. Among nodes that are ready at the same time, insertion
// order wins. A cyclic graph yields the error from DetectCycles.
func (g *Graph) TopologicalOrder() ([]string, error) {
	if err := g.DetectCycles(); err != nil {
		return nil, err
	}

	g.mutex.RLock()
	defer g.mutex.RUnlock()

	position := make(map[string]int, len(g.order))
	remaining := make(map[string]int, len(g.order))
	for i, id := range g.order {
		position[id] = i
		remaining[id] = len(g.nodes[id].deps)
	}

	var ready []string
	for _, id := range g.order {
		if remaining[id] == 0 {
			ready = append(ready, id)
		}
	}

	out := make([]string, 0, len(g.order))
	for len(ready) > 0 {
		sort.Slice(ready, func(i, j int) bool { return position[ready[i]] < position[ready[j]] })
		id := ready[0]
		ready = ready[1:]
		out = append(out, id)
		for depID := range g.nodes[id].dependents {
			remaining[depID]--
			if remaining[depID] == 0 {
				ready = append(ready, depID)
			}
		}
	}
	return out, nil
}
