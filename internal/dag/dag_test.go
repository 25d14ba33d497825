package dag

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	g := New()
	require.NotNil(t, g)
	assert.NotNil(t, g.nodes)
	assert.Empty(t, g.nodes)
}

func TestAddNode(t *testing.T) {
	g := New()

	g.AddNode("a")
	assert.Len(t, g.nodes, 1)
	nodeA, ok := g.nodes["a"]
	require.True(t, ok)
	assert.Equal(t, "a", nodeA.id)
	assert.NotNil(t, nodeA.deps)
	assert.NotNil(t, nodeA.dependents)

	g.AddNode("a") // Test idempotency
	assert.Len(t, g.nodes, 1)

	g.AddNode("b")
	assert.Len(t, g.nodes, 2)
	assert.True(t, g.HasNode("b"))
	assert.Equal(t, []string{"a", "b"}, g.Nodes())
}

func TestAddEdge(t *testing.T) {
	t.Run("success case", func(t *testing.T) {
		g := New()
		g.AddNode("a")
		g.AddNode("b")

		err := g.AddEdge("a", "b") // b depends on a
		require.NoError(t, err)

		nodeA := g.nodes["a"]
		nodeB := g.nodes["b"]

		assert.Contains(t, nodeA.dependents, "b")
		assert.Equal(t, nodeB, nodeA.dependents["b"])
		assert.Contains(t, nodeB.deps, "a")
		assert.Equal(t, nodeA, nodeB.deps["a"])

		require.NoError(t, g.AddEdge("a", "b"), "duplicate edges are ignored")
		deps, err := g.Dependencies("b")
		require.NoError(t, err)
		assert.Equal(t, []string{"a"}, deps)
	})

	t.Run("error cases", func(t *testing.T) {
		g := New()
		g.AddNode("a")
		g.AddNode("b")

		err := g.AddEdge("dne", "a")
		assert.ErrorContains(t, err, "source node not found")

		err = g.AddEdge("a", "dne")
		assert.ErrorContains(t, err, "destination node not found")

		err = g.AddEdge("a", "a")
		assert.ErrorContains(t, err, "self-referential edge")
	})
}

func newGraph(t *testing.T, nodes []string, edges [][2]string) *Graph {
	t.Helper()
	g := New()
	for _, n := range nodes {
		g.AddNode(n)
	}
	for _, e := range edges {
		require.NoError(t, g.AddEdge(e[0], e[1]))
	}
	return g
}

func TestDetectCycles(t *testing.T) {
	t.Run("empty graph has no cycles", func(t *testing.T) {
		g := New()
		assert.NoError(t, g.DetectCycles())
	})

	t.Run("graph with nodes but no edges has no cycles", func(t *testing.T) {
		g := newGraph(t, []string{"a", "b", "c"}, nil)
		assert.NoError(t, g.DetectCycles())
	})

	t.Run("valid dag has no cycles", func(t *testing.T) {
		g := newGraph(t, []string{"a", "b", "c", "d"}, [][2]string{
			{"a", "b"}, {"b", "c"}, {"a", "c"}, {"c", "d"},
		})
		assert.NoError(t, g.DetectCycles())
	})

	t.Run("simple direct cycle is detected", func(t *testing.T) {
		g := newGraph(t, []string{"a", "b"}, [][2]string{{"a", "b"}, {"b", "a"}})
		err := g.DetectCycles()
		require.ErrorIs(t, err, ErrCycle)

		var cycleErr *CycleError
		require.ErrorAs(t, err, &cycleErr)
		assert.Equal(t, [][]string{{"a", "b"}}, cycleErr.Cycles)
	})

	t.Run("longer cycle names every member", func(t *testing.T) {
		g := newGraph(t, []string{"a", "b", "c", "d"}, [][2]string{
			{"a", "b"}, {"b", "c"}, {"c", "d"}, {"d", "a"},
		})
		err := g.DetectCycles()
		var cycleErr *CycleError
		require.ErrorAs(t, err, &cycleErr)
		assert.Equal(t, [][]string{{"a", "b", "c", "d"}}, cycleErr.Cycles)
		assert.ErrorContains(t, err, "[a, b, c, d]")
	})

	t.Run("cycle in a disjoint component is detected", func(t *testing.T) {
		g := newGraph(t, []string{"a", "b", "x", "y", "z"}, [][2]string{
			{"a", "b"}, {"x", "y"}, {"y", "z"}, {"z", "y"},
		})
		var cycleErr *CycleError
		require.ErrorAs(t, g.DetectCycles(), &cycleErr)
		assert.Equal(t, [][]string{{"y", "z"}}, cycleErr.Cycles)
	})

	t.Run("independent cycles are all reported", func(t *testing.T) {
		g := newGraph(t, []string{"a", "b", "c", "d"}, [][2]string{
			{"a", "b"}, {"b", "a"}, {"c", "d"}, {"d", "c"},
		})
		var cycleErr *CycleError
		require.ErrorAs(t, g.DetectCycles(), &cycleErr)
		assert.Equal(t, [][]string{{"a", "b"}, {"c", "d"}}, cycleErr.Cycles)
	})
}

func TestTopologicalOrder(t *testing.T) {
	t.Run("respects every edge", func(t *testing.T) {
		g := newGraph(t, []string{"d", "c", "b", "a"}, [][2]string{
			{"a", "b"}, {"b", "c"}, {"a", "c"}, {"c", "d"},
		})
		order, err := g.TopologicalOrder()
		require.NoError(t, err)
		assert.Equal(t, []string{"a", "b", "c", "d"}, order)
	})

	t.Run("ties keep insertion order", func(t *testing.T) {
		g := newGraph(t, []string{"z", "y", "x"}, nil)
		order, err := g.TopologicalOrder()
		require.NoError(t, err)
		assert.Equal(t, []string{"z", "y", "x"}, order)
	})

	t.Run("cyclic graph fails", func(t *testing.T) {
		g := newGraph(t, []string{"a", "b"}, [][2]string{{"a", "b"}, {"b", "a"}})
		_, err := g.TopologicalOrder()
		assert.ErrorIs(t, err, ErrCycle)
	})
}

func TestReachability(t *testing.T) {
	g := newGraph(t, []string{"a", "b", "c", "d", "e"}, [][2]string{
		{"a", "b"}, {"b", "c"}, {"d", "c"},
	})

	assert.Equal(t, map[string]bool{"a": true, "b": true}, g.Ancestors("b"))
	assert.Equal(t, map[string]bool{"a": true, "b": true, "c": true, "d": true}, g.Ancestors("c", "missing"))
	assert.Equal(t, []string{"b", "c"}, g.Descendants("a"))
	assert.Empty(t, g.Descendants("e"))
	assert.Nil(t, g.Descendants("missing"))

	dependents, err := g.Dependents("a")
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, dependents)
	_, err = g.Dependents("missing")
	assert.ErrorContains(t, err, "node not found")
}
