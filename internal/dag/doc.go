// Package dag is a small directed graph keyed by string IDs. It knows nothing
// about build steps or items; the chain package builds step graphs on top of
// it and the executor walks them.
//
// Edges point from a dependency to its dependent: AddEdge("a", "b") means b
// runs after a.
package dag
