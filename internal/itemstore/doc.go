// Package itemstore is the per-build execution context: a thread-safe,
// in-memory store of the values produced for each item during one build.
//
// The store is created fresh for every build from the chain's item layout
// (which steps are effective producers of which items) and thrown away when
// the build ends. It tracks how many producers of every item have not reached
// a terminal state yet, which is what makes early reads detectable.
package itemstore
