// Package executor runs a built chain.
//
// Every Execute call creates a fresh item store and walks the chain with a
// bounded pool of workers. A step is decided exactly once, when every step it
// depends on has reached a terminal state: it either runs or is skipped.
//
// Failure handling:
//
//   - A failing essential step is fatal. Every step that transitively depends
//     on it is skipped with reason "upstream failed"; independent steps keep
//     running. The build fails.
//   - A failing non-essential step leaves its items not produced. Consumers
//     that require one of those single items are skipped with reason
//     "not produced"; optional and multi consumers run with what they get.
//   - Misusing the step context (double write, undeclared item, wrong type)
//     is fatal even for non-essential steps.
//   - With fail-fast enabled, or when the caller's context is cancelled,
//     every step that has not started yet is skipped with reason "canceled".
package executor
