// Package testutil holds helpers shared by the package and integration tests:
// thread-safe buffers, an in-memory step context and mock handler modules.
package testutil
