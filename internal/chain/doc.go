// Package chain declares build steps and turns them into a validated,
// executable build chain.
//
// Steps are registered on a Builder. Each step names the items it consumes
// and produces; the builder derives the dependency graph from those
// declarations, checks it, and returns an immutable Chain:
//
//	b := chain.NewBuilder(items)
//	b.AddStep("compile", compile).Consumes(config).Produces(classes).Register()
//	b.AddFinal(archive)
//	c, err := b.Build(ctx)
//
// Build reports every configuration problem it finds at once in a
// *ConfigError. A Chain can be executed any number of times by the executor
// package.
package chain
