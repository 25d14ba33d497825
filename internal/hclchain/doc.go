// Package hclchain loads build chain declarations from HCL files.
//
// A chain file declares items, the initial values the caller supplies, the
// final items the build must deliver, and steps bound to Go handlers from a
// registry.Registry:
//
//	item "config"  { mode = "single" }
//	item "classes" { mode = "multi" }
//
//	initial "config" {
//	  value = { name = "demo" }
//	}
//
//	final "classes" {}
//
//	step "compile" {
//	  handler  = "emit"
//	  consumes = ["config"]
//	  produces = ["classes"]
//	  arguments {
//	    value = "Main.class"
//	  }
//	}
//
// Every file found under the given paths is parsed before anything is
// resolved, so a step may refer to an item declared in another file.
// Expressions can read environment variables through the env object.
package hclchain
