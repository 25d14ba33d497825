// Package registry maps the handler names used in chain files to compiled Go
// step handlers.
//
// Modules register their handlers into an explicit Registry during
// application startup. The registry is then validated so that every handler
// has a function and a decodable argument struct before any chain file is
// loaded against it.
package registry
