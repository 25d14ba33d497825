// Package item is the build item type registry. An item type is the unit of
// data exchanged between build steps: a name plus a fixed cardinality mode.
//
// Item types are declared on an explicit Registry owned by the application
// (there is no process-wide registry). Go code usually works with typed
// handles created by Declare, which additionally pin the Go type of the
// values recorded for the item.
package item
