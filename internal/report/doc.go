// Package report renders the outcome of a build: a machine readable report
// in YAML or JSON, and a colored summary for the terminal.
package report
