// Package cli implements the converge command line interface: diff,
// plan, validate and apply, sharing one loader for the CUE schema, the
// YAML desired state and the optional local SQLite store.
package cli
