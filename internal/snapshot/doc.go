// Package snapshot loads desired-state documents from YAML and reads
// the matching actual state back through the record store.
package snapshot
