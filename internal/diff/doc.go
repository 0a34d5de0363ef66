// Package diff computes typed field-level differences between a desired
// record state and the observed actual state. The comparison is
// one-directional (desired is authoritative), normalizes relational
// values before equality, and treats identifier collections as sets.
package diff
