// Package harness runs declarative reconcile scenarios: YAML documents
// describing a schema, a desired state, an actual state and the
// expected outcome. Each scenario executes the full compare, build and
// validate pipeline against an in-memory store, and its rendered plan
// plus validation report can be pinned with golden files.
package harness
