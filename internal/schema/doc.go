// Package schema models per-field metadata (type, required, read-only,
// computed, relation target) and provides it to the reconcile pipeline
// through the Provider interface. Definitions are authored in CUE and
// loaded into a Static provider; Validate collects all definition errors
// instead of failing fast.
package schema
