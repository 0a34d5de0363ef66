// Package store defines the record-store collaborator the reconcile
// pipeline talks to (search/read/create/write/unlink) and provides two
// implementations: an in-memory store for tests and the conformance
// harness, and a SQLite-backed local store for offline reconciliation.
package store
