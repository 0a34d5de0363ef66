package store

import (
	"context"
	"fmt"

	"github.com/amaret/converge/internal/record"
)

// Condition is one search criterion. Supported operators are "=" and
// "in"; the engine needs nothing richer.
type Condition struct {
	Field string
	Op    string
	Value any
}

// Domain is a conjunction of conditions.
type Domain []Condition

// IDsIn builds the common existence-check domain.
func IDsIn(ids []int64) Domain {
	return Domain{{Field: "id", Op: "in", Value: ids}}
}

// Reader is the read-only subset of the record store, enough for the
// plan validator's reference verification.
type Reader interface {
	// Search returns the ids of records matching the domain.
	Search(ctx context.Context, model string, domain Domain) ([]int64, error)

	// Read returns the requested fields for the given ids, one field map
	// per found record, each including its "id" field. Missing ids are
	// simply absent from the result.
	Read(ctx context.Context, model string, ids []int64, fields []string) ([]*record.Fields, error)
}

// Store is the full record-store collaborator the executor mutates.
type Store interface {
	Reader

	// Create inserts a record and returns its new id.
	Create(ctx context.Context, model string, values map[string]any) (int64, error)

	// Write updates the given records with the same values.
	Write(ctx context.Context, model string, ids []int64, values map[string]any) (bool, error)

	// Unlink deletes the given records.
	Unlink(ctx context.Context, model string, ids []int64) (bool, error)
}

// NotFoundError reports a read or mutation against a missing record.
type NotFoundError struct {
	Model string
	ID    int64
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("record not found: %s(%d)", e.Model, e.ID)
}

// AccessError reports a permission rejection from the store.
type AccessError struct {
	Model string
	Op    string
}

func (e *AccessError) Error() string {
	return fmt.Sprintf("access denied: %s on %s", e.Op, e.Model)
}
